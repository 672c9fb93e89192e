package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ParseCoordinate parses the "lat,lng" transport form.
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("invalid coordinate %q: expected \"lat,lng\"", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	c := Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Validate checks that both components are finite and within range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", c.Lat)
	}
	if math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("longitude %v out of range", c.Lng)
	}
	return nil
}

// String returns the comma-joined transport form.
func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

// ShopRecord is the display-ready representation of a coffee shop.
type ShopRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	Neighborhood string `json:"neighborhood"`
	ImgURL       string `json:"imgUrl,omitempty"`
	Voting       int    `json:"voting"`
}

// IsEmpty reports whether the record carries no shop at all.
func (r ShopRecord) IsEmpty() bool {
	return r.ID == "" && r.Name == ""
}

// PersistedShop is a storage row: the storage record id plus the shop fields.
type PersistedShop struct {
	RecordID      string `json:"recordId" dynamodbav:"-"`
	ID            string `json:"id" dynamodbav:"id"`
	Name          string `json:"name" dynamodbav:"name"`
	Address       string `json:"address,omitempty" dynamodbav:"address,omitempty"`
	Neighbourhood string `json:"neighbourhood,omitempty" dynamodbav:"neighbourhood,omitempty"`
	ImgURL        string `json:"imgUrl,omitempty" dynamodbav:"imgUrl,omitempty"`
	Voting        int    `json:"voting" dynamodbav:"voting"`
}

// ShopRecord converts the storage row into its display form.
func (p PersistedShop) ShopRecord() ShopRecord {
	return ShopRecord{
		ID:           p.ID,
		Name:         p.Name,
		Address:      p.Address,
		Neighborhood: p.Neighbourhood,
		ImgURL:       p.ImgURL,
		Voting:       p.Voting,
	}
}
