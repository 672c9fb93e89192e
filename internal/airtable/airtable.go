// Package airtable stores coffee shops in an Airtable base through its REST API.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mspro-labs/coffee-finder/internal/models"
)

// Client talks to one Airtable table.
type Client struct {
	apiKey     string
	tableURL   string
	httpClient *http.Client
}

// NewClient creates a client for baseURL/baseID/table, e.g.
// https://api.airtable.com/v0/appXXXX/coffee-stores.
func NewClient(apiKey, baseURL, baseID, table string) (*Client, error) {
	if apiKey == "" || baseID == "" {
		return nil, fmt.Errorf("AIRTABLE_API_KEY and AIRTABLE_BASE_ID are required")
	}
	return &Client{
		apiKey:     apiKey,
		tableURL:   strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(baseID) + "/" + url.PathEscape(table),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type fields struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Address       string `json:"address,omitempty"`
	Neighbourhood string `json:"neighbourhood,omitempty"`
	ImgURL        string `json:"imgUrl,omitempty"`
	Voting        int    `json:"voting"`
}

type record struct {
	ID     string `json:"id,omitempty"`
	Fields fields `json:"fields"`
}

type recordsBody struct {
	Records []record `json:"records"`
}

type votingRecord struct {
	ID     string `json:"id"`
	Fields struct {
		Voting int `json:"voting"`
	} `json:"fields"`
}

// minify flattens an Airtable record into the storage row shape.
func minify(r record) models.PersistedShop {
	return models.PersistedShop{
		RecordID:      r.ID,
		ID:            r.Fields.ID,
		Name:          r.Fields.Name,
		Address:       r.Fields.Address,
		Neighbourhood: r.Fields.Neighbourhood,
		ImgURL:        r.Fields.ImgURL,
		Voting:        r.Fields.Voting,
	}
}

func minifyAll(rs []record) []models.PersistedShop {
	out := make([]models.PersistedShop, 0, len(rs))
	for _, r := range rs {
		out = append(out, minify(r))
	}
	return out
}

// FilterByID builds the filterByFormula expression selecting one shop id.
func FilterByID(id string) string {
	escaped := strings.ReplaceAll(id, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `id="` + escaped + `"`
}

// FindByID selects the first page of records whose id field equals id.
func (c *Client) FindByID(ctx context.Context, id string) ([]models.PersistedShop, error) {
	params := url.Values{}
	params.Set("filterByFormula", FilterByID(id))

	var body recordsBody
	if err := c.do(ctx, http.MethodGet, c.tableURL+"?"+params.Encode(), nil, &body); err != nil {
		return nil, err
	}
	return minifyAll(body.Records), nil
}

// Create inserts one record.
func (c *Client) Create(ctx context.Context, shop models.PersistedShop) ([]models.PersistedShop, error) {
	req := recordsBody{Records: []record{{Fields: fields{
		ID:            shop.ID,
		Name:          shop.Name,
		Address:       shop.Address,
		Neighbourhood: shop.Neighbourhood,
		ImgURL:        shop.ImgURL,
		Voting:        shop.Voting,
	}}}}

	var body recordsBody
	if err := c.do(ctx, http.MethodPost, c.tableURL, req, &body); err != nil {
		return nil, err
	}
	return minifyAll(body.Records), nil
}

// UpdateVoting patches the voting field of one record.
func (c *Client) UpdateVoting(ctx context.Context, recordID string, voting int) ([]models.PersistedShop, error) {
	update := votingRecord{ID: recordID}
	update.Fields.Voting = voting
	req := struct {
		Records []votingRecord `json:"records"`
	}{Records: []votingRecord{update}}

	var body recordsBody
	if err := c.do(ctx, http.MethodPatch, c.tableURL, req, &body); err != nil {
		return nil, err
	}
	return minifyAll(body.Records), nil
}

func (c *Client) do(ctx context.Context, method, target string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode Airtable request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call Airtable API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Airtable API error (status %d): %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse Airtable response: %w", err)
	}
	return nil
}
