package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mspro-labs/coffee-finder/internal/directory"
	"mspro-labs/coffee-finder/internal/geo"
	"mspro-labs/coffee-finder/internal/models"
	"mspro-labs/coffee-finder/internal/shops"
	"mspro-labs/coffee-finder/internal/state"
	"mspro-labs/coffee-finder/internal/tasks"
	"mspro-labs/coffee-finder/internal/telemetry"
)

var (
	nearbyLatLong string
	nearbyLimit   int
	nearbyIPURL   string
	nearbySave    bool
)

var nearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "List coffee shops around a location",
	Long: `Captures a location, searches for coffee shops around it and prints them.
The location comes from --lat-long, from an IP geolocation lookup when
--ip-url is set, or from the configured default.

Examples:
  coffee-finder nearby --lat-long "40.4168,-3.7038"
  coffee-finder nearby --ip-url http://ip-api.com/json --limit 10
  coffee-finder nearby --save`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNearby(cmd.Context())
	},
}

func init() {
	nearbyCmd.Flags().StringVar(&nearbyLatLong, "lat-long", "", `location as "lat,lng"`)
	nearbyCmd.Flags().IntVar(&nearbyLimit, "limit", 0, "number of shops (defaults to search.limit)")
	nearbyCmd.Flags().StringVar(&nearbyIPURL, "ip-url", "", "ip-api.com compatible endpoint used to locate this machine")
	nearbyCmd.Flags().BoolVar(&nearbySave, "save", false, "persist every listed shop")
	rootCmd.AddCommand(nearbyCmd)
}

func runNearby(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	dir, err := a.directory(telemetry.Noop())
	if err != nil {
		return err
	}

	// 1. Capture the location into the state store
	var locator geo.Locator
	switch {
	case nearbyLatLong != "":
		c, err := models.ParseCoordinate(nearbyLatLong)
		if err != nil {
			return err
		}
		locator = geo.StaticLocator{Position: c}
	case nearbyIPURL != "":
		locator = geo.NewIPLocator(nearbyIPURL)
	default:
		locator = geo.StaticLocator{Position: dir.DefaultCenter()}
	}
	store := state.NewStore()
	tracker := geo.NewTracker(locator, store)
	if _, err := tracker.Track(ctx); err != nil {
		return fmt.Errorf("%s: %w", tracker.ErrorMessage(), err)
	}

	// 2. Search around it
	found, err := directory.Sync(ctx, dir, store, nearbyLimit)
	if err != nil {
		return err
	}
	printShops(*store.Coordinates(), found)

	if nearbySave {
		return saveShops(ctx, a, found)
	}
	return nil
}

func printShops(at models.Coordinate, list []models.ShopRecord) {
	fmt.Printf("\n☕ Coffee shops near %s\n\n", at)
	if len(list) == 0 {
		fmt.Println("No coffee shops found.")
		return
	}
	for i, s := range list {
		fmt.Printf("#%d %s", i+1, s.Name)
		if s.Neighborhood != "" {
			fmt.Printf(" (%s)", s.Neighborhood)
		}
		fmt.Printf("\n   %s\n", s.Address)
		fmt.Printf("   id: %s\n", s.ID)
		if s.ImgURL != "" {
			fmt.Printf("   photo: %s\n", s.ImgURL)
		}
		fmt.Println()
	}
}

// saveShops runs EnsureShopExists for every shop on the task queue and
// reports each outcome.
func saveShops(ctx context.Context, a *app, list []models.ShopRecord) error {
	svc, err := a.shopService(ctx, telemetry.Noop())
	if err != nil {
		return err
	}
	queue := tasks.NewQueue(a.cfg.Tasks.Workers, len(list), a.cfg.Search.HTTPTimeout.Duration, nil, a.logger)
	defer queue.Close()

	pending := make([]*tasks.Task, 0, len(list))
	for _, s := range list {
		in := shops.InputFromRecord(s)
		task, err := queue.Submit("ensure_shop", func(ctx context.Context) error {
			_, _, err := svc.EnsureShopExists(ctx, in)
			return err
		})
		if err != nil {
			return err
		}
		pending = append(pending, task)
	}

	var failed []string
	for i, task := range pending {
		if err := task.Wait(ctx); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", list[i].ID, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to save %d shop(s): %s", len(failed), strings.Join(failed, "; "))
	}
	fmt.Printf("💾 Saved %d shop(s).\n", len(list))
	return nil
}
