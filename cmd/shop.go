package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mspro-labs/coffee-finder/internal/models"
	"mspro-labs/coffee-finder/internal/shops"
	"mspro-labs/coffee-finder/internal/telemetry"
)

var createInput shops.ShopInput

var shopCmd = &cobra.Command{
	Use:   "shop",
	Short: "Read and write persisted coffee shops",
	Long: `Works directly against the configured storage backend.

Examples:
  coffee-finder shop get 4b5a1d2cf964a520f2c322e3
  coffee-finder shop create 4b5a1d2cf964a520f2c322e3 --name "Joe's"
  coffee-finder shop upvote 4b5a1d2cf964a520f2c322e3`,
}

var shopGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Print the stored record of a shop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withShops(cmd.Context(), func(ctx context.Context, svc *shops.Service) error {
			records, err := svc.FetchShopByID(ctx, args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("%w: %s", shops.ErrNotFound, args[0])
			}
			return printRecords(records)
		})
	},
}

var shopCreateCmd = &cobra.Command{
	Use:   "create [id]",
	Short: "Store a shop unless it already exists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := createInput
		in.ID = args[0]
		return withShops(cmd.Context(), func(ctx context.Context, svc *shops.Service) error {
			records, created, err := svc.EnsureShopExists(ctx, in)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintln(os.Stderr, "created")
			} else {
				fmt.Fprintln(os.Stderr, "already stored")
			}
			return printRecords(records)
		})
	},
}

var shopUpvoteCmd = &cobra.Command{
	Use:   "upvote [id]",
	Short: "Add one vote to a stored shop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withShops(cmd.Context(), func(ctx context.Context, svc *shops.Service) error {
			records, err := svc.UpvoteShop(ctx, args[0])
			if err != nil {
				return err
			}
			return printRecords(records)
		})
	},
}

func init() {
	shopCreateCmd.Flags().StringVar(&createInput.Name, "name", "", "shop name (required for new shops)")
	shopCreateCmd.Flags().StringVar(&createInput.Address, "address", "", "street address")
	shopCreateCmd.Flags().StringVar(&createInput.Neighbourhood, "neighbourhood", "", "neighbourhood")
	shopCreateCmd.Flags().StringVar(&createInput.ImgURL, "img-url", "", "photo URL")

	shopCmd.AddCommand(shopGetCmd, shopCreateCmd, shopUpvoteCmd)
	rootCmd.AddCommand(shopCmd)
}

func withShops(ctx context.Context, fn func(context.Context, *shops.Service) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	svc, err := a.shopService(ctx, telemetry.Noop())
	if err != nil {
		return err
	}
	return fn(ctx, svc)
}

func printRecords(records []models.PersistedShop) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
