package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/storefront/internal/ledger"
	"github.com/roach88/storefront/internal/store"
)

// NewProductCommand creates the product command group. The catalog is
// managed elsewhere; this only seeds the rows the cart ledger checks.
func NewProductCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Seed catalog entries",
	}
	cmd.AddCommand(newProductPutCommand(rootOpts))
	return cmd
}

func newProductPutCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		name        string
		price       string
		unavailable bool
	)

	cmd := &cobra.Command{
		Use:   "put <product-id>",
		Short: "Insert or replace a catalog entry",
		Long: `Insert or replace a catalog entry.

Example:
  storefront product put 12 --name "Pixel 8" --price 499.99
  storefront product put 12 --name "Pixel 8" --price 499.99 --unavailable`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("product id", args[0])
			if err != nil {
				return err
			}
			p, err := parseMoney("price", price)
			if err != nil {
				return err
			}
			if p.IsNegative() {
				return NewExitError(ExitCommandError, "price must not be negative")
			}

			app, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := commandContext(cmd)
			product := store.Product{ID: id, Name: name, Price: p, Available: !unavailable}
			action := ledger.ActionUpdated
			err = app.Retry.Commit(ctx, func(tx *store.Tx) error {
				action = ledger.ActionUpdated
				if _, err := tx.Product(ctx, id); errors.Is(err, store.ErrNotFound) {
					action = ledger.ActionCreated
				} else if err != nil {
					return err
				}
				return tx.PutProduct(ctx, product)
			})
			if err != nil {
				return ledgerError("product put", err)
			}
			app.notifier.Publish(ledger.ProductEvent(action, id, name, p, product.Available))

			f := newFormatter(cmd, rootOpts)
			return f.Success(map[string]any{
				"id":        id,
				"name":      name,
				"price":     p.StringFixed(2),
				"available": product.Available,
				"created":   action == ledger.ActionCreated,
			}, func(w io.Writer) {
				fmt.Fprintf(w, "product %d: %s %s (available: %t)\n", id, name, p.StringFixed(2), product.Available)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "product name (required)")
	cmd.Flags().StringVar(&price, "price", "", "unit price (required)")
	cmd.Flags().BoolVar(&unavailable, "unavailable", false, "mark the product as not purchasable")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}
