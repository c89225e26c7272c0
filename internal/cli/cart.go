package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/storefront/internal/cart"
	"github.com/roach88/storefront/internal/ledger"
	"github.com/roach88/storefront/internal/store"
)

// CartOptions holds flags shared by cart subcommands.
type CartOptions struct {
	*RootOptions
	IdentityOptions
}

// CartLineView is the output shape of a cart line.
type CartLineView struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
	Category  string `json:"category"`
	Condition string `json:"condition"`
	Image     string `json:"image,omitempty"`
}

// TotalsView is the output shape of cart totals.
type TotalsView struct {
	Subtotal  string `json:"subtotal"`
	Tax       string `json:"tax"`
	Total     string `json:"total"`
	ItemCount int    `json:"item_count"`
}

func newCartLineView(l ledger.CartLine, image string) CartLineView {
	return CartLineView{
		ProductID: l.ProductID,
		Name:      l.Name,
		Price:     l.UnitPrice.StringFixed(2),
		Quantity:  l.Quantity,
		LineTotal: l.LineTotal().StringFixed(2),
		Category:  l.Category,
		Condition: l.Condition,
		Image:     image,
	}
}

func newTotalsView(t ledger.Totals) TotalsView {
	return TotalsView{
		Subtotal:  t.Subtotal.StringFixed(2),
		Tax:       t.Tax.StringFixed(2),
		Total:     t.Total.StringFixed(2),
		ItemCount: t.ItemCount,
	}
}

// NewCartCommand creates the cart command group.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CartOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and change a cart",
	}
	opts.register(cmd)

	cmd.AddCommand(newCartAddCommand(opts))
	cmd.AddCommand(newCartSetCommand(opts))
	cmd.AddCommand(newCartRemoveCommand(opts))
	cmd.AddCommand(newCartTotalsCommand(opts))
	cmd.AddCommand(newCartListCommand(opts))
	return cmd
}

func newCartAddCommand(opts *CartOptions) *cobra.Command {
	var (
		name, price, category, condition, image string
	)

	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add one unit of a product to the cart",
		Long: `Add one unit of a product to the cart.

An existing line is incremented and takes the given name and price.
Name and price default to the catalog entry.

Example:
  storefront cart add 12 --session 0190c3e0-...
  storefront cart add 12 --user 42 --price 499.99`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("product id", args[0])
			if err != nil {
				return err
			}
			return withScope(cmd, opts, func(app *App, scope ledger.Scope, f *OutputFormatter) error {
				ctx := commandContext(cmd)
				item := cart.Item{
					ProductID: id,
					Name:      name,
					Category:  category,
					Condition: condition,
					ImageRef:  image,
				}
				if name == "" || price == "" {
					p, err := app.Store.Product(ctx, id)
					switch {
					case errors.Is(err, store.ErrNotFound):
						return NewExitError(ExitFailure, fmt.Sprintf("product %d does not exist", id))
					case err != nil:
						return WrapExitError(ExitCommandError, "failed to read product", err)
					}
					if item.Name == "" {
						item.Name = p.Name
					}
					item.Price = p.Price
				}
				if price != "" {
					if item.Price, err = parseMoney("price", price); err != nil {
						return err
					}
				}

				res, err := app.Carts.Upsert(ctx, scope, item)
				if err != nil {
					return ledgerError("cart add", err)
				}
				return f.Success(map[string]any{
					"line":       newCartLineView(res.Line, res.Line.ImageRef),
					"item_count": res.ItemCount,
					"created":    res.Created,
				}, func(w io.Writer) {
					fmt.Fprintf(w, "%s x%d (cart has %d items)\n", res.Line.Name, res.Quantity, res.ItemCount)
				})
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "product name (default: catalog name)")
	cmd.Flags().StringVar(&price, "price", "", "unit price (default: catalog price)")
	cmd.Flags().StringVar(&category, "category", "", "product category")
	cmd.Flags().StringVar(&condition, "condition", "", "product condition")
	cmd.Flags().StringVar(&image, "image", "", "image reference or URL")
	return cmd
}

func newCartSetCommand(opts *CartOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set <product-id> <quantity>",
		Short:         "Set the quantity of a cart line",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("product id", args[0])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid quantity", err)
			}
			return withScope(cmd, opts, func(app *App, scope ledger.Scope, f *OutputFormatter) error {
				line, err := app.Carts.SetQuantity(commandContext(cmd), scope, id, qty)
				if err != nil {
					return ledgerError("cart set", err)
				}
				return f.Success(newCartLineView(line, line.ImageRef), func(w io.Writer) {
					fmt.Fprintf(w, "%s x%d\n", line.Name, line.Quantity)
				})
			})
		},
	}
}

func newCartRemoveCommand(opts *CartOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <product-id>",
		Short:         "Remove a line from the cart",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("product id", args[0])
			if err != nil {
				return err
			}
			return withScope(cmd, opts, func(app *App, scope ledger.Scope, f *OutputFormatter) error {
				n, err := app.Carts.Remove(commandContext(cmd), scope, id)
				if err != nil {
					return ledgerError("cart remove", err)
				}
				return f.Success(map[string]any{"deleted": n}, func(w io.Writer) {
					if n == 0 {
						fmt.Fprintf(w, "product %d was not in the cart\n", id)
						return
					}
					fmt.Fprintf(w, "removed product %d\n", id)
				})
			})
		},
	}
}

func newCartTotalsCommand(opts *CartOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "totals",
		Short:         "Show cart subtotal, tax and total",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScope(cmd, opts, func(app *App, scope ledger.Scope, f *OutputFormatter) error {
				t, err := app.Carts.Totals(commandContext(cmd), scope)
				if err != nil {
					return ledgerError("cart totals", err)
				}
				v := newTotalsView(t)
				return f.Success(v, func(w io.Writer) {
					fmt.Fprintf(w, "Items:    %d\n", v.ItemCount)
					fmt.Fprintf(w, "Subtotal: %s\n", v.Subtotal)
					fmt.Fprintf(w, "Tax:      %s\n", v.Tax)
					fmt.Fprintf(w, "Total:    %s\n", v.Total)
				})
			})
		},
	}
}

func newCartListCommand(opts *CartOptions) *cobra.Command {
	var mediaBase string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cart lines with totals",
		Long: `List cart lines, oldest first, with totals.

With --media-base, image references are printed as absolute URLs.

Example:
  storefront cart list --user 42 --media-base https://shop.example.com`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScope(cmd, opts, func(app *App, scope ledger.Scope, f *OutputFormatter) error {
				ctx := commandContext(cmd)
				lines, err := app.Carts.Lines(ctx, scope)
				if err != nil {
					return ledgerError("cart list", err)
				}

				views := make([]CartLineView, len(lines))
				for i, l := range lines {
					image := l.ImageRef
					if mediaBase != "" {
						image = app.Images.URL(mediaBase, l.ImageRef)
					}
					views[i] = newCartLineView(l, image)
				}
				totals := newTotalsView(cart.ComputeTotals(lines, app.Carts.TaxRate()))

				return f.Success(map[string]any{
					"lines":  views,
					"totals": totals,
				}, func(w io.Writer) {
					if len(views) == 0 {
						fmt.Fprintln(w, "Cart is empty.")
						return
					}
					for _, v := range views {
						fmt.Fprintf(w, "%6d  %-30s %3d x %10s = %10s\n", v.ProductID, v.Name, v.Quantity, v.Price, v.LineTotal)
					}
					fmt.Fprintf(w, "Subtotal %s  Tax %s  Total %s\n", totals.Subtotal, totals.Tax, totals.Total)
				})
			})
		},
	}

	cmd.Flags().StringVar(&mediaBase, "media-base", "", "base URL for image links")
	return cmd
}

// withScope opens the App, resolves the caller scope and runs fn.
func withScope(cmd *cobra.Command, opts *CartOptions, fn func(*App, ledger.Scope, *OutputFormatter) error) error {
	return runScoped(cmd, opts.RootOptions, &opts.IdentityOptions, fn)
}

func runScoped(cmd *cobra.Command, root *RootOptions, id *IdentityOptions, fn func(*App, ledger.Scope, *OutputFormatter) error) error {
	app, err := openApp(cmd, root)
	if err != nil {
		return err
	}
	defer app.Close()

	f := newFormatter(cmd, root)
	scope, err := app.resolveScope(commandContext(cmd), id, f)
	if err != nil {
		return err
	}
	return fn(app, scope, f)
}

func parseID(what, v string) (int64, error) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s %q", what, v))
	}
	return id, nil
}

func parseMoney(what, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, WrapExitError(ExitCommandError, "invalid "+what, err)
	}
	return d, nil
}
