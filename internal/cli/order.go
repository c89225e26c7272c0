package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/storefront/internal/ledger"
	"github.com/roach88/storefront/internal/order"
)

// OrderOptions holds flags shared by order subcommands.
type OrderOptions struct {
	*RootOptions
	IdentityOptions
}

// CustomerFlags are the delivery contact flags.
type CustomerFlags struct {
	FullName  string
	FirstName string
	LastName  string
	Phone     string
	Location  string
	Notes     string
}

func (c *CustomerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.FullName, "name", "", "full name, split at the first space")
	cmd.Flags().StringVar(&c.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&c.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&c.Phone, "phone", "", "contact phone number")
	cmd.Flags().StringVar(&c.Location, "location", "", "delivery address")
	cmd.Flags().StringVar(&c.Notes, "notes", "", "delivery notes")
}

// Customer builds the ledger customer. --first-name/--last-name win over --name.
func (c *CustomerFlags) Customer() ledger.Customer {
	out := ledger.Customer{
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Phone:     c.Phone,
		Location:  c.Location,
		Notes:     c.Notes,
	}
	if c.FullName != "" && out.FirstName == "" && out.LastName == "" {
		out.FirstName, out.LastName = ledger.SplitFullName(c.FullName)
	}
	return out
}

// OrderView is the output shape of an order.
type OrderView struct {
	ID             int64  `json:"id"`
	OrderNumber    string `json:"order_number"`
	Product        string `json:"product"`
	Quantity       int    `json:"quantity"`
	Price          string `json:"price"`
	LineTotal      string `json:"line_total"`
	DeliveryCost   string `json:"delivery_cost"`
	GrandTotal     string `json:"grand_total"`
	Image          string `json:"image,omitempty"`
	Customer       string `json:"customer"`
	Phone          string `json:"phone"`
	Location       string `json:"location"`
	Notes          string `json:"notes,omitempty"`
	CreatedAt      string `json:"created_at"`
	ExpectedBy     string `json:"expected_delivery"`
	DeliveryStatus string `json:"delivery_status"`
}

func newOrderView(o ledger.Order) OrderView {
	return OrderView{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		Product:        o.ProductName,
		Quantity:       o.Quantity,
		Price:          o.UnitPrice.StringFixed(2),
		LineTotal:      o.LineTotal.StringFixed(2),
		DeliveryCost:   o.DeliveryCost.StringFixed(2),
		GrandTotal:     o.GrandTotal.StringFixed(2),
		Image:          o.ImageRef,
		Customer:       o.Customer.Name(),
		Phone:          o.Customer.Phone,
		Location:       o.Customer.Location,
		Notes:          o.Customer.Notes,
		CreatedAt:      o.CreatedAt.Format("2006-01-02 15:04"),
		ExpectedBy:     o.ExpectedDeliveryDate().Format("2006-01-02"),
		DeliveryStatus: string(o.Status),
	}
}

func newOrderViews(orders []ledger.Order) []OrderView {
	out := make([]OrderView, len(orders))
	for i, o := range orders {
		out[i] = newOrderView(o)
	}
	return out
}

func printOrders(w io.Writer, views []OrderView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No orders.")
		return
	}
	for _, v := range views {
		fmt.Fprintf(w, "#%d %s  %s x%d  %s + %s = %s  [%s]\n",
			v.ID, v.OrderNumber, v.Product, v.Quantity, v.LineTotal, v.DeliveryCost, v.GrandTotal, v.DeliveryStatus)
	}
}

// NewOrderCommand creates the order command group.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place and manage orders",
	}
	opts.register(cmd)

	cmd.AddCommand(newOrderPlaceCommand(opts))
	cmd.AddCommand(newOrderCheckoutCommand(opts))
	cmd.AddCommand(newOrderStatusCommand(opts))
	cmd.AddCommand(newOrderRemoveCommand(opts))
	cmd.AddCommand(newOrderListCommand(opts))
	cmd.AddCommand(newOrderTariffCommand(opts))
	return cmd
}

func newOrderPlaceCommand(opts *OrderOptions) *cobra.Command {
	var (
		customer CustomerFlags
		lines    []string
	)

	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place orders directly, without a cart",
		Long: `Place one order per --line. Direct orders carry no delivery cost.

Each --line is name:quantity:price, optionally followed by :image.

Example:
  storefront order place --user 42 --name "Tendai Moyo" --phone 0771234567 \
    --location "12 Main St" --line "Pixel 8:1:499.99" --line "Case:2:10"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			direct := make([]order.DirectLine, 0, len(lines))
			for _, raw := range lines {
				dl, err := parseDirectLine(raw)
				if err != nil {
					return err
				}
				direct = append(direct, dl)
			}
			return runScoped(cmd, opts.RootOptions, &opts.IdentityOptions, func(app *App, scope ledger.Scope, f *OutputFormatter) error {
				orders, err := app.Orders.PlaceDirect(commandContext(cmd), scope, customer.Customer(), direct)
				if err != nil {
					return ledgerError("order place", err)
				}
				views := newOrderViews(orders)
				return f.Success(views, func(w io.Writer) { printOrders(w, views) })
			})
		},
	}

	customer.register(cmd)
	cmd.Flags().StringArrayVar(&lines, "line", nil, "order line as name:quantity:price[:image] (repeatable)")
	return cmd
}

// parseDirectLine parses name:quantity:price[:image]. The name may not
// contain ':'; the image may.
func parseDirectLine(raw string) (order.DirectLine, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) < 3 {
		return order.DirectLine{}, NewExitError(ExitCommandError,
			fmt.Sprintf("invalid --line %q: want name:quantity:price[:image]", raw))
	}
	qty, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return order.DirectLine{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid quantity in --line %q", raw), err)
	}
	price, err := parseMoney("price in --line "+strconv.Quote(raw), strings.TrimSpace(parts[2]))
	if err != nil {
		return order.DirectLine{}, err
	}
	dl := order.DirectLine{Name: parts[0], Quantity: qty, Price: price}
	if len(parts) == 4 {
		dl.ImageRef = parts[3]
	}
	return dl, nil
}

func newOrderCheckoutCommand(opts *OrderOptions) *cobra.Command {
	var (
		customer CustomerFlags
		delivery string
	)

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Turn the cart into orders and empty it",
		Long: `Create one order per cart line, each carrying the delivery cost for
--delivery, and empty the cart in the same transaction.

Example:
  storefront order checkout --session 0190c3e0-... --name "Tendai Moyo" \
    --phone 0771234567 --location "12 Main St" --delivery Harare`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScoped(cmd, opts.RootOptions, &opts.IdentityOptions, func(app *App, scope ledger.Scope, f *OutputFormatter) error {
				if delivery != "" && !app.Orders.Tariff().Known(delivery) {
					f.VerboseLog("delivery location %q is not in the tariff; delivery is free", delivery)
				}
				orders, err := app.Orders.Checkout(commandContext(cmd), scope, customer.Customer(), delivery)
				if err != nil {
					return ledgerError("checkout", err)
				}
				views := newOrderViews(orders)
				return f.Success(views, func(w io.Writer) { printOrders(w, views) })
			})
		},
	}

	customer.register(cmd)
	cmd.Flags().StringVar(&delivery, "delivery", "", "delivery location (see 'order tariff')")
	return cmd
}

func newOrderStatusCommand(opts *OrderOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status <order-id> <pending|shipped|delivered>",
		Short:         "Set the delivery status of an order",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("order id", args[0])
			if err != nil {
				return err
			}
			return runScoped(cmd, opts.RootOptions, &opts.IdentityOptions, func(app *App, scope ledger.Scope, f *OutputFormatter) error {
				o, err := app.Orders.UpdateStatus(commandContext(cmd), scope, id, args[1])
				if err != nil {
					return ledgerError("order status", err)
				}
				v := newOrderView(o)
				return f.Success(v, func(w io.Writer) { printOrders(w, []OrderView{v}) })
			})
		},
	}
}

func newOrderRemoveCommand(opts *OrderOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <order-id>",
		Short:         "Delete an order",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("order id", args[0])
			if err != nil {
				return err
			}
			return runScoped(cmd, opts.RootOptions, &opts.IdentityOptions, func(app *App, scope ledger.Scope, f *OutputFormatter) error {
				if err := app.Orders.Remove(commandContext(cmd), scope, id); err != nil {
					return ledgerError("order remove", err)
				}
				return f.Success(map[string]any{"deleted": id}, func(w io.Writer) {
					fmt.Fprintf(w, "removed order %d\n", id)
				})
			})
		},
	}
}

func newOrderListCommand(opts *OrderOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List orders, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScoped(cmd, opts.RootOptions, &opts.IdentityOptions, func(app *App, scope ledger.Scope, f *OutputFormatter) error {
				orders, err := app.Orders.List(commandContext(cmd), scope)
				if err != nil {
					return ledgerError("order list", err)
				}
				views := newOrderViews(orders)
				return f.Success(views, func(w io.Writer) { printOrders(w, views) })
			})
		},
	}
}

func newOrderTariffCommand(opts *OrderOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "tariff",
		Short:         "List delivery locations and costs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.RootOptions)
			if err != nil {
				return err
			}
			tariff, err := cfg.Tariff()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid config", err)
			}

			costs := make(map[string]string)
			for _, loc := range tariff.Locations() {
				costs[loc] = tariff.Cost(loc).StringFixed(2)
			}
			f := newFormatter(cmd, opts.RootOptions)
			return f.Success(costs, func(w io.Writer) {
				for _, loc := range tariff.Locations() {
					fmt.Fprintf(w, "%-20s %8s\n", loc, costs[loc])
				}
			})
		},
	}
}
