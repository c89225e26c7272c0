package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewImagesCommand creates the images command group.
func NewImagesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Maintain stored image references",
	}
	cmd.AddCommand(newImagesNormalizeCommand(rootOpts))
	return cmd
}

func newImagesNormalizeCommand(rootOpts *RootOptions) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Re-normalize image references in carts and orders",
		Long: `Re-normalize every stored cart and order image reference with the
configured media prefix and static prefixes.

Changes are only reported unless --apply is given. Cart lines and orders
are each rewritten in one transaction by their ledger, which publishes an
updated event per rewritten row.

Example:
  storefront images normalize
  storefront images normalize --apply`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := commandContext(cmd)
			lineChanges, err := app.Carts.RenormalizeImages(ctx, apply)
			if err != nil {
				return ledgerError("images normalize", err)
			}
			orderChanges, err := app.Orders.RenormalizeImages(ctx, apply)
			if err != nil {
				return ledgerError("images normalize", err)
			}
			changes := append(lineChanges, orderChanges...)

			f := newFormatter(cmd, rootOpts)
			return f.Success(map[string]any{
				"applied": apply,
				"changes": changes,
			}, func(w io.Writer) {
				for _, c := range changes {
					fmt.Fprintf(w, "%s/%d: %q -> %q\n", c.Kind, c.ID, c.Old, c.New)
				}
				switch {
				case len(changes) == 0:
					fmt.Fprintln(w, "All image references are normalized.")
				case apply:
					fmt.Fprintf(w, "Rewrote %d image references.\n", len(changes))
				default:
					fmt.Fprintf(w, "%d image references would change (use --apply to rewrite).\n", len(changes))
				}
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "rewrite the references instead of reporting them")
	return cmd
}
