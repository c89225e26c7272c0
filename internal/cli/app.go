package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/storefront/internal/cart"
	"github.com/roach88/storefront/internal/config"
	"github.com/roach88/storefront/internal/identity"
	"github.com/roach88/storefront/internal/ledger"
	"github.com/roach88/storefront/internal/media"
	"github.com/roach88/storefront/internal/notify"
	"github.com/roach88/storefront/internal/order"
	"github.com/roach88/storefront/internal/store"
	"github.com/roach88/storefront/internal/txretry"
)

// drainTimeout bounds how long Close waits for queued change events.
const drainTimeout = 5 * time.Second

// App wires the ledgers for one command invocation.
type App struct {
	Config   *config.Config
	Store    *store.Store
	Carts    *cart.Ledger
	Orders   *order.Ledger
	Identity *identity.Resolver
	Images   *media.Normalizer
	Retry    *txretry.Handler

	notifier *notify.Notifier
	redis    *redis.Client
	done     chan error
}

// loadConfig reads --config and applies --db.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// setupLogging installs the process logger. --verbose wins over log_level.
func setupLogging(w io.Writer, verbose bool, cfg *config.Config) {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// openApp loads configuration, opens the store and starts the notifier.
// Callers must Close the App.
func openApp(cmd *cobra.Command, opts *RootOptions) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	setupLogging(cmd.ErrOrStderr(), opts.Verbose, cfg)

	ctx := commandContext(cmd)

	rate, err := cfg.TaxRateDecimal()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	policy, err := cfg.RetryPolicy()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	tariff, err := cfg.Tariff()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	lastID, err := st.LastOrderID(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read orders", err)
	}

	app := &App{
		Config: cfg,
		Store:  st,
		Images: cfg.Normalizer(),
		Retry:  txretry.New(st, txretry.WithPolicy(policy)),
		done:   make(chan error, 1),
	}

	topic, err := app.topic()
	if err != nil {
		st.Close()
		return nil, err
	}
	app.notifier = notify.New(topic)
	go func() {
		app.done <- app.notifier.Run(context.Background())
	}()

	app.Carts = cart.New(app.Retry, st, app.notifier,
		cart.WithTaxRate(rate),
		cart.WithNormalizer(app.Images),
	)
	app.Orders = order.New(app.Retry, app.notifier,
		order.WithTariff(tariff),
		order.WithNormalizer(app.Images),
		order.WithNumberer(order.NewNumbererAt(time.Now, lastID)),
	)
	app.Identity = identity.NewResolver(st)
	return app, nil
}

// topic selects the change event destination. Without a Redis URL events
// go to an in-process hub with no subscribers.
func (a *App) topic() (notify.Topic, error) {
	n := a.Config.Notify
	if n.RedisURL == "" {
		return notify.NewHub(n.Buffer), nil
	}
	client, err := newRedisClient(n.RedisURL)
	if err != nil {
		return nil, err
	}
	a.redis = client
	slog.Debug("publishing change events to redis", "channel", n.Topic)
	return notify.NewRedisTopic(client, n.Topic), nil
}

func newRedisClient(rawURL string) (*redis.Client, error) {
	ropts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid notify.redis_url", err)
	}
	return redis.NewClient(ropts), nil
}

// Close drains queued events, then releases Redis and the store.
func (a *App) Close() {
	a.notifier.Close()
	select {
	case err := <-a.done:
		if err != nil {
			slog.Warn("notifier stopped with error", "error", err)
		}
	case <-time.After(drainTimeout):
		slog.Warn("change events not drained", "pending", a.notifier.Pending())
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Error("error closing redis client", "error", err)
		}
	}
	if err := a.Store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// IdentityOptions are the caller identity flags shared by cart and order
// commands.
type IdentityOptions struct {
	UserID     string
	SessionKey string
}

func (o *IdentityOptions) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&o.UserID, "user", "", "authenticated user id")
	cmd.PersistentFlags().StringVar(&o.SessionKey, "session", "", "anonymous session key")
}

// resolveScope maps the identity flags to a scope. A newly issued session
// key is reported on the diagnostic writer so the caller can reuse it.
func (a *App) resolveScope(ctx context.Context, id *IdentityOptions, f *OutputFormatter) (ledger.Scope, error) {
	res, err := a.Identity.Resolve(ctx, identity.Request{
		UserID:     id.UserID,
		SessionKey: id.SessionKey,
	})
	if err != nil {
		return ledger.Scope{}, ledgerError("identity", err)
	}
	if res.Created {
		fmt.Fprintf(f.GetErrWriter(), "session: %s\n", res.Scope.Key)
	}
	return res.Scope, nil
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute (tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
