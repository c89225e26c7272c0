package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/storefront/internal/ledger"
	"github.com/roach88/storefront/internal/notify"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	RedisURL string
	Count    int // stop after this many events; 0 means run until interrupted
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print change events as they are published",
		Long: `Subscribe to the change event topic and print each event as one line of
canonical JSON.

The Redis URL comes from notify.redis_url in the config or --redis.

Example:
  storefront watch --redis redis://localhost:6379/0
  storefront watch --config storefront.cue --count 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RedisURL, "redis", "", "Redis URL (overrides notify.redis_url)")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "exit after this many events")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	setupLogging(cmd.ErrOrStderr(), opts.Verbose, cfg)

	url := cfg.Notify.RedisURL
	if opts.RedisURL != "" {
		url = opts.RedisURL
	}
	if url == "" {
		return NewExitError(ExitCommandError, "no Redis URL: set notify.redis_url or --redis")
	}
	client, err := newRedisClient(url)
	if err != nil {
		return err
	}
	defer client.Close()

	// Use command's context if available (for testing), otherwise create one
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	topic := notify.NewRedisTopic(client, cfg.Notify.Topic)
	events, err := topic.Subscribe(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to subscribe", err)
	}
	slog.Info("watching change events", "channel", topic.Channel())

	hub := notify.NewHub(cfg.Notify.Buffer)
	sub, unsubscribe := hub.Subscribe()

	g, gctx := errgroup.WithContext(ctx)

	// Relay Redis messages into the hub.
	g.Go(func() error {
		defer unsubscribe()
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if err := hub.Publish(gctx, ev); err != nil {
					return err
				}
			}
		}
	})

	// Print hub events.
	g.Go(func() error {
		seen := 0
		for ev := range sub {
			if err := printEvent(cmd, ev); err != nil {
				return err
			}
			seen++
			if opts.Count > 0 && seen >= opts.Count {
				cancel()
				return nil
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "watch failed", err)
	}
	if dropped := hub.Dropped(); dropped > 0 {
		slog.Warn("events dropped by slow output", "dropped", dropped)
	}
	slog.Info("watch stopped")
	return nil
}

func printEvent(cmd *cobra.Command, ev ledger.ChangeEvent) error {
	data, err := notify.Encode(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
