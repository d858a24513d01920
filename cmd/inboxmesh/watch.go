package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/inboxmesh/dispatcher"
	"github.com/hupe1980/inboxmesh/logging"
	"github.com/hupe1980/inboxmesh/mail"
	"github.com/hupe1980/inboxmesh/watcher"
)

type watchFlags struct {
	historyID uint64
	since     string
}

func newWatchCmd() *cobra.Command {
	var f watchFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the inbox and open a session for every new matching e-mail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, f)
		},
	}
	cmd.Flags().Uint64Var(&f.historyID, "history-id", 0, "resume from this Gmail history id instead of the current one")
	cmd.Flags().StringVar(&f.since, "since", "", "also process e-mails received since this date (YYYY-MM-DD) before watching")
	return cmd
}

func runWatch(cmd *cobra.Command, f watchFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()
	cfg := a.Config

	policy, err := dispatcher.ParsePolicy(cfg.Dispatcher.WatchPolicy)
	if err != nil {
		return err
	}
	d, err := a.Dispatcher(policy)
	if err != nil {
		return err
	}

	if cfg.Embedding.Enabled {
		n, err := a.Mail.Sync(ctx, cfg.Embedding.SyncQuery, cfg.Embedding.SyncLimit)
		if err != nil {
			return fmt.Errorf("index mailbox: %w", err)
		}
		a.Logger.Info("watch.index.synced", "added", n, "documents", a.Mail.Index().Len())
	}

	var since time.Time
	if f.since != "" {
		since, err = time.ParseInLocation(time.DateOnly, f.since, a.Location)
		if err != nil {
			return fmt.Errorf("invalid --since %q: %w", f.since, err)
		}
	}

	var classifier *watcher.Classifier
	if cfg.Watcher.Classify {
		classifier, err = watcher.NewClassifier(a.Model, a.Mail, cfg.Watcher.LabelDescriptors, func(o *watcher.ClassifierOptions) {
			o.Logger = a.Logger
		})
		if err != nil {
			return err
		}
	}

	src := watcher.NewGmailSource(a.Mail, func(o *watcher.GmailSourceOptions) {
		o.Labels = cfg.Watcher.Labels
		o.StartHistoryID = f.historyID
		o.Classifier = classifier
		o.Logger = a.Logger
		if cfg.Embedding.Enabled {
			o.Indexer = a.Mail
		}
	})
	w, err := watcher.New(src, watcher.NewQueue[mail.Email](), func(o *watcher.Options) {
		o.Schedule = cfg.Watcher.Schedule
		o.Logger = a.Logger
	})
	if err != nil {
		return err
	}

	if !since.IsZero() {
		n, err := w.Backlog(ctx, since, cfg.Watcher.BacklogLimit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Queued %d e-mails from the backlog.\n", n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error {
		return consume(gctx, w.Queue(), newConsole(cmd.InOrStdin(), cmd.OutOrStdout()), d, a.Logger)
	})
	if h := a.Telemetry.Handler(); h != nil {
		g.Go(func() error { return serveMetrics(gctx, cfg.Telemetry.MetricsAddr, a.Telemetry.Endpoint(), h, a.Logger) })
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Watching the inbox. Press Ctrl+C to stop.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// consume opens one session per queued e-mail until the queue closes.
func consume(ctx context.Context, q *watcher.Queue[mail.Email], c *console, conv conversation, logger logging.Logger) error {
	for {
		email, err := q.Pop(ctx)
		if errors.Is(err, watcher.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		logger.Info("watch.email", "email_id", email.ID, "subject", email.Subject)
		err = c.converse(ctx, conv, "email-"+email.ID, dispatcher.EmailRequest(email))
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			logger.Error("watch.session.failed", "email_id", email.ID, "error", err)
		}
	}
}

func serveMetrics(ctx context.Context, addr, path string, h http.Handler, logger logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("watch.metrics.listening", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
