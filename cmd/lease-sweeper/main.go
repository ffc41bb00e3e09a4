// Command lease-sweeper periodically reclaims expired robot enhancement
// batch leases (§4.3e), requeuing their references for a fresh poll.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/destiny-evidence/reference-repository/internal/bootstrap"
	"github.com/destiny-evidence/reference-repository/pkg/obslog"
)

type bootstrapApp = bootstrap.App

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, os.Getenv("CONFIG_PATH"))
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = app.Close() }()

	interval := time.Duration(app.Config.LeaseSweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}

	fields := obslog.NewFields().Component("lease-sweeper")
	app.Log.Info("starting lease sweeper", fields.With("interval", interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx, app)
		}
	}
}

func sweep(ctx context.Context, app *bootstrapApp) {
	n, err := app.Enhancement.SweepExpiredLeases(ctx, time.Now())
	fields := obslog.NewFields().Component("lease-sweeper").Operation("SweepExpiredLeases")
	if err != nil {
		app.Log.Error("lease sweep failed", fields.Error(err))
		return
	}
	if n > 0 {
		app.Log.Info("reclaimed expired leases", fields.With("count", n))
	}
}
