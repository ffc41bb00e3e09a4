// Command api-server serves the repository's §6 HTTP surface: imports,
// enhancement requests/batches, search/lookup, and robot/automation admin.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/destiny-evidence/reference-repository/internal/bootstrap"
	"github.com/destiny-evidence/reference-repository/internal/httpapi"
	"github.com/destiny-evidence/reference-repository/pkg/obslog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, os.Getenv("CONFIG_PATH"))
	if err != nil {
		fatal(err)
	}
	defer func() { _ = app.Close() }()

	router := httpapi.NewRouter(httpapi.Dependencies{
		Store:       app.Store,
		UnitOfWork:  app.UnitOfWork,
		Queue:       app.Queue,
		Enhancement: app.Enhancement,
		Search:      app.Search,
	})

	addr := envOr("LISTEN_ADDR", ":8080")
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		app.Log.Info("starting api server", obslog.NewFields().Component("api-server").With("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Log.Error("api server stopped unexpectedly", obslog.NewFields().Component("api-server").Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Log.Error("api server shutdown error", obslog.NewFields().Component("api-server").Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	os.Stderr.WriteString(err.Error() + "\n")
	os.Exit(1)
}
