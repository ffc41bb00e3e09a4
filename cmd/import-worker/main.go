// Command import-worker consumes the two deferred task kinds the HTTP
// surface and the orchestrator enqueue: process_import_batch (§4.4, runs
// the full batch ingestion pipeline) and determine_duplicate (§4.2 phases
// B-D, runs the asynchronous dedup decision for one reference).
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/destiny-evidence/reference-repository/internal/bootstrap"
	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/obslog"
)

const (
	processImportBatchTaskKind = "process_import_batch"
	determineDuplicateTaskKind = "determine_duplicate"
)

type processImportBatchPayload struct {
	ImportBatchID uuid.UUID `json:"import_batch_id"`
}

type determineDuplicatePayload struct {
	ReferenceID uuid.UUID `json:"reference_id"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, os.Getenv("CONFIG_PATH"))
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = app.Close() }()

	fields := obslog.NewFields().Component("import-worker")

	err = app.Queue.Consume(ctx, processImportBatchTaskKind, func(ctx context.Context, t capability.Task) error {
		var p processImportBatchPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return err
		}
		if err := app.Orchestrator.ProcessBatch(ctx, p.ImportBatchID); err != nil {
			app.Log.Error("process_import_batch failed", fields.Operation("ProcessBatch").Resource("import_batch", p.ImportBatchID.String()).Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		app.Log.Error("failed to subscribe to process_import_batch", fields.Error(err))
		os.Exit(1)
	}

	err = app.Queue.Consume(ctx, determineDuplicateTaskKind, func(ctx context.Context, t capability.Task) error {
		var p determineDuplicatePayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return err
		}
		ref, err := app.Store.GetReference(ctx, p.ReferenceID)
		if err != nil {
			return err
		}
		if _, err := app.Deduplication.Determine(ctx, ref); err != nil {
			app.Log.Error("determine_duplicate failed", fields.Operation("Determine").Resource("reference", p.ReferenceID.String()).Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		app.Log.Error("failed to subscribe to determine_duplicate", fields.Error(err))
		os.Exit(1)
	}

	app.Log.Info("import worker subscribed", fields)
	<-ctx.Done()
}
