package importing

import "testing"

func TestDeriveBatchStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ImportResultStatus
		want     ImportBatchStatus
	}{
		{"no lines completes empty", nil, ImportBatchCompleted},
		{"any non-terminal still started", []ImportResultStatus{ImportResultCreated, ImportResultCompleted}, ImportBatchStarted},
		{"all completed", []ImportResultStatus{ImportResultCompleted, ImportResultCompleted}, ImportBatchCompleted},
		{"all cancelled", []ImportResultStatus{ImportResultCancelled, ImportResultCancelled}, ImportBatchCancelled},
		{"failed mixed with success is partially failed", []ImportResultStatus{ImportResultCompleted, ImportResultFailed}, ImportBatchPartiallyFailed},
		{"all failed with no success", []ImportResultStatus{ImportResultFailed, ImportResultFailed}, ImportBatchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveBatchStatus(tt.statuses); got != tt.want {
				t.Errorf("DeriveBatchStatus(%v) = %v, want %v", tt.statuses, got, tt.want)
			}
		})
	}
}

func TestImportResultMarkCompletedAndFailed(t *testing.T) {
	r := NewImportResult(NewImportBatch(NewImportRecord(-1).ID, "https://example.test/batch.jsonl", CollisionFail, "").ID, 1)
	if r.Status != ImportResultCreated {
		t.Fatalf("expected created, got %v", r.Status)
	}

	failed := r
	failed.MarkFailed("boom")
	if failed.Status != ImportResultFailed || failed.FailureDetails != "boom" {
		t.Errorf("expected failed status with details, got %+v", failed)
	}

	completed := r
	id := NewImportRecord(-1).ID
	completed.MarkCompleted(id)
	if completed.Status != ImportResultCompleted || completed.ReferenceID == nil || *completed.ReferenceID != id {
		t.Errorf("expected completed status referencing %v, got %+v", id, completed)
	}
}
