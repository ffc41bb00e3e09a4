package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", sharederr.NewNotFound("reference", "abc"), http.StatusNotFound},
		{"duplicate", sharederr.NewDuplicate("doi", nil), http.StatusBadRequest},
		{"invalid input", sharederr.NewInvalidInput("bad"), http.StatusBadRequest},
		{"invalid parent enhancement", sharederr.NewInvalidParentEnhancement("x"), http.StatusBadRequest},
		{"duplicate enhancement", sharederr.NewDuplicateEnhancement("x"), http.StatusBadRequest},
		{"store query error", sharederr.NewStoreQueryError(nil), http.StatusBadRequest},
		{"malformed index document", sharederr.NewMalformedIndexDocument("x"), http.StatusUnprocessableEntity},
		{"unit of work error", sharederr.NewUnitOfWorkError("x"), http.StatusInternalServerError},
		{"unkinded error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWriteErrorEncodesDetail(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, sharederr.NewNotFound("reference", "abc"))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected json content type, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), "reference abc not found") {
		t.Errorf("expected detail in body, got %s", w.Body.String())
	}
}

func TestDecodeJSONRejectsMalformedBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	var v map[string]interface{}
	err := decodeJSON(r, &v)
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
	if sharederr.KindOf(err) != sharederr.KindInvalidInput {
		t.Errorf("expected KindInvalidInput, got %v", sharederr.KindOf(err))
	}
}
