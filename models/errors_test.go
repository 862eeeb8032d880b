package models_test

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/rta_backend/models"
)

func TestErrorDetailKeepsPercentSigns(t *testing.T) {
	err := models.NotFoundError(models.ErrFolioNotFound, "%s", "F%d01")
	if err.Detail != "F%d01" {
		t.Fatalf("detail = %q", err.Detail)
	}
	if got := err.Error(); got != "not_found: folio not found: F%d01" {
		t.Fatalf("message = %q", got)
	}
	if !errors.Is(err, models.ErrFolioNotFound) || !models.IsKind(err, models.KindNotFound) {
		t.Fatalf("classification lost: %v", err)
	}

	wrapped := models.ConcurrencyError(models.ErrLockTimeout, "%s exceeded %s", "Engine.ProcessIdcw", "30s")
	if wrapped.Detail != "Engine.ProcessIdcw exceeded 30s" || !wrapped.Kind.Retryable() {
		t.Fatalf("concurrency error = %+v", wrapped)
	}
}
