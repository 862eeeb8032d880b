package utils

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/rta_backend/models"
)

type sampleInput struct {
	InvestorId string `validate:"required,max=8"`
	SchemeId   string `validate:"required"`
	Note       string `validate:"max=4"`
}

func TestValidateStructAcceptsValidInput(t *testing.T) {
	if err := ValidateStruct(sampleInput{InvestorId: "INV1", SchemeId: "EQ1"}); err != nil {
		t.Fatalf("ValidateStruct: %v", err)
	}
}

func TestValidateStructListsFailedFields(t *testing.T) {
	err := ValidateStruct(sampleInput{InvestorId: "INVESTOR-TOO-LONG", Note: "too long"})
	if !models.IsKind(err, models.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !errors.Is(err, models.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	var ledgerErr *models.Error
	if !errors.As(err, &ledgerErr) {
		t.Fatalf("expected *models.Error, got %T", err)
	}
	want := "InvestorId=max, Note=max, SchemeId=required"
	if ledgerErr.Detail != want {
		t.Fatalf("detail = %q, want %q", ledgerErr.Detail, want)
	}
}

func TestValidateStructRejectsNonStruct(t *testing.T) {
	err := ValidateStruct("not a struct")
	if err == nil {
		t.Fatalf("expected error for non-struct input")
	}
	if models.IsKind(err, models.KindValidation) {
		t.Fatalf("non-struct input should not be a field validation failure: %v", err)
	}
}
