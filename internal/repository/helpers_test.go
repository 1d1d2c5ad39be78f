package repository

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/lib/pq"
)

func TestWrapErr_UniqueViolationBecomesConflict(t *testing.T) {
	err := wrapErr(&pq.Error{Code: uniqueViolation, Constraint: "users_email_key"}, "upsert user")

	if !apperrors.Is(err, apperrors.KindConflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "users_email_key") {
		t.Errorf("Expected constraint in message, got %q", err.Error())
	}
}

func TestWrapErr_WrapsOtherErrors(t *testing.T) {
	if wrapErr(nil, "noop") != nil {
		t.Error("Expected nil for nil error")
	}

	err := wrapErr(sql.ErrConnDone, "get submission")
	if !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("Expected wrapped sql error, got %v", err)
	}
	if apperrors.Is(err, apperrors.KindConflict) {
		t.Error("Non-unique errors must not be conflicts")
	}

	err = wrapErr(&pq.Error{Code: "23503"}, "create review")
	if apperrors.Is(err, apperrors.KindConflict) {
		t.Error("Foreign key violations must not be conflicts")
	}
}

func TestNullHelpers(t *testing.T) {
	if nullString("").Valid {
		t.Error("Empty string should be NULL")
	}
	if ns := nullString("x"); !ns.Valid || ns.String != "x" {
		t.Errorf("Unexpected NullString %+v", ns)
	}

	if strPtr(sql.NullString{}) != nil {
		t.Error("Invalid NullString should map to nil")
	}
	if p := strPtr(sql.NullString{String: "abc", Valid: true}); p == nil || *p != "abc" {
		t.Errorf("Unexpected pointer %v", p)
	}

	now := time.Now()
	if timePtr(sql.NullTime{}) != nil {
		t.Error("Invalid NullTime should map to nil")
	}
	if p := timePtr(sql.NullTime{Time: now, Valid: true}); p == nil || !p.Equal(now) {
		t.Errorf("Unexpected time pointer %v", p)
	}
}

func TestJSONValue(t *testing.T) {
	s, err := jsonValue([]string{"graph neural networks", "optimisation"})
	if err != nil {
		t.Fatalf("jsonValue failed: %v", err)
	}
	if s != `["graph neural networks","optimisation"]` {
		t.Errorf("Unexpected JSON %s", s)
	}

	if _, err := jsonValue(make(chan int)); err == nil {
		t.Error("Expected error for unmarshalable value")
	}
}
