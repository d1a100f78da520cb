package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(t *testing.T) {
	overlap := fmt.Errorf("insert session: %w", &pgconn.PgError{Code: "23P01"})
	if !IsExclusionViolation(overlap) {
		t.Fatal("expected wrapped 23P01 to be an exclusion violation")
	}
	if IsUniqueViolation(overlap) {
		t.Fatal("23P01 is not a unique violation")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected 23505 to be a unique violation")
	}
	if !IsNoRows(fmt.Errorf("lookup: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows")
	}
}
