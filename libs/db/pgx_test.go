package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestOptions(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://lessonbook@localhost:5432/lessonbook")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	WithApplicationName("booking-service")(cfg)
	WithStatementTimeout(2500 * time.Millisecond)(cfg)
	WithStatementTimeout(0)(cfg)

	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != "booking-service" {
		t.Fatalf("expected application_name, got %q", got)
	}
	if got := cfg.ConnConfig.RuntimeParams["statement_timeout"]; got != "2500" {
		t.Fatalf("expected statement_timeout 2500, got %q", got)
	}
}

func TestErrorHelpers(t *testing.T) {
	dup := fmt.Errorf("insert user: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(dup) || SQLState(dup) != "23505" {
		t.Fatalf("expected wrapped unique violation to be detected")
	}
	if IsUniqueViolation(errors.New("boom")) || SQLState(nil) != "" {
		t.Fatalf("expected plain errors to carry no sql state")
	}
	if !IsNotFound(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to be not found")
	}
}
