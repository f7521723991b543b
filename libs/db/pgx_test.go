package db

import (
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "appointments_live_slot_uniq"})

	if !IsUniqueViolation(err, "") {
		t.Fatal("expected any-constraint match")
	}
	if !IsUniqueViolation(err, "appointments_live_slot_uniq") {
		t.Fatal("expected named constraint match")
	}
	if IsUniqueViolation(err, "users_email_key") {
		t.Fatal("did not expect match on other constraint")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: CodeExclusionViolation}, "") {
		t.Fatal("exclusion violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Fatal("plain error must not match")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to be not found")
	}
}

func TestMigrationNamesSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_ledger.sql":       {Data: []byte("SELECT 1")},
		"0001_appointments.sql": {Data: []byte("SELECT 1")},
		"README.md":             {Data: []byte("docs")},
	}
	names, err := migrationNames(fsys)
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	if len(names) != 2 || names[0] != "0001_appointments.sql" || names[1] != "0002_ledger.sql" {
		t.Fatalf("unexpected order: %v", names)
	}
}
