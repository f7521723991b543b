package config

import (
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("PORT", "99999")
	if _, err := Port("PORT", "8080"); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
	t.Setenv("PORT", "")
	p, err := Port("PORT", "8083")
	if err != nil || p != "8083" {
		t.Fatalf("expected fallback port, got %q err=%v", p, err)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("SCAN_EVERY", "10m")
	d, err := Duration("SCAN_EVERY", time.Hour)
	if err != nil || d != 10*time.Minute {
		t.Fatalf("expected 10m, got %s err=%v", d, err)
	}

	t.Setenv("SCAN_EVERY", "-5s")
	if _, err := Duration("SCAN_EVERY", time.Hour); err == nil {
		t.Fatal("expected error for negative duration")
	}

	t.Setenv("SCAN_EVERY", "")
	d, err = Duration("SCAN_EVERY", time.Hour)
	if err != nil || d != time.Hour {
		t.Fatalf("expected fallback, got %s err=%v", d, err)
	}
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv("FLAG", "yes")
	if !Bool("FLAG", false) {
		t.Fatal("expected true")
	}
	t.Setenv("FLAG", "garbage")
	if Bool("FLAG", false) {
		t.Fatal("expected fallback false")
	}
	t.Setenv("BATCH", "0")
	if got := Int("BATCH", 50); got != 50 {
		t.Fatalf("expected fallback 50, got %d", got)
	}
}

func TestList(t *testing.T) {
	t.Setenv("ORIGINS", " a.example, ,b.example ")
	got := List("ORIGINS", "")
	if len(got) != 2 || got[0] != "a.example" || got[1] != "b.example" {
		t.Fatalf("unexpected list: %v", got)
	}
}

func TestLocation(t *testing.T) {
	t.Setenv("CLINIC_TIMEZONE", "Europe/Berlin")
	loc, err := Location("CLINIC_TIMEZONE")
	if err != nil || loc.String() != "Europe/Berlin" {
		t.Fatalf("unexpected location %v err=%v", loc, err)
	}
	t.Setenv("CLINIC_TIMEZONE", "Mars/Olympus")
	if _, err := Location("CLINIC_TIMEZONE"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}
