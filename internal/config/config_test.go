package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("unexpected addr %q", cfg.Server.Addr)
	}
	if !cfg.Database.InMemory {
		t.Error("expected in-memory journal by default")
	}
	if cfg.Calendar.Timezone != "America/New_York" || len(cfg.Calendar.TradingDays) != 5 {
		t.Errorf("unexpected calendar defaults %+v", cfg.Calendar)
	}
	if !cfg.Allocation.DefaultUnitPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("unexpected default unit price %s", cfg.Allocation.DefaultUnitPrice)
	}
	if !cfg.Allocation.SumTolerance.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("unexpected sum tolerance %s", cfg.Allocation.SumTolerance)
	}
	if cfg.Index.StatsTTL != time.Minute || cfg.Index.DefaultLimit != 20 || cfg.Index.MaxLimit != 100 {
		t.Errorf("unexpected index defaults %+v", cfg.Index)
	}
	if cfg.Precision.Default != 3 {
		t.Errorf("unexpected precision %d", cfg.Precision.Default)
	}
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":9090"
calendar:
  timezone: "Europe/London"
  open_time: "08:00"
  close_time: "16:30"
  holidays: ["2026-12-25", "2026-12-28"]
allocation:
  default_unit_price: 42.5
index:
  stats_ttl: 30s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SPLITTER_PRECISION_DEFAULT", "6")
	t.Setenv("SPLITTER_ALLOCATION_DRIFT_TOLERANCE", "0.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Calendar.Timezone != "Europe/London" || cfg.Calendar.OpenTime != "08:00" {
		t.Errorf("unexpected calendar %+v", cfg.Calendar)
	}
	if len(cfg.Calendar.Holidays) != 2 {
		t.Errorf("expected 2 holidays, got %v", cfg.Calendar.Holidays)
	}
	if !cfg.Allocation.DefaultUnitPrice.Equal(decimal.RequireFromString("42.5")) {
		t.Errorf("unexpected unit price %s", cfg.Allocation.DefaultUnitPrice)
	}
	if !cfg.Allocation.DriftTolerance.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("unexpected drift tolerance %s", cfg.Allocation.DriftTolerance)
	}
	if cfg.Index.StatsTTL != 30*time.Second {
		t.Errorf("unexpected stats ttl %s", cfg.Index.StatsTTL)
	}
	if cfg.Precision.Default != 6 {
		t.Errorf("expected env override to 6, got %d", cfg.Precision.Default)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	cfg.Server.Addr = ""
	cfg.Calendar.OpenTime = "17:00"
	cfg.Allocation.DefaultUnitPrice = decimal.Zero
	cfg.Index.DefaultLimit = 500
	cfg.Precision.Default = 11

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.addr", "calendar", "default_unit_price", "default_limit", "precision.default"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}

func TestValidate_RejectsZeroTolerances(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	cfg.Allocation.SumTolerance = decimal.Zero
	cfg.Allocation.DriftTolerance = decimal.Zero

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for zero tolerances")
	}
	for _, want := range []string{"allocation.sum_tolerance", "allocation.drift_tolerance"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}
