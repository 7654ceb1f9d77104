package linconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestNewAppliesOptions(t *testing.T) {
	c, err := New(WithBitRate(9600), WithMaxJitter(0.002))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.BitRateHz != 9600 {
		t.Fatalf("BitRateHz = %v, want 9600", c.BitRateHz)
	}
	if c.MaxJitterS != 0.002 {
		t.Fatalf("MaxJitterS = %v, want 0.002", c.MaxJitterS)
	}
	// Untouched fields keep the specification default.
	if c.ScheduleToleranceS != Default().ScheduleToleranceS {
		t.Fatalf("ScheduleToleranceS was mutated by an unrelated option")
	}
}

func TestValidateRejectsZeroBitRate(t *testing.T) {
	_, err := New(WithBitRate(0))
	if err == nil {
		t.Fatal("New with zero bit rate should fail validation")
	}
}

func TestValidateRejectsNegativeTolerance(t *testing.T) {
	_, err := New(WithBitRateTolerance(-0.01))
	if err == nil {
		t.Fatal("New with negative tolerance should fail validation")
	}
}

func TestValidateRejectsNegativeIfsMinBits(t *testing.T) {
	_, err := New(WithIfsMinBits(-1))
	if err == nil {
		t.Fatal("New with negative ifs_min_bits should fail validation")
	}
}

func TestLoadYAMLAppliesDefaultsForOmittedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("bit_rate: 10400\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if c.BitRateHz != 10400 {
		t.Fatalf("BitRateHz = %v, want 10400", c.BitRateHz)
	}
	if c.MaxJitterS != Default().MaxJitterS {
		t.Fatalf("MaxJitterS = %v, want default %v", c.MaxJitterS, Default().MaxJitterS)
	}
}

func TestLoadYAMLRejectsInvalidValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("bit_rate: -1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadYAML(path); err == nil {
		t.Fatal("LoadYAML with negative bit_rate should fail")
	}
}

func TestLoadYAMLMissingFile(t *testing.T) {
	if _, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadYAML of a missing file should fail")
	}
}
