package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNamespace_DefaultDBIndex(t *testing.T) {
	tests := []struct {
		ns   Namespace
		want int
	}{
		{ConfigDB, 4},
		{ApplDB, 0},
		{StateDB, 6},
		{CountersDB, 2},
	}
	for _, tt := range tests {
		if got := tt.ns.DefaultDBIndex(); got != tt.want {
			t.Errorf("Namespace(%d).DefaultDBIndex() = %d, want %d", tt.ns, got, tt.want)
		}
	}
}

func TestConfig_Defaults(t *testing.T) {
	c := &Config{}

	if got := c.GetRedisAddr(); got != "localhost:6379" {
		t.Errorf("GetRedisAddr() default = %q, want %q", got, "localhost:6379")
	}
	if got := c.GetACLCounterPollInterval(); got != DefaultACLCounterPollInterval {
		t.Errorf("GetACLCounterPollInterval() default = %v, want %v", got, DefaultACLCounterPollInterval)
	}
	if got := c.GetBatchSize(); got != DefaultBatchSize {
		t.Errorf("GetBatchSize() default = %d, want %d", got, DefaultBatchSize)
	}
}

func TestConfig_ACLCounterPollInterval_FloorEnforced(t *testing.T) {
	c := &Config{ACLCounterPollInterval: 2 * time.Second}
	if got := c.GetACLCounterPollInterval(); got != MinACLCounterPollInterval {
		t.Errorf("GetACLCounterPollInterval() = %v, want floor %v", got, MinACLCounterPollInterval)
	}

	c = &Config{ACLCounterPollInterval: 30 * time.Second}
	if got := c.GetACLCounterPollInterval(); got != 30*time.Second {
		t.Errorf("GetACLCounterPollInterval() = %v, want %v", got, 30*time.Second)
	}
}

func TestConfig_VendorRequiresWarmBoot(t *testing.T) {
	tests := []struct {
		vendor string
		want   bool
	}{
		{"mellanox", true},
		{"broadcom", true},
		{"cisco", false},
		{"", false},
	}
	for _, tt := range tests {
		c := &Config{ASICVendor: tt.vendor}
		if got := c.VendorRequiresWarmBoot(); got != tt.want {
			t.Errorf("VendorRequiresWarmBoot() with vendor %q = %v, want %v", tt.vendor, got, tt.want)
		}
	}
}

func TestConfig_Clear(t *testing.T) {
	c := &Config{
		RedisAddr:  "10.0.0.1:6379",
		ASICVendor: "broadcom",
		BatchSize:  64,
	}
	c.Clear()

	if c.RedisAddr != "" || c.ASICVendor != "" || c.BatchSize != 0 {
		t.Error("Clear() should reset all fields to empty")
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "orchagent-config-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "config.yaml")

	original := &Config{
		RedisAddr:  "127.0.0.1:6379",
		ASICVendor: "broadcom",
		BatchSize:  256,
		MACOverride: "aa:bb:cc:dd:ee:ff",
	}

	if err := original.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	if loaded.RedisAddr != original.RedisAddr {
		t.Errorf("RedisAddr mismatch: got %q, want %q", loaded.RedisAddr, original.RedisAddr)
	}
	if loaded.ASICVendor != original.ASICVendor {
		t.Errorf("ASICVendor mismatch: got %q, want %q", loaded.ASICVendor, original.ASICVendor)
	}
	if loaded.BatchSize != original.BatchSize {
		t.Errorf("BatchSize mismatch: got %d, want %d", loaded.BatchSize, original.BatchSize)
	}
	if loaded.MACOverride != original.MACOverride {
		t.Errorf("MACOverride mismatch: got %q, want %q", loaded.MACOverride, original.MACOverride)
	}
}

func TestConfig_LoadNonExistent(t *testing.T) {
	c, err := LoadFrom("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadFrom() non-existent should not error: %v", err)
	}
	if c == nil {
		t.Fatal("LoadFrom() should return non-nil Config")
	}
}

func TestConfig_LoadInvalidYAML(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "orchagent-config-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("not: valid: yaml: here:"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	_, err = LoadFrom(path)
	if err == nil {
		t.Error("LoadFrom() with invalid YAML should error")
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	for _, key := range []string{"ASIC_VENDOR", "onie_platform", "ORCHAGENT_REDIS_ADDR", "ORCHAGENT_BATCH_SIZE"} {
		original := os.Getenv(key)
		defer os.Setenv(key, original)
	}

	os.Setenv("ASIC_VENDOR", "mellanox")
	os.Setenv("onie_platform", "x86_64-dellemc_s5248f")
	os.Setenv("ORCHAGENT_REDIS_ADDR", "10.1.1.1:6379")
	os.Setenv("ORCHAGENT_BATCH_SIZE", "512")

	c := &Config{}
	c.applyEnvOverrides()

	if c.ASICVendor != "mellanox" {
		t.Errorf("ASICVendor = %q, want mellanox", c.ASICVendor)
	}
	if c.OnieePlatform != "x86_64-dellemc_s5248f" {
		t.Errorf("OnieePlatform = %q, want x86_64-dellemc_s5248f", c.OnieePlatform)
	}
	if c.RedisAddr != "10.1.1.1:6379" {
		t.Errorf("RedisAddr = %q, want 10.1.1.1:6379", c.RedisAddr)
	}
	if c.BatchSize != 512 {
		t.Errorf("BatchSize = %d, want 512", c.BatchSize)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if path == "" {
		t.Error("DefaultConfigPath() should not be empty")
	}
}
