package bootconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected the default config to validate, got %v", err)
	}
}

func TestLoadParsesYAMLAndOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boot.yaml")
	contents := `
hart_count: 4
memory_size: 0x20000000
devices:
  - kind: virtio-blk
    phys_base: 0x10008000
    length: 0x1000
    irq: 1
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed writing test fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}
	if cfg.HartCount != 4 {
		t.Errorf("expected hart_count 4, got %d", cfg.HartCount)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].Kind != DeviceVirtioBlk {
		t.Errorf("expected one virtio-blk device, got %+v", cfg.Devices)
	}
}

func TestValidateRejectsZeroHartCount(t *testing.T) {
	cfg := Default()
	cfg.HartCount = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for hart_count 0")
	}
}
