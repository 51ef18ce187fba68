// Package bootconfig loads the boot-time configuration consumed by the
// sim-mode entrypoint: hart count, memory window, and the simulated
// device table (§1.1's sim build mode). Grounded on the teacher/pack's
// YAML-based config idiom (e.g. tinyrange-cc's site_config.go), adapted
// from a hypervisor's guest-layout config to a kernel's own boot
// parameters.
package bootconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DeviceKind names a simulated device the boot sequence wires a handle
// backend or interrupt source to.
type DeviceKind string

const (
	DeviceUART      DeviceKind = "uart"
	DeviceVirtioBlk DeviceKind = "virtio-blk"
	DeviceTimer     DeviceKind = "timer"
)

// Device describes one simulated device's MMIO window and interrupt
// line. The boot sequence loads this list but does not read it; the
// vbuf registry and the interrupt backend receive their windows and ids
// through their own calls.
type Device struct {
	Kind     DeviceKind `yaml:"kind"`
	PhysBase uint64     `yaml:"phys_base"`
	Length   uint64     `yaml:"length"`
	IRQ      uint32     `yaml:"irq"`
}

// Config is the whole of a boot configuration file.
type Config struct {
	// HartCount is the number of simulated harts to bring up.
	HartCount int `yaml:"hart_count"`

	// MemoryBase/MemorySize bound the physical address range the sim
	// allocators (process-egg data pages, AllocPages) hand out from.
	MemoryBase uint64 `yaml:"memory_base"`
	MemorySize uint64 `yaml:"memory_size"`

	// KernelImageEnd is the configured physical/virtual boundary of the
	// kernel image. AllocPages and the process-egg loader do not read it:
	// both use their own fixed 0x80000000 bound (§4.9, §6).
	KernelImageEnd uint64 `yaml:"kernel_image_end"`

	// DeviceWindowBase is where vbuf.Registry starts mapping device MMIO
	// windows into the kernel's own address range (§4.10).
	DeviceWindowBase uint64 `yaml:"device_window_base"`

	Devices []Device `yaml:"devices"`
}

// Default returns a Config usable by tests and the sim entrypoint
// without a config file on disk.
func Default() Config {
	return Config{
		HartCount:        1,
		MemoryBase:       0x90000000,
		MemorySize:       0x10000000,
		KernelImageEnd:   0x80000000,
		DeviceWindowBase: 0xC0000000,
		Devices: []Device{
			{Kind: DeviceUART, PhysBase: 0x10000000, Length: 0x1000, IRQ: 10},
		},
	}
}

// Load reads and parses a boot configuration file from path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("bootconfig: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("bootconfig: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the boot sequence relies on.
func (c Config) Validate() error {
	if c.HartCount < 1 {
		return fmt.Errorf("bootconfig: hart_count must be >= 1, got %d", c.HartCount)
	}
	if c.MemorySize == 0 {
		return fmt.Errorf("bootconfig: memory_size must be nonzero")
	}
	for _, d := range c.Devices {
		if d.Length == 0 {
			return fmt.Errorf("bootconfig: device %q has zero length", d.Kind)
		}
	}
	return nil
}
