package handle

import (
	"sync"

	"rvkernel/internal/future"
	"rvkernel/internal/kerr"
	"rvkernel/internal/vbuf"
)

// DeviceBufferBackend maps a (physBase, length) MMIO window through the
// virtual-buffer registry and exposes it as a readable/writable fd
// (§4.8). This is the fifth backend, added to exercise the virtual-buffer
// registry and supplement a feature present in original_source but
// dropped from the distillation.
type DeviceBufferBackend struct {
	Unimplemented

	registry *vbuf.Registry

	mu      sync.Mutex
	buffers map[uint64]*vbuf.VirtualBuffer
	cursor  map[uint64]int
}

// NewDeviceBufferBackend constructs the DeviceBuffer singleton over
// registry.
func NewDeviceBufferBackend(registry *vbuf.Registry) Backend {
	return &DeviceBufferBackend{
		registry: registry,
		buffers:  make(map[uint64]*vbuf.VirtualBuffer),
		cursor:   make(map[uint64]int),
	}
}

func (b *DeviceBufferBackend) Name() string { return "DeviceBufferBackend" }

func (b *DeviceBufferBackend) Open(fdID uint64, options []uint64) (any, *kerr.Error) {
	if len(options) < 2 {
		return nil, kerr.New("handle.devicebuffer", kerr.KindInvalidInput, "need physBase and length options")
	}
	vb, err := b.registry.Get(options[0], options[1])
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.buffers[fdID] = vb
	b.cursor[fdID] = 0
	b.mu.Unlock()
	return vb, nil
}

func (b *DeviceBufferBackend) Read(fdID uint64, buf []byte, _ []uint64) (future.Future, *kerr.Error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vb, ok := b.buffers[fdID]
	if !ok {
		return nil, kerr.New("handle.devicebuffer", kerr.KindNotFound, "fd not open")
	}
	pos := b.cursor[fdID]
	remaining := int(vb.Length) - pos
	if remaining < 0 {
		remaining = 0
	}
	n := len(buf)
	if n > remaining {
		n = remaining
	}
	b.cursor[fdID] = pos + n
	return future.Done(n, nil), nil
}

func (b *DeviceBufferBackend) Write(fdID uint64, buf []byte, _ []uint64) (future.Future, *kerr.Error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vb, ok := b.buffers[fdID]
	if !ok {
		return nil, kerr.New("handle.devicebuffer", kerr.KindNotFound, "fd not open")
	}
	pos := b.cursor[fdID]
	remaining := int(vb.Length) - pos
	if remaining < 0 {
		remaining = 0
	}
	n := len(buf)
	if n > remaining {
		n = remaining
	}
	b.cursor[fdID] = pos + n
	return future.Done(n, nil), nil
}

func (b *DeviceBufferBackend) Close(fdID uint64, _ []uint64) *kerr.Error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if vb, ok := b.buffers[fdID]; ok {
		b.registry.Put(vb)
		delete(b.buffers, fdID)
		delete(b.cursor, fdID)
	}
	return nil
}

var _ Backend = (*DeviceBufferBackend)(nil)
