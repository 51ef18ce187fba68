package handle

import (
	"rvkernel/internal/future"
	"rvkernel/internal/kerr"
	"rvkernel/internal/klog"
)

// LogOutputBackend is write-only: it forwards bytes to the UART MMIO
// driver on real hardware (out of scope) and to the structured logger in
// sim mode (§4.8). Open and close are no-ops, matching original_source's
// LogOutputHandleBackend.
type LogOutputBackend struct {
	Unimplemented
	log *klog.Logger
}

// NewLogOutputBackend constructs the LogOutput singleton.
func NewLogOutputBackend() Backend {
	return &LogOutputBackend{log: klog.For("handle.log_output")}
}

func (b *LogOutputBackend) Name() string { return "LogOutputBackend" }

func (b *LogOutputBackend) Open(uint64, []uint64) (any, *kerr.Error) { return nil, nil }

func (b *LogOutputBackend) Write(fdID uint64, buf []byte, _ []uint64) (future.Future, *kerr.Error) {
	b.log.WithFd(fdID).Infof("%s", string(buf))
	return future.Done(len(buf), nil), nil
}

func (b *LogOutputBackend) Close(uint64, []uint64) *kerr.Error { return nil }

var _ Backend = (*LogOutputBackend)(nil)
