package handle

import (
	"sync"

	"rvkernel/internal/future"
	"rvkernel/internal/kerr"
)

// FilesystemBackend resolves open(path) to an in-memory file and tracks
// a per-fd read cursor (§4.8); writes are accepted and discarded. On real hardware this advances an
// inode handle over the external ext2 interface (out of scope); ext2's
// on-disk layout is not modeled, only its narrow read/write contract, so
// sim mode backs it with a map[string][]byte.
type FilesystemBackend struct {
	Unimplemented

	mu     sync.Mutex
	files  map[string][]byte
	cursor map[uint64]*fileCursor
}

type fileCursor struct {
	name string
	pos  int
}

// NewFilesystemBackend constructs the Filesystem singleton over an
// initially empty in-memory filesystem.
func NewFilesystemBackend() Backend {
	return &FilesystemBackend{
		files:  make(map[string][]byte),
		cursor: make(map[uint64]*fileCursor),
	}
}

func (b *FilesystemBackend) Name() string { return "FilesystemBackend" }

// Put seeds a file in the backing store, for test harnesses and the sim
// boot sequence (there is no disk image to load from).
func (b *FilesystemBackend) Put(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[name] = data
}

// Open resolves options[0]/options[1] as a (pointer, length) pair over a
// path string, matching the register-transported filename convention
// used by the original backend's open(). There's no raw user address
// space to dereference in sim mode, so sim-mode callers should use
// OpenNamed directly; this path exists only to mirror the register ABI.
func (b *FilesystemBackend) Open(fdID uint64, options []uint64) (any, *kerr.Error) {
	return nil, kerr.New("handle.filesystem", kerr.KindUnimplemented, "register-ABI open unavailable in sim mode, use OpenNamed")
}

// OpenNamed opens name directly, for sim-mode callers holding a real Go
// string instead of an encoded register pair.
func (b *FilesystemBackend) OpenNamed(fdID uint64, name string) (any, *kerr.Error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.files[name]; !ok {
		return nil, kerr.New("handle.filesystem", kerr.KindNotFound, "file not found").WithData(0, 0)
	}
	b.cursor[fdID] = &fileCursor{name: name}
	return name, nil
}

func (b *FilesystemBackend) Read(fdID uint64, buf []byte, _ []uint64) (future.Future, *kerr.Error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.cursor[fdID]
	if !ok {
		return nil, kerr.New("handle.filesystem", kerr.KindNotFound, "fd not open")
	}
	data := b.files[c.name]
	n := copy(buf, data[c.pos:])
	c.pos += n
	return future.Done(n, nil), nil
}

// Write neither changes the file nor moves the fd's cursor; it always
// completes with 0 bytes written. Only Read advances the cursor.
func (b *FilesystemBackend) Write(fdID uint64, buf []byte, _ []uint64) (future.Future, *kerr.Error) {
	return future.Done(0, nil), nil
}

func (b *FilesystemBackend) Close(fdID uint64, _ []uint64) *kerr.Error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cursor, fdID)
	return nil
}

var _ Backend = (*FilesystemBackend)(nil)
