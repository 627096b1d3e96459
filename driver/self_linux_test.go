//go:build linux

package driver_test

import (
	"encoding/binary"
	"os"
	"runtime"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memtap/driver"
	"memtap/protocol"
	"memtap/target_linux"
)

// Walks a pointer chain planted in our own heap through the real Linux
// host, covering maps parsing, probing and process_vm_readv end to end.
func TestReadOwnMemoryChain(t *testing.T) {
	a := make([]byte, 8)
	b := make([]byte, 0x18)
	c := make([]byte, 0x24)

	// a -> [ +0x10 ]b -> [ +0x20 ]c, value at the end of the walk.
	binary.LittleEndian.PutUint64(a, uint64(uintptr(unsafe.Pointer(&b[0]))))
	binary.LittleEndian.PutUint64(b[0x10:], uint64(uintptr(unsafe.Pointer(&c[0]))))
	binary.LittleEndian.PutUint32(c[0x20:], 0xdeadbeef)

	svc := driver.NewService(target_linux.NewHost())
	base := int64(uintptr(unsafe.Pointer(&a[0])))

	req, err := protocol.NewReadRequest(uint32(os.Getpid()), 4, base, 0x10, 0x20)
	require.NoError(t, err)

	dst := make([]byte, 4)
	resp, err := svc.Read(req, dst)
	require.NoError(t, err)

	assert.Equal(t, protocol.ReadSuccess, resp.Status)
	assert.Equal(t, uint32(0xdeadbeef), binary.LittleEndian.Uint32(dst))
	assert.Equal(t, []uint64{
		uint64(uintptr(unsafe.Pointer(&b[0]))),
		uint64(uintptr(unsafe.Pointer(&c[0]))),
	}, resp.Trace())

	// Corrupt the first pointer: the bogus value lands in the trace, then
	// the next hop fails.
	binary.LittleEndian.PutUint64(a, 0x1f00)
	resp, err = svc.Read(req, dst)
	require.NoError(t, err)

	assert.Equal(t, protocol.ReadInvalidAddress, resp.Status)
	assert.Equal(t, uint32(1), resp.ResolvedCount)
	assert.Equal(t, []uint64{0x1f00}, resp.Trace())

	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
	runtime.KeepAlive(c)
}

func TestReadOwnMemoryUnknownPid(t *testing.T) {
	svc := driver.NewService(target_linux.NewHost())

	req, err := protocol.NewReadRequest(1<<23, 4, 0x400000)
	require.NoError(t, err)

	resp, err := svc.Read(req, make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, protocol.ReadUnknownProcess, resp.Status)
}
