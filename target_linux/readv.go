//go:build linux

package target_linux

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"memtap/target"
)

// vmReadv copies len(buf) bytes from addr in the target into buf using the
// process_vm_readv syscall. The kernel performs the access on our behalf, so
// a stale address comes back as EFAULT instead of crashing anything.
func vmReadv(pid target.PID, buf []byte, addr uint64) error {
	localIov := unix.Iovec{
		Base: &buf[0],
		Len:  uint64(len(buf)),
	}
	remoteIov := unix.RemoteIovec{
		Base: uintptr(addr),
		Len:  len(buf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),
		uintptr(unsafe.Pointer(&localIov)),
		uintptr(1),
		uintptr(unsafe.Pointer(&remoteIov)),
		uintptr(1),
		uintptr(0),
	)

	switch errno {
	case 0:
	case unix.ESRCH:
		return fmt.Errorf("process_vm_readv pid %d: %w", pid, target.ErrUnknownProcess)
	case unix.EFAULT, unix.EIO:
		return fmt.Errorf("process_vm_readv pid %d at %#x: %w", pid, addr, target.ErrAddressNotMapped)
	default:
		return fmt.Errorf("process_vm_readv pid %d at %#x: %w", pid, addr, errno)
	}

	// A short read means the range ran into an unmapped page.
	if int(n) != len(buf) {
		return fmt.Errorf("process_vm_readv pid %d at %#x: partial read %d of %d bytes: %w",
			pid, addr, n, len(buf), target.ErrAddressNotMapped)
	}
	return nil
}
