package uio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"unsafe"

	"crashsdr.org/regs"
	"golang.org/x/sys/unix"
)

// servePollTimeout bounds the time between context checks while
// waiting for interrupts, in milliseconds.
const servePollTimeout = 100

// Device is an open UIO device with its register map.
type Device struct {
	Info Info

	dev  *os.File
	mmap []byte
	regs regs.Mem
}

// Open opens the device described by info and maps its registers.
func Open(info Info) (*Device, error) {
	f, err := os.OpenFile(info.Path(), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	d := &Device{Info: info, dev: f}
	mem, err := unix.Mmap(int(f.Fd()), 0, info.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("uio: mmap %v: %w", info, err)
	}
	d.mmap = mem
	d.regs = unsafe.Slice((*uint32)(unsafe.Pointer(&mem[0])), len(mem)/4)
	return d, nil
}

// Regs returns the mapped register space.
func (d *Device) Regs() regs.Mem {
	return d.regs
}

// Serve calls handler for every interrupt until ctx is done or reading
// the device fails. Interrupts are re-enabled after handler returns.
func (d *Device) Serve(ctx context.Context, handler func()) error {
	fd := int(d.dev.Fd())
	var buf [4]byte
	arm := func() error {
		binary.NativeEndian.PutUint32(buf[:], 1)
		if _, err := unix.Write(fd, buf[:]); err != nil {
			return fmt.Errorf("uio: enable interrupt: %w", err)
		}
		return nil
	}
	if err := arm(); err != nil {
		return err
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Poll(fds, servePollTimeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("uio: poll: %w", err)
		}
		if n == 0 {
			continue
		}
		if _, err := unix.Read(fd, buf[:]); err != nil {
			return fmt.Errorf("uio: read interrupt count: %w", err)
		}
		handler()
		if err := arm(); err != nil {
			return err
		}
	}
}

func (d *Device) Close() error {
	var err error
	if d.mmap != nil {
		err = unix.Munmap(d.mmap)
	}
	if d.dev != nil {
		if cerr := d.dev.Close(); err == nil {
			err = cerr
		}
	}
	*d = Device{Info: d.Info}
	return err
}
