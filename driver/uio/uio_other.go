//go:build !linux

package uio

import (
	"context"
	"errors"

	"crashsdr.org/regs"
)

var errUnsupported = errors.New("uio: not supported on this platform")

type Device struct {
	Info Info
}

func Open(info Info) (*Device, error) {
	return nil, errUnsupported
}

func (d *Device) Regs() regs.Mem {
	return nil
}

func (d *Device) Serve(ctx context.Context, handler func()) error {
	return errUnsupported
}

func (d *Device) Close() error {
	return nil
}
