package dma

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"crashsdr.org/regs"
)

// Op selects a control operation. The values are the Linux ioctl
// request numbers of the CRASH kernel driver, _IO('W', nr).
type Op uint32

const (
	OpReset          Op = 'W'<<8 | 0x40
	OpSetInterrupts  Op = 'W'<<8 | 0x41
	OpGetInterrupts  Op = 'W'<<8 | 0x42
	OpDMAWrite       Op = 'W'<<8 | 0x43
	OpDMARead        Op = 'W'<<8 | 0x44
	OpGetDMAPhysAddr Op = 'W'<<8 | 0x45
)

func (o Op) String() string {
	switch o {
	case OpReset:
		return "reset"
	case OpSetInterrupts:
		return "set-interrupts"
	case OpGetInterrupts:
		return "get-interrupts"
	case OpDMAWrite:
		return "dma-write"
	case OpDMARead:
		return "dma-read"
	case OpGetDMAPhysAddr:
		return "get-dma-phys-addr"
	default:
		return fmt.Sprintf("op(%#x)", uint32(o))
	}
}

// Map offsets selecting the region exposed by Session.Map.
const (
	MapRegs      = 0x1000
	MapDMABuffer = 0x2000
)

// BufferPages is the default number of pages of a session buffer.
const BufferPages = 1 << 8

// Buffer is physically contiguous memory reachable by the DMA engine.
type Buffer interface {
	PhysAddr() uint64
	Bytes() []byte
	Close() error
}

// Recorder receives every operation performed through a Session.
type Recorder interface {
	Record(e Entry)
}

type Entry struct {
	Op    Op
	Arg   uint32
	Value uint32
	Err   error
	Start time.Time
	End   time.Time
}

// Region is memory exposed to a session's user. Exactly one of Regs
// and Buf is set.
type Region struct {
	Regs regs.Bank
	Buf  []byte
}

// Session is a user of the device with its own DMA buffer. DMA writes
// read from the buffer and DMA reads fill it.
type Session struct {
	Recorder Recorder

	dev *Device
	buf Buffer
}

// Open allocates a session buffer and returns a new session. Errors
// from alloc are returned wrapped.
func (d *Device) Open(alloc func() (Buffer, error)) (*Session, error) {
	buf, err := alloc()
	if err != nil {
		return nil, fmt.Errorf("dma: buffer: %w", err)
	}
	if addr := buf.PhysAddr(); addr > math.MaxUint32 {
		err := fmt.Errorf("dma: buffer at %#x is not 32-bit addressable", addr)
		return nil, errors.Join(err, buf.Close())
	}
	d.logf("crash: allocated DMA buffer at %#x", buf.PhysAddr())
	return &Session{dev: d, buf: buf}, nil
}

// PhysAddr returns the device address of the session buffer.
func (s *Session) PhysAddr() uint32 {
	return uint32(s.buf.PhysAddr())
}

// Buffer returns the contents of the session buffer.
func (s *Session) Buffer() []byte {
	return s.buf.Bytes()
}

// Do performs op. arg is the interrupt mask for OpSetInterrupts and
// the command word for the DMA operations; the result is the value
// read by OpGetInterrupts and OpGetDMAPhysAddr.
func (s *Session) Do(ctx context.Context, op Op, arg uint32) (uint32, error) {
	start := time.Now()
	v, err := s.do(ctx, op, arg)
	if s.Recorder != nil {
		s.Recorder.Record(Entry{
			Op:    op,
			Arg:   arg,
			Value: v,
			Err:   err,
			Start: start,
			End:   time.Now(),
		})
	}
	return v, err
}

func (s *Session) do(ctx context.Context, op Op, arg uint32) (uint32, error) {
	d := s.dev
	switch op {
	case OpReset:
		return 0, d.Reset(ctx)
	case OpSetInterrupts:
		return 0, d.SetInterrupts(ctx, arg)
	case OpGetInterrupts:
		return d.InterruptStatus(), nil
	case OpGetDMAPhysAddr:
		return s.PhysAddr(), nil
	case OpDMAWrite:
		return 0, d.Write(ctx, s.PhysAddr(), arg)
	case OpDMARead:
		return 0, d.Read(ctx, s.PhysAddr(), arg)
	default:
		return 0, fmt.Errorf("%v: %w", op, ErrInvalid)
	}
}

// Map returns the region selected by the map offset.
func (s *Session) Map(offset uint64) (Region, error) {
	switch offset {
	case MapRegs:
		return Region{Regs: s.dev.regs}, nil
	case MapDMABuffer:
		return Region{Buf: s.buf.Bytes()}, nil
	default:
		return Region{}, fmt.Errorf("map offset %#x: %w", offset, ErrInvalid)
	}
}

// Close stops both directions and frees the session buffer.
func (s *Session) Close() error {
	herr := s.dev.Halt()
	err := s.buf.Close()
	if herr != nil {
		return herr
	}
	if err == nil {
		s.dev.logf("crash: freed DMA buffer")
	}
	return err
}
