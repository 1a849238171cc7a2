// Package dma drives the MM2S and S2MM channels of the CRASH DMA
// engine.
//
// A Device owns the register space and one lock and completion Signal
// per direction. Transfers on the same direction are serialized; the
// two directions run independently. Completion is detected from
// interrupts, delivered by calling Interrupt, or by polling the status
// FIFO when the direction's interrupt is disabled.
//
// Operations taking both locks always acquire MM2S before S2MM.
// Nothing may acquire them in the opposite order.
package dma

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"crashsdr.org/regs"
)

var (
	ErrTimeout     = errors.New("dma: timeout")
	ErrInterrupted = errors.New("dma: interrupted")
	ErrInvalid     = errors.New("dma: invalid request")
)

const (
	// DefaultInterruptTimeout bounds the wait for a completion
	// interrupt.
	DefaultInterruptTimeout = 1000 * time.Millisecond
	// DefaultPollLimit bounds the number of status reads while
	// polling for completion.
	DefaultPollLimit = 1000000
)

// Bus attributes for cache coherent transfers through the ACP port.
const (
	axiProt  = 0b000
	axiCache = 0b1111
	axiUser  = 0b11111
)

type Device struct {
	Logger           *log.Logger
	InterruptTimeout time.Duration
	PollLimit        int

	regs   regs.Bank
	chans  [2]channel
	errant atomic.Uint64
}

// New returns a Device controlling the registers in b. Completion
// counts start at zero.
func New(b regs.Bank) *Device {
	d := &Device{
		Logger:           log.Default(),
		InterruptTimeout: DefaultInterruptTimeout,
		PollLimit:        DefaultPollLimit,
		regs:             &sharedBank{Bank: b},
	}
	for _, dir := range []Direction{MM2S, S2MM} {
		c := &d.chans[dir]
		c.dir = dir
		c.lock = make(lock, 1)
		c.signal = NewSignal()
		c.f = layouts[dir]
	}
	return d
}

// sharedBank serializes read-modify-write cycles. The transfer enable
// bits of both directions live in the same word.
type sharedBank struct {
	regs.Bank
	mu sync.Mutex
}

func (s *sharedBank) Modify(i int, mask, bits uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Store(i, s.Load(i)&^mask|bits)
}

func (d *Device) String() string {
	return "crash-dma"
}

// Signal returns the completion signal of dir.
func (d *Device) Signal(dir Direction) *Signal {
	return d.chans[dir].signal
}

// Reset pulses the global reset and reprograms the AXI bus attributes.
func (d *Device) Reset(ctx context.Context) error {
	unlock, err := d.lockAll(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	regs.Set(d.regs, regs.GlobalReset)
	regs.Clear(d.regs, regs.GlobalReset)
	regs.Write(d.regs, regs.GlobalMAXIAWProt, axiProt)
	regs.Write(d.regs, regs.GlobalMAXIAWCache, axiCache)
	regs.Write(d.regs, regs.GlobalMAXIAWUser, axiUser)
	regs.Write(d.regs, regs.GlobalMAXIARProt, axiProt)
	regs.Write(d.regs, regs.GlobalMAXIARCache, axiCache)
	regs.Write(d.regs, regs.GlobalMAXIARUser, axiUser)
	return nil
}

// SetInterrupts writes the interrupt enable bank.
func (d *Device) SetInterrupts(ctx context.Context, mask uint32) error {
	unlock, err := d.lockAll(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	regs.Write(d.regs, regs.DMABank1, mask)
	return nil
}

// InterruptStatus returns the DMA control and status word.
func (d *Device) InterruptStatus() uint32 {
	return regs.Read(d.regs, regs.DMABank0)
}

// Halt stops both directions. It waits for in-flight transfers.
func (d *Device) Halt() error {
	unlock, err := d.lockAll(context.Background())
	if err != nil {
		return err
	}
	defer unlock()
	regs.Clear(d.regs, regs.DMAMM2SXferEn)
	regs.Clear(d.regs, regs.DMAS2MMXferEn)
	return nil
}

// ErrantInterrupts returns the number of interrupts that could not be
// attributed to a transfer.
func (d *Device) ErrantInterrupts() uint64 {
	return d.errant.Load()
}

func (d *Device) lockAll(ctx context.Context) (func(), error) {
	mm2s, s2mm := d.chans[MM2S].lock, d.chans[S2MM].lock
	if err := mm2s.acquire(ctx); err != nil {
		return nil, err
	}
	if err := s2mm.acquire(ctx); err != nil {
		mm2s.release()
		return nil, err
	}
	return func() {
		s2mm.release()
		mm2s.release()
	}, nil
}

func (d *Device) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}
