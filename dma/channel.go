package dma

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"crashsdr.org/regs"
)

type Direction int

const (
	// MM2S moves memory to the stream, that is host to device.
	MM2S Direction = iota
	// S2MM moves the stream to memory, that is device to host.
	S2MM

	noDirection Direction = -1
)

func (d Direction) String() string {
	switch d {
	case MM2S:
		return "mm2s"
	case S2MM:
		return "s2mm"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// State is the progress of a transfer on one direction.
type State int32

const (
	Idle State = iota
	Locked
	CommandIssued
	AwaitingCompletion
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Locked:
		return "locked"
	case CommandIssued:
		return "command-issued"
	case AwaitingCompletion:
		return "awaiting-completion"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// fields are the registers of one direction.
type fields struct {
	addr, data regs.Field
	enable     regs.Field
	irq        regs.Field
	status     regs.Field
	empty      regs.Field
}

var layouts = [...]fields{
	MM2S: {
		addr:   regs.DMAMM2SCmdAddr,
		data:   regs.DMAMM2SCmdData,
		enable: regs.DMAMM2SXferEn,
		irq:    regs.DMAMM2SInterrupt,
		status: regs.DMAMM2SStsFIFO,
		empty:  regs.DMAMM2SStsFIFOEmpty,
	},
	S2MM: {
		addr:   regs.DMAS2MMCmdAddr,
		data:   regs.DMAS2MMCmdData,
		enable: regs.DMAS2MMXferEn,
		irq:    regs.DMAS2MMInterrupt,
		status: regs.DMAS2MMStsFIFO,
		empty:  regs.DMAS2MMStsFIFOEmpty,
	},
}

// lock is a mutex whose acquisition can be abandoned.
type lock chan struct{}

func (l lock) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
}

func (l lock) release() {
	<-l
}

func (l lock) held() bool {
	return len(l) == cap(l)
}

type channel struct {
	dir    Direction
	lock   lock
	signal *Signal
	f      fields
	state  atomic.Int32
}

func (c *channel) statusEmpty(b regs.Bank) bool {
	return regs.Bit(b, c.f.empty)
}

func (c *channel) setState(s State) {
	c.state.Store(int32(s))
}

// cancelCheckInterval is the number of status polls between
// cancellation checks.
const cancelCheckInterval = 1024

// Transfer runs one transfer on dir between the device and the buffer
// at the physical address addr. cmd is the packed command word.
//
// On error the transfer enable bit is cleared and the direction is
// ready for another attempt. Errors match ErrTimeout or ErrInterrupted.
func (d *Device) Transfer(ctx context.Context, dir Direction, addr, cmd uint32) error {
	if dir != MM2S && dir != S2MM {
		return fmt.Errorf("%v: %w", dir, ErrInvalid)
	}
	c := &d.chans[dir]
	if err := c.lock.acquire(ctx); err != nil {
		return fmt.Errorf("%v: %w", dir, err)
	}
	defer func() {
		c.setState(Idle)
		c.lock.release()
	}()
	c.setState(Locked)
	regs.Write(d.regs, c.f.addr, addr)
	regs.Write(d.regs, c.f.data, cmd)
	c.setState(CommandIssued)
	regs.Set(d.regs, c.f.enable)
	c.setState(AwaitingCompletion)
	if err := d.await(ctx, c); err != nil {
		regs.Clear(d.regs, c.f.enable)
		return fmt.Errorf("%v: %w", dir, err)
	}
	c.setState(Draining)
	// Reading the status pops the FIFO. It must be empty again before
	// the next transfer, or its interrupt is misattributed.
	regs.Read(d.regs, c.f.status)
	regs.Clear(d.regs, c.f.enable)
	return nil
}

// Write transfers from the host buffer at addr to the device.
func (d *Device) Write(ctx context.Context, addr, cmd uint32) error {
	return d.Transfer(ctx, MM2S, addr, cmd)
}

// Read transfers from the device to the host buffer at addr.
func (d *Device) Read(ctx context.Context, addr, cmd uint32) error {
	return d.Transfer(ctx, S2MM, addr, cmd)
}

// State returns the progress of the transfer on dir.
func (d *Device) State(dir Direction) State {
	return State(d.chans[dir].state.Load())
}

func (d *Device) await(ctx context.Context, c *channel) error {
	if regs.Bit(d.regs, c.f.irq) {
		err := c.signal.Wait(ctx, d.InterruptTimeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				d.logf("crash: %v: DMA timeout (interrupt)", c.dir)
			}
			return err
		}
		c.signal.Consume()
		return nil
	}
	for i := 0; c.statusEmpty(d.regs); i++ {
		if i > d.PollLimit {
			d.logf("crash: %v: DMA timeout (polling)", c.dir)
			return ErrTimeout
		}
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", ErrInterrupted, err)
			}
		}
	}
	return nil
}

// Command is the unpacked form of a transfer command word.
type Command struct {
	// Size is the transfer length in bytes.
	Size uint32
	// TDest routes the stream to a processing block.
	TDest uint8
	// Enable is the command enable flag, distinct from the transfer
	// enable bit set by Transfer.
	Enable bool
}

// Word packs c into a command word.
func (c Command) Word() uint32 {
	en := uint32(0)
	if c.Enable {
		en = 1
	}
	return pack(regs.DMAMM2SCmdSize, c.Size) |
		pack(regs.DMAMM2SCmdTDest, uint32(c.TDest)) |
		pack(regs.DMAMM2SCmdEn, en)
}

// UnpackCommand is the inverse of Command.Word.
func UnpackCommand(w uint32) Command {
	return Command{
		Size:   unpack(regs.DMAMM2SCmdSize, w),
		TDest:  uint8(unpack(regs.DMAMM2SCmdTDest, w)),
		Enable: unpack(regs.DMAMM2SCmdEn, w) == 1,
	}
}

func pack(f regs.Field, v uint32) uint32 {
	return v & (1<<f.Width - 1) << f.Offset
}

func unpack(f regs.Field, w uint32) uint32 {
	return w >> f.Offset & (1<<f.Width - 1)
}
