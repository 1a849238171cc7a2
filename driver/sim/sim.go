// Package sim emulates the CRASH DMA engine for development without
// the FPGA.
//
// The emulated stream is a loopback: bytes sent by MM2S transfers are
// returned by later S2MM transfers, regardless of the stream
// destination.
package sim

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"crashsdr.org/regs"
)

// baseAddr is the physical address of the first buffer.
const baseAddr = 0x1A000000

const pageSize = 4096

type direction struct {
	addr, size regs.Field
	enable     regs.Field
	irq        regs.Field
	status     regs.Field
	empty      regs.Field
	count      regs.Field
}

var directions = [...]direction{
	{
		addr:   regs.DMAMM2SCmdAddr,
		size:   regs.DMAMM2SCmdSize,
		enable: regs.DMAMM2SXferEn,
		irq:    regs.DMAMM2SInterrupt,
		status: regs.DMAMM2SStsFIFO,
		empty:  regs.DMAMM2SStsFIFOEmpty,
		count:  regs.DMAMM2SXferCnt,
	},
	{
		addr:   regs.DMAS2MMCmdAddr,
		size:   regs.DMAS2MMCmdSize,
		enable: regs.DMAS2MMXferEn,
		irq:    regs.DMAS2MMInterrupt,
		status: regs.DMAS2MMStsFIFO,
		empty:  regs.DMAS2MMStsFIFOEmpty,
		count:  regs.DMAS2MMXferCnt,
	},
}

const mm2s = 0

// Status word flags.
const (
	statusOK     = 1 << 7
	statusSlvErr = 1 << 5
)

// Simulator is a register space backed by an emulated DMA engine.
type Simulator struct {
	// PollDelay is the number of status reads while polling before a
	// polled transfer completes. Reads by the interrupt handler do not
	// count.
	PollDelay int

	mu     sync.Mutex
	mem    regs.Mem
	bufs   map[uint64]*Buffer
	next   uint64
	stream []byte
	polls  [2]int
	status [2]uint32
	// queued lists the directions with an interrupt completion not yet
	// delivered, in completion order.
	queued []int
	// raised is the direction whose completion was delivered and is
	// not yet drained, or -1.
	raised int
	// dispatching is set while Serve runs the interrupt handler.
	dispatching bool
	wake        chan struct{}
	closed      chan struct{}
	closing     sync.Once
}

func New() *Simulator {
	s := &Simulator{
		mem:    make(regs.Mem, regs.Words),
		bufs:   make(map[uint64]*Buffer),
		next:   baseAddr,
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
		polls:  [2]int{-1, -1},
		raised: -1,
	}
	for _, d := range directions {
		regs.Set(s.mem, d.empty)
	}
	return s
}

func (s *Simulator) Load(i int) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.mem.Load(i)
	for dir, d := range directions {
		switch i {
		case d.status.Bank:
			regs.Set(s.mem, d.empty)
			s.mem.Store(d.status.Bank, 0)
			if s.raised == dir {
				s.lower()
			}
		case d.empty.Bank:
			if s.polls[dir] < 0 || s.dispatching || !s.polling(dir) {
				continue
			}
			if s.polls[dir] == 0 {
				s.polls[dir] = -1
				s.complete(dir)
				continue
			}
			s.polls[dir]--
		}
	}
	return v
}

func (s *Simulator) Store(i int, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.mem.Load(i)
	s.mem.Store(i, v)
	if i == regs.GlobalReset.Bank && regs.Bit(s.mem, regs.GlobalReset) {
		s.reset()
		return
	}
	for dir, d := range directions {
		if i != d.enable.Bank {
			continue
		}
		was, is := old>>d.enable.Offset&0b1 == 1, v>>d.enable.Offset&0b1 == 1
		switch {
		case !was && is:
			s.start(dir)
		case was && !is:
			s.abandon(dir)
		}
	}
}

// polling reports whether the transfer on dir waits for completion by
// reading the status.
func (s *Simulator) polling(dir int) bool {
	d := directions[dir]
	return regs.Bit(s.mem, d.enable) && !regs.Bit(s.mem, d.irq)
}

// abandon forgets the pending completion of dir once its transfer
// enable is cleared.
func (s *Simulator) abandon(dir int) {
	s.polls[dir] = -1
	s.queued = slices.DeleteFunc(s.queued, func(q int) bool { return q == dir })
	if s.raised == dir {
		s.lower()
	}
}

// lower ends the delivered interrupt and lets Serve raise the next.
func (s *Simulator) lower() {
	s.raised = -1
	s.notify()
}

func (s *Simulator) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Simulator) reset() {
	s.stream = nil
	s.polls = [2]int{-1, -1}
	s.queued = nil
	s.raised = -1
	for _, d := range directions {
		regs.Clear(s.mem, d.enable)
		regs.Set(s.mem, d.empty)
		regs.Write(s.mem, d.count, 0)
	}
}

// start moves the data of the transfer on dir. Completion is reported
// later, through the status FIFO. Interrupt completions are queued and
// raised one at a time by Serve, so the status FIFO of only one
// interrupting direction is ever full.
func (s *Simulator) start(dir int) {
	d := directions[dir]
	addr := uint64(regs.Read(s.mem, d.addr))
	size := int(regs.Read(s.mem, d.size))
	mem, err := s.slice(addr, size)
	switch {
	case err != nil:
		s.status[dir] = statusSlvErr
	case dir == mm2s:
		s.stream = append(s.stream, mem...)
		s.status[dir] = statusOK
	default:
		n := copy(mem, s.stream)
		s.stream = s.stream[n:]
		s.status[dir] = statusOK
	}
	if regs.Bit(s.mem, d.irq) {
		s.queued = append(s.queued, dir)
		s.notify()
		return
	}
	s.polls[dir] = s.PollDelay
}

func (s *Simulator) complete(dir int) {
	d := directions[dir]
	regs.Clear(s.mem, d.empty)
	s.mem.Store(d.status.Bank, s.status[dir])
	regs.Write(s.mem, d.count, regs.Read(s.mem, d.count)+1)
}

func (s *Simulator) slice(addr uint64, size int) ([]byte, error) {
	for base, b := range s.bufs {
		if addr >= base && addr+uint64(size) <= base+uint64(len(b.mem)) {
			off := addr - base
			return b.mem[off : off+uint64(size)], nil
		}
	}
	return nil, fmt.Errorf("sim: no buffer at %#x+%d", addr, size)
}

// Pending returns the number of looped back bytes not yet read.
func (s *Simulator) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stream)
}

// Serve calls handler once for every emulated interrupt until ctx is
// done or the simulator is closed. Serve must not run concurrently with
// itself.
func (s *Simulator) Serve(ctx context.Context, handler func()) error {
	for {
		select {
		case <-s.closed:
			return errors.New("sim: closed")
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if s.raise() {
			handler()
			s.mu.Lock()
			s.dispatching = false
			s.mu.Unlock()
			continue
		}
		select {
		case <-s.wake:
		case <-s.closed:
			return errors.New("sim: closed")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// raise completes the oldest queued interrupt transfer, unless an
// earlier completion is still undrained.
func (s *Simulator) raise() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raised >= 0 || len(s.queued) == 0 {
		return false
	}
	dir := s.queued[0]
	s.queued = s.queued[1:]
	s.complete(dir)
	s.raised = dir
	s.dispatching = true
	return true
}

func (s *Simulator) Close() error {
	s.closing.Do(func() { close(s.closed) })
	return nil
}

// Buffer is emulated physically contiguous memory.
type Buffer struct {
	sim  *Simulator
	addr uint64
	mem  []byte
}

// Alloc returns a buffer of pages reachable by emulated transfers.
func (s *Simulator) Alloc(pages int) (*Buffer, error) {
	if pages <= 0 {
		return nil, fmt.Errorf("sim: invalid page count %d", pages)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &Buffer{sim: s, addr: s.next, mem: make([]byte, pages*pageSize)}
	s.bufs[b.addr] = b
	s.next += uint64(len(b.mem))
	return b, nil
}

func (b *Buffer) PhysAddr() uint64 {
	return b.addr
}

func (b *Buffer) Bytes() []byte {
	return b.mem
}

func (b *Buffer) Close() error {
	s := b.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bufs[b.addr]; !ok {
		return errors.New("sim: buffer already freed")
	}
	delete(s.bufs, b.addr)
	return nil
}
