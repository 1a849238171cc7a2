package dma

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"crashsdr.org/regs"
)

// hw simulates the DMA engine behind the register space.
//
// A transfer starts when its enable bit rises. In polling mode the
// status FIFO turns non-empty after polls[dir] reads of the empty
// flags; a negative count never completes. In interrupt mode the
// FIFO turns non-empty after delay and an interrupt is raised on irqs,
// unless irqs is nil. Reading the status FIFO drains it.
type hw struct {
	mu    sync.Mutex
	mem   regs.Mem
	polls [2]int
	delay time.Duration
	irqs  chan struct{}

	started    [2]int
	drains     [2]int
	emptyLoads [2]int
	writes     []write
}

type write struct {
	bank int
	v    uint32
}

func newHW() *hw {
	h := &hw{mem: make(regs.Mem, regs.Words)}
	regs.Set(h.mem, regs.DMAMM2SStsFIFOEmpty)
	regs.Set(h.mem, regs.DMAS2MMStsFIFOEmpty)
	return h
}

func (h *hw) Load(i int) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	v := h.mem.Load(i)
	for dir, f := range layouts {
		switch i {
		case f.status.Bank:
			h.drains[dir]++
			regs.Set(h.mem, f.empty)
		case f.empty.Bank:
			polling := regs.Bit(h.mem, f.enable) && !regs.Bit(h.mem, f.irq)
			if !polling || !regs.Bit(h.mem, f.empty) || h.polls[dir] < 0 {
				continue
			}
			h.emptyLoads[dir]++
			if h.emptyLoads[dir] >= h.polls[dir] {
				regs.Clear(h.mem, f.empty)
			}
		}
	}
	return v
}

func (h *hw) Store(i int, v uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.mem.Load(i)
	h.mem.Store(i, v)
	h.writes = append(h.writes, write{i, v})
	for dir, f := range layouts {
		if i != f.enable.Bank {
			continue
		}
		was, now := old>>f.enable.Offset&0b1, v>>f.enable.Offset&0b1
		if was == 1 || now == 0 {
			continue
		}
		h.started[dir]++
		h.emptyLoads[dir] = 0
		if regs.Bit(h.mem, f.irq) && h.irqs != nil {
			go h.complete(Direction(dir))
		}
	}
}

func (h *hw) complete(dir Direction) {
	time.Sleep(h.delay)
	h.mu.Lock()
	regs.Clear(h.mem, layouts[dir].empty)
	h.mu.Unlock()
	select {
	case h.irqs <- struct{}{}:
	default:
	}
}

func (h *hw) bit(f regs.Field) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return regs.Bit(h.mem, f)
}

func (h *hw) read(f regs.Field) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return regs.Read(h.mem, f)
}

func (h *hw) log() []write {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]write(nil), h.writes...)
}

func newTestDevice(h *hw) *Device {
	d := New(h)
	d.Logger = log.New(io.Discard, "", 0)
	return d
}

// serve delivers simulated interrupts to d until the test ends.
func serve(t *testing.T, d *Device, irqs <-chan struct{}) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case <-irqs:
				d.Interrupt()
			case <-done:
				return
			}
		}
	}()
}

// waitState waits for dir to reach s. It is safe to call from
// goroutines other than the test's.
func waitState(t *testing.T, d *Device, dir Direction, s State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for d.State(dir) != s {
		if time.Now().After(deadline) {
			t.Errorf("%v: stuck in state %v, waiting for %v", dir, d.State(dir), s)
			return
		}
		time.Sleep(time.Millisecond)
	}
}
