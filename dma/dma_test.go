package dma

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"crashsdr.org/regs"
)

func TestEndToEnd(t *testing.T) {
	h := newHW()
	h.polls[MM2S] = 3
	d := newTestDevice(h)

	const (
		addr = 0x1A000000
		cmd  = 0x00800000
	)
	if err := d.Write(context.Background(), addr, cmd); err != nil {
		t.Fatal(err)
	}
	if got := h.read(regs.DMAMM2SCmdAddr); got != addr {
		t.Errorf("command address is %#x, want %#x", got, addr)
	}
	if got := h.read(regs.DMAMM2SCmdData); got != cmd {
		t.Errorf("command word is %#x, want %#x", got, cmd)
	}
	if h.bit(regs.DMAMM2SXferEn) {
		t.Error("transfer enable left set")
	}
	if h.started[MM2S] != 1 {
		t.Errorf("%d transfers started", h.started[MM2S])
	}
	if h.emptyLoads[MM2S] != 3 {
		t.Errorf("%d polls before completion, want 3", h.emptyLoads[MM2S])
	}
	if h.drains[MM2S] != 1 {
		t.Errorf("status FIFO drained %d times", h.drains[MM2S])
	}
	if !h.bit(regs.DMAMM2SStsFIFOEmpty) {
		t.Error("status FIFO not empty after transfer")
	}
	if h.drains[S2MM] != 0 || h.started[S2MM] != 0 {
		t.Error("S2MM touched by MM2S transfer")
	}
	if s := d.State(MM2S); s != Idle {
		t.Errorf("state %v after transfer", s)
	}
}

func TestInterruptTransfer(t *testing.T) {
	h := newHW()
	h.irqs = make(chan struct{}, 16)
	h.delay = 5 * time.Millisecond
	d := newTestDevice(h)
	serve(t, d, h.irqs)

	ctx := context.Background()
	mask := uint32(1)<<regs.DMAMM2SInterrupt.Offset | 1<<regs.DMAS2MMInterrupt.Offset
	if err := d.SetInterrupts(ctx, mask); err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if err := d.Write(ctx, 0x1000, uint32(i)); err != nil {
			t.Fatal(err)
		}
		if err := d.Read(ctx, 0x2000, uint32(i)); err != nil {
			t.Fatal(err)
		}
		// Drained before reuse.
		if !h.bit(regs.DMAMM2SStsFIFOEmpty) || !h.bit(regs.DMAS2MMStsFIFOEmpty) {
			t.Fatal("status FIFO not drained")
		}
	}
	for _, dir := range []Direction{MM2S, S2MM} {
		if n := d.Signal(dir).Pending(); n != 0 {
			t.Errorf("%v: %d completions left unconsumed", dir, n)
		}
		if h.drains[dir] != 3 {
			t.Errorf("%v: %d drains", dir, h.drains[dir])
		}
	}
	if h.bit(regs.DMAMM2SXferEn) || h.bit(regs.DMAS2MMXferEn) {
		t.Error("transfer enable left set")
	}
	if n := d.ErrantInterrupts(); n != 0 {
		t.Errorf("%d errant interrupts", n)
	}
}

func TestInterruptTimeout(t *testing.T) {
	h := newHW()
	d := newTestDevice(h)
	d.InterruptTimeout = 30 * time.Millisecond
	ctx := context.Background()
	if err := d.SetInterrupts(ctx, 1<<regs.DMAS2MMInterrupt.Offset); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		start := time.Now()
		err := d.Read(ctx, 0x1000, 0x10)
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("got %v, want timeout", err)
		}
		if el := time.Since(start); el < d.InterruptTimeout {
			t.Errorf("timed out after %v", el)
		}
		if h.bit(regs.DMAS2MMXferEn) {
			t.Fatal("transfer enable left set after timeout")
		}
		if d.chans[S2MM].lock.held() {
			t.Fatal("lock held after timeout")
		}
	}
	if h.drains[S2MM] != 0 {
		t.Error("status FIFO drained after timeout")
	}
}

func TestPollTimeout(t *testing.T) {
	h := newHW()
	h.polls[MM2S] = -1
	d := newTestDevice(h)
	d.PollLimit = 100
	err := d.Write(context.Background(), 0x1000, 0x10)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want timeout", err)
	}
	if h.bit(regs.DMAMM2SXferEn) {
		t.Error("transfer enable left set after timeout")
	}
	// Retrying succeeds once the hardware responds.
	h.mu.Lock()
	h.polls[MM2S] = 2
	h.mu.Unlock()
	if err := d.Write(context.Background(), 0x1000, 0x10); err != nil {
		t.Fatal(err)
	}
}

func TestInterrupted(t *testing.T) {
	h := newHW()
	d := newTestDevice(h)
	d.InterruptTimeout = time.Minute

	// Interrupted while waiting for the lock.
	d.chans[MM2S].lock <- struct{}{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	err := d.Write(ctx, 0x1000, 0x10)
	cancel()
	if !errors.Is(err, ErrInterrupted) || errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want interrupted", err)
	}
	if n := len(h.log()); n != 0 {
		t.Errorf("%d register writes by interrupted transfer", n)
	}
	if s := d.State(MM2S); s != Idle {
		t.Errorf("state %v", s)
	}
	d.chans[MM2S].lock.release()

	// Interrupted while waiting for completion.
	if err := d.SetInterrupts(context.Background(), 1<<regs.DMAMM2SInterrupt.Offset); err != nil {
		t.Fatal(err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	go func() {
		waitState(t, d, MM2S, AwaitingCompletion)
		cancel()
	}()
	err = d.Write(ctx, 0x1000, 0x10)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("got %v, want interrupted", err)
	}
	if h.bit(regs.DMAMM2SXferEn) {
		t.Error("transfer enable left set after interruption")
	}
	if d.chans[MM2S].lock.held() {
		t.Error("lock held after interruption")
	}
}

func TestPollInterrupted(t *testing.T) {
	h := newHW()
	h.polls[S2MM] = -1
	d := newTestDevice(h)
	d.PollLimit = 1 << 30
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		waitState(t, d, S2MM, AwaitingCompletion)
		cancel()
	}()
	if err := d.Read(ctx, 0x1000, 0x10); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("got %v, want interrupted", err)
	}
	if h.bit(regs.DMAS2MMXferEn) {
		t.Error("transfer enable left set after interruption")
	}
}

func TestMutualExclusion(t *testing.T) {
	h := newHW()
	h.polls = [2]int{4, 2}
	d := newTestDevice(h)

	const (
		workers   = 6
		transfers = 25
	)
	cmdFor := func(addr uint32) uint32 { return addr >> 4 }
	var wg sync.WaitGroup
	errs := make(chan error, 2*workers*transfers)
	for _, dir := range []Direction{MM2S, S2MM} {
		for w := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range transfers {
					addr := uint32(dir)<<28 | uint32(w)<<16 | uint32(i)<<4
					errs <- d.Transfer(context.Background(), dir, addr, cmdFor(addr))
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	// Replay the register writes. Each transfer must write its address,
	// its command, raise and drop its enable bit before any other
	// transfer of the same direction writes an address.
	var (
		busy  [2]bool
		owner [2]uint32
		bank0 uint32
	)
	for i, w := range h.log() {
		for dir, f := range layouts {
			switch w.bank {
			case f.addr.Bank:
				if busy[dir] {
					t.Fatalf("write %d: %v transfer %#x interleaved with %#x", i, Direction(dir), w.v, owner[dir])
				}
				busy[dir], owner[dir] = true, w.v
			case f.data.Bank:
				if !busy[dir] || w.v != cmdFor(owner[dir]) {
					t.Fatalf("write %d: %v command %#x outside its transfer", i, Direction(dir), w.v)
				}
			}
		}
		if w.bank == regs.DMABank0.Bank {
			for dir, f := range layouts {
				if bank0>>f.enable.Offset&1 == 1 && w.v>>f.enable.Offset&1 == 0 {
					busy[dir] = false
				}
			}
			bank0 = w.v
		}
	}
	for dir := range layouts {
		if h.started[dir] != workers*transfers || h.drains[dir] != workers*transfers {
			t.Errorf("%v: %d started, %d drained", Direction(dir), h.started[dir], h.drains[dir])
		}
	}
}

func TestCrossDirection(t *testing.T) {
	h := newHW()
	h.polls[S2MM] = 3
	d := newTestDevice(h)
	d.InterruptTimeout = time.Minute
	if err := d.SetInterrupts(context.Background(), 1<<regs.DMAMM2SInterrupt.Offset); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mm2s := make(chan error, 1)
	go func() { mm2s <- d.Write(ctx, 0x1A000000, 0x111) }()
	waitState(t, d, MM2S, AwaitingCompletion)

	if err := d.Read(context.Background(), 0x1B000000, 0x222); err != nil {
		t.Fatal(err)
	}
	if !h.bit(regs.DMAMM2SXferEn) {
		t.Error("S2MM transfer cleared the MM2S enable bit")
	}
	if got := h.read(regs.DMAMM2SCmdAddr); got != 0x1A000000 {
		t.Errorf("MM2S address changed to %#x", got)
	}
	if got := h.read(regs.DMAMM2SCmdData); got != 0x111 {
		t.Errorf("MM2S command changed to %#x", got)
	}
	if h.drains[MM2S] != 0 {
		t.Error("S2MM transfer drained the MM2S status FIFO")
	}
	cancel()
	if err := <-mm2s; !errors.Is(err, ErrInterrupted) {
		t.Errorf("got %v, want interrupted", err)
	}
}

func TestAttribute(t *testing.T) {
	tests := []struct {
		name         string
		active, full [2]bool
		want         Direction
	}{
		{"mm2s", [2]bool{true, false}, [2]bool{true, false}, MM2S},
		{"s2mm", [2]bool{false, true}, [2]bool{false, true}, S2MM},
		{"idle", [2]bool{false, false}, [2]bool{true, true}, noDirection},
		{"mm2s empty", [2]bool{true, false}, [2]bool{false, false}, noDirection},
		{"mm2s full but idle", [2]bool{false, true}, [2]bool{true, false}, noDirection},
		{"both", [2]bool{true, true}, [2]bool{true, true}, S2MM},
		{"both, mm2s done", [2]bool{true, true}, [2]bool{true, false}, MM2S},
	}
	for _, test := range tests {
		got := attribute(
			func(d Direction) bool { return test.active[d] },
			func(d Direction) bool { return !test.full[d] },
		)
		if got != test.want {
			t.Errorf("%s: attributed to %v, want %v", test.name, got, test.want)
		}
	}
}

func TestInterruptDispatch(t *testing.T) {
	h := newHW()
	d := newTestDevice(h)
	logs := new(bytes.Buffer)
	d.Logger = log.New(logs, "", 0)

	// MM2S in flight with a completed transfer.
	d.chans[MM2S].lock <- struct{}{}
	regs.Clear(h.mem, regs.DMAMM2SStsFIFOEmpty)
	d.Interrupt()
	if d.Signal(MM2S).Pending() != 1 || d.Signal(S2MM).Pending() != 0 {
		t.Errorf("pending %d/%d, want 1/0", d.Signal(MM2S).Pending(), d.Signal(S2MM).Pending())
	}
	d.chans[MM2S].lock.release()

	// Nothing in flight.
	d.Interrupt()
	if d.Signal(MM2S).Pending() != 1 || d.Signal(S2MM).Pending() != 0 {
		t.Error("errant interrupt notified a direction")
	}
	if d.ErrantInterrupts() != 1 {
		t.Errorf("%d errant interrupts", d.ErrantInterrupts())
	}
	if !strings.Contains(logs.String(), "errant interrupt") {
		t.Errorf("errant interrupt not logged: %q", logs.String())
	}
}

func TestResetWaitsForTransfer(t *testing.T) {
	h := newHW()
	h.irqs = make(chan struct{}, 1)
	h.delay = 50 * time.Millisecond
	d := newTestDevice(h)
	serve(t, d, h.irqs)
	ctx := context.Background()
	if err := d.SetInterrupts(ctx, 1<<regs.DMAMM2SInterrupt.Offset); err != nil {
		t.Fatal(err)
	}

	xfer := make(chan error, 1)
	go func() { xfer <- d.Write(ctx, 0x1000, 0x10) }()
	waitState(t, d, MM2S, AwaitingCompletion)
	if err := d.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if err := <-xfer; err != nil {
		t.Fatal(err)
	}

	done, reset := -1, -1
	var bank0 uint32
	for i, w := range h.log() {
		switch w.bank {
		case regs.DMABank0.Bank:
			if bank0&0b1 == 1 && w.v&0b1 == 0 && done == -1 {
				done = i
			}
			bank0 = w.v
		case regs.GlobalReset.Bank:
			if reset == -1 {
				reset = i
			}
		}
	}
	if done == -1 || reset == -1 || reset < done {
		t.Errorf("reset write %d before transfer end %d", reset, done)
	}
	if h.bit(regs.GlobalReset) {
		t.Error("reset bit left set")
	}
	want := uint32(0xf<<3 | 0x1f<<7 | 0xf<<15 | 0x1f<<19)
	if got := h.read(regs.GlobalBank1); got != want {
		t.Errorf("bus attributes %#x, want %#x", got, want)
	}
}

func TestGlobalInterrupted(t *testing.T) {
	h := newHW()
	d := newTestDevice(h)
	d.chans[S2MM].lock <- struct{}{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Reset(ctx); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("reset: got %v, want interrupted", err)
	}
	if err := d.SetInterrupts(ctx, 0x3); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("set interrupts: got %v, want interrupted", err)
	}
	if d.chans[MM2S].lock.held() {
		t.Error("MM2S lock kept after interrupted acquisition")
	}
	if n := len(h.log()); n != 0 {
		t.Errorf("%d register writes", n)
	}
}

func TestSignal(t *testing.T) {
	s := NewSignal()
	ctx := context.Background()
	s.Notify()
	s.Notify()
	for range 2 {
		if err := s.Wait(ctx, time.Second); err != nil {
			t.Fatal(err)
		}
		s.Consume()
	}
	if err := s.Wait(ctx, 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want timeout", err)
	}
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err := s.Wait(cctx, time.Second)
	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want interrupted", err)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Notify()
	}()
	if err := s.Wait(ctx, time.Second); err != nil {
		t.Fatal(err)
	}
	s.Consume()
	if s.Pending() != 0 {
		t.Errorf("%d pending", s.Pending())
	}
}

func TestCommand(t *testing.T) {
	c := Command{Size: 4096, TDest: 3, Enable: true}
	w := c.Word()
	if w != 0x80000000|3<<23|4096 {
		t.Errorf("packed %#x", w)
	}
	if got := UnpackCommand(w); got != c {
		t.Errorf("unpacked %+v, want %+v", got, c)
	}
	if got := UnpackCommand(0x00800000); got != (Command{TDest: 1}) {
		t.Errorf("unpacked %+v", got)
	}
	if got := (Command{Size: 1 << 23}).Word(); got != 0 {
		t.Errorf("oversized size packed to %#x", got)
	}
}
