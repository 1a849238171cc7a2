// Command crashctl controls the DMA engine of a CRASH FPGA, either
// directly through its UIO device or remotely over a serial line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"crashsdr.org/config"
	"crashsdr.org/dma"
	"crashsdr.org/driver/dmabuf"
	"crashsdr.org/driver/sim"
	"crashsdr.org/driver/uio"
	"crashsdr.org/journal"
	"crashsdr.org/regs"
	"crashsdr.org/remote"
	"github.com/tebeka/atexit"
	"periph.io/x/host/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stdin, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "crashctl: %v\n", err)
		atexit.Exit(2)
	}
	atexit.Exit(0)
}

func run(ctx context.Context, stdout io.Writer, stdin io.Reader, args []string) error {
	a := &app{ctx: ctx, stdin: stdin}
	defer a.close()
	root := newRoot(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stdout)
	root.SetIn(stdin)
	return root.ExecuteContext(ctx)
}

// app is the state shared by the commands of one invocation.
type app struct {
	ctx   context.Context
	stdin io.Reader

	envFiles []string
	remote   string
	sim      bool

	cfg     config.Config
	doer    remote.Doer
	session *dma.Session
	simDev  *sim.Simulator
	uioDev  *uio.Device
	journal *journal.Journal
	closers []func() error
	once    sync.Once
}

// open connects to the device on first use.
func (a *app) open() error {
	if a.doer != nil {
		return nil
	}
	cfg, err := config.Load(a.envFiles...)
	if err != nil {
		return err
	}
	if a.sim {
		cfg.Sim = true
	}
	a.cfg = cfg
	atexit.Register(a.close)
	if a.remote != "" {
		port, err := remote.Open(a.remote, cfg.Baud)
		if err != nil {
			return err
		}
		c := remote.NewClient(port)
		a.closers = append(a.closers, port.Close, c.Close)
		a.doer = c
		return nil
	}
	bank, alloc, err := a.openLocal()
	if err != nil {
		return err
	}
	d := dma.New(bank)
	d.InterruptTimeout = cfg.InterruptTimeout
	d.PollLimit = cfg.PollLimit
	a.serveInterrupts(d)
	s, err := d.Open(alloc)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, s.Close)
	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, j.Close)
		s.Recorder = j
		a.journal = j
	}
	a.session = s
	a.doer = s
	return nil
}

func (a *app) openLocal() (regs.Bank, func() (dma.Buffer, error), error) {
	pages := a.cfg.BufferPages
	if a.cfg.Sim {
		s := sim.New()
		a.simDev = s
		a.closers = append(a.closers, s.Close)
		return s, func() (dma.Buffer, error) { return s.Alloc(pages) }, nil
	}
	uio.SysfsRoot = a.cfg.UIO
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	infos := uio.All()
	if a.cfg.Device != uio.Name {
		var err error
		infos, err = uio.Scan(a.cfg.UIO, a.cfg.Device)
		if err != nil {
			return nil, nil, err
		}
	}
	if len(infos) == 0 {
		return nil, nil, fmt.Errorf("no UIO device named %q", a.cfg.Device)
	}
	dev, err := uio.Open(infos[0])
	if err != nil {
		return nil, nil, err
	}
	a.uioDev = dev
	a.closers = append(a.closers, dev.Close)
	return dev.Regs(), dmabuf.Allocator(pages), nil
}

// serveInterrupts delivers device interrupts to d until the app
// closes.
func (a *app) serveInterrupts(d *dma.Device) {
	var serve func(context.Context, func()) error
	if a.simDev != nil {
		serve = a.simDev.Serve
	} else {
		serve = a.uioDev.Serve
	}
	ctx, cancel := context.WithCancel(a.ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := serve(ctx, d.Interrupt); err != nil && ctx.Err() == nil {
			log.Printf("crash: interrupt service stopped: %v", err)
		}
	}()
	a.closers = append(a.closers, func() error {
		cancel()
		<-done
		return nil
	})
}

// local returns the session of a locally attached device.
func (a *app) local() (*dma.Session, error) {
	if err := a.open(); err != nil {
		return nil, err
	}
	if a.session == nil {
		return nil, errors.New("command requires a local device")
	}
	return a.session, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	a.once.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				log.Printf("crash: %v", err)
			}
		}
		a.closers = nil
	})
}
