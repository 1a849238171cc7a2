// package remote carries CRASH control operations over a serial line,
// so that a host computer can drive the DMA engine of a board.
//
// Every message is a frame holding a CBOR encoded Request or Response.
// A client sends one request at a time and waits for the response with
// the same ID.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"sync"

	"crashsdr.org/dma"
	"github.com/rs/xid"
	"github.com/tarm/serial"
)

type Request struct {
	_   struct{} `cbor:",toarray"`
	ID  string
	Op  uint32
	Arg uint32
}

type Response struct {
	_     struct{} `cbor:",toarray"`
	ID    string
	Value uint32
	Kind  Kind
	Err   string
}

// Kind classifies the error of a response.
type Kind int

const (
	KindNone Kind = iota
	KindTimeout
	KindInterrupted
	KindInvalid
	KindOther
)

func kindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, dma.ErrTimeout):
		return KindTimeout
	case errors.Is(err, dma.ErrInterrupted):
		return KindInterrupted
	case errors.Is(err, dma.ErrInvalid):
		return KindInvalid
	default:
		return KindOther
	}
}

func (r Response) err() error {
	var base error
	switch r.Kind {
	case KindNone:
		return nil
	case KindTimeout:
		base = dma.ErrTimeout
	case KindInterrupted:
		base = dma.ErrInterrupted
	case KindInvalid:
		base = dma.ErrInvalid
	default:
		return fmt.Errorf("remote: %s", r.Err)
	}
	return fmt.Errorf("remote: %s: %w", r.Err, base)
}

// Doer performs control operations. Both *dma.Session and *Client
// implement it.
type Doer interface {
	Do(ctx context.Context, op dma.Op, arg uint32) (uint32, error)
}

var _ Doer = (*dma.Session)(nil)

// Serve answers requests read from rw with the results of d, until ctx
// is done or rw fails. Corrupt frames are logged and skipped. Serve
// returns nil at the end of the input.
func Serve(ctx context.Context, rw io.ReadWriter, d Doer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req Request
		if err := readFrame(rw, &req); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return nil
			case skippable(err):
				log.Printf("remote: dropped request: %v", err)
				continue
			}
			return err
		}
		v, err := d.Do(ctx, dma.Op(req.Op), req.Arg)
		resp := Response{ID: req.ID, Value: v, Kind: kindOf(err)}
		if err != nil {
			resp.Err = err.Error()
		}
		if err := writeFrame(rw, resp); err != nil {
			return err
		}
	}
}

// skippable reports whether err concerns a single frame, leaving the
// stream in sync.
func skippable(err error) bool {
	return errors.Is(err, ErrChecksum) || errors.Is(err, ErrDecode)
}

var errClosed = errors.New("remote: client closed")

// Client sends requests to a remote Serve.
type Client struct {
	mu    sync.Mutex
	rw    io.ReadWriter
	start sync.Once
	resps chan Response
	quit  chan struct{}
	stop  sync.Once
	// done is closed when the receiver exits, after err is set.
	done chan struct{}
	err  error
}

func NewClient(rw io.ReadWriter) *Client {
	return &Client{
		rw:    rw,
		resps: make(chan Response),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// receive reads responses until the stream fails or the client is
// closed.
func (c *Client) receive() {
	defer close(c.done)
	for {
		var resp Response
		if err := readFrame(c.rw, &resp); err != nil {
			if skippable(err) {
				log.Printf("remote: dropped response: %v", err)
				continue
			}
			c.err = fmt.Errorf("remote: %w", unexpected(err))
			return
		}
		select {
		case c.resps <- resp:
		case <-c.quit:
			c.err = errClosed
			return
		}
	}
}

// Do performs op on the remote device. The wait for the response ends
// when ctx is done; a late response is discarded by the next call.
func (c *Client) Do(ctx context.Context, op dma.Op, arg uint32) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", dma.ErrInterrupted, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.quit:
		return 0, errClosed
	default:
	}
	c.start.Do(func() { go c.receive() })
	id := xid.New().String()
	if err := writeFrame(c.rw, Request{ID: id, Op: uint32(op), Arg: arg}); err != nil {
		return 0, err
	}
	for {
		select {
		case resp := <-c.resps:
			if resp.ID != id {
				continue
			}
			return resp.Value, resp.err()
		case <-c.done:
			return 0, c.err
		case <-ctx.Done():
			return 0, fmt.Errorf("%v: %w: %w", op, dma.ErrInterrupted, ctx.Err())
		}
	}
}

// Close stops the delivery of responses. It does not close the
// underlying stream; closing the stream ends the pending read.
func (c *Client) Close() error {
	c.stop.Do(func() { close(c.quit) })
	return nil
}

// Open opens the serial port dev. An empty dev tries the usual ports of
// the platform.
func Open(dev string, baud int) (io.ReadWriteCloser, error) {
	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3")
		case "linux":
			devices = append(devices, "/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyPS1")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("remote: no serial device specified")
	}
	var firstErr error
	for _, dev := range devices {
		c := &serial.Config{Name: dev, Baud: baud}
		s, err := serial.OpenPort(c)
		if err == nil {
			return s, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("remote: %w", firstErr)
}
