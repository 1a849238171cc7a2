package remote

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/sigurn/crc8"
)

// maxBody bounds the encoded size of a message.
const maxBody = 1024

var (
	ErrChecksum = errors.New("remote: checksum mismatch")
	ErrFrame    = errors.New("remote: invalid frame")
	// ErrDecode reports a well formed frame holding an unexpected
	// message.
	ErrDecode = errors.New("remote: undecodable message")
)

// CRC-8 with polynomial 0x07, as used by ATM header error control.
var frameCRC = crc8.MakeTable(crc8.Params{
	Poly:   0x07,
	Init:   0x00,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xF4,
	Name:   "CRC-8",
})

var encMode = func() cbor.EncMode {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return enc
}()

func checksum(body []byte) uint8 {
	c := crc8.Init(frameCRC)
	c = crc8.Update(c, body, frameCRC)
	return crc8.Complete(c, frameCRC)
}

// writeFrame encodes v and writes it as a single frame: the big endian
// body length, the CBOR body and the body checksum.
func writeFrame(w io.Writer, v any) error {
	body, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("remote: encode: %w", err)
	}
	if len(body) > maxBody {
		return fmt.Errorf("remote: %d byte message: %w", len(body), ErrFrame)
	}
	frame := make([]byte, 2, 2+len(body)+1)
	binary.BigEndian.PutUint16(frame, uint16(len(body)))
	frame = append(frame, body...)
	frame = append(frame, checksum(body))
	_, err = w.Write(frame)
	return err
}

// readFrame reads a frame and decodes its body into v. A checksum
// mismatch or a decoding failure consumes the frame and returns
// ErrChecksum or ErrDecode.
func readFrame(r io.Reader, v any) error {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := int(binary.BigEndian.Uint16(hdr[:]))
	if n == 0 || n > maxBody {
		return fmt.Errorf("remote: %d byte message: %w", n, ErrFrame)
	}
	buf := make([]byte, n+1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return unexpected(err)
	}
	body, sum := buf[:n], buf[n]
	if checksum(body) != sum {
		return ErrChecksum
	}
	if err := cbor.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
