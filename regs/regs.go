// package regs implements typed access to the bit-packed control and
// status registers of a CRASH FPGA design.
//
// The register space is a flat array of 32-bit words. Every named
// register is a Field: a bit range inside a single word. Accessors are
// not atomic across read-modify-write sequences; callers serialize
// access to shared words themselves.
package regs

import (
	"fmt"
	"sync/atomic"
)

// Field describes a bit range of the register space.
type Field struct {
	Name string
	// Bank is the absolute word index into the register space.
	Bank   int
	Offset uint
	Width  uint
}

// Bank is a register space.
type Bank interface {
	Load(i int) uint32
	Store(i int, v uint32)
}

// Modifier is implemented by banks that update a word atomically
// with respect to other Modify calls.
type Modifier interface {
	// Modify replaces the bits in mask with bits.
	Modify(i int, mask, bits uint32)
}

// Mem is a register space backed by memory, typically a mapping of
// device registers. Accesses are single 32-bit loads and stores.
type Mem []uint32

func (m Mem) Load(i int) uint32 {
	return atomic.LoadUint32(&m[i])
}

func (m Mem) Store(i int, v uint32) {
	atomic.StoreUint32(&m[i], v)
}

const wordBits = 32

func (f Field) full() bool {
	return f.Width == wordBits
}

func (f Field) mask() uint32 {
	return uint32(1)<<f.Width - 1
}

func (f Field) String() string {
	return fmt.Sprintf("%s[%d:%d+%d]", f.Name, f.Bank, f.Offset, f.Width)
}

// Read returns the value of f.
func Read(b Bank, f Field) uint32 {
	if debug {
		assertField(f)
	}
	if f.full() {
		return b.Load(f.Bank)
	}
	return b.Load(f.Bank) >> f.Offset & f.mask()
}

// Write stores v into f. Bits of v outside the field width are
// dropped and the other bits of the word are preserved.
func Write(b Bank, f Field, v uint32) {
	if debug {
		assertField(f)
	}
	if f.full() {
		b.Store(f.Bank, v)
		return
	}
	m := f.mask() << f.Offset
	modify(b, f.Bank, m, v<<f.Offset&m)
}

// Bit reports whether the lowest bit of f is set.
func Bit(b Bank, f Field) bool {
	return b.Load(f.Bank)>>f.Offset&0b1 == 0b1
}

func Set(b Bank, f Field) {
	modify(b, f.Bank, 0b1<<f.Offset, 0b1<<f.Offset)
}

func Clear(b Bank, f Field) {
	modify(b, f.Bank, 0b1<<f.Offset, 0)
}

func modify(b Bank, i int, mask, bits uint32) {
	if m, ok := b.(Modifier); ok {
		m.Modify(i, mask, bits)
		return
	}
	b.Store(i, b.Load(i)&^mask|bits)
}

// Validate checks that every field fits inside its word and the
// register space, and that no two partial fields of the same word
// share bits. Whole-word fields are views of their bank and may
// overlap anything.
func Validate(fields []Field) error {
	used := make(map[int]uint32)
	owner := make(map[int][wordBits]string)
	for _, f := range fields {
		if f.Width == 0 || f.Offset+f.Width > wordBits {
			return fmt.Errorf("regs: %v: does not fit in a word", f)
		}
		if f.Bank < 0 || f.Bank >= Words {
			return fmt.Errorf("regs: %v: outside register space", f)
		}
		if f.full() {
			continue
		}
		m := f.mask() << f.Offset
		if clash := used[f.Bank] & m; clash != 0 {
			names := owner[f.Bank]
			for i := range wordBits {
				if clash>>i&0b1 == 0b1 {
					return fmt.Errorf("regs: %v: overlaps %s", f, names[i])
				}
			}
		}
		used[f.Bank] |= m
		names := owner[f.Bank]
		for i := f.Offset; i < f.Offset+f.Width; i++ {
			names[i] = f.Name
		}
		owner[f.Bank] = names
	}
	return nil
}

func assertField(f Field) {
	if err := Validate([]Field{f}); err != nil {
		panic(err)
	}
}
