// package dmabuf allocates physically contiguous memory for DMA
// transfers.
package dmabuf

import (
	"fmt"

	"crashsdr.org/dma"
	"periph.io/x/host/v3/pmem"
)

const PageSize = 4096

// Alloc allocates pages of locked, physically contiguous memory. The
// memory is zeroed.
func Alloc(pages int) (*pmem.MemAlloc, error) {
	if pages <= 0 {
		return nil, fmt.Errorf("dmabuf: invalid page count %d", pages)
	}
	m, err := pmem.Alloc(pages * PageSize)
	if err != nil {
		return nil, fmt.Errorf("dmabuf: %d pages: %w", pages, err)
	}
	clear(m.Bytes())
	return m, nil
}

// Allocator returns a dma.Device.Open allocation function.
func Allocator(pages int) func() (dma.Buffer, error) {
	return func() (dma.Buffer, error) {
		m, err := Alloc(pages)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}
