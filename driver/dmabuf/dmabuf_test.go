package dmabuf

import "testing"

func TestAllocInvalid(t *testing.T) {
	for _, pages := range []int{0, -1} {
		if _, err := Alloc(pages); err == nil {
			t.Errorf("%d pages: no error", pages)
		}
	}
	if _, err := Allocator(0)(); err == nil {
		t.Error("allocator accepted zero pages")
	}
}
