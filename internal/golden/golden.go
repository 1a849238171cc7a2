// Package golden compares test output against files checked into
// testdata directories.
package golden

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Compare reports whether got matches the contents of the file at
// path. If update is set, the file is replaced by got instead.
func Compare(path string, update bool, got []byte) error {
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, got, 0o644)
	}
	want, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: missing golden file (run with -update)", filepath.Base(path))
		}
		return err
	}
	if bytes.Equal(got, want) {
		return nil
	}
	return mismatch(filepath.Base(path), got, want)
}

func mismatch(name string, got, want []byte) error {
	gs := bufio.NewScanner(bytes.NewReader(got))
	ws := bufio.NewScanner(bytes.NewReader(want))
	for line := 1; ; line++ {
		g, w := gs.Scan(), ws.Scan()
		switch {
		case !g && !w:
			return fmt.Errorf("%s: output differs in line endings", name)
		case !g:
			return fmt.Errorf("%s:%d: missing line %q", name, line, ws.Text())
		case !w:
			return fmt.Errorf("%s:%d: extra line %q", name, line, gs.Text())
		case gs.Text() != ws.Text():
			return fmt.Errorf("%s:%d: got %q, want %q", name, line, gs.Text(), ws.Text())
		}
	}
}
