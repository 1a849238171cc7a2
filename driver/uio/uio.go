// package uio discovers CRASH devices exposed through the Linux
// userspace I/O framework.
//
// The FPGA register space is the first memory map of a UIO device whose
// name is "crash". Importing the package registers a periph driver that
// enumerates the devices during host.Init.
package uio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"periph.io/x/conn/v3/driver/driverreg"
)

// Name is the UIO device name of the CRASH FPGA.
const Name = "crash"

var (
	// SysfsRoot is the directory listing UIO devices.
	SysfsRoot = "/sys/class/uio"
	// DevRoot is the directory of the UIO device nodes.
	DevRoot = "/dev"
)

// Info describes a UIO device.
type Info struct {
	// Index is N in uioN.
	Index int
	Name  string
	// Addr and Size describe memory map 0.
	Addr uint64
	Size int
}

func (i Info) String() string {
	return fmt.Sprintf("uio%d(%s)@%#x", i.Index, i.Name, i.Addr)
}

// Path returns the device node of i.
func (i Info) Path() string {
	return filepath.Join(DevRoot, fmt.Sprintf("uio%d", i.Index))
}

// Scan lists the UIO devices below root named name, ordered by index.
// A missing root lists nothing.
func Scan(root, name string) ([]Info, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("uio: %w", err)
	}
	var infos []Info
	for _, e := range entries {
		idx, ok := strings.CutPrefix(e.Name(), "uio")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		dir := filepath.Join(root, e.Name())
		devName, err := readAttr(dir, "name")
		if err != nil {
			return nil, err
		}
		if devName != name {
			continue
		}
		info := Info{Index: n, Name: devName}
		if err := parseMap(&info, filepath.Join(dir, "maps", "map0")); err != nil {
			return nil, fmt.Errorf("uio: %s: %w", e.Name(), err)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Index < infos[j].Index
	})
	return infos, nil
}

func parseMap(info *Info, dir string) error {
	addr, err := readAttr(dir, "addr")
	if err != nil {
		return err
	}
	size, err := readAttr(dir, "size")
	if err != nil {
		return err
	}
	info.Addr, err = strconv.ParseUint(addr, 0, 64)
	if err != nil {
		return fmt.Errorf("map address: %w", err)
	}
	s, err := strconv.ParseUint(size, 0, 31)
	if err != nil {
		return fmt.Errorf("map size: %w", err)
	}
	if s == 0 {
		return errors.New("empty map")
	}
	info.Size = int(s)
	return nil
}

func readAttr(dir, attr string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return "", fmt.Errorf("uio: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// driver enumerates CRASH devices during host initialization.
type driver struct {
	mu      sync.Mutex
	devices []Info
}

func (d *driver) String() string {
	return "crash-uio"
}

func (d *driver) Prerequisites() []string {
	return nil
}

func (d *driver) After() []string {
	return nil
}

func (d *driver) Init() (bool, error) {
	infos, err := Scan(SysfsRoot, Name)
	if err != nil {
		return true, err
	}
	if len(infos) == 0 {
		return false, errors.New("no CRASH device found")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = infos
	return true, nil
}

var drv driver

func init() {
	driverreg.MustRegister(&drv)
}

// All returns the devices found by host initialization.
func All() []Info {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	return append([]Info(nil), drv.devices...)
}
