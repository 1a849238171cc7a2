// package config loads the settings of the CRASH tools from .env files
// and CRASH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"crashsdr.org/dma"
	"crashsdr.org/driver/uio"
	"github.com/joho/godotenv"
)

type Config struct {
	// Device is the UIO name of the FPGA.
	Device string
	// UIO is the sysfs directory listing UIO devices.
	UIO              string
	BufferPages      int
	InterruptTimeout time.Duration
	PollLimit        int
	// Serial is the serial port of the remote protocol.
	Serial string
	Baud   int
	// Journal is the path of the operation journal. Empty disables it.
	Journal string
	// Sim replaces the FPGA with an emulated DMA engine.
	Sim bool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Device:           uio.Name,
		UIO:              uio.SysfsRoot,
		BufferPages:      dma.BufferPages,
		InterruptTimeout: dma.DefaultInterruptTimeout,
		PollLimit:        dma.DefaultPollLimit,
		Serial:           "/dev/ttyPS1",
		Baud:             115200,
	}
}

// Load returns the default configuration overridden by the variables
// of files, then by the environment. Missing files are skipped.
func Load(files ...string) (Config, error) {
	vars := make(map[string]string)
	for _, f := range files {
		m, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("config: %s: %w", f, err)
		}
		for k, v := range m {
			vars[k] = v
		}
	}
	return parse(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	})
}

func parse(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var err error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		n, perr := strconv.Atoi(v)
		if perr != nil || n <= 0 {
			err = fmt.Errorf("config: %s: invalid count %q", key, v)
			return
		}
		*dst = n
	}
	str("CRASH_DEVICE", &c.Device)
	str("CRASH_UIO_ROOT", &c.UIO)
	str("CRASH_SERIAL", &c.Serial)
	str("CRASH_JOURNAL", &c.Journal)
	num("CRASH_BUFFER_PAGES", &c.BufferPages)
	num("CRASH_POLL_LIMIT", &c.PollLimit)
	num("CRASH_BAUD", &c.Baud)
	if v, ok := lookup("CRASH_INTERRUPT_TIMEOUT"); ok && err == nil {
		d, perr := time.ParseDuration(v)
		if perr != nil || d <= 0 {
			err = fmt.Errorf("config: CRASH_INTERRUPT_TIMEOUT: invalid duration %q", v)
		}
		c.InterruptTimeout = d
	}
	if v, ok := lookup("CRASH_SIM"); ok && err == nil {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			err = fmt.Errorf("config: CRASH_SIM: invalid boolean %q", v)
		}
		c.Sim = b
	}
	if err != nil {
		return Config{}, err
	}
	return c, nil
}
