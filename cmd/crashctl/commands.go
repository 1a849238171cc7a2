package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"crashsdr.org/dma"
	"crashsdr.org/regs"
	"crashsdr.org/remote"
	"github.com/buildkite/shellwords"
	"github.com/spf13/cobra"
)

func newRoot(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "crashctl",
		Short:         "Control the DMA engine of a CRASH FPGA",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringSliceVar(&a.envFiles, "env", []string{".env"}, "configuration files")
	pf.StringVar(&a.remote, "remote", "", "serial port of a board running crashctl serve")
	pf.BoolVar(&a.sim, "sim", false, "use an emulated DMA engine")

	root.AddCommand(
		&cobra.Command{
			Use:   "reset",
			Short: "Reset the FPGA and program the AXI bus attributes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := a.do(cmd.Context(), dma.OpReset, 0)
				return err
			},
		},
		&cobra.Command{
			Use:   "irq-mask <mask>",
			Short: "Enable the DMA interrupts in mask",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				mask, err := parseWord(args[0])
				if err != nil {
					return err
				}
				_, err = a.do(cmd.Context(), dma.OpSetInterrupts, mask)
				return err
			},
		},
		valueCmd(a, "irq-status", "Print the DMA control and status word", dma.OpGetInterrupts),
		valueCmd(a, "phys-addr", "Print the physical address of the DMA buffer", dma.OpGetDMAPhysAddr),
		transferCmd(a, "write", "in", "Transfer the DMA buffer to the device", dma.OpDMAWrite),
		transferCmd(a, "read", "out", "Transfer from the device to the DMA buffer", dma.OpDMARead),
		regCmd(a),
		fieldsCmd(),
		serveCmd(a),
		shellCmd(a),
	)
	return root
}

func (a *app) do(ctx context.Context, op dma.Op, arg uint32) (uint32, error) {
	if err := a.open(); err != nil {
		return 0, err
	}
	return a.doer.Do(ctx, op, arg)
}

func parseWord(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid register value %q", s)
	}
	return uint32(v), nil
}

func valueCmd(a *app, use, short string, op dma.Op) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.do(cmd.Context(), op, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%#08x\n", v)
			return nil
		},
	}
}

// transferCmd runs op with a command word given as argument or built
// from flags. The file flag copies data between a file and the buffer
// of a local device.
func transferCmd(a *app, use, fileFlag, short string, op dma.Op) *cobra.Command {
	var (
		size  uint32
		tdest uint8
		file  string
	)
	cmd := &cobra.Command{
		Use:   use + " [command-word]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			c := dma.Command{Size: size, TDest: tdest, Enable: true}
			if len(args) == 1 {
				w, err := parseWord(args[0])
				if err != nil {
					return err
				}
				c = dma.UnpackCommand(w)
			}
			var s *dma.Session
			if file != "" {
				var err error
				if s, err = a.local(); err != nil {
					return err
				}
			}
			if file != "" && op == dma.OpDMAWrite {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				if len(data) > len(s.Buffer()) {
					return fmt.Errorf("%s: %d bytes exceed the %d byte DMA buffer", file, len(data), len(s.Buffer()))
				}
				copy(s.Buffer(), data)
				if c.Size == 0 {
					c.Size = uint32(len(data))
				}
			}
			if _, err := a.doer.Do(cmd.Context(), op, c.Word()); err != nil {
				return err
			}
			if file != "" && op == dma.OpDMARead {
				n := int(c.Size)
				if n > len(s.Buffer()) {
					n = len(s.Buffer())
				}
				return os.WriteFile(file, s.Buffer()[:n], 0o644)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.Uint32Var(&size, "size", 0, "transfer size in bytes")
	f.Uint8Var(&tdest, "tdest", 0, "stream destination")
	f.StringVar(&file, fileFlag, "", "file to transfer through the DMA buffer")
	return cmd
}

func regCmd(a *app) *cobra.Command {
	reg := &cobra.Command{
		Use:   "reg",
		Short: "Access FPGA registers by name",
	}
	bank := func() (regs.Bank, error) {
		s, err := a.local()
		if err != nil {
			return nil, err
		}
		r, err := s.Map(dma.MapRegs)
		if err != nil {
			return nil, err
		}
		return r.Regs, nil
	}
	lookup := func(name string) (regs.Field, error) {
		f, ok := regs.Lookup(strings.ToUpper(name))
		if !ok {
			return regs.Field{}, fmt.Errorf("unknown register %q", name)
		}
		return f, nil
	}
	reg.AddCommand(
		&cobra.Command{
			Use:   "get <field>",
			Short: "Print the value of a register field",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := lookup(args[0])
				if err != nil {
					return err
				}
				b, err := bank()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %#x\n", f.Name, regs.Read(b, f))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <field> <value>",
			Short: "Write a register field",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := lookup(args[0])
				if err != nil {
					return err
				}
				v, err := parseWord(args[1])
				if err != nil {
					return err
				}
				if f.Width < 32 && v>>f.Width != 0 {
					return fmt.Errorf("%#x does not fit in %d bit field %s", v, f.Width, f.Name)
				}
				b, err := bank()
				if err != nil {
					return err
				}
				regs.Write(b, f, v)
				return nil
			},
		},
	)
	return reg
}

func fieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "List the register fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, ' ', 0)
			fmt.Fprintln(w, "NAME\tWORD\tOFFSET\tWIDTH")
			for _, f := range regs.Fields {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", f.Name, f.Bank, f.Offset, f.Width)
			}
			return w.Flush()
		},
	}
}

func serveCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve control requests from a remote crashctl over a serial port",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.local()
			if err != nil {
				return err
			}
			if port == "" {
				port = a.cfg.Serial
			}
			p, err := remote.Open(port, a.cfg.Baud)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			// Unblock pending reads.
			go func() {
				<-ctx.Done()
				p.Close()
			}()
			log.Printf("crash: serving on %s", port)
			err = remote.Serve(ctx, p, s)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "serial port (default from configuration)")
	return cmd
}

func shellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands read from standard input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flags of nested commands must not change the device.
			if err := a.open(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			sc := bufio.NewScanner(a.stdin)
			for {
				fmt.Fprint(out, "crash> ")
				if !sc.Scan() {
					fmt.Fprintln(out)
					return sc.Err()
				}
				words, err := shellwords.Split(sc.Text())
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}
				if len(words) == 0 {
					continue
				}
				switch words[0] {
				case "exit", "quit":
					return nil
				case "shell":
					fmt.Fprintln(out, "error: already in a shell")
					continue
				}
				sub := newRoot(a)
				sub.SetArgs(words)
				sub.SetOut(out)
				sub.SetErr(out)
				if err := sub.ExecuteContext(cmd.Context()); err != nil {
					if errors.Is(err, context.Canceled) {
						return err
					}
					fmt.Fprintf(out, "error: %v\n", err)
				}
			}
		},
	}
}
