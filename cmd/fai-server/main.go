// Command fai-server exposes the emulator over WebSocket: each connection
// boots its own machine from a fixed program image, mirrors monitor writes
// out as text frames, and feeds client bytes in as keyboard input.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/devyn/fai/internal/logging"
	"github.com/devyn/fai/internal/wsfrontend"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr        string
		binPath     string
		tickRate    int
		loadAddress uint32
		stackPtr    uint32
		ramSize     uint32
	)

	cmd := &cobra.Command{
		Use:   "fai-server",
		Short: "Serve machine sessions over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := wsfrontend.DefaultConfig()
			cfg.LoadAddress = loadAddress
			cfg.StackPointer = stackPtr
			cfg.RamSize = ramSize

			handler := &wsfrontend.Handler{
				BinPath:      binPath,
				TickInterval: time.Second / time.Duration(tickRate),
				Config:       cfg,
			}

			logging.Default.Infof("fai-server: listening on %s, sub-protocol %s", addr, wsfrontend.SubProtocol)
			return http.ListenAndServe(addr, handler)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "[::]:2391", "address to listen on")
	cmd.Flags().StringVar(&binPath, "program", "debug.bin", "bitcode image each session boots from")
	cmd.Flags().IntVar(&tickRate, "tick-rate", 10000, "CPU ticks per second")
	cmd.Flags().Uint32Var(&loadAddress, "load-address", 0x11000, "word address the program is loaded at")
	cmd.Flags().Uint32Var(&stackPtr, "stack-pointer", 0x10e00, "initial stack pointer")
	cmd.Flags().Uint32Var(&ramSize, "ram-size", 0x2000, "RAM device size in words")

	return cmd
}
