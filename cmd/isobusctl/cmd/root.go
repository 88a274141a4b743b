// Package cmd implements the isobusctl commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"agisostack/isobus-go/pkg/isobus"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	logLevel     string
	frameDebug   bool
	noColor      bool

	// Channel 0 overrides
	driverName string
	ifaceName  string
	address    string
	remote     string
	server     bool

	// Shared state set during PersistentPreRunE
	fileConfig *isobus.FileConfig
	log        isobus.Logger
	out        *printer
)

var rootCmd = &cobra.Command{
	Use:   "isobusctl",
	Short: "Inspect and drive an ISO 11783 CAN network",
	Long: `isobusctl attaches to one or more CAN channels described by a YAML stack
file (or by flags) and monitors traffic, claims addresses, sends messages of
any length and bridges local buses to remote peers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		fc := isobus.DefaultFileConfig()
		if cfgFile != "" {
			var err error
			if fc, err = isobus.LoadConfig(cfgFile); err != nil {
				return err
			}
		}
		applyChannelFlags(cmd, fc)
		if logLevel != "" {
			fc.LogLevel = logLevel
		}
		if fc.LogLevel == "" {
			fc.LogLevel = "info"
		}
		if _, err := fc.ManagerConfig(); err != nil {
			return err
		}

		l, err := isobus.NewLogger(fc.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		isobus.EnableFrameDebug(frameDebug)
		if noColor {
			color.NoColor = true
		}

		p, err := newPrinter(cmd.OutOrStdout(), outputFormat)
		if err != nil {
			return err
		}

		fileConfig, log, out = fc, l, p
		return nil
	},
}

// applyChannelFlags overrides the first channel with any channel flag set
func applyChannelFlags(cmd *cobra.Command, fc *isobus.FileConfig) {
	flags := cmd.Flags()
	changed := false
	for _, f := range []string{"driver", "interface", "address", "remote", "server"} {
		changed = changed || flags.Changed(f)
	}
	if !changed {
		return
	}
	if len(fc.Channels) == 0 {
		fc.Channels = append(fc.Channels, isobus.ChannelConfig{})
	}
	ch := &fc.Channels[0]
	if flags.Changed("driver") {
		*ch = isobus.ChannelConfig{Driver: driverName}
	}
	if flags.Changed("interface") {
		ch.Interface = ifaceName
	}
	if flags.Changed("address") {
		ch.Address = address
	}
	if flags.Changed("remote") {
		ch.Remote = remote
	}
	if flags.Changed("server") {
		ch.Server = server
	}
}

// Execute runs the root command until ctx is cancelled
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// RootCmd returns the root command for tests
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "stack config file (default: socketcan on can0)")
	pf.StringVarP(&outputFormat, "output", "o", "text", "output format: text, yaml")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&frameDebug, "frame-debug", false, "trace every raw and transport data frame")
	pf.BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable coloured output")

	pf.StringVar(&driverName, "driver", "", "channel 0 driver: socketcan, cannelloni, tcp, quic")
	pf.StringVar(&ifaceName, "interface", "", "channel 0 socketcan interface")
	pf.StringVar(&address, "address", "", "channel 0 address (tcp, quic, cannelloni local)")
	pf.StringVar(&remote, "remote", "", "channel 0 cannelloni peer")
	pf.BoolVar(&server, "server", false, "channel 0 listens instead of dialling (tcp, quic)")
}
