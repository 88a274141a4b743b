package cmd

import (
	"github.com/spf13/cobra"

	"agisostack/isobus-go/pkg/hardware"
	"agisostack/isobus-go/pkg/isobus"
	"agisostack/isobus-go/pkg/message"
)

var (
	monitorFrames bool
	monitorPGN    uint32
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print every frame and every reassembled message",
	Long: `Monitor listens on the configured channels and prints each complete message,
including transport protocol transfers once they are reassembled. With
--frames every raw frame is printed as well. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []isobus.Option
		if monitorFrames {
			opts = append(opts, isobus.WithFrameObserver(func(f hardware.Frame) { out.frame(f) }))
		}
		s, err := openStack(cmd.Context(), opts...)
		if err != nil {
			return err
		}

		s.Manager.AddAnyControlFunctionCallback(func(msg *message.CANMessage) {
			if monitorPGN != 0 && msg.PGN() != monitorPGN {
				return
			}
			out.print(newMessageRecord(msg))
		})

		r := start(cmd.Context(), s)
		<-cmd.Context().Done()
		err = r.stop()

		stats := s.Manager.Statistics().Snapshot()
		log.Info("monitor: %d frames, %d messages, %d malformed, %d unhandled",
			stats.FramesReceived, stats.MessagesDelivered, stats.DroppedMalformed, stats.DroppedUnhandled)
		return err
	},
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorFrames, "frames", false, "also print raw frames")
	monitorCmd.Flags().Uint32Var(&monitorPGN, "pgn", 0, "only print messages with this PGN")
	rootCmd.AddCommand(monitorCmd)
}
