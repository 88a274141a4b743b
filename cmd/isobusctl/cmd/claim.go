package cmd

import (
	"github.com/spf13/cobra"
)

var claimHold bool

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim addresses for the configured control functions",
	Long: `Claim runs address claiming for every internal control function of the
config file, or for one described by the NAME flags, and reports the
addresses won. With --hold the claims are defended until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ensureControlFunction(fileConfig)
		s, err := openStack(ctx)
		if err != nil {
			return err
		}
		r := start(ctx, s)

		for _, cf := range s.Internal {
			if err := waitClaimed(ctx, cf); err != nil {
				out.print(newControlFunctionRecord(cf))
				r.stop()
				return err
			}
			out.print(newControlFunctionRecord(cf))
		}

		if claimHold {
			<-ctx.Done()
		}
		return r.stop()
	},
}

func init() {
	addControlFunctionFlags(claimCmd)
	claimCmd.Flags().BoolVar(&claimHold, "hold", false, "keep defending the claimed addresses until interrupted")
	rootCmd.AddCommand(claimCmd)
}
