package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"agisostack/isobus-go/pkg/hardware"
	"agisostack/isobus-go/pkg/isobus"
)

var (
	gatewayPeer   string
	gatewayListen bool
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Bridge the first channel to a remote peer over QUIC",
	Long: `Gateway forwards every frame of the first configured channel to a QUIC peer
and every frame from the peer back onto the channel. One side runs with
--listen, the other dials it with --peer host:port.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if gatewayPeer == "" {
			return errors.New("--peer is required")
		}
		if len(fileConfig.Channels) == 0 {
			return errors.New("no channel configured")
		}
		local, err := isobus.NewDriver(fileConfig.Channels[0])
		if err != nil {
			return err
		}
		peer, err := hardware.NewQUICDriver(hardware.QUICDriverConfig{
			Address:  gatewayPeer,
			IsServer: gatewayListen,
		})
		if err != nil {
			return err
		}
		if n, ok := local.(hardware.StateNotifier); ok {
			n.SetConnectionStateListener(stateLogger("local"))
		}
		peer.SetConnectionStateListener(stateLogger("peer"))

		ctx := cmd.Context()
		if err := openDriver(ctx, 0, local); err != nil {
			return err
		}
		defer local.Close()
		if err := openDriver(ctx, 0, peer); err != nil {
			return err
		}
		defer peer.Close()

		log.Info("gateway: bridging %s channel to %s", fileConfig.Channels[0].Driver, gatewayPeer)
		var toPeer, toBus atomic.Uint64
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return bridge(gctx, local, peer, &toPeer) })
		g.Go(func() error { return bridge(gctx, peer, local, &toBus) })
		err = g.Wait()

		out.print(gatewayRecord{
			Local:  fileConfig.Channels[0].Driver,
			Peer:   gatewayPeer,
			ToPeer: toPeer.Load(),
			ToBus:  toBus.Load(),
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// bridge copies frames from src to dst until ctx ends or src fails. Frames
// dst cannot take are dropped.
func bridge(ctx context.Context, src, dst hardware.Driver, count *atomic.Uint64) error {
	for {
		f, err := src.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, hardware.ErrNotConnected) {
				continue
			}
			return fmt.Errorf("read: %w", err)
		}
		f.Channel = 0
		if err := dst.WriteFrame(ctx, f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debug("gateway: dropped %s: %v", f, err)
			continue
		}
		count.Add(1)
	}
}

type stateLogger string

func (s stateLogger) OnConnectionEstablished() { log.Info("gateway: %s connected", string(s)) }
func (s stateLogger) OnConnectionLost()        { log.Warn("gateway: %s disconnected", string(s)) }

func init() {
	gatewayCmd.Flags().StringVar(&gatewayPeer, "peer", "", "QUIC peer address, or the listen address with --listen")
	gatewayCmd.Flags().BoolVar(&gatewayListen, "listen", false, "wait for the peer to connect")
	rootCmd.AddCommand(gatewayCmd)
}
