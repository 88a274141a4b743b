package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"agisostack/isobus-go/pkg/controlfunction"
	"agisostack/isobus-go/pkg/iop"
	"agisostack/isobus-go/pkg/isobus"
	"agisostack/isobus-go/pkg/message"
	"agisostack/isobus-go/pkg/transport"
)

var (
	sendFile     string
	sendPartner  int
	sendRetries  uint
	sendProgress bool
)

var sendCmd = &cobra.Command{
	Use:   "send <pgn> [hex payload]",
	Short: "Send a message to a partner or to global",
	Long: `Send claims an address, then sends one message with the given PGN. The
payload is hex ("01 02 0a" or "01020a") or the content of --file. Payloads
over 8 bytes go out as BAM, TP or ETP transfers, and a progress bar follows
them. --partner selects a partner of the config file by index; the default
sends to global.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pgn, err := parsePGN(args[0])
		if err != nil {
			return err
		}
		data, err := loadPayload(args[1:], sendFile)
		if err != nil {
			return err
		}

		ensureControlFunction(fileConfig)
		s, err := openStack(ctx)
		if err != nil {
			return err
		}
		r := start(ctx, s)
		err = send(ctx, s, pgn, data)
		if stopErr := r.stop(); err == nil {
			err = stopErr
		}
		return err
	},
}

func send(ctx context.Context, s *isobus.Stack, pgn uint32, data []byte) error {
	source := s.Internal[0]
	if err := waitClaimed(ctx, source); err != nil {
		return err
	}

	var destination *controlfunction.ControlFunction
	if sendPartner >= 0 {
		if sendPartner >= len(s.Partners) {
			return fmt.Errorf("partner %d not configured (%d partners)", sendPartner, len(s.Partners))
		}
		destination = s.Partners[sendPartner]
		err := waitFor(ctx, claimTimeout, func() (bool, error) { return destination.IsAddressValid(), nil })
		if err != nil {
			return fmt.Errorf("partner %d not found on the bus: %w", sendPartner, err)
		}
	}

	done := make(chan error, 1)
	opts := []isobus.SendOption{isobus.WithCompletion(func(_ transport.SessionInfo, err error) { done <- err })}
	err := retry.Do(
		func() error { return s.Manager.SendMessage(pgn, data, source, destination, opts...) },
		retry.Context(ctx),
		retry.Attempts(sendRetries+1),
		retry.Delay(100*time.Millisecond),
		retry.RetryIf(isobus.IsTemporary),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return err
	}

	result := "sent"
	if len(data) > message.DataLength {
		if err := follow(ctx, s.Manager, pgn, source.Address(), len(data), done); err != nil {
			var abort *transport.AbortError
			if !errors.As(err, &abort) {
				return err
			}
			result = "aborted: " + abort.Reason.String()
		}
	}

	dst := "global"
	if destination != nil {
		dst = fmt.Sprintf("0x%02X", destination.Address())
	}
	out.print(transferRecord{
		PGN:         fmt.Sprintf("0x%05X", pgn),
		Source:      fmt.Sprintf("0x%02X", source.Address()),
		Destination: dst,
		Length:      len(data),
		Result:      result,
	})
	if result != "sent" {
		return errors.New(result)
	}
	return nil
}

// follow waits for a transfer to complete, drawing its progress
func follow(ctx context.Context, m *isobus.Manager, pgn uint32, source uint8, length int, done <-chan error) error {
	var bar *progressbar.ProgressBar
	if sendProgress {
		bar = progressbar.NewOptions(length,
			progressbar.OptionSetWriter(errWriter()),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetDescription(fmt.Sprintf("PGN 0x%05X", pgn)),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			if bar != nil {
				if err == nil {
					bar.Finish()
				}
				fmt.Fprintln(errWriter())
			}
			return err
		case <-ticker.C:
			if bar == nil {
				continue
			}
			for _, info := range m.Sessions() {
				if info.Direction == transport.Transmit && info.PGN == pgn && info.Source == source {
					bar.Set(info.BytesTransferred)
				}
			}
		}
	}
}

// parsePGN accepts decimal, 0x hex or a bare hex string such as "EF00"
func parsePGN(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		v, err = strconv.ParseUint(s, 16, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid PGN %q", s)
	}
	if v > 0x3FFFF {
		return 0, fmt.Errorf("PGN 0x%X out of range", v)
	}
	return uint32(v), nil
}

// parseHex decodes bytes written with or without separators
func parseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", ",", "", "0x", "", "0X", "").Replace(s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return b, nil
}

func loadPayload(args []string, file string) ([]byte, error) {
	switch {
	case file != "" && len(args) > 0:
		return nil, errors.New("give either a hex payload or --file, not both")
	case file != "":
		data, err := iop.ReadFile(file)
		if err != nil {
			return nil, err
		}
		log.Info("payload %s: %d bytes, version %s", file, len(data), iop.HashToVersion(data))
		return data, nil
	case len(args) > 0:
		return parseHex(args[0])
	default:
		return nil, errors.New("no payload")
	}
}

func init() {
	addControlFunctionFlags(sendCmd)
	f := sendCmd.Flags()
	f.StringVar(&sendFile, "file", "", "read the payload from a file")
	f.IntVar(&sendPartner, "partner", -1, "index of the config partner to send to (-1 = global)")
	f.UintVar(&sendRetries, "retries", 10, "retries while a session or the hardware is busy")
	f.BoolVar(&sendProgress, "progress", true, "show a progress bar for multi-frame transfers")
	rootCmd.AddCommand(sendCmd)
}
