package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"agisostack/isobus-go/pkg/controlfunction"
	"agisostack/isobus-go/pkg/hardware"
	"agisostack/isobus-go/pkg/message"
)

// printer writes records as text lines or as a stream of YAML documents
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	yaml bool
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &printer{w: w}, nil
	case "yaml":
		return &printer{w: w, yaml: true}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

func (p *printer) print(v fmt.Stringer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.yaml {
		_, err := fmt.Fprintln(p.w, v.String())
		return err
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(p.w, "---\n%s", b)
	return err
}

// frameLine prints a raw frame; it is never written as YAML
type frameLine hardware.Frame

func (f frameLine) String() string {
	return hardware.Frame(f).ColorString()
}

func (p *printer) frame(f hardware.Frame) {
	if p.yaml {
		return
	}
	p.print(frameLine(f))
}

type messageRecord struct {
	Channel     uint8  `yaml:"channel"`
	PGN         string `yaml:"pgn"`
	Priority    uint8  `yaml:"priority"`
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	Length      int    `yaml:"length"`
	Data        string `yaml:"data"`
}

func newMessageRecord(msg *message.CANMessage) messageRecord {
	return messageRecord{
		Channel:     msg.ChannelIndex,
		PGN:         fmt.Sprintf("0x%05X", msg.PGN()),
		Priority:    uint8(msg.Identifier.Priority()),
		Source:      fmt.Sprintf("0x%02X", msg.Identifier.SourceAddress()),
		Destination: fmt.Sprintf("0x%02X", msg.Identifier.DestinationAddress()),
		Length:      msg.Len(),
		Data:        hexString(msg.Data, 64),
	}
}

func (r messageRecord) String() string {
	return fmt.Sprintf("ch%d PGN %s P%d %s -> %s [%d] %s",
		r.Channel, r.PGN, r.Priority, r.Source, r.Destination, r.Length, r.Data)
}

type controlFunctionRecord struct {
	Kind    string `yaml:"kind"`
	Channel uint8  `yaml:"channel"`
	Address string `yaml:"address"`
	NAME    string `yaml:"name"`
	State   string `yaml:"state,omitempty"`
}

func newControlFunctionRecord(cf *controlfunction.ControlFunction) controlFunctionRecord {
	r := controlFunctionRecord{
		Kind:    cf.Kind().String(),
		Channel: cf.Channel(),
		Address: fmt.Sprintf("0x%02X", cf.Address()),
		NAME:    fmt.Sprintf("0x%016X", cf.NAME().Raw()),
	}
	if cf.Kind() == controlfunction.Internal {
		r.State = string(cf.ClaimState())
	}
	return r
}

func (r controlFunctionRecord) String() string {
	s := fmt.Sprintf("%s ch%d %s NAME=%s", r.Kind, r.Channel, r.Address, r.NAME)
	if r.State != "" {
		s += " " + r.State
	}
	return s
}

type transferRecord struct {
	PGN         string `yaml:"pgn"`
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	Length      int    `yaml:"length"`
	Result      string `yaml:"result"`
}

func (r transferRecord) String() string {
	return fmt.Sprintf("PGN %s %s -> %s [%d] %s", r.PGN, r.Source, r.Destination, r.Length, r.Result)
}

type gatewayRecord struct {
	Local  string `yaml:"local"`
	Peer   string `yaml:"peer"`
	ToPeer uint64 `yaml:"to_peer"`
	ToBus  uint64 `yaml:"to_bus"`
}

func (r gatewayRecord) String() string {
	return fmt.Sprintf("%s <-> %s: %d frames to peer, %d frames to bus", r.Local, r.Peer, r.ToPeer, r.ToBus)
}

// hexString renders at most limit bytes of b, marking a cut with "..."
func hexString(b []byte, limit int) string {
	cut := len(b) > limit
	if cut {
		b = b[:limit]
	}
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	if cut {
		sb.WriteString(" ...")
	}
	return sb.String()
}

func errWriter() io.Writer {
	return rootCmd.ErrOrStderr()
}
