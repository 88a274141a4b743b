package controlfunction

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"agisostack/isobus-go/pkg/identifier"
	"agisostack/isobus-go/pkg/name"
)

type sentFrame struct {
	channel uint8
	id      identifier.Identifier
	data    []byte
}

type recordingSender struct {
	frames []sentFrame
}

func (s *recordingSender) SendFrame(channel uint8, id identifier.Identifier, data []byte) error {
	s.frames = append(s.frames, sentFrame{channel, id, append([]byte(nil), data...)})
	return nil
}

func (s *recordingSender) claims() []sentFrame {
	var out []sentFrame
	for _, f := range s.frames {
		if f.id.PGN() == PGNAddressClaim {
			out = append(out, f)
		}
	}
	return out
}

func testName(identity uint32, arbitrary bool) name.NAME {
	var n name.NAME
	n.SetIdentityNumber(identity)
	n.SetManufacturerCode(64)
	n.SetIndustryGroup(2)
	n.SetArbitraryAddressCapable(arbitrary)
	return n
}

// settle runs Update past every claim deadline.
func settle(r *Registry, start time.Time) time.Time {
	r.Update(start)
	r.Update(start.Add(200 * time.Millisecond))
	end := start.Add(time.Second)
	r.Update(end)
	return end
}

func TestClaimPreferredAddress(t *testing.T) {
	sender := &recordingSender{}
	r := NewRegistry(DefaultConfig(), sender, nil)

	n := testName(2, true)
	cf, err := r.RegisterInternal(n, 0x1C, 0)
	if err != nil {
		t.Fatalf("RegisterInternal failed: %v", err)
	}
	if cf.IsAddressValid() {
		t.Error("address should not be valid before claiming")
	}

	settle(r, time.Unix(100, 0))

	if cf.Address() != 0x1C {
		t.Errorf("Address = 0x%02X, want 0x1C", cf.Address())
	}
	if cf.ClaimState() != ClaimStateClaimed {
		t.Errorf("ClaimState = %v, want %v", cf.ClaimState(), ClaimStateClaimed)
	}

	if len(sender.frames) != 2 {
		t.Fatalf("sent %d frames, want request + claim", len(sender.frames))
	}
	req := sender.frames[0]
	if req.id.PGN() != PGNRequest || req.id.SourceAddress() != identifier.NullAddress {
		t.Errorf("first frame = %v, want request from NULL", req.id)
	}
	if !bytes.Equal(req.data, []byte{0x00, 0xEE, 0x00}) {
		t.Errorf("request data = % X, want address claim PGN", req.data)
	}
	claim := sender.frames[1]
	if claim.id.SourceAddress() != 0x1C || claim.id.DestinationAddress() != identifier.GlobalAddress {
		t.Errorf("claim frame = %v, want 0x1C to global", claim.id)
	}
	got, _ := name.FromBytes(claim.data)
	if got != n {
		t.Errorf("claim NAME = %v, want %v", got, n)
	}
	if r.LookupByAddress(0, 0x1C) != cf {
		t.Error("LookupByAddress did not return the internal control function")
	}
	if r.LookupByName(n) != cf {
		t.Error("LookupByName did not return the internal control function")
	}
}

func TestClaimWaitsForDeadlines(t *testing.T) {
	sender := &recordingSender{}
	r := NewRegistry(DefaultConfig(), sender, nil)
	cf, _ := r.RegisterInternal(testName(2, true), 0x1C, 0)

	start := time.Unix(100, 0)
	r.Update(start)
	r.Update(start.Add(200 * time.Millisecond))
	r.Update(start.Add(300 * time.Millisecond))

	if cf.ClaimState() != ClaimStateWaitForContention {
		t.Errorf("ClaimState = %v, want %v", cf.ClaimState(), ClaimStateWaitForContention)
	}
	if len(sender.claims()) != 0 {
		t.Error("claim sent before the contention period elapsed")
	}
}

// The lower NAME keeps the address whichever control function starts
// claiming first.
func TestInternalContention(t *testing.T) {
	tests := []struct {
		name      string
		highFirst bool
		arbitrary bool
		wantHigh  uint8
		wantState ClaimState
	}{
		{"low first", false, true, ArbitraryAddressMin, ClaimStateClaimed},
		{"high first", true, true, ArbitraryAddressMin, ClaimStateClaimed},
		{"low first not arbitrary", false, false, identifier.NullAddress, ClaimStateUnableToClaim},
		{"high first not arbitrary", true, false, identifier.NullAddress, ClaimStateUnableToClaim},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			low := testName(1, tt.arbitrary)
			high := testName(2, tt.arbitrary)
			order := []name.NAME{low, high}
			if tt.highFirst {
				order = []name.NAME{high, low}
			}

			r := NewRegistry(DefaultConfig(), &recordingSender{}, nil)
			cfs := map[name.NAME]*ControlFunction{}
			for _, n := range order {
				cf, err := r.RegisterInternal(n, 0x1C, 0)
				if err != nil {
					t.Fatalf("RegisterInternal failed: %v", err)
				}
				cfs[n] = cf
			}

			settle(r, time.Unix(100, 0))

			if got := cfs[low].Address(); got != 0x1C {
				t.Errorf("low NAME address = 0x%02X, want 0x1C", got)
			}
			if got := cfs[high].Address(); got != tt.wantHigh {
				t.Errorf("high NAME address = 0x%02X, want 0x%02X", got, tt.wantHigh)
			}
			if got := cfs[high].ClaimState(); got != tt.wantState {
				t.Errorf("high NAME state = %v, want %v", got, tt.wantState)
			}
		})
	}
}

func TestExternalContention(t *testing.T) {
	t.Run("lower external NAME wins", func(t *testing.T) {
		sender := &recordingSender{}
		r := NewRegistry(DefaultConfig(), sender, nil)
		cf, _ := r.RegisterInternal(testName(10, true), 0x1C, 0)
		settle(r, time.Unix(100, 0))

		var changes []uint8
		r.OnAddressChanged(func(c *ControlFunction, old, address uint8) {
			if c == cf {
				changes = append(changes, address)
			}
		})

		winner := testName(1, false)
		r.ProcessAddressClaim(0, 0x1C, winner)

		if cf.Address() != ArbitraryAddressMin {
			t.Errorf("Address = 0x%02X, want 0x%02X", cf.Address(), ArbitraryAddressMin)
		}
		if len(changes) != 1 || changes[0] != ArbitraryAddressMin {
			t.Errorf("address changes = %v, want [0x80]", changes)
		}
		ext := r.LookupByAddress(0, 0x1C)
		if ext == nil || ext.Kind() != External || ext.NAME() != winner {
			t.Errorf("LookupByAddress(0x1C) = %v, want the external winner", ext)
		}
		last := sender.frames[len(sender.frames)-1]
		if last.id.SourceAddress() != ArbitraryAddressMin {
			t.Errorf("last claim source = 0x%02X, want 0x80", last.id.SourceAddress())
		}
	})

	t.Run("higher external NAME is defended against", func(t *testing.T) {
		sender := &recordingSender{}
		r := NewRegistry(DefaultConfig(), sender, nil)
		cf, _ := r.RegisterInternal(testName(1, true), 0x1C, 0)
		settle(r, time.Unix(100, 0))
		before := len(sender.claims())

		loser := testName(10, true)
		r.ProcessAddressClaim(0, 0x1C, loser)

		if cf.Address() != 0x1C {
			t.Errorf("Address = 0x%02X, want 0x1C", cf.Address())
		}
		if got := len(sender.claims()); got != before+1 {
			t.Errorf("claims sent = %d, want %d", got, before+1)
		}
		ext := r.LookupByName(loser)
		if ext == nil || ext.Address() != identifier.NullAddress {
			t.Errorf("loser = %v, want an external at NULL", ext)
		}
		if r.LookupByAddress(0, 0x1C) != cf {
			t.Error("address 0x1C should still resolve to the internal control function")
		}
	})
}

func TestExternalAddressTakeover(t *testing.T) {
	r := NewRegistry(DefaultConfig(), &recordingSender{}, nil)

	a := testName(20, true)
	b := testName(21, true)
	r.ProcessAddressClaim(0, 0x30, a)
	r.ProcessAddressClaim(0, 0x30, b)

	if got := r.LookupByName(a).Address(); got != identifier.NullAddress {
		t.Errorf("displaced external address = 0x%02X, want NULL", got)
	}
	if got := r.LookupByAddress(0, 0x30); got == nil || got.NAME() != b {
		t.Errorf("LookupByAddress(0x30) = %v, want NAME %v", got, b)
	}

	r.ProcessAddressClaim(0, 0x31, a)
	if got := r.LookupByName(a).Address(); got != 0x31 {
		t.Errorf("re-claimed address = 0x%02X, want 0x31", got)
	}
	if len(r.All(0)) != 2 {
		t.Errorf("All(0) has %d entries, want 2", len(r.All(0)))
	}
}

func TestPartnerBinding(t *testing.T) {
	var vt name.NAME
	vt.SetFunctionCode(uint8(name.FunctionVirtualTerminal))
	vt.SetManufacturerCode(99)
	filters := []name.Filter{name.NewFilter(name.FunctionCode, uint32(name.FunctionVirtualTerminal))}

	t.Run("claim after registration", func(t *testing.T) {
		r := NewRegistry(DefaultConfig(), &recordingSender{}, nil)
		p, err := r.RegisterPartner(filters, 0)
		if err != nil {
			t.Fatalf("RegisterPartner failed: %v", err)
		}
		if p.IsBound() {
			t.Fatal("partner bound before any claim")
		}

		r.ProcessAddressClaim(0, 0x26, testName(5, true))
		if p.IsBound() {
			t.Fatal("partner bound to a NAME that does not match")
		}

		r.ProcessAddressClaim(0, 0x26, vt)
		if !p.IsBound() || p.NAME() != vt || p.Address() != 0x26 {
			t.Errorf("partner = %v, want bound to VT at 0x26", p)
		}
		if r.LookupByAddress(0, 0x26) != p {
			t.Error("LookupByAddress(0x26) should return the partner")
		}
	})

	t.Run("claim before registration", func(t *testing.T) {
		r := NewRegistry(DefaultConfig(), &recordingSender{}, nil)
		r.ProcessAddressClaim(0, 0x26, vt)

		p, _ := r.RegisterPartner(filters, 0)
		if !p.IsBound() || p.Address() != 0x26 {
			t.Errorf("partner = %v, want bound to VT at 0x26", p)
		}
		if got := r.LookupByName(vt); got != p {
			t.Errorf("LookupByName = %v, want the partner", got)
		}
	})

	t.Run("other channel does not bind", func(t *testing.T) {
		r := NewRegistry(DefaultConfig(), &recordingSender{}, nil)
		p, _ := r.RegisterPartner(filters, 1)
		r.ProcessAddressClaim(0, 0x26, vt)
		if p.IsBound() {
			t.Error("partner on channel 1 bound to a claim on channel 0")
		}
	})

	t.Run("no filters", func(t *testing.T) {
		r := NewRegistry(DefaultConfig(), &recordingSender{}, nil)
		if _, err := r.RegisterPartner(nil, 0); !errors.Is(err, ErrNoFilters) {
			t.Errorf("RegisterPartner(nil) error = %v, want %v", err, ErrNoFilters)
		}
	})
}

func TestProcessRequest(t *testing.T) {
	sender := &recordingSender{}
	r := NewRegistry(DefaultConfig(), sender, nil)
	r.RegisterInternal(testName(2, true), 0x1C, 0)
	settle(r, time.Unix(100, 0))
	before := len(sender.claims())

	request := []byte{0x00, 0xEE, 0x00}

	if err := r.ProcessRequest(0, identifier.GlobalAddress, request); err != nil {
		t.Fatalf("ProcessRequest failed: %v", err)
	}
	if err := r.ProcessRequest(0, 0x1C, request); err != nil {
		t.Fatalf("ProcessRequest failed: %v", err)
	}
	if err := r.ProcessRequest(0, 0x55, request); err != nil {
		t.Fatalf("ProcessRequest failed: %v", err)
	}
	if err := r.ProcessRequest(0, identifier.GlobalAddress, []byte{0x00, 0xEF, 0x00}); err != nil {
		t.Fatalf("ProcessRequest failed: %v", err)
	}

	if got := len(sender.claims()) - before; got != 2 {
		t.Errorf("claims answered = %d, want 2", got)
	}
	if err := r.ProcessRequest(0, identifier.GlobalAddress, []byte{0x00}); !errors.Is(err, ErrRequestTooShort) {
		t.Errorf("short request error = %v, want %v", err, ErrRequestTooShort)
	}
}

func TestClaimAddress(t *testing.T) {
	r := NewRegistry(DefaultConfig(), &recordingSender{}, nil)
	cf, _ := r.RegisterInternal(testName(5, true), 0x1C, 0)

	if err := r.ClaimAddress(cf, 0x40); err != nil {
		t.Fatalf("ClaimAddress failed: %v", err)
	}
	if cf.Address() != 0x40 || cf.ClaimState() != ClaimStateClaimed {
		t.Errorf("cf = %v state %v, want 0x40 claimed", cf, cf.ClaimState())
	}

	r.ProcessAddressClaim(0, 0x41, testName(1, true))
	if err := r.ClaimAddress(cf, 0x41); !errors.Is(err, ErrAddressInUse) {
		t.Errorf("ClaimAddress(0x41) error = %v, want %v", err, ErrAddressInUse)
	}
	if err := r.ClaimAddress(cf, identifier.NullAddress); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("ClaimAddress(NULL) error = %v, want %v", err, ErrInvalidAddress)
	}
	if err := r.ClaimAddress(r.LookupByAddress(0, 0x41), 0x42); !errors.Is(err, ErrNotInternal) {
		t.Errorf("ClaimAddress(external) error = %v, want %v", err, ErrNotInternal)
	}
}

func TestRegisterAndDeregister(t *testing.T) {
	r := NewRegistry(DefaultConfig(), &recordingSender{}, nil)
	n := testName(3, true)

	cf, err := r.RegisterInternal(n, 0x1C, 0)
	if err != nil {
		t.Fatalf("RegisterInternal failed: %v", err)
	}
	if _, err := r.RegisterInternal(n, 0x1D, 0); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate error = %v, want %v", err, ErrDuplicateName)
	}
	if _, err := r.RegisterInternal(n, 0x1D, 1); err != nil {
		t.Errorf("same NAME on another channel failed: %v", err)
	}
	if _, err := r.RegisterInternal(testName(4, true), identifier.GlobalAddress, 0); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("global preferred address error = %v, want %v", err, ErrInvalidAddress)
	}

	if err := r.Deregister(cf); err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}
	if err := r.Deregister(cf); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("second Deregister error = %v, want %v", err, ErrNotRegistered)
	}
	if len(r.Internal(0)) != 0 {
		t.Errorf("Internal(0) has %d entries after Deregister", len(r.Internal(0)))
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Internal, "Internal"},
		{External, "External"},
		{Partnered, "Partnered"},
		{Kind(9), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
