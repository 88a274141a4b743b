package controlfunction

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/looplab/fsm"

	"agisostack/isobus-go/pkg/internal/logger"
	"agisostack/isobus-go/pkg/name"
)

// ClaimState is the address claim progress of an internal control function
type ClaimState string

const (
	ClaimStateNone              ClaimState = "none"
	ClaimStateWaitForClaim      ClaimState = "wait_for_claim"
	ClaimStateWaitForContention ClaimState = "wait_for_contention"
	ClaimStateClaimed           ClaimState = "claimed"
	ClaimStateUnableToClaim     ClaimState = "unable_to_claim"
)

// Claim state machine events
const (
	eventStart   = "start"
	eventRequest = "request"
	eventClaim   = "claim"
	eventFail    = "fail"
)

// claimer holds the address claim state machine of one internal control
// function. Timers are absolute deadlines checked by Registry.Update.
type claimer struct {
	machine   *fsm.FSM
	preferred uint8
	delay     time.Duration
	deadline  time.Time
}

func newClaimer(n name.NAME, preferred uint8, seed uint64, log logger.Logger) *claimer {
	rng := rand.New(rand.NewPCG(n.Raw(), seed))

	c := &claimer{
		preferred: preferred,
		// Up to 153ms, spreads out claims of devices powered on together
		delay: time.Duration(rng.IntN(255)) * 600 * time.Microsecond,
	}

	c.machine = fsm.NewFSM(
		string(ClaimStateNone),
		fsm.Events{
			{Name: eventStart, Src: []string{string(ClaimStateNone)}, Dst: string(ClaimStateWaitForClaim)},
			{Name: eventRequest, Src: []string{string(ClaimStateWaitForClaim)}, Dst: string(ClaimStateWaitForContention)},
			{Name: eventClaim, Src: []string{
				string(ClaimStateNone),
				string(ClaimStateWaitForClaim),
				string(ClaimStateWaitForContention),
				string(ClaimStateUnableToClaim),
			}, Dst: string(ClaimStateClaimed)},
			{Name: eventFail, Src: []string{string(ClaimStateWaitForContention), string(ClaimStateClaimed)}, Dst: string(ClaimStateUnableToClaim)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug("Address claim NAME=0x%016X: %s -> %s", n.Raw(), e.Src, e.Dst)
			},
		},
	)

	return c
}

func (c *claimer) state() ClaimState {
	return ClaimState(c.machine.Current())
}

// fire moves the state machine. Events that are not valid from the current
// state are ignored, the caller has already checked the state it needs.
func (c *claimer) fire(event string) bool {
	return c.machine.Event(context.Background(), event) == nil
}

func (c *claimer) is(s ClaimState) bool {
	return c.machine.Is(string(s))
}
