package gamekit

import (
	"bytes"
	"time"

	"github.com/XavierBriggs/fortuna/services/arena/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/statetree"
)

// ContainsAction reports whether action is structurally one of valid
func ContainsAction(valid []contracts.Action, action contracts.Action) bool {
	want, err := statetree.FromAny(action)
	if err != nil {
		return false
	}
	wantJSON := want.Canonical()

	for _, v := range valid {
		got, err := statetree.FromAny(v)
		if err != nil {
			continue
		}
		if bytes.Equal(got.Canonical(), wantJSON) {
			return true
		}
	}
	return false
}

// Reject is the ActionResult of an action that was not applied
func Reject(reason string) contracts.ActionResult {
	return contracts.ActionResult{Success: false, Error: reason}
}

// Accept is the ActionResult of an applied action
func Accept(newState interface{}) contracts.ActionResult {
	return contracts.ActionResult{Success: true, NewState: newState}
}

// NoTick is the TickResult of a title that does not advance in real time
func NoTick() contracts.TickResult {
	return contracts.TickResult{}
}

// TickInterval converts a tick rate in ticks per second to the time between ticks
func TickInterval(rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Second / time.Duration(rate)
}
