package conversation

import (
	"context"
	"slices"
	"strconv"
	"strings"
)

// State is a step of the link conversation.
type State string

const (
	StateSelectProduct        State = "SELECT_PRODUCT"
	StateFreeformLink         State = "FREEFORM_LINK"
	StateSelectCapacity       State = "SELECT_CAPACITY"
	StateSelectColor          State = "SELECT_COLOR"
	StateCollectDeviceID      State = "COLLECT_DEVICE_ID"
	StateSelectDeviceCapacity State = "SELECT_DEVICE_CAPACITY"
	StateSelectQuantity       State = "SELECT_QUANTITY"
	StateTerminated           State = "TERMINATED"
)

// EventKind distinguishes inbound chat events.
type EventKind int

const (
	EventCommand EventKind = iota
	EventButton
	EventText
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventButton:
		return "button"
	case EventText:
		return "text"
	default:
		return "unknown"
	}
}

// Event is one inbound chat event.
// Command is set for EventCommand, Payload for EventButton, Text for EventText.
// MessageID is the pressed message for buttons and the user's message otherwise.
type Event struct {
	Kind      EventKind
	UserID    int64
	ChatID    int64
	MessageID int64
	Command   string
	Payload   string
	Text      string
}

// Callback payload prefixes. Payloads carry indexes into the session's
// option lists so they stay short.
const (
	payloadProduct        = "p:"
	payloadOtherProduct   = "p:other"
	payloadCapacity       = "c:"
	payloadColor          = "k:"
	payloadDeviceCapacity = "d:"
	payloadQuantity       = "q:"
)

// handlerFunc executes a transition and returns the state it reached.
type handlerFunc func(e *Engine, ctx context.Context, s *Session, ev Event) (State, error)

// transition is one row of the state table:
// (from, kind, accepts) → handle, landing in one of next.
type transition struct {
	name    string
	from    State
	kind    EventKind
	accepts func(s *Session, ev Event) bool
	handle  handlerFunc
	next    []State
}

// transitions enumerates every accepted event. Commands are handled before
// the table: the generate command restarts from any state.
//
//nolint:gochecknoglobals // state machine definition
var transitions = []transition{
	{
		name:    "choose catalog product",
		from:    StateSelectProduct,
		kind:    EventButton,
		accepts: func(s *Session, ev Event) bool { return onPrompt(s, ev) && validIndex(ev.Payload, payloadProduct, s.catalogSize) },
		handle:  (*Engine).onProduct,
		next:    []State{StateSelectCapacity, StateSelectProduct},
	},
	{
		name:    "choose other product",
		from:    StateSelectProduct,
		kind:    EventButton,
		accepts: func(s *Session, ev Event) bool { return onPrompt(s, ev) && ev.Payload == payloadOtherProduct },
		handle:  (*Engine).onOtherProduct,
		next:    []State{StateFreeformLink},
	},
	{
		name:    "send product link",
		from:    StateFreeformLink,
		kind:    EventText,
		accepts: func(_ *Session, ev Event) bool { return strings.TrimSpace(ev.Text) != "" },
		handle:  (*Engine).onFreeformLink,
		next:    []State{StateSelectCapacity, StateSelectProduct},
	},
	{
		name:    "choose capacity",
		from:    StateSelectCapacity,
		kind:    EventButton,
		accepts: func(s *Session, ev Event) bool { return onPrompt(s, ev) && validIndex(ev.Payload, payloadCapacity, len(s.capacities)) },
		handle:  (*Engine).onCapacity,
		next:    []State{StateSelectColor},
	},
	{
		name:    "choose color",
		from:    StateSelectColor,
		kind:    EventButton,
		accepts: func(s *Session, ev Event) bool { return onPrompt(s, ev) && validIndex(ev.Payload, payloadColor, len(s.colors)) },
		handle:  (*Engine).onColor,
		next:    []State{StateCollectDeviceID, StateSelectQuantity},
	},
	{
		name:    "send device identifier",
		from:    StateCollectDeviceID,
		kind:    EventText,
		accepts: func(_ *Session, ev Event) bool { return strings.TrimSpace(ev.Text) != "" },
		handle:  (*Engine).onDeviceID,
		next:    []State{StateSelectDeviceCapacity, StateCollectDeviceID},
	},
	{
		name:    "choose device capacity",
		from:    StateSelectDeviceCapacity,
		kind:    EventButton,
		accepts: func(s *Session, ev Event) bool { return onPrompt(s, ev) && validIndex(ev.Payload, payloadDeviceCapacity, len(s.deviceCapacities)) },
		handle:  (*Engine).onDeviceCapacity,
		next:    []State{StateTerminated},
	},
	{
		name:    "choose quantity",
		from:    StateSelectQuantity,
		kind:    EventButton,
		accepts: func(s *Session, ev Event) bool { return onPrompt(s, ev) && validQuantity(ev.Payload) },
		handle:  (*Engine).onQuantity,
		next:    []State{StateTerminated},
	},
}

// findTransition returns the row accepting ev in the session's current state.
func findTransition(s *Session, ev Event) (*transition, bool) {
	for i := range transitions {
		t := &transitions[i]
		if t.from == s.State && t.kind == ev.Kind && t.accepts(s, ev) {
			return t, true
		}
	}
	return nil, false
}

// permits reports whether the handler may land in to.
func (t *transition) permits(to State) bool {
	return slices.Contains(t.next, to)
}

// ValidNextStates returns every state reachable from from in one event.
func ValidNextStates(from State) []State {
	var out []State
	for _, t := range transitions {
		if t.from != from {
			continue
		}
		for _, n := range t.next {
			if !slices.Contains(out, n) {
				out = append(out, n)
			}
		}
	}
	return out
}

// IsTerminalState reports whether no event leaves state.
func IsTerminalState(state State) bool {
	return state == StateTerminated
}

// onPrompt rejects presses on buttons of messages other than the session's live prompt.
func onPrompt(s *Session, ev Event) bool {
	return ev.MessageID == 0 || ev.MessageID == s.PromptMessageID
}

func validIndex(payload, prefix string, n int) bool {
	_, ok := parseIndex(payload, prefix, n)
	return ok
}

// parseIndex decodes "<prefix><i>" with 0 <= i < n.
func parseIndex(payload, prefix string, n int) (int, bool) {
	rest, ok := strings.CutPrefix(payload, prefix)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func validQuantity(payload string) bool {
	_, ok := parseQuantity(payload)
	return ok
}

// parseQuantity decodes "q:<n>" where n is one of QuantityChoices.
func parseQuantity(payload string) (int, bool) {
	rest, ok := strings.CutPrefix(payload, payloadQuantity)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || !slices.Contains(QuantityChoices, n) {
		return 0, false
	}
	return n, true
}
