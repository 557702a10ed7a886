package rewrite

import "fmt"

// Phase is the lifecycle of a rewrite proposal.
type Phase int

const (
	Idle Phase = iota
	Pending
	Staged
	Failed
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Staged:
		return "staged"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// MarshalText renders the phase by name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	for _, c := range []Phase{Idle, Pending, Staged, Failed} {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("rewrite: unknown phase %q", b)
}

type event string

const (
	evInvoke     event = "invoke"
	evSucceed    event = "succeed"
	evFail       event = "fail"
	evReport     event = "report"
	evAccept     event = "accept"
	evReject     event = "reject"
	evRegenerate event = "regenerate"
	evReset      event = "reset"
)

// transitions is the complete table of legal phase moves.
var transitions = map[Phase]map[event]Phase{
	Idle: {
		evInvoke: Pending,
		evReset:  Idle,
	},
	Pending: {
		evSucceed: Staged,
		evFail:    Failed,
		evReset:   Idle,
	},
	Staged: {
		evAccept:     Idle,
		evReject:     Idle,
		evRegenerate: Pending,
		evReset:      Idle,
	},
	Failed: {
		evReport: Idle,
		evReset:  Idle,
	},
}

func next(from Phase, ev event) (Phase, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("rewrite: %s not allowed while %s", ev, from)
	}
	return to, nil
}
