package reconcile

import (
	"time"

	"github.com/google/uuid"
)

// State is a step of the reconciliation state machine.
type State string

const (
	StateValidating State = "VALIDATING"
	StateStaged     State = "STAGED"
	StateComparing  State = "COMPARING"
	StateMerging    State = "MERGING"
	StateCleanup    State = "CLEANUP"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

var transitions = map[State][]State{
	StateValidating: {StateStaged, StateFailed},
	StateStaged:     {StateComparing, StateMerging, StateFailed},
	StateComparing:  {StateMerging, StateCleanup, StateFailed},
	StateMerging:    {StateCleanup, StateFailed},
	StateCleanup:    {StateDone},
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Session is the record of one run. Sessions are not resumable: a failed session is
// restarted from the upload.
type Session struct {
	ID         uuid.UUID    `json:"id"`
	Table      Table        `json:"table"`
	Mode       Mode         `json:"mode"`
	Strategy   Strategy     `json:"strategy"`
	State      State        `json:"state"`
	History    []Transition `json:"history"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at,omitempty"`
	Report     Report       `json:"report"`
	Err        string       `json:"error,omitempty"`
}

func newSession(table Table, opts Options, now time.Time) *Session {
	return &Session{
		ID:        uuid.New(),
		Table:     table,
		Mode:      opts.Mode,
		Strategy:  opts.Strategy,
		State:     StateValidating,
		StartedAt: now,
	}
}

// advance moves the session forward; illegal transitions are ignored and reported.
func (s *Session) advance(to State, now time.Time) bool {
	for _, allowed := range transitions[s.State] {
		if allowed == to {
			s.History = append(s.History, Transition{From: s.State, To: to, At: now})
			s.State = to
			if to.Terminal() {
				s.FinishedAt = now
			}
			return true
		}
	}
	return false
}

func (s *Session) fail(err error, now time.Time) {
	s.advance(StateFailed, now)
	if err != nil {
		s.Err = err.Error()
	}
}
