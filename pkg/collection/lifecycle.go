package collection

import "fmt"

// TransitionRule defines an allowed status transition.
type TransitionRule struct {
	From Status
	To   Status
}

// ForwardTransitions is the adjacency table used when adjacency is enforced.
// Work moves forward one step at a time, except that a fresh collection may
// be sent for processing without passing through storage. Every non-terminal
// status may be REJECTED or RECALLED.
var ForwardTransitions = buildForwardTransitions()

func buildForwardTransitions() []TransitionRule {
	rules := []TransitionRule{
		{From: StatusCollected, To: StatusInStorage},
		{From: StatusCollected, To: StatusSentForProcessing},
		{From: StatusInStorage, To: StatusSentForProcessing},
		{From: StatusSentForProcessing, To: StatusProcessed},
		{From: StatusProcessed, To: StatusTested},
		{From: StatusTested, To: StatusApproved},
	}
	for _, s := range allStatuses {
		if s.Terminal() {
			continue
		}
		rules = append(rules,
			TransitionRule{From: s, To: StatusRejected},
			TransitionRule{From: s, To: StatusRecalled},
		)
	}
	return rules
}

// Transition error codes.
const (
	CodeInvalidTarget     = "STATUS_INVALID_TARGET"
	CodeTerminal          = "STATUS_TERMINAL"
	CodeInvalidTransition = "STATUS_INVALID_TRANSITION"
)

// StatusMachine validates status transitions. In permissive mode any known
// status other than COLLECTED is a valid target from any state. With
// adjacency enforced, only ForwardTransitions are allowed and terminal
// states cannot be left.
type StatusMachine struct {
	enforceAdjacency bool
	transitions      []TransitionRule
}

// NewStatusMachine creates a machine. enforceAdjacency selects the strict
// forward table.
func NewStatusMachine(enforceAdjacency bool) *StatusMachine {
	return &StatusMachine{
		enforceAdjacency: enforceAdjacency,
		transitions:      ForwardTransitions,
	}
}

// EnforcesAdjacency reports the machine's mode.
func (m *StatusMachine) EnforcesAdjacency() bool {
	return m.enforceAdjacency
}

// ValidateTransition checks whether from->to is allowed. It returns nil if
// allowed and a *TransitionError otherwise.
func (m *StatusMachine) ValidateTransition(from, to Status) error {
	if !to.Valid() || to == StatusCollected {
		return &TransitionError{
			Code:    CodeInvalidTarget,
			From:    from,
			To:      to,
			Message: fmt.Sprintf("%s is not a valid target status", to),
		}
	}

	// Same state is a no-op.
	if from == to {
		return nil
	}

	if !m.enforceAdjacency {
		return nil
	}

	if from.Terminal() {
		return &TransitionError{
			Code:    CodeTerminal,
			From:    from,
			To:      to,
			Message: fmt.Sprintf("%s is terminal and cannot move to %s", from, to),
		}
	}

	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return nil
		}
	}

	return &TransitionError{
		Code:    CodeInvalidTransition,
		From:    from,
		To:      to,
		Message: fmt.Sprintf("no transition defined from %s to %s", from, to),
	}
}

// AllowedTransitions returns every valid target from the given status.
func (m *StatusMachine) AllowedTransitions(from Status) []Status {
	var allowed []Status
	if !m.enforceAdjacency {
		for _, s := range allStatuses {
			if s != StatusCollected && s != from {
				allowed = append(allowed, s)
			}
		}
		return allowed
	}
	if from.Terminal() {
		return nil
	}
	for _, t := range m.transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}

// TransitionError is a structured error for rejected transitions.
type TransitionError struct {
	Code    string `json:"code"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Message string `json:"message"`
}

func (e *TransitionError) Error() string {
	return e.Message
}
