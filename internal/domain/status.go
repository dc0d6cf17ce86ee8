package domain

import "fmt"

// TransferStatus is the closed set of transfer lifecycle states. A transfer
// starts Pending and moves exactly once to Accepted or Rejected.
type TransferStatus string

const (
	TransferPending  TransferStatus = "PENDING"
	TransferAccepted TransferStatus = "ACCEPTED"
	TransferRejected TransferStatus = "REJECTED"
)

var transferTransitions = map[TransferStatus]map[TransferStatus]struct{}{
	TransferPending: {
		TransferAccepted: {},
		TransferRejected: {},
	},
	TransferAccepted: {},
	TransferRejected: {},
}

// Valid reports whether s is a known status value.
func (s TransferStatus) Valid() bool {
	_, ok := transferTransitions[s]
	return ok
}

// Terminal reports whether no further transition is legal from s.
func (s TransferStatus) Terminal() bool {
	return s == TransferAccepted || s == TransferRejected
}

// CanTransitionTo reports whether s -> next is a legal transition.
func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	nextStates, ok := transferTransitions[s]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// ParseTransferStatus validates a persisted status value.
func ParseTransferStatus(s string) (TransferStatus, error) {
	st := TransferStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown transfer status: %q", s)
	}
	return st, nil
}

// DecisionOutcome is the receiver's verdict on a pending transfer.
type DecisionOutcome string

const (
	OutcomeAccept DecisionOutcome = "accept"
	OutcomeReject DecisionOutcome = "reject"
)
