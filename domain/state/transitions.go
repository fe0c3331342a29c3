package state

import (
	"foodsafe/bizerror"

	"github.com/fundwit/go-commons/types"
)

type Status string

const (
	StatusOpen                = Status("OPEN")
	StatusInProgress          = Status("IN_PROGRESS")
	StatusOnHold              = Status("ON_HOLD")
	StatusCompleted           = Status("COMPLETED")
	StatusPendingVerification = Status("PENDING_VERIFICATION")
	StatusVerified            = Status("VERIFIED")
	StatusClosed              = Status("CLOSED")
	StatusRejected            = Status("REJECTED")
	StatusOverdue             = Status("OVERDUE")
)

// TransitionTable maps a status to the statuses it may move to. Statuses
// absent from the table have no outward transitions at all: an unmapped
// current status fails closed instead of allowing everything.
type TransitionTable map[Status][]Status

func DefaultTransitionTable() TransitionTable {
	return TransitionTable{
		StatusOpen:                {StatusInProgress, StatusOnHold, StatusRejected},
		StatusInProgress:          {StatusCompleted, StatusOnHold, StatusOpen},
		StatusCompleted:           {StatusPendingVerification, StatusInProgress},
		StatusPendingVerification: {StatusVerified, StatusRejected, StatusInProgress},
		StatusVerified:            {StatusClosed},
		StatusOnHold:              {StatusOpen, StatusInProgress, StatusRejected},
		StatusRejected:            {StatusOpen},
		StatusClosed:              {},
		StatusOverdue:             {StatusInProgress, StatusCompleted},
	}
}

// ActiveTransitionTable is the table consulted by all transition checks.
// Replaceable so the matrix can be loaded from configuration.
var ActiveTransitionTable = DefaultTransitionTable()

func (t TransitionTable) LegalTargets(current Status) []Status {
	targets, found := t[current]
	if !found {
		return []Status{}
	}
	r := make([]Status, len(targets))
	copy(r, targets)
	return r
}

// IsLegal reports whether current may transition to target. A self transition
// is always legal as a no-op save, including on terminal statuses.
func (t TransitionTable) IsLegal(current, target Status) bool {
	if current == target {
		return true
	}
	for _, s := range t.LegalTargets(current) {
		if s == target {
			return true
		}
	}
	return false
}

func ComputeLegalTransitions(current Status) []Status {
	return ActiveTransitionTable.LegalTargets(current)
}

// TransitionPayload carries the auxiliary fields a caller submits together
// with a target status.
type TransitionPayload struct {
	CompletionDate     types.Timestamp `json:"completionDate"`
	VerificationMethod string          `json:"verificationMethod"`
	VerifiedBy         string          `json:"verifiedBy"`
	VerificationDate   types.Timestamp `json:"verificationDate"`
	EffectivenessRating string         `json:"effectivenessRating"`
}

// StatusPatch holds the validated fields to persist for a transition.
// Fields not demanded by the target status stay at their zero value and
// must be left untouched by the persister.
type StatusPatch struct {
	Status Status

	CompletionDate      types.Timestamp
	VerificationMethod  string
	VerifiedBy          string
	VerificationDate    types.Timestamp
	EffectivenessRating string
}

var (
	completionRequiredTargets   = []Status{StatusCompleted, StatusPendingVerification, StatusVerified, StatusClosed}
	verificationRequiredTargets = []Status{StatusPendingVerification, StatusVerified, StatusClosed}
	ratingRequiredTargets       = []Status{StatusVerified, StatusClosed}
)

func statusIn(s Status, set []Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// ValidateTransition checks the move against the table and enforces the
// auxiliary fields the target status makes mandatory. On success it returns
// the patch to persist; it never writes anything itself. A self transition
// skips the field requirements since the record already carries them.
func (t TransitionTable) ValidateTransition(current, target Status, payload TransitionPayload) (*StatusPatch, error) {
	if !t.IsLegal(current, target) {
		return nil, bizerror.ErrIllegalTransition
	}
	patch := &StatusPatch{Status: target}
	if current == target {
		return patch, nil
	}

	if statusIn(target, completionRequiredTargets) {
		if payload.CompletionDate.IsZero() {
			return nil, &bizerror.ErrMissingField{Field: "completionDate"}
		}
		patch.CompletionDate = payload.CompletionDate
	}
	if statusIn(target, verificationRequiredTargets) {
		if payload.VerificationMethod == "" {
			return nil, &bizerror.ErrMissingField{Field: "verificationMethod"}
		}
		if payload.VerifiedBy == "" {
			return nil, &bizerror.ErrMissingField{Field: "verifiedBy"}
		}
		patch.VerificationMethod = payload.VerificationMethod
		patch.VerifiedBy = payload.VerifiedBy
		patch.VerificationDate = payload.VerificationDate
	}
	if statusIn(target, ratingRequiredTargets) {
		if payload.EffectivenessRating == "" {
			return nil, &bizerror.ErrMissingField{Field: "effectivenessRating"}
		}
		patch.EffectivenessRating = payload.EffectivenessRating
	}
	return patch, nil
}
