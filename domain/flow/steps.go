package flow

import (
	"sort"
	"strings"

	"foodsafe/bizerror"
	"foodsafe/domain"
	"foodsafe/domain/state"
	"foodsafe/idgen"

	"github.com/fundwit/go-commons/types"
	"github.com/sony/sonyflake"
)

var stepIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

type StepAction string

const (
	StepActionApprove = StepAction("approve")
	StepActionReject  = StepAction("reject")
)

// InitializeSteps builds the canonical ordered step set for a CAPA. Initial
// statuses are seeded from data the record already carries, so a workflow
// initiated on a partially handled CAPA reflects real progress instead of
// resetting it. It only builds, the caller persists.
func InitializeSteps(capa *domain.Capa, config WorkflowConfiguration) []domain.WorkflowStep {
	now := types.CurrentTimestamp()

	investigationStatus := domain.StepStatusPending
	if capa.RootCause != "" {
		investigationStatus = domain.StepStatusApproved
	}
	approvalStatus := domain.StepStatusPending
	approvalRequired := config.RequiresApproval
	if !approvalRequired {
		approvalStatus = domain.StepStatusSkipped
	}
	implementationStatus := domain.StepStatusPending
	if capa.CorrectiveAction != "" {
		implementationStatus = domain.StepStatusApproved
	}
	verificationStatus := domain.StepStatusPending
	if capa.EffectivenessVerified {
		verificationStatus = domain.StepStatusApproved
	}

	build := func(name domain.StepName, order int, status domain.StepStatus, required bool) domain.WorkflowStep {
		return domain.WorkflowStep{
			ID:         idgen.NextID(stepIdWorker),
			CapaID:     capa.ID,
			Name:       name,
			Order:      order,
			Status:     status,
			Required:   required,
			AssignedTo: capa.AssignedTo,
			DueDate:    capa.DueDate,
			CreateTime: now,
		}
	}

	return []domain.WorkflowStep{
		build(domain.StepInvestigation, 1, investigationStatus, true),
		build(domain.StepApproval, 2, approvalStatus, approvalRequired),
		build(domain.StepImplementation, 3, implementationStatus, true),
		build(domain.StepVerification, 4, verificationStatus, true),
	}
}

// CurrentActionableStep returns the first step in order whose status is
// PENDING, or nil when nothing is pending (workflow complete, or blocked on a
// rejected step awaiting reopen).
func CurrentActionableStep(steps []domain.WorkflowStep) *domain.WorkflowStep {
	ordered := sortedCopy(steps)
	for i := range ordered {
		if ordered[i].Status == domain.StepStatusPending {
			return &ordered[i]
		}
	}
	return nil
}

// Advance applies an approve or reject action to a step and returns the
// updated collection; it does not persist. Only the currently actionable step
// may be acted on, and every action needs a non-empty comment for the audit
// trail. Rejection does not advance: the workflow stays blocked until the
// step is reopened.
func Advance(steps []domain.WorkflowStep, stepID types.ID, action StepAction, comments string, actor string) ([]domain.WorkflowStep, error) {
	if action != StepActionApprove && action != StepActionReject {
		return nil, &bizerror.ErrBadParam{}
	}
	ordered := sortedCopy(steps)
	idx := indexOfStep(ordered, stepID)
	if idx < 0 {
		return nil, bizerror.ErrStepNotFound
	}
	step := &ordered[idx]
	if step.Status != domain.StepStatusPending {
		return nil, bizerror.ErrInvalidAction
	}
	actionable := CurrentActionableStep(ordered)
	if actionable == nil || actionable.ID != step.ID {
		return nil, bizerror.ErrInvalidAction
	}
	if strings.TrimSpace(comments) == "" {
		return nil, bizerror.ErrCommentRequired
	}

	switch action {
	case StepActionApprove:
		if step.Name == domain.StepApproval {
			step.Status = domain.StepStatusApproved
		} else {
			step.Status = domain.StepStatusCompleted
		}
	case StepActionReject:
		step.Status = domain.StepStatusRejected
	}
	step.CompletedAt = types.CurrentTimestamp()
	step.CompletedBy = actor
	step.Comments = comments
	return ordered, nil
}

// Reopen moves a rejected step back to PENDING for another round of review.
// The rejection comment stays on the step until the next action overwrites it.
func Reopen(steps []domain.WorkflowStep, stepID types.ID) ([]domain.WorkflowStep, error) {
	ordered := sortedCopy(steps)
	idx := indexOfStep(ordered, stepID)
	if idx < 0 {
		return nil, bizerror.ErrStepNotFound
	}
	step := &ordered[idx]
	if step.Status != domain.StepStatusRejected {
		return nil, bizerror.ErrInvalidAction
	}
	step.Status = domain.StepStatusPending
	step.CompletedAt = types.Timestamp{}
	step.CompletedBy = ""
	return ordered, nil
}

// ComputeProgress reports satisfied required steps as a 0..100 percentage.
// SKIPPED counts as satisfied: it is a deliberately bypassed requirement, not
// an outstanding one. An empty required set is complete by definition.
func ComputeProgress(steps []domain.WorkflowStep) int {
	required := 0
	satisfied := 0
	for _, s := range steps {
		if !s.Required {
			continue
		}
		required++
		switch s.Status {
		case domain.StepStatusApproved, domain.StepStatusCompleted, domain.StepStatusSkipped:
			satisfied++
		}
	}
	if required == 0 {
		return 100
	}
	return int(float64(satisfied)/float64(required)*100 + 0.5)
}

// IsOverdue is a display predicate only, it never drives a transition.
func IsOverdue(step *domain.WorkflowStep, now types.Timestamp) bool {
	if step.Status != domain.StepStatusPending || step.DueDate.IsZero() {
		return false
	}
	return step.DueDate.Time().Before(now.Time())
}

// SuggestedStatus maps a closing step to the CAPA status it implies:
// implementation done suggests COMPLETED, verification done suggests
// PENDING_VERIFICATION. Other steps imply nothing.
func SuggestedStatus(step *domain.WorkflowStep) state.Status {
	switch step.Name {
	case domain.StepImplementation:
		return state.StatusCompleted
	case domain.StepVerification:
		return state.StatusPendingVerification
	}
	return ""
}

func sortedCopy(steps []domain.WorkflowStep) []domain.WorkflowStep {
	ordered := make([]domain.WorkflowStep, len(steps))
	copy(ordered, steps)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	return ordered
}

func indexOfStep(steps []domain.WorkflowStep, stepID types.ID) int {
	for i := range steps {
		if steps[i].ID == stepID {
			return i
		}
	}
	return -1
}
