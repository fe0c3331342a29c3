package capa

import (
	"errors"

	"foodsafe/bizerror"
	"foodsafe/domain"
	"foodsafe/domain/flow"
	"foodsafe/domain/state"
	"foodsafe/event"
	"foodsafe/session"

	"foodsafe/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/go-sql-driver/mysql"
	"github.com/jinzhu/gorm"
)

var (
	InitiateWorkflowFunc = InitiateWorkflow
	ListStepsFunc        = ListSteps
	ActOnStepFunc        = ActOnStep
	ReopenStepFunc       = ReopenStep
	CapaProgressFunc     = CapaProgress
)

// StepActionResult is what an act-on-step call hands back: the updated step
// collection, aggregate progress, and — when the last required step just
// closed — the CAPA status the engine suggests, plus whether it was applied
// automatically.
type StepActionResult struct {
	Steps    []domain.WorkflowStep `json:"steps"`
	Progress int                   `json:"progress"`

	SuggestedStatus state.Status `json:"suggestedStatus,omitempty"`
	StatusApplied   bool         `json:"statusApplied"`
}

// InitiateWorkflow persists the canonical step set for a CAPA. Re-initiating
// is a no-op returning the existing steps, so duplicate UI triggers are
// harmless; the bool reports whether this call created the set.
func InitiateWorkflow(capaID types.ID, s *session.Session) ([]domain.WorkflowStep, bool, error) {
	var steps []domain.WorkflowStep
	created := false
	var ev *event.EventRecord

	txErr := persistence.ActiveDataSourceManager.GormDB(sessionContext(s)).Transaction(func(tx *gorm.DB) error {
		capa, err := findCapaAndCheckManagePerms(tx, capaID, s)
		if err != nil {
			return err
		}

		if err := tx.Where(&domain.WorkflowStep{CapaID: capaID}).Order("`order` ASC").Find(&steps).Error; err != nil {
			return err
		}
		if len(steps) > 0 {
			return nil
		}

		config := flow.ResolveFunc(capa.Priority, capa.Source)
		built := flow.InitializeSteps(capa, config)
		for i := range built {
			if err := tx.Create(&built[i]).Error; err != nil {
				if isDuplicateEntry(err) {
					return bizerror.ErrAlreadyInitiated
				}
				return err
			}
		}
		steps = built
		created = true

		ev, err = event.CreateEvent(event.SourceTypeCapa, capa.ID, capa.Title, event.EventCategoryExtensionUpdated,
			[]event.UpdatedProperty{{
				PropertyName: "Workflow", PropertyDesc: "Workflow",
				NewValue: "INITIATED", NewValueDesc: "INITIATED",
			}}, &s.Identity, types.CurrentTimestamp(), tx)
		return err
	})
	if txErr != nil {
		return nil, false, txErr
	}

	if created && event.InvokeHandlersFunc != nil {
		event.InvokeHandlersFunc(ev)
	}
	return steps, created, nil
}

func ListSteps(capaID types.ID, s *session.Session) ([]domain.WorkflowStep, error) {
	db := persistence.ActiveDataSourceManager.GormDB(sessionContext(s))
	if _, err := findCapaAndCheckViewPerms(db, capaID, s); err != nil {
		return nil, err
	}
	var steps []domain.WorkflowStep
	if err := db.Where(&domain.WorkflowStep{CapaID: capaID}).Order("`order` ASC").Find(&steps).Error; err != nil {
		return nil, err
	}
	return steps, nil
}

// ActOnStep approves or rejects the currently actionable step. The step row
// update is guarded on PENDING, so two concurrent actions on the same step
// cannot both succeed. When the action closes the last required step the
// engine suggests the implied CAPA transition; it is applied right away only
// when the resolved configuration auto-advances and the transition needs no
// human-supplied fields.
func ActOnStep(capaID, stepID types.ID, action flow.StepAction, comments string, s *session.Session) (*StepActionResult, error) {
	result := StepActionResult{}
	events := []*event.EventRecord{}

	txErr := persistence.ActiveDataSourceManager.GormDB(sessionContext(s)).Transaction(func(tx *gorm.DB) error {
		capa, err := findCapaAndCheckManagePerms(tx, capaID, s)
		if err != nil {
			return err
		}

		var steps []domain.WorkflowStep
		if err := tx.Where(&domain.WorkflowStep{CapaID: capaID}).Order("`order` ASC").Find(&steps).Error; err != nil {
			return err
		}

		updated, err := flow.Advance(steps, stepID, action, comments, s.Identity.Name)
		if err != nil {
			return err
		}
		acted := stepByID(updated, stepID)

		query := tx.Model(&domain.WorkflowStep{}).Where("id = ? AND status = ?", stepID, domain.StepStatusPending).
			Update(map[string]interface{}{
				"status":       acted.Status,
				"completed_at": acted.CompletedAt,
				"completed_by": acted.CompletedBy,
				"comments":     acted.Comments,
			})
		if err := query.Error; err != nil {
			return err
		}
		if query.RowsAffected != 1 {
			return bizerror.ErrPersistenceConflict
		}

		now := types.CurrentTimestamp()
		ev, err := event.CreateEvent(event.SourceTypeCapa, capa.ID, capa.Title, event.EventCategoryExtensionUpdated,
			[]event.UpdatedProperty{{
				PropertyName: "WorkflowStep", PropertyDesc: string(acted.Name),
				OldValue: string(domain.StepStatusPending), OldValueDesc: string(domain.StepStatusPending),
				NewValue: string(acted.Status), NewValueDesc: acted.Comments,
			}}, &s.Identity, now, tx)
		if err != nil {
			return err
		}
		events = append(events, ev)

		result.Steps = updated
		result.Progress = flow.ComputeProgress(updated)

		if action != flow.StepActionApprove || result.Progress != 100 {
			return nil
		}
		suggested := flow.SuggestedStatus(acted)
		if suggested == "" {
			return nil
		}
		result.SuggestedStatus = suggested

		config := flow.ResolveFunc(capa.Priority, capa.Source)
		if !config.AutoAdvance {
			return nil
		}
		patch, verr := state.ActiveTransitionTable.ValidateTransition(capa.Status, suggested,
			state.TransitionPayload{CompletionDate: now})
		if verr != nil {
			// needs human-supplied fields, leave it as a suggestion
			return nil
		}

		statusQuery := tx.Model(&domain.Capa{}).Where("id = ? AND status = ?", capa.ID, capa.Status).
			Update(map[string]interface{}{"status": patch.Status, "completion_date": patch.CompletionDate, "update_time": now})
		if err := statusQuery.Error; err != nil {
			return err
		}
		if statusQuery.RowsAffected != 1 {
			return bizerror.ErrPersistenceConflict
		}
		result.StatusApplied = true

		ev, err = event.CreateEvent(event.SourceTypeCapa, capa.ID, capa.Title, event.EventCategoryPropertyUpdated,
			[]event.UpdatedProperty{{
				PropertyName: "Status", PropertyDesc: "Status",
				OldValue: string(capa.Status), OldValueDesc: string(capa.Status),
				NewValue: string(patch.Status), NewValueDesc: string(patch.Status),
			}}, &s.Identity, now, tx)
		if err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	if event.InvokeHandlersFunc != nil {
		for _, ev := range events {
			event.InvokeHandlersFunc(ev)
		}
	}
	return &result, nil
}

// ReopenStep moves a rejected step back to PENDING for another round of
// review; the rejection stays in the audit trail.
func ReopenStep(capaID, stepID types.ID, s *session.Session) ([]domain.WorkflowStep, error) {
	var result []domain.WorkflowStep
	var ev *event.EventRecord

	txErr := persistence.ActiveDataSourceManager.GormDB(sessionContext(s)).Transaction(func(tx *gorm.DB) error {
		capa, err := findCapaAndCheckManagePerms(tx, capaID, s)
		if err != nil {
			return err
		}

		var steps []domain.WorkflowStep
		if err := tx.Where(&domain.WorkflowStep{CapaID: capaID}).Order("`order` ASC").Find(&steps).Error; err != nil {
			return err
		}

		updated, err := flow.Reopen(steps, stepID)
		if err != nil {
			return err
		}
		reopened := stepByID(updated, stepID)

		query := tx.Model(&domain.WorkflowStep{}).Where("id = ? AND status = ?", stepID, domain.StepStatusRejected).
			Update(map[string]interface{}{
				"status":       domain.StepStatusPending,
				"completed_at": types.Timestamp{},
				"completed_by": "",
			})
		if err := query.Error; err != nil {
			return err
		}
		if query.RowsAffected != 1 {
			return bizerror.ErrPersistenceConflict
		}

		ev, err = event.CreateEvent(event.SourceTypeCapa, capa.ID, capa.Title, event.EventCategoryExtensionUpdated,
			[]event.UpdatedProperty{{
				PropertyName: "WorkflowStep", PropertyDesc: string(reopened.Name),
				OldValue: string(domain.StepStatusRejected), OldValueDesc: string(domain.StepStatusRejected),
				NewValue: string(domain.StepStatusPending), NewValueDesc: string(domain.StepStatusPending),
			}}, &s.Identity, types.CurrentTimestamp(), tx)
		if err != nil {
			return err
		}

		result = updated
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	if event.InvokeHandlersFunc != nil {
		event.InvokeHandlersFunc(ev)
	}
	return result, nil
}

// CapaProgress reports workflow progress for a CAPA; a record whose workflow
// was never initiated is at zero, not at the empty-required-set hundred.
func CapaProgress(capaID types.ID, s *session.Session) (int, error) {
	steps, err := ListSteps(capaID, s)
	if err != nil {
		return 0, err
	}
	if len(steps) == 0 {
		return 0, nil
	}
	return flow.ComputeProgress(steps), nil
}

func stepByID(steps []domain.WorkflowStep, stepID types.ID) *domain.WorkflowStep {
	for i := range steps {
		if steps[i].ID == stepID {
			return &steps[i]
		}
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
