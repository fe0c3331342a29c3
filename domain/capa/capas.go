package capa

import (
	"context"

	"foodsafe/bizerror"
	"foodsafe/domain"
	"foodsafe/domain/state"
	"foodsafe/event"
	"foodsafe/idgen"
	"foodsafe/persistence"
	"foodsafe/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	capaIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateCapaFunc   = CreateCapa
	DetailCapaFunc   = DetailCapa
	QueryCapasFunc   = QueryCapas
	UpdateStatusFunc = UpdateStatus

	LoadCapasFunc        = LoadCapas
	SyncOverdueCapasFunc = SyncOverdueCapas
)

func CreateCapa(c *domain.CapaCreation, s *session.Session) (*domain.Capa, error) {
	if s == nil || !canManageDepartment(s, c.Department) {
		return nil, bizerror.ErrForbidden
	}

	now := types.CurrentTimestamp()
	record := domain.Capa{
		ID:          idgen.NextID(capaIdWorker),
		Title:       c.Title,
		Description: c.Description,
		Status:      state.StatusOpen,
		Priority:    c.Priority,
		Source:      c.Source,
		AssignedTo:  c.AssignedTo,
		Department:  c.Department,
		DueDate:     c.DueDate,

		RootCause:             c.RootCause,
		CorrectiveAction:      c.CorrectiveAction,
		PreventiveAction:      c.PreventiveAction,
		EffectivenessCriteria: c.EffectivenessCriteria,

		CreateTime: now,
		UpdateTime: now,
	}

	var ev *event.EventRecord
	txErr := persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		var err error
		ev, err = event.CreateEvent(event.SourceTypeCapa, record.ID, record.Title, event.EventCategoryCreated,
			nil, &s.Identity, now, tx)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}

	if event.InvokeHandlersFunc != nil {
		event.InvokeHandlersFunc(ev)
	}
	return &record, nil
}

func DetailCapa(id types.ID, s *session.Session) (*domain.Capa, error) {
	db := persistence.ActiveDataSourceManager.GormDB(sessionContext(s))
	return findCapaAndCheckViewPerms(db, id, s)
}

func QueryCapas(q *domain.CapaQuery, s *session.Session) ([]domain.Capa, error) {
	db := persistence.ActiveDataSourceManager.GormDB(sessionContext(s))

	query := db.Model(&domain.Capa{})
	if q.Department != "" {
		query = query.Where("department = ?", q.Department)
	}
	if len(q.Statuses) > 0 {
		query = query.Where("status in (?)", q.Statuses)
	}
	if len(q.Priorities) > 0 {
		query = query.Where("priority in (?)", q.Priorities)
	}
	if q.Keyword != "" {
		query = query.Where("title like ?", "%"+q.Keyword+"%")
	}

	visibleDepartments := s.VisibleDepartments()
	if visibleDepartments != nil {
		if len(visibleDepartments) == 0 {
			return []domain.Capa{}, nil
		}
		query = query.Where("department in (?)", visibleDepartments)
	}

	var records []domain.Capa
	if err := query.Order("create_time DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateStatus runs the transition through the status state machine and
// persists the validated patch. The update is guarded on the status the
// record held when it was read, so a concurrent transition surfaces as a
// conflict instead of a silent double-apply.
func UpdateStatus(id types.ID, updating *domain.StatusUpdating, s *session.Session) (*domain.Capa, error) {
	var result domain.Capa
	var ev *event.EventRecord

	txErr := persistence.ActiveDataSourceManager.GormDB(sessionContext(s)).Transaction(func(tx *gorm.DB) error {
		capa, err := findCapaAndCheckManagePerms(tx, id, s)
		if err != nil {
			return err
		}

		patch, err := state.ActiveTransitionTable.ValidateTransition(capa.Status, updating.Status, updating.Payload)
		if err != nil {
			return err
		}

		now := types.CurrentTimestamp()
		changes := map[string]interface{}{"status": patch.Status, "update_time": now}
		if !patch.CompletionDate.IsZero() {
			changes["completion_date"] = patch.CompletionDate
		}
		if patch.VerificationMethod != "" {
			changes["verification_method"] = patch.VerificationMethod
			changes["verified_by"] = patch.VerifiedBy
			if !patch.VerificationDate.IsZero() {
				changes["verification_date"] = patch.VerificationDate
			}
		}
		if patch.EffectivenessRating != "" {
			changes["effectiveness_rating"] = patch.EffectivenessRating
			changes["effectiveness_verified"] = true
		}

		query := tx.Model(&domain.Capa{}).Where("id = ? AND status = ?", id, capa.Status).Update(changes)
		if err := query.Error; err != nil {
			return err
		}
		if query.RowsAffected != 1 {
			return bizerror.ErrPersistenceConflict
		}

		ev, err = event.CreateEvent(event.SourceTypeCapa, capa.ID, capa.Title, event.EventCategoryPropertyUpdated,
			[]event.UpdatedProperty{{
				PropertyName: "Status", PropertyDesc: "Status",
				OldValue: string(capa.Status), OldValueDesc: string(capa.Status),
				NewValue: string(patch.Status), NewValueDesc: string(patch.Status),
			}}, &s.Identity, now, tx)
		if err != nil {
			return err
		}

		return tx.Where("id = ?", id).First(&result).Error
	})
	if txErr != nil {
		return nil, txErr
	}

	if event.InvokeHandlersFunc != nil {
		event.InvokeHandlersFunc(ev)
	}
	return &result, nil
}

// LoadCapas pages through all records for index synchronization; callers are
// internal robots, no session is involved.
func LoadCapas(page, size int) ([]domain.Capa, error) {
	db := persistence.ActiveDataSourceManager.GormDB(nil)
	var records []domain.Capa
	if err := db.Model(&domain.Capa{}).Order("id ASC").
		Offset((page - 1) * size).Limit(size).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// SyncOverdueCapas moves past-due records that are still being worked on into
// OVERDUE. Nothing in the transition table leads there; this housekeeping is
// the single entry point, operator triggered.
func SyncOverdueCapas(s *session.Session) (int, error) {
	if s == nil || !s.Perms.HasRole(session.SystemAdminRole) {
		return 0, bizerror.ErrForbidden
	}

	count := 0
	events := []*event.EventRecord{}
	txErr := persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		now := types.CurrentTimestamp()
		var dues []domain.Capa
		if err := tx.Where("status in (?)", []state.Status{state.StatusOpen, state.StatusInProgress, state.StatusOnHold}).
			Where("due_date <> ?", types.Timestamp{}).
			Where("due_date < ?", now).
			Find(&dues).Error; err != nil {
			return err
		}

		for _, capa := range dues {
			query := tx.Model(&domain.Capa{}).Where("id = ? AND status = ?", capa.ID, capa.Status).
				Update(map[string]interface{}{"status": state.StatusOverdue, "update_time": now})
			if err := query.Error; err != nil {
				return err
			}
			if query.RowsAffected != 1 {
				continue // raced with another transition, leave it alone
			}
			ev, err := event.CreateEvent(event.SourceTypeCapa, capa.ID, capa.Title, event.EventCategoryPropertyUpdated,
				[]event.UpdatedProperty{{
					PropertyName: "Status", PropertyDesc: "Status",
					OldValue: string(capa.Status), OldValueDesc: string(capa.Status),
					NewValue: string(state.StatusOverdue), NewValueDesc: string(state.StatusOverdue),
				}}, &s.Identity, now, tx)
			if err != nil {
				return err
			}
			events = append(events, ev)
			count++
		}
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}

	if event.InvokeHandlersFunc != nil {
		for _, ev := range events {
			event.InvokeHandlersFunc(ev)
		}
	}
	return count, nil
}

func sessionContext(s *session.Session) context.Context {
	if s == nil {
		return nil
	}
	return s.Context
}

func canManageDepartment(s *session.Session, department string) bool {
	return s.Perms.HasRole(session.SystemAdminRole) || s.Perms.HasRoleSuffix("_"+department)
}

func findCapaAndCheckViewPerms(db *gorm.DB, id types.ID, s *session.Session) (*domain.Capa, error) {
	var capa domain.Capa
	if err := db.Where("id = ?", id).First(&capa).Error; err != nil {
		return nil, err
	}
	if s == nil || !s.Perms.HasDepartmentViewPerm(capa.Department) {
		return nil, bizerror.ErrForbidden
	}
	return &capa, nil
}

// findCapaAndCheckManagePerms locks the record row for the rest of the
// transaction, serializing concurrent mutations of the same CAPA.
func findCapaAndCheckManagePerms(tx *gorm.DB, id types.ID, s *session.Session) (*domain.Capa, error) {
	var capa domain.Capa
	if err := tx.Set("gorm:query_option", "FOR UPDATE").Where("id = ?", id).First(&capa).Error; err != nil {
		return nil, err
	}
	if s == nil || !canManageDepartment(s, capa.Department) {
		return nil, bizerror.ErrForbidden
	}
	return &capa, nil
}
