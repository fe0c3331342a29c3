package domain

import (
	"foodsafe/domain/state"

	"github.com/fundwit/go-commons/types"
)

type Priority string

const (
	PriorityLow      = Priority("LOW")
	PriorityMedium   = Priority("MEDIUM")
	PriorityHigh     = Priority("HIGH")
	PriorityCritical = Priority("CRITICAL")
)

type Source string

const (
	SourceAudit     = Source("AUDIT")
	SourceComplaint = Source("COMPLAINT")
	SourceInternal  = Source("INTERNAL")
	SourceSupplier  = Source("SUPPLIER")
)

type EffectivenessRating string

const (
	RatingNotEffective       = EffectivenessRating("NOT_EFFECTIVE")
	RatingPartiallyEffective = EffectivenessRating("PARTIALLY_EFFECTIVE")
	RatingEffective          = EffectivenessRating("EFFECTIVE")
	RatingHighlyEffective    = EffectivenessRating("HIGHLY_EFFECTIVE")
)

// Capa is a corrective and preventive action record. It is created in status
// OPEN and only ever mutated through validated status transitions and
// workflow step actions; records are never deleted.
type Capa struct {
	ID          types.ID     `json:"id" gorm:"primary_key"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      state.Status `json:"status"`
	Priority    Priority     `json:"priority"`
	Source      Source       `json:"source"`
	AssignedTo  string       `json:"assignedTo"`
	Department  string       `json:"department"`

	DueDate types.Timestamp `json:"dueDate" sql:"type:DATETIME(6)"`

	RootCause             string `json:"rootCause" sql:"type:TEXT"`
	CorrectiveAction      string `json:"correctiveAction" sql:"type:TEXT"`
	PreventiveAction      string `json:"preventiveAction" sql:"type:TEXT"`
	EffectivenessCriteria string `json:"effectivenessCriteria" sql:"type:TEXT"`

	EffectivenessVerified bool                `json:"effectivenessVerified"`
	EffectivenessRating   EffectivenessRating `json:"effectivenessRating"`
	VerificationDate      types.Timestamp     `json:"verificationDate" sql:"type:DATETIME(6)"`
	VerificationMethod    string              `json:"verificationMethod"`
	VerifiedBy            string              `json:"verifiedBy"`

	CreateTime     types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
	UpdateTime     types.Timestamp `json:"updateTime" sql:"type:DATETIME(6) NOT NULL"`
	CompletionDate types.Timestamp `json:"completionDate" sql:"type:DATETIME(6)"`
}

func (c *Capa) TableName() string {
	return "capas"
}

type CapaCreation struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority" binding:"required"`
	Source      Source   `json:"source" binding:"required"`
	AssignedTo  string   `json:"assignedTo"`
	Department  string   `json:"department" binding:"required"`

	DueDate types.Timestamp `json:"dueDate"`

	RootCause             string `json:"rootCause"`
	CorrectiveAction      string `json:"correctiveAction"`
	PreventiveAction      string `json:"preventiveAction"`
	EffectivenessCriteria string `json:"effectivenessCriteria"`
}

type StatusUpdating struct {
	Status  state.Status            `json:"status" binding:"required"`
	Payload state.TransitionPayload `json:"payload"`
}

type CapaQuery struct {
	Department string         `json:"department" form:"department"`
	Keyword    string         `json:"keyword" form:"keyword"`
	Statuses   []state.Status `json:"statuses" form:"status"`
	Priorities []Priority     `json:"priorities" form:"priority"`
}
