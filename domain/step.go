package domain

import (
	"github.com/fundwit/go-commons/types"
)

type StepName string

const (
	StepInvestigation  = StepName("INVESTIGATION")
	StepApproval       = StepName("APPROVAL")
	StepImplementation = StepName("IMPLEMENTATION")
	StepVerification   = StepName("VERIFICATION")
)

type StepStatus string

const (
	StepStatusPending   = StepStatus("PENDING")
	StepStatusApproved  = StepStatus("APPROVED")
	StepStatusRejected  = StepStatus("REJECTED")
	StepStatusSkipped   = StepStatus("SKIPPED")
	StepStatusCompleted = StepStatus("COMPLETED")
)

// WorkflowStep is one gated stage of a CAPA workflow. The full ordered set is
// instantiated once when the workflow is initiated; each step leaves PENDING
// exactly once, except for an explicit reopen of a REJECTED step.
type WorkflowStep struct {
	ID     types.ID `json:"id" gorm:"primary_key"`
	CapaID types.ID `json:"capaId" gorm:"unique_index:uni_capa_step"`

	Name     StepName   `json:"name" gorm:"unique_index:uni_capa_step"`
	Order    int        `json:"order"`
	Status   StepStatus `json:"status"`
	Required bool       `json:"required"`

	AssignedTo string          `json:"assignedTo"`
	DueDate    types.Timestamp `json:"dueDate" sql:"type:DATETIME(6)"`

	CompletedAt types.Timestamp `json:"completedAt" sql:"type:DATETIME(6)"`
	CompletedBy string          `json:"completedBy"`
	Comments    string          `json:"comments" sql:"type:TEXT"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

func (s *WorkflowStep) TableName() string {
	return "workflow_steps"
}
