package flow

import (
	"foodsafe/domain"
)

// WorkflowConfiguration is derived from a CAPA's priority and source,
// never persisted.
type WorkflowConfiguration struct {
	RequiresApproval bool `json:"requiresApproval"`
	AutoAdvance      bool `json:"autoAdvance"`
}

// ConfigurationRule matches a (priority, source) pair; a zero Priority or
// Source matches anything. Rules are evaluated in order, first match wins.
type ConfigurationRule struct {
	Priority domain.Priority `json:"priority"`
	Source   domain.Source   `json:"source"`

	RequiresApproval bool `json:"requiresApproval"`
}

func (r ConfigurationRule) matches(priority domain.Priority, source domain.Source) bool {
	if r.Priority != "" && r.Priority != priority {
		return false
	}
	if r.Source != "" && r.Source != source {
		return false
	}
	return true
}

func DefaultConfigurationRules() []ConfigurationRule {
	return []ConfigurationRule{
		{Source: domain.SourceAudit, RequiresApproval: true},
		{Priority: domain.PriorityCritical, RequiresApproval: true},
		{Priority: domain.PriorityHigh, RequiresApproval: true},
		{Priority: domain.PriorityMedium, RequiresApproval: false},
		{Priority: domain.PriorityLow, RequiresApproval: false},
	}
}

// ActiveConfigurationRules is the matrix consulted by Resolve. Replaceable so
// new priority/source combinations land without touching engine code.
var ActiveConfigurationRules = DefaultConfigurationRules()

var ResolveFunc = Resolve

// Resolve is a pure function: the same (priority, source) always yields the
// same configuration. Steps auto-advance only for low and medium priority
// records that skip manager approval.
func Resolve(priority domain.Priority, source domain.Source) WorkflowConfiguration {
	requiresApproval := false
	for _, rule := range ActiveConfigurationRules {
		if rule.matches(priority, source) {
			requiresApproval = rule.RequiresApproval
			break
		}
	}
	autoAdvance := !requiresApproval && (priority == domain.PriorityLow || priority == domain.PriorityMedium)
	return WorkflowConfiguration{RequiresApproval: requiresApproval, AutoAdvance: autoAdvance}
}
