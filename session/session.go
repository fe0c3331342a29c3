package session

import (
	"context"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
)

const SystemAdminRole = "system:admin"

type Identity struct {
	ID       types.ID `json:"id"`
	Name     string   `json:"name"`
	Nickname string   `json:"nickname"`
}

type Permissions []string

func (p Permissions) HasRole(role string) bool {
	for _, v := range p {
		if v == role {
			return true
		}
	}
	return false
}

func (p Permissions) HasRoleSuffix(suffix string) bool {
	for _, v := range p {
		if strings.HasSuffix(v, suffix) {
			return true
		}
	}
	return false
}

// HasDepartmentViewPerm reports whether any role is scoped to the department,
// or the holder is a system admin.
func (p Permissions) HasDepartmentViewPerm(department string) bool {
	if p.HasRole(SystemAdminRole) {
		return true
	}
	return p.HasRoleSuffix("_" + department)
}

type Session struct {
	Token    string      `json:"token"`
	Identity Identity    `json:"identity"`
	Perms    Permissions `json:"perms"`

	SigningTime time.Time       `json:"-"`
	Context     context.Context `json:"-"`
}

// VisibleDepartments parses department scopes from role_department permissions.
func (s *Session) VisibleDepartments() []string {
	if s.Perms.HasRole(SystemAdminRole) {
		return nil // nil means unrestricted
	}
	departments := []string{}
	for _, v := range s.Perms {
		idx := strings.Index(v, "_")
		if idx > 0 && idx+1 < len(v) {
			departments = append(departments, v[idx+1:])
		}
	}
	return departments
}
