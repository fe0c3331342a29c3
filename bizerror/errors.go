package bizerror

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")

	ErrIllegalTransition   = errors.New("illegal status transition")
	ErrStepNotFound        = errors.New("workflow step not found")
	ErrInvalidAction       = errors.New("workflow step is not actionable")
	ErrCommentRequired     = errors.New("comment is required")
	ErrAlreadyInitiated    = errors.New("workflow already initiated")
	ErrPersistenceConflict = errors.New("concurrent modification detected")
)

type BizError interface {
	Respond() *BizErrorDetail
}

type BizErrorDetail struct {
	Status  int
	Code    string
	Message string

	Data  interface{}
	Cause error
}

type ErrBadParam struct {
	Cause error
}

func (e *ErrBadParam) Unwrap() error {
	return e.Cause
}
func (e *ErrBadParam) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "common.bad_param"
}
func (e *ErrBadParam) Respond() *BizErrorDetail {
	message := "common.bad_param"
	if e.Cause != nil {
		message = e.Cause.Error()
	}
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "common.bad_param", Message: message, Data: nil}
}

// ErrMissingField is raised when a status transition payload lacks a field
// the target status makes mandatory.
type ErrMissingField struct {
	Field string
}

func (e *ErrMissingField) Error() string {
	return "missing required field '" + e.Field + "'"
}
func (e *ErrMissingField) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "capa.missing_required_field",
		Message: e.Error(), Data: e.Field}
}
