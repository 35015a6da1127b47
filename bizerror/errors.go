package bizerror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("concurrent modification")

	ErrConfigInactive = errors.New("workflow config is inactive")
	ErrUnknownStage   = errors.New("unknown stage")
	ErrStageInactive  = errors.New("stage is inactive")
	ErrNoInitialStage = errors.New("workflow has no active stage")

	ErrStageIsReferenced           = errors.New("stage is referenced by work items")
	ErrFieldDefinitionIsReferenced = errors.New("field definition is referenced by work items")
	ErrFieldDefinitionInvalid      = errors.New("field definition is invalid")

	ErrTaskAlreadyCompleted = errors.New("task is already completed")
	ErrArchiveStatusInvalid = errors.New("work item archive status is invalid")

	ErrStoreUnavailable = errors.New("store unavailable")
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
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "common.bad_param", Message: message}
}

// FieldFailure describes one rejected field value.
type FieldFailure struct {
	FieldKey string `json:"fieldKey"`
	Rule     string `json:"rule"`
	Message  string `json:"message"`
}

// ValidationError aggregates every failing field of one request, the caller
// gets the complete list instead of the first failure.
type ValidationError struct {
	Failures []FieldFailure
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		keys = append(keys, f.FieldKey+": "+f.Message)
	}
	return "validation failed: " + strings.Join(keys, "; ")
}

func (e *ValidationError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "common.validation_failed",
		Message: "validation failed", Data: e.Failures}
}

const (
	TransitionRejectEdgeNotAllowed = "edge_not_allowed"
	TransitionRejectTasksPending   = "required_tasks_pending"
)

// TransitionError names the blocking reason of a rejected stage transition.
type TransitionError struct {
	FromStage string `json:"fromStage"`
	ToStage   string `json:"toStage"`
	Reason    string `json:"reason"`

	PendingTaskIds []string `json:"pendingTaskIds,omitempty"`
}

func (e *TransitionError) Error() string {
	if e.Reason == TransitionRejectTasksPending {
		return fmt.Sprintf("transition from %s to %s rejected: required tasks pending: %s",
			e.FromStage, e.ToStage, strings.Join(e.PendingTaskIds, ", "))
	}
	return fmt.Sprintf("transition from %s to %s is not allowed", e.FromStage, e.ToStage)
}

func (e *TransitionError) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "workflow.transition_rejected",
		Message: e.Error(), Data: e}
}
