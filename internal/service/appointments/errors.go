package appointments

import (
	"fmt"
	"strings"

	"carelink/backend/internal/domain"
)

// Rule names the precondition a rejected operation violated.
type Rule string

const (
	RuleRequiredField           Rule = "required_field"
	RuleInvalidValue            Rule = "invalid_value"
	RuleTerminalStatus          Rule = "terminal_status"
	RuleInvalidTransition       Rule = "invalid_transition"
	RuleResponseDeadlineExpired Rule = "response_deadline_expired"
	RuleReasonRequired          Rule = "reason_required"
	RuleCheckInEvidence         Rule = "check_in_evidence_required"
	RuleConfirmationRequired    Rule = "confirmation_required"
	RuleCancellationWindow      Rule = "cancellation_window"
)

type ValidationError struct {
	Rule Rule
	msg  string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(rule Rule, msg string) error {
	return &ValidationError{Rule: rule, msg: msg}
}

// IncompleteTasksError lists the required tasks that block completion.
type IncompleteTasksError struct {
	Tasks []domain.Task
}

func (e *IncompleteTasksError) Error() string {
	names := make([]string, 0, len(e.Tasks))
	for _, t := range e.Tasks {
		names = append(names, t.Name)
	}
	return "required tasks not completed: " + strings.Join(names, ", ")
}

// ConflictError names the in-progress appointment that a check-in would
// run alongside for a different household.
type ConflictError struct {
	AppointmentID string
	ContactName   string
	Address       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("caregiver is already in progress on appointment %s for %s at %s",
		e.AppointmentID, e.ContactName, e.Address)
}
