// Package apperr defines the error kinds surfaced by the applet services.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindAccessDenied
	KindValidation
	KindConflict
	KindDependency
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindDependency:
		return "dependency"
	case KindFatal:
		return "fatal"
	default:
		return "internal"
	}
}

// Error is a domain error with a stable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newErr(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a domain error.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// KindOf returns the kind of err, KindInternal when it is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As extracts the domain error from err.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func NotFound(code, format string, args ...interface{}) *Error {
	return newErr(KindNotFound, code, format, args...)
}

func AccessDenied(code, format string, args ...interface{}) *Error {
	return newErr(KindAccessDenied, code, format, args...)
}

func Validation(code, format string, args ...interface{}) *Error {
	return newErr(KindValidation, code, format, args...)
}

func Conflict(code, format string, args ...interface{}) *Error {
	return newErr(KindConflict, code, format, args...)
}

func Dependency(code string, err error, format string, args ...interface{}) *Error {
	e := newErr(KindDependency, code, format, args...)
	e.Err = err
	return e
}

func Fatal(code, format string, args ...interface{}) *Error {
	return newErr(KindFatal, code, format, args...)
}

// NotFound errors.
func AppletNotFound(id string) *Error {
	return NotFound("APPLET_NOT_FOUND", "applet %s not found", id)
}

func AppletVersionNotFound(id, version string) *Error {
	return NotFound("APPLET_VERSION_NOT_FOUND", "applet %s has no version %s", id, version)
}

func ActivityNotFound(id string) *Error {
	return NotFound("ACTIVITY_NOT_FOUND", "activity %s not found", id)
}

func FlowNotFound(id string) *Error {
	return NotFound("FLOW_NOT_FOUND", "activity flow %s not found", id)
}

func SubjectNotFound(id string) *Error {
	return NotFound("SUBJECT_NOT_FOUND", "subject %s not found", id)
}

func EventNotFound(id string) *Error {
	return NotFound("EVENT_NOT_FOUND", "event %s not found", id)
}

func AnswerNotFound(id string) *Error {
	return NotFound("ANSWER_NOT_FOUND", "answer %s not found", id)
}

func ArbitraryAppletNotFound(id string) *Error {
	return NotFound("ARBITRARY_APPLET_NOT_FOUND", "applet %s not found in its workspace database", id)
}

// AccessDenied errors.
func RoleRequired(appletID string, roles ...string) *Error {
	return AccessDenied("ACCESS_DENIED", "user has none of roles %v in applet %s", roles, appletID)
}

func ReviewerSubjectDenied(subjectID string) *Error {
	return AccessDenied("REVIEWER_SUBJECT_DENIED", "reviewer is not assigned to subject %s", subjectID)
}

func TransferOwnershipDenied(appletID string) *Error {
	return AccessDenied("TRANSFER_OWNERSHIP_DENIED", "only the owner can transfer applet %s", appletID)
}

// Validation errors.
func InvalidConditionalLogic(itemName, reason string) *Error {
	return Validation("INVALID_CONDITIONAL_LOGIC", "invalid conditional logic on item %q: %s", itemName, reason)
}

func InvalidScoreItem(itemName, reason string) *Error {
	return Validation("INVALID_SCORE_ITEM", "invalid score/report item %q: %s", itemName, reason)
}

func InvalidSubscaleItem(itemName, reason string) *Error {
	return Validation("INVALID_SUBSCALE_ITEM", "invalid subscale item %q: %s", itemName, reason)
}

func InvalidItem(itemName, reason string) *Error {
	return Validation("INVALID_ITEM", "invalid item %q: %s", itemName, reason)
}

func DuplicateActivityKey(key string) *Error {
	return Validation("DUPLICATE_ACTIVITY_KEY", "activity or flow key %s is used more than once", key)
}

func DuplicateItemName(activity, item string) *Error {
	return Validation("DUPLICATE_ITEM_NAME", "item name %q is used more than once in activity %q", item, activity)
}

func InvalidPeriodicity(reason string) *Error {
	return Validation("INVALID_PERIODICITY", "invalid periodicity: %s", reason)
}

func NotificationOutsideWindow(reason string) *Error {
	return Validation("NOTIFICATION_OUTSIDE_WINDOW", "notification outside event window: %s", reason)
}

func DuplicateSecretUserID(secretID string) *Error {
	return Validation("DUPLICATE_SECRET_USER_ID", "secret user id %q already exists in this applet", secretID)
}

// Conflict errors.
func DuplicateSubmission(submitID string) *Error {
	return Conflict("DUPLICATE_SUBMISSION", "submission %s was already received", submitID)
}

func DuplicateInvitation(email string) *Error {
	return Conflict("DUPLICATE_INVITATION", "an invitation for %s is already pending", email)
}

func ChangeOwnAccess() *Error {
	return Conflict("CHANGE_OWN_ACCESS", "users cannot change their own access")
}

// Dependency errors.
func ArbitraryUnreachable(err error) *Error {
	return Dependency("ARBITRARY_DB_UNREACHABLE", err, "workspace database is unreachable")
}

func EncryptionFailure(err error) *Error {
	return Dependency("ENCRYPTION_ERROR", err, "encryption provider error")
}
