// Package sharederr implements the repository-wide error taxonomy: a small
// set of typed, wrappable errors used instead of ad-hoc fmt.Errorf calls so
// callers can branch on error kind with errors.As/errors.Is.
package sharederr

import (
	"errors"
	"fmt"
	"strings"
)

// OperationError describes a failed operation, optionally naming the
// component and resource involved and the underlying cause.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString("failed to ")
	b.WriteString(e.Operation)
	if e.Component != "" {
		b.WriteString(", component: ")
		b.WriteString(e.Component)
	}
	if e.Resource != "" {
		b.WriteString(", resource: ")
		b.WriteString(e.Resource)
	}
	if e.Cause != nil {
		b.WriteString(", cause: ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds an OperationError with just an action and optional cause.
func FailedTo(action string, cause error) error {
	return &OperationError{Operation: action, Cause: cause}
}

// FailedToWithDetails builds an OperationError naming component and resource.
func FailedToWithDetails(action, component, resource string, cause error) error {
	return &OperationError{Operation: action, Component: component, Resource: resource, Cause: cause}
}

// Wrapf prefixes err with a formatted message, stdlib-wrapping style.
// Returns nil when err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", err)
}

// DatabaseError builds an OperationError for the ReferenceStore component.
func DatabaseError(action string, cause error) error {
	return FailedToWithDetails(action, "database", "", cause)
}

// NetworkError builds an OperationError for the network component, naming
// the endpoint as the resource.
func NetworkError(action, endpoint string, cause error) error {
	return FailedToWithDetails(action, "network", endpoint, cause)
}

// ValidationError reports that a field failed validation.
func ValidationError(field, reason string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, reason)
}

// ConfigurationError reports a bad configuration setting.
func ConfigurationError(setting, reason string) error {
	return fmt.Errorf("configuration error for setting %s: %s", setting, reason)
}

// TimeoutError reports that an action timed out after the given duration.
func TimeoutError(action, after string) error {
	return fmt.Errorf("timeout while %s after %s", action, after)
}

// AuthenticationError reports an authentication failure.
func AuthenticationError(reason string) error {
	return fmt.Errorf("authentication failed: %s", reason)
}

// AuthorizationError reports that the actor lacked permission for an action
// on a resource.
func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

// ParseError reports a parse failure for a named resource in a given format.
func ParseError(resource, format string, cause error) error {
	return FailedToWithDetails(fmt.Sprintf("parse %s as %s", resource, format), "parser", resource, cause)
}

// IsRetryable reports whether err looks like a transient failure worth
// retrying at the transport layer. It is a best-effort text classifier used
// where the underlying client does not expose a typed retryable error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection refused", "connection reset", "unavailable", "temporarily unavailable", "eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Chain joins non-nil errors into one error. Returns nil if all are nil,
// the single error unwrapped if only one is non-nil.
func Chain(errs ...error) error {
	var nonNil []error
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		parts := make([]string, len(nonNil))
		for i, e := range nonNil {
			parts[i] = e.Error()
		}
		return fmt.Errorf("multiple errors: %s", strings.Join(parts, "; "))
	}
}

// Kind classifies errors per spec §7. Kept separate from OperationError so
// any error type (not just *OperationError) can declare a kind.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindDuplicate              Kind = "duplicate"
	KindInvalidInput           Kind = "invalid_input"
	KindDuplicateEnhancement   Kind = "duplicate_enhancement"
	KindInvalidParentEnhancement Kind = "invalid_parent_enhancement"
	KindMalformedIndexDocument Kind = "malformed_index_document"
	KindStoreQueryError        Kind = "store_query_error"
	KindBlobStoreError         Kind = "blob_store_error"
	KindTaskError              Kind = "task_error"
	KindUnitOfWorkError        Kind = "unit_of_work_error"
)

// Kinded is implemented by errors that declare a taxonomy Kind.
type Kinded interface {
	error
	Kind() Kind
}

// kindedError is the concrete Kinded implementation returned by the New*
// constructors below.
type kindedError struct {
	kind    Kind
	message string
	cause   error
}

func (e *kindedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *kindedError) Unwrap() error { return e.cause }
func (e *kindedError) Kind() Kind    { return e.kind }

func NewNotFound(resource, id string) error {
	return &kindedError{kind: KindNotFound, message: fmt.Sprintf("%s %s not found", resource, id)}
}

func NewDuplicate(constraint string, cause error) error {
	return &kindedError{kind: KindDuplicate, message: fmt.Sprintf("uniqueness constraint violated: %s", constraint), cause: cause}
}

func NewInvalidInput(reason string) error {
	return &kindedError{kind: KindInvalidInput, message: reason}
}

func NewDuplicateEnhancement(referenceID string) error {
	return &kindedError{kind: KindDuplicateEnhancement, message: fmt.Sprintf("enhancement content already exists on reference %s", referenceID)}
}

func NewInvalidParentEnhancement(parentID string) error {
	return &kindedError{kind: KindInvalidParentEnhancement, message: fmt.Sprintf("parent enhancement %s is outside the reference's duplicate tree", parentID)}
}

func NewMalformedIndexDocument(reason string) error {
	return &kindedError{kind: KindMalformedIndexDocument, message: reason}
}

func NewStoreQueryError(cause error) error {
	return &kindedError{kind: KindStoreQueryError, message: "invalid query", cause: cause}
}

func NewBlobStoreError(action string, cause error) error {
	return &kindedError{kind: KindBlobStoreError, message: fmt.Sprintf("blob store %s failed", action), cause: cause}
}

func NewTaskError(taskName, reason string) error {
	return &kindedError{kind: KindTaskError, message: fmt.Sprintf("task %s: %s", taskName, reason)}
}

func NewUnitOfWorkError(reason string) error {
	return &kindedError{kind: KindUnitOfWorkError, message: reason}
}

// KindOf extracts the Kind of err, walking Unwrap chains, or "" if none of
// the chain declares one.
func KindOf(err error) Kind {
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}
