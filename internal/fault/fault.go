// Package fault is the shared failure taxonomy. Nothing in the coordinator
// throws across the callback boundary; handlers convert every failure into
// one of these kinds and route it to the observability sink.
package fault

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindRecoverableProtocolAnomaly covers stale or duplicate feed updates:
	// discarded with a warning, processing continues.
	KindRecoverableProtocolAnomaly Kind = "recoverable_protocol_anomaly"
	// KindConfigurationRejection covers risk rules denying an entry: reported
	// to the caller, not a fault of the system.
	KindConfigurationRejection Kind = "configuration_rejection"
	// KindPartialBracketFailure covers a bracket leg that failed to submit:
	// retried once, then escalated.
	KindPartialBracketFailure Kind = "partial_bracket_failure"
	// KindLedgerInconsistency covers updates for order ids the ledger has
	// never seen: logged and dropped, the ledger never fabricates state.
	KindLedgerInconsistency Kind = "unrecoverable_ledger_inconsistency"
)

type Error struct {
	kind Kind
	msg  string
	err  error
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Kind() Kind    { return e.kind }
func (e *Error) Unwrap() error { return e.err }

// KindOf extracts the taxonomy kind from an error chain; empty when the
// error is not classified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return ""
}
