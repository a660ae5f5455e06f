// Package errs defines the error taxonomy every component dispatches on
// via errors.As, matching the teacher's fmt.Errorf("...: %w", err) wrapping
// idiom rather than reaching for a third-party errors package — no repo in
// the retrieval pack imports one for plain typed errors.
package errs

import "fmt"

// ConfigError: missing identity, malformed schedule inputs, invalid COA.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("config: %s", e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NotFoundError: missing live files, missing snapshot version.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Resource)
}

// ValidationError: structural failures (unbalanced journal, duplicate
// codes, invalid HH:MM).
type ValidationError struct {
	Subject string
	Msg     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Subject, e.Msg)
}

// RejectReason enumerates compliance rejection causes exactly as named in
// the spec's error taxonomy.
type RejectReason string

const (
	RejectInvalidSide           RejectReason = "invalid_side"
	RejectInvalidTotalValue     RejectReason = "invalid_total_value"
	RejectZeroTotalValue        RejectReason = "zero_total_value_not_allowed"
	RejectAmountExceedsPolicy   RejectReason = "amount_exceeds_policy_limit"
	RejectMissingTimestamp      RejectReason = "missing_timestamp"
	RejectTimestampTooOld       RejectReason = "timestamp_too_old"
	RejectTimestampInFuture     RejectReason = "timestamp_in_future"
	RejectUnmappedOrMissingAcct RejectReason = "unmapped_or_missing_account"
)

// ComplianceReject: per-entry reject, never fatal — the entry is audited
// and dropped, not propagated as a fatal error.
type ComplianceReject struct {
	Reason RejectReason
}

func (e *ComplianceReject) Error() string {
	return fmt.Sprintf("compliance reject: %s", e.Reason)
}

// InsufficientInventory: lots engine cannot satisfy a close.
type InsufficientInventory struct {
	Symbol   string
	Side     string
	Requested string
	Available string
}

func (e *InsufficientInventory) Error() string {
	return fmt.Sprintf("insufficient inventory to close %s %s %s (have %s)", e.Requested, e.Side, e.Symbol, e.Available)
}

// TransientIO: file lock contention, broker HTTP 5xx/timeout; callers
// should retry with backoff.
type TransientIO struct {
	Op  string
	Err error
}

func (e *TransientIO) Error() string {
	return fmt.Sprintf("transient io: %s: %v", e.Op, e.Err)
}

func (e *TransientIO) Unwrap() error { return e.Err }

// Fatal: DB corruption, key decryption failure, mapping snapshot write
// failure after retry. Lifecycle should transition to error and the
// supervisor should abort without self-restart.
type Fatal struct {
	Msg string
	Err error
}

func (e *Fatal) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("fatal: %s", e.Msg)
}

func (e *Fatal) Unwrap() error { return e.Err }
