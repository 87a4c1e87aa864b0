// poolerr.go - Error taxonomy shared by the controller, the prover and the API.
//
// Every failure that crosses an operation boundary is an *Error carrying a Kind.
// errors.Is matches on Kind, so callers compare against the sentinels below
// regardless of the message attached to a particular failure.

package poolerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	SeedLocked        Kind = "SeedLocked"
	NotFound          Kind = "NotFound"
	DepositNotFound   Kind = "DepositNotFound"
	RefundNotFound    Kind = "RefundNotFound"
	InvalidCommitment Kind = "InvalidCommitment"
	NoStagedRequest   Kind = "NoStagedRequest"
	ProverUnavailable Kind = "ProverUnavailable"
	Upstream          Kind = "UpstreamError"
	Network           Kind = "NetworkError"
	ProofFailed       Kind = "ProofFailed"
	StagingBusy       Kind = "StagingBusy"
	ApprovalExpired   Kind = "ApprovalExpired"
	ProofRejected     Kind = "ProofRejected"
	SessionClosed     Kind = "SessionClosed"
	InvalidRequest    Kind = "InvalidRequest"
	Internal          Kind = "Internal"
)

// Error is a classified failure. Code is only set for upstream errors.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Kind == Upstream && e.Code != "" {
		msg = fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	if e.Err != nil {
		if msg == "" {
			return e.Err.Error()
		}
		return msg + ": " + e.Err.Error()
	}
	if msg == "" {
		return string(e.Kind)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrSeedLocked        = &Error{Kind: SeedLocked, Message: "No seed unlocked"}
	ErrNotFound          = &Error{Kind: NotFound, Message: "Not found"}
	ErrDepositNotFound   = &Error{Kind: DepositNotFound, Message: "deposit not found"}
	ErrRefundNotFound    = &Error{Kind: RefundNotFound, Message: "refund not found"}
	ErrInvalidCommitment = &Error{Kind: InvalidCommitment, Message: "invalid commitment"}
	ErrNoStagedRequest   = &Error{Kind: NoStagedRequest, Message: "No request found"}
	ErrProverUnavailable = &Error{Kind: ProverUnavailable, Message: "prover unavailable"}
	ErrUpstream          = &Error{Kind: Upstream}
	ErrNetwork           = &Error{Kind: Network, Message: "Network error or backend unavailable."}
	ErrProofFailed       = &Error{Kind: ProofFailed}
	ErrStagingBusy       = &Error{Kind: StagingBusy, Message: "a proof request is already awaiting approval"}
	ErrApprovalExpired   = &Error{Kind: ApprovalExpired, Message: "proof request expired before approval"}
	ErrProofRejected     = &Error{Kind: ProofRejected, Message: "proof request rejected"}
	ErrSessionClosed     = &Error{Kind: SessionClosed, Message: "session closed"}
	ErrInvalidRequest    = &Error{Kind: InvalidRequest, Message: "invalid request"}
)

// New returns an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind, keeping it in the chain.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// UpstreamError builds the "[code] message" failure reported by the remote pool service.
func UpstreamError(code, message string) *Error {
	return &Error{Kind: Upstream, Code: code, Message: message}
}

// ProofFailure builds a ProofFailed error with the given reason.
func ProofFailure(reason string) *Error {
	return &Error{Kind: ProofFailed, Message: reason}
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Internal
}
