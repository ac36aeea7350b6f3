package types

import (
	"errors"
	"fmt"
)

// Kind classifies every error the core hands to its callers. The set is
// closed; callers switch on KindOf(err) and handle each case.
type Kind uint8

const (
	// KindUnknown is reported for errors that did not originate in the core.
	KindUnknown Kind = iota
	// KindStore means local persistence failed.
	KindStore
	// KindNetwork means the request never produced a response.
	KindNetwork
	// KindUnauthorized means authentication failed even after a token refresh.
	KindUnauthorized
	// KindServer means a response arrived but was not a success.
	KindServer
	// KindParsing means a response body did not have the expected shape.
	KindParsing
	// KindDuplicateUser means registration hit an existing account.
	KindDuplicateUser
	// KindIO means a local file system operation failed.
	KindIO
	// KindLoading means a task could not be made ready for transcription.
	KindLoading
)

func (k Kind) String() string {
	switch k {
	case KindStore:
		return "store error"
	case KindNetwork:
		return "network error"
	case KindUnauthorized:
		return "unauthorized"
	case KindServer:
		return "server error"
	case KindParsing:
		return "parsing error"
	case KindDuplicateUser:
		return "duplicate user"
	case KindIO:
		return "io error"
	case KindLoading:
		return "loading error"
	default:
		return "unknown error"
	}
}

// Error is the tagged error carried across package boundaries.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "remote.SubmitTask"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the Err* sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrStore         = &Error{Kind: KindStore}
	ErrNetwork       = &Error{Kind: KindNetwork}
	ErrUnauthorized  = &Error{Kind: KindUnauthorized}
	ErrServer        = &Error{Kind: KindServer}
	ErrParsing       = &Error{Kind: KindParsing}
	ErrDuplicateUser = &Error{Kind: KindDuplicateUser}
	ErrIO            = &Error{Kind: KindIO}
	ErrLoading       = &Error{Kind: KindLoading}
)

// E builds a tagged error. A nil cause is allowed.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost tagged error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transport failure worth retrying.
func IsRetryable(err error) bool {
	return KindOf(err) == KindNetwork
}
