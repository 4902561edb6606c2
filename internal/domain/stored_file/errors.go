package stored_file

import (
	"errors"
	"fmt"
)

// ErrorKind tags an error so callers can branch on the failure class
// without matching messages.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindValidation: bad input, terminal for the upload, nothing persisted.
	KindValidation
	// KindRejected: malware or disallowed content found after upload.
	KindRejected
	// KindInfrastructure: scan daemon, filesystem or database failure. Retryable.
	KindInfrastructure
	// KindNotFound: unknown, deleted or not yet servable file.
	KindNotFound
	// KindConflict: optimistic-lock or lifecycle conflict. Retryable.
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRejected:
		return "rejected"
	case KindInfrastructure:
		return "infrastructure"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

var (
	ErrNotFound          = errors.New("stored file not found")
	ErrVersionConflict   = errors.New("stored file version conflict")
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrEmptyFileName     = errors.New("file name is required")
	ErrFileNameTooLong   = errors.New("file name is too long")
	ErrEmptyContent      = errors.New("content is empty")
	ErrContentTooLarge   = errors.New("content exceeds size limit")
	ErrUnknownObjectType = errors.New("unknown object type")
	ErrMimeNotAllowed    = errors.New("content type not allowed")
	ErrExtensionMismatch = errors.New("file extension does not match content")
)

type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("stored file %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind ErrorKind) bool { return err != nil && KindOf(err) == kind }

// IsRetryable reports whether a redelivery of the same work may succeed.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindInfrastructure || k == KindConflict
}
