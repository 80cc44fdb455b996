package form

import (
	"errors"
	"fmt"
)

// ErrorKind classifies controller errors.
type ErrorKind int

const (
	// KindNotFound: a navigation or lookup target does not exist.
	KindNotFound ErrorKind = iota + 1
	// KindPersistence: the store rejected a read or write.
	KindPersistence
	// KindConfig: a field definition table is malformed.
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindPersistence:
		return "persistence failure"
	case KindConfig:
		return "configuration error"
	}
	return "unknown"
}

var (
	// ErrNewRecord is returned by Delete when the current record was never saved.
	ErrNewRecord = errors.New("record has not been saved")
	// ErrFixedRecord is returned by navigation on a subform row, which only
	// ever shows its own record.
	ErrFixedRecord = errors.New("subform rows cannot navigate")
)

type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func configError(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Op: "build form", Message: fmt.Sprintf(format, args...)}
}

func isKind(err error, kind ErrorKind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}

func IsNotFound(err error) bool    { return isKind(err, KindNotFound) }
func IsPersistence(err error) bool { return isKind(err, KindPersistence) }
func IsConfig(err error) bool      { return isKind(err, KindConfig) }
