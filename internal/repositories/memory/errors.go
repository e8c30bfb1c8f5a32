package memory

import "fmt"

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindConflict
)

// Error implements repositories.RepositoryError for the in-memory stores.
type Error struct {
	op   string
	msg  string
	kind errorKind
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.op, e.msg)
}

func (e *Error) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, what string) error {
	return &Error{op: op, msg: what + " not found", kind: kindNotFound}
}

func conflict(op, what string) error {
	return &Error{op: op, msg: what, kind: kindConflict}
}
