package types

import "time"

// Project is the scoping root owning agents, epics, documents, services.
type Project struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	SharedPath       string    `json:"shared_path"`
	InstructionsPath string    `json:"instructions_path"`
	DocsPath         string    `json:"docs_path"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ErrorKind tags a coordinator error so transport adapters can map it to
// a status code without depending on any particular transport package.
type ErrorKind string

const (
	ErrNotFound  ErrorKind = "not-found"
	ErrConflict  ErrorKind = "conflict"
	ErrForbidden ErrorKind = "forbidden"
	ErrInvalid   ErrorKind = "invalid"
	ErrTransient ErrorKind = "transient"
)

// Error is the tagged error returned at every core operation boundary.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == kind
}
