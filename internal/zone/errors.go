package zone

import (
	"errors"
	"fmt"
)

// Error kinds returned by the parser. Every parse failure is a *ParseError
// that unwraps to one of these, so callers can check them with errors.Is.
var (
	// ErrDirective is returned for an unknown directive keyword.
	ErrDirective = errors.New("invalid directive")

	// ErrContext is returned when a directive is used outside its required context.
	ErrContext = errors.New("wrong context")

	// ErrMissingParent is returned when no network or host is open.
	ErrMissingParent = errors.New("missing parent")

	// ErrNamingConflict is returned when a name or alias is already claimed.
	ErrNamingConflict = errors.New("naming conflict")

	// ErrMembership is returned when a host address is outside its network.
	ErrMembership = errors.New("address outside network")

	// ErrDuplicate is returned when a network, host or set-once field is declared twice.
	ErrDuplicate = errors.New("duplicate declaration")

	// ErrOrdering is returned when mac, comment or alias comes before name.
	ErrOrdering = errors.New("field before name")

	// ErrArgument is returned for a missing, extra or malformed argument.
	ErrArgument = errors.New("invalid argument")
)

// ParseError locates a parse failure in its source.
type ParseError struct {
	Source    string // file name, empty for anonymous line sources
	Line      int
	Directive string
	Kind      error
	Msg       string
}

func newError(kind error, format string, args ...any) *ParseError {
	return &ParseError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *ParseError) Error() string {
	pos := fmt.Sprintf("line %d", e.Line)
	if e.Source != "" {
		pos = fmt.Sprintf("%s:%d", e.Source, e.Line)
	}
	return fmt.Sprintf("%s: %s: %s", pos, e.Directive, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Kind }
