package query

import "fmt"

// InvalidQueryError reports a query that cannot be constructed: the
// request's filter text does not parse, or a stored view carries a
// selector that no longer parses. The underlying parser message is
// preserved for the client response.
type InvalidQueryError struct {
	Reason string
	Err    error
}

func (e *InvalidQueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid query: %s: %v", e.Reason, e.Err)
	}
	return "invalid query: " + e.Reason
}

func (e *InvalidQueryError) Unwrap() error { return e.Err }
