// Package params implements typed extraction of query-string parameters.
// A Param binds a parameter name to a conversion; extraction over a
// url.Values distinguishes "absent" (None, no error) from "present but
// malformed" (MalformedError naming the parameter).
package params

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/mo"
)

// MalformedError reports a parameter whose raw text could not be
// converted to its target type.
type MalformedError struct {
	Param string
	Err   error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed parameter %q: %v", e.Param, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Values is the read-only multi-valued parameter map handed in by the
// HTTP layer. url.Values satisfies it.
type Values map[string][]string

// first returns the first raw value for name, or None when the
// parameter is absent entirely.
func (v Values) first(name string) mo.Option[string] {
	raw, ok := v[name]
	if !ok || len(raw) == 0 {
		return mo.None[string]()
	}
	return mo.Some(raw[0])
}

// Param binds a name to a conversion from raw text to T. One instance
// per recognized parameter, stateless and shared across requests.
type Param[T any] struct {
	Name    string
	Convert func(raw string) (T, error)
}

// Extract looks up the parameter and converts its first value. Absence
// is None with a nil error; a conversion failure is a *MalformedError
// and never silently substitutes a default.
func (p Param[T]) Extract(values Values) (mo.Option[T], error) {
	raw, ok := values.first(p.Name).Get()
	if !ok {
		return mo.None[T](), nil
	}
	v, err := p.Convert(raw)
	if err != nil {
		return mo.None[T](), &MalformedError{Param: p.Name, Err: err}
	}
	return mo.Some(v), nil
}

// String binds a parameter converted to its trimmed text. An empty
// value is rejected: "present but empty" is a client mistake, not an
// absent parameter.
func String(name string) Param[string] {
	return Param[string]{Name: name, Convert: nonEmpty}
}

// Raw binds a parameter taken verbatim after trimming; conversion
// never fails. Used for parameters with lenient semantics, where even
// garbage input must not reject the request.
func Raw(name string) Param[string] {
	return Param[string]{Name: name, Convert: func(raw string) (string, error) {
		return strings.TrimSpace(raw), nil
	}}
}

// Int binds an integer parameter. Unparseable text is a hard error,
// unlike the lenient bbox handling.
func Int(name string) Param[int] {
	return Param[int]{Name: name, Convert: func(raw string) (int, error) {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %q", raw)
		}
		return n, nil
	}}
}

// List binds a comma-separated list parameter. The parameter being
// present but empty is an error; absent is fine.
func List(name string) Param[[]string] {
	return Param[[]string]{Name: name, Convert: func(raw string) ([]string, error) {
		if strings.TrimSpace(raw) == "" {
			return nil, errors.New("empty parameter")
		}
		items := lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
			return strings.TrimSpace(s)
		})
		return items, nil
	}}
}

func nonEmpty(raw string) (string, error) {
	t := strings.TrimSpace(raw)
	if t == "" {
		return "", errors.New("empty parameter")
	}
	return t, nil
}
