// Package querykey derives stable cache keys from query descriptions.
package querykey

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/feathergis/queryfront/internal/query"
)

// Fingerprint returns the response-cache key for one executed query:
// a sanitized collection prefix (keeps keys greppable in Redis) plus
// an xxhash of the full canonical form. The format token participates
// because the cached bytes depend on it.
func Fingerprint(qd query.QueryDescription, format string) string {
	canon := canonical(qd, format)
	return fmt.Sprintf("resp:%s:%016x", sanitize(qd.Metadata.Database+"/"+qd.Metadata.Collection), xxhash.Sum64String(canon))
}

func canonical(qd query.QueryDescription, format string) string {
	var b strings.Builder
	b.WriteString(qd.Metadata.Database)
	b.WriteByte('/')
	b.WriteString(qd.Metadata.Collection)

	if env, ok := qd.Envelope.Get(); ok {
		fmt.Fprintf(&b, "|bbox=%s", env.String())
	}
	if sel, ok := qd.Selector.Get(); ok {
		b.WriteString("|q=")
		b.WriteString(sel.CQL())
	}
	if wkt, ok := qd.IntersectionWKT.Get(); ok {
		b.WriteString("|geom=")
		b.WriteString(wkt)
	}
	if len(qd.Projection) > 0 {
		b.WriteString("|proj=")
		b.WriteString(strings.Join(qd.Projection, ","))
	}
	for _, s := range qd.Sort {
		fmt.Fprintf(&b, "|sort=%s %s", s.Field, s.Dir)
	}
	fmt.Fprintf(&b, "|start=%d", qd.Start)
	if limit, ok := qd.Limit.Get(); ok {
		fmt.Fprintf(&b, "|limit=%d", limit)
	}
	if format != "" {
		b.WriteString("|fmt=")
		b.WriteString(strings.ToLower(format))
	}
	return b.String()
}

// sanitize keeps keys within a safe alphabet: alphanumerics and
// :/_- survive, whitespace becomes '_', anything else '-', runs
// collapse.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			out = '_'
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == ':', r == '/', r == '_', r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}
