package query

import (
	"strings"

	"github.com/samber/lo"
)

// Direction of one sort key.
type Direction uint8

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// ParseDirection normalizes a direction token. Anything that is not
// ASC or DESC (case-insensitive) falls back to ASC.
func ParseDirection(token string) Direction {
	if strings.EqualFold(strings.TrimSpace(token), "DESC") {
		return Desc
	}
	return Asc
}

// SortField pairs one field name with its direction.
type SortField struct {
	Field string
	Dir   Direction
}

// SortSpec is the ordered sort specification, one entry per requested
// sort field, in the order the fields were supplied.
type SortSpec []SortField

// BuildSortSpec reconciles independently supplied field and direction
// lists positionally: the Nth field takes the Nth direction. Excess
// directions are discarded (no field to pair them with); missing
// directions pad with ASC. The result always has len(fields) entries.
func BuildSortSpec(fields, directions []string) SortSpec {
	if len(directions) > len(fields) {
		directions = directions[:len(fields)]
	}
	dirs := lo.Map(directions, func(tok string, _ int) Direction {
		return ParseDirection(tok)
	})
	spec := make(SortSpec, 0, len(fields))
	for i, f := range fields {
		d := Asc
		if i < len(dirs) {
			d = dirs[i]
		}
		spec = append(spec, SortField{Field: f, Dir: d})
	}
	return spec
}
