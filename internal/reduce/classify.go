package reduce

import (
	"strings"
)

// Type is the annotation class of a feature.
type Type int

const (
	Unknown Type = iota
	Known
	ISTD
)

func (t Type) String() string {
	switch t {
	case ISTD:
		return "iSTD"
	case Known:
		return "known"
	}
	return "unknown"
}

// Classify assigns exactly one type to an annotation name. Internal
// standards are prefixed with "1_"; MS-Dial names features it could not
// annotate "Unknown" or "w/o MS2: ...".
func Classify(name string) Type {
	switch {
	case strings.HasPrefix(name, "1_"):
		return ISTD
	case strings.TrimSpace(name) == "":
		return Unknown
	case !strings.Contains(name, "Unknown") && !strings.Contains(name, "w/o MS2:"):
		return Known
	}
	return Unknown
}

// Group is the sample group of a peak height column.
type Group int

const (
	Sample Group = iota
	Blank
	Biorec
	Pool
)

func (g Group) String() string {
	switch g {
	case Blank:
		return "blank"
	case Biorec:
		return "biorec"
	case Pool:
		return "pool"
	}
	return "sample"
}

// Markers are the substrings that identify non-sample columns.
type Markers struct {
	Blank  string
	Biorec string
	Pool   string
}

// GroupOf assigns a column name to exactly one group. Markers are tested
// in the order blank, biorec, pool; anything else is a study sample.
func (m Markers) GroupOf(column string) Group {
	switch {
	case strings.Contains(column, m.Blank):
		return Blank
	case strings.Contains(column, m.Biorec):
		return Biorec
	case strings.Contains(column, m.Pool):
		return Pool
	}
	return Sample
}

// Groups lists column positions per group, in column order.
type Groups struct {
	Blanks  []int
	Biorecs []int
	Pools   []int
	Samples []int
}

// GroupColumns partitions columns by name. Positions are indices into
// columns offset by first.
func GroupColumns(columns []string, first int, m Markers) Groups {
	var g Groups
	for i, c := range columns {
		pos := first + i
		switch m.GroupOf(c) {
		case Blank:
			g.Blanks = append(g.Blanks, pos)
		case Biorec:
			g.Biorecs = append(g.Biorecs, pos)
		case Pool:
			g.Pools = append(g.Pools, pos)
		default:
			g.Samples = append(g.Samples, pos)
		}
	}
	return g
}
