package standards

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/524D/msdialtools/internal/msdial"
	"github.com/524D/msdialtools/internal/table"
)

// Window is the tolerance within which a feature matches a standard.
type Window struct {
	RT float64 // minutes
	MZ float64
}

// DefaultWindow is ±0.05 min retention time and ±0.005 m/z.
var DefaultWindow = Window{RT: 0.05, MZ: 0.005}

// Match reports whether a feature lies strictly inside the window around
// the standard.
func (w Window) Match(rt, mz float64, s Standard) bool {
	return math.Abs(rt-s.RT) < w.RT && math.Abs(mz-s.MZ) < w.MZ
}

// Feature is the position of one aligned feature.
type Feature struct {
	Row int // index in the export
	RT  float64
	MZ  float64
}

var ErrNotNumeric = errors.New("value is not numeric")

// Features extracts retention time and m/z of every row of an export.
func Features(e *msdial.Export) ([]Feature, error) {
	fs := make([]Feature, len(e.Rows))
	for i := range e.Rows {
		rt, err := table.Float(e.Value(i, msdial.ColRT))
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w: retention time %q", i+1, ErrNotNumeric, e.Value(i, msdial.ColRT))
		}
		mz, err := table.Float(e.Value(i, msdial.ColMZ))
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w: m/z %q", i+1, ErrNotNumeric, e.Value(i, msdial.ColMZ))
		}
		fs[i] = Feature{Row: i, RT: rt, MZ: mz}
	}
	return fs, nil
}

// Presence records which standards of a library were found in one
// dataset. Found and Matches are indexed like the library.
type Presence struct {
	Found   []bool
	Matches []Feature // first matching feature, zero when not found
	Count   int       // number of standards found
}

// Find searches features for every standard of lib. A standard counts at
// most once; of several matching features the first in the export is
// recorded.
func Find(features []Feature, lib Library, w Window) Presence {
	byRT := append([]Feature(nil), features...)
	sort.SliceStable(byRT, func(i, j int) bool { return byRT[i].RT < byRT[j].RT })

	p := Presence{
		Found:   make([]bool, len(lib.Standards)),
		Matches: make([]Feature, len(lib.Standards)),
	}
	for i, s := range lib.Standards {
		// Only features in the retention time window need an m/z check
		lo := sort.Search(len(byRT), func(k int) bool { return byRT[k].RT > s.RT-w.RT })
		for k := lo; k < len(byRT) && byRT[k].RT < s.RT+w.RT; k++ {
			f := byRT[k]
			if !w.Match(f.RT, f.MZ, s) {
				continue
			}
			if !p.Found[i] || f.Row < p.Matches[i].Row {
				p.Matches[i] = f
			}
			p.Found[i] = true
		}
		if p.Found[i] {
			p.Count++
		}
	}
	return p
}
