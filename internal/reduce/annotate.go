package reduce

import (
	"strings"
)

// Annotation is the name, adduct and InChIKey of a feature.
type Annotation struct {
	Name     string
	Adduct   string
	InChIKey string
}

// Tidy splits library names of the form "name[adduct_inchikey" that come
// from an mz/rt reference list. The adduct and InChIKey reported by
// MS-Dial are used when the name does not carry them. A trailing "_" and a
// trailing "; " left over from the split are removed from the name.
func Tidy(a Annotation) Annotation {
	out := a
	name, rest, bracket := strings.Cut(a.Name, "[")
	if bracket {
		species, inchikey, hasKey := strings.Cut(rest, "_")
		out.Adduct = "[" + species
		if hasKey {
			out.InChIKey = inchikey
		}
	}
	name = strings.TrimSuffix(name, "_")
	if n := len(name); n >= 2 && name[n-2] == ';' {
		name = name[:n-2]
	}
	out.Name = name
	return out
}
