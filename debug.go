// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"io"
	"math"

	"github.com/524D/msdialtools/internal/reduce"
)

// debugLogFeatures returns a trace function that prints the statistics and
// the threshold decision of feature rows lo..hi (0 based, inclusive).
func debugLogFeatures(w io.Writer, lo, hi int, th reduce.Thresholds) func(int, reduce.Feature) {
	return func(i int, f reduce.Feature) {
		if i < lo || i > hi {
			return
		}
		s := f.Summary
		fmt.Fprintf(w, "Feature:%d rt:%f type:%s name:%q\n", i, f.RT, f.Type, f.Annotation.Name)
		fmt.Fprintf(w, "  blank avg:%f sample avg:%f max:%f stdev:%f cv:%0.2f%%\n",
			s.BlankAverage, s.SampleAverage, s.SampleMax, s.SampleStdev, s.SampleCV)
		fmt.Fprintf(w, "  pool avg:%f stdev:%f cv:%0.2f%%\n", s.PoolAverage, s.PoolStdev, s.PoolCV)

		var fold, floor, value float64
		switch f.Type {
		case reduce.ISTD:
			fmt.Fprintf(w, "  fold:%s kept: + (internal standard)\n", foldString(s.FoldChange))
			return
		case reduce.Known:
			fold, floor, value = th.KnownFold, th.KnownSampleMax, s.SampleMax
		default:
			fold, floor, value = th.UnknownFold, th.UnknownSampleAverage, s.SampleAverage
		}
		kept := `-`
		if th.Keep(f.Type, s) {
			kept = `+`
		}
		fmt.Fprintf(w, "  fold:%s(>%g) intensity:%f(>%g) kept: %s\n",
			foldString(s.FoldChange), fold, value, floor, kept)
	}
}

// Blank averages of 0 give an infinite fold change
func foldString(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%f", v)
}
