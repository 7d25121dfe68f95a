// Package timing estimates when each line of a dialogue is spoken.
//
// Speech alignment is not available, so every line is given a share of the
// total duration proportional to its length plus a fixed bias. The bias keeps
// very short lines ("Sí.") from collapsing to nothing.
package timing

import (
	"unicode/utf8"

	"github.com/dgnsrekt/lingoplay/internal/script"
)

// LineWeightBias is added to every line's character count.
const LineWeightBias = 10

// Range is the half-open interval [Start, End) in seconds during which a
// line is considered active.
type Range struct {
	LineID int
	Start  float64
	End    float64
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t float64) bool {
	return t >= r.Start && t < r.End
}

// Table partitions [0, total) into consecutive ranges, one per line in
// speaking order.
type Table []Range

// Weight returns the timing weight of a line's text.
func Weight(text string) int {
	return utf8.RuneCountInString(text) + LineWeightBias
}

// ComputeTimings builds the table for lines over total seconds. The last
// range always ends exactly at total.
func ComputeTimings(lines []script.Line, total float64) Table {
	if len(lines) == 0 {
		return Table{}
	}
	if total < 0 {
		total = 0
	}

	sum := 0
	for _, l := range lines {
		sum += Weight(l.Text)
	}

	table := make(Table, len(lines))
	cursor := 0.0
	for i, l := range lines {
		allotted := total * float64(Weight(l.Text)) / float64(sum)
		end := cursor + allotted
		if i == len(lines)-1 {
			end = total
		}
		table[i] = Range{LineID: l.ID, Start: cursor, End: end}
		cursor = end
	}

	return table
}

// LineAt returns the id of the line whose range contains t.
func (tb Table) LineAt(t float64) (int, bool) {
	for _, r := range tb {
		if r.Contains(t) {
			return r.LineID, true
		}
	}
	return 0, false
}

// Range returns the range for a line id.
func (tb Table) Range(lineID int) (Range, bool) {
	for _, r := range tb {
		if r.LineID == lineID {
			return r, true
		}
	}
	return Range{}, false
}

// Total returns the end of the last range.
func (tb Table) Total() float64 {
	if len(tb) == 0 {
		return 0
	}
	return tb[len(tb)-1].End
}
