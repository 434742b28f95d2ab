package decompiler

import (
	"fmt"
	"io"
	"math"
)

// Progress is one progress notification from a backend.
type Progress struct {
	Title          string
	UnitsCompleted int
	TotalUnits     int
}

// Percent returns the completed fraction in [0, 1].
func (p Progress) Percent() float64 {
	if p.TotalUnits <= 0 {
		return 0
	}
	f := float64(p.UnitsCompleted) / float64(p.TotalUnits)
	return math.Min(math.Max(f, 0), 1)
}

// ProgressState is what the console reporter remembers between calls.
type ProgressState struct {
	Phase       string
	LastPercent float64
}

// progressThreshold is the minimum change that gets a new line.
const progressThreshold = 0.01

// ReportProgress prints p to w. A new phase gets a heading and a 0% line;
// afterwards a line is printed only when the percentage moved by more
// than one point since the last printed value.
func ReportProgress(w io.Writer, st *ProgressState, p Progress) {
	if p.Title != st.Phase {
		st.Phase = p.Title
		st.LastPercent = 0
		fmt.Fprintln(w)
		fmt.Fprintf(w, "-- %s --\n", p.Title)
		fmt.Fprintln(w, "0%  Completed")
	}

	percent := p.Percent()
	if math.Abs(st.LastPercent-percent) > progressThreshold {
		fmt.Fprintf(w, "%-3s Completed\n", fmt.Sprintf("%.0f%%", percent*100))
		st.LastPercent = percent
	}
}
