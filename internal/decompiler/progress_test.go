package decompiler

import (
	"bytes"
	"testing"
)

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		p    Progress
		want float64
	}{
		{Progress{UnitsCompleted: 1, TotalUnits: 4}, 0.25},
		{Progress{UnitsCompleted: 0, TotalUnits: 0}, 0},
		{Progress{UnitsCompleted: 5, TotalUnits: 4}, 1},
		{Progress{UnitsCompleted: -1, TotalUnits: 4}, 0},
	}
	for _, tt := range tests {
		if got := tt.p.Percent(); got != tt.want {
			t.Errorf("%+v.Percent() = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestReportProgress(t *testing.T) {
	var buf bytes.Buffer
	var st ProgressState

	steps := []Progress{
		{Title: "Decompiling types", UnitsCompleted: 0, TotalUnits: 200},
		{Title: "Decompiling types", UnitsCompleted: 1, TotalUnits: 200}, // 0.5%: below threshold
		{Title: "Decompiling types", UnitsCompleted: 50, TotalUnits: 200},
		{Title: "Decompiling types", UnitsCompleted: 51, TotalUnits: 200}, // 25.5%: below threshold
		{Title: "Decompiling types", UnitsCompleted: 200, TotalUnits: 200},
		{Title: "Writing project", UnitsCompleted: 1, TotalUnits: 1},
	}
	for _, p := range steps {
		ReportProgress(&buf, &st, p)
	}

	want := "\n-- Decompiling types --\n" +
		"0%  Completed\n" +
		"25% Completed\n" +
		"100% Completed\n" +
		"\n-- Writing project --\n" +
		"0%  Completed\n" +
		"100% Completed\n"
	if got := buf.String(); got != want {
		t.Errorf("output:\n%q\nwant:\n%q", got, want)
	}
	if st.Phase != "Writing project" || st.LastPercent != 1 {
		t.Errorf("state = %+v", st)
	}
}

func TestReportProgressPhaseResetsPercent(t *testing.T) {
	var buf bytes.Buffer
	st := ProgressState{Phase: "A", LastPercent: 0.5}

	ReportProgress(&buf, &st, Progress{Title: "B", UnitsCompleted: 1, TotalUnits: 2})
	want := "\n-- B --\n0%  Completed\n50% Completed\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}
