package timefmt

import "testing"

func TestFormat(t *testing.T) {
	cases := []struct {
		ticks    int64
		tickrate float64
		want     string
	}{
		{0, 64, "0:00.00"},
		{6400, 64, "1:40.00"},
		{6272, 64, "1:38.00"},
		{64, 64, "0:01.00"},
		{96, 64, "0:01.50"},
		{64 * 3600, 64, "1:00:00.00"},
		{64*3600 + 64*61, 64, "1:01:01.00"},
	}
	for _, c := range cases {
		if got := Format(c.ticks, c.tickrate); got != c.want {
			t.Fatalf("Format(%d, %v) = %q, want %q", c.ticks, c.tickrate, got, c.want)
		}
	}
}

func TestFormatRounding(t *testing.T) {
	// 99.6 centiseconds must carry into the next second, not print ".100".
	if got := FormatSeconds(1.996); got != "0:02.00" {
		t.Fatalf("FormatSeconds(1.996) = %q, want 0:02.00", got)
	}
}

func TestDiff(t *testing.T) {
	if got := Diff(6272, 6400, 64); got != "-0:02.00" {
		t.Fatalf("Diff improvement = %q", got)
	}
	if got := Diff(6400, 6272, 64); got != "+0:02.00" {
		t.Fatalf("Diff regression = %q", got)
	}
}
