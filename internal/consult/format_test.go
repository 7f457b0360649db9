package consult

import "testing"

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{125, "2分5秒"},
		{59, "0分59秒"},
		{60, "1分0秒"},
		{0, "0分0秒"},
		{86.7, "1分26秒"},
		{-3, "0分0秒"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.seconds); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
