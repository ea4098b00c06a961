package reminder

import (
	"testing"
	"time"
)

func TestParseOffset(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"PT1H", time.Hour, false},
		{"PT24H", 24 * time.Hour, false},
		{"P1D", 24 * time.Hour, false},
		{"P3D", 3 * 24 * time.Hour, false},
		{"P1W", 7 * 24 * time.Hour, false},
		{"P2W", 14 * 24 * time.Hour, false},
		{"PT0H", 0, true},
		{"P0D", 0, true},
		{"P1Y", 0, true},
		{"PT1H30M", 0, true},
		{"1D", 0, true},
		{"", 0, true},
		{"P-1D", 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseOffset(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseOffset(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
