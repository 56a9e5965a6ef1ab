package install_test

import (
	"testing"

	"github.com/Schredly/packgraph/internal/install"
)

func TestCompareSemver(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.2.0", "1.1.9", 1},
		{"2.0.0", "1.9.9", 1},
		{"1.0", "1.0.0", 0},
		{"1", "1.0.0", 0},
		{"1.0.1", "1.0", 1},
		{"1.10.0", "1.9.0", 1},
		{"", "0.0.0", 0},
		{"1.x.0", "1.0.0", 0},
	}
	for _, tc := range cases {
		if got := install.CompareSemver(tc.a, tc.b); got != tc.want {
			t.Errorf("CompareSemver(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
