package install

import (
	"strconv"
	"strings"
)

// CompareSemver compares two dot-separated version strings component by
// component, treating missing or non-numeric components as 0. It returns -1
// if a < b, 0 if equal, 1 if a > b.
func CompareSemver(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av := componentAt(as, i)
		bv := componentAt(bs, i)
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

func componentAt(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
	if err != nil {
		return 0
	}
	return v
}
