// Package version compares dotted app versions and derives update requirements.
package version

import (
	"strings"
)

// Compare returns -1, 0 or 1. Segments compare numerically by their leading digits;
// missing segments count as zero, so "2.1" == "2.1.0" and "2.9.0" < "2.10.0".
func Compare(a, b string) int {
	as, bs := split(a), split(b)
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func split(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n := 0
		for _, r := range p {
			if r < '0' || r > '9' {
				break
			}
			n = n*10 + int(r-'0')
		}
		out[i] = n
	}
	return out
}

// Gate holds the published version thresholds and store links.
type Gate struct {
	Latest       string
	MinSupported string
	ForceBelow   string
	DownloadURLs map[string]string // by upper-case platform
}

// Result is the outcome of comparing a client version to the gate.
type Result struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	UpdateRequired  bool
	ForceUpdate     bool
	DownloadURL     string
}

// Check compares current against the gate. Empty thresholds never trigger.
func (p Gate) Check(current, platform string) Result {
	c := Result{
		CurrentVersion: current,
		LatestVersion:  p.Latest,
		DownloadURL:    p.DownloadURLs[strings.ToUpper(platform)],
	}
	if p.Latest != "" {
		c.UpdateAvailable = Compare(current, p.Latest) < 0
	}
	if p.ForceBelow != "" {
		c.ForceUpdate = Compare(current, p.ForceBelow) < 0
	}
	if p.MinSupported != "" {
		c.UpdateRequired = Compare(current, p.MinSupported) < 0
	}
	c.UpdateRequired = c.UpdateRequired || c.ForceUpdate
	return c
}
