package discovery

import (
	"fmt"
	"strings"
)

// parseISODuration converts the API's ISO 8601 duration (PT1H2M3S) to
// seconds. Days and weeks show up on long archive videos (P1DT2H).
func parseISODuration(s string) (int64, error) {
	rest, ok := strings.CutPrefix(s, "P")
	if !ok || rest == "" {
		return 0, fmt.Errorf("bad duration %q", s)
	}

	var total, n int64
	haveDigit := false
	inTime := false
	for _, r := range rest {
		switch {
		case r == 'T':
			if inTime {
				return 0, fmt.Errorf("bad duration %q", s)
			}
			inTime = true
		case r >= '0' && r <= '9':
			n = n*10 + int64(r-'0')
			haveDigit = true
		default:
			if !haveDigit {
				return 0, fmt.Errorf("bad duration %q", s)
			}
			var mult int64
			switch {
			case r == 'W' && !inTime:
				mult = 7 * 86400
			case r == 'D' && !inTime:
				mult = 86400
			case r == 'H' && inTime:
				mult = 3600
			case r == 'M' && inTime:
				mult = 60
			case r == 'S' && inTime:
				mult = 1
			default:
				return 0, fmt.Errorf("bad duration %q", s)
			}
			total += n * mult
			n = 0
			haveDigit = false
		}
	}
	if haveDigit {
		return 0, fmt.Errorf("bad duration %q", s)
	}
	return total, nil
}
