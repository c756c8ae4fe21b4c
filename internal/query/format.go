package query

import (
	"fmt"
	"time"
)

// FormatDuration renders d with its two most significant units:
// "45s", "2m 5s", "3h 10m", "2d 4h". Zero and negative durations are "0s".
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs <= 0 {
		return "0s"
	}
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return pair(secs/60, "m", secs%60, "s")
	case secs < 86400:
		return pair(secs/3600, "h", (secs%3600)/60, "m")
	default:
		return pair(secs/86400, "d", (secs%86400)/3600, "h")
	}
}

func pair(major int64, mu string, minor int64, nu string) string {
	if minor == 0 {
		return fmt.Sprintf("%d%s", major, mu)
	}
	return fmt.Sprintf("%d%s %d%s", major, mu, minor, nu)
}

// FormatPercent renders a percentage with two decimals, e.g. "99.95%".
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}
