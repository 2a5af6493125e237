package utils

import (
	"fmt"
	"time"
)

// FormatDuration formats seconds as MM:SS, or HH:MM:SS once an hour is reached
func FormatDuration(totalSeconds float64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	secs := int64(totalSeconds)
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatRemaining renders a cooldown remainder rounded to the second, e.g. "3h12m5s"
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return d.Round(time.Second).String()
}
