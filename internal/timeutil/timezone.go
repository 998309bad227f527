package timeutil

import (
	"fmt"
	"time"
	// Embedded zone data so the dashboard zone resolves in minimal images.
	_ "time/tzdata"
)

// DefaultTimezone is where the sensors and their readers are.
const DefaultTimezone = "Asia/Jakarta"

// IsTimezoneValid reports whether tz names a zone in the tz database.
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// ConvertTime returns t in the named zone.
func ConvertTime(t time.Time, tz string) (time.Time, error) {
	if tz == "UTC" {
		return t.UTC(), nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return t, fmt.Errorf("failed to load timezone %s: %w", tz, err)
	}
	return t.In(loc), nil
}
