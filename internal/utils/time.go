package utils

import (
	"time"
	_ "time/tzdata" // zone database for hosts without /usr/share/zoneinfo

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/logger"
)

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}

// ResolveLocation loads timezone, substituting the default zone when the name
// is empty or unknown. It never fails.
func ResolveLocation(timezone string) *time.Location {
	if timezone != "" && timezone != "Local" {
		if loc, err := time.LoadLocation(timezone); err == nil {
			return loc
		}
		logger.Warn("Unknown timezone, using default", "timezone", timezone, "default", constants.DefaultTimezone)
	}
	loc, err := time.LoadLocation(constants.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseDateInLocation parses a date string (YYYY-MM-DD) in the specified timezone.
func ParseDateInLocation(dateStr string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(constants.DateFormat, dateStr)
	if err != nil {
		return time.Time{}, err
	}
	// Return the date at midnight in the specified timezone
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// LocalDate returns the YYYY-MM-DD calendar date of t as seen in loc.
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(constants.DateFormat)
}

// ValidateDate checks if the string matches the standard date format.
func ValidateDate(dateStr string) bool {
	_, err := time.Parse(constants.DateFormat, dateStr)
	return err == nil
}

// ValidateTimezone checks if the timezone name is valid.
func ValidateTimezone(timezone string) bool {
	_, err := LoadLocation(timezone)
	return err == nil
}
