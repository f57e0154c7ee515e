package models

import (
	"strconv"

	"github.com/julianstephens/daylitd/internal/constants"
)

// UserPreferences holds the per-user settings the pipeline consults.
type UserPreferences struct {
	UserID          string `json:"userId"`
	WorkStart       string `json:"workStart"`       // HH:MM
	WorkEnd         string `json:"workEnd"`         // HH:MM
	Timezone        string `json:"timezone"`        // IANA name
	AutoResolve     bool   `json:"autoResolve"`     // apply a strategy without asking
	ResolutionStyle string `json:"resolutionStyle"` // keyword matched against strategy id/title
}

// MapToPreferences converts stored key-value pairs to a UserPreferences struct.
// Unknown keys are ignored.
func MapToPreferences(userID string, data map[string]string) UserPreferences {
	prefs := UserPreferences{UserID: userID}

	for key, value := range data {
		switch key {
		case constants.SettingWorkStart:
			prefs.WorkStart = value
		case constants.SettingWorkEnd:
			prefs.WorkEnd = value
		case constants.SettingTimezone:
			prefs.Timezone = value
		case constants.SettingAutoResolve:
			prefs.AutoResolve, _ = strconv.ParseBool(value)
		case constants.SettingResolutionStyle:
			prefs.ResolutionStyle = value
		}
	}
	return prefs
}

// PreferencesToMap converts a UserPreferences struct to key-value pairs.
func PreferencesToMap(prefs UserPreferences) map[string]string {
	return map[string]string{
		constants.SettingWorkStart:       prefs.WorkStart,
		constants.SettingWorkEnd:         prefs.WorkEnd,
		constants.SettingTimezone:        prefs.Timezone,
		constants.SettingAutoResolve:     strconv.FormatBool(prefs.AutoResolve),
		constants.SettingResolutionStyle: prefs.ResolutionStyle,
	}
}

// ApplyDefaultPreferences fills in missing working hours.
func ApplyDefaultPreferences(prefs *UserPreferences) {
	if prefs.WorkStart == "" {
		prefs.WorkStart = constants.DefaultWorkStart
	}
	if prefs.WorkEnd == "" {
		prefs.WorkEnd = constants.DefaultWorkEnd
	}
}
