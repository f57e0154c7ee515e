package constants

const (
	// Preference Keys
	SettingWorkStart       = "work_start"
	SettingWorkEnd         = "work_end"
	SettingTimezone        = "timezone"
	SettingAutoResolve     = "auto_resolve"
	SettingResolutionStyle = "resolution_style"

	// Default Preference Values
	DefaultWorkStart = "09:00"
	DefaultWorkEnd   = "17:00"

	// DefaultTimezone is substituted for any unknown or invalid IANA name.
	DefaultTimezone = "UTC"
)
