package constants

import "time"

const (
	AppName            = "daylitd"
	DefaultKeyringUser = "database-connection"
	DefaultConfigPath  = "~/.config/daylitd/daylitd.db"
	DefaultConfigFile  = "~/.config/daylitd/config.jsonc"
	DefaultLogDir      = "~/.config/daylitd"
	Version            = "v0.6.0"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used throughout the application (HH:MM)
	TimeFormat = "15:04"

	// Keyring entries
	KeyringReasoningAPIKey = "reasoning-api-key"
	KeyringServiceToken    = "service-token"

	// Interval algebra constants
	MinutesPerDay          = 24 * 60
	DayWindowEndMinute     = MinutesPerDay - 1 // 23:59
	MinFreeSlotMinutes     = 15
	DeepWorkMinDurationMin = 60

	// Day context query padding on each side of the local day
	ContextQueryPadding = 14 * time.Hour

	// Event bus constants
	DefaultSweepBatchSize = 20
	DefaultSweepInterval  = 30 * time.Second
	ProcessedAllSentinel  = "all"
	SweeperLockfileName   = "daylitd-sweeper.lock"

	// Reasoning service constants
	DefaultReasoningModel   = "gemini-2.0-flash"
	DefaultReasoningBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultMaxRetries       = 3
	DefaultRetryBaseDelay   = 500 * time.Millisecond
	DefaultRetryMaxDelay    = 8 * time.Second
	DefaultCallTimeout      = 30 * time.Second

	// Negotiation constants
	StrategiesPerNegotiation = 3

	// Severity calibration constants
	SeverityMin             = 0
	SeverityMax             = 10
	SeverityDeepWorkFloor   = 7
	SeverityLowPriorityCap  = 3
	SeverityDefaultAdvisory = 5
)
