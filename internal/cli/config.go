package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/tidwall/jsonc"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/keyring"
	"github.com/julianstephens/daylitd/internal/storage"
	"github.com/julianstephens/daylitd/internal/storage/memory"
	"github.com/julianstephens/daylitd/internal/storage/postgres"
	"github.com/julianstephens/daylitd/internal/storage/sqlite"
)

// MemoryDSN selects the in-memory store.
const MemoryDSN = "memory:"

// Globals are the flags shared by every command.
type Globals struct {
	DB                  string `help:"SQLite path, PostgreSQL connection string, or memory:. Falls back to the keyring, then ${default_db}. PostgreSQL credentials must NOT be embedded." env:"DAYLITD_DB"`
	LogDir              string `help:"Directory for rotated logs and the sweeper lockfile." type:"path" default:"${default_log_dir}" env:"DAYLITD_LOG_DIR"`
	LogJSON             bool   `help:"Write JSON log lines." default:"true" negatable:"" env:"DAYLITD_LOG_JSON"`
	Debug               bool   `help:"Enable debug logging to stderr." env:"DAYLITD_DEBUG"`
	ReasoningAPIKey     string `help:"Reasoning service API key. Falls back to the keyring." env:"DAYLITD_REASONING_API_KEY"`
	ReasoningModel      string `help:"Reasoning model name." default:"${default_model}" env:"DAYLITD_REASONING_MODEL"`
	ReasoningBaseURL    string `help:"Reasoning service base URL." default:"${default_base_url}" env:"DAYLITD_REASONING_BASE_URL"`
	ReasoningMaxRetries int    `help:"Total attempts per reasoning call." default:"${default_max_retries}" env:"DAYLITD_REASONING_MAX_RETRIES"`
	Subscriptions       string `help:"YAML subscription table. Defaults to the built-in table." type:"path" env:"DAYLITD_SUBSCRIPTIONS"`
}

// Vars are the kong interpolation values for Globals.
func Vars() kong.Vars {
	return kong.Vars{
		"version":             constants.Version,
		"default_db":          constants.DefaultConfigPath,
		"default_log_dir":     constants.DefaultLogDir,
		"default_model":       constants.DefaultReasoningModel,
		"default_base_url":    constants.DefaultReasoningBaseURL,
		"default_max_retries": fmt.Sprint(constants.DefaultMaxRetries),
		"default_source":      constants.SourceCLI,
	}
}

// ConfigFile returns DAYLITD_CONFIG_FILE or the default config path.
func ConfigFile() string {
	if path := os.Getenv("DAYLITD_CONFIG_FILE"); path != "" {
		return path
	}
	return constants.DefaultConfigFile
}

// JSONC is a kong configuration loader for JSON with comments and trailing
// commas. Keys are flag names with dashes replaced by underscores.
func JSONC(r io.Reader) (kong.Resolver, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return kong.JSON(bytes.NewReader(jsonc.ToJSON(data)))
}

// OpenStore picks the storage backend for dsn. An empty dsn uses the
// connection string stored in the keyring, then the default SQLite path.
func OpenStore(dsn string) (storage.Provider, error) {
	fromKeyring := false
	if dsn == "" {
		if stored := keyring.Resolve("", keyring.DatabaseConnection); stored != "" {
			dsn, fromKeyring = stored, true
		} else {
			dsn = constants.DefaultConfigPath
		}
	}

	switch {
	case dsn == MemoryDSN:
		return memory.New(), nil
	case isPostgres(dsn):
		// The keyring is encrypted, so a password stored there is allowed.
		if !fromKeyring {
			if _, err := postgres.ValidateConnString(dsn); err != nil {
				if errors.Is(err, postgres.ErrEmbeddedCredentials) {
					return nil, fmt.Errorf("PostgreSQL connection strings with embedded credentials are not allowed; " +
						"store the string with 'daylitd keyring set database-connection <conn>' or use .pgpass / PGPASSWORD")
				}
				return nil, err
			}
		}
		return postgres.New(dsn), nil
	default:
		return sqlite.NewStore(kong.ExpandPath(dsn)), nil
	}
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// NewContext builds the command context from the parsed globals.
func NewContext(g Globals) (*Context, error) {
	store, err := OpenStore(g.DB)
	if err != nil {
		return nil, err
	}
	return &Context{
		Store: store,
		Reasoning: Reasoning{
			APIKey:     g.ReasoningAPIKey,
			Model:      g.ReasoningModel,
			BaseURL:    g.ReasoningBaseURL,
			MaxRetries: g.ReasoningMaxRetries,
		},
		StateDir:          kong.ExpandPath(g.LogDir),
		SubscriptionsFile: g.Subscriptions,
	}, nil
}
