package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/example/session-gate/internal/application"
	"github.com/example/session-gate/internal/envelope"
	"github.com/example/session-gate/internal/timer"
)

// EnvPrefix is prepended to every setting name when read from the environment.
const EnvPrefix = "SESSIONGATE_"

// ConfigFileEnv names an optional TOML file whose keys supply defaults for
// the environment, e.g. `store_timeout = "5s"`.
const ConfigFileEnv = EnvPrefix + "CONFIG_FILE"

// Config captures the settings of the session gate service.
type Config struct {
	HTTPPort        int
	DatabasePath    string
	EncryptionKey   []byte
	CredentialMode  application.CredentialMode
	AdminToken      string
	StoreTimeout    time.Duration
	ShutdownTimeout time.Duration
	AttemptRate     float64
	AttemptBurst    int
	GrantSweep      time.Duration
	Timer           timer.Policy
	// SeriesLocation is the wall clock window series repeat on.
	SeriesLocation  *time.Location
	LogLevel        slog.Level
	LogFile         string
}

// Load parses configuration values from the current process environment,
// using the file named by SESSIONGATE_CONFIG_FILE for anything the
// environment leaves unset.
//
// The encryption key has no default. A missing or malformed key fails the
// load with an *envelope.ConfigurationError in the chain.
func Load() (Config, error) {
	file, err := readFile(strings.TrimSpace(os.Getenv(ConfigFileEnv)))
	if err != nil {
		return Config{}, err
	}
	return load(func(name string) string {
		if value := strings.TrimSpace(os.Getenv(EnvPrefix + name)); value != "" {
			return value
		}
		return file[name]
	})
}

func load(lookup func(name string) string) (Config, error) {
	cfg := Config{
		HTTPPort:        8080,
		DatabasePath:    "sessiongate.db",
		CredentialMode:  application.CredentialModeHashed,
		StoreTimeout:    application.DefaultStoreTimeout,
		ShutdownTimeout: 10 * time.Second,
		AttemptRate:     0.2,
		AttemptBurst:    5,
		GrantSweep:      time.Minute,
		Timer:           timer.DefaultPolicy(),
		SeriesLocation:  time.UTC,
		LogLevel:        slog.LevelInfo,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)
	var keyErr error

	if portValue := lookup("HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, EnvPrefix+"HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if path := lookup("DATABASE_PATH"); path != "" {
		cfg.DatabasePath = path
	}

	if hexKey := lookup("ENCRYPTION_KEY"); hexKey == "" {
		missing = append(missing, EnvPrefix+"ENCRYPTION_KEY")
	} else if key, err := envelope.ParseKey(hexKey); err != nil {
		invalid = append(invalid, EnvPrefix+"ENCRYPTION_KEY")
		keyErr = err
	} else {
		cfg.EncryptionKey = key
	}

	if modeValue := lookup("CREDENTIAL_MODE"); modeValue != "" {
		mode, err := application.ParseCredentialMode(modeValue)
		if err != nil {
			invalid = append(invalid, EnvPrefix+"CREDENTIAL_MODE")
		} else {
			cfg.CredentialMode = mode
		}
	}

	cfg.AdminToken = lookup("ADMIN_TOKEN")

	parseDuration(lookup, "STORE_TIMEOUT", &cfg.StoreTimeout, &invalid)
	parseDuration(lookup, "SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout, &invalid)
	parseDuration(lookup, "GRANT_SWEEP_INTERVAL", &cfg.GrantSweep, &invalid)
	parseDuration(lookup, "SESSION_MAX_DURATION", &cfg.Timer.MaxDuration, &invalid)
	parseDuration(lookup, "SESSION_CRITICAL_THRESHOLD", &cfg.Timer.CriticalThreshold, &invalid)
	parseDuration(lookup, "SESSION_DANGER_THRESHOLD", &cfg.Timer.DangerThreshold, &invalid)

	if rateValue := lookup("ATTEMPT_RATE"); rateValue != "" {
		rate, err := strconv.ParseFloat(rateValue, 64)
		if err != nil || rate <= 0 {
			invalid = append(invalid, EnvPrefix+"ATTEMPT_RATE")
		} else {
			cfg.AttemptRate = rate
		}
	}

	if burstValue := lookup("ATTEMPT_BURST"); burstValue != "" {
		burst, err := strconv.Atoi(burstValue)
		if err != nil || burst <= 0 {
			invalid = append(invalid, EnvPrefix+"ATTEMPT_BURST")
		} else {
			cfg.AttemptBurst = burst
		}
	}

	if minValue := lookup("SESSION_MIN_MESSAGES"); minValue != "" {
		minMessages, err := strconv.Atoi(minValue)
		if err != nil || minMessages <= 0 {
			invalid = append(invalid, EnvPrefix+"SESSION_MIN_MESSAGES")
		} else {
			cfg.Timer.MinMessages = minMessages
		}
	}

	if cfg.Timer.DangerThreshold > cfg.Timer.CriticalThreshold {
		invalid = append(invalid, EnvPrefix+"SESSION_DANGER_THRESHOLD")
	}

	if zone := lookup("SERIES_TIMEZONE"); zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			invalid = append(invalid, EnvPrefix+"SERIES_TIMEZONE")
		} else {
			cfg.SeriesLocation = loc
		}
	}

	if levelValue := lookup("LOG_LEVEL"); levelValue != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(levelValue)); err != nil {
			invalid = append(invalid, EnvPrefix+"LOG_LEVEL")
		}
	}

	cfg.LogFile = lookup("LOG_FILE")

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: required settings are missing: %s: %w",
			strings.Join(missing, ", "),
			&envelope.ConfigurationError{Setting: missing[0], Reason: "not set"})
	}
	if len(invalid) > 0 {
		err := fmt.Errorf("config: settings have invalid values: %s", strings.Join(invalid, ", "))
		if keyErr != nil {
			err = errors.Join(err, keyErr)
		}
		return Config{}, err
	}

	return cfg, nil
}

func parseDuration(lookup func(string) string, name string, target *time.Duration, invalid *[]string) {
	value := lookup(name)
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		*invalid = append(*invalid, EnvPrefix+name)
		return
	}
	*target = d
}

// readFile flattens a TOML file into setting names. Keys are matched
// case-insensitively against the names used in the environment, without the
// prefix.
func readFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	settings := make(map[string]string, len(raw))
	var unsupported []string
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			settings[strings.ToUpper(key)] = strings.TrimSpace(v)
		case int64, float64, bool:
			settings[strings.ToUpper(key)] = fmt.Sprint(v)
		default:
			unsupported = append(unsupported, key)
		}
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		return nil, fmt.Errorf("config: %s: unsupported values for keys: %s", path, strings.Join(unsupported, ", "))
	}
	return settings, nil
}
