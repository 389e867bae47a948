package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // embedded zoneinfo for PICKUP_TIMEZONE

	"github.com/joho/godotenv"

	"github.com/example/church-pickups/internal/logging"
)

const defaultEnvFile = ".env"

// Config captures environment driven configuration values for the pickup service.
type Config struct {
	HTTPPort int
	// SQLitePath is the database file opened by the storage layer.
	SQLitePath string
	JWTSecret  string
	// JWTIssuer is checked against the iss claim when set.
	JWTIssuer string
	// Location is the timezone service days are resolved in.
	Location             *time.Location
	CreateBuffer         time.Duration
	CancelBuffer         time.Duration
	MaxSeriesOccurrences int
	GeocoderURL          string
	GeocoderUserAgent    string
	LogLevel             slog.Level
}

// Load parses configuration values from the process environment.
//
// Values from a dotenv file are merged first without overriding variables that
// are already set. PICKUP_ENV_FILE names the file; when unset an optional .env
// in the working directory is read.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPPort:             8080,
		SQLitePath:           "pickups.db",
		Location:             time.UTC,
		CreateBuffer:         time.Hour,
		CancelBuffer:         2 * time.Hour,
		MaxSeriesOccurrences: 52,
		GeocoderURL:          "https://nominatim.openstreetmap.org",
		GeocoderUserAgent:    "church-pickups/1.0",
		LogLevel:             slog.LevelInfo,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := lookup("PICKUP_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "PICKUP_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := lookup("PICKUP_SQLITE_DSN"); dsn != "" {
		cfg.SQLitePath = dsn
	}

	if secret := lookup("PICKUP_JWT_SECRET"); secret == "" {
		missing = append(missing, "PICKUP_JWT_SECRET")
	} else {
		cfg.JWTSecret = secret
	}
	cfg.JWTIssuer = lookup("PICKUP_JWT_ISSUER")

	if name := lookup("PICKUP_TIMEZONE"); name != "" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			invalid = append(invalid, "PICKUP_TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	if value := lookup("PICKUP_CREATE_BUFFER"); value != "" {
		buffer, err := time.ParseDuration(value)
		if err != nil || buffer < 0 {
			invalid = append(invalid, "PICKUP_CREATE_BUFFER")
		} else {
			cfg.CreateBuffer = buffer
		}
	}

	if value := lookup("PICKUP_CANCEL_BUFFER"); value != "" {
		buffer, err := time.ParseDuration(value)
		if err != nil || buffer < 0 {
			invalid = append(invalid, "PICKUP_CANCEL_BUFFER")
		} else {
			cfg.CancelBuffer = buffer
		}
	}

	if value := lookup("PICKUP_MAX_SERIES_OCCURRENCES"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit <= 0 {
			invalid = append(invalid, "PICKUP_MAX_SERIES_OCCURRENCES")
		} else {
			cfg.MaxSeriesOccurrences = limit
		}
	}

	if url := lookup("PICKUP_GEOCODER_URL"); url != "" {
		cfg.GeocoderURL = strings.TrimRight(url, "/")
	}
	if agent := lookup("PICKUP_GEOCODER_USER_AGENT"); agent != "" {
		cfg.GeocoderUserAgent = agent
	}

	if value := lookup("PICKUP_LOG_LEVEL"); value != "" {
		level, err := logging.ParseLevel(value)
		if err != nil {
			invalid = append(invalid, "PICKUP_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func loadEnvFile() error {
	path := lookup("PICKUP_ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
