package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSettingsPath   = "exception_settings.json"
	DefaultCauseCodesPath = "termination_cause_codes.json"
	DefaultAMQPQueue      = "cdr-exceptions"
)

// Config represents the complete application configuration
type Config struct {
	Settings   Settings        `json:"settings"`
	CauseCodes CauseCodes      `json:"-"`
	Paths      Paths           `json:"paths"`
	Logging    LoggingConfig   `json:"logging"`
	Messaging  MessagingConfig `json:"messaging"`
	Metrics    MetricsConfig   `json:"metrics"`
}

// Paths locates the settings and cause code files. Empty fields fall back to
// CDR_SETTINGS_PATH and CDR_CAUSE_CODES_PATH, then to the defaults in the
// working directory.
type Paths struct {
	Settings   string `json:"settings" validate:"required"`
	CauseCodes string `json:"cause_codes" validate:"required"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	// Log level, LOG_LEVEL
	Level string `json:"level"`

	// Log format (json or text), LOG_FORMAT
	Format string `json:"format" validate:"oneof=json text"`

	// Log output file (empty = stdout), LOG_OUTPUT_FILE
	OutputFile string `json:"output_file"`
}

// MessagingConfig controls publishing of run summaries
type MessagingConfig struct {
	// AMQP broker URL (empty = publishing disabled), AMQP_URL
	AMQPURL string `json:"amqp_url" validate:"omitempty,url"`

	// Queue the summaries are published to, AMQP_QUEUE
	AMQPQueue string `json:"amqp_queue" validate:"required_with=AMQPURL"`
}

// Enabled reports whether a broker is configured
func (m MessagingConfig) Enabled() bool {
	return m.AMQPURL != ""
}

// MetricsConfig controls the Prometheus textfile export
type MetricsConfig struct {
	// Path of the .prom file (empty = no export), METRICS_TEXTFILE
	TextfilePath string `json:"textfile_path"`
}

var validate = validator.New()

// Load reads the .env file, the environment and the settings files.
func Load(logger *logrus.Logger, paths Paths) (*Config, error) {
	loadEnvFile(logger)

	config := &Config{}
	config.Paths = Paths{
		Settings:   firstNonEmpty(paths.Settings, os.Getenv("CDR_SETTINGS_PATH"), DefaultSettingsPath),
		CauseCodes: firstNonEmpty(paths.CauseCodes, os.Getenv("CDR_CAUSE_CODES_PATH"), DefaultCauseCodesPath),
	}

	loadLoggingConfig(logger, &config.Logging)

	config.Messaging = MessagingConfig{
		AMQPURL:   getEnv("AMQP_URL", ""),
		AMQPQueue: getEnv("AMQP_QUEUE", DefaultAMQPQueue),
	}
	config.Metrics = MetricsConfig{
		TextfilePath: getEnv("METRICS_TEXTFILE", ""),
	}

	settings, err := LoadSettings(config.Paths.Settings)
	if err != nil {
		return nil, err
	}
	config.Settings = settings

	causeCodes, err := LoadCauseCodes(config.Paths.CauseCodes)
	if err != nil {
		return nil, err
	}
	config.CauseCodes = causeCodes

	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"settings":       config.Paths.Settings,
		"cause_codes":    config.Paths.CauseCodes,
		"excluded_codes": len(config.Settings.CauseCodesExcluded),
		"amqp_enabled":   config.Messaging.Enabled(),
	}).Debug("Configuration loaded")

	return config, nil
}

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
		} else {
			fields = append(fields, err.Error())
		}
		return errors.NewInvalidConfig("validation failed", map[string]interface{}{
			"fields": strings.Join(fields, ", "),
		})
	}
	return nil
}

// loadEnvFile loads the first .env found in the working directory or its parent.
func loadEnvFile(logger *logrus.Logger) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	possibleEnvFiles := []string{
		".env",
		"../.env",
	}

	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr != nil {
			continue
		}
		absPath, _ := filepath.Abs(envFile)
		if loadErr := godotenv.Load(envFile); loadErr != nil {
			logger.WithError(loadErr).WithField("path", absPath).Warn("Failed to load .env file")
			continue
		}
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        absPath,
		}).Debug("Loaded .env file")
		return
	}

	logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
}

func loadLoggingConfig(logger *logrus.Logger, config *LoggingConfig) {
	config.Level = getEnv("LOG_LEVEL", "info")
	if _, err := logrus.ParseLevel(config.Level); err != nil {
		logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to 'info'", config.Level)
		config.Level = "info"
	}

	config.Format = getEnv("LOG_FORMAT", "text")
	if config.Format != "json" && config.Format != "text" {
		logger.Warn("Invalid LOG_FORMAT, must be 'json' or 'text', defaulting to 'text'")
		config.Format = "text"
	}

	config.OutputFile = getEnv("LOG_OUTPUT_FILE", "")
}

// ApplyLogging applies the logging section to the logger
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
