package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from the process environment, applies defaults
// for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with a custom variable source. Every malformed or missing
// variable is reported, not just the first.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}

	l := envLoader{lookup: lookup}
	l.loadStruct(reflect.ValueOf(cfg).Elem())
	if err := errors.Join(l.errs...); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

type envLoader struct {
	lookup func(string) (string, bool)
	errs   []error
}

// get returns the first non-empty value among the given variable names.
func (l *envLoader) get(names ...string) string {
	for _, name := range names {
		if name == "" {
			continue
		}
		if v, ok := l.lookup(name); ok && v != "" {
			return v
		}
	}
	return ""
}

// loadStruct populates tagged fields, recursing into nested section structs.
func (l *envLoader) loadStruct(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)
		if !fieldVal.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			l.loadStruct(fieldVal)
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := l.get(envName, field.Tag.Get("envAlt"))
		if value == "" {
			if field.Tag.Get("required") == "true" {
				l.errs = append(l.errs, fmt.Errorf("required environment variable %s is not set", envName))
				continue
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			l.errs = append(l.errs, fmt.Errorf("invalid value for %s=%q: %w", envName, value, err))
		}
	}
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		// comma-separated, blanks dropped
		var items []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// problems collects validation failures.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Validate checks that the configuration is usable and reports every
// failure at once.
func (c *Config) Validate() error {
	var p problems
	c.Server.validate(&p)
	c.Database.validate(&p)
	c.Import.validate(&p)
	c.JobStore.validate(&p)
	c.Rate.validate(&p)
	c.Logging.validate(&p)

	if len(p) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
	}
	return nil
}

func (s ServerConfig) validate(p *problems) {
	if s.Port <= 0 || s.Port > 65535 {
		p.addf("SERVER_PORT (%d) must be 1-65535", s.Port)
	}
	if s.ReadTimeout < 0 {
		p.addf("SERVER_READ_TIMEOUT must be non-negative")
	}
	if s.ShutdownTimeout <= 0 {
		p.addf("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
}

func (d DatabaseConfig) validate(p *problems) {
	if d.URL == "" {
		p.addf("DATABASE_URL is required")
	}
	if d.MaxConns < d.MinConns {
		p.addf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", d.MaxConns, d.MinConns)
	}
	if d.MaxConns <= 0 {
		p.addf("DB_MAX_CONNS must be positive")
	}
	if d.MinConns < 0 {
		p.addf("DB_MIN_CONNS must be non-negative")
	}
}

func (im ImportConfig) validate(p *problems) {
	positive := []struct {
		name  string
		value int64
	}{
		{"IMPORT_MAX_CONCURRENT_JOBS", int64(im.MaxConcurrentJobs)},
		{"IMPORT_QUEUE_SIZE", int64(im.QueueSize)},
		{"IMPORT_BATCH_SIZE", int64(im.BatchSize)},
		{"IMPORT_MAX_FILE_SIZE", im.MaxFileSize},
		{"IMPORT_RETENTION_HOURS", int64(im.RetentionHours)},
		{"IMPORT_CLEANUP_INTERVAL", int64(im.CleanupInterval)},
	}
	for _, f := range positive {
		if f.value <= 0 {
			p.addf("%s must be positive", f.name)
		}
	}
	if im.MinConfidence <= 0 || im.MinConfidence > 1 {
		p.addf("IMPORT_MIN_CONFIDENCE (%g) must be in (0, 1]", im.MinConfidence)
	}
}

func (js JobStoreConfig) validate(p *problems) {
	switch strings.ToLower(js.Backend) {
	case "memory":
	case "redis":
		if js.RedisURL == "" {
			p.addf("REDIS_URL is required when JOB_STORE_BACKEND is redis")
		}
	default:
		p.addf("JOB_STORE_BACKEND (%q) must be one of: memory, redis", js.Backend)
	}
}

func (r RateLimitConfig) validate(p *problems) {
	if r.Enabled && r.RequestsPerMinute <= 0 {
		p.addf("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if r.Enabled && r.UploadLimit <= 0 {
		p.addf("RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
	}
}

func (lg LoggingConfig) validate(p *problems) {
	switch strings.ToLower(lg.Level) {
	case "debug", "info", "warn", "error":
	default:
		p.addf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", lg.Level)
	}
	switch strings.ToLower(lg.Format) {
	case "text", "json":
	default:
		p.addf("LOG_FORMAT (%q) must be one of: text, json", lg.Format)
	}
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Import: {MaxConcurrentJobs: %d, QueueSize: %d, BatchSize: %d, MaxFileSize: %d}, ",
		c.Import.MaxConcurrentJobs, c.Import.QueueSize, c.Import.BatchSize, c.Import.MaxFileSize))
	b.WriteString(fmt.Sprintf("JobStore: {Backend: %q, RedisURL: %s}, ",
		c.JobStore.Backend, mask(c.JobStore.RedisURL)))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func mask(secret string) string {
	if secret == "" {
		return `""`
	}
	return "[MASKED]"
}
