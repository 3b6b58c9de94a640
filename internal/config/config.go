// Package config provides functionality for managing configuration options
// for the application using command-line flags, a JSON config file and
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Options holds the configuration values for the application.
type Options struct {
	// Addr defines the server's listening address (ip:port).
	Addr string `json:"addr"`

	// DataFile is the JSON document backing the durable tier when no
	// database is configured.
	DataFile string `json:"data_file"`

	// DatabaseDSN selects the Postgres durable tier when set.
	DatabaseDSN string `json:"database_dsn"`

	// RedisAddr selects the Redis ephemeral tier when set.
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	// SessionTTL bounds the life of a session that is not remembered.
	SessionTTL time.Duration `json:"-"`
	// RememberTTL is how long a remembered session survives without use.
	RememberTTL time.Duration `json:"-"`

	// LLMBaseURL is an OpenAI-compatible endpoint. Reports are written
	// offline when it is empty.
	LLMBaseURL    string        `json:"llm_base_url"`
	LLMAPIKey     string        `json:"llm_api_key"`
	LLMModel      string        `json:"llm_model"`
	ReportTimeout time.Duration `json:"-"`

	ToastTTL time.Duration `json:"-"`

	// DemoEmail enables the demo tenant. Empty disables it.
	DemoEmail string `json:"demo_email"`

	LogLevel string `json:"log_level"`

	// Config is the path to the Config file.
	Config string `json:"-"`
	// EnvFile is loaded into the environment before it is read.
	EnvFile string `json:"-"`
}

// fileDurations carries the durations of the config file as strings like "90s".
type fileDurations struct {
	SessionTTL    string `json:"session_ttl"`
	RememberTTL   string `json:"remember_ttl"`
	ReportTimeout string `json:"report_timeout"`
	ToastTTL      string `json:"toast_ttl"`
}

// Defaults returns the options used when nothing else is configured.
func Defaults() *Options {
	return &Options{
		Addr:          "localhost:8080",
		DataFile:      "crm_data.json",
		SessionTTL:    12 * time.Hour,
		RememberTTL:   30 * 24 * time.Hour,
		LLMModel:      "gpt-4o-mini",
		ReportTimeout: 2 * time.Minute,
		ToastTTL:      3 * time.Second,
		DemoEmail:     "demo@crm.local",
		LogLevel:      "info",
		Config:        "config.json",
		EnvFile:       ".env",
	}
}

// Parse parses the process arguments and environment. It exits on error.
func Parse() *Options {
	options, err := ParseArgs(os.Args[0], os.Args[1:])
	if err != nil {
		log.Fatalf("error while loading config: %v", err)
	}
	return options
}

// ParseArgs builds the options from args. Precedence, lowest first:
// defaults, config file, environment (after loading the .env file), flags
// given explicitly on the command line.
func ParseArgs(name string, args []string) (*Options, error) {
	options := Defaults()
	flags := Defaults()

	flagSet := flag.NewFlagSet(name, flag.ContinueOnError)
	flagSet.StringVar(&flags.Addr, "a", flags.Addr, "run on ip:port server")
	flagSet.StringVar(&flags.DataFile, "f", flags.DataFile, "path to the data file")
	flagSet.StringVar(&flags.DatabaseDSN, "d", flags.DatabaseDSN, "db address")
	flagSet.StringVar(&flags.RedisAddr, "r", flags.RedisAddr, "redis address for ephemeral sessions")
	flagSet.DurationVar(&flags.SessionTTL, "session-ttl", flags.SessionTTL, "lifetime of sessions that are not remembered")
	flagSet.DurationVar(&flags.RememberTTL, "remember-ttl", flags.RememberTTL, "lifetime of remembered sessions")
	flagSet.StringVar(&flags.LLMBaseURL, "llm-url", flags.LLMBaseURL, "OpenAI-compatible endpoint for reports")
	flagSet.StringVar(&flags.LLMModel, "llm-model", flags.LLMModel, "model used for reports")
	flagSet.DurationVar(&flags.ReportTimeout, "report-timeout", flags.ReportTimeout, "timeout of a report request")
	flagSet.DurationVar(&flags.ToastTTL, "toast-ttl", flags.ToastTTL, "lifetime of notifications")
	flagSet.StringVar(&flags.DemoEmail, "demo", flags.DemoEmail, "email of the demo tenant, empty to disable")
	flagSet.StringVar(&flags.LogLevel, "l", flags.LogLevel, "log level")
	flagSet.StringVar(&flags.Config, "config", flags.Config, "path to config file")
	flagSet.StringVar(&flags.Config, "c", flags.Config, "path to config file (shorthand)")
	flagSet.StringVar(&flags.EnvFile, "env", flags.EnvFile, "path to .env file")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]bool{}
	flagSet.Visit(func(f *flag.Flag) { set[f.Name] = true })

	envFile := flags.EnvFile
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	options.Config = flags.Config
	if configPath := os.Getenv("CONFIG"); configPath != "" && !set["config"] && !set["c"] {
		options.Config = configPath
	}
	if err := loadFile(options); err != nil {
		return nil, err
	}
	if err := applyEnv(options); err != nil {
		return nil, err
	}
	applyFlags(options, flags, set)
	options.EnvFile = envFile
	return options, nil
}

func loadFile(options *Options) error {
	if options.Config == "" {
		return nil
	}
	data, err := os.ReadFile(options.Config)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	if err := json.Unmarshal(data, options); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	var d fileDurations
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	for _, f := range []struct {
		raw string
		dst *time.Duration
	}{
		{d.SessionTTL, &options.SessionTTL},
		{d.RememberTTL, &options.RememberTTL},
		{d.ReportTimeout, &options.ReportTimeout},
		{d.ToastTTL, &options.ToastTTL},
	} {
		if err := setDuration(f.dst, f.raw); err != nil {
			return fmt.Errorf("error while parsing config file: %w", err)
		}
	}
	return nil
}

func applyEnv(options *Options) error {
	for env, dst := range map[string]*string{
		"SERVER_ADDRESS": &options.Addr,
		"DATA_FILE":      &options.DataFile,
		"DATABASE_DSN":   &options.DatabaseDSN,
		"REDIS_ADDR":     &options.RedisAddr,
		"REDIS_PASSWORD": &options.RedisPassword,
		"LLM_BASE_URL":   &options.LLMBaseURL,
		"LLM_API_KEY":    &options.LLMAPIKey,
		"LLM_MODEL":      &options.LLMModel,
		"LOG_LEVEL":      &options.LogLevel,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("DEMO_EMAIL"); ok {
		options.DemoEmail = v
	}
	for env, dst := range map[string]*time.Duration{
		"SESSION_TTL":    &options.SessionTTL,
		"REMEMBER_TTL":   &options.RememberTTL,
		"REPORT_TIMEOUT": &options.ReportTimeout,
		"TOAST_TTL":      &options.ToastTTL,
	} {
		if err := setDuration(dst, os.Getenv(env)); err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
	}
	return nil
}

func applyFlags(options, flags *Options, set map[string]bool) {
	copyIf := func(name string, apply func()) {
		if set[name] {
			apply()
		}
	}
	copyIf("a", func() { options.Addr = flags.Addr })
	copyIf("f", func() { options.DataFile = flags.DataFile })
	copyIf("d", func() { options.DatabaseDSN = flags.DatabaseDSN })
	copyIf("r", func() { options.RedisAddr = flags.RedisAddr })
	copyIf("session-ttl", func() { options.SessionTTL = flags.SessionTTL })
	copyIf("remember-ttl", func() { options.RememberTTL = flags.RememberTTL })
	copyIf("llm-url", func() { options.LLMBaseURL = flags.LLMBaseURL })
	copyIf("llm-model", func() { options.LLMModel = flags.LLMModel })
	copyIf("report-timeout", func() { options.ReportTimeout = flags.ReportTimeout })
	copyIf("toast-ttl", func() { options.ToastTTL = flags.ToastTTL })
	copyIf("demo", func() { options.DemoEmail = flags.DemoEmail })
	copyIf("l", func() { options.LogLevel = flags.LogLevel })
}

func setDuration(dst *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
