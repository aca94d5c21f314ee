package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

// DefaultPath is the configuration file used when none is given on the command line.
const DefaultPath = "docgate.yaml"

// Config is the complete docgate configuration.
type Config struct {
	Version    string           `yaml:"version"`
	Trigger    TriggerConfig    `yaml:"trigger"`
	Repository RepositoryConfig `yaml:"repository"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Provision  ProvisionConfig  `yaml:"provision"`
	Generator  GeneratorConfig  `yaml:"generator"`
	LinkCheck  LinkCheckConfig  `yaml:"linkcheck"`
	History    HistoryConfig    `yaml:"history"`
	Logging    LoggingConfig    `yaml:"logging"`
	NATS       *NATSConfig      `yaml:"nats,omitempty"`
	Daemon     *DaemonConfig    `yaml:"daemon,omitempty"`
}

// TriggerConfig is the branch allow-list consulted before a run starts.
// Branch entries are exact names, or prefixes when they end in "*".
type TriggerConfig struct {
	Events   []string `yaml:"events"`
	Branches []string `yaml:"branches"`
}

// RepositoryConfig describes the repository checked out by the first step.
type RepositoryConfig struct {
	URL    string      `yaml:"url"`
	Name   string      `yaml:"name,omitempty"`
	Branch string      `yaml:"branch,omitempty"` // default branch for manual and scheduled runs
	Depth  int         `yaml:"depth,omitempty"`  // 0 = full history
	Auth   *AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig holds checkout credentials.
type AuthConfig struct {
	Type     AuthType `yaml:"type"`
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	Token    string   `yaml:"token,omitempty"`
	KeyPath  string   `yaml:"key_path,omitempty"`
}

// WorkspaceConfig controls the per-run working directory.
type WorkspaceConfig struct {
	BaseDir string `yaml:"base_dir,omitempty"`
	Keep    bool   `yaml:"keep,omitempty"` // keep the workspace after the run for inspection
}

// ProvisionConfig drives the dependency provisioning step.
type ProvisionConfig struct {
	Skip              bool              `yaml:"skip,omitempty"`
	Command           string            `yaml:"command"`
	Extras            []string          `yaml:"extras"`
	DisableVirtualenv *bool             `yaml:"disable_virtualenv,omitempty"`
	ExtraArgs         []string          `yaml:"extra_args,omitempty"`
	Env               map[string]string `yaml:"env,omitempty"`
}

// VirtualenvDisabled reports whether the package manager must install into the runner's environment.
func (p ProvisionConfig) VirtualenvDisabled() bool {
	return p.DisableVirtualenv == nil || *p.DisableVirtualenv
}

// GeneratorConfig describes the documentation generator invoked by the build and link steps.
type GeneratorConfig struct {
	Command   string            `yaml:"command"`
	SourceDir string            `yaml:"source_dir"`
	OutputDir string            `yaml:"output_dir"`
	Builder   string            `yaml:"builder"`
	Strict    *bool             `yaml:"strict,omitempty"`
	KeepGoing *bool             `yaml:"keep_going,omitempty"`
	ExtraArgs []string          `yaml:"extra_args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
}

// StrictMode reports whether warnings are escalated to errors. Defaults to true.
func (g GeneratorConfig) StrictMode() bool {
	return g.Strict == nil || *g.Strict
}

// KeepGoingMode reports whether the generator should report every warning before failing.
func (g GeneratorConfig) KeepGoingMode() bool {
	return g.KeepGoing == nil || *g.KeepGoing
}

// LinkCheckConfig drives the link verification step.
type LinkCheckConfig struct {
	Mode             LinkCheckMode `yaml:"mode"`
	ExternalFailures FailurePolicy `yaml:"external_failures"`
	SkipExternal     bool          `yaml:"skip_external,omitempty"`
	Ignore           []string      `yaml:"ignore,omitempty"` // regular expressions matched against URIs
	RequestTimeout   string        `yaml:"request_timeout,omitempty"`
	MaxConcurrent    int           `yaml:"max_concurrent,omitempty"`
	BaseURL          string        `yaml:"base_url,omitempty"`
}

// HistoryConfig controls the SQLite run history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// NATSConfig enables publishing run and broken-link events and the external link cache.
type NATSConfig struct {
	URL           string `yaml:"url"`
	RunSubject    string `yaml:"run_subject"`
	BrokenSubject string `yaml:"broken_subject"`
	KVBucket      string `yaml:"kv_bucket"`
	CacheTTL      string `yaml:"cache_ttl"`
}

// DaemonConfig configures webhook reception, scheduling and the admin surface.
type DaemonConfig struct {
	HTTP      HTTPConfig     `yaml:"http"`
	Webhook   WebhookConfig  `yaml:"webhook"`
	Schedule  ScheduleConfig `yaml:"schedule,omitempty"`
	QueueSize int            `yaml:"queue_size"`
}

// HTTPConfig holds daemon listener ports.
type HTTPConfig struct {
	WebhookPort int `yaml:"webhook_port"`
	AdminPort   int `yaml:"admin_port"`
}

// WebhookConfig describes the forge webhook endpoint.
type WebhookConfig struct {
	Path   string    `yaml:"path"`
	Forge  ForgeType `yaml:"forge"`
	Secret string    `yaml:"secret,omitempty"`
}

// ScheduleConfig enables periodic runs on a fixed branch. Cron takes precedence over Interval.
type ScheduleConfig struct {
	Cron     string `yaml:"cron,omitempty"`
	Interval string `yaml:"interval,omitempty"`
	Branch   string `yaml:"branch,omitempty"`
}

// Enabled reports whether periodic runs are configured.
func (s ScheduleConfig) Enabled() bool {
	return s.Cron != "" || s.Interval != ""
}

// Load reads, expands, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").WithContext("path", path).Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read configuration file").Fatal().WithContext("path", path).Build()
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes. Environment variables (${VAR}) are expanded first.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse configuration").Fatal().Build()
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration holding only defaults. Used when no file is present
// and the repository is given on the command line.
func Default() *Config {
	cfg := &Config{}
	_ = applyDefaults(cfg)
	return cfg
}

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.ValidationError("configuration file already exists (use --force to overwrite)").WithContext("path", path).Build()
	}

	example := Default()
	example.Version = "1"
	example.Repository = RepositoryConfig{
		URL:    "https://github.com/example/project.git",
		Branch: "main",
		Depth:  1,
	}
	example.History.Enabled = true
	example.Daemon = &DaemonConfig{}
	applyDaemonDefaults(example.Daemon)
	example.Daemon.Webhook.Secret = "${DOCGATE_WEBHOOK_SECRET}"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write configuration file").WithContext("path", path).Build()
	}
	return nil
}
