package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

var knownEvents = []string{"push", "pull_request"}

// Validate checks the configuration after defaults have been applied.
func Validate(cfg *Config) error {
	checks := []func(*Config) error{
		validateTrigger,
		validateRepository,
		validateGenerator,
		validateLinkCheck,
		validateNATS,
		validateDaemon,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return errors.ValidationError(fmt.Sprintf(format, args...)).WithContext("field", field).Build()
}

func validateTrigger(cfg *Config) error {
	for _, ev := range cfg.Trigger.Events {
		if !slices.Contains(knownEvents, ev) {
			return invalid("trigger.events", "unsupported trigger event %q (supported: %s)", ev, strings.Join(knownEvents, ", "))
		}
	}
	for _, b := range cfg.Trigger.Branches {
		trimmed := strings.TrimSpace(b)
		if trimmed == "" {
			return invalid("trigger.branches", "empty branch pattern")
		}
		if strings.Contains(strings.TrimSuffix(trimmed, "*"), "*") {
			return invalid("trigger.branches", "branch pattern %q: only a single trailing '*' is supported", b)
		}
	}
	return nil
}

func validateRepository(cfg *Config) error {
	auth := cfg.Repository.Auth
	if auth == nil {
		return nil
	}
	switch auth.Type {
	case AuthTypeToken:
		if auth.Token == "" {
			return invalid("repository.auth.token", "token authentication requires a token")
		}
	case AuthTypeBasic:
		if auth.Username == "" || auth.Password == "" {
			return invalid("repository.auth", "basic authentication requires username and password")
		}
	case AuthTypeNone, AuthTypeSSH:
	}
	return nil
}

func validateGenerator(cfg *Config) error {
	if strings.TrimSpace(cfg.Generator.SourceDir) == "" {
		return invalid("generator.source_dir", "source_dir must not be empty")
	}
	if strings.HasPrefix(cfg.Generator.OutputDir, "..") || strings.HasPrefix(cfg.Generator.SourceDir, "..") {
		return invalid("generator", "source_dir and output_dir must stay inside the checkout")
	}
	return nil
}

func validateLinkCheck(cfg *Config) error {
	if _, err := time.ParseDuration(cfg.LinkCheck.RequestTimeout); err != nil {
		return invalid("linkcheck.request_timeout", "invalid duration %q", cfg.LinkCheck.RequestTimeout)
	}
	for _, pattern := range cfg.LinkCheck.Ignore {
		if _, err := regexp.Compile(pattern); err != nil {
			return invalid("linkcheck.ignore", "invalid ignore pattern %q: %v", pattern, err)
		}
	}
	return nil
}

func validateNATS(cfg *Config) error {
	if cfg.NATS == nil {
		return nil
	}
	if cfg.NATS.URL == "" {
		return invalid("nats.url", "nats.url is required when the nats section is present")
	}
	if _, err := time.ParseDuration(cfg.NATS.CacheTTL); err != nil {
		return invalid("nats.cache_ttl", "invalid duration %q", cfg.NATS.CacheTTL)
	}
	return nil
}

func validateDaemon(cfg *Config) error {
	d := cfg.Daemon
	if d == nil {
		return nil
	}
	if d.HTTP.WebhookPort == d.HTTP.AdminPort {
		return invalid("daemon.http", "webhook_port and admin_port must differ")
	}
	if d.Schedule.Cron == "" && d.Schedule.Interval != "" {
		interval, err := time.ParseDuration(d.Schedule.Interval)
		if err != nil {
			return invalid("daemon.schedule.interval", "invalid duration %q", d.Schedule.Interval)
		}
		if interval < time.Minute {
			return invalid("daemon.schedule.interval", "interval must be at least 1m, got %s", interval)
		}
	}
	if d.Schedule.Cron != "" && len(strings.Fields(d.Schedule.Cron)) != 5 {
		return invalid("daemon.schedule.cron", "cron expression %q must have five fields", d.Schedule.Cron)
	}
	return nil
}
