package config

import (
	"path"
	"strings"
)

// Default trigger allow-list: the branches documentation is verified on.
var (
	DefaultTriggerEvents   = []string{"push", "pull_request"}
	DefaultTriggerBranches = []string{"main", "update-*", "doc_patch"}
)

func applyDefaults(cfg *Config) error {
	if cfg.Version == "" {
		cfg.Version = "1"
	}

	if len(cfg.Trigger.Events) == 0 {
		cfg.Trigger.Events = append([]string(nil), DefaultTriggerEvents...)
	}
	if len(cfg.Trigger.Branches) == 0 {
		cfg.Trigger.Branches = append([]string(nil), DefaultTriggerBranches...)
	}

	if cfg.Repository.Branch == "" {
		cfg.Repository.Branch = "main"
	}
	if cfg.Repository.Name == "" && cfg.Repository.URL != "" {
		cfg.Repository.Name = repoNameFromURL(cfg.Repository.URL)
	}
	if cfg.Repository.Depth < 0 {
		cfg.Repository.Depth = 0
	}
	if auth := cfg.Repository.Auth; auth != nil {
		auth.Type = authTypes.Normalize(string(auth.Type))
	}

	if cfg.Provision.Command == "" {
		cfg.Provision.Command = "poetry"
	}
	if cfg.Provision.Extras == nil {
		cfg.Provision.Extras = []string{"docs"}
	}

	if cfg.Generator.Command == "" {
		cfg.Generator.Command = "sphinx-build"
	}
	if cfg.Generator.SourceDir == "" {
		cfg.Generator.SourceDir = "docs"
	}
	if cfg.Generator.OutputDir == "" {
		cfg.Generator.OutputDir = path.Join(cfg.Generator.SourceDir, "_build")
	}
	if cfg.Generator.Builder == "" {
		cfg.Generator.Builder = "html"
	}

	cfg.LinkCheck.Mode = linkCheckModes.Normalize(string(cfg.LinkCheck.Mode))
	cfg.LinkCheck.ExternalFailures = failurePolicies.Normalize(string(cfg.LinkCheck.ExternalFailures))
	if cfg.LinkCheck.RequestTimeout == "" {
		cfg.LinkCheck.RequestTimeout = "15s"
	}
	if cfg.LinkCheck.MaxConcurrent <= 0 {
		cfg.LinkCheck.MaxConcurrent = 8
	}

	if cfg.History.Path == "" {
		cfg.History.Path = "docgate-history.db"
	}

	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = logFormats.Normalize(string(cfg.Logging.Format))

	if cfg.NATS != nil {
		applyNATSDefaults(cfg.NATS)
	}
	if cfg.Daemon != nil {
		applyDaemonDefaults(cfg.Daemon)
		if cfg.Daemon.Schedule.Branch == "" {
			cfg.Daemon.Schedule.Branch = cfg.Repository.Branch
		}
	}
	return nil
}

func applyNATSDefaults(n *NATSConfig) {
	if n.RunSubject == "" {
		n.RunSubject = "docgate.runs"
	}
	if n.BrokenSubject == "" {
		n.BrokenSubject = "docgate.links.broken"
	}
	if n.KVBucket == "" {
		n.KVBucket = "docgate-link-cache"
	}
	if n.CacheTTL == "" {
		n.CacheTTL = "24h"
	}
}

func applyDaemonDefaults(d *DaemonConfig) {
	if d.HTTP.WebhookPort == 0 {
		d.HTTP.WebhookPort = 8090
	}
	if d.HTTP.AdminPort == 0 {
		d.HTTP.AdminPort = 8091
	}
	if d.Webhook.Path == "" {
		d.Webhook.Path = "/webhook"
	} else if !strings.HasPrefix(d.Webhook.Path, "/") {
		d.Webhook.Path = "/" + d.Webhook.Path
	}
	d.Webhook.Forge = forgeTypes.Normalize(string(d.Webhook.Forge))
	if d.QueueSize <= 0 {
		d.QueueSize = 16
	}
}

// repoNameFromURL derives a directory-safe name from a clone URL.
func repoNameFromURL(url string) string {
	url = strings.TrimSuffix(strings.TrimRight(url, "/"), ".git")
	if i := strings.LastIndexAny(url, "/:"); i >= 0 {
		url = url[i+1:]
	}
	if url == "" {
		return "source"
	}
	return url
}
