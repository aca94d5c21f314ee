package config

import "git.home.luguber.info/inful/docgate/internal/foundation/normalization"

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevels = normalization.NewNormalizer("log level", map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

// NormalizeLogLevel maps a raw level onto a LogLevel (info when unknown).
func NormalizeLogLevel(raw string) LogLevel { return logLevels.Normalize(raw) }

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

var logFormats = normalization.NewNormalizer("log format", map[string]LogFormat{
	"text": LogFormatText,
	"json": LogFormatJSON,
}, LogFormatText)

// LinkCheckMode selects how the link verification step checks links.
type LinkCheckMode string

const (
	// LinkCheckGenerator runs the documentation generator's own link-check builder.
	LinkCheckGenerator LinkCheckMode = "generator"
	// LinkCheckNative extracts links from the built HTML and verifies them in-process.
	LinkCheckNative LinkCheckMode = "native"
)

var linkCheckModes = normalization.NewNormalizer("link check mode", map[string]LinkCheckMode{
	"generator": LinkCheckGenerator,
	"linkcheck": LinkCheckGenerator,
	"native":    LinkCheckNative,
}, LinkCheckGenerator)

// FailurePolicy decides what a class of broken links does to the step.
type FailurePolicy string

const (
	FailurePolicyFail FailurePolicy = "fail"
	FailurePolicyWarn FailurePolicy = "warn"
)

var failurePolicies = normalization.NewNormalizer("failure policy", map[string]FailurePolicy{
	"fail":  FailurePolicyFail,
	"error": FailurePolicyFail,
	"warn":  FailurePolicyWarn,
}, FailurePolicyFail)

// AuthType enumerates checkout authentication methods.
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
	AuthTypeSSH   AuthType = "ssh"
)

var authTypes = normalization.NewNormalizer("auth type", map[string]AuthType{
	"none":  AuthTypeNone,
	"token": AuthTypeToken,
	"basic": AuthTypeBasic,
	"ssh":   AuthTypeSSH,
}, AuthTypeNone)

// ForgeType selects the webhook payload dialect.
type ForgeType string

const (
	ForgeGitHub  ForgeType = "github"
	ForgeForgejo ForgeType = "forgejo"
	ForgeGitLab  ForgeType = "gitlab"
)

var forgeTypes = normalization.NewNormalizer("forge type", map[string]ForgeType{
	"github":  ForgeGitHub,
	"forgejo": ForgeForgejo,
	"gitea":   ForgeForgejo,
	"gitlab":  ForgeGitLab,
}, ForgeGitHub)
