// Package config loads orchestrator configuration from the project-level
// .samocode file and the environment. Project settings name the directories
// the orchestrator owns; runtime settings tune the agent CLI invocation and
// notifications. Both are loaded once at startup into immutable values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Project holds settings from the .samocode file. All paths are absolute
// after loading.
type Project struct {
	Repo      string // base git repository, empty for standalone projects
	Worktrees string // directory where per-session worktrees live
	Sessions  string // directory where name-based sessions live
}

// Runtime holds settings from the environment with built-in defaults.
type Runtime struct {
	ClaudePath    string // agent CLI binary, default "claude" from PATH
	Model         string
	MaxTurns      int
	TimeoutSec    int // wall-clock budget for one invocation
	MaxRetries    int
	RetryDelaySec int
	BranchPrefix  string // optional prefix for worktree branch names

	Notify Notify
}

// Notify holds notification channel settings. Everything here is optional:
// missing settings disable the channel, they never fail startup.
type Notify struct {
	Channels      []string
	TelegramToken string
	TelegramChat  string
	SlackToken    string
	SlackChannel  string
	WebhookURLs   []string
	SMTPHost      string
	SMTPPort      int
	EmailFrom     string
	EmailTo       []string
	TimeoutMs     int
}

// Config is the combined orchestrator configuration.
type Config struct {
	Project Project
	Runtime Runtime
}

// LoadProject parses a .samocode file: KEY=value lines in the default
// section, # comments, first "=" splits. SESSIONS and WORKTREES are
// required; REPO is optional and usually supplied per run via --repo.
func LoadProject(path string) (Project, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from CLI flag
	if err != nil {
		return Project{}, fmt.Errorf("read config %s: %w", path, err)
	}

	// IgnoreInlineComment keeps # inside values from being stripped
	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, data)
	if err != nil {
		return Project{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	section := cfg.Section("") // keys live outside any section header
	var p Project
	if key, kerr := section.GetKey("REPO"); kerr == nil {
		p.Repo = strings.TrimSpace(key.String())
	}
	if key, kerr := section.GetKey("WORKTREES"); kerr == nil {
		p.Worktrees = strings.TrimSpace(key.String())
	}
	if key, kerr := section.GetKey("SESSIONS"); kerr == nil {
		p.Sessions = strings.TrimSpace(key.String())
	}

	if p.Sessions == "" {
		return Project{}, fmt.Errorf("%s: SESSIONS is required (sessions directory)", path)
	}
	if p.Worktrees == "" {
		return Project{}, fmt.Errorf("%s: WORKTREES is required (worktrees directory)", path)
	}

	configDir := filepath.Dir(path)
	p.Sessions = absolutize(p.Sessions, configDir)
	p.Worktrees = absolutize(p.Worktrees, configDir)
	if p.Repo != "" {
		p.Repo = absolutize(p.Repo, configDir)
	}
	return p, nil
}

// absolutize expands ~ and resolves relative paths against base.
func absolutize(p, base string) string {
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return filepath.Clean(p)
}

// LoadRuntime reads runtime settings from the environment, falling back to
// defaults matching a 30 minute invocation budget and 3 attempts.
func LoadRuntime() Runtime {
	return Runtime{
		ClaudePath:    envOr("CLAUDE_PATH", "claude"),
		Model:         envOr("CLAUDE_MODEL", "opus"),
		MaxTurns:      envInt("CLAUDE_MAX_TURNS", 120),
		TimeoutSec:    envInt("CLAUDE_TIMEOUT", 1800),
		MaxRetries:    envInt("SAMOCODE_MAX_RETRIES", 3),
		RetryDelaySec: envInt("SAMOCODE_RETRY_DELAY", 5),
		BranchPrefix:  os.Getenv("GIT_BRANCH_PREFIX"),
		Notify: Notify{
			Channels:      envList("NOTIFY_CHANNELS"),
			TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			TelegramChat:  os.Getenv("TELEGRAM_CHAT_ID"),
			SlackToken:    os.Getenv("NOTIFY_SLACK_TOKEN"),
			SlackChannel:  os.Getenv("NOTIFY_SLACK_CHANNEL"),
			WebhookURLs:   envList("NOTIFY_WEBHOOK_URLS"),
			SMTPHost:      os.Getenv("NOTIFY_SMTP_HOST"),
			SMTPPort:      envInt("NOTIFY_SMTP_PORT", 587),
			EmailFrom:     os.Getenv("NOTIFY_EMAIL_FROM"),
			EmailTo:       envList("NOTIFY_EMAIL_TO"),
			TimeoutMs:     envInt("NOTIFY_TIMEOUT_MS", 10000),
		},
	}
}

// Validate returns fatal configuration errors. Notification gaps are not
// errors here: channels missing their settings are skipped at service
// construction.
func (c Config) Validate() []string {
	var errs []string

	if c.Runtime.MaxTurns < 1 {
		errs = append(errs, fmt.Sprintf("invalid max turns: %d", c.Runtime.MaxTurns))
	}
	if c.Runtime.TimeoutSec < 1 {
		errs = append(errs, fmt.Sprintf("invalid timeout: %d", c.Runtime.TimeoutSec))
	}
	if c.Runtime.MaxRetries < 1 {
		errs = append(errs, fmt.Sprintf("invalid max retries: %d", c.Runtime.MaxRetries))
	}

	if c.Project.Repo != "" {
		if fi, err := os.Stat(c.Project.Repo); err != nil || !fi.IsDir() {
			errs = append(errs, fmt.Sprintf("repo path does not exist: %s", c.Project.Repo))
		}
	}

	// the claude binary must resolve either as a path or via PATH
	if strings.ContainsRune(c.Runtime.ClaudePath, os.PathSeparator) {
		if _, err := os.Stat(c.Runtime.ClaudePath); err != nil {
			errs = append(errs, fmt.Sprintf("claude CLI not found at %s", c.Runtime.ClaudePath))
		}
	}

	return errs
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
