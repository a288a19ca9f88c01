// Package notify delivers workflow stop notifications through configured
// channels. Delivery is fire-and-forget: failures are logged and swallowed,
// never escalated to fail the orchestrator loop.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	ntfy "github.com/go-pkgz/notify"

	"github.com/samocode/samocode/pkg/config"
)

// Kind is the stop condition being reported.
type Kind string

// the four notification kinds surfaced to the operator.
const (
	KindComplete Kind = "complete"
	KindBlocked  Kind = "blocked"
	KindWaiting  Kind = "waiting"
	KindError    Kind = "error"
)

// Event holds the data for one notification.
type Event struct {
	Kind       Kind
	Session    string // display name
	Iteration  int
	Summary    string // complete
	Reason     string // blocked
	Needs      string // blocked
	WaitingFor string // waiting
	Error      string // error
}

// logger interface for dependency injection.
type logger interface {
	Print(format string, args ...any)
}

// channel pairs a notifier with its destination URI.
type channel struct {
	notifier ntfy.Notifier
	dest     string
}

// Service sends events through all configured channels.
type Service struct {
	channels  []channel
	timeoutMs int
	hostname  string // resolved once at creation
	log       logger
}

// New builds a Service from notification settings. Returns nil, nil when no
// channels are configured; Send is nil-safe so callers skip nil checks.
// A channel missing its settings disables that channel with a warning
// instead of failing startup: notifications are best-effort by design.
func New(p config.Notify, log logger) (*Service, error) {
	if len(p.Channels) == 0 {
		return nil, nil //nolint:nilnil // nil,nil means "no channels configured", Send is nil-safe
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	svc := &Service{timeoutMs: p.TimeoutMs, hostname: hostname, log: log}
	if svc.timeoutMs <= 0 {
		svc.timeoutMs = 10000
	}

	for _, name := range p.Channels {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "telegram":
			c, cErr := telegramChannelMaker(p)
			if cErr != nil {
				// telegram init verifies the bot token with a live API call;
				// redact the token before logging
				msg := strings.ReplaceAll(cErr.Error(), p.TelegramToken, "[REDACTED]")
				log.Print("[WARN] telegram channel disabled: %s", msg)
				continue
			}
			svc.channels = append(svc.channels, c)
		case "slack":
			c, cErr := makeSlackChannel(p)
			if cErr != nil {
				log.Print("[WARN] slack channel disabled: %v", cErr)
				continue
			}
			svc.channels = append(svc.channels, c)
		case "webhook":
			chs, cErr := makeWebhookChannels(p)
			if cErr != nil {
				log.Print("[WARN] webhook channel disabled: %v", cErr)
				continue
			}
			svc.channels = append(svc.channels, chs...)
		case "email":
			c, cErr := makeEmailChannel(p)
			if cErr != nil {
				log.Print("[WARN] email channel disabled: %v", cErr)
				continue
			}
			svc.channels = append(svc.channels, c)
		default:
			return nil, fmt.Errorf("unknown notification channel: %q", name)
		}
	}

	if len(svc.channels) == 0 {
		log.Print("[WARN] all notification channels were disabled due to initialization errors")
	}
	return svc, nil
}

// Send delivers the event to all channels. Nil-safe on receiver; errors are
// logged but never returned.
func (s *Service) Send(ctx context.Context, ev Event) {
	if s == nil || len(s.channels) == 0 {
		return
	}

	msg := s.formatMessage(ev)

	sendCtx, cancel := context.WithTimeout(ctx, time.Duration(s.timeoutMs)*time.Millisecond)
	defer cancel()

	for _, ch := range s.channels {
		if err := ch.notifier.Send(sendCtx, ch.dest, msg); err != nil {
			s.log.Print("[WARN] notification failed for %s: %v", ch.notifier, err)
		}
	}
}

// maxErrorLen bounds error text in notifications; full detail lives in logs.
const maxErrorLen = 300

// formatMessage builds the plain text notification body.
func (s *Service) formatMessage(ev Event) string {
	var b strings.Builder

	switch ev.Kind {
	case KindComplete:
		fmt.Fprintf(&b, "samocode complete on %s\n\n", s.hostname)
		fmt.Fprintf(&b, "session:    %s\n", ev.Session)
		fmt.Fprintf(&b, "iterations: %d\n", ev.Iteration)
		if ev.Summary != "" {
			fmt.Fprintf(&b, "summary:    %s\n", ev.Summary)
		}
	case KindBlocked:
		fmt.Fprintf(&b, "samocode blocked on %s\n\n", s.hostname)
		fmt.Fprintf(&b, "session: %s\n", ev.Session)
		fmt.Fprintf(&b, "reason:  %s\n", ev.Reason)
		if ev.Needs != "" {
			fmt.Fprintf(&b, "needs:   %s\n", ev.Needs)
		}
		b.WriteString("\ncheck session files\n")
	case KindWaiting:
		fmt.Fprintf(&b, "samocode waiting on %s\n\n", s.hostname)
		fmt.Fprintf(&b, "session:     %s\n", ev.Session)
		fmt.Fprintf(&b, "waiting for: %s\n", ev.WaitingFor)
		b.WriteString("\ncheck session files\n")
	case KindError:
		errText := ev.Error
		if len(errText) > maxErrorLen {
			errText = errText[:maxErrorLen] + "..."
		}
		fmt.Fprintf(&b, "samocode error on %s\n\n", s.hostname)
		fmt.Fprintf(&b, "session:   %s\n", ev.Session)
		fmt.Fprintf(&b, "iteration: %d\n", ev.Iteration)
		fmt.Fprintf(&b, "error:     %s\n", errText)
	}

	return b.String()
}

// telegramChannelMaker is overridden in tests to avoid live API calls.
var telegramChannelMaker = makeTelegramChannel

func makeTelegramChannel(p config.Notify) (channel, error) {
	if p.TelegramToken == "" {
		return channel{}, errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if p.TelegramChat == "" {
		return channel{}, errors.New("TELEGRAM_CHAT_ID is required")
	}
	tg, err := ntfy.NewTelegram(ntfy.TelegramParams{Token: p.TelegramToken})
	if err != nil {
		return channel{}, fmt.Errorf("create telegram notifier: %w", err)
	}
	return channel{notifier: tg, dest: "telegram:" + p.TelegramChat}, nil
}

func makeSlackChannel(p config.Notify) (channel, error) {
	if p.SlackToken == "" {
		return channel{}, errors.New("NOTIFY_SLACK_TOKEN is required")
	}
	if p.SlackChannel == "" {
		return channel{}, errors.New("NOTIFY_SLACK_CHANNEL is required")
	}
	return channel{notifier: ntfy.NewSlack(p.SlackToken), dest: "slack:" + p.SlackChannel}, nil
}

func makeWebhookChannels(p config.Notify) ([]channel, error) {
	if len(p.WebhookURLs) == 0 {
		return nil, errors.New("NOTIFY_WEBHOOK_URLS is required")
	}
	wh := ntfy.NewWebhook(ntfy.WebhookParams{})
	channels := make([]channel, 0, len(p.WebhookURLs))
	for _, u := range p.WebhookURLs {
		channels = append(channels, channel{notifier: wh, dest: u})
	}
	return channels, nil
}

func makeEmailChannel(p config.Notify) (channel, error) {
	if p.SMTPHost == "" {
		return channel{}, errors.New("NOTIFY_SMTP_HOST is required")
	}
	if p.EmailFrom == "" {
		return channel{}, errors.New("NOTIFY_EMAIL_FROM is required")
	}
	if len(p.EmailTo) == 0 {
		return channel{}, errors.New("NOTIFY_EMAIL_TO is required")
	}

	em := ntfy.NewEmail(ntfy.SMTPParams{Host: p.SMTPHost, Port: p.SMTPPort})
	dest := fmt.Sprintf("mailto:%s?from=%s&subject=%s",
		strings.Join(p.EmailTo, ","),
		url.QueryEscape(p.EmailFrom),
		url.QueryEscape("samocode notification"),
	)
	return channel{notifier: em, dest: dest}, nil
}
