package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samocode/samocode/pkg/config"
)

type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) Print(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *testLogger) joined() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

// stubNotifier records sends and optionally fails.
type stubNotifier struct {
	mu    sync.Mutex
	sends []string // "dest|text"
	err   error
}

func (n *stubNotifier) Send(_ context.Context, dest, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, dest+"|"+text)
	return n.err
}

func (n *stubNotifier) String() string { return "stub" }

func (n *stubNotifier) Schema() string { return "stub" }

func TestNew_NoChannels(t *testing.T) {
	svc, err := New(config.Notify{}, &testLogger{})
	require.NoError(t, err)
	assert.Nil(t, svc, "no channels configured means no service")

	// nil receiver must be safe
	svc.Send(context.Background(), Event{Kind: KindComplete})
}

func TestNew_UnknownChannel(t *testing.T) {
	_, err := New(config.Notify{Channels: []string{"pager"}}, &testLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown notification channel: "pager"`)
}

func TestNew_SlackChannel(t *testing.T) {
	log := &testLogger{}
	svc, err := New(config.Notify{
		Channels:     []string{"slack"},
		SlackToken:   "xoxb-test",
		SlackChannel: "ops",
	}, log)
	require.NoError(t, err)
	require.NotNil(t, svc)
	require.Len(t, svc.channels, 1)
	assert.Equal(t, "slack:ops", svc.channels[0].dest)
	assert.Equal(t, 10000, svc.timeoutMs, "default timeout applied")
}

func TestNew_SlackMissingSettingsDisables(t *testing.T) {
	log := &testLogger{}
	svc, err := New(config.Notify{Channels: []string{"slack"}}, log)
	require.NoError(t, err, "missing settings disable the channel, never fail startup")
	require.NotNil(t, svc)
	assert.Empty(t, svc.channels)
	assert.Contains(t, log.joined(), "slack channel disabled")
	assert.Contains(t, log.joined(), "all notification channels were disabled")
}

func TestNew_WebhookChannels(t *testing.T) {
	svc, err := New(config.Notify{
		Channels:    []string{"webhook"},
		WebhookURLs: []string{"https://a.example.com/hook", "https://b.example.com/hook"},
		TimeoutMs:   5000,
	}, &testLogger{})
	require.NoError(t, err)
	require.Len(t, svc.channels, 2)
	assert.Equal(t, "https://a.example.com/hook", svc.channels[0].dest)
	assert.Equal(t, "https://b.example.com/hook", svc.channels[1].dest)
	assert.Equal(t, 5000, svc.timeoutMs)
}

func TestNew_EmailDestination(t *testing.T) {
	svc, err := New(config.Notify{
		Channels:  []string{"email"},
		SMTPHost:  "smtp.example.com",
		SMTPPort:  587,
		EmailFrom: "bot@example.com",
		EmailTo:   []string{"ops@example.com", "lead@example.com"},
	}, &testLogger{})
	require.NoError(t, err)
	require.Len(t, svc.channels, 1)
	dest := svc.channels[0].dest
	assert.True(t, strings.HasPrefix(dest, "mailto:ops@example.com,lead@example.com?"), dest)
	assert.Contains(t, dest, "from=bot%40example.com")
	assert.Contains(t, dest, "subject=samocode+notification")
}

func TestNew_TelegramMissingToken(t *testing.T) {
	log := &testLogger{}
	svc, err := New(config.Notify{Channels: []string{"telegram"}}, log)
	require.NoError(t, err)
	assert.Empty(t, svc.channels)
	assert.Contains(t, log.joined(), "TELEGRAM_BOT_TOKEN is required")
}

func TestNew_TelegramErrorRedactsToken(t *testing.T) {
	orig := telegramChannelMaker
	defer func() { telegramChannelMaker = orig }()
	telegramChannelMaker = func(p config.Notify) (channel, error) {
		return channel{}, errors.New("api call with token 12345:secret failed")
	}

	log := &testLogger{}
	_, err := New(config.Notify{
		Channels:      []string{"telegram"},
		TelegramToken: "12345:secret",
		TelegramChat:  "42",
	}, log)
	require.NoError(t, err)
	assert.Contains(t, log.joined(), "[REDACTED]")
	assert.NotContains(t, log.joined(), "12345:secret")
}

func TestSend_DeliversToAllChannels(t *testing.T) {
	good := &stubNotifier{}
	bad := &stubNotifier{err: errors.New("network down")}
	log := &testLogger{}
	svc := &Service{
		channels: []channel{
			{notifier: good, dest: "slack:ops"},
			{notifier: bad, dest: "https://example.com/hook"},
		},
		timeoutMs: 1000,
		hostname:  "testhost",
		log:       log,
	}

	svc.Send(context.Background(), Event{
		Kind:      KindComplete,
		Session:   "auth-rework",
		Iteration: 12,
		Summary:   "all tests green",
	})

	require.Len(t, good.sends, 1)
	assert.True(t, strings.HasPrefix(good.sends[0], "slack:ops|"))
	assert.Contains(t, good.sends[0], "samocode complete on testhost")
	require.Len(t, bad.sends, 1, "one failing channel does not stop the others")
	assert.Contains(t, log.joined(), "notification failed")
}

func TestFormatMessage(t *testing.T) {
	svc := &Service{hostname: "buildbox"}

	tests := []struct {
		name     string
		ev       Event
		contains []string
		excludes []string
	}{
		{
			name: "complete with summary",
			ev:   Event{Kind: KindComplete, Session: "s1", Iteration: 7, Summary: "shipped"},
			contains: []string{
				"samocode complete on buildbox",
				"session:    s1",
				"iterations: 7",
				"summary:    shipped",
			},
		},
		{
			name:     "complete without summary",
			ev:       Event{Kind: KindComplete, Session: "s1", Iteration: 7},
			contains: []string{"iterations: 7"},
			excludes: []string{"summary:"},
		},
		{
			name: "blocked",
			ev:   Event{Kind: KindBlocked, Session: "s1", Reason: "budget exceeded", Needs: "human_decision"},
			contains: []string{
				"samocode blocked on buildbox",
				"reason:  budget exceeded",
				"needs:   human_decision",
				"check session files",
			},
		},
		{
			name: "waiting",
			ev:   Event{Kind: KindWaiting, Session: "s1", WaitingFor: "plan_approval"},
			contains: []string{
				"samocode waiting on buildbox",
				"waiting for: plan_approval",
			},
		},
		{
			name: "error truncated",
			ev:   Event{Kind: KindError, Session: "s1", Iteration: 3, Error: strings.Repeat("x", maxErrorLen+50)},
			contains: []string{
				"samocode error on buildbox",
				"iteration: 3",
				strings.Repeat("x", maxErrorLen) + "...",
			},
			excludes: []string{strings.Repeat("x", maxErrorLen+1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := svc.formatMessage(tt.ev)
			for _, want := range tt.contains {
				assert.Contains(t, msg, want)
			}
			for _, notWant := range tt.excludes {
				assert.NotContains(t, msg, notWant)
			}
		})
	}
}
