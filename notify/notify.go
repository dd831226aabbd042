// Package notify implements the Notifier and EscalationGateway ports
// (spec §6, §3 C3). Outbound SMS/WhatsApp/email gateways are explicitly
// out of scope (spec §1) — this package's Notifier logs the outbound
// side-effect the way the teacher's pkg/communication adapters log a
// delivery attempt, gated by ChannelsConfig and deferred for non-critical
// traffic during quiet hours (spec §6's channels/quietHours table). The
// EscalationGateway is the one channel the pack actually supplies a
// library for: github.com/slack-go/slack, posting L1-L4 escalations to an
// incoming webhook.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
)

// ChannelSet mirrors core.ChannelsConfig's enabled bits, kept local so this
// package doesn't need to import core's whole Config for five booleans.
type ChannelSet struct {
	SMS      bool
	WhatsApp bool
	Email    bool
	InApp    bool
	Voice    bool
}

// QuietHours mirrors core.QuietHoursConfig.
type QuietHours struct {
	StartHour int
	EndHour   int
}

// inQuietHours reports whether t's hour falls in [start,end), wrapping
// past midnight (e.g. 22 -> 7).
func (q QuietHours) inQuietHours(t time.Time) bool {
	h := t.Hour()
	if q.StartHour == q.EndHour {
		return false
	}
	if q.StartHour < q.EndHour {
		return h >= q.StartHour && h < q.EndHour
	}
	return h >= q.StartHour || h < q.EndHour
}

type clockPort interface {
	Now() time.Time
}

// Channel implements ports.Notifier. Every method returns an error for the
// caller to log; failures are never fatal to the agent that triggered them
// (spec §7).
type Channel struct {
	channels ChannelSet
	quiet    QuietHours
	clock    clockPort
	logger   core.Logger

	deferred chan deferredSend
}

type deferredSend struct {
	kind string
	to   string
	msg  string
}

func NewChannel(channels ChannelSet, quiet QuietHours, clk clockPort, logger core.Logger) *Channel {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("notify/channel")
	}
	return &Channel{channels: channels, quiet: quiet, clock: clk, logger: logger, deferred: make(chan deferredSend, 256)}
}

// send applies the channel-enabled gate and quiet-hours deferral (spec
// §6's "Defer non-critical notifications") uniformly across SMS/Email/
// InApp/Voice.
func (c *Channel) send(ctx context.Context, kind, enabled string, on bool, to, msg string, critical bool) error {
	if !on {
		c.logger.Debug("notify: channel disabled, dropping message", map[string]interface{}{"channel": enabled, "to": to})
		return nil
	}
	if !critical && c.quiet.inQuietHours(c.clock.Now()) {
		select {
		case c.deferred <- deferredSend{kind: kind, to: to, msg: msg}:
		default:
		}
		c.logger.Info("notify: deferred non-critical message during quiet hours", map[string]interface{}{"channel": enabled, "to": to})
		return nil
	}
	c.logger.Info("notify: sent", map[string]interface{}{"channel": enabled, "to": to, "message": msg})
	return nil
}

func (c *Channel) SMS(ctx context.Context, phone, msg string) error {
	return c.send(ctx, "sms", "sms", c.channels.SMS, phone, msg, false)
}

func (c *Channel) Email(ctx context.Context, to, subject, body string) error {
	return c.send(ctx, "email", "email", c.channels.Email, to, fmt.Sprintf("%s: %s", subject, body), false)
}

func (c *Channel) InApp(ctx context.Context, userID string, payload map[string]interface{}) error {
	return c.send(ctx, "in_app", "in_app", c.channels.InApp, userID, fmt.Sprintf("%v", payload), false)
}

func (c *Channel) Voice(ctx context.Context, phone, msg string) error {
	return c.send(ctx, "voice", "voice", c.channels.Voice, phone, msg, true)
}

// DrainDeferred returns and clears every message deferred during quiet
// hours, meant to be replayed once quiet hours end (caller's
// responsibility; this package only buffers).
func (c *Channel) DrainDeferred() []deferredSend {
	var out []deferredSend
	for {
		select {
		case m := <-c.deferred:
			out = append(out, m)
		default:
			return out
		}
	}
}

// SlackGateway implements ports.EscalationGateway by posting to a Slack
// incoming webhook, one message per escalation level (spec §4.6's
// EscalationGateway.notify).
type SlackGateway struct {
	webhookURL string
	logger     core.Logger
}

func NewSlackGateway(webhookURL string, logger core.Logger) *SlackGateway {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("notify/slack-gateway")
	}
	return &SlackGateway{webhookURL: webhookURL, logger: logger}
}

func (g *SlackGateway) Notify(ctx context.Context, level domain.EscalationLevel, payload map[string]interface{}) error {
	if g.webhookURL == "" {
		g.logger.Warn("notify: slack webhook not configured, dropping escalation", map[string]interface{}{"level": string(level)})
		return nil
	}
	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("[%s escalation] %v", level, payload),
	}
	if err := slack.PostWebhookContext(ctx, g.webhookURL, msg); err != nil {
		g.logger.Error("notify: slack webhook post failed", map[string]interface{}{"level": string(level), "error": err.Error()})
		return core.NewError("notify.Slack", core.KindTransient, string(level), err)
	}
	return nil
}
