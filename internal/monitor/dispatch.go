package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/slack-go/slack"

	"github.com/topolane/topolane/internal/monitor/rules"
)

// defaultDispatchTimeout is the spec §5 default alert-dispatch timeout,
// applied by the monitor loop around each destination's Dispatch call.
const defaultDispatchTimeout = 10 * time.Second

// Destination dispatches a batch of alerts somewhere. Dispatch errors are
// non-fatal to the monitor loop (spec §4.H).
type Destination interface {
	Dispatch(ctx context.Context, alerts []rules.Alert) error
}

// ConsoleDestination writes one line per alert to the configured writer,
// prefixed per spec §6: critical alerts get "\U0001F6A8", everything else
// gets "⚠️".
type ConsoleDestination struct {
	Write func(line string)
}

// NewConsoleDestination returns a ConsoleDestination that writes through
// the logger at info level.
func NewConsoleDestination() *ConsoleDestination {
	return &ConsoleDestination{Write: func(line string) { logger.Info(line) }}
}

func (d *ConsoleDestination) Dispatch(ctx context.Context, alerts []rules.Alert) error {
	for _, a := range alerts {
		prefix := "⚠️"
		if a.Severity == rules.SeverityCritical {
			prefix = "\U0001F6A8"
		}
		d.Write(fmt.Sprintf("%s %s: %s", prefix, a.Title, a.Message))
	}
	return nil
}

var _ Destination = (*ConsoleDestination)(nil)

// webhookPayload is the wire shape POSTed to a WebhookDestination's URL.
type webhookPayload struct {
	Alerts []rules.Alert `json:"alerts"`
}

// WebhookDestination POSTs a JSON {"alerts":[...]} body to a configured
// URL using a retrying HTTP client, grounded on aws-karpenter-provider-aws's
// go-retryablehttp dependency.
type WebhookDestination struct {
	url     string
	headers map[string]string
	client  *retryablehttp.Client
}

// NewWebhookDestination returns a WebhookDestination posting to url with
// the given extra headers (content-type is always application/json).
func NewWebhookDestination(url string, headers map[string]string) *WebhookDestination {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	return &WebhookDestination{url: url, headers: headers, client: client}
}

func (d *WebhookDestination) Dispatch(ctx context.Context, alerts []rules.Alert) error {
	body, err := json.Marshal(webhookPayload{Alerts: alerts})
	if err != nil {
		return fmt.Errorf("monitor: marshal webhook payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("monitor: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("monitor: dispatch webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("monitor: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Destination = (*WebhookDestination)(nil)

// CallbackDestination invokes an in-process function for each dispatch.
type CallbackDestination struct {
	Fn func(ctx context.Context, alerts []rules.Alert) error
}

// NewCallbackDestination wraps fn as a Destination.
func NewCallbackDestination(fn func(ctx context.Context, alerts []rules.Alert) error) *CallbackDestination {
	return &CallbackDestination{Fn: fn}
}

func (d *CallbackDestination) Dispatch(ctx context.Context, alerts []rules.Alert) error {
	return d.Fn(ctx, alerts)
}

var _ Destination = (*CallbackDestination)(nil)

// SlackDestination posts an incoming-webhook message summarizing the batch,
// the supplemental destination named in SPEC_FULL.md §H. Grounded on
// jordigilh-kubernaut's slack-go/slack dependency; kubernaut's own call
// site lives in its (absent from the pack) notification controller, so
// this is built directly against slack-go's documented PostWebhook API
// rather than imitated from a concrete call site.
type SlackDestination struct {
	webhookURL string
	post       func(url string, msg *slack.WebhookMessage) error
}

// NewSlackDestination returns a SlackDestination posting to a Slack
// incoming webhook URL.
func NewSlackDestination(webhookURL string) *SlackDestination {
	return &SlackDestination{webhookURL: webhookURL, post: slack.PostWebhook}
}

func (d *SlackDestination) Dispatch(ctx context.Context, alerts []rules.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	lines := make([]string, 0, len(alerts))
	for _, a := range alerts {
		lines = append(lines, fmt.Sprintf("*%s* (%s): %s", a.Title, a.Severity, a.Message))
	}
	msg := &slack.WebhookMessage{Text: strings.Join(lines, "\n")}
	if err := d.post(d.webhookURL, msg); err != nil {
		return fmt.Errorf("monitor: dispatch slack webhook: %w", err)
	}
	return nil
}

var _ Destination = (*SlackDestination)(nil)
