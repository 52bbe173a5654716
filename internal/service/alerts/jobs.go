package alerts

import (
	"context"
	"fmt"

	pkghttp "TradeLoop/pkg/http"
	"TradeLoop/pkg/logger"
	"TradeLoop/pkg/queue"
)

// WebhookJob delivers queued alerts to a chat or paging webhook. A failed post is
// returned so the queue retries it.
type WebhookJob struct {
	client *pkghttp.Client
	path   string
}

func NewWebhookJob(client *pkghttp.Client, path string) *WebhookJob {
	return &WebhookJob{client: client, path: path}
}

func (j *WebhookJob) Name() string { return "alert_webhook" }
func (j *WebhookJob) Type() string { return MsgTypeAlert }

func (j *WebhookJob) Handle(ctx context.Context, payload []byte) error {
	a, err := queue.Decode[Alert](payload)
	if err != nil {
		return err
	}
	body := map[string]string{
		"text": fmt.Sprintf("[%s] %s: %s", a.Severity, a.Source, a.Message),
	}
	if err := j.client.Post(ctx, j.path, body, nil); err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	return nil
}

// DigestJob delivers batched error logs produced by the logger digest.
type DigestJob struct {
	client *pkghttp.Client
	path   string
	log    *logger.Logger
}

func NewDigestJob(l *logger.Logger, client *pkghttp.Client, path string) *DigestJob {
	return &DigestJob{client: client, path: path, log: l}
}

func (j *DigestJob) Name() string { return "log_digest_webhook" }
func (j *DigestJob) Type() string { return "log_digest" }

func (j *DigestJob) Handle(ctx context.Context, payload []byte) error {
	entries, err := queue.Decode[[]logger.DigestEntry](payload)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	total := 0
	for _, e := range entries {
		total += e.Count
	}
	text := fmt.Sprintf("%d distinct errors (%d total) since %s", len(entries), total, entries[0].FirstSeen.Format("15:04:05"))
	for i, e := range entries {
		if i == 5 {
			text += fmt.Sprintf("\n... and %d more", len(entries)-i)
			break
		}
		text += fmt.Sprintf("\n%dx %s (%s)", e.Count, e.Message, e.Caller)
	}
	if err := j.client.Post(ctx, j.path, map[string]string{"text": text}, nil); err != nil {
		return fmt.Errorf("post digest: %w", err)
	}
	return nil
}

var (
	_ queue.Job = (*WebhookJob)(nil)
	_ queue.Job = (*DigestJob)(nil)
)
