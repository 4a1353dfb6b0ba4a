// internal/notify/discord.go
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	custom_errors "commit-tracker/internal/errors"
	"commit-tracker/internal/model"
)

// maxErrorBody caps how much of a rejected response is kept for the error.
const maxErrorBody = 512

// Options controls how commits are rendered.
type Options struct {
	WebhookURL   string
	FeedURL      string
	Title        string
	Color        uint32
	BotName      string
	BotAvatarURL string
	// RatePerSec paces webhook calls; values <= 0 disable pacing.
	RatePerSec float64
	Timeout    time.Duration
}

// Discord posts commit embeds to a Discord webhook.
type Discord struct {
	http    *http.Client
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewDiscord creates a Discord notifier.
func NewDiscord(opts Options, logger *slog.Logger) *Discord {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	return &Discord{
		http:    &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

// Notify renders result and sends it to the webhook.
func (d *Discord) Notify(ctx context.Context, result *model.FetchResult) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return &custom_errors.NotifyError{Err: err}
	}

	body, err := json.Marshal(d.BuildPayload(result))
	if err != nil {
		return &custom_errors.NotifyError{Err: fmt.Errorf("encode payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.opts.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return &custom_errors.NotifyError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return &custom_errors.NotifyError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &custom_errors.NotifyError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	d.logger.Debug("Webhook accepted notification", "commit_id", result.Commit.ID, "status", resp.StatusCode)
	return nil
}

// BuildPayload renders the embed for result, stamped with the current time.
func (d *Discord) BuildPayload(result *model.FetchResult) WebhookPayload {
	c := result.Commit
	return WebhookPayload{
		Embeds: []Embed{{
			Title:       d.opts.Title,
			Description: fmt.Sprintf("```\n%s\n```", c.Message),
			Color:       d.opts.Color,
			Author: EmbedAuthor{
				Name:    c.Author,
				URL:     d.opts.FeedURL,
				IconURL: c.AvatarURL,
			},
			Fields: []EmbedField{
				{Name: "📁 Repository", Value: fmt.Sprintf("`%s`", c.Repo), Inline: true},
				{Name: "🌿 Branch", Value: fmt.Sprintf("`%s`", c.Branch), Inline: true},
				{Name: "🔗 Changeset", Value: changesetValue(c), Inline: true},
			},
			Footer: EmbedFooter{
				Text:    footerText(d.opts.BotName, result),
				IconURL: d.opts.BotAvatarURL,
			},
			Timestamp: d.now().UTC().Format(time.RFC3339),
		}},
	}
}

func changesetValue(c model.CommitRecord) string {
	if c.Link == "" {
		return fmt.Sprintf("`%s`", c.Changeset)
	}
	return fmt.Sprintf("[`%s`](%s)", c.Changeset, c.Link)
}

// footerText appends "Commit X of Y" when the feed reported a total.
func footerText(botName string, result *model.FetchResult) string {
	n := result.Number()
	if n == 0 {
		return botName
	}
	label := fmt.Sprintf("Commit %s of %s", humanize.Comma(n), humanize.Comma(result.Total))
	if botName == "" {
		return label
	}
	return botName + " • " + label
}
