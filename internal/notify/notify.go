package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helipad/internal/boost"
)

// Notifier announces received boosts.
type Notifier interface {
	Publish(ctx context.Context, rec *boost.Record)
	Wait()
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     *Config
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewClient creates a new ntfy client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.timeout(),
		},
		config: cfg,
		logger: logger,
	}
}

// Publish sends a notification in the background for received boosts at or
// above the configured minimum. Other records are ignored.
func (c *Client) Publish(ctx context.Context, rec *boost.Record) {
	if !c.shouldNotify(rec) {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.SendBoost(context.WithoutCancel(ctx), rec)
	}()
}

// Wait blocks until background notifications have finished.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) shouldNotify(rec *boost.Record) bool {
	if !c.config.Enabled || rec.PaymentInfo != nil || rec.Action != boost.ActionBoost {
		return false
	}
	return rec.ValueMsatTotal/1000 >= c.config.MinSats
}

// SendBoost sends a boost notification.
func (c *Client) SendBoost(ctx context.Context, rec *boost.Record) error {
	if !c.config.Enabled {
		return nil
	}

	tags := c.config.Tags + ",zap"
	return c.send(ctx, FormatTitle(rec), FormatMessage(rec), tags, c.config.Priority)
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", strings.TrimPrefix(tags, ","))

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain response body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification failed",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

// NoopNotifier is used when notifications are disabled.
type NoopNotifier struct{}

func (n *NoopNotifier) Publish(_ context.Context, _ *boost.Record) {}

func (n *NoopNotifier) Wait() {}

// New creates the appropriate notifier based on config.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
