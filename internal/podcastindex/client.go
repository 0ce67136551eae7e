package podcastindex

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.podcastindex.org"

// Fetcher interface for testability
type Fetcher interface {
	EpisodeByGUID(ctx context.Context, podcastGUID, episodeGUID string) (*Episode, error)
}

// Episode is a podcast/episode title pair resolved from the directory.
type Episode struct {
	PodcastGUID string `json:"podcast_guid"`
	EpisodeGUID string `json:"episode_guid"`
	Podcast     string `json:"podcast"`
	Episode     string `json:"episode"`
}

type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	apiKey     string
	apiSecret  string
	limiter    *rate.Limiter
	logger     *zap.Logger
	now        func() time.Time
}

// ClientConfig configures the directory client. APIKey and APISecret are
// optional; when both are set requests carry PodcastIndex auth headers.
type ClientConfig struct {
	BaseURL       string
	UserAgent     string
	APIKey        string
	APISecret     string
	RatePerSecond int
	Timeout       time.Duration
}

type episodeResponse struct {
	Status any `json:"status"`
	Query  struct {
		PodcastGUID *string `json:"podcastguid"`
		EpisodeGUID *string `json:"episodeguid"`
	} `json:"query"`
	Value *struct {
		FeedTitle *string `json:"feedTitle"`
		Title     *string `json:"title"`
	} `json:"value"`
}

func NewClient(cfg ClientConfig, logger *zap.Logger) *HTTPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	ratePerSec := cfg.RatePerSecond
	if ratePerSec < 1 {
		ratePerSec = 1
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
			Timeout: cfg.Timeout,
		},
		baseURL:   baseURL,
		userAgent: cfg.UserAgent,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		logger:    logger,
		now:       time.Now,
	}
}

// EpisodeByGUID looks up an episode by its podcast and episode guids.
// It returns ErrNotFound when the directory does not know the pair and
// ErrMalformedResponse when required fields are missing.
func (c *HTTPClient) EpisodeByGUID(ctx context.Context, podcastGUID, episodeGUID string) (*Episode, error) {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	query := url.Values{}
	query.Set("podcastguid", podcastGUID)
	query.Set("episodeguid", episodeGUID)
	endpoint := c.baseURL + "/api/1.0/value/byepisodeguid?" + query.Encode()
	c.logger.Debug("requesting", zap.String("url", endpoint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrAuthFailed
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var er episodeResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if status, _ := er.Status.(string); status != "true" {
		return nil, ErrNotFound
	}
	if er.Query.PodcastGUID == nil || er.Query.EpisodeGUID == nil ||
		er.Value == nil || er.Value.FeedTitle == nil || er.Value.Title == nil {
		return nil, ErrMalformedResponse
	}

	return &Episode{
		PodcastGUID: *er.Query.PodcastGUID,
		EpisodeGUID: *er.Query.EpisodeGUID,
		Podcast:     *er.Value.FeedTitle,
		Episode:     *er.Value.Title,
	}, nil
}

func (c *HTTPClient) setAuthHeaders(req *http.Request) {
	if c.apiKey == "" || c.apiSecret == "" {
		return
	}
	date := strconv.FormatInt(c.now().Unix(), 10)
	sum := sha1.Sum([]byte(c.apiKey + c.apiSecret + date))

	req.Header.Set("X-Auth-Key", c.apiKey)
	req.Header.Set("X-Auth-Date", date)
	req.Header.Set("Authorization", hex.EncodeToString(sum[:]))
}
