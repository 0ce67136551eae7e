// Package lnaddress resolves keysend lightning addresses
// (user@domain) into a node pubkey and optional custom record.
package lnaddress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultEndpoint is the well-known keysend path; the first verb is the
// domain and the second the local part.
const DefaultEndpoint = "https://%s/.well-known/keysend/%s"

var ErrInvalidAddress = errors.New("invalid lightning address")

// ResolveError reports why an address could not be turned into a pubkey.
type ResolveError struct {
	Address string
	Err     error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolving lightning address %s: %v", e.Address, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Response is the keysend document served by the address domain.
type Response struct {
	Status     string       `json:"status"`
	Tag        string       `json:"tag"`
	Pubkey     string       `json:"pubkey"`
	CustomData []CustomData `json:"customData"`
}

type CustomData struct {
	CustomKey   string `json:"customKey"`
	CustomValue string `json:"customValue"`
}

// Custom returns the first custom record entry. Later entries are ignored.
func (r *Response) Custom() (key uint64, value string, ok bool, err error) {
	if len(r.CustomData) == 0 {
		return 0, "", false, nil
	}
	first := r.CustomData[0]
	key, err = strconv.ParseUint(first.CustomKey, 10, 64)
	if err != nil {
		return 0, "", false, fmt.Errorf("parsing custom key %q: %w", first.CustomKey, err)
	}
	return key, first.CustomValue, true, nil
}

// IsAddress reports whether destination should be resolved rather than
// used as a pubkey.
func IsAddress(destination string) bool {
	return strings.Contains(destination, "@")
}

// Split validates an email-shaped address and returns its parts.
func Split(address string) (local, domain string, err error) {
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Name != "" || parsed.Address != address {
		return "", "", ErrInvalidAddress
	}
	parts := strings.Split(address, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidAddress
	}
	return parts[0], parts[1], nil
}

type Resolver struct {
	httpClient *http.Client
	endpoint   string
	logger     *zap.Logger
}

type Option func(*Resolver)

// WithEndpoint overrides the URL template used for lookups.
func WithEndpoint(format string) Option {
	return func(r *Resolver) { r.endpoint = format }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.httpClient = c }
}

func NewResolver(timeout time.Duration, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   DefaultEndpoint,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches the keysend document for address. Every failure is
// returned as a *ResolveError.
func (r *Resolver) Resolve(ctx context.Context, address string) (*Response, error) {
	local, domain, err := Split(address)
	if err != nil {
		return nil, &ResolveError{Address: address, Err: err}
	}

	url := fmt.Sprintf(r.endpoint, domain, local)
	r.logger.Info("resolving lightning address",
		zap.String("address", address),
		zap.String("url", url),
	)

	data, err := r.fetch(ctx, url)
	if err != nil {
		return nil, &ResolveError{Address: address, Err: err}
	}

	if data.Pubkey == "" {
		return nil, &ResolveError{Address: address, Err: errors.New("response has no pubkey")}
	}

	fields := []zap.Field{
		zap.String("address", address),
		zap.String("pubkey", data.Pubkey),
	}
	if len(data.CustomData) > 0 {
		fields = append(fields,
			zap.String("customKey", data.CustomData[0].CustomKey),
			zap.String("customValue", data.CustomData[0].CustomValue),
		)
	}
	r.logger.Info("lightning address resolved", fields...)

	return data, nil
}

func (r *Resolver) fetch(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var data Response
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &data, nil
}
