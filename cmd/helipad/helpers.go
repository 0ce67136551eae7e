package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helipad/internal/boost"
	"github.com/dgnsrekt/helipad/internal/lightning"
	"github.com/dgnsrekt/helipad/internal/lnaddress"
	"github.com/dgnsrekt/helipad/internal/metrics"
	"github.com/dgnsrekt/helipad/internal/podcastindex"
	"github.com/dgnsrekt/helipad/internal/store"
)

// connectNode dials lnd with the configured credentials.
func connectNode(ctx context.Context) (*lightning.LndNode, error) {
	node, err := lightning.Connect(ctx, lightning.NodeConfig{
		Address:      cfg.Node.Address,
		CertPath:     cfg.Node.CertPath,
		MacaroonPath: cfg.Node.MacaroonPath,
		Timeout:      cfg.NodeTimeout(),
		SendTimeout:  cfg.SendTimeout(),
	}, logger.Named("lnd"))
	if err != nil {
		return nil, fmt.Errorf("connecting to node: %w", err)
	}
	return node, nil
}

func openStore() (*store.Store, error) {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	logger.Debug("database opened", zap.String("path", cfg.Database.Path))
	return st, nil
}

// newDecoder builds the TLV decoder with cached PodcastIndex lookups of
// remote items.
func newDecoder(m *metrics.Metrics) (*boost.Decoder, error) {
	pi := cfg.PodcastIndex
	client := podcastindex.NewClient(podcastindex.ClientConfig{
		BaseURL:       pi.BaseURL,
		UserAgent:     "Helipad/" + version,
		APIKey:        pi.APIKey,
		APISecret:     pi.APISecret,
		RatePerSecond: pi.RatePerSecond,
		Timeout:       time.Duration(pi.TimeoutSec) * time.Second,
	}, logger.Named("podcastindex"))

	cache, err := podcastindex.NewLRUCache(pi.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating remote item cache: %w", err)
	}
	resolver := podcastindex.NewResolver(client, cache, m, logger.Named("podcastindex"))
	return boost.NewDecoder(resolver, logger.Named("decoder")), nil
}

func newSender(node *lightning.LndNode, m *metrics.Metrics) *lightning.Sender {
	resolver := lnaddress.NewResolver(
		time.Duration(cfg.LnAddress.TimeoutSec)*time.Second,
		logger.Named("lnaddress"),
	)
	return lightning.NewSender(node, resolver, m, logger.Named("keysend"))
}
