// Package poller mirrors the node's invoice and payment logs into the store.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helipad/internal/boost"
	"github.com/dgnsrekt/helipad/internal/metrics"
	"github.com/dgnsrekt/helipad/internal/tlv"
)

const (
	DefaultInterval  = 9 * time.Second
	DefaultBatchSize = 500

	streamInvoices = "invoices"
	streamPayments = "payments"
)

var podcastingKey = uint64(tlv.Podcasting20)

// Node is the part of the node RPC the poller reads from.
type Node interface {
	ChannelBalance(ctx context.Context) (int64, error)
	ListInvoices(ctx context.Context, fromIndex, max uint64) ([]*lnrpc.Invoice, error)
	ListPayments(ctx context.Context, fromIndex, max uint64) ([]*lnrpc.Payment, error)
}

// Store holds the watermarks and the records they cover.
type Store interface {
	LastBoostIndex(ctx context.Context) (uint64, error)
	LastPaymentIndex(ctx context.Context) (uint64, error)
	AddInvoice(ctx context.Context, rec *boost.Record) error
	AddPayment(ctx context.Context, rec *boost.Record) error
	AddWalletBalance(ctx context.Context, balanceSat int64) error
}

// Decoder overlays a podcasting payload onto a record.
type Decoder interface {
	Decode(ctx context.Context, rec *boost.Record, raw []byte) error
}

// Publisher receives every record after it is stored.
type Publisher interface {
	Publish(ctx context.Context, rec *boost.Record)
}

// Publishers fans a record out to several publishers in order.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, rec *boost.Record) {
	for _, p := range ps {
		p.Publish(ctx, rec)
	}
}

// Config controls the poll cadence.
type Config struct {
	Interval  time.Duration
	BatchSize uint64
}

// Poller runs sequential poll cycles against one node.
type Poller struct {
	node      Node
	store     Store
	decoder   Decoder
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	interval  time.Duration
	batchSize uint64
}

// New creates a Poller. publisher may be nil.
func New(cfg Config, node Node, store Store, decoder Decoder, publisher Publisher, m *metrics.Metrics, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if publisher == nil {
		publisher = Publishers(nil)
	}
	return &Poller{
		node:      node,
		store:     store,
		decoder:   decoder,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

// Run polls until ctx is cancelled. The next cycle is scheduled only after
// the previous one has finished, so cycles never overlap.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started",
		zap.Duration("interval", p.interval),
		zap.Uint64("batchSize", p.batchSize),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return ctx.Err()

		case <-timer.C:
			start := time.Now()
			if err := p.Cycle(ctx); err != nil {
				p.logger.Debug("poll cycle incomplete", zap.Error(err))
			} else {
				p.logger.Debug("poll cycle complete", zap.Duration("duration", time.Since(start)))
			}
			timer.Reset(p.interval)
		}
	}
}

// Cycle samples the balance and processes one batch from each log. Every
// stage runs even when an earlier one fails; the failures are logged and
// returned joined.
func (p *Poller) Cycle(ctx context.Context) error {
	var errs []error

	if err := p.sampleBalance(ctx); err != nil {
		p.logger.Warn("balance sample failed", zap.Error(err))
		errs = append(errs, err)
	}
	if err := p.pollInvoices(ctx); err != nil {
		p.logger.Error("invoice poll failed", zap.Error(err))
		errs = append(errs, err)
	}
	if err := p.pollPayments(ctx); err != nil {
		p.logger.Error("payment poll failed", zap.Error(err))
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (p *Poller) sampleBalance(ctx context.Context) error {
	balance, err := p.node.ChannelBalance(ctx)
	if err != nil {
		p.metrics.RPCFailed("channel_balance")
		return err
	}
	p.metrics.SetBalance(balance)

	if err := p.store.AddWalletBalance(ctx, balance); err != nil {
		p.metrics.PersistFailed("balances")
		return err
	}
	return nil
}

func (p *Poller) pollInvoices(ctx context.Context) error {
	from, err := p.store.LastBoostIndex(ctx)
	if err != nil {
		return err
	}

	invoices, err := p.node.ListInvoices(ctx, from, p.batchSize)
	if err != nil {
		p.metrics.RPCFailed("list_invoices")
		return err
	}

	var persistErr error
	for _, inv := range invoices {
		rec := p.invoiceRecord(ctx, inv)

		if err := p.store.AddInvoice(ctx, rec); err != nil {
			p.metrics.PersistFailed(streamInvoices)
			persistErr = err
			break
		}
		p.metrics.RecordProcessed(streamInvoices)
		p.publisher.Publish(ctx, rec)
	}

	last, err := p.store.LastBoostIndex(ctx)
	if err != nil {
		return errors.Join(persistErr, err)
	}
	p.metrics.SetWatermark(streamInvoices, last)

	if len(invoices) > 0 {
		p.logger.Info("invoices processed",
			zap.Int("fetched", len(invoices)),
			zap.Uint64("from", from),
			zap.Uint64("watermark", last),
		)
	}
	return persistErr
}

func (p *Poller) invoiceRecord(ctx context.Context, inv *lnrpc.Invoice) *boost.Record {
	rec := boost.NewInvoiceRecord(inv.AddIndex, inv.SettleDate, inv.AmtPaidSat)

	for _, htlc := range inv.Htlcs {
		raw, ok := htlc.CustomRecords[podcastingKey]
		if !ok {
			continue
		}
		p.decode(ctx, rec, raw)
		break
	}
	return rec
}

func (p *Poller) pollPayments(ctx context.Context) error {
	from, err := p.store.LastPaymentIndex(ctx)
	if err != nil {
		return err
	}

	payments, err := p.node.ListPayments(ctx, from, p.batchSize)
	if err != nil {
		p.metrics.RPCFailed("list_payments")
		return err
	}

	var (
		persistErr error
		boosts     int
	)
	for _, pay := range payments {
		rec := p.paymentRecord(ctx, pay)
		if rec == nil {
			continue
		}

		if err := p.store.AddPayment(ctx, rec); err != nil {
			p.metrics.PersistFailed(streamPayments)
			persistErr = fmt.Errorf("payment %d: %w", pay.PaymentIndex, err)
			break
		}
		boosts++
		p.metrics.RecordProcessed(streamPayments)
		p.publisher.Publish(ctx, rec)
	}

	last, err := p.store.LastPaymentIndex(ctx)
	if err != nil {
		return errors.Join(persistErr, err)
	}
	p.metrics.SetWatermark(streamPayments, last)

	if len(payments) > 0 {
		p.logger.Info("payments processed",
			zap.Int("fetched", len(payments)),
			zap.Int("boosts", boosts),
			zap.Uint64("from", from),
			zap.Uint64("watermark", last),
		)
	}
	return persistErr
}

// paymentRecord returns nil when no HTLC's final hop carries a podcasting
// payload.
func (p *Poller) paymentRecord(ctx context.Context, pay *lnrpc.Payment) *boost.Record {
	for _, htlc := range pay.Htlcs {
		hops := htlc.GetRoute().GetHops()
		if len(hops) == 0 {
			continue
		}
		hop := hops[len(hops)-1]

		raw, ok := hop.CustomRecords[podcastingKey]
		if !ok {
			continue
		}

		info := boost.PaymentInfo{
			Pubkey:  hop.PubKey,
			FeeMsat: pay.FeeMsat,
		}
		// The highest wallet identity key present wins.
		for key, value := range hop.CustomRecords {
			if tlv.IsWalletIdentity(key) && key > info.CustomKey {
				info.CustomKey = key
				info.CustomValue = string(value)
			}
		}
		if info.CustomKey != 0 {
			p.logger.Debug("payment carries wallet identity",
				zap.Uint64("index", pay.PaymentIndex),
				zap.Stringer("walletKey", tlv.Type(info.CustomKey)),
			)
		}

		rec := boost.NewPaymentRecord(pay.PaymentIndex, pay.CreationTimeNs, pay.ValueMsat, info)
		p.decode(ctx, rec, raw)
		return rec
	}
	return nil
}

func (p *Poller) decode(ctx context.Context, rec *boost.Record, raw []byte) {
	if err := p.decoder.Decode(ctx, rec, raw); err != nil {
		p.metrics.DecodeFailed()
		p.logger.Warn("undecodable podcasting payload",
			zap.Uint64("index", rec.Index),
			zap.Error(err),
		)
	}
}
