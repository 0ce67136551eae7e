package lightning

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helipad/internal/boost"
	"github.com/dgnsrekt/helipad/internal/lnaddress"
	"github.com/dgnsrekt/helipad/internal/metrics"
	"github.com/dgnsrekt/helipad/internal/tlv"
)

// pubkeyLen is the size of a compressed secp256k1 public key.
const pubkeyLen = 33

// Payer dispatches a payment through the node.
type Payer interface {
	SendPayment(ctx context.Context, req *lnrpc.SendRequest) (*lnrpc.SendResponse, error)
}

// AddressResolver turns a lightning address into a keysend destination.
type AddressResolver interface {
	Resolve(ctx context.Context, address string) (*lnaddress.Response, error)
}

// SendRequest describes a keysend boost. Destination is either a hex
// pubkey or a lightning address. CustomKey and CustomValue are replaced
// by the address's own custom record when it advertises one.
type SendRequest struct {
	Destination string
	AmountSat   int64
	CustomKey   *uint64
	CustomValue *string
	Payload     []byte
}

// Outcome is a payment the node reported as sent.
type Outcome struct {
	Pubkey      string
	CustomKey   *uint64
	CustomValue *string
	AmountSat   int64
	Preimage    lntypes.Preimage
	PaymentHash lntypes.Hash
	Route       *lnrpc.Route
	Payload     []byte
}

// SentRecord reconciles the outcome into a sent boost record. Amount and
// fee come from the route when the node reported one.
func (o *Outcome) SentRecord() *boost.SentRecord {
	rec := &boost.SentRecord{
		Pubkey:        o.Pubkey,
		CustomKey:     o.CustomKey,
		CustomValue:   o.CustomValue,
		TotalAmtMsat:  o.AmountSat * 1000,
		TotalFeesMsat: boost.UnknownFee,
		PaymentHash:   o.PaymentHash.String(),
		TLV:           string(o.Payload),
	}
	if o.Route != nil {
		rec.TotalAmtMsat = o.Route.TotalAmtMsat
		rec.TotalFeesMsat = o.Route.TotalFeesMsat
	}
	return rec
}

// Sender builds and dispatches keysend payments carrying a podcasting
// payload.
type Sender struct {
	payer    Payer
	resolver AddressResolver
	metrics  *metrics.Metrics
	logger   *zap.Logger
	rand     io.Reader
}

func NewSender(payer Payer, resolver AddressResolver, m *metrics.Metrics, logger *zap.Logger) *Sender {
	return &Sender{
		payer:    payer,
		resolver: resolver,
		metrics:  m,
		logger:   logger,
		rand:     rand.Reader,
	}
}

// Send resolves the destination, attaches a fresh preimage and the payload
// as custom records and sends the payment. Errors wrap ErrInvalidInput,
// ErrResolution or ErrNodeUnavailable, or are a *PaymentError or an
// *InFlightError. Cancelling ctx after dispatch does not cancel the payment.
func (s *Sender) Send(ctx context.Context, req SendRequest) (*Outcome, error) {
	out, err := s.send(ctx, req)

	var payErr *PaymentError
	var inFlight *InFlightError
	switch {
	case err == nil:
		s.metrics.Keysend("success")
	case errors.Is(err, ErrInvalidInput):
		s.metrics.Keysend("invalid_input")
	case errors.Is(err, ErrResolution):
		s.metrics.Keysend("resolution_failed")
	case errors.Is(err, ErrNodeUnavailable):
		s.metrics.Keysend("node_unavailable")
	case errors.As(err, &inFlight):
		s.metrics.Keysend("in_flight")
	case errors.As(err, &payErr):
		s.metrics.Keysend("rejected")
	}
	return out, err
}

func (s *Sender) send(ctx context.Context, req SendRequest) (*Outcome, error) {
	if req.AmountSat <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	pubkey := req.Destination
	customKey, customValue := req.CustomKey, req.CustomValue

	if lnaddress.IsAddress(pubkey) {
		info, err := s.resolver.Resolve(ctx, pubkey)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResolution, err)
		}
		key, value, ok, err := info.Custom()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrResolution, pubkey, err)
		}
		pubkey = info.Pubkey
		if ok {
			customKey, customValue = &key, &value
		}
	}

	if customKey != nil && customValue == nil {
		return nil, fmt.Errorf("%w: custom key %d has no value", ErrInvalidInput, *customKey)
	}

	dest, err := hex.DecodeString(pubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: destination pubkey %q: %v", ErrInvalidInput, pubkey, err)
	}
	if len(dest) != pubkeyLen || (dest[0] != 0x02 && dest[0] != 0x03) {
		return nil, fmt.Errorf("%w: destination pubkey %q is not a compressed public key", ErrInvalidInput, pubkey)
	}

	var preimage lntypes.Preimage
	if _, err := io.ReadFull(s.rand, preimage[:]); err != nil {
		return nil, fmt.Errorf("generating preimage: %w", err)
	}
	hash := preimage.Hash()

	records := map[uint64][]byte{
		uint64(tlv.KeysendPreimage): preimage[:],
		uint64(tlv.Podcasting20):    req.Payload,
	}
	if customKey != nil {
		records[*customKey] = []byte(*customValue)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Once dispatched the payment is in the node's hands; the caller going
	// away must not abandon it.
	resp, err := s.payer.SendPayment(context.WithoutCancel(ctx), &lnrpc.SendRequest{
		Dest:              dest,
		Amt:               req.AmountSat,
		PaymentHash:       hash[:],
		DestCustomRecords: records,
	})
	if err != nil {
		err = classifyRPCError(err, hash)
		var inFlight *InFlightError
		if errors.As(err, &inFlight) {
			s.logger.Warn("boost outcome unknown",
				zap.String("pubkey", pubkey),
				zap.Int64("amountSat", req.AmountSat),
				zap.String("paymentHash", hash.String()),
				zap.Error(err),
			)
		}
		return nil, err
	}

	fields := []zap.Field{
		zap.String("pubkey", pubkey),
		zap.Int64("amountSat", req.AmountSat),
		zap.String("paymentHash", hash.String()),
	}
	if customKey != nil {
		fields = append(fields,
			zap.Uint64("customKey", *customKey),
			zap.String("customValue", *customValue),
		)
	}

	if resp.PaymentError != "" {
		s.logger.Warn("boost rejected", append(fields, zap.String("error", resp.PaymentError))...)
		return nil, &PaymentError{Reason: resp.PaymentError}
	}

	if resp.PaymentRoute != nil {
		fields = append(fields,
			zap.Int64("totalAmtMsat", resp.PaymentRoute.TotalAmtMsat),
			zap.Int64("totalFeesMsat", resp.PaymentRoute.TotalFeesMsat),
		)
	}
	s.logger.Info("boost sent", fields...)

	return &Outcome{
		Pubkey:      pubkey,
		CustomKey:   customKey,
		CustomValue: customValue,
		AmountSat:   req.AmountSat,
		Preimage:    preimage,
		PaymentHash: hash,
		Route:       resp.PaymentRoute,
		Payload:     req.Payload,
	}, nil
}
