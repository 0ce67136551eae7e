package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helipad/internal/boost"
	"github.com/dgnsrekt/helipad/internal/lightning"
	"github.com/dgnsrekt/helipad/internal/store"
)

// ReplyAppName identifies helipad in the payload of reply boosts.
const ReplyAppName = "Helipad"

// Store is the persistence the API reads from and records replies in.
type Store interface {
	LastBoostIndex(ctx context.Context) (uint64, error)
	LastPaymentIndex(ctx context.Context) (uint64, error)
	LastSentIndex(ctx context.Context) (uint64, error)
	WalletBalance(ctx context.Context) (int64, error)
	GetInvoice(ctx context.Context, index uint64) (*boost.Record, error)
	ListInvoices(ctx context.Context, f store.Filter) ([]*boost.Record, error)
	ListPayments(ctx context.Context, f store.Filter) ([]*boost.Record, error)
	ListSentBoosts(ctx context.Context, f store.Filter) ([]*boost.SentRecord, error)
	AddSentBoost(ctx context.Context, rec *boost.SentRecord) (uint64, error)
}

// Sender dispatches keysend boosts.
type Sender interface {
	Send(ctx context.Context, req lightning.SendRequest) (*lightning.Outcome, error)
}

// AliasLookup resolves node pubkeys to their announced alias.
type AliasLookup interface {
	NodeAlias(ctx context.Context, pubkey string) (string, error)
}

// Options carries the optional parts of the server.
type Options struct {
	Version  string
	LiveFeed http.HandlerFunc // nil disables /ws
	Metrics  http.Handler     // nil disables /metrics
}

type Server struct {
	store    Store
	sender   Sender
	aliases  AliasLookup
	version  string
	liveFeed http.HandlerFunc
	metrics  http.Handler
	logger   *zap.Logger
}

func NewServer(st Store, sender Sender, aliases AliasLookup, opts Options, logger *zap.Logger) *Server {
	return &Server{
		store:    st,
		sender:   sender,
		aliases:  aliases,
		version:  opts.Version,
		liveFeed: opts.LiveFeed,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// ReplyResponse reports the outcome of a reply boost.
type ReplyResponse struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	PaymentHash string            `json:"payment_hash,omitempty"`
	Data        *boost.SentRecord `json:"data,omitempty"`
}

// GetIndex returns the highest stored invoice index.
func (s *Server) GetIndex(w http.ResponseWriter, r *http.Request) {
	s.writeIndex(w, r, "invoice", s.store.LastBoostIndex)
}

// GetSentIndex returns the highest stored payment index.
func (s *Server) GetSentIndex(w http.ResponseWriter, r *http.Request) {
	s.writeIndex(w, r, "payment", s.store.LastPaymentIndex)
}

// GetRepliesIndex returns the highest stored reply boost index.
func (s *Server) GetRepliesIndex(w http.ResponseWriter, r *http.Request) {
	s.writeIndex(w, r, "reply", s.store.LastSentIndex)
}

func (s *Server) writeIndex(w http.ResponseWriter, r *http.Request, stream string, last func(context.Context) (uint64, error)) {
	idx, err := last(r.Context())
	if err != nil {
		s.logger.Error("read last index", zap.String("stream", stream), zap.Error(err))
		serverError(w, "** Error getting index.")
		return
	}
	writeJSON(w, http.StatusOK, idx)
}

// GetBalance returns the latest sampled channel balance in sats.
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.store.WalletBalance(r.Context())
	if err != nil {
		s.logger.Error("read wallet balance", zap.Error(err))
		serverError(w, "** Error getting balance.")
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// ListBoosts pages through received boosts.
func (s *Server) ListBoosts(w http.ResponseWriter, r *http.Request) {
	s.listRecords(w, r, "boosts", s.store.ListInvoices, boost.ActionBoost)
}

// ListStreams pages through received streaming payments.
func (s *Server) ListStreams(w http.ResponseWriter, r *http.Request) {
	s.listRecords(w, r, "streams", s.store.ListInvoices, boost.ActionStream)
}

// ListSent pages through boosts this node paid out, whichever app sent them.
func (s *Server) ListSent(w http.ResponseWriter, r *http.Request) {
	s.listRecords(w, r, "sent", s.store.ListPayments, boost.ActionBoost)
}

type listFunc func(ctx context.Context, f store.Filter) ([]*boost.Record, error)

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request, what string, list listFunc, action boost.Action) {
	filter, err := pageFilter(r)
	if err != nil {
		clientError(w, err.Error())
		return
	}
	filter.Actions = []boost.Action{action}

	records, err := list(r.Context(), filter)
	if err != nil {
		s.logger.Error("list records", zap.String("list", what), zap.Error(err))
		serverError(w, "** Error getting "+what+".")
		return
	}
	if records == nil {
		records = []*boost.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// ListReplies pages through reply boosts sent through this API.
func (s *Server) ListReplies(w http.ResponseWriter, r *http.Request) {
	filter, err := pageFilter(r)
	if err != nil {
		clientError(w, err.Error())
		return
	}

	records, err := s.store.ListSentBoosts(r.Context(), filter)
	if err != nil {
		s.logger.Error("list records", zap.String("list", "replies"), zap.Error(err))
		serverError(w, "** Error getting replies.")
		return
	}
	if records == nil {
		records = []*boost.SentRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Reply sends a boost back to the reply address advertised by a received
// boost and records it.
func (s *Server) Reply(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		clientError(w, "** Malformed form body.")
		return
	}

	var (
		index   uint64
		sats    int64
		sender  string
		message string
	)
	if err := runtime.BindQueryParameter("form", true, true, "index", r.PostForm, &index); err != nil {
		clientError(w, "** 'index' is a required parameter and must be an unsigned integer.")
		return
	}
	if err := runtime.BindQueryParameter("form", true, true, "sats", r.PostForm, &sats); err != nil || sats <= 0 {
		clientError(w, "** 'sats' is a required parameter and must be a positive integer.")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "sender", r.PostForm, &sender); err != nil {
		clientError(w, "** 'sender' must be a string.")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "message", r.PostForm, &message); err != nil {
		clientError(w, "** 'message' must be a string.")
		return
	}
	if sender == "" {
		sender = "Anonymous"
	}

	ctx := r.Context()
	rec, err := s.store.GetInvoice(ctx, index)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "** No boost found with that index.")
		return
	}
	if err != nil {
		s.logger.Error("load boost for reply", zap.Uint64("index", index), zap.Error(err))
		serverError(w, "** Error getting boost.")
		return
	}

	payload, err := rec.Payload()
	if err != nil {
		clientError(w, "** Boost has no readable podcasting record.")
		return
	}
	if payload.ReplyAddress == nil || *payload.ReplyAddress == "" {
		clientError(w, "** No reply_address found in boost")
		return
	}
	customKey, customValue := payload.ReplyCustom()
	if customKey != nil && customValue == nil {
		clientError(w, "** No reply_custom_value found in boost")
		return
	}

	tlv, err := json.Marshal(boost.ReplyPayload{
		AppName:        ReplyAppName,
		AppVersion:     s.version,
		Podcast:        payload.Podcast,
		Episode:        payload.Episode,
		SenderName:     sender,
		Message:        message,
		Action:         "boost",
		ValueMsatTotal: sats * 1000,
	})
	if err != nil {
		serverError(w, "** Error building reply payload.")
		return
	}

	out, err := s.sender.Send(ctx, lightning.SendRequest{
		Destination: *payload.ReplyAddress,
		AmountSat:   sats,
		CustomKey:   customKey,
		CustomValue: customValue,
		Payload:     tlv,
	})
	if err != nil {
		s.writeSendError(w, index, err)
		return
	}

	sent := out.SentRecord()
	sent.Sender = sender
	sent.Message = message
	sent.Podcast = rec.Podcast
	sent.Episode = rec.Episode
	sent.ReplyBoostIndex = &index

	sentIndex, err := s.store.AddSentBoost(ctx, sent)
	if err != nil {
		// The payment went out; only the local record is missing.
		s.logger.Error("persist reply boost",
			zap.Uint64("replyTo", index),
			zap.String("paymentHash", sent.PaymentHash),
			zap.Error(err),
		)
	} else {
		sent.Index = sentIndex
	}

	s.logger.Info("reply boost sent",
		zap.Uint64("replyTo", index),
		zap.Int64("sats", sats),
		zap.String("paymentHash", sent.PaymentHash),
	)
	writeJSON(w, http.StatusOK, ReplyResponse{Success: true, Data: sent})
}

func (s *Server) writeSendError(w http.ResponseWriter, index uint64, err error) {
	var payErr *lightning.PaymentError
	var inFlight *lightning.InFlightError
	switch {
	case errors.As(err, &inFlight):
		// Not stored: the node may still settle or fail it.
		s.logger.Warn("reply boost outcome unknown",
			zap.Uint64("replyTo", index),
			zap.Stringer("paymentHash", inFlight.PaymentHash),
			zap.Error(err),
		)
		writeJSON(w, http.StatusAccepted, ReplyResponse{
			Success:     false,
			Message:     "payment in flight, outcome unknown",
			PaymentHash: inFlight.PaymentHash.String(),
		})
	case errors.As(err, &payErr):
		s.logger.Warn("reply boost rejected", zap.Uint64("replyTo", index), zap.String("reason", payErr.Reason))
		writeJSON(w, http.StatusOK, ReplyResponse{Success: false, Message: payErr.Reason})
	case errors.Is(err, lightning.ErrInvalidInput):
		clientError(w, "** "+err.Error())
	case errors.Is(err, lightning.ErrResolution):
		s.logger.Warn("reply destination unresolved", zap.Uint64("replyTo", index), zap.Error(err))
		writeError(w, http.StatusBadGateway, "** "+err.Error())
	case errors.Is(err, lightning.ErrNodeUnavailable):
		s.logger.Error("node unavailable for reply", zap.Uint64("replyTo", index), zap.Error(err))
		serverError(w, "** Lightning node unavailable.")
	default:
		s.logger.Error("reply boost failed", zap.Uint64("replyTo", index), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "** Error sending boost.")
	}
}

// GetNodeAlias returns the alias of a node, or "" when the node is unknown.
func (s *Server) GetNodeAlias(w http.ResponseWriter, r *http.Request) {
	var pubkey string
	if err := runtime.BindQueryParameter("form", true, true, "pubkey", r.URL.Query(), &pubkey); err != nil || pubkey == "" {
		clientError(w, "** No pubkey given.")
		return
	}

	alias, err := s.aliases.NodeAlias(r.Context(), pubkey)
	if err != nil {
		s.logger.Debug("node alias lookup failed", zap.String("pubkey", pubkey), zap.Error(err))
		alias = ""
	}
	writeJSON(w, http.StatusOK, alias)
}

// pageFilter reads the index, count and old query parameters shared by the
// list endpoints. old is a presence flag.
func pageFilter(r *http.Request) (store.Filter, error) {
	query := r.URL.Query()

	var f store.Filter
	if err := runtime.BindQueryParameter("form", true, true, "index", query, &f.Index); err != nil {
		return f, errors.New("** 'index' is a required parameter and must be an unsigned integer.")
	}
	if err := runtime.BindQueryParameter("form", true, true, "count", query, &f.Max); err != nil {
		return f, errors.New("** 'count' is a required parameter and must be an unsigned integer.")
	}
	_, f.Old = query["old"]
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "** Error encoding response.")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}

func clientError(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func serverError(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusServiceUnavailable, msg)
}
