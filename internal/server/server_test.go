package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/lightningnetwork/lnd/lntypes"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helipad/internal/boost"
	"github.com/dgnsrekt/helipad/internal/lightning"
	"github.com/dgnsrekt/helipad/internal/store"
)

const testPubkey = "03ae9f91a0cb8ff43840e3c322c4c61f019d8c1c3cea15a25cfc425ac605e61a4a"

type fakeStore struct {
	invoices map[uint64]*boost.Record
	listed   []*boost.Record
	payments []*boost.Record
	sent     []*boost.SentRecord
	balance  int64
	last     uint64
	filter   store.Filter
}

func (f *fakeStore) LastBoostIndex(ctx context.Context) (uint64, error)   { return f.last, nil }
func (f *fakeStore) LastPaymentIndex(ctx context.Context) (uint64, error) { return f.last + 1, nil }
func (f *fakeStore) LastSentIndex(ctx context.Context) (uint64, error)    { return uint64(len(f.sent)), nil }
func (f *fakeStore) WalletBalance(ctx context.Context) (int64, error)     { return f.balance, nil }

func (f *fakeStore) GetInvoice(ctx context.Context, index uint64) (*boost.Record, error) {
	rec, ok := f.invoices[index]
	if !ok {
		return nil, fmt.Errorf("invoice %d: %w", index, store.ErrNotFound)
	}
	return rec, nil
}

func (f *fakeStore) ListInvoices(ctx context.Context, filter store.Filter) ([]*boost.Record, error) {
	f.filter = filter
	return f.listed, nil
}

func (f *fakeStore) ListPayments(ctx context.Context, filter store.Filter) ([]*boost.Record, error) {
	f.filter = filter
	return f.payments, nil
}

func (f *fakeStore) ListSentBoosts(ctx context.Context, filter store.Filter) ([]*boost.SentRecord, error) {
	f.filter = filter
	return f.sent, nil
}

func (f *fakeStore) AddSentBoost(ctx context.Context, rec *boost.SentRecord) (uint64, error) {
	f.sent = append(f.sent, rec)
	return uint64(len(f.sent)), nil
}

type fakeSender struct {
	requests []lightning.SendRequest
	err      error
}

func (f *fakeSender) Send(ctx context.Context, req lightning.SendRequest) (*lightning.Outcome, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &lightning.Outcome{
		Pubkey:      req.Destination,
		CustomKey:   req.CustomKey,
		CustomValue: req.CustomValue,
		AmountSat:   req.AmountSat,
		Payload:     req.Payload,
	}, nil
}

type fakeAliases map[string]string

func (f fakeAliases) NodeAlias(ctx context.Context, pubkey string) (string, error) {
	alias, ok := f[pubkey]
	if !ok {
		return "", errors.New("unable to find node")
	}
	return alias, nil
}

func newTestRouter(t *testing.T, st *fakeStore, sender *fakeSender) http.Handler {
	t.Helper()
	srv := NewServer(st, sender, fakeAliases{testPubkey: "alice"}, Options{Version: "1.0.0"}, zap.NewNop())
	router, err := NewRouter(srv, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, httptest.NewRequest(http.MethodGet, target, nil))
}

func postReply(t *testing.T, h http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reply", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(t, h, req)
}

func replyableBoost() *boost.Record {
	rec := boost.NewInvoiceRecord(7, 1700000000, 100)
	rec.Action = boost.ActionBoost
	rec.Podcast = "Podcasting 2.0"
	rec.Episode = "Episode 150"
	rec.TLV = `{"action":"boost","podcast":"Podcasting 2.0","episode":"Episode 150",` +
		`"reply_address":"` + testPubkey + `","reply_custom_key":696969,"reply_custom_value":"eChoVKtO1KujpAA5HCoB"}`
	return rec
}

func TestIndexEndpoints(t *testing.T) {
	st := &fakeStore{last: 12, balance: 5000}
	h := newTestRouter(t, st, &fakeSender{})

	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/index", "12"},
		{"/api/v1/sent_index", "13"},
		{"/api/v1/replies_index", "0"},
		{"/api/v1/balance", "5000"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status %d: %s", rec.Code, rec.Body)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.want {
				t.Errorf("body %q, want %q", got, tt.want)
			}
			if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Error("missing CORS header")
			}
		})
	}
}

func TestListEndpointsFilter(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   store.Filter
	}{
		{
			name:   "boosts ascending",
			target: "/api/v1/boosts?index=5&count=20",
			want:   store.Filter{Index: 5, Max: 20, Actions: []boost.Action{boost.ActionBoost}},
		},
		{
			name:   "streams descending",
			target: "/api/v1/streams?index=90&count=3&old=true",
			want:   store.Filter{Index: 90, Max: 3, Old: true, Actions: []boost.Action{boost.ActionStream}},
		},
		{
			name:   "sent payments",
			target: "/api/v1/sent?index=1&count=10",
			want:   store.Filter{Index: 1, Max: 10, Actions: []boost.Action{boost.ActionBoost}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{}
			rec := get(t, newTestRouter(t, st, &fakeSender{}), tt.target)
			if rec.Code != http.StatusOK {
				t.Fatalf("status %d: %s", rec.Code, rec.Body)
			}
			if st.filter.Index != tt.want.Index || st.filter.Max != tt.want.Max || st.filter.Old != tt.want.Old {
				t.Errorf("filter %+v, want %+v", st.filter, tt.want)
			}
			if len(st.filter.Actions) != 1 || st.filter.Actions[0] != tt.want.Actions[0] {
				t.Errorf("actions %v, want %v", st.filter.Actions, tt.want.Actions)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
				t.Errorf("empty page should encode as [], got %q", got)
			}
		})
	}
}

func TestListBoostsReturnsRecords(t *testing.T) {
	st := &fakeStore{listed: []*boost.Record{replyableBoost()}}
	rec := get(t, newTestRouter(t, st, &fakeSender{}), "/api/v1/boosts?index=0&count=1")

	var got []boost.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Index != 7 || got[0].Podcast != "Podcasting 2.0" {
		t.Errorf("unexpected records %+v", got)
	}
	if got[0].PaymentInfo != nil {
		t.Error("invoice should have no payment info")
	}
}

func TestListRejectsBadParams(t *testing.T) {
	h := newTestRouter(t, &fakeStore{}, &fakeSender{})

	for _, target := range []string{
		"/api/v1/boosts?count=5",
		"/api/v1/streams?index=-1&count=5",
		"/api/v1/sent?index=abc&count=5",
		"/api/v1/replies?index=1",
		"/csv?index=1&count=5&end=x",
	} {
		if rec := get(t, h, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", target, rec.Code)
		}
	}
}

func TestReplySendsBoost(t *testing.T) {
	st := &fakeStore{invoices: map[uint64]*boost.Record{7: replyableBoost()}}
	sender := &fakeSender{}
	h := newTestRouter(t, st, sender)

	rec := postReply(t, h, url.Values{"index": {"7"}, "sats": {"50"}, "message": {"thanks!"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}

	var resp ReplyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Data == nil {
		t.Fatalf("expected success, got %+v", resp)
	}

	if len(sender.requests) != 1 {
		t.Fatalf("expected one payment, got %d", len(sender.requests))
	}
	req := sender.requests[0]
	if req.Destination != testPubkey || req.AmountSat != 50 {
		t.Errorf("unexpected request %+v", req)
	}
	if req.CustomKey == nil || *req.CustomKey != 696969 || *req.CustomValue != "eChoVKtO1KujpAA5HCoB" {
		t.Errorf("reply custom record not forwarded: %v %v", req.CustomKey, req.CustomValue)
	}

	var payload boost.ReplyPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.AppName != ReplyAppName || payload.AppVersion != "1.0.0" {
		t.Errorf("unexpected app %q %q", payload.AppName, payload.AppVersion)
	}
	if payload.SenderName != "Anonymous" || payload.Message != "thanks!" || payload.Action != "boost" {
		t.Errorf("unexpected payload %+v", payload)
	}
	if payload.ValueMsatTotal != 50000 || payload.Podcast == nil || *payload.Podcast != "Podcasting 2.0" {
		t.Errorf("unexpected payload %+v", payload)
	}

	if len(st.sent) != 1 {
		t.Fatalf("expected reply to be stored, got %d", len(st.sent))
	}
	sent := st.sent[0]
	if sent.ReplyBoostIndex == nil || *sent.ReplyBoostIndex != 7 {
		t.Errorf("reply index not recorded: %v", sent.ReplyBoostIndex)
	}
	if sent.TotalAmtMsat != 50000 || sent.Sender != "Anonymous" || sent.Index != 1 {
		t.Errorf("unexpected sent record %+v", sent)
	}
}

func TestReplyInputErrors(t *testing.T) {
	noAddress := boost.NewInvoiceRecord(8, 1700000000, 100)
	noAddress.TLV = `{"action":"boost","podcast":"Pod"}`

	keyOnly := boost.NewInvoiceRecord(9, 1700000000, 100)
	keyOnly.TLV = `{"reply_address":"` + testPubkey + `","reply_custom_key":7629169}`

	st := &fakeStore{invoices: map[uint64]*boost.Record{8: noAddress, 9: keyOnly}}
	sender := &fakeSender{}
	h := newTestRouter(t, st, sender)

	tests := []struct {
		name string
		form url.Values
		want int
	}{
		{"missing sats", url.Values{"index": {"8"}}, http.StatusBadRequest},
		{"zero sats", url.Values{"index": {"8"}, "sats": {"0"}}, http.StatusBadRequest},
		{"missing index", url.Values{"sats": {"10"}}, http.StatusBadRequest},
		{"unknown boost", url.Values{"index": {"99"}, "sats": {"10"}}, http.StatusNotFound},
		{"no reply address", url.Values{"index": {"8"}, "sats": {"10"}}, http.StatusBadRequest},
		{"key without value", url.Values{"index": {"9"}, "sats": {"10"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := postReply(t, h, tt.form); rec.Code != tt.want {
				t.Errorf("status %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
	if len(sender.requests) != 0 {
		t.Errorf("no payment should be attempted, got %d", len(sender.requests))
	}
}

func TestReplySendFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		success bool
	}{
		{"rejected", &lightning.PaymentError{Reason: "no_route"}, http.StatusOK, false},
		{"invalid", fmt.Errorf("%w: bad pubkey", lightning.ErrInvalidInput), http.StatusBadRequest, false},
		{"unresolved", fmt.Errorf("%w: lookup failed", lightning.ErrResolution), http.StatusBadGateway, false},
		{"node down", fmt.Errorf("%w: dial", lightning.ErrNodeUnavailable), http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{invoices: map[uint64]*boost.Record{7: replyableBoost()}}
			h := newTestRouter(t, st, &fakeSender{err: tt.err})

			rec := postReply(t, h, url.Values{"index": {"7"}, "sats": {"10"}})
			if rec.Code != tt.status {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
			if len(st.sent) != 0 {
				t.Error("failed payment must not be stored")
			}
			if tt.status != http.StatusOK {
				return
			}

			var resp ReplyResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Success != tt.success || resp.Message != "no_route" {
				t.Errorf("unexpected response %+v", resp)
			}
		})
	}
}

func TestReplyInFlightNotStored(t *testing.T) {
	hash := lntypes.Hash{0xaa, 0xbb}
	sendErr := &lightning.InFlightError{PaymentHash: hash, Err: context.DeadlineExceeded}

	st := &fakeStore{invoices: map[uint64]*boost.Record{7: replyableBoost()}}
	h := newTestRouter(t, st, &fakeSender{err: sendErr})

	rec := postReply(t, h, url.Values{"index": {"7"}, "sats": {"10"}})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d, want 202: %s", rec.Code, rec.Body)
	}
	if len(st.sent) != 0 {
		t.Error("in-flight payment must not be stored")
	}

	var resp ReplyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success {
		t.Error("in-flight payment reported as success")
	}
	if resp.PaymentHash != hash.String() {
		t.Errorf("payment_hash %q, want %q", resp.PaymentHash, hash)
	}
}

func TestNodeAlias(t *testing.T) {
	h := newTestRouter(t, &fakeStore{}, &fakeSender{})

	rec := get(t, h, "/api/v1/node_alias?pubkey="+testPubkey)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `"alice"` {
		t.Errorf("known node: %d %s", rec.Code, rec.Body)
	}

	unknown := strings.Repeat("02", 33)
	rec = get(t, h, "/api/v1/node_alias?pubkey="+unknown)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `""` {
		t.Errorf("unknown node: %d %s", rec.Code, rec.Body)
	}

	if rec := get(t, h, "/api/v1/node_alias?pubkey="); rec.Code != http.StatusBadRequest {
		t.Errorf("empty pubkey: status %d", rec.Code)
	}
}

func TestExportCSV(t *testing.T) {
	remote := "Remote Show"
	boostRec := replyableBoost()
	boostRec.Sender = "bob"
	boostRec.Message = `great "show", thanks`
	boostRec.ValueMsatTotal = 1000000
	boostRec.RemotePodcast = &remote

	stream := boost.NewInvoiceRecord(8, 1700000060, 1)
	stream.Action = boost.ActionStream

	st := &fakeStore{listed: []*boost.Record{boostRec, stream}}
	rec := get(t, newTestRouter(t, st, &fakeSender{}), "/csv?index=7&count=50&end=8")

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="boosts.csv"` {
		t.Errorf("disposition %q", got)
	}
	if st.filter.EndIndex != 8 || st.filter.Actions != nil {
		t.Errorf("unexpected filter %+v", st.filter)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %d lines:\n%s", len(lines), rec.Body)
	}
	if lines[0] != strings.Join(csvHeader, ",") {
		t.Errorf("header %q", lines[0])
	}
	wantRow := `1,7,14 Nov 2023 22:13:20 UTC,100000,100,1000000,1000,2,bob,,"great ""show"", thanks",Podcasting 2.0,Episode 150,Remote Show,`
	if lines[1] != wantRow {
		t.Errorf("row\n got %s\nwant %s", lines[1], wantRow)
	}
	if !strings.HasPrefix(lines[2], "2,8,14 Nov 2023 22:14:20 UTC,1000,0,") {
		t.Errorf("sub-sat row %q", lines[2])
	}
}

func TestPreflightAndDocs(t *testing.T) {
	h := newTestRouter(t, &fakeStore{}, &fakeSender{})

	rec := do(t, h, httptest.NewRequest(http.MethodOptions, "/api/v1/reply", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Error("preflight should allow POST")
	}

	rec = get(t, h, "/openapi.yaml")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/v1/reply") {
		t.Errorf("openapi.yaml not served: %d", rec.Code)
	}

	if rec := get(t, h, "/ws"); rec.Code != http.StatusNotFound {
		t.Errorf("/ws should not be mounted without a live feed, got %d", rec.Code)
	}
}
