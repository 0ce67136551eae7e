package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dgnsrekt/helipad/internal/boost"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	hub := NewHub(enc, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		enc.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string, protocols ...string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	dialer := websocket.Dialer{Subprotocols: protocols}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return msgType, data
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	msgType, data := readFrame(t, conn)
	if msgType != websocket.TextMessage {
		t.Fatalf("expected text frame, got %d", msgType)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode json frame: %v", err)
	}
	return msg
}

func readStruct(t *testing.T, conn *websocket.Conn) (*anypb.Any, map[string]any) {
	t.Helper()
	msgType, data := readFrame(t, conn)
	if msgType != websocket.BinaryMessage {
		t.Fatalf("expected binary frame, got %d", msgType)
	}

	var envelope anypb.Any
	if err := proto.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}

	value := envelope.Value
	if envelope.TypeUrl == TypeURLStructZstd {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			t.Fatal(err)
		}
		defer dec.Close()
		value, err = dec.DecodeAll(envelope.Value, nil)
		if err != nil {
			t.Fatalf("zstd: %v", err)
		}
	}

	var body structpb.Struct
	if err := proto.Unmarshal(value, &body); err != nil {
		t.Fatalf("decode struct: %v", err)
	}
	return &envelope, body.AsMap()
}

func testBoost() *boost.Record {
	rec := boost.NewInvoiceRecord(42, 1700000000, 100)
	rec.Action = boost.ActionBoost
	rec.Sender = "alice"
	rec.Message = "hello"
	return rec
}

func TestGroupFor(t *testing.T) {
	stream := &boost.Record{Action: boost.ActionStream}
	plain := &boost.Record{Action: boost.ActionNone}
	payment := &boost.Record{Action: boost.ActionBoost, PaymentInfo: &boost.PaymentInfo{}}

	if GroupFor(testBoost()) != GroupBoosts {
		t.Error("boost should go to boosts")
	}
	if GroupFor(stream) != GroupStreams {
		t.Error("stream should go to streams")
	}
	if GroupFor(payment) != GroupPayments {
		t.Error("payment should go to payments")
	}
	if GroupFor(plain) != "" {
		t.Error("plain invoice should not be published")
	}
}

func TestJSONClientReceivesBoost(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "?groups=boosts,bogus")

	connected := readJSON(t, conn)
	if connected["event"] != "connected" || connected["connectionId"] == "" {
		t.Fatalf("unexpected connected frame %v", connected)
	}

	if groups := hub.GetActiveGroups(); len(groups) != 1 || groups[0] != GroupBoosts {
		t.Fatalf("expected only boosts group, got %v", groups)
	}

	hub.Publish(context.Background(), &boost.Record{Action: boost.ActionStream})
	hub.Publish(context.Background(), testBoost())

	msg := readJSON(t, conn)
	if msg["group"] != GroupBoosts || msg["dataType"] != "json" {
		t.Fatalf("unexpected frame %v", msg)
	}
	data, ok := msg["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %T", msg["data"])
	}
	if data["sender"] != "alice" || data["index"] != float64(42) {
		t.Errorf("unexpected record %v", data)
	}
}

func TestProtobufClientJoinAndReceive(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "", ProtocolProtobuf)

	if conn.Subprotocol() != ProtocolProtobuf {
		t.Fatalf("expected negotiated %s, got %q", ProtocolProtobuf, conn.Subprotocol())
	}

	envelope, connected := readStruct(t, conn)
	if envelope.TypeUrl != TypeURLStruct || connected["event"] != "connected" {
		t.Fatalf("unexpected connected frame %s %v", envelope.TypeUrl, connected)
	}

	join, err := structpb.NewStruct(map[string]any{"type": "joinGroup", "group": "payments", "ackId": 7})
	if err != nil {
		t.Fatal(err)
	}
	wrapped, err := anypb.New(join)
	if err != nil {
		t.Fatal(err)
	}
	frame, err := proto.Marshal(wrapped)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatal(err)
	}

	_, ack := readStruct(t, conn)
	if ack["type"] != "ack" || ack["ackId"] != float64(7) || ack["success"] != true {
		t.Fatalf("unexpected ack %v", ack)
	}

	payment := testBoost()
	payment.PaymentInfo = &boost.PaymentInfo{Pubkey: "02ab", CustomKey: 696969, CustomValue: "w"}
	hub.Publish(context.Background(), payment)

	envelope, msg := readStruct(t, conn)
	if envelope.TypeUrl != TypeURLStructZstd {
		t.Errorf("expected compressed frame, got %s", envelope.TypeUrl)
	}
	if msg["group"] != GroupPayments {
		t.Errorf("unexpected group %v", msg["group"])
	}
	data := msg["data"].(map[string]any)
	info := data["payment_info"].(map[string]any)
	if info["pubkey"] != "02ab" || data["remote_podcast"] != nil {
		t.Errorf("unexpected payload %v", data)
	}
}

func TestJSONJoinInvalidGroupNacks(t *testing.T) {
	_, srv := newTestHub(t)
	conn := dial(t, srv, "", ProtocolJSON)
	readJSON(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "joinGroup", "group": "invoices", "ackId": 3}); err != nil {
		t.Fatal(err)
	}
	ack := readJSON(t, conn)
	if ack["type"] != "ack" || ack["success"] != false {
		t.Errorf("expected failed ack, got %v", ack)
	}

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	if pong := readJSON(t, conn); pong["type"] != "pong" {
		t.Errorf("expected pong, got %v", pong)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "?groups=streams")
	readJSON(t, conn)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(hub.GetActiveGroups()) != 0 {
		t.Error("groups should be empty after disconnect")
	}
}

func TestParseUpstreamRejectsUnknownType(t *testing.T) {
	if _, err := parseUpstreamMessageJSON([]byte(`{"type":"sendToGroup"}`)); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := parseUpstreamMessageJSON([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed json")
	}
	if _, err := parseUpstreamMessage([]byte{0xff, 0x01}); err == nil {
		t.Error("expected error for malformed protobuf")
	}
}
