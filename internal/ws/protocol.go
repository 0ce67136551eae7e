package ws

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Subprotocols offered to clients. Without a requested subprotocol a
// client gets JSON text frames.
const (
	ProtocolProtobuf = "protobuf.helipad.v1"
	ProtocolJSON     = "json.helipad.v1"
)

// Type URLs of downstream protobuf frames. Every frame is an anypb.Any whose
// value is a marshaled structpb.Struct; data frames are zstd-compressed.
const (
	TypeURLStruct     = "type.googleapis.com/google.protobuf.Struct"
	TypeURLStructZstd = "helipad.v1/zstd+google.protobuf.Struct"
)

// Upstream message types for internal routing
type (
	joinGroupRequest struct {
		group string
		ackID *uint64
	}
	leaveGroupRequest struct {
		group string
		ackID *uint64
	}
	pingRequest struct{}
)

// parseUpstream converts a decoded upstream envelope into a request.
// JSON and protobuf clients send the same fields.
func parseUpstream(msg map[string]any) (any, error) {
	msgType, _ := msg["type"].(string)
	group, _ := msg["group"].(string)

	var ackID *uint64
	if v, ok := msg["ackId"].(float64); ok && v >= 0 {
		id := uint64(v)
		ackID = &id
	}

	switch msgType {
	case "joinGroup":
		return &joinGroupRequest{group: group, ackID: ackID}, nil
	case "leaveGroup":
		return &leaveGroupRequest{group: group, ackID: ackID}, nil
	case "ping":
		return &pingRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", msgType)
	}
}

// parseUpstreamMessage parses a protobuf upstream frame: an anypb.Any
// holding a structpb.Struct.
func parseUpstreamMessage(data []byte) (any, error) {
	var envelope anypb.Any
	if err := proto.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal upstream message: %w", err)
	}

	var body structpb.Struct
	if err := envelope.UnmarshalTo(&body); err != nil {
		return nil, fmt.Errorf("unmarshal upstream body: %w", err)
	}
	return parseUpstream(body.AsMap())
}

// parseUpstreamMessageJSON parses a JSON-encoded upstream message.
func parseUpstreamMessageJSON(data []byte) (any, error) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal JSON upstream message: %w", err)
	}
	return parseUpstream(msg)
}

func marshalStruct(fields map[string]any) []byte {
	body, err := structpb.NewStruct(fields)
	if err != nil {
		return nil
	}
	envelope, err := anypb.New(body)
	if err != nil {
		return nil
	}
	data, _ := proto.Marshal(envelope)
	return data
}

// buildConnectedMessage creates the frame sent right after the upgrade.
func buildConnectedMessage(connectionID string) []byte {
	return marshalStruct(map[string]any{
		"type":         "system",
		"event":        "connected",
		"connectionId": connectionID,
	})
}

// buildAckMessage creates an acknowledgment message.
func buildAckMessage(ackID uint64, success bool) []byte {
	return marshalStruct(map[string]any{
		"type":    "ack",
		"ackId":   float64(ackID),
		"success": success,
	})
}

// buildPongMessage creates a PongMessage response to client ping.
func buildPongMessage() []byte {
	return marshalStruct(map[string]any{"type": "pong"})
}

// buildDataMessage wraps a compressed struct payload for protobuf clients.
func buildDataMessage(compressed []byte) []byte {
	data, _ := proto.Marshal(&anypb.Any{
		TypeUrl: TypeURLStructZstd,
		Value:   compressed,
	})
	return data
}

// buildConnectedMessageJSON creates a JSON ConnectedMessage.
func buildConnectedMessageJSON(connectionID string) []byte {
	msg := map[string]any{
		"type":         "system",
		"event":        "connected",
		"connectionId": connectionID,
	}
	data, _ := json.Marshal(msg)
	return data
}

// buildAckMessageJSON creates a JSON acknowledgment message.
func buildAckMessageJSON(ackID uint64, success bool) []byte {
	msg := map[string]any{
		"type":    "ack",
		"ackId":   ackID,
		"success": success,
	}
	data, _ := json.Marshal(msg)
	return data
}

// buildDataMessageJSON creates a JSON DataMessage with the record embedded
// as an object.
func buildDataMessageJSON(group string, rawJSON json.RawMessage) []byte {
	msg := map[string]any{
		"type":     "message",
		"from":     "group",
		"group":    group,
		"dataType": "json",
		"data":     rawJSON,
	}
	data, _ := json.Marshal(msg)
	return data
}

// buildPongMessageJSON creates a JSON PongMessage.
func buildPongMessageJSON() []byte {
	data, _ := json.Marshal(map[string]any{"type": "pong"})
	return data
}
