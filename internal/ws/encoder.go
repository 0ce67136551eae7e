package ws

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dgnsrekt/helipad/internal/boost"
)

// Frames holds one record encoded for each subprotocol.
type Frames struct {
	Protobuf []byte
	JSON     []byte
}

// Encoder converts boost records to wire format.
type Encoder struct {
	zstdEncoder *zstd.Encoder
}

// NewEncoder creates a new Encoder with Zstd compression.
func NewEncoder() (*Encoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &Encoder{zstdEncoder: enc}, nil
}

// EncodeRecord builds the data frames for rec published to group.
func (e *Encoder) EncodeRecord(group string, rec *boost.Record) (*Frames, error) {
	// 1. JSON view of the record, shared by both protocols
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record json: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal record json: %w", err)
	}

	// 2. Struct envelope carrying the group and record
	body, err := structpb.NewStruct(map[string]any{
		"type":  "message",
		"group": group,
		"data":  fields,
	})
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}

	pbData, err := proto.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal protobuf: %w", err)
	}

	// 3. Compress with Zstd
	compressed := e.zstdEncoder.EncodeAll(pbData, nil)

	return &Frames{
		Protobuf: buildDataMessage(compressed),
		JSON:     buildDataMessageJSON(group, raw),
	}, nil
}

// Close releases encoder resources.
func (e *Encoder) Close() {
	if e.zstdEncoder != nil {
		e.zstdEncoder.Close()
	}
}
