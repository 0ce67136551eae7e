package boost

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// FlexUint is an optional unsigned number that apps send either as a JSON
// number or as a numeric string. Anything else decodes as absent.
type FlexUint struct {
	Value uint64
	Valid bool
}

func (f *FlexUint) UnmarshalJSON(data []byte) error {
	*f = FlexUint{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	var text string
	switch c := data[0]; {
	case c == '"':
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	case c == '-' || (c >= '0' && c <= '9'):
		text = string(data)
	default:
		// null, bool, object, array
		return nil
	}

	if text == "" {
		return nil
	}
	n, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return nil
	}
	f.Value, f.Valid = n, true
	return nil
}

// Int64 returns the value when it is present and fits an int64.
func (f FlexUint) Int64() (int64, bool) {
	if !f.Valid || f.Value > math.MaxInt64 {
		return 0, false
	}
	return int64(f.Value), true
}

func (f FlexUint) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendUint(nil, f.Value, 10), nil
}

// Payload is the podcasting 2.0 boost record. Every field is optional.
type Payload struct {
	Action           *string  `json:"action"`
	AppName          *string  `json:"app_name"`
	AppVersion       *string  `json:"app_version"`
	BoostLink        *string  `json:"boost_link"`
	Message          *string  `json:"message"`
	Name             *string  `json:"name"`
	Pubkey           *string  `json:"pubkey"`
	SenderKey        *string  `json:"sender_key"`
	SenderName       *string  `json:"sender_name"`
	SenderID         *string  `json:"sender_id"`
	SigFields        *string  `json:"sig_fields"`
	Signature        *string  `json:"signature"`
	Speed            *string  `json:"speed"`
	UUID             *string  `json:"uuid"`
	Podcast          *string  `json:"podcast"`
	FeedID           FlexUint `json:"feedID"`
	GUID             *string  `json:"guid"`
	URL              *string  `json:"url"`
	Episode          *string  `json:"episode"`
	ItemID           FlexUint `json:"itemID"`
	EpisodeGUID      *string  `json:"episode_guid"`
	Time             *string  `json:"time"`
	TS               FlexUint `json:"ts"`
	ValueMsat        FlexUint `json:"value_msat"`
	ValueMsatTotal   FlexUint `json:"value_msat_total"`
	RemoteFeedGUID   *string  `json:"remote_feed_guid"`
	RemoteItemGUID   *string  `json:"remote_item_guid"`
	ReplyAddress     *string  `json:"reply_address"`
	ReplyCustomKey   FlexUint `json:"reply_custom_key"`
	ReplyCustomValue *string  `json:"reply_custom_value"`
}

// ParsePayload decodes raw TLV bytes. A type mismatch on any string field
// fails the whole payload.
func ParsePayload(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ActionValue returns the parsed action, defaulting to stream.
func (p *Payload) ActionValue() Action {
	if p.Action == nil {
		return ActionStream
	}
	return ParseAction(*p.Action)
}

// HasRemoteItem reports whether the payload references another feed's item.
func (p *Payload) HasRemoteItem() bool {
	return p.RemoteFeedGUID != nil && p.RemoteItemGUID != nil &&
		*p.RemoteFeedGUID != "" && *p.RemoteItemGUID != ""
}

// ReplyCustom returns the reply key/value pair advertised by the sender.
func (p *Payload) ReplyCustom() (*uint64, *string) {
	var key *uint64
	if p.ReplyCustomKey.Valid {
		k := p.ReplyCustomKey.Value
		key = &k
	}
	return key, p.ReplyCustomValue
}

func stringOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
