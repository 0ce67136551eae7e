package boost

import (
	"encoding/json"
	"testing"
)

func TestFlexUintStringAndNumberAgree(t *testing.T) {
	for _, v := range []string{"0", "1", "9000", "18446744073709551615"} {
		var fromNumber, fromString FlexUint
		if err := json.Unmarshal([]byte(v), &fromNumber); err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal([]byte(`"`+v+`"`), &fromString); err != nil {
			t.Fatal(err)
		}
		if !fromNumber.Valid || fromNumber != fromString {
			t.Errorf("%s: number %+v, string %+v", v, fromNumber, fromString)
		}
	}
}

func TestParsePayloadReplyFields(t *testing.T) {
	p, err := ParsePayload([]byte(`{"reply_address":"bob@example.com","reply_custom_key":"696969","reply_custom_value":"abc","feedID":920666,"itemID":"123"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.ReplyAddress == nil || *p.ReplyAddress != "bob@example.com" {
		t.Errorf("unexpected reply address: %v", p.ReplyAddress)
	}
	key, value := p.ReplyCustom()
	if key == nil || *key != 696969 {
		t.Errorf("unexpected reply key: %v", key)
	}
	if value == nil || *value != "abc" {
		t.Errorf("unexpected reply value: %v", value)
	}
	if p.FeedID.Value != 920666 || p.ItemID.Value != 123 {
		t.Errorf("unexpected ids: %+v %+v", p.FeedID, p.ItemID)
	}
}

func TestFlexUintMarshal(t *testing.T) {
	out, err := json.Marshal(struct {
		A FlexUint `json:"a"`
		B FlexUint `json:"b"`
	}{A: FlexUint{Value: 5, Valid: true}})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"a":5,"b":null}` {
		t.Errorf("unexpected json %s", out)
	}
}
