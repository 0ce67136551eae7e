package boost

// Action classifies a value event.
type Action int

const (
	ActionNone    Action = 0 // no podcasting record attached
	ActionStream  Action = 1 // per-minute streaming payment
	ActionBoost   Action = 2 // manual boost or boost-a-gram
	ActionUnknown Action = 3
)

// ParseAction maps the payload's action string. An empty action means stream.
func ParseAction(s string) Action {
	switch s {
	case "", "stream":
		return ActionStream
	case "boost":
		return ActionBoost
	default:
		return ActionUnknown
	}
}

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionStream:
		return "stream"
	case ActionBoost:
		return "boost"
	default:
		return "unknown"
	}
}

// Record is one inbound (invoice) or outbound (payment) value event.
// Index is the node-assigned id and is unique within its stream.
type Record struct {
	Index          uint64       `json:"index"`
	Time           int64        `json:"time"`
	ValueMsat      int64        `json:"value_msat"`
	ValueMsatTotal int64        `json:"value_msat_total"`
	Action         Action       `json:"action"`
	Sender         string       `json:"sender"`
	App            string       `json:"app"`
	Message        string       `json:"message"`
	Podcast        string       `json:"podcast"`
	Episode        string       `json:"episode"`
	TLV            string       `json:"tlv"`
	RemotePodcast  *string      `json:"remote_podcast"`
	RemoteEpisode  *string      `json:"remote_episode"`
	PaymentInfo    *PaymentInfo `json:"payment_info"`
}

// PaymentInfo describes the destination of an outgoing payment.
type PaymentInfo struct {
	Pubkey      string `json:"pubkey"`
	CustomKey   uint64 `json:"custom_key"`
	CustomValue string `json:"custom_value"`
	FeeMsat     int64  `json:"fee_msat"`
}

// NewInvoiceRecord builds the pre-decode record for a settled invoice.
func NewInvoiceRecord(index uint64, settleDate, amtPaidSat int64) *Record {
	return &Record{
		Index:          index,
		Time:           settleDate,
		ValueMsat:      amtPaidSat * 1000,
		ValueMsatTotal: amtPaidSat * 1000,
	}
}

// NewPaymentRecord builds the pre-decode record for an outgoing payment.
func NewPaymentRecord(index uint64, creationTimeNs, valueMsat int64, info PaymentInfo) *Record {
	return &Record{
		Index:          index,
		Time:           creationTimeNs / 1_000_000_000,
		ValueMsat:      valueMsat,
		ValueMsatTotal: valueMsat,
		PaymentInfo:    &info,
	}
}

// Payload parses the raw TLV retained on the record.
func (r *Record) Payload() (*Payload, error) {
	return ParsePayload([]byte(r.TLV))
}

// SentRecord is the result of an explicit outbound send. TotalFeesMsat is
// -1 when the fee is unknown.
type SentRecord struct {
	Index           uint64  `json:"index"`
	Time            int64   `json:"time"`
	Pubkey          string  `json:"pubkey"`
	CustomKey       *uint64 `json:"custom_key"`
	CustomValue     *string `json:"custom_value"`
	Sender          string  `json:"sender"`
	Message         string  `json:"message"`
	Podcast         string  `json:"podcast"`
	Episode         string  `json:"episode"`
	TotalAmtMsat    int64   `json:"total_amt_msat"`
	TotalFeesMsat   int64   `json:"total_fees_msat"`
	PaymentHash     string  `json:"payment_hash"`
	ReplyBoostIndex *uint64 `json:"reply_boost_index"`
	TLV             string  `json:"tlv"`
}

// UnknownFee marks a sent boost whose route fee was not reported.
const UnknownFee int64 = -1

// ReplyPayload is the TLV sent back when replying to a received boost.
type ReplyPayload struct {
	AppName        string  `json:"app_name"`
	AppVersion     string  `json:"app_version"`
	Podcast        *string `json:"podcast"`
	Episode        *string `json:"episode"`
	SenderName     string  `json:"sender_name"`
	Message        string  `json:"message"`
	Action         string  `json:"action"`
	ValueMsatTotal int64   `json:"value_msat_total"`
}
