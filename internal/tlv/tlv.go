// Package tlv holds the custom-record type registry used by podcasting
// keysend payments.
//
// See https://github.com/satoshisstream/satoshis.stream/blob/main/TLV_registry.md
package tlv

import "strconv"

// Type is a custom-record type identifier attached to a payment hop.
type Type uint64

const (
	Podcasting20    Type = 7629169
	KeysendPreimage Type = 5482373484
	WalletKey       Type = 696969
	WalletID        Type = 112111100
	HiveAccount     Type = 818818
)

var names = map[Type]string{
	Podcasting20:    "podcasting20",
	KeysendPreimage: "keysend",
	WalletKey:       "wallet_key",
	WalletID:        "wallet_id",
	HiveAccount:     "hive_account",
}

func (t Type) String() string {
	if name, ok := names[t]; ok {
		return name
	}
	return strconv.FormatUint(uint64(t), 10)
}

// IsWalletIdentity reports whether key is one a receiving wallet uses to
// route a payment to one of its accounts.
func IsWalletIdentity(key uint64) bool {
	switch Type(key) {
	case WalletKey, WalletID, HiveAccount:
		return true
	}
	return false
}
