package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dgnsrekt/helipad/internal/boost"
)

const sentColumns = `idx, time, payment_hash, pubkey, custom_key, custom_value, sender, message,
  podcast, episode, total_amt_msat, total_fees_msat, reply_boost_index, tlv`

// AddSentBoost stores a sent boost and returns its index. A payment hash
// that is already stored is not added twice; its existing index is returned.
func (s *Store) AddSentBoost(ctx context.Context, rec *boost.SentRecord) (uint64, error) {
	when := rec.Time
	if when == 0 {
		when = s.now().Unix()
	}

	var customKey sql.NullInt64
	if rec.CustomKey != nil {
		customKey = sql.NullInt64{Int64: int64(*rec.CustomKey), Valid: true}
	}
	var replyIndex sql.NullInt64
	if rec.ReplyBoostIndex != nil {
		replyIndex = sql.NullInt64{Int64: int64(*rec.ReplyBoostIndex), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sent_boosts (time, payment_hash, pubkey, custom_key,
		  custom_value, sender, message, podcast, episode, total_amt_msat,
		  total_fees_msat, reply_boost_index, tlv)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		when, rec.PaymentHash, rec.Pubkey, customKey, nullString(rec.CustomValue),
		rec.Sender, rec.Message, rec.Podcast, rec.Episode, rec.TotalAmtMsat,
		rec.TotalFeesMsat, replyIndex, rec.TLV,
	)
	if err != nil {
		return 0, fmt.Errorf("adding sent boost %s: %w", rec.PaymentHash, err)
	}

	var idx int64
	err = s.db.QueryRowContext(ctx,
		`SELECT idx FROM sent_boosts WHERE payment_hash = ?`, rec.PaymentHash).Scan(&idx)
	if err != nil {
		return 0, fmt.Errorf("reading sent boost %s: %w", rec.PaymentHash, err)
	}
	return uint64(idx), nil
}

// LastSentIndex returns the highest sent boost index, 0 when empty.
func (s *Store) LastSentIndex(ctx context.Context) (uint64, error) {
	return s.lastIndex(ctx, "sent_boosts")
}

// ListSentBoosts returns a page of sent boosts. Filter.Actions is ignored.
func (s *Store) ListSentBoosts(ctx context.Context, f Filter) ([]*boost.SentRecord, error) {
	f.Actions = nil
	clause, args := f.clause("idx")

	rows, err := s.db.QueryContext(ctx, `SELECT `+sentColumns+` FROM sent_boosts `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sent boosts: %w", err)
	}
	defer rows.Close()

	records := []*boost.SentRecord{}
	for rows.Next() {
		var (
			rec         boost.SentRecord
			idx         int64
			customKey   sql.NullInt64
			customValue sql.NullString
			replyIndex  sql.NullInt64
		)
		err := rows.Scan(&idx, &rec.Time, &rec.PaymentHash, &rec.Pubkey, &customKey,
			&customValue, &rec.Sender, &rec.Message, &rec.Podcast, &rec.Episode,
			&rec.TotalAmtMsat, &rec.TotalFeesMsat, &replyIndex, &rec.TLV)
		if err != nil {
			return nil, fmt.Errorf("scanning sent boost: %w", err)
		}

		rec.Index = uint64(idx)
		if customKey.Valid {
			k := uint64(customKey.Int64)
			rec.CustomKey = &k
		}
		rec.CustomValue = stringPtr(customValue)
		if replyIndex.Valid {
			r := uint64(replyIndex.Int64)
			rec.ReplyBoostIndex = &r
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// AddWalletBalance records a balance sample taken now. Samples within the
// same second overwrite each other.
func (s *Store) AddWalletBalance(ctx context.Context, balanceSat int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_balances (time, balance) VALUES (?, ?)
		ON CONFLICT(time) DO UPDATE SET balance = excluded.balance`,
		s.now().Unix(), balanceSat,
	)
	if err != nil {
		return fmt.Errorf("adding wallet balance: %w", err)
	}
	return nil
}

// WalletBalance returns the most recent balance sample, 0 when none exists.
func (s *Store) WalletBalance(ctx context.Context) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM wallet_balances ORDER BY time DESC LIMIT 1`).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading wallet balance: %w", err)
	}
	return balance, nil
}
