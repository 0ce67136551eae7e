package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dgnsrekt/helipad/internal/boost"
)

const recordColumns = `idx, time, value_msat, value_msat_total, action, sender, app, message,
  podcast, episode, tlv, remote_podcast, remote_episode`

const paymentColumns = recordColumns + `, payment_pubkey, payment_custom_key,
  payment_custom_value, payment_fee_msat`

// LastBoostIndex returns the highest stored invoice index, 0 when empty.
func (s *Store) LastBoostIndex(ctx context.Context) (uint64, error) {
	return s.lastIndex(ctx, "boosts")
}

// LastPaymentIndex returns the highest stored payment index, 0 when empty.
func (s *Store) LastPaymentIndex(ctx context.Context) (uint64, error) {
	return s.lastIndex(ctx, "payments")
}

// AddInvoice stores a received record. Re-adding an index is a no-op.
func (s *Store) AddInvoice(ctx context.Context, rec *boost.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO boosts (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(rec.Index), rec.Time, rec.ValueMsat, rec.ValueMsatTotal, int(rec.Action),
		rec.Sender, rec.App, rec.Message, rec.Podcast, rec.Episode, rec.TLV,
		nullString(rec.RemotePodcast), nullString(rec.RemoteEpisode),
	)
	if err != nil {
		return fmt.Errorf("adding invoice %d: %w", rec.Index, err)
	}
	return nil
}

// AddPayment stores an outgoing record. Re-adding an index is a no-op.
func (s *Store) AddPayment(ctx context.Context, rec *boost.Record) error {
	info := rec.PaymentInfo
	if info == nil {
		info = &boost.PaymentInfo{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(rec.Index), rec.Time, rec.ValueMsat, rec.ValueMsatTotal, int(rec.Action),
		rec.Sender, rec.App, rec.Message, rec.Podcast, rec.Episode, rec.TLV,
		nullString(rec.RemotePodcast), nullString(rec.RemoteEpisode),
		info.Pubkey, int64(info.CustomKey), info.CustomValue, info.FeeMsat,
	)
	if err != nil {
		return fmt.Errorf("adding payment %d: %w", rec.Index, err)
	}
	return nil
}

// GetInvoice returns the received record at index or ErrNotFound.
func (s *Store) GetInvoice(ctx context.Context, index uint64) (*boost.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM boosts WHERE idx = ?`, int64(index))

	rec, err := scanRecord(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %d: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading invoice %d: %w", index, err)
	}
	return rec, nil
}

// ListInvoices returns a page of received records.
func (s *Store) ListInvoices(ctx context.Context, f Filter) ([]*boost.Record, error) {
	clause, args := f.clause("idx")
	return s.listRecords(ctx, `SELECT `+recordColumns+` FROM boosts `+clause, args, false)
}

// ListPayments returns a page of outgoing records.
func (s *Store) ListPayments(ctx context.Context, f Filter) ([]*boost.Record, error) {
	clause, args := f.clause("idx")
	return s.listRecords(ctx, `SELECT `+paymentColumns+` FROM payments `+clause, args, true)
}

func (s *Store) listRecords(ctx context.Context, query string, args []any, payment bool) ([]*boost.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	records := []*boost.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows, payment)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, payment bool) (*boost.Record, error) {
	var (
		rec           boost.Record
		index         int64
		action        int
		remotePodcast sql.NullString
		remoteEpisode sql.NullString
	)
	dest := []any{
		&index, &rec.Time, &rec.ValueMsat, &rec.ValueMsatTotal, &action,
		&rec.Sender, &rec.App, &rec.Message, &rec.Podcast, &rec.Episode, &rec.TLV,
		&remotePodcast, &remoteEpisode,
	}

	var (
		info      boost.PaymentInfo
		customKey int64
	)
	if payment {
		dest = append(dest, &info.Pubkey, &customKey, &info.CustomValue, &info.FeeMsat)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	rec.Index = uint64(index)
	rec.Action = boost.Action(action)
	rec.RemotePodcast = stringPtr(remotePodcast)
	rec.RemoteEpisode = stringPtr(remoteEpisode)
	if payment {
		info.CustomKey = uint64(customKey)
		rec.PaymentInfo = &info
	}
	return &rec, nil
}
