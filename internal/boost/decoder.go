package boost

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helipad/internal/podcastindex"
)

// RemoteResolver looks up the titles of an item that lives in another feed.
type RemoteResolver interface {
	Resolve(ctx context.Context, podcastGUID, episodeGUID string) (*podcastindex.Episode, bool)
}

// Decoder applies podcasting TLV payloads to records.
type Decoder struct {
	resolver RemoteResolver
	logger   *zap.Logger
}

// NewDecoder creates a Decoder. resolver may be nil to skip remote lookups.
func NewDecoder(resolver RemoteResolver, logger *zap.Logger) *Decoder {
	return &Decoder{
		resolver: resolver,
		logger:   logger,
	}
}

// Decode sets rec.TLV to the raw payload text and overlays every field the
// payload carries. When the payload is not valid JSON the record keeps its
// defaults and the parse error is returned; the record is still usable.
func (d *Decoder) Decode(ctx context.Context, rec *Record, raw []byte) error {
	text := string(raw)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	rec.TLV = text

	p, err := ParsePayload([]byte(text))
	if err != nil {
		return fmt.Errorf("parsing podcasting tlv: %w", err)
	}

	if v, ok := p.ValueMsat.Int64(); ok {
		rec.ValueMsat = v
	}
	rec.Action = p.ActionValue()

	if p.SenderName != nil && *p.SenderName != "" {
		rec.Sender = *p.SenderName
	}
	rec.Message = stringOr(p.Message, rec.Message)
	rec.App = stringOr(p.AppName, rec.App)
	rec.Podcast = stringOr(p.Podcast, rec.Podcast)
	rec.Episode = stringOr(p.Episode, rec.Episode)

	if v, ok := p.ValueMsatTotal.Int64(); ok {
		rec.ValueMsatTotal = v
	}

	if d.resolver != nil && p.HasRemoteItem() {
		if ep, ok := d.resolver.Resolve(ctx, *p.RemoteFeedGUID, *p.RemoteItemGUID); ok {
			podcast, episode := ep.Podcast, ep.Episode
			rec.RemotePodcast = &podcast
			rec.RemoteEpisode = &episode
		}
	}

	d.logger.Debug("decoded boost",
		zap.Uint64("index", rec.Index),
		zap.Stringer("action", rec.Action),
		zap.String("sender", rec.Sender),
		zap.String("app", rec.App),
		zap.Int64("valueMsat", rec.ValueMsat),
	)

	return nil
}
