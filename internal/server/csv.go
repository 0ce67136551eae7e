package server

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helipad/internal/boost"
)

const csvTimeLayout = "_2 Jan 2006 15:04:05 UTC"

var csvHeader = []string{
	"count", "index", "time", "value_msat", "value_sat", "value_msat_total",
	"value_sat_total", "action", "sender", "app", "message", "podcast",
	"episode", "remote_podcast", "remote_episode",
}

// ExportCSV writes a page of received value events, of every action, as a
// CSV attachment. end bounds the far side of the page.
func (s *Server) ExportCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := pageFilter(r)
	if err != nil {
		clientError(w, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "end", r.URL.Query(), &filter.EndIndex); err != nil {
		clientError(w, "** 'end' parameter must be an integer.")
		return
	}

	records, err := s.store.ListInvoices(r.Context(), filter)
	if err != nil {
		s.logger.Error("list records", zap.String("list", "csv"), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "** Error getting boosts.")
		return
	}

	body, err := encodeCSV(records)
	if err != nil {
		s.logger.Error("encode csv", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "** Error getting boosts.")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="boosts.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func encodeCSV(records []*boost.Record) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if err := cw.Write(csvHeader); err != nil {
		return nil, err
	}
	for i, rec := range records {
		row := []string{
			strconv.Itoa(i + 1),
			strconv.FormatUint(rec.Index, 10),
			time.Unix(rec.Time, 0).UTC().Format(csvTimeLayout),
			strconv.FormatInt(rec.ValueMsat, 10),
			strconv.FormatInt(toSats(rec.ValueMsat), 10),
			strconv.FormatInt(rec.ValueMsatTotal, 10),
			strconv.FormatInt(toSats(rec.ValueMsatTotal), 10),
			strconv.Itoa(int(rec.Action)),
			rec.Sender,
			rec.App,
			rec.Message,
			rec.Podcast,
			rec.Episode,
			deref(rec.RemotePodcast),
			deref(rec.RemoteEpisode),
		}
		if err := cw.Write(row); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}

// toSats truncates to whole sats; sub-sat amounts report 0.
func toSats(msat int64) int64 {
	if msat > 1000 {
		return msat / 1000
	}
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
