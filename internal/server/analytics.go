package server

import (
	"encoding/csv"
	"net/http"
	"sort"
	"strconv"

	"github.com/Snogger/ai-hairstyle-plugin/internal/ledger"
)

type analyticsResponse struct {
	Success    bool            `json:"success"`
	Totals     ledger.Totals   `json:"totals"`
	Popularity map[int64]int64 `json:"popularity"`
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	totals, popularity, ok := s.readAnalytics(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analyticsResponse{
		Success:    true,
		Totals:     totals,
		Popularity: popularity,
	})
}

func (s *Server) handleAnalyticsCSV(w http.ResponseWriter, r *http.Request) {
	totals, popularity, ok := s.readAnalytics(w, r)
	if !ok {
		return
	}

	w.Header().Set("content-type", "text/csv")
	w.Header().Set("content-disposition", `attachment; filename="analytics.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Metric", "Value"})
	_ = cw.Write([]string{"Generations", strconv.FormatInt(totals.Generations, 10)})
	_ = cw.Write([]string{"Bookings", strconv.FormatInt(totals.Bookings, 10)})
	_ = cw.Write([]string{"API Calls", strconv.FormatInt(totals.APICalls, 10)})

	_ = cw.Write([]string{"Popular Hairstyles"})
	ids := make([]int64, 0, len(popularity))
	for id := range popularity {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if popularity[ids[i]] != popularity[ids[j]] {
			return popularity[ids[i]] > popularity[ids[j]]
		}
		return ids[i] < ids[j]
	})
	for _, id := range ids {
		name := strconv.FormatInt(id, 10)
		if style, err := s.catalog.Style(r.Context(), id); err == nil {
			name = style.Name
		}
		_ = cw.Write([]string{name, strconv.FormatInt(popularity[id], 10)})
	}
	cw.Flush()
}

func (s *Server) readAnalytics(w http.ResponseWriter, r *http.Request) (ledger.Totals, map[int64]int64, bool) {
	totals, err := s.ledger.Totals(r.Context())
	if err != nil {
		s.logger.Error("analytics totals failed", "err", err)
		writeError(w, http.StatusInternalServerError, "service unavailable")
		return ledger.Totals{}, nil, false
	}

	popularity, err := s.ledger.Popularity(r.Context())
	if err != nil {
		s.logger.Error("analytics popularity failed", "err", err)
		writeError(w, http.StatusInternalServerError, "service unavailable")
		return ledger.Totals{}, nil, false
	}
	return totals, popularity, true
}
