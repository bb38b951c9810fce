package httpapi

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/dailyquote/internal/content"
	"github.com/ent0n29/dailyquote/internal/objectstore"
)

const (
	defaultRecentDays = 7
	maxRecentDays     = 90
)

type quoteView struct {
	ID                   string   `json:"id"`
	Content              string   `json:"content"`
	Category             string   `json:"category"`
	Date                 string   `json:"date"`
	AudioURL             *string  `json:"audioUrl"`
	AudioDurationSeconds *float64 `json:"audioDurationSeconds"`
	CreatedAt            string   `json:"createdAt"`
	UpdatedAt            string   `json:"updatedAt"`
}

func newQuoteView(r content.Record) quoteView {
	return quoteView{
		ID:                   r.ID,
		Content:              r.Content,
		Category:             string(r.Category),
		Date:                 r.DateKey(),
		AudioURL:             r.AudioURL,
		AudioDurationSeconds: r.AudioDurationSeconds,
		CreatedAt:            r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	s.respondRecord(w, r, s.generator.Today())
}

func (s *Server) handleByDate(w http.ResponseWriter, r *http.Request) {
	date, err := content.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	s.respondRecord(w, r, date)
}

func (s *Server) respondRecord(w http.ResponseWriter, r *http.Request, date time.Time) {
	rec, err := s.records.GetByDate(r.Context(), date)
	if errors.Is(err, content.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "No content for "+date.Format(content.DateLayout))
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("date", date.Format(content.DateLayout)).Msg("content lookup failed")
		respondError(w, http.StatusInternalServerError, "store_error", "Failed to load content")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"quote":   newQuoteView(rec),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	days := defaultRecentDays
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRecentDays {
			respondError(w, http.StatusBadRequest, "invalid_days", "days must be an integer between 1 and 90")
			return
		}
		days = n
	}
	to := s.generator.Today()
	from := to.AddDate(0, 0, -(days - 1))
	records, err := s.records.ListBetween(r.Context(), from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("content listing failed")
		respondError(w, http.StatusInternalServerError, "store_error", "Failed to load content")
		return
	}
	views := make([]quoteView, 0, len(records))
	for _, rec := range records {
		views = append(views, newQuoteView(rec))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"from":    from.Format(content.DateLayout),
		"to":      to.Format(content.DateLayout),
		"quotes":  views,
	})
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		respondError(w, http.StatusNotFound, "not_found", "media not available")
		return
	}
	key := chi.URLParam(r, "*")
	data, contentType, err := s.media.Get(r.Context(), key)
	switch {
	case errors.Is(err, objectstore.ErrNotFound), errors.Is(err, objectstore.ErrInvalid):
		respondError(w, http.StatusNotFound, "not_found", "media not found")
		return
	case err != nil:
		s.logger.Error().Err(err).Str("key", key).Msg("media read failed")
		respondError(w, http.StatusBadGateway, "store_error", "media unavailable")
		return
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, key, time.Time{}, bytes.NewReader(data))
}
