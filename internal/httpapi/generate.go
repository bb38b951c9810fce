package httpapi

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ent0n29/dailyquote/internal/content"
	"github.com/ent0n29/dailyquote/internal/generation"
	"github.com/ent0n29/dailyquote/internal/redact"
)

// ScheduledTriggerHeader marks requests issued by the platform scheduler.
const ScheduledTriggerHeader = "X-Scheduled-Trigger"

type manualRequest struct {
	Category   string `json:"category" validate:"omitempty,oneof=motivation wisdom grindset reflection discipline"`
	Force      bool   `json:"force"`
	TargetDate string `json:"targetDate" validate:"omitempty,datetime=2006-01-02"`
}

type generateResponse struct {
	Success        bool       `json:"success"`
	Message        string     `json:"message"`
	Quote          *quoteView `json:"quote,omitempty"`
	SkipReason     string     `json:"skipReason,omitempty"`
	VoiceGenerated *bool      `json:"voiceGenerated,omitempty"`
	AudioURL       string     `json:"audioUrl,omitempty"`
	VoiceError     string     `json:"voiceError,omitempty"`
	Category       string     `json:"category,omitempty"`
	Details        string     `json:"details,omitempty"`
}

func (s *Server) handleScheduledGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.scheduledAuthorized(r) {
		s.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("unauthorized scheduled trigger")
		respondError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}
	s.runGeneration(w, r, generation.Options{})
}

func (s *Server) handleManualGenerate(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AdminToken != "" && !bearerMatches(r, s.cfg.AdminToken) {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}

	var req manualRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body: "+err.Error())
		return
	}
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	req.TargetDate = strings.TrimSpace(req.TargetDate)
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_failed", validationMessage(err))
		return
	}

	opts := generation.Options{Force: req.Force, Category: content.Category(req.Category)}
	if req.TargetDate != "" {
		date, err := content.ParseDate(req.TargetDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		opts.Date = date
	}
	s.runGeneration(w, r, opts)
}

func (s *Server) runGeneration(w http.ResponseWriter, r *http.Request, opts generation.Options) {
	res, err := s.generator.Generate(r.Context(), opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("daily generation failed")
		resp := generateResponse{Success: false, Message: "Failed to generate daily content"}
		if !s.cfg.IsProduction() {
			resp.Details = redact.String(err.Error())
		}
		respondJSON(w, http.StatusInternalServerError, resp)
		return
	}
	respondJSON(w, http.StatusOK, newGenerateResponse(res))
}

func newGenerateResponse(res generation.Result) generateResponse {
	view := newQuoteView(res.Record)
	resp := generateResponse{
		Success:  true,
		Quote:    &view,
		Category: string(res.Category),
	}
	if resp.Category == "" {
		resp.Category = string(res.Record.Category)
	}
	switch res.Outcome {
	case generation.OutcomeSkipped:
		resp.Message = "Content already exists for " + res.Record.DateKey()
		resp.SkipReason = res.SkipReason
		return resp
	case generation.OutcomePartial:
		resp.Message = "Daily content generated without narration"
		resp.VoiceError = res.VoiceError
	default:
		resp.Message = "Daily content generated successfully"
		resp.AudioURL = res.AudioURL
	}
	voiceGenerated := res.VoiceGenerated
	resp.VoiceGenerated = &voiceGenerated
	return resp
}

func (s *Server) scheduledAuthorized(r *http.Request) bool {
	if !s.cfg.IsProduction() {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(r.Header.Get(ScheduledTriggerHeader)), "true") {
		return true
	}
	return s.cfg.CronSecret != "" && bearerMatches(r, s.cfg.CronSecret)
}

func bearerMatches(r *http.Request, secret string) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) == 1
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Category":
		return fmt.Sprintf("Invalid category %q. Valid options: motivation, wisdom, grindset, reflection, discipline", fe.Value())
	case "TargetDate":
		return fmt.Sprintf("Invalid targetDate %q. Expected YYYY-MM-DD", fe.Value())
	default:
		return fmt.Sprintf("Invalid %s", fe.Field())
	}
}
