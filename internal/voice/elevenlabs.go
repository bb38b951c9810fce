package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	DefaultElevenLabsWSBaseURL = "wss://api.elevenlabs.io"
	DefaultElevenLabsModelID   = "eleven_multilingual_v2"
)

type ElevenLabsConfig struct {
	APIKey    string
	WSBaseURL string
	ModelID   string
	// RequestsPerSecond paces outbound synthesis sessions. Zero disables pacing.
	RequestsPerSecond float64
	Settings          Settings
}

// Settings are the voice_settings sent when a stream opens.
type Settings struct {
	Stability       float64
	SimilarityBoost float64
	Speed           float64
}

func (s Settings) normalized() Settings {
	if s.Stability <= 0 {
		s.Stability = 0.42
	}
	s.Stability = min(s.Stability, 1)
	if s.SimilarityBoost <= 0 {
		s.SimilarityBoost = 0.85
	}
	s.SimilarityBoost = min(s.SimilarityBoost, 1)
	if s.Speed <= 0 {
		s.Speed = 1.0
	}
	s.Speed = max(min(s.Speed, 1.2), 0.7)
	return s
}

// ElevenLabsProvider synthesizes over the stream-input websocket: it sends the
// whole text, closes input and collects audio frames until the final marker.
type ElevenLabsProvider struct {
	cfg     ElevenLabsConfig
	dialer  *websocket.Dialer
	limiter *rate.Limiter
}

func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = DefaultElevenLabsWSBaseURL
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = DefaultElevenLabsModelID
	}
	cfg.Settings = cfg.Settings.normalized()
	p := &ElevenLabsProvider{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return p
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

type streamMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Final   bool   `json:"is_final"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, &ProviderError{Provider: p.Name(), Code: "voice_not_found", Message: "voice id is empty"}
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(req.VoiceID) + "/stream-input")
	if err != nil {
		return nil, fmt.Errorf("build tts url: %w", err)
	}
	q := u.Query()
	q.Set("model_id", p.cfg.ModelID)
	q.Set("output_format", req.Encoding)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, &ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s := p.cfg.Settings
	frames := []any{
		map[string]any{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        s.Stability,
				"similarity_boost": s.SimilarityBoost,
				"speed":            s.Speed,
			},
		},
		map[string]any{"text": req.Text + " ", "try_trigger_generation": true},
		map[string]any{"text": ""},
	}
	for _, f := range frames {
		if err := conn.WriteJSON(f); err != nil {
			return nil, p.connError(ctx, "write", err)
		}
	}

	var audio []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if len(audio) > 0 && websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return audio, nil
			}
			return nil, p.connError(ctx, "read", err)
		}
		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return nil, &ProviderError{Provider: p.Name(), StatusCode: msg.Code, Code: msg.Error, Message: msg.Message}
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("decode audio frame: %w", err)
			}
			audio = append(audio, chunk...)
		}
		if msg.IsFinal || msg.Final {
			if len(audio) == 0 {
				return nil, &ProviderError{Provider: p.Name(), Code: "empty_audio", Message: "stream finished without audio"}
			}
			return audio, nil
		}
	}
}

// connError prefers the context error when the connection was torn down by cancellation.
func (p *ElevenLabsProvider) connError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code == websocket.ClosePolicyViolation {
		return &ProviderError{Provider: p.Name(), Code: "policy_violation", Message: ce.Text}
	}
	return fmt.Errorf("tts websocket %s: %w", op, err)
}
