package app

import (
	"fmt"
	"strings"

	"github.com/ent0n29/dailyquote/internal/config"
	"github.com/ent0n29/dailyquote/internal/llm"
	"github.com/ent0n29/dailyquote/internal/voice"
)

// mockQuote passes the quality gate so mock deployments exercise the full pipeline.
const mockQuote = "Small disciplined steps taken every day become the quiet foundation of a remarkable life."

type textSetup struct {
	provider llm.Provider
	resolved string
	detail   string
}

func resolveTextProvider(cfg config.Config) (textSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if mode == "" {
		mode = "auto"
	}

	tryOpenAI := func() (textSetup, bool) {
		if cfg.OpenAIAPIKey == "" {
			return textSetup{}, false
		}
		p := llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		return textSetup{provider: p, resolved: "openai", detail: "openai chat completions"}, true
	}
	tryAnthropic := func() (textSetup, bool) {
		if cfg.AnthropicAPIKey == "" {
			return textSetup{}, false
		}
		p := llm.NewAnthropic(cfg.AnthropicAPIKey, "", cfg.AnthropicModel)
		return textSetup{provider: p, resolved: "anthropic", detail: "anthropic messages"}, true
	}
	mock := func(detail string) textSetup {
		return textSetup{provider: llm.NewFixedMock(mockQuote), resolved: "mock", detail: detail}
	}

	switch mode {
	case "openai":
		if setup, ok := tryOpenAI(); ok {
			return setup, nil
		}
		return textSetup{}, fmt.Errorf("LLM_PROVIDER=openai but OPENAI_API_KEY is not set")
	case "anthropic":
		if setup, ok := tryAnthropic(); ok {
			return setup, nil
		}
		return textSetup{}, fmt.Errorf("LLM_PROVIDER=anthropic but ANTHROPIC_API_KEY is not set")
	case "mock":
		return mock("mock"), nil
	case "auto":
		if setup, ok := tryOpenAI(); ok {
			return setup, nil
		}
		if setup, ok := tryAnthropic(); ok {
			return setup, nil
		}
		return mock("mock (no openai or anthropic key)"), nil
	default:
		return textSetup{}, fmt.Errorf("invalid LLM_PROVIDER: %q (expected auto|openai|anthropic|mock)", cfg.LLMProvider)
	}
}

type voiceSetup struct {
	provider voice.SpeechProvider
	resolved string
	detail   string
}

func resolveVoiceProvider(cfg config.Config) (voiceSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	if mode == "" {
		mode = "auto"
	}

	tryElevenLabs := func() (voiceSetup, bool) {
		if cfg.ElevenLabsAPIKey == "" {
			return voiceSetup{}, false
		}
		p := voice.NewElevenLabsProvider(voice.ElevenLabsConfig{
			APIKey:            cfg.ElevenLabsAPIKey,
			WSBaseURL:         cfg.ElevenLabsWSBaseURL,
			ModelID:           cfg.ElevenLabsModelID,
			RequestsPerSecond: cfg.ElevenLabsRequestsPerSecond,
		})
		return voiceSetup{provider: p, resolved: "elevenlabs", detail: "elevenlabs stream-input"}, true
	}

	switch mode {
	case "elevenlabs":
		if setup, ok := tryElevenLabs(); ok {
			return setup, nil
		}
		return voiceSetup{}, fmt.Errorf("VOICE_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
	case "mock":
		return voiceSetup{provider: voice.NewMockProvider(), resolved: "mock", detail: "mock"}, nil
	case "auto":
		if setup, ok := tryElevenLabs(); ok {
			return setup, nil
		}
		return voiceSetup{provider: voice.NewMockProvider(), resolved: "mock", detail: "mock (no elevenlabs key)"}, nil
	default:
		return voiceSetup{}, fmt.Errorf("invalid VOICE_PROVIDER: %q (expected auto|elevenlabs|mock)", cfg.VoiceProvider)
	}
}
