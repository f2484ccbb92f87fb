package voxmail

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/voxmail/voxmail/pkg/adapters/stt"
	"github.com/voxmail/voxmail/pkg/adapters/tts"
	"github.com/voxmail/voxmail/pkg/llm"
	"github.com/voxmail/voxmail/pkg/mail"
	"github.com/voxmail/voxmail/pkg/providers/cartesia"
	"github.com/voxmail/voxmail/pkg/providers/deepgram"
	"github.com/voxmail/voxmail/pkg/providers/gemini"
	"github.com/voxmail/voxmail/pkg/providers/mock"
	"github.com/voxmail/voxmail/pkg/providers/nylas"
)

// STTFactory builds a per-call STT stream constructor.
type STTFactory func(cfg Config, traceID string) (func(callSID, streamID string) stt.StreamingSTT, error)

// TTSFactory builds a per-call TTS stream constructor.
type TTSFactory func(cfg Config) (func(callSID, streamID string) tts.StreamingTTS, error)

// LLMFactory builds the shared language model adapter.
type LLMFactory func(cfg Config) (llm.StructuredAdapter, error)

// MailFactory builds the shared mailbox provider.
type MailFactory func(cfg Config) (mail.Provider, error)

// ProviderRegistry maps vendor names from config to constructors.
type ProviderRegistry struct {
	stt  map[string]STTFactory
	tts  map[string]TTSFactory
	llm  map[string]LLMFactory
	mail map[string]MailFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt:  make(map[string]STTFactory),
		tts:  make(map[string]TTSFactory),
		llm:  make(map[string]LLMFactory),
		mail: make(map[string]MailFactory),
	}
}

func (r *ProviderRegistry) RegisterSTT(name string, factory STTFactory) {
	r.stt[normalize(name)] = factory
}

func (r *ProviderRegistry) RegisterTTS(name string, factory TTSFactory) {
	r.tts[normalize(name)] = factory
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[normalize(name)] = factory
}

func (r *ProviderRegistry) RegisterMail(name string, factory MailFactory) {
	r.mail[normalize(name)] = factory
}

func (r *ProviderRegistry) BuildSTTFactory(provider string, cfg Config, traceID string) (func(callSID, streamID string) stt.StreamingSTT, error) {
	fn := r.stt[normalize(provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", provider)
	}
	return fn(cfg, traceID)
}

func (r *ProviderRegistry) BuildTTSFactory(provider string, cfg Config) (func(callSID, streamID string) tts.StreamingTTS, error) {
	fn := r.tts[normalize(provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildLLM(provider string, cfg Config) (llm.StructuredAdapter, error) {
	fn := r.llm[normalize(provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildMail(provider string, cfg Config) (mail.Provider, error) {
	fn := r.mail[normalize(provider)]
	if fn == nil {
		return nil, fmt.Errorf("mail provider not registered: %s", provider)
	}
	return fn(cfg)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DefaultProviderRegistry registers every built-in vendor.
func DefaultProviderRegistry() *ProviderRegistry {
	r := NewProviderRegistry()

	r.RegisterSTT("deepgram", func(cfg Config, traceID string) (func(callSID, streamID string) stt.StreamingSTT, error) {
		var settings struct {
			APIKey         string `mapstructure:"api_key"`
			Model          string `mapstructure:"model"`
			Language       string `mapstructure:"language"`
			SampleRate     int    `mapstructure:"sample_rate"`
			Encoding       string `mapstructure:"encoding"`
			Interim        bool   `mapstructure:"interim"`
			UtteranceEndMS int    `mapstructure:"utterance_end_ms"`
		}
		if err := decodeSettings(cfg.Vendors.STT.Settings, &settings); err != nil {
			return nil, err
		}
		if settings.APIKey == "" {
			return nil, fmt.Errorf("deepgram api_key is required")
		}
		return func(callSID, streamID string) stt.StreamingSTT {
			return deepgram.New(deepgram.Config{
				APIKey:         settings.APIKey,
				Model:          settings.Model,
				Language:       settings.Language,
				SampleRate:     settings.SampleRate,
				Encoding:       settings.Encoding,
				Interim:        settings.Interim,
				UtteranceEndMS: settings.UtteranceEndMS,
				StreamID:       streamID,
				CallSID:        callSID,
				TraceID:        traceID,
			})
		}, nil
	})

	r.RegisterSTT("mock", func(cfg Config, traceID string) (func(callSID, streamID string) stt.StreamingSTT, error) {
		var settings struct {
			Transcript string `mapstructure:"transcript"`
		}
		if err := decodeSettings(cfg.Vendors.STT.Settings, &settings); err != nil {
			return nil, err
		}
		return func(callSID, streamID string) stt.StreamingSTT {
			return mock.NewSTT(mock.STTConfig{
				StreamID:   streamID,
				CallSID:    callSID,
				TraceID:    traceID,
				Transcript: settings.Transcript,
			})
		}, nil
	})

	r.RegisterTTS("cartesia", func(cfg Config) (func(callSID, streamID string) tts.StreamingTTS, error) {
		var settings struct {
			APIKey     string `mapstructure:"api_key"`
			VoiceID    string `mapstructure:"voice_id"`
			ModelID    string `mapstructure:"model_id"`
			Encoding   string `mapstructure:"encoding"`
			SampleRate int    `mapstructure:"sample_rate"`
		}
		if err := decodeSettings(cfg.Vendors.TTS.Settings, &settings); err != nil {
			return nil, err
		}
		if settings.APIKey == "" || settings.VoiceID == "" {
			return nil, fmt.Errorf("cartesia api_key and voice_id are required")
		}
		return func(callSID, streamID string) tts.StreamingTTS {
			return cartesia.New(cartesia.Config{
				APIKey:     settings.APIKey,
				VoiceID:    settings.VoiceID,
				ModelID:    settings.ModelID,
				Encoding:   settings.Encoding,
				SampleRate: settings.SampleRate,
				StreamID:   streamID,
				CallSID:    callSID,
			})
		}, nil
	})

	r.RegisterTTS("mock", func(cfg Config) (func(callSID, streamID string) tts.StreamingTTS, error) {
		return func(callSID, streamID string) tts.StreamingTTS {
			return mock.NewTTS(mock.TTSConfig{
				StreamID:       streamID,
				CallSID:        callSID,
				EmitAudioReady: true,
			})
		}, nil
	})

	r.RegisterLLM("gemini", func(cfg Config) (llm.StructuredAdapter, error) {
		var settings struct {
			APIKey  string `mapstructure:"api_key"`
			Model   string `mapstructure:"model"`
			BaseURL string `mapstructure:"base_url"`
		}
		if err := decodeSettings(cfg.Vendors.LLM.Settings, &settings); err != nil {
			return nil, err
		}
		if settings.APIKey == "" {
			return nil, fmt.Errorf("gemini api_key is required")
		}
		adapter := gemini.NewAdapter(settings.APIKey, settings.Model)
		if settings.BaseURL != "" {
			adapter.BaseURL = settings.BaseURL
		}
		return adapter, nil
	})

	r.RegisterLLM("mock", func(cfg Config) (llm.StructuredAdapter, error) {
		return mock.NewLLMAdapter(mock.LLMConfig{}), nil
	})

	r.RegisterMail("nylas", func(cfg Config) (mail.Provider, error) {
		var settings struct {
			APIKey  string `mapstructure:"api_key"`
			GrantID string `mapstructure:"grant_id"`
			BaseURL string `mapstructure:"base_url"`
		}
		if err := decodeSettings(cfg.Vendors.Mail.Settings, &settings); err != nil {
			return nil, err
		}
		if settings.APIKey == "" || settings.GrantID == "" {
			return nil, fmt.Errorf("nylas api_key and grant_id are required")
		}
		client := nylas.NewClient(settings.APIKey, settings.GrantID)
		if settings.BaseURL != "" {
			client.BaseURL = settings.BaseURL
		}
		return client, nil
	})

	r.RegisterMail("mock", func(cfg Config) (mail.Provider, error) {
		return mock.NewMailProvider(), nil
	})

	return r
}

func decodeSettings(settings map[string]any, out any) error {
	if settings == nil {
		settings = map[string]any{}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(settings)
}
