package voxmail

import (
	"strings"
	"testing"
)

func mockVendorsConfig() Config {
	return Config{
		Vendors: VendorsConfig{
			STT:  VendorConfig{Provider: "mock"},
			TTS:  VendorConfig{Provider: "mock"},
			LLM:  VendorConfig{Provider: "mock"},
			Mail: VendorConfig{Provider: "mock"},
		},
	}
}

func TestDefaultRegistryBuildsMockVendors(t *testing.T) {
	reg := DefaultProviderRegistry()
	cfg := mockVendorsConfig()

	sttFactory, err := reg.BuildSTTFactory("Mock", cfg, "trace-1")
	if err != nil {
		t.Fatalf("BuildSTTFactory: %v", err)
	}
	if s := sttFactory("CA1", "S1"); s == nil {
		t.Fatal("stt factory returned nil")
	}

	ttsFactory, err := reg.BuildTTSFactory("mock", cfg)
	if err != nil {
		t.Fatalf("BuildTTSFactory: %v", err)
	}
	if s := ttsFactory("CA1", "S1"); s == nil {
		t.Fatal("tts factory returned nil")
	}

	if _, err := reg.BuildLLM("mock", cfg); err != nil {
		t.Fatalf("BuildLLM: %v", err)
	}
	if _, err := reg.BuildMail("mock", cfg); err != nil {
		t.Fatalf("BuildMail: %v", err)
	}
}

func TestRegistryRejectsUnknownProvider(t *testing.T) {
	reg := DefaultProviderRegistry()
	if _, err := reg.BuildLLM("claude", mockVendorsConfig()); err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}

func TestDeepgramFactoryRequiresAPIKey(t *testing.T) {
	reg := DefaultProviderRegistry()
	cfg := Config{Vendors: VendorsConfig{STT: VendorConfig{Provider: "deepgram"}}}
	_, err := reg.BuildSTTFactory("deepgram", cfg, "")
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected api_key error, got %v", err)
	}
}

func TestCartesiaFactoryRequiresVoice(t *testing.T) {
	reg := DefaultProviderRegistry()
	cfg := Config{Vendors: VendorsConfig{TTS: VendorConfig{
		Provider: "cartesia",
		Settings: map[string]any{"api_key": "ck-1"},
	}}}
	if _, err := reg.BuildTTSFactory("cartesia", cfg); err == nil {
		t.Fatal("expected error for missing voice_id")
	}
}

func TestNylasFactoryRequiresGrant(t *testing.T) {
	reg := DefaultProviderRegistry()
	cfg := Config{Vendors: VendorsConfig{Mail: VendorConfig{
		Provider: "nylas",
		Settings: map[string]any{"api_key": "nk-1"},
	}}}
	if _, err := reg.BuildMail("nylas", cfg); err == nil {
		t.Fatal("expected error for missing grant_id")
	}
}
