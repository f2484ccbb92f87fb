package cartesia

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxmail/voxmail/pkg/adapters/tts"
	"github.com/voxmail/voxmail/pkg/frames"
	"github.com/voxmail/voxmail/pkg/resilience"
)

const (
	wsEndpoint = "wss://api.cartesia.ai/tts/websocket"
	apiVersion = "2024-06-10"
)

type Config struct {
	APIKey     string
	VoiceID    string
	ModelID    string
	Encoding   string
	SampleRate int
	StreamID   string
	CallSID    string
}

// CartesiaTTS synthesizes agent replies over Cartesia's websocket API.
// Each SendText opens a fresh context so a barge-in cancel only kills the
// utterance in flight.
type CartesiaTTS struct {
	cfg       Config
	conn      *websocket.Conn
	out       chan frames.Frame
	writeCh   chan ttsMessage
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	contextMu sync.Mutex
	contextID string
}

type ttsMessage struct {
	text      string
	contextID string
}

func New(cfg Config) *CartesiaTTS {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 8000
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "pcm_mulaw"
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "sonic-2"
	}
	return &CartesiaTTS{
		cfg:     cfg,
		out:     make(chan frames.Frame, 256),
		writeCh: make(chan ttsMessage, 256),
	}
}

func (s *CartesiaTTS) Name() string { return "cartesia_tts" }

func (s *CartesiaTTS) Start(ctx context.Context) error {
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return errors.New("missing cartesia config")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	q := url.Values{}
	q.Set("api_key", s.cfg.APIKey)
	q.Set("cartesia_version", apiVersion)
	u := wsEndpoint + "?" + q.Encode()

	slog.Debug("connecting to cartesia",
		slog.String("stream_id", s.cfg.StreamID),
		slog.String("model_id", s.cfg.ModelID))

	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.Dial(u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return resilience.RateLimitError{Provider: "cartesia", Message: resp.Status}
		}
		return err
	}
	s.conn = conn

	slog.Info("connected to cartesia",
		slog.String("stream_id", s.cfg.StreamID),
		slog.String("encoding", s.cfg.Encoding))

	go s.readLoop()
	go s.writeLoop()
	return nil
}

func (s *CartesiaTTS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return s.conn.Close()
	}
	return nil
}

func (s *CartesiaTTS) SendText(text string) error {
	if s.conn == nil {
		return errors.New("not connected")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	id := uuid.NewString()
	s.contextMu.Lock()
	s.contextID = id
	s.contextMu.Unlock()

	select {
	case s.writeCh <- ttsMessage{text: text, contextID: id}:
	default:
		return errors.New("write buffer full")
	}
	return nil
}

// Flush cancels the in-flight synthesis context and drops any audio
// already buffered, so interrupted replies never reach the caller.
func (s *CartesiaTTS) Flush() {
	s.contextMu.Lock()
	id := s.contextID
	s.contextID = ""
	s.contextMu.Unlock()

	if id != "" {
		_ = s.send(map[string]any{"context_id": id, "cancel": true})
	}

drainLoop:
	for {
		select {
		case <-s.out:
		default:
			break drainLoop
		}
	}
	slog.Info("tts buffer purged",
		slog.String("stream_id", s.cfg.StreamID))
}

func (s *CartesiaTTS) Results() <-chan frames.Frame { return s.out }

func (s *CartesiaTTS) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.writeCh:
			payload := map[string]any{
				"context_id": msg.contextID,
				"model_id":   s.cfg.ModelID,
				"transcript": msg.text,
				"voice":      map[string]any{"mode": "id", "id": s.cfg.VoiceID},
				"output_format": map[string]any{
					"container":   "raw",
					"encoding":    s.cfg.Encoding,
					"sample_rate": s.cfg.SampleRate,
				},
				"continue": false,
			}
			_ = s.send(payload)
		}
	}
}

func (s *CartesiaTTS) readLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				if s.ctx.Err() == nil {
					slog.Error("tts read loop error",
						slog.String("stream_id", s.cfg.StreamID),
						slog.String("error", err.Error()))
				}
				return
			}
			s.handleMessage(data)
		}
	}
}

type serverMessage struct {
	Type      string `json:"type"`
	ContextID string `json:"context_id"`
	Data      string `json:"data"`
	Error     string `json:"error"`
	Done      bool   `json:"done"`
}

func (s *CartesiaTTS) handleMessage(data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("tts websocket raw data", "data", string(data))
		return
	}

	// Messages for a cancelled context are stale audio.
	s.contextMu.Lock()
	current := s.contextID
	s.contextMu.Unlock()
	if msg.ContextID != "" && msg.ContextID != current {
		return
	}

	switch msg.Type {
	case "chunk":
		raw, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			slog.Error("tts audio decode error", "error", err)
			return
		}
		meta := s.baseMeta()
		if strings.Contains(s.cfg.Encoding, "mulaw") {
			meta[frames.MetaEncoding] = "mulaw"
			meta[frames.MetaCodec] = "ulaw"
		}
		f := frames.NewAudioFrame(s.cfg.StreamID, time.Now().UnixNano(), raw, s.cfg.SampleRate, 1, meta)
		select {
		case s.out <- f:
		default:
			slog.Warn("tts output buffer full",
				slog.String("stream_id", s.cfg.StreamID))
		}
	case "done":
		meta := s.baseMeta()
		meta[frames.MetaReason] = "synthesis_complete"
		f := frames.NewControlFrame(s.cfg.StreamID, time.Now().UnixNano(), frames.ControlAudioReady, meta)
		select {
		case s.out <- f:
		default:
		}
	case "error":
		slog.Error("cartesia error",
			slog.String("stream_id", s.cfg.StreamID),
			slog.String("error", msg.Error))
	}
}

func (s *CartesiaTTS) baseMeta() map[string]string {
	return map[string]string{
		frames.MetaStreamID: s.cfg.StreamID,
		frames.MetaCallSID:  s.cfg.CallSID,
		frames.MetaSource:   "cartesia",
	}
}

func (s *CartesiaTTS) send(payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

var _ tts.StreamingTTS = (*CartesiaTTS)(nil)
