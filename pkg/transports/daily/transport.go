package daily

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxmail/voxmail/pkg/frames"
)

type TransportConfig struct {
	ServerAddr string `mapstructure:"server_addr"`
	PublicURL  string `mapstructure:"public_url"`
	BridgePath string `mapstructure:"bridge_path"`
	SampleRate int    `mapstructure:"sample_rate"`
}

func (c TransportConfig) withDefaults() TransportConfig {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8081"
	}
	if c.BridgePath == "" {
		c.BridgePath = "/bridge"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	return c
}

// Transport bridges a Daily call into frames over a websocket. A helper
// client joins the Daily room over WebRTC, taps the caller's audio track,
// and relays raw PCM here; synthesized audio and reply transcripts flow
// back over the same socket. Room lifecycle lives in Client, not here.
type Transport struct {
	cfg      TransportConfig
	server   *http.Server
	upgrader websocket.Upgrader
	recvCh   chan frames.Frame

	mu       sync.Mutex
	bridges  map[string]*bridge
	byCall   map[string]string
	draining atomic.Bool
}

func NewTransport(cfg TransportConfig) *Transport {
	cfg = cfg.withDefaults()
	return &Transport{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		recvCh:  make(chan frames.Frame, 512),
		bridges: make(map[string]*bridge),
		byCall:  make(map[string]string),
	}
}

func (t *Transport) Name() string { return "daily" }

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{"bridge_path": t.cfg.BridgePath, "addr": t.cfg.ServerAddr}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.Handle(t.cfg.BridgePath, t)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("daily bridge server error", "error", err.Error())
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.draining.Store(true)
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	for _, b := range t.bridges {
		_ = b.close()
	}
	t.bridges = make(map[string]*bridge)
	t.byCall = make(map[string]string)
	t.mu.Unlock()
	close(t.recvCh)
	return nil
}

// bridgeMessage is the wire format in both directions. Inbound types:
// join, audio, leave. Outbound types: audio, transcript, clear.
type bridgeMessage struct {
	Type     string `json:"type"`
	RoomName string `json:"room_name,omitempty"`
	Data     string `json:"data,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ServeHTTP handles one bridge connection. The room name doubles as the
// call identifier; a second join for the same room replaces the first.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var streamID, roomName string
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg bridgeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "join":
			if strings.TrimSpace(msg.RoomName) == "" {
				continue
			}
			roomName = msg.RoomName
			streamID = uuid.NewString()
			traceID := uuid.NewString()
			if old := t.attach(streamID, roomName, traceID, conn); old != nil {
				_ = old.close()
			}
			meta := map[string]string{
				frames.MetaStreamID: streamID,
				frames.MetaCallSID:  roomName,
				frames.MetaTraceID:  traceID,
				frames.MetaSource:   "transport",
			}
			nonBlockingSend(t.recvCh, frames.NewSystemFrame(streamID, time.Now().UnixNano(), "call_start", meta))
		case "audio":
			if streamID == "" {
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				continue
			}
			meta := t.metaForStream(streamID)
			meta[frames.MetaEncoding] = "linear16"
			nonBlockingSend(t.recvCh, frames.NewAudioFrame(streamID, time.Now().UnixNano(), pcm, t.cfg.SampleRate, 1, meta))
		case "leave":
			if streamID == "" {
				continue
			}
			meta := t.metaForStream(streamID)
			meta[frames.MetaCallEndReason] = "completed"
			nonBlockingSend(t.recvCh, frames.NewSystemFrame(streamID, time.Now().UnixNano(), "call_end", meta))
			t.detach(streamID)
			return
		}
	}
	if streamID != "" {
		meta := t.metaForStream(streamID)
		meta[frames.MetaCallEndReason] = "failed"
		nonBlockingSend(t.recvCh, frames.NewSystemFrame(streamID, time.Now().UnixNano(), "call_end", meta))
		t.detach(streamID)
	}
}

// Send relays synthesized audio and agent transcripts back to the helper
// client. Interrupt controls clear its playback queue.
func (t *Transport) Send(f frames.Frame) error {
	streamID := f.Meta()[frames.MetaStreamID]
	b := t.bridge(streamID)
	if b == nil {
		return nil
	}
	switch f.Kind() {
	case frames.KindAudio:
		af := f.(frames.AudioFrame)
		return b.enqueue(bridgeMessage{
			Type: "audio",
			Data: base64.StdEncoding.EncodeToString(af.RawPayload()),
		})
	case frames.KindText:
		tf := f.(frames.TextFrame)
		if tf.Meta()[frames.MetaSource] != "agent" {
			return nil
		}
		return b.enqueue(bridgeMessage{Type: "transcript", Text: tf.Text()})
	case frames.KindControl:
		cf := f.(frames.ControlFrame)
		switch cf.Code() {
		case frames.ControlFlush, frames.ControlCancel, frames.ControlStartInterruption:
			return b.enqueue(bridgeMessage{Type: "clear"})
		}
	}
	return nil
}

func (t *Transport) attach(streamID, roomName, traceID string, conn *websocket.Conn) *bridge {
	b := &bridge{conn: conn, sendCh: make(chan []byte, 256), traceID: traceID, roomName: roomName}
	var old *bridge
	t.mu.Lock()
	if existing := t.byCall[roomName]; existing != "" && existing != streamID {
		old = t.bridges[existing]
		delete(t.bridges, existing)
	}
	t.bridges[streamID] = b
	t.byCall[roomName] = streamID
	t.mu.Unlock()
	go b.loop()
	return old
}

func (t *Transport) detach(streamID string) {
	t.mu.Lock()
	b := t.bridges[streamID]
	delete(t.bridges, streamID)
	if b != nil && t.byCall[b.roomName] == streamID {
		delete(t.byCall, b.roomName)
	}
	t.mu.Unlock()
	if b != nil {
		_ = b.close()
	}
}

func (t *Transport) bridge(streamID string) *bridge {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bridges[streamID]
}

func (t *Transport) metaForStream(streamID string) map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	meta := map[string]string{frames.MetaStreamID: streamID}
	if b := t.bridges[streamID]; b != nil {
		meta[frames.MetaCallSID] = b.roomName
		meta[frames.MetaTraceID] = b.traceID
	}
	return meta
}

type bridge struct {
	conn     *websocket.Conn
	sendCh   chan []byte
	traceID  string
	roomName string
	closed   atomic.Bool
}

func (b *bridge) enqueue(msg bridgeMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case b.sendCh <- raw:
	default:
	}
	return nil
}

func (b *bridge) loop() {
	for msg := range b.sendCh {
		_ = b.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (b *bridge) close() error {
	if b.closed.CompareAndSwap(false, true) {
		close(b.sendCh)
	}
	return b.conn.Close()
}

func nonBlockingSend(ch chan frames.Frame, f frames.Frame) {
	select {
	case ch <- f:
	default:
	}
}
