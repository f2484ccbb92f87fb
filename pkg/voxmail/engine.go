package voxmail

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voxmail/voxmail/pkg/conversation"
	"github.com/voxmail/voxmail/pkg/frames"
	"github.com/voxmail/voxmail/pkg/intent"
	"github.com/voxmail/voxmail/pkg/logging"
	"github.com/voxmail/voxmail/pkg/mail"
	"github.com/voxmail/voxmail/pkg/metrics"
	"github.com/voxmail/voxmail/pkg/observers"
	"github.com/voxmail/voxmail/pkg/pipeline"
	"github.com/voxmail/voxmail/pkg/processors"
	"github.com/voxmail/voxmail/pkg/runner"
	"github.com/voxmail/voxmail/pkg/session"
	"github.com/voxmail/voxmail/pkg/transports"
	"github.com/voxmail/voxmail/pkg/turn"
)

// Engine owns the shared collaborators and spins up one pipeline per
// call: STT -> agent -> TTS, wired to the transport. Conversation state
// is snapshotted to the session store when a call ends.
type Engine struct {
	cfg       Config
	registry  *pipeline.SessionRegistry
	transport transports.Transport
	providers *ProviderRegistry
	store     session.Store
	mailSvc   mail.Service
	runner    *runner.LifecycleRunner
	asyncObs  *metrics.AsyncObserver
	ctx       context.Context
	cancel    context.CancelFunc

	mu       sync.Mutex
	managers map[string]*conversation.Manager
}

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	Transport transports.Transport
	// Store overrides the store built from config. Useful in tests.
	Store session.Store
	// MailService overrides the service built from config.
	MailService mail.Service
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)

	slog.Info("voxmail init",
		"environment", cfg.Environment,
		"llm_provider", cfg.Vendors.LLM.Provider,
		"stt_provider", cfg.Vendors.STT.Provider,
		"tts_provider", cfg.Vendors.TTS.Provider,
		"mail_provider", cfg.Vendors.Mail.Provider,
		"transport", cfg.Transports.Provider,
	)

	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviderRegistry()
	}

	multiObs := observers.NewMultiObserver(
		observers.NewLatencyObserver(logger),
		observers.NewLoggerObserver(logger),
	)
	asyncObs := metrics.NewAsyncObserver(multiObs, 2048)

	llmAdapter, err := providers.BuildLLM(cfg.Vendors.LLM.Provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("build llm: %w", err)
	}

	mailSvc := opts.MailService
	if mailSvc == nil {
		mailProvider, err := providers.BuildMail(cfg.Vendors.Mail.Provider, cfg)
		if err != nil {
			return nil, fmt.Errorf("build mail: %w", err)
		}
		summarizer, _ := llmAdapter.(mail.Summarizer)
		mailSvc = mail.NewService(mailProvider, summarizer, logger)
	}

	store := opts.Store
	if store == nil {
		store, err = buildStore(cfg.Session)
		if err != nil {
			return nil, fmt.Errorf("build session store: %w", err)
		}
	}

	e := &Engine{
		cfg:       cfg,
		transport: opts.Transport,
		providers: providers,
		store:     store,
		mailSvc:   mailSvc,
		asyncObs:  asyncObs,
		managers:  make(map[string]*conversation.Manager),
	}

	var sink func(frames.Frame)
	if opts.Transport != nil {
		sink = func(f frames.Frame) {
			_ = opts.Transport.Send(f)
		}
	}

	bargeIn := time.Duration(cfg.Turn.BargeInThresholdMS) * time.Millisecond

	e.registry = pipeline.NewSessionRegistry(func(ctx context.Context, callSID, streamID, traceID string) (pipeline.Orchestrator, error) {
		fsm := turn.NewFSM(bargeIn, emitterFunc(func(f frames.Frame) error {
			if opts.Transport != nil {
				return opts.Transport.Send(f)
			}
			return nil
		}))

		classifier := intent.NewClassifier(llmAdapter, logger)
		manager := conversation.NewManager(classifier, e.mailSvc, logger)
		e.rehydrate(ctx, callSID, manager)
		e.trackManager(callSID, manager)

		sttFactory, err := providers.BuildSTTFactory(cfg.Vendors.STT.Provider, cfg, traceID)
		if err != nil {
			return nil, err
		}
		sttProc := processors.NewSTTProcessor(sttFactory)
		sttProc.SetForwardInterim(cfg.STT.ForwardInterim)
		sttProc.SetObserver(asyncObs)
		sttProc.SetContext(ctx)

		agentProc := processors.NewAgentProcessor(manager, fsm)
		agentProc.SetObserver(asyncObs)
		agentProc.SetContext(ctx)

		ttsFactory, err := providers.BuildTTSFactory(cfg.Vendors.TTS.Provider, cfg)
		if err != nil {
			return nil, err
		}
		ttsProc := processors.NewTTSProcessor(ttsFactory)
		ttsProc.SetTurnFSM(fsm)
		ttsProc.SetObserver(asyncObs)
		ttsProc.SetContext(ctx)

		orch := pipeline.NewChain(cfg.Pipeline, sttProc, agentProc, ttsProc)
		orch.SetContext(ctx)
		orch.SetObserver(asyncObs)
		if sink != nil {
			orch.SetSink(sink)
		}

		go func() {
			<-ctx.Done()
			sttProc.CloseAll()
			ttsProc.CloseAll()
		}()

		return orch, nil
	})

	hooks := runner.Hooks{
		OnStart: func() {
			fields := []any{"message", "Voxmail Engine Ready"}
			if rr, ok := opts.Transport.(transports.ReadyReporter); ok {
				for k, v := range rr.ReadyFields() {
					fields = append(fields, k, v)
				}
			}
			slog.Info("engine_ready", fields...)
		},
		OnStop: func() {
			asyncObs.Close()
			if e.store != nil {
				_ = e.store.Close()
			}
			slog.Info("shutdown",
				"goroutines", runtime.NumGoroutine(),
				"active_calls", e.registry.Count())
		},
	}

	e.runner = runner.NewLifecycleRunner(drainerFunc(func() error {
		if opts.Transport != nil {
			_ = opts.Transport.Stop()
		}
		e.registry.SetDraining(true)
		e.registry.CloseAll()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		_ = e.registry.WaitForEmpty(ctx, 200*time.Millisecond)
		return nil
	}), hooks, 30*time.Second)

	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

func buildStore(cfg SessionConfig) (session.Store, error) {
	switch cfg.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ttl := time.Duration(cfg.TTLHours) * time.Hour
		return session.NewStore(session.StoreTypeRedis,
			session.WithRedisClient(client),
			session.WithRedisTTL(ttl))
	default:
		return session.NewStore(session.StoreTypeMemory)
	}
}

func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.transport != nil {
		if err := e.transport.Start(ctx); err != nil {
			return err
		}
		go e.routeTransport(ctx)
	}
	go func() {
		_ = e.runner.Run(ctx)
	}()
	return nil
}

func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	return e.runner.Stop()
}

// routeTransport moves inbound frames into per-call pipelines. Call
// starts carry the configured greeting so the agent speaks first; call
// ends snapshot conversation state before the session is torn down.
func (e *Engine) routeTransport(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-e.transport.Recv():
			if !ok {
				return
			}
			meta := f.Meta()
			callSID := meta[frames.MetaCallSID]
			streamID := meta[frames.MetaStreamID]
			traceID := meta[frames.MetaTraceID]
			if callSID == "" || streamID == "" {
				continue
			}

			if f.Kind() == frames.KindSystem {
				sf := f.(frames.SystemFrame)
				switch sf.Name() {
				case "call_start":
					if e.cfg.Greeting != "" {
						meta[frames.MetaGreetingText] = e.cfg.Greeting
						f = frames.NewSystemFrame(streamID, sf.PTS(), sf.Name(), meta)
					}
				case "call_end":
					e.persist(context.Background(), callSID)
					e.forgetManager(callSID)
					e.registry.Remove(callSID)
					continue
				}
			}

			sess, _, err := e.registry.GetOrCreate(callSID, streamID, traceID)
			if err != nil {
				slog.Error("session create failed",
					"call_sid", callSID, "error", err.Error())
				continue
			}
			nonBlockingSend(sess.Orch.In(), f)
		}
	}
}

func (e *Engine) rehydrate(ctx context.Context, callSID string, manager *conversation.Manager) {
	if e.store == nil {
		return
	}
	snap, err := e.store.Get(ctx, callSID)
	if err != nil {
		slog.Warn("session restore failed", "call_sid", callSID, "error", err.Error())
		return
	}
	if snap != nil && snap.State != nil {
		manager.Restore(snap.State)
		slog.Info("session restored",
			"call_sid", callSID, "phase", snap.State.Phase)
	}
}

// persist snapshots a call's conversation state, creating or updating as
// needed. Version conflicts mean another writer won; that copy is as
// good as ours.
func (e *Engine) persist(ctx context.Context, callSID string) {
	if e.store == nil {
		return
	}
	manager := e.Manager(callSID)
	if manager == nil {
		return
	}
	snap, err := e.store.Get(ctx, callSID)
	if err != nil {
		slog.Warn("session persist failed", "call_sid", callSID, "error", err.Error())
		return
	}
	if snap == nil {
		err = e.store.Create(ctx, &session.Snapshot{
			CallSID: callSID,
			State:   manager.State(),
		})
	} else {
		snap.State = manager.State()
		err = e.store.Update(ctx, snap)
	}
	if err != nil && err != session.ErrVersionConflict {
		slog.Warn("session persist failed", "call_sid", callSID, "error", err.Error())
	}
}

func (e *Engine) trackManager(callSID string, m *conversation.Manager) {
	e.mu.Lock()
	e.managers[callSID] = m
	e.mu.Unlock()
}

func (e *Engine) forgetManager(callSID string) {
	e.mu.Lock()
	delete(e.managers, callSID)
	e.mu.Unlock()
}

// Manager returns the live conversation manager for a call, or nil.
func (e *Engine) Manager(callSID string) *conversation.Manager {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.managers[callSID]
}

func (e *Engine) Registry() *pipeline.SessionRegistry { return e.registry }
func (e *Engine) Transport() transports.Transport     { return e.transport }
func (e *Engine) Config() Config                      { return e.cfg }
func (e *Engine) SessionStore() session.Store         { return e.store }

func (e *Engine) Health() error {
	if e.transport == nil {
		return fmt.Errorf("missing transport")
	}
	return nil
}

type emitterFunc func(frames.Frame) error

func (fn emitterFunc) Emit(f frames.Frame) error { return fn(f) }

type drainerFunc func() error

func (fn drainerFunc) Drain() error { return fn() }

func nonBlockingSend(ch chan frames.Frame, f frames.Frame) {
	select {
	case ch <- f:
	default:
	}
}
