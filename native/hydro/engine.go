// Package hydro implements the Hydro on-chain governance and
// capital-allocation voting engine: lock ledger, score keeper, proposal and
// vote engine, round lifecycle, and tribute accounting. The package is the
// "single engine value passed into operations" that Design Notes describes
// for the ledger/score-keeper/round-clock module-level singletons.
package hydro

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"hydro/core/events"
	"hydro/native/hydro/guard"
)

// Engine orchestrates every operation named in spec.md §6, directly modeled
// on native/governance/engine.go's Engine: state injected via NewEngine,
// emitter via SetEmitter, clock via SetNowFunc. It holds no business state
// itself beyond the wiring below; all durable state lives in Store.
type Engine struct {
	store     *Store
	scores    *ScoreKeeper
	providers *ProviderRegistry
	emitter   events.Emitter
	nowFn     func() int64 // nanoseconds, Unix epoch

	metrics     *metrics
	lockLimiter *lockRateLimiter
	tracer      trace.Tracer
	auditSink   AuditSink
}

// AuditSink receives a copy of every stamped audit record alongside the
// durable Store.AppendAudit write, for an external pipeline (e.g. the
// parquet export in native/hydro/auditlog) that wants a push feed instead
// of periodically re-scanning Store.AuditLog.
type AuditSink interface {
	Write(AuditRecord) error
}

type metrics struct {
	tributeClaimed  prometheus.Counter
	tributeRefunded prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		tributeClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hydro_tribute_claimed_total",
			Help: "Number of tribute claims paid out.",
		}),
		tributeRefunded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hydro_tribute_refunded_total",
			Help: "Number of tribute refunds paid out.",
		}),
	}
}

// NewEngine constructs an Engine over kv with default no-op dependencies,
// following native/governance.NewEngine's construction idiom.
func NewEngine(kv KV, providers *ProviderRegistry) *Engine {
	store := NewStore(kv)
	return &Engine{
		store:     store,
		scores:    NewScoreKeeper(store),
		providers: providers,
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().UTC().UnixNano() },
		metrics:   newMetrics(),
		tracer:    otel.Tracer("hydro"),
	}
}

// span starts a trace span for a top-level Engine operation, the same
// per-operation tracer idiom services/swapd/stable.Engine uses; hydro's
// message-handler API has no caller-supplied context.Context, so spans are
// scoped to a background context rather than a request context.
func (e *Engine) span(name string) (context.Context, trace.Span) {
	return e.tracer.Start(context.Background(), name)
}

// ConfigureTracing installs a batching OpenTelemetry TracerProvider built
// from the given span processors (e.g. an OTLP exporter's batch processor)
// as the global provider, mirroring observability/otel.Init's role but
// without pulling in a specific exporter — callers wire whichever
// sdktrace.SpanExporter their deployment needs and pass its processor in.
// Engines created via NewEngine before or after this call pick up the new
// provider, since otel.Tracer delegates to whatever provider is current.
func ConfigureTracing(processors ...sdktrace.SpanProcessor) func(context.Context) error {
	opts := make([]sdktrace.TracerProviderOption, 0, len(processors))
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetAuditSink installs a push-based destination for audit records
// alongside the durable store write. Passing nil disables it.
func (e *Engine) SetAuditSink(sink AuditSink) {
	e.auditSink = sink
}

// SetNowFunc overrides the time source (nanoseconds since epoch) used to
// stamp operations. Nil restores the default UTC clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().UTC().UnixNano() }
		return
	}
	e.nowFn = now
}

// Store exposes the underlying persistence façade for query-only callers
// (CLI/migration shims, the external adapter boundary) without re-deriving
// key layout.
func (e *Engine) Store() *Store { return e.store }

// Providers exposes the token-info provider registry for read-only queries
// (can-lock-denom) and administrative wiring (AddTokenInfoProvider).
func (e *Engine) Providers() *ProviderRegistry { return e.providers }

func (e *Engine) now() int64 { return e.nowFn() }

func (e *Engine) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

func (e *Engine) audit(action, actor string, round, tranche, proposal, lock uint64, detail string) {
	rec, err := e.store.AppendAudit(AuditRecord{
		Action:     action,
		Actor:      actor,
		RoundID:    round,
		TrancheID:  tranche,
		ProposalID: proposal,
		LockID:     lock,
		Detail:     detail,
		AtNanos:    e.now(),
	})
	if err != nil {
		// Audit failures must not abort the transaction they annotate;
		// the operation's own persistence errors are the ones that matter.
		return
	}
	if e.auditSink != nil {
		_ = e.auditSink.Write(rec)
	}
}

// constants returns the Constants record active at the current block time,
// failing with NotFound if none has ever been configured.
func (e *Engine) constants() (Constants, error) {
	c, ok, err := e.store.ConstantsAt(e.now())
	if err != nil {
		return Constants{}, err
	}
	if !ok {
		return Constants{}, fmt.Errorf("%w: no Constants configured", ErrNotFound)
	}
	return c, nil
}

// pauseView adapts Constants onto guard.PauseView.
type pauseView struct{ paused bool }

func (v pauseView) Paused() bool { return v.paused }

// requireNotPaused fails gated operations (Lock, Vote, AddTribute) while
// Constants.Paused is set, per §4.I. Unlock and ClaimTribute do not call
// this. Delegates to guard.Guard, the same pause-check idiom the teacher's
// native/common.Guard uses, translating guard's sentinel into the hydro
// error taxonomy's ErrPauseActive.
func requireNotPaused(c Constants) error {
	if err := guard.Guard(pauseView{paused: c.Paused}); err != nil {
		return fmt.Errorf("%w", ErrPauseActive)
	}
	return nil
}

// UpdateConfig implements §3's Constants update rule: a new time-versioned
// record is only accepted when its activation-timestamp is not in the
// past, so it can never retroactively change an already-executed round's
// behavior.
func (e *Engine) UpdateConfig(c Constants) error {
	if c.ActivationTimestamp < e.now() {
		return fmt.Errorf("%w: activation-timestamp %d is before now", ErrInvalidInput, c.ActivationTimestamp)
	}
	if err := e.store.PutConstants(c); err != nil {
		return err
	}
	e.audit("update-config", "", 0, 0, 0, 0, fmt.Sprintf("activation %d", c.ActivationTimestamp))
	return nil
}
