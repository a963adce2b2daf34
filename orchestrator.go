package ucheckout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Snapshot is a consistent view of the orchestrator at one point in time.
type Snapshot struct {
	State     State
	AttemptID string
	Params    PaymentRequestParams
	// Err is the cause of a Failed state.
	Err error
	// Message is the text shown for Failed and Cancelled states.
	Message           string
	Result            *SettlementResult
	HasCaptureContext bool
	HasWidget         bool
	// Version increases with every published transition.
	Version uint64
}

type attempt struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	// Guarded by Orchestrator.mu while the attempt is current.
	detach func()
	timers []*time.Timer
}

// Orchestrator drives one checkout attempt at a time through the widget
// lifecycle. It is safe for concurrent use.
type Orchestrator struct {
	backend    Backend
	host       ScriptHost
	loader     *ScriptLoader
	containers ShowContainers
	cfg        config
	logger     *slog.Logger
	inst       instruments

	// notifyMu keeps subscriber notifications in transition order. It is
	// always acquired before mu.
	notifyMu sync.Mutex

	mu          sync.Mutex
	state       State
	attempt     *attempt
	params      PaymentRequestParams
	capture     *CaptureContext
	handle      PaymentInstance
	err         error
	message     string
	result      *SettlementResult
	version     uint64
	subscribers map[uint64]func(Snapshot)
	nextSub     uint64
}

// New builds an [Orchestrator]. The payment screen container defaults to the
// payment selection container.
func New(backend Backend, host ScriptHost, containers ShowContainers, opts ...Option) *Orchestrator {
	if backend == nil {
		panic("ucheckout: backend is required")
	}
	if host == nil {
		panic("ucheckout: script host is required")
	}
	if containers.PaymentSelection == nil {
		panic("ucheckout: payment selection container is required")
	}
	if containers.PaymentScreen == nil {
		containers.PaymentScreen = containers.PaymentSelection
	}
	cfg := newConfig(opts)
	return &Orchestrator{
		backend:     backend,
		host:        host,
		loader:      NewScriptLoader(host, cfg.timings.LibraryGrace, cfg.logger),
		containers:  containers,
		cfg:         cfg,
		logger:      cfg.logger,
		inst:        newInstruments(cfg.tracerProvider, cfg.meterProvider),
		subscribers: make(map[uint64]func(Snapshot)),
	}
}

// Start begins a checkout attempt for params. It is accepted from Idle and
// from any terminal state, in which case the previous attempt's resources
// are released first. While an attempt is in flight it returns
// [ErrCheckoutInProgress] and changes nothing. Params are not validated
// locally: the backend is authoritative and a rejection fails the attempt
// with the backend's message.
func (o *Orchestrator) Start(ctx context.Context, params PaymentRequestParams) error {
	var (
		a    *attempt
		prev teardown
		busy State
	)
	started := o.update(func() bool {
		if o.state.Active() {
			busy = o.state
			return false
		}
		prev = o.detachLocked()
		actx, cancel := context.WithCancel(ctx)
		a = &attempt{id: uuid.NewString(), ctx: actx, cancel: cancel}
		o.attempt = a
		o.params = params
		o.capture, o.err, o.message, o.result = nil, nil, "", nil
		return o.setStateLocked(StateAcquiringContext)
	})
	if !started {
		o.logger.Debug("checkout start rejected", slog.String("state", busy.String()))
		return ErrCheckoutInProgress
	}
	o.release(prev)
	o.logger.Info("checkout started",
		slog.String("attempt_id", a.id),
		slog.String("amount", params.Amount),
		slog.String("currency", params.Currency))
	go o.run(a, params)
	return nil
}

// Reset abandons the current attempt from any state and returns to Idle.
// Pending completions of the abandoned attempt are discarded.
func (o *Orchestrator) Reset() {
	o.resetAttempt(nil)
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every transition, in
// order. fn must not call Start or Reset synchronously.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextSub
	o.nextSub++
	o.subscribers[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subscribers, id)
	}
}

func (o *Orchestrator) run(a *attempt, params PaymentRequestParams) {
	capture, err := o.acquire(a, params)
	if err != nil {
		o.fail(a, err)
		return
	}
	if !o.advance(a, StateLoadingLibrary, func() { o.capture = capture }, StateAcquiringContext) {
		return
	}
	if err := o.loadLibrary(a, capture.Library()); err != nil {
		o.fail(a, err)
		return
	}
	if !o.advance(a, StateInitializingWidget, nil, StateLoadingLibrary) {
		return
	}
	if err := o.bootstrap(a, capture); err != nil {
		o.fail(a, err)
	}
}

func (o *Orchestrator) acquire(a *attempt, params PaymentRequestParams) (*CaptureContext, error) {
	ctx, span := o.inst.tracer.Start(a.ctx, "ucheckout.AcquireCaptureContext",
		trace.WithAttributes(attribute.String("ucheckout.attempt_id", a.id)))
	capture, err := o.backend.AcquireCaptureContext(ctx, params)
	endSpan(span, err)
	return capture, err
}

func (o *Orchestrator) loadLibrary(a *attempt, ref LibraryRef) error {
	ctx, span := o.inst.tracer.Start(a.ctx, "ucheckout.LoadLibrary",
		trace.WithAttributes(
			attribute.String("ucheckout.attempt_id", a.id),
			attribute.String("ucheckout.library_url", ref.URL)))
	err := o.loader.Load(ctx, ref)
	endSpan(span, err)
	return err
}

func (o *Orchestrator) bootstrap(a *attempt, capture *CaptureContext) (err error) {
	ctx, span := o.inst.tracer.Start(a.ctx, "ucheckout.BootstrapWidget",
		trace.WithAttributes(attribute.String("ucheckout.attempt_id", a.id)))
	defer func() { endSpan(span, err) }()

	lib, ok := o.host.EntryPoint()
	if !ok {
		return &WidgetError{Stage: "entry_point", Message: msgEntryMissing}
	}
	var previous PaymentInstance
	if !o.bind(a, func() { previous, o.handle = o.handle, nil }) {
		return nil
	}
	if previous != nil {
		o.destroy(previous)
	}

	var detached error
	o.containers.each(func(c Container) {
		c.Clear()
		if detached == nil && !c.Attached() {
			detached = fmt.Errorf("container %q is not attached", c.Selector())
		}
	})
	if detached != nil {
		return &WidgetError{Stage: "containers", Message: msgInitFailed, Err: detached}
	}

	accept, err := lib.Accept(ctx, capture.JWT)
	if err != nil {
		return &WidgetError{Stage: "accept", Err: err}
	}
	handle, err := accept.UnifiedPayments(ctx, false)
	if err != nil {
		return &WidgetError{Stage: "unified_payments", Err: err}
	}
	if !o.bind(a, func() { o.handle = handle }) {
		o.destroy(handle)
		return nil
	}

	capab := selectCapability(handle, o.cfg.messages, o.cfg.trustedOrigins)
	detach := capab.attach(o.handlersFor(a))
	if !o.bind(a, func() { a.detach = detach }) {
		detach()
		return nil
	}
	span.SetAttributes(attribute.String("ucheckout.capability", capab.name()))
	o.logger.Info("widget listeners attached",
		slog.String("attempt_id", a.id),
		slog.String("capability", capab.name()))

	if err := handle.Show(ctx, ShowConfig{Containers: o.containers}); err != nil {
		return &WidgetError{Stage: "show", Err: err}
	}
	if capab.assumesReady() {
		o.schedule(a, o.cfg.timings.ReadyFallback, func() {
			o.advance(a, StateReady, nil, StateInitializingWidget)
		})
	}
	return nil
}

func (o *Orchestrator) handlersFor(a *attempt) widgetHandlers {
	return widgetHandlers{
		ready: func() {
			o.advance(a, StateReady, nil, StateInitializingWidget)
		},
		methodSelected: func(json.RawMessage) {
			o.logger.Info("payment method selected", slog.String("attempt_id", a.id))
		},
		token: func(payload json.RawMessage) {
			tok, ok := ExtractTransientToken(payload)
			if !ok {
				o.logger.Warn("token event carried no token", slog.String("attempt_id", a.id))
				return
			}
			o.acceptToken(a, tok)
		},
		tokenValue: func(tok TransientToken) {
			o.acceptToken(a, tok)
		},
		failed: func(payload json.RawMessage) {
			o.fail(a, &WidgetError{Stage: stageEvent, Message: payloadMessage(payload)}, widgetStates...)
		},
		cancelled: func() {
			o.cancelled(a)
		},
	}
}

// acceptToken moves to Charging synchronously so that a repeated token is
// rejected, then settles in the background. Widget callbacks must not block.
func (o *Orchestrator) acceptToken(a *attempt, tok TransientToken) {
	var params PaymentRequestParams
	if !o.advance(a, StateCharging, func() { params = o.params }, StateInitializingWidget, StateReady) {
		o.logger.Debug("token ignored", slog.String("attempt_id", a.id))
		return
	}
	go o.settle(a, tok, params)
}

func (o *Orchestrator) settle(a *attempt, tok TransientToken, params PaymentRequestParams) {
	ctx, span := o.inst.tracer.Start(a.ctx, "ucheckout.Charge",
		trace.WithAttributes(
			attribute.String("ucheckout.attempt_id", a.id),
			attribute.String("ucheckout.currency", params.Currency)))
	result, err := o.backend.Charge(ctx, tok, params.Amount, params.Currency)
	endSpan(span, err)
	if err != nil {
		o.fail(a, err)
		return
	}
	settled := o.advance(a, StateSettled, func() {
		o.result = result
		o.capture = nil
	}, StateCharging)
	if !settled {
		return
	}
	o.schedule(a, o.cfg.timings.AutoReset, func() { o.resetAttempt(a) })
}

// widgetStates are the states in which widget error and cancel events apply.
// Once a token is being charged only the charge outcome ends the attempt.
var widgetStates = []State{StateInitializingWidget, StateReady}

// fail moves a to Failed. A non-empty from restricts the states it fails from.
func (o *Orchestrator) fail(a *attempt, err error, from ...State) {
	msg := UserMessage(err)
	applied := o.update(func() bool {
		if o.attempt != a || !o.state.Active() {
			return false
		}
		if len(from) > 0 && !slices.Contains(from, o.state) {
			return false
		}
		o.err, o.message = err, msg
		return o.setStateLocked(StateFailed)
	})
	if !applied {
		o.logger.Debug("stale failure discarded", slog.String("attempt_id", a.id), slog.Any("error", err))
		return
	}
	o.logger.Warn("checkout failed", slog.String("attempt_id", a.id), slog.Any("error", err))
}

func (o *Orchestrator) cancelled(a *attempt) {
	applied := o.advance(a, StateCancelled, func() {
		o.err, o.message = nil, msgCancelled
	}, widgetStates...)
	if !applied {
		o.logger.Debug("cancel ignored", slog.String("attempt_id", a.id))
	}
}

// resetAttempt returns to Idle. A non-nil a restricts the reset to that
// attempt, which keeps a late auto-reset from discarding a newer attempt.
func (o *Orchestrator) resetAttempt(a *attempt) {
	o.mu.Lock()
	if a != nil && o.attempt != a {
		o.mu.Unlock()
		return
	}
	t := o.detachLocked()
	o.mu.Unlock()

	o.release(t)
	o.update(func() bool {
		if o.attempt != nil {
			return false
		}
		o.params = PaymentRequestParams{}
		o.capture, o.err, o.message, o.result = nil, nil, "", nil
		if o.state == StateIdle {
			return false
		}
		return o.setStateLocked(StateIdle)
	})
}

// advance moves a from one of the from states to to. It reports false when
// a is no longer current or the machine has moved on.
func (o *Orchestrator) advance(a *attempt, to State, mutate func(), from ...State) bool {
	return o.update(func() bool {
		if o.attempt != a || !slices.Contains(from, o.state) || !canTransition(o.state, to) {
			return false
		}
		if mutate != nil {
			mutate()
		}
		return o.setStateLocked(to)
	})
}

// bind runs fn under the lock if a is still current.
func (o *Orchestrator) bind(a *attempt, fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt != a {
		return false
	}
	fn()
	return true
}

func (o *Orchestrator) schedule(a *attempt, d time.Duration, fn func()) {
	o.bind(a, func() {
		a.timers = append(a.timers, time.AfterFunc(d, fn))
	})
}

// update applies fn under the lock and, when fn reports a transition,
// publishes the resulting snapshot to subscribers.
func (o *Orchestrator) update(fn func() bool) bool {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	if !fn() {
		o.mu.Unlock()
		return false
	}
	o.version++
	snap := o.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(o.subscribers))
	for _, sub := range o.subscribers {
		subs = append(subs, sub)
	}
	o.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
	return true
}

func (o *Orchestrator) setStateLocked(to State) bool {
	from := o.state
	if !canTransition(from, to) {
		o.logger.Error("invalid checkout transition",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		return false
	}
	o.state = to
	attrs := []any{slog.String("from", from.String()), slog.String("to", to.String())}
	if o.attempt != nil {
		attrs = append(attrs, slog.String("attempt_id", o.attempt.id))
	}
	o.logger.Info("checkout transition", attrs...)
	o.inst.recordTransition(context.Background(), from, to)
	return true
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		State:             o.state,
		Params:            o.params,
		Err:               o.err,
		Message:           o.message,
		Result:            o.result,
		HasCaptureContext: o.capture != nil,
		HasWidget:         o.handle != nil,
		Version:           o.version,
	}
	if o.attempt != nil {
		s.AttemptID = o.attempt.id
	}
	return s
}

type teardown struct {
	attempt *attempt
	handle  PaymentInstance
}

func (o *Orchestrator) detachLocked() teardown {
	t := teardown{attempt: o.attempt, handle: o.handle}
	o.attempt, o.handle = nil, nil
	return t
}

// release frees everything held by a detached attempt. It runs without locks
// because widget teardown may re-enter the orchestrator through events.
func (o *Orchestrator) release(t teardown) {
	if a := t.attempt; a != nil {
		a.cancel()
		for _, timer := range a.timers {
			timer.Stop()
		}
		if a.detach != nil {
			a.detach()
		}
	}
	if t.handle != nil {
		o.destroy(t.handle)
	}
	o.containers.each(func(c Container) { c.Clear() })
}

func (o *Orchestrator) destroy(handle PaymentInstance) {
	if err := destroyWidget(handle); err != nil {
		o.logger.Warn("widget teardown failed", slog.Any("error", err))
	}
}

// destroyWidget calls Destroy when the widget supports it. Browser bindings
// surface JavaScript exceptions as panics, which are reported as errors.
func destroyWidget(handle PaymentInstance) (err error) {
	d, ok := handle.(Destroyer)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ucheckout: widget destroy panicked: %v", r)
		}
	}()
	return d.Destroy()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
