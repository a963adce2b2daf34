package ucheckout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var testTimings = Timings{
	LibraryGrace:  time.Millisecond,
	ReadyFallback: 10 * time.Millisecond,
	AutoReset:     100 * time.Millisecond,
}

// callLog records widget and host calls in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.list() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeHost struct {
	log *callLog
	lib Library

	mu         sync.Mutex
	scripts    []ScriptElement
	loadErr    error
	registered bool
	// noEntry keeps the entry point missing after a successful load.
	noEntry bool
}

func (h *fakeHost) AppendScript(_ context.Context, s ScriptElement) error {
	h.log.add("append:" + s.Src)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scripts = append(h.scripts, s)
	if h.loadErr != nil {
		return h.loadErr
	}
	h.registered = !h.noEntry
	return nil
}

func (h *fakeHost) EntryPoint() (Library, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.registered {
		return nil, false
	}
	return h.lib, true
}

func (h *fakeHost) appended() []ScriptElement {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ScriptElement(nil), h.scripts...)
}

type fakeLibrary struct {
	log       *callLog
	acceptErr error
	newWidget func() PaymentInstance

	mu      sync.Mutex
	jwts    []string
	widgets []PaymentInstance
}

func (l *fakeLibrary) Accept(_ context.Context, jwt string) (AcceptInstance, error) {
	l.log.add("accept")
	l.mu.Lock()
	l.jwts = append(l.jwts, jwt)
	l.mu.Unlock()
	if l.acceptErr != nil {
		return nil, l.acceptErr
	}
	return fakeAccept{lib: l}, nil
}

func (l *fakeLibrary) lastWidget() PaymentInstance {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.widgets) == 0 {
		return nil
	}
	return l.widgets[len(l.widgets)-1]
}

type fakeAccept struct {
	lib *fakeLibrary
}

func (a fakeAccept) UnifiedPayments(_ context.Context, sidebar bool) (PaymentInstance, error) {
	a.lib.log.add(fmt.Sprintf("unifiedPayments:%t", sidebar))
	w := a.lib.newWidget()
	a.lib.mu.Lock()
	a.lib.widgets = append(a.lib.widgets, w)
	a.lib.mu.Unlock()
	return w, nil
}

// eventWidget supports On and Destroy.
type eventWidget struct {
	log            *callLog
	showErr        error
	destroyErr     error
	destroyPanics  bool
	readyOnShow    bool
	mu             sync.Mutex
	handlers       map[WidgetEvent]func(json.RawMessage)
	shownWith      ShowConfig
	destroyedCount int
}

func newEventWidget(log *callLog) *eventWidget {
	return &eventWidget{log: log, handlers: make(map[WidgetEvent]func(json.RawMessage))}
}

func (w *eventWidget) On(event WidgetEvent, handler func(json.RawMessage)) {
	w.log.add("on:" + string(event))
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[event] = handler
}

func (w *eventWidget) Show(_ context.Context, cfg ShowConfig) error {
	w.mu.Lock()
	w.shownWith = cfg
	w.mu.Unlock()
	w.log.add("show")
	if w.readyOnShow {
		w.emit(EventReady, nil)
	}
	return w.showErr
}

func (w *eventWidget) Destroy() error {
	w.log.add("destroy")
	w.mu.Lock()
	w.destroyedCount++
	w.mu.Unlock()
	if w.destroyPanics {
		panic("destroy is not a function")
	}
	return w.destroyErr
}

func (w *eventWidget) emit(event WidgetEvent, payload json.RawMessage) {
	w.mu.Lock()
	h := w.handlers[event]
	w.mu.Unlock()
	if h != nil {
		h(payload)
	}
}

func (w *eventWidget) shown() ShowConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shownWith
}

func (w *eventWidget) destroyed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyedCount
}

// plainWidget only supports Show.
type plainWidget struct {
	log *callLog
}

func (w *plainWidget) Show(context.Context, ShowConfig) error {
	w.log.add("show")
	return nil
}

// listenerWidget supports Show and AddEventListener.
type listenerWidget struct {
	log     *callLog
	mu      sync.Mutex
	onToken func(json.RawMessage)
}

func (w *listenerWidget) Show(context.Context, ShowConfig) error {
	w.log.add("show")
	return nil
}

func (w *listenerWidget) AddEventListener(event WidgetEvent, handler func(json.RawMessage)) {
	w.log.add("addEventListener:" + string(event))
	if event != EventToken {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onToken = handler
}

func (w *listenerWidget) emitToken(payload json.RawMessage) {
	w.mu.Lock()
	h := w.onToken
	w.mu.Unlock()
	if h != nil {
		h(payload)
	}
}

type fakeChannel struct {
	mu       sync.Mutex
	handlers map[int]func(Message)
	next     int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[int]func(Message))}
}

func (c *fakeChannel) Subscribe(handler func(Message)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.handlers[id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

func (c *fakeChannel) post(m Message) {
	c.mu.Lock()
	handlers := make([]func(Message), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(m)
	}
}

func (c *fakeChannel) subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

type fakeContainer struct {
	selector string
	detached bool

	mu      sync.Mutex
	cleared int
}

func (c *fakeContainer) Selector() string { return c.selector }
func (c *fakeContainer) Attached() bool   { return !c.detached }

func (c *fakeContainer) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared++
}

func (c *fakeContainer) clearCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleared
}

type fakeBackend struct {
	acquire func(ctx context.Context, params PaymentRequestParams) (*CaptureContext, error)
	charge  func(ctx context.Context, token TransientToken, amount, currency string) (*SettlementResult, error)

	mu           sync.Mutex
	acquireCalls int
	chargeCalls  int
	tokens       []TransientToken
}

func (b *fakeBackend) AcquireCaptureContext(ctx context.Context, params PaymentRequestParams) (*CaptureContext, error) {
	b.mu.Lock()
	b.acquireCalls++
	b.mu.Unlock()
	if b.acquire == nil {
		return &CaptureContext{JWT: "a.b.c", ClientLibraryURL: "https://assets.example/uc.js"}, nil
	}
	return b.acquire(ctx, params)
}

func (b *fakeBackend) Charge(ctx context.Context, token TransientToken, amount, currency string) (*SettlementResult, error) {
	b.mu.Lock()
	b.chargeCalls++
	b.tokens = append(b.tokens, token)
	b.mu.Unlock()
	if b.charge == nil {
		return &SettlementResult{Raw: json.RawMessage(`{"status":"AUTHORIZED"}`)}, nil
	}
	return b.charge(ctx, token, amount, currency)
}

func (b *fakeBackend) calls() (acquire, charge int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acquireCalls, b.chargeCalls
}

func (b *fakeBackend) chargedTokens() []TransientToken {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]TransientToken(nil), b.tokens...)
}

// harness wires an orchestrator to in-memory fakes.
type harness struct {
	log       *callLog
	host      *fakeHost
	lib       *fakeLibrary
	backend   *fakeBackend
	selection *fakeContainer
	screen    *fakeContainer
	orch      *Orchestrator
}

func newHarness(newWidget func(log *callLog) PaymentInstance, opts ...Option) *harness {
	log := &callLog{}
	lib := &fakeLibrary{log: log}
	lib.newWidget = func() PaymentInstance { return newWidget(log) }
	h := &harness{
		log:       log,
		host:      &fakeHost{log: log, lib: lib},
		lib:       lib,
		backend:   &fakeBackend{},
		selection: &fakeContainer{selector: "#buttonPaymentListContainer"},
		screen:    &fakeContainer{selector: "#embeddedPaymentContainer"},
	}
	opts = append([]Option{WithTimings(testTimings), WithLogger(discardLogger)}, opts...)
	h.orch = New(h.backend, h.host, ShowContainers{PaymentSelection: h.selection, PaymentScreen: h.screen}, opts...)
	return h
}

func testParams() PaymentRequestParams {
	return DefaultPaymentRequestParams("https://shop.example")
}
