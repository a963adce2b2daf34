package ucheckout

import "encoding/json"

// widgetHandlers are the orchestrator callbacks bound to one attempt.
type widgetHandlers struct {
	ready          func()
	methodSelected func(payload json.RawMessage)
	token          func(payload json.RawMessage)
	tokenValue     func(token TransientToken)
	failed         func(payload json.RawMessage)
	cancelled      func()
}

// capability is how the orchestrator learns about widget lifecycle events.
// It is chosen once per widget handle.
type capability interface {
	name() string
	// attach registers the handlers and returns a function undoing whatever
	// can be undone.
	attach(h widgetHandlers) (detach func())
	// assumesReady reports whether Ready must be inferred after Show.
	assumesReady() bool
}

type eventCapable struct {
	emitter EventEmitter
}

func (eventCapable) name() string { return "event" }

func (c eventCapable) attach(h widgetHandlers) func() {
	c.emitter.On(EventReady, func(json.RawMessage) { h.ready() })
	c.emitter.On(EventPaymentMethodSelected, h.methodSelected)
	c.emitter.On(EventToken, h.token)
	c.emitter.On(EventError, h.failed)
	c.emitter.On(EventCancel, func(json.RawMessage) { h.cancelled() })
	return func() {}
}

func (eventCapable) assumesReady() bool { return false }

type pollingOnly struct {
	handle   PaymentInstance
	messages MessageChannel
	trusted  originMatcher
}

func (pollingOnly) name() string { return "polling" }

func (c pollingOnly) attach(h widgetHandlers) func() {
	unsubscribe := func() {}
	if c.messages != nil {
		unsubscribe = c.messages.Subscribe(func(m Message) {
			if !c.trusted.allows(m.Origin) {
				return
			}
			if tok, ok := messageToken(m.Data); ok {
				h.tokenValue(tok)
			}
		})
	}
	if l, ok := c.handle.(DirectListener); ok {
		l.AddEventListener(EventToken, h.token)
	}
	return unsubscribe
}

func (pollingOnly) assumesReady() bool { return true }

func selectCapability(handle PaymentInstance, messages MessageChannel, trusted []string) capability {
	if emitter, ok := handle.(EventEmitter); ok {
		return eventCapable{emitter: emitter}
	}
	return pollingOnly{handle: handle, messages: messages, trusted: originMatcher(trusted)}
}
