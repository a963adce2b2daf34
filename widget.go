package ucheckout

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

// Library is the widget client library's global Accept entry point.
type Library interface {
	Accept(ctx context.Context, captureContext string) (AcceptInstance, error)
}

// AcceptInstance is the object resolved by Accept.
type AcceptInstance interface {
	// UnifiedPayments creates the payment widget. sidebar=false selects the
	// embedded, non-redirect presentation.
	UnifiedPayments(ctx context.Context, sidebar bool) (PaymentInstance, error)
}

// PaymentInstance is the live widget handle.
type PaymentInstance interface {
	Show(ctx context.Context, cfg ShowConfig) error
}

// EventEmitter is implemented by widgets that can subscribe to lifecycle events.
type EventEmitter interface {
	On(event WidgetEvent, handler func(payload json.RawMessage))
}

// DirectListener is implemented by widgets exposing a DOM-style listener API.
type DirectListener interface {
	AddEventListener(event WidgetEvent, handler func(payload json.RawMessage))
}

// Destroyer is implemented by widgets that can release their resources.
type Destroyer interface {
	Destroy() error
}

// WidgetEvent names a widget lifecycle event.
type WidgetEvent string

const (
	EventReady                 WidgetEvent = "ready"
	EventPaymentMethodSelected WidgetEvent = "paymentMethodSelected"
	EventToken                 WidgetEvent = "token"
	EventError                 WidgetEvent = "error"
	EventCancel                WidgetEvent = "cancel"
)

// Container is a page element the widget renders into.
type Container interface {
	Selector() string
	// Attached reports whether the element is present in the document.
	Attached() bool
	// Clear removes any content rendered by a previous widget.
	Clear()
}

// ShowConfig is passed to PaymentInstance.Show.
type ShowConfig struct {
	Containers ShowContainers
}

// ShowContainers names the surfaces used for method selection and the
// payment screen. They may be the same element.
type ShowContainers struct {
	PaymentSelection Container
	PaymentScreen    Container
}

func (c ShowContainers) each(fn func(Container)) {
	fn(c.PaymentSelection)
	if c.PaymentScreen != c.PaymentSelection {
		fn(c.PaymentScreen)
	}
}

// Message is a cross-window message received by the page.
type Message struct {
	Origin string
	Data   json.RawMessage
}

// MessageChannel delivers window messages to subscribers.
type MessageChannel interface {
	Subscribe(handler func(Message)) (unsubscribe func())
}

// DefaultTrustedOrigins are the message origins accepted when a widget
// cannot emit events directly.
var DefaultTrustedOrigins = []string{"https://*.cybersource.com"}

// originMatcher matches exact origins and `scheme://*.domain` wildcards.
type originMatcher []string

func (m originMatcher) allows(origin string) bool {
	o, err := url.Parse(origin)
	if err != nil || o.Scheme == "" || o.Host == "" {
		return false
	}
	for _, pattern := range m {
		if pattern == origin {
			return true
		}
		scheme, host, ok := strings.Cut(pattern, "://")
		if !ok || scheme != o.Scheme || !strings.HasPrefix(host, "*.") {
			continue
		}
		if strings.HasSuffix(o.Host, host[1:]) {
			return true
		}
	}
	return false
}

// payloadMessage returns the `message` field of an error event payload.
func payloadMessage(payload json.RawMessage) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		var s string
		if json.Unmarshal(payload, &s) == nil {
			return s
		}
		return ""
	}
	return body.Message
}
