package ucheckout

import (
	"errors"
	"fmt"
)

const (
	msgInitFailed   = "Failed to initialize payment form"
	msgChargeFailed = "Payment failed"
	msgScriptFailed = "Failed to load payment form"
	msgWidgetError  = "Payment form error"
	msgEntryMissing = "Payment form not available. Accept function not found."
	msgCancelled    = "Payment cancelled"
	msgUnknownError = "Unknown error"
)

const stageEvent = "event"

// ErrCheckoutInProgress is returned by Start while an attempt is running.
var ErrCheckoutInProgress = errors.New("ucheckout: checkout already in progress")

// Operation names the backend call an error belongs to.
type Operation string

const (
	OperationCaptureContext Operation = "capture_context"
	OperationCharge         Operation = "charge"
)

// NetworkError reports a transport failure talking to the backend.
type NetworkError struct {
	Op  Operation
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("ucheckout: %s request failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UserMessage returns the generic text shown for the failed operation.
func (e *NetworkError) UserMessage() string {
	if e.Op == OperationCharge {
		return msgChargeFailed
	}
	return msgInitFailed
}

// BackendError reports a non-success answer from the backend.
type BackendError struct {
	Op      Operation
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("ucheckout: %s returned %d: %s", e.Op, e.Status, e.Message)
}

// UserMessage returns the message extracted from the backend response.
func (e *BackendError) UserMessage() string { return e.Message }

// ScriptLoadError reports that the widget client library could not be loaded.
type ScriptLoadError struct {
	URL string
	Err error
}

func (e *ScriptLoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ucheckout: load client library %s", e.URL)
	}
	return fmt.Sprintf("ucheckout: load client library %s: %v", e.URL, e.Err)
}

func (e *ScriptLoadError) Unwrap() error { return e.Err }

func (e *ScriptLoadError) UserMessage() string { return msgScriptFailed }

// WidgetError reports a failure raised by the widget, either while
// bootstrapping it or through its error event.
type WidgetError struct {
	// Stage is the bootstrap step that failed, or "event" for errors the
	// widget reported itself.
	Stage   string
	Message string
	Err     error
}

func (e *WidgetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ucheckout: widget %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("ucheckout: widget %s: %s", e.Stage, e.UserMessage())
}

func (e *WidgetError) Unwrap() error { return e.Err }

// UserMessage prefers the explicit message, then the cause's text.
func (e *WidgetError) UserMessage() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil && e.Err.Error() != "":
		return e.Err.Error()
	case e.Stage == stageEvent:
		return msgWidgetError
	default:
		return msgInitFailed
	}
}

// UserMessage returns the text the presentation layer shows for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	return err.Error()
}
