package ucheckout

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ScriptElement describes the script tag appended to the page.
type ScriptElement struct {
	Src         string
	Integrity   string
	CrossOrigin string
	Async       bool
}

// ScriptHost is the page the widget client library is loaded into.
type ScriptHost interface {
	// AppendScript inserts the element and blocks until its load or error
	// event fires. An error event is reported as a non-nil error. A script
	// with the same source that is still loading is awaited, not appended
	// again.
	AppendScript(ctx context.Context, script ScriptElement) error
	// EntryPoint returns the library's global Accept function once registered.
	EntryPoint() (Library, bool)
}

// ScriptLoader injects the widget client library at most once per page.
type ScriptLoader struct {
	host   ScriptHost
	grace  time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	loaded bool
}

// NewScriptLoader returns a loader that waits grace after the load event so
// the library can register its globals.
func NewScriptLoader(host ScriptHost, grace time.Duration, logger *slog.Logger) *ScriptLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScriptLoader{host: host, grace: grace, logger: logger}
}

// Load makes the library referenced by ref available. It returns immediately
// when the entry point is present, including when an earlier load was
// abandoned after its script had been appended.
func (l *ScriptLoader) Load(ctx context.Context, ref LibraryRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.host.EntryPoint(); ok {
		l.loaded = true
		return nil
	}
	script := ScriptElement{Src: ref.URL, Async: true}
	if ref.Integrity != "" {
		script.Integrity = ref.Integrity
		script.CrossOrigin = "anonymous"
	}
	l.logger.Info("loading client library",
		slog.String("url", ref.URL),
		slog.Bool("integrity", script.Integrity != ""))
	if err := l.host.AppendScript(ctx, script); err != nil {
		return &ScriptLoadError{URL: ref.URL, Err: err}
	}
	l.loaded = true
	return sleepContext(ctx, l.grace)
}

// Loaded reports whether the library has been loaded once.
func (l *ScriptLoader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
