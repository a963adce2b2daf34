//go:build js && wasm

package browser

import (
	"context"
	"errors"
	"sync"
	"syscall/js"

	"github.com/sumup/ucheckout"
)

// Host appends scripts to document.head and exposes window.Accept.
type Host struct {
	mu      sync.Mutex
	pending map[string]*scriptLoad
}

// scriptLoad tracks one appended script until its load or error event.
type scriptLoad struct {
	done chan struct{}
	err  error
}

// NewHost returns a host bound to the current page.
func NewHost() *Host { return &Host{pending: make(map[string]*scriptLoad)} }

func (h *Host) AppendScript(ctx context.Context, script ucheckout.ScriptElement) error {
	h.mu.Lock()
	load, ok := h.pending[script.Src]
	if !ok {
		load = h.append(script)
		h.pending[script.Src] = load
	}
	h.mu.Unlock()

	select {
	case <-load.done:
		return load.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// append inserts the element. The tag keeps loading when the caller gives
// up, so the entry stays in pending until an event fires.
func (h *Host) append(script ucheckout.ScriptElement) *scriptLoad {
	el := document().Call("createElement", "script")
	el.Set("src", script.Src)
	el.Set("async", script.Async)
	if script.Integrity != "" {
		el.Set("integrity", script.Integrity)
	}
	if script.CrossOrigin != "" {
		el.Set("crossOrigin", script.CrossOrigin)
	}

	load := &scriptLoad{done: make(chan struct{})}
	var onLoad, onError js.Func
	finish := func(err error) {
		h.mu.Lock()
		if h.pending[script.Src] == load {
			delete(h.pending, script.Src)
		}
		h.mu.Unlock()
		el.Set("onload", js.Null())
		el.Set("onerror", js.Null())
		onLoad.Release()
		onError.Release()
		load.err = err
		close(load.done)
	}
	onLoad = js.FuncOf(func(js.Value, []js.Value) any {
		finish(nil)
		return nil
	})
	onError = js.FuncOf(func(js.Value, []js.Value) any {
		finish(errors.New("script error event"))
		return nil
	})
	el.Set("onload", onLoad)
	el.Set("onerror", onError)

	document().Get("head").Call("appendChild", el)
	return load
}

func (h *Host) EntryPoint() (ucheckout.Library, bool) {
	accept := global().Get("Accept")
	if accept.Type() != js.TypeFunction {
		return nil, false
	}
	return library{accept: accept}, true
}
