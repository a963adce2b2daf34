//go:build js && wasm

// Package browser binds the checkout orchestrator to a real page through
// syscall/js: script injection, the vendor Accept entry point, DOM
// containers, window messages and a DOM renderer.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"syscall/js"
)

func global() js.Value { return js.Global() }

func document() js.Value { return js.Global().Get("document") }

func isFunc(v js.Value, name string) bool {
	return v.Type() == js.TypeObject && v.Get(name).Type() == js.TypeFunction
}

// call invokes v[method](args...) and turns a thrown exception into an error.
func call(v js.Value, method string, args ...any) (res js.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoveredError(r)
		}
	}()
	if !isFunc(v, method) {
		return js.Undefined(), fmt.Errorf("browser: %s is not a function", method)
	}
	return v.Call(method, args...), nil
}

// invoke calls fn(args...) and turns a thrown exception into an error.
func invoke(fn js.Value, args ...any) (res js.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoveredError(r)
		}
	}()
	return fn.Invoke(args...), nil
}

func recoveredError(r any) error {
	var jsErr js.Error
	switch v := r.(type) {
	case js.Error:
		jsErr = v
	case error:
		if errors.As(v, &jsErr) {
			break
		}
		return v
	default:
		return fmt.Errorf("browser: %v", r)
	}
	return errors.New(errorMessage(jsErr.Value))
}

func errorMessage(v js.Value) string {
	if v.Type() == js.TypeObject {
		if msg := v.Get("message"); msg.Type() == js.TypeString {
			return msg.String()
		}
	}
	if v.Type() == js.TypeString {
		return v.String()
	}
	return "unknown error"
}

// await resolves v when it is a thenable and returns it unchanged otherwise.
func await(ctx context.Context, v js.Value) (js.Value, error) {
	if !isFunc(v, "then") {
		return v, nil
	}
	type outcome struct {
		val js.Value
		err error
	}
	done := make(chan outcome, 1)
	onResolve := js.FuncOf(func(_ js.Value, args []js.Value) any {
		done <- outcome{val: arg(args, 0)}
		return nil
	})
	onReject := js.FuncOf(func(_ js.Value, args []js.Value) any {
		done <- outcome{err: errors.New(errorMessage(arg(args, 0)))}
		return nil
	})
	if _, err := call(v, "then", onResolve, onReject); err != nil {
		onResolve.Release()
		onReject.Release()
		return js.Undefined(), err
	}

	select {
	case out := <-done:
		onResolve.Release()
		onReject.Release()
		return out.val, out.err
	case <-ctx.Done():
		// The promise may still settle; release once it does.
		go func() {
			<-done
			onResolve.Release()
			onReject.Release()
		}()
		return js.Undefined(), ctx.Err()
	}
}

func arg(args []js.Value, i int) js.Value {
	if i < len(args) {
		return args[i]
	}
	return js.Undefined()
}

// toJSON serializes a JS value. undefined becomes JSON null.
func toJSON(v js.Value) json.RawMessage {
	if v.IsUndefined() || v.IsNull() {
		return json.RawMessage("null")
	}
	out, err := call(global().Get("JSON"), "stringify", v)
	if err != nil || out.Type() != js.TypeString {
		return json.RawMessage("null")
	}
	return json.RawMessage(out.String())
}
