//go:build js && wasm

package browser

import (
	"syscall/js"

	"github.com/sumup/ucheckout"
)

// WindowMessages delivers window "message" events.
type WindowMessages struct{}

func (WindowMessages) Subscribe(handler func(ucheckout.Message)) (unsubscribe func()) {
	fn := js.FuncOf(func(_ js.Value, args []js.Value) any {
		ev := arg(args, 0)
		if ev.Type() != js.TypeObject {
			return nil
		}
		origin := ""
		if o := ev.Get("origin"); o.Type() == js.TypeString {
			origin = o.String()
		}
		handler(ucheckout.Message{Origin: origin, Data: messageData(ev.Get("data"))})
		return nil
	})
	window := global()
	window.Call("addEventListener", "message", fn)
	return func() {
		window.Call("removeEventListener", "message", fn)
		fn.Release()
	}
}

// messageData keeps string payloads as-is when they already hold JSON.
func messageData(v js.Value) []byte {
	if v.Type() == js.TypeString {
		s := v.String()
		if len(s) > 0 && (s[0] == '{' || s[0] == '[') {
			return []byte(s)
		}
	}
	return toJSON(v)
}
