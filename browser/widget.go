//go:build js && wasm

package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/sumup/ucheckout"
)

type library struct {
	accept js.Value
}

func (l library) Accept(ctx context.Context, captureContext string) (ucheckout.AcceptInstance, error) {
	res, err := invoke(l.accept, captureContext)
	if err != nil {
		return nil, err
	}
	v, err := await(ctx, res)
	if err != nil {
		return nil, err
	}
	if v.Type() != js.TypeObject {
		return nil, fmt.Errorf("browser: Accept resolved to %s", v.Type())
	}
	return acceptInstance{v: v}, nil
}

type acceptInstance struct {
	v js.Value
}

func (a acceptInstance) UnifiedPayments(ctx context.Context, sidebar bool) (ucheckout.PaymentInstance, error) {
	res, err := call(a.v, "unifiedPayments", sidebar)
	if err != nil {
		return nil, err
	}
	v, err := await(ctx, res)
	if err != nil {
		return nil, err
	}
	if v.Type() != js.TypeObject {
		return nil, fmt.Errorf("browser: unifiedPayments resolved to %s", v.Type())
	}
	base := &payment{v: v}
	// The concrete type advertises which listener API the widget has.
	switch {
	case isFunc(v, "on"):
		return &eventedPayment{base}, nil
	case isFunc(v, "addEventListener"):
		return &listenerPayment{base}, nil
	default:
		return base, nil
	}
}

// payment wraps the widget object and owns the callbacks handed to it.
type payment struct {
	v js.Value

	mu    sync.Mutex
	funcs []js.Func
}

func (p *payment) Show(ctx context.Context, cfg ucheckout.ShowConfig) error {
	containers := map[string]any{
		"paymentSelection": containerValue(cfg.Containers.PaymentSelection),
		"paymentScreen":    containerValue(cfg.Containers.PaymentScreen),
	}
	res, err := call(p.v, "show", map[string]any{"containers": containers})
	if err != nil {
		return err
	}
	_, err = await(ctx, res)
	return err
}

func (p *payment) Destroy() error {
	defer p.releaseFuncs()
	if !isFunc(p.v, "destroy") {
		return nil
	}
	_, err := call(p.v, "destroy")
	return err
}

func (p *payment) register(method string, event ucheckout.WidgetEvent, handler func(json.RawMessage)) {
	fn := js.FuncOf(func(_ js.Value, args []js.Value) any {
		handler(toJSON(arg(args, 0)))
		return nil
	})
	p.mu.Lock()
	p.funcs = append(p.funcs, fn)
	p.mu.Unlock()
	if _, err := call(p.v, method, string(event), fn); err != nil {
		js.Global().Get("console").Call("warn", "widget listener registration failed", err.Error())
	}
}

func (p *payment) releaseFuncs() {
	p.mu.Lock()
	funcs := p.funcs
	p.funcs = nil
	p.mu.Unlock()
	for _, fn := range funcs {
		fn.Release()
	}
}

type eventedPayment struct{ *payment }

func (p *eventedPayment) On(event ucheckout.WidgetEvent, handler func(json.RawMessage)) {
	p.register("on", event, handler)
}

type listenerPayment struct{ *payment }

func (p *listenerPayment) AddEventListener(event ucheckout.WidgetEvent, handler func(json.RawMessage)) {
	p.register("addEventListener", event, handler)
}

func containerValue(c ucheckout.Container) any {
	if el, ok := c.(*Element); ok {
		return el.v
	}
	if c == nil {
		return js.Null()
	}
	return c.Selector()
}
