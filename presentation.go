package ucheckout

import (
	"fmt"
	"sync"
)

// View is what a page shows for one snapshot.
type View struct {
	ConfigForm       bool
	Loading          bool
	PaymentContainer bool
	PaymentInfo      bool
	ErrorBanner      bool
	SuccessBanner    bool

	// AmountText reads "<amount> <currency>".
	AmountText  string
	ErrorText   string
	SuccessText string
}

// Renderer draws views.
type Renderer interface {
	Render(v View)
}

// RendererFunc lifts a function into a [Renderer].
type RendererFunc func(View)

func (f RendererFunc) Render(v View) { f(v) }

// Project maps a snapshot to the page elements it needs.
func Project(s Snapshot) View {
	var v View
	if s.Params.Amount != "" {
		v.AmountText = fmt.Sprintf("%s %s", s.Params.Amount, s.Params.Currency)
	}
	switch s.State {
	case StateIdle:
		v.ConfigForm = true
	case StateAcquiringContext:
		v.ConfigForm = true
		v.Loading = true
	case StateLoadingLibrary, StateInitializingWidget, StateCharging:
		v.PaymentContainer = true
		v.PaymentInfo = true
		v.Loading = true
	case StateReady:
		v.PaymentContainer = true
		v.PaymentInfo = true
	case StateSettled:
		v.SuccessBanner = true
		v.SuccessText = s.Result.Pretty()
	case StateFailed, StateCancelled:
		v.ErrorBanner = true
		v.ConfigForm = true
		v.ErrorText = s.Message
	}
	return v
}

// BindRenderer renders the current snapshot and every later transition,
// skipping snapshots older than one already rendered. The returned function
// stops rendering.
func BindRenderer(o *Orchestrator, r Renderer) (unbind func()) {
	var (
		mu       sync.Mutex
		rendered bool
		last     uint64
	)
	render := func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if rendered && s.Version <= last {
			return
		}
		rendered, last = true, s.Version
		r.Render(Project(s))
	}
	unbind = o.Subscribe(render)
	render(o.Snapshot())
	return unbind
}
