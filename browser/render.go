//go:build js && wasm

package browser

import (
	"fmt"

	"github.com/sumup/ucheckout"
)

// Page element ids the renderer drives.
const (
	IDConfigSection    = "#configSection"
	IDLoadingIndicator = "#loadingIndicator"
	IDPaymentContainer = "#paymentContainer"
	IDPaymentInfo      = "#paymentInfo"
	IDPaymentAmount    = "#paymentAmount"
	IDErrorMessage     = "#errorMessage"
	IDErrorText        = "#errorText"
	IDSuccessMessage   = "#successMessage"
	IDSuccessData      = "#successData"
)

// DOMRenderer shows and hides page sections by toggling their "hidden" class.
type DOMRenderer struct {
	config, loading, container, info, amount *Element
	errorBox, errorText, success, data       *Element
}

// NewDOMRenderer looks up every section the renderer drives.
func NewDOMRenderer() (*DOMRenderer, error) {
	r := &DOMRenderer{}
	targets := []struct {
		dst **Element
		sel string
	}{
		{&r.config, IDConfigSection},
		{&r.loading, IDLoadingIndicator},
		{&r.container, IDPaymentContainer},
		{&r.info, IDPaymentInfo},
		{&r.amount, IDPaymentAmount},
		{&r.errorBox, IDErrorMessage},
		{&r.errorText, IDErrorText},
		{&r.success, IDSuccessMessage},
		{&r.data, IDSuccessData},
	}
	for _, t := range targets {
		el, err := Select(t.sel)
		if err != nil {
			return nil, fmt.Errorf("renderer: %w", err)
		}
		*t.dst = el
	}
	return r, nil
}

func (r *DOMRenderer) Render(v ucheckout.View) {
	r.config.SetHidden(!v.ConfigForm)
	r.loading.SetHidden(!v.Loading)
	r.container.SetHidden(!v.PaymentContainer)
	r.info.SetHidden(!v.PaymentInfo)
	r.amount.SetText(v.AmountText)
	r.errorBox.SetHidden(!v.ErrorBanner)
	r.errorText.SetText(v.ErrorText)
	r.success.SetHidden(!v.SuccessBanner)
	r.data.SetText(v.SuccessText)
}

// HideError closes the error banner until the next render.
func (r *DOMRenderer) HideError() { r.errorBox.SetHidden(true) }
