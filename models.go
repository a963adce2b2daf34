package ucheckout

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// DefaultClientVersion is the widget client version requested from the backend.
	DefaultClientVersion = "0.31"
	// FallbackClientLibraryURL is used whenever the capture context does not
	// name a client library.
	FallbackClientLibraryURL = "https://testup.cybersource.com/uc/v1/assets/SecureAcceptance.js"

	CaptureContextPath = "/api/unified-checkout/capture-context"
	ChargePath         = "/api/unified-checkout/charge"
)

// PaymentRequestParams describes one checkout attempt. It is fixed once the
// attempt starts.
type PaymentRequestParams struct {
	Amount              string   `json:"amount"`
	Currency            string   `json:"currency"`
	Country             string   `json:"country"`
	Locale              string   `json:"locale"`
	AllowedCardNetworks []string `json:"allowedCardNetworks"`
	AllowedPaymentTypes []string `json:"allowedPaymentTypes"`
	TargetOrigins       []string `json:"targetOrigins"`
}

// DefaultPaymentRequestParams returns the parameters a demo page starts with,
// targeting the given page origin.
func DefaultPaymentRequestParams(origin string) PaymentRequestParams {
	return PaymentRequestParams{
		Amount:              "1.50",
		Currency:            "USD",
		Country:             "KE",
		Locale:              "en_KE",
		AllowedCardNetworks: []string{"VISA", "MASTERCARD", "AMEX"},
		AllowedPaymentTypes: []string{"PANENTRY"},
		TargetOrigins:       []string{origin},
	}
}

// CaptureContextRequest is the body of POST /api/unified-checkout/capture-context.
type CaptureContextRequest struct {
	AllowedCardNetworks []string `json:"allowedCardNetworks" validate:"required,min=1,dive,required"`
	AllowedPaymentTypes []string `json:"allowedPaymentTypes" validate:"required,min=1,dive,required"`
	Amount              string   `json:"amount" validate:"required,amount"`
	Currency            string   `json:"currency" validate:"required,iso4217"`
	Country             string   `json:"country" validate:"required,iso3166_1_alpha2"`
	Locale              string   `json:"locale" validate:"required"`
	ClientVersion       string   `json:"clientVersion" validate:"required"`
	TargetOrigins       []string `json:"targetOrigins" validate:"required,min=1,dive,url"`
}

// CaptureContextResponse is the success body of the capture-context endpoint.
type CaptureContextResponse struct {
	CaptureContext string `json:"captureContext" validate:"required"`
}

// ChargeRequest is the body of POST /api/unified-checkout/charge.
type ChargeRequest struct {
	TransientToken TransientToken `json:"transientToken" validate:"-"`
	Amount         string         `json:"amount" validate:"required,amount"`
	Currency       string         `json:"currency" validate:"required,iso4217"`
}

// CaptureContext is the signed JWT issued by the backend together with the
// client library reference derived from it.
type CaptureContext struct {
	JWT                    string
	ClientLibraryURL       string
	ClientLibraryIntegrity string
}

// Library returns the reference used to load the widget client library.
func (c CaptureContext) Library() LibraryRef {
	return LibraryRef{URL: c.ClientLibraryURL, Integrity: c.ClientLibraryIntegrity}
}

// SettlementResult is the opaque success payload returned by the charge endpoint.
type SettlementResult struct {
	Raw json.RawMessage
}

// Decode unmarshals the settlement payload into v.
func (r *SettlementResult) Decode(v any) error {
	if r == nil || len(r.Raw) == 0 {
		return fmt.Errorf("ucheckout: empty settlement result")
	}
	return json.Unmarshal(r.Raw, v)
}

// Pretty returns the payload indented with two spaces.
func (r *SettlementResult) Pretty() string {
	if r == nil || len(r.Raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, r.Raw, "", "  "); err != nil {
		return string(r.Raw)
	}
	return buf.String()
}

// MarshalJSON emits the payload verbatim.
func (r SettlementResult) MarshalJSON() ([]byte, error) {
	if len(r.Raw) == 0 {
		return []byte("null"), nil
	}
	return r.Raw, nil
}
