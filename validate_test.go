package ucheckout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureContextRequestValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mutate    func(r *CaptureContextRequest)
		wantField string
	}{
		"defaults are valid": {mutate: func(*CaptureContextRequest) {}},
		"kenyan shilling":    {mutate: func(r *CaptureContextRequest) { r.Currency = "KES" }},
		"missing amount":     {mutate: func(r *CaptureContextRequest) { r.Amount = "" }, wantField: "amount"},
		"zero amount":        {mutate: func(r *CaptureContextRequest) { r.Amount = "0.00" }, wantField: "amount"},
		"negative amount":    {mutate: func(r *CaptureContextRequest) { r.Amount = "-1" }, wantField: "amount"},
		"unknown currency":   {mutate: func(r *CaptureContextRequest) { r.Currency = "XYZ1" }, wantField: "currency"},
		"bad country":        {mutate: func(r *CaptureContextRequest) { r.Country = "Kenya" }, wantField: "country"},
		"no networks":        {mutate: func(r *CaptureContextRequest) { r.AllowedCardNetworks = nil }, wantField: "allowedCardNetworks"},
		"blank network":      {mutate: func(r *CaptureContextRequest) { r.AllowedCardNetworks = []string{""} }, wantField: "allowedCardNetworks[0]"},
		"no payment types":   {mutate: func(r *CaptureContextRequest) { r.AllowedPaymentTypes = []string{} }, wantField: "allowedPaymentTypes"},
		"origin not a url":   {mutate: func(r *CaptureContextRequest) { r.TargetOrigins = []string{"shop"} }, wantField: "targetOrigins[0]"},
		"missing locale":     {mutate: func(r *CaptureContextRequest) { r.Locale = "" }, wantField: "locale"},
		"missing version":    {mutate: func(r *CaptureContextRequest) { r.ClientVersion = "" }, wantField: "clientVersion"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p := DefaultPaymentRequestParams("https://shop.example")
			req := CaptureContextRequest{
				AllowedCardNetworks: p.AllowedCardNetworks,
				AllowedPaymentTypes: p.AllowedPaymentTypes,
				Amount:              p.Amount,
				Currency:            p.Currency,
				Country:             p.Country,
				Locale:              p.Locale,
				ClientVersion:       DefaultClientVersion,
				TargetOrigins:       p.TargetOrigins,
			}
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestChargeRequestValidate(t *testing.T) {
	t.Parallel()

	req := ChargeRequest{Amount: "1.50", Currency: "USD"}
	require.Error(t, req.Validate())

	require.NoError(t, json.Unmarshal([]byte(`{"transientToken":"tok","amount":"1.50","currency":"USD"}`), &req))
	require.NoError(t, req.Validate())

	req.Currency = ""
	var verr *ValidationError
	require.ErrorAs(t, req.Validate(), &verr)
	assert.Equal(t, "currency", verr.Field)
}
