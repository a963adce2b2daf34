// Package ucheckout drives a card payment through a vendor-hosted Unified
// Checkout widget.
//
// An [Orchestrator] fetches a short-lived capture context from the merchant
// backend with a [Client], loads the widget client library referenced inside
// that context through a [ScriptLoader], bootstraps the widget and wires its
// lifecycle events, hands the resulting [TransientToken] to the backend for
// charging, and finally settles, fails, cancels or resets.
//
// The browser surface (script injection, DOM containers, window messages and
// the vendor Accept entry point) is consumed through small interfaces such as
// [ScriptHost], [Library] and [Container]. The browser package binds them to a
// real page when compiled for js/wasm.
//
// # Backend
//
// The backend package serves the two endpoints the [Client] talks to:
//
//	POST /api/unified-checkout/capture-context
//	POST /api/unified-checkout/charge
//
// Requests can be signed with [signature.HMACSigner] and verified on the
// server with [signature.HMACVerifier].
//
// # Presentation
//
// [Project] maps a [Snapshot] of the orchestrator to a [View]; [BindRenderer]
// keeps a renderer in sync with every transition.
package ucheckout
