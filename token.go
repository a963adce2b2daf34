package ucheckout

import (
	"bytes"
	"encoding/json"
	"errors"
)

// TransientToken is the single-use token the widget emits after successful
// tokenization. The vendor sends either a compact JWT string or an object, so
// the value is held as raw JSON and accessed through the As/From helpers.
type TransientToken struct {
	union json.RawMessage
}

// AsString returns the token as a JWT string.
func (t TransientToken) AsString() (string, error) {
	var body string
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromString overwrites the token with a JWT string.
func (t *TransientToken) FromString(v string) error {
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// AsObject returns the token as a JSON object.
func (t TransientToken) AsObject() (map[string]any, error) {
	var body map[string]any
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// IsZero reports whether no token value is present.
func (t TransientToken) IsZero() bool {
	trimmed := bytes.TrimSpace(t.union)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Raw returns the token's JSON encoding.
func (t TransientToken) Raw() json.RawMessage {
	return t.union
}

func (t TransientToken) MarshalJSON() ([]byte, error) {
	if len(t.union) == 0 {
		return []byte("null"), nil
	}
	b, err := t.union.MarshalJSON()
	return b, err
}

func (t *TransientToken) UnmarshalJSON(b []byte) error {
	err := t.union.UnmarshalJSON(b)
	return err
}

// ExtractTransientToken reads the token from a widget event payload: the
// `transientToken` field, else the `token` field, else the payload itself.
// Empty values are skipped the same way at each step.
func ExtractTransientToken(payload json.RawMessage) (TransientToken, bool) {
	if !present(payload) {
		return TransientToken{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err == nil {
		for _, key := range []string{"transientToken", "token"} {
			if v, ok := fields[key]; ok && present(v) {
				return TransientToken{union: v}, true
			}
		}
	}
	return TransientToken{union: payload}, true
}

// messageToken extracts a token from a window message. Only objects carrying
// a token field qualify.
func messageToken(data json.RawMessage) (TransientToken, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return TransientToken{}, false
	}
	for _, key := range []string{"transientToken", "token"} {
		if v, ok := fields[key]; ok && present(v) {
			return TransientToken{union: v}, true
		}
	}
	return TransientToken{}, false
}

var errEmptyToken = errors.New("transient token is required")

// present mirrors JavaScript truthiness for JSON values.
func present(v json.RawMessage) bool {
	switch string(bytes.TrimSpace(v)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}
