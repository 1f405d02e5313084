// Package events defines the change-event payload relayed to subscribers.
package events

import "encoding/json"

// ChangeEvent is the structured payload of a single inventory change
// notification. It carries whatever the database trigger put into the
// notification (operation, record fields, ...) and is forwarded to
// subscribers as-is; the relay enforces no schema beyond "valid JSON
// object".
type ChangeEvent map[string]any

// Decode parses a raw notification payload into a ChangeEvent.
func Decode(payload []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Encode serializes the event to its wire form.
func (e ChangeEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Operation returns the "operation" field if the trigger included one
// (INSERT, UPDATE, DELETE), or "" otherwise.
func (e ChangeEvent) Operation() string {
	return e.String("operation")
}

// String returns the named field as a string, or "" if absent or not a
// string.
func (e ChangeEvent) String(key string) string {
	if v, ok := e[key].(string); ok {
		return v
	}
	return ""
}
