package model

import (
	"encoding/json"
	"fmt"
)

// WebSocket event names.
const (
	WSEventItemsUpdated = "items-updated"
	WSEventCreateItem   = "create-item"
	WSEventDeleteItem   = "delete-item"
	WSEventError        = "error"
)

// WebSocketMessage is the envelope of every frame on the real-time channel.
type WebSocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// NewItemsUpdatedMessage encodes a full item snapshot as an items-updated frame.
func NewItemsUpdatedMessage(items []Item) ([]byte, error) {
	if items == nil {
		items = []Item{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}

	return json.Marshal(WebSocketMessage{Event: WSEventItemsUpdated, Data: data})
}

// NewErrorMessage encodes an error frame addressed to a single client.
func NewErrorMessage(msg string) []byte {
	// Marshalling a struct of strings cannot fail.
	b, _ := json.Marshal(WebSocketMessage{Event: WSEventError, Error: msg})
	return b
}
