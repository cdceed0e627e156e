// Package extraction turns free-text chat into structured order payloads by
// calling the LLM vendor with a forced tool schema and validating whatever
// comes back. The model is treated as an unreliable remote.
package extraction

import "errors"

var (
	// ErrMalformed means the response carried no tool-use block.
	ErrMalformed = errors.New("extraction payload missing tool use block")
	// ErrUpstreamBadRequest surfaces a non-retriable 4xx from the vendor.
	ErrUpstreamBadRequest = errors.New("llm rejected request")
	// ErrUpstreamUnavailable means retries were exhausted against 5xx or
	// network failures.
	ErrUpstreamUnavailable = errors.New("llm unavailable")
)

// ChatMessage is one verbatim inbound message.
type ChatMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Item is one extracted line item. Price stays nil when the conversation
// names no price; the client never invents one.
type Item struct {
	ProductName string   `json:"product_name"`
	Quantity    float64  `json:"quantity"`
	Unit        string   `json:"unit,omitempty"`
	Price       *float64 `json:"price,omitempty"`
}

// ChatResult is the validated payload for a chat-log extraction.
type ChatResult struct {
	Items           []Item   `json:"items"`
	CustomerName    string   `json:"customer_name,omitempty"`
	DeliveryAddress string   `json:"delivery_address,omitempty"`
	DeliveryDate    string   `json:"delivery_date,omitempty"`
	TotalAmount     *float64 `json:"total_amount,omitempty"`
	Confidence      string   `json:"confidence"`
	Notes           string   `json:"notes,omitempty"`
}

// SingleResult is the validated payload for a single-message extraction.
type SingleResult struct {
	Items           []Item   `json:"items"`
	CustomerName    string   `json:"customer_name,omitempty"`
	DeliveryAddress string   `json:"delivery_address,omitempty"`
	DeliveryDate    string   `json:"delivery_date,omitempty"`
	TotalAmount     *float64 `json:"total_amount,omitempty"`
	Confidence      float64  `json:"confidence"`
}
