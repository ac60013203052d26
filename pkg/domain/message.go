package domain

// Message is a message browsed from a queue
type Message struct {
	ID                string         `json:"id"`
	MessageID         string         `json:"messageId"`
	Destination       string         `json:"destination"`
	Timestamp         int64          `json:"timestamp"`
	Expiration        int64          `json:"expiration"`
	Priority          int            `json:"priority"`
	Redelivered       bool           `json:"redelivered"`
	RedeliveryCounter int            `json:"redeliveryCounter"`
	CorrelationID     string         `json:"correlationId,omitempty"`
	Type              string         `json:"type,omitempty"`
	Persistent        bool           `json:"persistent"`
	Properties        map[string]any `json:"properties"`
	Headers           map[string]any `json:"headers"`
	Body              string         `json:"body"`
	BodyPreview       string         `json:"bodyPreview"`
	Size              int64          `json:"size"`
}

// SendMessageRequest describes a message to publish to a destination
type SendMessageRequest struct {
	Destination string            `json:"destination"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	Properties  map[string]any    `json:"properties,omitempty"`
	Persistent  *bool             `json:"persistent,omitempty"`
	Priority    *int              `json:"priority,omitempty"`
	TimeToLive  *int64            `json:"timeToLive,omitempty"`
}

// MessageOperation is the result of a send/delete/move/copy call
type MessageOperation struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
