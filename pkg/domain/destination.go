package domain

import (
	"fmt"
	"strings"
)

// DestinationKind tags a destination as queue or topic
type DestinationKind string

// destination kinds
const (
	KindQueue DestinationKind = "queue"
	KindTopic DestinationKind = "topic"
)

// ParseDestinationKind converts "queue"/"topic" (case-insensitive) to a DestinationKind
func ParseDestinationKind(s string) (DestinationKind, error) {
	switch DestinationKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindQueue:
		return KindQueue, nil
	case KindTopic:
		return KindTopic, nil
	default:
		return "", fmt.Errorf("unknown destination kind %q", s)
	}
}

// Capability is a lifecycle operation a destination kind may support
type Capability string

// lifecycle capabilities, present only on queues
const (
	CapPurge  Capability = "purge"
	CapPause  Capability = "pause"
	CapResume Capability = "resume"
)

// Capabilities returns lifecycle operations supported by the kind
func (k DestinationKind) Capabilities() []Capability {
	if k == KindQueue {
		return []Capability{CapPurge, CapPause, CapResume}
	}
	return nil
}

// Supports reports whether the kind supports the capability
func (k DestinationKind) Supports(c Capability) bool {
	for _, have := range k.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}

// DestinationRef identifies a destination by kind and name
type DestinationRef struct {
	Kind DestinationKind `json:"type"`
	Name string          `json:"name"`
}

func (d DestinationRef) String() string { return string(d.Kind) + "://" + d.Name }

// DestinationStats holds counters shared by queues and topics
type DestinationStats struct {
	Name               string  `json:"name"`
	EnqueueCount       int64   `json:"enqueueCount"`
	DequeueCount       int64   `json:"dequeueCount"`
	ConsumerCount      int64   `json:"consumerCount"`
	ProducerCount      int64   `json:"producerCount"`
	QueueSize          int64   `json:"queueSize"`
	MemoryPercentUsage float64 `json:"memoryPercentUsage"`
	AverageEnqueueTime float64 `json:"averageEnqueueTime"`
	MaxEnqueueTime     int64   `json:"maxEnqueueTime"`
	MinEnqueueTime     int64   `json:"minEnqueueTime"`
	AverageMessageSize float64 `json:"averageMessageSize"`
	MaxMessageSize     int64   `json:"maxMessageSize"`
	MinMessageSize     int64   `json:"minMessageSize"`
}

// Queue is a point-to-point destination
type Queue struct {
	DestinationStats
	Paused             bool    `json:"paused"`
	DispatchCount      int64   `json:"dispatchCount"`
	ExpiredCount       int64   `json:"expiredCount"`
	InflightCount      int64   `json:"inflightCount"`
	AverageBlockedTime float64 `json:"averageBlockedTime"`
	TotalBlockedTime   int64   `json:"totalBlockedTime"`
}

// Ref returns the queue reference
func (q Queue) Ref() DestinationRef { return DestinationRef{Kind: KindQueue, Name: q.Name} }

// Topic is a publish-subscribe destination
type Topic struct {
	DestinationStats
	SubscriptionCount           int64 `json:"subscriptionCount"`
	DurableSubscriptionCount    int64 `json:"durableSubscriptionCount"`
	NonDurableSubscriptionCount int64 `json:"nonDurableSubscriptionCount"`
}

// Ref returns the topic reference
func (t Topic) Ref() DestinationRef { return DestinationRef{Kind: KindTopic, Name: t.Name} }

// Page is a paged list as returned by the remote API
type Page[T any] struct {
	Content       []T `json:"content"`
	Page          int `json:"page"`
	PageSize      int `json:"pageSize"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
}
