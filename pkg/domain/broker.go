package domain

import "time"

// BrokerInfo represents broker identity and aggregate counters
type BrokerInfo struct {
	Name               string  `json:"name"`
	Version            string  `json:"version"`
	ID                 string  `json:"id"`
	Uptime             string  `json:"uptime"`
	UptimeMillis       int64   `json:"uptimeMillis"`
	DataDirectory      string  `json:"dataDirectory"`
	VMURL              string  `json:"vmURL"`
	StorePercentUsage  float64 `json:"storePercentUsage"`
	MemoryPercentUsage float64 `json:"memoryPercentUsage"`
	TempPercentUsage   float64 `json:"tempPercentUsage"`
	TotalConnections   int64   `json:"totalConnections"`
	TotalEnqueueCount  int64   `json:"totalEnqueueCount"`
	TotalDequeueCount  int64   `json:"totalDequeueCount"`
	TotalConsumerCount int64   `json:"totalConsumerCount"`
	TotalProducerCount int64   `json:"totalProducerCount"`
	TotalMessageCount  int64   `json:"totalMessageCount"`
}

// BrokerStatistics is a single sample of broker-wide usage counters
type BrokerStatistics struct {
	SampledAt       time.Time `json:"sampledAt" db:"-"`
	MemoryUsage     float64   `json:"memoryUsage" db:"memory_usage"`
	StoreUsage      float64   `json:"storeUsage" db:"store_usage"`
	TempUsage       float64   `json:"tempUsage" db:"temp_usage"`
	ConnectionCount int64     `json:"connectionCount" db:"connection_count"`
	EnqueueCount    int64     `json:"enqueueCount" db:"enqueue_count"`
	DequeueCount    int64     `json:"dequeueCount" db:"dequeue_count"`
	MessageCount    int64     `json:"messageCount" db:"message_count"`
	ConsumerCount   int64     `json:"consumerCount" db:"consumer_count"`
	ProducerCount   int64     `json:"producerCount" db:"producer_count"`
}

// HealthStatus is the broker health verdict
type HealthStatus string

// health statuses reported by the broker
const (
	HealthHealthy HealthStatus = "healthy"
	HealthWarning HealthStatus = "warning"
	HealthError   HealthStatus = "error"
)

// BrokerHealth represents broker health with a list of detected issues
type BrokerHealth struct {
	Status             HealthStatus `json:"status"`
	Uptime             int64        `json:"uptime"`
	MemoryPercentUsage float64      `json:"memoryPercentUsage"`
	StorePercentUsage  float64      `json:"storePercentUsage"`
	TempPercentUsage   float64      `json:"tempPercentUsage"`
	Issues             []string     `json:"issues"`
}

// Normalize fills an empty status as healthy and replaces nil issues with an empty list
func (h BrokerHealth) Normalize() BrokerHealth {
	if h.Status == "" {
		h.Status = HealthHealthy
	}
	if h.Issues == nil {
		h.Issues = []string{}
	}
	return h
}
