package domain

// Connection is a client connection to the broker
type Connection struct {
	ConnectionID      string `json:"connectionId"`
	RemoteAddress     string `json:"remoteAddress"`
	UserName          string `json:"userName"`
	ClientID          string `json:"clientId"`
	ConnectorName     string `json:"connectorName"`
	Connected         bool   `json:"connected"`
	Active            bool   `json:"active"`
	Slow              bool   `json:"slow"`
	Blocked           bool   `json:"blocked"`
	DispatchQueueSize int64  `json:"dispatchQueueSize"`
}

// Subscriber is a consumer attached to a destination
type Subscriber struct {
	ConsumerID                 string `json:"consumerId"`
	ConnectionID               string `json:"connectionId"`
	SessionID                  string `json:"sessionId"`
	Destination                string `json:"destination"`
	Selector                   string `json:"selector,omitempty"`
	EnqueueCounter             int64  `json:"enqueueCounter"`
	DequeueCounter             int64  `json:"dequeueCounter"`
	DispatchedCounter          int64  `json:"dispatchedCounter"`
	DispatchedQueueSize        int64  `json:"dispatchedQueueSize"`
	PrefetchSize               int64  `json:"prefetchSize"`
	MaximumPendingMessageLimit int64  `json:"maximumPendingMessageLimit"`
	Exclusive                  bool   `json:"exclusive"`
	Retroactive                bool   `json:"retroactive"`
	SubscriptionName           string `json:"subscriptionName,omitempty"`
}
