package publisher

// Publisher defines the interface for publishing accepted records
type Publisher interface {
	// Publish publishes a message under a provider key
	Publish(key string, message []byte) error

	// TrimStreams trims backing streams to their configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}
