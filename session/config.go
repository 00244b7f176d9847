package session

const (
	defaultRetain = 20
	defaultWindow = 10
)

// Config holds conversation retention parameters.
type Config struct {
	// Retain caps how many messages a session keeps; older messages are
	// evicted FIFO. Zero means the default.
	Retain int `json:"retain,omitempty"`
	// Window caps how many retained messages are supplied to the model per
	// turn. Zero means the default.
	Window int `json:"window,omitempty"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Retain: defaultRetain,
		Window: defaultWindow,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Retain > 0 {
		c.Retain = source.Retain
	}
	if source.Window > 0 {
		c.Window = source.Window
	}
}

// New creates a Store from configuration.
func New(cfg *Config) (Store, error) {
	return NewMemoryStore(cfg), nil
}
