package demoserver

// Config holds configuration for the demo server.
type Config struct {
	// Port is the port on which the demo server listens.
	Port int

	// PollsToComplete is how many analysis polls it takes to reach
	// "completed". The first poll always answers "queued" when it is above 1.
	PollsToComplete int

	// APIKey, when set, is required in the x-apikey header.
	APIKey string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:            9999,
		PollsToComplete: 3,
	}
}
