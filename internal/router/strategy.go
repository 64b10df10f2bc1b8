package router

import "fmt"

// Strategy selects how the router splits work between the local and remote
// backends for one call.
type Strategy string

const (
	// NativeOnly invokes the local backend and never falls back.
	NativeOnly Strategy = "native-only"

	// NativeFirst prefers the local backend, falling back to remote on
	// failure or insufficient confidence.
	NativeFirst Strategy = "native-first"

	// RemoteFirst prefers the remote backend, falling back to local on
	// failure. Remote results carry no confidence gate.
	RemoteFirst Strategy = "remote-first"

	// Hybrid runs both backends concurrently and keeps the result with the
	// higher confidence.
	Hybrid Strategy = "hybrid"

	// Auto picks NativeFirst or Hybrid per call from the task's complexity
	// and the device's capability.
	Auto Strategy = "auto"
)

var strategies = []Strategy{NativeOnly, NativeFirst, RemoteFirst, Hybrid, Auto}

// ParseStrategy maps a configuration string onto a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range strategies {
		if name == string(s) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown strategy %q, valid options: %v",
		ErrInvalidConfiguration, name, strategies)
}

// Validate checks that s is one of the known strategies.
func (s Strategy) Validate() error {
	_, err := ParseStrategy(string(s))
	return err
}

func (s Strategy) String() string { return string(s) }
