package health

import "context"

// NewReadyGraph returns a root node for readiness dependencies.
// Callers add named deps via ready.Add("postgres", ...), etc.
func NewReadyGraph() *Node {
	return &Node{Name: "ready"}
}

// CheckAlwaysReady returns a readiness check that always succeeds.
// Used for platform pieces that have no failure mode after boot.
func CheckAlwaysReady() Check {
	return func(ctx context.Context) error {
		return nil
	}
}
