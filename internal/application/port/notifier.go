package port

import (
	"github.com/skyoxu/myguild-sub003/internal/gate"
	"github.com/skyoxu/myguild-sub003/internal/resilience"
)

// Notifier pushes health and gate updates to connected dashboard clients.
type Notifier interface {
	// BroadcastHealth sends a system health snapshot to all clients.
	BroadcastHealth(health resilience.SystemHealth)

	// BroadcastGate sends a gate verdict to all clients.
	BroadcastGate(result *gate.Result)

	// ClientCount returns the number of connected clients.
	ClientCount() int
}
