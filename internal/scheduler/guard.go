package scheduler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tartampluch/go-musicbot/internal/config"
)

// ErrActionClaimed is returned by CycleGuard.Claim once the cycle's single
// action has been taken.
var ErrActionClaimed = errors.New(config.ErrActionClaimed)

// CycleGuard lets exactly one side-effecting tool call through per cycle.
// The runner resets it at the start of each cycle.
type CycleGuard struct {
	mu      sync.Mutex
	claimed string
}

// Reset reopens the guard for a new cycle.
func (g *CycleGuard) Reset() {
	g.mu.Lock()
	g.claimed = ""
	g.mu.Unlock()
}

// Claim takes the cycle's action for tool. A second claim in the same cycle
// fails and names the tool that got there first.
func (g *CycleGuard) Claim(tool string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claimed != "" {
		return fmt.Errorf("%w: %s", ErrActionClaimed, g.claimed)
	}
	g.claimed = tool
	return nil
}

// Release gives the claim back, used when the claimed call failed before
// any side effect happened.
func (g *CycleGuard) Release(tool string) {
	g.mu.Lock()
	if g.claimed == tool {
		g.claimed = ""
	}
	g.mu.Unlock()
}

// Claimed returns the tool holding the claim, if any.
func (g *CycleGuard) Claimed() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.claimed
}
