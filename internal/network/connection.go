package network

import (
	"fmt"

	"github.com/nvandessel/cellnet/internal/cell"
)

// Scheduler queues a synaptic delivery for a future time. The engine's event
// queue implements it.
type Scheduler interface {
	Schedule(at float64, conn *Connection)
}

// Connection is a directed, delayed excitatory link from the source cell's
// spike detector to a synapse on the target cell.
type Connection struct {
	Index  int
	Source string
	Target string
	Site   cell.Site
	Weight float64 // µS
	Delay  float64 // ms

	synapse *cell.Synapse
}

// ID returns the connection's stable label, "nc<index>".
func (c *Connection) ID() string { return fmt.Sprintf("nc%d", c.Index) }

// SelfLoop reports whether the connection feeds a cell back onto itself.
func (c *Connection) SelfLoop() bool { return c.Source == c.Target }

// OnSourceSpike schedules exactly one delivery, Delay after the spike at t.
func (c *Connection) OnSourceSpike(t float64, s Scheduler) {
	s.Schedule(t+c.Delay, c)
}

// Deliver applies one event to the target synapse, scaled by Weight.
func (c *Connection) Deliver() {
	c.synapse.Deliver(c.Weight)
}

// Synapse returns the target-side synapse.
func (c *Connection) Synapse() *cell.Synapse { return c.synapse }

func (c *Connection) String() string {
	return fmt.Sprintf("%s %s->%s (delay=%gms weight=%g)", c.ID(), c.Source, c.Target, c.Delay, c.Weight)
}

// ConnectionOption adjusts how AddConnection wires a link.
type ConnectionOption func(*connectionOptions)

type connectionOptions struct {
	site      cell.Site
	allowSelf bool
}

// WithSite places the synapse on the given target section instead of the
// target's default synapse site.
func WithSite(site cell.Site) ConnectionOption {
	return func(o *connectionOptions) { o.site = site }
}

// AllowSelfLoop permits a connection whose source and target are the same
// cell.
func AllowSelfLoop() ConnectionOption {
	return func(o *connectionOptions) { o.allowSelf = true }
}
