// Package network owns a set of cells and the directed synaptic connections
// between them, and answers topology queries for the engine.
package network

import (
	"fmt"

	"github.com/goki/mat32"
	"github.com/nvandessel/cellnet/internal/cell"
	"github.com/nvandessel/cellnet/internal/simerr"
)

// Network holds cells and connections. Cells are owned by the network;
// connections refer to them by id. Topology is frozen while a run is in
// progress.
type Network struct {
	cells map[string]*cell.Cell
	order []string
	conns []*Connection
	out   map[string][]*Connection
	in    map[string][]*Connection

	running bool
}

// New returns an empty network.
func New() *Network {
	return &Network{
		cells: make(map[string]*cell.Cell),
		out:   make(map[string][]*Connection),
		in:    make(map[string][]*Connection),
	}
}

func (n *Network) checkIdle(op string) error {
	if n.running {
		return &simerr.EngineStateError{Op: op, State: "running"}
	}
	return nil
}

// AddCell adds a cell. Ids must be unique.
func (n *Network) AddCell(c *cell.Cell) error {
	if err := n.checkIdle("add cell"); err != nil {
		return err
	}
	if c == nil {
		return simerr.Invalid("cell", nil, "must not be nil")
	}
	if _, exists := n.cells[c.ID()]; exists {
		return simerr.Invalid("cell id", c.ID(), "already in network")
	}
	n.cells[c.ID()] = c
	n.order = append(n.order, c.ID())
	return nil
}

// AddConnection wires src to tgt. It fails with an *simerr.UnknownCellError
// when either id is absent and leaves the connection set unchanged on any
// error.
func (n *Network) AddConnection(src, tgt string, delay, weight float64, opts ...ConnectionOption) (*Connection, error) {
	if err := n.checkIdle("add connection"); err != nil {
		return nil, err
	}
	if _, ok := n.cells[src]; !ok {
		return nil, &simerr.UnknownCellError{ID: src, Op: "add connection"}
	}
	target, ok := n.cells[tgt]
	if !ok {
		return nil, &simerr.UnknownCellError{ID: tgt, Op: "add connection"}
	}
	if err := simerr.NonNegative("connection delay", delay); err != nil {
		return nil, err
	}
	if err := simerr.NonNegative("connection weight", weight); err != nil {
		return nil, err
	}

	o := connectionOptions{site: target.DefaultSynapseSite()}
	for _, opt := range opts {
		opt(&o)
	}
	if src == tgt && !o.allowSelf {
		return nil, simerr.Invalid("connection", src+"->"+tgt, "self-loop not allowed without AllowSelfLoop")
	}

	syn, err := target.AddSynapse(o.site)
	if err != nil {
		return nil, fmt.Errorf("add connection %s->%s: %w", src, tgt, err)
	}

	conn := &Connection{
		Index:   len(n.conns),
		Source:  src,
		Target:  tgt,
		Site:    o.site,
		Weight:  weight,
		Delay:   delay,
		synapse: syn,
	}
	n.conns = append(n.conns, conn)
	n.out[src] = append(n.out[src], conn)
	n.in[tgt] = append(n.in[tgt], conn)
	return conn, nil
}

// Cell returns the cell with the given id.
func (n *Network) Cell(id string) (*cell.Cell, error) {
	c, ok := n.cells[id]
	if !ok {
		return nil, &simerr.UnknownCellError{ID: id, Op: "lookup"}
	}
	return c, nil
}

// Cells returns every cell in insertion order.
func (n *Network) Cells() []*cell.Cell {
	out := make([]*cell.Cell, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, n.cells[id])
	}
	return out
}

// Len returns the number of cells.
func (n *Network) Len() int { return len(n.order) }

// Connections returns every connection in creation order.
func (n *Network) Connections() []*Connection {
	out := make([]*Connection, len(n.conns))
	copy(out, n.conns)
	return out
}

// ConnectionsFrom returns the connections whose source is id.
func (n *Network) ConnectionsFrom(id string) []*Connection {
	return append([]*Connection(nil), n.out[id]...)
}

// ConnectionsTo returns the connections whose target is id.
func (n *Network) ConnectionsTo(id string) []*Connection {
	return append([]*Connection(nil), n.in[id]...)
}

// AttachStimulus adds a stimulus to the cell with the given id.
func (n *Network) AttachStimulus(id string, s cell.Stimulus) error {
	c, ok := n.cells[id]
	if !ok {
		return &simerr.UnknownCellError{ID: id, Op: "attach stimulus"}
	}
	if err := n.checkIdle("attach stimulus"); err != nil {
		return err
	}
	return c.Attach(s)
}

// ClearStimuli removes every stimulus from every cell.
func (n *Network) ClearStimuli() error {
	if err := n.checkIdle("clear stimuli"); err != nil {
		return err
	}
	for _, c := range n.cells {
		c.ClearStimuli()
	}
	return nil
}

// BeginRun freezes topology for the duration of a run.
func (n *Network) BeginRun() error {
	if err := n.checkIdle("begin run"); err != nil {
		return err
	}
	n.running = true
	return nil
}

// EndRun unfreezes topology.
func (n *Network) EndRun() { n.running = false }

// Running reports whether a run is in progress.
func (n *Network) Running() bool { return n.running }

// Validate checks that every connection references cells of this network.
func (n *Network) Validate() error {
	for _, c := range n.conns {
		if _, ok := n.cells[c.Source]; !ok {
			return &simerr.UnknownCellError{ID: c.Source, Op: "validate " + c.ID()}
		}
		if _, ok := n.cells[c.Target]; !ok {
			return &simerr.UnknownCellError{ID: c.Target, Op: "validate " + c.ID()}
		}
	}
	return nil
}

// CellID returns the conventional label of the i-th cell, "cell1", "cell2", ...
func CellID(i int) string { return fmt.Sprintf("cell%d", i+1) }

// Build creates n cells from a template, spaced along x by spacing µm.
func Build(tmpl cell.Template, n int, spacing float64) (*Network, error) {
	if n <= 0 {
		return nil, simerr.Invalid("cell count", n, "must be positive")
	}
	net := New()
	for i := 0; i < n; i++ {
		pos := mat32.Vec3{X: float32(float64(i) * spacing)}
		c, err := tmpl.NewCell(CellID(i), pos)
		if err != nil {
			return nil, fmt.Errorf("build cell %d: %w", i, err)
		}
		if err := net.AddCell(c); err != nil {
			return nil, err
		}
	}
	return net, nil
}

// Ring builds n cells and connects each to the next, wrapping the last to the
// first. A ring of one cell would be a self-loop and is rejected.
func Ring(tmpl cell.Template, n int, spacing, delay, weight float64) (*Network, error) {
	if n < 2 {
		return nil, simerr.Invalid("ring size", n, "needs at least 2 cells")
	}
	net, err := Build(tmpl, n, spacing)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if _, err := net.AddConnection(CellID(i), CellID((i+1)%n), delay, weight); err != nil {
			return nil, fmt.Errorf("ring link %d: %w", i, err)
		}
	}
	return net, nil
}
