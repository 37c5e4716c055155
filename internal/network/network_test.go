package network

import (
	"errors"
	"testing"

	"github.com/goki/mat32"
	"github.com/nvandessel/cellnet/internal/cell"
	"github.com/nvandessel/cellnet/internal/simerr"
)

// newTestNetwork builds n default cells, failing the test on error.
func newTestNetwork(t *testing.T, n int) *Network {
	t.Helper()
	net, err := Build(cell.DefaultTemplate(), n, 100)
	if err != nil {
		t.Fatalf("Build(%d): %v", n, err)
	}
	return net
}

type recordingScheduler struct {
	at    []float64
	conns []*Connection
}

func (r *recordingScheduler) Schedule(at float64, conn *Connection) {
	r.at = append(r.at, at)
	r.conns = append(r.conns, conn)
}

func TestAddConnection_UnknownTargetLeavesConnectionsUnchanged(t *testing.T) {
	net := newTestNetwork(t, 2)
	if _, err := net.AddConnection("cell1", "cell2", 10, 1); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	before := net.Connections()

	_, err := net.AddConnection("cell1", "cell9", 10, 1)
	if !errors.Is(err, simerr.ErrUnknownCell) {
		t.Fatalf("expected ErrUnknownCell, got %v", err)
	}
	var uce *simerr.UnknownCellError
	if !errors.As(err, &uce) || uce.ID != "cell9" {
		t.Errorf("expected UnknownCellError for cell9, got %v", err)
	}

	after := net.Connections()
	if len(after) != len(before) {
		t.Fatalf("connection count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("connection %d changed", i)
		}
	}
	if got := len(net.ConnectionsFrom("cell1")); got != 1 {
		t.Errorf("ConnectionsFrom(cell1) = %d, want 1", got)
	}
}

func TestAddConnection_UnknownSource(t *testing.T) {
	net := newTestNetwork(t, 1)
	if _, err := net.AddConnection("ghost", "cell1", 1, 1); !errors.Is(err, simerr.ErrUnknownCell) {
		t.Errorf("expected ErrUnknownCell, got %v", err)
	}
}

func TestAddConnection_InvalidParameters(t *testing.T) {
	tests := []struct {
		name          string
		delay, weight float64
		opts          []ConnectionOption
		src, tgt      string
	}{
		{name: "negative delay", delay: -1, weight: 1, src: "cell1", tgt: "cell2"},
		{name: "negative weight", delay: 1, weight: -0.5, src: "cell1", tgt: "cell2"},
		{name: "implicit self loop", delay: 1, weight: 1, src: "cell1", tgt: "cell1"},
		{name: "bad site", delay: 1, weight: 1, src: "cell1", tgt: "cell2", opts: []ConnectionOption{WithSite("axon")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := newTestNetwork(t, 2)
			_, err := net.AddConnection(tt.src, tt.tgt, tt.delay, tt.weight, tt.opts...)
			if !errors.Is(err, simerr.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
			if len(net.Connections()) != 0 {
				t.Errorf("connection added despite error")
			}
		})
	}
}

func TestAddConnection_ExplicitSelfLoopAndSite(t *testing.T) {
	net := newTestNetwork(t, 1)
	conn, err := net.AddConnection("cell1", "cell1", 5, 0.5, AllowSelfLoop(), WithSite(cell.SiteSoma))
	if err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	if !conn.SelfLoop() {
		t.Error("expected self loop")
	}
	if conn.Synapse().Site() != cell.SiteSoma {
		t.Errorf("synapse site = %s, want soma", conn.Synapse().Site())
	}
}

func TestAddCell_DuplicateID(t *testing.T) {
	net := newTestNetwork(t, 1)
	dup, err := cell.DefaultTemplate().NewCell("cell1", mat32.Vec3{})
	if err != nil {
		t.Fatal(err)
	}
	if err := net.AddCell(dup); !errors.Is(err, simerr.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestTopologyQueries(t *testing.T) {
	net := newTestNetwork(t, 3)
	mustConnect := func(src, tgt string) {
		t.Helper()
		if _, err := net.AddConnection(src, tgt, 10, 1); err != nil {
			t.Fatalf("AddConnection(%s,%s): %v", src, tgt, err)
		}
	}
	mustConnect("cell1", "cell2")
	mustConnect("cell1", "cell3")
	mustConnect("cell3", "cell2")

	if got := len(net.ConnectionsFrom("cell1")); got != 2 {
		t.Errorf("ConnectionsFrom(cell1) = %d, want 2", got)
	}
	if got := len(net.ConnectionsTo("cell2")); got != 2 {
		t.Errorf("ConnectionsTo(cell2) = %d, want 2", got)
	}
	if got := len(net.ConnectionsTo("cell1")); got != 0 {
		t.Errorf("ConnectionsTo(cell1) = %d, want 0", got)
	}
	if err := net.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestRing(t *testing.T) {
	net, err := Ring(cell.DefaultTemplate(), 3, 100, 10, 1)
	if err != nil {
		t.Fatalf("Ring: %v", err)
	}
	want := map[string]string{"cell1": "cell2", "cell2": "cell3", "cell3": "cell1"}
	for src, tgt := range want {
		out := net.ConnectionsFrom(src)
		if len(out) != 1 || out[0].Target != tgt {
			t.Errorf("ConnectionsFrom(%s) = %v, want single link to %s", src, out, tgt)
		}
	}

	c3, err := net.Cell("cell3")
	if err != nil {
		t.Fatal(err)
	}
	if c3.Position().X != 200 {
		t.Errorf("cell3 x = %v, want 200", c3.Position().X)
	}

	if _, err := Ring(cell.DefaultTemplate(), 1, 100, 10, 1); !errors.Is(err, simerr.ErrInvalidParameter) {
		t.Errorf("ring of one: expected ErrInvalidParameter, got %v", err)
	}
}

func TestOnSourceSpikeSchedulesOnce(t *testing.T) {
	net := newTestNetwork(t, 2)
	conn, err := net.AddConnection("cell1", "cell2", 10, 1)
	if err != nil {
		t.Fatal(err)
	}

	var s recordingScheduler
	conn.OnSourceSpike(7.5, &s)
	if len(s.at) != 1 || s.at[0] != 17.5 || s.conns[0] != conn {
		t.Errorf("scheduled %v, want one delivery at 17.5", s.at)
	}

	conn.Deliver()
	if got := conn.Synapse().Conductance(); got != 1 {
		t.Errorf("conductance after Deliver = %v, want 1", got)
	}
}

func TestRunningNetworkRejectsMutation(t *testing.T) {
	net := newTestNetwork(t, 2)
	if err := net.BeginRun(); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	extra, _ := cell.DefaultTemplate().NewCell("extra", mat32.Vec3{})
	if err := net.AddCell(extra); !errors.Is(err, simerr.ErrEngineState) {
		t.Errorf("AddCell while running: expected ErrEngineState, got %v", err)
	}
	if _, err := net.AddConnection("cell1", "cell2", 1, 1); !errors.Is(err, simerr.ErrEngineState) {
		t.Errorf("AddConnection while running: expected ErrEngineState, got %v", err)
	}
	if err := net.AttachStimulus("cell1", cell.Stimulus{Delay: 1, Duration: 1, Amplitude: 1}); !errors.Is(err, simerr.ErrEngineState) {
		t.Errorf("AttachStimulus while running: expected ErrEngineState, got %v", err)
	}
	if err := net.BeginRun(); !errors.Is(err, simerr.ErrEngineState) {
		t.Errorf("nested BeginRun: expected ErrEngineState, got %v", err)
	}

	net.EndRun()
	if _, err := net.AddConnection("cell1", "cell2", 1, 1); err != nil {
		t.Errorf("AddConnection after EndRun: %v", err)
	}
}

func TestAttachStimulusUnknownCell(t *testing.T) {
	net := newTestNetwork(t, 1)
	err := net.AttachStimulus("cell5", cell.Stimulus{Delay: 5, Duration: 1, Amplitude: 0.6})
	if !errors.Is(err, simerr.ErrUnknownCell) {
		t.Errorf("expected ErrUnknownCell, got %v", err)
	}
}
