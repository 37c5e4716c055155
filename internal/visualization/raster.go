package visualization

import (
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/cellnet/internal/network"
	"github.com/nvandessel/cellnet/internal/recording"
)

// DefaultRasterWidth is the number of time bins in a raster line.
const DefaultRasterWidth = 60

// RasterRow is one line of a spike raster: spikes of Source drawn under
// Label.
type RasterRow struct {
	Label  string
	Source string
}

// ConnectionRows returns one row per connection, showing the spikes its
// source emitted.
func ConnectionRows(net *network.Network) []RasterRow {
	conns := net.Connections()
	rows := make([]RasterRow, 0, len(conns))
	for _, c := range conns {
		rows = append(rows, RasterRow{
			Label:  fmt.Sprintf("%s %s->%s", c.ID(), c.Source, c.Target),
			Source: c.Source,
		})
	}
	return rows
}

// CellRows returns one row per cell id.
func CellRows(ids ...string) []RasterRow {
	rows := make([]RasterRow, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, RasterRow{Label: id, Source: id})
	}
	return rows
}

// RenderRaster draws spikes in [0, tstop] as a text raster, one line per
// row, width bins per line. A bin holding a spike is drawn as '|'. Spikes
// after tstop are not drawn.
func RenderRaster(rows []RasterRow, spikes []recording.SpikeEvent, tstop float64, width int) string {
	if width <= 0 {
		width = DefaultRasterWidth
	}

	bySource := make(map[string][]float64)
	for _, ev := range spikes {
		if ev.T < 0 || ev.T > tstop {
			continue
		}
		bySource[ev.Source] = append(bySource[ev.Source], ev.T)
	}

	labelWidth := 0
	for _, r := range rows {
		if len(r.Label) > labelWidth {
			labelWidth = len(r.Label)
		}
	}

	var b strings.Builder
	for _, r := range rows {
		line := []byte(strings.Repeat(".", width))
		for _, t := range bySource[r.Source] {
			line[rasterBin(t, tstop, width)] = '|'
		}
		fmt.Fprintf(&b, "%-*s %s\n", labelWidth, r.Label, line)
	}

	axis := fmt.Sprintf("0 ms%s%g ms", strings.Repeat(" ", max(1, width-len(fmt.Sprintf("%g ms", tstop))-4)), tstop)
	fmt.Fprintf(&b, "%-*s %s\n", labelWidth, "", axis)
	return b.String()
}

func rasterBin(t, tstop float64, width int) int {
	if tstop <= 0 {
		return 0
	}
	bin := int(math.Floor(t / tstop * float64(width)))
	if bin >= width {
		bin = width - 1
	}
	if bin < 0 {
		bin = 0
	}
	return bin
}
