// Package visualization renders network topology and spike rasters in
// various output formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/cellnet/internal/cell"
	"github.com/nvandessel/cellnet/internal/network"
)

// Format specifies the output format for topology rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat accepts "dot" or "json".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatDOT:
		return FormatDOT, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want dot or json)", s)
	}
}

// siteStyles maps the synapse site of a connection to a DOT edge style.
var siteStyles = map[cell.Site]string{
	cell.SiteDend: "solid",
	cell.SiteSoma: "dashed",
}

// RenderDOT produces a Graphviz DOT representation of the network. Cells are
// pinned at their x/y position; connections are labelled with delay and
// weight.
func RenderDOT(net *network.Network) string {
	var b strings.Builder
	b.WriteString("digraph cellnet {\n")
	b.WriteString("  layout=neato;\n")
	b.WriteString("  node [shape=circle, style=filled, fillcolor=\"steelblue\", fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, c := range net.Cells() {
		p := c.Position()
		// neato positions are in points; 100 µm maps to one inch
		b.WriteString(fmt.Sprintf("  %q [pos=\"%.2f,%.2f!\", tooltip=\"x=%g y=%g z=%g\"];\n",
			c.ID(), p.X*0.72, p.Y*0.72, p.X, p.Y, p.Z))
	}
	b.WriteString("\n")

	for _, conn := range net.Connections() {
		style := siteStyles[conn.Site]
		if style == "" {
			style = "solid"
		}
		b.WriteString(fmt.Sprintf("  %q -> %q [label=%q, style=%s, tooltip=%q];\n",
			conn.Source, conn.Target,
			fmt.Sprintf("%s %gms w=%g", conn.ID(), conn.Delay, conn.Weight),
			style, string(conn.Site)))
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready topology with cells and connections arrays.
func RenderJSON(net *network.Network) map[string]interface{} {
	cells := net.Cells()
	jsonCells := make([]map[string]interface{}, 0, len(cells))
	for i, c := range cells {
		p := c.Position()
		jsonCells = append(jsonCells, map[string]interface{}{
			"id":        c.ID(),
			"index":     i,
			"x":         p.X,
			"y":         p.Y,
			"z":         p.Z,
			"threshold": c.Threshold(),
			"stimuli":   len(c.Stimuli()),
		})
	}

	conns := net.Connections()
	jsonConns := make([]map[string]interface{}, 0, len(conns))
	for _, conn := range conns {
		entry := map[string]interface{}{
			"id":     conn.ID(),
			"source": conn.Source,
			"target": conn.Target,
			"site":   string(conn.Site),
			"delay":  conn.Delay,
			"weight": conn.Weight,
		}
		src, err1 := net.Cell(conn.Source)
		tgt, err2 := net.Cell(conn.Target)
		if err1 == nil && err2 == nil {
			entry["distance"] = tgt.Position().Sub(src.Position()).Length()
		}
		jsonConns = append(jsonConns, entry)
	}

	return map[string]interface{}{
		"cells":            jsonCells,
		"connections":      jsonConns,
		"cell_count":       len(jsonCells),
		"connection_count": len(jsonConns),
	}
}
