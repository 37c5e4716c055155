package recording

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// KindSpike labels spike rows in an exported table. Trace rows carry their
// Observable as kind.
const KindSpike = "spike"

// Row is one line of the long-format export table. For spikes Value is the
// source index.
type Row struct {
	Kind  string  `json:"kind"`
	Cell  string  `json:"cell"`
	T     float64 `json:"t"`
	Value float64 `json:"value"`
}

var exportSchema = arrow.NewSchema([]arrow.Field{
	{Name: "kind", Type: arrow.BinaryTypes.String},
	{Name: "cell", Type: arrow.BinaryTypes.String},
	{Name: "t", Type: arrow.PrimitiveTypes.Float64},
	{Name: "value", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// WriteArrow writes traces and spikes as an Arrow IPC file, one record batch
// per trace followed by one batch of spikes. The file footer needs a seekable
// destination.
func WriteArrow(w io.WriteSeeker, traces []Trace, spikes []SpikeEvent) error {
	mem := memory.NewGoAllocator()
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(exportSchema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("open arrow writer: %w", err)
	}

	b := array.NewRecordBuilder(mem, exportSchema)
	defer b.Release()

	flush := func() error {
		rec := b.NewRecord()
		defer rec.Release()
		if rec.NumRows() == 0 {
			return nil
		}
		return fw.Write(rec)
	}

	for _, tr := range traces {
		for _, s := range tr.Samples {
			appendRow(b, Row{Kind: string(tr.Observable), Cell: tr.CellID, T: s.T, Value: s.V})
		}
		if err := flush(); err != nil {
			fw.Close()
			return fmt.Errorf("write trace %s/%s: %w", tr.CellID, tr.Observable, err)
		}
	}

	for _, ev := range spikes {
		appendRow(b, Row{Kind: KindSpike, Cell: ev.Source, T: ev.T, Value: float64(ev.ID)})
	}
	if err := flush(); err != nil {
		fw.Close()
		return fmt.Errorf("write spikes: %w", err)
	}

	if err := fw.Close(); err != nil {
		return fmt.Errorf("close arrow writer: %w", err)
	}
	return nil
}

func appendRow(b *array.RecordBuilder, r Row) {
	b.Field(0).(*array.StringBuilder).Append(r.Kind)
	b.Field(1).(*array.StringBuilder).Append(r.Cell)
	b.Field(2).(*array.Float64Builder).Append(r.T)
	b.Field(3).(*array.Float64Builder).Append(r.Value)
}

// ReadArrow reads every row of a file written by WriteArrow.
func ReadArrow(r ipc.ReadAtSeeker) ([]Row, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("open arrow reader: %w", err)
	}
	defer fr.Close()

	if !fr.Schema().Equal(exportSchema) {
		return nil, fmt.Errorf("unexpected schema: %s", fr.Schema())
	}

	var rows []Row
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("read batch %d: %w", i, err)
		}
		kinds := rec.Column(0).(*array.String)
		cells := rec.Column(1).(*array.String)
		ts := rec.Column(2).(*array.Float64)
		vals := rec.Column(3).(*array.Float64)
		for j := 0; j < int(rec.NumRows()); j++ {
			rows = append(rows, Row{
				Kind:  kinds.Value(j),
				Cell:  cells.Value(j),
				T:     ts.Value(j),
				Value: vals.Value(j),
			})
		}
	}
	return rows, nil
}
