package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"crashsdr.org/dma"
)

func TestJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.db")
	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	j.Batch = 2
	start := time.Unix(1700000000, 0)
	entries := []dma.Entry{
		{Op: dma.OpReset, Start: start, End: start.Add(time.Millisecond)},
		{Op: dma.OpDMAWrite, Arg: 0x00800010, Start: start.Add(time.Second), End: start.Add(2 * time.Second)},
		{Op: dma.OpDMARead, Arg: 16, Err: dma.ErrTimeout, Start: start.Add(3 * time.Second), End: start.Add(4 * time.Second)},
	}
	for _, e := range entries {
		j.Record(e)
	}
	run := j.Run
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	j, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	if j.Run == run {
		t.Error("runs share an ID")
	}
	recs, err := j.Entries(run)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != len(entries) {
		t.Fatalf("%d records, want %d", len(recs), len(entries))
	}
	for i, r := range recs {
		e := entries[i]
		if r.Op != e.Op || r.Arg != e.Arg || !r.Start.Equal(e.Start) || !r.End.Equal(e.End) {
			t.Errorf("record %d: %+v, want %+v", i, r, e)
		}
	}
	if recs[2].Err != dma.ErrTimeout.Error() || recs[0].Err != "" {
		t.Errorf("errors %q, %q", recs[0].Err, recs[2].Err)
	}
	if others, err := j.Entries(j.Run); err != nil || len(others) != 0 {
		t.Errorf("new run has records %v, %v", others, err)
	}
}

func TestUnknownOp(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	j.Record(dma.Entry{Op: dma.Op(1), Err: errors.New("x")})
	if err := j.Flush(); err != nil {
		t.Fatal(err)
	}
	recs, err := j.Entries(j.Run)
	if err != nil || len(recs) != 1 || recs[0].Op.String() != "op(0x1)" {
		t.Errorf("got %+v, %v", recs, err)
	}
}
