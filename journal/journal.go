// package journal records control operations in an SQLite database.
package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"crashsdr.org/dma"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
)

// DefaultBatch is the number of entries buffered before they are
// written.
const DefaultBatch = 64

const schema = `
CREATE TABLE IF NOT EXISTS operations (
	id      TEXT PRIMARY KEY,
	run     TEXT NOT NULL,
	op      INTEGER NOT NULL,
	name    TEXT NOT NULL,
	arg     INTEGER NOT NULL,
	value   INTEGER NOT NULL,
	error   TEXT,
	started INTEGER NOT NULL,
	ended   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS operations_run ON operations (run, started);
`

// Journal is a dma.Recorder storing entries in batches.
type Journal struct {
	// Run identifies the entries of this journal among those of
	// earlier runs sharing the database.
	Run   string
	Batch int

	mu      sync.Mutex
	db      *sql.DB
	pending []dma.Entry
	err     error
}

var _ dma.Recorder = (*Journal)(nil)

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: %s: %w", path, err)
	}
	return &Journal{
		Run:   xid.New().String(),
		Batch: DefaultBatch,
		db:    db,
	}, nil
}

// Record buffers e. Write errors are reported by Flush and Close.
func (j *Journal) Record(e dma.Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = append(j.pending, e)
	if len(j.pending) >= j.Batch {
		j.flush()
	}
}

// Flush writes the buffered entries.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.flush()
	err := j.err
	j.err = nil
	return err
}

func (j *Journal) flush() {
	if len(j.pending) == 0 {
		return
	}
	if err := j.write(j.pending); err != nil && j.err == nil {
		j.err = err
	}
	j.pending = nil
}

func (j *Journal) write(entries []dma.Entry) (err error) {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	stmt, err := tx.Prepare(`INSERT INTO operations
		(id, run, op, name, arg, value, error, started, ended)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		var msg sql.NullString
		if e.Err != nil {
			msg = sql.NullString{String: e.Err.Error(), Valid: true}
		}
		_, err := stmt.Exec(xid.New().String(), j.Run, uint32(e.Op), e.Op.String(),
			e.Arg, e.Value, msg, e.Start.UnixNano(), e.End.UnixNano())
		if err != nil {
			return fmt.Errorf("journal: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

// Record is a stored operation.
type Record struct {
	ID    string
	Run   string
	Op    dma.Op
	Arg   uint32
	Value uint32
	Err   string
	Start time.Time
	End   time.Time
}

// Entries returns the stored operations of run in order, after
// flushing buffered entries.
func (j *Journal) Entries(run string) ([]Record, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}
	rows, err := j.db.Query(`SELECT id, run, op, arg, value, error, started, ended
		FROM operations WHERE run = ? ORDER BY started, id`, run)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		var (
			r          Record
			op         uint32
			msg        sql.NullString
			start, end int64
		)
		if err := rows.Scan(&r.ID, &r.Run, &op, &r.Arg, &r.Value, &msg, &start, &end); err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		r.Op = dma.Op(op)
		r.Err = msg.String
		r.Start = time.Unix(0, start)
		r.End = time.Unix(0, end)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return recs, nil
}

// Close flushes the journal and closes the database.
func (j *Journal) Close() error {
	ferr := j.Flush()
	err := j.db.Close()
	if ferr != nil {
		return ferr
	}
	return err
}
