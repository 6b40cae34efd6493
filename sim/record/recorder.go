// Package record persists simulation output to a SQLite database so
// runs can be inspected and compared with ordinary SQL tooling.
package record

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"

	// SQLite driver, registered for database/sql.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/tsc-sim/tsc-sim/sim"
)

// Recorder is a backend that stores rows of simulation output.
type Recorder interface {
	// CreateTable creates a table whose columns mirror the field names
	// of sampleEntry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers one entry of the table's struct type.
	InsertData(tableName string, entry any)

	// ListTables returns the names of all created tables.
	ListTables() []string

	// Flush writes all buffered entries to the database.
	Flush()
}

// New creates a Recorder writing to path; ".sqlite3" is appended when
// missing, and an empty path generates a unique name. The database is
// flushed at process exit.
func New(path string) Recorder {
	w := &sqliteWriter{
		dbName:    path,
		batchSize: 100000,
		tables:    make(map[string]*table),
	}

	w.init()

	atexit.Register(func() { w.Flush() })

	return w
}

// NewWithDB creates a Recorder on an existing database handle.
func NewWithDB(db *sql.DB) Recorder {
	w := &sqliteWriter{
		DB:        db,
		batchSize: 100000,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() { w.Flush() })

	return w
}

// SampleEntry is the samples table schema, one row per simulation step.
// SQLite stores 64-bit integers signed, so counters are recorded as
// int64.
type SampleEntry struct {
	Segment  int64
	Time     int64
	GuestTSC int64
	HostTSC  int64
}

// SegmentEntry is the segments table schema, one row per host segment
// with the raw fixed point ratio that was active during it.
type SegmentEntry struct {
	Idx             int64
	StartTime       int64
	StartHostTSC    int64
	HostFrequencyHz int64
	RatioRaw        int64
}

// RecordRun writes a completed run: every emitted row into samples and
// the per-segment metadata into segments.
func RecordRun(rec Recorder, s *sim.Simulator, rows []sim.SampleRow) error {
	rec.CreateTable("samples", SampleEntry{})
	rec.CreateTable("segments", SegmentEntry{})

	for _, r := range rows {
		rec.InsertData("samples", SampleEntry{
			Segment:  int64(r.Segment),
			Time:     int64(r.Time),
			GuestTSC: int64(r.GuestTSC),
			HostTSC:  int64(r.HostTSC),
		})
	}

	tl := s.Timeline()
	for i := 0; i < tl.Len(); i++ {
		seg := tl.Segment(i)
		ratio, err := s.SegmentRatio(i)
		if err != nil {
			return fmt.Errorf("segment %d ratio: %w", i, err)
		}
		rec.InsertData("segments", SegmentEntry{
			Idx:             int64(i),
			StartTime:       int64(seg.StartTime),
			StartHostTSC:    int64(seg.StartHostTSC),
			HostFrequencyHz: int64(seg.HostFrequencyHz),
			RatioRaw:        int64(ratio.RawValue),
		})
	}

	rec.Flush()

	return nil
}

type table struct {
	structType reflect.Type
	entries    []any
}

// sqliteWriter buffers entries per table and writes them in batched
// transactions.
type sqliteWriter struct {
	*sql.DB
	statement *sql.Stmt

	dbName     string
	tables     map[string]*table
	batchSize  int
	entryCount int
}

// init establishes the database connection, refusing to clobber an
// existing file.
func (w *sqliteWriter) init() {
	if w.dbName == "" {
		w.dbName = "tsc_sim_run_" + xid.New().String()
	}

	filename := w.dbName
	if !strings.HasSuffix(filename, ".sqlite3") {
		filename += ".sqlite3"
	}

	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	fmt.Fprintf(os.Stderr, "Recording simulation to %s\n", filename)

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	w.DB = db
}

func (w *sqliteWriter) isAllowedType(kind reflect.Kind) bool {
	switch kind {
	case
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Float32,
		reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func (w *sqliteWriter) checkStructFields(entry any) error {
	types := reflect.TypeOf(entry)

	for i := 0; i < types.NumField(); i++ {
		field := types.Field(i)

		fieldKind := field.Type.Kind()
		if !w.isAllowedType(fieldKind) {
			return errors.New("entry field type cannot be stored")
		}
	}

	return nil
}

func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) {
	err := w.checkStructFields(sampleEntry)
	if err != nil {
		panic(err)
	}

	n := structs.Names(sampleEntry)
	fields := strings.Join(n, ", \n\t")

	createTableSQL := `CREATE TABLE ` + tableName +
		` (` + "\n\t" + fields + "\n" + `);`
	w.mustExecute(createTableSQL)

	w.tables[tableName] = &table{
		structType: reflect.TypeOf(sampleEntry),
		entries:    []any{},
	}
}

func (w *sqliteWriter) InsertData(tableName string, entry any) {
	tbl, exists := w.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	tbl.entries = append(tbl.entries, entry)

	w.entryCount++
	if w.entryCount >= w.batchSize {
		w.Flush()
	}
}

func (w *sqliteWriter) ListTables() []string {
	tables := make([]string, 0, len(w.tables))
	for name := range w.tables {
		tables = append(tables, name)
	}

	return tables
}

func (w *sqliteWriter) Flush() {
	if w.entryCount == 0 {
		return
	}

	w.mustExecute("BEGIN TRANSACTION")
	defer w.mustExecute("COMMIT TRANSACTION")

	for tableName, tbl := range w.tables {
		if len(tbl.entries) == 0 {
			continue
		}

		w.prepareStatement(tableName, tbl.entries[0])

		for _, entry := range tbl.entries {
			v := []any{}

			values := reflect.ValueOf(entry)
			for i := 0; i < values.NumField(); i++ {
				v = append(v, values.Field(i).Interface())
			}

			_, err := w.statement.Exec(v...)
			if err != nil {
				panic(err)
			}
		}

		tbl.entries = nil

		w.statement.Close()
		w.statement = nil
	}

	w.entryCount = 0
}

func (w *sqliteWriter) mustExecute(query string) sql.Result {
	res, err := w.Exec(query)
	if err != nil {
		fmt.Printf("Failed to execute: %s\n", query)
		panic(err)
	}

	return res
}

func (w *sqliteWriter) prepareStatement(tableName string, entry any) {
	n := structs.Names(entry)
	for i := 0; i < len(n); i++ {
		n[i] = "?"
	}

	entryToFill := "(" + strings.Join(n, ", ") + ")"
	sqlStr := "INSERT INTO " + tableName + " VALUES " + entryToFill

	stmt, err := w.Prepare(sqlStr)
	if err != nil {
		panic(err)
	}

	w.statement = stmt
}
