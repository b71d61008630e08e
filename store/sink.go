package store

import (
	"database/sql"
	"encoding/csv"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/LdDl/mot3d-go/mot"
)

// RowSink receives rows in the order they should be persisted.
type RowSink[T any] interface {
	WriteRow(row T) error
	// Flush pushes buffered rows to storage
	Flush() error
	// Close flushes and releases the underlying storage
	Close() error
}

// CSVSink writes rows as CSV records. The header is written on creation.
type CSVSink[T any] struct {
	w      *csv.Writer
	codec  CSVCodec[T]
	closer io.Closer
}

// NewCSVSink creates new CSVSink writing to w. Closing the sink closes w.
func NewCSVSink[T any](w io.WriteCloser, codec CSVCodec[T]) (*CSVSink[T], error) {
	sink := &CSVSink[T]{
		w:      csv.NewWriter(w),
		codec:  codec,
		closer: w,
	}
	if err := sink.w.Write(codec.Header); err != nil {
		return nil, errors.Wrap(err, "can't write header")
	}
	return sink, nil
}

// WriteRow implements RowSink
func (s *CSVSink[T]) WriteRow(row T) error {
	return s.w.Write(s.codec.Record(row))
}

// Flush implements RowSink
func (s *CSVSink[T]) Flush() error {
	s.w.Flush()
	return s.w.Error()
}

// Close implements RowSink
func (s *CSVSink[T]) Close() error {
	flushErr := s.Flush()
	closeErr := s.closer.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// CreateCSV creates the file at path and returns a sink writing to it.
func CreateCSV[T any](path string, codec CSVCodec[T]) (*CSVSink[T], error) {
	fd, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create %s", path)
	}
	sink, err := NewCSVSink(fd, codec)
	if err != nil {
		fd.Close()
		return nil, err
	}
	return sink, nil
}

// gzipFile closes gzip stream and then the file beneath it
type gzipFile struct {
	*gzip.Writer
	fd *os.File
}

func (g *gzipFile) Close() error {
	gzErr := g.Writer.Close()
	fdErr := g.fd.Close()
	if gzErr != nil {
		return gzErr
	}
	return fdErr
}

// CreateCSVGzip creates the gzip compressed file at path and returns a sink writing to it.
func CreateCSVGzip[T any](path string, codec CSVCodec[T]) (*CSVSink[T], error) {
	fd, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create %s", path)
	}
	gz := &gzipFile{Writer: gzip.NewWriter(fd), fd: fd}
	sink, err := NewCSVSink[T](gz, codec)
	if err != nil {
		gz.Close()
		return nil, err
	}
	return sink, nil
}

// NewCSVEstimateSink writes estimates as CSV to w.
func NewCSVEstimateSink(w io.WriteCloser) (*CSVSink[mot.KalmanEstimatesRow], error) {
	return NewCSVSink(w, EstimatesCodec)
}

// SQLiteEstimateSink stores estimates in the kalman_estimates table of a SQLite database.
// Rows are inserted in a transaction which is committed on every Flush.
type SQLiteEstimateSink struct {
	db   *sql.DB
	tx   *sql.Tx
	stmt *sql.Stmt
}

const createEstimatesTable = `
	CREATE TABLE IF NOT EXISTS kalman_estimates (
		obj_id     INTEGER NOT NULL,
		frame      INTEGER NOT NULL,
		timestamp  DOUBLE,
		x          DOUBLE,
		y          DOUBLE,
		z          DOUBLE,
		xvel       DOUBLE,
		yvel       DOUBLE,
		zvel       DOUBLE,
		P00        DOUBLE,
		P01        DOUBLE,
		P02        DOUBLE,
		P11        DOUBLE,
		P12        DOUBLE,
		P22        DOUBLE,
		P33        DOUBLE,
		P44        DOUBLE,
		P55        DOUBLE
	);
	CREATE INDEX IF NOT EXISTS idx_kalman_estimates_frame ON kalman_estimates(frame);
`

const insertEstimate = `INSERT INTO kalman_estimates
	(obj_id, frame, timestamp, x, y, z, xvel, yvel, zvel, P00, P01, P02, P11, P12, P22, P33, P44, P55)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// NewSQLiteEstimateSink opens (creating if needed) the database at path.
func NewSQLiteEstimateSink(path string) (*SQLiteEstimateSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "can't open sqlite database")
	}
	if _, err := db.Exec(createEstimatesTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "can't create estimates table")
	}
	sink := &SQLiteEstimateSink{db: db}
	if err := sink.begin(); err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *SQLiteEstimateSink) begin() error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "can't begin transaction")
	}
	stmt, err := tx.Prepare(insertEstimate)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "can't prepare insert")
	}
	s.tx = tx
	s.stmt = stmt
	return nil
}

func (s *SQLiteEstimateSink) commit() error {
	if s.tx == nil {
		return nil
	}
	s.stmt.Close()
	err := s.tx.Commit()
	s.tx = nil
	s.stmt = nil
	if err != nil {
		return errors.Wrap(err, "can't commit estimates")
	}
	return nil
}

// WriteRow implements RowSink
func (s *SQLiteEstimateSink) WriteRow(r mot.KalmanEstimatesRow) error {
	if s.tx == nil {
		if err := s.begin(); err != nil {
			return err
		}
	}
	var ts any
	if !r.Timestamp.IsZero() {
		ts = float64(r.Timestamp.UnixNano()) / 1e9
	}
	_, err := s.stmt.Exec(
		int64(r.ObjID), int64(r.Frame), ts,
		r.X, r.Y, r.Z, r.XVel, r.YVel, r.ZVel,
		r.P00, r.P01, r.P02, r.P11, r.P12, r.P22, r.P33, r.P44, r.P55,
	)
	if err != nil {
		return errors.Wrapf(err, "can't insert estimate of object %d at frame %d", r.ObjID, r.Frame)
	}
	return nil
}

// Flush implements RowSink
func (s *SQLiteEstimateSink) Flush() error {
	return s.commit()
}

// Close implements RowSink
func (s *SQLiteEstimateSink) Close() error {
	commitErr := s.commit()
	closeErr := s.db.Close()
	if commitErr != nil {
		return commitErr
	}
	return closeErr
}
