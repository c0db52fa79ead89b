// Package archive stores point values in an embedded sqlite database:
// the framework's local history store, fed by the outstation update
// queue or by the processor, and queryable by point and time range.
package archive

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"rvpf/internal/point"
	"rvpf/internal/value"
)

const schema = `
CREATE TABLE IF NOT EXISTS point_values (
	point_uuid TEXT NOT NULL,
	stamp      INTEGER NOT NULL,
	state      TEXT,
	kind       TEXT NOT NULL,
	value      TEXT,
	PRIMARY KEY (point_uuid, stamp)
);
CREATE INDEX IF NOT EXISTS point_values_stamp ON point_values (stamp);
`

// Store is a sqlite-backed point-value archive.
type Store struct {
	db *sql.DB
}

// Open opens (and initializes) the archive at path. ":memory:" works for
// tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open archive")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialize archive")
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces one observation.
func (s *Store) Put(pv *point.Value) error {
	if pv.Point == nil {
		return errors.New("archive: point value without a point")
	}
	kind, text := encodeValue(pv.Value)
	var state any
	if pv.State != nil {
		state = pv.State.Name
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO point_values (point_uuid, stamp, state, kind, value)
		 VALUES (?, ?, ?, ?, ?)`,
		pv.Point.UUID.String(), pv.Stamp.UnixNano(), state, kind, text)
	return errors.Wrap(err, "archive put")
}

// Latest returns the most recent observation of a point, or nil when
// none is stored.
func (s *Store) Latest(p *point.Point) (*point.Value, error) {
	row := s.db.QueryRow(
		`SELECT stamp, state, kind, value FROM point_values
		 WHERE point_uuid = ? ORDER BY stamp DESC LIMIT 1`,
		p.UUID.String())
	pv, err := scanValue(p, row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return pv, err
}

// Query returns the observations of a point within [from, to], in stamp
// order.
func (s *Store) Query(p *point.Point, from, to time.Time) ([]*point.Value, error) {
	rows, err := s.db.Query(
		`SELECT stamp, state, kind, value FROM point_values
		 WHERE point_uuid = ? AND stamp BETWEEN ? AND ? ORDER BY stamp`,
		p.UUID.String(), from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, errors.Wrap(err, "archive query")
	}
	defer rows.Close()
	var values []*point.Value
	for rows.Next() {
		pv, err := scanValue(p, rows.Scan)
		if err != nil {
			return nil, err
		}
		values = append(values, pv)
	}
	return values, errors.Wrap(rows.Err(), "archive query")
}

// Count reports the number of stored observations.
func (s *Store) Count() (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM point_values`).Scan(&count)
	return count, errors.Wrap(err, "archive count")
}

func scanValue(p *point.Point, scan func(...any) error) (*point.Value, error) {
	var stamp int64
	var state sql.NullString
	var kind string
	var text sql.NullString
	if err := scan(&stamp, &state, &kind, &text); err != nil {
		return nil, err
	}
	pv := &point.Value{Point: p, Stamp: time.Unix(0, stamp)}
	if state.Valid {
		pv.State = &value.State{Name: state.String}
	}
	pv.Value = decodeValue(kind, text)
	return pv, nil
}

// encodeValue flattens a runtime value to (kind, text). Containers and
// exotic kinds are stored by their text rendering.
func encodeValue(v value.Value) (string, any) {
	if value.IsNull(v) {
		return value.KindNull.String(), nil
	}
	return v.Kind().String(), v.String()
}

// decodeValue rebuilds the scalar kinds; anything else comes back as its
// stored text.
func decodeValue(kind string, text sql.NullString) value.Value {
	if !text.Valid {
		return value.Null{}
	}
	switch kind {
	case value.KindBool.String():
		b, err := strconv.ParseBool(text.String)
		if err == nil {
			return value.Bool(b)
		}
	case value.KindLong.String():
		i, err := strconv.ParseInt(text.String, 10, 64)
		if err == nil {
			return value.Long(i)
		}
	case value.KindDouble.String():
		f, err := strconv.ParseFloat(text.String, 64)
		if err == nil {
			return value.Double(f)
		}
	case value.KindNull.String():
		return value.Null{}
	}
	return value.String(text.String)
}

// UUIDOf parses a point UUID, for the CLI query path.
func UUIDOf(text string) (uuid.UUID, error) {
	return uuid.Parse(text)
}
