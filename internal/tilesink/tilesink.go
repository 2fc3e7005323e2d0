// Package tilesink writes rendered contour tiles to a destination: a
// z/x/y.mvt directory tree (grounded on the teacher's saveToFiles in
// utils.go) or a batched .mbtiles archive (grounded on SetupMBTileTables
// and saveToMBTile, also in utils.go/task.go), generalized from raster
// bytes to contour MVT bytes.
package tilesink

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// Sink accepts rendered tiles for one batch job.
type Sink interface {
	Save(z, x, y int, data []byte) error
	Close() error
}

// FileSink writes each tile to <root>/<z>/<x>/<y>.mvt.
type FileSink struct {
	Root string
}

func NewFileSink(root string) *FileSink { return &FileSink{Root: root} }

func (s *FileSink) Save(z, x, y int, data []byte) error {
	dir := filepath.Join(s.Root, strconv.Itoa(z), strconv.Itoa(x))
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}
	name := filepath.Join(dir, strconv.Itoa(y)+".mvt")
	return os.WriteFile(name, data, os.ModePerm)
}

func (s *FileSink) Close() error { return nil }

// MBTilesSink batches writes into a sqlite .mbtiles archive, flushing
// every batchSize tiles the way the teacher's savePipe/saveToMBTile do.
type MBTilesSink struct {
	db        *sql.DB
	batch     []tileRow
	batchSize int
}

type tileRow struct {
	z, x, y int
	data    []byte
}

// flipY converts an XYZ row to the TMS row convention .mbtiles uses.
func flipY(z, y int) int { return (1 << uint(z)) - y - 1 }

// OpenMBTilesSink creates (or reuses) a .mbtiles archive at path, with the
// same schema and connection pragmas as the teacher's
// SetupMBTileTables/optimizeConnection, and records metadata describing a
// contour layer instead of a raster basemap.
func OpenMBTilesSink(path string, meta map[string]string, batchSize int) (*MBTilesSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{"PRAGMA synchronous=1", "PRAGMA locking_mode=EXCLUSIVE", "PRAGMA journal_mode=OFF"} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, err
		}
	}
	if _, err := db.Exec("create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data blob);"); err != nil {
		return nil, err
	}
	if _, err := db.Exec("create table if not exists metadata (name text, value text);"); err != nil {
		return nil, err
	}
	_, _ = db.Exec("create unique index if not exists name on metadata (name);")
	_, _ = db.Exec("create unique index if not exists tile_index on tiles(zoom_level, tile_column, tile_row);")
	for name, value := range meta {
		if _, err := db.Exec("insert or ignore into metadata (name, value) values (?, ?)", name, value); err != nil {
			return nil, err
		}
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &MBTilesSink{db: db, batchSize: batchSize}, nil
}

func (s *MBTilesSink) Save(z, x, y int, data []byte) error {
	s.batch = append(s.batch, tileRow{z: z, x: x, y: y, data: data})
	if len(s.batch) >= s.batchSize {
		return s.flush()
	}
	return nil
}

func (s *MBTilesSink) flush() error {
	if len(s.batch) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt := "insert or ignore into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);"
	for _, row := range s.batch {
		if _, err := tx.Exec(stmt, row.z, row.x, flipY(row.z, row.y), row.data); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("tilesink: insert %d/%d/%d: %w", row.z, row.x, row.y, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.batch = s.batch[:0]
	return nil
}

func (s *MBTilesSink) Close() error {
	if err := s.flush(); err != nil {
		return err
	}
	return s.db.Close()
}
