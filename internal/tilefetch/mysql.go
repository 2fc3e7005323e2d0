package tilefetch

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"

	"github.com/csnight/contourtile/internal/pipelineerr"
)

// MySQLFetcher reads raster tiles out of a MySQL "tiles" table shaped
// like the teacher's SetupMysqlTables schema in task.go
// ("tiles (zoom_level, tile_column, tile_row, tile_data mediumblob)").
type MySQLFetcher struct {
	db *sql.DB
}

// OpenMySQLFetcher opens a MySQL connection pool sized the way
// SetupMysqlTables does (10 open, 10 idle).
func OpenMySQLFetcher(dsn string) (*MySQLFetcher, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, pipelineerr.NewFetchFailed("open mysql", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	return &MySQLFetcher{db: db}, nil
}

func (f *MySQLFetcher) Close() error { return f.db.Close() }

func (f *MySQLFetcher) Fetch(ctx context.Context, z, x, y int) (FetchResult, error) {
	row := f.db.QueryRowContext(ctx,
		"select tile_data from tiles where zoom_level = ? and tile_column = ? and tile_row = ?",
		z, x, y)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return FetchResult{}, pipelineerr.NewFetchFailed("tile not found", err)
		}
		return FetchResult{}, pipelineerr.NewFetchFailed("query tile", err)
	}
	return FetchResult{Bytes: data}, nil
}
