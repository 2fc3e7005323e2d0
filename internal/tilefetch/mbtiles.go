package tilefetch

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/csnight/contourtile/internal/pipelineerr"
)

// MBTilesFetcher reads raster tiles out of an .mbtiles archive, the same
// sqlite schema the teacher writes in task.go's SetupMBTileTables
// ("tiles (zoom_level, tile_column, tile_row, tile_data)"), including
// its tms-style flipped Y row convention from tile.go's flipY.
type MBTilesFetcher struct {
	db *sql.DB
}

// OpenMBTilesFetcher opens an existing .mbtiles file read-only.
func OpenMBTilesFetcher(path string) (*MBTilesFetcher, error) {
	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return nil, pipelineerr.NewFetchFailed("open mbtiles", err)
	}
	return &MBTilesFetcher{db: db}, nil
}

func (f *MBTilesFetcher) Close() error { return f.db.Close() }

func flipY(z, y int) int { return (1 << uint(z)) - y - 1 }

func (f *MBTilesFetcher) Fetch(ctx context.Context, z, x, y int) (FetchResult, error) {
	row := f.db.QueryRowContext(ctx,
		"select tile_data from tiles where zoom_level = ? and tile_column = ? and tile_row = ?",
		z, x, flipY(z, y))
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return FetchResult{}, pipelineerr.NewFetchFailed("tile not found", err)
		}
		return FetchResult{}, pipelineerr.NewFetchFailed("query tile", err)
	}
	return FetchResult{Bytes: data}, nil
}
