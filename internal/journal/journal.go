// Package journal persists a batch run's resume point and failure list in
// Redis under two keys, "cursor:<id>" and "fail_list:<id>", adapted from
// the teacher's redis.go. The cursor is a (zoom, x column) pair; failures
// are recorded per zoom/x/y tile.
package journal

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gomodule/redigo/redis"
	"github.com/sirupsen/logrus"
)

// Journal tracks resume state for one batch job ID against a Redis pool.
// A nil *Journal is valid and turns every method into a no-op, so batch
// runs that don't configure Redis skip journaling entirely.
type Journal struct {
	pool *redis.Pool
	id   string
	log  logrus.FieldLogger
}

// New builds a Journal backed by pool for job id. Passing a nil pool
// yields a Journal whose methods are no-ops.
func New(pool *redis.Pool, id string, log logrus.FieldLogger) *Journal {
	if pool == nil {
		return nil
	}
	return &Journal{pool: pool, id: id, log: log}
}

// FailedTile names one tile that could not be rendered, the generalized
// form of the teacher's ErrTile.
type FailedTile struct {
	Z      int    `json:"z"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Reason string `json:"reason"`
}

func (j *Journal) conn() redis.Conn {
	return j.pool.Get()
}

func (j *Journal) closeConn(conn redis.Conn) {
	if err := conn.Close(); err != nil {
		j.log.WithError(err).Warn("journal: redis connection close failed")
	}
}

// Clean deletes this job's cursor and failure lists, for a fresh run.
func (j *Journal) Clean() {
	if j == nil {
		return
	}
	conn := j.conn()
	defer j.closeConn(conn)
	_, _ = conn.Do("del", "cursor:"+j.id)
	_, _ = conn.Do("del", "fail_list:"+j.id)
}

// Cursor returns the last saved (zoom, x) resume point, or (-1, -1) if
// none is recorded.
func (j *Journal) Cursor() (zoom, x int) {
	if j == nil {
		return -1, -1
	}
	conn := j.conn()
	defer j.closeConn(conn)
	reply, err := redis.String(conn.Do("get", "cursor:"+j.id))
	if err != nil {
		return -1, -1
	}
	parts := strings.Split(reply, ":")
	if len(parts) != 2 {
		return -1, -1
	}
	z, err1 := strconv.Atoi(parts[0])
	c, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return -1, -1
	}
	return z, c
}

// SaveCursor records the current (zoom, x) resume point.
func (j *Journal) SaveCursor(zoom, x int) {
	if j == nil {
		return
	}
	conn := j.conn()
	defer j.closeConn(conn)
	if _, err := conn.Do("set", "cursor:"+j.id, strconv.Itoa(zoom)+":"+strconv.Itoa(x)); err != nil {
		j.log.WithError(err).Error("journal: save cursor failed")
	}
}

// RecordFailure adds a tile to the job's failure list, keyed so a retry
// pass can find and clear it.
func (j *Journal) RecordFailure(t FailedTile) {
	if j == nil {
		return
	}
	conn := j.conn()
	defer j.closeConn(conn)
	key := "tile_" + strconv.Itoa(t.Z) + "_" + strconv.Itoa(t.X) + "_" + strconv.Itoa(t.Y)
	val, _ := json.Marshal(t)
	if _, err := conn.Do("hset", "fail_list:"+j.id, key, val); err != nil {
		j.log.WithError(err).Error("journal: record failure failed")
	}
}

// ClearFailure removes a tile from the failure list once it succeeds.
func (j *Journal) ClearFailure(z, x, y int) {
	if j == nil {
		return
	}
	conn := j.conn()
	defer j.closeConn(conn)
	key := "tile_" + strconv.Itoa(z) + "_" + strconv.Itoa(x) + "_" + strconv.Itoa(y)
	_, _ = conn.Do("hdel", "fail_list:"+j.id, key)
}

// Failures lists every tile currently recorded as failed.
func (j *Journal) Failures() []FailedTile {
	if j == nil {
		return nil
	}
	conn := j.conn()
	defer j.closeConn(conn)
	all, err := redis.StringMap(conn.Do("hgetall", "fail_list:"+j.id))
	if err != nil {
		return nil
	}
	out := make([]FailedTile, 0, len(all))
	for _, v := range all {
		var ft FailedTile
		if err := json.Unmarshal([]byte(v), &ft); err != nil {
			continue
		}
		out = append(out, ft)
	}
	return out
}
