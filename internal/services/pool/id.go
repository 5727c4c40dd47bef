package pool

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"LiqPool/internal/domain/models"
)

const idHashWidth = 12

// PoolID derives the pool id from (resolution, whole-second creation time,
// top, bottom). The hash input is a fixed-width big-endian layout of those
// values, so the id is identical across runs and platforms.
func PoolID(res models.Resolution, createdAt time.Time, top, bottom float64) string {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(int64(res.Minutes())))
	binary.BigEndian.PutUint64(buf[8:16], uint64(createdAt.Unix()))
	binary.BigEndian.PutUint64(buf[16:24], math.Float64bits(top))
	binary.BigEndian.PutUint64(buf[24:32], math.Float64bits(bottom))
	sum := fmt.Sprintf("%016x", xxhash.Sum64(buf[:]))
	return fmt.Sprintf("%s_%s_%s", res, createdAt.UTC().Format("20060102T150405Z"), sum[:idHashWidth])
}
