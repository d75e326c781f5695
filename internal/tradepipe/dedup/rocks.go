package dedup

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tecbot/gorocksdb"
)

// Rocks is a persistent deduper: seen hashes survive restarts, so a
// backfill re-run over an already ingested range costs no classifier calls.
// Entries carry a TTL and are evicted bucket by bucket to bound work.
type Rocks struct {
	db *gorocksdb.DB
	ro *gorocksdb.ReadOptions
	wo *gorocksdb.WriteOptions

	ttl       time.Duration
	bucketSec int64

	lastCleanedBucket int64
}

const (
	mainPrefix = "seen:"
	idxPrefix  = "exp:"
	metaKey    = "meta:last_clean_bucket"
)

func OpenRocks(path string, ttl time.Duration, bucketSec int64) (*Rocks, error) {
	if path == "" {
		return nil, errors.New("rocks path is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if bucketSec <= 0 {
		bucketSec = 3600
	}
	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.IncreaseParallelism(2)

	db, err := gorocksdb.OpenDb(opts, path)
	if err != nil {
		return nil, fmt.Errorf("open rocksdb %s: %w", path, err)
	}
	r := &Rocks{
		db:        db,
		ro:        gorocksdb.NewDefaultReadOptions(),
		wo:        gorocksdb.NewDefaultWriteOptions(),
		ttl:       ttl,
		bucketSec: bucketSec,
	}
	if err := r.loadLastCleanedBucket(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Rocks) Close() error {
	if r.ro != nil {
		r.ro.Destroy()
	}
	if r.wo != nil {
		r.wo.Destroy()
	}
	if r.db != nil {
		r.db.Close()
	}
	return nil
}

func normHash(hash string) ([]byte, error) {
	h := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hash), "0x"))
	if h == "" {
		return nil, errors.New("empty hash")
	}
	return []byte(h), nil
}

func mainKey(h []byte) []byte {
	return append([]byte(mainPrefix), h...)
}

func idxKey(bucket int64, h []byte) []byte {
	k := make([]byte, 0, len(idxPrefix)+8+1+len(h))
	k = append(k, idxPrefix...)
	k = binary.BigEndian.AppendUint64(k, uint64(bucket))
	k = append(k, ':')
	k = append(k, h...)
	return k
}

func idxKeyPrefix(bucket int64) []byte {
	k := make([]byte, 0, len(idxPrefix)+8)
	k = append(k, idxPrefix...)
	return binary.BigEndian.AppendUint64(k, uint64(bucket))
}

func encodeI64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func decodeI64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *Rocks) SeenOrAdd(hash string, now time.Time) (bool, error) {
	h, err := normHash(hash)
	if err != nil {
		return false, err
	}
	nowTs := now.Unix()
	expireTs := nowTs + int64(r.ttl/time.Second)
	mk := mainKey(h)

	val, err := r.db.Get(r.ro, mk)
	if err != nil {
		return false, err
	}
	if val.Exists() {
		exp := decodeI64(val.Data())
		val.Free()
		if exp >= nowTs {
			return true, nil
		}
	} else {
		val.Free()
	}

	bucket := expireTs / r.bucketSec
	wb := gorocksdb.NewWriteBatch()
	defer wb.Destroy()
	wb.Put(mk, encodeI64(expireTs))
	wb.Put(idxKey(bucket, h), encodeI64(expireTs))
	if err := r.db.Write(r.wo, wb); err != nil {
		return false, err
	}
	return false, nil
}

// evictTarget is the newest bucket eviction may touch at now; only buckets
// strictly older than the current one are eligible.
func evictTarget(now time.Time, bucketSec int64) int64 {
	return now.Unix()/bucketSec - 1
}

// Evict cleans eligible expiry buckets, progressing from where the previous
// call stopped.
func (r *Rocks) Evict(now time.Time) error {
	target := evictTarget(now, r.bucketSec)
	if target <= r.lastCleanedBucket {
		return nil
	}
	for b := r.lastCleanedBucket + 1; b <= target; b++ {
		if err := r.cleanBucket(b); err != nil {
			return err
		}
		r.lastCleanedBucket = b
		if err := r.saveLastCleanedBucket(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rocks) cleanBucket(bucket int64) error {
	prefix := idxKeyPrefix(bucket)
	it := r.db.NewIterator(r.ro)
	defer it.Close()

	wb := gorocksdb.NewWriteBatch()
	defer wb.Destroy()

	for it.Seek(prefix); it.Valid(); it.Next() {
		k := it.Key()
		if !bytes.HasPrefix(k.Data(), prefix) {
			k.Free()
			break
		}
		v := it.Value()
		expIdx := decodeI64(v.Data())

		keyData := make([]byte, len(k.Data()))
		copy(keyData, k.Data())
		wb.Delete(keyData)

		// idx key layout: "exp:" + bucket(8) + ":" + hash
		if hOff := len(idxPrefix) + 8 + 1; len(keyData) > hOff {
			h := keyData[hOff:]
			mk := mainKey(h)
			mv, err := r.db.Get(r.ro, mk)
			if err != nil {
				k.Free()
				v.Free()
				return err
			}
			// delete main only if it still carries this expiry; a refreshed
			// entry lives in a newer bucket and must survive
			if mv.Exists() && decodeI64(mv.Data()) == expIdx {
				wb.Delete(mk)
			}
			mv.Free()
		}
		k.Free()
		v.Free()

		if wb.Count() >= 5000 {
			if err := r.db.Write(r.wo, wb); err != nil {
				return err
			}
			wb.Clear()
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	if wb.Count() > 0 {
		return r.db.Write(r.wo, wb)
	}
	return nil
}

func (r *Rocks) loadLastCleanedBucket() error {
	val, err := r.db.Get(r.ro, []byte(metaKey))
	if err != nil {
		return err
	}
	defer val.Free()
	if val.Exists() {
		r.lastCleanedBucket = decodeI64(val.Data())
		return nil
	}
	// fresh database: nothing can be expired yet, so start the walk at the
	// current bucket instead of scanning every epoch bucket up to now
	r.lastCleanedBucket = evictTarget(time.Now(), r.bucketSec)
	return r.saveLastCleanedBucket()
}

func (r *Rocks) saveLastCleanedBucket() error {
	return r.db.Put(r.wo, []byte(metaKey), encodeI64(r.lastCleanedBucket))
}
