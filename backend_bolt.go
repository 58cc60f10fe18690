package beliefdb

import (
	"bytes"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	dataBucket = []byte("data")
	entsBucket = []byte("ents")

	entityMarker = []byte{1}
)

// BoltBackend is a durable Backend on top of Bolt. Records live in a single
// flat bucket keyed by Location key strings, so subslot listing is a cursor
// prefix scan; primitive entities live in their own bucket.
type BoltBackend struct {
	bdb *bbolt.DB
}

// BoltOptions tunes OpenBoltBackend.
type BoltOptions struct {
	// IsTesting trades durability for speed (NoSync, small initial mmap).
	IsTesting bool
	MmapSize  int
}

// OpenBoltBackend opens (creating if necessary) a Bolt-backed store file.
func OpenBoltBackend(path string, opt BoltOptions) (*BoltBackend, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 64
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("beliefdb: %w", err)
	}
	err = bdb.Update(func(btx *bbolt.Tx) error {
		if _, err := btx.CreateBucketIfNotExists(dataBucket); err != nil {
			return err
		}
		_, err := btx.CreateBucketIfNotExists(entsBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("beliefdb: %w", err)
	}
	return &BoltBackend{bdb: bdb}, nil
}

// Bolt exposes the underlying Bolt handle for maintenance tooling.
func (b *BoltBackend) Bolt() *bbolt.DB { return b.bdb }

func (b *BoltBackend) Get(loc Location) ([]Value, bool, error) {
	var vals []Value
	var found bool
	err := b.bdb.View(func(btx *bbolt.Tx) error {
		raw := btx.Bucket(dataBucket).Get([]byte(loc.Key()))
		if raw == nil {
			return nil
		}
		_, decoded, err := decodeRecord(loc.Key(), raw)
		if err != nil {
			return err
		}
		vals, found = decoded, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return vals, found, nil
}

func (b *BoltBackend) Put(loc Location, vals []Value) error {
	raw, err := encodeRecord(loc, vals)
	if err != nil {
		return err
	}
	return b.bdb.Update(func(btx *bbolt.Tx) error {
		if err := btx.Bucket(dataBucket).Put([]byte(loc.Key()), raw); err != nil {
			return err
		}
		return btx.Bucket(entsBucket).Put([]byte(loc.EntityName()), entityMarker)
	})
}

func (b *BoltBackend) Remove(loc Location) error {
	return b.bdb.Update(func(btx *bbolt.Tx) error {
		return btx.Bucket(dataBucket).Delete([]byte(loc.Key()))
	})
}

func (b *BoltBackend) ListSubslots(loc Location) ([]Element, error) {
	prefix := []byte(loc.Key() + "/")
	depth := loc.Len()
	var children []Element
	seen := make(map[string]bool)
	err := b.bdb.View(func(btx *bbolt.Tx) error {
		c := btx.Bucket(dataBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			recLoc, _, err := decodeRecord(string(k), v)
			if err != nil {
				return err
			}
			child := recLoc.At(depth)
			ck := child.String()
			if !seen[ck] {
				seen[ck] = true
				children = append(children, child)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

func (b *BoltBackend) AddEntity(name string) error {
	return b.bdb.Update(func(btx *bbolt.Tx) error {
		return btx.Bucket(entsBucket).Put([]byte(name), entityMarker)
	})
}

func (b *BoltBackend) RemoveEntity(name string) error {
	return b.bdb.Update(func(btx *bbolt.Tx) error {
		return btx.Bucket(entsBucket).Delete([]byte(name))
	})
}

func (b *BoltBackend) HasEntity(name string) (bool, error) {
	var found bool
	err := b.bdb.View(func(btx *bbolt.Tx) error {
		found = btx.Bucket(entsBucket).Get([]byte(name)) != nil
		return nil
	})
	return found, err
}

func (b *BoltBackend) Entities(fn func(name string) error) error {
	return b.bdb.View(func(btx *bbolt.Tx) error {
		c := btx.Bucket(entsBucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := fn(string(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltBackend) Flush() error {
	return b.bdb.Sync()
}

func (b *BoltBackend) Close() error {
	return b.bdb.Close()
}
