package volume

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coocood/freecache"

	"github.com/kuan-lab/kns/kns"
	"github.com/kuan-lab/kns/storage"
)

// ErrBlockNotFound is returned when a referenced block has no completed
// segmentation output.  Callers scanning overlaps treat this as boundary
// semantics rather than a failure.
var ErrBlockNotFound = errors.New("block not found")

// DefaultCacheSize is the default block read cache size in bytes.
const DefaultCacheSize = 512 * kns.Mega

// BlockStore is a read-only view over per-block segmentation outputs produced
// by the external segmentation step.  Block label data lives in files on
// disk; block metadata lives in the key-value store.  Blocks may arrive in
// any order and the store never assumes all blocks exist.
type BlockStore struct {
	db    storage.KeyValueDB
	cache *freecache.Cache
}

// NewBlockStore returns a block store using the given metadata store and a
// read cache of cacheBytes for repeated overlap reads of the same block.
func NewBlockStore(db storage.KeyValueDB, cacheBytes int) *BlockStore {
	if cacheBytes <= 0 {
		cacheBytes = DefaultCacheSize
	}
	return &BlockStore{
		db:    db,
		cache: freecache.NewCache(cacheBytes),
	}
}

// DB returns the underlying metadata store.
func (s *BlockStore) DB() storage.KeyValueDB {
	return s.db
}

// GetMeta returns the metadata for the given block index or ErrBlockNotFound
// if the block has not completed segmentation.
func (s *BlockStore) GetMeta(index int) (BlockMeta, error) {
	meta, err := GetBlockMeta(s.db, index)
	if err != nil {
		return BlockMeta{}, err
	}
	if !meta.Done {
		return BlockMeta{}, fmt.Errorf("block %d not done: %w", index, ErrBlockNotFound)
	}
	return meta, nil
}

// GetBlock returns the label volume for the given block index, reading
// through the cache.  Returns ErrBlockNotFound if the block is absent or its
// segmentation has not completed.
func (s *BlockStore) GetBlock(index int) (*Labels, error) {
	meta, err := s.GetMeta(index)
	if err != nil {
		return nil, err
	}

	cacheKey := []byte(fmt.Sprintf("block:%08d", index))
	if cached, err := s.cache.Get(cacheKey); err == nil {
		labels := &Labels{Bounds: meta.Bounds}
		if err := labels.UnmarshalBinary(cached); err == nil {
			return labels, nil
		}
		// Bad cache entry falls through to a disk read.
	}

	serialization, err := os.ReadFile(meta.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("block %d data missing at %s: %w", index, meta.Path, ErrBlockNotFound)
		}
		return nil, fmt.Errorf("can't read block %d at %s: %v", index, meta.Path, err)
	}
	data, _, err := kns.DeserializeData(serialization, true)
	if err != nil {
		return nil, fmt.Errorf("can't deserialize block %d at %s: %v", index, meta.Path, err)
	}
	labels := &Labels{Bounds: meta.Bounds}
	if err := labels.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("bad label data for block %d: %v", index, err)
	}

	// Best effort: oversized entries are simply not cached.
	s.cache.Set(cacheKey, data, 0)

	return labels, nil
}

// ReadOverlap returns the labels of the given block restricted to the passed
// box, typically the intersection with a neighboring block.
func (s *BlockStore) ReadOverlap(index int, box kns.Box3d) (*Labels, error) {
	labels, err := s.GetBlock(index)
	if err != nil {
		return nil, err
	}
	return labels.Extract(box)
}

// WriteBlock persists a block's label volume to the given path and records
// its metadata with Done set.  This is the write half of the file contract
// with the external segmentation step; the merge pipeline itself only reads.
func (s *BlockStore) WriteBlock(index int, path string, labels *Labels) error {
	data, err := labels.MarshalBinary()
	if err != nil {
		return err
	}
	serialization, err := kns.SerializeData(data, kns.Snappy, kns.CRC32)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, serialization, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return PutBlockMeta(s.db, BlockMeta{
		Index:    index,
		Bounds:   labels.Bounds,
		Path:     path,
		Done:     true,
		MaxLabel: labels.MaxLabel(),
	})
}
