package volume

import (
	"fmt"
	"sort"

	"github.com/kuan-lab/kns/kns"
	"github.com/kuan-lab/kns/storage"
)

// metaKeyPrefix namespaces block metadata entries in the key-value store.
const metaKeyPrefix = "meta:block:"

// BlockMeta describes one block of the segmentation grid: its position in the
// volume, where its label data lives, and whether the external segmentation
// step has finished it.  Workers append these to the index as they complete;
// the merge pipeline treats them as immutable once Done is set.
type BlockMeta struct {
	// Index is the block's position in the deterministic grid ordering.
	Index int

	// Bounds is the block's bounding box including any overlap margin.
	Bounds kns.Box3d

	// Path is the file holding the block's serialized label data.
	Path string

	// Done is set once the segmentation output at Path is complete.
	Done bool

	// MaxLabel is the largest local label in the block's segmentation.
	MaxLabel uint64
}

func metaKey(index int) []byte {
	return []byte(fmt.Sprintf("%s%08d", metaKeyPrefix, index))
}

// PutBlockMeta persists metadata for a single block, overwriting any previous
// entry for that block index.
func PutBlockMeta(db storage.KeyValueDB, meta BlockMeta) error {
	serialization, err := kns.Serialize(meta, kns.Snappy, kns.CRC32)
	if err != nil {
		return fmt.Errorf("can't serialize metadata for block %d: %v", meta.Index, err)
	}
	return db.Put(metaKey(meta.Index), serialization)
}

// GetBlockMeta returns metadata for a single block.  Returns ErrBlockNotFound
// if no entry exists for the index.
func GetBlockMeta(db storage.KeyValueDB, index int) (BlockMeta, error) {
	v, err := db.Get(metaKey(index))
	if err != nil {
		return BlockMeta{}, err
	}
	if v == nil {
		return BlockMeta{}, fmt.Errorf("block %d: %w", index, ErrBlockNotFound)
	}
	var meta BlockMeta
	if err := kns.Deserialize(v, &meta); err != nil {
		return BlockMeta{}, fmt.Errorf("can't deserialize metadata for block %d: %v", index, err)
	}
	return meta, nil
}

// DeleteBlockMeta removes the metadata entry for a block.
func DeleteBlockMeta(db storage.KeyValueDB, index int) error {
	return db.Delete(metaKey(index))
}

// LoadIndex returns all block metadata sorted by block index.
func LoadIndex(db storage.KeyValueDB) ([]BlockMeta, error) {
	var blocks []BlockMeta
	err := db.ProcessPrefix([]byte(metaKeyPrefix), func(k, v []byte) error {
		var meta BlockMeta
		if err := kns.Deserialize(v, &meta); err != nil {
			return fmt.Errorf("bad metadata under key %q: %v", string(k), err)
		}
		blocks = append(blocks, meta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Index < blocks[j].Index })
	return blocks, nil
}

// DoneBlocks returns metadata for completed blocks only, sorted by index.
// Blocks still being segmented are skipped, so partial runs merge cleanly.
func DoneBlocks(db storage.KeyValueDB) ([]BlockMeta, error) {
	all, err := LoadIndex(db)
	if err != nil {
		return nil, err
	}
	done := make([]BlockMeta, 0, len(all))
	for _, meta := range all {
		if meta.Done {
			done = append(done, meta)
		}
	}
	return done, nil
}
