package volume

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kuan-lab/kns/kns"
)

// OutputVolume is the single progressively written global segmentation.
// Regions are stored as one chunk file per block, named by bounds in the
// precomputed convention "x1-x2_y1-y2_z1-z2", so rewriting a block's region
// is idempotent.  Writes go through a temp file and rename, making each
// region write atomic at the filesystem level.
type OutputVolume struct {
	dir      string
	compress kns.Compression
	checksum kns.Checksum
}

type outputInfo struct {
	Type        string `json:"type"`
	DataType    string `json:"data_type"`
	NumChannels int    `json:"num_channels"`
	Compression string `json:"compression"`
}

// OpenOutputVolume opens or creates the chunked output volume at dir.
func OpenOutputVolume(dir string) (*OutputVolume, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("can't make output volume directory %q: %v", dir, err)
	}
	v := &OutputVolume{
		dir:      dir,
		compress: kns.Snappy,
		checksum: kns.CRC32,
	}
	infoPath := filepath.Join(dir, "info")
	if _, err := os.Stat(infoPath); os.IsNotExist(err) {
		info := outputInfo{
			Type:        "segmentation",
			DataType:    "uint64",
			NumChannels: 1,
			Compression: v.compress.String(),
		}
		b, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(infoPath, b, 0644); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// chunkPath returns the file path of the chunk spanning the given box.
func (v *OutputVolume) chunkPath(box kns.Box3d) string {
	name := fmt.Sprintf("%d-%d_%d-%d_%d-%d",
		box.Min[0], box.Max[0], box.Min[1], box.Max[1], box.Min[2], box.Max[2])
	return filepath.Join(v.dir, name)
}

// WriteRegion writes the given labels as the chunk for their bounds.  The
// write is atomic: a crash mid-write leaves either the old chunk or none.
func (v *OutputVolume) WriteRegion(labels *Labels) error {
	data, err := labels.MarshalBinary()
	if err != nil {
		return err
	}
	serialization, err := kns.SerializeData(data, v.compress, v.checksum)
	if err != nil {
		return err
	}
	path := v.chunkPath(labels.Bounds)
	tmp := path + ".part"
	if err := os.WriteFile(tmp, serialization, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadRegion returns the chunk spanning exactly the given box, or an error
// if it has not been written.
func (v *OutputVolume) ReadRegion(box kns.Box3d) (*Labels, error) {
	serialization, err := os.ReadFile(v.chunkPath(box))
	if err != nil {
		return nil, err
	}
	data, _, err := kns.DeserializeData(serialization, true)
	if err != nil {
		return nil, fmt.Errorf("can't deserialize output chunk %s: %v", box, err)
	}
	labels := &Labels{Bounds: box}
	if err := labels.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return labels, nil
}

// HasRegion returns true if an intact chunk exists for the given box.
func (v *OutputVolume) HasRegion(box kns.Box3d) bool {
	fi, err := os.Stat(v.chunkPath(box))
	return err == nil && fi.Size() > 0
}

// RemoveRegion deletes the chunk for the given box if present.
func (v *OutputVolume) RemoveRegion(box kns.Box3d) error {
	err := os.Remove(v.chunkPath(box))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Size returns the total bytes used by written chunks.
func (v *OutputVolume) Size() (uint64, error) {
	var total uint64
	entries, err := os.ReadDir(v.dir)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "info" {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		total += uint64(fi.Size())
	}
	return total, nil
}
