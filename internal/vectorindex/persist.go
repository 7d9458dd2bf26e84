package vectorindex

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

const (
	vectorsFile  = "vectors.bin"
	metadataFile = "metadata.json"

	vectorsMagic = uint32(0x44514149) // "DQAI"
)

// metadataEnvelope is the on-disk metadata artifact: the ID-to-metadata map
// plus everything needed to reconstruct the index state.
type metadataEnvelope struct {
	Dimension int                `json:"dimension"`
	Kind      Kind               `json:"kind"`
	NextID    int64              `json:"next_id"`
	Metadata  map[int64]Metadata `json:"metadata"`
}

// Save persists the vector store and the metadata map as one logical unit.
// Both artifacts are written to temp files first and then renamed into place,
// so a crash mid-save leaves the previous on-disk index intact.
func (f *Flat) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.created {
		return ErrNotInitialized
	}
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("failed to create index dir: %w", err)
	}

	vecTmp, err := f.writeVectorsTemp()
	if err != nil {
		return err
	}
	metaTmp, err := f.writeMetadataTemp()
	if err != nil {
		_ = os.Remove(vecTmp)
		return err
	}

	if err := os.Rename(vecTmp, filepath.Join(f.dir, vectorsFile)); err != nil {
		_ = os.Remove(vecTmp)
		_ = os.Remove(metaTmp)
		return fmt.Errorf("failed to replace vectors file: %w", err)
	}
	if err := os.Rename(metaTmp, filepath.Join(f.dir, metadataFile)); err != nil {
		_ = os.Remove(metaTmp)
		return fmt.Errorf("failed to replace metadata file: %w", err)
	}

	return nil
}

// Load restores the index from disk. It returns false without error when no
// saved index exists; a vectors file without its metadata file (or the
// reverse) is an inconsistent state and is rejected.
func (f *Flat) Load() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	vecPath := filepath.Join(f.dir, vectorsFile)
	metaPath := filepath.Join(f.dir, metadataFile)

	_, vecErr := os.Stat(vecPath)
	_, metaErr := os.Stat(metaPath)
	if os.IsNotExist(vecErr) && os.IsNotExist(metaErr) {
		return false, nil
	}
	if os.IsNotExist(vecErr) || os.IsNotExist(metaErr) {
		return false, fmt.Errorf("inconsistent index state: %s and %s must exist together", vectorsFile, metadataFile)
	}
	if vecErr != nil {
		return false, fmt.Errorf("failed to stat vectors file: %w", vecErr)
	}
	if metaErr != nil {
		return false, fmt.Errorf("failed to stat metadata file: %w", metaErr)
	}

	var envelope metadataEnvelope
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return false, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return false, fmt.Errorf("failed to decode metadata file: %w", err)
	}
	if envelope.Kind != KindInnerProduct && envelope.Kind != KindL2 {
		return false, fmt.Errorf("%w: %q", ErrUnsupportedKind, envelope.Kind)
	}

	vectors, dimension, err := readVectors(vecPath)
	if err != nil {
		return false, err
	}
	if dimension != envelope.Dimension {
		return false, fmt.Errorf("inconsistent index state: vectors dimension %d, metadata dimension %d", dimension, envelope.Dimension)
	}
	if len(vectors) != len(envelope.Metadata) {
		return false, fmt.Errorf("inconsistent index state: %d vectors, %d metadata entries", len(vectors), len(envelope.Metadata))
	}
	// IDs are positional, so the high-water mark must match the count.
	if envelope.NextID != int64(len(vectors)) {
		return false, fmt.Errorf("inconsistent index state: next id %d with %d vectors", envelope.NextID, len(vectors))
	}

	f.dimension = envelope.Dimension
	f.kind = envelope.Kind
	f.vectors = vectors
	f.meta = envelope.Metadata
	if f.meta == nil {
		f.meta = make(map[int64]Metadata)
	}
	f.nextID = envelope.NextID
	f.created = true

	return true, nil
}

// writeVectorsTemp writes the vector store to a temp file in the index dir
// and returns its path. Format: magic, count, dimension, then row-major
// float32 values, all little-endian.
func (f *Flat) writeVectorsTemp() (string, error) {
	tmp, err := os.CreateTemp(f.dir, vectorsFile+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp vectors file: %w", err)
	}

	write := func() error {
		header := []uint32{vectorsMagic, uint32(len(f.vectors)), uint32(f.dimension)}
		for _, v := range header {
			if err := binary.Write(tmp, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		buf := make([]byte, 4)
		for _, vec := range f.vectors {
			for _, x := range vec {
				binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
				if _, err := tmp.Write(buf); err != nil {
					return err
				}
			}
		}
		return tmp.Sync()
	}

	if err := write(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write vectors: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp vectors file: %w", err)
	}
	return tmp.Name(), nil
}

func (f *Flat) writeMetadataTemp() (string, error) {
	raw, err := json.Marshal(metadataEnvelope{
		Dimension: f.dimension,
		Kind:      f.kind,
		NextID:    f.nextID,
		Metadata:  f.meta,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, metadataFile+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp metadata file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to sync metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp metadata file: %w", err)
	}
	return tmp.Name(), nil
}

func readVectors(path string) ([][]float32, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read vectors file: %w", err)
	}
	if len(raw) < 12 {
		return nil, 0, fmt.Errorf("vectors file truncated: %d bytes", len(raw))
	}

	magic := binary.LittleEndian.Uint32(raw[0:4])
	if magic != vectorsMagic {
		return nil, 0, fmt.Errorf("vectors file has bad magic %#x", magic)
	}
	count := int(binary.LittleEndian.Uint32(raw[4:8]))
	dimension := int(binary.LittleEndian.Uint32(raw[8:12]))

	expected := 12 + count*dimension*4
	if len(raw) != expected {
		return nil, 0, fmt.Errorf("vectors file truncated: %d bytes, expected %d", len(raw), expected)
	}

	vectors := make([][]float32, count)
	offset := 12
	for i := 0; i < count; i++ {
		vec := make([]float32, dimension)
		for j := 0; j < dimension; j++ {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[offset : offset+4]))
			offset += 4
		}
		vectors[i] = vec
	}
	return vectors, dimension, nil
}
