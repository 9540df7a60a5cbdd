package vector

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Snapshot format, little-endian throughout:
//
//	magic "SHVI" | uint32 version | uint32 dimensions | uint32 count
//	count × ( uint32 idLen | id bytes | dimensions × float32 )
//
// Ids and vectors are interleaved under a single count so the two can never
// be persisted or loaded out of step.
const (
	imageVersion = 1
	maxIDLen     = 4096
)

var imageMagic = []byte("SHVI")

// Save writes the index to path as one atomic unit: the image is written to a
// temporary file in the same directory, synced, then renamed over path, so a
// crash mid-write leaves the previous image intact. Failures are reported as
// ErrPersistence; the in-memory index remains authoritative. An empty path is
// a no-op.
func (x *FlatIndex) Save(path string) error {
	if path == "" {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create index dir: %v", ErrPersistence, err)
	}
	tmp, err := os.CreateTemp(dir, ".vectors-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	w := bufio.NewWriter(tmp)
	if err := x.writeImage(w); err != nil {
		cleanup()
		return err
	}
	if err := w.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("%w: flush: %v", ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("%w: sync: %v", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close temp file: %v", ErrPersistence, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename into place: %v", ErrPersistence, err)
	}

	x.logger.Debug("saved vector index",
		zap.String("path", path),
		zap.Int("count", len(x.ids)))
	return nil
}

func (x *FlatIndex) writeImage(w io.Writer) error {
	if _, err := w.Write(imageMagic); err != nil {
		return fmt.Errorf("%w: write magic: %v", ErrPersistence, err)
	}
	header := []uint32{imageVersion, uint32(x.dimensions), uint32(len(x.ids))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("%w: write header: %v", ErrPersistence, err)
		}
	}
	for i, id := range x.ids {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("%w: write id length: %v", ErrPersistence, err)
		}
		if _, err := io.WriteString(w, id); err != nil {
			return fmt.Errorf("%w: write id: %v", ErrPersistence, err)
		}
		if _, err := w.Write(float32SliceToBytes(x.vectors[i])); err != nil {
			return fmt.Errorf("%w: write vector: %v", ErrPersistence, err)
		}
	}
	return nil
}

// Load replaces the index contents with the image at path. The image is
// validated in full before the swap, so a rejected image leaves the prior
// state untouched. A missing file is a clean empty start. Any malformed image
// (bad magic or version, dimension disagreement, truncation, trailing bytes,
// duplicate ids) is rejected as ErrIndexCorrupt rather than partially loaded.
func (x *FlatIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: open index file: %v", ErrPersistence, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	magic := make([]byte, len(imageMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("%w: short header", ErrIndexCorrupt)
	}
	if !bytes.Equal(magic, imageMagic) {
		return fmt.Errorf("%w: bad magic %q", ErrIndexCorrupt, magic)
	}
	var version, dims, count uint32
	for _, dst := range []*uint32{&version, &dims, &count} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return fmt.Errorf("%w: short header", ErrIndexCorrupt)
		}
	}
	if version != imageVersion {
		return fmt.Errorf("%w: unsupported image version %d", ErrIndexCorrupt, version)
	}
	if int(dims) != x.dimensions {
		return fmt.Errorf("%w: image dimension %d, index requires %d", ErrIndexCorrupt, dims, x.dimensions)
	}

	ids := make([]string, 0, count)
	vectors := make([][]float32, 0, count)
	present := make(map[string]struct{}, count)
	vecBuf := make([]byte, x.dimensions*4)
	for i := uint32(0); i < count; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("%w: truncated at entry %d", ErrIndexCorrupt, i)
		}
		if idLen == 0 || idLen > maxIDLen {
			return fmt.Errorf("%w: entry %d has id length %d", ErrIndexCorrupt, i, idLen)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return fmt.Errorf("%w: truncated at entry %d", ErrIndexCorrupt, i)
		}
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return fmt.Errorf("%w: truncated at entry %d", ErrIndexCorrupt, i)
		}
		id := string(idBytes)
		if _, dup := present[id]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrIndexCorrupt, id)
		}
		present[id] = struct{}{}
		ids = append(ids, id)
		vectors = append(vectors, bytesToFloat32Slice(vecBuf))
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return fmt.Errorf("%w: trailing bytes after %d entries", ErrIndexCorrupt, count)
	}

	x.mu.Lock()
	x.ids = ids
	x.vectors = vectors
	x.present = present
	x.mu.Unlock()

	x.logger.Info("loaded vector index",
		zap.String("path", path),
		zap.Int("count", len(ids)),
		zap.Int("dimensions", x.dimensions))
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	out := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
