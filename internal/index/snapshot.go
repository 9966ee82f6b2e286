package index

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrSnapshotNotFound signals that no snapshot has been written yet.
var ErrSnapshotNotFound = errors.New("index snapshot not found")

// Snapshot is the durable form of an index.
type Snapshot struct {
	Model      string
	Dimensions int
	Records    []Record
}

// Wire layout (protobuf encoding, no generated code):
//
//	1: version    varint
//	2: model      string
//	3: dimensions varint
//	4: record     bytes, repeated { 1: text string, 2: vector packed fixed32 }
const (
	snapshotVersion = 1

	fieldVersion    protowire.Number = 1
	fieldModel      protowire.Number = 2
	fieldDimensions protowire.Number = 3
	fieldRecord     protowire.Number = 4

	recordText   protowire.Number = 1
	recordVector protowire.Number = 2
)

// MarshalSnapshot encodes s.
func MarshalSnapshot(s *Snapshot) []byte {
	b := protowire.AppendTag(nil, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, snapshotVersion)
	b = protowire.AppendTag(b, fieldModel, protowire.BytesType)
	b = protowire.AppendString(b, s.Model)
	b = protowire.AppendTag(b, fieldDimensions, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Dimensions))

	for _, r := range s.Records {
		packed := make([]byte, 0, 4*len(r.Vector))
		for _, f := range r.Vector {
			packed = protowire.AppendFixed32(packed, math.Float32bits(f))
		}

		var rec []byte
		rec = protowire.AppendTag(rec, recordText, protowire.BytesType)
		rec = protowire.AppendString(rec, r.Text)
		rec = protowire.AppendTag(rec, recordVector, protowire.BytesType)
		rec = protowire.AppendBytes(rec, packed)

		b = protowire.AppendTag(b, fieldRecord, protowire.BytesType)
		b = protowire.AppendBytes(b, rec)
	}
	return b
}

// UnmarshalSnapshot decodes b. Unknown fields are skipped.
func UnmarshalSnapshot(b []byte) (*Snapshot, error) {
	s := &Snapshot{}
	var version uint64

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("snapshot tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			version, n = protowire.ConsumeVarint(b)
		case num == fieldModel && typ == protowire.BytesType:
			s.Model, n = protowire.ConsumeString(b)
		case num == fieldDimensions && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			s.Dimensions = int(v)
		case num == fieldRecord && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				rec, err := unmarshalRecord(raw)
				if err != nil {
					return nil, fmt.Errorf("snapshot record %d: %w", len(s.Records), err)
				}
				s.Records = append(s.Records, rec)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("snapshot field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}

	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}
	return s, nil
}

func unmarshalRecord(b []byte) (Record, error) {
	var r Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Record{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == recordText && typ == protowire.BytesType:
			r.Text, n = protowire.ConsumeString(b)
		case num == recordVector && typ == protowire.BytesType:
			var packed []byte
			packed, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				vec, err := unpackFloats(packed)
				if err != nil {
					return Record{}, err
				}
				r.Vector = vec
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return Record{}, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return r, nil
}

func unpackFloats(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("packed vector length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, 0, len(b)/4)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, math.Float32frombits(v))
		b = b[n:]
	}
	return out, nil
}

// FileStore keeps the snapshot in a single file, replaced atomically on every save.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed snapshot store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot file path.
func (f *FileStore) Path() string { return f.path }

// Save writes the snapshot to a temp file in the same directory, fsyncs, and renames it
// over the previous snapshot.
func (f *FileStore) Save(snap *Snapshot) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(MarshalSnapshot(snap)); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot file.
func (f *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Clean(f.path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", f.path, err)
	}
	snap, err := UnmarshalSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", f.path, err)
	}
	return snap, nil
}
