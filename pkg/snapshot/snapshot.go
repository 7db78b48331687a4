// Package snapshot is a read-only, string-interned snapshot of packed
// reference data that the engine loads and hands to reducers without
// interpreting its record contents.
//
// The on-disk format is a header of two fields (string count, string byte
// count) followed by a string-intern table and the records that reference
// it by index. Load consumes and caches packaged artifacts; Builder
// writes them in the same format.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/unicode/norm"
)

// header carries the two fields that size the intern table: the number
// of interned strings and their total byte length.
type header struct {
	StringCount     uint32
	StringByteCount uint32
}

// Snapshot is a loaded, decompressed, string-interned packaged data
// artifact. The engine's only responsibilities are lifecycle (load, cache
// per language, hand to reducers) — it never interprets Record contents.
type Snapshot struct {
	strings []string
	records [][]byte
}

// Len returns the number of interned strings.
func (s *Snapshot) Len() int { return len(s.strings) }

// Intern returns the i'th interned string. Panics on an out-of-range
// index: a reducer holding a bad index is a programming error, the same
// class of fault as EventStreamStore's downcast panics.
func (s *Snapshot) Intern(i int) string {
	return s.strings[i]
}

// RecordCount returns the number of opaque records in the snapshot.
func (s *Snapshot) RecordCount() int { return len(s.records) }

// Record returns the i'th record's raw bytes, opaque to the engine: the
// reducer that owns the data pipeline's record schema decodes it.
func (s *Snapshot) Record(i int) []byte { return s.records[i] }

// cache memoizes loaded snapshots per language code for the process
// lifetime, following pkg/elog's sync.Map memoization idiom.
var cache sync.Map // map[string]*Snapshot

// Load reads the zstd-compressed artifact at path and caches the result
// under language. A second Load for the same language returns the cached
// snapshot without touching disk again.
func Load(language, path string) (*Snapshot, error) {
	if cached, ok := cache.Load(language); ok {
		return cached.(*Snapshot), nil
	}

	snap, err := loadFromDisk(path)
	if err != nil {
		return nil, err
	}

	actual, _ := cache.LoadOrStore(language, snap)
	return actual.(*Snapshot), nil
}

// Forget evicts a cached snapshot, e.g. when a test or reducer needs to
// reload a modified artifact.
func Forget(language string) {
	cache.Delete(language)
}

func loadFromDisk(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot %s: %w", path, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("opening zstd stream for %s: %w", path, err)
	}
	defer zr.Close()

	return Decode(zr)
}

// Decode parses the uncompressed wire format from r: header, intern
// table, record table.
func Decode(r io.Reader) (*Snapshot, error) {
	br := bufio.NewReader(r)

	var hdr header
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("reading snapshot header: %w", err)
	}

	strs := make([]string, 0, hdr.StringCount)
	var totalBytes uint32
	for i := uint32(0); i < hdr.StringCount; i++ {
		var strLen uint32
		if err := binary.Read(br, binary.LittleEndian, &strLen); err != nil {
			return nil, fmt.Errorf("reading intern table entry %d length: %w", i, err)
		}
		buf := make([]byte, strLen)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("reading intern table entry %d: %w", i, err)
		}
		totalBytes += strLen
		strs = append(strs, string(buf))
	}
	if totalBytes != hdr.StringByteCount {
		return nil, fmt.Errorf("snapshot header mismatch: declared %d string bytes, found %d", hdr.StringByteCount, totalBytes)
	}

	var recordCount uint32
	if err := binary.Read(br, binary.LittleEndian, &recordCount); err != nil {
		return nil, fmt.Errorf("reading record count: %w", err)
	}
	records := make([][]byte, 0, recordCount)
	for i := uint32(0); i < recordCount; i++ {
		var recLen uint32
		if err := binary.Read(br, binary.LittleEndian, &recLen); err != nil {
			return nil, fmt.Errorf("reading record %d length: %w", i, err)
		}
		buf := make([]byte, recLen)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("reading record %d: %w", i, err)
		}
		records = append(records, buf)
	}

	return &Snapshot{strings: strs, records: records}, nil
}

// Builder assembles a Snapshot artifact in memory for writing. Strings are
// NFC-normalised before interning so that accented dictionary entries
// compare equal regardless of the normalisation form the data pipeline
// produced them in.
type Builder struct {
	strings []string
	index   map[string]int
	records [][]byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int)}
}

// Intern adds s to the intern table (NFC-normalised) if not already
// present, and returns its index.
func (b *Builder) Intern(s string) int {
	normalized := norm.NFC.String(s)
	if i, ok := b.index[normalized]; ok {
		return i
	}
	i := len(b.strings)
	b.strings = append(b.strings, normalized)
	b.index[normalized] = i
	return i
}

// AddRecord appends an opaque record and returns its index.
func (b *Builder) AddRecord(data []byte) int {
	b.records = append(b.records, data)
	return len(b.records) - 1
}

// Encode writes the uncompressed wire format to w.
func (b *Builder) Encode(w io.Writer) error {
	var stringBytes uint32
	for _, s := range b.strings {
		stringBytes += uint32(len(s))
	}

	hdr := header{
		StringCount:     uint32(len(b.strings)),
		StringByteCount: stringBytes,
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("writing snapshot header: %w", err)
	}

	for i, s := range b.strings {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
			return fmt.Errorf("writing intern table entry %d length: %w", i, err)
		}
		if _, err := io.WriteString(w, s); err != nil {
			return fmt.Errorf("writing intern table entry %d: %w", i, err)
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(b.records))); err != nil {
		return fmt.Errorf("writing record count: %w", err)
	}
	for i, rec := range b.records {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(rec))); err != nil {
			return fmt.Errorf("writing record %d length: %w", i, err)
		}
		if _, err := w.Write(rec); err != nil {
			return fmt.Errorf("writing record %d: %w", i, err)
		}
	}
	return nil
}

// WriteFile zstd-compresses the built artifact and writes it to path.
func (b *Builder) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot file %s: %w", path, err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("opening zstd writer for %s: %w", path, err)
	}
	defer zw.Close()

	if _, err := zw.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing compressed snapshot: %w", err)
	}
	return nil
}
