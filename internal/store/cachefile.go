package store

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/docmind/docmind/internal/errors"
)

// Embedding cache file format ("DMEC"):
//
//	magic          [4]byte  "DMEC"
//	format version uint16
//	dimensions     uint32
//	model version  uint16 length + bytes
//	record count   uint32
//	records        (uint16 id length + id bytes + dims * float32)
//	checksum       uint32   CRC-32 (IEEE) of everything above
//
// All integers are little-endian. Any structural mismatch or checksum
// failure surfaces as KindCacheCorrupted.

var cacheMagic = [4]byte{'D', 'M', 'E', 'C'}

// cacheFormatVersion is bumped on any layout change; older versions are
// rejected as corrupt rather than migrated, the cache is rebuildable.
const cacheFormatVersion uint16 = 1

// cacheRecord is one persisted docID -> vector pair.
type cacheRecord struct {
	DocID  string
	Vector []float32
}

// writeCacheFile persists records atomically: write to a temp file in
// the same directory, fsync, rename over the target.
func writeCacheFile(path, modelVersion string, dims int, records []cacheRecord) error {
	const op = "cache.Save"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}

	var buf bytes.Buffer
	crc := crc32.NewIEEE()
	w := io.MultiWriter(&buf, crc)

	_, _ = w.Write(cacheMagic[:])
	_ = binary.Write(w, binary.LittleEndian, cacheFormatVersion)
	_ = binary.Write(w, binary.LittleEndian, uint32(dims))
	_ = binary.Write(w, binary.LittleEndian, uint16(len(modelVersion)))
	_, _ = io.WriteString(w, modelVersion)
	_ = binary.Write(w, binary.LittleEndian, uint32(len(records)))

	for _, rec := range records {
		if len(rec.Vector) != dims {
			return errors.E(errors.KindInternal, op,
				fmt.Sprintf("vector for %q has %d dimensions, want %d", rec.DocID, len(rec.Vector), dims))
		}
		_ = binary.Write(w, binary.LittleEndian, uint16(len(rec.DocID)))
		_, _ = io.WriteString(w, rec.DocID)
		_ = binary.Write(w, binary.LittleEndian, rec.Vector)
	}

	_ = binary.Write(&buf, binary.LittleEndian, crc.Sum32())

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrap(errors.KindInternal, op, err)
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(errors.KindInternal, op, err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(errors.KindInternal, op, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(errors.KindInternal, op, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(errors.KindInternal, op, err)
	}

	return nil
}

func corruptCache(format string, args ...any) error {
	return errors.E(errors.KindCacheCorrupted, "cache.Load", fmt.Sprintf(format, args...))
}

// readCacheFile loads and verifies a cache file. The checksum covers
// the whole payload, so a torn write or bit flip fails closed.
func readCacheFile(path string) (modelVersion string, dims int, records []cacheRecord, err error) {
	const op = "cache.Load"

	file, err := os.Open(path)
	if err != nil {
		return "", 0, nil, errors.Wrap(errors.KindInternal, op, err)
	}
	defer file.Close()

	data, err := io.ReadAll(bufio.NewReader(file))
	if err != nil {
		return "", 0, nil, errors.Wrap(errors.KindInternal, op, err)
	}

	if len(data) < len(cacheMagic)+4 {
		return "", 0, nil, corruptCache("file too short: %d bytes", len(data))
	}

	payload, trailer := data[:len(data)-4], data[len(data)-4:]
	wantCRC := binary.LittleEndian.Uint32(trailer)
	if got := crc32.ChecksumIEEE(payload); got != wantCRC {
		return "", 0, nil, corruptCache("checksum mismatch: got %08x, want %08x", got, wantCRC)
	}

	r := bytes.NewReader(payload)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != cacheMagic {
		return "", 0, nil, corruptCache("bad magic %q", magic[:])
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return "", 0, nil, corruptCache("truncated header")
	}
	if version != cacheFormatVersion {
		return "", 0, nil, corruptCache("unsupported format version %d", version)
	}

	var dims32 uint32
	if err := binary.Read(r, binary.LittleEndian, &dims32); err != nil {
		return "", 0, nil, corruptCache("truncated header")
	}
	dims = int(dims32)

	var modelLen uint16
	if err := binary.Read(r, binary.LittleEndian, &modelLen); err != nil {
		return "", 0, nil, corruptCache("truncated header")
	}
	modelBytes := make([]byte, modelLen)
	if _, err := io.ReadFull(r, modelBytes); err != nil {
		return "", 0, nil, corruptCache("truncated model version")
	}
	modelVersion = string(modelBytes)

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return "", 0, nil, corruptCache("truncated header")
	}

	records = make([]cacheRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		var idLen uint16
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return "", 0, nil, corruptCache("truncated record %d", i)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return "", 0, nil, corruptCache("truncated record %d", i)
		}

		vec := make([]float32, dims)
		if err := binary.Read(r, binary.LittleEndian, &vec); err != nil {
			return "", 0, nil, corruptCache("truncated vector in record %d", i)
		}

		records = append(records, cacheRecord{DocID: string(idBytes), Vector: vec})
	}

	if r.Len() != 0 {
		return "", 0, nil, corruptCache("%d trailing bytes after last record", r.Len())
	}

	return modelVersion, dims, records, nil
}
