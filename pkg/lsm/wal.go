package lsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/golang/snappy"
)

// WriteAheadLog is the engine's seam onto its durability layer. spec.md
// treats the WAL's durability policy as an external collaborator: this
// module provides a concrete, usable default (snappy-compressed,
// CRC-checked records, grounded on the reference corpus's WAL formats) so
// Engine.Open has something to replay on startup, but an embedder may
// supply any implementation of this interface instead (Options.EnableWAL
// set false skips it entirely).
type WriteAheadLog interface {
	Append(key, value []byte) error
	Sync() error
	Close() error
	Replay() ([]WALRecord, error)
	Path() string
}

// WALRecord is one recovered write, in the same tombstone-as-empty-value
// convention used everywhere else in this package.
type WALRecord struct {
	Key   []byte
	Value []byte
}

// snappyWAL is the default WriteAheadLog: one record per call to Append,
// each snappy-compressed and CRC32-checked independently so a torn write at
// the end of the file (the host crashed mid-Append) corrupts at most the
// final record, which Replay detects and stops at rather than failing the
// whole recovery.
//
// Record format (all integers little-endian):
//
//	crc32(4) | compressed_len(4) | compressed( key_len(4) | key | value )
//
// Grounded on intellect4all-storage-engines/lsm/wal.go's CRC-checked record
// framing, with golang/snappy compression wired in per the reference
// engine's own WAL package.
type snappyWAL struct {
	path string
	file *os.File
	w    *bufio.Writer
}

// NewWriteAheadLog opens (creating if necessary) a WAL segment at path.
func NewWriteAheadLog(path string) (WriteAheadLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lsm: open wal: %w", err)
	}
	return &snappyWAL{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

func (w *snappyWAL) Append(key, value []byte) error {
	payload := make([]byte, 0, 4+len(key)+len(value))
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(key)))
	payload = append(payload, key...)
	payload = append(payload, value...)

	compressed := snappy.Encode(nil, payload)
	crc := crc32.ChecksumIEEE(compressed)

	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:], crc)
	binary.LittleEndian.PutUint32(header[4:], uint32(len(compressed)))

	if _, err := w.w.Write(header[:]); err != nil {
		return fmt.Errorf("lsm: wal append: %w", err)
	}
	if _, err := w.w.Write(compressed); err != nil {
		return fmt.Errorf("lsm: wal append: %w", err)
	}
	return nil
}

func (w *snappyWAL) Sync() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("lsm: wal flush: %w", err)
	}
	return w.file.Sync()
}

func (w *snappyWAL) Close() error {
	if err := w.w.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("lsm: wal flush: %w", err)
	}
	return w.file.Close()
}

func (w *snappyWAL) Path() string { return w.path }

// Replay reads every intact record from the start of the segment. It stops
// (without error) at the first truncated or checksum-mismatched record,
// treating it as the tail of an interrupted write rather than corruption of
// already-durable data.
func (w *snappyWAL) Replay() ([]WALRecord, error) {
	if err := w.w.Flush(); err != nil {
		return nil, fmt.Errorf("lsm: wal flush before replay: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("lsm: wal seek: %w", err)
	}
	r := bufio.NewReader(w.file)

	var records []WALRecord
	for {
		var header [8]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			break
		}
		crc := binary.LittleEndian.Uint32(header[0:])
		compressedLen := binary.LittleEndian.Uint32(header[4:])

		compressed := make([]byte, compressedLen)
		if _, err := io.ReadFull(r, compressed); err != nil {
			break
		}
		if crc32.ChecksumIEEE(compressed) != crc {
			break
		}

		payload, err := snappy.Decode(nil, compressed)
		if err != nil {
			break
		}
		if len(payload) < 4 {
			break
		}
		keyLen := binary.LittleEndian.Uint32(payload)
		if len(payload) < int(4+keyLen) {
			break
		}
		key := append([]byte(nil), payload[4:4+keyLen]...)
		value := append([]byte(nil), payload[4+keyLen:]...)
		records = append(records, WALRecord{Key: key, Value: value})
	}

	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("lsm: wal seek: %w", err)
	}
	return records, nil
}
