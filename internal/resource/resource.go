// Package resource reads and writes the resource identifier that is appended
// to the tail of the bootstrapper executable.
package resource

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ID names the product a bootstrapper build serves.
type ID int32

const (
	// ScanWindow is how far from the end of the file the marker may sit.
	ScanWindow = 64 * 1024
	chunkSize  = 8 * 1024
	idSize     = 4
)

// Marker precedes the identifier in binaries produced by the release service.
var Marker = [16]byte{
	0xea, 0x7f, 0xd6, 0x96, 0x1a, 0x08, 0x71, 0xd3,
	0xc1, 0x44, 0x7c, 0x8b, 0x1b, 0xb0, 0xa3, 0x36,
}

// StampMarker precedes the identifier when a binary is re-stamped locally
// after a self-update.
var StampMarker = [8]byte{0x77, 0x77, 0x77, 0x77, 0xff, 0xff, 0xff, 0xff}

// ErrNotFound is returned when no marker is present near the end of the file.
var ErrNotFound = errors.New("resource id marker not found")

// Locate reads the identifier embedded in the file at path.
func Locate(path string) (ID, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	id, err := Scan(f, info.Size())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return id, nil
}

// Scan searches the last ScanWindow bytes of r (of the given size) for Marker
// and decodes the big-endian int32 that follows it. Chunks overlap by
// len(Marker)-1 bytes so a marker split across two reads is still found.
// When the marker is absent, a trailing StampMarker record is accepted.
func Scan(r io.ReadSeeker, size int64) (ID, error) {
	start := size - ScanWindow
	if start < 0 {
		start = 0
	}
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return 0, err
	}

	buf := make([]byte, chunkSize)
	offset := start
	for {
		n, err := io.ReadFull(r, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if n < len(Marker) {
			break
		}

		if pos := indexMarker(buf[:n], Marker[:]); pos >= 0 {
			return readID(r, offset+int64(pos)+int64(len(Marker)))
		}

		if n < chunkSize {
			break
		}
		back := int64(len(Marker) - 1)
		if _, err := r.Seek(-back, io.SeekCurrent); err != nil {
			return 0, err
		}
		offset += int64(n) - back
	}

	return scanStamp(r, size)
}

// indexMarker returns the first index of pattern in src. Candidates are
// filtered on the first byte and then verified from the tail backwards.
func indexMarker(src, pattern []byte) int {
	last := len(src) - len(pattern)
	for i := 0; i <= last; i++ {
		if src[i] != pattern[0] {
			continue
		}
		j := len(pattern) - 1
		for j > 0 && src[i+j] == pattern[j] {
			j--
		}
		if j == 0 {
			return i
		}
	}
	return -1
}

func scanStamp(r io.ReadSeeker, size int64) (ID, error) {
	tail := int64(len(StampMarker) + idSize)
	if size < tail {
		return 0, ErrNotFound
	}
	if _, err := r.Seek(size-tail, io.SeekStart); err != nil {
		return 0, err
	}
	buf := make([]byte, tail)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	if !bytes.Equal(buf[:len(StampMarker)], StampMarker[:]) {
		return 0, ErrNotFound
	}
	return ID(int32(binary.BigEndian.Uint32(buf[len(StampMarker):]))), nil
}

func readID(r io.ReadSeeker, at int64) (ID, error) {
	if _, err := r.Seek(at, io.SeekStart); err != nil {
		return 0, err
	}
	var raw [idSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return 0, fmt.Errorf("read resource id: %w", err)
	}
	return ID(int32(binary.BigEndian.Uint32(raw[:]))), nil
}

// Stamp appends StampMarker and id to the file at path.
func Stamp(path string, id ID) error {
	return appendRecord(path, StampMarker[:], id)
}

// Embed appends Marker and id to the file at path, producing the layout the
// release service ships.
func Embed(path string, id ID) error {
	return appendRecord(path, Marker[:], id)
}

func appendRecord(path string, marker []byte, id ID) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open %s for stamping: %w", path, err)
	}

	record := make([]byte, 0, len(marker)+idSize)
	record = append(record, marker...)
	record = binary.BigEndian.AppendUint32(record, uint32(id))
	if _, err := f.Write(record); err != nil {
		f.Close()
		return fmt.Errorf("write resource id to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
