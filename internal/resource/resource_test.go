package resource

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
)

// filler returns deterministic noise that never contains the first marker byte.
func filler(n int) []byte {
	r := rand.New(rand.NewPCG(1, 2))
	b := make([]byte, n)
	for i := range b {
		v := byte(r.IntN(256))
		if v == Marker[0] {
			v = 0
		}
		b[i] = v
	}
	return b
}

func withMarker(prefix int, id int32, suffix int) []byte {
	var buf bytes.Buffer
	buf.Write(filler(prefix))
	buf.Write(Marker[:])
	binary.Write(&buf, binary.BigEndian, id)
	buf.Write(filler(suffix))
	return buf.Bytes()
}

func TestScanFindsMarkerAcrossChunkBoundaries(t *testing.T) {
	// File is exactly one scan window so chunk boundaries land on multiples
	// of chunkSize relative to the start of the data.
	for _, pos := range []int{
		0, 1, 100,
		chunkSize - len(Marker) - 1,
		chunkSize - len(Marker),
		chunkSize - len(Marker) + 1,
		chunkSize - 8,
		chunkSize - 1,
		chunkSize,
		chunkSize + 1,
		2*chunkSize - 7,
		5*chunkSize - 15,
		ScanWindow - len(Marker) - idSize,
	} {
		suffix := ScanWindow - pos - len(Marker) - idSize
		data := withMarker(pos, -123456, suffix)
		if len(data) != ScanWindow {
			t.Fatalf("pos %d: test data is %d bytes", pos, len(data))
		}

		id, err := Scan(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			t.Fatalf("pos %d: Scan: %v", pos, err)
		}
		if id != -123456 {
			t.Fatalf("pos %d: id = %d, want -123456", pos, id)
		}
	}
}

func TestScanOnlyLooksAtTail(t *testing.T) {
	// Marker sits before the last 64 KiB and must be ignored.
	data := withMarker(10, 42, ScanWindow+100)
	_, err := Scan(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestScanLargeFileMarkerNearEnd(t *testing.T) {
	data := withMarker(300*1024, 8, 2000)
	id, err := Scan(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if id != 8 {
		t.Fatalf("id = %d, want 8", id)
	}
}

func TestScanNotFound(t *testing.T) {
	for _, size := range []int{0, 10, 4096, ScanWindow, 3 * ScanWindow} {
		data := filler(size)
		_, err := Scan(bytes.NewReader(data), int64(len(data)))
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("size %d: err = %v, want ErrNotFound", size, err)
		}
	}
}

func TestScanPartialMarkerIsNotAMatch(t *testing.T) {
	data := filler(2 * chunkSize)
	copy(data[chunkSize-8:], Marker[:15])
	_, err := Scan(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestIndexMarker(t *testing.T) {
	src := append([]byte{0xea, 0x7f, 0x00}, Marker[:]...)
	if got := indexMarker(src, Marker[:]); got != 3 {
		t.Fatalf("indexMarker = %d, want 3", got)
	}
	if got := indexMarker(Marker[:10], Marker[:]); got != -1 {
		t.Fatalf("indexMarker on short input = %d, want -1", got)
	}
}

func TestStampThenLocate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "IGameBootstrapper.exe")
	if err := os.WriteFile(path, filler(70*1024), 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := Locate(path); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unstamped binary: err = %v, want ErrNotFound", err)
	}

	if err := Stamp(path, 31337); err != nil {
		t.Fatalf("Stamp: %v", err)
	}

	raw, _ := os.ReadFile(path)
	tail := raw[len(raw)-12:]
	if !bytes.Equal(tail[:8], StampMarker[:]) {
		t.Fatalf("stamp marker not appended: % x", tail[:8])
	}
	if got := int32(binary.BigEndian.Uint32(tail[8:])); got != 31337 {
		t.Fatalf("stamped id = %d", got)
	}

	id, err := Locate(path)
	if err != nil {
		t.Fatalf("Locate after Stamp: %v", err)
	}
	if id != 31337 {
		t.Fatalf("id = %d, want 31337", id)
	}
}

func TestEmbedTakesPrecedenceOverStamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bin")
	if err := os.WriteFile(path, filler(1024), 0755); err != nil {
		t.Fatal(err)
	}
	if err := Embed(path, 7); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if err := Stamp(path, 9); err != nil {
		t.Fatalf("Stamp: %v", err)
	}

	id, err := Locate(path)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if id != 7 {
		t.Fatalf("id = %d, want the embedded 7", id)
	}
}

func TestLocateMissingFile(t *testing.T) {
	_, err := Locate(filepath.Join(t.TempDir(), "missing.exe"))
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected an open error, got %v", err)
	}
}
