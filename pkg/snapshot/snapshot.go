// Package snapshot stores sorted unsigned integer output compactly.
//
// A snapshot is the magic "RSNP", a format version byte, the uvarint value
// count, the uvarint payload length and an LZ4 block of little-endian,
// delta-encoded uint32 values.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
)

// Sentinel errors.
var (
	ErrBadMagic           = errors.New("not a runsort snapshot")
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	ErrUnsorted           = errors.New("snapshot values must be sorted ascending")
	ErrCorrupt            = errors.New("corrupt snapshot")
)

// Version is the format version written by Encode.
const Version byte = 1

// maxRatio bounds how many decoded bytes one payload byte may expand to.
// LZ4 cannot do better than roughly 255:1.
const maxRatio = 256

// maxValues caps the value count accepted from a header.
const maxValues = math.MaxInt32

var magic = []byte("RSNP")

// Encode serializes ascending values into a snapshot.
func Encode(values []uint32) ([]byte, error) {
	if !slices.IsSorted(values) {
		return nil, ErrUnsorted
	}

	var payload []byte

	if len(values) > 0 {
		deltas := slices.Clone(values)
		deltaEncode(deltas)

		var err error

		payload, err = compressUInt32Slice(deltas)
		if err != nil {
			return nil, err
		}
	}

	out := make([]byte, 0, len(magic)+1+2*binary.MaxVarintLen64+len(payload))
	out = append(out, magic...)
	out = append(out, Version)
	out = binary.AppendUvarint(out, uint64(len(values)))
	out = binary.AppendUvarint(out, uint64(len(payload)))
	out = append(out, payload...)

	return out, nil
}

// Decode parses a snapshot produced by Encode.
func Decode(data []byte) ([]uint32, error) {
	return Read(bytes.NewReader(data))
}

// Write encodes values and writes the snapshot to w.
func Write(w io.Writer, values []uint32) error {
	data, err := Encode(values)
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	return nil
}

// Read reads one snapshot from r. Trailing data after the payload is an error.
func Read(r io.Reader) ([]uint32, error) {
	br := bufio.NewReader(r)

	header := make([]byte, len(magic)+1)

	_, err := io.ReadFull(br, header)
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrBadMagic, err)
	}

	if !bytes.Equal(header[:len(magic)], magic) {
		return nil, ErrBadMagic
	}

	if header[len(magic)] != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, header[len(magic)])
	}

	count, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, fmt.Errorf("%w: value count: %w", ErrCorrupt, err)
	}

	size, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, fmt.Errorf("%w: payload length: %w", ErrCorrupt, err)
	}

	if count == 0 {
		if size != 0 {
			return nil, fmt.Errorf("%w: payload without values", ErrCorrupt)
		}

		err = expectEOF(br)
		if err != nil {
			return nil, err
		}

		return []uint32{}, nil
	}

	if count > maxValues {
		return nil, fmt.Errorf("%w: %d values exceed the limit", ErrCorrupt, count)
	}

	minSize, maxSize := payloadBounds(int(count))
	if size < minSize || size > maxSize {
		return nil, fmt.Errorf("%w: %d values cannot fit in %d payload bytes", ErrCorrupt, count, size)
	}

	payload, err := io.ReadAll(io.LimitReader(br, int64(size)))
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrCorrupt, err)
	}

	if uint64(len(payload)) != size {
		return nil, fmt.Errorf("%w: payload: %w", ErrCorrupt, io.ErrUnexpectedEOF)
	}

	values := make([]uint32, count)

	err = decompressUInt32Slice(payload, values)
	if err != nil {
		return nil, err
	}

	if !deltaDecode(values) {
		return nil, fmt.Errorf("%w: values overflow", ErrCorrupt)
	}

	err = expectEOF(br)
	if err != nil {
		return nil, err
	}

	return values, nil
}

// WriteFile writes a snapshot of values to path.
func WriteFile(path string, values []uint32) error {
	data, err := Encode(values)
	if err != nil {
		return err
	}

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}

	return nil
}

// ReadFile reads a snapshot from path.
func ReadFile(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer f.Close()

	values, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	return values, nil
}

func expectEOF(br *bufio.Reader) error {
	_, err := br.ReadByte()
	if errors.Is(err, io.EOF) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return fmt.Errorf("%w: trailing data", ErrCorrupt)
}
