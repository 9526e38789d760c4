package snapshot

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// uint32ByteSize is the number of bytes in a uint32.
const uint32ByteSize = 4

// compressUInt32Slice packs data little-endian and compresses it as one LZ4 block.
func compressUInt32Slice(data []uint32) ([]byte, error) {
	raw := make([]byte, len(data)*uint32ByteSize)
	for idx, v := range data {
		binary.LittleEndian.PutUint32(raw[idx*uint32ByteSize:], v)
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))

	written, err := lz4.CompressBlock(raw, compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	if written == 0 {
		return nil, fmt.Errorf("%w: lz4 produced no output", ErrCorrupt)
	}

	return compressed[:written], nil
}

// payloadBounds returns the smallest and largest LZ4 block that can hold
// count uint32 values.
func payloadBounds(count int) (lo, hi uint64) {
	raw := uint64(count) * uint32ByteSize

	return (raw + maxRatio - 1) / maxRatio, uint64(lz4.CompressBlockBound(int(raw)))
}

// decompressUInt32Slice fills result from an LZ4 block holding exactly
// len(result) little-endian values.
func decompressUInt32Slice(data []byte, result []uint32) error {
	decompressed := make([]byte, len(result)*uint32ByteSize)

	n, err := lz4.UncompressBlock(data, decompressed)
	if err != nil {
		return fmt.Errorf("%w: lz4: %w", ErrCorrupt, err)
	}

	if n != len(decompressed) {
		return fmt.Errorf("%w: payload holds %d bytes, want %d", ErrCorrupt, n, len(decompressed))
	}

	for idx := range result {
		result[idx] = binary.LittleEndian.Uint32(decompressed[idx*uint32ByteSize:])
	}

	return nil
}

// deltaEncode replaces each element with the difference from its
// predecessor, in place. Sorted input turns into small repetitive values.
func deltaEncode(data []uint32) {
	for i := len(data) - 1; i > 0; i-- {
		data[i] -= data[i-1]
	}
}

// deltaDecode restores values produced by deltaEncode with a prefix sum.
// It reports false when a sum wraps around, which sorted input never does.
func deltaDecode(data []uint32) bool {
	for i := 1; i < len(data); i++ {
		next := data[i] + data[i-1]
		if next < data[i-1] {
			return false
		}

		data[i] = next
	}

	return true
}
