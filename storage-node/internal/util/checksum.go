package util

import (
	"encoding/binary"
	"hash/crc32"
)

// ChecksumSize is the length of the CRC32 trailer stored after chunk data.
const ChecksumSize = 4

var crc32Table = crc32.MakeTable(crc32.IEEE)

// ComputeChecksum computes a CRC32 (IEEE) checksum for the given data
func ComputeChecksum(data []byte) uint32 {
	return crc32.Checksum(data, crc32Table)
}

// AppendChecksum returns data followed by its little-endian CRC32 trailer.
// Format: [data][checksum (4 bytes)]
func AppendChecksum(data []byte) []byte {
	out := make([]byte, len(data), len(data)+ChecksumSize)
	copy(out, data)
	return binary.LittleEndian.AppendUint32(out, ComputeChecksum(data))
}

// SplitChecksum separates a framed buffer into its payload and the checksum
// stored in the trailer, and reports the checksum computed over the payload.
// ok is false when the buffer is shorter than the trailer.
func SplitChecksum(framed []byte) (data []byte, stored, actual uint32, ok bool) {
	if len(framed) < ChecksumSize {
		return nil, 0, 0, false
	}
	n := len(framed) - ChecksumSize
	data = framed[:n]
	stored = binary.LittleEndian.Uint32(framed[n:])
	return data, stored, ComputeChecksum(data), true
}

// ValidateAndStripChecksum validates the trailer and returns data without it.
func ValidateAndStripChecksum(framed []byte) ([]byte, bool) {
	data, stored, actual, ok := SplitChecksum(framed)
	if !ok || stored != actual {
		return nil, false
	}
	return data, true
}
