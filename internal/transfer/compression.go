package transfer

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// Algorithm names accepted on the CLI/config surface (spec.md §6).
type Algorithm string

const (
	AlgorithmNone    Algorithm = "none"
	AlgorithmLZ4     Algorithm = "lz4"
	AlgorithmDeflate Algorithm = "deflate"
)

// minCompressibleSize: files at or below this size are never
// compressed (spec.md §4.7).
const minCompressibleSize = 64

// precompressedExtensions lists container types whose payload is
// already entropy-dense, so compressing them again wastes cycles for
// no benefit (spec.md §4.7).
var precompressedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".zip": true,
	".gz": true, ".7z": true, ".mp3": true, ".mp4": true,
}

// precompressedMagic are the leading magic bytes of the same
// container types, checked independent of file extension.
var precompressedMagic = [][]byte{
	{0xFF, 0xD8, 0xFF},             // jpg
	{0x89, 'P', 'N', 'G'},          // png
	{'P', 'K', 0x03, 0x04},         // zip
	{0x1F, 0x8B},                   // gz
	{'7', 'z', 0xBC, 0xAF, 0x27},   // 7z
	{'I', 'D', '3'},                // mp3 (ID3 tag)
	{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p'}, // mp4
}

// Analyzer selects whether and how to compress a file before
// chunking, per spec.md §4.7.
type Analyzer struct {
	AbsoluteMaxDecompressedLen uint32
}

// Select returns the algorithm to use for fileName/data: AlgorithmNone
// if the file is too small or looks pre-compressed, AlgorithmLZ4
// otherwise.
func (a Analyzer) Select(fileName string, data []byte) Algorithm {
	if len(data) <= minCompressibleSize {
		return AlgorithmNone
	}
	if precompressedExtensions[strings.ToLower(filepath.Ext(fileName))] {
		return AlgorithmNone
	}
	for _, magic := range precompressedMagic {
		if bytes.HasPrefix(data, magic) {
			return AlgorithmNone
		}
	}
	return AlgorithmLZ4
}

// Metrics captures the outcome of a compression attempt (spec.md
// §4.7): ratio=compressed/original, savingsPercent=(1-ratio)*100,
// effective when ratio<0.95, bytesSaved saturating at 0.
type Metrics struct {
	OriginalSize   int
	CompressedSize int
}

func (m Metrics) Ratio() float64 {
	if m.OriginalSize == 0 {
		return 1
	}
	return float64(m.CompressedSize) / float64(m.OriginalSize)
}

func (m Metrics) SavingsPercent() float64 {
	return (1 - m.Ratio()) * 100
}

func (m Metrics) Effective() bool {
	return m.Ratio() < 0.95
}

func (m Metrics) BytesSaved() int {
	saved := m.OriginalSize - m.CompressedSize
	if saved < 0 {
		return 0
	}
	return saved
}

// CompressLZ4 compresses src, returning the compressed bytes and the
// resulting Metrics.
func CompressLZ4(src []byte) ([]byte, Metrics, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return nil, Metrics{}, err
	}
	if n == 0 {
		// incompressible: lz4 reports 0 when the block didn't shrink
		return src, Metrics{OriginalSize: len(src), CompressedSize: len(src)}, nil
	}
	return dst[:n], Metrics{OriginalSize: len(src), CompressedSize: n}, nil
}

// DecompressLZ4 decompresses an LZ4 block into a buffer of
// decompressedLen bytes, rejecting anything beyond maxDecompressedLen
// (the capability-negotiated ceiling from spec.md §4.7).
func DecompressLZ4(compressed []byte, decompressedLen int, maxDecompressedLen uint32) ([]byte, error) {
	if uint32(decompressedLen) > maxDecompressedLen {
		return nil, errRejected("decompressed length exceeds negotiated maximum")
	}
	dst := make([]byte, decompressedLen)
	n, err := lz4.UncompressBlock(compressed, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}
