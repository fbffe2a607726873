// Package fec implements systematic Reed-Solomon forward error
// correction over GF(256): for a frame split into k source chunks,
// r = ceil(k*ratio) repair chunks are generated such that any k of the
// resulting k+r chunks reconstruct the original payload exactly. See
// DESIGN.md for why no third-party erasure-coding library could be
// wired here instead.
package fec

import (
	"fmt"
	"math"
)

// RepairCount returns r = ceil(k * ratio), the number of repair chunks
// to generate for k source chunks at the given per-layer FEC ratio. A
// ratio of zero means the layer is unprotected and RepairCount returns 0.
func RepairCount(k int, ratio float64) int {
	if ratio <= 0 || k <= 0 {
		return 0
	}
	return int(math.Ceil(float64(k) * ratio))
}

// SplitPayload divides payload into chunks of at most maxChunkSize bytes,
// used to carve an encoded frame into the k source chunks a FramePacket
// sequence carries. The final chunk is not zero-padded; callers need not
// pad before Encode, which pads internally via padded copies, leaving
// the originals untouched.
func SplitPayload(payload []byte, maxChunkSize int) [][]byte {
	if maxChunkSize <= 0 {
		maxChunkSize = len(payload)
	}
	if len(payload) == 0 {
		return [][]byte{{}}
	}
	n := (len(payload) + maxChunkSize - 1) / maxChunkSize
	chunks := make([][]byte, n)
	for i := 0; i < n; i++ {
		start := i * maxChunkSize
		end := start + maxChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks[i] = payload[start:end]
	}
	return chunks
}

// Encode generates r repair chunks for the given k source chunks at
// ratio. Source chunks may have differing lengths (the final chunk from
// SplitPayload is typically shorter); Encode pads internally to the
// longest chunk's length before the GF(256) matrix multiply and trims
// nothing from the result — repair chunks are always padded-length.
// Reconstruct uses originalLen to trim any padding back out.
func Encode(source [][]byte, ratio float64) [][]byte {
	k := len(source)
	r := RepairCount(k, ratio)
	if r == 0 {
		return nil
	}

	padded := padToLongest(source)
	enc := vandermondeEncodingMatrix(k, r)
	repairRows := enc[k:]
	return repairRows.multiplyVec(padded)
}

func padToLongest(chunks [][]byte) [][]byte {
	maxLen := 0
	for _, c := range chunks {
		if len(c) > maxLen {
			maxLen = len(c)
		}
	}
	out := make([][]byte, len(chunks))
	for i, c := range chunks {
		if len(c) == maxLen {
			out[i] = c
			continue
		}
		padded := make([]byte, maxLen)
		copy(padded, c)
		out[i] = padded
	}
	return out
}

// Reconstruct recovers the k original source chunks from any k of the
// k+r received chunks, keyed by their fec_index (0..k-1 are source
// passthrough rows of the systematic code, k..k+r-1 are repair rows).
// The padded chunk length is taken as the longest received chunk, and
// shorter chunks are zero-padded to it; originalLens, if non-nil, trims each recovered chunk back to its true length
// (needed because the final source chunk of a frame is usually shorter
// than the rest).
func Reconstruct(k int, received map[int][]byte, originalLens []int) ([][]byte, error) {
	if len(received) < k {
		return nil, fmt.Errorf("fec: need %d chunks to reconstruct, have %d", k, len(received))
	}

	// If every source chunk (index < k) was received directly, no matrix
	// work is needed at all — the common, loss-free case.
	if allSourcePresent(k, received) {
		out := make([][]byte, k)
		for i := 0; i < k; i++ {
			out[i] = received[i]
		}
		return trim(out, originalLens), nil
	}

	chunkLen := 0
	for _, c := range received {
		if len(c) > chunkLen {
			chunkLen = len(c)
		}
	}

	r := kRepairNeeded(received, k)
	full := vandermondeEncodingMatrix(k, r)

	indices := make([]int, 0, k)
	data := make([][]byte, 0, k)
	for idx := range received {
		indices = append(indices, idx)
	}
	sortInts(indices)
	indices = indices[:k]
	for _, idx := range indices {
		c := received[idx]
		if len(c) < chunkLen {
			padded := make([]byte, chunkLen)
			copy(padded, c)
			c = padded
		}
		data = append(data, c)
	}

	sub := full.subRows(indices)
	inv, err := sub.invert()
	if err != nil {
		return nil, fmt.Errorf("fec: reconstruct: %w", err)
	}

	recovered := inv.multiplyVec(data)
	return trim(recovered, originalLens), nil
}

func allSourcePresent(k int, received map[int][]byte) bool {
	for i := 0; i < k; i++ {
		if _, ok := received[i]; !ok {
			return false
		}
	}
	return true
}

func kRepairNeeded(received map[int][]byte, k int) int {
	maxIdx := k - 1
	for idx := range received {
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	return maxIdx - k + 1
}

func trim(chunks [][]byte, originalLens []int) [][]byte {
	if originalLens == nil {
		return chunks
	}
	out := make([][]byte, len(chunks))
	for i, c := range chunks {
		if i < len(originalLens) && originalLens[i] < len(c) {
			out[i] = c[:originalLens[i]]
		} else {
			out[i] = c
		}
	}
	return out
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
