package fec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRepairCount(t *testing.T) {
	require.Equal(t, 0, RepairCount(10, 0))
	require.Equal(t, 3, RepairCount(10, 0.25))
	require.Equal(t, 0, RepairCount(0, 0.5))
}

func TestSplitPayload(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 2500)
	chunks := SplitPayload(payload, 1000)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 1000)
	require.Len(t, chunks[1], 1000)
	require.Len(t, chunks[2], 500)

	var rebuilt []byte
	for _, c := range chunks {
		rebuilt = append(rebuilt, c...)
	}
	require.Equal(t, payload, rebuilt)
}

// TestAnyKOfKPlusRReconstructs checks that for any frame split into k
// source chunks with r repair chunks, any subset of size k of the k+r
// packets reconstructs the original payload.
func TestAnyKOfKPlusRReconstructs(t *testing.T) {
	payload := make([]byte, 4096)
	rng := rand.New(rand.NewSource(1))
	rng.Read(payload)

	source := SplitPayload(payload, 512)
	k := len(source)
	repair := Encode(source, 0.5)
	r := len(repair)
	require.Greater(t, r, 0)

	originalLens := make([]int, k)
	for i, c := range source {
		originalLens[i] = len(c)
	}

	all := make(map[int][]byte, k+r)
	for i, c := range source {
		all[i] = c
	}
	padded := padToLongest(source)
	for i, c := range repair {
		all[k+i] = c
		_ = padded
	}

	// Try every subset of size k drawn by dropping chunks one at a time,
	// including subsets that are all-repair when r >= k.
	for trial := 0; trial < 20; trial++ {
		subset := map[int][]byte{}
		perm := rng.Perm(k + r)
		for _, idx := range perm[:k] {
			subset[idx] = all[idx]
		}

		recovered, err := Reconstruct(k, subset, originalLens)
		require.NoError(t, err)

		var rebuilt []byte
		for _, c := range recovered {
			rebuilt = append(rebuilt, c...)
		}
		require.Equal(t, payload, rebuilt, "trial %d with subset %v", trial, perm[:k])
	}
}

func TestReconstructInsufficientChunks(t *testing.T) {
	source := SplitPayload(bytes.Repeat([]byte{1}, 100), 50)
	_, err := Reconstruct(len(source), map[int][]byte{0: source[0]}, nil)
	require.Error(t, err)
}

func TestReconstructAllSourcePresentFastPath(t *testing.T) {
	source := SplitPayload(bytes.Repeat([]byte{7}, 300), 100)
	received := map[int][]byte{0: source[0], 1: source[1], 2: source[2]}
	recovered, err := Reconstruct(3, received, nil)
	require.NoError(t, err)
	require.Equal(t, source, recovered)
}

func TestUnprotectedLayerHasNoRepairChunks(t *testing.T) {
	source := SplitPayload(bytes.Repeat([]byte{9}, 500), 100)
	repair := Encode(source, 0)
	require.Nil(t, repair)
}
