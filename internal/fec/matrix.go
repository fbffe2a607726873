package fec

import "fmt"

// matrix is a row-major GF(256) matrix, used to build and invert the
// systematic Reed-Solomon encoding matrix.
type matrix [][]byte

func newMatrix(rows, cols int) matrix {
	m := make(matrix, rows)
	for i := range m {
		m[i] = make([]byte, cols)
	}
	return m
}

// vandermondeEncodingMatrix builds a (k+r) x k systematic encoding matrix:
// a (k+r) x k Vandermonde matrix over GF(256) on distinct nonzero points,
// multiplied by the inverse of its top k x k block so that the first k
// rows form the identity (source chunks pass through unchanged). Any k
// rows of a Vandermonde matrix on distinct points are linearly
// independent, and the multiplication preserves that, which is the
// property that makes "any k of k+r reconstructs" hold for every subset,
// not just a lucky one. Row i does not depend on r.
func vandermondeEncodingMatrix(k, r int) matrix {
	v := newMatrix(k+r, k)
	for i := 0; i < k+r; i++ {
		for j := 0; j < k; j++ {
			v[i][j] = gfPow(gfExp[i], j) // distinct nonzero point per row
		}
	}
	top := make([]int, k)
	for i := range top {
		top[i] = i
	}
	topInv, err := v.subRows(top).invert()
	if err != nil {
		panic(err) // unreachable: a Vandermonde matrix on distinct points is invertible
	}
	return v.multiplyVec(topInv)
}

// subRows extracts the rows at the given indices, in order.
func (m matrix) subRows(indices []int) matrix {
	out := newMatrix(len(indices), len(m[0]))
	for i, idx := range indices {
		copy(out[i], m[idx])
	}
	return out
}

// invert computes the inverse of a square GF(256) matrix via
// Gauss-Jordan elimination with partial pivoting.
func (m matrix) invert() (matrix, error) {
	n := len(m)
	work := newMatrix(n, 2*n)
	for i := 0; i < n; i++ {
		copy(work[i], m[i])
		work[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := -1
		for row := col; row < n; row++ {
			if work[row][col] != 0 {
				pivot = row
				break
			}
		}
		if pivot == -1 {
			return nil, fmt.Errorf("fec: matrix is singular, cannot invert")
		}
		work[col], work[pivot] = work[pivot], work[col]

		inv := gfDiv(1, work[col][col])
		for j := 0; j < 2*n; j++ {
			work[col][j] = gfMul(work[col][j], inv)
		}

		for row := 0; row < n; row++ {
			if row == col {
				continue
			}
			factor := work[row][col]
			if factor == 0 {
				continue
			}
			for j := 0; j < 2*n; j++ {
				work[row][j] ^= gfMul(factor, work[col][j])
			}
		}
	}

	out := newMatrix(n, n)
	for i := 0; i < n; i++ {
		copy(out[i], work[i][n:])
	}
	return out, nil
}

// multiplyVec computes m * vec where vec is a column of byte slices
// (chunks), i.e. out[i] = XOR over j of m[i][j] * vec[j], done
// byte-by-byte across each chunk.
func (m matrix) multiplyVec(vec [][]byte) [][]byte {
	rows, cols := len(m), len(m[0])
	chunkSize := 0
	if len(vec) > 0 {
		chunkSize = len(vec[0])
	}
	out := make([][]byte, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]byte, chunkSize)
		for j := 0; j < cols; j++ {
			coef := m[i][j]
			if coef == 0 {
				continue
			}
			src := vec[j]
			dst := out[i]
			for b := 0; b < chunkSize; b++ {
				dst[b] ^= gfMul(coef, src[b])
			}
		}
	}
	return out
}
