package lexindex

import "fmt"

// Matrix is a compressed sparse row matrix of tf-idf weights. Row i holds
// columns Indices[IndPtr[i]:IndPtr[i+1]] in ascending order.
type Matrix struct {
	Rows    int       `cbor:"rows"`
	Cols    int       `cbor:"cols"`
	IndPtr  []int     `cbor:"indptr"`
	Indices []int     `cbor:"indices"`
	Data    []float64 `cbor:"data"`
}

func newMatrix(cols int) *Matrix {
	return &Matrix{Cols: cols, IndPtr: []int{0}}
}

func (m *Matrix) appendRow(cols []int, weights []float64) {
	m.Indices = append(m.Indices, cols...)
	m.Data = append(m.Data, weights...)
	m.IndPtr = append(m.IndPtr, len(m.Indices))
	m.Rows++
}

// Row returns the column indices and weights stored for row i.
func (m *Matrix) Row(i int) ([]int, []float64) {
	start, end := m.IndPtr[i], m.IndPtr[i+1]
	return m.Indices[start:end], m.Data[start:end]
}

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int {
	return len(m.Data)
}

// dot computes the product of every row with a sparse, column-sorted vector.
func (m *Matrix) dot(cols []int, weights []float64) []float64 {
	scores := make([]float64, m.Rows)
	if len(cols) == 0 {
		return scores
	}
	for i := 0; i < m.Rows; i++ {
		rowCols, rowVals := m.Row(i)
		var s float64
		a, b := 0, 0
		for a < len(rowCols) && b < len(cols) {
			switch {
			case rowCols[a] == cols[b]:
				s += rowVals[a] * weights[b]
				a++
				b++
			case rowCols[a] < cols[b]:
				a++
			default:
				b++
			}
		}
		scores[i] = s
	}
	return scores
}

func (m *Matrix) validate() error {
	if len(m.IndPtr) != m.Rows+1 {
		return fmt.Errorf("indptr length %d for %d rows", len(m.IndPtr), m.Rows)
	}
	if len(m.Indices) != len(m.Data) {
		return fmt.Errorf("%d indices for %d values", len(m.Indices), len(m.Data))
	}
	if m.IndPtr[0] != 0 || m.IndPtr[m.Rows] != len(m.Data) {
		return fmt.Errorf("indptr does not span the data")
	}
	for i := 0; i < m.Rows; i++ {
		start, end := m.IndPtr[i], m.IndPtr[i+1]
		if start > end {
			return fmt.Errorf("row %d has negative length", i)
		}
		for j := start; j < end; j++ {
			if m.Indices[j] < 0 || m.Indices[j] >= m.Cols {
				return fmt.Errorf("row %d references column %d of %d", i, m.Indices[j], m.Cols)
			}
			if j > start && m.Indices[j] <= m.Indices[j-1] {
				return fmt.Errorf("row %d columns are not strictly ascending", i)
			}
		}
	}
	return nil
}
