package builder

import "fmt"

// Accumulator collects embedding vectors into two parallel fixed-size
// containers indexed by record position: a flat row-major vector buffer and
// a filled flag per position. A position's vector is meaningful only while
// its flag is true; records that fail download, validation, decode, or
// embedding never set their flag, so they can never be mistaken for zero
// vectors. One goroutine writes at a time; the pipeline's phase barrier
// publishes the writes to readers.
type Accumulator struct {
	dim     int
	vectors []float32
	filled  []bool
}

// NewAccumulator creates an accumulator for n records of the given
// dimension.
func NewAccumulator(n, dim int) *Accumulator {
	return &Accumulator{
		dim:     dim,
		vectors: make([]float32, n*dim),
		filled:  make([]bool, n),
	}
}

// Set stores a vector at the given record position.
func (a *Accumulator) Set(pos int, vec []float32) error {
	if pos < 0 || pos >= len(a.filled) {
		return fmt.Errorf("position %d out of range [0,%d)", pos, len(a.filled))
	}
	if len(vec) != a.dim {
		return fmt.Errorf("vector dimension %d, want %d", len(vec), a.dim)
	}
	copy(a.vectors[pos*a.dim:(pos+1)*a.dim], vec)
	a.filled[pos] = true
	return nil
}

// Filled reports whether the position holds a vector.
func (a *Accumulator) Filled(pos int) bool {
	return a.filled[pos]
}

// FilledCount returns how many positions hold vectors.
func (a *Accumulator) FilledCount() int {
	count := 0
	for _, f := range a.filled {
		if f {
			count++
		}
	}
	return count
}

// Len returns the number of record positions.
func (a *Accumulator) Len() int {
	return len(a.filled)
}

// Dimension returns the vector dimension.
func (a *Accumulator) Dimension() int {
	return a.dim
}

// Vector returns the row at pos. The returned slice aliases the internal
// buffer.
func (a *Accumulator) Vector(pos int) []float32 {
	return a.vectors[pos*a.dim : (pos+1)*a.dim]
}

// Compact returns a copy of the filled vectors packed in position order,
// along with the original position of each packed row.
func (a *Accumulator) Compact() ([]float32, []int) {
	positions := make([]int, 0, len(a.filled))
	for pos, f := range a.filled {
		if f {
			positions = append(positions, pos)
		}
	}

	packed := make([]float32, 0, len(positions)*a.dim)
	for _, pos := range positions {
		packed = append(packed, a.Vector(pos)...)
	}
	return packed, positions
}
