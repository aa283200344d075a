package utils

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Matrix helpers shared by the model and the trainer. Shape violations
// are programmer errors and panic.

func Zeros(r, c int) *mat.Dense {
	return mat.NewDense(r, c, nil)
}

func ZerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}

// RandomArray draws size values uniformly from ±1/sqrt(fanIn).
func RandomArray(size int, fanIn float64, src rand.Source) []float64 {
	dist := distuv.Uniform{
		Min: -1 / math.Sqrt(fanIn),
		Max: 1 / math.Sqrt(fanIn),
		Src: src,
	}
	data := make([]float64, size)
	for i := range data {
		data[i] = dist.Rand()
	}
	return data
}

// Elementwise activations in mat.Dense.Apply form.

func SigmoidApply(i, j int, x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func TanhApply(i, j int, x float64) float64 {
	return math.Tanh(x)
}

// AddBiasRow adds a (1 x c) bias row to every row of m in place.
func AddBiasRow(m, bias *mat.Dense) {
	r, c := m.Dims()
	br, bc := bias.Dims()
	if br != 1 || bc != c {
		panic("AddBiasRow: bias must be (1 x c)")
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, m.At(i, j)+bias.At(0, j))
		}
	}
}

// AddColSums accumulates per-column sums of m into a (1 x c) row.
func AddColSums(dst, m *mat.Dense) {
	r, c := m.Dims()
	dr, dc := dst.Dims()
	if dr != 1 || dc != c {
		panic("AddColSums: dst must be (1 x c)")
	}
	for j := 0; j < c; j++ {
		sum := dst.At(0, j)
		for i := 0; i < r; i++ {
			sum += m.At(i, j)
		}
		dst.Set(0, j, sum)
	}
}

// RowSoftmax applies softmax independently to each row.
func RowSoftmax(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		mx := m.At(i, 0)
		for j := 1; j < c; j++ {
			if v := m.At(i, j); v > mx {
				mx = v
			}
		}
		sum := 0.0
		for j := 0; j < c; j++ {
			e := math.Exp(m.At(i, j) - mx)
			out.Set(i, j, e)
			sum += e
		}
		inv := 1.0 / sum
		for j := 0; j < c; j++ {
			out.Set(i, j, out.At(i, j)*inv)
		}
	}
	return out
}

// RowLogSoftmax applies log-softmax independently to each row.
func RowLogSoftmax(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		mx := m.At(i, 0)
		for j := 1; j < c; j++ {
			if v := m.At(i, j); v > mx {
				mx = v
			}
		}
		sum := 0.0
		for j := 0; j < c; j++ {
			sum += math.Exp(m.At(i, j) - mx)
		}
		lse := mx + math.Log(sum)
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(i, j)-lse)
		}
	}
	return out
}

// ArgmaxRow returns the column index of the largest value in row i.
func ArgmaxRow(m *mat.Dense, i int) int {
	_, c := m.Dims()
	best := 0
	bv := m.At(i, 0)
	for j := 1; j < c; j++ {
		if v := m.At(i, j); v > bv {
			bv = v
			best = j
		}
	}
	return best
}

// SampleRow draws a column index from row i of a probability matrix
// using a weighted (multinomial) draw.
func SampleRow(probs *mat.Dense, i int, rng *rand.Rand) int {
	_, c := probs.Dims()
	sum := 0.0
	for j := 0; j < c; j++ {
		sum += probs.At(i, j)
	}
	rnd := rng.Float64() * sum
	cum := 0.0
	for j := 0; j < c; j++ {
		cum += probs.At(i, j)
		if rnd < cum {
			return j
		}
	}
	return c - 1 // fallback
}
