package optimizations

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestAdamMovesAgainstGradient(t *testing.T) {
	p := mat.NewDense(1, 2, []float64{1.0, -1.0})
	g := mat.NewDense(1, 2, []float64{0.5, -0.5})
	st := NewOptState(p)

	st.T++
	AdamUpdateInPlace(p, g, st.M, st.V, st.T, 0.01, 0.9, 0.999, 1e-8, 0)

	if p.At(0, 0) >= 1.0 {
		t.Fatalf("positive gradient did not decrease parameter: %g", p.At(0, 0))
	}
	if p.At(0, 1) <= -1.0 {
		t.Fatalf("negative gradient did not increase parameter: %g", p.At(0, 1))
	}
}

func TestAdamWeightDecayShrinksWeights(t *testing.T) {
	p := mat.NewDense(1, 1, []float64{2.0})
	g := mat.NewDense(1, 1, nil) // zero gradient
	st := NewOptState(p)

	prev := p.At(0, 0)
	for i := 0; i < 10; i++ {
		st.T++
		AdamUpdateInPlace(p, g, st.M, st.V, st.T, 0.1, 0.9, 0.999, 1e-8, 0.01)
		if p.At(0, 0) >= prev {
			t.Fatalf("step %d: weight decay did not shrink parameter (%g -> %g)", i, prev, p.At(0, 0))
		}
		prev = p.At(0, 0)
	}
}
