package model

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// lossOf sums -logp[gold] over every position. Its logit gradient is
// softmax - onehot, which is what Backward consumes.
func lossOf(logProbs []*mat.Dense, targets [][]int) float64 {
	loss := 0.0
	for t, lp := range logProbs {
		bs, _ := lp.Dims()
		for b := 0; b < bs; b++ {
			loss += -lp.At(b, targets[b][t])
		}
	}
	return loss
}

func dLogitsOf(logProbs []*mat.Dense, targets [][]int) []*mat.Dense {
	out := make([]*mat.Dense, len(logProbs))
	for t, lp := range logProbs {
		bs, v := lp.Dims()
		d := mat.NewDense(bs, v, nil)
		for b := 0; b < bs; b++ {
			for j := 0; j < v; j++ {
				d.Set(b, j, math.Exp(lp.At(b, j)))
			}
			gold := targets[b][t]
			d.Set(b, gold, d.At(b, gold)-1.0)
		}
		out[t] = d
	}
	return out
}

func finiteDiffCheck(t *testing.T, name string, param *mat.Dense, grad *mat.Dense,
	forward func() float64, i, j int) {
	t.Helper()

	eps := 1e-5
	w0 := param.At(i, j)

	param.Set(i, j, w0+eps)
	lp := forward()

	param.Set(i, j, w0-eps)
	lm := forward()

	param.Set(i, j, w0)

	numGrad := (lp - lm) / (2.0 * eps)
	anaGrad := grad.At(i, j)

	if math.Abs(numGrad-anaGrad) > 1e-4 {
		t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g",
			name, i, j, numGrad, anaGrad)
	}
}

func TestLstmGradCheck(t *testing.T) {
	rng := rand.NewSource(123)
	m := NewLstmLM(5, 3, 4)
	m.InitWeights(rng)

	tokens := [][]int{{0, 1, 2}, {3, 4, 1}}
	targets := [][]int{{1, 2, 3}, {4, 1, 0}}

	forward := func() float64 {
		return lossOf(m.Forward(tokens), targets)
	}

	logProbs := m.Forward(tokens)
	m.Backward(dLogitsOf(logProbs, targets))

	for _, p := range m.Params() {
		i, j := 0, 0
		if p.Name == "embedding.weight" {
			i = tokens[0][0] // rows of unused tokens get no gradient
		}
		finiteDiffCheck(t, p.Name, p.W, p.Grad, forward, i, j)
	}
}

func TestForwardLogProbsNormalized(t *testing.T) {
	m := NewLstmLM(6, 3, 4)
	m.InitWeights(rand.NewSource(7))

	logProbs := m.Forward([][]int{{0, 2, 4, 5}})
	for step, lp := range logProbs {
		sum := 0.0
		for j := 0; j < 6; j++ {
			sum += math.Exp(lp.At(0, j))
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Fatalf("step %d: probabilities sum to %g, want 1", step, sum)
		}
	}
}

// Feeding a sequence one token at a time with carried state must match
// the full-sequence pass at the final position.
func TestPredictStateCarry(t *testing.T) {
	m := NewLstmLM(5, 3, 4)
	m.InitWeights(rand.NewSource(99))

	seq := []int{0, 1, 2, 3, 4, 2}

	full, _, err := m.Predict([][]int{seq}, nil, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	want := full[len(full)-1]

	var st *State
	var got *mat.Dense
	for _, tok := range seq {
		probs, next, err := m.Predict([][]int{{tok}}, st, 1.0)
		if err != nil {
			t.Fatal(err)
		}
		st = next
		got = probs[0]
	}

	for j := 0; j < 5; j++ {
		if math.Abs(got.At(0, j)-want.At(0, j)) > 1e-12 {
			t.Fatalf("prob[%d]: stepwise %g, full %g", j, got.At(0, j), want.At(0, j))
		}
	}
}

// Temperature tau turns p into p^(1/tau) renormalized.
func TestPredictTemperatureSharpens(t *testing.T) {
	m := NewLstmLM(5, 3, 4)
	m.InitWeights(rand.NewSource(5))

	seq := []int{1, 3}
	base, _, err := m.Predict([][]int{seq}, nil, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	sharp, _, err := m.Predict([][]int{seq}, nil, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	last := len(seq) - 1
	sum := 0.0
	for j := 0; j < 5; j++ {
		p := base[last].At(0, j)
		sum += p * p
	}
	for j := 0; j < 5; j++ {
		p := base[last].At(0, j)
		want := p * p / sum
		if math.Abs(sharp[last].At(0, j)-want) > 1e-9 {
			t.Fatalf("temperature 0.5 prob[%d] = %g, want %g", j, sharp[last].At(0, j), want)
		}
	}
}

func TestPredictRejectsBadTemperature(t *testing.T) {
	m := NewLstmLM(5, 3, 4)
	m.InitWeights(rand.NewSource(1))

	for _, temp := range []float64{0, -0.5} {
		if _, _, err := m.Predict([][]int{{0}}, nil, temp); err == nil {
			t.Fatalf("temperature %g: expected error", temp)
		}
	}
}
