package model

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"charlm/utils"
)

// State is the recurrent memory carried across consecutive prediction
// steps within one generation session. Both matrices are (batch x H).
// A nil *State means "start from zeros".
type State struct {
	H *mat.Dense
	C *mat.Dense
}

// NamedParam pairs a parameter matrix with its gradient buffer under a
// stable name. The names key the checkpoint and the optimizer state.
type NamedParam struct {
	Name string
	W    *mat.Dense
	Grad *mat.Dense
}

// LstmLM is a character language model: embedding lookup, a single
// unidirectional LSTM layer, and a linear projection to the vocabulary.
type LstmLM struct {
	VocabSize    int
	EmbeddingDim int
	HiddenSize   int

	Emb *mat.Dense // (V x E)

	// LSTM gate weights, forget/input/candidate/output order.
	Wf, Wi, Wc, Wo *mat.Dense // input weights (E x H)
	Uf, Ui, Uc, Uo *mat.Dense // recurrent weights (H x H)
	Bf, Bi, Bc, Bo *mat.Dense // biases (1 x H)

	Wy *mat.Dense // projection (H x V)
	By *mat.Dense // (1 x V)

	dEmb               *mat.Dense
	dWf, dWi, dWc, dWo *mat.Dense
	dUf, dUi, dUc, dUo *mat.Dense
	dBf, dBi, dBc, dBo *mat.Dense
	dWy                *mat.Dense
	dBy                *mat.Dense

	cache *forwardCache
}

// forwardCache keeps everything Backward needs for BPTT.
type forwardCache struct {
	tokens [][]int
	xs     []*mat.Dense // embedded inputs per step (B x E)
	hs, cs []*mat.Dense // states, index 0 is the zero initial state
	fg, ig, cg, og []*mat.Dense // gate activations per step (B x H)
}

// NewLstmLM allocates a model with zeroed weights; call InitWeights
// before training. Loading a checkpoint overwrites the zeros directly.
func NewLstmLM(vocabSize, embeddingDim, hiddenSize int) *LstmLM {
	m := &LstmLM{
		VocabSize:    vocabSize,
		EmbeddingDim: embeddingDim,
		HiddenSize:   hiddenSize,

		Emb: utils.Zeros(vocabSize, embeddingDim),
		Wf:  utils.Zeros(embeddingDim, hiddenSize),
		Wi:  utils.Zeros(embeddingDim, hiddenSize),
		Wc:  utils.Zeros(embeddingDim, hiddenSize),
		Wo:  utils.Zeros(embeddingDim, hiddenSize),
		Uf:  utils.Zeros(hiddenSize, hiddenSize),
		Ui:  utils.Zeros(hiddenSize, hiddenSize),
		Uc:  utils.Zeros(hiddenSize, hiddenSize),
		Uo:  utils.Zeros(hiddenSize, hiddenSize),
		Bf:  utils.Zeros(1, hiddenSize),
		Bi:  utils.Zeros(1, hiddenSize),
		Bc:  utils.Zeros(1, hiddenSize),
		Bo:  utils.Zeros(1, hiddenSize),
		Wy:  utils.Zeros(hiddenSize, vocabSize),
		By:  utils.Zeros(1, vocabSize),
	}
	m.dEmb = utils.ZerosLike(m.Emb)
	m.dWf, m.dWi, m.dWc, m.dWo = utils.ZerosLike(m.Wf), utils.ZerosLike(m.Wi), utils.ZerosLike(m.Wc), utils.ZerosLike(m.Wo)
	m.dUf, m.dUi, m.dUc, m.dUo = utils.ZerosLike(m.Uf), utils.ZerosLike(m.Ui), utils.ZerosLike(m.Uc), utils.ZerosLike(m.Uo)
	m.dBf, m.dBi, m.dBc, m.dBo = utils.ZerosLike(m.Bf), utils.ZerosLike(m.Bi), utils.ZerosLike(m.Bc), utils.ZerosLike(m.Bo)
	m.dWy = utils.ZerosLike(m.Wy)
	m.dBy = utils.ZerosLike(m.By)
	return m
}

// InitWeights fills the parameters with small uniform values scaled by
// fan-in. The forget gate bias starts at 1.
func (m *LstmLM) InitWeights(src rand.Source) {
	e, h := float64(m.EmbeddingDim), float64(m.HiddenSize)

	fill := func(w *mat.Dense, fanIn float64) {
		r, c := w.Dims()
		raw := w.RawMatrix()
		copy(raw.Data, utils.RandomArray(r*c, fanIn, src))
	}

	fill(m.Emb, e)
	for _, w := range []*mat.Dense{m.Wf, m.Wi, m.Wc, m.Wo} {
		fill(w, e)
	}
	for _, w := range []*mat.Dense{m.Uf, m.Ui, m.Uc, m.Uo} {
		fill(w, h)
	}
	fill(m.Wy, h)

	for j := 0; j < m.HiddenSize; j++ {
		m.Bf.Set(0, j, 1.0)
	}
}

// Params lists every trainable parameter with its gradient buffer.
// Order and names are stable; the checkpoint format depends on them.
func (m *LstmLM) Params() []NamedParam {
	return []NamedParam{
		{"embedding.weight", m.Emb, m.dEmb},
		{"lstm.w_f", m.Wf, m.dWf},
		{"lstm.w_i", m.Wi, m.dWi},
		{"lstm.w_c", m.Wc, m.dWc},
		{"lstm.w_o", m.Wo, m.dWo},
		{"lstm.u_f", m.Uf, m.dUf},
		{"lstm.u_i", m.Ui, m.dUi},
		{"lstm.u_c", m.Uc, m.dUc},
		{"lstm.u_o", m.Uo, m.dUo},
		{"lstm.b_f", m.Bf, m.dBf},
		{"lstm.b_i", m.Bi, m.dBi},
		{"lstm.b_c", m.Bc, m.dBc},
		{"lstm.b_o", m.Bo, m.dBo},
		{"fc.weight", m.Wy, m.dWy},
		{"fc.bias", m.By, m.dBy},
	}
}

// embed gathers embedding rows for position t of every sequence in the
// batch into a (B x E) matrix.
func (m *LstmLM) embed(tokens [][]int, t int) *mat.Dense {
	b := len(tokens)
	xt := mat.NewDense(b, m.EmbeddingDim, nil)
	for i := 0; i < b; i++ {
		id := tokens[i][t]
		if id < 0 || id >= m.VocabSize {
			panic(fmt.Sprintf("embed: token %d out of range [0,%d)", id, m.VocabSize))
		}
		xt.SetRow(i, m.Emb.RawRowView(id))
	}
	return xt
}

// gate computes act(xt*W + hPrev*U + b).
func gate(xt, hPrev, w, u, b *mat.Dense, act func(i, j int, v float64) float64) *mat.Dense {
	bs, _ := xt.Dims()
	_, units := w.Dims()
	pre := mat.NewDense(bs, units, nil)
	pre.Mul(xt, w)
	rec := mat.NewDense(bs, units, nil)
	rec.Mul(hPrev, u)
	pre.Add(pre, rec)
	utils.AddBiasRow(pre, b)
	pre.Apply(act, pre)
	return pre
}

// step runs one LSTM timestep and returns the new states plus the gate
// activations (needed by Backward).
func (m *LstmLM) step(xt, hPrev, cPrev *mat.Dense) (h, c, f, i, cc, o *mat.Dense) {
	bs, _ := xt.Dims()

	f = gate(xt, hPrev, m.Wf, m.Uf, m.Bf, utils.SigmoidApply)
	i = gate(xt, hPrev, m.Wi, m.Ui, m.Bi, utils.SigmoidApply)
	cc = gate(xt, hPrev, m.Wc, m.Uc, m.Bc, utils.TanhApply)
	o = gate(xt, hPrev, m.Wo, m.Uo, m.Bo, utils.SigmoidApply)

	// C_t = f ⊙ C_{t-1} + i ⊙ c̃
	c = mat.NewDense(bs, m.HiddenSize, nil)
	c.MulElem(f, cPrev)
	tmp := mat.NewDense(bs, m.HiddenSize, nil)
	tmp.MulElem(i, cc)
	c.Add(c, tmp)

	// h_t = o ⊙ tanh(C_t)
	h = mat.NewDense(bs, m.HiddenSize, nil)
	h.Apply(utils.TanhApply, c)
	h.MulElem(o, h)
	return
}

// project maps hidden state rows to vocabulary logits.
func (m *LstmLM) project(h *mat.Dense) *mat.Dense {
	bs, _ := h.Dims()
	logits := mat.NewDense(bs, m.VocabSize, nil)
	logits.Mul(h, m.Wy)
	utils.AddBiasRow(logits, m.By)
	return logits
}

// Forward runs the training-mode pass over a batch of equal-length
// token sequences and returns per-position log-probabilities, one
// (B x V) matrix per timestep. Activations are cached for Backward.
func (m *LstmLM) Forward(tokens [][]int) []*mat.Dense {
	if len(tokens) == 0 {
		panic("Forward: empty batch")
	}
	bs := len(tokens)
	seqLen := len(tokens[0])

	c := &forwardCache{
		tokens: tokens,
		xs:     make([]*mat.Dense, seqLen),
		hs:     make([]*mat.Dense, seqLen+1),
		cs:     make([]*mat.Dense, seqLen+1),
		fg:     make([]*mat.Dense, seqLen),
		ig:     make([]*mat.Dense, seqLen),
		cg:     make([]*mat.Dense, seqLen),
		og:     make([]*mat.Dense, seqLen),
	}
	c.hs[0] = utils.Zeros(bs, m.HiddenSize)
	c.cs[0] = utils.Zeros(bs, m.HiddenSize)

	logProbs := make([]*mat.Dense, seqLen)
	for t := 0; t < seqLen; t++ {
		xt := m.embed(tokens, t)
		h, cs, f, i, cc, o := m.step(xt, c.hs[t], c.cs[t])
		c.xs[t] = xt
		c.hs[t+1], c.cs[t+1] = h, cs
		c.fg[t], c.ig[t], c.cg[t], c.og[t] = f, i, cc, o
		logProbs[t] = utils.RowLogSoftmax(m.project(h))
	}
	m.cache = c
	return logProbs
}

// Predict runs an inference pass: same network, but the distribution
// is a temperature-scaled softmax and the recurrent state is threaded
// in and out so generation can proceed one token at a time. No
// activations are cached and no gradients are produced.
func (m *LstmLM) Predict(tokens [][]int, st *State, temperature float64) ([]*mat.Dense, *State, error) {
	if temperature <= 0 {
		return nil, nil, fmt.Errorf("model: temperature must be positive, got %g", temperature)
	}
	if len(tokens) == 0 {
		return nil, nil, fmt.Errorf("model: empty batch")
	}
	bs := len(tokens)
	seqLen := len(tokens[0])

	h := utils.Zeros(bs, m.HiddenSize)
	cs := utils.Zeros(bs, m.HiddenSize)
	if st != nil {
		h, cs = st.H, st.C
	}

	probs := make([]*mat.Dense, seqLen)
	for t := 0; t < seqLen; t++ {
		xt := m.embed(tokens, t)
		h, cs, _, _, _, _ = m.step(xt, h, cs)
		logits := m.project(h)
		if temperature != 1.0 {
			logits.Scale(1.0/temperature, logits)
		}
		probs[t] = utils.RowSoftmax(logits)
	}
	return probs, &State{H: h, C: cs}, nil
}

func (m *LstmLM) zeroGrads() {
	for _, p := range m.Params() {
		p.Grad.Zero()
	}
}

// Backward propagates gradients with respect to the projection logits
// (one (B x V) matrix per timestep, aligned with the last Forward call)
// back through the projection, the LSTM, and the embedding, filling the
// gradient buffers exposed by Params. The caller owns any loss
// normalization; no extra scaling happens here.
func (m *LstmLM) Backward(dLogits []*mat.Dense) {
	c := m.cache
	if c == nil {
		panic("Backward: no cached forward pass")
	}
	bs := len(c.tokens)
	seqLen := len(c.tokens[0])
	if len(dLogits) != seqLen {
		panic("Backward: gradient length mismatch")
	}

	m.zeroGrads()

	h := m.HiddenSize
	dhNext := utils.Zeros(bs, h)
	dcNext := utils.Zeros(bs, h)

	sigPrime := func(i, j int, v float64) float64 { return v * (1 - v) }
	tanhPrime := func(i, j int, v float64) float64 { return 1 - v*v }

	for t := seqLen - 1; t >= 0; t-- {
		dLog := dLogits[t]
		ht := c.hs[t+1]

		// Projection: Wy gradient, bias gradient, and dL/dh.
		gWy := utils.Zeros(h, m.VocabSize)
		gWy.Mul(ht.T(), dLog)
		m.dWy.Add(m.dWy, gWy)
		utils.AddColSums(m.dBy, dLog)

		dh := utils.Zeros(bs, h)
		dh.Mul(dLog, m.Wy.T())
		dh.Add(dh, dhNext)

		f, ig, cc, o := c.fg[t], c.ig[t], c.cg[t], c.og[t]
		cPrev, cT := c.cs[t], c.cs[t+1]
		hPrev := c.hs[t]
		xt := c.xs[t]

		tanhC := utils.Zeros(bs, h)
		tanhC.Apply(utils.TanhApply, cT)

		// dL/do = dh ⊙ tanh(C) ⊙ o(1-o)
		do := utils.Zeros(bs, h)
		do.MulElem(dh, tanhC)
		op := utils.Zeros(bs, h)
		op.Apply(sigPrime, o)
		do.MulElem(do, op)

		// dL/dC = dc_next + dh ⊙ o ⊙ (1 - tanh²(C))
		dc := utils.Zeros(bs, h)
		dc.MulElem(dh, o)
		tp := utils.Zeros(bs, h)
		tp.Apply(tanhPrime, tanhC)
		dc.MulElem(dc, tp)
		dc.Add(dc, dcNext)

		// dL/df = dC ⊙ C_{t-1} ⊙ f(1-f)
		df := utils.Zeros(bs, h)
		df.MulElem(dc, cPrev)
		fp := utils.Zeros(bs, h)
		fp.Apply(sigPrime, f)
		df.MulElem(df, fp)

		// dL/di = dC ⊙ c̃ ⊙ i(1-i)
		di := utils.Zeros(bs, h)
		di.MulElem(dc, cc)
		ip := utils.Zeros(bs, h)
		ip.Apply(sigPrime, ig)
		di.MulElem(di, ip)

		// dL/dc̃ = dC ⊙ i ⊙ (1-c̃²)
		dcc := utils.Zeros(bs, h)
		dcc.MulElem(dc, ig)
		cp := utils.Zeros(bs, h)
		cp.Apply(tanhPrime, cc)
		dcc.MulElem(dcc, cp)

		accum := func(dW, dU, dB *mat.Dense, dGate *mat.Dense) {
			gW := utils.Zeros(m.EmbeddingDim, h)
			gW.Mul(xt.T(), dGate)
			dW.Add(dW, gW)
			gU := utils.Zeros(h, h)
			gU.Mul(hPrev.T(), dGate)
			dU.Add(dU, gU)
			utils.AddColSums(dB, dGate)
		}
		accum(m.dWf, m.dUf, m.dBf, df)
		accum(m.dWi, m.dUi, m.dBi, di)
		accum(m.dWc, m.dUc, m.dBc, dcc)
		accum(m.dWo, m.dUo, m.dBo, do)

		// Gradient to the embedded input.
		dxt := utils.Zeros(bs, m.EmbeddingDim)
		tmp := utils.Zeros(bs, m.EmbeddingDim)
		dxt.Mul(df, m.Wf.T())
		tmp.Mul(di, m.Wi.T())
		dxt.Add(dxt, tmp)
		tmp.Mul(dcc, m.Wc.T())
		dxt.Add(dxt, tmp)
		tmp.Mul(do, m.Wo.T())
		dxt.Add(dxt, tmp)

		// Gradient to the previous hidden state.
		dhNext = utils.Zeros(bs, h)
		tmpH := utils.Zeros(bs, h)
		dhNext.Mul(df, m.Uf.T())
		tmpH.Mul(di, m.Ui.T())
		dhNext.Add(dhNext, tmpH)
		tmpH.Mul(dcc, m.Uc.T())
		dhNext.Add(dhNext, tmpH)
		tmpH.Mul(do, m.Uo.T())
		dhNext.Add(dhNext, tmpH)

		// Gradient to the previous cell state.
		dcNext = utils.Zeros(bs, h)
		dcNext.MulElem(dc, f)

		// Scatter input gradients into the embedding rows.
		for b := 0; b < bs; b++ {
			row := m.dEmb.RawRowView(c.tokens[b][t])
			for j := 0; j < m.EmbeddingDim; j++ {
				row[j] += dxt.At(b, j)
			}
		}
	}
}
