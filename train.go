package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"charlm/IO"
	"charlm/model"
	"charlm/optimizations"
	"charlm/params"
	"charlm/utils"
)

// Trainer owns the batch loaders, the model, the per-parameter Adam
// state, and the results directory for one training run.
type Trainer struct {
	cfg         params.TrainingConfig
	vocab       params.Vocabulary
	trainLoader *IO.Loader
	valLoader   *IO.Loader
	model       *model.LstmLM
	opt         map[string]*optimizations.OptState
	resultsDir  string
	records     []IO.MetricsRow
}

func NewTrainer(cfg params.TrainingConfig, vocab params.Vocabulary,
	trainLoader, valLoader *IO.Loader, m *model.LstmLM, resultsDir string) *Trainer {
	return &Trainer{
		cfg:         cfg,
		vocab:       vocab,
		trainLoader: trainLoader,
		valLoader:   valLoader,
		model:       m,
		opt:         make(map[string]*optimizations.OptState),
		resultsDir:  resultsDir,
	}
}

// maskOf reports whether a position counts toward loss and accuracy.
// Index 0 is treated as padding, so the character that sorts first in
// the vocabulary is excluded from both.
func maskOf(token int) bool { return token > 0 }

// lossAndGrad computes the masked cross-entropy over a batch,
// normalized by the number of valid tokens, together with the gradient
// with respect to the projection logits. dLogits is nil when the batch
// has no valid tokens.
func lossAndGrad(logProbs []*mat.Dense, tokens, targets [][]int) (float64, []*mat.Dense) {
	bs := len(tokens)
	seqLen := len(tokens[0])
	_, vocabSize := logProbs[0].Dims()

	maskCount := 0
	for b := 0; b < bs; b++ {
		for t := 0; t < seqLen; t++ {
			if maskOf(tokens[b][t]) {
				maskCount++
			}
		}
	}
	if maskCount == 0 {
		return 0, nil
	}
	inv := 1.0 / float64(maskCount)

	sumLoss := 0.0
	dLogits := make([]*mat.Dense, seqLen)
	for t := 0; t < seqLen; t++ {
		d := utils.Zeros(bs, vocabSize)
		lp := logProbs[t]
		for b := 0; b < bs; b++ {
			if !maskOf(tokens[b][t]) {
				continue
			}
			gold := targets[b][t]
			sumLoss += -lp.At(b, gold)
			// d/dlogits of -logp[gold] is softmax - onehot.
			for j := 0; j < vocabSize; j++ {
				d.Set(b, j, math.Exp(lp.At(b, j))*inv)
			}
			d.Set(b, gold, d.At(b, gold)-inv)
		}
		dLogits[t] = d
	}
	return sumLoss * inv, dLogits
}

// evalBatch accumulates the raw masked loss, the number of correct
// top-1 predictions, and the valid-token count for one batch.
func evalBatch(logProbs []*mat.Dense, tokens, targets [][]int) (sumLoss float64, correct, tokensCount int) {
	bs := len(tokens)
	seqLen := len(tokens[0])
	for t := 0; t < seqLen; t++ {
		lp := logProbs[t]
		for b := 0; b < bs; b++ {
			if !maskOf(tokens[b][t]) {
				continue
			}
			tokensCount++
			gold := targets[b][t]
			sumLoss += -lp.At(b, gold)
			if utils.ArgmaxRow(lp, b) == gold {
				correct++
			}
		}
	}
	return
}

// TrainEpoch runs one full pass over the training loader and returns
// the per-batch losses in order.
func (t *Trainer) TrainEpoch() []float64 {
	var losses []float64
	t.trainLoader.Reset()
	for {
		xs, ys, ok := t.trainLoader.Next()
		if !ok {
			break
		}
		logProbs := t.model.Forward(xs)
		loss, dLogits := lossAndGrad(logProbs, xs, ys)
		if dLogits == nil {
			continue
		}
		t.model.Backward(dLogits)
		t.step()
		losses = append(losses, loss)
	}
	return losses
}

// step applies one Adam update to every parameter.
func (t *Trainer) step() {
	for _, p := range t.model.Params() {
		st := t.opt[p.Name]
		if st == nil {
			st = optimizations.NewOptState(p.W)
			t.opt[p.Name] = st
		}
		st.T++
		optimizations.AdamUpdateInPlace(p.W, p.Grad, st.M, st.V, st.T,
			t.cfg.LearningRate, t.cfg.AdamBeta1, t.cfg.AdamBeta2, t.cfg.AdamEps, t.cfg.WeightDecay)
	}
}

// Validate runs the whole validation set without gradient work and
// returns (average loss per valid token, top-1 accuracy).
func (t *Trainer) Validate() (float64, float64) {
	var sumLoss float64
	var correct, tokensCount int

	t.valLoader.Reset()
	for {
		xs, ys, ok := t.valLoader.Next()
		if !ok {
			break
		}
		logProbs := t.model.Forward(xs)
		l, c, n := evalBatch(logProbs, xs, ys)
		sumLoss += l
		correct += c
		tokensCount += n
	}
	if tokensCount == 0 {
		return 0, 0
	}
	return sumLoss / float64(tokensCount), float64(correct) / float64(tokensCount)
}

// Train runs a baseline validation, then numEpochs epochs of training
// and validation, logging every observation. Afterwards it persists
// the model, the vocabulary, and the metrics CSV.
func (t *Trainer) Train(numEpochs int) error {
	valLoss, accuracy := t.Validate()
	t.records = append(t.records, IO.ValRow(valLoss, accuracy))

	for epoch := 0; epoch < numEpochs; epoch++ {
		start := time.Now()

		losses := t.TrainEpoch()
		valLoss, accuracy = t.Validate()

		for _, l := range losses {
			t.records = append(t.records, IO.TrainRow(l))
		}
		t.records = append(t.records, IO.ValRow(valLoss, accuracy))

		last := math.NaN()
		if len(losses) > 0 {
			last = losses[len(losses)-1]
		}
		fmt.Printf("train %d/%d -- loss: %3.2f, val_loss: %3.2f, accuracy: %.1f%%  (%s)\n",
			epoch, numEpochs, last, valLoss, accuracy*100, time.Since(start).Round(time.Millisecond))
	}
	fmt.Printf("final accuracy: %g\n", accuracy)

	return t.saveResults()
}

func (t *Trainer) saveResults() error {
	if err := os.MkdirAll(t.resultsDir, 0755); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	if err := IO.SaveCheckpoint(filepath.Join(t.resultsDir, "model.bin"), t.model); err != nil {
		return err
	}
	if err := IO.ExportVocabJSON(filepath.Join(t.resultsDir, "vocab.json"), t.vocab); err != nil {
		return err
	}
	return IO.WriteMetricsCSV(filepath.Join(t.resultsDir, "train.csv"), t.records)
}
