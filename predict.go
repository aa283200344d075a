package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/exp/rand"

	"charlm/IO"
	"charlm/model"
	"charlm/params"
	"charlm/utils"
)

// Predictor loads the persisted vocabulary and weights and generates
// text autoregressively. Each Predict call is an independent session:
// recurrent state starts empty and is carried only across the steps of
// that call.
type Predictor struct {
	vocab params.Vocabulary
	model *model.LstmLM
}

func NewPredictor(resultsDir string) (*Predictor, error) {
	vocab, err := IO.ImportVocabJSON(filepath.Join(resultsDir, "vocab.json"))
	if err != nil {
		return nil, err
	}
	m, err := IO.LoadCheckpoint(filepath.Join(resultsDir, "model.bin"))
	if err != nil {
		return nil, err
	}
	if m.VocabSize != vocab.Size() {
		return nil, fmt.Errorf("predictor: checkpoint vocab size %d does not match vocab.json size %d",
			m.VocabSize, vocab.Size())
	}
	return &Predictor{vocab: vocab, model: m}, nil
}

// Predict seeds the model with text and samples maxLength characters,
// one at a time. The next index is drawn from the final position's
// distribution with a weighted (multinomial) draw, and only the newly
// sampled token is fed into the next step; the carried recurrent state
// retains the context. The returned string excludes the seed.
func (p *Predictor) Predict(seed string, maxLength int, temperature float64, rng *rand.Rand) (string, error) {
	ids, err := IO.Encode(p.vocab, []rune(seed))
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("predictor: empty seed text")
	}

	var st *model.State
	var out strings.Builder
	tokens := [][]int{ids}

	for n := 0; n < maxLength; n++ {
		probs, next, err := p.model.Predict(tokens, st, temperature)
		if err != nil {
			return "", err
		}
		st = next
		last := probs[len(probs)-1]
		id := utils.SampleRow(last, 0, rng)
		out.WriteString(p.vocab.Chars[id])
		tokens = [][]int{{id}}
	}
	return out.String(), nil
}
