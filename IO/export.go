package IO

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"charlm/model"
)

// The checkpoint carries the architecture dimensions next to the
// weights so inference rebuilds the exact training-time model instead
// of trusting hard-coded sizes.

type paramBlob struct {
	Rows, Cols int
	Data       []float64
}

type checkpoint struct {
	VocabSize    int
	EmbeddingDim int
	HiddenSize   int
	Params       map[string]paramBlob
}

// SaveCheckpoint persists the model weights as a gob blob keyed by
// parameter name.
func SaveCheckpoint(path string, m *model.LstmLM) error {
	cp := checkpoint{
		VocabSize:    m.VocabSize,
		EmbeddingDim: m.EmbeddingDim,
		HiddenSize:   m.HiddenSize,
		Params:       make(map[string]paramBlob),
	}
	for _, p := range m.Params() {
		r, c := p.W.Dims()
		raw := p.W.RawMatrix()
		data := make([]float64, len(raw.Data))
		copy(data, raw.Data)
		cp.Params[p.Name] = paramBlob{Rows: r, Cols: c, Data: data}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// LoadCheckpoint rebuilds a model from a saved checkpoint, sized by
// the persisted dimensions.
func LoadCheckpoint(path string) (*model.LstmLM, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	var cp checkpoint
	if err := gob.NewDecoder(bytes.NewBuffer(raw)).Decode(&cp); err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	m := model.NewLstmLM(cp.VocabSize, cp.EmbeddingDim, cp.HiddenSize)
	for _, p := range m.Params() {
		blob, ok := cp.Params[p.Name]
		if !ok {
			return nil, fmt.Errorf("load checkpoint: missing parameter %q", p.Name)
		}
		r, c := p.W.Dims()
		if blob.Rows != r || blob.Cols != c {
			return nil, fmt.Errorf("load checkpoint: %q has shape %dx%d, want %dx%d",
				p.Name, blob.Rows, blob.Cols, r, c)
		}
		copy(p.W.RawMatrix().Data, blob.Data)
	}
	return m, nil
}
