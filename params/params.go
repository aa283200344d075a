package params

// Vocabulary is the ordered set of distinct characters observed in the
// training split. The order of Chars defines the index mapping; indices
// are contiguous from 0 and stable for the lifetime of a run.
type Vocabulary struct {
	Chars    []string
	CharToID map[string]int
}

func (v Vocabulary) Size() int { return len(v.Chars) }

// Lookup returns the index of a character, or false if it was never
// seen in the training split.
func (v Vocabulary) Lookup(r rune) (int, bool) {
	id, ok := v.CharToID[string(r)]
	return id, ok
}

type TrainingConfig struct {
	BatchSize    int // training mini-batch size; validation uses 2x
	WindowLen    int // characters per example
	EmbeddingDim int
	HiddenSize   int

	LearningRate float64
	WeightDecay  float64
	NumEpochs    int
	Seed         uint64

	AdamBeta1 float64 // default 0.9
	AdamBeta2 float64 // default 0.999
	AdamEps   float64 // default 1e-8

	TrainFrac float64 // fraction of the corpus used for training
}

// Fixed hyperparameters of the experiment (DO NOT CHANGE between a
// training run and the predictions read from its artifacts).
var Config = TrainingConfig{
	BatchSize:    300,
	WindowLen:    60,
	EmbeddingDim: 50,
	HiddenSize:   50,

	LearningRate: 0.003,
	WeightDecay:  0.0006,
	NumEpochs:    50,
	Seed:         0,

	AdamBeta1: 0.9,
	AdamBeta2: 0.999,
	AdamEps:   1e-8,

	TrainFrac: 0.7,
}
