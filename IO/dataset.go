package IO

import (
	"golang.org/x/exp/rand"

	"charlm/params"
)

// Dataset is a finite, indexable collection of windowed examples.
// Each example pairs a fixed-length input window with the same window
// shifted one position right.
type Dataset struct {
	Xs [][]int
	Ys [][]int
}

// NewDataset slices a text split into non-overlapping windows of
// windowLen token indices. Windows are emitted at stride windowLen
// while i+windowLen+2 <= len(split); the trailing partial window is
// dropped. Any character outside the vocabulary fails the build.
func NewDataset(split []rune, v params.Vocabulary, windowLen int) (*Dataset, error) {
	ids, err := Encode(v, split)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{}
	for i := 0; i+windowLen+2 <= len(ids); i += windowLen {
		ds.Xs = append(ds.Xs, ids[i:i+windowLen])
		ds.Ys = append(ds.Ys, ids[i+1:i+windowLen+1])
	}
	return ds, nil
}

func (d *Dataset) Len() int { return len(d.Xs) }

// Loader groups dataset examples into batches, reshuffling the order
// on every pass. It is restartable: Reset starts a fresh pass.
type Loader struct {
	ds        *Dataset
	batchSize int
	rng       *rand.Rand
	perm      []int
	pos       int
}

func NewLoader(ds *Dataset, batchSize int, rng *rand.Rand) *Loader {
	l := &Loader{ds: ds, batchSize: batchSize, rng: rng}
	l.Reset()
	return l
}

// Reset reshuffles the example order and rewinds to the start.
func (l *Loader) Reset() {
	l.perm = l.rng.Perm(l.ds.Len())
	l.pos = 0
}

// Next yields the next batch of the current pass, or ok=false when the
// pass is exhausted. The final batch may be short.
func (l *Loader) Next() (xs, ys [][]int, ok bool) {
	if l.pos >= len(l.perm) {
		return nil, nil, false
	}
	end := l.pos + l.batchSize
	if end > len(l.perm) {
		end = len(l.perm)
	}
	for _, idx := range l.perm[l.pos:end] {
		xs = append(xs, l.ds.Xs[idx])
		ys = append(ys, l.ds.Ys[idx])
	}
	l.pos = end
	return xs, ys, true
}
