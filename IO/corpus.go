package IO

import (
	"fmt"
	"os"
)

// LoadCorpus reads a UTF-8 text file and returns its characters.
func LoadCorpus(path string) ([]rune, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	return []rune(string(raw)), nil
}

// SplitCorpus cuts the corpus into train/validation splits by a
// character-count prefix. The boundary is not shuffled.
func SplitCorpus(text []rune, trainFrac float64) (train, val []rune) {
	cut := int(float64(len(text)) * trainFrac)
	return text[:cut], text[cut:]
}
