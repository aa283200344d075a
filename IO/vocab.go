package IO

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"charlm/params"
)

// BuildVocabulary derives the sorted set of distinct characters from
// the training split and assigns each a contiguous index from 0. The
// validation/inference character set must be a subset of this one.
func BuildVocabulary(train []rune) params.Vocabulary {
	seen := make(map[rune]bool, 128)
	for _, r := range train {
		seen[r] = true
	}
	distinct := make([]rune, 0, len(seen))
	for r := range seen {
		distinct = append(distinct, r)
	}
	sort.Slice(distinct, func(i, j int) bool { return distinct[i] < distinct[j] })

	v := params.Vocabulary{
		Chars:    make([]string, len(distinct)),
		CharToID: make(map[string]int, len(distinct)),
	}
	for i, r := range distinct {
		v.Chars[i] = string(r)
		v.CharToID[string(r)] = i
	}
	fmt.Printf("vocab size: %d\n", v.Size())
	return v
}

// Encode maps text to token indices. The first character missing from
// the vocabulary fails the whole encode.
func Encode(v params.Vocabulary, text []rune) ([]int, error) {
	ids := make([]int, len(text))
	for i, r := range text {
		id, ok := v.Lookup(r)
		if !ok {
			return nil, fmt.Errorf("encode: character %q not in vocabulary", r)
		}
		ids[i] = id
	}
	return ids, nil
}

// ExportVocabJSON writes the vocabulary as a JSON array of characters;
// array order defines the index mapping.
func ExportVocabJSON(path string, v params.Vocabulary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export vocab: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(v.Chars)
}

// ImportVocabJSON rebuilds a Vocabulary from a JSON character array.
func ImportVocabJSON(path string) (params.Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return params.Vocabulary{}, fmt.Errorf("import vocab: %w", err)
	}
	defer f.Close()
	var chars []string
	if err := json.NewDecoder(f).Decode(&chars); err != nil {
		return params.Vocabulary{}, fmt.Errorf("import vocab: %w", err)
	}
	v := params.Vocabulary{
		Chars:    chars,
		CharToID: make(map[string]int, len(chars)),
	}
	for i, ch := range chars {
		v.CharToID[ch] = i
	}
	return v, nil
}
