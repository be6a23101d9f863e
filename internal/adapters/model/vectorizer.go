package model

import (
	"math"
	"slices"
	"strings"
)

// SparseVector is a feature vector with ascending indices
type SparseVector struct {
	Indices []int
	Values  []float64
}

// Vectorizer turns text into TF-IDF weighted character n-gram features
type Vectorizer struct {
	params VectorizerParams
}

// NewVectorizer creates a vectorizer from validated parameters
func NewVectorizer(params VectorizerParams) *Vectorizer {
	return &Vectorizer{params: params}
}

// VocabularySize returns the dimension of the feature space
func (v *Vectorizer) VocabularySize() int {
	return len(v.params.Vocabulary)
}

// Transform encodes text. Unknown n-grams are ignored.
func (v *Vectorizer) Transform(text string) SparseVector {
	if v.params.Lowercase {
		text = strings.ToLower(text)
	}

	counts := make(map[int]int)
	v.ngrams(text, func(gram string) {
		if idx, ok := v.params.Vocabulary[gram]; ok {
			counts[idx]++
		}
	})

	vec := SparseVector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for idx := range counts {
		vec.Indices = append(vec.Indices, idx)
	}
	slices.Sort(vec.Indices)

	for _, idx := range vec.Indices {
		tf := float64(counts[idx])
		if v.params.SublinearTF {
			tf = 1 + math.Log(tf)
		}
		vec.Values = append(vec.Values, tf*v.params.IDF[idx])
	}

	normalize(vec.Values, v.params.Norm)
	return vec
}

// ngrams emits every n-gram of text in the configured range
func (v *Vectorizer) ngrams(text string, emit func(string)) {
	lo, hi := v.params.NgramRange[0], v.params.NgramRange[1]
	words := strings.Fields(text)

	if v.params.Analyzer == AnalyzerChar {
		charNgrams([]rune(strings.Join(words, " ")), lo, hi, emit)
		return
	}

	for _, w := range words {
		padded := []rune(" " + w + " ")
		for n := lo; n <= hi; n++ {
			if len(padded) <= n {
				// a short word is counted once, whole
				emit(string(padded))
				break
			}
			for i := 0; i+n <= len(padded); i++ {
				emit(string(padded[i : i+n]))
			}
		}
	}
}

func charNgrams(runes []rune, lo, hi int, emit func(string)) {
	for n := lo; n <= hi; n++ {
		for i := 0; i+n <= len(runes); i++ {
			emit(string(runes[i : i+n]))
		}
	}
}

func normalize(values []float64, norm string) {
	var total float64
	switch norm {
	case "l2":
		for _, x := range values {
			total += x * x
		}
		total = math.Sqrt(total)
	case "l1":
		for _, x := range values {
			total += math.Abs(x)
		}
	default:
		return
	}
	if total == 0 {
		return
	}
	for i := range values {
		values[i] /= total
	}
}
