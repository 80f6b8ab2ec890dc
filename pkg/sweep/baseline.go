package sweep

import (
	"fmt"

	"github.com/soundprediction/uniblocker/pkg/baselines"
	"github.com/soundprediction/uniblocker/pkg/tokenize"
)

// Baseline binds a join function to the tokenizer list and results
// directory its sweep always uses.
type Baseline struct {
	Name       string
	Join       baselines.JoinFunc
	Tokenizers []string
	// ResultsDir is resolved against the origin working directory.
	ResultsDir string
	// SubwordModel overrides the subword tokenizer model when set.
	SubwordModel string
}

// SparseJoin is the lexical sparse-join sweep.
func SparseJoin() Baseline {
	return Baseline{
		Name:         "sparse_join",
		Join:         baselines.SparseJoin,
		Tokenizers:   []string{tokenize.Regex, tokenize.Whitespace, tokenize.QGram, tokenize.Subword},
		ResultsDir:   "results",
		SubwordModel: "roberta-base",
	}
}

// NMSLibJoin is the approximate nearest-neighbour sweep.
func NMSLibJoin() Baseline {
	return Baseline{
		Name:         "nmslib_join",
		Join:         baselines.ANNJoin,
		Tokenizers:   []string{tokenize.None, tokenize.Regex, tokenize.Whitespace, tokenize.Subword},
		ResultsDir:   "../results",
		SubwordModel: "roberta-base",
	}
}

// BaselineFor returns the sweep for a registered baseline name. Names
// without a dedicated sweep use every tokenizer and the "results" directory.
func BaselineFor(name string) (Baseline, error) {
	switch name {
	case "sparse_join":
		return SparseJoin(), nil
	case "nmslib_join":
		return NMSLibJoin(), nil
	}
	join, err := baselines.Lookup(name)
	if err != nil {
		return Baseline{}, err
	}
	return Baseline{
		Name:       name,
		Join:       join,
		Tokenizers: tokenize.DefaultNames,
		ResultsDir: "results",
	}, nil
}

// Validate checks that the baseline can run.
func (b Baseline) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("baseline name is required")
	}
	if b.Join == nil {
		return fmt.Errorf("baseline %s has no join function", b.Name)
	}
	if len(b.Tokenizers) == 0 {
		return fmt.Errorf("baseline %s has no tokenizers", b.Name)
	}
	return nil
}
