package tokenize

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/gomlx/go-huggingface/tokenizers"
)

// SubwordModel is the part of a HuggingFace tokenizer the subword strategy
// needs.
type SubwordModel interface {
	Encode(text string) []int
	Decode(ids []int) string
}

// SubwordTokenizer splits text into the subword pieces of a pretrained
// vocabulary. The model is loaded on first use.
type SubwordTokenizer struct {
	model string
	load  func() (SubwordModel, error)

	once sync.Once
	impl SubwordModel
	err  error
}

// NewHFSubword returns a subword tokenizer backed by the HuggingFace Hub
// repository modelID.
func NewHFSubword(modelID, authToken string) *SubwordTokenizer {
	return NewSubword(modelID, func() (SubwordModel, error) {
		repo := hub.New(modelID)
		if authToken != "" {
			repo = repo.WithAuth(authToken)
		}
		tok, err := tokenizers.New(repo)
		if err != nil {
			return nil, err
		}
		return tok, nil
	})
}

// NewSubword returns a subword tokenizer using load to build the model.
func NewSubword(model string, load func() (SubwordModel, error)) *SubwordTokenizer {
	return &SubwordTokenizer{model: model, load: load}
}

func (s *SubwordTokenizer) Name() string { return Subword }

// Model returns the model identifier.
func (s *SubwordTokenizer) Model() string { return s.model }

// Prepare loads the model.
func (s *SubwordTokenizer) Prepare() error {
	s.once.Do(func() {
		s.impl, s.err = s.load()
		if s.err != nil {
			s.err = fmt.Errorf("failed to load subword tokenizer %s: %w", s.model, s.err)
		}
	})
	return s.err
}

// Tokenize returns one token per subword id. It returns nil if the model
// could not be loaded; call Prepare to observe the error.
func (s *SubwordTokenizer) Tokenize(text string) []string {
	if err := s.Prepare(); err != nil {
		return nil
	}
	ids := s.impl.Encode(text)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		piece := strings.TrimSpace(s.impl.Decode([]int{id}))
		if piece == "" {
			continue
		}
		out = append(out, piece)
	}
	return out
}
