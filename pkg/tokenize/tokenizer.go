// Package tokenize provides the tokenisation strategies swept by the
// baselines: regex words, whitespace, padded q-grams and HuggingFace subwords.
package tokenize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Strategy names.
const (
	None       = "none"
	Regex      = "regex"
	Whitespace = "whitespace"
	QGram      = "qgram"
	Subword    = "subword"
)

// DefaultNames lists every strategy in sweep order.
var DefaultNames = []string{None, Regex, Whitespace, QGram, Subword}

// ErrUnknownTokenizer is returned by Parse for unrecognised names.
var ErrUnknownTokenizer = errors.New("unknown tokenizer")

// Tokenizer splits text into tokens.
type Tokenizer interface {
	Name() string
	Tokenize(text string) []string
}

// Preparer is implemented by tokenizers that load resources before first use.
type Preparer interface {
	Prepare() error
}

// Prepare loads the tokenizer's resources if it needs any.
func Prepare(t Tokenizer) error {
	if p, ok := t.(Preparer); ok {
		return p.Prepare()
	}
	return nil
}

// Options configures Parse.
type Options struct {
	QGramSize    int
	SubwordModel string
	HFToken      string
}

// DefaultOptions returns the options used by the sweeps.
func DefaultOptions() Options {
	return Options{QGramSize: 5, SubwordModel: "bert-base-uncased"}
}

// Parse returns the tokenizer for name. "none" yields a nil Tokenizer, which
// baselines interpret as their built-in analyzer.
func Parse(name string, opts Options) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case None, "":
		return nil, nil
	case Regex:
		return NewRegex(), nil
	case Whitespace:
		return WhitespaceTokenizer{}, nil
	case QGram:
		return NewQGram(opts.QGramSize), nil
	case Subword:
		return NewHFSubword(opts.SubwordModel, opts.HFToken), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTokenizer, name)
}

// NameOf returns the strategy name of t, "none" for nil.
func NameOf(t Tokenizer) string {
	if t == nil {
		return None
	}
	return t.Name()
}

// Fingerprint identifies t together with its parameters, e.g. "qgram:5" or
// "subword:bert-base-uncased". Tokens are reusable across runs only when the
// fingerprints match.
func Fingerprint(t Tokenizer) string {
	switch t := t.(type) {
	case nil:
		return None
	case *QGramTokenizer:
		return fmt.Sprintf("%s:%d", QGram, t.Q)
	case *SubwordTokenizer:
		return Subword + ":" + t.Model()
	}
	return t.Name()
}

var wordRE = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// RegexTokenizer extracts runs of at least two word characters.
type RegexTokenizer struct {
	re        *regexp.Regexp
	lowercase bool
	name      string
}

// NewRegex returns the regex word tokenizer. Case is preserved.
func NewRegex() *RegexTokenizer {
	return &RegexTokenizer{re: wordRE, name: Regex}
}

// Default returns the analyzer used when no tokenizer is configured:
// lower-cased regex words.
func Default() Tokenizer {
	return &RegexTokenizer{re: wordRE, lowercase: true, name: "default"}
}

func (r *RegexTokenizer) Name() string { return r.name }

func (r *RegexTokenizer) Tokenize(text string) []string {
	if r.lowercase {
		text = strings.ToLower(text)
	}
	return r.re.FindAllString(text, -1)
}

// WhitespaceTokenizer splits on Unicode whitespace.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Name() string { return Whitespace }

func (WhitespaceTokenizer) Tokenize(text string) []string { return strings.Fields(text) }

// QGramTokenizer produces overlapping character q-grams of the text padded
// with q-1 '#' characters in front and q-1 '$' characters behind.
type QGramTokenizer struct {
	Q int
}

// NewQGram returns a q-gram tokenizer; q below 1 selects 5.
func NewQGram(q int) *QGramTokenizer {
	if q < 1 {
		q = 5
	}
	return &QGramTokenizer{Q: q}
}

func (q *QGramTokenizer) Name() string { return QGram }

func (q *QGramTokenizer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	pad := q.Q - 1
	runes := make([]rune, 0, utf8.RuneCountInString(text)+2*pad)
	for i := 0; i < pad; i++ {
		runes = append(runes, '#')
	}
	runes = append(runes, []rune(text)...)
	for i := 0; i < pad; i++ {
		runes = append(runes, '$')
	}
	if len(runes) < q.Q {
		return nil
	}
	out := make([]string, 0, len(runes)-q.Q+1)
	for i := 0; i+q.Q <= len(runes); i++ {
		out = append(out, string(runes[i:i+q.Q]))
	}
	return out
}
