package datasets

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/soundprediction/uniblocker/pkg/tokenize"
	"github.com/soundprediction/uniblocker/pkg/types"
)

// Encoder converts preprocessed record batches into model inputs.
type Encoder interface {
	ConvertToFeatures(features types.Features) (types.Features, error)
	// FeatureColumns lists the features handed to loaders; nil keeps all.
	FeatureColumns() []string
}

// Collator is implemented by encoders with their own batch collation.
type Collator interface {
	Collate(ctx context.Context, rows []types.Features) (types.Features, error)
}

// Feature names produced by SerializingEncoder.
const (
	FeatureText          = "text"
	FeatureInputIDs      = "input_ids"
	FeatureAttentionMask = "attention_mask"
)

// Reserved ids of the hashed vocabulary.
const (
	PadID = 0
	ClsID = 1
	SepID = 2

	numReserved = 3
)

// SerializingEncoder serialises records as "[COL] c [VAL] v ..." text and
// maps tokens to ids by feature hashing into a fixed vocabulary.
type SerializingEncoder struct {
	Tokenizer tokenize.Tokenizer
	VocabSize int
	MaxLength int
}

// NewSerializingEncoder returns an encoder with a 2^18 vocabulary and 256
// token limit. A nil tokenizer selects tokenize.Default.
func NewSerializingEncoder(tok tokenize.Tokenizer) *SerializingEncoder {
	if tok == nil {
		tok = tokenize.Default()
	}
	return &SerializingEncoder{Tokenizer: tok, VocabSize: 1 << 18, MaxLength: 256}
}

// Serialize renders one record.
func Serialize(fields []types.Field) string {
	var sb strings.Builder
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("[COL] ")
		sb.WriteString(f.Column)
		sb.WriteString(" [VAL] ")
		sb.WriteString(f.Value)
	}
	return sb.String()
}

// TokenID hashes a token into [numReserved, vocabSize).
func (e *SerializingEncoder) TokenID(token string) int {
	return numReserved + int(xxhash.Sum64String(token)%uint64(e.VocabSize-numReserved))
}

// ConvertToFeatures implements Encoder.
func (e *SerializingEncoder) ConvertToFeatures(features types.Features) (types.Features, error) {
	if e.VocabSize <= numReserved {
		return nil, fmt.Errorf("vocabulary size %d too small", e.VocabSize)
	}
	records := features.Records()
	if records == nil {
		if _, ok := features[types.RecordKey]; !ok {
			return nil, fmt.Errorf("missing %q feature", types.RecordKey)
		}
	}

	texts := make([]string, len(records))
	ids := make([][]int, len(records))
	masks := make([][]int, len(records))
	for i, rec := range records {
		texts[i] = Serialize(rec)
		tokens := e.Tokenizer.Tokenize(texts[i])

		row := make([]int, 0, min(len(tokens)+2, max(e.MaxLength, 2)))
		row = append(row, ClsID)
		for _, tok := range tokens {
			if e.MaxLength > 0 && len(row) >= e.MaxLength-1 {
				break
			}
			row = append(row, e.TokenID(tok))
		}
		row = append(row, SepID)
		ids[i] = row

		mask := make([]int, len(row))
		for j := range mask {
			mask[j] = 1
		}
		masks[i] = mask
	}

	return types.Features{
		FeatureText:          texts,
		FeatureInputIDs:      ids,
		FeatureAttentionMask: masks,
	}, nil
}

// FeatureColumns implements Encoder.
func (e *SerializingEncoder) FeatureColumns() []string {
	return []string{FeatureInputIDs, FeatureAttentionMask}
}

// Collate pads input ids and attention masks to the longest row.
func (e *SerializingEncoder) Collate(_ context.Context, rows []types.Features) (types.Features, error) {
	width := 0
	for _, r := range rows {
		ids, _ := r[FeatureInputIDs].([]int)
		width = max(width, len(ids))
	}
	ids := make([][]int, len(rows))
	masks := make([][]int, len(rows))
	for i, r := range rows {
		src, ok := r[FeatureInputIDs].([]int)
		if !ok {
			return nil, fmt.Errorf("row %d lacks %s", i, FeatureInputIDs)
		}
		ids[i] = make([]int, width)
		masks[i] = make([]int, width)
		copy(ids[i], src)
		for j := range src {
			masks[i][j] = 1
		}
	}
	return types.Features{FeatureInputIDs: ids, FeatureAttentionMask: masks}, nil
}
