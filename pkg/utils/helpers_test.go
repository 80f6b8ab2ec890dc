package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSemaphoreLimit(t *testing.T) {
	t.Setenv("SEMAPHORE_LIMIT", "")
	assert.Equal(t, DefaultSemaphoreLimit, GetSemaphoreLimit())

	t.Setenv("SEMAPHORE_LIMIT", "3")
	assert.Equal(t, 3, GetSemaphoreLimit())

	t.Setenv("SEMAPHORE_LIMIT", "nope")
	assert.Equal(t, DefaultSemaphoreLimit, GetSemaphoreLimit())
}

func TestValidateID(t *testing.T) {
	for _, id := range []string{"abc", "sparse_join-abt-buy.regex.k100", "A1"} {
		assert.NoError(t, ValidateID(id), id)
	}
	for _, id := range []string{"", ".", "..", "../etc", "a/b", "a b"} {
		assert.ErrorIs(t, ValidateID(id), ErrInvalidID, id)
	}
}

func TestGenerateUUID(t *testing.T) {
	a, b := GenerateUUID(), GenerateUUID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestBatchAndFirstError(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3}}, Batch([]int{1, 2, 3}, 2))
	assert.Nil(t, Batch([]int{}, 2))
	assert.NoError(t, FirstError([]error{nil, nil}))
	assert.ErrorIs(t, FirstError([]error{nil, ErrInvalidID}), ErrInvalidID)
}

type parquetRow struct {
	Step   int64   `parquet:"step"`
	Metric string  `parquet:"metric"`
	Value  float64 `parquet:"value"`
}

func TestParquetFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.parquet")
	rows := []parquetRow{{Step: 0, Metric: "recall", Value: 0.9}, {Step: 1, Metric: "f1", Value: 0.5}}

	require.NoError(t, WriteParquetFile(path, rows))
	assert.NoFileExists(t, path+".tmp")

	got, err := ReadParquetFile[parquetRow](path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}
