package suggest

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-classifier/internal/classification"
	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/model"
)

type staticSource struct {
	err  error
	txns []model.Transaction
	// statementID records the last request.
	statementID int64
}

func (s *staticSource) GetUnmatchedTransactions(_ context.Context, statementID int64) ([]model.Transaction, error) {
	s.statementID = statementID
	return s.txns, s.err
}

func debit(id int64, desc string, amount int64) model.Transaction {
	return model.Transaction{ID: id, Description: desc, Debit: decimal.NewFromInt(amount), Credit: decimal.Zero}
}

func newTestMiner(txns ...model.Transaction) (*Miner, *staticSource) {
	src := &staticSource{txns: txns}
	return NewMiner(src, classification.NewDefaultExtractor(0), DefaultConfig()), src
}

func TestFrequencyOf(t *testing.T) {
	tests := []struct {
		want  Frequency
		count int
	}{
		{FrequencyRare, 1},
		{FrequencyOccasional, 2},
		{FrequencyOccasional, 4},
		{FrequencyRegular, 5},
		{FrequencyFrequent, 10},
		{FrequencyFrequent, 19},
		{FrequencyVeryFrequent, 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FrequencyOf(tt.count), "count %d", tt.count)
	}
}

func TestParseSortBy(t *testing.T) {
	got, err := ParseSortBy("")
	require.NoError(t, err)
	assert.Equal(t, SortByCount, got)

	got, err = ParseSortBy("Amount")
	require.NoError(t, err)
	assert.Equal(t, SortByAmount, got)

	_, err = ParseSortBy("alphabetical")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestMiner_Analyze_GroupsBySharedKeyword(t *testing.T) {
	m, src := newTestMiner(
		debit(1, "PEMBAYARAN INDOMARET JAKARTA", 25000),
		debit(2, "INDOMARET CABANG 12", 40000),
		debit(3, "TRX INDOMARET BSD", 10000),
		debit(4, "GRAB* JAKARTA", 30000),
		debit(5, "GRAB* BANDUNG", 18000),
		debit(6, "BIAYA ADMIN", 6500),
	)

	got, err := m.Analyze(context.Background(), 7, Filters{})
	require.NoError(t, err)
	assert.Equal(t, int64(7), src.statementID)
	require.Len(t, got, 2)

	assert.Equal(t, "INDOMARET", got[0].Keyword)
	assert.Equal(t, classification.KindRetail, got[0].Kind)
	assert.Equal(t, []int64{1, 2, 3}, got[0].TransactionIDs)
	assert.Equal(t, 3, got[0].Count)
	assert.Equal(t, FrequencyOccasional, got[0].Frequency)
	assert.True(t, decimal.NewFromInt(75000).Equal(got[0].TotalAmount))
	assert.True(t, decimal.NewFromInt(25000).Equal(got[0].AverageAmount))
	assert.Len(t, got[0].SampleDescriptions, 3)

	assert.Equal(t, "GRAB", got[1].Keyword)
	assert.Equal(t, []int64{4, 5}, got[1].TransactionIDs)
}

func TestMiner_Analyze_RespectsMinimumFrequency(t *testing.T) {
	m, _ := newTestMiner(
		debit(1, "PEMBAYARAN INDOMARET JAKARTA", 25000),
		debit(2, "INDOMARET CABANG 12", 40000),
		debit(3, "TRX INDOMARET BSD", 10000),
		debit(4, "GRAB* JAKARTA", 30000),
		debit(5, "GRAB* BANDUNG", 18000),
	)

	for _, minFrequency := range []int{1, 2, 3, 4} {
		got, err := m.Analyze(context.Background(), 0, Filters{MinFrequency: minFrequency})
		require.NoError(t, err)
		for _, s := range got {
			assert.GreaterOrEqual(t, s.Count, minFrequency)
		}
	}

	got, err := m.Analyze(context.Background(), 0, Filters{MinFrequency: 3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "INDOMARET", got[0].Keyword)
}

func TestMiner_Analyze_SkipsSimilarDescriptions(t *testing.T) {
	m, _ := newTestMiner(
		debit(1, "INDOMARET CABANG 12", 25000),
		debit(2, "INDOMARET CABANG 13", 40000),
		debit(3, "QRIS INDOMARET CABANG 14", 40000),
	)

	got, err := m.Analyze(context.Background(), 0, Filters{})
	require.NoError(t, err)
	require.Len(t, got, 1, "near-identical descriptions must not yield duplicate suggestions")
	assert.Equal(t, []int64{1, 2, 3}, got[0].TransactionIDs)
}

func TestMiner_Analyze_PrefersMultiWordKeyword(t *testing.T) {
	m, _ := newTestMiner(
		debit(1, "QRIS KOPI KENANGAN SENAYAN", 28000),
		debit(2, "KOPI KENANGAN GANDARIA", 31000),
	)

	got, err := m.Analyze(context.Background(), 0, Filters{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "KOPI KENANGAN", got[0].Keyword)
	assert.Equal(t, classification.KindRestaurant, got[0].Kind)
}

func TestMiner_Analyze_SortAndLimit(t *testing.T) {
	m, _ := newTestMiner(
		debit(1, "PEMBAYARAN INDOMARET JAKARTA", 1000),
		debit(2, "INDOMARET CABANG 12", 1000),
		debit(3, "TRX INDOMARET BSD", 1000),
		debit(4, "GRAB* JAKARTA", 500000),
		debit(5, "GRAB* BANDUNG", 500000),
	)
	ctx := context.Background()

	byAmount, err := m.Analyze(ctx, 0, Filters{SortBy: SortByAmount})
	require.NoError(t, err)
	require.Len(t, byAmount, 2)
	assert.Equal(t, "GRAB", byAmount[0].Keyword)

	limited, err := m.Analyze(ctx, 0, Filters{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "INDOMARET", limited[0].Keyword)
}

func TestMiner_Analyze_SourceError(t *testing.T) {
	src := &staticSource{err: errors.New("disk on fire")}
	m := NewMiner(src, classification.NewDefaultExtractor(0), Config{})

	_, err := m.Analyze(context.Background(), 1, Filters{})
	assert.ErrorContains(t, err, "disk on fire")
}

func TestSort_ByFrequency(t *testing.T) {
	suggestions := []Suggestion{
		{Keyword: "A", Count: 4, Frequency: FrequencyOf(4), TotalAmount: decimal.NewFromInt(900)},
		{Keyword: "B", Count: 12, Frequency: FrequencyOf(12), TotalAmount: decimal.NewFromInt(10)},
		{Keyword: "C", Count: 6, Frequency: FrequencyOf(6), TotalAmount: decimal.NewFromInt(50)},
	}
	Sort(suggestions, SortByFrequency)
	assert.Equal(t, "B", suggestions[0].Keyword)
	assert.Equal(t, "C", suggestions[1].Keyword)
	assert.Equal(t, "A", suggestions[2].Keyword)
}
