package portfolio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/internal/remote"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

const testClient = "client-1"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(remote.NewMemoryStore(), t.TempDir(), logger.NewNop())
}

func TestGetEmptyPortfolio(t *testing.T) {
	s := newTestStore(t)

	pf, err := s.Get(context.Background(), model.Anonymous(), testClient)
	require.NoError(t, err)
	assert.Empty(t, pf.Stocks)
}

func TestAddNewSymbol(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pf, err := s.Add(ctx, model.Anonymous(), testClient, model.PortfolioStock{
		Symbol: "TCS", Name: "Tata Consultancy", Quantity: 10, AvgPrice: 3500,
	})
	require.NoError(t, err)
	require.Len(t, pf.Stocks, 1)

	// Anonymous portfolios survive in the data dir.
	pf, err = s.Get(ctx, model.Anonymous(), testClient)
	require.NoError(t, err)
	require.Len(t, pf.Stocks, 1)
	assert.Equal(t, "TCS", pf.Stocks[0].Symbol)
}

func TestAddMergesExistingLot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, model.Anonymous(), testClient, model.PortfolioStock{
		Symbol: "TCS", Quantity: 10, AvgPrice: 100,
	})
	require.NoError(t, err)

	pf, err := s.Add(ctx, model.Anonymous(), testClient, model.PortfolioStock{
		Symbol: "tcs", Quantity: 10, AvgPrice: 200, CurrentPrice: 210,
	})
	require.NoError(t, err)

	require.Len(t, pf.Stocks, 1)
	assert.Equal(t, 20.0, pf.Stocks[0].Quantity)
	// Weighted mean of the two lots.
	assert.InDelta(t, 150.0, pf.Stocks[0].AvgPrice, 1e-9)
	assert.Equal(t, 210.0, pf.Stocks[0].CurrentPrice)
}

func TestRemoveSymbol(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, model.Anonymous(), testClient, model.PortfolioStock{Symbol: "TCS", Quantity: 1})
	require.NoError(t, err)

	pf, err := s.Remove(ctx, model.Anonymous(), testClient, "TCS")
	require.NoError(t, err)
	assert.Empty(t, pf.Stocks)

	_, err = s.Remove(ctx, model.Anonymous(), testClient, "TCS")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestAnonymousClientsIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, model.Anonymous(), "client-a", model.PortfolioStock{
		Symbol: "TCS", Quantity: 10, AvgPrice: 3500,
	})
	require.NoError(t, err)

	// A different anonymous client never sees another client's holdings.
	pf, err := s.Get(ctx, model.Anonymous(), "client-b")
	require.NoError(t, err)
	assert.Empty(t, pf.Stocks)

	pf, err = s.Get(ctx, model.Anonymous(), "client-a")
	require.NoError(t, err)
	require.Len(t, pf.Stocks, 1)
	assert.Equal(t, "TCS", pf.Stocks[0].Symbol)
}

func TestAuthenticatedPortfolioUsesRemote(t *testing.T) {
	mem := remote.NewMemoryStore()
	s := NewStore(mem, t.TempDir(), logger.NewNop())
	ctx := context.Background()
	user := model.Authenticated("u1", "", "", "")

	_, err := s.Add(ctx, user, testClient, model.PortfolioStock{Symbol: "INFY", Quantity: 5, AvgPrice: 1500})
	require.NoError(t, err)

	pf, ok, err := mem.GetPortfolio(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, pf.Stocks, 1)
	assert.Equal(t, "INFY", pf.Stocks[0].Symbol)

	// The anonymous file store stays untouched.
	anonPf, err := s.Get(ctx, model.Anonymous(), testClient)
	require.NoError(t, err)
	assert.Empty(t, anonPf.Stocks)
}

func TestReplaceOverwritesWholesale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, model.Anonymous(), testClient, model.PortfolioStock{Symbol: "TCS", Quantity: 1})
	require.NoError(t, err)

	err = s.Replace(ctx, model.Anonymous(), testClient, model.Portfolio{
		Stocks: []model.PortfolioStock{{Symbol: "HDFC", Quantity: 2}},
	})
	require.NoError(t, err)

	pf, err := s.Get(ctx, model.Anonymous(), testClient)
	require.NoError(t, err)
	require.Len(t, pf.Stocks, 1)
	assert.Equal(t, "HDFC", pf.Stocks[0].Symbol)
}
