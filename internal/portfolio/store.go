// Package portfolio stores the actor's holdings blob: a remote document
// for authenticated actors and a local JSON file per client for
// anonymous ones.
package portfolio

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/internal/remote"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

// ErrUnknownSymbol is returned when removing a symbol not in the
// portfolio.
var ErrUnknownSymbol = errors.New("symbol not in portfolio")

// Store reads and writes the portfolio blob for any actor.
type Store struct {
	mu      sync.Mutex
	remote  remote.Store
	dataDir string
	logger  *logger.Logger
}

// NewStore creates a portfolio store. dataDir backs anonymous actors.
func NewStore(rs remote.Store, dataDir string, log *logger.Logger) *Store {
	return &Store{remote: rs, dataDir: dataDir, logger: log}
}

// Get returns the actor's portfolio, empty when none was saved.
// clientID scopes the local file used for anonymous actors.
func (s *Store) Get(ctx context.Context, actor model.Actor, clientID string) (*model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, actor, clientID)
}

// Replace overwrites the actor's portfolio wholesale.
func (s *Store) Replace(ctx context.Context, actor model.Actor, clientID string, pf model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, actor, clientID, pf)
}

// Add merges a holding into the portfolio. An existing symbol has its
// quantity summed and its average price recomputed as the
// quantity-weighted mean of the old and new lots.
func (s *Store) Add(ctx context.Context, actor model.Actor, clientID string, stock model.PortfolioStock) (*model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.loadLocked(ctx, actor, clientID)
	if err != nil {
		return nil, err
	}

	merged := false
	for i := range pf.Stocks {
		if !strings.EqualFold(pf.Stocks[i].Symbol, stock.Symbol) {
			continue
		}
		have := &pf.Stocks[i]
		total := have.Quantity + stock.Quantity
		if total > 0 {
			have.AvgPrice = (have.AvgPrice*have.Quantity + stock.AvgPrice*stock.Quantity) / total
		}
		have.Quantity = total
		have.CurrentPrice = stock.CurrentPrice
		have.Change = stock.Change
		have.PercentChange = stock.PercentChange
		merged = true
		break
	}
	if !merged {
		pf.Stocks = append(pf.Stocks, stock)
	}

	if err := s.saveLocked(ctx, actor, clientID, *pf); err != nil {
		return nil, err
	}
	return pf, nil
}

// Remove drops a holding by symbol.
func (s *Store) Remove(ctx context.Context, actor model.Actor, clientID, symbol string) (*model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.loadLocked(ctx, actor, clientID)
	if err != nil {
		return nil, err
	}

	kept := pf.Stocks[:0]
	found := false
	for _, st := range pf.Stocks {
		if strings.EqualFold(st.Symbol, symbol) {
			found = true
			continue
		}
		kept = append(kept, st)
	}
	if !found {
		return nil, ErrUnknownSymbol
	}
	pf.Stocks = kept

	if err := s.saveLocked(ctx, actor, clientID, *pf); err != nil {
		return nil, err
	}
	return pf, nil
}

func (s *Store) loadLocked(ctx context.Context, actor model.Actor, clientID string) (*model.Portfolio, error) {
	if actor.IsAuthenticated() {
		pf, ok, err := s.remote.GetPortfolio(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &model.Portfolio{}, nil
		}
		return pf, nil
	}

	data, err := os.ReadFile(s.filePath(clientID))
	if err != nil {
		if os.IsNotExist(err) {
			return &model.Portfolio{}, nil
		}
		return nil, err
	}
	var pf model.Portfolio
	if err := json.Unmarshal(data, &pf); err != nil {
		s.logger.Warn("discarding malformed portfolio file", zap.Error(err))
		return &model.Portfolio{}, nil
	}
	return &pf, nil
}

func (s *Store) saveLocked(ctx context.Context, actor model.Actor, clientID string, pf model.Portfolio) error {
	if actor.IsAuthenticated() {
		return s.remote.PutPortfolio(ctx, actor.ID, pf)
	}

	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(pf)
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath(clientID), data, 0o644)
}

// filePath keys the anonymous portfolio file by client id so distinct
// clients never share holdings. The id is hashed because it may be a
// raw header value or a host:port remote address.
func (s *Store) filePath(clientID string) string {
	sum := sha256.Sum256([]byte(clientID))
	return filepath.Join(s.dataDir, fmt.Sprintf("portfolio-%x.json", sum[:8]))
}
