package account

import (
	"sort"

	"github.com/google/uuid"
)

type positionKey struct {
	user     uuid.UUID
	marketID uint64
}

// Store holds every account record the engine owns. It is the single
// authority over Config, Market and UserPosition state; vault and fee-vault
// balances live in the ledger's balance tracker.
// Not thread-safe; only accessed from the single-threaded engine.
type Store struct {
	config    *Config
	markets   map[uint64]*Market
	positions map[positionKey]*UserPosition
}

func NewStore() *Store {
	return &Store{
		markets:   make(map[uint64]*Market),
		positions: make(map[positionKey]*UserPosition),
	}
}

// Config returns the singleton config, or nil before Initialize.
func (s *Store) Config() *Config {
	return s.config
}

// SetConfig installs the config record (Initialize and snapshot restore).
func (s *Store) SetConfig(c *Config) {
	s.config = c
}

// Market returns the market record for an id, or nil.
func (s *Store) Market(marketID uint64) *Market {
	return s.markets[marketID]
}

// SetMarket installs or replaces a market record.
func (s *Store) SetMarket(m *Market) {
	s.markets[m.MarketID] = m
}

// Position returns a user's position in a market, or nil.
func (s *Store) Position(user uuid.UUID, marketID uint64) *UserPosition {
	return s.positions[positionKey{user, marketID}]
}

// SetPosition installs or replaces a position record.
func (s *Store) SetPosition(p *UserPosition) {
	s.positions[positionKey{p.User, p.MarketID}] = p
}

// AllMarkets returns every market sorted by id (deterministic iteration).
func (s *Store) AllMarkets() []*Market {
	out := make([]*Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

// AllPositions returns every position sorted by (market, user).
func (s *Store) AllPositions() []*UserPosition {
	out := make([]*UserPosition, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].User.String() < out[j].User.String()
	})
	return out
}

// MarketPositions returns every position in one market sorted by user.
func (s *Store) MarketPositions(marketID uint64) []*UserPosition {
	out := make([]*UserPosition, 0)
	for _, p := range s.positions {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.String() < out[j].User.String() })
	return out
}
