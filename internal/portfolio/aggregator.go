package portfolio

import (
	"sort"

	"TradeSim/internal/domain/models"
)

// Position is the running accumulator for one symbol while folding the
// trade log. CostBasis is the total cost of the currently-held quantity.
type Position struct {
	Quantity    float64
	CostBasis   float64
	RealizedPnL float64
}

// AvgEntryPrice is the volume-weighted average cost of the held quantity,
// 0 when nothing is held.
func (p Position) AvgEntryPrice() float64 {
	if p.Quantity <= 0 {
		return 0
	}
	return p.CostBasis / p.Quantity
}

// Book holds per-symbol positions. The zero value is not usable; build one
// with NewBook or Rebuild.
type Book struct {
	positions map[string]Position
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{positions: make(map[string]Position)}
}

// FromHoldings reconstructs accumulator state from a holdings view plus the
// per-symbol realized P/L map, so that a single new trade can be applied
// without refolding the whole log. The map is authoritative for realized
// P/L: the holdings view filters out flat positions and would lose their
// accumulators otherwise.
func FromHoldings(holdings []models.Holding, realized map[string]float64) *Book {
	b := NewBook()
	for _, h := range holdings {
		b.positions[h.Symbol] = Position{
			Quantity:    h.Quantity,
			CostBasis:   h.AvgEntryPrice * h.Quantity,
			RealizedPnL: h.RealizedPnL,
		}
	}
	for sym, r := range realized {
		pos := b.positions[sym]
		pos.RealizedPnL = r
		b.positions[sym] = pos
	}
	return b
}

// Rebuild folds the full ordered trade log (oldest first) into a book.
func Rebuild(trades []*models.Trade) *Book {
	b := NewBook()
	for _, t := range trades {
		b.Apply(t)
	}
	return b
}

// Apply folds one trade into the book.
//
// Buys add quantity and cost. Sells preserve the per-unit average cost of the
// remaining quantity and clamp at zero: overselling is not an error and short
// positions are not representable. Realized P/L on the sold portion is
// accumulated against the average cost at the time of sale.
func (b *Book) Apply(t *models.Trade) {
	if t == nil || t.Quantity <= 0 {
		return
	}
	pos := b.positions[t.Symbol]
	switch t.Side {
	case models.SideBuy:
		pos.Quantity += t.Quantity
		pos.CostBasis += t.Quantity * t.EntryPrice
	case models.SideSell:
		avg := pos.AvgEntryPrice()
		sold := t.Quantity
		if sold > pos.Quantity {
			sold = pos.Quantity
		}
		pos.RealizedPnL += (t.EntryPrice - avg) * sold
		pos.Quantity -= sold
		pos.CostBasis = pos.Quantity * avg
	default:
		return
	}
	b.positions[t.Symbol] = pos
}

// Position returns the accumulator for a symbol (zero value if absent).
func (b *Book) Position(symbol string) Position {
	return b.positions[symbol]
}

// Realized returns the per-symbol realized P/L, including symbols whose
// position is flat. Round-trip this map through FromHoldings to keep realized
// figures across the holdings view's quantity filter.
func (b *Book) Realized() map[string]float64 {
	out := make(map[string]float64)
	for sym, pos := range b.positions {
		if pos.RealizedPnL != 0 {
			out[sym] = pos.RealizedPnL
		}
	}
	return out
}

// Holdings emits the open positions (quantity > 0) marked to the given price
// map, sorted by symbol for a stable view. A symbol missing from the price
// map keeps the fallback price supplied by prior, or 0 when unknown; the
// cost-basis fields never depend on prices, so price application and trade
// application commute.
func (b *Book) Holdings(prices map[string]float64, prior []models.Holding) []models.Holding {
	last := make(map[string]float64, len(prior))
	for _, h := range prior {
		last[h.Symbol] = h.MarketPrice
	}

	out := make([]models.Holding, 0, len(b.positions))
	for sym, pos := range b.positions {
		if pos.Quantity <= 0 {
			continue
		}
		mp, ok := prices[sym]
		if !ok {
			mp = last[sym]
		}
		avg := pos.AvgEntryPrice()
		out = append(out, models.Holding{
			Symbol:        sym,
			Quantity:      pos.Quantity,
			AvgEntryPrice: avg,
			MarketPrice:   mp,
			Value:         mp * pos.Quantity,
			UnrealizedPnL: (mp - avg) * pos.Quantity,
			RealizedPnL:   pos.RealizedPnL,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Reprice re-derives the mark-to-market fields of an existing holdings view
// from a fresh price map, leaving quantity and cost untouched. Symbols absent
// from the map keep their last-known price.
func Reprice(holdings []models.Holding, prices map[string]float64) []models.Holding {
	out := make([]models.Holding, len(holdings))
	for i, h := range holdings {
		if mp, ok := prices[h.Symbol]; ok {
			h.MarketPrice = mp
		}
		h.Value = h.MarketPrice * h.Quantity
		h.UnrealizedPnL = (h.MarketPrice - h.AvgEntryPrice) * h.Quantity
		out[i] = h
	}
	return out
}
