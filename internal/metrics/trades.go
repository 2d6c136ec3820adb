package metrics

import (
	"quantgym/internal/domain"
)

// ProfitFactorCap is reported as the profit factor when there are winning
// round trips and no losing ones.
const ProfitFactorCap = 999

// RoundTrip is one entry matched with the exit that closed it.
type RoundTrip struct {
	Entry domain.TradeEvent `json:"entry"`
	Exit  domain.TradeEvent `json:"exit"`
	PnL   float64           `json:"pnl"`
}

// TradeStats summarizes closed round trips of a single run.
type TradeStats struct {
	RoundTrips      int     `json:"round_trips"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	WinRate         float64 `json:"win_rate"`
	ProfitFactor    float64 `json:"profit_factor"`
	GrossProfit     float64 `json:"gross_profit"`
	GrossLoss       float64 `json:"gross_loss"`
	TotalCommission float64 `json:"total_commission"`
}

// Pair matches each enter event with the next exit. An entry still open at
// the end of the log is dropped. PnL is net of both commissions.
func Pair(events []domain.TradeEvent) []RoundTrip {
	var (
		trips []RoundTrip
		open  *domain.TradeEvent
	)
	for i := range events {
		ev := events[i]
		switch ev.Kind {
		case domain.TradeEnter:
			open = &ev
		case domain.TradeExit:
			if open == nil {
				continue
			}
			pnl := ev.Size*(ev.Price-open.Price) - open.Commission - ev.Commission
			trips = append(trips, RoundTrip{Entry: *open, Exit: ev, PnL: pnl})
			open = nil
		}
	}
	return trips
}

// Trades computes round-trip statistics from a trade log. Break-even trips
// count as wins. Commission totals include an entry that never closed.
func Trades(events []domain.TradeEvent) TradeStats {
	var st TradeStats
	for _, ev := range events {
		st.TotalCommission += ev.Commission
	}

	for _, rt := range Pair(events) {
		st.RoundTrips++
		if rt.PnL >= 0 {
			st.Wins++
			st.GrossProfit += rt.PnL
		} else {
			st.Losses++
			st.GrossLoss += -rt.PnL
		}
	}

	if st.RoundTrips > 0 {
		st.WinRate = float64(st.Wins) / float64(st.RoundTrips)
	}
	if st.GrossLoss == 0 {
		if st.GrossProfit > 0 {
			st.ProfitFactor = ProfitFactorCap
		}
	} else {
		st.ProfitFactor = st.GrossProfit / st.GrossLoss
	}
	return st
}
