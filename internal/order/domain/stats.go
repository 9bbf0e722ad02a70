package domain

import "github.com/shopspring/decimal"

type Stats struct {
	Total        int             `json:"total"`
	Pending      int             `json:"pending"`
	Processing   int             `json:"processing"`
	Shipped      int             `json:"shipped"`
	Completed    int             `json:"completed"`
	Cancelled    int             `json:"cancelled"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// StatusTotals is one row of a per-status aggregate scan.
type StatusTotals struct {
	Status Status
	Count  int
	Amount decimal.Decimal
}

// NewStats folds per-status totals. Revenue counts completed orders only.
func NewStats(rows []StatusTotals) Stats {
	s := Stats{TotalRevenue: decimal.Zero}
	for _, r := range rows {
		s.Total += r.Count
		switch r.Status {
		case StatusPending:
			s.Pending += r.Count
		case StatusProcessing:
			s.Processing += r.Count
		case StatusShipped:
			s.Shipped += r.Count
		case StatusCompleted:
			s.Completed += r.Count
			s.TotalRevenue = s.TotalRevenue.Add(r.Amount)
		case StatusCancelled:
			s.Cancelled += r.Count
		}
	}
	return s
}
