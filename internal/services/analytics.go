package services

import (
	"context"
	"sort"
	"time"

	"github.com/lipaqr/lipaqr-gobackend/internal/models"
	"github.com/lipaqr/lipaqr-gobackend/internal/store"
)

type AnalyticsService struct {
	transactions store.TransactionStore
}

func NewAnalyticsService(transactions store.TransactionStore) *AnalyticsService {
	return &AnalyticsService{transactions: transactions}
}

type DailyVolume struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

// Trend is the least-squares line fitted over the daily successful volumes,
// with x as the day index. Slope is currency units per day.
type Trend struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

type AnalyticsSummary struct {
	TotalTransactions int            `json:"total_transactions"`
	ByStatus          map[string]int `json:"by_status"`
	SuccessRate       float64        `json:"success_rate"`
	GrossVolume       float64        `json:"gross_volume"`
	SettledVolume     float64        `json:"settled_volume"`
	DailyVolume       []DailyVolume  `json:"daily_volume"`
	Trend             Trend          `json:"trend"`
}

// Summarize folds a merchant's transactions from the last `days` days into
// counts, volumes and a daily trend. Days is clamped to [1, 365].
func (s *AnalyticsService) Summarize(ctx context.Context, merchantID string, days int) (*AnalyticsSummary, error) {
	if days < 1 {
		days = 30
	}
	if days > 365 {
		days = 365
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	txns, err := s.transactions.ListByMerchant(ctx, merchantID, store.ListFilter{Start: &start, End: &end})
	if err != nil {
		return nil, err
	}

	summary := &AnalyticsSummary{
		ByStatus:    make(map[string]int),
		DailyVolume: make([]DailyVolume, 0),
	}

	daily := make(map[string]float64)
	for _, txn := range txns {
		summary.TotalTransactions++
		summary.ByStatus[txn.Status]++
		summary.GrossVolume += txn.Amount
		if txn.Status == models.StatusSuccess {
			summary.SettledVolume += txn.Amount
			daily[txn.CreatedAt.Format("2006-01-02")] += txn.Amount
		}
	}
	if summary.TotalTransactions > 0 {
		summary.SuccessRate = float64(summary.ByStatus[models.StatusSuccess]) / float64(summary.TotalTransactions)
	}

	dates := make([]string, 0, len(daily))
	for date := range daily {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	for _, date := range dates {
		summary.DailyVolume = append(summary.DailyVolume, DailyVolume{Date: date, Amount: daily[date]})
	}

	summary.Trend = fitTrend(summary.DailyVolume)
	return summary, nil
}

// fitTrend computes the closed-form least-squares line over the day-indexed
// volumes. Fewer than two points yields a flat line through the single value.
func fitTrend(points []DailyVolume) Trend {
	n := float64(len(points))
	if len(points) == 0 {
		return Trend{}
	}
	if len(points) == 1 {
		return Trend{Intercept: points[0].Amount}
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		sumX += x
		sumY += p.Amount
		sumXY += x * p.Amount
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return Trend{Intercept: sumY / n}
	}
	slope := (n*sumXY - sumX*sumY) / denom
	return Trend{
		Slope:     slope,
		Intercept: (sumY - slope*sumX) / n,
	}
}
