package crm

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pitabwire/crmdesk/internal/config"
	"github.com/pitabwire/crmdesk/internal/normalize"
	"github.com/pitabwire/crmdesk/model"
)

// NoStatus labels deals whose status is blank in the status chart.
const NoStatus = "без статуса"

const (
	defaultWindow      = 30 * 24 * time.Hour
	defaultRecentLimit = 10
	defaultChartMonths = 6
)

// ComputeStats derives the dashboard summary. A deal counts towards the
// monthly figures when it was created within cfg.Window before now; deals
// without a creation time never do.
func ComputeStats(clients []model.Client, deals []model.Deal, now time.Time, cfg config.StatsConfig) model.Stats {
	window := cfg.Window
	if window <= 0 {
		window = defaultWindow
	}
	limit := cfg.RecentLimit
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	since := now.Add(-window)

	stats := model.Stats{
		TotalClients: len(clients),
		TotalDeals:   len(deals),
	}
	for _, c := range clients {
		if normalize.Status(c.Status) == normalize.StatusActive {
			stats.ActiveClients++
		}
	}
	for _, d := range deals {
		created := d.Created()
		if created.IsZero() || created.Before(since) {
			continue
		}
		stats.MonthlySales += d.Amount
	}
	stats.MonthlyProfit = stats.MonthlySales * cfg.ProfitMargin
	stats.RecentDeals = EnrichDeals(Newest(deals, limit), clients)
	stats.Deals = deals
	return stats
}

// Newest returns up to n deals ordered by creation time, newest first.
// Deals without a creation time sort last. The input is not modified.
func Newest(deals []model.Deal, n int) []model.Deal {
	sorted := make([]model.Deal, len(deals))
	copy(sorted, deals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Created().After(sorted[j].Created())
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// EnrichDeals fills ClientName from the client list. Deals whose client is
// unknown get an empty name. The input is not modified.
func EnrichDeals(deals []model.Deal, clients []model.Client) []model.Deal {
	names := make(map[model.ID]string, len(clients))
	for _, c := range clients {
		names[c.ID] = c.Name
	}
	out := make([]model.Deal, len(deals))
	for i, d := range deals {
		d.ClientName = names[d.ClientID]
		out[i] = d
	}
	return out
}

// SalesByMonth sums deal amounts over the trailing months calendar months
// ending with the month of the newest deal. Labels read "MM.YYYY". The
// series is empty when no deal has a creation time.
func SalesByMonth(deals []model.Deal, months int) model.Series {
	if months <= 0 {
		months = defaultChartMonths
	}

	var latest time.Time
	for _, d := range deals {
		if c := d.Created(); c.After(latest) {
			latest = c
		}
	}
	if latest.IsZero() {
		return model.Series{Labels: []string{}, Values: []float64{}}
	}

	anchor := time.Date(latest.Year(), latest.Month(), 1, 0, 0, 0, 0, latest.Location())
	index := make(map[string]int, months)
	series := model.Series{
		Labels: make([]string, months),
		Values: make([]float64, months),
	}
	for i := 0; i < months; i++ {
		m := anchor.AddDate(0, i-months+1, 0)
		index[monthKey(m)] = i
		series.Labels[i] = fmt.Sprintf("%02d.%d", int(m.Month()), m.Year())
	}

	for _, d := range deals {
		c := d.Created()
		if c.IsZero() {
			continue
		}
		if i, ok := index[monthKey(c.In(latest.Location()))]; ok {
			series.Values[i] += d.Amount
		}
	}
	return series
}

func monthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// DealsByStatus counts deals per lower-cased status, in order of first
// appearance. Blank statuses are counted under NoStatus.
func DealsByStatus(deals []model.Deal) model.Series {
	series := model.Series{Labels: []string{}, Values: []float64{}}
	index := make(map[string]int)
	for _, d := range deals {
		status := strings.ToLower(strings.TrimSpace(d.Status))
		if status == "" {
			status = NoStatus
		}
		i, ok := index[status]
		if !ok {
			i = len(series.Labels)
			index[status] = i
			series.Labels = append(series.Labels, status)
			series.Values = append(series.Values, 0)
		}
		series.Values[i]++
	}
	return series
}
