package crm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/crmdesk/internal/config"
	"github.com/pitabwire/crmdesk/model"
)

func at(t time.Time) *model.Timestamp { return &model.Timestamp{Time: t} }

func TestComputeStats(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	clients := []model.Client{
		{ID: "1", Status: "active"},
		{ID: "2", Status: "inactive"},
		{ID: "3", Status: "active"},
	}
	deals := []model.Deal{
		{ID: "a", Amount: 100, CreatedAt: at(now.AddDate(0, 0, -5))},
		{ID: "b", Amount: 50, CreatedAt: at(now.AddDate(0, 0, -40))},
	}

	stats := ComputeStats(clients, deals, now, config.Defaults().Stats)

	assert.Equal(t, 3, stats.TotalClients)
	assert.Equal(t, 2, stats.ActiveClients)
	assert.Equal(t, 2, stats.TotalDeals)
	assert.InDelta(t, 100, stats.MonthlySales, 1e-9)
	assert.InDelta(t, 30, stats.MonthlyProfit, 1e-9)
	require.Len(t, stats.RecentDeals, 2)
	assert.Equal(t, model.ID("a"), stats.RecentDeals[0].ID)
	assert.Len(t, stats.Deals, 2)
}

func TestComputeStats_recentDealsCarryClientNames(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	clients := []model.Client{{ID: "1", Name: "Acme"}}
	deals := []model.Deal{
		{ID: "a", ClientID: "1", CreatedAt: at(now.Add(-time.Hour))},
		{ID: "b", ClientID: "7", CreatedAt: at(now.Add(-2 * time.Hour))},
	}

	stats := ComputeStats(clients, deals, now, config.Defaults().Stats)
	require.Len(t, stats.RecentDeals, 2)
	assert.Equal(t, "Acme", stats.RecentDeals[0].ClientName)
	assert.Equal(t, "", stats.RecentDeals[1].ClientName)
	assert.Equal(t, "", deals[0].ClientName, "input must not be modified")
}

func TestComputeStats_canonicalLabels(t *testing.T) {
	clients := []model.Client{{Status: "активен"}, {Status: "неактивен"}, {Status: ""}}
	stats := ComputeStats(clients, nil, time.Now(), config.Defaults().Stats)
	assert.Equal(t, 2, stats.ActiveClients)
	assert.Empty(t, stats.RecentDeals)
}

func TestComputeStats_marginAndUndatedDeals(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	deals := []model.Deal{
		{Amount: 200, CreatedAt: at(now.Add(-time.Hour))},
		{Amount: 999},
	}
	cfg := config.Defaults().Stats
	cfg.ProfitMargin = 0.5

	stats := ComputeStats(nil, deals, now, cfg)
	assert.InDelta(t, 200, stats.MonthlySales, 1e-9)
	assert.InDelta(t, 100, stats.MonthlyProfit, 1e-9)
}

func TestNewest(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var deals []model.Deal
	for i := 0; i < 15; i++ {
		deals = append(deals, model.Deal{ID: model.ID(rune('a' + i)), CreatedAt: at(base.AddDate(0, 0, i))})
	}
	deals = append(deals, model.Deal{ID: "undated"})

	got := Newest(deals, 10)
	require.Len(t, got, 10)
	assert.Equal(t, model.ID("o"), got[0].ID)
	assert.Equal(t, model.ID("f"), got[9].ID)
	assert.Equal(t, model.ID("a"), deals[0].ID, "input must not be reordered")

	all := Newest(deals, 100)
	assert.Equal(t, model.ID("undated"), all[len(all)-1].ID)
}

func TestEnrichDeals(t *testing.T) {
	clients := []model.Client{{ID: "1", Name: "Acme"}}
	deals := []model.Deal{{ID: "d1", ClientID: "1"}, {ID: "d2", ClientID: "9", ClientName: "stale"}}

	got := EnrichDeals(deals, clients)
	assert.Equal(t, "Acme", got[0].ClientName)
	assert.Equal(t, "", got[1].ClientName)
	assert.Equal(t, "stale", deals[1].ClientName)
}

func TestSalesByMonth(t *testing.T) {
	deals := []model.Deal{
		{Amount: 100, CreatedAt: at(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))},
		{Amount: 50, CreatedAt: at(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))},
		{Amount: 70, CreatedAt: at(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))},
		{Amount: 10, CreatedAt: at(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))},
		{Amount: 5},
	}

	got := SalesByMonth(deals, 3)
	assert.Equal(t, []string{"01.2024", "02.2024", "03.2024"}, got.Labels)
	assert.Equal(t, []float64{70, 0, 150}, got.Values)
}

func TestSalesByMonth_yearBoundaryAndDefault(t *testing.T) {
	deals := []model.Deal{{Amount: 1, CreatedAt: at(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))}}
	got := SalesByMonth(deals, 0)
	assert.Equal(t, []string{"09.2023", "10.2023", "11.2023", "12.2023", "01.2024", "02.2024"}, got.Labels)
}

func TestSalesByMonth_noDates(t *testing.T) {
	got := SalesByMonth([]model.Deal{{Amount: 5}}, 6)
	assert.Empty(t, got.Labels)
	assert.Empty(t, got.Values)
}

func TestDealsByStatus(t *testing.T) {
	deals := []model.Deal{
		{Status: "Новый"},
		{Status: "выиграна"},
		{Status: " новый "},
		{Status: ""},
	}
	got := DealsByStatus(deals)
	assert.Equal(t, []string{"новый", "выиграна", NoStatus}, got.Labels)
	assert.Equal(t, []float64{2, 1, 1}, got.Values)
}

func TestValidateClient(t *testing.T) {
	assert.NoError(t, ValidateClient(model.ClientInput{Name: "Acme"}))

	err := ValidateClient(model.ClientInput{Name: "  ", Email: "not-an-email"})
	var gap *model.ValidationGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, "client", gap.Resource)
	require.Len(t, gap.Fields, 2)
	assert.Equal(t, "name", gap.Fields[0].Field)
	assert.Equal(t, "required", gap.Fields[0].Code)
	assert.Equal(t, "email", gap.Fields[1].Field)
}

func TestValidateDeal(t *testing.T) {
	assert.NoError(t, ValidateDeal(model.DealInput{Title: "Licence", Amount: 10, Deadline: "2024-12-31"}))

	err := ValidateDeal(model.DealInput{Amount: -1, Deadline: "someday"})
	var gap *model.ValidationGapError
	require.ErrorAs(t, err, &gap)
	fields := make([]string, 0, len(gap.Fields))
	for _, f := range gap.Fields {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"title", "amount", "deadline"}, fields)
}
