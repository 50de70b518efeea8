package pages

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/crm"
	"github.com/pitabwire/crmdesk/internal/navigation"
	"github.com/pitabwire/crmdesk/internal/view"
)

// Element ids of the dashboard markup.
const (
	KPITotalClients  = "kpiTotalClients"
	KPIActiveClients = "kpiActiveClients"
	KPITotalDeals    = "kpiTotalDeals"
	KPIMonthlySales  = "kpiMonthlySales"
	KPIMonthlyProfit = "kpiMonthlyProfit"
	RecentDealsBody  = "recentDealsBody"
	SalesChart       = "salesChart"
	StatusChart      = "statusChart"
	ChartPeriod      = "chartPeriod"
)

const (
	dashboardFailed  = "Не удалось загрузить дашборд"
	recentDealsShown = 5
	salesSeriesLabel = "Сумма сделок"
)

// DashboardPage renders the KPI cards, the recent deals table and the two
// charts. The "months" parameter selects the sales chart period.
type DashboardPage struct {
	crm    CRM
	months int
	logger *zap.Logger
}

// Init implements navigation.Controller.
func (p *DashboardPage) Init(ctx context.Context, f *navigation.Frame) error {
	stats, err := p.crm.Stats(ctx)
	if err != nil {
		return showFailure(f, p.logger, dashboardFailed, err)
	}

	kpis := []struct{ id, text string }{
		{KPITotalClients, strconv.Itoa(stats.TotalClients)},
		{KPIActiveClients, strconv.Itoa(stats.ActiveClients)},
		{KPITotalDeals, strconv.Itoa(stats.TotalDeals)},
		{KPIMonthlySales, FormatCurrency(stats.MonthlySales)},
		{KPIMonthlyProfit, FormatCurrency(stats.MonthlyProfit)},
	}
	for _, k := range kpis {
		if err := f.SetText(k.id, k.text); err != nil {
			return err
		}
	}

	recent := stats.RecentDeals
	if len(recent) > recentDealsShown {
		recent = recent[:recentDealsShown]
	}
	markup, err := render("recentDealRows", recent)
	if err != nil {
		return err
	}
	if err := f.SetInnerHTML(RecentDealsBody, markup); err != nil {
		return err
	}

	months := p.period(f.Param("months"))
	if err := f.SetAttr(ChartPeriod, "data-selected", strconv.Itoa(months)); err != nil {
		return err
	}

	sales := crm.SalesByMonth(stats.Deals, months)
	if err := f.SetChart(SalesChart, view.Chart{
		Type:    "line",
		Label:   salesSeriesLabel,
		Labels:  sales.Labels,
		Values:  sales.Values,
		Options: map[string]any{"legend": false, "currencyTicks": true},
	}); err != nil {
		return err
	}

	byStatus := crm.DealsByStatus(stats.Deals)
	return f.SetChart(StatusChart, view.Chart{
		Type:    "doughnut",
		Labels:  byStatus.Labels,
		Values:  byStatus.Values,
		Options: map[string]any{"legend": "right"},
	})
}

func (p *DashboardPage) period(raw string) int {
	if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 36 {
		return n
	}
	if p.months > 0 {
		return p.months
	}
	return 6
}
