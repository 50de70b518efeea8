// Package pages holds the page controllers: each one fetches its data
// through the CRM facade and renders it into the elements of its markup.
package pages

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/config"
	"github.com/pitabwire/crmdesk/internal/navigation"
	"github.com/pitabwire/crmdesk/model"
)

// Page names.
const (
	Dashboard = "dashboard"
	Clients   = "clients"
	Deals     = "deals"
	Users     = "users"
	Settings  = "settings"
)

// NotImplemented is the notice shown by affordances that do not mutate yet.
const NotImplemented = "в разработке"

//go:embed templates/*.tmpl
var templateFS embed.FS

var rows = template.Must(template.New("rows").Funcs(template.FuncMap{
	"currency":    FormatCurrency,
	"date":        FormatDate,
	"statusClass": StatusClass,
	"dash":        orDash,
}).ParseFS(templateFS, "templates/*.tmpl"))

// CRM is the part of the facade the controllers read from.
type CRM interface {
	ListClients(ctx context.Context) ([]model.Client, error)
	ListDeals(ctx context.Context) ([]model.Deal, error)
	SearchClients(ctx context.Context, query string) ([]model.Client, error)
	SearchDeals(ctx context.Context, query string) ([]model.Deal, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

// Deps are the collaborators of the controllers.
type Deps struct {
	CRM        CRM
	Stats      config.StatsConfig
	APIBaseURL string
	Logger     *zap.Logger
}

// All returns the routable pages in sidebar order.
func All(deps Deps) []navigation.Page {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return []navigation.Page{
		{Name: Dashboard, Title: "Dashboards", Icon: "fa-chart-line", Order: 1, Controller: &DashboardPage{crm: deps.CRM, months: deps.Stats.ChartMonths, logger: deps.Logger}},
		{Name: Clients, Title: "Клиенты", Icon: "fa-users", Order: 2, Controller: &ClientsPage{crm: deps.CRM, logger: deps.Logger}},
		{Name: Deals, Title: "Сделки", Icon: "fa-box", Order: 3, Controller: &DealsPage{crm: deps.CRM, logger: deps.Logger}},
		{Name: Users, Title: "Пользователи", Icon: "fa-address-book", Order: 4, Controller: UsersPage{}},
		{Name: Settings, Title: "Настройки", Icon: "fa-cog", Order: 5, Divider: true, Controller: &SettingsPage{apiBaseURL: deps.APIBaseURL}},
	}
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := rows.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("pages: render %s: %w", name, err)
	}
	return buf.String(), nil
}

// showFailure logs a data load failure and replaces it with an inline
// panel. Only a superseded frame makes it return an error.
func showFailure(f *navigation.Frame, logger *zap.Logger, message string, err error) error {
	logger.Warn("pages: data load failed",
		zap.String("page", f.Page()),
		zap.Error(err),
	)
	return f.ShowError(message)
}
