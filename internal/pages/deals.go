package pages

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/crm"
	"github.com/pitabwire/crmdesk/internal/navigation"
	"github.com/pitabwire/crmdesk/model"
)

// DealsTableBody is the tbody the deal rows are rendered into.
const DealsTableBody = "dealsTableBody"

const dealsFailed = "Не удалось загрузить сделки"

// DealsPage renders the deal table with client names resolved.
type DealsPage struct {
	crm    CRM
	logger *zap.Logger
}

// Init implements navigation.Controller.
func (p *DealsPage) Init(ctx context.Context, f *navigation.Frame) error {
	markup, err := DealRows(ctx, p.crm, f.Param("q"), f.Param("status"), p.logger)
	if err != nil {
		return showFailure(f, p.logger, dealsFailed, err)
	}
	return f.SetInnerHTML(DealsTableBody, markup)
}

// DealRows renders the table rows of the deals matching query and status,
// with client names filled in when the client list is available.
func DealRows(ctx context.Context, c CRM, query, status string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		deals []model.Deal
		err   error
	)
	if query != "" {
		deals, err = c.SearchDeals(ctx, query)
	} else {
		deals, err = c.ListDeals(ctx)
	}
	if err != nil {
		return "", err
	}
	if status != "" {
		kept := deals[:0:0]
		for _, d := range deals {
			if strings.EqualFold(d.Status, status) {
				kept = append(kept, d)
			}
		}
		deals = kept
	}

	// A missing client list only costs the names.
	if clients, err := c.ListClients(ctx); err == nil {
		deals = crm.EnrichDeals(deals, clients)
	} else {
		logger.Debug("pages: deals rendered without client names", zap.Error(err))
	}
	return render("dealRows", deals)
}
