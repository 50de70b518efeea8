package pages

import (
	"context"

	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/navigation"
	"github.com/pitabwire/crmdesk/internal/normalize"
	"github.com/pitabwire/crmdesk/model"
)

// ClientsTableBody is the tbody the client rows are rendered into.
const ClientsTableBody = "clientsTableBody"

const clientsFailed = "Не удалось загрузить клиентов"

// ClientsPage renders the client table. The "q" and "status" parameters
// narrow it the same way the search box does.
type ClientsPage struct {
	crm    CRM
	logger *zap.Logger
}

// Init implements navigation.Controller.
func (p *ClientsPage) Init(ctx context.Context, f *navigation.Frame) error {
	markup, err := ClientRows(ctx, p.crm, f.Param("q"), f.Param("status"))
	if err != nil {
		return showFailure(f, p.logger, clientsFailed, err)
	}
	return f.SetInnerHTML(ClientsTableBody, markup)
}

// ClientRows renders the table rows of the clients matching query and
// status. An empty query lists every client; an empty status keeps all.
func ClientRows(ctx context.Context, c CRM, query, status string) (string, error) {
	var (
		clients []model.Client
		err     error
	)
	if query != "" {
		clients, err = c.SearchClients(ctx, query)
	} else {
		clients, err = c.ListClients(ctx)
	}
	if err != nil {
		return "", err
	}
	if status != "" {
		want := normalize.Status(status)
		kept := clients[:0:0]
		for _, cl := range clients {
			if normalize.Status(cl.Status) == want {
				kept = append(kept, cl)
			}
		}
		clients = kept
	}
	return render("clientRows", clients)
}
