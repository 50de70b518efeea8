package pages

import (
	"context"

	"github.com/pitabwire/crmdesk/internal/navigation"
)

// APIBaseURLField shows the configured API address on the settings page.
const APIBaseURLField = "apiBaseUrl"

// UsersPage has no data of its own; adding a user is not implemented.
type UsersPage struct{}

// Init implements navigation.Controller.
func (UsersPage) Init(context.Context, *navigation.Frame) error { return nil }

// SettingsPage shows the connection settings. The connection check runs
// through the transport.
type SettingsPage struct {
	apiBaseURL string
}

// Init implements navigation.Controller.
func (p *SettingsPage) Init(_ context.Context, f *navigation.Frame) error {
	return f.SetText(APIBaseURLField, p.apiBaseURL)
}
