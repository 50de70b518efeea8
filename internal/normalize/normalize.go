// Package normalize maps CRM API records of every database generation onto
// the canonical shapes the pages render, and back again for writes. All
// functions are pure and accept nil.
package normalize

import (
	"strings"

	"github.com/pitabwire/crmdesk/model"
)

// Canonical client status labels.
const (
	StatusActive   = "активен"
	StatusInactive = "неактивен"
	StatusProspect = "потенциальный"
)

// DealStatusNew is the status of a deal the API sent without one.
const DealStatusNew = "новый"

// Status maps an upstream client status to its canonical label. Matching is
// case-insensitive and ignores surrounding whitespace. An empty status means
// active; unrecognized values are returned verbatim.
func Status(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return StatusActive
	case "active", "enabled":
		return StatusActive
	case "inactive", "disabled":
		return StatusInactive
	case "potential", "prospect":
		return StatusProspect
	}
	return raw
}

// UpstreamStatus maps a canonical label to the enum the current API expects.
// An empty status means active; unrecognized values are returned verbatim.
func UpstreamStatus(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "":
		return "active"
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusProspect:
		return "prospect"
	}
	return label
}

// Client converts an upstream client record. The display name is the first
// non-empty of name, companyName, title and fullName.
func Client(in *model.UpstreamClient) *model.Client {
	if in == nil {
		return nil
	}
	return &model.Client{
		ID:            in.ID,
		Name:          firstNonEmpty(in.Name, in.CompanyName, in.Title, in.FullName),
		Company:       in.Company,
		ContactPerson: in.ContactPerson,
		Email:         in.Email,
		Phone:         in.Phone,
		Status:        Status(in.Status),
		CreatedAt:     in.CreatedAt,
	}
}

// Clients converts a list.
func Clients(in []model.UpstreamClient) []model.Client {
	if in == nil {
		return nil
	}
	out := make([]model.Client, len(in))
	for i := range in {
		out[i] = *Client(&in[i])
	}
	return out
}

// ClientPayload prepares a client write. Only the status is rewritten.
func ClientPayload(in *model.ClientInput) *model.ClientInput {
	if in == nil {
		return nil
	}
	out := *in
	out.Status = UpstreamStatus(in.Status)
	return &out
}

// Deal converts an upstream deal record. A missing or negative amount
// becomes 0 and a missing status becomes "новый".
func Deal(in *model.UpstreamDeal) *model.Deal {
	if in == nil {
		return nil
	}
	var amount float64
	if in.Amount != nil && *in.Amount > 0 {
		amount = float64(*in.Amount)
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = DealStatusNew
	}
	return &model.Deal{
		ID:          in.ID,
		Title:       in.Title,
		Description: in.Description,
		ClientID:    in.ClientID,
		ClientName:  in.ClientName,
		Amount:      amount,
		Status:      status,
		CreatedAt:   in.CreatedAt,
		Deadline:    in.Deadline,
	}
}

// Deals converts a list.
func Deals(in []model.UpstreamDeal) []model.Deal {
	if in == nil {
		return nil
	}
	out := make([]model.Deal, len(in))
	for i := range in {
		out[i] = *Deal(&in[i])
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
