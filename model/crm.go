package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID is an opaque, server-assigned identifier. Upstream may send it as a JSON
// number or a string; it is always carried as a string.
type ID string

// UnmarshalJSON accepts numbers, strings and null. Objects, arrays and
// booleans are rejected.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if !isJSONNumber(b) {
		return fmt.Errorf("model: id must be a string or number, got %s", b)
	}
	*id = ID(b)
	return nil
}

func isJSONNumber(b []byte) bool {
	if len(b) == 0 || (b[0] != '-' && (b[0] < '0' || b[0] > '9')) {
		return false
	}
	var n json.Number
	return json.Unmarshal(b, &n) == nil
}

func (id ID) String() string { return string(id) }

// Timestamp is a point in time decoded leniently from upstream JSON. Any
// value that cannot be interpreted leaves the timestamp zero instead of
// failing the whole record, matching how an invalid date simply drops out
// of date-based calculations.
type Timestamp struct {
	time.Time
}

// Millisecond epochs outside years 0000 through 9999 are not timestamps.
const (
	minEpochMillis = -62167219200000
	maxEpochMillis = 253402300799999
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp interprets s using the layouts the CRM API is known to emit.
func ParseTimestamp(s string) (Timestamp, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, true
		}
	}
	return Timestamp{}, false
}

// UnmarshalJSON accepts date strings and millisecond epoch numbers.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if ts, ok := ParseTimestamp(s); ok {
			*t = ts
		}
		return nil
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil || ms < minEpochMillis || ms > maxEpochMillis {
		return nil
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// MarshalJSON writes RFC 3339, or null for the zero value.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// Amount is a monetary value decoded from a JSON number or numeric string.
// Anything else decodes as zero.
type Amount float64

// UnmarshalJSON accepts numbers, numeric strings and null.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			s = ""
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*a = 0
		return nil
	}
	*a = Amount(v)
	return nil
}

// UpstreamClient is a client record as the CRM API sends it. Different
// database generations use different name fields and status vocabularies.
type UpstreamClient struct {
	ID            ID         `json:"id"`
	Name          string     `json:"name"`
	CompanyName   string     `json:"companyName"`
	Title         string     `json:"title"`
	FullName      string     `json:"fullName"`
	Company       string     `json:"company"`
	ContactPerson string     `json:"contactPerson"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Status        string     `json:"status"`
	CreatedAt     *Timestamp `json:"createdAt"`
}

// Client is the canonical client shape the pages render. Status is always a
// canonical label.
type Client struct {
	ID            ID         `json:"id"`
	Name          string     `json:"name"`
	Company       string     `json:"company,omitempty"`
	ContactPerson string     `json:"contactPerson,omitempty"`
	Email         string     `json:"email,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     *Timestamp `json:"createdAt,omitempty"`
}

// ClientInput is the payload of a client create or update.
type ClientInput struct {
	Name          string `json:"name"`
	Company       string `json:"company,omitempty"`
	ContactPerson string `json:"contactPerson,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Status        string `json:"status,omitempty"`
}

// UpstreamDeal is a deal record as the CRM API sends it.
type UpstreamDeal struct {
	ID          ID         `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ClientID    ID         `json:"clientId"`
	ClientName  string     `json:"clientName"`
	Amount      *Amount    `json:"amount"`
	Status      string     `json:"status"`
	CreatedAt   *Timestamp `json:"createdAt"`
	Deadline    *Timestamp `json:"deadline"`
}

// Deal is the canonical deal shape the pages render.
type Deal struct {
	ID          ID         `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ClientID    ID         `json:"clientId,omitempty"`
	ClientName  string     `json:"clientName,omitempty"`
	Amount      float64    `json:"amount"`
	Status      string     `json:"status"`
	CreatedAt   *Timestamp `json:"createdAt,omitempty"`
	Deadline    *Timestamp `json:"deadline,omitempty"`
}

// Created returns the creation time, or the zero time when unknown.
func (d Deal) Created() time.Time {
	if d.CreatedAt == nil {
		return time.Time{}
	}
	return d.CreatedAt.Time
}

// DealInput is the payload of a deal create or update.
type DealInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	ClientID    string  `json:"clientId,omitempty"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status,omitempty"`
	Deadline    string  `json:"deadline,omitempty"`
}

// Stats is the derived dashboard summary. It is never persisted.
type Stats struct {
	TotalClients  int     `json:"totalClients"`
	ActiveClients int     `json:"activeClients"`
	TotalDeals    int     `json:"totalDeals"`
	MonthlySales  float64 `json:"monthlySales"`
	MonthlyProfit float64 `json:"monthlyProfit"`
	RecentDeals   []Deal  `json:"recentDeals"`

	// Deals is the list the summary was computed from. Charts plot it so
	// they agree with the KPIs.
	Deals []Deal `json:"-"`
}

// Series is a labelled numeric series fed to a chart widget.
type Series struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}
