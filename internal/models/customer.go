package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for LastContact.
const DateLayout = "2006-01-02"

// Status is the lifecycle stage of a customer.
type Status string

const (
	StatusActive   Status = "Active"
	StatusLead     Status = "Lead"
	StatusInactive Status = "Inactive"
)

// ParseStatus validates s against the known statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusActive, StatusLead, StatusInactive:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Priority ranks the attention a customer needs.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// ActivityKind tags an activity log entry.
type ActivityKind string

const (
	ActivityNote         ActivityKind = "note"
	ActivityStatusChange ActivityKind = "status-change"
	ActivityCall         ActivityKind = "call"
	ActivityEmail        ActivityKind = "email"
)

// ParseActivityKind validates s against the known activity kinds.
func ParseActivityKind(s string) (ActivityKind, error) {
	switch k := ActivityKind(s); k {
	case ActivityNote, ActivityStatusChange, ActivityCall, ActivityEmail:
		return k, nil
	}
	return "", fmt.Errorf("unknown activity kind %q", s)
}

// Activity is an immutable entry of a customer's activity log.
type Activity struct {
	ID   string       `json:"id"`
	At   time.Time    `json:"at"`
	Text string       `json:"text" validate:"required"`
	Kind ActivityKind `json:"kind" validate:"oneof=note status-change call email"`
}

// Address is the optional postal address of a customer.
type Address struct {
	PostalCode string `json:"postal_code,omitempty"`
	Street     string `json:"street,omitempty"`
	Number     string `json:"number,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
}

// Customer is a tenant-owned CRM record.
type Customer struct {
	ID          string     `json:"id"`
	Name        string     `json:"name" validate:"required"`
	Email       string     `json:"email" validate:"omitempty,email"`
	Company     string     `json:"company"`
	Status      Status     `json:"status" validate:"oneof=Active Lead Inactive"`
	Value       float64    `json:"value" validate:"gte=0"`
	Phone       string     `json:"phone"`
	Notes       string     `json:"notes"`
	Priority    Priority   `json:"priority" validate:"oneof=Low Medium High"`
	LastContact string     `json:"last_contact" validate:"omitempty,datetime=2006-01-02"`
	ActivityLog []Activity `json:"activity_log,omitempty" validate:"dive"`

	TaxID      string   `json:"tax_id,omitempty"`
	Website    string   `json:"website,omitempty"`
	Industry   string   `json:"industry,omitempty"`
	LeadSource string   `json:"lead_source,omitempty"`
	Address    *Address `json:"address,omitempty"`
}

// Clone returns a deep copy so callers cannot alias working memory.
func (c Customer) Clone() Customer {
	if c.ActivityLog != nil {
		c.ActivityLog = append([]Activity(nil), c.ActivityLog...)
	}
	if c.Address != nil {
		a := *c.Address
		c.Address = &a
	}
	return c
}

// LastContactDate parses LastContact. ok is false when it is empty or malformed.
func (c Customer) LastContactDate() (time.Time, bool) {
	if c.LastContact == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, c.LastContact)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Summary projects the customer onto the fields sent to the report generator.
func (c Customer) Summary() CustomerSummary {
	return CustomerSummary{
		Name:        c.Name,
		Status:      c.Status,
		Value:       c.Value,
		Company:     c.Company,
		Industry:    c.Industry,
		Priority:    c.Priority,
		LastContact: c.LastContact,
	}
}

// CustomerSummary is the bounded projection of a customer used in report requests.
type CustomerSummary struct {
	Name        string   `json:"name"`
	Status      Status   `json:"status"`
	Value       float64  `json:"value"`
	Company     string   `json:"company"`
	Industry    string   `json:"industry,omitempty"`
	Priority    Priority `json:"priority"`
	LastContact string   `json:"last_contact"`
}

// DashboardStats holds the metrics derived from a tenant's customers.
type DashboardStats struct {
	TotalCustomers int        `json:"total_customers"`
	Active         int        `json:"active"`
	Leads          int        `json:"leads"`
	Inactive       int        `json:"inactive"`
	PortfolioValue float64    `json:"portfolio_value"`
	AverageValue   float64    `json:"average_value"`
	ChurnRisk      int        `json:"churn_risk"`
	TopAccounts    []Customer `json:"top_accounts"`
}
