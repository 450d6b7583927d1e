// Package crm abstracts the field-service CRM a tenant schedules work in.
package crm

import (
	"context"
	"strings"
)

const (
	PlatformStub         = "stub"
	PlatformServiceTitan = "servicetitan"
)

type Slot struct {
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	TechnicianName string `json:"technicianName"`
}

type AvailabilityQuery struct {
	ServiceType string
	// Date is YYYY-MM-DD.
	Date string
}

type JobRequest struct {
	CustomerID        string
	ServiceType       string
	ScheduledTime     string
	EstimatedDuration int
	RequiresDeposit   bool
	Notes             string
}

type Job struct {
	ID                 string `json:"id"`
	ConfirmationNumber string `json:"confirmationNumber"`
}

type Customer struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Address         string   `json:"address"`
	LastServiceDate string   `json:"lastServiceDate,omitempty"`
	Equipment       []string `json:"equipment"`
}

// Provider is the per-tenant CRM surface used by the scheduling tools.
// LookupCustomer returns (nil, nil) when the caller is not on file.
type Provider interface {
	Availability(ctx context.Context, q AvailabilityQuery) ([]Slot, error)
	CreateJob(ctx context.Context, req JobRequest) (Job, error)
	LookupCustomer(ctx context.Context, phone string) (*Customer, error)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
