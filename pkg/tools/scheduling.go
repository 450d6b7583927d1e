package tools

import (
	"context"
	"fmt"
	"math"

	"github.com/harunnryd/frontdesk/pkg/crm"
	"github.com/harunnryd/frontdesk/pkg/tenant"
)

type checkAvailabilityArgs struct {
	ServiceType   string `json:"service_type" mapstructure:"service_type" jsonschema_description:"The type of service requested (e.g., \"AC Tune-Up\", \"Drain Clearing\")"`
	PreferredDate string `json:"preferred_date" mapstructure:"preferred_date" jsonschema_description:"Preferred date in YYYY-MM-DD format"`
}

type slotResult struct {
	Time       string `json:"time"`
	EndTime    string `json:"end_time"`
	Technician string `json:"technician"`
}

type availabilityResult struct {
	Available   bool         `json:"available"`
	Date        string       `json:"date,omitempty"`
	ServiceType string       `json:"service_type,omitempty"`
	Slots       []slotResult `json:"slots,omitempty"`
	Message     string       `json:"message,omitempty"`
}

func newCheckAvailability(deps Deps) Tool {
	return newTool(CheckAvailability,
		"Check available appointment slots for a service type on a preferred date.",
		false,
		func(ctx context.Context, args checkAvailabilityArgs, cfg *tenant.Config) (any, error) {
			slots, err := deps.CRM.For(cfg).Availability(ctx, crm.AvailabilityQuery{
				ServiceType: args.ServiceType,
				Date:        args.PreferredDate,
			})
			if err != nil {
				return nil, err
			}
			if len(slots) == 0 {
				return availabilityResult{
					Available: false,
					Message:   fmt.Sprintf("No availability for %s on %s. Ask the caller for alternate dates.", args.ServiceType, args.PreferredDate),
				}, nil
			}
			out := availabilityResult{Available: true, Date: args.PreferredDate, ServiceType: args.ServiceType}
			for _, s := range slots {
				out.Slots = append(out.Slots, slotResult{Time: s.StartTime, EndTime: s.EndTime, Technician: s.TechnicianName})
			}
			return out, nil
		})
}

type createJobArgs struct {
	ServiceType     string `json:"service_type" mapstructure:"service_type" jsonschema_description:"The service to be performed"`
	AppointmentTime string `json:"appointment_time" mapstructure:"appointment_time" jsonschema_description:"Appointment start time in ISO 8601 format (e.g., 2025-03-15T09:00:00)"`
	CustomerID      string `json:"customer_id,omitempty" mapstructure:"customer_id" jsonschema_description:"Customer ID from lookup_customer. Use \"new\" if this is a new customer."`
	CustomerName    string `json:"customer_name" mapstructure:"customer_name" jsonschema_description:"Full name of the customer"`
	CustomerPhone   string `json:"customer_phone" mapstructure:"customer_phone" jsonschema_description:"Customer callback phone number"`
	ServiceAddress  string `json:"service_address" mapstructure:"service_address" jsonschema_description:"Full service address"`
	Notes           string `json:"notes,omitempty" mapstructure:"notes" jsonschema_description:"Any notes from the caller about the issue or special instructions"`
}

type jobResult struct {
	Success            bool     `json:"success"`
	JobID              string   `json:"job_id"`
	ConfirmationNumber string   `json:"confirmation_number"`
	RequiresDeposit    bool     `json:"requires_deposit"`
	DepositAmount      *float64 `json:"deposit_amount"`
}

const (
	defaultDurationMinutes = 60
	depositRate            = 0.25
)

func newCreateJob(deps Deps) Tool {
	return newTool(CreateJob,
		"Create a service visit record. Call this after confirming date, time, and customer details.",
		false,
		func(ctx context.Context, args createJobArgs, cfg *tenant.Config) (any, error) {
			svc, found := cfg.FindService(args.ServiceType)
			duration := defaultDurationMinutes
			if found && svc.DurationMinutes > 0 {
				duration = svc.DurationMinutes
			}
			requiresDeposit := found && svc.RequiresDeposit

			customerID := args.CustomerID
			if customerID == "new" {
				customerID = ""
			}
			notes := args.Notes
			if notes == "" {
				notes = fmt.Sprintf("Service: %s at %s for %s (%s)", args.ServiceType, args.ServiceAddress, args.CustomerName, args.CustomerPhone)
			}

			job, err := deps.CRM.For(cfg).CreateJob(ctx, crm.JobRequest{
				CustomerID:        customerID,
				ServiceType:       args.ServiceType,
				ScheduledTime:     args.AppointmentTime,
				EstimatedDuration: duration,
				RequiresDeposit:   requiresDeposit,
				Notes:             notes,
			})
			if err != nil {
				return nil, err
			}
			out := jobResult{
				Success:            true,
				JobID:              job.ID,
				ConfirmationNumber: job.ConfirmationNumber,
				RequiresDeposit:    requiresDeposit,
			}
			if requiresDeposit {
				amount := math.Round(svc.BasePrice*depositRate*100) / 100
				out.DepositAmount = &amount
			}
			return out, nil
		})
}

type lookupCustomerArgs struct {
	PhoneNumber string `json:"phone_number" mapstructure:"phone_number" jsonschema_description:"The caller phone number to look up (digits only or with formatting)"`
}

type customerResult struct {
	Found           bool     `json:"found"`
	Message         string   `json:"message,omitempty"`
	CustomerID      string   `json:"customer_id,omitempty"`
	Name            string   `json:"name,omitempty"`
	Address         string   `json:"address,omitempty"`
	LastServiceDate string   `json:"last_service_date,omitempty"`
	EquipmentOnFile []string `json:"equipment_on_file,omitempty"`
}

func newLookupCustomer(deps Deps) Tool {
	return newTool(LookupCustomer,
		"Look up an existing customer by their phone number to retrieve their profile and service history.",
		false,
		func(ctx context.Context, args lookupCustomerArgs, cfg *tenant.Config) (any, error) {
			c, err := deps.CRM.For(cfg).LookupCustomer(ctx, args.PhoneNumber)
			if err != nil {
				return nil, err
			}
			if c == nil {
				return customerResult{Found: false, Message: "No existing customer record found. Proceed as a new customer."}, nil
			}
			equipment := c.Equipment
			if equipment == nil {
				equipment = []string{}
			}
			return customerResult{
				Found:           true,
				CustomerID:      c.ID,
				Name:            c.Name,
				Address:         c.Address,
				LastServiceDate: c.LastServiceDate,
				EquipmentOnFile: equipment,
			}, nil
		})
}
