package crm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Stub returns deterministic demo data. Phone numbers ending in 0000 are
// treated as new callers.
type Stub struct {
	now func() time.Time
}

func NewStub() *Stub {
	return &Stub{now: time.Now}
}

func (s *Stub) Availability(_ context.Context, q AvailabilityQuery) ([]Slot, error) {
	return []Slot{
		{StartTime: q.Date + "T09:00:00", EndTime: q.Date + "T10:00:00", TechnicianName: "Mike T."},
		{StartTime: q.Date + "T13:00:00", EndTime: q.Date + "T14:00:00", TechnicianName: "Sara L."},
		{StartTime: q.Date + "T15:30:00", EndTime: q.Date + "T16:30:00", TechnicianName: "James R."},
	}, nil
}

func (s *Stub) CreateJob(_ context.Context, _ JobRequest) (Job, error) {
	return Job{
		ID:                 fmt.Sprintf("stub-job-%d", s.now().UnixMilli()),
		ConfirmationNumber: fmt.Sprintf("CONF-%d", rand.IntN(900000)+100000),
	}, nil
}

func (s *Stub) LookupCustomer(_ context.Context, phone string) (*Customer, error) {
	if strings.HasSuffix(digitsOnly(phone), "0000") {
		return nil, nil
	}
	return &Customer{
		ID:              "stub-customer-1",
		Name:            "Alex Demo",
		Address:         "123 Elm Street",
		LastServiceDate: "2024-09-15",
		Equipment:       []string{"Carrier 3-ton AC Unit (2019)", "Carrier Gas Furnace (2019)"},
	}, nil
}

var _ Provider = (*Stub)(nil)
