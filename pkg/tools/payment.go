package tools

import (
	"context"
	"fmt"
	"math"

	"github.com/harunnryd/frontdesk/pkg/payments"
	"github.com/harunnryd/frontdesk/pkg/tenant"
)

type initiatePaymentArgs struct {
	AmountDollars float64 `json:"amount_dollars" mapstructure:"amount_dollars" jsonschema_description:"The amount to charge in dollars (e.g., 87.50)"`
	CustomerName  string  `json:"customer_name" mapstructure:"customer_name" jsonschema_description:"Full name of the customer being charged"`
	Description   string  `json:"description" mapstructure:"description" jsonschema_description:"Description of what is being charged (e.g., \"Deposit for AC installation\")"`
	JobID         string  `json:"job_id,omitempty" mapstructure:"job_id" jsonschema_description:"The job ID this payment is associated with"`
}

type paymentResult struct {
	Success         bool    `json:"success"`
	SessionToken    string  `json:"session_token"`
	PaymentIntentID string  `json:"payment_intent_id"`
	AmountDollars   float64 `json:"amount_dollars"`
	Instructions    string  `json:"instructions"`
}

func newInitiatePayment(deps Deps) Tool {
	return newTool(InitiatePayment,
		"Initiate a payment session for a deposit or service fee. Returns a session token for DTMF card entry.",
		false,
		func(ctx context.Context, args initiatePaymentArgs, cfg *tenant.Config) (any, error) {
			metadata := map[string]string{
				"client_id":     cfg.ClientID(),
				"customer_name": args.CustomerName,
				"job_id":        args.JobID,
			}
			if cfg != nil {
				metadata["company_name"] = cfg.CompanyName
			}
			intent, err := deps.Payments.CreateIntent(ctx, payments.IntentRequest{
				AmountCents: int64(math.Round(args.AmountDollars * 100)),
				Currency:    "usd",
				Description: args.Description,
				Metadata:    metadata,
			})
			if err != nil {
				return nil, err
			}
			return paymentResult{
				Success:         true,
				SessionToken:    intent.ClientSecret,
				PaymentIntentID: intent.ID,
				AmountDollars:   args.AmountDollars,
				Instructions:    fmt.Sprintf("Please ask the caller to enter their %.2f dollar payment using their phone keypad.", args.AmountDollars),
			}, nil
		})
}
