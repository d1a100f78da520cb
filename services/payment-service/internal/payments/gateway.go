package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

// ErrRateLimited is returned when the processor throttles the platform account.
var ErrRateLimited = errors.New("payment processor rate limited")

type CreateIntentParams struct {
	Amount         int64
	Currency       string
	Description    string
	Destination    string
	ApplicationFee int64
	TransferGroup  string
	Metadata       map[string]string
	IdempotencyKey string
}

// IntentGateway is the subset of the processor API the service needs.
type IntentGateway interface {
	Create(ctx context.Context, p CreateIntentParams) (model.Intent, error)
	Get(ctx context.Context, intentID string) (model.Intent, error)
	Cancel(ctx context.Context, intentID string) error
}

type StripeGateway struct {
	client *paymentintent.Client
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{client: &paymentintent.Client{
		B:   stripe.GetBackend(stripe.APIBackend),
		Key: strings.TrimSpace(secretKey),
	}}
}

func (g *StripeGateway) Create(ctx context.Context, p CreateIntentParams) (model.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(strings.ToLower(p.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	if p.Destination != "" {
		params.TransferData = &stripe.PaymentIntentTransferDataParams{Destination: stripe.String(p.Destination)}
		if p.ApplicationFee > 0 {
			params.ApplicationFeeAmount = stripe.Int64(p.ApplicationFee)
		}
	}
	if p.TransferGroup != "" {
		params.TransferGroup = stripe.String(p.TransferGroup)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := g.client.New(params)
	if err != nil {
		return model.Intent{}, mapStripeError(err)
	}
	return IntentFromStripe(pi), nil
}

func (g *StripeGateway) Get(ctx context.Context, intentID string) (model.Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.client.Get(intentID, params)
	if err != nil {
		return model.Intent{}, mapStripeError(err)
	}
	return IntentFromStripe(pi), nil
}

func (g *StripeGateway) Cancel(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	_, err := g.client.Cancel(intentID, params)
	return mapStripeError(err)
}

// IntentFromStripe converts the SDK object; also used for webhook payloads.
func IntentFromStripe(pi *stripe.PaymentIntent) model.Intent {
	if pi == nil {
		return model.Intent{}
	}
	out := model.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		out.LastError = pi.LastPaymentError.Msg
	}
	return out
}

func mapStripeError(err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.Code == stripe.ErrorCodeRateLimit || se.HTTPStatusCode == http.StatusTooManyRequests {
			return errors.Join(ErrRateLimited, err)
		}
		if se.HTTPStatusCode == http.StatusNotFound {
			return errors.Join(ErrIntentNotFound, err)
		}
	}
	return err
}
