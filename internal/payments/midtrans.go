package payments

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/parish-camps/camp-api/internal/apperr"
	"github.com/parish-camps/camp-api/internal/models"
	"github.com/shopspring/decimal"
)

// midtrans reports timestamps in Jakarta time without a zone.
var midtransZone = time.FixedZone("WIB", 7*60*60)

const midtransTimeLayout = "2006-01-02 15:04:05"

// MidtransGateway creates Snap checkouts and reads payment status through the
// Core API.
type MidtransGateway struct {
	snap snap.Client
	core coreapi.Client
}

func NewMidtransGateway(cfg *models.GatewayConfig) *MidtransGateway {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}
	g := &MidtransGateway{}
	g.snap.New(cfg.ServerKey, env)
	g.core.New(cfg.ServerKey, env)
	return g
}

func (g *MidtransGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	resp, mErr := g.snap.CreateTransaction(snapRequest(req))
	if mErr != nil {
		return nil, classifyMidtrans("create checkout", req.Reference, mErr)
	}
	return &Checkout{URL: resp.RedirectURL, Token: resp.Token}, nil
}

func (g *MidtransGateway) FetchPayment(ctx context.Context, id string) (*PaymentDetails, error) {
	resp, mErr := g.core.CheckTransaction(id)
	if mErr != nil {
		return nil, classifyMidtrans("fetch payment", id, mErr)
	}
	if resp.StatusCode == "404" {
		return nil, &apperr.UnresolvableReference{Reference: id}
	}
	return midtransDetails(resp)
}

func snapRequest(req CheckoutRequest) *snap.Request {
	// Snap only accepts whole amounts.
	gross := req.Amount.Round(0).IntPart()
	first, last, _ := strings.Cut(req.PayerName, " ")
	return &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.Reference,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: first,
			LName: last,
			Email: req.PayerEmail,
			Phone: req.PayerPhone,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.Reference,
				Name:  truncate(req.Description, 50),
				Price: gross,
				Qty:   1,
			},
		},
		// Snap has a single finish redirect; it appends the transaction
		// status to the URL, so the approved page serves every outcome.
		Callbacks: &snap.Callbacks{Finish: req.ReturnURLs.Approved},
	}
}

func midtransDetails(resp *coreapi.TransactionStatusResponse) (*PaymentDetails, error) {
	amount, err := decimal.NewFromString(resp.GrossAmount)
	if err != nil {
		return nil, fmt.Errorf("parse gross amount %q: %w", resp.GrossAmount, err)
	}
	details := &PaymentDetails{
		ID:        resp.TransactionID,
		Reference: resp.OrderID,
		Status:    normalizeMidtrans(resp.TransactionStatus, resp.FraudStatus),
		RawStatus: resp.TransactionStatus,
		Amount:    amount,
		Method:    resp.PaymentType,
	}
	if resp.SettlementTime != "" {
		if t, err := time.ParseInLocation(midtransTimeLayout, resp.SettlementTime, midtransZone); err == nil {
			details.PaidAt = &t
		}
	}
	return details, nil
}

func normalizeMidtrans(transactionStatus, fraudStatus string) Status {
	fraud := strings.ToLower(fraudStatus)
	switch strings.ToLower(transactionStatus) {
	case "settlement":
		return StatusApproved
	case "capture":
		switch fraud {
		case "accept":
			return StatusApproved
		case "challenge":
			return StatusPending
		}
	case "pending":
		return StatusPending
	}
	return StatusRejected
}

func classifyMidtrans(op, ref string, mErr *midtrans.Error) error {
	switch {
	case mErr.StatusCode == 0 || mErr.StatusCode >= http.StatusInternalServerError:
		return &apperr.TransientGatewayError{Op: op, Err: mErr}
	case mErr.StatusCode == http.StatusNotFound:
		return &apperr.UnresolvableReference{Reference: ref}
	}
	return fmt.Errorf("midtrans %s: %w", op, mErr)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
