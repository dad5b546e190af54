package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/Ghiblit/app/models"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/config"
)

// DodoClient talks to the Dodo Payments REST API.
type DodoClient struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
	ReturnURL     string

	minAmount func(currency string) decimal.Decimal

	HTTPClient *http.Client
	now        func() time.Time
}

func NewDodoClient(cfg config.Gateway) *DodoClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DodoClient{
		APIKey:        strings.TrimSpace(cfg.APIKey),
		WebhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		BaseURL:       strings.TrimRight(cfg.GatewayBaseURL(), "/"),
		ReturnURL:     strings.TrimSpace(cfg.ReturnURL),
		minAmount:     cfg.MinAmount,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

type dodoCustomer struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	CreateNewCustomer bool   `json:"create_new_customer"`
}

type dodoBilling struct {
	Country string `json:"country"`
	City    string `json:"city"`
	State   string `json:"state"`
	Street  string `json:"street"`
	Zipcode string `json:"zipcode"`
}

type dodoCartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Amount    int64  `json:"amount"`
}

type dodoCreatePaymentRequest struct {
	PaymentLink bool              `json:"payment_link"`
	Customer    dodoCustomer      `json:"customer"`
	Billing     dodoBilling       `json:"billing"`
	ProductCart []dodoCartItem    `json:"product_cart"`
	Metadata    map[string]string `json:"metadata"`
	ReturnURL   string            `json:"return_url,omitempty"`
}

type dodoPaymentResponse struct {
	PaymentID   string  `json:"payment_id"`
	PaymentLink string  `json:"payment_link"`
	Status      *string `json:"status"`
}

func (c *DodoClient) CreatePaymentLink(ctx context.Context, order *models.PaymentOrder, user *models.User) (PaymentLink, error) {
	if c.APIKey == "" {
		return PaymentLink{}, errors.New("DODO_API_KEY is not configured")
	}
	if c.minAmount != nil {
		if floor := c.minAmount(order.Currency); order.Amount.LessThan(floor) {
			return PaymentLink{}, fmt.Errorf("amount %s %s below gateway minimum %s",
				order.Amount.StringFixed(2), order.Currency, floor.StringFixed(2))
		}
	}
	amount := minorUnits(order.Amount)

	productID := fmt.Sprintf("credits_%d", order.PackageID)
	if v, ok := order.Metadata["external_product_id"].(string); ok && v != "" {
		productID = v
	}
	country := "US"
	if order.Currency == models.CURRENCY_INR {
		country = "IN"
	}

	payload := dodoCreatePaymentRequest{
		PaymentLink: true,
		Customer: dodoCustomer{
			Email:             user.Email,
			Name:              user.DisplayName(),
			CreateNewCustomer: true,
		},
		// The hosted page collects the real address.
		Billing: dodoBilling{
			Country: country,
			City:    "City",
			State:   "State",
			Street:  "Street",
			Zipcode: "00000",
		},
		ProductCart: []dodoCartItem{{ProductID: productID, Quantity: 1, Amount: amount}},
		Metadata: map[string]string{
			"order_ref": order.OrderRef,
			"credits":   strconv.Itoa(order.CreditsPurchased),
			"user_id":   strconv.FormatUint(uint64(user.ID), 10),
		},
		ReturnURL: c.ReturnURL,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return PaymentLink{}, err
	}

	var out dodoPaymentResponse
	if err := c.do(ctx, http.MethodPost, "/payments", body, &out); err != nil {
		return PaymentLink{}, err
	}
	if strings.TrimSpace(out.PaymentID) == "" || strings.TrimSpace(out.PaymentLink) == "" {
		return PaymentLink{}, errors.New("dodo create payment returned empty payment_id or payment_link")
	}
	return PaymentLink{ExternalID: out.PaymentID, URL: out.PaymentLink}, nil
}

// minorUnits converts a major-unit amount to the smallest currency unit
// (paise, cents) the gateway expects.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func (c *DodoClient) GetPaymentStatus(ctx context.Context, externalID string) (*GatewayStatus, error) {
	id := strings.TrimSpace(externalID)
	if id == "" {
		return nil, errors.New("external payment id is required")
	}

	var out dodoPaymentResponse
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &GatewayStatus{ExternalID: id, Status: out.Status}, nil
}

func (c *DodoClient) VerifyWebhookSignature(rawBody []byte, signature, eventID, timestamp string) bool {
	return VerifyStandardWebhookSignature(rawBody, signature, eventID, timestamp, c.WebhookSecret, c.now())
}

func (c *DodoClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dodo %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(respBody))
	}
	return json.Unmarshal(respBody, out)
}
