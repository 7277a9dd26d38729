package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kratos-host/provisioning-service/internal/models"
)

// BillingClient talks to the subscription billing provider. All
// requests are form-encoded and authenticated with the secret key.
type BillingClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewBillingClient creates a new billing provider client
func NewBillingClient(baseURL, secretKey string) *BillingClient {
	return &BillingClient{
		baseURL:   baseURL,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type billingCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type billingSetupIntent struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	ClientSecret  string `json:"client_secret"`
	PaymentMethod string `json:"payment_method"`
	Customer      string `json:"customer"`
}

type billingPrice struct {
	ID string `json:"id"`
}

// CreateCustomer registers a customer record with the provider
func (c *BillingClient) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("name", name)

	var customer billingCustomer
	if err := c.do(ctx, http.MethodPost, "/v1/customers", form, &customer); err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return customer.ID, nil
}

// CreateSetupIntent starts payment method collection for a customer
func (c *BillingClient) CreateSetupIntent(ctx context.Context, customerID string) (id, clientSecret string, err error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("usage", "off_session")

	var intent billingSetupIntent
	if err := c.do(ctx, http.MethodPost, "/v1/setup_intents", form, &intent); err != nil {
		return "", "", fmt.Errorf("create setup intent: %w", err)
	}
	return intent.ID, intent.ClientSecret, nil
}

// RetrieveSetupIntent fetches a setup intent so the caller can verify
// it succeeded and read the attached payment method.
func (c *BillingClient) RetrieveSetupIntent(ctx context.Context, intentID string) (status, paymentMethod, customerID string, err error) {
	var intent billingSetupIntent
	if err := c.do(ctx, http.MethodGet, "/v1/setup_intents/"+url.PathEscape(intentID), nil, &intent); err != nil {
		return "", "", "", fmt.Errorf("retrieve setup intent: %w", err)
	}
	return intent.Status, intent.PaymentMethod, intent.Customer, nil
}

// CreatePrice creates a recurring monthly price in minor units
func (c *BillingClient) CreatePrice(ctx context.Context, productName string, amountCents int64, currency string) (string, error) {
	form := url.Values{}
	form.Set("product_data[name]", productName)
	form.Set("unit_amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", currency)
	form.Set("recurring[interval]", "month")

	var price billingPrice
	if err := c.do(ctx, http.MethodPost, "/v1/prices", form, &price); err != nil {
		return "", fmt.Errorf("create price: %w", err)
	}
	return price.ID, nil
}

// CreateSubscription subscribes a customer to a price. The order id is
// attached as metadata so webhook events can be correlated back.
func (c *BillingClient) CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID, orderID string) (*models.BillingSubscription, error) {
	log.Printf("[BillingClient] Creating subscription for customer %s (order %s)", customerID, orderID)

	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("items[0][price]", priceID)
	form.Set("default_payment_method", paymentMethodID)
	form.Set("metadata["+models.MetadataOrderID+"]", orderID)
	form.Set("payment_behavior", "error_if_incomplete")

	var sub models.BillingSubscription
	if err := c.do(ctx, http.MethodPost, "/v1/subscriptions", form, &sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return &sub, nil
}

// SetCancelAtPeriodEnd flips whether the subscription lapses at the end
// of the current billing period.
func (c *BillingClient) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*models.BillingSubscription, error) {
	form := url.Values{}
	form.Set("cancel_at_period_end", strconv.FormatBool(cancel))

	var sub models.BillingSubscription
	if err := c.do(ctx, http.MethodPost, "/v1/subscriptions/"+url.PathEscape(subscriptionID), form, &sub); err != nil {
		return nil, fmt.Errorf("update subscription %s: %w", subscriptionID, err)
	}
	return &sub, nil
}

// CancelSubscription cancels a subscription immediately
func (c *BillingClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil, nil); err != nil {
		return fmt.Errorf("cancel subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// GetSubscription fetches the provider's current view of a subscription
func (c *BillingClient) GetSubscription(ctx context.Context, subscriptionID string) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	if err := c.do(ctx, http.MethodGet, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil, &sub); err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}
	return &sub, nil
}

func (c *BillingClient) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("billing provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
