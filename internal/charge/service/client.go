package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	chargedomain "github.com/smallbiznis/tollgate/internal/charge/domain"
	"github.com/smallbiznis/tollgate/internal/config"
	tenantdomain "github.com/smallbiznis/tollgate/internal/tenant/domain"
	"go.uber.org/fx"
)

type billingLine struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
}

type billingLineList struct {
	Data []billingLine `json:"data"`
}

type chargeObject struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the external charge-creation API. Authentication is
// per tenant: every call carries the tenant's access credential as a
// bearer token.
type Client struct {
	baseURL string
	client  *http.Client
}

type ClientParam struct {
	fx.In

	Config config.Config
	Holder *config.BillingConfigHolder
}

func NewClient(p ClientParam) chargedomain.Provider {
	return New(p.Config.ChargeAPIBaseURL, p.Holder.Get().ChargeCallTimeout)
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) FindBillableLine(ctx context.Context, tenant tenantdomain.TenantIdentity) (*chargedomain.LineRef, error) {
	query := url.Values{}
	query.Set("status", "active")
	query.Set("limit", "1")

	body, err := c.doRequest(ctx, tenant, http.MethodGet, "/v1/billing_lines?"+query.Encode(), nil, "")
	if err != nil {
		return nil, err
	}

	var list billingLineList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode billing lines: %w", err)
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	line := list.Data[0]
	return &chargedomain.LineRef{
		SubscriptionID: line.SubscriptionID,
		ItemID:         line.ID,
	}, nil
}

func (c *Client) CreateCharge(
	ctx context.Context,
	tenant tenantdomain.TenantIdentity,
	line chargedomain.LineRef,
	amountCents int64,
	description string,
) (string, error) {
	values := url.Values{}
	values.Set("amount_cents", strconv.FormatInt(amountCents, 10))
	values.Set("subscription", line.SubscriptionID)
	values.Set("line_item", line.ItemID)
	values.Set("description", description)
	values.Set("metadata[tenant_key]", tenant.TenantKey)

	idempotencyKey := tenant.TenantKey + ":" + description
	body, err := c.doRequest(ctx, tenant, http.MethodPost, "/v1/charges", values, idempotencyKey)
	if err != nil {
		return "", err
	}

	var charge chargeObject
	if err := json.Unmarshal(body, &charge); err != nil {
		return "", fmt.Errorf("decode charge: %w", err)
	}
	if charge.ID == "" {
		return "", fmt.Errorf("%w: charge id missing in response", chargedomain.ErrServer)
	}
	return charge.ID, nil
}

func (c *Client) doRequest(
	ctx context.Context,
	tenant tenantdomain.TenantIdentity,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
) ([]byte, error) {
	var bodyReader *strings.Reader
	if values != nil {
		bodyReader = strings.NewReader(values.Encode())
	} else {
		bodyReader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tenant.AccessCredential)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, categorize(resp)
	}

	return io.ReadAll(resp.Body)
}

func categorize(resp *http.Response) error {
	message := "request failed"
	var apiErr apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil {
		if m := strings.TrimSpace(apiErr.Error.Message); m != "" {
			message = m
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", chargedomain.ErrAuth, message)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", chargedomain.ErrNotFound, message)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", chargedomain.ErrRateLimited, message)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s (status %d)", chargedomain.ErrServer, message, resp.StatusCode)
	default:
		return fmt.Errorf("%w: %s (status %d)", chargedomain.ErrInvalid, message, resp.StatusCode)
	}
}
