package clients

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

	"github.com/boxops/portal/common/config"
	"github.com/boxops/portal/common/metrics"
	"github.com/boxops/portal/common/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// maxErrorBody bounds how much of an upstream error body is kept
const maxErrorBody = 4096

// CredentialSource resolves the shop an organization is connected to
type CredentialSource interface {
	GetShopifyCredentials(ctx context.Context, orgID uuid.UUID) (*models.ShopifyCredentials, error)
}

// ShopLimiter enforces a request budget shared by every process calling one shop
type ShopLimiter interface {
	WaitShop(ctx context.Context, shopDomain string, limit int64) error
}

// ShopifyOption configures a ShopifyOrderSource
type ShopifyOption func(*ShopifyOrderSource)

// WithShopLimiter enables the shared per-shop quota
func WithShopLimiter(limiter ShopLimiter) ShopifyOption {
	return func(s *ShopifyOrderSource) {
		s.shopLimiter = limiter
	}
}

// WithBaseURL overrides how the admin API root is derived from a shop domain
func WithBaseURL(fn func(shopDomain string) string) ShopifyOption {
	return func(s *ShopifyOrderSource) {
		s.baseURL = fn
	}
}

// ShopifyOrderSource fetches customer order history from the Shopify Admin REST API
type ShopifyOrderSource struct {
	http        *HTTPClient
	creds       CredentialSource
	cfg         config.ShopifyConfig
	shopLimiter ShopLimiter
	validate    *validator.Validate
	baseURL     func(shopDomain string) string
	logger      Logger
}

// NewShopifyOrderSource creates an order source using cfg for paging and pacing
func NewShopifyOrderSource(creds CredentialSource, cfg config.ShopifyConfig, logger Logger, opts ...ShopifyOption) *ShopifyOrderSource {
	s := &ShopifyOrderSource{
		http:     NewHTTPClient(&http.Client{Timeout: cfg.Timeout}, logger),
		creds:    creds,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
	}
	s.baseURL = func(shopDomain string) string {
		return fmt.Sprintf("https://%s/admin/api/%s", shopDomain, s.cfg.APIVersion)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchOrders returns every order for the lookup. A customer ID is used when present;
// otherwise the email is resolved to customer IDs first.
func (s *ShopifyOrderSource) FetchOrders(ctx context.Context, orgID uuid.UUID, lookup models.CustomerLookup) (*models.OrderHistory, error) {
	start := time.Now()
	defer func() {
		metrics.OrderFetchDuration.Observe(time.Since(start).Seconds())
	}()

	creds, err := s.creds.GetShopifyCredentials(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shopify credentials: %w", err)
	}

	f := &fetch{
		source: s,
		creds:  creds,
		pacer:  newPacer(s.cfg.PageDelay),
	}

	customerIDs := make([]string, 0, 1)
	switch {
	case lookup.CustomerID != "":
		customerIDs = append(customerIDs, lookup.CustomerID)
	case lookup.Email != "":
		customerIDs, err = f.searchCustomers(ctx, lookup.Email)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("customer lookup requires a customer id or email")
	}

	history := &models.OrderHistory{
		Orders:      make([]models.Order, 0),
		CustomerIDs: customerIDs,
	}

	seen := make(map[string]bool)
	for _, customerID := range customerIDs {
		orders, err := f.customerOrders(ctx, customerID)
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			if seen[o.ID] {
				continue
			}
			seen[o.ID] = true
			history.Orders = append(history.Orders, o)
		}
	}

	s.logger.Debug("fetched order history",
		"shop", creds.ShopDomain,
		"customers", len(customerIDs),
		"orders", len(history.Orders),
		"pages", f.pages,
	)

	return history, nil
}

func newPacer(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// fetch holds per-lookup state. Pages are requested sequentially.
type fetch struct {
	source *ShopifyOrderSource
	creds  *models.ShopifyCredentials
	pacer  *rate.Limiter
	pages  int
}

func (f *fetch) searchCustomers(ctx context.Context, email string) ([]string, error) {
	q := url.Values{}
	q.Set("query", "email:"+email)
	q.Set("fields", "id")
	q.Set("limit", strconv.Itoa(f.source.cfg.PageSize))
	endpoint := f.source.baseURL(f.creds.ShopDomain) + "/customers/search.json?" + q.Encode()

	var page customersPage
	if _, err := f.get(ctx, endpoint, &page); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(page.Customers))
	for _, c := range page.Customers {
		ids = append(ids, strconv.FormatInt(c.ID, 10))
	}
	return ids, nil
}

func (f *fetch) customerOrders(ctx context.Context, customerID string) ([]models.Order, error) {
	q := url.Values{}
	q.Set("customer_id", customerID)
	q.Set("status", "any")
	q.Set("limit", strconv.Itoa(f.source.cfg.PageSize))
	next := f.source.baseURL(f.creds.ShopDomain) + "/orders.json?" + q.Encode()

	orders := make([]models.Order, 0)
	for page := 0; next != ""; page++ {
		if page >= f.source.cfg.MaxPages {
			f.source.logger.Warn("order history truncated at page cap",
				"shop", f.creds.ShopDomain,
				"customer_id", customerID,
				"max_pages", f.source.cfg.MaxPages,
			)
			break
		}

		var body ordersPage
		link, err := f.get(ctx, next, &body)
		if err != nil {
			return nil, err
		}

		for _, wire := range body.Orders {
			order := wire.toModel()
			if err := f.source.validate.Struct(order); err != nil {
				return nil, fmt.Errorf("invalid order %s from shopify: %w", order.ID, err)
			}
			orders = append(orders, order)
		}

		next = nextPageURL(link)
	}

	return orders, nil
}

// get performs one paced request and decodes the JSON body into out.
// Returns the Link header for pagination.
func (f *fetch) get(ctx context.Context, endpoint string, out interface{}) (string, error) {
	if err := f.pacer.Wait(ctx); err != nil {
		return "", err
	}
	if f.source.shopLimiter != nil && f.source.cfg.ShopQuotaPerMinute > 0 {
		if err := f.source.shopLimiter.WaitShop(ctx, f.creds.ShopDomain, f.source.cfg.ShopQuotaPerMinute); err != nil {
			return "", fmt.Errorf("shop quota wait failed: %w", err)
		}
	}

	resp, err := f.source.http.DoRequest(ctx, http.MethodGet, endpoint, nil, map[string]string{
		"X-Shopify-Access-Token": f.creds.AccessToken,
		"Accept":                 "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("shopify request failed: %w", err)
	}
	defer resp.Body.Close()

	f.pages++
	metrics.OrderFetchPagesTotal.Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		f.source.logger.Warn("shopify returned error status",
			"shop", f.creds.ShopDomain,
			"status", resp.StatusCode,
		)
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", fmt.Errorf("failed to decode shopify response: %w", err)
	}

	return resp.Header.Get("Link"), nil
}

// nextPageURL extracts the rel="next" target from a Link header
func nextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}

// Wire types for the Admin REST API

type customersPage struct {
	Customers []struct {
		ID int64 `json:"id"`
	} `json:"customers"`
}

type ordersPage struct {
	Orders []shopifyOrder `json:"orders"`
}

type shopifyOrder struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	OrderNumber int64     `json:"order_number"`
	CreatedAt   time.Time `json:"created_at"`
	Customer    *struct {
		ID int64 `json:"id"`
	} `json:"customer"`
	LineItems []shopifyLineItem `json:"line_items"`
}

type shopifyLineItem struct {
	ID        int64  `json:"id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	ProductID *int64 `json:"product_id"`
	VariantID *int64 `json:"variant_id"`
}

func (o shopifyOrder) toModel() models.Order {
	order := models.Order{
		OrderNumber: o.Name,
		CreatedAt:   o.CreatedAt,
		LineItems:   make([]models.LineItem, 0, len(o.LineItems)),
	}
	if o.ID != 0 {
		order.ID = strconv.FormatInt(o.ID, 10)
	}
	if order.OrderNumber == "" && o.OrderNumber != 0 {
		order.OrderNumber = strconv.FormatInt(o.OrderNumber, 10)
	}
	if o.Customer != nil {
		order.Customer = &models.Customer{ID: strconv.FormatInt(o.Customer.ID, 10)}
	}

	for _, li := range o.LineItems {
		item := models.LineItem{
			ID:       strconv.FormatInt(li.ID, 10),
			SKU:      li.SKU,
			Name:     li.Name,
			Quantity: li.Quantity,
		}
		if li.ProductID != nil {
			item.ProductID = strconv.FormatInt(*li.ProductID, 10)
		}
		if li.VariantID != nil {
			item.VariantID = strconv.FormatInt(*li.VariantID, 10)
		}
		order.LineItems = append(order.LineItems, item)
	}

	return order
}
