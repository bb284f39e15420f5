package ost

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/diwise/transit-publisher/pkg/jsonvalue"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Kind names a resource collection of the source API
type Kind string

const (
	Agencies  Kind = "agencies"
	Routes    Kind = "routes"
	Stops     Kind = "stops"
	Trips     Kind = "trips"
	StopTimes Kind = "stoptimes"
)

const DefaultBaseURL string = "https://api.ost.pt/"

const (
	TraceAttributeResourceKind string = "ost-resource-kind"
	TraceAttributePage         string = "ost-page"
)

var tracer = otel.Tracer("transit-publisher/ost-client")

type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient http.Client
}

func WithHTTPClient(httpClient http.Client) func(*Client) {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the API found at baseURL. Requests are sent
// without a client side timeout.
func NewClient(baseURL, apiKey string, options ...func(*Client)) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %s: %w", baseURL, err)
	}

	c := &Client{
		baseURL: u,
		apiKey:  apiKey,
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, option := range options {
		option(c)
	}

	return c, nil
}

// FetchAll follows the pagination cursors of a resource collection until no
// next page is announced, and returns every record in page order. Nothing is
// returned if any page fails.
func (c *Client) FetchAll(ctx context.Context, kind Kind, params url.Values) ([]jsonvalue.Object, error) {
	var err error

	ctx, span := tracer.Start(ctx, "fetch-all",
		trace.WithAttributes(attribute.String(TraceAttributeResourceKind, string(kind))),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	logger := logging.GetFromContext(ctx)

	endpoint := c.resourceURL(kind, params)
	records := []jsonvalue.Object{}
	pages := 0

	for {
		var page Page

		page, err = c.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}

		pages++
		records = append(records, page.Records...)

		if !page.HasNext() {
			break
		}

		endpoint, err = c.resolve(page.Meta.NextPage)
		if err != nil {
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int(TraceAttributePage, pages))
	logger.Debug("fetched resource", "kind", string(kind), "pages", pages, "count", len(records))

	return records, nil
}

// GetAgency looks up a single agency by its name
func (c *Client) GetAgency(ctx context.Context, name string) (jsonvalue.Object, error) {
	var err error

	ctx, span := tracer.Start(ctx, "get-agency",
		trace.WithAttributes(attribute.String(TraceAttributeResourceKind, string(Agencies))),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	page, err := c.get(ctx, c.resourceURL(Agencies, url.Values{"name": []string{name}}))
	if err != nil {
		return jsonvalue.Object{}, err
	}

	if len(page.Records) == 0 {
		err = fmt.Errorf("no agency named %q (%w)", name, ErrAgencyNotFound)
		return jsonvalue.Object{}, err
	}

	return page.Records[0], nil
}

// FetchByAgency fetches every record of a kind (routes or stops) that belongs to
// an agency. Extra parameters, such as a bounding box, are added to the query.
func (c *Client) FetchByAgency(ctx context.Context, kind Kind, agencyID string, extra url.Values) ([]jsonvalue.Object, error) {
	if agencyID == "" {
		return nil, fmt.Errorf("no agency id was provided (%w)", ErrMissingArgument)
	}

	params := url.Values{"agency": []string{agencyID}}
	for k, v := range extra {
		params[k] = v
	}

	return c.FetchAll(ctx, kind, params)
}

// FetchByRoutes fetches every record of a kind (trips or stoptimes) for each of
// the given routes, one route at a time and in the order given.
func (c *Client) FetchByRoutes(ctx context.Context, kind Kind, routeIDs []string) ([]jsonvalue.Object, error) {
	if len(routeIDs) == 0 {
		return nil, fmt.Errorf("no route ids were provided (%w)", ErrMissingArgument)
	}

	records := []jsonvalue.Object{}

	for _, routeID := range routeIDs {
		found, err := c.FetchAll(ctx, kind, url.Values{"route": []string{routeID}})
		if err != nil {
			return nil, err
		}
		records = append(records, found...)
	}

	return records, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (Page, error) {
	resp, body, err := c.call(ctx, endpoint)
	if err != nil {
		return Page{}, err
	}

	page, err := Parse(resp.StatusCode, body, endpoint)
	if err != nil {
		return Page{}, err
	}

	if !IsClassified(resp.StatusCode) {
		logging.GetFromContext(ctx).Warn(
			"unexpected status code from source api, treating response as empty",
			"status", resp.StatusCode, "url", redactKey(endpoint),
		)
	}

	return page, nil
}

func (c *Client) call(ctx context.Context, endpoint string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %s (%w)", err.Error(), ErrRequest)
	}

	req.Header.Add("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %s (%w)", err.Error(), ErrRequest)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %s (%w)", err.Error(), ErrBadResponse)
	}

	return resp, body, nil
}

func (c *Client) resourceURL(kind Kind, params url.Values) string {
	u := c.baseURL.JoinPath(string(kind))

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}

	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	u.RawQuery = q.Encode()
	return u.String()
}

// resolve turns a next_page cursor, which is a path relative to the API
// origin, into an absolute URL that still carries the API key.
func (c *Client) resolve(nextPage string) (string, error) {
	ref, err := url.Parse(nextPage)
	if err != nil {
		return "", fmt.Errorf("invalid next_page cursor %q: %s (%w)", nextPage, err.Error(), ErrBadResponse)
	}

	u := c.baseURL.ResolveReference(ref)

	q := u.Query()
	if q.Get("key") == "" && c.apiKey != "" {
		q.Set("key", c.apiKey)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}
