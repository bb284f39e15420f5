package ngsi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	TraceAttributeEntityType  string = "entity-type"
	TraceAttributeEntityCount string = "entity-count"
)

const DefaultBatchSize int = 100

// DefaultQueryPageSize is the largest page Orion hands out for a single query
const DefaultQueryPageSize int = 1000

var tracer = otel.Tracer("transit-publisher/ngsi-client")

type Client struct {
	baseURL    string
	batchSize  int
	pageSize   int
	debug      bool
	httpClient http.Client
}

func Debug(enabled bool) func(*Client) {
	return func(c *Client) {
		c.debug = enabled
	}
}

// BatchSize sets the maximum number of context elements per update request
func BatchSize(size int) func(*Client) {
	return func(c *Client) {
		if size > 0 {
			c.batchSize = size
		}
	}
}

func QueryPageSize(size int) func(*Client) {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// NewClient creates a client for the context broker found at host. A host
// without scheme is assumed to be reachable over plain http.
func NewClient(host string, options ...func(*Client)) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("no context broker host (%w)", ErrInternal)
	}

	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}

	c := &Client{
		baseURL:   strings.TrimSuffix(host, "/"),
		batchSize: DefaultBatchSize,
		pageSize:  DefaultQueryPageSize,
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, option := range options {
		option(c)
	}

	return c, nil
}

func (c *Client) UpdateURL() string {
	return c.baseURL + "/ngsi10/updateContext"
}

func (c *Client) QueryURL() string {
	return c.baseURL + "/ngsi10/queryContext"
}

// Publish appends the entities to the context broker, batchSize entities per
// request. The first rejected batch aborts the publish, batches sent before it
// stay in the broker.
func (c *Client) Publish(ctx context.Context, entities []Entity) error {
	var err error

	if len(entities) == 0 {
		return nil
	}

	entityType := entities[0].Type

	ctx, span := tracer.Start(ctx, "publish-entities",
		trace.WithAttributes(attribute.String(TraceAttributeEntityType, entityType)),
		trace.WithAttributes(attribute.Int(TraceAttributeEntityCount, len(entities))),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	for start := 0; start < len(entities); start += c.batchSize {
		end := min(start+c.batchSize, len(entities))

		err = c.update(ctx, entityType, entities[start:end])
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Client) update(ctx context.Context, entityType string, batch []Entity) error {
	body, err := json.Marshal(UpdateRequest{
		ContextElements: batch,
		UpdateAction:    UpdateActionAppend,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal update request: %s (%w)", err.Error(), ErrInternal)
	}

	resp, respBody, err := c.post(ctx, c.UpdateURL(), body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return NewEntityStoreRejectedError(entityType, respBody)
	}

	result := Response{}
	err = json.Unmarshal(respBody, &result)
	if err != nil || !result.Accepted() {
		return NewEntityStoreRejectedError(entityType, respBody)
	}

	return nil
}

// Query fetches every entity of a type, optionally limited to a set of
// attributes, following limit/offset pages until a short page is returned.
// A query that the broker answers with an error yields nil.
func (c *Client) Query(ctx context.Context, entityType string, attributes []string) (*Response, error) {
	var err error

	ctx, span := tracer.Start(ctx, "query-entities",
		trace.WithAttributes(attribute.String(TraceAttributeEntityType, entityType)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	body, err := json.Marshal(QueryRequest{
		Entities: []EntityPattern{
			{Type: entityType, IsPattern: "true", ID: ".*"},
		},
		Attributes: attributes,
	})
	if err != nil {
		err = fmt.Errorf("failed to marshal query request: %s (%w)", err.Error(), ErrInternal)
		return nil, err
	}

	var result *Response

	for offset := 0; ; offset += c.pageSize {
		var page *Response

		page, err = c.queryPage(ctx, entityType, body, offset)
		if err != nil {
			return nil, err
		}

		if page == nil {
			break
		}

		if result == nil {
			result = page
		} else {
			result.ContextResponses = append(result.ContextResponses, page.ContextResponses...)
		}

		if len(page.ContextResponses) < c.pageSize {
			break
		}
	}

	return result, nil
}

func (c *Client) queryPage(ctx context.Context, entityType string, body []byte, offset int) (*Response, error) {
	endpoint := fmt.Sprintf("%s?limit=%d&offset=%d", c.QueryURL(), c.pageSize, offset)

	resp, respBody, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	logger := logging.GetFromContext(ctx)

	if resp.StatusCode != http.StatusOK {
		logger.Warn("context broker query failed", "type", entityType, "offset", offset, "status", resp.StatusCode, "body", string(respBody))
		return nil, nil
	}

	result := &Response{}
	err = json.Unmarshal(respBody, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal query response: %s (%w)", err.Error(), ErrBadResponse)
	}

	if !result.Accepted() {
		logger.Debug("context broker query returned no entities", "type", entityType, "offset", offset, "body", string(respBody))
		return nil, nil
	}

	return result, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %s (%w)", err.Error(), ErrInternal)
	}

	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %s (%w)", err.Error(), ErrRequest)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %s (%w)", err.Error(), ErrBadResponse)
	}

	if c.debug && resp.StatusCode >= http.StatusBadRequest {
		reqbytes, _ := httputil.DumpRequest(req, false)
		respbytes, _ := httputil.DumpResponse(resp, false)

		logging.GetFromContext(ctx).Error("request failed", "request", string(reqbytes), "response", string(respbytes))
	}

	return resp, respBody, nil
}
