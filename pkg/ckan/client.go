package ckan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	TypePackage   string = "package"
	TypeResource  string = "resource"
	TypeDatastore string = "datastore"
)

const (
	ActionCreate string = "create"
	ActionShow   string = "show"
)

var tracer = otel.Tracer("transit-publisher/ckan-client")

type Client struct {
	baseURL    string
	apiKey     string
	stagingDir string
	httpClient http.Client
}

// StagingDir is where local files referenced by created resources live
func StagingDir(dir string) func(*Client) {
	return func(c *Client) {
		c.stagingDir = strings.TrimSuffix(dir, "/")
	}
}

func NewClient(host, apiKey string, options ...func(*Client)) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("no catalog host (%w)", ErrInternal)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(host, "/"),
		apiKey:     apiKey,
		stagingDir: "data",
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, option := range options {
		option(c)
	}

	return c, nil
}

func (c *Client) ActionURL(objectType, action string) string {
	return fmt.Sprintf("%s/api/action/%s_%s", c.baseURL, objectType, action)
}

// Action posts payload to the {objectType}_{action} endpoint and decodes the
// result member of a successful response into result, unless result is nil.
func (c *Client) Action(ctx context.Context, objectType, action string, payload, result any) (err error) {
	ctx, span := tracer.Start(ctx, objectType+"-"+action,
		trace.WithAttributes(attribute.String("ckan-action", objectType+"_"+action)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	endpoint := c.ActionURL(objectType, action)

	body, err := json.Marshal(payload)
	if err != nil {
		err = fmt.Errorf("failed to marshal %s_%s payload: %s (%w)", objectType, action, err.Error(), ErrInternal)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		err = fmt.Errorf("failed to create request: %s (%w)", err.Error(), ErrInternal)
		return
	}

	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Add("Authorization", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("failed to send request: %s (%w)", err.Error(), ErrRequest)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("failed to read response body: %s (%w)", err.Error(), ErrBadResponse)
		return
	}

	ar := actionResponse{}
	decodeErr := json.Unmarshal(respBody, &ar)

	errorType, message := http.StatusText(resp.StatusCode), string(respBody)
	if decodeErr == nil && ar.Error != nil {
		errorType, message = ar.Error.Type, ar.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		err = newActionError(ErrAccessDenied, errorType, message, endpoint)
		return
	case resp.StatusCode == http.StatusNotFound:
		err = newActionError(ErrNotFound, errorType, message, endpoint)
		return
	case decodeErr != nil:
		err = fmt.Errorf("failed to decode %s response (status %d): %s (%w)", endpoint, resp.StatusCode, decodeErr.Error(), ErrBadResponse)
		return
	case resp.StatusCode != http.StatusOK || !ar.Success:
		err = newActionError(ErrActionFailed, errorType, message, endpoint)
		return
	}

	if result != nil && len(ar.Result) > 0 {
		if err = json.Unmarshal(ar.Result, result); err != nil {
			err = fmt.Errorf("failed to decode %s result: %s (%w)", endpoint, err.Error(), ErrBadResponse)
			return
		}
	}

	return nil
}
