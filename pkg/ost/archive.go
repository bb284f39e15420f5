package ost

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const TraceAttributePublisher string = "ost-publisher"

// DownloadGTFS streams the complete GTFS archive of a publisher into dst and
// returns the number of bytes written.
func (c *Client) DownloadGTFS(ctx context.Context, publisher string, dst io.Writer) (int64, error) {
	var err error

	ctx, span := tracer.Start(ctx, "download-gtfs",
		trace.WithAttributes(attribute.String(TraceAttributePublisher, publisher)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if publisher == "" {
		err = fmt.Errorf("no publisher name was provided (%w)", ErrMissingArgument)
		return 0, err
	}

	endpoint := c.resourceURL("gtfs", url.Values{"publisher_name": []string{publisher}})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		err = fmt.Errorf("failed to create request: %s (%w)", err.Error(), ErrRequest)
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("failed to send request: %s (%w)", err.Error(), ErrRequest)
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		_, err = Parse(resp.StatusCode, body, endpoint)
		if err == nil {
			err = fmt.Errorf("unexpected response code %d when downloading gtfs archive (%w)", resp.StatusCode, ErrBadResponse)
		}
		return 0, err
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		err = fmt.Errorf("failed to read gtfs archive: %s (%w)", err.Error(), ErrBadResponse)
		return n, err
	}

	return n, nil
}
