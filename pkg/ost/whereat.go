package ost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
)

// WhereAt holds the administrative areas that contain a coordinate
type WhereAt struct {
	Parish       string
	Municipality string
}

// WhereAt asks the source API which parish and municipality contain the given
// point. Any failure is logged and yields an empty result.
func (c *Client) WhereAt(ctx context.Context, longitude, latitude float64) WhereAt {
	var err error

	ctx, span := tracer.Start(ctx, "where-at")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	logger := logging.GetFromContext(ctx)

	coords := strconv.FormatFloat(longitude, 'f', -1, 64) + "," + strconv.FormatFloat(latitude, 'f', -1, 64)
	endpoint := c.resourceURL("whereat", url.Values{"coords": []string{coords}})

	resp, body, err := c.call(ctx, endpoint)
	if err != nil {
		logger.Warn("whereat lookup failed", "coords", coords, "err", err.Error())
		return WhereAt{}
	}

	if resp.StatusCode != http.StatusOK {
		logger.Debug("whereat lookup returned no data", "coords", coords, "status", resp.StatusCode)
		return WhereAt{}
	}

	result := struct {
		Parish *struct {
			Name string `json:"name"`
		} `json:"parish"`
		Municipality *struct {
			Name string `json:"name"`
		} `json:"municipality"`
	}{}

	err = json.Unmarshal(body, &result)
	if err != nil {
		err = fmt.Errorf("failed to decode whereat response: %w", err)
		logger.Warn("whereat lookup failed", "coords", coords, "err", err.Error())
		return WhereAt{}
	}

	w := WhereAt{}
	if result.Parish != nil {
		w.Parish = result.Parish.Name
	}
	if result.Municipality != nil {
		w.Municipality = result.Municipality.Name
	}

	return w
}
