package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
)

const GoogleBaseURL string = "https://maps.googleapis.com/maps/api/geocode/json"

type google struct {
	key        string
	baseURL    string
	httpClient http.Client
}

func NewGoogle(key, baseURL string) Provider {
	if baseURL == "" {
		baseURL = GoogleBaseURL
	}

	return &google{
		key:        key,
		baseURL:    baseURL,
		httpClient: newHTTPClient(),
	}
}

func (g *google) Name() string {
	return ProviderGoogle
}

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

func (g *google) Reverse(ctx context.Context, latitude, longitude float64) (address string, err error) {
	ctx, span := tracer.Start(ctx, "google-reverse")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	params := url.Values{}
	params.Set("latlng", strconv.FormatFloat(latitude, 'f', -1, 64)+","+strconv.FormatFloat(longitude, 'f', -1, 64))
	if g.key != "" {
		params.Set("key", g.key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		err = NewServiceError(ProviderGoogle, err.Error())
		return
	}
	req.Header.Add("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		err = classify(ProviderGoogle, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = classify(ProviderGoogle, err)
		return
	}

	if resp.StatusCode != http.StatusOK {
		err = NewServiceError(ProviderGoogle, fmt.Sprintf("unexpected status code %d", resp.StatusCode))
		return
	}

	result := googleResponse{}
	if err = json.Unmarshal(body, &result); err != nil {
		err = NewServiceError(ProviderGoogle, "failed to decode response: "+err.Error())
		return
	}

	switch result.Status {
	case "OK":
		if len(result.Results) > 0 {
			return strings.TrimSpace(result.Results[0].FormattedAddress), nil
		}
		return "", ErrNoResult
	case "ZERO_RESULTS":
		return "", ErrNoResult
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		err = NewQuotaExceededError(ProviderGoogle, result.ErrorMessage)
		return
	case "REQUEST_DENIED", "INVALID_REQUEST":
		err = NewDeniedError(ProviderGoogle, result.Status+" "+result.ErrorMessage)
		return
	}

	err = NewServiceError(ProviderGoogle, result.Status+" "+result.ErrorMessage)
	return
}
