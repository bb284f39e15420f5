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

const NominatimBaseURL string = "https://nominatim.openstreetmap.org"

// Nominatim requires every client to identify itself
const nominatimUserAgent string = "transit-publisher"

type nominatim struct {
	baseURL    string
	httpClient http.Client
}

func NewNominatim(baseURL string) Provider {
	if baseURL == "" {
		baseURL = NominatimBaseURL
	}

	return &nominatim{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(),
	}
}

func (n *nominatim) Name() string {
	return ProviderNominatim
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

func (n *nominatim) Reverse(ctx context.Context, latitude, longitude float64) (address string, err error) {
	ctx, span := tracer.Start(ctx, "nominatim-reverse")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("lat", strconv.FormatFloat(latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(longitude, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		err = NewServiceError(ProviderNominatim, err.Error())
		return
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", nominatimUserAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		err = classify(ProviderNominatim, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = classify(ProviderNominatim, err)
		return
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		err = NewQuotaExceededError(ProviderNominatim, string(body))
		return
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		err = NewDeniedError(ProviderNominatim, fmt.Sprintf("status code %d", resp.StatusCode))
		return
	case resp.StatusCode == http.StatusGatewayTimeout:
		err = classify(ProviderNominatim, context.DeadlineExceeded)
		return
	case resp.StatusCode != http.StatusOK:
		err = NewServiceError(ProviderNominatim, fmt.Sprintf("unexpected status code %d", resp.StatusCode))
		return
	}

	result := nominatimResponse{}
	if err = json.Unmarshal(body, &result); err != nil {
		err = NewServiceError(ProviderNominatim, "failed to decode response: "+err.Error())
		return
	}

	if result.Error != "" || result.DisplayName == "" {
		return "", ErrNoResult
	}

	return result.DisplayName, nil
}
