package ost

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/diwise/transit-publisher/pkg/jsonvalue"
)

// MaintenanceMarker is served with a 200 status while the source API is down
// for maintenance.
const MaintenanceMarker string = "Temporarily Down"

// Meta carries the pagination metadata of a page. An empty NextPage means there
// are no more pages to fetch.
type Meta struct {
	NextPage string
}

type Page struct {
	Records []jsonvalue.Object
	Meta    Meta
}

func (p Page) HasNext() bool {
	return p.Meta.NextPage != ""
}

// Parse classifies a response from the source API. The checks are made in a
// fixed order so that the outcome is fully determined by status, body and URL.
//
// Status codes that are not explicitly handled produce an empty page and no
// error, which callers treat as "no data".
func Parse(status int, body []byte, requestURL string) (Page, error) {
	if status == http.StatusOK && bytes.Contains(body, []byte(MaintenanceMarker)) {
		return Page{}, NewSourceUnavailableError("down for maintenance")
	}

	switch status {
	case http.StatusOK:
		return decodePage(body)
	case http.StatusUnauthorized:
		return Page{}, NewInvalidCredentialsError()
	case http.StatusNotFound:
		if hasKey(requestURL) {
			return Page{}, NewEndpointNotFoundError(requestURL)
		}
		return Page{}, NewMissingCredentialsError(requestURL)
	case http.StatusForbidden, http.StatusInternalServerError, http.StatusBadGateway:
		return Page{}, NewSourceUnavailableError(strconv.Itoa(status) + " " + http.StatusText(status))
	}

	return Page{}, nil
}

// IsClassified reports whether Parse treats the status code as meaningful
func IsClassified(status int) bool {
	switch status {
	case http.StatusOK, http.StatusUnauthorized, http.StatusNotFound,
		http.StatusForbidden, http.StatusInternalServerError, http.StatusBadGateway:
		return true
	}
	return false
}

func decodePage(body []byte) (Page, error) {
	envelope := struct {
		Objects []jsonvalue.Object `json:"Objects"`
		Meta    jsonvalue.Object   `json:"Meta"`
	}{}

	err := json.Unmarshal(body, &envelope)
	if err != nil {
		return Page{}, fmt.Errorf("failed to decode response body: %s (%w)", err.Error(), ErrBadResponse)
	}

	page := Page{
		Records: envelope.Objects,
		Meta: Meta{
			NextPage: envelope.Meta.GetString("next_page"),
		},
	}

	if page.Records == nil {
		page.Records = []jsonvalue.Object{}
	}

	return page, nil
}

func hasKey(requestURL string) bool {
	u, err := url.Parse(requestURL)
	if err != nil {
		return false
	}
	return u.Query().Get("key") != ""
}

func redactKey(requestURL string) string {
	u, err := url.Parse(requestURL)
	if err != nil {
		return requestURL
	}

	q := u.Query()
	if q.Get("key") != "" {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}

	return u.String()
}
