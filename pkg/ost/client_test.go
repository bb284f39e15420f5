package ost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	testutils "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"
	"github.com/matryer/is"
)

var Expects = testutils.Expects
var Returns = testutils.Returns
var anyInput = expects.AnyInput
var method = expects.RequestMethod
var path = expects.RequestPath
var queryParam = expects.QueryParamEquals

func TestGetAgency(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
			path("/agencies"),
			queryParam("name", "CP - Comboios de Portugal"),
			queryParam("key", "abc"),
		),
		Returns(
			response.ContentType("application/json"),
			response.Code(http.StatusOK),
			response.Body([]byte(agencyResponse)),
		),
	)
	defer s.Close()

	c, err := NewClient(s.URL(), "abc")
	is.NoErr(err)

	agency, err := c.GetAgency(context.Background(), "CP - Comboios de Portugal")
	is.NoErr(err)

	is.Equal(agency.GetString("id"), "1")
	is.Equal(agency.GetString("agency_timezone"), "Europe/Lisbon")
	is.Equal(s.RequestCount(), 1)
}

func TestGetAgencyWithInvalidKey(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(response.Code(http.StatusUnauthorized)),
	)
	defer s.Close()

	c, _ := NewClient(s.URL(), "abc")

	_, err := c.GetAgency(context.Background(), "CP")
	is.True(errors.Is(err, ErrInvalidCredentials))
}

func TestGetAgencyThatDoesNotExist(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.Code(http.StatusOK),
			response.Body([]byte(`{"Objects":[],"Meta":{}}`)),
		),
	)
	defer s.Close()

	c, _ := NewClient(s.URL(), "abc")

	_, err := c.GetAgency(context.Background(), "Nope")
	is.True(errors.Is(err, ErrAgencyNotFound))
}

func TestFetchAllWithoutPagination(t *testing.T) {
	is := is.New(t)

	src := newPagedSource("/stops", []string{
		`{"Objects":[{"id":1},{"id":2}],"Meta":{}}`,
	})
	defer src.Close()

	c, _ := NewClient(src.URL, "abc")

	records, err := c.FetchAll(context.Background(), Stops, nil)
	is.NoErr(err)

	is.Equal(len(records), 2)
	is.Equal(src.requestCount("/stops"), 1)
}

func TestFetchAllWithEmptyFirstPage(t *testing.T) {
	is := is.New(t)

	src := newPagedSource("/stops", []string{
		`{"Objects":[],"Meta":{"next_page":null}}`,
	})
	defer src.Close()

	c, _ := NewClient(src.URL, "abc")

	records, err := c.FetchAll(context.Background(), Stops, nil)
	is.NoErr(err)

	is.Equal(len(records), 0)
	is.Equal(src.requestCount("/stops"), 1)
}

func TestFetchAllFollowsCursorsThroughEmptyPages(t *testing.T) {
	is := is.New(t)

	src := newPagedSource("/stoptimes", []string{
		`{"Objects":[{"id":1}],"Meta":{"next_page":"/stoptimes?page=1&route=42"}}`,
		`{"Objects":[],"Meta":{"next_page":"/stoptimes?page=2&route=42"}}`,
		`{"Objects":[{"id":2},{"id":3}],"Meta":{}}`,
	})
	defer src.Close()

	c, _ := NewClient(src.URL, "abc")

	records, err := c.FetchByRoutes(context.Background(), StopTimes, []string{"42"})
	is.NoErr(err)

	is.Equal(len(records), 3)
	is.Equal(records[0].GetString("id"), "1")
	is.Equal(records[2].GetString("id"), "3")

	is.Equal(src.requestCount("/stoptimes"), 3) // one request per page
	is.Equal(src.pagesServed(), []int{0, 1, 2}) // no page is requested twice
	is.Equal(src.keys(), []string{"abc", "abc", "abc"})
}

func TestFetchAllDiscardsRecordsOnFailure(t *testing.T) {
	is := is.New(t)

	src := newPagedSource("/routes", []string{
		`{"Objects":[{"id":1}],"Meta":{"next_page":"/routes?page=1"}}`,
	})
	defer src.Close()

	c, _ := NewClient(src.URL, "abc")

	records, err := c.FetchByAgency(context.Background(), Routes, "1", nil)
	is.True(errors.Is(err, ErrSourceUnavailable))
	is.Equal(records, nil)
}

func TestFetchByAgencyRequiresAnAgency(t *testing.T) {
	is := is.New(t)

	c, _ := NewClient("http://127.0.0.1:1", "abc")

	_, err := c.FetchByAgency(context.Background(), Routes, "", nil)
	is.True(errors.Is(err, ErrMissingArgument))
}

func TestFetchByRoutesRequiresRoutes(t *testing.T) {
	is := is.New(t)

	c, _ := NewClient("http://127.0.0.1:1", "abc")

	_, err := c.FetchByRoutes(context.Background(), Trips, nil)
	is.True(errors.Is(err, ErrMissingArgument))
}

func TestWhereAt(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			path("/whereat"),
			queryParam("coords", "-9.1,38.7"),
		),
		Returns(
			response.Code(http.StatusOK),
			response.Body([]byte(`{"parish":{"name":"Santa Maria de Belém"},"municipality":{"name":"Lisboa"}}`)),
		),
	)
	defer s.Close()

	c, _ := NewClient(s.URL(), "abc")

	w := c.WhereAt(context.Background(), -9.1, 38.7)
	is.Equal(w.Parish, "Santa Maria de Belém")
	is.Equal(w.Municipality, "Lisboa")
}

func TestWhereAtFailureIsNotFatal(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(response.Code(http.StatusInternalServerError)),
	)
	defer s.Close()

	c, _ := NewClient(s.URL(), "abc")

	w := c.WhereAt(context.Background(), -9.1, 38.7)
	is.Equal(w, WhereAt{})
}

func TestDownloadGTFS(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			path("/gtfs"),
			queryParam("publisher_name", "Carris"),
		),
		Returns(
			response.Code(http.StatusOK),
			response.Body([]byte("PK-zipbytes")),
		),
	)
	defer s.Close()

	c, _ := NewClient(s.URL(), "abc")

	buf := &bytes.Buffer{}
	n, err := c.DownloadGTFS(context.Background(), "Carris", buf)
	is.NoErr(err)
	is.Equal(n, int64(11))
	is.Equal(buf.String(), "PK-zipbytes")
}

func TestDownloadGTFSWithInvalidKey(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(response.Code(http.StatusUnauthorized)),
	)
	defer s.Close()

	c, _ := NewClient(s.URL(), "abc")

	_, err := c.DownloadGTFS(context.Background(), "Carris", &bytes.Buffer{})
	is.True(errors.Is(err, ErrInvalidCredentials))
}

// pagedSource serves a fixed sequence of pages on a single path, selected by
// the page query parameter, and answers anything past the last page with 500.
type pagedSource struct {
	*httptest.Server

	mu       sync.Mutex
	requests map[string]int
	served   []int
	apiKeys  []string
}

func newPagedSource(resourcePath string, pages []string) *pagedSource {
	src := &pagedSource{requests: map[string]int{}}

	src.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		src.mu.Lock()
		defer src.mu.Unlock()

		src.requests[r.URL.Path]++
		src.apiKeys = append(src.apiKeys, r.URL.Query().Get("key"))

		if r.URL.Path != resourcePath {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		page := 0
		if p := r.URL.Query().Get("page"); p != "" {
			fmt.Sscanf(p, "%d", &page)
		}

		if page >= len(pages) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		src.served = append(src.served, page)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(pages[page]))
	}))

	return src
}

func (s *pagedSource) requestCount(p string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[p]
}

func (s *pagedSource) pagesServed() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int{}, s.served...)
}

func (s *pagedSource) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.apiKeys...)
}

const agencyResponse string = `{
	"Objects": [{
		"agency_lang": "pt",
		"agency_name": "CP - Comboios de Portugal",
		"agency_phone": "808 208 208",
		"agency_timezone": "Europe/Lisbon",
		"agency_url": "http://www.cp.pt",
		"id": 1,
		"resource_uri": "/api/v1/agencies/1/"
	}],
	"Meta": {}
}`
