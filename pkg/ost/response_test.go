package ost

import (
	"errors"
	"net/http"
	"testing"

	"github.com/matryer/is"
)

func TestParseClassification(t *testing.T) {
	const withKey = "https://api.ost.pt/routes?key=abc"
	const withoutKey = "https://api.ost.pt/routes"

	testCases := []struct {
		name   string
		status int
		body   string
		url    string
		err    error
	}{
		{"maintenance", http.StatusOK, "<html>Temporarily Down for maintenance</html>", withKey, ErrSourceUnavailable},
		{"unauthorized", http.StatusUnauthorized, "", withKey, ErrInvalidCredentials},
		{"not found with key", http.StatusNotFound, "", withKey, ErrEndpointNotFound},
		{"not found without key", http.StatusNotFound, "", withoutKey, ErrMissingCredentials},
		{"forbidden", http.StatusForbidden, "", withKey, ErrSourceUnavailable},
		{"internal error", http.StatusInternalServerError, "", withKey, ErrSourceUnavailable},
		{"bad gateway", http.StatusBadGateway, "", withKey, ErrSourceUnavailable},
		{"bad json", http.StatusOK, "not json", withKey, ErrBadResponse},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)

			_, err := Parse(tc.status, []byte(tc.body), tc.url)
			is.True(errors.Is(err, tc.err))
		})
	}
}

func TestParseUnclassifiedStatusReturnsEmptyPage(t *testing.T) {
	is := is.New(t)

	page, err := Parse(http.StatusTeapot, []byte("{}"), "https://api.ost.pt/routes?key=abc")

	is.NoErr(err)
	is.Equal(len(page.Records), 0)
	is.True(!page.HasNext())
	is.True(!IsClassified(http.StatusTeapot))
}

func TestParseReturnsObjectsAndMeta(t *testing.T) {
	is := is.New(t)

	body := `{"Objects":[{"id":1,"route_short_name":"IC"},{"id":2,"route_short_name":"AP"}],"Meta":{"next_page":"/routes/?page=2"}}`

	page, err := Parse(http.StatusOK, []byte(body), "https://api.ost.pt/routes?key=abc")
	is.NoErr(err)

	is.Equal(len(page.Records), 2)
	is.Equal(page.Records[0].GetString("id"), "1")
	is.Equal(page.Records[1].GetString("route_short_name"), "AP")
	is.Equal(page.Meta.NextPage, "/routes/?page=2")
}

func TestParseWithoutObjectsReturnsEmptyRecords(t *testing.T) {
	is := is.New(t)

	page, err := Parse(http.StatusOK, []byte(`{"Meta":{}}`), "https://api.ost.pt/routes?key=abc")
	is.NoErr(err)

	is.True(page.Records != nil)
	is.Equal(len(page.Records), 0)
	is.True(!page.HasNext())
}

func TestErrorMessagesDoNotLeakTheKey(t *testing.T) {
	is := is.New(t)

	_, err := Parse(http.StatusNotFound, nil, "https://api.ost.pt/nope?key=secret")
	is.True(err != nil)
	is.Equal(err.Error(), "API not found: https://api.ost.pt/nope?key=REDACTED")
}
