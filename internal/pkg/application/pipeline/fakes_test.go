package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/diwise/transit-publisher/pkg/ckan"
	"github.com/diwise/transit-publisher/pkg/ngsi"
	"github.com/diwise/transit-publisher/pkg/ost"
)

// fakeSource serves canned pages keyed on the request path and, for paged
// resources, on the page query parameter.
type fakeSource struct {
	*httptest.Server

	mu       sync.Mutex
	pages    map[string][]string
	requests map[string]int
	queries  map[string][]url.Values
}

func newFakeSource(pages map[string][]string) *fakeSource {
	fs := &fakeSource{
		pages:    pages,
		requests: map[string]int{},
		queries:  map[string][]url.Values{},
	}

	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()

		fs.requests[r.URL.Path]++
		fs.queries[r.URL.Path] = append(fs.queries[r.URL.Path], r.URL.Query())

		page := 0
		if p := r.URL.Query().Get("page"); p != "" {
			fmt.Sscanf(p, "%d", &page)
		}

		content, ok := fs.pages[r.URL.Path]
		if !ok || page >= len(content) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(content[page]))
	}))

	return fs
}

func (fs *fakeSource) requestCount(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.requests[path]
}

func (fs *fakeSource) client() *ost.Client {
	c, _ := ost.NewClient(fs.URL+"/", "testkey")
	return c
}

// fakeBroker is an in memory context broker speaking NGSI v1
type fakeBroker struct {
	*httptest.Server

	mu       sync.Mutex
	entities map[string][]ngsi.Entity
	updates  int
	reject   string
}

func newFakeBroker() *fakeBroker {
	fb := &fakeBroker{entities: map[string][]ngsi.Entity{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /ngsi10/updateContext", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()

		fb.updates++

		req := ngsi.UpdateRequest{}
		json.NewDecoder(r.Body).Decode(&req)

		resp := ngsi.Response{}
		for _, e := range req.ContextElements {
			status := ngsi.StatusOK
			if e.Type == fb.reject {
				status = ngsi.StatusCode{Code: "472", ReasonPhrase: "request parameter is invalid/not allowed"}
			} else {
				fb.entities[e.Type] = append(fb.entities[e.Type], e)
			}
			resp.ContextResponses = append(resp.ContextResponses, ngsi.ContextResponse{ContextElement: e, StatusCode: status})
		}

		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST /ngsi10/queryContext", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()

		req := ngsi.QueryRequest{}
		json.NewDecoder(r.Body).Decode(&req)

		found := fb.entities[req.Entities[0].Type]
		if len(found) == 0 {
			json.NewEncoder(w).Encode(ngsi.Response{ErrorCode: &ngsi.StatusCode{Code: "404", ReasonPhrase: "No context element found"}})
			return
		}

		resp := ngsi.Response{}
		for _, e := range found {
			resp.ContextResponses = append(resp.ContextResponses, ngsi.ContextResponse{ContextElement: e, StatusCode: ngsi.StatusOK})
		}
		json.NewEncoder(w).Encode(resp)
	})

	fb.Server = httptest.NewServer(mux)
	return fb
}

func (fb *fakeBroker) published(entityType string) []ngsi.Entity {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.entities[entityType]
}

func (fb *fakeBroker) client() *ngsi.Client {
	c, _ := ngsi.NewClient(fb.URL)
	return c
}

// memoryCatalog implements Catalog in memory
type memoryCatalog struct {
	datasets  map[string]*ckan.Dataset
	records   map[string][]map[string]any
	keys      map[string][]string
	denied    bool
	upsertErr error
	// rejects holds the upsert calls, counted from 1, that fail
	rejects map[int]bool
	upserts int
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		datasets: map[string]*ckan.Dataset{},
		records:  map[string][]map[string]any{},
		keys:     map[string][]string{},
	}
}

func (mc *memoryCatalog) EnsureDataset(ctx context.Context, spec ckan.DatasetSpec) (*ckan.Dataset, error) {
	if mc.denied {
		return nil, nil
	}

	ds, ok := mc.datasets[spec.Name]
	if !ok {
		ds = &ckan.Dataset{ID: "ds-" + spec.Name, Name: spec.Name}
		mc.datasets[spec.Name] = ds
	}
	return ds, nil
}

func (mc *memoryCatalog) EnsureResource(ctx context.Context, name string, dataset *ckan.Dataset, format, location string) (*ckan.Resource, error) {
	if r, ok := dataset.Resource(name); ok {
		return r, nil
	}

	dataset.Resources = append(dataset.Resources, ckan.Resource{ID: dataset.Name + "/" + name, Name: name, Format: format, URL: location})
	r, _ := dataset.Resource(name)
	return r, nil
}

func (mc *memoryCatalog) UpsertRecords(ctx context.Context, resourceID string, records []map[string]any, primaryKey []string, fields []ckan.Field, batchSize int) error {
	mc.upserts++

	if mc.upsertErr != nil {
		return mc.upsertErr
	}
	if mc.rejects[mc.upserts] {
		return fmt.Errorf("batch %d: %w", mc.upserts, ckan.ErrActionFailed)
	}

	mc.records[resourceID] = append(mc.records[resourceID], records...)
	mc.keys[resourceID] = primaryKey
	return nil
}

type fixedGeocoder struct {
	calls int
}

func (g *fixedGeocoder) Reverse(ctx context.Context, latitude, longitude float64) (string, bool) {
	g.calls++
	if g.calls%2 == 0 {
		return "", false
	}
	return fmt.Sprintf("Rua %d; Lisboa", g.calls), true
}

// archiveSource hands out a prepared GTFS archive for any publisher
type archiveSource struct {
	Source
	archives map[string][]byte
}

func (as *archiveSource) DownloadGTFS(ctx context.Context, publisher string, dst io.Writer) (int64, error) {
	content, ok := as.archives[publisher]
	if !ok {
		return 0, fmt.Errorf("no archive for %s (%w)", publisher, ost.ErrEndpointNotFound)
	}
	return io.Copy(dst, bytes.NewReader(content))
}

func objects(records ...string) string {
	return fmt.Sprintf(`{"Objects":[%s],"Meta":{}}`, joinJSON(records))
}

func pageWithCursor(next string, records ...string) string {
	return fmt.Sprintf(`{"Objects":[%s],"Meta":{"next_page":%q}}`, joinJSON(records), next)
}

func joinJSON(records []string) string {
	b := bytes.Buffer{}
	for i, r := range records {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(r)
	}
	return b.String()
}
