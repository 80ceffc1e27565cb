package server

import (
	"net/http"
	"testing"

	"github.com/MarcoPoloResearchLab/folio/internal/access"
)

func TestListingRedirectsInvalidPages(t *testing.T) {
	testCases := []struct {
		path     string
		location string
	}{
		{path: "/", location: "/home/1"},
		{path: "/home", location: "/home/1"},
		{path: "/home/0", location: "/home/1"},
		{path: "/home/abc", location: "/home/1"},
		{path: "/search/x?q=go&tag=1", location: "/search/1?q=go&tag=1"},
	}
	for _, testCase := range testCases {
		server := newTestServer(t, nil)
		recorder := server.do(http.MethodGet, testCase.path, "", nil)
		if recorder.Code != http.StatusFound {
			t.Fatalf("%s: expected redirect, got %d", testCase.path, recorder.Code)
		}
		if location := recorder.Header().Get("Location"); location != testCase.location {
			t.Fatalf("%s: expected location %s, got %s", testCase.path, testCase.location, location)
		}
	}
}

func TestListingPageOutOfRange(t *testing.T) {
	server := newTestServer(t, nil)
	server.listings.err = access.NewServiceError("listing.build", "page_out_of_range", access.ErrPageOutOfRange)

	recorder := server.do(http.MethodGet, "/home/3", "", nil)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", recorder.Code)
	}
	call := server.renderer.last(t)
	if call.name != templateError || call.data["msg"] != msgOutOfRange {
		t.Fatalf("unexpected render %+v", call)
	}
}

func TestSearchPassesFilters(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := server.do(http.MethodGet, "/search/2?q=gopher&tag=3", "", nil)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	query := server.listings.queries[0]
	if query.Page != 2 || query.Search != "gopher" || query.TagID == nil || *query.TagID != 3 {
		t.Fatalf("unexpected query %+v", query)
	}
	if server.renderer.last(t).name != templateHome {
		t.Fatalf("expected home template")
	}
}

func TestSearchRejectsMalformedTag(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := server.do(http.MethodGet, "/search/1?tag=abc", "", nil)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", recorder.Code)
	}
	if len(server.listings.queries) != 0 {
		t.Fatalf("expected no listing build")
	}
}
