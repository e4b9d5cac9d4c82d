package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockcore/internal/adapters/backup"
	"stockcore/internal/core"
	archivememory "stockcore/internal/infra/archive/memory"
	keyedmemory "stockcore/internal/infra/keyed/memory"
	"stockcore/pkg/domain"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store := keyedmemory.NewStore()
	t.Cleanup(func() { _ = store.Close() })
	return NewHandler(core.NewService(store))
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeItem(t *testing.T, rec *httptest.ResponseRecorder) domain.InventoryItem {
	t.Helper()
	var resp struct {
		Item domain.InventoryItem `json:"item"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Item
}

func TestItemCRUDOverHTTP(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/items", `{"name":"Widget","quantity":10,"price":2.5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body)
	}
	created := decodeItem(t, rec)
	if created.ID != 1 || created.UpdatedAt != nil {
		t.Fatalf("unexpected created item: %+v", created)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/items/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	if got := decodeItem(t, rec); got.Name != "Widget" || got.Quantity != 10 {
		t.Fatalf("get returned %+v", got)
	}

	rec = doRequest(t, h, http.MethodPut, "/api/v1/items/1", `{"name":"Widget","quantity":5,"price":3.0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body)
	}
	updated := decodeItem(t, rec)
	if updated.Quantity != 5 || updated.Price != 3.0 || updated.UpdatedAt == nil {
		t.Fatalf("unexpected updated item: %+v", updated)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("update changed created_at: %v vs %v", updated.CreatedAt, created.CreatedAt)
	}

	rec = doRequest(t, h, http.MethodDelete, "/api/v1/items/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/v1/items/1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/items", `{"name":"Gadget","quantity":1,"price":1.0}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("second create: status %d", rec.Code)
	}
	if item := decodeItem(t, rec); item.ID != 2 {
		t.Fatalf("deleted id reused: got id %d", item.ID)
	}
}

func TestListItems(t *testing.T) {
	h := newTestHandler(t)
	for _, body := range []string{
		`{"name":"A","quantity":1,"price":1}`,
		`{"name":"B","quantity":2,"price":2}`,
	} {
		if rec := doRequest(t, h, http.MethodPost, "/api/v1/items", body); rec.Code != http.StatusCreated {
			t.Fatalf("seed: status %d", rec.Code)
		}
	}
	rec := doRequest(t, h, http.MethodGet, "/api/v1/items", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var resp struct {
		Items []domain.InventoryItem `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].ID != 1 || resp.Items[1].ID != 2 {
		t.Fatalf("unexpected listing: %+v", resp.Items)
	}
}

func TestValidationMapsToBadRequest(t *testing.T) {
	h := newTestHandler(t)
	cases := []struct {
		name string
		body string
	}{
		{name: "empty name", body: `{"name":"","quantity":1,"price":1}`},
		{name: "zero quantity", body: `{"name":"Widget","quantity":0,"price":1}`},
		{name: "zero price", body: `{"name":"Widget","quantity":1,"price":0}`},
		{name: "malformed json", body: `{"name":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/v1/items", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d body %s", rec.Code, rec.Body)
			}
		})
	}
	rec := doRequest(t, h, http.MethodGet, "/api/v1/items", "")
	var resp struct {
		Items []domain.InventoryItem `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Fatalf("rejected payloads must not mutate the store: %+v", resp.Items)
	}
}

func TestRoutingEdges(t *testing.T) {
	h := newTestHandler(t)
	cases := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{name: "unknown path", method: http.MethodGet, path: "/api/v1/unknown", status: http.StatusNotFound},
		{name: "non-numeric id", method: http.MethodGet, path: "/api/v1/items/abc", status: http.StatusNotFound},
		{name: "bad items method", method: http.MethodPatch, path: "/api/v1/items", status: http.StatusMethodNotAllowed},
		{name: "bad item method", method: http.MethodPost, path: "/api/v1/items/1", status: http.StatusMethodNotAllowed},
		{name: "missing item", method: http.MethodGet, path: "/api/v1/items/99", status: http.StatusNotFound},
		{name: "snapshots disabled", method: http.MethodGet, path: "/api/v1/snapshots", status: http.StatusNotFound},
		{name: "health", method: http.MethodGet, path: "/healthz", status: http.StatusOK},
		{name: "health bad method", method: http.MethodPost, path: "/healthz", status: http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, h, tc.method, tc.path, "")
			if rec.Code != tc.status {
				t.Fatalf("status %d want %d (body %s)", rec.Code, tc.status, rec.Body)
			}
		})
	}
}

func TestNotFoundMessageCarriesID(t *testing.T) {
	h := newTestHandler(t)
	rec := doRequest(t, h, http.MethodDelete, "/api/v1/items/7", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !strings.Contains(resp.Error, "7") {
		t.Fatalf("error message must name the id: %q", resp.Error)
	}
}

func TestSnapshotEndpoints(t *testing.T) {
	store := keyedmemory.NewStore()
	t.Cleanup(func() { _ = store.Close() })
	service := core.NewService(store)
	worker := backup.NewWorker(service, archivememory.New(), nil)
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })
	h := &Handler{Service: service, Snapshots: worker}

	rec := doRequest(t, h, http.MethodPost, "/api/v1/snapshots", `{"requested_by":"ops","reason":"drill"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("trigger: status %d body %s", rec.Code, rec.Body)
	}
	var accepted struct {
		Snapshot backup.SnapshotRecord `json:"snapshot"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode trigger: %v", err)
	}
	if accepted.Snapshot.ID == "" || accepted.Snapshot.RequestedBy != "ops" {
		t.Fatalf("unexpected accepted record: %+v", accepted.Snapshot)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = doRequest(t, h, http.MethodGet, "/api/v1/snapshots/"+accepted.Snapshot.ID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status: %d", rec.Code)
		}
		var status struct {
			Snapshot backup.SnapshotRecord `json:"snapshot"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if status.Snapshot.Status == backup.SnapshotStatusSucceeded {
			break
		}
		if status.Snapshot.Status == backup.SnapshotStatusFailed {
			t.Fatalf("snapshot failed: %+v", status.Snapshot)
		}
		if time.Now().After(deadline) {
			t.Fatalf("snapshot never completed: %+v", status.Snapshot)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/snapshots", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list snapshots: status %d", rec.Code)
	}
	var listing struct {
		Snapshots []backup.SnapshotRecord `json:"snapshots"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Snapshots) != 1 {
		t.Fatalf("unexpected snapshot listing: %+v", listing.Snapshots)
	}

	if rec = doRequest(t, h, http.MethodGet, "/api/v1/snapshots/unknown", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown snapshot: status %d", rec.Code)
	}
	if rec = doRequest(t, h, http.MethodDelete, "/api/v1/snapshots/"+accepted.Snapshot.ID, ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("snapshot delete: status %d", rec.Code)
	}
}
