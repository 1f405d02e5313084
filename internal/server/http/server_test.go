package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/waresync/waresync/internal/domain"
	"github.com/waresync/waresync/internal/domain/ports"
	"github.com/waresync/waresync/internal/store"
)

// memInventory is an in-memory store.Inventory for handler tests.
type memInventory struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]store.Item
}

func newMemInventory() *memInventory {
	return &memInventory{nextID: 1, items: make(map[int64]store.Item)}
}

func (m *memInventory) Create(ctx context.Context, name string, quantity int) (*store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := store.Item{ID: m.nextID, Name: name, Quantity: quantity, UpdatedAt: time.Now()}
	m.items[item.ID] = item
	m.nextID++
	return &item, nil
}

func (m *memInventory) Get(ctx context.Context, id int64) (*store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return &item, nil
}

func (m *memInventory) List(ctx context.Context) ([]store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Item, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	return items, nil
}

func (m *memInventory) UpdateQuantity(ctx context.Context, id int64, quantity int) (*store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	item.Quantity = quantity
	item.UpdatedAt = time.Now()
	m.items[id] = item
	return &item, nil
}

func (m *memInventory) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return domain.ErrItemNotFound
	}
	delete(m.items, id)
	return nil
}

// stubRegistry satisfies Registry without a running hub.
type stubRegistry struct{}

func (stubRegistry) Subscribe(sub ports.Subscriber) {}
func (stubRegistry) Unsubscribe(id string)          {}
func (stubRegistry) SubscriberCount() int           { return 0 }

func newTestServer(t *testing.T) (*httptest.Server, *memInventory) {
	t.Helper()
	inv := newMemInventory()
	s := New("127.0.0.1", 0, inv, stubRegistry{}, "test")
	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, inv
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestCreateItem(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/inventory", "application/json",
		bytes.NewBufferString(`{"name": "widget", "quantity": 10}`))
	if err != nil {
		t.Fatalf("POST /api/inventory: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}

	var item store.Item
	decodeBody(t, resp, &item)
	if item.ID == 0 {
		t.Error("created item should have an id")
	}
	if item.Name != "widget" || item.Quantity != 10 {
		t.Errorf("item = %+v, want widget/10", item)
	}
}

func TestCreateItem_Invalid(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"empty name", `{"name": "", "quantity": 1}`},
		{"whitespace name", `{"name": "   ", "quantity": 1}`},
		{"negative quantity", `{"name": "widget", "quantity": -1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/inventory", "application/json",
				bytes.NewBufferString(tt.body))
			if err != nil {
				t.Fatalf("POST /api/inventory: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestGetItem(t *testing.T) {
	ts, inv := newTestServer(t)

	created, _ := inv.Create(context.Background(), "gadget", 3)

	resp, err := http.Get(fmt.Sprintf("%s/api/inventory/%d", ts.URL, created.ID))
	if err != nil {
		t.Fatalf("GET item: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var item store.Item
	decodeBody(t, resp, &item)
	if item.Name != "gadget" {
		t.Errorf("name = %s, want gadget", item.Name)
	}
}

func TestGetItem_NotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/inventory/999")
	if err != nil {
		t.Fatalf("GET item: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetItem_BadID(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/inventory/abc")
	if err != nil {
		t.Fatalf("GET item: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListItems(t *testing.T) {
	ts, inv := newTestServer(t)

	inv.Create(context.Background(), "a", 1)
	inv.Create(context.Background(), "b", 2)

	resp, err := http.Get(ts.URL + "/api/inventory")
	if err != nil {
		t.Fatalf("GET /api/inventory: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Items []store.Item `json:"items"`
	}
	decodeBody(t, resp, &body)
	if len(body.Items) != 2 {
		t.Errorf("items = %d, want 2", len(body.Items))
	}
}

func TestUpdateItem(t *testing.T) {
	ts, inv := newTestServer(t)

	created, _ := inv.Create(context.Background(), "widget", 5)

	req, _ := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/inventory/%d", ts.URL, created.ID),
		bytes.NewBufferString(`{"quantity": 42}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT item: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var item store.Item
	decodeBody(t, resp, &item)
	if item.Quantity != 42 {
		t.Errorf("quantity = %d, want 42", item.Quantity)
	}
}

func TestUpdateItem_MissingQuantity(t *testing.T) {
	ts, inv := newTestServer(t)

	created, _ := inv.Create(context.Background(), "widget", 5)

	req, _ := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/inventory/%d", ts.URL, created.ID),
		bytes.NewBufferString(`{}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT item: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUpdateItem_NotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/inventory/999",
		bytes.NewBufferString(`{"quantity": 1}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT item: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteItem(t *testing.T) {
	ts, inv := newTestServer(t)

	created, _ := inv.Create(context.Background(), "widget", 5)

	req, _ := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/api/inventory/%d", ts.URL, created.ID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE item: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if _, err := inv.Get(context.Background(), created.ID); err != domain.ErrItemNotFound {
		t.Errorf("item should be gone, got err = %v", err)
	}
}

func TestDeleteItem_NotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/inventory/999", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE item: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/inventory", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q, want localhost origin echoed", got)
	}
}
