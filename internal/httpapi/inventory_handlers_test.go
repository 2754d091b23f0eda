package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tomnet/tom/internal/inventory"
)

func TestInventoryExportAppliesNamedFilter(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/inventory/export?filter=ios_only", nil)
	rec := httptest.NewRecorder()
	s.handleInventoryExport(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var devices []inventory.DeviceDescriptor
	if err := json.Unmarshal(rec.Body.Bytes(), &devices); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(devices) != 1 || devices[0].AdapterDriver != "ios" {
		t.Fatalf("expected only the ios device, got %+v", devices)
	}
}

func TestInventoryExportUnknownNamedFilterIsNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/inventory/export?filter=does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.handleInventoryExport(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInventoryExportNamedFilterOverridesInlineParams(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/inventory/export?filter=ios_only&adapter_driver=junos", nil)
	rec := httptest.NewRecorder()
	s.handleInventoryExport(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var devices []inventory.DeviceDescriptor
	if err := json.Unmarshal(rec.Body.Bytes(), &devices); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(devices) != 1 || devices[0].AdapterDriver != "ios" {
		t.Fatalf("expected the named filter to win over the conflicting inline param, got %+v", devices)
	}
}

func TestInventoryExportPlainInlineFilterStillWorks(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/inventory/export?adapter_driver=junos", nil)
	rec := httptest.NewRecorder()
	s.handleInventoryExport(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var devices []inventory.DeviceDescriptor
	if err := json.Unmarshal(rec.Body.Bytes(), &devices); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(devices) != 1 || devices[0].AdapterDriver != "junos" {
		t.Fatalf("expected only the junos device, got %+v", devices)
	}
}
