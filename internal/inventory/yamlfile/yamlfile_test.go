package yamlfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tomnet/tom/internal/tomerr"
)

const sampleYAML = `
devices:
  rtr1:
    host: 10.0.0.1
    adapter: A
    adapter_driver: cisco_ios
    credential_id: default
  rtr2:
    host: 10.0.0.2
    port: 2222
    adapter: B
    adapter_driver: juniper_junos
    credential_id: default
named_filters:
  cisco_only:
    adapter_driver: cisco_.*
`

func writeInventory(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write inventory: %v", err)
	}
	return path
}

func TestGetDeviceDefaultsPortTo22(t *testing.T) {
	p, err := Load(writeInventory(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d, err := p.GetDevice("rtr1")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if d.Port != 22 {
		t.Fatalf("expected default port 22, got %d", d.Port)
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	p, err := Load(writeInventory(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = p.GetDevice("missing")
	tomErr, ok := tomerr.As(err)
	if !ok || tomErr.Kind != tomerr.KindNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestListDevicesFiltersByDriver(t *testing.T) {
	p, err := Load(writeInventory(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	devices, err := p.ListDevices(map[string]string{"adapter_driver": "cisco_.*"})
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 1 || devices[0].Host != "10.0.0.1" {
		t.Fatalf("expected only rtr1, got %+v", devices)
	}
}

func TestNamedFilterResolution(t *testing.T) {
	p, err := Load(writeInventory(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	filter, ok := p.ResolveNamedFilter("cisco_only")
	if !ok {
		t.Fatalf("expected named filter cisco_only to resolve")
	}
	if filter["adapter_driver"] != "cisco_.*" {
		t.Fatalf("unexpected named filter contents: %+v", filter)
	}
}
