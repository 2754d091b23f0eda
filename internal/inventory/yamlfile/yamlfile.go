// Package yamlfile implements inventory.Plugin over a single flat YAML
// file — the simplest inventory backend, for standalone deployments with
// no external source of truth.
package yamlfile

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/tomnet/tom/internal/inventory"
	"github.com/tomnet/tom/internal/tomerr"
)

type deviceEntry struct {
	Host           string            `yaml:"host"`
	Port           int               `yaml:"port"`
	Adapter        string            `yaml:"adapter"`
	AdapterDriver  string            `yaml:"adapter_driver"`
	CredentialID   string            `yaml:"credential_id"`
	AdapterOptions map[string]string `yaml:"adapter_options"`
}

type fileFormat struct {
	Devices      map[string]deviceEntry       `yaml:"devices"`
	NamedFilters map[string]inventory.Filter  `yaml:"named_filters"`
}

// Plugin is an immutable, load-once-at-startup inventory over a YAML
// file. Per spec §4.7, plugins are not hot-swappable — the file is read
// exactly once, in Load.
type Plugin struct {
	devices      map[string]inventory.DeviceDescriptor
	namedFilters map[string]inventory.Filter
}

// Load reads and parses the YAML inventory file.
func Load(path string) (*Plugin, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("yamlfile: read %s: %w", path, err)
	}
	var parsed fileFormat
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("yamlfile: parse %s: %w", path, err)
	}

	devices := make(map[string]inventory.DeviceDescriptor, len(parsed.Devices))
	for name, entry := range parsed.Devices {
		port := entry.Port
		if port == 0 {
			port = 22
		}
		devices[name] = inventory.DeviceDescriptor{
			Host:           entry.Host,
			Port:           port,
			Adapter:        entry.Adapter,
			AdapterDriver:  entry.AdapterDriver,
			CredentialRef:  entry.CredentialID,
			AdapterOptions: entry.AdapterOptions,
		}
	}
	return &Plugin{devices: devices, namedFilters: parsed.NamedFilters}, nil
}

func (p *Plugin) GetDevice(name string) (*inventory.DeviceDescriptor, error) {
	d, ok := p.devices[name]
	if !ok {
		return nil, tomerr.New(tomerr.KindNotFound, "device not found: "+name)
	}
	if d.Host == "" {
		return nil, tomerr.New(tomerr.KindInternal, "device "+name+" has no host configured")
	}
	return &d, nil
}

func (p *Plugin) ListDevices(filter inventory.Filter) ([]inventory.DeviceDescriptor, error) {
	var out []inventory.DeviceDescriptor
	for _, d := range p.devices {
		if inventory.Matches(d, filter) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (p *Plugin) ListRaw(filter inventory.Filter) ([]map[string]any, error) {
	devices, err := p.ListDevices(filter)
	if err != nil {
		return nil, err
	}
	raw := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		raw = append(raw, map[string]any{
			"host":           d.Host,
			"port":           strconv.Itoa(d.Port),
			"adapter":        d.Adapter,
			"adapter_driver": d.AdapterDriver,
			"credential_id":  d.CredentialRef,
			"adapter_options": d.AdapterOptions,
		})
	}
	return raw, nil
}

func (p *Plugin) FilterableFields() []string {
	return inventory.FilterableFieldNames()
}

func (p *Plugin) NamedFilters() map[string]string {
	out := make(map[string]string, len(p.namedFilters))
	for name := range p.namedFilters {
		out[name] = "named filter"
	}
	return out
}

// ResolveNamedFilter looks up a pre-registered filter by name, for
// callers that need the underlying field->regex map rather than just the
// description NamedFilters() returns.
func (p *Plugin) ResolveNamedFilter(name string) (inventory.Filter, bool) {
	f, ok := p.namedFilters[name]
	return f, ok
}
