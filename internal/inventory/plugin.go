// Package inventory defines the Inventory plugin interface (spec §4.7,
// §6) and its concrete backends: a flat YAML file, a NetBox-like source
// of truth over Postgres, and an NMS-like source of truth over MySQL.
package inventory

// DeviceDescriptor is the resolved connection information for one device.
type DeviceDescriptor struct {
	Host           string            `json:"host"`
	Port           int               `json:"port"`
	Adapter        string            `json:"adapter"`
	AdapterDriver  string            `json:"adapter_driver"`
	CredentialRef  string            `json:"credential_id"`
	AdapterOptions map[string]string `json:"adapter_options,omitempty"`
}

// Filter is a mapping from field name to a case-insensitive regex; every
// entry must match (logical AND) for a device to be included.
type Filter map[string]string

// Plugin is the capability set every inventory backend implements.
type Plugin interface {
	GetDevice(name string) (*DeviceDescriptor, error)
	ListDevices(filter Filter) ([]DeviceDescriptor, error)
	ListRaw(filter Filter) ([]map[string]any, error)
	FilterableFields() []string
	NamedFilters() map[string]string

	// ResolveNamedFilter looks up one of the entries NamedFilters()
	// advertises by name, returning its underlying field->regex map.
	// Backends with no named filters (netbox, nms) always report false.
	ResolveNamedFilter(name string) (Filter, bool)
}

// CombineFilters ANDs a config-level filter with a per-request inline
// filter, implementing SPEC_FULL.md's open-question decision #3: fields
// present in only one of them all apply, combined by logical AND; on a
// field present in both, the inline pattern replaces the config-level one.
// A named filter, if resolved by the
// caller, takes the inline slot and so overrides any other inline filter
// the caller would otherwise have supplied.
func CombineFilters(configLevel, inline Filter) Filter {
	if len(configLevel) == 0 {
		return inline
	}
	if len(inline) == 0 {
		return configLevel
	}
	combined := make(Filter, len(configLevel)+len(inline))
	for k, v := range configLevel {
		combined[k] = v
	}
	for k, v := range inline {
		combined[k] = v
	}
	return combined
}
