package inventory

import (
	"regexp"
	"strconv"
)

// Fields returns a device's filterable attributes as a flat string map,
// the common shape every backend's filter matching works against.
func Fields(d DeviceDescriptor) map[string]string {
	return map[string]string{
		"host":           d.Host,
		"port":           strconv.Itoa(d.Port),
		"adapter":        d.Adapter,
		"adapter_driver": d.AdapterDriver,
		"credential_id":  d.CredentialRef,
	}
}

// FilterableFieldNames lists the fields every backend exposes to inline
// and named filters — used as the default FilterableFields() answer.
func FilterableFieldNames() []string {
	return []string{"host", "port", "adapter", "adapter_driver", "credential_id"}
}

// Matches reports whether a device's fields satisfy every entry in
// filter, case-insensitively, combined by logical AND (spec §6).
func Matches(d DeviceDescriptor, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}
	attrs := Fields(d)
	for field, pattern := range filter {
		value, ok := attrs[field]
		if !ok {
			return false
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return false
		}
		if !re.MatchString(value) {
			return false
		}
	}
	return true
}
