package httpapi

import (
	"net/http"

	"github.com/tomnet/tom/internal/inventory"
	"github.com/tomnet/tom/internal/tomerr"
)

func (s *Server) handleInventoryGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	device, err := s.inventory.GetDevice(name)
	if err != nil {
		writeTomErr(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) handleInventoryExport(w http.ResponseWriter, r *http.Request) {
	filter, err := s.requestFilter(r)
	if err != nil {
		writeTomErr(w, err, false)
		return
	}
	devices, err := s.inventory.ListDevices(filter)
	if err != nil {
		writeTomErr(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleInventoryExportRaw(w http.ResponseWriter, r *http.Request) {
	filter, err := s.requestFilter(r)
	if err != nil {
		writeTomErr(w, err, false)
		return
	}
	records, err := s.inventory.ListRaw(filter)
	if err != nil {
		writeTomErr(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleInventoryFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.inventory.FilterableFields())
}

func (s *Server) handleInventoryFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.inventory.NamedFilters())
}

// requestFilter resolves the filter a /inventory/export(/raw) call should
// run with: a `filter=<name>` selector, if present, replaces every other
// inline query parameter outright (spec.md's "named-filter, if supplied,
// overrides inline filters"); whichever one wins is then ANDed with the
// deployment's config-level filter (SPEC_FULL.md §6 decision 3).
func (s *Server) requestFilter(r *http.Request) (inventory.Filter, error) {
	perRequest := inlineFilter(r)
	if name := r.URL.Query().Get("filter"); name != "" {
		named, ok := s.inventory.ResolveNamedFilter(name)
		if !ok {
			return nil, tomerr.New(tomerr.KindNotFound, "named filter not found: "+name)
		}
		perRequest = named
	}
	return inventory.CombineFilters(inventory.Filter(s.cfg.InventoryFilter), perRequest), nil
}

// inlineFilter builds a Filter from every query parameter on the request
// except the `filter` selector itself, one regex pattern per field name
// (spec §6's filter semantics: logical AND, case-insensitive).
func inlineFilter(r *http.Request) inventory.Filter {
	q := r.URL.Query()
	if len(q) == 0 {
		return nil
	}
	f := make(inventory.Filter, len(q))
	for k, v := range q {
		if k == "filter" || len(v) == 0 {
			continue
		}
		f[k] = v[0]
	}
	if len(f) == 0 {
		return nil
	}
	return f
}
