package httpapi

import "net/http"

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/device/{name}/send_command", s.handleSendCommand)
	mux.HandleFunc("POST /api/device/{name}/send_commands", s.handleSendCommands)
	mux.HandleFunc("POST /api/raw/send_via_adapter_A", s.handleRawAdapterA)
	mux.HandleFunc("POST /api/raw/send_via_adapter_B", s.handleRawAdapterB)
	mux.HandleFunc("GET /api/job/{id}", s.handleGetJob)

	mux.HandleFunc("GET /api/inventory/{name}", s.handleInventoryGet)
	mux.HandleFunc("GET /api/inventory/export", s.handleInventoryExport)
	mux.HandleFunc("GET /api/inventory/export/raw", s.handleInventoryExportRaw)
	mux.HandleFunc("GET /api/inventory/fields", s.handleInventoryFields)
	mux.HandleFunc("GET /api/inventory/filters", s.handleInventoryFilters)

	mux.HandleFunc("GET /api/templates/{engine}", s.handleListTemplates)
	mux.HandleFunc("GET /api/templates/match", s.handleTemplateMatch)
	mux.HandleFunc("POST /api/parse/test", s.handleParseTest)

	mux.HandleFunc("GET /api/credentials", s.handleListCredentials)

	mux.HandleFunc("GET /api/cache", s.handleCacheInspectAll)
	mux.HandleFunc("DELETE /api/cache", s.handleCacheInvalidateAll)
	mux.HandleFunc("GET /api/cache/{device}", s.handleCacheInspectDevice)
	mux.HandleFunc("DELETE /api/cache/{device}", s.handleCacheInvalidateDevice)

	mux.HandleFunc("GET /api/monitoring/workers", s.handleMonitoringWorkers)
	mux.HandleFunc("GET /api/monitoring/failed-commands", s.handleMonitoringFailedCommands)
}
