package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/tomnet/tom/internal/parser"
	"github.com/tomnet/tom/internal/tomerr"
)

type templateListEntry struct {
	Filename string        `json:"filename"`
	Hostname string        `json:"hostname_regex"`
	Platform string        `json:"platform_key"`
	Command  string        `json:"command_regex"`
	Source   parser.Source `json:"source"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	engine := engineFromParserName(r.PathValue("engine"))

	var out []templateListEntry
	if s.customIndex != nil {
		for _, e := range s.customIndex.Entries() {
			out = append(out, templateListEntry{Filename: e.Filename, Hostname: e.HostnameRegex, Platform: e.PlatformKey, Command: e.CommandRegex, Source: e.Source})
		}
	}
	if engine == parser.EngineT && s.builtinIndex != nil {
		for _, e := range s.builtinIndex.Entries() {
			out = append(out, templateListEntry{Filename: e.Filename, Hostname: e.HostnameRegex, Platform: e.PlatformKey, Command: e.CommandRegex, Source: e.Source})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTemplateMatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := parser.Request{
		Engine:       engineFromParserName(q.Get("parser")),
		Hostname:     q.Get("hostname"),
		Platform:     q.Get("platform"),
		Command:      q.Get("command"),
		CustomIndex:  s.customIndex,
		BuiltinIndex: s.builtinIndex,
	}
	meta, err := parser.FindTemplate(req)
	if err != nil {
		writeTomErr(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

type parseTestRequest struct {
	Parser         string `json:"parser"`
	Hostname       string `json:"hostname"`
	Platform       string `json:"platform"`
	Command        string `json:"command"`
	RawOutput      string `json:"raw_output"`
	Template       string `json:"template"`
	InlineTemplate string `json:"inline_template"`
	IncludeRaw     bool   `json:"include_raw"`
}

func (s *Server) handleParseTest(w http.ResponseWriter, r *http.Request) {
	var body parseTestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeTomErr(w, tomerr.New(tomerr.KindValidation, "invalid JSON body"), false)
		return
	}

	explicitText := ""
	if body.Template != "" {
		text, err := resolveTemplateFile(body.Template, s.customIndex, s.builtinIndex)
		if err != nil {
			writeTomErr(w, err, false)
			return
		}
		explicitText = text
	}

	req := parser.Request{
		Engine:           engineFromParserName(body.Parser),
		Hostname:         body.Hostname,
		Platform:         body.Platform,
		Command:          body.Command,
		ExplicitTemplate: explicitText,
		InlineTemplate:   body.InlineTemplate,
		CustomIndex:      s.customIndex,
		BuiltinIndex:     s.builtinIndex,
	}
	resp, err := parser.Dispatch(req, body.RawOutput, body.IncludeRaw)
	if err != nil {
		writeTomErr(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
