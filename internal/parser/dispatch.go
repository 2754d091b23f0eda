package parser

import (
	"fmt"
	"os"

	"github.com/tomnet/tom/internal/parser/enginep"
	"github.com/tomnet/tom/internal/parser/enginet"
	"github.com/tomnet/tom/internal/tomerr"
)

// Request describes one parse attempt: which engine, which device/command
// the output came from, and every template source that might apply —
// in EXPLICIT > INLINE > CUSTOM > BUILTIN precedence order.
type Request struct {
	Engine   Engine
	Hostname string
	Platform string
	Command  string

	// ExplicitTemplate is the text of a template file the request named
	// explicitly (e.g. `template=...` on /parse/test), already read by the
	// caller. Always wins.
	ExplicitTemplate string

	// InlineTemplate is an ad hoc Engine P pattern supplied inline on the
	// request. Only meaningful for EngineP; Engine T has no inline form.
	InlineTemplate string

	// CustomIndex is the deployment-supplied template directory's index,
	// checked ahead of the built-in library.
	CustomIndex *Index

	// BuiltinIndex is the index shipped with the binary. Only consulted
	// for EngineT — Engine P ships no built-in template library.
	BuiltinIndex *Index
}

// Response is the parse envelope returned to callers, matching §4.4's
// `{parsed, raw?, _metadata}` shape.
type Response struct {
	Parsed   any            `json:"parsed"`
	Raw      string         `json:"raw,omitempty"`
	Metadata ResponseMeta   `json:"_metadata"`
}

// ResponseMeta records how the template that produced Parsed was found.
type ResponseMeta struct {
	TemplateSource Source `json:"template_source"`
	TemplateName   string `json:"template_name"`
}

// Dispatch resolves a template per the EXPLICIT > INLINE > CUSTOM >
// BUILTIN precedence and parses rawOutput with it. It returns a
// TEMPLATE_NOT_FOUND tomerr.Error when no template source applies.
func Dispatch(req Request, rawOutput string, includeRaw bool) (*Response, error) {
	text, meta, err := resolveTemplate(req)
	if err != nil {
		return nil, err
	}

	parsed, err := parseWithEngine(req.Engine, text, rawOutput)
	if err != nil {
		return nil, tomerr.Wrap(tomerr.KindParseError, err, "template parse failed")
	}

	resp := &Response{Parsed: parsed, Metadata: meta}
	if includeRaw {
		resp.Raw = rawOutput
	}
	return resp, nil
}

// FindTemplate reports which template would be selected for req, backing
// GET /templates/match. It reads the selected template's text but parses
// no output.
func FindTemplate(req Request) (ResponseMeta, error) {
	_, meta, err := resolveTemplate(req)
	return meta, err
}

func resolveTemplate(req Request) (string, ResponseMeta, error) {
	if req.ExplicitTemplate != "" {
		return req.ExplicitTemplate, ResponseMeta{TemplateSource: SourceExplicit, TemplateName: "<explicit>"}, nil
	}

	if req.Engine == EngineP && req.InlineTemplate != "" {
		return req.InlineTemplate, ResponseMeta{TemplateSource: SourceInline, TemplateName: "<inline>"}, nil
	}

	if req.CustomIndex != nil {
		if entry, ok := req.CustomIndex.Match(req.Hostname, req.Platform, req.Command); ok {
			text, err := readTemplateFile(req.CustomIndex.Path(entry.Filename))
			if err != nil {
				return "", ResponseMeta{}, err
			}
			return text, ResponseMeta{TemplateSource: SourceCustom, TemplateName: entry.Filename}, nil
		}
	}

	if req.Engine == EngineT && req.BuiltinIndex != nil {
		if entry, ok := req.BuiltinIndex.Match(req.Hostname, req.Platform, req.Command); ok {
			text, err := readTemplateFile(req.BuiltinIndex.Path(entry.Filename))
			if err != nil {
				return "", ResponseMeta{}, err
			}
			return text, ResponseMeta{TemplateSource: SourceBuiltin, TemplateName: entry.Filename}, nil
		}
	}

	return "", ResponseMeta{}, tomerr.New(tomerr.KindTemplateNotFound,
		fmt.Sprintf("no template resolved for platform=%q command=%q engine=%s", req.Platform, req.Command, req.Engine))
}

func readTemplateFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", tomerr.Wrap(tomerr.KindTemplateNotFound, err, "read template file")
	}
	return string(b), nil
}

func parseWithEngine(engine Engine, templateText, raw string) (any, error) {
	switch engine {
	case EngineT:
		tmpl, err := enginet.Compile(templateText)
		if err != nil {
			return nil, err
		}
		return tmpl.Parse(raw)
	case EngineP:
		tmpl, err := enginep.Compile(templateText)
		if err != nil {
			return nil, err
		}
		return tmpl.Parse(raw)
	default:
		return nil, fmt.Errorf("unknown engine %q", engine)
	}
}
