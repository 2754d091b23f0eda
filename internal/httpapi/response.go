package httpapi

import (
	"strings"

	"go.uber.org/zap"

	"github.com/tomnet/tom/internal/parser"
	"github.com/tomnet/tom/internal/queue"
	"github.com/tomnet/tom/internal/tomerr"
)

// jobResponse is the default JSON envelope shape (spec §4.5).
type jobResponse struct {
	JobID  string      `json:"job_id"`
	Status queue.Status `json:"status"`
	Result *queue.Result `json:"result,omitempty"`
	Error  *queue.JobError `json:"error,omitempty"`
	Parsed map[string]any `json:"parsed,omitempty"`
}

// engineFromParserName maps the request-level "parser" option onto one of
// the two template engines. "textfsm" is the corpus's conventional name
// for a flat regex-per-field engine (Engine T); anything else recognized
// as a hierarchical-pattern engine name resolves to Engine P.
func engineFromParserName(name string) parser.Engine {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ttp", "p", "enginep":
		return parser.EngineP
	default:
		return parser.EngineT
	}
}

// parseOptions is the fully-resolved set of parse controls for one job
// retrieval, after merging request-level settings with any per-command
// override (spec §9 open question: field-by-field fallback).
type parseOptions struct {
	Requested      bool
	ParserName     string
	Template       string
	InlineTemplate string
	IncludeRaw     bool
	Specs          []queue.CommandSpec
}

func (o parseOptions) forCommand(cmd string) (parserName, template string) {
	for _, spec := range o.Specs {
		if spec.Command != cmd {
			continue
		}
		parserName = o.ParserName
		template = o.Template
		if spec.Parser != "" {
			parserName = spec.Parser
		}
		if spec.Template != "" {
			template = spec.Template
		}
		return parserName, template
	}
	return o.ParserName, o.Template
}

// buildJobResponse shapes a job snapshot for JSON responses, running the
// parser dispatcher per command when parsing was requested and the job has
// reached COMPLETE. Per spec §4.4, parsing a not-yet-complete job is a
// no-op logged at warning level — never an error.
func buildJobResponse(job *queue.Job, opts parseOptions, customIdx, builtinIdx *parser.Index, logger *zap.Logger) jobResponse {
	resp := jobResponse{JobID: job.ID, Status: job.Status, Result: job.Result, Error: job.Error}
	if !opts.Requested {
		return resp
	}
	if job.Status != queue.StatusComplete || job.Result == nil {
		if logger != nil {
			logger.Warn("parse requested on non-complete job", zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
		}
		return resp
	}

	parsed := make(map[string]any, len(job.Result.Data))
	for _, cmd := range job.Metadata.Commands {
		raw, ok := job.Result.Data[cmd]
		if !ok {
			continue
		}
		parserName, template := opts.forCommand(cmd)
		req := parser.Request{
			Engine:           engineFromParserName(parserName),
			Hostname:         job.Payload.Host,
			Platform:         job.Metadata.DevicePlatform,
			Command:          cmd,
			ExplicitTemplate: resolveExplicitTemplateText(template, customIdx, builtinIdx),
			InlineTemplate:   opts.InlineTemplate,
			CustomIndex:      customIdx,
			BuiltinIndex:     builtinIdx,
		}
		out, err := parser.Dispatch(req, raw, opts.IncludeRaw)
		if err != nil {
			if logger != nil {
				logger.Warn("parse failed for job command", zap.String("job_id", job.ID), zap.String("command", cmd), zap.Error(err))
			}
			continue
		}
		parsed[cmd] = out
	}
	resp.Parsed = parsed
	return resp
}

// resolveExplicitTemplateText reads a named template file directly,
// checking the custom index's directory before the built-in one. A
// request naming a specific template file wins over auto-dispatch by
// (platform, command) — this is what makes it EXPLICIT rather than CUSTOM
// or BUILTIN. A name that resolves nowhere falls back to ordinary
// precedence (Dispatch still has CustomIndex/BuiltinIndex to try).
func resolveExplicitTemplateText(filename string, customIdx, builtinIdx *parser.Index) string {
	if filename == "" {
		return ""
	}
	if text, err := customIdx.ReadFile(filename); err == nil {
		return text
	}
	if text, err := builtinIdx.ReadFile(filename); err == nil {
		return text
	}
	return ""
}

// resolveTemplateFile is resolveExplicitTemplateText's strict counterpart
// for /api/parse/test: a request naming an explicit template filename
// that resolves nowhere is a TEMPLATE_NOT_FOUND error, not a silent
// fall-through to CUSTOM/BUILTIN auto-dispatch — unlike a job's per-command
// override, there is no (platform, command) to fall back to here.
func resolveTemplateFile(filename string, customIdx, builtinIdx *parser.Index) (string, error) {
	if text, err := customIdx.ReadFile(filename); err == nil {
		return text, nil
	}
	if text, err := builtinIdx.ReadFile(filename); err == nil {
		return text, nil
	}
	return "", tomerr.New(tomerr.KindTemplateNotFound, "template not found: "+filename)
}

const rawDelimiterFormat = "### %s ###\n"
