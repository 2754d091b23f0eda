// Package parser implements the Parser Dispatch subsystem: template
// lookup across two distinct template engines and structured extraction
// of raw command output, selected by the EXPLICIT > INLINE > CUSTOM >
// BUILTIN precedence from spec §4.4.
//
// No templated-text-parsing library (TextFSM/TTP or an equivalent) exists
// anywhere in the retrieved corpus, so both engines are hand-rolled on
// stdlib regexp/encoding/csv — see DESIGN.md for the justification this
// is the one component built without an ecosystem library underneath it.
package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Source records where a template was resolved from.
type Source string

const (
	SourceExplicit Source = "EXPLICIT"
	SourceInline   Source = "INLINE"
	SourceCustom   Source = "CUSTOM"
	SourceBuiltin  Source = "BUILTIN"
)

// Engine identifies which template language a TemplateEntry belongs to.
type Engine string

const (
	EngineT Engine = "T"
	EngineP Engine = "P"
)

// TemplateEntry is one row of a template index.
type TemplateEntry struct {
	Filename      string
	HostnameRegex string
	PlatformKey   string
	CommandRegex  string
	Source        Source
}

// Index holds the parsed rows of one CSV index file, in file order —
// matching spec's "first match wins in file order" rule. The index file
// format is `Template, Hostname, Platform, Command` with a header row;
// all four fields may be regular expressions; Hostname defaults to `.*`.
type Index struct {
	entries []TemplateEntry
	dir     string
	source  Source
}

// LoadIndex reads a CSV index file. dir is the directory the Filename
// column is resolved relative to.
func LoadIndex(csvPath, dir string, source Source) (*Index, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open template index %s: %w", csvPath, err)
	}
	defer f.Close()
	return parseIndex(f, dir, source)
}

func parseIndex(r io.Reader, dir string, source Source) (*Index, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return &Index{dir: dir, source: source}, nil
		}
		return nil, fmt.Errorf("read index header: %w", err)
	}
	if len(header) < 4 {
		return nil, fmt.Errorf("template index header must have 4 columns, got %d", len(header))
	}

	var entries []TemplateEntry
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read index row: %w", err)
		}
		if len(row) < 4 {
			continue
		}
		hostname := strings.TrimSpace(row[1])
		if hostname == "" {
			hostname = ".*"
		}
		entries = append(entries, TemplateEntry{
			Filename:      strings.TrimSpace(row[0]),
			HostnameRegex: hostname,
			PlatformKey:   strings.TrimSpace(row[2]),
			CommandRegex:  strings.TrimSpace(row[3]),
			Source:        source,
		})
	}
	return &Index{entries: entries, dir: dir, source: source}, nil
}

// Match returns the first index entry whose (hostname_regex, platform_key,
// command_regex) matches (hostname, platform, command), case-insensitively,
// in file order.
func (idx *Index) Match(hostname, platform, command string) (*TemplateEntry, bool) {
	if idx == nil {
		return nil, false
	}
	for i := range idx.entries {
		entry := idx.entries[i]
		if !matchesCI(entry.HostnameRegex, hostname) {
			continue
		}
		if !matchesCI(entry.PlatformKey, platform) {
			continue
		}
		if !matchesCI(entry.CommandRegex, command) {
			continue
		}
		return &entry, true
	}
	return nil, false
}

// Entries returns the index rows in file order, for GET /templates/<engine>.
func (idx *Index) Entries() []TemplateEntry {
	if idx == nil {
		return nil
	}
	return idx.entries
}

// ReadFile reads a template by filename directly, bypassing regex matching
// entirely — used when a caller names a template explicitly rather than
// relying on (platform, command) dispatch.
func (idx *Index) ReadFile(filename string) (string, error) {
	if idx == nil {
		return "", fmt.Errorf("no template index configured")
	}
	return readTemplateFile(idx.Path(filename))
}

// Path resolves a template's on-disk path within this index's directory.
func (idx *Index) Path(filename string) string {
	if idx == nil {
		return filename
	}
	return idx.dir + string(os.PathSeparator) + filename
}

func matchesCI(pattern, value string) bool {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false
	}
	return re.MatchString(value)
}
