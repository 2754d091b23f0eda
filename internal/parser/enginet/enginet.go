// Package enginet implements Engine T: regex-per-field templates that
// emit a flat sequence of records, each a map from field name to the
// captured string. A record is flushed whenever the line that matches a
// field is the template's first declared field and that field is already
// set on the current record — mirroring the "a new instance of the
// leading column starts a new row" convention of flat network-show-output
// tables (interface listings, route tables, neighbor tables).
package enginet

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

// FieldRule is one `Value NAME <pattern>` template line, compiled.
type FieldRule struct {
	Name string
	re   *regexp.Regexp
}

// Template is a compiled Engine T template: an ordered list of field
// rules. Order matters — the first rule is the record boundary field.
type Template struct {
	Fields []FieldRule
}

// Compile parses template text of the form:
//
//	Value INTERFACE (\S+)
//	Value STATUS (up|down|administratively down)
//	Value PROTOCOL (up|down)
//
// Blank lines and lines starting with # are ignored.
func Compile(text string) (*Template, error) {
	var fields []FieldRule
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 || parts[0] != "Value" {
			return nil, fmt.Errorf("enginet: malformed line %q, want \"Value NAME <pattern>\"", line)
		}
		name := parts[1]
		pattern := strings.TrimSpace(strings.TrimPrefix(line, "Value "+name))
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("enginet: field %s: %w", name, err)
		}
		fields = append(fields, FieldRule{Name: name, re: re})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("enginet: scan template: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("enginet: template declares no Value fields")
	}
	return &Template{Fields: fields}, nil
}

// Parse runs the template against raw command output, returning a flat
// sequence of records in the order they were completed.
func (t *Template) Parse(raw string) ([]map[string]string, error) {
	var records []map[string]string
	current := map[string]string{}

	flush := func() {
		if len(current) == 0 {
			return
		}
		records = append(records, current)
		current = map[string]string{}
	}

	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		for i, field := range t.Fields {
			m := field.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			value := m[0]
			if len(m) > 1 {
				value = m[1]
			}
			if i == 0 {
				if _, exists := current[field.Name]; exists {
					flush()
				}
			}
			current[field.Name] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("enginet: scan output: %w", err)
	}
	flush()
	return records, nil
}
