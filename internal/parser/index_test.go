package parser

import (
	"strings"
	"testing"
)

const sampleIndexCSV = `Template,Hostname,Platform,Command
show_version.template,.*,ios,show version
show_interfaces.template,.*,ios,show interfaces.*
show_version_nxos.template,.*,nxos,show version
`

func TestMatchFirstRowWinsInFileOrder(t *testing.T) {
	idx, err := parseIndex(strings.NewReader(sampleIndexCSV), "/templates", SourceCustom)
	if err != nil {
		t.Fatalf("parseIndex: %v", err)
	}
	entry, ok := idx.Match("rtr1", "ios", "show version")
	if !ok {
		t.Fatalf("expected a match")
	}
	if entry.Filename != "show_version.template" {
		t.Fatalf("unexpected filename: %s", entry.Filename)
	}
}

func TestMatchIsCaseInsensitive(t *testing.T) {
	idx, err := parseIndex(strings.NewReader(sampleIndexCSV), "/templates", SourceCustom)
	if err != nil {
		t.Fatalf("parseIndex: %v", err)
	}
	if _, ok := idx.Match("rtr1", "IOS", "SHOW VERSION"); !ok {
		t.Fatalf("expected case-insensitive match")
	}
}

func TestMatchReturnsFalseWhenNothingMatches(t *testing.T) {
	idx, err := parseIndex(strings.NewReader(sampleIndexCSV), "/templates", SourceCustom)
	if err != nil {
		t.Fatalf("parseIndex: %v", err)
	}
	if _, ok := idx.Match("rtr1", "junos", "show version"); ok {
		t.Fatalf("expected no match for unknown platform")
	}
}
