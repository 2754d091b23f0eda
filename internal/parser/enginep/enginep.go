// Package enginep implements Engine P: hierarchical pattern templates.
// A template is a YAML list of nodes; each node carries a `match` regex
// with named capture groups and an optional `children` list of nested
// node patterns. Parsing walks the raw output top to bottom, and once a
// line matches a node, every following line is first offered to that
// node's children before the walk returns to the node's siblings — so
// the output mirrors nesting in the source text (a BGP neighbor block
// whose individual address-family lines nest under it, for example).
package enginep

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Node is one raw template node as read from YAML.
type Node struct {
	Match    string `yaml:"match"`
	Key      string `yaml:"key,omitempty"`
	Children []Node `yaml:"children,omitempty"`
}

type compiledNode struct {
	re       *regexp.Regexp
	key      string
	children []compiledNode
}

// Template is a compiled Engine P template: an ordered list of top-level
// node patterns tried against each raw line in turn.
type Template struct {
	roots []compiledNode
}

// Compile parses YAML template text into a Template.
func Compile(text string) (*Template, error) {
	var nodes []Node
	if err := yaml.Unmarshal([]byte(text), &nodes); err != nil {
		return nil, fmt.Errorf("enginep: parse template yaml: %w", err)
	}
	roots, err := compileNodes(nodes)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("enginep: template declares no nodes")
	}
	return &Template{roots: roots}, nil
}

func compileNodes(nodes []Node) ([]compiledNode, error) {
	out := make([]compiledNode, 0, len(nodes))
	for _, n := range nodes {
		re, err := regexp.Compile(n.Match)
		if err != nil {
			return nil, fmt.Errorf("enginep: node %q: %w", n.Match, err)
		}
		key := n.Key
		if key == "" {
			key = "children"
		}
		children, err := compileNodes(n.Children)
		if err != nil {
			return nil, err
		}
		out = append(out, compiledNode{re: re, key: key, children: children})
	}
	return out, nil
}

// Parse runs the template against raw command output, returning a nested
// sequence of records. Each record's named capture groups become its
// top-level keys; a node with matched children adds its children under
// that node's key (default "children").
func (t *Template) Parse(raw string) ([]map[string]any, error) {
	lines := strings.Split(raw, "\n")
	var records []map[string]any
	for pos := 0; pos < len(lines); {
		recs, next := parseLevel(lines, pos, t.roots)
		records = append(records, recs...)
		if next == pos {
			next++ // the line matches no top-level node: skip it
		}
		pos = next
	}
	return records, nil
}

func parseLevel(lines []string, pos int, nodes []compiledNode) ([]map[string]any, int) {
	var results []map[string]any
	for pos < len(lines) {
		line := lines[pos]
		node, match, matched := matchAny(line, nodes)
		if !matched {
			break
		}
		rec := map[string]any{}
		for i, name := range node.re.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			rec[name] = match[i]
		}
		pos++
		if len(node.children) > 0 {
			childRecords, newPos := parseLevel(lines, pos, node.children)
			pos = newPos
			if len(childRecords) > 0 {
				rec[node.key] = childRecords
			}
		}
		results = append(results, rec)
	}
	return results, pos
}

func matchAny(line string, nodes []compiledNode) (compiledNode, []string, bool) {
	for _, n := range nodes {
		if m := n.re.FindStringSubmatch(line); m != nil {
			return n, m, true
		}
	}
	return compiledNode{}, nil, false
}
