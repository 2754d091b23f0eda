// Package file implements credential.Plugin over a flat YAML file. This
// is the simplest credential backend — fine for lab/demo deployments,
// not for anything where the file itself is a liability; vault-backed
// and cloud-secret-store backends are the production path but are out
// of core scope (only the interface they satisfy is specified).
package file

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tomnet/tom/internal/credential"
	"github.com/tomnet/tom/internal/tomerr"
)

type fileFormat struct {
	Credentials map[string]entry `yaml:"credentials"`
}

type entry struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Plugin is an immutable, load-once-at-startup credential set.
type Plugin struct {
	credentials map[string]entry
}

// Load reads and parses the YAML credential file. The file's permissions
// are not enforced here — operators are responsible for restricting
// access to the file itself.
func Load(path string) (*Plugin, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credential/file: read %s: %w", path, err)
	}
	var parsed fileFormat
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("credential/file: parse %s: %w", path, err)
	}
	return &Plugin{credentials: parsed.Credentials}, nil
}

func (p *Plugin) Get(credentialID string) (*credential.Pair, error) {
	e, ok := p.credentials[credentialID]
	if !ok {
		return nil, tomerr.New(tomerr.KindNotFound, "credential not found: "+credentialID)
	}
	return &credential.Pair{Username: e.Username, Password: e.Password}, nil
}

// ListIDs never touches a secret value — only the credential_id names
// are returned, per spec's "names only" contract for /api/credentials.
func (p *Plugin) ListIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(p.credentials))
	for id := range p.credentials {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
