// Package nms implements inventory.Plugin over an NMS-like source of
// truth reached through MySQL — structurally identical to the netbox
// backend, differing only in driver and placeholder syntax.
package nms

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/tomnet/tom/internal/inventory"
	"github.com/tomnet/tom/internal/tomerr"
)

const deviceColumns = "name, host, port, adapter, adapter_driver, credential_id"

// Plugin is a read-only view over a MySQL-backed NMS device table.
type Plugin struct {
	db    *sql.DB
	table string
}

func Open(dsn, table string) (*Plugin, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("nms: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("nms: ping: %w", err)
	}
	if table == "" {
		table = "devices"
	}
	return &Plugin{db: db, table: table}, nil
}

func (p *Plugin) Close() error { return p.db.Close() }

func (p *Plugin) GetDevice(name string) (*inventory.DeviceDescriptor, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE name = ?", deviceColumns, p.table)
	row := p.db.QueryRow(query, name)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, tomerr.New(tomerr.KindNotFound, "device not found: "+name)
	}
	if err != nil {
		return nil, fmt.Errorf("nms: get device %s: %w", name, err)
	}
	return &d, nil
}

func (p *Plugin) ListDevices(filter inventory.Filter) ([]inventory.DeviceDescriptor, error) {
	all, err := p.fetchAll()
	if err != nil {
		return nil, err
	}
	var out []inventory.DeviceDescriptor
	for _, d := range all {
		if inventory.Matches(d, filter) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (p *Plugin) ListRaw(filter inventory.Filter) ([]map[string]any, error) {
	devices, err := p.ListDevices(filter)
	if err != nil {
		return nil, err
	}
	raw := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		raw = append(raw, map[string]any{
			"host":           d.Host,
			"port":           d.Port,
			"adapter":        d.Adapter,
			"adapter_driver": d.AdapterDriver,
			"credential_id":  d.CredentialRef,
		})
	}
	return raw, nil
}

func (p *Plugin) FilterableFields() []string {
	return inventory.FilterableFieldNames()
}

func (p *Plugin) NamedFilters() map[string]string {
	return map[string]string{}
}

func (p *Plugin) ResolveNamedFilter(name string) (inventory.Filter, bool) {
	return nil, false
}

func (p *Plugin) fetchAll() ([]inventory.DeviceDescriptor, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", deviceColumns, p.table)
	rows, err := p.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("nms: list devices: %w", err)
	}
	defer rows.Close()

	var out []inventory.DeviceDescriptor
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("nms: scan device row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (inventory.DeviceDescriptor, error) {
	var d inventory.DeviceDescriptor
	var name string
	err := row.Scan(&name, &d.Host, &d.Port, &d.Adapter, &d.AdapterDriver, &d.CredentialRef)
	return d, err
}
