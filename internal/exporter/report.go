package exporter

import (
	v1 "github.com/ernyzasxash/clientt/pkg/contracts/api/v1"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// Sheet names, in workbook order
const (
	SheetConnections  = "Connections"
	SheetFailedLogins = "Failed Logins"
	SheetBans         = "Bans"
	SheetAttempts     = "Attempts"
)

// Report is a snapshot of the license server's admin views
type Report struct {
	Connections  []v1.ConnectionView
	FailedLogins []domain.FailedLogin
	Bans         []domain.Ban
	Attempts     []domain.Attempt
	// FullKeys disables key masking
	FullKeys bool
}

// Table is one sheet of an export
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// Tables flattens r into one table per view. Attempts are included only
// when present.
func (r Report) Tables() []Table {
	tables := []Table{
		r.connectionsTable(),
		r.failedLoginsTable(),
		r.bansTable(),
	}
	if len(r.Attempts) > 0 {
		tables = append(tables, r.attemptsTable())
	}
	return tables
}

func (r Report) connectionsTable() Table {
	t := Table{
		Name:    SheetConnections,
		Headers: []string{"Key", "Active", "Last Seen", "IP", "ASN", "Org", "Device", "Model", "Manufacturer", "OS Version"},
	}
	for _, c := range r.Connections {
		t.Rows = append(t.Rows, []string{
			formatKey(c.Key, r.FullKeys),
			formatBool(c.Active),
			formatTime(c.LastSeen),
			c.IP,
			c.ASN,
			c.Org,
			c.DeviceName,
			c.DeviceInfo.Model,
			c.DeviceInfo.Manufacturer,
			c.DeviceInfo.Version,
		})
	}
	return t
}

func (r Report) failedLoginsTable() Table {
	t := Table{
		Name:    SheetFailedLogins,
		Headers: []string{"Time", "Key", "IP", "ASN", "Device", "Reason"},
	}
	for _, f := range r.FailedLogins {
		t.Rows = append(t.Rows, []string{
			formatTime(f.Time),
			formatKey(f.Key, r.FullKeys),
			f.IP,
			f.ASN,
			f.DeviceName,
			f.Reason,
		})
	}
	return t
}

func (r Report) bansTable() Table {
	t := Table{
		Name:    SheetBans,
		Headers: []string{"Type", "Value", "Reason", "Created"},
	}
	for _, b := range r.Bans {
		value := b.Value
		if b.Type == domain.BanKey {
			value = formatKey(value, r.FullKeys)
		}
		t.Rows = append(t.Rows, []string{string(b.Type), value, b.Reason, formatTime(b.CreatedAt)})
	}
	return t
}

func (r Report) attemptsTable() Table {
	t := Table{
		Name:    SheetAttempts,
		Headers: []string{"#", "Time", "Key", "IP", "ASN", "Org", "Device", "Code Hash", "Result"},
	}
	for i, a := range r.Attempts {
		t.Rows = append(t.Rows, []string{
			formatInt(i + 1),
			formatTime(a.Time),
			formatKey(a.Key, r.FullKeys),
			a.IP,
			a.ASN,
			a.Org,
			a.DeviceName,
			a.CodeHash,
			a.Result,
		})
	}
	return t
}
