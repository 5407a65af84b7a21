// internal/ui/rows.go

package ui

import (
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"agentManager/internal/health"
	"agentManager/internal/models"
	"agentManager/internal/ssh"
)

type PoolSource interface {
	Status() []ssh.ConnStatus
}

type HealthSource interface {
	Statuses() []health.Status
}

type AgentSource interface {
	Agents() []models.AgentRecord
}

// Sources feeds the dashboard. Any of them may be nil.
type Sources struct {
	Pool   PoolSource
	Health HealthSource
	Agents AgentSource
}

func (s Sources) poolStatus() []ssh.ConnStatus {
	if s.Pool == nil {
		return nil
	}
	return s.Pool.Status()
}

func (s Sources) healthStatuses() []health.Status {
	if s.Health == nil {
		return nil
	}
	return s.Health.Statuses()
}

func (s Sources) agentRecords() []models.AgentRecord {
	if s.Agents == nil {
		return nil
	}
	return s.Agents.Agents()
}

// ConnRow merges the pool and health views of one connection.
type ConnRow struct {
	ID         string
	Address    string
	State      health.State
	Attempts   int
	Reconnects int
	Channels   int
	Since      time.Time
	Pooled     bool
}

var connHeaders = []string{"CONNECTION", "ADDRESS", "STATE", "ATTEMPTS", "RECONNECTS", "CHANNELS", "UP"}

const connStateCol = 2

// connectionRows joins pool and health snapshots by connection id. A
// connection the monitor is reconnecting may be absent from the pool.
func connectionRows(pool []ssh.ConnStatus, statuses []health.Status) []ConnRow {
	byID := make(map[string]*ConnRow)
	for _, p := range pool {
		byID[p.ID] = &ConnRow{
			ID:       p.ID,
			Address:  p.Address,
			Channels: p.Channels,
			Since:    p.ConnectedAt,
			Pooled:   true,
		}
	}
	for _, s := range statuses {
		r, ok := byID[s.ConnectionID]
		if !ok {
			r = &ConnRow{ID: s.ConnectionID}
			byID[s.ConnectionID] = r
		}
		r.State = s.State
		r.Attempts = s.Attempts
		r.Reconnects = s.Metrics.TotalReconnects
		if r.Address == "" && s.Config.Host != "" {
			r.Address = s.Config.Address()
		}
	}

	out := make([]ConnRow, 0, len(byID))
	for _, r := range byID {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r ConnRow) stateLabel() string {
	switch {
	case r.State != "":
		return string(r.State)
	case r.ID == ssh.LocalConnectionID:
		return "local"
	default:
		return "unmonitored"
	}
}

func (r ConnRow) cells(now time.Time) []string {
	up := "-"
	if r.Pooled && !r.Since.IsZero() {
		up = formatAge(now.Sub(r.Since))
	}
	addr := r.Address
	if addr == "" {
		addr = "-"
	}
	return []string{
		r.ID,
		addr,
		r.stateLabel(),
		strconv.Itoa(r.Attempts),
		strconv.Itoa(r.Reconnects),
		strconv.Itoa(r.Channels),
		up,
	}
}

func agentColumns(agents []models.AgentRecord) []table.Column {
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, a.ChannelID)
	}
	channelWidth := max(GetMaxWidth(ids), 20)
	return []table.Column{
		{Title: "CHANNEL", Width: channelWidth},
		{Title: "PROVIDER", Width: 10},
		{Title: "CONNECTION", Width: 12},
		{Title: "STATUS", Width: 8},
		{Title: "AGE", Width: 8},
	}
}

func agentCells(a models.AgentRecord, now time.Time) table.Row {
	status := "stopped"
	end := a.StoppedAt
	if a.Running {
		status = "running"
		end = now
	}
	age := "-"
	if !a.StartedAt.IsZero() && !end.IsZero() {
		age = formatAge(end.Sub(a.StartedAt))
	}
	return table.Row{a.ChannelID, a.ProviderID, a.ConnectionID, status, age}
}

// formatAge renders a duration at second precision, dropping zero units.
func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	switch {
	case d < time.Minute:
		return strconv.Itoa(int(d.Seconds())) + "s"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m" + strconv.Itoa(int(d.Seconds())%60) + "s"
	default:
		return strconv.Itoa(int(d.Hours())) + "h" + strconv.Itoa(int(d.Minutes())%60) + "m"
	}
}
