package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	flag "github.com/spf13/pflag"

	"sensor-ingest/entities"
	"sensor-ingest/metric"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true).
			PaddingLeft(2)

	normalStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Width(20)
)

type view int

const (
	viewStats view = iota
	viewDevices
	viewDevice
)

type statsResponse struct {
	Stats   metric.Snapshot               `json:"stats"`
	Devices map[entities.SensorKind]int64 `json:"devices"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type devicesResponse struct {
	Data []entities.Device `json:"data"`
}

type stateResponse struct {
	Data map[string]string `json:"data"`
}

type client struct {
	base string
	http *http.Client
}

func (c *client) get(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// /health answers 503 with a body when degraded.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type statsMsg struct {
	stats  statsResponse
	health healthResponse
}
type devicesMsg []entities.Device
type stateMsg map[string]string
type tickMsg struct{}
type errMsg struct{ err error }

func fetchStats(c *client) tea.Cmd {
	return func() tea.Msg {
		var msg statsMsg
		if err := c.get("/api/v1/stats", &msg.stats); err != nil {
			return errMsg{fmt.Errorf("stats: %w", err)}
		}
		if err := c.get("/health", &msg.health); err != nil {
			return errMsg{fmt.Errorf("health: %w", err)}
		}
		return msg
	}
}

func fetchDevices(c *client) tea.Cmd {
	return func() tea.Msg {
		var resp devicesResponse
		if err := c.get("/api/v1/devices", &resp); err != nil {
			return errMsg{fmt.Errorf("devices: %w", err)}
		}
		sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].DeviceName < resp.Data[j].DeviceName })
		return devicesMsg(resp.Data)
	}
}

func fetchState(c *client, name string) tea.Cmd {
	return func() tea.Msg {
		var resp stateResponse
		if err := c.get("/api/v1/devices/"+name+"/state", &resp); err != nil {
			return errMsg{fmt.Errorf("state of %s: %w", name, err)}
		}
		return stateMsg(resp.Data)
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return tickMsg{} })
}

type model struct {
	client   *client
	interval time.Duration
	view     view
	stats    *statsMsg
	devices  []entities.Device
	cursor   int
	state    map[string]string
	message  string
	quitting bool
}

func initialModel(c *client, interval time.Duration) model {
	return model{client: c, interval: interval}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchStats(m.client), tick(m.interval))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit

		case "tab":
			if m.view == viewStats {
				m.view = viewDevices
				return m, fetchDevices(m.client)
			}
			m.view = viewStats
			return m, fetchStats(m.client)

		case "esc":
			if m.view == viewDevice {
				m.view = viewDevices
			}

		case "up", "k":
			if m.view == viewDevices && m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.view == viewDevices && m.cursor < len(m.devices)-1 {
				m.cursor++
			}

		case "enter":
			if m.view == viewDevices && len(m.devices) > 0 {
				m.view = viewDevice
				m.state = nil
				return m, fetchState(m.client, m.devices[m.cursor].DeviceName)
			}
		}

	case tickMsg:
		if m.view == viewStats {
			return m, tea.Batch(fetchStats(m.client), tick(m.interval))
		}
		return m, tick(m.interval)

	case statsMsg:
		m.stats = &msg
		m.message = ""

	case devicesMsg:
		m.devices = []entities.Device(msg)
		if m.cursor >= len(m.devices) {
			m.cursor = 0
		}
		m.message = ""

	case stateMsg:
		m.state = map[string]string(msg)
		m.message = ""

	case errMsg:
		m.message = errorStyle.Render("✗ " + msg.err.Error())
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("Sensor Ingest Monitor") + "\n")

	switch m.view {
	case viewStats:
		s.WriteString(m.statsView())
	case viewDevices:
		s.WriteString(m.devicesView())
	case viewDevice:
		s.WriteString(m.deviceView())
	}

	if m.message != "" {
		s.WriteString("\n" + m.message + "\n")
	}
	return s.String()
}

func row(label string, value any) string {
	return labelStyle.Render(label) + fmt.Sprint(value) + "\n"
}

func (m model) statsView() string {
	if m.stats == nil {
		return "Loading stats...\n"
	}
	var s strings.Builder
	h := m.stats.health
	if h.Status == "OK" {
		s.WriteString(successStyle.Render("● healthy") + "\n\n")
	} else {
		s.WriteString(errorStyle.Render("● "+strings.ToLower(h.Status)) + "\n")
		for _, name := range sortedKeys(h.Checks) {
			if h.Checks[name] != "ok" {
				s.WriteString(normalStyle.Render(name+": "+h.Checks[name]) + "\n")
			}
		}
		s.WriteString("\n")
	}

	st := m.stats.stats.Stats
	s.WriteString(row("Uptime", st.Uptime))
	s.WriteString(row("Received", st.Received))
	s.WriteString(row("Acked", st.Acked))
	s.WriteString(row("Rejected", st.Rejected))
	s.WriteString(row("Requeued", st.Requeued))
	s.WriteString(row("Dropped", st.Dropped))
	s.WriteString(row("Validity", fmt.Sprintf("%.1f%%", st.Validation.ValidityRate*100)))
	s.WriteString(row("Durable writes", fmt.Sprintf("%d (%d failed)", st.DurableWrites, st.DurableFailures)))
	s.WriteString(row("Cache writes", fmt.Sprintf("%d (%d failed)", st.CacheWrites, st.CacheFailures)))
	s.WriteString(row("Alerts", st.AlertsCreated))
	s.WriteString(row("Connection errors", st.ConnectionErrors))

	if len(m.stats.stats.Devices) > 0 {
		s.WriteString("\n")
		for _, kind := range entities.AllKinds {
			s.WriteString(row("Devices "+string(kind), m.stats.stats.Devices[kind]))
		}
	}
	s.WriteString("\ntab devices · q quit\n")
	return s.String()
}

func (m model) devicesView() string {
	if m.devices == nil {
		return "Loading devices...\n"
	}
	if len(m.devices) == 0 {
		return "No devices registered yet\n\ntab stats · q quit\n"
	}
	var s strings.Builder
	for i, d := range m.devices {
		cursor := " "
		style := normalStyle
		if m.cursor == i {
			cursor = ">"
			style = selectedStyle
		}
		seen := "never"
		if !d.LastSeen.IsZero() {
			seen = d.LastSeen.Local().Format(time.DateTime)
		}
		s.WriteString(fmt.Sprintf("%s %s (%s, %s)\n", cursor, style.Render(d.DeviceName), d.SensorKind, seen))
	}
	s.WriteString("\n↑/↓ select · enter state · tab stats · q quit\n")
	return s.String()
}

func (m model) deviceView() string {
	name := m.devices[m.cursor].DeviceName
	if m.state == nil {
		return "Loading " + name + "...\n"
	}
	var s strings.Builder
	s.WriteString(successStyle.Render(name) + "\n\n")
	for _, k := range sortedKeys(m.state) {
		s.WriteString(row(k, m.state[k]))
	}
	s.WriteString("\nesc back · q quit\n")
	return s.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func main() {
	addr := flag.StringP("addr", "a", "http://localhost:3536", "ops server base URL")
	interval := flag.DurationP("interval", "i", 2*time.Second, "stats refresh interval")
	flag.Parse()

	c := &client{
		base: strings.TrimRight(*addr, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
	p := tea.NewProgram(initialModel(c, *interval))
	if _, err := p.Run(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
