package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/pandeptwidyaop/hookrelay/internal/client/api"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00C853"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB300"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5252"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C4DFF"))

	methodStyles = map[string]lipgloss.Style{
		"GET":    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#40C4FF")),
		"POST":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00C853")),
		"PUT":    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFB300")),
		"PATCH":  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFB300")),
		"DELETE": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5252")),
	}
)

func methodBadge(method string) string {
	style, ok := methodStyles[method]
	if !ok {
		style = labelStyle
	}
	return style.Render(fmt.Sprintf("%-6s", method))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printCompactJSON(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// hooksTable renders hooks as a bordered table.
func hooksTable(hooks []api.Hook) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("ID", "NAME", "DELIVERY", "EVENTS", "LAST TRIGGERED", "URL").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, h := range hooks {
		t.Row(
			h.ID,
			deref(h.Name),
			h.DeliveryMethod,
			fmt.Sprintf("%d", h.EventCount),
			formatTime(h.LastTriggeredAt),
			h.WebhookURL,
		)
	}
	return t.Render()
}

// hookDetail renders a single hook as labelled lines.
func hookDetail(h *api.Hook) string {
	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-16s", label+":")), value)
	}

	line("ID", h.ID)
	line("Webhook URL", h.WebhookURL)
	if h.Name != nil {
		line("Name", *h.Name)
	}
	if h.Description != nil {
		line("Description", *h.Description)
	}
	line("Delivery", h.DeliveryMethod)
	if len(h.DeliveryConfig) > 0 && string(h.DeliveryConfig) != "null" {
		line("Delivery config", string(h.DeliveryConfig))
	}
	line("Created", formatTime(&h.CreatedAt))
	line("Last triggered", formatTime(h.LastTriggeredAt))
	line("Events", fmt.Sprintf("%d", h.EventCount))
	return b.String()
}

// eventSummary is the one-line form used by watch.
func eventSummary(e api.Event) string {
	source := deref(e.SourceIP)
	if source == "" {
		source = "-"
	}
	return fmt.Sprintf("%s %s %s %s %s",
		dimStyle.Render(e.ReceivedAt.Local().Format("15:04:05")),
		methodBadge(e.Method),
		e.ID,
		dimStyle.Render(source),
		truncate(compactBody(e.Body), 80),
	)
}

// eventDetail renders headers, query and body of one event.
func eventDetail(e api.Event) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s  %s\n", methodBadge(e.Method), labelStyle.Render(e.ID), dimStyle.Render(e.ReceivedAt.Local().Format(time.RFC3339)))
	if e.SourceIP != nil {
		fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render("from"), *e.SourceIP)
	}

	writeMap := func(title string, m map[string]string) {
		if len(m) == 0 {
			return
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintf(&b, "  %s\n", labelStyle.Render(title))
		for _, k := range keys {
			fmt.Fprintf(&b, "    %s: %s\n", dimStyle.Render(k), m[k])
		}
	}
	writeMap("Query", e.QueryParams)
	writeMap("Headers", e.Headers)

	if body := prettyBody(e.Body); body != "" {
		fmt.Fprintf(&b, "  %s\n", labelStyle.Render("Body"))
		for _, l := range strings.Split(body, "\n") {
			fmt.Fprintf(&b, "    %s\n", l)
		}
	}
	return b.String()
}

// prettyBody indents JSON bodies and unquotes string bodies.
func prettyBody(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

func compactBody(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.Join(strings.Fields(s), " ")
	}

	var out bytes.Buffer
	if err := json.Compact(&out, raw); err != nil {
		return string(raw)
	}
	return out.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
