package chainconsole

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"foodtrace/internal/domain/trace"
	"foodtrace/internal/ports"
	"foodtrace/internal/usecase/traceability"
)

const maxShownEvents = 6
const maxAuditLines = 8

// Service is the slice of the traceability service the console drives.
type Service interface {
	ListChains(ctx context.Context, filter ports.ChainFilter) ([]trace.Chain, error)
	GetSummary(ctx context.Context, productID uint64) (traceability.Summary, error)
	Verify(ctx context.Context, productID uint64) (traceability.VerifyResult, error)
	LastVerification(ctx context.Context, productID uint64) (traceability.VerifyResult, bool)
	IngestRecentTelemetry(ctx context.Context, productID uint64) (traceability.IngestResult, error)
}

type Options struct {
	// ProductID preselects a chain; zero starts at the first listed chain.
	ProductID       uint64
	OnlyComplete    bool
	RefreshInterval time.Duration
}

type chainModel struct {
	ctx             context.Context
	service         Service
	onlyComplete    bool
	refreshInterval time.Duration
	wantProductID   uint64

	chains        []trace.Chain
	selectedIndex int
	summary       traceability.Summary
	hasSummary    bool
	verification  traceability.VerifyResult
	hasVerify     bool
	status        string
	auditLogs     []string
}

type chainsLoadedMsg struct {
	items []trace.Chain
	err   error
}

type summaryLoadedMsg struct {
	productID    uint64
	summary      traceability.Summary
	verification traceability.VerifyResult
	hasVerify    bool
	err          error
}

type tickMsg struct{}

type actionDoneMsg struct {
	action    string
	productID uint64
	result    string
	err       error
}

func NewChainModel(ctx context.Context, service Service, options Options) tea.Model {
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &chainModel{
		ctx:             ctx,
		service:         service,
		onlyComplete:    options.OnlyComplete,
		refreshInterval: interval,
		wantProductID:   options.ProductID,
		status:          "loading",
	}
}

func (m *chainModel) Init() tea.Cmd {
	return tea.Batch(m.loadChainsCmd(), m.tickCmd())
}

func (m *chainModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		return m, tea.Batch(m.loadChainsCmd(), m.tickCmd())
	case chainsLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.chains = msg.items
		if len(m.chains) == 0 {
			m.selectedIndex = 0
			m.hasSummary = false
			m.hasVerify = false
			m.status = "no chains"
			return m, nil
		}
		if m.wantProductID != 0 {
			for index, chain := range m.chains {
				if chain.ProductID == m.wantProductID {
					m.selectedIndex = index
				}
			}
			m.wantProductID = 0
		}
		if m.selectedIndex < 0 {
			m.selectedIndex = 0
		}
		if m.selectedIndex >= len(m.chains) {
			m.selectedIndex = len(m.chains) - 1
		}
		m.status = fmt.Sprintf("refreshed, %d chains", len(m.chains))
		return m, m.loadSummaryCmd()
	case summaryLoadedMsg:
		if !m.isSelected(msg.productID) {
			return m, nil
		}
		if msg.err != nil {
			m.hasSummary = false
			m.status = "summary failed: " + msg.err.Error()
			return m, nil
		}
		m.summary = msg.summary
		m.hasSummary = true
		m.verification = msg.verification
		m.hasVerify = msg.hasVerify
		return m, nil
	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			m.appendAuditLog(msg.action, msg.productID, "failed", msg.err)
		} else {
			m.status = fmt.Sprintf("%s done: %s", msg.action, msg.result)
			m.appendAuditLog(msg.action, msg.productID, msg.result, nil)
		}
		return m, m.loadChainsCmd()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.status = "refreshing"
			return m, m.loadChainsCmd()
		case "up", "k":
			if m.selectedIndex > 0 {
				m.selectedIndex--
				return m, m.loadSummaryCmd()
			}
			return m, nil
		case "down", "j":
			if m.selectedIndex < len(m.chains)-1 {
				m.selectedIndex++
				return m, m.loadSummaryCmd()
			}
			return m, nil
		case "v":
			return m, m.verifyCmd()
		case "i":
			return m, m.ingestCmd()
		}
	}
	return m, nil
}

func (m *chainModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))
	goodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("Trace Console"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf("complete_only=%t refresh=%s", m.onlyComplete, m.refreshInterval)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Chains"))
	builder.WriteString("\n")
	if len(m.chains) == 0 {
		builder.WriteString(dimStyle.Render("- no chains"))
		builder.WriteString("\n\n")
	} else {
		for index, chain := range m.chains {
			line := fmt.Sprintf("product %d [%s] producer=%s quality=%s",
				chain.ProductID,
				chainState(chain),
				firstNonEmpty(chain.Producer.Name, "-"),
				FormatMetric(chain.CombinedQualityScore(), 2),
			)
			if index == m.selectedIndex {
				builder.WriteString(selectedStyle.Render("> " + line))
			} else {
				builder.WriteString("  " + line)
			}
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Metrics"))
	builder.WriteString("\n")
	if !m.hasSummary {
		builder.WriteString(dimStyle.Render("- no summary"))
		builder.WriteString("\n\n")
	} else {
		chain := m.summary.Chain
		builder.WriteString(fmt.Sprintf("Distance: %s km\n", FormatMetric(chain.TotalDistanceKM, 1)))
		builder.WriteString(fmt.Sprintf("Time: %s h\n", FormatMetric(chain.TotalTimeHours, 1)))
		builder.WriteString(fmt.Sprintf("Temperature violations: %d\n", chain.TemperatureViolations))
		builder.WriteString(fmt.Sprintf("Inspection quality: %s\n", FormatMetric(chain.InspectionQualityScore, 2)))
		if chain.SensorQualityScore != nil {
			builder.WriteString(fmt.Sprintf("Sensor quality: %s\n", FormatMetric(*chain.SensorQualityScore, 2)))
		} else {
			builder.WriteString("Sensor quality: -\n")
		}
		if len(m.summary.MissingEventTypes) > 0 {
			builder.WriteString(badStyle.Render("Missing: " + joinEventTypes(m.summary.MissingEventTypes)))
			builder.WriteString("\n")
		}

		builder.WriteString("\nRecent Events:\n")
		events := m.summary.Events
		if len(events) == 0 {
			builder.WriteString("- none\n")
		} else {
			start := len(events) - maxShownEvents
			if start < 0 {
				start = 0
			}
			for _, event := range events[start:] {
				builder.WriteString(fmt.Sprintf("- e%d %s %s %s\n",
					event.EventID,
					event.Timestamp.UTC().Format(time.RFC3339),
					event.Type,
					shortHash(event.Hash),
				))
			}
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Verification"))
	builder.WriteString("\n")
	if !m.hasVerify {
		builder.WriteString(dimStyle.Render("- not verified yet"))
		builder.WriteString("\n\n")
	} else {
		verdict := badStyle.Render("not authentic")
		if m.verification.Authentic {
			verdict = goodStyle.Render("authentic")
		}
		builder.WriteString(fmt.Sprintf("%s score=%s\n", verdict, FormatMetric(m.verification.Score, 2)))
		for _, issue := range m.verification.Issues {
			builder.WriteString("- " + issue + "\n")
		}
		if len(m.verification.TamperedEventIDs) > 0 {
			builder.WriteString(badStyle.Render(fmt.Sprintf("tampered events: %v", m.verification.TamperedEventIDs)))
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	builder.WriteString("- " + firstNonEmpty(m.status, "ready"))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Audit Log"))
	builder.WriteString("\n")
	if len(m.auditLogs) == 0 {
		builder.WriteString(dimStyle.Render("- no actions"))
		builder.WriteString("\n\n")
	} else {
		for _, line := range m.auditLogs {
			builder.WriteString("- " + line)
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(dimStyle.Render("Keys: ↑/k ↓/j move  g refresh  v verify  i ingest telemetry  q quit"))
	return builder.String()
}

func (m *chainModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *chainModel) loadChainsCmd() tea.Cmd {
	return func() tea.Msg {
		items, err := m.service.ListChains(m.ctx, ports.ChainFilter{OnlyComplete: m.onlyComplete})
		if err != nil {
			return chainsLoadedMsg{err: err}
		}
		return chainsLoadedMsg{items: items}
	}
}

func (m *chainModel) loadSummaryCmd() tea.Cmd {
	productID, ok := m.selectedProductID()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		summary, err := m.service.GetSummary(m.ctx, productID)
		if err != nil {
			return summaryLoadedMsg{productID: productID, err: err}
		}
		verification, found := m.service.LastVerification(m.ctx, productID)
		return summaryLoadedMsg{
			productID:    productID,
			summary:      summary,
			verification: verification,
			hasVerify:    found,
		}
	}
}

func (m *chainModel) verifyCmd() tea.Cmd {
	productID, ok := m.selectedProductID()
	if !ok {
		return nil
	}
	m.status = fmt.Sprintf("verifying product %d", productID)
	return func() tea.Msg {
		result, err := m.service.Verify(m.ctx, productID)
		if err != nil {
			return actionDoneMsg{action: "verify", productID: productID, err: err}
		}
		return actionDoneMsg{
			action:    "verify",
			productID: productID,
			result:    fmt.Sprintf("authentic=%t score=%s", result.Authentic, FormatMetric(result.Score, 2)),
		}
	}
}

func (m *chainModel) ingestCmd() tea.Cmd {
	productID, ok := m.selectedProductID()
	if !ok {
		return nil
	}
	m.status = fmt.Sprintf("ingesting telemetry for product %d", productID)
	return func() tea.Msg {
		result, err := m.service.IngestRecentTelemetry(m.ctx, productID)
		if err != nil {
			return actionDoneMsg{action: "ingest", productID: productID, err: err}
		}
		summary := fmt.Sprintf("created=%d skipped=%d", result.CreatedCount, len(result.Skipped))
		if !result.Success {
			summary = result.Message
		}
		return actionDoneMsg{action: "ingest", productID: productID, result: summary}
	}
}

func (m *chainModel) selectedProductID() (uint64, bool) {
	if len(m.chains) == 0 || m.selectedIndex < 0 || m.selectedIndex >= len(m.chains) {
		return 0, false
	}
	return m.chains[m.selectedIndex].ProductID, true
}

func (m *chainModel) isSelected(productID uint64) bool {
	selected, ok := m.selectedProductID()
	return ok && selected == productID
}

func (m *chainModel) appendAuditLog(action string, productID uint64, result string, err error) {
	line := fmt.Sprintf("%s product=%d %s", action, productID, result)
	if err != nil {
		line += ": " + err.Error()
	}
	m.auditLogs = append(m.auditLogs, line)
	if len(m.auditLogs) > maxAuditLines {
		m.auditLogs = m.auditLogs[len(m.auditLogs)-maxAuditLines:]
	}
}

// FormatMetric renders a float with a fixed number of decimals without
// binary rounding artifacts.
func FormatMetric(value float64, places int32) string {
	return decimal.NewFromFloat(value).StringFixed(places)
}

func chainState(chain trace.Chain) string {
	switch {
	case chain.IsVerified:
		return "verified"
	case chain.IsComplete:
		return "complete"
	default:
		return "open"
	}
}

func joinEventTypes(types []trace.EventType) string {
	parts := make([]string, 0, len(types))
	for _, eventType := range types {
		parts = append(parts, string(eventType))
	}
	return strings.Join(parts, ",")
}

func shortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
