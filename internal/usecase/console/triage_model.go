package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ivdhub/internal/ports"
	"ivdhub/internal/usecase/pipeline"
)

const maxQueueRows = 15

type Options struct {
	RefreshInterval time.Duration
	Operator        string
}

type tab int

const (
	tabPending tab = iota
	tabConflicts
)

type triageModel struct {
	ctx             context.Context
	service         *pipeline.Service
	refreshInterval time.Duration
	operator        string

	activeTab     tab
	pending       []ports.PendingItem
	conflicts     []pipeline.ConflictView
	selectedIndex int

	// reason input mode for conflict resolution
	resolving     bool
	resolveCaseID uint64
	resolveValue  string
	reasonInput   strings.Builder

	status string
}

type queueLoadedMsg struct {
	pending   []ports.PendingItem
	conflicts []pipeline.ConflictView
	err       error
}

type tickMsg struct{}

type actionDoneMsg struct {
	action string
	result string
	err    error
}

func NewTriageModel(ctx context.Context, service *pipeline.Service, options Options) tea.Model {
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	operator := strings.TrimSpace(options.Operator)
	if operator == "" {
		operator = "operator"
	}
	return &triageModel{
		ctx:             ctx,
		service:         service,
		refreshInterval: interval,
		operator:        operator,
		status:          "loading",
	}
}

func (m *triageModel) Init() tea.Cmd {
	return tea.Batch(m.loadQueuesCmd(), m.tickCmd())
}

func (m *triageModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		if m.resolving {
			return m, m.tickCmd()
		}
		return m, tea.Batch(m.loadQueuesCmd(), m.tickCmd())
	case queueLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.pending = msg.pending
		m.conflicts = msg.conflicts
		m.clampSelection()
		m.status = fmt.Sprintf("refreshed: %d pending, %d conflicts", len(m.pending), len(m.conflicts))
		return m, nil
	case actionDoneMsg:
		if msg.err != nil {
			m.status = msg.action + " failed: " + msg.err.Error()
		} else {
			m.status = msg.action + ": " + msg.result
		}
		return m, m.loadQueuesCmd()
	case tea.KeyMsg:
		if m.resolving {
			return m.updateReasonInput(msg)
		}
		return m.updateNavigation(msg)
	}
	return m, nil
}

func (m *triageModel) updateNavigation(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab":
		if m.activeTab == tabPending {
			m.activeTab = tabConflicts
		} else {
			m.activeTab = tabPending
		}
		m.selectedIndex = 0
		return m, nil
	case "g":
		m.status = "refreshing"
		return m, m.loadQueuesCmd()
	case "up", "k":
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
		return m, nil
	case "down", "j":
		if m.selectedIndex < m.rowCount()-1 {
			m.selectedIndex++
		}
		return m, nil
	case "r":
		if m.activeTab == tabPending {
			return m, m.retryPendingCmd()
		}
		return m, nil
	case "i":
		if m.activeTab == tabPending && m.selectedIndex < len(m.pending) {
			return m, m.ignorePendingCmd(m.pending[m.selectedIndex].PendingItemID)
		}
		return m, nil
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		if m.activeTab != tabConflicts || m.selectedIndex >= len(m.conflicts) {
			return m, nil
		}
		view := m.conflicts[m.selectedIndex]
		idx := int(msg.String()[0] - '1')
		if idx >= len(view.Candidates) {
			return m, nil
		}
		m.resolving = true
		m.resolveCaseID = view.Case.ConflictCaseID
		m.resolveValue = view.Candidates[idx].Value
		m.reasonInput.Reset()
		m.status = fmt.Sprintf("resolving case %d with %q, type reason and press enter", view.Case.ConflictCaseID, m.resolveValue)
		return m, nil
	}
	return m, nil
}

func (m *triageModel) updateReasonInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.resolving = false
		m.status = "resolution cancelled"
		return m, nil
	case tea.KeyEnter:
		reason := strings.TrimSpace(m.reasonInput.String())
		if reason == "" {
			m.status = "a reason is required"
			return m, nil
		}
		m.resolving = false
		return m, m.resolveConflictCmd(m.resolveCaseID, m.resolveValue, reason)
	case tea.KeyBackspace:
		current := m.reasonInput.String()
		if current != "" {
			m.reasonInput.Reset()
			m.reasonInput.WriteString(current[:len(current)-1])
		}
		return m, nil
	case tea.KeyRunes, tea.KeySpace:
		m.reasonInput.WriteString(string(msg.Runes))
		if msg.Type == tea.KeySpace {
			m.reasonInput.WriteString(" ")
		}
		return m, nil
	}
	return m, nil
}

func (m *triageModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("ivdhub triage console"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf("operator=%s refresh=%s", m.operator, m.refreshInterval)))
	builder.WriteString("\n\n")

	pendingTitle := "Pending"
	conflictTitle := "Conflicts"
	if m.activeTab == tabPending {
		pendingTitle = "[" + pendingTitle + "]"
	} else {
		conflictTitle = "[" + conflictTitle + "]"
	}
	builder.WriteString(sectionStyle.Render(pendingTitle + "  " + conflictTitle))
	builder.WriteString("\n")

	switch m.activeTab {
	case tabPending:
		if len(m.pending) == 0 {
			builder.WriteString(dimStyle.Render("- queue is empty"))
			builder.WriteString("\n")
		}
		for index, item := range m.pending {
			if index >= maxQueueRows {
				builder.WriteString(dimStyle.Render(fmt.Sprintf("  ... %d more", len(m.pending)-maxQueueRows)))
				builder.WriteString("\n")
				break
			}
			line := fmt.Sprintf("#%d %s %s reason=%s attempts=%d",
				item.PendingItemID, item.Kind, item.DedupeKey, item.ReasonCode, item.Attempts)
			if item.Terminal {
				line += " terminal"
			}
			if index == m.selectedIndex {
				builder.WriteString(selectedStyle.Render("> " + line))
			} else {
				builder.WriteString("  " + line)
			}
			builder.WriteString("\n")
		}
	case tabConflicts:
		if len(m.conflicts) == 0 {
			builder.WriteString(dimStyle.Render("- no open cases"))
			builder.WriteString("\n")
		}
		for index, view := range m.conflicts {
			if index >= maxQueueRows {
				builder.WriteString(dimStyle.Render(fmt.Sprintf("  ... %d more", len(m.conflicts)-maxQueueRows)))
				builder.WriteString("\n")
				break
			}
			line := fmt.Sprintf("case %d reg=%d field=%s candidates=%d",
				view.Case.ConflictCaseID, view.Case.RegistrationID, view.Case.Field, len(view.Candidates))
			if index == m.selectedIndex {
				builder.WriteString(selectedStyle.Render("> " + line))
			} else {
				builder.WriteString("  " + line)
			}
			builder.WriteString("\n")
			if index == m.selectedIndex {
				for ci, cand := range view.Candidates {
					builder.WriteString(dimStyle.Render(fmt.Sprintf(
						"    %d) %q source=%s grade=%s", ci+1, cand.Value, cand.SourceKey, cand.EvidenceGrade)))
					builder.WriteString("\n")
				}
			}
		}
	}
	builder.WriteString("\n")

	if m.resolving {
		builder.WriteString(sectionStyle.Render("Reason"))
		builder.WriteString("\n")
		builder.WriteString("> " + m.reasonInput.String())
		builder.WriteString("\n\n")
	}

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	builder.WriteString("- " + m.status)
	builder.WriteString("\n\n")

	builder.WriteString(dimStyle.Render("Keys: tab switch  ↑/k ↓/j move  g refresh  r retry due  i ignore  1-9 resolve  q quit"))
	return builder.String()
}

func (m *triageModel) rowCount() int {
	if m.activeTab == tabPending {
		return len(m.pending)
	}
	return len(m.conflicts)
}

func (m *triageModel) clampSelection() {
	if m.selectedIndex >= m.rowCount() {
		m.selectedIndex = m.rowCount() - 1
	}
	if m.selectedIndex < 0 {
		m.selectedIndex = 0
	}
}

func (m *triageModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *triageModel) loadQueuesCmd() tea.Cmd {
	return func() tea.Msg {
		pending, err := m.service.ListPendingItems(m.ctx, 100)
		if err != nil {
			return queueLoadedMsg{err: err}
		}
		conflicts, err := m.service.ListOpenConflicts(m.ctx, 100)
		if err != nil {
			return queueLoadedMsg{err: err}
		}
		return queueLoadedMsg{pending: pending, conflicts: conflicts}
	}
}

func (m *triageModel) retryPendingCmd() tea.Cmd {
	return func() tea.Msg {
		resolved, rescheduled, err := m.service.RetryPendingItems(m.ctx, 100)
		if err != nil {
			return actionDoneMsg{action: "retry", err: err}
		}
		return actionDoneMsg{
			action: "retry",
			result: fmt.Sprintf("%d resolved, %d rescheduled", resolved, rescheduled),
		}
	}
}

func (m *triageModel) ignorePendingCmd(id uint64) tea.Cmd {
	return func() tea.Msg {
		if err := m.service.IgnorePendingItem(m.ctx, id); err != nil {
			return actionDoneMsg{action: "ignore", err: err}
		}
		return actionDoneMsg{action: "ignore", result: fmt.Sprintf("item %d ignored", id)}
	}
}

func (m *triageModel) resolveConflictCmd(caseID uint64, value, reason string) tea.Cmd {
	return func() tea.Msg {
		err := m.service.ResolveConflict(m.ctx, pipeline.ResolveConflictInput{
			CaseID:     caseID,
			Value:      value,
			ResolvedBy: m.operator,
			Reason:     reason,
		})
		if err != nil {
			return actionDoneMsg{action: "resolve", err: err}
		}
		return actionDoneMsg{action: "resolve", result: fmt.Sprintf("case %d resolved", caseID)}
	}
}
