// Package tui renders the consultation client. It follows The Elm
// Architecture the way bubbletea programs do: one model, messages in,
// commands out. All lifecycle decisions live in consult.Reduce; this package
// only translates key presses and backend responses into events and draws the
// resulting state.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mzhao/medcouncil/internal/consult"
	"github.com/mzhao/medcouncil/internal/journal"
)

// screen represents which surface is on top. The lifecycle phase drives most
// of it; the example picker is the one screen that exists outside the
// lifecycle (it is only reachable while idle).
type screen int

const (
	screenConsultation screen = iota
	screenExamples
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")).MarginBottom(1)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).MarginTop(1)
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50"))
	borderStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
)

// startedMsg reports the outcome of the start call.
type startedMsg struct {
	session consult.Session
	err     error
}

// pollTickMsg fires when the next poll is due. It carries the session it was
// scheduled for so ticks from abandoned sessions die quietly.
type pollTickMsg struct {
	sessionID string
}

// snapshotMsg delivers one progress fetch.
type snapshotMsg struct {
	sessionID string
	snapshot  consult.Snapshot
	err       error
}

// exampleItem adapts an example question to the bubbles list.
type exampleItem string

func (e exampleItem) Title() string       { return string(e) }
func (e exampleItem) Description() string { return "选择后将替换当前输入" }
func (e exampleItem) FilterValue() string { return string(e) }

// App is the consultation view model.
type App struct {
	backend      consult.Backend
	journal      *journal.Journal
	model        string
	pollInterval time.Duration

	lifecycle consult.State
	screen    screen

	input    textarea.Model
	examples list.Model
	spin     spinner.Model
	bar      progress.Model
	report   viewport.Model

	// expanded tracks which transcript rounds are open in the result view.
	expanded map[string]bool

	statusMsg string
	width     int
	height    int
}

// Option customizes App construction.
type Option func(*App)

// WithModel sets the model name sent with consultations.
func WithModel(model string) Option {
	return func(a *App) {
		if strings.TrimSpace(model) != "" {
			a.model = model
		}
	}
}

// WithPollInterval overrides the 2-second poll cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(a *App) {
		if interval > 0 {
			a.pollInterval = interval
		}
	}
}

// WithExampleQuestions fills the picker.
func WithExampleQuestions(questions []string) Option {
	return func(a *App) {
		items := make([]list.Item, 0, len(questions))
		for _, q := range questions {
			if strings.TrimSpace(q) == "" {
				continue
			}
			items = append(items, exampleItem(q))
		}
		a.examples.SetItems(items)
	}
}

// WithJournal attaches the activity log.
func WithJournal(j *journal.Journal) Option {
	return func(a *App) { a.journal = j }
}

// NewApp builds the consultation view over the given backend.
func NewApp(backend consult.Backend, opts ...Option) *App {
	input := textarea.New()
	input.Placeholder = "请描述您的医疗问题..."
	input.ShowLineNumbers = false
	input.SetHeight(5)
	input.Focus()

	examples := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	examples.Title = "示例问题"
	examples.SetShowStatusBar(false)
	examples.SetFilteringEnabled(false)

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))

	app := &App{
		backend:      backend,
		model:        "gpt-4o-mini",
		pollInterval: consult.DefaultPollInterval,
		lifecycle:    consult.NewState(),
		screen:       screenConsultation,
		input:        input,
		examples:     examples,
		spin:         spin,
		bar:          progress.New(progress.WithDefaultGradient()),
		report:       viewport.New(80, 20),
		expanded:     map[string]bool{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return textarea.Blink
}

// Update routes messages.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.SetWidth(max(20, msg.Width-8))
		a.examples.SetSize(max(0, msg.Width-6), max(0, msg.Height-10))
		a.bar.Width = max(20, msg.Width-16)
		a.report.Width = max(20, msg.Width-6)
		a.report.Height = max(5, msg.Height-12)
		a.refreshReport()
		return a, nil

	case startedMsg:
		return a.handleStarted(msg)

	case pollTickMsg:
		if !a.pollCurrent(msg.sessionID) {
			return a, nil
		}
		return a, a.fetchSnapshot(a.lifecycle.Session)

	case snapshotMsg:
		return a.handleSnapshot(msg)

	case spinner.TickMsg:
		if a.lifecycle.Phase != consult.PhaseSubmitting {
			return a, nil
		}
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a.updateComponents(msg)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return a, tea.Quit
	}

	if a.screen == screenExamples {
		switch key {
		case "enter":
			if item, ok := a.examples.SelectedItem().(exampleItem); ok {
				// Replace, never append.
				a.input.SetValue(string(item))
				a.logInfo("示例问题已选择")
			}
			a.screen = screenConsultation
			a.input.Focus()
			return a, nil
		case "esc":
			a.screen = screenConsultation
			a.input.Focus()
			return a, nil
		}
		var cmd tea.Cmd
		a.examples, cmd = a.examples.Update(msg)
		return a, cmd
	}

	switch a.lifecycle.Phase {
	case consult.PhaseIdle:
		switch key {
		case "esc":
			return a, tea.Quit
		case "ctrl+e":
			if len(a.examples.Items()) > 0 {
				a.screen = screenExamples
				a.input.Blur()
			}
			return a, nil
		case "ctrl+s":
			return a.submit()
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd

	case consult.PhaseCompleted:
		switch key {
		case "n":
			return a.reset()
		default:
			if label, ok := roundForKey(key, a.lifecycle.Result); ok {
				a.expanded[label] = !a.expanded[label]
				a.refreshReport()
				return a, nil
			}
		}
		var cmd tea.Cmd
		a.report, cmd = a.report.Update(msg)
		return a, cmd

	case consult.PhaseErrored:
		if key == "n" || key == "enter" {
			return a.reset()
		}
	}
	return a, nil
}

// submit applies the submission guard and, when it passes, fires the start
// call. A blank question is silently ignored.
func (a *App) submit() (tea.Model, tea.Cmd) {
	next := consult.Reduce(a.lifecycle, consult.SubmitRequested{Question: a.input.Value()})
	if next.Phase != consult.PhaseSubmitting {
		return a, nil
	}
	a.lifecycle = next
	a.statusMsg = "正在启动会诊..."
	a.logInfo("提交会诊问题")
	req := consult.Request{Question: next.Question, Model: a.model}
	start := func() tea.Msg {
		session, err := a.backend.Start(context.Background(), req)
		return startedMsg{session: session, err: err}
	}
	return a, tea.Batch(start, a.spin.Tick)
}

func (a *App) handleStarted(msg startedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		a.lifecycle = consult.Reduce(a.lifecycle, consult.StartFailed{Err: msg.err})
		a.statusMsg = a.lifecycle.Err
		a.logError("启动会诊失败: %v", msg.err)
		return a, nil
	}
	a.lifecycle = consult.Reduce(a.lifecycle, consult.StartSucceeded{Session: msg.session})
	if !a.lifecycle.PollActive() {
		// A reset raced the start response; nothing to poll.
		return a, nil
	}
	a.statusMsg = fmt.Sprintf("会诊进行中 · 会话 %s", msg.session.ID)
	a.logInfo("会诊已启动 · 会话 %s", msg.session.ID)
	return a, a.schedulePoll(msg.session.ID)
}

func (a *App) handleSnapshot(msg snapshotMsg) (tea.Model, tea.Cmd) {
	if !a.pollCurrent(msg.sessionID) {
		return a, nil
	}
	if msg.err != nil {
		a.lifecycle = consult.Reduce(a.lifecycle, consult.PollFailed{SessionID: msg.sessionID, Err: msg.err})
		a.statusMsg = a.lifecycle.Err
		a.logError("获取进度失败: %v", msg.err)
		return a, nil
	}
	previousStep := a.lifecycle.CurrentStep
	a.lifecycle = consult.Reduce(a.lifecycle, consult.SnapshotReceived{SessionID: msg.sessionID, Snapshot: msg.snapshot})
	if a.lifecycle.CurrentStep != previousStep {
		a.logInfo("进度 %.0f%% · %s", a.lifecycle.Progress, a.lifecycle.CurrentStep)
	}

	switch a.lifecycle.Phase {
	case consult.PhasePolling:
		return a, a.schedulePoll(msg.sessionID)
	case consult.PhaseCompleted:
		a.statusMsg = "会诊完成"
		a.expanded = map[string]bool{}
		a.refreshReport()
		a.logInfo("会诊完成 · 用时 %s", consult.FormatDuration(a.lifecycle.Result.Duration))
	case consult.PhaseErrored:
		a.statusMsg = a.lifecycle.Err
		a.logError("%s", a.lifecycle.Err)
	}
	return a, nil
}

// reset clears everything and returns to the input stage. Any pending poll
// tick still in flight is dropped by the session guard.
func (a *App) reset() (tea.Model, tea.Cmd) {
	a.lifecycle = consult.Reduce(a.lifecycle, consult.ResetRequested{})
	a.input.Reset()
	a.input.Focus()
	a.expanded = map[string]bool{}
	a.report.SetContent("")
	a.statusMsg = ""
	a.logInfo("已重置，返回提问")
	return a, textarea.Blink
}

// schedulePoll arms the next tick for one session. There is never more than
// one live timer chain: each snapshot schedules exactly one successor, and
// stale sessions are filtered by pollCurrent.
func (a *App) schedulePoll(sessionID string) tea.Cmd {
	return tea.Tick(a.pollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{sessionID: sessionID}
	})
}

func (a *App) fetchSnapshot(session consult.Session) tea.Cmd {
	return func() tea.Msg {
		snap, err := a.backend.Progress(context.Background(), session)
		return snapshotMsg{sessionID: session.ID, snapshot: snap, err: err}
	}
}

// pollCurrent reports whether poll traffic for sessionID should still be
// honored.
func (a *App) pollCurrent(sessionID string) bool {
	return a.lifecycle.PollActive() && sessionID == a.lifecycle.Session.ID
}

func (a *App) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	switch {
	case a.screen == screenExamples:
		a.examples, cmd = a.examples.Update(msg)
	case a.lifecycle.Phase == consult.PhaseIdle:
		a.input, cmd = a.input.Update(msg)
	case a.lifecycle.Phase == consult.PhaseCompleted:
		a.report, cmd = a.report.Update(msg)
	}
	if cmd != nil {
		cmds = append(cmds, cmd)
	}
	return a, tea.Batch(cmds...)
}

func (a *App) refreshReport() {
	if a.lifecycle.Result == nil {
		return
	}
	a.report.SetContent(renderResult(a.lifecycle.Result, a.expanded, max(20, a.report.Width-2)))
}

// View renders the active surface.
func (a *App) View() string {
	header := headerStyle.Render("⬡ MEDCOUNCIL · 多智能体医疗会诊")
	var body string
	switch {
	case a.screen == screenExamples:
		body = a.viewExamples()
	case a.lifecycle.Phase == consult.PhaseIdle:
		body = a.viewInput()
	case a.lifecycle.Phase == consult.PhaseSubmitting:
		body = a.viewSubmitting()
	case a.lifecycle.Phase == consult.PhasePolling:
		body = a.viewPolling()
	case a.lifecycle.Phase == consult.PhaseCompleted:
		body = a.viewResult()
	case a.lifecycle.Phase == consult.PhaseErrored:
		body = a.viewError()
	}
	sections := []string{header, borderStyle.Render(body)}
	if panel := a.viewJournalPanel(); panel != "" {
		sections = append(sections, panel)
	}
	sections = append(sections, footerStyle.Render(a.statusMsg))
	return strings.Join(sections, "\n")
}

func (a *App) viewInput() string {
	lines := []string{
		titleStyle.Render("请输入医疗问题"),
		"",
		a.input.View(),
		hintStyle.Render("Ctrl+S 提交    Ctrl+E 示例问题    Esc 退出"),
	}
	return strings.Join(lines, "\n")
}

func (a *App) viewExamples() string {
	view := a.examples.View()
	if strings.TrimSpace(view) == "" {
		view = "暂无示例问题"
	}
	return lipgloss.JoinVertical(lipgloss.Left, view,
		hintStyle.Render("Enter 选择    Esc 返回"))
}

func (a *App) viewSubmitting() string {
	return fmt.Sprintf("%s 正在启动会诊，请稍候...", a.spin.View())
}

func (a *App) viewPolling() string {
	lines := []string{
		titleStyle.Render("会诊进行中"),
		"",
		a.bar.ViewAs(a.lifecycle.Progress / 100),
		"",
		stepStyle.Render(a.lifecycle.CurrentStep),
		"",
		hintStyle.Render(fmt.Sprintf("会话 %s · 每 %s 刷新", a.lifecycle.Session.ID, a.pollInterval)),
	}
	return strings.Join(lines, "\n")
}

func (a *App) viewResult() string {
	lines := []string{
		successStyle.Render("✓ 会诊完成"),
		"",
		a.report.View(),
		hintStyle.Render("↑/↓ 滚动    数字键 展开/收起讨论轮次    n 新会诊"),
	}
	return strings.Join(lines, "\n")
}

func (a *App) viewError() string {
	msg := a.lifecycle.Err
	if msg == "" {
		msg = "发生未知错误"
	}
	lines := []string{
		errorStyle.Render("✗ 会诊失败"),
		"",
		msg,
		hintStyle.Render("n 重新开始"),
	}
	return strings.Join(lines, "\n")
}

func (a *App) viewJournalPanel() string {
	if a.journal == nil {
		return ""
	}
	entries := a.journal.Tail(5)
	if len(entries) == 0 {
		return ""
	}
	head := titleStyle.Render("LOG")
	body := hintStyle.Render(strings.Join(entries, "\n"))
	return borderStyle.Render(head + "\n" + body)
}

func (a *App) logInfo(format string, args ...any) {
	if a.journal != nil {
		a.journal.Info(format, args...)
	}
}

func (a *App) logError(format string, args ...any) {
	if a.journal != nil {
		a.journal.Error(format, args...)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
