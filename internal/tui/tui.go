// Package tui provides the terminal app for the task list and reading list.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"simpletasks/internal/bookmarks"
	"simpletasks/internal/tasks"
	"simpletasks/internal/utils"
)

// TaskList is the subset of tasks.Manager the TUI drives
type TaskList interface {
	Add(text string) (*tasks.Task, error)
	Update(id int64, text string) (*tasks.Task, error)
	Toggle(id int64) (*tasks.Task, error)
	Remove(id int64) (bool, error)
	ClearCompleted() (int, error)
	Query(filter tasks.Filter, search string) []tasks.Task
	All() []tasks.Task
	HasCompleted() bool
}

// BookList is the subset of bookmarks.Manager the TUI drives
type BookList interface {
	Add(title, author, url string) (*bookmarks.Book, error)
	Update(url, title, author string) (*bookmarks.Book, error)
	Remove(url string) (bool, error)
	Query(search string) []bookmarks.Book
	All() []bookmarks.Book
}

// Pane selects which list is shown
type Pane int

const (
	PaneTasks Pane = iota
	PaneBooks
)

var paneNames = []string{"Tasks", "Reading list"}

// Focus indicates which pane has focus
type Focus int

const (
	FocusLists Focus = iota
	FocusItems
)

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdd
	ModeEdit
	ModeSearch
	ModeHelp
	ModeConfirmDelete
	ModeConfirmClear
)

var filterTitles = map[tasks.Filter]string{
	tasks.FilterAll:       "My Tasks",
	tasks.FilterActive:    "Active Tasks",
	tasks.FilterCompleted: "Completed Tasks",
}

// Model represents the TUI state
type Model struct {
	tasks TaskList
	books BookList

	// Projections of the managers' collections
	taskRows []tasks.Task
	bookRows []bookmarks.Book

	pane   Pane
	focus  Focus
	cursor int
	filter tasks.Filter
	search string

	// Multi-field form for add/edit
	mode       Mode
	textInput  textinput.Model
	formTitle  string
	formFields []string
	formValues []string
	formStep   int

	status string

	width  int
	height int

	listPaneStyle  lipgloss.Style
	itemPaneStyle  lipgloss.Style
	selectedStyle  lipgloss.Style
	completedStyle lipgloss.Style
	mutedStyle     lipgloss.Style
	errorStyle     lipgloss.Style
	dialogStyle    lipgloss.Style
	statusBarStyle lipgloss.Style
}

// changedMsg reports a finished mutation
type changedMsg struct {
	status string
}

type errMsg struct {
	err error
}

// New creates a new TUI model over both lists
func New(t TaskList, b BookList) *Model {
	ti := textinput.New()
	ti.CharLimit = 512

	return &Model{
		tasks:     t,
		books:     b,
		textInput: ti,
		focus:     FocusItems,
		filter:    tasks.FilterAll,
		listPaneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		itemPaneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		completedStyle: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240")),
		mutedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
	}
}

// Init initializes the TUI
func (m *Model) Init() tea.Cmd {
	m.refresh()
	return nil
}

// refresh re-projects the current pane from its manager
func (m *Model) refresh() {
	m.taskRows = m.tasks.Query(m.filter, m.search)
	m.bookRows = m.books.Query(m.search)
	if n := m.rowCount(); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m *Model) rowCount() int {
	if m.pane == PaneBooks {
		return len(m.bookRows)
	}
	return len(m.taskRows)
}

func (m *Model) selectedTask() (tasks.Task, bool) {
	if m.pane != PaneTasks || m.cursor >= len(m.taskRows) {
		return tasks.Task{}, false
	}
	return m.taskRows[m.cursor], true
}

func (m *Model) selectedBook() (bookmarks.Book, bool) {
	if m.pane != PaneBooks || m.cursor >= len(m.bookRows) {
		return bookmarks.Book{}, false
	}
	return m.bookRows[m.cursor], true
}

// mutate runs fn off the update loop and reports its outcome
func mutate(fn func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		status, err := fn()
		if err != nil {
			return errMsg{err}
		}
		return changedMsg{status}
	}
}

func (m *Model) toggleTask(id int64) tea.Cmd {
	return mutate(func() (string, error) {
		t, err := m.tasks.Toggle(id)
		if err != nil {
			return "", err
		}
		if t == nil {
			return "", utils.ErrTaskNotFound(id)
		}
		return "", nil
	})
}

func (m *Model) deleteSelected() tea.Cmd {
	if t, ok := m.selectedTask(); ok {
		return mutate(func() (string, error) {
			_, err := m.tasks.Remove(t.ID)
			return "Deleted task", err
		})
	}
	if b, ok := m.selectedBook(); ok {
		return mutate(func() (string, error) {
			_, err := m.books.Remove(b.URL)
			return "Deleted book", err
		})
	}
	return nil
}

func (m *Model) clearCompleted() tea.Cmd {
	return mutate(func() (string, error) {
		n, err := m.tasks.ClearCompleted()
		if err != nil {
			return "", err
		}
		return "Cleared " + utils.Pluralize(n, "completed task", "completed tasks"), nil
	})
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case changedMsg:
		m.status = msg.status
		m.refresh()
		return m, nil

	case errMsg:
		m.status = "Error: " + msg.err.Error()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeAdd, ModeEdit:
			return m.handleFormMode(msg)
		case ModeSearch:
			return m.handleSearchMode(msg)
		case ModeHelp:
			m.mode = ModeNormal
			return m, nil
		case ModeConfirmDelete, ModeConfirmClear:
			return m.handleConfirmMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	return m, nil
}

func (m *Model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		if m.focus == FocusLists {
			m.focus = FocusItems
		} else {
			m.focus = FocusLists
		}
		return m, nil

	case "up", "k":
		if m.focus == FocusLists {
			m.switchPane(PaneTasks)
		} else if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.focus == FocusLists {
			m.switchPane(PaneBooks)
		} else if m.cursor < m.rowCount()-1 {
			m.cursor++
		}
		return m, nil

	case "1":
		m.switchPane(PaneTasks)
		return m, nil

	case "2":
		m.switchPane(PaneBooks)
		return m, nil

	case "a":
		if m.pane == PaneBooks {
			return m, m.openForm(ModeAdd, "Add Book", []string{"Title", "Author", "URL"}, nil)
		}
		return m, m.openForm(ModeAdd, "Add Task", []string{"Task"}, nil)

	case "e":
		if t, ok := m.selectedTask(); ok {
			return m, m.openForm(ModeEdit, "Edit Task", []string{"Task"}, []string{t.Text})
		}
		if b, ok := m.selectedBook(); ok {
			return m, m.openForm(ModeEdit, "Edit: "+b.URL, []string{"Title", "Author"}, []string{b.Title, b.Author})
		}
		return m, nil

	case " ", "c":
		if t, ok := m.selectedTask(); ok {
			return m, m.toggleTask(t.ID)
		}
		return m, nil

	case "d":
		if m.rowCount() > 0 {
			m.mode = ModeConfirmDelete
		}
		return m, nil

	case "f":
		if m.pane == PaneTasks {
			m.filter = nextFilter(m.filter)
			m.cursor = 0
			m.refresh()
		}
		return m, nil

	case "x":
		if m.pane == PaneTasks && m.tasks.HasCompleted() {
			m.mode = ModeConfirmClear
		}
		return m, nil

	case "/":
		m.mode = ModeSearch
		m.textInput.Reset()
		m.textInput.Placeholder = "Search..."
		m.textInput.SetValue(m.search)
		m.textInput.Focus()
		return m, textinput.Blink

	case "esc":
		if m.search != "" {
			m.search = ""
			m.refresh()
		}
		return m, nil

	case "?":
		m.mode = ModeHelp
		return m, nil
	}
	return m, nil
}

func (m *Model) switchPane(p Pane) {
	if m.pane == p {
		return
	}
	m.pane = p
	m.cursor = 0
	m.status = ""
	m.refresh()
}

func nextFilter(f tasks.Filter) tasks.Filter {
	switch f {
	case tasks.FilterAll:
		return tasks.FilterActive
	case tasks.FilterActive:
		return tasks.FilterCompleted
	default:
		return tasks.FilterAll
	}
}

func (m *Model) openForm(mode Mode, title string, fields, values []string) tea.Cmd {
	m.mode = mode
	m.formTitle = title
	m.formFields = fields
	m.formValues = make([]string, len(fields))
	copy(m.formValues, values)
	m.formStep = 0
	m.status = ""
	m.loadFormStep()
	m.textInput.Focus()
	return textinput.Blink
}

func (m *Model) loadFormStep() {
	m.textInput.Reset()
	m.textInput.Placeholder = m.formFields[m.formStep] + "..."
	m.textInput.SetValue(m.formValues[m.formStep])
	m.textInput.CursorEnd()
}

func (m *Model) handleFormMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		m.formValues[m.formStep] = m.textInput.Value()
		if m.formStep < len(m.formFields)-1 {
			m.formStep++
			m.loadFormStep()
			return m, nil
		}
		mode := m.mode
		m.mode = ModeNormal
		m.textInput.Blur()
		return m, m.submitForm(mode)

	case tea.KeyEsc:
		m.mode = ModeNormal
		m.textInput.Blur()
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) submitForm(mode Mode) tea.Cmd {
	values := append([]string(nil), m.formValues...)

	switch {
	case m.pane == PaneTasks && mode == ModeAdd:
		return mutate(func() (string, error) {
			if _, err := m.tasks.Add(values[0]); err != nil {
				return "", err
			}
			return "Added task", nil
		})

	case m.pane == PaneTasks && mode == ModeEdit:
		t, ok := m.selectedTask()
		if !ok {
			return nil
		}
		return mutate(func() (string, error) {
			updated, err := m.tasks.Update(t.ID, values[0])
			if err != nil {
				return "", err
			}
			if updated == nil {
				return "", utils.ErrTaskNotFound(t.ID)
			}
			return "Updated task", nil
		})

	case m.pane == PaneBooks && mode == ModeAdd:
		return mutate(func() (string, error) {
			if _, err := m.books.Add(values[0], values[1], values[2]); err != nil {
				return "", err
			}
			return "Added book", nil
		})

	case m.pane == PaneBooks && mode == ModeEdit:
		b, ok := m.selectedBook()
		if !ok {
			return nil
		}
		return mutate(func() (string, error) {
			updated, err := m.books.Update(b.URL, values[0], values[1])
			if err != nil {
				return "", err
			}
			if updated == nil {
				return "", utils.ErrBookmarkNotFound(b.URL)
			}
			return "Updated book", nil
		})
	}
	return nil
}

func (m *Model) handleSearchMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		m.mode = ModeNormal
		m.textInput.Blur()
		return m, nil

	case tea.KeyEsc:
		m.search = ""
		m.mode = ModeNormal
		m.textInput.Blur()
		m.refresh()
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	m.search = m.textInput.Value()
	m.cursor = 0
	m.refresh()
	return m, cmd
}

func (m *Model) handleConfirmMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	mode := m.mode
	switch msg.String() {
	case "y", "Y":
		m.mode = ModeNormal
		if mode == ModeConfirmClear {
			return m, m.clearCompleted()
		}
		return m, m.deleteSelected()

	case "n", "N", "esc", "q":
		m.mode = ModeNormal
		return m, nil
	}
	return m, nil
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeAdd, ModeEdit:
		return m.renderFormDialog()
	case ModeHelp:
		return m.centerDialog(m.dialogStyle.Render(helpText))
	case ModeConfirmDelete:
		return m.renderConfirmDialog("Delete selected " + m.itemNoun() + "?")
	case ModeConfirmClear:
		return m.renderConfirmDialog("Clear all completed tasks?")
	}

	listWidth := m.width / 4
	itemWidth := m.width - listWidth - 4

	listPane := m.listPaneStyle.Width(listWidth).Height(m.height - 4).Render(m.renderListPane(listWidth - 4))
	itemPane := m.itemPaneStyle.Width(itemWidth).Height(m.height - 4).Render(m.renderItemPane(itemWidth - 4))

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, listPane, itemPane))
	b.WriteString("\n")
	if m.mode == ModeSearch {
		b.WriteString(m.textInput.View())
	} else {
		b.WriteString(m.renderStatusBar())
	}
	return b.String()
}

func (m *Model) itemNoun() string {
	if m.pane == PaneBooks {
		return "book"
	}
	return "task"
}

func (m *Model) renderListPane(width int) string {
	var b strings.Builder
	b.WriteString("Lists\n")
	b.WriteString(strings.Repeat("─", max(width, 0)))
	b.WriteString("\n")

	for i, name := range paneNames {
		cursor := " "
		if Pane(i) == m.pane {
			cursor = ">"
			if m.focus == FocusLists {
				name = m.selectedStyle.Render(name)
			}
		}
		b.WriteString(cursor + " " + name + "\n")
	}
	return b.String()
}

func (m *Model) renderItemPane(width int) string {
	var b strings.Builder
	if m.pane == PaneBooks {
		b.WriteString("Reading list\n")
	} else {
		b.WriteString(filterTitles[m.filter] + "  " + m.mutedStyle.Render(CountLine(len(m.tasks.All()))) + "\n")
	}
	b.WriteString(strings.Repeat("─", max(width, 0)))
	b.WriteString("\n")

	if m.pane == PaneBooks {
		m.renderBooks(&b)
	} else {
		m.renderTasks(&b)
	}
	return b.String()
}

func (m *Model) renderTasks(b *strings.Builder) {
	if len(m.taskRows) == 0 {
		b.WriteString("No tasks\n")
		return
	}
	for i, t := range m.taskRows {
		selected := i == m.cursor && m.focus == FocusItems
		cursor := " "
		if selected {
			cursor = ">"
		}
		status := "[ ]"
		text := t.Text
		if t.Completed {
			status = "[✓]"
			text = m.completedStyle.Render(text)
		} else if selected {
			text = m.selectedStyle.Render(text)
		}
		b.WriteString(cursor + " " + status + " " + text + "\n")
	}
}

func (m *Model) renderBooks(b *strings.Builder) {
	if len(m.bookRows) == 0 {
		b.WriteString("No books\n")
		return
	}
	for i, book := range m.bookRows {
		selected := i == m.cursor && m.focus == FocusItems
		cursor := " "
		title := book.Title
		if selected {
			cursor = ">"
			title = m.selectedStyle.Render(title)
		}
		b.WriteString(cursor + " " + title + " " + m.mutedStyle.Render("by "+book.Author) + "\n")
		b.WriteString("    " + m.mutedStyle.Render(book.URL) + "\n")
	}
}

// CountLine is the task count shown under the list title.
func CountLine(n int) string {
	return utils.Pluralize(n, "task", "tasks")
}

func (m *Model) renderStatusBar() string {
	left := paneNames[m.pane]
	if m.pane == PaneTasks && m.filter != tasks.FilterAll {
		left += " [" + string(m.filter) + "]"
	}
	if m.search != "" {
		left += "  Search: " + m.search
	}
	if m.status != "" {
		if strings.HasPrefix(m.status, "Error:") {
			left += "  " + m.errorStyle.Render(m.status)
		} else {
			left += "  " + m.status
		}
	}

	right := "q:quit  ?:help"

	padding := m.width - lipgloss.Width(left) - len(right) - 2
	if padding < 1 {
		padding = 1
	}
	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func (m *Model) renderFormDialog() string {
	label := m.formFields[m.formStep]
	progress := ""
	if len(m.formFields) > 1 {
		progress = fmt.Sprintf(" (%d/%d)", m.formStep+1, len(m.formFields))
	}
	dialog := m.dialogStyle.Render(
		m.formTitle + "\n\n" +
			label + progress + "\n" +
			m.textInput.View() + "\n\n" +
			m.mutedStyle.Render("Enter: confirm  Esc: cancel"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderConfirmDialog(question string) string {
	dialog := m.dialogStyle.Render(
		question + "\n\n" +
			m.mutedStyle.Render("y: yes  n: no"),
	)
	return m.centerDialog(dialog)
}

const helpText = `Help - Key Bindings

Navigation:
  j/↓    Move down
  k/↑    Move up
  Tab    Switch focus between lists/items
  1/2    Show tasks / reading list

Actions:
  a      Add task or book
  e      Edit selected item
  c      Toggle task completion
  d      Delete item (with confirm)
  f      Cycle All/Active/Completed
  x      Clear completed (with confirm)
  /      Search
  Esc    Clear search

General:
  ?      Show this help
  q      Quit

Press any key to close`

func (m *Model) centerDialog(dialog string) string {
	lines := strings.Split(dialog, "\n")
	dialogHeight := len(lines)
	dialogWidth := lipgloss.Width(dialog)

	topPad := max((m.height-dialogHeight)/2, 0)
	leftPad := max((m.width-dialogWidth)/2, 0)

	var b strings.Builder
	b.WriteString(strings.Repeat("\n", topPad))
	for _, line := range lines {
		b.WriteString(strings.Repeat(" ", leftPad))
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
