package cli

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// errPromptCancelled is returned when the user leaves a prompt with Esc or
// Ctrl+C.
var errPromptCancelled = errors.New("prompt cancelled")

// prompter asks the user one question and returns the answer.
type prompter interface {
	Ask(question string) (string, error)
}

// promptModel is a bubbletea model holding a single text input.
type promptModel struct {
	question string
	input    textinput.Model
	done     bool
}

func newPromptModel(question string) promptModel {
	ti := textinput.New()
	ti.Placeholder = question
	ti.CharLimit = 256
	ti.Focus()
	return promptModel{question: question, input: ti}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s: %s\n", m.question, m.input.View())
}

// teaPrompter runs one bubbletea program per question.
type teaPrompter struct {
	opts []tea.ProgramOption
}

func (p teaPrompter) Ask(question string) (string, error) {
	result, err := tea.NewProgram(newPromptModel(question), p.opts...).Run()
	if err != nil {
		return "", err
	}
	final, ok := result.(promptModel)
	if !ok || !final.done {
		return "", errPromptCancelled
	}
	return final.input.Value(), nil
}
