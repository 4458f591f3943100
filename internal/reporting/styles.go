package reporting

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"stagectl/internal/orchestrator"
)

// styles renders result markers for one output. Colors are dropped
// automatically when the writer is not a terminal.
type styles struct {
	passed  lipgloss.Style
	failed  lipgloss.Style
	errored lipgloss.Style
	skipped lipgloss.Style
	header  lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		passed:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#007700", Dark: "#00D787"}),
		failed:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5F5F"}).Bold(true),
		errored: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#AF5F00", Dark: "#FFAF00"}).Bold(true),
		skipped: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#8A8A8A"}),
		header:  r.NewStyle().Bold(true),
		muted:   r.NewStyle().Faint(true),
	}
}

func (s styles) forResult(result orchestrator.Result) lipgloss.Style {
	switch result {
	case orchestrator.ResultPassed:
		return s.passed
	case orchestrator.ResultFailed:
		return s.failed
	case orchestrator.ResultError:
		return s.errored
	default:
		return s.skipped
	}
}

// resultSymbol returns an appropriate symbol for the result
func resultSymbol(result orchestrator.Result) string {
	switch result {
	case orchestrator.ResultPassed:
		return "✅"
	case orchestrator.ResultFailed:
		return "❌"
	case orchestrator.ResultSkipped:
		return "⏭️"
	case orchestrator.ResultError:
		return "💥"
	default:
		return "❓"
	}
}
