package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// BroadcastSummary holds the end-of-session numbers shown when a host or
// viewer disconnects.
type BroadcastSummary struct {
	Room     string
	Role     string
	Peers    int
	Received string
	Duration string
}

func BroadcastSummaryView(summary BroadcastSummary) string {
	headers := []string{"Metric", "Value"}
	rows := [][]string{
		{"Broadcast", summary.Room},
		{"Role", summary.Role},
		{"Peers", fmt.Sprintf("%d", summary.Peers)},
		{"Received", summary.Received},
		{"Duration", summary.Duration},
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func RenderBroadcastSummary(summary BroadcastSummary) {
	fmt.Println(BroadcastSummaryView(summary))
}

// BroadcastInfo is the banner shown once a room is created or joined.
type BroadcastInfo struct {
	Room   string
	IsHost bool
}

func (b BroadcastInfo) View() string {
	role := "Viewing"
	icon := IconWatch
	if b.IsHost {
		role = "Hosting"
		icon = IconCamera
	}

	content := fmt.Sprintf("%s %s broadcast\n\n%s Room: %s",
		icon, role,
		IconRoom, BoldStyle.Foreground(Primary).Render(b.Room),
	)

	return SuccessBoxStyle.Render(content)
}

func RenderBroadcastInfo(info BroadcastInfo) {
	fmt.Println(info.View())
}

// FormatSize renders a byte count in human units.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
