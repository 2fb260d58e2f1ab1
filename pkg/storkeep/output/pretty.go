package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
// It produces a visually appealing output suitable for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	if len(r.Stages) > 0 {
		w.WriteString(f.formatStages(r.Stages))
	}
	if len(r.Links) > 0 {
		w.WriteString(f.formatLinks(r.Links))
	}
	if len(r.Disks) > 0 {
		w.WriteString(f.formatDisks(r.Disks))
	}
	if len(r.Smart) > 0 {
		w.WriteString(f.formatSmart(r.Smart))
	}
	if r.Backup != nil {
		w.WriteString(f.formatBackup(r.Backup))
	}
	if len(r.Generations) > 0 {
		w.WriteString(f.formatGenerations(r.Generations))
	}
	if r.Perf != nil {
		w.WriteString(f.formatPerf(r.Perf))
	}
	if len(r.Warnings) > 0 {
		w.WriteString(f.formatNotices(WarningBox, WarningStyle, r.Warnings))
	}
	if len(r.Errors) > 0 {
		w.WriteString(f.formatNotices(ErrorBox, ErrorStyle, r.Errors))
	}
	w.WriteString("\n")
	return nil
}

// formatHeader builds the header box with the command name and verdict.
func (f *PrettyFormatter) formatHeader(r *Report) string {
	title := TitleStyle.Render("storkeep " + r.Command)

	verdict := SuccessStyle.Bold(true).Render("HEALTHY")
	if !r.Healthy {
		verdict = ErrorStyle.Bold(true).Render("DEGRADED")
	}

	when := MutedStyle.Render(r.GeneratedAt.Format("2006-01-02 15:04:05"))
	content := fmt.Sprintf("%s  %s\n%s %s", title, verdict, LabelStyle.Render("Generated:"), when)
	return HeaderBox.Render(content)
}

func (f *PrettyFormatter) formatStages(stages []StageStatus) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("Stages"))
	sb.WriteString("\n")
	width := maxWidth(stages, func(s StageStatus) string { return s.Name })
	for _, stage := range stages {
		status := levelStyle(stage.Status).Render(strings.ToUpper(stage.Status))
		line := fmt.Sprintf("  %s  %s", padRight(stage.Name, width), status)
		if stage.Detail != "" {
			line += "  " + MutedStyle.Render(stage.Detail)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (f *PrettyFormatter) formatLinks(entries []LinkStatus) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("Links"))
	sb.WriteString("\n")
	width := maxWidth(entries, func(e LinkStatus) string { return e.Path })
	for _, entry := range entries {
		state := levelStyle(stateLevel(entry.State)).Render(entry.State)
		line := fmt.Sprintf("  %s  %s  %s %s",
			padRight(entry.Path, width), state,
			MutedStyle.Render("->"), ValueStyle.Render(entry.Target))
		if entry.Detail != "" {
			line += "  " + MutedStyle.Render("("+entry.Detail+")")
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (f *PrettyFormatter) formatDisks(disks []DiskStatus) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("Disk usage"))
	sb.WriteString("\n")
	width := maxWidth(disks, func(d DiskStatus) string { return d.Path })
	for _, disk := range disks {
		level := levelStyle(disk.Level).Render(disk.Level)
		line := fmt.Sprintf("  %s  %s  %s of %s (%.1f%%), inodes %.1f%%",
			padRight(disk.Path, width), level,
			disk.UsedHuman, disk.TotalHuman, disk.UsedPercent, disk.InodePercent)
		if disk.Detail != "" {
			line += "  " + MutedStyle.Render(disk.Detail)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (f *PrettyFormatter) formatSmart(devices []SmartStatus) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("SMART"))
	sb.WriteString("\n")
	width := maxWidth(devices, func(d SmartStatus) string { return d.Device })
	for _, device := range devices {
		level := levelStyle(device.Level).Render(device.Level)
		line := fmt.Sprintf("  %s  %s", padRight(device.Device, width), level)
		if device.Detail != "" {
			line += "  " + MutedStyle.Render(device.Detail)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (f *PrettyFormatter) formatBackup(backup *BackupStatus) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("Last backup"))
	sb.WriteString("\n")
	status := levelStyle(backup.Status).Render(backup.Status)
	sb.WriteString(fmt.Sprintf("  %s  %s\n", ValueStyle.Render(backup.Generation), status))
	sb.WriteString(fmt.Sprintf("  %s %s copied, %d files copied, %d linked",
		LabelStyle.Render("Stats:"), backup.CopiedHuman,
		backup.FilesCopied, backup.FilesLinked))
	if backup.Duration != "" {
		sb.WriteString(MutedStyle.Render(" in " + backup.Duration))
	}
	sb.WriteString("\n")
	if backup.Error != "" {
		sb.WriteString("  " + ErrorStyle.Render(backup.Error))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (f *PrettyFormatter) formatGenerations(generations []GenerationStatus) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("Generations"))
	sb.WriteString("\n")
	width := maxWidth(generations, func(g GenerationStatus) string { return g.Generation })
	sb.WriteString(fmt.Sprintf("  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("NAME", width)),
		TableHeaderStyle.Render(padRight("STATUS", 9)),
		TableHeaderStyle.Render("COPIED/LINKED")))
	for _, generation := range generations {
		name := padRight(generation.Generation, width)
		if generation.Latest {
			name = SuccessStyle.Render(name)
		} else {
			name = ValueStyle.Render(name)
		}
		status := levelStyle(generation.Status).Render(padRight(generation.Status, 9))
		line := fmt.Sprintf("  %s  %s  %d/%d (%s)",
			name, status, generation.FilesCopied, generation.FilesLinked,
			generation.CopiedHuman)
		if generation.Latest {
			line += "  " + MutedStyle.Render("latest")
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (f *PrettyFormatter) formatPerf(perf *PerfStatus) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("Throughput"))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  %s %s\n", LabelStyle.Render("Path:"), ValueStyle.Render(perf.Path)))
	sb.WriteString(fmt.Sprintf("  %s %.1f MB/s write, %.1f MB/s read, %.2f ms latency (%s tested)\n",
		LabelStyle.Render("Result:"), perf.WriteMBps, perf.ReadMBps, perf.LatencyMs, perf.TestedHuman))
	sb.WriteString("\n")
	return sb.String()
}

func (f *PrettyFormatter) formatNotices(box, style lipgloss.Style, notices []string) string {
	lines := make([]string, len(notices))
	for i, notice := range notices {
		lines[i] = style.Render(notice)
	}
	return box.Render(strings.Join(lines, "\n")) + "\n"
}

// stateLevel maps a link state to a severity level for coloring.
func stateLevel(state string) string {
	switch state {
	case "OK":
		return "OK"
	case "ABSENT":
		return "WARNING"
	default:
		return "CRITICAL"
	}
}

// maxWidth returns the longest rendered width of a field across rows.
func maxWidth[T any](rows []T, field func(T) string) int {
	width := 0
	for _, row := range rows {
		if l := len(field(row)); l > width {
			width = l
		}
	}
	return width
}

// padRight pads s with spaces to the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
