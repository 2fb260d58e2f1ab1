package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// PlainFormatter formats output as tab-separated sections.
// It produces plain text output suitable for scripting and piping.
// No colors or styling are applied.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	verdict := "healthy"
	if !r.Healthy {
		verdict = "degraded"
	}
	fmt.Fprintf(w, "%s: %s\n", r.Command, verdict)

	if err := f.writeStages(w, r.Stages); err != nil {
		return err
	}
	if err := f.writeLinks(w, r.Links); err != nil {
		return err
	}
	if err := f.writeDisks(w, r.Disks); err != nil {
		return err
	}
	if err := f.writeSmart(w, r.Smart); err != nil {
		return err
	}
	if r.Backup != nil {
		fmt.Fprintf(w, "\nlast backup: %s (%s) copied=%d linked=%d size=%s\n",
			r.Backup.Generation, r.Backup.Status,
			r.Backup.FilesCopied, r.Backup.FilesLinked, r.Backup.CopiedHuman)
		if r.Backup.Error != "" {
			fmt.Fprintf(w, "backup error: %s\n", r.Backup.Error)
		}
	}
	if err := f.writeGenerations(w, r.Generations); err != nil {
		return err
	}
	if r.Perf != nil {
		fmt.Fprintf(w, "\nperf %s: write %.1f MB/s, read %.1f MB/s, latency %.2f ms (%s tested)\n",
			r.Perf.Path, r.Perf.WriteMBps, r.Perf.ReadMBps, r.Perf.LatencyMs, r.Perf.TestedHuman)
	}

	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	for _, errText := range r.Errors {
		fmt.Fprintf(w, "error: %s\n", errText)
	}
	return nil
}

func (f *PlainFormatter) writeStages(w *bytes.Buffer, stages []StageStatus) error {
	if len(stages) == 0 {
		return nil
	}
	w.WriteString("\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTATUS\tDETAIL")
	for _, stage := range stages {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", stage.Name, stage.Status, stage.Detail)
	}
	return tw.Flush()
}

func (f *PlainFormatter) writeLinks(w *bytes.Buffer, entries []LinkStatus) error {
	if len(entries) == 0 {
		return nil
	}
	w.WriteString("\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINK\tSTATE\tTARGET\tDETAIL")
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", entry.Path, entry.State, entry.Target, entry.Detail)
	}
	return tw.Flush()
}

func (f *PlainFormatter) writeDisks(w *bytes.Buffer, disks []DiskStatus) error {
	if len(disks) == 0 {
		return nil
	}
	w.WriteString("\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tUSED\tINODES\tLEVEL")
	for _, disk := range disks {
		fmt.Fprintf(tw, "%s\t%s/%s (%.1f%%)\t%.1f%%\t%s\n",
			disk.Path, disk.UsedHuman, disk.TotalHuman,
			disk.UsedPercent, disk.InodePercent, disk.Level)
	}
	return tw.Flush()
}

func (f *PlainFormatter) writeSmart(w *bytes.Buffer, devices []SmartStatus) error {
	if len(devices) == 0 {
		return nil
	}
	w.WriteString("\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tSMART\tDETAIL")
	for _, device := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", device.Device, device.Level, device.Detail)
	}
	return tw.Flush()
}

func (f *PlainFormatter) writeGenerations(w *bytes.Buffer, generations []GenerationStatus) error {
	if len(generations) == 0 {
		return nil
	}
	w.WriteString("\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GENERATION\tSTATUS\tCOPIED\tLINKED\tSIZE")
	for _, generation := range generations {
		name := generation.Generation
		if generation.Latest {
			name += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			name, generation.Status, generation.FilesCopied,
			generation.FilesLinked, generation.CopiedHuman)
	}
	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
