package summarizer

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders a Summary as a Markdown report.
type MarkdownFormatter struct {
	translate func(string) string
	version   string
}

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator translates headings and labels.
func WithTranslator(fn func(string) string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.translate = fn
	}
}

// WithVersion adds the tool version to the footer.
func WithVersion(version string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.version = version
	}
}

// NewMarkdownFormatter creates a formatter.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{
		translate: func(s string) string { return s },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	t := f.translate
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t("Playback Summary"))

	fmt.Fprintf(&b, "## %s\n\n", t("Source"))
	fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", t("Item"), t("Value"))
	row(&b, t("File"), s.Source.Path)
	row(&b, t("Tracks"), fmt.Sprintf("%d", len(s.Source.Tracks)))
	b.WriteString("\n")

	if len(s.Source.Tracks) > 0 {
		fmt.Fprintf(&b, "| # | MIME | %s | %s |\n|---|---|---|---|\n", t("Size"), t("Duration"))
		for _, tr := range s.Source.Tracks {
			size := "-"
			if tr.Width > 0 && tr.Height > 0 {
				size = fmt.Sprintf("%dx%d", tr.Width, tr.Height)
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", tr.Index, tr.MIME, size, formatDuration(tr.DurationUs))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## %s\n\n", t("Video Track"))
	fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", t("Item"), t("Value"))
	row(&b, t("Track"), fmt.Sprintf("%d", s.Track.Index))
	row(&b, "MIME", s.Track.MIME)
	row(&b, t("Size"), fmt.Sprintf("%dx%d", s.Track.Width, s.Track.Height))
	row(&b, t("Duration"), formatDuration(s.Track.DurationUs))
	if s.Track.Color != "" {
		row(&b, t("Color"), s.Track.Color)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## %s\n\n", t("Settings"))
	fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", t("Item"), t("Value"))
	row(&b, t("Decoder"), s.Settings.Backend)
	row(&b, t("End of Stream"), s.Settings.EOSPolicy)
	row(&b, t("Render Mode"), s.Settings.RenderMode)
	loops := t("Forever")
	if s.Settings.Loops > 0 {
		loops = fmt.Sprintf("%d", s.Settings.Loops)
	}
	row(&b, t("Loops"), loops)
	if s.Settings.Output != "" {
		row(&b, t("Output"), s.Settings.Output)
	}
	b.WriteString("\n")

	p := s.Playback
	fmt.Fprintf(&b, "## %s\n\n", t("Playback"))
	fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", t("Item"), t("Value"))
	row(&b, t("State"), p.State)
	row(&b, t("Elapsed"), fmt.Sprintf("%d ms", p.ElapsedMs))
	row(&b, t("Loops Completed"), fmt.Sprintf("%d", p.LoopsCompleted))
	row(&b, t("Samples Queued"), fmt.Sprintf("%d", p.SamplesQueued))
	row(&b, t("Frames Rendered"), fmt.Sprintf("%d", p.FramesRendered))
	row(&b, t("Frames Dropped"), fmt.Sprintf("%d", p.FramesDropped))
	if p.FramesWritten > 0 {
		row(&b, t("Frames Written"), fmt.Sprintf("%d", p.FramesWritten))
	}
	row(&b, t("Format Changes"), fmt.Sprintf("%d", p.FormatChanges))
	row(&b, t("Errors"), fmt.Sprintf("%d", p.Errors))
	if p.LastError != "" {
		row(&b, t("Last Error"), p.LastError)
	}
	if p.ElapsedMs > 0 && p.FramesRendered > 0 {
		row(&b, t("Average FPS"), fmt.Sprintf("%.1f", float64(p.FramesRendered)*1000/float64(p.ElapsedMs)))
	}
	b.WriteString("\n")

	b.WriteString("---\n\n")
	footer := fmt.Sprintf("%s %s", t("Generated at"), s.GeneratedAt.Format("2006-01-02 15:04:05"))
	if f.version != "" {
		footer += fmt.Sprintf(" (pixelvideo %s)", f.version)
	}
	b.WriteString(footer + "\n")

	return b.String()
}

func row(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "| %s | %s |\n", label, strings.ReplaceAll(value, "|", "\\|"))
}

// formatDuration renders microseconds as seconds with millisecond precision.
func formatDuration(us int64) string {
	if us <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.3f s", float64(us)/1e6)
}
