package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"audiocaption/internal/caption"
)

const (
	ruleWidth    = 80
	notAvailable = "N/A"
)

var (
	thinRule  = strings.Repeat("-", ruleWidth)
	thickRule = strings.Repeat("=", ruleWidth)
)

// Printer writes human-readable progress for a caption run. It implements
// caption.Sink.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) RequestStarted(endpoint, audioURL string) {
	p.printf("🔄 Sending request to %s\n", endpoint)
	p.printf("🎵 Audio URL: %s\n", audioURL)
	p.println("ℹ️  Note: Captioner model auto-generates captions (no prompt needed)")
	p.println(thinRule)
}

func (p *Printer) Succeeded(res caption.Result) {
	p.println("✅ Caption generated!")
	p.println(thinRule)
	p.println("📝 Audio Caption:")
	p.println(res.Caption)
	p.println(thinRule)

	if res.UsageReported {
		p.println("📊 Usage Stats:")
		p.println(usageTable(res.Usage))
	}
}

func (p *Printer) Failed(res caption.Result) {
	p.printf("❌ %s\n", res.Reason)
	if res.Kind == caption.KindUnexpectedFormat && len(res.Raw) > 0 {
		p.println(indentRaw(res.Raw))
	}
}

// Header prints the banner shown before any request is made.
func (p *Printer) Header(title, exampleURL string) {
	p.println(thickRule)
	p.println(title)
	p.println(thickRule)
	p.println("")
	p.println("📝 Example Test:")
	p.printf("   Audio: %s\n", exampleURL)
	p.println("   Mode: Auto-caption (no prompt needed)")
	p.println("")
}

// Source prints which audio URL will be used and, for the default, how to
// override it.
func (p *Printer) Source(custom bool, usage string) {
	if custom {
		p.println("Using custom audio URL from command line argument")
	} else {
		p.println("Using example audio (no command line args provided)")
		p.printf("Usage: %s\n", usage)
	}
	p.println("")
	p.println("⚠️  Note: Optimal audio length is ≤ 30 seconds for best caption quality")
	p.println("")
}

func (p *Printer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format, args...)
}

func (p *Printer) println(s string) {
	_, _ = fmt.Fprintln(p.w, s)
}

func usageTable(u caption.Usage) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Tokens", "Count"})
	tw.AppendRow(table.Row{"Prompt", formatTokens(u.PromptTokens)})
	tw.AppendRow(table.Row{"Completion", formatTokens(u.CompletionTokens)})
	tw.AppendRow(table.Row{"Total", formatTokens(u.TotalTokens)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func formatTokens(v *int) string {
	if v == nil {
		return notAvailable
	}
	return strconv.Itoa(*v)
}

func indentRaw(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
