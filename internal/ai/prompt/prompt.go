// Package prompt renders host samples into analysis requests for the backend.
// Template wording is data; callers pick a template by name.
package prompt

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/rcourtman/pulse-anomaly/internal/hostmetrics"
)

// DefaultTemplate is used when no template name is configured.
const DefaultTemplate = "plain"

// Template is a named prompt layout.
type Template struct {
	Name        string
	Description string
	tmpl        *template.Template
}

// Data is what templates are executed against.
type Data struct {
	Sample    hostmetrics.Sample
	Processes []hostmetrics.ProcessRecord
	// ProcessSummary is Processes pre-rendered as a bullet list, empty when there are none.
	ProcessSummary string
	Timestamp      string
}

var funcMap = template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"gb":  func(v float64) string { return fmt.Sprintf("%.2f", v) },
}

var (
	mu        sync.RWMutex
	templates = map[string]Template{}
)

func register(name, description, text string) {
	if err := Register(name, description, text); err != nil {
		panic(err)
	}
}

func init() {
	register("plain", "Concise English analysis request", plainText)
	register("plain-pl", "Concise Polish analysis request", plainPolishText)
	register("meme", "Polish two-part analysis, second part in the \"WINCEJ RDZENIUF\" meme style", memeText)
}

// Register parses text and makes it available under name, replacing any
// template already registered with that name.
func Register(name, description, text string) error {
	name = normalizeName(name)
	if name == "" {
		return fmt.Errorf("prompt template name is required")
	}
	tmpl, err := parseText(name, text)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	templates[name] = Template{Name: name, Description: description, tmpl: tmpl}
	return nil
}

// Lookup returns the template registered under name. An empty name selects DefaultTemplate.
func Lookup(name string) (Template, error) {
	name = normalizeName(name)
	if name == "" {
		name = DefaultTemplate
	}

	mu.RLock()
	t, ok := templates[name]
	mu.RUnlock()
	if !ok {
		return Template{}, fmt.Errorf("unknown prompt template %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return t, nil
}

// Names lists the registered template names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseText(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(funcMap).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %q: %w", name, err)
	}
	return tmpl, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Render builds the request text for sample and the optional process ranking.
func (t Template) Render(sample hostmetrics.Sample, processes []hostmetrics.ProcessRecord) (string, error) {
	if t.tmpl == nil {
		return "", fmt.Errorf("prompt template %q is not initialised", t.Name)
	}

	data := Data{
		Sample:         sample,
		Processes:      processes,
		ProcessSummary: FormatProcesses(processes),
		Timestamp:      sample.Timestamp.Format(time.RFC3339),
	}

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", t.Name, err)
	}
	return buf.String(), nil
}

// FormatProcesses renders a ranking as the bullet list embedded in prompts.
func FormatProcesses(processes []hostmetrics.ProcessRecord) string {
	if len(processes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Top processes (CPU):\n")
	for _, p := range processes {
		fmt.Fprintf(&b, "  - %s: %.1f%% CPU, %.1f%% MEM\n", p.Name, p.CPUPercent, p.MemoryPercent)
	}
	return b.String()
}
