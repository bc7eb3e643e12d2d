// Package scaffold writes a runnable contract server around generated methods.
package scaffold

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"golang.org/x/tools/imports"

	"github.com/i-dream-of-ai/sparkmango/pkg/abi"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

// DefaultRuntimeVersion is the sparkmango version generated servers require.
const DefaultRuntimeVersion = "v0.1.0"

// DefaultListen is the address generated servers listen on when LISTEN_ADDR is unset.
const DefaultListen = ":8000"

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Project describes one generated contract server.
type Project struct {
	// Name is the contract name.
	Name string
	// Module is the Go module path of the server. Derived from Name when empty.
	Module         string
	RuntimeVersion string
	Listen         string
	Analysis       *abi.Analysis
	Outcomes       []models.Outcome
}

func (p *Project) defaults() {
	if p.Module == "" {
		p.Module = "example.com/" + p.binary()
	}
	if p.RuntimeVersion == "" {
		p.RuntimeVersion = DefaultRuntimeVersion
	}
	if p.Listen == "" {
		p.Listen = DefaultListen
	}
}

func (p *Project) binary() string {
	return strings.ToLower(p.Name) + "-server"
}

// Write renders the project into dir and returns the written paths relative
// to dir. Only successful outcomes get a method file and a registry entry.
func Write(dir string, p Project) ([]string, error) {
	if p.Analysis == nil {
		return nil, fmt.Errorf("scaffold %s: no abi analysis", p.Name)
	}
	p.defaults()

	for _, sub := range []string{"methods", "docs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}

	var written []string
	write := func(rel string, data []byte) error {
		if err := os.WriteFile(filepath.Join(dir, rel), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
		written = append(written, rel)
		return nil
	}

	var abiDoc bytes.Buffer
	if err := json.Indent(&abiDoc, p.Analysis.ABI, "", "  "); err != nil {
		return nil, fmt.Errorf("format abi: %w", err)
	}
	abiDoc.WriteByte('\n')

	data := struct {
		Project
		Binary string
	}{p, p.binary()}

	gomod, err := render("go.mod.tmpl", data)
	if err != nil {
		return nil, err
	}
	mainGo, err := renderGo("main.go", "main.go.tmpl", data)
	if err != nil {
		return nil, err
	}
	for rel, b := range map[string][]byte{"go.mod": gomod, "main.go": mainGo, "abi.json": abiDoc.Bytes()} {
		if err := write(rel, b); err != nil {
			return nil, err
		}
	}

	var methods []string
	for _, o := range p.Outcomes {
		if !o.OK() {
			continue
		}
		src, err := renderGo(o.Function.Name+".go", "method.go.tmpl", o)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", o.Function.Name, err)
		}
		if err := write(filepath.Join("methods", o.Function.Name+".go"), src); err != nil {
			return nil, err
		}
		methods = append(methods, o.Function.Name)
	}

	registry, err := renderGo("registry.go", "registry.go.tmpl", struct{ Methods []string }{methods})
	if err != nil {
		return nil, err
	}
	if err := write(filepath.Join("methods", "registry.go"), registry); err != nil {
		return nil, err
	}

	readme, err := render("README.md.tmpl", docs(p))
	if err != nil {
		return nil, err
	}
	if err := write(filepath.Join("docs", "README.md"), readme); err != nil {
		return nil, err
	}
	return written, nil
}

type docData struct {
	Name           string
	Listen         string
	Functions      []abi.Function
	Skipped        []models.Outcome
	Events         []abi.Event
	StateVariables []abi.StateVariable
}

// docs lists generated functions in ABI order and everything else as skipped.
func docs(p Project) docData {
	ok := make(map[string]bool)
	d := docData{
		Name:           p.Name,
		Listen:         p.Listen,
		Events:         p.Analysis.Events,
		StateVariables: p.Analysis.StateVariables,
	}
	for _, o := range p.Outcomes {
		if o.OK() {
			ok[o.Function.Name] = true
		} else {
			d.Skipped = append(d.Skipped, o)
		}
	}
	for _, fn := range p.Analysis.Functions {
		if ok[fn.Name] {
			d.Functions = append(d.Functions, fn)
		}
	}
	return d
}

func render(name string, data any) ([]byte, error) {
	var b bytes.Buffer
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return b.Bytes(), nil
}

// renderGo renders a Go template, fixes its imports and gofmts it.
func renderGo(filename, name string, data any) ([]byte, error) {
	src, err := render(name, data)
	if err != nil {
		return nil, err
	}
	out, err := imports.Process(filename, src, &imports.Options{Comments: true, TabIndent: true, TabWidth: 8})
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", filename, err)
	}
	return out, nil
}
