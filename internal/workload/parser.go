// Package workload reads process sets and engine settings from YAML, JSON
// and HCL files.
package workload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/me/gosched/pkg/model"
	"gopkg.in/yaml.v3"
)

// Format identifies a workload file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatHCL  Format = "hcl"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("unsupported workload file extension %q (want .yaml, .yml, .json or .hcl)", filepath.Ext(path))
	}
}

// Parser decodes workload documents.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a Parser with the given logger.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger.With("component", "workload")}
}

// ParseFile reads and decodes the workload at path.
func (p *Parser) ParseFile(path string) (*model.Workload, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload: %w", err)
	}
	w, err := p.parse(data, format, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if w.Name == "" {
		w.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return w, nil
}

// Parse decodes data in the given format.
func (p *Parser) Parse(data []byte, format Format) (*model.Workload, error) {
	return p.parse(data, format, "workload."+string(format))
}

func (p *Parser) parse(data []byte, format Format, filename string) (*model.Workload, error) {
	var (
		w   *model.Workload
		err error
	)
	switch format {
	case FormatYAML, FormatJSON:
		w, err = decodeYAML(data)
	case FormatHCL:
		w, err = decodeHCL(data, filename)
	default:
		return nil, fmt.Errorf("unsupported workload format %q", format)
	}
	if err != nil {
		return nil, err
	}
	p.logger.Debug("workload parsed", "format", format, "name", w.Name, "processes", len(w.Processes))
	return w, nil
}

// decodeYAML handles YAML and JSON, which is a subset of YAML. Unknown keys
// are rejected so typos do not silently fall back to defaults.
func decodeYAML(data []byte) (*model.Workload, error) {
	var w model.Workload
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&w); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty workload document")
		}
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	return &w, nil
}

type hclWorkload struct {
	Name               string        `hcl:"name,optional"`
	Quantum            int64         `hcl:"quantum,optional"`
	MaxTicks           int           `hcl:"max_ticks,optional"`
	RetainAgedPriority bool          `hcl:"retain_aged_priority,optional"`
	Aging              *hclAging     `hcl:"aging,block"`
	Processes          []*hclProcess `hcl:"process,block"`
}

type hclAging struct {
	Disabled   bool   `hcl:"disabled,optional"`
	Interval   int64  `hcl:"interval,optional"`
	Step       int    `hcl:"step,optional"`
	Cap        int    `hcl:"cap,optional"`
	Expression string `hcl:"expression,optional"`
}

type hclProcess struct {
	Label    string `hcl:"name,label"`
	ID       int    `hcl:"id,optional"`
	Arrival  int64  `hcl:"arrival"`
	Burst    int64  `hcl:"burst"`
	Priority int    `hcl:"priority"`
}

// decodeHCL decodes process "NAME" { ... } blocks. A block without an id
// takes its 1-based position in the file.
func decodeHCL(data []byte, filename string) (*model.Workload, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %w", diags)
	}
	var raw hclWorkload
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %w", diags)
	}

	w := &model.Workload{
		Name:               raw.Name,
		Quantum:            raw.Quantum,
		MaxTicks:           raw.MaxTicks,
		RetainAgedPriority: raw.RetainAgedPriority,
	}
	if raw.Aging != nil {
		w.Aging = model.AgingSpec{
			Disabled:   raw.Aging.Disabled,
			Interval:   raw.Aging.Interval,
			Step:       raw.Aging.Step,
			Cap:        raw.Aging.Cap,
			Expression: raw.Aging.Expression,
		}
	}
	for i, proc := range raw.Processes {
		id := model.ProcessID(proc.ID)
		if id == 0 {
			id = model.ProcessID(i + 1)
		}
		w.Processes = append(w.Processes, model.ProcessSpec{
			ID:       id,
			Name:     proc.Label,
			Arrival:  proc.Arrival,
			Burst:    proc.Burst,
			Priority: proc.Priority,
		})
	}
	return w, nil
}
