package core

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed formats.yaml
var formatsYAML []byte

// FormatSignature describes how to recognize one report layout.
// Signatures are immutable once the catalog is loaded.
type FormatSignature struct {
	Format           Format
	Description      string
	Required         []string
	Optional         []string
	Patterns         map[string]*regexp.Regexp
	FilenameKeywords []string
	MinConfidence    float64
	IDColumn         string
	PriceColumns     []string
}

// signatureDoc is the YAML shape of a catalog entry.
type signatureDoc struct {
	Format           string            `yaml:"format"`
	Description      string            `yaml:"description"`
	MinConfidence    float64           `yaml:"min_confidence"`
	IDColumn         string            `yaml:"id_column"`
	PriceColumns     []string          `yaml:"price_columns"`
	FilenameKeywords []string          `yaml:"filename_keywords"`
	Required         []string          `yaml:"required"`
	Optional         []string          `yaml:"optional"`
	Patterns         map[string]string `yaml:"patterns"`
}

type catalogDoc struct {
	Formats []signatureDoc `yaml:"formats"`
}

// catalog holds signatures in declaration order. Set once at init.
var catalog = mustLoadCatalog(formatsYAML)

// loadCatalog parses a YAML catalog. Column names and keywords are lowercased.
func loadCatalog(data []byte) ([]FormatSignature, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse format catalog: %w", err)
	}
	if len(doc.Formats) == 0 {
		return nil, fmt.Errorf("format catalog is empty")
	}

	seen := make(map[Format]bool, len(doc.Formats))
	sigs := make([]FormatSignature, 0, len(doc.Formats))
	for _, d := range doc.Formats {
		f, ok := ParseFormat(d.Format)
		if !ok || f == FormatUnknown {
			return nil, fmt.Errorf("format catalog: unknown format %q", d.Format)
		}
		if seen[f] {
			return nil, fmt.Errorf("format catalog: %s declared twice", f)
		}
		seen[f] = true

		if len(d.Required) == 0 {
			return nil, fmt.Errorf("format catalog: %s has no required columns", f)
		}
		if d.MinConfidence < 0 || d.MinConfidence > 1 {
			return nil, fmt.Errorf("format catalog: %s min_confidence %v outside [0,1]", f, d.MinConfidence)
		}

		sig := FormatSignature{
			Format:           f,
			Description:      d.Description,
			Required:         lowerAll(d.Required),
			Optional:         lowerAll(d.Optional),
			FilenameKeywords: lowerAll(d.FilenameKeywords),
			MinConfidence:    d.MinConfidence,
			IDColumn:         strings.ToLower(strings.TrimSpace(d.IDColumn)),
			PriceColumns:     lowerAll(d.PriceColumns),
			Patterns:         make(map[string]*regexp.Regexp, len(d.Patterns)),
		}
		for col, expr := range d.Patterns {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("format catalog: %s pattern for %q: %w", f, col, err)
			}
			sig.Patterns[strings.ToLower(strings.TrimSpace(col))] = re
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// mustLoadCatalog panics on an invalid embedded catalog.
func mustLoadCatalog(data []byte) []FormatSignature {
	sigs, err := loadCatalog(data)
	if err != nil {
		panic(err)
	}
	return sigs
}

// Signatures returns the catalog in declaration order.
func Signatures() []FormatSignature {
	out := make([]FormatSignature, len(catalog))
	copy(out, catalog)
	return out
}

// SignatureFor returns the signature of a known format.
// Returns false for FormatUnknown or formats missing from the catalog.
func SignatureFor(f Format) (FormatSignature, bool) {
	for _, sig := range catalog {
		if sig.Format == f {
			return sig, true
		}
	}
	return FormatSignature{}, false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
