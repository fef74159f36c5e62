// Package sourcemap builds version 3 source maps for generated modules.
//
// Mappings are kept in decoded form while code is being assembled so they
// can be relocated cheaply when a compiled fragment is embedded into a larger
// module; Encode produces the base64 VLQ representation consumed by bundlers
// and browsers.
package sourcemap

import (
	"encoding/base64"
	"encoding/json"
	"sort"
	"strings"
)

// Mapping links a generated position to an original position. All fields
// are zero-based.
type Mapping struct {
	GenLine int
	GenCol  int
	Source  int
	SrcLine int
	SrcCol  int
}

// Map is a source map under construction.
type Map struct {
	File           string
	Sources        []string
	SourcesContent []string
	Names          []string
	Mappings       []Mapping
}

// Empty returns a valid map with no sources and no mappings.
func Empty() *Map {
	return &Map{}
}

// New returns a map for a single source file.
func New(source, content string) *Map {
	return &Map{
		Sources:        []string{source},
		SourcesContent: []string{content},
	}
}

// Add appends a mapping.
func (m *Map) Add(genLine, genCol, srcLine, srcCol int) {
	m.Mappings = append(m.Mappings, Mapping{
		GenLine: genLine,
		GenCol:  genCol,
		SrcLine: srcLine,
		SrcCol:  srcCol,
	})
}

// Shift relocates every mapping by lines; mappings on the first generated
// line are additionally moved right by cols. It is used when the mapped code
// is embedded at (lines, cols) of a larger document.
func (m *Map) Shift(lines, cols int) {
	for i := range m.Mappings {
		if m.Mappings[i].GenLine == 0 {
			m.Mappings[i].GenCol += cols
		}
		m.Mappings[i].GenLine += lines
	}
}

// Clone returns a deep copy of m.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}

	out := &Map{File: m.File}
	out.Sources = append([]string(nil), m.Sources...)
	out.SourcesContent = append([]string(nil), m.SourcesContent...)
	out.Names = append([]string(nil), m.Names...)
	out.Mappings = append([]Mapping(nil), m.Mappings...)

	return out
}

type document struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// MarshalJSON renders the map as a version 3 source map document.
func (m *Map) MarshalJSON() ([]byte, error) {
	doc := document{
		Version:        3,
		File:           m.File,
		Sources:        nonNil(m.Sources),
		SourcesContent: m.SourcesContent,
		Names:          nonNil(m.Names),
		Mappings:       m.EncodeMappings(),
	}

	return json.Marshal(doc)
}

// Encode is MarshalJSON returning a string.
func (m *Map) Encode() (string, error) {
	b, err := m.MarshalJSON()
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// DataURL returns the map as a base64 data URL.
func (m *Map) DataURL() (string, error) {
	b, err := m.MarshalJSON()
	if err != nil {
		return "", err
	}

	return "data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// InlineComment returns a sourceMappingURL comment line embedding the map.
func (m *Map) InlineComment() (string, error) {
	url, err := m.DataURL()
	if err != nil {
		return "", err
	}

	return "//# sourceMappingURL=" + url, nil
}

// EncodeMappings renders the "mappings" field. Segments are emitted in
// generated-position order regardless of insertion order.
func (m *Map) EncodeMappings() string {
	if len(m.Mappings) == 0 {
		return ""
	}

	sorted := append([]Mapping(nil), m.Mappings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].GenLine != sorted[j].GenLine {
			return sorted[i].GenLine < sorted[j].GenLine
		}
		return sorted[i].GenCol < sorted[j].GenCol
	})

	var (
		sb          strings.Builder
		line        int
		prevGenCol  int
		prevSource  int
		prevSrcLine int
		prevSrcCol  int
		first       = true
	)

	for _, mp := range sorted {
		for line < mp.GenLine {
			sb.WriteByte(';')
			line++
			prevGenCol = 0
			first = true
		}
		if !first {
			sb.WriteByte(',')
		}
		first = false

		writeVLQ(&sb, mp.GenCol-prevGenCol)
		writeVLQ(&sb, mp.Source-prevSource)
		writeVLQ(&sb, mp.SrcLine-prevSrcLine)
		writeVLQ(&sb, mp.SrcCol-prevSrcCol)

		prevGenCol = mp.GenCol
		prevSource = mp.Source
		prevSrcLine = mp.SrcLine
		prevSrcCol = mp.SrcCol
	}

	return sb.String()
}

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

func writeVLQ(sb *strings.Builder, value int) {
	v := value << 1
	if value < 0 {
		v = (-value << 1) | 1
	}

	for {
		digit := v & 0x1f
		v >>= 5
		if v > 0 {
			digit |= 0x20
		}
		sb.WriteByte(base64Digits[digit])
		if v == 0 {
			return
		}
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
