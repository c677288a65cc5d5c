package entity_resolver

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
)

//go:embed defaults/tables.yaml
var defaultTablesYAML []byte

// ---------------------------------------------------------------------------
// File format
// ---------------------------------------------------------------------------

// TablesFile is the on-disk (YAML) shape of the reference tables.
type TablesFile struct {
	Gazetteer        []string          `yaml:"gazetteer" json:"gazetteer"`
	Denylist         []string          `yaml:"denylist" json:"denylist"`
	LegalCodeMarkers []string          `yaml:"legal_code_markers" json:"legal_code_markers"`
	TitleWords       []string          `yaml:"title_words" json:"title_words"`
	Abbreviations    []string          `yaml:"abbreviations" json:"abbreviations"`
	LabelAliases     map[string]string `yaml:"label_aliases" json:"label_aliases"`
	Patterns         []PatternSpec     `yaml:"patterns" json:"patterns"`
}

// ---------------------------------------------------------------------------
// Tables
// ---------------------------------------------------------------------------

// Tables is an immutable, compiled snapshot of the reference data.  It is
// safe for concurrent use; reloads produce a new snapshot.
type Tables struct {
	gazetteer        []string
	gazetteerRunes   [][]rune
	gazetteerSet     map[string]struct{}
	denylist         map[string]struct{}
	legalCodeMarkers []string
	titleWords       []string
	abbreviations    map[string]struct{}
	labelAliases     map[string]string
	producer         *PatternProducer
	file             TablesFile
	version          string
}

// DefaultTables returns the tables compiled from the embedded defaults.
func DefaultTables() *Tables {
	t, err := ParseTables(defaultTablesYAML)
	if err != nil {
		panic("entity_resolver: embedded tables are invalid: " + err.Error())
	}
	return t
}

// DefaultTablesYAML returns a copy of the embedded default tables document.
func DefaultTablesYAML() []byte {
	return append([]byte(nil), defaultTablesYAML...)
}

// LoadTablesFile reads and compiles a tables YAML file.
func LoadTablesFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTableLoad, "failed to read tables file").WithDetail(path)
	}
	return ParseTables(data)
}

// LoadTables reads and compiles a tables YAML document from r.
func LoadTables(r io.Reader) (*Tables, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTableLoad, "failed to read tables")
	}
	return ParseTables(data)
}

// ParseTables decodes and compiles a tables YAML document.
func ParseTables(data []byte) (*Tables, error) {
	var f TablesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, errors.ErrCodeTableLoad, "failed to decode tables")
	}
	sum := sha256.Sum256(data)
	return CompileTables(f, hex.EncodeToString(sum[:])[:12])
}

// CompileTables builds a Tables snapshot from an in-memory TablesFile.
func CompileTables(f TablesFile, version string) (*Tables, error) {
	if len(f.Gazetteer) == 0 && len(f.Denylist) == 0 && len(f.Patterns) == 0 {
		return nil, errors.New(errors.ErrCodeTableLoad, "tables are empty")
	}

	t := &Tables{
		gazetteerSet:  make(map[string]struct{}, len(f.Gazetteer)),
		denylist:      make(map[string]struct{}, len(f.Denylist)),
		abbreviations: make(map[string]struct{}, len(f.Abbreviations)),
		labelAliases:  make(map[string]string, len(f.LabelAliases)),
		file:          f,
		version:       version,
	}

	for _, g := range f.Gazetteer {
		key := foldKey(g)
		if key == "" {
			continue
		}
		if _, dup := t.gazetteerSet[key]; dup {
			continue
		}
		t.gazetteerSet[key] = struct{}{}
		t.gazetteer = append(t.gazetteer, key)
		t.gazetteerRunes = append(t.gazetteerRunes, []rune(key))
	}
	for _, d := range f.Denylist {
		if key := foldKey(d); key != "" {
			t.denylist[key] = struct{}{}
		}
	}
	for _, m := range f.LegalCodeMarkers {
		// markers may carry significant surrounding spaces ("số "), so no trim
		if m = strings.ToLower(norm.NFC.String(m)); m != "" {
			t.legalCodeMarkers = append(t.legalCodeMarkers, m)
		}
	}
	for _, w := range f.TitleWords {
		if key := foldKey(w); key != "" {
			t.titleWords = append(t.titleWords, key)
		}
	}
	for _, a := range f.Abbreviations {
		if key := foldKey(a); key != "" {
			t.abbreviations[key] = struct{}{}
		}
	}
	for from, to := range f.LabelAliases {
		from = strings.ToUpper(strings.TrimSpace(from))
		to = strings.ToUpper(strings.TrimSpace(to))
		if from == "" || to == "" {
			return nil, errors.New(errors.ErrCodeTableLoad, "label alias must not be empty").WithDetail(from + "->" + to)
		}
		t.labelAliases[from] = to
	}

	producer, err := NewPatternProducer(f.Patterns)
	if err != nil {
		return nil, err
	}
	t.producer = producer
	return t, nil
}

// foldKey lowercases, trims and NFC-normalises a table entry.
func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// Version is a short content hash identifying this snapshot.
func (t *Tables) Version() string { return t.version }

// File returns the source document of this snapshot.
func (t *Tables) File() TablesFile { return t.file }

// Producer returns the pattern producer compiled from the tables' patterns.
func (t *Tables) Producer() *PatternProducer { return t.producer }

// IsGazetteer reports whether lower exactly equals a gazetteer entry.
func (t *Tables) IsGazetteer(lower string) bool {
	_, ok := t.gazetteerSet[lower]
	return ok
}

// ContainedPlace returns the first gazetteer entry, in table order, that
// occurs in lower as a proper substring, together with its rune index in
// lower.  Surrounding whitespace is ignored, so an entry equal to the trimmed
// text is not a proper substring.
func (t *Tables) ContainedPlace(lower []rune) (place []rune, idx int, ok bool) {
	lead, end := 0, len(lower)
	for lead < end && unicode.IsSpace(lower[lead]) {
		lead++
	}
	for end > lead && unicode.IsSpace(lower[end-1]) {
		end--
	}
	trimmed := lower[lead:end]
	s := string(trimmed)
	for i, g := range t.gazetteer {
		if g == s || !strings.Contains(s, g) {
			continue
		}
		place = t.gazetteerRunes[i]
		return place, indexRunes(trimmed, place, 0) + lead, true
	}
	return nil, -1, false
}

// IsDenied reports whether lower exactly equals a denylist entry.
func (t *Tables) IsDenied(lower string) bool {
	_, ok := t.denylist[lower]
	return ok
}

// HasLegalCodeMarker reports whether lower contains a legal-code marker.
func (t *Tables) HasLegalCodeMarker(lower string) bool {
	for _, m := range t.legalCodeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// EndsWithTitle reports whether lower ends with " <title>".
func (t *Tables) EndsWithTitle(lower string) bool {
	for _, w := range t.titleWords {
		if strings.HasSuffix(lower, " "+w) {
			return true
		}
	}
	return false
}

// IsAbbreviation reports whether word (any case) is a known abbreviation.
func (t *Tables) IsAbbreviation(word string) bool {
	_, ok := t.abbreviations[strings.ToLower(word)]
	return ok
}

// CanonicalLabel maps a tagger label to its canonical form.  Unknown labels
// are returned upper-cased and otherwise unchanged.
func (t *Tables) CanonicalLabel(label string) string {
	up := strings.ToUpper(strings.TrimSpace(label))
	if to, ok := t.labelAliases[up]; ok {
		return to
	}
	return up
}

// Stats returns entry counts for diagnostics.
func (t *Tables) Stats() map[string]int {
	return map[string]int{
		"gazetteer":          len(t.gazetteer),
		"denylist":           len(t.denylist),
		"legal_code_markers": len(t.legalCodeMarkers),
		"title_words":        len(t.titleWords),
		"abbreviations":      len(t.abbreviations),
		"label_aliases":      len(t.labelAliases),
		"patterns":           t.producer.Len(),
	}
}

// ---------------------------------------------------------------------------
// TableStore
// ---------------------------------------------------------------------------

// TableStore holds the current Tables snapshot and swaps it atomically.
// Readers keep whatever snapshot they loaded for the whole document.
type TableStore struct {
	current atomic.Pointer[Tables]
}

// NewTableStore returns a store seeded with t (DefaultTables when nil).
func NewTableStore(t *Tables) *TableStore {
	if t == nil {
		t = DefaultTables()
	}
	s := &TableStore{}
	s.current.Store(t)
	return s
}

// Load returns the current snapshot.
func (s *TableStore) Load() *Tables { return s.current.Load() }

// Swap installs t and returns the previous snapshot.  nil is ignored.
func (s *TableStore) Swap(t *Tables) *Tables {
	if t == nil {
		return s.current.Load()
	}
	return s.current.Swap(t)
}
