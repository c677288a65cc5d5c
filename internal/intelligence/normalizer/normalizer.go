// Package normalizer derives canonical values for resolved entities:
// decision numbers, issue dates and signer names.
package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

const decisionCode = `(qđ\s*-?\s*bgdđt|nđ\s*-?\s*cp)`

var (
	numberPrefixRe = regexp.MustCompile(`(^|\s)(?:số|so)(?:[\s.:,\-]+|$)`)
	spaceRunRe     = regexp.MustCompile(`\s+`)
	dashSpaceRe    = regexp.MustCompile(`\s*-\s*`)

	numYearCodeRe = regexp.MustCompile(`(\d{1,6})\s*(?:/|\s)\s*(\d{4})\s*/?\s*` + decisionCode)
	numSlashCode  = regexp.MustCompile(`(\d{1,6})\s*/\s*` + decisionCode)
	numCodeRe     = regexp.MustCompile(`(\d{1,6})\s*` + decisionCode)

	issueDateRe = regexp.MustCompile(`ngày\s*(\d{1,2})\s*tháng\s*(\d{1,2})\s*năm\s*(\d{4})`)
	paddedDate  = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

// DecisionID rewrites a decision number to NUM/CODE or NUM/YEAR/CODE, e.g.
// "số. 2750 qđ-bgdđt" becomes "2750/QĐ-BGDĐT" and "số 37 2025 nđ-cp"
// becomes "37/2025/NĐ-CP".  Unrecognised input is returned trimmed and
// upper-cased.
func DecisionID(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	s := strings.ToLower(trimmed)
	s = numberPrefixRe.ReplaceAllString(s, "$1")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = dashSpaceRe.ReplaceAllString(s, "-")

	if m := numYearCodeRe.FindStringSubmatch(s); m != nil {
		return m[1] + "/" + m[2] + "/" + canonicalCode(m[3])
	}
	if m := numSlashCode.FindStringSubmatch(s); m != nil {
		return m[1] + "/" + canonicalCode(m[2])
	}
	if m := numCodeRe.FindStringSubmatch(s); m != nil {
		return m[1] + "/" + canonicalCode(m[2])
	}
	return strings.ToUpper(trimmed)
}

func canonicalCode(code string) string {
	code = strings.ReplaceAll(code, " ", "")
	code = strings.ReplaceAll(code, "qđbgdđt", "qđ-bgdđt")
	code = strings.ReplaceAll(code, "nđcp", "nđ-cp")
	return strings.ToUpper(code)
}

// IssueDateISO parses "ngày D tháng M năm YYYY" into YYYY-MM-DD.  It returns
// the empty string when the phrase is not found.
func IssueDateISO(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return ""
	}
	s = strings.NewReplacer(",", " ", ".", " ").Replace(s)
	s = spaceRunRe.ReplaceAllString(s, " ")
	m := issueDateRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	d, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	return fmt.Sprintf("%s-%02d-%02d", m[3], mo, d)
}

// PersonName capitalises each word of name and lower-cases the rest.
func PersonName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		rs := []rune(strings.ToLower(w))
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

// Date converts D/M/YYYY or YYYY-MM-DD into DD/MM/YYYY.  Already padded
// dates and unparseable input are returned trimmed.
func Date(s string) string {
	s = strings.TrimSpace(s)
	if paddedDate.MatchString(s) {
		return s
	}
	if t, err := time.Parse("2/1/2006", s); err == nil {
		return t.Format("02/01/2006")
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("02/01/2006")
	}
	return s
}

// Normalizer fills Entity.Normalized and Entity.DateISO in place.
type Normalizer struct{}

// New returns a Normalizer.
func New() *Normalizer { return &Normalizer{} }

// NormalizeEntities annotates ents according to their label.  Labels without
// a canonical form are left untouched.
func (n *Normalizer) NormalizeEntities(ents []entity.Entity) {
	for i := range ents {
		e := &ents[i]
		switch e.Label {
		case entity.LabelDecisionID:
			e.Normalized = DecisionID(e.Text)
		case entity.LabelIssueDate:
			e.DateISO = IssueDateISO(e.Text)
		case entity.LabelPerson:
			e.Normalized = PersonName(e.Text)
		}
	}
}
