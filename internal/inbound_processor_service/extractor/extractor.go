// Package extractor pulls the destination phone number and the one-time code out of free-form
// SMS text. It is a heuristic: patterns are tried in a fixed order and the first candidate that
// survives validation wins.
package extractor

import (
	"regexp"
	"strings"

	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
)

// Result is the classification of one message text.
type Result struct {
	Number string
	Code   string
	Kind   domain.MessageKind
}

// Extractor classifies message text. Implementations must be safe for concurrent use.
type Extractor interface {
	Classify(text string) Result
}

const (
	minNumberDigits = 10
	maxNumberDigits = 15
)

// codeValue matches a 4-8 digit code or a dashed 3-4 + 3-4 digit code.
const codeValue = `(\d{3,4}-\d{3,4}|\d{4,8})`

// numberPattern is one number candidate pattern. group selects the submatch holding the
// number (0 is the whole match). tail, when set, is an optional trailing digit group that may
// belong to the text after the number.
type numberPattern struct {
	re    *regexp.Regexp
	group int
	tail  int
}

var (
	numberPatterns = []numberPattern{
		{re: regexp.MustCompile(`\+\d{1,4}[-.\s]?\d{1,14}([-.\s]?\d{1,13})?`), tail: 1},
		{re: regexp.MustCompile(`\b\d{10,15}\b`)},
		{re: regexp.MustCompile(`(?:\(?\+?\d{1,4}\)?[-.\s]?)?\(?\d{1,4}\)?[-.\s]?\d{1,4}[-.\s]?\d{1,9}`)},
		{re: regexp.MustCompile(`(?i)(?:tel|phone|mobile)[:=]?\s*([+\d][\d\s\-().]+)`), group: 1},
	}

	codePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:code|otp|verification|password)\s*(?:is|:|-)?\s*` + codeValue + `\b`),
		regexp.MustCompile(`(?i)\b` + codeValue + `\s+is\s+(?:your|the)\b`),
		regexp.MustCompile(`(?i)\byour\b.*?\bcode\b.*?\bis\b\s*` + codeValue + `\b`),
		regexp.MustCompile(`\b` + codeValue + `\b`),
	}

	nonNumberChars = regexp.MustCompile(`[^\d+]`)
)

// RegexExtractor is the default Extractor. It has no state.
type RegexExtractor struct{}

func New() *RegexExtractor {
	return &RegexExtractor{}
}

func (e *RegexExtractor) Classify(text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Kind: domain.KindUnmatched}
	}

	number, start, end := findNumber(text)
	// Digits of the number itself must never be taken for a code.
	masked := text
	if number != "" {
		masked = text[:start] + strings.Repeat(" ", end-start) + text[end:]
	}
	code := findCode(masked)

	result := Result{Number: number, Code: code}
	switch {
	case number == "":
		result.Kind = domain.KindUnmatched
	case code != "":
		result.Kind = domain.KindOTP
	default:
		result.Kind = domain.KindPlain
	}
	return result
}

// findNumber returns the normalised number and the byte span of the match it came from.
func findNumber(text string) (string, int, int) {
	for _, p := range numberPatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2*p.group], loc[2*p.group+1]
			if start < 0 {
				continue
			}
			// A separated trailing group is usually the code that follows the number; it only
			// joins the number when the number is incomplete without it.
			if p.tail > 0 {
				if tailStart := loc[2*p.tail]; tailStart > start && isSeparator(text[tailStart]) {
					if number, ok := normaliseNumber(text[start:tailStart]); ok {
						return number, start, tailStart
					}
				}
			}
			if number, ok := normaliseNumber(text[start:end]); ok {
				return number, start, end
			}
		}
	}
	return "", 0, 0
}

func isSeparator(b byte) bool {
	return b == '-' || b == '.' || b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == '\v'
}

// normaliseNumber keeps digits and '+', requires 10-15 digits and ensures a leading '+'.
// Numbers written without a country prefix are taken as already international.
func normaliseNumber(candidate string) (string, bool) {
	cleaned := nonNumberChars.ReplaceAllString(candidate, "")
	digits := strings.ReplaceAll(cleaned, "+", "")
	if len(digits) < minNumberDigits || len(digits) > maxNumberDigits {
		return "", false
	}
	return "+" + digits, true
}

func findCode(text string) string {
	for _, pattern := range codePatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return strings.ReplaceAll(m[1], "-", "")
		}
	}
	return ""
}
