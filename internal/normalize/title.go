package normalize

import (
	"regexp"
	"strings"
)

// minTitleRunes is the shortest title accepted after cleaning.
const minTitleRunes = 3

// Fragments stripped out of titles before validation: reading-time
// labels, bracketed status tags, embedded timestamps, and badge words
// that list pages glue onto headlines.
var titleStripPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d+\s*min(ute)?s?\s+read\b`),
	regexp.MustCompile(`약?\s*\d+\s*분\s*(소요|읽기)`),
	regexp.MustCompile(`^\[[^\]]{1,20}\]\s*`),
	regexp.MustCompile(`\d{4}[-./]\d{1,2}[-./]\d{1,2}\.?$`),
	regexp.MustCompile(`\d+\s*(분|시간|일|주)\s*전$`),
	regexp.MustCompile(`(?i)\b(new|hot|update[d]?)\s*$`),
	regexp.MustCompile(`^(NEW|HOT|\[?공지\]?)\s+`),
	regexp.MustCompile(`·\s*조회수?\s*[\d,.]+[만천]?\s*$`),
}

// titleBlacklist holds exact lowercase matches for UI boilerplate that
// is never an article title.
var titleBlacklist = map[string]bool{
	"home":          true,
	"login":         true,
	"log in":        true,
	"sign in":       true,
	"sign up":       true,
	"register":      true,
	"subscribe":     true,
	"menu":          true,
	"search":        true,
	"share":         true,
	"more":          true,
	"read more":     true,
	"view more":     true,
	"see all":       true,
	"next":          true,
	"prev":          true,
	"previous":      true,
	"untitled":      true,
	"no title":      true,
	"로그인":           true,
	"회원가입":          true,
	"구독":            true,
	"구독하기":          true,
	"메뉴":            true,
	"검색":            true,
	"공유":            true,
	"공유하기":          true,
	"더보기":           true,
	"전체보기":          true,
	"이전":            true,
	"다음":            true,
	"목록":            true,
	"홈":             true,
}

var (
	// wordCharPattern requires at least one letter in a supported script
	// (Hangul or Latin); a title of digits and punctuation is a counter,
	// not a headline.
	wordCharPattern = regexp.MustCompile(`[A-Za-z\x{AC00}-\x{D7A3}]`)
	// countLabelPattern matches "N items" / "N건" / "N개" style labels.
	countLabelPattern = regexp.MustCompile(`^\d+\s*(items?|results?|건|개|페이지)$`)
	// whitespacePattern collapses runs of whitespace.
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// ProcessTitle strips boilerplate fragments from an extracted title and
// validates the remainder. It returns ok=false for non-content strings
// (menu labels, counters, bare numbers); callers drop such items rather
// than treating them as errors.
func ProcessTitle(raw string) (string, bool) {
	title := strings.TrimSpace(raw)

	for _, p := range titleStripPatterns {
		title = p.ReplaceAllString(title, "")
	}

	title = whitespacePattern.ReplaceAllString(title, " ")
	title = strings.Trim(title, " -–|·•")

	if !validTitle(title) {
		return "", false
	}

	return title, true
}

// validTitle applies the boilerplate blacklist and the minimum-content
// heuristic.
func validTitle(title string) bool {
	if len([]rune(title)) < minTitleRunes {
		return false
	}

	lower := strings.ToLower(title)
	if titleBlacklist[lower] {
		return false
	}

	if countLabelPattern.MatchString(lower) {
		return false
	}

	return wordCharPattern.MatchString(title)
}
