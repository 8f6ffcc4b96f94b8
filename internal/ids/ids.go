// Package ids derives the deterministic identifiers and hashes a pack relies on.
package ids

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/agusespa/codecrate/internal/utils"
)

const (
	IDFormatVersion     = "sha1-8-upper:v1"
	MarkerNamespace     = "FUNC"
	MarkerFormatVersion = "v1"
)

var markerPattern = regexp.MustCompile(`FUNC:(?:v\d+:)?([0-9A-Fa-f]{8})\b`)

// LocationID identifies one definition occurrence by where it is, not what it contains.
func LocationID(path, qualname string, line int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s::%s::%d", path, qualname, line)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:8]
}

// BodyHash hashes definition source so that trailing whitespace and surrounding
// blank lines do not affect the result.
func BodyHash(source string) string {
	lines := strings.Split(utils.NormalizeNewlines(source), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\f\v")
	}
	norm := strings.TrimSpace(strings.Join(lines, "\n"))
	sum := sha1.Sum([]byte(norm))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// ContentHash is the lower-case sha256 of newline-normalised text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(utils.NormalizeNewlines(text)))
	return hex.EncodeToString(sum[:])
}

// MarkerToken renders the inline token that locates a stubbed definition.
func MarkerToken(localID string) string {
	return fmt.Sprintf("%s:%s:%s", MarkerNamespace, MarkerFormatVersion, localID)
}

// MarkerComment is the trailing comment a placeholder line carries.
func MarkerComment(localID string) string {
	return "# ↪ " + MarkerToken(localID)
}

// MarkerHit is one marker occurrence. Line is 0-based.
type MarkerHit struct {
	ID   string
	Line int
}

// ScanMarkers returns every marker occurrence in document order. Ids are upper-cased.
func ScanMarkers(lines []string) []MarkerHit {
	var hits []MarkerHit
	for i, line := range lines {
		if !strings.Contains(line, MarkerNamespace+":") {
			continue
		}
		for _, m := range markerPattern.FindAllStringSubmatch(line, -1) {
			hits = append(hits, MarkerHit{ID: strings.ToUpper(m[1]), Line: i})
		}
	}
	return hits
}

// MarkerIndex groups marker lines by id, ascending.
func MarkerIndex(lines []string) map[string][]int {
	index := make(map[string][]int)
	for _, hit := range ScanMarkers(lines) {
		index[hit.ID] = append(index[hit.ID], hit.Line)
	}
	return index
}

var (
	localIDPattern = regexp.MustCompile(`^[0-9A-F]{8}$`)
	sha256Pattern  = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

func IsLocalID(s string) bool { return localIDPattern.MatchString(s) }

func IsContentHash(s string) bool { return sha256Pattern.MatchString(s) }
