package codec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agusespa/codecrate/internal/utils"
)

const repositoryHeadingPrefix = "# Repository: "

var slugInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)

// Slugify lower-cases label and collapses anything outside [a-z0-9_-] into dashes.
func Slugify(label string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "repo"
	}
	return slug
}

// uniqueSlugs slugifies labels in order, suffixing -2, -3, ... on collision.
func uniqueSlugs(labels []string) []string {
	seen := make(map[string]bool)
	out := make([]string, len(labels))
	for i, label := range labels {
		base := Slugify(label)
		slug := base
		for n := 2; seen[slug]; n++ {
			slug = fmt.Sprintf("%s-%d", base, n)
		}
		seen[slug] = true
		out[i] = slug
	}
	return out
}

// RawSection is one repository's slice of a document.
type RawSection struct {
	Label string
	Slug  string
	Text  string
}

// SplitSections splits a document at "# Repository:" headings found outside fences.
// A document without such headings is a single section with an empty label.
func SplitSections(text string) []RawSection {
	lines, _ := utils.SplitLines(utils.NormalizeNewlines(text))

	var starts []int
	var labels []string
	outsideFences(lines, func(i int, line string) {
		if strings.HasPrefix(line, repositoryHeadingPrefix) {
			starts = append(starts, i)
			labels = append(labels, strings.TrimSpace(strings.TrimPrefix(line, repositoryHeadingPrefix)))
		}
	})

	if len(starts) == 0 {
		return []RawSection{{Label: "", Slug: "", Text: text}}
	}

	slugs := uniqueSlugs(labels)
	sections := make([]RawSection, len(starts))
	for i, start := range starts {
		end := len(lines)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		sections[i] = RawSection{
			Label: labels[i],
			Slug:  slugs[i],
			Text:  strings.Join(lines[start:end], "\n") + "\n",
		}
	}
	return sections
}
