package util

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var reSpaces = regexp.MustCompile(`\s+`)

func CollapseSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

func TitleCase(input string) string {
	return cases.Title(language.English).String(input)
}

func AlnumLower(input string) string {
	out := strings.Builder{}
	for _, r := range strings.ToLower(input) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func StringPtr(s string) *string { return &s }

func FloatPtr(f float64) *float64 { return &f }
