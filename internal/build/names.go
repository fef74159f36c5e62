package build

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GlobalName derives an IIFE global identifier from a package name:
// "@acme/date-picker" becomes "AcmeDatePicker". It returns "" when the
// name has no letters or digits.
func GlobalName(pkgName string) string {
	words := strings.FieldsFunc(pkgName, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	title := cases.Title(language.English)

	var sb strings.Builder
	for _, w := range words {
		sb.WriteString(title.String(w))
	}

	name := sb.String()
	if name != "" && unicode.IsDigit(rune(name[0])) {
		name = "_" + name
	}

	return name
}
