package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/himanishpuri/HearBird/pkg/hearbird/enrich"
	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
)

type suggestFunc func(scientificName string) (model.ReferenceEntry, bool)

// printResults renders the primary match followed by the alternates.
func printResults(w io.Writer, results []model.EnrichedResult, suggest suggestFunc) {
	primary, alternates := enrich.Split(results)
	if primary == nil {
		fmt.Fprintln(w, "\n🤷 No birds detected. Try a longer or clearer recording.")
		return
	}

	fmt.Fprintf(w, "\n🐦 %s (%s)\n", primary.CommonName, primary.ScientificName)
	fmt.Fprintf(w, "   Match: %d%% | Heard at %.1fs-%.1fs\n", primary.MatchPercentage, primary.Start, primary.End)
	fmt.Fprintf(w, "   %s\n", wrap(primary.Description, 72, "   "))
	if primary.WikiLink != nil {
		fmt.Fprintf(w, "   📖 %s\n", *primary.WikiLink)
	}
	if !primary.Catalogued && suggest != nil {
		if e, ok := suggest(primary.ScientificName); ok {
			fmt.Fprintf(w, "   Did you mean %s (%s)?\n", e.CommonName, e.ScientificName)
		}
	}

	if len(alternates) == 0 {
		return
	}
	fmt.Fprintln(w, "\n🔎 Other possibilities:")
	for i, r := range alternates {
		fmt.Fprintf(w, "%d. %s (%s) - %d%%\n", i+1, r.CommonName, r.ScientificName, r.MatchPercentage)
	}
}

func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "\n❌ %s\n", userMessage(err))
}

func printCatalog(w io.Writer, entries []model.ReferenceEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "\n📭 No species in catalogue")
		return
	}
	fmt.Fprintf(w, "\n📚 %d species:\n\n", len(entries))
	for i, e := range entries {
		fmt.Fprintf(w, "%d. %s (%s)\n", i+1, e.CommonName, e.ScientificName)
		if e.WikiLink != "" {
			fmt.Fprintf(w, "   %s\n", e.WikiLink)
		}
	}
}

// wrap breaks text into lines of at most width runes, indenting continuation
// lines.
func wrap(text string, width int, indent string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	line := 0
	for i, word := range words {
		n := len([]rune(word))
		if i > 0 {
			if line+1+n > width {
				b.WriteString("\n" + indent)
				line = 0
			} else {
				b.WriteByte(' ')
				line++
			}
		}
		b.WriteString(word)
		line += n
	}
	return b.String()
}
