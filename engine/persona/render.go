package persona

import (
	"fmt"
	"strings"

	"github.com/personalens/persona-mvp/engine/domain"
)

// Render produces the plain-text layout written to results files.
func Render(rec *domain.PersonaRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Persona for u/%s\n", rec.Username)
	fmt.Fprintf(&b, "Generated %s", rec.GeneratedAt.Format("2006-01-02 15:04 UTC"))
	if rec.Model != "" {
		fmt.Fprintf(&b, " by %s", rec.Model)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "AGE: %s\n", rec.Age)
	fmt.Fprintf(&b, "LOCATION: %s\n", rec.Location)
	renderList(&b, "TRAITS", rec.Traits)
	renderList(&b, "BEHAVIOURS", rec.Behaviours)
	renderList(&b, "FRUSTRATIONS", rec.Frustrations)
	renderList(&b, "GOALS", rec.Goals)
	fmt.Fprintf(&b, "PERSONALITY: %s\n", rec.Personality)
	fmt.Fprintf(&b, "MOTIVATIONS: %s\n", rec.Motivations)
	fmt.Fprintf(&b, "QUOTE: \"%s\"\n", rec.Quote)

	return b.String()
}

func renderList(b *strings.Builder, heading string, entries []string) {
	fmt.Fprintf(b, "%s:\n", heading)
	for _, e := range entries {
		fmt.Fprintf(b, "  %s\n", e)
	}
}
