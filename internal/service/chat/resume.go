package chat

import (
	"fmt"
	"strings"

	"github.com/vetlink/companion/backend/internal/model/profile"
)

// resumeSummary drafts a résumé summary from the profile without calling the
// generation gateway.
func resumeSummary(p *profile.Profile) string {
	var b strings.Builder
	b.WriteString("Here is a draft professional summary you can start from:\n\n")

	branch := ""
	years := 0
	if p != nil {
		branch = strings.TrimSpace(p.Branch)
		years = p.ServiceYears
	}

	switch {
	case branch != "" && years > 0:
		fmt.Fprintf(&b, "\"%s veteran with %d years of service", branch, years)
	case branch != "":
		fmt.Fprintf(&b, "\"%s veteran", branch)
	default:
		b.WriteString("\"Military veteran")
	}
	b.WriteString(" bringing proven leadership, accountability and mission planning to civilian teams. " +
		"Skilled at training others, managing equipment and resources, and delivering results under pressure.\"\n\n")

	if p != nil && p.DisplayName() != "" {
		fmt.Fprintf(&b, "%s, ", p.DisplayName())
	}
	b.WriteString("next, list your main duties and one measurable accomplishment from each assignment, " +
		"and I can help translate them into civilian job language.")
	return b.String()
}
