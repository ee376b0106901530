package persona

import (
	"fmt"
	"time"

	"github.com/personalens/persona-mvp/engine/domain"
)

// Link resolves every claim's corpus index to its source permalink and
// assembles the final record. Indices were bounds-checked during
// validation, so an unresolvable index here is an internal consistency
// failure and aborts the run.
func Link(d *domain.Draft, src domain.EvidenceSource, username, model string) (*domain.PersonaRecord, error) {
	behaviours, err := linkClaims("BEHAVIOURS", d.Behaviours, src)
	if err != nil {
		return nil, err
	}
	frustrations, err := linkClaims("FRUSTRATIONS", d.Frustrations, src)
	if err != nil {
		return nil, err
	}
	goals, err := linkClaims("GOALS", d.Goals, src)
	if err != nil {
		return nil, err
	}

	return &domain.PersonaRecord{
		Username:     username,
		Age:          d.Age,
		Location:     d.Location,
		Traits:       append([]string(nil), d.Traits...),
		Behaviours:   behaviours,
		Frustrations: frustrations,
		Goals:        goals,
		Personality:  d.Personality,
		Motivations:  d.Motivations,
		Quote:        d.Quote,
		GeneratedAt:  time.Now().UTC(),
		Model:        model,
	}, nil
}

func linkClaims(field string, claims []domain.Claim, src domain.EvidenceSource) ([]string, error) {
	out := make([]string, 0, len(claims))
	for i, c := range claims {
		it, ok := src.Item(c.Index)
		if !ok {
			return nil, fmt.Errorf("link %s[%d]: index %d not in corpus", field, i, c.Index)
		}
		out = append(out, fmt.Sprintf("%s — \"%s\" (%s)", c.Statement, c.Quote, it.Permalink))
	}
	return out, nil
}
