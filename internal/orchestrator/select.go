package orchestrator

import (
	"strings"

	"github.com/julianstephens/daylitd/internal/models"
)

// Selection reasons
const (
	SelectedByStyle  = "style_match"
	SelectedByImpact = "lowest_impact"
	SelectedFirst    = "first"
)

// SelectStrategy picks deterministically: the first strategy whose id or
// title contains the style keyword, else the least disruptive one, else the
// first. strategies must not be empty.
func SelectStrategy(strategies []models.Strategy, style string) (models.Strategy, string) {
	if keyword := strings.ToLower(strings.TrimSpace(style)); keyword != "" {
		for _, s := range strategies {
			if strings.Contains(strings.ToLower(s.ID), keyword) ||
				strings.Contains(strings.ToLower(s.Title), keyword) {
				return s, SelectedByStyle
			}
		}
	}

	best := 0
	for i, s := range strategies {
		if s.Impact.Rank() < strategies[best].Impact.Rank() {
			best = i
		}
	}
	if strategies[best].Impact.Rank() < models.Impact("").Rank() {
		return strategies[best], SelectedByImpact
	}
	return strategies[0], SelectedFirst
}
