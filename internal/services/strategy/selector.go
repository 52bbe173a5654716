package strategy

import (
	"fmt"
	"sort"
	"strings"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/config"
)

// Eligibility maps each regime to the strategy ids allowed to trade in it.
type Eligibility map[models.RegimeLabel]map[string]bool

// Allowed reports whether id may be selected under regime.
func (e Eligibility) Allowed(regime models.RegimeLabel, id string) bool {
	return e[regime][id]
}

// IDs returns the eligible ids of a regime, sorted.
func (e Eligibility) IDs(regime models.RegimeLabel) []string {
	out := make([]string, 0, len(e[regime]))
	for id := range e[regime] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ValidateEligibility checks the raw config map against the regime taxonomy and the
// known templates. Every regime must be listed, every id must exist, and the default
// regime must allow at least one strategy.
func ValidateEligibility(raw map[string][]string, templates []models.StrategyTemplate) (Eligibility, error) {
	known := make(map[string]bool, len(templates))
	for _, t := range templates {
		known[t.ID] = true
	}

	out := make(Eligibility, len(raw))
	for key, ids := range raw {
		regime, err := models.ParseRegime(key)
		if err != nil {
			return nil, fmt.Errorf("%w: eligibility: %v", config.ErrFatalConfig, err)
		}
		set := make(map[string]bool, len(ids))
		for _, id := range ids {
			if !known[id] {
				return nil, fmt.Errorf("%w: eligibility %s: unknown strategy %q", config.ErrFatalConfig, regime, id)
			}
			set[id] = true
		}
		out[regime] = set
	}

	var missing []string
	for _, r := range models.AllRegimes() {
		if _, ok := out[r]; !ok {
			missing = append(missing, r.String())
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: eligibility missing regimes: %s", config.ErrFatalConfig, strings.Join(missing, ", "))
	}
	if len(out[models.DefaultRegime]) == 0 {
		return nil, fmt.Errorf("%w: eligibility for %s must not be empty", config.ErrFatalConfig, models.DefaultRegime)
	}
	return out, nil
}

// Selector picks the best ranked candidate the regime allows.
type Selector struct {
	eligible Eligibility
}

func NewSelector(e Eligibility) *Selector { return &Selector{eligible: e} }

// Select assumes candidates are already ranked and never returns an ineligible strategy.
// A regime outside the map is treated as the default regime.
func (s *Selector) Select(cands []models.StrategyCandidate, regime models.RegimeLabel) (models.StrategyCandidate, bool) {
	if _, ok := s.eligible[regime]; !ok {
		regime = models.DefaultRegime
	}
	for _, c := range cands {
		if s.eligible.Allowed(regime, c.StrategyID) {
			return c, true
		}
	}
	return models.StrategyCandidate{}, false
}

func (s *Selector) Eligibility() Eligibility { return s.eligible }
