package service

import (
	"strings"

	"github.com/blinkdate/match-server-go/internal/model"
)

// Weights of the compatibility components. They sum to 1.0; the final
// score is clamped to [0, 1] anyway so bonus-adjusted callers can reuse
// the same scale.
const (
	weightPersonality = 0.4
	weightInterests   = 0.3
	weightAgeFit      = 0.2
	weightIntent      = 0.1
)

// CompatibilityScore rates how well two profiles fit on a 0..1 scale.
// It is symmetric and deterministic: score(a, b) == score(b, a).
func CompatibilityScore(a, b *model.Profile, interestsA, interestsB []model.Interest) float64 {
	score := weightPersonality*personalityAffinity(a, b) +
		weightInterests*interestOverlap(interestsA, interestsB) +
		weightAgeFit*ageFit(a, b) +
		weightIntent*intentAffinity(a.LookingFor, b.LookingFor)

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// personalityAffinity averages per-trait closeness. Each trait is on a
// 0-10 scale; identical values score 1.0, a full 10-point spread scores 0.
func personalityAffinity(a, b *model.Profile) float64 {
	pairs := [5][2]int{
		{a.Extroversion, b.Extroversion},
		{a.Openness, b.Openness},
		{a.Conscientiousness, b.Conscientiousness},
		{a.Agreeableness, b.Agreeableness},
		{a.Neuroticism, b.Neuroticism},
	}

	var total float64
	for _, p := range pairs {
		diff := p[0] - p[1]
		if diff < 0 {
			diff = -diff
		}
		closeness := float64(10-diff) / 10
		if closeness > 0 {
			total += closeness
		}
	}
	return total / float64(len(pairs))
}

// interestOverlap is the Jaccard similarity of the two interest sets.
// Either side empty scores 0: no evidence is not positive evidence.
func interestOverlap(interestsA, interestsB []model.Interest) float64 {
	if len(interestsA) == 0 || len(interestsB) == 0 {
		return 0
	}

	setA := interestNameSet(interestsA)
	setB := interestNameSet(interestsB)

	shared := 0
	for name := range setA {
		if _, ok := setB[name]; ok {
			shared++
		}
	}

	union := len(setA) + len(setB) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// ageFit is all-or-nothing: both users must fall inside each other's
// stated age window.
func ageFit(a, b *model.Profile) float64 {
	if b.Age >= a.MinAge && b.Age <= a.MaxAge &&
		a.Age >= b.MinAge && a.Age <= b.MaxAge {
		return 1
	}
	return 0
}

// intentAffinity compares what each user says they are looking for.
// Exact agreement scores full marks; serious and casual are close enough
// for half credit.
func intentAffinity(lookingForA, lookingForB string) float64 {
	la := strings.ToLower(strings.TrimSpace(lookingForA))
	lb := strings.ToLower(strings.TrimSpace(lookingForB))
	if la == "" || lb == "" {
		return 0
	}
	if la == lb {
		return 1
	}
	if isRelationshipIntent(la) && isRelationshipIntent(lb) {
		return 0.5
	}
	return 0
}

func isRelationshipIntent(lookingFor string) bool {
	return lookingFor == "serious" || lookingFor == "casual"
}

func interestNameSet(interests []model.Interest) map[string]struct{} {
	set := make(map[string]struct{}, len(interests))
	for _, interest := range interests {
		set[strings.ToLower(interest.Name)] = struct{}{}
	}
	return set
}

// SharedInterestCount counts how many of the session's preferred
// interests the candidate actually has; used for the per-overlap bonus.
func SharedInterestCount(preferred []string, interests []model.Interest) int {
	if len(preferred) == 0 || len(interests) == 0 {
		return 0
	}
	have := interestNameSet(interests)
	count := 0
	for _, name := range preferred {
		if _, ok := have[strings.ToLower(strings.TrimSpace(name))]; ok {
			count++
		}
	}
	return count
}
