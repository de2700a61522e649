package assessment

import "github.com/skillproof/skillproof-api/internal/catalog"

// bonusQuestionsPerTier is the size of a tier's full question set: two
// single-choice plus two multiple-choice.
const (
	bonusSingleCorrect   = 2
	bonusMultipleCorrect = 2
	bonusTotalCorrect    = 4
)

// bonusEligible recomputes the tier bonus from the current counters. It is
// derived state: never latched, so a data correction that lowers counters
// also clears the flag.
func bonusEligible(p TierProgress) bool {
	return p.SingleChoiceCorrect == bonusSingleCorrect &&
		p.MultipleChoiceCorrect == bonusMultipleCorrect &&
		p.QuestionsCorrect == bonusTotalCorrect
}

// nextTierProgress folds one scored answer into the tier rollup.
func nextTierProgress(cur TierProgress, q catalog.Question, correct bool, earned float64) TierProgress {
	cur.Tier = q.Tier
	cur.QuestionsAttempted++
	if correct {
		cur.QuestionsCorrect++
		cur.ScoreEarned += earned
		switch q.Type {
		case catalog.SingleChoice:
			cur.SingleChoiceCorrect++
		case catalog.MultipleChoice:
			cur.MultipleChoiceCorrect++
		}
	}
	cur.BonusEarned = bonusEligible(cur)
	return cur
}

// nextDimProgress folds one scored answer into a category or sub-theme
// rollup.
func nextDimProgress(cur DimProgress, dimID, name string, correct bool, earned float64) DimProgress {
	cur.DimensionID = dimID
	cur.Name = name
	cur.QuestionsAttempted++
	if correct {
		cur.QuestionsCorrect++
		cur.ScoreEarned += earned
	}
	return cur
}

func findTierProgress(rows []TierProgress, t catalog.Tier) TierProgress {
	for _, r := range rows {
		if r.Tier == t {
			return r
		}
	}
	return TierProgress{Tier: t}
}

func findDimProgress(rows []DimProgress, id string) DimProgress {
	for _, r := range rows {
		if r.DimensionID == id {
			return r
		}
	}
	return DimProgress{DimensionID: id}
}

// completionPercentage is the single definition of the derived percentage.
func completionPercentage(total, possible float64) float64 {
	if possible == 0 {
		return 0
	}
	return total / possible * 100
}
