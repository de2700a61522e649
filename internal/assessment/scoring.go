package assessment

import "github.com/skillproof/skillproof-api/internal/catalog"

// IsCorrect applies the binary correctness rule: the selected set must
// equal the question's correct set exactly. There is no partial credit for
// multiple-choice questions; for single choice the correct set is a
// singleton, so the same set comparison covers both types.
func IsCorrect(q catalog.Question, selectedOptionIDs []string) bool {
	return equalIDSets(selectedOptionIDs, q.CorrectOptionIDs())
}

// ScoreAnswer returns the correctness flag and points earned for one
// submission. A "don't know" is always 0 points and not correct, whatever
// the question.
func ScoreAnswer(q catalog.Question, selectedOptionIDs []string, dontKnow bool) (correct bool, earned float64) {
	if dontKnow {
		return false, 0
	}
	if !IsCorrect(q, selectedOptionIDs) {
		return false, 0
	}
	return true, q.Points()
}

// equalIDSets compares two ID slices as sets, order-insensitive.
func equalIDSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[string]int{}
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
	}
	for _, v := range seen {
		if v != 0 {
			return false
		}
	}
	return true
}
