package classify

import (
	"fmt"
	"strings"
)

// Validator inspects a parsed batch before it is accepted. A returned
// *ValidationError sends the whole batch back through the retry loop.
type Validator func(results []Result) error

// ContradictionCheck rejects batches where a result's label contradicts
// its own reasoning or error note. The phrase set is what the oracle
// actually emits when it second-guesses itself mid-response.
func ContradictionCheck(results []Result) error {
	var problems []string

	for i, r := range results {
		reasoning := strings.ToLower(r.Reasoning)
		note := strings.ToLower(r.Err)

		var found []string

		if r.Label == LabelOffshoreYes {
			if strings.Contains(note, "set to offshore_no") || strings.Contains(reasoning, "классификатор — не офшор") {
				found = append(found, "label is OFFSHORE_YES but reasoning indicates OFFSHORE_NO")
			}
		}
		if r.Label == LabelOffshoreNo {
			if strings.Contains(note, "set to offshore_yes") || strings.Contains(reasoning, "в списке офшоров") {
				found = append(found, "label is OFFSHORE_NO but reasoning indicates the jurisdiction is listed")
			}
		}
		if strings.Contains(note, "potential misclassification") || strings.Contains(note, "controversial") {
			found = append(found, "oracle flagged potential misclassification")
		}

		if len(found) > 0 {
			id := r.TransactionID
			if id == "" {
				id = fmt.Sprintf("index-%d", i)
			}
			problems = append(problems, fmt.Sprintf("transaction %s: %s", id, strings.Join(found, "; ")))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Detail: strings.Join(problems, "; ")}
	}
	return nil
}
