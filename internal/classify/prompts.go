package classify

import (
	"encoding/json"
	"fmt"

	"github.com/dvloznov/offshore-radar/internal/signals"
	"github.com/dvloznov/offshore-radar/internal/txn"
)

// BuildPolicy renders the system prompt with the offshore jurisdiction
// table embedded. The same policy text is reused for every batch of a
// run.
func BuildPolicy(list *signals.List) string {
	return fmt.Sprintf(`You are an expert financial compliance analyst for a Kazakhstani bank.

Your task is to analyze banking transactions and determine if they involve offshore jurisdictions or present offshore-related risks.

**OFFSHORE JURISDICTIONS LIST:**
Any transaction involving these countries should be flagged as offshore:

%s

**ANALYSIS RULES:**

1. **SWIFT Country Priority**: The country extracted from the SWIFT/BIC code is the most reliable indicator. If the SWIFT country code matches the offshore list, this is a strong signal.

2. **Local Matching Signals**: Each transaction carries precomputed fuzzy-match signals for the country code, country name and city, with scores from 0.0 to 1.0. Use them as supporting evidence.

3. **Classification Labels**:
   - **OFFSHORE_YES**: Clear evidence of offshore jurisdiction involvement (SWIFT match, exact country code or name match)
   - **OFFSHORE_SUSPECT**: Partial indicators or circumstantial evidence (fuzzy matches, suspicious city, but not definitive)
   - **OFFSHORE_NO**: No offshore indicators found

4. **Conservative Approach**: When uncertain, use OFFSHORE_SUSPECT rather than making assumptions. Provide clear reasoning.

5. **Output Format**: Return ONLY a valid JSON object of the form:

{"results": [{"transaction_id": "...", "direction": "incoming|outgoing", "classification": {"label": "OFFSHORE_YES|OFFSHORE_SUSPECT|OFFSHORE_NO", "confidence": 0.0}, "reasoning_short_ru": "...", "sources": [], "llm_error": null}]}

Return exactly one element per input transaction, keyed by its transaction_id.

**IMPORTANT**:
- reasoning_short_ru must be 1-2 sentences in Russian explaining the decision
- confidence reflects the strength of evidence (1.0 = definitive, 0.5 = uncertain)
- sources must be an empty array [] when no web sources were used, never null and never the text "Нет источников"
- do not wrap the response in markdown fences`, list.MarkdownTable())
}

// escalationNote builds the extra instructions prepended on validation
// retries. attempt counts retries, starting at 1; lastErr is the detail
// of the previous validation failure.
func escalationNote(attempt, maxRetries int, lastErr string) string {
	note := fmt.Sprintf(`**RETRY ATTEMPT %d/%d**

The previous response had validation errors. Please pay special attention to:
1. The 'sources' field MUST be an empty array [] if no web sources were used, NEVER null or missing
2. ALL required fields must be present for each transaction
3. Ensure your classification label matches your reasoning explanation
4. Do NOT put contradiction warnings in the llm_error field
5. If the entity name contains offshore keywords but the address is non-offshore, classify as OFFSHORE_NO
6. Follow the exact JSON schema structure provided`, attempt, maxRetries)

	if lastErr != "" {
		note += "\n\nPrevious error details: " + lastErr
	}
	return note
}

// Summarize builds the oracle-facing view of one record.
func Summarize(rec *txn.Record) RecordSummary {
	return RecordSummary{
		TransactionID: rec.ID,
		Direction:     string(rec.Direction),
		Counterparty:  rec.Field(txn.FieldName),
		Bank:          rec.Field(txn.FieldBank),
		BankAddress:   rec.Field(txn.FieldBankAddress),
		SwiftCode:     rec.SwiftCode,
		City:          rec.City,
		CountryCode:   rec.CountryCode,
		CountryName:   rec.CountryName,
		Details:       rec.Field(txn.FieldDetails),
		Signals:       rec.Signals,
	}
}

// renderRecords serializes the batch into the user message.
func renderRecords(records []RecordSummary) (string, error) {
	payload, err := json.MarshalIndent(map[string]interface{}{
		"transactions": records,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return "**TRANSACTIONS TO ANALYZE:**\n\n" + string(payload) +
		"\n\n**YOUR TASK:**\nClassify the offshore risk of every transaction above and return the JSON object described in the system instructions.", nil
}
