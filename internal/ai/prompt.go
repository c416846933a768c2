package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/isdelr/qb-categorizer-be/internal/models"
)

// SystemPrompt frames the model as a bookkeeper.
const SystemPrompt = "You are an expert bookkeeper specializing in QuickBooks categorization. " +
	"You categorize transactions with high accuracy based on transaction details and historical patterns."

// ErrInvalidSuggestion is returned when the model output cannot be used.
var ErrInvalidSuggestion = errors.New("ai: invalid categorization response")

// Suggestion is the categorization the model proposes.
type Suggestion struct {
	AccountID   string  `json:"accountId"`
	AccountName string  `json:"accountName"`
	ClassID     string  `json:"classId,omitempty"`
	ClassName   string  `json:"className,omitempty"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// PromptInput is everything the categorization prompt is built from.
type PromptInput struct {
	Transaction models.Transaction
	Accounts    []models.QBAccount
	Classes     []models.QBClass
	Examples    []models.LearningExample
}

// BuildCategorizationPrompt renders the user message for one transaction.
func BuildCategorizationPrompt(in PromptInput) string {
	tx := in.Transaction
	var b strings.Builder

	b.WriteString("Categorize this QuickBooks transaction:\n\n")
	b.WriteString("TRANSACTION DETAILS:\n")
	fmt.Fprintf(&b, "- Description: %s\n", orNA(tx.Description))
	fmt.Fprintf(&b, "- Vendor: %s\n", orNA(tx.Vendor))
	fmt.Fprintf(&b, "- Amount: $%s\n", tx.Amount.StringFixed(2))
	fmt.Fprintf(&b, "- Date: %s\n", tx.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "- Memo: %s\n\n", orNA(tx.Memo))

	b.WriteString("AVAILABLE ACCOUNTS:\n")
	for _, a := range in.Accounts {
		fmt.Fprintf(&b, "- %s (ID: %s, Type: %s)\n", a.Name, a.QBID, a.AccountType)
	}

	b.WriteString("\nAVAILABLE CLASSES:\n")
	if len(in.Classes) == 0 {
		b.WriteString("No classes available\n")
	}
	for _, c := range in.Classes {
		fmt.Fprintf(&b, "- %s (ID: %s)\n", c.Name, c.QBID)
	}

	b.WriteString("\nSIMILAR PAST CATEGORIZATIONS:\n")
	if len(in.Examples) == 0 {
		b.WriteString("No similar past examples found\n")
	}
	for _, ex := range in.Examples {
		fmt.Fprintf(&b, "- Description: %q → Account: %s\n", ex.Description, ex.CorrectAccountName)
	}

	b.WriteString(`
Please provide your categorization in this exact JSON format:
{
  "accountId": "the QuickBooks account ID",
  "accountName": "the account name",
  "classId": "the QuickBooks class ID (optional)",
  "className": "the class name (optional)",
  "confidence": 0.95,
  "reasoning": "Brief explanation of why you chose this categorization"
}

Base your categorization on:
1. The transaction description and vendor
2. Similar past categorizations if available
3. Standard bookkeeping practices
4. The account types available

Provide a confidence score between 0 and 1.
`)
	return b.String()
}

// ParseSuggestion decodes the model's JSON answer. Models sometimes wrap JSON
// in a markdown fence even in JSON mode, so fences are stripped first.
func ParseSuggestion(raw string) (Suggestion, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var s Suggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &s); err != nil {
		return Suggestion{}, fmt.Errorf("%w: %v", ErrInvalidSuggestion, err)
	}
	if s.AccountID == "" && s.AccountName == "" {
		return Suggestion{}, fmt.Errorf("%w: no account", ErrInvalidSuggestion)
	}
	s.Confidence = clamp(s.Confidence)
	return s, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func orNA(s *string) string {
	if v := strings.TrimSpace(models.StringValue(s)); v != "" {
		return v
	}
	return "N/A"
}
