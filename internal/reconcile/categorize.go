package reconcile

import (
	"strings"

	"MemoLedger/internal/models"
)

type categoryRule struct {
	category string
	keywords []string
}

// First match wins, so order matters: "gas bill" is Transport.
var categoryRules = []categoryRule{
	{models.CategoryFood, []string{"food", "dinner", "lunch", "breakfast", "coffee", "restaurant", "eat"}},
	{models.CategoryTransport, []string{"uber", "taxi", "gas", "parking", "transit", "bus", "train"}},
	{models.CategoryShopping, []string{"shop", "buy", "purchase", "amazon", "store"}},
	{models.CategoryEntertainment, []string{"movie", "game", "spotify", "netflix", "concert", "fun"}},
	{models.CategoryBills, []string{"rent", "electric", "water", "internet", "phone", "bill"}},
	{models.CategoryHealth, []string{"doctor", "pharmacy", "health", "gym", "medical"}},
	{models.CategoryEducation, []string{"school", "book", "course", "tutor", "education"}},
	{models.CategoryTravel, []string{"hotel", "flight", "travel", "trip", "vacation"}},
}

// Categorize maps free memo text to a spending category by case-insensitive
// substring match. Unmatched text is Other.
func Categorize(text string) string {
	lower := strings.ToLower(text)
	for _, r := range categoryRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.category
			}
		}
	}
	return models.CategoryOther
}
