// Package format renders analysis results and relay notices as chat text.
// Everything here is a pure function of its input.
package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"foodrelay/internal/domain"

	"github.com/samber/lo"
)

const (
	NoImagePrompt       = "📸 Please upload an image of your food to analyze its calories!"
	AnalyzingNotice     = "🔍 Analyzing your food image... Please wait a moment."
	TransferUnsupported = "❌ This bot accepts image links only. Please send your food photo as a link or a chat attachment."
	NotAnImage          = "❌ That file doesn't look like an image. Please upload a JPEG or PNG photo of your food."
	ImageTooLarge       = "❌ That image is too large to analyze. Please upload a smaller photo."
	NoImageURL          = "❌ Could not get image URL. Please try uploading again."
	DownloadFailed      = "❌ Sorry, I couldn't download the image. Please try uploading again."

	completeHeader = "🍽️ **Food Analysis Complete!**"
	totalsHeader   = "**📊 Total Nutrition:**"

	cardTitle = "Nutritional Analysis Results"
	cardTheme = "modern-inline"
)

// Number renders a service-supplied value exactly as it was received.
// Missing values render as 0.
func Number(n json.Number) string {
	if n == "" {
		return "0"
	}
	return n.String()
}

// Text renders the result as one block per food item, 1-indexed in service
// order, followed by a single totals block.
func Text(res *domain.AnalysisResult) string {
	if res == nil {
		res = &domain.AnalysisResult{}
	}

	var sb strings.Builder
	sb.WriteString(completeHeader)
	for i, food := range res.Foods {
		fmt.Fprintf(&sb, "\n\n**%d. %s**\n", i+1, food.Name)
		fmt.Fprintf(&sb, "Portion: %s\n", food.Portion)
		fmt.Fprintf(&sb, "Calories: %s kcal | Protein: %sg | Carbs: %sg | Fat: %sg",
			Number(food.Calories), Number(food.Protein), Number(food.Carbs), Number(food.Fat))
	}
	sb.WriteString("\n\n---\n")
	sb.WriteString(totalsHeader)
	sb.WriteString("\n")
	sb.WriteString(TotalsLine(res.Totals))
	return sb.String()
}

// TotalsLine is the single line carrying the four aggregate values.
func TotalsLine(t domain.Totals) string {
	return fmt.Sprintf("🔥 Calories: %s kcal | 💪 Protein: %sg | 🌾 Carbs: %sg | 🥑 Fat: %sg",
		Number(t.Calories), Number(t.Protein), Number(t.Carbs), Number(t.Fat))
}

// Card mirrors Text as a two-section card: items, then totals.
func Card(res *domain.AnalysisResult) *domain.Card {
	if res == nil {
		res = &domain.AnalysisResult{}
	}
	items := lo.Map(res.Foods, func(food domain.FoodItem, _ int) domain.CardElement {
		return domain.CardElement{
			Type: "text",
			Text: fmt.Sprintf("**%s** (%s)\nCalories: %s kcal | P: %sg | C: %sg | F: %sg",
				food.Name, food.Portion,
				Number(food.Calories), Number(food.Protein), Number(food.Carbs), Number(food.Fat)),
		}
	})
	t := res.Totals
	return &domain.Card{
		Title: cardTitle,
		Theme: cardTheme,
		Sections: []domain.CardSection{
			{ID: 1, Elements: items},
			{
				ID:    2,
				Title: "Total Nutrition",
				Elements: []domain.CardElement{{
					Type: "text",
					Text: fmt.Sprintf("🔥 **%s kcal** | 💪 %sg protein | 🌾 %sg carbs | 🥑 %sg fat",
						Number(t.Calories), Number(t.Protein), Number(t.Carbs), Number(t.Fat)),
				}},
			},
		},
	}
}

// Result builds the reply for a successful analysis.
func Result(res *domain.AnalysisResult, withCard bool) domain.ReplyMessage {
	reply := domain.ReplyMessage{Text: Text(res)}
	if withCard {
		reply.Card = Card(res)
	}
	return reply
}

// Failure explains err to the end user. Resolution problems get their
// fixed notices; analysis failures carry the cause and a remediation hint.
func Failure(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoImageProvided):
		return NoImagePrompt
	case errors.Is(err, domain.ErrTransferUnsupported):
		return TransferUnsupported
	case errors.Is(err, domain.ErrNotAnImage):
		return NotAnImage
	case errors.Is(err, domain.ErrImageTooLarge):
		return ImageTooLarge
	case errors.Is(err, domain.ErrNoImageURL):
		return NoImageURL
	case errors.Is(err, domain.ErrImageDownload):
		return DownloadFailed
	case errors.Is(err, domain.ErrAnalysisUnavailable):
		return fmt.Sprintf("❌ Sorry, I couldn't reach the food analysis service. Error: %s\n\n"+
			"The analysis servers might be waking up. Please wait a minute and try again.", err)
	default:
		return fmt.Sprintf("❌ Sorry, I couldn't analyze the image. Error: %s\n\n"+
			"Please try again with a clearer image.", err)
	}
}
