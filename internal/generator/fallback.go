package generator

import (
	"fmt"
	"html"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
)

// DefaultPrice is used when no price could be generated.
const DefaultPrice = "99.99"

// syntheticContent fills item with text derived from the category and index.
func syntheticContent(item *domain.GeneratedItem, category string, index int) {
	item.Title = fmt.Sprintf("%s Product %d", category, index+1)
	item.Description = fmt.Sprintf("A high-quality %s product designed for everyday use.", category)
	item.PriceText = DefaultPrice
	item.Variants = []domain.Variant{
		{Title: "Standard", PriceText: DefaultPrice},
		{Title: "Premium", PriceText: "129.99"},
	}
	item.Features = []string{
		"High quality materials",
		"Durable construction",
		"Modern design",
	}
	item.Synthetic = true
}

// PlaceholderImage renders a flat labelled rectangle as an SVG data URI.
func PlaceholderImage(label string) string {
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="800" height="800" viewBox="0 0 800 800">`+
		`<rect width="800" height="800" fill="#e5e7eb"/>`+
		`<text x="400" y="400" font-family="sans-serif" font-size="36" fill="#6b7280" text-anchor="middle" dominant-baseline="middle">%s</text>`+
		`</svg>`, html.EscapeString(label))
	return domain.EncodeDataURI(domain.MediaTypeSVG, []byte(svg))
}

// FallbackItem is the fully synthetic item used when every generation
// attempt failed.
func FallbackItem(category string, index int) domain.GeneratedItem {
	item := domain.GeneratedItem{Category: category}
	syntheticContent(&item, category, index)
	item.ImageData = PlaceholderImage(item.Title)
	return item
}
