package generator

import (
	"fmt"
	"strings"
)

const basePrompt = `Create a realistic e-commerce product for the category %q (product %d of this category).

Return exactly two things:
1. ONE photographic image of a single, tangible instance of the product, shot in a clean studio setting with natural lighting.
   - Do NOT return a placeholder, blank, solid-color or gradient image.
   - Do NOT add text overlays, labels, watermarks, logos or price tags.
   - Do NOT return icons, illustrations, clip art or generic graphics.
2. A JSON object with this exact shape and nothing else around it:
{"title": "...", "description": "...", "price": "49.99", "variants": [{"title": "...", "price": "49.99"}], "features": ["...", "...", "..."]}

Make the title, description and features specific to this product and different from other products in the same category.`

// RetryReason says why the previous attempt was rejected.
type RetryReason int

const (
	RetryNone RetryReason = iota
	RetryPlaceholder
	RetryFailed
)

// BuildPrompt returns the prompt for one attempt at one item. Attempts after
// the first name the reason the previous attempt was rejected and insist on
// a real photo.
func BuildPrompt(category string, index, attempt, maxAttempts int, reason RetryReason) string {
	var b strings.Builder
	fmt.Fprintf(&b, basePrompt, category, index+1)

	if attempt > 1 {
		fmt.Fprintf(&b, "\n\nIMPORTANT: this is attempt %d of %d. ", attempt, maxAttempts)
		switch reason {
		case RetryPlaceholder:
			b.WriteString("The previous attempt returned a placeholder or non-photographic image, which is unacceptable.")
		default:
			b.WriteString("The previous attempt did not produce a usable result.")
		}
		b.WriteString("\nYou MUST return a real, high-resolution photograph of the physical product with visible texture, materials and depth.")
	}
	if attempt == maxAttempts && maxAttempts > 1 {
		b.WriteString("\nThis is the final attempt.")
	}

	return b.String()
}
