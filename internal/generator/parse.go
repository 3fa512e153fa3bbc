package generator

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
)

// productPayload is the JSON shape the model is asked to return.
type productPayload struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Price       priceText    `json:"price"`
	Variants    []variantDTO `json:"variants"`
	Features    []string     `json:"features"`
}

type variantDTO struct {
	Title string    `json:"title"`
	Price priceText `json:"price"`
}

// priceText accepts a price encoded as a JSON string or number and keeps its
// textual form.
type priceText string

func (p *priceText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = priceText(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = priceText(n.String())
	return nil
}

// extractJSONObject returns the first balanced {...} block in text. Braces
// inside JSON strings are ignored.
func extractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(text); i++ {
			c := text[i]
			switch {
			case escaped:
				escaped = false
			case inString && c == '\\':
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
		// Unbalanced from this brace; try the next one.
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// parseProduct decodes the model's text into item fields. It reports false
// when no usable payload is present.
func parseProduct(text string) (productPayload, bool) {
	block, ok := extractJSONObject(text)
	if !ok {
		return productPayload{}, false
	}

	var p productPayload
	if err := json.Unmarshal([]byte(block), &p); err != nil {
		return productPayload{}, false
	}

	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return productPayload{}, false
	}
	if p.Price == "" {
		p.Price = DefaultPrice
	}
	return p, true
}

// apply copies the payload onto item.
func (p productPayload) apply(item *domain.GeneratedItem) {
	item.Title = p.Title
	item.Description = strings.TrimSpace(p.Description)
	item.PriceText = string(p.Price)

	item.Variants = make([]domain.Variant, 0, len(p.Variants))
	for _, v := range p.Variants {
		title := strings.TrimSpace(v.Title)
		if title == "" {
			continue
		}
		price := string(v.Price)
		if price == "" {
			price = item.PriceText
		}
		item.Variants = append(item.Variants, domain.Variant{Title: title, PriceText: price})
	}

	item.Features = make([]string, 0, len(p.Features))
	for _, f := range p.Features {
		if f = strings.TrimSpace(f); f != "" {
			item.Features = append(item.Features, f)
		}
	}
}
