package commerce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/gje4/vercel-bigcommerce/internal/domain"
)

// DefaultVariantTitle names the single variant of a product without
// generated variants.
const DefaultVariantTitle = "Default Title"

const defaultPrice = "99.99"

// Descriptions come from a model; no markup is trusted.
var descriptionPolicy = bluemonday.StrictPolicy()

// ProductRequest is the body of a create product call.
type ProductRequest struct {
	Product ProductBody `json:"product"`
}

// ProductBody is a product with its variants.
type ProductBody struct {
	Title       string          `json:"title"`
	BodyHTML    string          `json:"body_html"`
	Vendor      string          `json:"vendor"`
	ProductType string          `json:"product_type"`
	Variants    []VariantBody   `json:"variants"`
	Options     []ProductOption `json:"options"`
}

// VariantBody is one variant. InventoryManagement is always encoded as null.
type VariantBody struct {
	Option1             string  `json:"option1"`
	Price               string  `json:"price"`
	Position            int     `json:"position"`
	InventoryManagement *string `json:"inventory_management"`
}

// ProductOption names a variant dimension.
type ProductOption struct {
	Name string `json:"name"`
}

type productResponse struct {
	Product struct {
		ID    flexibleID `json:"id"`
		Title string     `json:"title"`
	} `json:"product"`
}

type imageRequest struct {
	Image imageBody `json:"image"`
}

type imageBody struct {
	Attachment string `json:"attachment"`
	Filename   string `json:"filename"`
}

// flexibleID decodes an id sent as a JSON number or string.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	if n.String() == "0" {
		return nil
	}
	*f = flexibleID(n.String())
	return nil
}

// BuildProductPayload maps a generated item onto a create product request.
func BuildProductPayload(item domain.GeneratedItem, vendor string) ProductRequest {
	return ProductRequest{Product: ProductBody{
		Title:       item.Title,
		BodyHTML:    descriptionHTML(item.Description, item.Features),
		Vendor:      vendor,
		ProductType: item.Category,
		Variants:    buildVariants(item),
		Options:     []ProductOption{{Name: "Title"}},
	}}
}

// descriptionHTML escapes the description and wraps each blank-line
// separated paragraph in <p>. Features follow as a list.
func descriptionHTML(description string, features []string) string {
	var b strings.Builder

	text := strings.ReplaceAll(description, "\r\n", "\n")
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}
		clean := strings.TrimSpace(descriptionPolicy.Sanitize(para))
		if clean == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(clean)
		b.WriteString("</p>")
	}

	var items []string
	for _, f := range features {
		if clean := strings.TrimSpace(descriptionPolicy.Sanitize(f)); clean != "" {
			items = append(items, "<li>"+clean+"</li>")
		}
	}
	if len(items) > 0 {
		b.WriteString("<ul>")
		b.WriteString(strings.Join(items, ""))
		b.WriteString("</ul>")
	}

	return b.String()
}

// buildVariants emits one variant per generated variant, or a single
// default variant. option1 values are made unique with numeric suffixes.
func buildVariants(item domain.GeneratedItem) []VariantBody {
	basePrice := item.PriceText
	if basePrice == "" {
		basePrice = defaultPrice
	}

	if len(item.Variants) == 0 {
		return []VariantBody{{Option1: DefaultVariantTitle, Price: basePrice, Position: 1}}
	}

	seen := make(map[string]bool, len(item.Variants))
	variants := make([]VariantBody, 0, len(item.Variants))
	for i, v := range item.Variants {
		title := strings.TrimSpace(v.Title)
		if title == "" {
			title = fmt.Sprintf("Option %d", i+1)
		}
		option := title
		for n := 2; seen[strings.ToLower(option)]; n++ {
			option = fmt.Sprintf("%s %d", title, n)
		}
		seen[strings.ToLower(option)] = true

		price := v.PriceText
		if price == "" {
			price = basePrice
		}
		variants = append(variants, VariantBody{Option1: option, Price: price, Position: i + 1})
	}
	return variants
}
