package entity

import "fmt"

// RowClass tags a detail row during promotion linking.
type RowClass string

const (
	ClassBonus   RowClass = "BONUS"
	ClassTrigger RowClass = "TRIGGER"
	ClassNormal  RowClass = "NORMAL"
)

// PromotionConfig describes how gift rows are detected in a document and
// which fields get rewritten when linking them to their trigger rows.
type PromotionConfig struct {
	// Detection fields (present in the projection result)
	BonusField      string `bson:"bonusField" json:"bonusField"`
	RefArticleField string `bson:"refArticleField" json:"refArticleField"`
	ArticleField    string `bson:"articleField" json:"articleField"`
	LineField       string `bson:"lineField" json:"lineField"`
	QuantityField   string `bson:"quantityField" json:"quantityField"`
	DiscountField   string `bson:"discountField,omitempty" json:"discountField,omitempty"`

	// Target fields (written during rewriting)
	BonusLineRefField string `bson:"bonusLineRefField" json:"bonusLineRefField"`
	OrderedQtyField   string `bson:"orderedQtyField" json:"orderedQtyField"`
	InvoiceQtyField   string `bson:"invoiceQtyField" json:"invoiceQtyField"`
	BonusQtyField     string `bson:"bonusQtyField" json:"bonusQtyField"`

	// BonusValue is the indicator value marking a gift row, e.g. "B".
	BonusValue string `bson:"bonusValue" json:"bonusValue"`
}

// Validate checks that every detection and target field is configured.
// A failing config disables linking for the run; rows pass through untouched.
func (c *PromotionConfig) Validate() error {
	required := map[string]string{
		"bonusField":        c.BonusField,
		"refArticleField":   c.RefArticleField,
		"articleField":      c.ArticleField,
		"lineField":         c.LineField,
		"quantityField":     c.QuantityField,
		"bonusLineRefField": c.BonusLineRefField,
		"orderedQtyField":   c.OrderedQtyField,
		"invoiceQtyField":   c.InvoiceQtyField,
		"bonusQtyField":     c.BonusQtyField,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("promotion config missing %s", name)
		}
	}
	if c.BonusValue == "" {
		return fmt.Errorf("promotion config missing bonusValue")
	}
	return nil
}
