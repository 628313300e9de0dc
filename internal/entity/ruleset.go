package entity

// FieldType is the semantic type a validation rule expects.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	FieldBoolean FieldType = "boolean"
)

// FieldRule describes validation and sanitization for one column.
type FieldRule struct {
	Type     FieldType `bson:"type" json:"type"`
	Required bool      `bson:"required,omitempty" json:"required,omitempty"`

	// String constraints
	MinLength int    `bson:"minLength,omitempty" json:"minLength,omitempty"`
	MaxLength int    `bson:"maxLength,omitempty" json:"maxLength,omitempty"`
	Pattern   string `bson:"pattern,omitempty" json:"pattern,omitempty"`
	Truncate  bool   `bson:"truncate,omitempty" json:"truncate,omitempty"`
	Trim      bool   `bson:"trim,omitempty" json:"trim,omitempty"`
	Uppercase bool   `bson:"uppercase,omitempty" json:"uppercase,omitempty"`
	Lowercase bool   `bson:"lowercase,omitempty" json:"lowercase,omitempty"`

	// Numeric constraints
	Min       *float64 `bson:"min,omitempty" json:"min,omitempty"`
	Max       *float64 `bson:"max,omitempty" json:"max,omitempty"`
	Integer   bool     `bson:"integer,omitempty" json:"integer,omitempty"`
	Clamp     bool     `bson:"clamp,omitempty" json:"clamp,omitempty"`
	Round     bool     `bson:"round,omitempty" json:"round,omitempty"`
	Precision int      `bson:"precision,omitempty" json:"precision,omitempty"`
}

// ExistenceCheck names the single primary identity field of the destination.
type ExistenceCheck struct {
	Key string `bson:"key" json:"key"`
}

// ValidationRuleset maps field names to rules and carries the identity
// definition used for deduplication.
type ValidationRuleset struct {
	Fields         map[string]FieldRule `bson:"fields" json:"fields"`
	RequiredFields []string             `bson:"requiredFields,omitempty" json:"requiredFields,omitempty"`
	ExistenceCheck *ExistenceCheck      `bson:"existenceCheck,omitempty" json:"existenceCheck,omitempty"`
}

// MergeKeys returns the union of RequiredFields and the existence-check key,
// preserving declaration order. The result is the identity used to detect
// duplicates; an empty result makes the task non-executable.
func (rs *ValidationRuleset) MergeKeys() []string {
	seen := make(map[string]struct{}, len(rs.RequiredFields)+1)
	keys := make([]string, 0, len(rs.RequiredFields)+1)
	for _, f := range rs.RequiredFields {
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		keys = append(keys, f)
	}
	if rs.ExistenceCheck != nil && rs.ExistenceCheck.Key != "" {
		if _, ok := seen[rs.ExistenceCheck.Key]; !ok {
			keys = append(keys, rs.ExistenceCheck.Key)
		}
	}
	return keys
}

// PrimaryKey returns the existence-check key, or the first merge key when no
// existence check is configured. Used to collect identity values for the
// post-transfer update.
func (rs *ValidationRuleset) PrimaryKey() string {
	if rs.ExistenceCheck != nil && rs.ExistenceCheck.Key != "" {
		return rs.ExistenceCheck.Key
	}
	if keys := rs.MergeKeys(); len(keys) > 0 {
		return keys[0]
	}
	return ""
}
