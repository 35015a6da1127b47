package fields_test

import (
	"testing"

	"leadflow/bizerror"
	"leadflow/domain/fields"

	. "github.com/onsi/gomega"
)

func buildDefs() fields.FieldDefinitions {
	min := 0.0
	max := 1000000.0
	maxLen := 10
	return fields.FieldDefinitions{
		{Key: "company", Type: fields.FieldTypeString, Required: true, IsActive: true,
			Rules: fields.ValidationRules{MaxLength: &maxLen}},
		{Key: "budget", Type: fields.FieldTypeInteger, IsActive: true,
			Rules: fields.ValidationRules{Min: &min, Max: &max}},
		{Key: "score", Type: fields.FieldTypeDecimal, IsActive: true},
		{Key: "hot", Type: fields.FieldTypeBoolean, IsActive: true, DefaultValue: "false"},
		{Key: "source", Type: fields.FieldTypeEnum, IsActive: true, Options: []string{"Web", "Referral", "Event"}},
		{Key: "tags", Type: fields.FieldTypeList, IsActive: true},
		{Key: "meta", Type: fields.FieldTypeMap, IsActive: true},
		{Key: "firstContact", Type: fields.FieldTypeDate, IsActive: true},
		{Key: "legacy", Type: fields.FieldTypeString, IsActive: false},
	}
}

func TestValidateValues(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should accept a full valid value set and coerce types", func(t *testing.T) {
		values, err := fields.ValidateValues(buildDefs(), map[string]interface{}{
			"company": "ACME", "budget": "200", "score": 7.5,
			"source": "referral",
			"tags":   []interface{}{"inbound", "smb"},
			"meta":   map[string]interface{}{"region": "emea"},
		})
		Expect(err).To(BeNil())

		company, _ := values.Find("company")
		Expect(company.Value).To(Equal("ACME"))
		Expect(company.Raw).To(Equal("ACME"))

		budget, _ := values.Find("budget")
		Expect(budget.Value).To(Equal(int64(200)))
		Expect(budget.Raw).To(Equal("200"))

		score, _ := values.Find("score")
		Expect(score.Value).To(Equal(7.5))

		// enum values are canonicalized to the defined option
		source, _ := values.Find("source")
		Expect(source.Value).To(Equal("Referral"))

		tags, _ := values.Find("tags")
		Expect(tags.Value).To(Equal([]interface{}{"inbound", "smb"}))

		// absent key with a default gets the coerced default
		hot, _ := values.Find("hot")
		Expect(hot.Value).To(Equal(false))
	})

	t.Run("should reject unknown and inactive keys", func(t *testing.T) {
		_, err := fields.ValidateValues(buildDefs(), map[string]interface{}{
			"company": "ACME", "nosuch": 1, "legacy": "x",
		})
		Expect(err).ToNot(BeNil())

		validationErr, ok := err.(*bizerror.ValidationError)
		Expect(ok).To(BeTrue())
		Expect(len(validationErr.Failures)).To(Equal(2))
		Expect(validationErr.Failures[0].FieldKey).To(Equal("nosuch"))
		Expect(validationErr.Failures[0].Rule).To(Equal(fields.RuleUnknownField))
		Expect(validationErr.Failures[1].FieldKey).To(Equal("legacy"))
		Expect(validationErr.Failures[1].Rule).To(Equal(fields.RuleInactiveField))
	})

	t.Run("should aggregate failures of every key", func(t *testing.T) {
		_, err := fields.ValidateValues(buildDefs(), map[string]interface{}{
			"budget": "many", "source": "Unknown",
		})
		Expect(err).ToNot(BeNil())

		validationErr := err.(*bizerror.ValidationError)
		rules := map[string]string{}
		for _, f := range validationErr.Failures {
			rules[f.FieldKey] = f.Rule
		}
		Expect(rules["company"]).To(Equal(fields.RuleRequired))
		Expect(rules["budget"]).To(Equal(fields.RuleType))
		Expect(rules["source"]).To(Equal(fields.RuleOptions))
	})

	t.Run("should enforce numeric and length rules", func(t *testing.T) {
		_, err := fields.ValidateValues(buildDefs(), map[string]interface{}{
			"company": "ACME", "budget": -1,
		})
		validationErr := err.(*bizerror.ValidationError)
		Expect(len(validationErr.Failures)).To(Equal(1))
		Expect(validationErr.Failures[0].Rule).To(Equal(fields.RuleMin))

		_, err = fields.ValidateValues(buildDefs(), map[string]interface{}{
			"company": "a company name too long",
		})
		validationErr = err.(*bizerror.ValidationError)
		Expect(len(validationErr.Failures)).To(Equal(1))
		Expect(validationErr.Failures[0].Rule).To(Equal(fields.RuleMaxLength))
	})

	t.Run("should reject fractional input for integer fields", func(t *testing.T) {
		_, err := fields.ValidateValues(buildDefs(), map[string]interface{}{
			"company": "ACME", "budget": 1.5,
		})
		validationErr := err.(*bizerror.ValidationError)
		Expect(len(validationErr.Failures)).To(Equal(1))
		Expect(validationErr.Failures[0].Rule).To(Equal(fields.RuleType))

		// an integral float from generic JSON decoding is accepted
		values, err := fields.ValidateValues(buildDefs(), map[string]interface{}{
			"company": "ACME", "budget": float64(300),
		})
		Expect(err).To(BeNil())
		budget, _ := values.Find("budget")
		Expect(budget.Value).To(Equal(int64(300)))
	})

	t.Run("should parse date values", func(t *testing.T) {
		values, err := fields.ValidateValues(buildDefs(), map[string]interface{}{
			"company": "ACME", "firstContact": "2025-03-01",
		})
		Expect(err).To(BeNil())
		contact, found := values.Find("firstContact")
		Expect(found).To(BeTrue())
		Expect(contact.Raw).To(Equal("2025-03-01"))

		_, err = fields.ValidateValues(buildDefs(), map[string]interface{}{
			"company": "ACME", "firstContact": "03/01/2025",
		})
		Expect(err).ToNot(BeNil())
	})
}

func TestValidateAssigned(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should only check assigned keys", func(t *testing.T) {
		values, err := fields.ValidateAssigned(buildDefs(), map[string]interface{}{
			"budget": 500,
		})
		Expect(err).To(BeNil())
		Expect(len(values)).To(Equal(1))
		Expect(values[0].Key).To(Equal("budget"))
		Expect(values[0].Value).To(Equal(int64(500)))
	})

	t.Run("should reject emptying a required field", func(t *testing.T) {
		_, err := fields.ValidateAssigned(buildDefs(), map[string]interface{}{
			"company": "",
		})
		Expect(err).ToNot(BeNil())
		validationErr := err.(*bizerror.ValidationError)
		Expect(validationErr.Failures[0].Rule).To(Equal(fields.RuleRequired))
	})

	t.Run("should keep the closed schema for partial updates", func(t *testing.T) {
		_, err := fields.ValidateAssigned(buildDefs(), map[string]interface{}{
			"nosuch": "x",
		})
		Expect(err).ToNot(BeNil())
		validationErr := err.(*bizerror.ValidationError)
		Expect(validationErr.Failures[0].Rule).To(Equal(fields.RuleUnknownField))
	})
}

func TestValidateDefinition(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should reject enum without options and duplicated options", func(t *testing.T) {
		def := fields.FieldDefinition{Key: "source", Type: fields.FieldTypeEnum}
		Expect(def.ValidateDefinition()).To(Equal(bizerror.ErrFieldDefinitionInvalid))

		def.Options = []string{"Web", "web"}
		Expect(def.ValidateDefinition()).To(Equal(bizerror.ErrFieldDefinitionInvalid))

		def.Options = []string{"Web", "Referral"}
		Expect(def.ValidateDefinition()).To(BeNil())
	})

	t.Run("should reject blank or padded keys", func(t *testing.T) {
		def := fields.FieldDefinition{Key: " padded", Type: fields.FieldTypeString}
		Expect(def.ValidateDefinition()).To(Equal(bizerror.ErrFieldDefinitionInvalid))

		def = fields.FieldDefinition{Key: "", Type: fields.FieldTypeString}
		Expect(def.ValidateDefinition()).To(Equal(bizerror.ErrFieldDefinitionInvalid))
	})
}
