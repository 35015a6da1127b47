package fields

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"leadflow/bizerror"
)

type FieldType string

const (
	FieldTypeString   = FieldType("string")
	FieldTypeInteger  = FieldType("integer")
	FieldTypeDecimal  = FieldType("decimal")
	FieldTypeBoolean  = FieldType("boolean")
	FieldTypeDate     = FieldType("date")
	FieldTypeDatetime = FieldType("datetime")
	FieldTypeEnum     = FieldType("enum")
	FieldTypeList     = FieldType("list")
	FieldTypeMap      = FieldType("map")
)

type InputType string

const (
	InputTypeText           = InputType("text")
	InputTypeTextArea       = InputType("textarea")
	InputTypeNumber         = InputType("number")
	InputTypeDropdown       = InputType("dropdown")
	InputTypeMultiSelect    = InputType("multi_select")
	InputTypeRadio          = InputType("radio")
	InputTypeCheckbox       = InputType("checkbox")
	InputTypeDatePicker     = InputType("date_picker")
	InputTypeDatetimePicker = InputType("datetime_picker")
	InputTypeEmail          = InputType("email")
	InputTypePhone          = InputType("phone")
	InputTypeURL            = InputType("url")
	InputTypeFileUpload     = InputType("file_upload")
)

type ValidationRules struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	MinLength *int `json:"minLength,omitempty"`
	MaxLength *int `json:"maxLength,omitempty"`
}

type FieldDefinition struct {
	Key   string    `json:"key" binding:"required"`
	Label string    `json:"label"`
	Type  FieldType `json:"type" binding:"required,oneof=string integer decimal boolean date datetime enum list map"`

	InputType InputType `json:"inputType"`
	Required  bool      `json:"required"`

	Options      []string        `json:"options,omitempty"`
	DefaultValue string          `json:"defaultValue,omitempty"`
	Rules        ValidationRules `json:"rules"`

	// item type of list values, defaults to string
	ListItemType FieldType `json:"listItemType,omitempty"`

	Order    int  `json:"order"`
	IsActive bool `json:"isActive"`
}

// ValidateDefinition rejects ill-formed definitions before they are stored.
func (d FieldDefinition) ValidateDefinition() error {
	switch d.Type {
	case FieldTypeString, FieldTypeInteger, FieldTypeDecimal, FieldTypeBoolean,
		FieldTypeDate, FieldTypeDatetime, FieldTypeList, FieldTypeMap:
	case FieldTypeEnum:
		if err := validateEnumOptions(d.Options); err != nil {
			return err
		}
	default:
		return bizerror.ErrFieldDefinitionInvalid
	}
	if d.Key == "" || strings.TrimSpace(d.Key) != d.Key {
		return bizerror.ErrFieldDefinitionInvalid
	}
	return nil
}

func validateEnumOptions(options []string) error {
	if len(options) == 0 {
		return bizerror.ErrFieldDefinitionInvalid
	}
	uniSet := map[string]bool{}
	for _, item := range options {
		if len(item) == 0 || strings.TrimSpace(item) != item {
			return bizerror.ErrFieldDefinitionInvalid
		}
		if uniSet[strings.ToLower(item)] {
			return bizerror.ErrFieldDefinitionInvalid
		}
		uniSet[strings.ToLower(item)] = true
	}
	return nil
}

type FieldDefinitions []FieldDefinition

func (defs FieldDefinitions) Find(key string) (FieldDefinition, bool) {
	for _, d := range defs {
		if d.Key == key {
			return d, true
		}
	}
	return FieldDefinition{}, false
}

func (t FieldDefinitions) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&t)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *FieldDefinitions) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), c)
}
