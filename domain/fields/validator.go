package fields

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"leadflow/bizerror"

	"github.com/fundwit/go-commons/types"
)

const (
	RuleUnknownField  = "unknown_field"
	RuleInactiveField = "inactive_field"
	RuleRequired      = "required"
	RuleType          = "type"
	RuleOptions       = "options"
	RuleMin           = "min"
	RuleMax           = "max"
	RuleMinLength     = "minLength"
	RuleMaxLength     = "maxLength"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

// ValidateValues checks a full value set against the definitions: unknown
// keys are rejected (closed schema), required-but-absent keys fail, absent
// keys with a default get the coerced default. Failures of every key are
// aggregated before the set is rejected.
func ValidateValues(defs FieldDefinitions, input map[string]interface{}) (FieldValues, error) {
	values, failures := validate(defs, input, false)
	if len(failures) > 0 {
		return nil, &bizerror.ValidationError{Failures: failures}
	}
	return values, nil
}

// ValidateAssigned checks only the given keys, for partial updates. The
// closed schema still applies; a required key may not be assigned an empty
// value but may be left untouched.
func ValidateAssigned(defs FieldDefinitions, input map[string]interface{}) (FieldValues, error) {
	values, failures := validate(defs, input, true)
	if len(failures) > 0 {
		return nil, &bizerror.ValidationError{Failures: failures}
	}
	return values, nil
}

func validate(defs FieldDefinitions, input map[string]interface{}, partial bool) (FieldValues, []bizerror.FieldFailure) {
	failures := []bizerror.FieldFailure{}

	unknownKeys := []string{}
	for key := range input {
		if _, found := defs.Find(key); !found {
			unknownKeys = append(unknownKeys, key)
		}
	}
	sort.Strings(unknownKeys)
	for _, key := range unknownKeys {
		failures = append(failures, bizerror.FieldFailure{FieldKey: key, Rule: RuleUnknownField,
			Message: "field is not defined"})
	}

	values := FieldValues{}
	for _, def := range defs {
		raw, present := input[def.Key]
		if present && !def.IsActive {
			failures = append(failures, bizerror.FieldFailure{FieldKey: def.Key, Rule: RuleInactiveField,
				Message: "field is inactive"})
			continue
		}
		if !present {
			if partial {
				continue
			}
			if def.DefaultValue != "" {
				raw = def.DefaultValue
			} else if def.Required {
				failures = append(failures, bizerror.FieldFailure{FieldKey: def.Key, Rule: RuleRequired,
					Message: "required field is absent"})
				continue
			} else {
				continue
			}
		}
		if raw == nil || raw == "" {
			if def.Required {
				failures = append(failures, bizerror.FieldFailure{FieldKey: def.Key, Rule: RuleRequired,
					Message: "required field is empty"})
			}
			continue
		}

		value, failure := coerceValue(def, raw)
		if failure != nil {
			failures = append(failures, *failure)
			continue
		}
		if failure := checkRules(def, value); failure != nil {
			failures = append(failures, *failure)
			continue
		}
		values = append(values, FieldValue{Key: def.Key, Type: def.Type, Raw: rawString(raw), Value: value})
	}

	return values, failures
}

func coerceValue(def FieldDefinition, raw interface{}) (interface{}, *bizerror.FieldFailure) {
	switch def.Type {
	case FieldTypeString:
		return coerceString(def, raw)
	case FieldTypeInteger:
		return coerceInteger(def, raw)
	case FieldTypeDecimal:
		return coerceDecimal(def, raw)
	case FieldTypeBoolean:
		return coerceBoolean(def, raw)
	case FieldTypeDate:
		return coerceTime(def, raw, dateLayout)
	case FieldTypeDatetime:
		return coerceDatetime(def, raw)
	case FieldTypeEnum:
		return coerceEnum(def, raw)
	case FieldTypeList:
		return coerceList(def, raw)
	case FieldTypeMap:
		return coerceMap(def, raw)
	}
	return nil, typeFailure(def, "unsupported field type "+string(def.Type))
}

func typeFailure(def FieldDefinition, message string) *bizerror.FieldFailure {
	return &bizerror.FieldFailure{FieldKey: def.Key, Rule: RuleType, Message: message}
}

func coerceString(def FieldDefinition, raw interface{}) (interface{}, *bizerror.FieldFailure) {
	s, ok := raw.(string)
	if !ok {
		return nil, typeFailure(def, fmt.Sprintf("expected string, got %T", raw))
	}
	return s, nil
}

func coerceInteger(def FieldDefinition, raw interface{}) (interface{}, *bizerror.FieldFailure) {
	switch v := raw.(type) {
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, typeFailure(def, "'"+v+"' is not an integer")
		}
		return parsed, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, typeFailure(def, fmt.Sprintf("%v is not an integer", v))
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return nil, typeFailure(def, "'"+v.String()+"' is not an integer")
		}
		return parsed, nil
	}
	return nil, typeFailure(def, fmt.Sprintf("expected integer, got %T", raw))
}

func coerceDecimal(def FieldDefinition, raw interface{}) (interface{}, *bizerror.FieldFailure) {
	switch v := raw.(type) {
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, typeFailure(def, "'"+v+"' is not a number")
		}
		return parsed, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, typeFailure(def, "'"+v.String()+"' is not a number")
		}
		return parsed, nil
	}
	return nil, typeFailure(def, fmt.Sprintf("expected number, got %T", raw))
}

func coerceBoolean(def FieldDefinition, raw interface{}) (interface{}, *bizerror.FieldFailure) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, typeFailure(def, "'"+v+"' is not a boolean")
		}
		return parsed, nil
	}
	return nil, typeFailure(def, fmt.Sprintf("expected boolean, got %T", raw))
}

func coerceTime(def FieldDefinition, raw interface{}, layout string) (interface{}, *bizerror.FieldFailure) {
	s, ok := raw.(string)
	if !ok {
		return nil, typeFailure(def, fmt.Sprintf("expected %s string, got %T", def.Type, raw))
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return nil, typeFailure(def, "'"+s+"' is not a valid "+string(def.Type))
	}
	return timestampOf(t), nil
}

func timestampOf(t time.Time) types.Timestamp {
	return types.TimestampOfDate(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func coerceDatetime(def FieldDefinition, raw interface{}) (interface{}, *bizerror.FieldFailure) {
	s, ok := raw.(string)
	if !ok {
		return nil, typeFailure(def, fmt.Sprintf("expected datetime string, got %T", raw))
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return timestampOf(t), nil
	}
	if t, err := time.Parse(datetimeLayout, s); err == nil {
		return timestampOf(t), nil
	}
	return nil, typeFailure(def, "'"+s+"' is not a valid datetime")
}

func coerceEnum(def FieldDefinition, raw interface{}) (interface{}, *bizerror.FieldFailure) {
	s, ok := raw.(string)
	if !ok {
		return nil, typeFailure(def, fmt.Sprintf("expected enum string, got %T", raw))
	}
	for _, option := range def.Options {
		if strings.EqualFold(option, s) {
			return option, nil
		}
	}
	return nil, &bizerror.FieldFailure{FieldKey: def.Key, Rule: RuleOptions,
		Message: "'" + s + "' is not one of [" + strings.Join(def.Options, ", ") + "]"}
}

func coerceList(def FieldDefinition, raw interface{}) (interface{}, *bizerror.FieldFailure) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, typeFailure(def, fmt.Sprintf("expected list, got %T", raw))
	}
	itemType := def.ListItemType
	if itemType == "" {
		itemType = FieldTypeString
	}
	itemDef := FieldDefinition{Key: def.Key, Type: itemType, Options: def.Options, IsActive: true}
	values := make([]interface{}, 0, len(items))
	for _, item := range items {
		value, failure := coerceValue(itemDef, item)
		if failure != nil {
			return nil, failure
		}
		values = append(values, value)
	}
	return values, nil
}

func coerceMap(def FieldDefinition, raw interface{}) (interface{}, *bizerror.FieldFailure) {
	doc, ok := raw.(map[string]interface{})
	if !ok {
		return nil, typeFailure(def, fmt.Sprintf("expected map, got %T", raw))
	}
	return doc, nil
}

func checkRules(def FieldDefinition, value interface{}) *bizerror.FieldFailure {
	rules := def.Rules

	var number *float64
	switch v := value.(type) {
	case int64:
		f := float64(v)
		number = &f
	case float64:
		number = &v
	}
	if number != nil {
		if rules.Min != nil && *number < *rules.Min {
			return &bizerror.FieldFailure{FieldKey: def.Key, Rule: RuleMin,
				Message: fmt.Sprintf("value %v is below minimum %v", value, *rules.Min)}
		}
		if rules.Max != nil && *number > *rules.Max {
			return &bizerror.FieldFailure{FieldKey: def.Key, Rule: RuleMax,
				Message: fmt.Sprintf("value %v exceeds maximum %v", value, *rules.Max)}
		}
	}

	length := -1
	switch v := value.(type) {
	case string:
		length = len([]rune(v))
	case []interface{}:
		length = len(v)
	}
	if length >= 0 {
		if rules.MinLength != nil && length < *rules.MinLength {
			return &bizerror.FieldFailure{FieldKey: def.Key, Rule: RuleMinLength,
				Message: fmt.Sprintf("length %d is below minimum %d", length, *rules.MinLength)}
		}
		if rules.MaxLength != nil && length > *rules.MaxLength {
			return &bizerror.FieldFailure{FieldKey: def.Key, Rule: RuleMaxLength,
				Message: fmt.Sprintf("length %d exceeds maximum %d", length, *rules.MaxLength)}
		}
	}
	return nil
}

func rawString(raw interface{}) string {
	if s, ok := raw.(string); ok {
		return s
	}
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprintf("%v", raw)
	}
	return string(jsonBytes)
}
