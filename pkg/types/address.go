package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Address is the shipping destination captured at checkout. Stored as JSON.
type Address struct {
	Street       string  `json:"street" validate:"required"`
	Number       string  `json:"number" validate:"required"`
	Complement   *string `json:"complement,omitempty"`
	Neighborhood string  `json:"neighborhood" validate:"required"`
	City         string  `json:"city" validate:"required"`
	State        string  `json:"state" validate:"required"`
	ZipCode      string  `json:"zipCode" validate:"required"`
}

// MissingFields lists the json names of required fields that are blank.
func (a Address) MissingFields() []string {
	missing := []string{}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"street", a.Street},
		{"number", a.Number},
		{"neighborhood", a.Neighborhood},
		{"city", a.City},
		{"state", a.State},
		{"zipCode", a.ZipCode},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// Normalize trims surrounding whitespace and drops an empty complement.
func (a Address) Normalize() Address {
	out := Address{
		Street:       strings.TrimSpace(a.Street),
		Number:       strings.TrimSpace(a.Number),
		Neighborhood: strings.TrimSpace(a.Neighborhood),
		City:         strings.TrimSpace(a.City),
		State:        strings.TrimSpace(a.State),
		ZipCode:      strings.TrimSpace(a.ZipCode),
	}
	if a.Complement != nil {
		if c := strings.TrimSpace(*a.Complement); c != "" {
			out.Complement = &c
		}
	}
	return out
}

// Value marshals the address for a json/jsonb column.
func (a Address) Value() (driver.Value, error) {
	if missing := a.MissingFields(); len(missing) > 0 {
		return nil, fmt.Errorf("address: missing %s", strings.Join(missing, ", "))
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address: marshal: %w", err)
	}
	return string(raw), nil
}

// Scan decodes a json/jsonb column.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("address: unsupported scan type %T", value)
	}
	if err := json.Unmarshal(raw, a); err != nil {
		return fmt.Errorf("address: unmarshal: %w", err)
	}
	return nil
}
