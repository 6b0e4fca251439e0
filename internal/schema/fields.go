// Package schema is the carrier-agnostic catalog of every field any carrier
// might need, plus the per-carrier translation tables. The catalog is pure
// data; carriers never extend it at runtime.
package schema

// FieldType enumerates the value shapes the unified schema understands.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeEmail    FieldType = "email"
	TypeTel      FieldType = "tel"
	TypeDate     FieldType = "date"
	TypeSelect   FieldType = "select"
	TypeRadio    FieldType = "radio"
	TypeCheckbox FieldType = "checkbox"
	TypeNumber   FieldType = "number"
	TypeBoolean  FieldType = "boolean"
	TypeArray    FieldType = "array"
)

// FieldDef declares one unified field: identity, value shape and the
// validation rules the accumulator enforces. Array fields describe repeated
// entities (vehicles) through ItemFields.
type FieldDef struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	// Allowed values for enumerated types.
	Options []string `json:"options,omitempty"`
	// Validation rules; zero values mean "no rule".
	Pattern   string   `json:"pattern,omitempty"`
	MinLength int      `json:"minLength,omitempty"`
	MaxLength int      `json:"maxLength,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	// Per-item definitions for array fields.
	ItemFields []FieldDef `json:"itemFields,omitempty"`
}

// Category groups field definitions for presentation; ids stay globally
// unique across categories.
type Category struct {
	Name   string
	Fields []FieldDef
}

func f64(v float64) *float64 { return &v }

var catalog = []Category{
	{
		Name: "personal_info",
		Fields: []FieldDef{
			{ID: "firstName", Label: "First Name", Type: TypeText, Required: true, MinLength: 1, MaxLength: 50},
			{ID: "lastName", Label: "Last Name", Type: TypeText, Required: true, MinLength: 1, MaxLength: 50},
			{ID: "dateOfBirth", Label: "Date of Birth", Type: TypeDate, Required: true, Pattern: `^(0[1-9]|1[0-2])/(0[1-9]|[12]\d|3[01])/(19|20)\d{2}$`},
			{ID: "email", Label: "Email Address", Type: TypeEmail, Required: true, Pattern: `^[^@\s]+@[^@\s]+\.[^@\s]+$`},
			{ID: "phone", Label: "Phone Number", Type: TypeTel, Pattern: `^\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}$`},
		},
	},
	{
		Name: "address",
		Fields: []FieldDef{
			{ID: "zipCode", Label: "ZIP Code", Type: TypeText, Required: true, Pattern: `^\d{5}$`},
			{ID: "streetAddress", Label: "Street Address", Type: TypeText, Required: true, MinLength: 3, MaxLength: 100},
			{ID: "aptUnit", Label: "Apt/Unit", Type: TypeText, MaxLength: 20},
			{ID: "city", Label: "City", Type: TypeText, MinLength: 2, MaxLength: 60},
			{ID: "state", Label: "State", Type: TypeSelect, Options: stateCodes},
		},
	},
	{
		Name: "vehicle",
		Fields: []FieldDef{
			{ID: "vehicles", Label: "Vehicles", Type: TypeArray, Required: true, ItemFields: []FieldDef{
				{ID: "year", Label: "Year", Type: TypeNumber, Required: true, Min: f64(1981), Max: f64(2027)},
				{ID: "make", Label: "Make", Type: TypeText, Required: true, MinLength: 2, MaxLength: 40},
				{ID: "model", Label: "Model", Type: TypeText, Required: true, MinLength: 1, MaxLength: 40},
				{ID: "ownership", Label: "Ownership", Type: TypeSelect, Options: []string{
					"Own (fully paid off)", "Own (making payments)", "Lease",
				}},
				{ID: "primaryUse", Label: "Primary Use", Type: TypeSelect, Options: []string{
					"Commute", "Pleasure", "Business", "Rideshare",
				}},
				{ID: "annualMileage", Label: "Annual Mileage", Type: TypeNumber, Min: f64(0), Max: f64(100000)},
			}},
		},
	},
	{
		Name: "driving_history",
		Fields: []FieldDef{
			{ID: "accidents", Label: "Accidents (last 5 years)", Type: TypeNumber, Min: f64(0), Max: f64(10)},
			{ID: "violations", Label: "Moving Violations (last 5 years)", Type: TypeNumber, Min: f64(0), Max: f64(10)},
			{ID: "licenseAge", Label: "Age First Licensed", Type: TypeNumber, Min: f64(14), Max: f64(99)},
			{ID: "continuousInsurance", Label: "Continuously Insured", Type: TypeSelect, Options: []string{
				"Never insured", "Less than 1 year", "1-3 years", "3-5 years", "5+ years",
			}},
			{ID: "currentInsurer", Label: "Current Insurance Company", Type: TypeText, MaxLength: 60},
		},
	},
	{
		Name: "demographics",
		Fields: []FieldDef{
			{ID: "gender", Label: "Gender", Type: TypeSelect, Options: []string{"Male", "Female", "Non-binary"}},
			{ID: "maritalStatus", Label: "Marital Status", Type: TypeSelect, Options: []string{
				"Single", "Married", "Divorced", "Widowed",
			}},
			{ID: "homeOwnership", Label: "Home Ownership", Type: TypeSelect, Options: []string{
				"Own (fully paid off)", "Own (making payments)", "Rent", "Other",
			}},
			{ID: "education", Label: "Education", Type: TypeSelect, Options: []string{
				"High school", "Some college", "Bachelors", "Masters or higher",
			}},
			{ID: "occupation", Label: "Occupation", Type: TypeText, MaxLength: 60},
		},
	},
	{
		Name: "coverage",
		Fields: []FieldDef{
			{ID: "coverageLevel", Label: "Coverage Level", Type: TypeSelect, Options: []string{
				"State minimum", "Standard", "Premium",
			}},
			{ID: "bundleHome", Label: "Bundle Home Insurance", Type: TypeBoolean},
			{ID: "paperlessDiscount", Label: "Paperless Billing", Type: TypeBoolean},
		},
	},
}

var stateCodes = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA",
	"HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
	"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
	"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
	"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY", "DC",
}

var fieldIndex = buildIndex()

func buildIndex() map[string]FieldDef {
	idx := make(map[string]FieldDef)
	for _, cat := range catalog {
		for _, fd := range cat.Fields {
			idx[fd.ID] = fd
		}
	}
	return idx
}

// Catalog returns the full unified schema grouped by category.
func Catalog() []Category {
	return catalog
}

// AllFields returns every field definition in declaration order.
func AllFields() []FieldDef {
	out := make([]FieldDef, 0, len(fieldIndex))
	for _, cat := range catalog {
		out = append(out, cat.Fields...)
	}
	return out
}

// FieldByID looks up one definition from the unified catalog.
func FieldByID(id string) (FieldDef, bool) {
	fd, ok := fieldIndex[id]
	return fd, ok
}

// FieldsByID resolves a set of ids, silently skipping unknown ones.
func FieldsByID(ids []string) []FieldDef {
	out := make([]FieldDef, 0, len(ids))
	for _, id := range ids {
		if fd, ok := fieldIndex[id]; ok {
			out = append(out, fd)
		}
	}
	return out
}
