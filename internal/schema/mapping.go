package schema

import (
	"fmt"
	"strings"
)

// Mapping translates one unified field into a carrier's vocabulary: the key
// is renamed and the value optionally rewritten first. Mapping is strictly
// one-directional (unified -> carrier); nothing maps back.
type Mapping struct {
	CarrierField string
	Transform    func(any) any
}

func identityMapping(carrierField string) Mapping {
	return Mapping{CarrierField: carrierField}
}

func enumMapping(carrierField string, table map[string]string) Mapping {
	return Mapping{
		CarrierField: carrierField,
		Transform: func(v any) any {
			s, ok := v.(string)
			if !ok {
				return v
			}
			if mapped, ok := table[s]; ok {
				return mapped
			}
			return s
		},
	}
}

// carrierMappings is declarative per-carrier data: which unified fields a
// carrier understands and under what names/values. Fields with no entry for
// a carrier are dropped during transformation, never passed through.
var carrierMappings = map[string]map[string]Mapping{
	"progressive": {
		"zipCode":       identityMapping("ZipCode"),
		"firstName":     identityMapping("FirstName"),
		"lastName":      identityMapping("LastName"),
		"dateOfBirth":   identityMapping("DateOfBirth"),
		"email":         identityMapping("EmailAddress"),
		"phone":         identityMapping("PhoneNumber"),
		"streetAddress": identityMapping("MailingAddress"),
		"aptUnit":       identityMapping("ApartmentUnit"),
		"city":          identityMapping("City"),
		"state":         identityMapping("State"),
		"gender":        enumMapping("Gender", map[string]string{"Male": "M", "Female": "F", "Non-binary": "X"}),
		"maritalStatus": identityMapping("MaritalStatus"),
		"homeOwnership": enumMapping("ResidenceType", map[string]string{
			"Own (fully paid off)":  "Own",
			"Own (making payments)": "Own",
			"Rent":                  "Rent",
			"Other":                 "Other",
		}),
		"vehicles":            identityMapping("Vehicles"),
		"accidents":           identityMapping("AccidentCount"),
		"violations":          identityMapping("ViolationCount"),
		"continuousInsurance": identityMapping("PriorInsurance"),
		"currentInsurer":      identityMapping("CurrentCarrier"),
		"coverageLevel": enumMapping("CoveragePackage", map[string]string{
			"State minimum": "Basic",
			"Standard":      "Recommended",
			"Premium":       "Superior",
		}),
	},
	"geico": {
		"zipCode":       identityMapping("zip"),
		"firstName":     identityMapping("first_name"),
		"lastName":      identityMapping("last_name"),
		"dateOfBirth":   identityMapping("date_of_birth"),
		"email":         identityMapping("email_address"),
		"streetAddress": identityMapping("street_address"),
		"aptUnit":       identityMapping("apt"),
		"city":          identityMapping("city"),
		"state":         identityMapping("state"),
		"gender":        identityMapping("gender"),
		"maritalStatus": enumMapping("marital_status", map[string]string{
			"Single":   "single",
			"Married":  "married",
			"Divorced": "divorced",
			"Widowed":  "widowed",
		}),
		"homeOwnership": enumMapping("home_type", map[string]string{
			"Own (fully paid off)":  "own",
			"Own (making payments)": "own",
			"Rent":                  "rent",
			"Other":                 "other",
		}),
		"vehicles":          identityMapping("vehicles"),
		"bundleHome":        identityMapping("bundle_home"),
		"paperlessDiscount": identityMapping("paperless"),
	},
}

// KnownCarrier reports whether a carrier has a mapping table.
func KnownCarrier(carrierID string) bool {
	_, ok := carrierMappings[strings.ToLower(carrierID)]
	return ok
}

// Carriers returns the ids with mapping tables, in no particular order.
func Carriers() []string {
	out := make([]string, 0, len(carrierMappings))
	for id := range carrierMappings {
		out = append(out, id)
	}
	return out
}

// TransformDataForCarrier rewrites a unified payload into one carrier's
// vocabulary. Unmapped unified fields are dropped; they must not leak to the
// carrier under any key.
func TransformDataForCarrier(data map[string]any, carrierID string) (map[string]any, error) {
	table, ok := carrierMappings[strings.ToLower(carrierID)]
	if !ok {
		return nil, fmt.Errorf("no mapping table for carrier: %s", carrierID)
	}

	out := make(map[string]any, len(data))
	for id, value := range data {
		mapping, ok := table[id]
		if !ok {
			continue
		}
		if mapping.Transform != nil {
			value = mapping.Transform(value)
		}
		out[mapping.CarrierField] = value
	}
	return out, nil
}

// MergeCarrierFields unions field definitions from multiple carriers into one
// deduplicated set. On id collision the first-declared definition wins unless
// a later one is required and the earlier one is not; a required definition
// never loses to an optional duplicate.
func MergeCarrierFields(lists ...[]FieldDef) []FieldDef {
	merged := make([]FieldDef, 0)
	index := make(map[string]int)

	for _, list := range lists {
		for _, fd := range list {
			at, seen := index[fd.ID]
			if !seen {
				index[fd.ID] = len(merged)
				merged = append(merged, fd)
				continue
			}
			if fd.Required && !merged[at].Required {
				merged[at] = fd
			}
		}
	}
	return merged
}
