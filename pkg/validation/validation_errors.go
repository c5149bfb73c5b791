package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldLabels maps JSON field names to the labels shown to applicants.
// Fields without an entry are reported by their JSON path.
var FieldLabels = map[string]string{
	"licenseNumber":               "Sponsor Licence number",
	"companyName":                 "Company name",
	"registeredAddress":           "Registered address",
	"tradingAddress":              "Trading address",
	"hasPayeReference":            "PAYE reference answer",
	"payeReferences":              "PAYE reference",
	"website":                     "Website",
	"telephone":                   "Telephone",
	"line1":                       "Address line 1",
	"city":                        "Town or city",
	"postcode":                    "Postcode",
	"country":                     "Country",
	"structureType":               "Company structure",
	"migrantWorkerCount":          "Migrant worker count",
	"fullName":                    "Full name",
	"reasonsForSponsorship":       "Reason for sponsorship",
	"firstName":                   "First name",
	"lastName":                    "Last name",
	"phoneNumber":                 "Phone number",
	"email":                       "Email",
	"dateOfBirth":                 "Date of birth",
	"hasNationalInsuranceNumber":  "National Insurance answer",
	"nationalInsuranceNumber":     "National Insurance number",
	"nationality":                 "Nationality",
	"isSettledWorker":             "Settled worker answer",
	"permissionExpiryDate":        "Permission expiry date",
	"hasConvictions":              "Convictions answer",
	"companyAddress":              "Company address",
	"companyRole":                 "Role in company",
	"hasUpcomingHoliday":          "Upcoming holiday answer",
	"level1Access":                "Level 1 access answer",
	"roleInCompany":               "Role in company",
	"address":                     "Address",
	"url":                         "File URL",
	"auditedAnnualAccounts":       "Audited annual accounts",
	"certificateOfIncorporation":  "Certificate of incorporation",
	"businessBankStatement":       "Business bank statement",
	"employersLiabilityInsurance": "Employers liability insurance",
	"turnoverBelow15M":            "Turnover threshold",
	"assetsBelow7_5M":             "Assets threshold",
	"employeesBelow50":            "Employee threshold",
	"serviceType":                 "Service type",
	"canMeetSponsorDuties":        "Sponsor duties answer",
	"slot":                        "Document slot",
	"fileName":                    "File name",
	"contentType":                 "Content type",
	"planId":                      "Plan",
}

// FormatValidationErrors converts validator.ValidationErrors to user-friendly messages
func FormatValidationErrors(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatSingleError(e))
	}
	return messages
}

// FirstMessage returns the first user-facing message for err.
func FirstMessage(err error) string {
	msgs := FormatValidationErrors(err)
	if len(msgs) == 0 {
		return "Invalid request"
	}
	return msgs[0]
}

// DecodeMessage turns a JSON decoding failure into a message naming the
// offending field.
func DecodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			return "Request body has an invalid structure."
		}
		return fmt.Sprintf("%s must be %s.", field, describeKind(typeErr.Type.Kind().String()))
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "Request body is not valid JSON."
	}
	if strings.HasPrefix(err.Error(), "json: unknown field ") {
		return "Unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ") + "."
	}
	return "Request body could not be decoded."
}

func describeKind(kind string) string {
	switch kind {
	case "bool":
		return "a boolean"
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64", "float32", "float64":
		return "a number"
	case "string":
		return "a string"
	case "slice", "array":
		return "a list"
	case "struct", "map", "ptr":
		return "an object"
	}
	return "of a different type"
}

// formatSingleError formats a single validation error to a user-friendly message
func formatSingleError(e validator.FieldError) string {
	label := fieldLabel(e)
	param := e.Param()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", label)
	case "min":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters.", label, param)
		}
		return fmt.Sprintf("%s must be at least %s.", label, param)
	case "max":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters.", label, param)
		}
		if e.Kind().String() == "slice" {
			return fmt.Sprintf("%s must contain at most %s entries.", label, param)
		}
		return fmt.Sprintf("%s must be at most %s.", label, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", label, strings.ReplaceAll(param, " ", ", "))
	case "email":
		return fmt.Sprintf("%s must be a valid email address.", label)
	case "url":
		return fmt.Sprintf("%s must be a valid URL.", label)
	case "datetime":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format.", label)
	case "uk_phone":
		return fmt.Sprintf("%s must be 11 digits starting with 0.", label)
	case "ni_number":
		return fmt.Sprintf("%s is not a valid National Insurance number.", label)
	default:
		return fmt.Sprintf("%s is invalid.", label)
	}
}

func fieldLabel(e validator.FieldError) string {
	if label, ok := FieldLabels[e.Field()]; ok {
		return label
	}
	return fieldPath(e)
}

// fieldPath strips the root struct name from the namespace.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
