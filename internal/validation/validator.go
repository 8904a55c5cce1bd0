// =============================================================================
// Settlement Export - Document Validation
// =============================================================================
//
// This module checks the projected documents before anything is written.
//
// VALIDATION LEVELS:
//   - error:   the document cannot be imported (missing document number,
//              non-numeric price, negative credit amount). The run fails and
//              nothing is written.
//   - warning: the document imports but needs attention (blank exchange rate,
//              unresolved location, report date in a format the locale did
//              not recognize). Warnings are counted and logged.
//
// Rules only apply to columns present in the document, so columns removed by
// columns_to_drop are never reported.
//
// =============================================================================

package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/settlement-export/internal/dateutil"
	"github.com/ginjaninja78/settlement-export/internal/projector"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Rule names reported in ValidationError.Rule.
const (
	RuleRequired    = "required"
	RuleNumeric     = "numeric"
	RuleNonNegative = "non_negative"
	RuleDateFormat  = "date_format"
	RuleBlank       = "blank"
	RuleCustom      = "custom"
)

// =============================================================================
// VALIDATION ERROR
// =============================================================================

// ValidationError is one problem found in one document cell.
type ValidationError struct {
	Severity string
	Document projector.Kind
	Column   string
	Value    string
	Rule     string
	Message  string

	// Row is the 1-based data row in the written file.
	Row int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s row %d, column '%s': %s (value: '%s')",
		strings.ToUpper(e.Severity), e.Document, e.Row, e.Column, e.Message, e.Value)
}

// DocumentError is returned when validation finds at least one error.
type DocumentError struct {
	Errors []*ValidationError
}

func (e *DocumentError) Error() string {
	const shown = 3
	var parts []string
	for i, err := range e.Errors {
		if i == shown {
			parts = append(parts, fmt.Sprintf("and %d more", len(e.Errors)-shown))
			break
		}
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("document validation failed: %s", strings.Join(parts, "; "))
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult aggregates the problems of one or more documents.
type ValidationResult struct {
	IsValid bool

	Errors []*ValidationError

	ErrorCount   int
	WarningCount int

	RowsValidated int
}

// Err returns a *DocumentError holding the error-level problems, or nil.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	var fatal []*ValidationError
	for _, e := range r.Errors {
		if e.Severity == SeverityError {
			fatal = append(fatal, e)
		}
	}
	if len(fatal) == 0 {
		// Warnings promoted by TreatWarningsAsErrors.
		fatal = r.Errors
	}
	return &DocumentError{Errors: fatal}
}

// CountByRule returns how many problems each rule produced.
func (r *ValidationResult) CountByRule() map[string]int {
	counts := make(map[string]int)
	for _, e := range r.Errors {
		counts[e.Rule]++
	}
	return counts
}

// =============================================================================
// VALIDATOR
// =============================================================================

// ValidationOptions controls how problems are collected.
type ValidationOptions struct {
	// StopOnFirstError returns as soon as one error-level problem is found.
	StopOnFirstError bool

	// TreatWarningsAsErrors makes any warning fail the result.
	TreatWarningsAsErrors bool

	// CustomValidators run per column name on every non-empty cell.
	CustomValidators map[string]CustomValidatorFunc
}

// CustomValidatorFunc returns an error message, or "" when the value is valid.
type CustomValidatorFunc func(value string, ctx ValidationContext) string

// ValidationContext is passed to custom validators.
type ValidationContext struct {
	Document projector.Kind
	Column   string
	Row      int
	Values   map[string]string
}

// DefaultValidationOptions collects every problem without promoting warnings.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		CustomValidators: make(map[string]CustomValidatorFunc),
	}
}

// Validator checks projected documents.
type Validator struct {
	options ValidationOptions
}

// NewValidator creates a validator with the default options.
func NewValidator() *Validator {
	return &Validator{options: DefaultValidationOptions()}
}

// NewValidatorWithOptions creates a validator with custom options.
func NewValidatorWithOptions(options ValidationOptions) *Validator {
	return &Validator{options: options}
}

// Validate checks docs with the default options.
func Validate(docs ...*projector.Document) *ValidationResult {
	return NewValidator().ValidateAll(docs)
}

// ValidateAll checks every document and aggregates the result.
func (v *Validator) ValidateAll(docs []*projector.Document) *ValidationResult {
	result := &ValidationResult{IsValid: true}
	for _, doc := range docs {
		if v.validateInto(doc, result) {
			break
		}
	}
	return result
}

// ValidateDocument checks one document.
func (v *Validator) ValidateDocument(doc *projector.Document) *ValidationResult {
	result := &ValidationResult{IsValid: true}
	v.validateInto(doc, result)
	return result
}

// validateInto appends doc's problems to result and reports whether
// validation should stop.
func (v *Validator) validateInto(doc *projector.Document, result *ValidationResult) bool {
	rules, ok := rulesFor[doc.Kind]
	if !ok {
		return false
	}
	rules = rules.present(doc.Columns)

	for i, row := range doc.Rows {
		result.RowsValidated++
		for _, problem := range v.validateRow(doc.Kind, i+1, row.Values, rules) {
			result.Errors = append(result.Errors, problem)
			if problem.Severity == SeverityError {
				result.ErrorCount++
				result.IsValid = false
				if v.options.StopOnFirstError {
					return true
				}
				continue
			}
			result.WarningCount++
			if v.options.TreatWarningsAsErrors {
				result.IsValid = false
			}
		}
	}
	return false
}

func (v *Validator) validateRow(kind projector.Kind, rowNum int, values map[string]string, rules documentRules) []*ValidationError {
	var problems []*ValidationError
	add := func(severity, column, rule, message string) {
		problems = append(problems, &ValidationError{
			Severity: severity,
			Document: kind,
			Column:   column,
			Value:    values[column],
			Rule:     rule,
			Message:  message,
			Row:      rowNum,
		})
	}

	for _, col := range rules.required {
		if strings.TrimSpace(values[col]) == "" {
			add(SeverityError, col, RuleRequired, "Required field is empty")
		}
	}

	for _, col := range rules.numeric {
		raw := strings.TrimSpace(values[col])
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			add(SeverityError, col, RuleNumeric, "Value is not a valid number")
			continue
		}
		if rules.nonNegative[col] && d.IsNegative() {
			add(SeverityError, col, RuleNonNegative, "Value must not be negative")
		}
	}

	for _, col := range rules.dates {
		raw := strings.TrimSpace(values[col])
		if raw == "" {
			continue
		}
		if _, err := dateutil.ParseKey(raw); err != nil {
			add(SeverityWarning, col, RuleDateFormat, "Date is not in DD-MM-YYYY format")
		}
	}

	for _, col := range rules.warnIfBlank {
		if strings.TrimSpace(values[col]) == "" {
			add(SeverityWarning, col, RuleBlank, "Field is blank")
		}
	}

	for col, fn := range v.options.CustomValidators {
		value, ok := values[col]
		if !ok || value == "" {
			continue
		}
		msg := fn(value, ValidationContext{Document: kind, Column: col, Row: rowNum, Values: values})
		if msg != "" {
			add(SeverityError, col, RuleCustom, msg)
		}
	}

	return problems
}

// =============================================================================
// DOCUMENT RULES
// =============================================================================

type documentRules struct {
	required    []string
	numeric     []string
	nonNegative map[string]bool
	dates       []string
	warnIfBlank []string
}

// present keeps only the rules whose column the document still has.
func (r documentRules) present(columns []string) documentRules {
	has := make(map[string]bool, len(columns))
	for _, c := range columns {
		has[c] = true
	}
	keep := func(cols []string) []string {
		var out []string
		for _, c := range cols {
			if has[c] {
				out = append(out, c)
			}
		}
		return out
	}
	return documentRules{
		required:    keep(r.required),
		numeric:     keep(r.numeric),
		nonNegative: r.nonNegative,
		dates:       keep(r.dates),
		warnIfBlank: keep(r.warnIfBlank),
	}
}

var rulesFor = map[projector.Kind]documentRules{
	projector.KindSalesOrder: {
		required:    []string{"Date", "Sales Order Number", "Customer Name", "Currency Code", "Item Name"},
		numeric:     []string{"Quantity", "Item Price", "Exchange Rate"},
		dates:       []string{"Date", "Shipment Date"},
		warnIfBlank: []string{"Item Price", "Exchange Rate", "Ship State", "Ship Country"},
	},
	projector.KindInvoice: {
		required:    []string{"Invoice Date", "Invoice Number", "Customer Name", "Currency Code", "Item Name"},
		numeric:     []string{"Quantity", "Item Price", "Exchange Rate"},
		dates:       []string{"Invoice Date"},
		warnIfBlank: []string{"Item Price", "Exchange Rate", "Shipping State", "Shipping Country"},
	},
	projector.KindCreditNote: {
		required: []string{"Credit Note Date", "Credit Note Number", "Customer Name", "Currency Code", "Description"},
		numeric:  []string{"Quantity", "Item Price", "Exchange Rate", "Amount to be Applied to Invoice"},
		nonNegative: map[string]bool{
			"Item Price":                      true,
			"Amount to be Applied to Invoice": true,
		},
		dates:       []string{"Credit Note Date", "Applied Invoice Date"},
		warnIfBlank: []string{"Exchange Rate", "State", "Country"},
	},
}
