package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/settlement-export/internal/projector"
)

func salesOrderRow(overrides map[string]string) projector.Row {
	values := map[string]string{
		"Date":               "05-08-2024",
		"Shipment Date":      "05-08-2024",
		"Sales Order Number": "77-222-A",
		"Customer Name":      "Amazon USA",
		"Currency Code":      "USD",
		"Item Name":          "Moto Watch 70",
		"Quantity":           "1",
		"Item Price":         "80",
		"Exchange Rate":      "1",
		"Ship State":         "Florida",
		"Ship Country":       "U.S.A",
	}
	for k, v := range overrides {
		values[k] = v
	}
	return projector.Row{Values: values}
}

func salesOrder(rows ...projector.Row) *projector.Document {
	cols := []string{"Date", "Shipment Date", "Sales Order Number", "Customer Name", "Currency Code",
		"Item Name", "Quantity", "Item Price", "Exchange Rate", "Ship State", "Ship Country"}
	return &projector.Document{Kind: projector.KindSalesOrder, Columns: cols, Rows: rows}
}

func TestValidateCleanDocument(t *testing.T) {
	result := Validate(salesOrder(salesOrderRow(nil), salesOrderRow(nil)))

	assert.True(t, result.IsValid)
	assert.Zero(t, result.ErrorCount)
	assert.Zero(t, result.WarningCount)
	assert.Equal(t, 2, result.RowsValidated)
	assert.NoError(t, result.Err())
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name     string
		override map[string]string
		rule     string
		severity string
		column   string
	}{
		{"missing order number", map[string]string{"Sales Order Number": ""}, RuleRequired, SeverityError, "Sales Order Number"},
		{"non-numeric price", map[string]string{"Item Price": "12,50"}, RuleNumeric, SeverityError, "Item Price"},
		{"blank rate", map[string]string{"Exchange Rate": ""}, RuleBlank, SeverityWarning, "Exchange Rate"},
		{"raw report date", map[string]string{"Shipment Date": "2024/08/05 13:00"}, RuleDateFormat, SeverityWarning, "Shipment Date"},
		{"unresolved state", map[string]string{"Ship State": ""}, RuleBlank, SeverityWarning, "Ship State"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(salesOrder(salesOrderRow(tt.override)))

			require.Len(t, result.Errors, 1)
			problem := result.Errors[0]
			assert.Equal(t, tt.rule, problem.Rule)
			assert.Equal(t, tt.severity, problem.Severity)
			assert.Equal(t, tt.column, problem.Column)
			assert.Equal(t, 1, problem.Row)
			assert.Equal(t, tt.severity == SeverityWarning, result.IsValid)
		})
	}
}

func TestValidateCreditNoteRejectsNegativeAmounts(t *testing.T) {
	doc := &projector.Document{
		Kind:    projector.KindCreditNote,
		Columns: []string{"Credit Note Date", "Credit Note Number", "Customer Name", "Currency Code", "Description", "Item Price", "Exchange Rate", "State", "Country"},
		Rows: []projector.Row{{Values: map[string]string{
			"Credit Note Date":   "05-08-2024",
			"Credit Note Number": "77-222-A",
			"Customer Name":      "Amazon USA",
			"Currency Code":      "USD",
			"Description":        "Amazon FBA Fees",
			"Item Price":         "-4",
			"Exchange Rate":      "1",
			"State":              "Florida",
			"Country":            "U.S.A",
		}}},
	}

	result := Validate(doc)

	require.False(t, result.IsValid)
	require.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, RuleNonNegative, result.Errors[0].Rule)

	var docErr *DocumentError
	require.True(t, errors.As(result.Err(), &docErr))
	assert.Len(t, docErr.Errors, 1)
	assert.Contains(t, docErr.Error(), "Credit Notes row 1")
}

func TestValidateSkipsDroppedColumns(t *testing.T) {
	doc := salesOrder(salesOrderRow(map[string]string{"Ship Country": ""}))
	doc.Columns = doc.Columns[:len(doc.Columns)-1]

	result := Validate(doc)
	assert.Empty(t, result.Errors)
}

func TestValidatorOptions(t *testing.T) {
	docs := []*projector.Document{
		salesOrder(salesOrderRow(map[string]string{"Sales Order Number": "", "Item Name": ""})),
	}

	stop := NewValidatorWithOptions(ValidationOptions{StopOnFirstError: true}).ValidateAll(docs)
	assert.Equal(t, 1, stop.ErrorCount)

	strict := NewValidatorWithOptions(ValidationOptions{TreatWarningsAsErrors: true}).
		ValidateAll([]*projector.Document{salesOrder(salesOrderRow(map[string]string{"Exchange Rate": ""}))})
	assert.False(t, strict.IsValid)
	assert.Error(t, strict.Err())

	custom := NewValidatorWithOptions(ValidationOptions{
		CustomValidators: map[string]CustomValidatorFunc{
			"Currency Code": func(value string, ctx ValidationContext) string {
				if value != "USD" {
					return "unexpected currency"
				}
				return ""
			},
		},
	}).ValidateAll([]*projector.Document{salesOrder(salesOrderRow(map[string]string{"Currency Code": "CAD"}))})
	require.Len(t, custom.Errors, 1)
	assert.Equal(t, RuleCustom, custom.Errors[0].Rule)
}

func TestDocumentErrorTruncates(t *testing.T) {
	rows := make([]projector.Row, 5)
	for i := range rows {
		rows[i] = salesOrderRow(map[string]string{"Customer Name": ""})
	}

	err := Validate(salesOrder(rows...)).Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "and 2 more")
	assert.Equal(t, map[string]int{RuleRequired: 5}, Validate(salesOrder(rows...)).CountByRule())
}
