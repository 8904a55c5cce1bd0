// =============================================================================
// Settlement Export - Report Normalizer
// =============================================================================
//
// The normalizer turns a parsed settlement report into the canonical table:
//
//   1. Rename   - source headers mapped through the locale schema table
//   2. Coerce   - money columns stripped of thousands separators and parsed
//   3. Dates    - localized date text parsed and keyed as dd-mm-yyyy
//   4. Keys     - invoice number derived from settlement id and order id
//   5. Filter   - FilterOrders keeps rows whose type is "Order"
//
// Filtering is a separate call so totals can be verified over every row of
// the file before the order filter runs.
//
// =============================================================================

package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/ginjaninja78/settlement-export/internal/config"
	"github.com/ginjaninja78/settlement-export/internal/csvparser"
	"github.com/ginjaninja78/settlement-export/internal/dateutil"
	"github.com/ginjaninja78/settlement-export/internal/logger"
	"github.com/ginjaninja78/settlement-export/internal/types"
)

// StructuralError reports input that does not have the expected shape: a
// missing column or a value of the wrong type.
type StructuralError struct {
	Stage  string
	Column string
	Detail string
}

func (e *StructuralError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("structural error during %s: %s", e.Stage, e.Detail)
	}
	return fmt.Sprintf("structural error during %s: column %q: %s", e.Stage, e.Column, e.Detail)
}

// Normalizer maps one organization's reports onto the canonical schema.
type Normalizer struct {
	org     *config.OrganizationConfig
	log     logger.Logger
	columns map[string]string
}

// New creates a normalizer for the organization.
func New(org *config.OrganizationConfig, log logger.Logger) *Normalizer {
	columns := make(map[string]string, len(org.Locale.Columns))
	for source, canonical := range org.Locale.Columns {
		columns[norm.NFC.String(source)] = canonical
	}
	return &Normalizer{org: org, log: log, columns: columns}
}

// Normalize builds the canonical table from a parsed report. Every row is
// kept; call FilterOrders afterwards.
//
// RETURNS:
//   - The canonical table.
//   - A *StructuralError when a required column is missing or a money
//     column holds a value that is not a number.
func (n *Normalizer) Normalize(data *csvparser.CSVData) (*types.Table, error) {
	canonical, err := n.renameHeaders(data.Headers)
	if err != nil {
		return nil, err
	}

	numeric := make(map[string]bool, len(n.org.Locale.NumericColumns))
	for _, c := range n.org.Locale.NumericColumns {
		numeric[c] = true
	}
	thousands := make(map[string]bool, len(n.org.Locale.ThousandsSeparatorColumns))
	for _, c := range n.org.Locale.ThousandsSeparatorColumns {
		thousands[c] = true
	}

	table := &types.Table{Columns: canonical}
	for _, c := range canonical {
		if numeric[c] {
			table.NumericColumns = append(table.NumericColumns, c)
		}
	}

	unparsedDates := 0
	table.Rows = make([]types.Record, 0, len(data.Rows))

	for i, raw := range data.Rows {
		rec := types.Record{
			Row:     i + 1,
			Text:    make(map[string]string, len(canonical)),
			Amounts: make(map[string]decimal.Decimal, len(table.NumericColumns)),
		}

		for j, header := range data.Headers {
			col := canonical[j]
			value := raw[header]

			if !numeric[col] {
				rec.Text[col] = value
				continue
			}

			amount, err := parseAmount(value, thousands[col])
			if err != nil {
				return nil, &StructuralError{
					Stage:  "coerce",
					Column: col,
					Detail: fmt.Sprintf("row %d: %q is not a number", rec.Row, value),
				}
			}
			rec.Amounts[col] = amount
		}

		if label, ok := n.org.Locale.TypeLabels[rec.Text[types.ColType]]; ok {
			rec.Text[types.ColType] = label
		}

		rawDate := rec.Text[types.ColDateTime]
		if parsed, ok := n.ParseDate(rawDate); ok {
			rec.Date = parsed
			rec.DateParsed = true
			rec.DateKey = dateutil.Key(parsed)
		} else {
			rec.DateKey = rawDate
			unparsedDates++
			if unparsedDates <= 5 {
				n.log.Warn("Row %d: date %q matches no %s format, leaving it unparsed", rec.Row, rawDate, n.org.Locale.Name)
			}
		}

		rec.InvoiceNumber = rec.Text[types.ColSettlementID] + "-" + rec.Text[types.ColOrderID]

		table.Rows = append(table.Rows, rec)
	}

	if unparsedDates > 5 {
		n.log.Warn("%d rows in total have unparsed dates", unparsedDates)
	}

	n.log.Debug("Normalized %d rows (%d columns, %d numeric) for %s",
		len(table.Rows), len(table.Columns), len(table.NumericColumns), n.org.Key())

	return table, nil
}

// renameHeaders maps source headers to canonical names and checks that every
// required column is present.
func (n *Normalizer) renameHeaders(headers []string) ([]string, error) {
	canonical := make([]string, len(headers))
	seen := make(map[string]string, len(headers))

	for i, h := range headers {
		name := h
		if mapped, ok := n.columns[norm.NFC.String(h)]; ok {
			name = mapped
		}
		if prev, dup := seen[name]; dup {
			return nil, &StructuralError{
				Stage:  "rename",
				Column: name,
				Detail: fmt.Sprintf("both %q and %q map to it", prev, h),
			}
		}
		seen[name] = h
		canonical[i] = name
	}

	for _, required := range config.RequiredColumns() {
		if _, ok := seen[required]; !ok {
			return nil, &StructuralError{
				Stage:  "rename",
				Column: required,
				Detail: fmt.Sprintf("missing from %s report", n.org.Locale.Name),
			}
		}
	}

	return canonical, nil
}

// ParseDate applies the locale's replacements and tries each date format.
func (n *Normalizer) ParseDate(raw string) (time.Time, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, false
	}
	for _, r := range n.org.Locale.DateReplacements {
		text = strings.ReplaceAll(text, r.Find, r.Replace)
	}
	text = strings.Join(strings.Fields(text), " ")

	for _, layout := range n.org.Locale.DateFormats {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FilterOrders returns a new table holding only "Order" rows.
func FilterOrders(table *types.Table) *types.Table {
	return table.Filter(func(r types.Record) bool {
		return r.Value(types.ColType) == types.OrderType
	})
}

// parseAmount parses a money cell. Blank cells are zero.
func parseAmount(value string, stripThousands bool) (decimal.Decimal, error) {
	v := strings.TrimSpace(value)
	if stripThousands {
		v = strings.ReplaceAll(v, ",", "")
	}
	if v == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v)
}
