// =============================================================================
// Settlement Export - Document Projector
// =============================================================================
//
// Projects the enriched settlement table into the three accounting import
// documents:
//
//   - Sales Order:  one row per sale plus generated shipping and gift-wrap
//                   service rows
//   - Invoice:      same rows with invoice header fields
//   - Credit Notes: one row per non-zero selling, FBA or other transaction
//                   fee
//
// Generated rows are collected per source row and merged in one pass, so
// each sits directly after the row it came from. Documents are built fully
// in memory; nothing is written until every document has been projected.
//
// =============================================================================

package projector

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/settlement-export/internal/config"
	"github.com/ginjaninja78/settlement-export/internal/dateutil"
	"github.com/ginjaninja78/settlement-export/internal/logger"
	"github.com/ginjaninja78/settlement-export/internal/normalizer"
	"github.com/ginjaninja78/settlement-export/internal/types"
)

// Kind names a document type as it appears in output file names.
type Kind string

const (
	KindSalesOrder Kind = "Sales Order"
	KindInvoice    Kind = "Invoice"
	KindCreditNote Kind = "Credit Notes"
)

// =============================================================================
// DOCUMENT
// =============================================================================

// Row is one projected document row.
type Row struct {
	Values map[string]string

	day     time.Time
	dated   bool
	dateKey string
	number  string
}

// Document is a fully projected output document.
type Document struct {
	Kind    Kind
	Columns []string
	Rows    []Row

	// UnmappedSKUs lists suffixed SKUs with no display name, sorted.
	UnmappedSKUs []string

	// RowsMissingRate counts rows written with a blank exchange rate.
	RowsMissingRate int

	// DroppedColumns lists the columns removed by columns_to_drop.
	DroppedColumns []string
}

// Value returns the cell of row i in column col.
func (d *Document) Value(i int, col string) string {
	return d.Rows[i].Values[col]
}

// Period returns the date of the first row, or false when the document is
// empty or its first date could not be parsed.
func (d *Document) Period() (time.Time, bool) {
	if len(d.Rows) == 0 || !d.Rows[0].dated {
		return time.Time{}, false
	}
	return d.Rows[0].day, true
}

// FileName returns "{Month} {Kind} {Year}.csv" for the first row's date.
func (d *Document) FileName() (string, error) {
	if len(d.Rows) == 0 {
		return "", &normalizer.StructuralError{Stage: "write", Detail: fmt.Sprintf("%s has no rows to name the file from", d.Kind)}
	}
	month, year, err := dateutil.MonthAndYear(d.Rows[0].dateKey)
	if err != nil {
		return "", &normalizer.StructuralError{Stage: "write", Detail: fmt.Sprintf("%s: %v", d.Kind, err)}
	}
	return FileName(d.Kind, month, year), nil
}

// FileName formats an output file name.
func FileName(kind Kind, month, year string) string {
	return fmt.Sprintf("%s %s %s.csv", month, kind, year)
}

// DropColumns removes the named columns when present and returns the names
// removed.
func (d *Document) DropColumns(cols []string) []string {
	drop := make(map[string]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}

	var dropped []string
	kept := d.Columns[:0:0]
	for _, c := range d.Columns {
		if drop[c] {
			dropped = append(dropped, c)
			continue
		}
		kept = append(kept, c)
	}
	d.Columns = kept
	for i := range d.Rows {
		for _, c := range dropped {
			delete(d.Rows[i].Values, c)
		}
	}
	return dropped
}

// sortRows orders rows by calendar day then document number. Rows with an
// unparsed date go last. The sort is stable so generated rows stay after
// their source row.
func (d *Document) sortRows() {
	sort.SliceStable(d.Rows, func(i, j int) bool {
		a, b := d.Rows[i], d.Rows[j]
		if a.dated != b.dated {
			return a.dated
		}
		if a.dated && !a.day.Equal(b.day) {
			return a.day.Before(b.day)
		}
		if !a.dated && a.dateKey != b.dateKey {
			return a.dateKey < b.dateKey
		}
		return a.number < b.number
	})
}

// =============================================================================
// PROJECTOR
// =============================================================================

// Projector builds the documents of one organization.
type Projector struct {
	org    *config.OrganizationConfig
	consts Constants
	skus   map[string]string
	log    logger.Logger
}

// New creates a projector. skuNames maps suffixed SKUs to item display names;
// nil uses the organization's sku_mapping.
func New(org *config.OrganizationConfig, skuNames map[string]string, log logger.Logger) *Projector {
	if skuNames == nil {
		skuNames = org.SKUMapping
	}
	return &Projector{
		org:    org,
		consts: ConstantsFor(org),
		skus:   skuNames,
		log:    log,
	}
}

// SalesOrder projects the sales subset into a Sales Order document.
func (p *Projector) SalesOrder(table *types.Table) (*Document, error) {
	return p.projectLines(table, salesOrderSpec)
}

// Invoice projects the sales subset into an Invoice document.
func (p *Projector) Invoice(table *types.Table) (*Document, error) {
	return p.projectLines(table, invoiceSpec)
}

// lineRequiredColumns are read for every SalesOrder and Invoice row.
var lineRequiredColumns = []string{
	types.ColSKU, types.ColDescription, types.ColQuantity, types.ColOrderCity,
}

func (p *Projector) projectLines(table *types.Table, spec lineSpec) (*Document, error) {
	if err := requireColumns(table, spec.kind, lineRequiredColumns); err != nil {
		return nil, err
	}

	doc := &Document{Kind: spec.kind}
	passthrough := passthroughColumns(table, spec.layout)
	doc.Columns = append(append([]string{}, spec.layout...), passthrough...)

	fixed := spec.fixed(p.consts)
	unmapped := map[string]bool{}

	// Pass one: per source row, the row itself followed by its generated rows.
	groups := make([][]Row, len(table.Rows))
	for i, rec := range table.Rows {
		rate := p.rateCell(rec)
		sku := rec.Value(types.ColSKU)
		suffixed := sku + p.org.SKUSuffix

		price, err := p.unitPrice(rec)
		if err != nil {
			return nil, err
		}

		itemName, ok := p.skus[suffixed]
		if !ok {
			itemName = suffixed
			if !unmapped[suffixed] {
				unmapped[suffixed] = true
				p.log.Warn("%s: SKU %s has no display name, using the SKU", spec.kind, suffixed)
			}
		}

		base := newRow(rec, spec, fixed, rate)
		base.Values["Item Name"] = itemName
		base.Values["SKU"] = suffixed
		base.Values["Item Desc"] = rec.Value(types.ColDescription)
		base.Values["Quantity"] = rec.Value(types.ColQuantity)
		base.Values["Item Price"] = price
		base.Values["Item Type"] = itemTypeGoods
		for _, c := range passthrough {
			base.Values[c] = cell(rec, c)
		}

		group := []Row{base}

		shipping := rec.Amount(types.ColShippingCredits).Add(rec.Amount(types.ColPromotionalRebates))
		if !shipping.IsZero() {
			group = append(group, serviceRow(rec, spec, fixed, rate, ShippingLabel, shipping))
		}
		if giftWrap := rec.Amount(types.ColGiftWrapCredits); !giftWrap.IsZero() {
			group = append(group, serviceRow(rec, spec, fixed, rate, GiftWrapLabel, giftWrap))
		}
		groups[i] = group
	}

	// Pass two: one concatenation.
	for _, g := range groups {
		doc.Rows = append(doc.Rows, g...)
	}

	p.finish(doc, unmapped)
	return doc, nil
}

// CreditNote projects the fee subset into a Credit Notes document.
func (p *Projector) CreditNote(table *types.Table) (*Document, error) {
	if err := requireColumns(table, KindCreditNote, []string{types.ColSKU, types.ColOrderCity}); err != nil {
		return nil, err
	}

	doc := &Document{Kind: KindCreditNote}
	passthrough := passthroughColumns(table, creditNoteLayout)
	doc.Columns = append(append([]string{}, creditNoteLayout...), passthrough...)

	fees := []struct {
		column string
		label  string
	}{
		{types.ColSellingFees, SellingFeesLabel},
		{types.ColFBAFees, FBAFeesLabel},
		{types.ColOtherTransactionFees, OtherFeesLabel},
	}

	for _, fee := range fees {
		for _, rec := range table.Rows {
			amount := rec.Amount(fee.column)
			if amount.IsZero() {
				continue
			}

			price := amount.Abs().String()
			row := Row{
				Values:  map[string]string{},
				day:     dateutil.Day(rec.Date),
				dated:   rec.DateParsed,
				dateKey: rec.DateKey,
				number:  rec.InvoiceNumber,
			}
			v := row.Values
			v["Credit Note Date"] = rec.DateKey
			v["Credit Note Number"] = rec.InvoiceNumber
			v["Applied Invoice Number"] = rec.InvoiceNumber
			v["Applied Invoice Date"] = rec.DateKey
			v["Amount to be Applied to Invoice"] = price
			v["Credit Note Status"] = p.consts.CreditNoteStatus
			v["Customer Name"] = p.consts.CustomerName
			v["Currency Code"] = p.consts.CurrencyCode
			v["Exchange Rate"] = p.rateCell(rec)
			v["Template Name"] = p.consts.TemplateName
			v["Description"] = fee.label
			v["Account"] = fee.label
			v["Quantity"] = serviceQuantity
			v["Item Price"] = price
			v["Item Tax Authority"] = p.consts.DocumentTaxAuthority
			v["Item Tax Exemption Reason"] = p.consts.DocumentTaxExemption
			v["Credit Note Level Tax Authority"] = p.consts.DocumentTaxAuthority
			v["Credit Note Level Tax Exemption Reason"] = p.consts.DocumentTaxExemption
			v["Sales Channel"] = p.consts.SalesChannel
			v["Products"] = rec.Value(types.ColSKU)
			v["Department"] = p.consts.Department
			setLocation(v, rec, "City", "State", "Country")
			for _, c := range passthrough {
				v[c] = cell(rec, c)
			}

			doc.Rows = append(doc.Rows, row)
		}
	}

	p.finish(doc, nil)
	return doc, nil
}

// finish drops configured columns, sorts rows and records unmapped SKUs.
func (p *Projector) finish(doc *Document, unmapped map[string]bool) {
	for _, row := range doc.Rows {
		if row.Values["Exchange Rate"] == "" {
			doc.RowsMissingRate++
		}
	}

	doc.DroppedColumns = doc.DropColumns(p.org.ColumnsToDrop)
	doc.sortRows()

	for sku := range unmapped {
		doc.UnmappedSKUs = append(doc.UnmappedSKUs, sku)
	}
	sort.Strings(doc.UnmappedSKUs)

	if doc.RowsMissingRate > 0 {
		p.log.Warn("%s: %d rows have no exchange rate", doc.Kind, doc.RowsMissingRate)
	}
	p.log.Debug("%s: projected %d rows, dropped %d columns", doc.Kind, len(doc.Rows), len(doc.DroppedColumns))
}

// unitPrice divides product sales by quantity.
func (p *Projector) unitPrice(rec types.Record) (string, error) {
	raw := strings.TrimSpace(rec.Value(types.ColQuantity))
	qty, err := decimal.NewFromString(raw)
	if err != nil {
		return "", &normalizer.StructuralError{
			Stage:  "project",
			Column: types.ColQuantity,
			Detail: fmt.Sprintf("row %d: %q is not a number", rec.Row, raw),
		}
	}
	if qty.IsZero() {
		p.log.Warn("Row %d: quantity is zero, leaving the item price blank", rec.Row)
		return "", nil
	}
	return rec.Amount(types.ColProductSales).Div(qty).String(), nil
}

// rateCell formats the joined exchange rate. Rows without one get "".
func (p *Projector) rateCell(rec types.Record) string {
	if !rec.HasRate {
		return ""
	}
	return strconv.FormatFloat(rec.ExchangeRate, 'f', -1, 64)
}

// =============================================================================
// ROW HELPERS
// =============================================================================

func newRow(rec types.Record, spec lineSpec, fixed map[string]string, rate string) Row {
	row := Row{
		Values:  make(map[string]string, len(spec.layout)),
		day:     dateutil.Day(rec.Date),
		dated:   rec.DateParsed,
		dateKey: rec.DateKey,
		number:  rec.InvoiceNumber,
	}
	for k, v := range fixed {
		row.Values[k] = v
	}
	for _, c := range spec.dateColumns {
		row.Values[c] = rec.DateKey
	}
	for _, c := range spec.numberColumns {
		row.Values[c] = rec.InvoiceNumber
	}
	row.Values["Exchange Rate"] = rate
	row.Values["Products"] = rec.Value(types.ColSKU)
	setLocation(row.Values, rec, spec.cityColumn, spec.stateColumn, spec.countryColumn)
	return row
}

func serviceRow(rec types.Record, spec lineSpec, fixed map[string]string, rate, label string, amount decimal.Decimal) Row {
	row := newRow(rec, spec, fixed, rate)
	row.Values["Item Name"] = label
	row.Values["SKU"] = label
	row.Values["Item Desc"] = label
	row.Values["Quantity"] = serviceQuantity
	row.Values["Item Price"] = amount.String()
	row.Values["Item Type"] = itemTypeService
	return row
}

func setLocation(values map[string]string, rec types.Record, cityCol, stateCol, countryCol string) {
	country := strings.ReplaceAll(rec.Location.Country, countryUS, countryUSDocument)
	values[cityCol] = rec.Value(types.ColOrderCity)
	values[stateCol] = rec.Location.State
	values[countryCol] = country
	values["Billing City"] = values[cityCol]
	values["Billing State"] = rec.Location.State
	values["Billing Country"] = country
}

// passthroughColumns are the report columns carried after the layout.
func passthroughColumns(table *types.Table, layout []string) []string {
	inLayout := make(map[string]bool, len(layout))
	for _, c := range layout {
		inLayout[c] = true
	}
	var cols []string
	for _, c := range table.Columns {
		if c == types.ColDateTime || inLayout[c] {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

func cell(rec types.Record, col string) string {
	if v, ok := rec.Amounts[col]; ok {
		return v.String()
	}
	return rec.Text[col]
}

func requireColumns(table *types.Table, kind Kind, cols []string) error {
	for _, c := range cols {
		if !table.HasColumn(c) {
			return &normalizer.StructuralError{
				Stage:  "project",
				Column: c,
				Detail: fmt.Sprintf("required by %s", kind),
			}
		}
	}
	return nil
}
