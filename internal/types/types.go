// =============================================================================
// Settlement Export - Shared Types
// =============================================================================
//
// This package contains the canonical settlement table shared by the
// normalizer, the reconciliation checker, the resolvers and the document
// projector. Keeping it here avoids import cycles between those stages.
//
// OWNERSHIP:
//   Each stage hands its table to the next by value (Clone / Filter return
//   new tables). The reconciliation checker is the one stage allowed to prune
//   columns of the table it is given.
//
// =============================================================================

package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CANONICAL COLUMN NAMES
// =============================================================================

// Canonical column names produced by the normalizer, whatever the source locale.
const (
	ColDateTime               = "date/time"
	ColSettlementID           = "settlement id"
	ColType                   = "type"
	ColOrderID                = "order id"
	ColSKU                    = "sku"
	ColDescription            = "description"
	ColQuantity               = "quantity"
	ColMarketplace            = "marketplace"
	ColFulfillment            = "fulfillment"
	ColOrderCity              = "order city"
	ColOrderState             = "order state"
	ColOrderPostal            = "order postal"
	ColTaxCollectionModel     = "tax collection model"
	ColProductSales           = "product sales"
	ColProductSalesTax        = "product sales tax"
	ColShippingCredits        = "shipping credits"
	ColShippingCreditsTax     = "shipping credits tax"
	ColGiftWrapCredits        = "gift wrap credits"
	ColGiftWrapCreditsTax     = "giftwrap credits tax"
	ColRegulatoryFee          = "Regulatory Fee"
	ColTaxOnRegulatoryFee     = "Tax On Regulatory Fee"
	ColPromotionalRebates     = "promotional rebates"
	ColPromotionalRebatesTax  = "promotional rebates tax"
	ColMarketplaceWithheldTax = "marketplace withheld tax"
	ColSellingFees            = "selling fees"
	ColFBAFees                = "fba fees"
	ColOtherTransactionFees   = "other transaction fees"
	ColOther                  = "other"
	ColTotal                  = "total"
)

// OrderType is the transaction type kept by the order filter.
const OrderType = "Order"

// =============================================================================
// LOCATION TYPES
// =============================================================================

// LocationKey identifies a (city, state-code) pair from the report.
type LocationKey struct {
	City  string
	State string
}

// Location is a resolved (country, full state name) pair. Resolved is false
// when neither could be determined; Country and State are then empty.
type Location struct {
	Country  string
	State    string
	Resolved bool
}

// =============================================================================
// SETTLEMENT RECORD
// =============================================================================

// Record is one row of the canonical settlement table.
type Record struct {
	// Row is the 1-based data row number in the source file.
	Row int

	// Text holds the non-numeric columns by canonical name.
	Text map[string]string

	// Amounts holds the monetary columns by canonical name.
	Amounts map[string]decimal.Decimal

	// Date is the parsed transaction date; DateParsed is false when the
	// locale's formats did not match and DateKey holds the raw text.
	Date       time.Time
	DateParsed bool
	DateKey    string

	// InvoiceNumber is "{settlement id}-{order id}".
	InvoiceNumber string

	// Location is filled by the location enrichment stage.
	Location Location

	// ExchangeRate is filled by the rate join; HasRate is false for gaps.
	ExchangeRate float64
	HasRate      bool
}

// Value returns a text column, or "" when absent.
func (r Record) Value(col string) string {
	return r.Text[col]
}

// Amount returns a monetary column, or zero when absent.
func (r Record) Amount(col string) decimal.Decimal {
	if v, ok := r.Amounts[col]; ok {
		return v
	}
	return decimal.Zero
}

// HasAmount reports whether the record carries the monetary column.
func (r Record) HasAmount(col string) bool {
	_, ok := r.Amounts[col]
	return ok
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := r
	c.Text = make(map[string]string, len(r.Text))
	for k, v := range r.Text {
		c.Text[k] = v
	}
	c.Amounts = make(map[string]decimal.Decimal, len(r.Amounts))
	for k, v := range r.Amounts {
		c.Amounts[k] = v
	}
	return c
}

// =============================================================================
// SETTLEMENT TABLE
// =============================================================================

// Table is the canonical settlement table.
type Table struct {
	// Columns lists every column in source order (text and numeric).
	Columns []string

	// NumericColumns lists the monetary columns present in Amounts.
	NumericColumns []string

	Rows []Record
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// IsNumeric reports whether the named column is a monetary column.
func (t *Table) IsNumeric(col string) bool {
	for _, c := range t.NumericColumns {
		if c == col {
			return true
		}
	}
	return false
}

// Sum adds a monetary column across all rows. Absent columns sum to zero.
func (t *Table) Sum(col string) decimal.Decimal {
	total := decimal.Zero
	for _, r := range t.Rows {
		total = total.Add(r.Amount(col))
	}
	return total
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := &Table{
		Columns:        append([]string(nil), t.Columns...),
		NumericColumns: append([]string(nil), t.NumericColumns...),
		Rows:           make([]Record, len(t.Rows)),
	}
	for i, r := range t.Rows {
		c.Rows[i] = r.Clone()
	}
	return c
}

// Filter returns a new table holding copies of the rows that match keep.
func (t *Table) Filter(keep func(Record) bool) *Table {
	c := &Table{
		Columns:        append([]string(nil), t.Columns...),
		NumericColumns: append([]string(nil), t.NumericColumns...),
	}
	for _, r := range t.Rows {
		if keep(r) {
			c.Rows = append(c.Rows, r.Clone())
		}
	}
	return c
}

// RemoveColumns deletes the named columns from the table in place.
func (t *Table) RemoveColumns(cols ...string) {
	drop := make(map[string]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}
	t.Columns = without(t.Columns, drop)
	t.NumericColumns = without(t.NumericColumns, drop)
	for i := range t.Rows {
		for c := range drop {
			delete(t.Rows[i].Text, c)
			delete(t.Rows[i].Amounts, c)
		}
	}
}

func without(cols []string, drop map[string]bool) []string {
	kept := cols[:0:0]
	for _, c := range cols {
		if !drop[c] {
			kept = append(kept, c)
		}
	}
	return kept
}
