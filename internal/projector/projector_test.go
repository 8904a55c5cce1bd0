package projector

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/settlement-export/internal/config"
	"github.com/ginjaninja78/settlement-export/internal/logger"
	"github.com/ginjaninja78/settlement-export/internal/normalizer"
	"github.com/ginjaninja78/settlement-export/internal/types"
)

var textColumns = []string{
	types.ColDateTime, types.ColSettlementID, types.ColType, types.ColOrderID, types.ColSKU,
	types.ColDescription, types.ColQuantity, types.ColOrderCity, types.ColOrderState,
}

var moneyColumns = []string{
	types.ColProductSales, types.ColShippingCredits, types.ColGiftWrapCredits, types.ColPromotionalRebates,
	types.ColRegulatoryFee, types.ColSellingFees, types.ColFBAFees, types.ColOtherTransactionFees, types.ColTotal,
}

type row struct {
	day      int
	order    string
	sku      string
	qty      string
	amounts  map[string]string
	noRate   bool
	location types.Location
}

func usa(t *testing.T) *config.OrganizationConfig {
	t.Helper()
	orgs, err := config.DefaultOrganizationConfigs()
	require.NoError(t, err)
	return orgs["usa"]
}

func build(rows ...row) *types.Table {
	tbl := &types.Table{
		Columns:        append(append([]string{}, textColumns...), moneyColumns...),
		NumericColumns: moneyColumns,
	}
	for i, r := range rows {
		date := time.Date(2024, time.August, r.day, 10, 0, 0, 0, time.UTC)
		rec := types.Record{
			Row: i + 1,
			Text: map[string]string{
				types.ColDateTime:     date.Format(time.RFC3339),
				types.ColSettlementID: "555",
				types.ColType:         types.OrderType,
				types.ColOrderID:      r.order,
				types.ColSKU:          r.sku,
				types.ColDescription:  "Watch " + r.sku,
				types.ColQuantity:     r.qty,
				types.ColOrderCity:    "Austin",
				types.ColOrderState:   "TX",
			},
			Amounts:       map[string]decimal.Decimal{},
			Date:          date,
			DateParsed:    true,
			DateKey:       date.Format("02-01-2006"),
			InvoiceNumber: "555-" + r.order,
			Location:      types.Location{Country: "United States", State: "Texas", Resolved: true},
			ExchangeRate:  1,
			HasRate:       !r.noRate,
		}
		if r.location.Resolved || r.location.Country != "" {
			rec.Location = r.location
		}
		for _, c := range moneyColumns {
			rec.Amounts[c] = decimal.Zero
		}
		for c, v := range r.amounts {
			rec.Amounts[c] = decimal.RequireFromString(v)
		}
		tbl.Rows = append(tbl.Rows, rec)
	}
	return tbl
}

func TestSalesOrderShippingRowFollowsSource(t *testing.T) {
	p := New(usa(t), nil, logger.Nop())
	tbl := build(row{day: 1, order: "A", sku: "MOSWZ70-RG", qty: "1", amounts: map[string]string{
		types.ColProductSales: "100.00", types.ColShippingCredits: "5.00", types.ColTotal: "105.00"}})

	doc, err := p.SalesOrder(tbl)
	require.NoError(t, err)
	require.Len(t, doc.Rows, 2)

	assert.Equal(t, "Moto Watch 70 - Rose Gold (Amazon US)", doc.Value(0, "Item Name"))
	assert.Equal(t, "MOSWZ70-RG-AMZUS", doc.Value(0, "SKU"))
	assert.Equal(t, "Goods", doc.Value(0, "Item Type"))

	assert.Equal(t, ShippingLabel, doc.Value(1, "Item Name"))
	assert.Equal(t, ShippingLabel, doc.Value(1, "SKU"))
	assert.Equal(t, ShippingLabel, doc.Value(1, "Item Desc"))
	assert.Equal(t, "1", doc.Value(1, "Quantity"))
	assert.True(t, decimal.RequireFromString(doc.Value(1, "Item Price")).Equal(decimal.RequireFromString("5.00")))
	assert.Equal(t, "Service", doc.Value(1, "Item Type"))
	assert.Equal(t, "555-A", doc.Value(1, "Sales Order Number"))
	assert.Equal(t, "01-08-2024", doc.Value(1, "Shipment Date"))
	assert.Equal(t, "MOSWZ70-RG", doc.Value(1, "Products"))
	assert.Equal(t, "Amazon USA", doc.Value(1, "Customer Name"))
	assert.Equal(t, "USD", doc.Value(1, "Currency Code"))
	assert.Equal(t, "Canada Revenue Agency", doc.Value(1, "Sales Order Level Tax Authority"))
	assert.Equal(t, "EXPORT", doc.Value(1, "Sales Order Level Tax Exemption Reason"))
	assert.Equal(t, "", doc.Value(1, "Regulatory Fee"), "report columns are blank on generated rows")
}

func TestSalesOrderAdjacencyAcrossRows(t *testing.T) {
	p := New(usa(t), nil, logger.Nop())
	tbl := build(
		row{day: 2, order: "C", sku: "S3", qty: "1", amounts: map[string]string{types.ColProductSales: "10"}},
		row{day: 2, order: "A", sku: "S1", qty: "1", amounts: map[string]string{types.ColProductSales: "10", types.ColShippingCredits: "3"}},
		row{day: 2, order: "B", sku: "S2", qty: "1", amounts: map[string]string{
			types.ColProductSales: "10", types.ColShippingCredits: "4", types.ColGiftWrapCredits: "2.5"}},
		row{day: 1, order: "Z", sku: "S4", qty: "1", amounts: map[string]string{types.ColProductSales: "10"}},
	)

	doc, err := p.SalesOrder(tbl)
	require.NoError(t, err)

	var got []string
	for i := range doc.Rows {
		got = append(got, doc.Value(i, "Sales Order Number")+"/"+doc.Value(i, "Item Type")+"/"+doc.Value(i, "Item Desc"))
	}
	assert.Equal(t, []string{
		"555-Z/Goods/Watch S4",
		"555-A/Goods/Watch S1",
		"555-A/Service/" + ShippingLabel,
		"555-B/Goods/Watch S2",
		"555-B/Service/" + ShippingLabel,
		"555-B/Service/" + GiftWrapLabel,
		"555-C/Goods/Watch S3",
	}, got)
}

func TestSalesOrderPromotionalRebatesOffsetShipping(t *testing.T) {
	p := New(usa(t), nil, logger.Nop())
	tbl := build(
		row{day: 1, order: "A", sku: "S1", qty: "1", amounts: map[string]string{
			types.ColProductSales: "10", types.ColShippingCredits: "4.99", types.ColPromotionalRebates: "-4.99"}},
		row{day: 1, order: "B", sku: "S1", qty: "1", amounts: map[string]string{
			types.ColProductSales: "10", types.ColShippingCredits: "4.99", types.ColPromotionalRebates: "-1.00"}},
	)

	doc, err := p.SalesOrder(tbl)
	require.NoError(t, err)
	require.Len(t, doc.Rows, 3)
	assert.Equal(t, "3.99", doc.Value(2, "Item Price"))
}

func TestItemPriceTimesQuantityMatchesSales(t *testing.T) {
	p := New(usa(t), nil, logger.Nop())
	cases := []struct{ sales, qty string }{
		{"100.00", "3"}, {"59.97", "3"}, {"19.99", "1"}, {"-10.00", "7"}, {"1234.56", "12"},
	}
	var rows []row
	for i, c := range cases {
		rows = append(rows, row{day: 1, order: string(rune('A' + i)), sku: "S", qty: c.qty,
			amounts: map[string]string{types.ColProductSales: c.sales}})
	}

	for _, project := range []func(*types.Table) (*Document, error){p.SalesOrder, p.Invoice} {
		doc, err := project(build(rows...))
		require.NoError(t, err)
		for i, c := range cases {
			price := decimal.RequireFromString(doc.Value(i, "Item Price"))
			qty := decimal.RequireFromString(c.qty)
			diff := price.Mul(qty).Sub(decimal.RequireFromString(c.sales)).Abs()
			assert.True(t, diff.LessThan(decimal.New(1, -9)), "%s / %s", c.sales, c.qty)
		}
	}
}

func TestUnitPriceErrors(t *testing.T) {
	p := New(usa(t), nil, logger.Nop())

	_, err := p.SalesOrder(build(row{day: 1, order: "A", sku: "S", qty: "two", amounts: map[string]string{types.ColProductSales: "1"}}))
	var structural *normalizer.StructuralError
	require.True(t, errors.As(err, &structural))
	assert.Equal(t, types.ColQuantity, structural.Column)

	doc, err := p.SalesOrder(build(row{day: 1, order: "A", sku: "S", qty: "0", amounts: map[string]string{types.ColProductSales: "1"}}))
	require.NoError(t, err)
	assert.Equal(t, "", doc.Value(0, "Item Price"))
}

func TestUnmappedSKUPassesThrough(t *testing.T) {
	p := New(usa(t), map[string]string{"KNOWN-AMZUS": "Known Item"}, logger.Nop())
	tbl := build(
		row{day: 1, order: "A", sku: "KNOWN", qty: "1", amounts: map[string]string{types.ColProductSales: "1"}},
		row{day: 1, order: "B", sku: "NEW", qty: "1", amounts: map[string]string{types.ColProductSales: "1"}},
		row{day: 1, order: "C", sku: "NEW", qty: "1", amounts: map[string]string{types.ColProductSales: "1"}},
	)

	doc, err := p.Invoice(tbl)
	require.NoError(t, err)

	assert.Equal(t, "Known Item", doc.Value(0, "Item Name"))
	assert.Equal(t, "NEW-AMZUS", doc.Value(1, "Item Name"))
	assert.Equal(t, []string{"NEW-AMZUS"}, doc.UnmappedSKUs)
}

func TestInvoiceHeaderFields(t *testing.T) {
	p := New(usa(t), nil, logger.Nop())
	tbl := build(row{day: 9, order: "A", sku: "S", qty: "1", amounts: map[string]string{
		types.ColProductSales: "20", types.ColGiftWrapCredits: "3.49"}})

	doc, err := p.Invoice(tbl)
	require.NoError(t, err)
	require.Len(t, doc.Rows, 2)

	for i := range doc.Rows {
		assert.Equal(t, "09-08-2024", doc.Value(i, "Invoice Date"))
		assert.Equal(t, "555-A", doc.Value(i, "Invoice Number"))
		assert.Equal(t, "555-A", doc.Value(i, "Estimate Number"))
		assert.Equal(t, "555-A", doc.Value(i, "PurchaseOrder"))
		assert.Equal(t, "Open", doc.Value(i, "Invoice Status"))
		assert.Equal(t, "Canada", doc.Value(i, "Item Tax Authority"))
		assert.Equal(t, "Export", doc.Value(i, "Invoice Level Tax Exemption Reason"))
		assert.Equal(t, "Amazon FBA US", doc.Value(i, "Warehouse Name"))
		assert.Equal(t, "U.S.A", doc.Value(i, "Shipping Country"))
		assert.Equal(t, "U.S.A", doc.Value(i, "Billing Country"))
		assert.Equal(t, "Texas", doc.Value(i, "Billing State"))
	}
	assert.Equal(t, GiftWrapLabel, doc.Value(1, "Item Name"))
	assert.Equal(t, invoiceLayout, doc.Columns[:len(invoiceLayout)])
}

func TestCreditNote(t *testing.T) {
	p := New(usa(t), nil, logger.Nop())
	tbl := build(
		row{day: 3, order: "B", sku: "S2", qty: "1", amounts: map[string]string{
			types.ColSellingFees: "-3.00", types.ColFBAFees: "-4.25"}},
		row{day: 3, order: "A", sku: "S1", qty: "1", amounts: map[string]string{
			types.ColSellingFees: "-1.50", types.ColOtherTransactionFees: "0.75"}},
		row{day: 4, order: "C", sku: "S3", qty: "1", amounts: map[string]string{}},
	)

	doc, err := p.CreditNote(tbl)
	require.NoError(t, err)
	require.Len(t, doc.Rows, 4)

	type line struct{ number, desc, price string }
	var got []line
	for i := range doc.Rows {
		got = append(got, line{doc.Value(i, "Credit Note Number"), doc.Value(i, "Description"), doc.Value(i, "Item Price")})

		price := decimal.RequireFromString(doc.Value(i, "Item Price"))
		assert.False(t, price.IsNegative())
		assert.Equal(t, doc.Value(i, "Item Price"), doc.Value(i, "Amount to be Applied to Invoice"))
		assert.Equal(t, doc.Value(i, "Description"), doc.Value(i, "Account"))
		assert.Equal(t, doc.Value(i, "Credit Note Number"), doc.Value(i, "Applied Invoice Number"))
		assert.Equal(t, "03-08-2024", doc.Value(i, "Applied Invoice Date"))
		assert.Equal(t, "1", doc.Value(i, "Quantity"))
		assert.Equal(t, "", doc.Value(i, "SKU"))
		assert.Equal(t, "", doc.Value(i, "Warehouse Name"))
		assert.Equal(t, "U.S.A", doc.Value(i, "Country"))
	}
	assert.Equal(t, []line{
		{"555-A", SellingFeesLabel, "1.5"},
		{"555-A", OtherFeesLabel, "0.75"},
		{"555-B", SellingFeesLabel, "3"},
		{"555-B", FBAFeesLabel, "4.25"},
	}, got)
}

func TestMissingRateAndLocation(t *testing.T) {
	p := New(usa(t), nil, logger.Nop())
	tbl := build(
		row{day: 1, order: "A", sku: "S", qty: "1", noRate: true, amounts: map[string]string{
			types.ColProductSales: "10", types.ColShippingCredits: "1", types.ColGiftWrapCredits: "2"}},
	)
	tbl.Rows[0].Location = types.Location{}

	doc, err := p.SalesOrder(tbl)
	require.NoError(t, err)

	require.Len(t, doc.Rows, 3)
	assert.Equal(t, 3, doc.RowsMissingRate, "generated shipping and gift wrap rows count too")
	assert.Equal(t, "", doc.Value(2, "Exchange Rate"))
	assert.Equal(t, "", doc.Value(0, "Exchange Rate"))
	assert.Equal(t, "Austin", doc.Value(0, "Ship City"))
	assert.Equal(t, "", doc.Value(0, "Ship Country"))
}

func TestColumnsToDrop(t *testing.T) {
	p := New(usa(t), nil, logger.Nop())
	doc, err := p.SalesOrder(build(row{day: 1, order: "A", sku: "S", qty: "1", amounts: map[string]string{
		types.ColProductSales: "10", types.ColRegulatoryFee: "0.10"}}))
	require.NoError(t, err)

	assert.Equal(t, salesOrderLayout, doc.Columns[:len(salesOrderLayout)])
	assert.Equal(t, []string{types.ColRegulatoryFee}, doc.Columns[len(salesOrderLayout):])
	assert.Equal(t, "0.1", doc.Value(0, types.ColRegulatoryFee))
	assert.Contains(t, doc.DroppedColumns, types.ColSKU)
	assert.NotContains(t, doc.Columns, types.ColDateTime)
	_, present := doc.Rows[0].Values[types.ColSKU]
	assert.False(t, present)
}

func TestSortPutsUnparsedDatesLast(t *testing.T) {
	p := New(usa(t), nil, logger.Nop())
	tbl := build(
		row{day: 20, order: "B", sku: "S", qty: "1", amounts: map[string]string{types.ColProductSales: "1"}},
		row{day: 5, order: "A", sku: "S", qty: "1", amounts: map[string]string{types.ColProductSales: "1"}},
		row{day: 12, order: "C", sku: "S", qty: "1", amounts: map[string]string{types.ColProductSales: "1"}},
	)
	tbl.Rows[1].DateParsed = false
	tbl.Rows[1].DateKey = "garbled"

	doc, err := p.SalesOrder(tbl)
	require.NoError(t, err)

	assert.Equal(t, "12-08-2024", doc.Value(0, "Date"))
	assert.Equal(t, "20-08-2024", doc.Value(1, "Date"))
	assert.Equal(t, "garbled", doc.Value(2, "Date"))
}

func TestMissingColumnIsStructural(t *testing.T) {
	p := New(usa(t), nil, logger.Nop())
	tbl := build(row{day: 1, order: "A", sku: "S", qty: "1"})
	tbl.RemoveColumns(types.ColQuantity)

	_, err := p.Invoice(tbl)
	var structural *normalizer.StructuralError
	require.True(t, errors.As(err, &structural))
	assert.Equal(t, types.ColQuantity, structural.Column)
}

func TestFileNameAndWrite(t *testing.T) {
	p := New(usa(t), nil, logger.Nop())
	doc, err := p.SalesOrder(build(row{day: 31, order: "A", sku: "S", qty: "2", amounts: map[string]string{
		types.ColProductSales: "40"}}))
	require.NoError(t, err)

	name, err := doc.FileName()
	require.NoError(t, err)
	assert.Equal(t, "August Sales Order 2024.csv", name)

	period, ok := doc.Period()
	assert.True(t, ok)
	assert.Equal(t, time.August, period.Month())

	dir := t.TempDir()
	path, err := WriteFile(doc, dir, name)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, doc.Columns, records[0])
	assert.Equal(t, "20", records[1][22], "Item Price column")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
	assert.Equal(t, filepath.Base(path), entries[0].Name())

	empty := &Document{Kind: KindInvoice}
	_, err = empty.FileName()
	assert.Error(t, err)
	assert.Equal(t, "September Credit Notes 2024.csv", FileName(KindCreditNote, "September", "2024"))
	assert.True(t, strings.HasSuffix(name, ".csv"))
}
