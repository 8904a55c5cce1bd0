package projector

// Column layouts of the three accounting import documents. Report columns
// that survive projection are appended after these and pruned by the
// organization's columns_to_drop list.

var salesOrderLayout = []string{
	"Date",
	"Shipment Date",
	"Sales Order Number",
	"Status",
	"Customer Name",
	"Sales Order Level Tax",
	"Sales Order Level Tax %",
	"Sales Order Level Tax Authority",
	"Sales Order Level Tax Exemption Reason",
	"PurchaseOrder",
	"Template Name",
	"Currency Code",
	"Exchange Rate",
	"Discount Type",
	"Is Discount BeforeTax",
	"Entity Discount Percent",
	"Item Name",
	"SKU",
	"Item Desc",
	"Quantity",
	"Warehouse Name",
	"Usage unit",
	"Item Price",
	"Item Type",
	"Discount",
	"Discount Amount",
	"Item Tax",
	"Item Tax %",
	"Item Tax Authority",
	"Item Tax Exemption Reason",
	"Shipping Charge",
	"Adjustment",
	"Adjustment Description",
	"Sales Person",
	"Notes",
	"Terms & Conditions",
	"Sales Channel",
	"Department",
	"Products",
	"Ship City",
	"Ship State",
	"Ship Country",
	"Billing City",
	"Billing State",
	"Billing Country",
	"Custom Field Value9",
	"Custom Field Value10",
	"Project Name",
}

var invoiceLayout = []string{
	"Invoice Date",
	"Invoice Number",
	"Estimate Number",
	"Invoice Status",
	"Customer Name",
	"Due Date",
	"PurchaseOrder",
	"Template Name",
	"Currency Code",
	"Exchange Rate",
	"Item Name",
	"SKU",
	"Item Desc",
	"Quantity",
	"Item Price",
	"Item Type",
	"Discount(%)",
	"Item Tax",
	"Item Tax %",
	"Item Tax Authority",
	"Item Tax Exemption Reason",
	"Notes",
	"Terms & Conditions",
	"Invoice Level Tax",
	"Invoice Level Tax %",
	"Invoice Level Tax Authority",
	"Invoice Level Tax Exemption Reason",
	"Sales Channel",
	"Department",
	"Products",
	"Shipping City",
	"Shipping State",
	"Shipping Country",
	"Billing City",
	"Billing State",
	"Billing Country",
	"Warehouse Name",
}

var creditNoteLayout = []string{
	"Credit Note Date",
	"Credit Note Number",
	"Applied Invoice Number",
	"Applied Invoice Date",
	"Amount to be Applied to Invoice",
	"Credit Note Status",
	"Customer Name",
	"Currency Code",
	"Exchange Rate",
	"Reference#",
	"Template Name",
	"Description",
	"SKU",
	"Account",
	"Quantity",
	"Item Price",
	"Item Tax",
	"Item Tax %",
	"Item Tax Authority",
	"Item Tax Exemption Reason",
	"Notes",
	"Terms & Conditions",
	"Credit Note Level Tax",
	"Credit Note Level Tax %",
	"Credit Note Level Tax Authority",
	"Credit Note Level Tax Exemption Reason",
	"Sales Channel",
	"Products",
	"Department",
	"City",
	"State",
	"Country",
	"Billing City",
	"Billing State",
	"Billing Country",
	"Warehouse Name",
}

// lineSpec describes how SalesOrder and Invoice rows fill their layout. Both
// documents share the item columns and differ in header fields.
type lineSpec struct {
	kind   Kind
	layout []string

	// dateColumns and numberColumns receive the date key and the document
	// number on every row, generated rows included.
	dateColumns   []string
	numberColumns []string

	// fixed returns the per-organization constants for every row.
	fixed func(c Constants) map[string]string

	cityColumn    string
	stateColumn   string
	countryColumn string
}

var salesOrderSpec = lineSpec{
	kind:          KindSalesOrder,
	layout:        salesOrderLayout,
	dateColumns:   []string{"Date", "Shipment Date"},
	numberColumns: []string{"Sales Order Number"},
	fixed: func(c Constants) map[string]string {
		return map[string]string{
			"Status":                                 c.SalesOrderStatus,
			"Customer Name":                          c.CustomerName,
			"Sales Order Level Tax Authority":        c.SalesOrderTaxAuthority,
			"Sales Order Level Tax Exemption Reason": c.SalesOrderTaxExemption,
			"Template Name":                          c.TemplateName,
			"Currency Code":                          c.CurrencyCode,
			"Warehouse Name":                         c.WarehouseName,
			"Sales Channel":                          c.SalesChannel,
			"Department":                             c.Department,
		}
	},
	cityColumn:    "Ship City",
	stateColumn:   "Ship State",
	countryColumn: "Ship Country",
}

var invoiceSpec = lineSpec{
	kind:          KindInvoice,
	layout:        invoiceLayout,
	dateColumns:   []string{"Invoice Date"},
	numberColumns: []string{"Invoice Number", "Estimate Number", "PurchaseOrder"},
	fixed: func(c Constants) map[string]string {
		return map[string]string{
			"Invoice Status":                     c.InvoiceStatus,
			"Customer Name":                      c.CustomerName,
			"Template Name":                      c.TemplateName,
			"Currency Code":                      c.CurrencyCode,
			"Item Tax Authority":                 c.DocumentTaxAuthority,
			"Item Tax Exemption Reason":          c.DocumentTaxExemption,
			"Invoice Level Tax Authority":        c.DocumentTaxAuthority,
			"Invoice Level Tax Exemption Reason": c.DocumentTaxExemption,
			"Sales Channel":                      c.SalesChannel,
			"Department":                         c.Department,
			"Warehouse Name":                     c.WarehouseName,
		}
	},
	cityColumn:    "Shipping City",
	stateColumn:   "Shipping State",
	countryColumn: "Shipping Country",
}
