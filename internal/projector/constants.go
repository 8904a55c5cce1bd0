package projector

import "github.com/ginjaninja78/settlement-export/internal/config"

// Labels of generated line items.
const (
	ShippingLabel     = "Shipping and Handling (Outbound)"
	GiftWrapLabel     = "Gift Wrap - Amz"
	SellingFeesLabel  = "Amazon Selling fees"
	FBAFeesLabel      = "Amazon FBA Fees"
	OtherFeesLabel    = "Amazon Selling fees"
	itemTypeGoods     = "Goods"
	itemTypeService   = "Service"
	serviceQuantity   = "1"
	countryUS         = "United States"
	countryUSDocument = "U.S.A"
)

// Constants are the values injected into every document row of an
// organization.
type Constants struct {
	CurrencyCode string
	CustomerName string

	// SalesOrderTaxAuthority and SalesOrderTaxExemption fill the sales
	// order level tax columns.
	SalesOrderTaxAuthority string
	SalesOrderTaxExemption string

	// DocumentTaxAuthority and DocumentTaxExemption fill the item and
	// document level tax columns of invoices and credit notes.
	DocumentTaxAuthority string
	DocumentTaxExemption string

	TemplateName     string
	SalesChannel     string
	Department       string
	WarehouseName    string
	SalesOrderStatus string
	InvoiceStatus    string
	CreditNoteStatus string
}

var baseConstants = Constants{
	SalesOrderTaxAuthority: "Canada Revenue Agency",
	SalesOrderTaxExemption: "EXPORT",
	DocumentTaxAuthority:   "Canada",
	DocumentTaxExemption:   "Export",
	TemplateName:           "Standard Template",
	SalesChannel:           "Amazon US",
	Department:             "Sales",
	WarehouseName:          "Amazon FBA US",
	SalesOrderStatus:       "Confirmed",
	InvoiceStatus:          "Open",
	CreditNoteStatus:       "Open",
}

var orgConstants = map[string]Constants{
	"usa":    withIdentity(baseConstants, "USD", "Amazon USA"),
	"canada": withIdentity(baseConstants, "CAD", "Amazon CA"),
	"mexico": withIdentity(baseConstants, "MXN", "Amazon Mexico"),
}

func withIdentity(c Constants, currency, customer string) Constants {
	c.CurrencyCode = currency
	c.CustomerName = customer
	return c
}

// ConstantsFor returns the document constants of an organization. Currency
// and customer name from the organization config take precedence over the
// built-in table, so new organizations need only a config file.
func ConstantsFor(org *config.OrganizationConfig) Constants {
	c, ok := orgConstants[org.Key()]
	if !ok {
		c = baseConstants
	}
	if org.CurrencyCode != "" {
		c.CurrencyCode = org.CurrencyCode
	}
	if org.CustomerName != "" {
		c.CustomerName = org.CustomerName
	}
	return c
}
