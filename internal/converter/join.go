package converter

import (
	"github.com/ginjaninja78/settlement-export/internal/exchange"
	"github.com/ginjaninja78/settlement-export/internal/types"
)

// joinRates copies each row's daily rate from rates. Rows whose date has no
// rate (unparsed dates included) keep HasRate false.
func joinRates(table *types.Table, rates exchange.RateTable) {
	for i := range table.Rows {
		rec := &table.Rows[i]
		rec.ExchangeRate, rec.HasRate = 0, false
		if !rec.DateParsed {
			continue
		}
		if rate, ok := rates.Lookup(rec.DateKey); ok {
			rec.ExchangeRate, rec.HasRate = rate, true
		}
	}
}
