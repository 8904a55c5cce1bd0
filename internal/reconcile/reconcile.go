// =============================================================================
// Settlement Export - Reconciliation Checker
// =============================================================================
//
// Checks that decide whether a settlement file can be trusted at all. A
// failed check rejects the whole file: callers must not write any document
// once a check has failed.
//
// CHECKS:
//   - VerifyTotals:     sum(columns_to_sum) equals sum(total)
//   - VerifyTaxBalance: the tax columns net to zero
//
// Sums are taken with decimal arithmetic so the 1e-10 default tolerance is
// meaningful for two-decimal money columns.
//
// =============================================================================

package reconcile

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/settlement-export/internal/types"
)

// Check names reported in Failure.
const (
	CheckTotals     = "totals"
	CheckTaxBalance = "tax balance"
)

// Failure is returned when a reconciliation check does not hold.
type Failure struct {
	Check     string
	Columns   []string
	Sum       decimal.Decimal
	Expected  decimal.Decimal
	Tolerance float64
	Detail    string
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("reconciliation failed (%s): sum of [%s] is %s, expected %s within %g",
		f.Check, strings.Join(f.Columns, ", "), f.Sum.String(), f.Expected.String(), f.Tolerance)
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	return msg
}

// DropZeroSumColumns removes, in place, every numeric column that is zero on
// every row and returns the removed names. A column whose non-zero values
// merely offset each other is kept.
func DropZeroSumColumns(table *types.Table) []string {
	var dropped []string
	for _, col := range table.NumericColumns {
		if allZero(table, col) {
			dropped = append(dropped, col)
		}
	}
	if len(dropped) > 0 {
		table.RemoveColumns(dropped...)
	}
	return dropped
}

func allZero(table *types.Table, col string) bool {
	for _, r := range table.Rows {
		if !r.Amount(col).IsZero() {
			return false
		}
	}
	return true
}

// VerifyTaxBalance sums the tax columns still present in the table across all
// rows. It returns a *Failure when abs(sum) exceeds tolerance.
func VerifyTaxBalance(table *types.Table, taxColumns []string, tolerance float64) error {
	present := make([]string, 0, len(taxColumns))
	for _, c := range taxColumns {
		if table.HasColumn(c) {
			present = append(present, c)
		}
	}

	sum := sumColumns(table, present)
	if sum.Abs().GreaterThan(decimal.NewFromFloat(tolerance)) {
		return &Failure{
			Check:     CheckTaxBalance,
			Columns:   present,
			Sum:       sum,
			Expected:  decimal.Zero,
			Tolerance: tolerance,
		}
	}
	return nil
}

// VerifyTotals compares sum(columnsToSum) with sum(total). Columns missing
// from the table count as zero. An empty table fails: there is nothing to
// trust.
func VerifyTotals(table *types.Table, columnsToSum []string, tolerance float64) error {
	if len(table.Rows) == 0 {
		return &Failure{
			Check:     CheckTotals,
			Columns:   columnsToSum,
			Tolerance: tolerance,
			Detail:    "no data rows",
		}
	}

	sum := sumColumns(table, columnsToSum)
	total := table.Sum(types.ColTotal)

	if !sum.Sub(total).Abs().LessThan(decimal.NewFromFloat(tolerance)) {
		return &Failure{
			Check:     CheckTotals,
			Columns:   columnsToSum,
			Sum:       sum,
			Expected:  total,
			Tolerance: tolerance,
		}
	}
	return nil
}

func sumColumns(table *types.Table, cols []string) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range cols {
		sum = sum.Add(table.Sum(c))
	}
	return sum
}
