// =============================================================================
// Settlement Export - SKU Mapping Workbook Parser
// =============================================================================
//
// This module reads the optional XLSX workbook that maps suffixed SKUs to the
// item display names used in the Item Name column of the documents. The
// workbook is maintained by the catalogue team and merged over the
// organization's sku_mapping.
//
// WORKBOOK STRUCTURE (Expected Columns):
//   Columns are located by their header text, so extra columns and any
//   column order are accepted.
//
//   | SKU               | Item Name                                 |
//   |-------------------|-------------------------------------------|
//   | MOSWZ70-RG-AMZUS  | Moto Watch 70 - Rose Gold (Amazon US)     |
//   | MOSWZ40-PB-AMZUS  | Moto Watch 40 - Phantom Black (Amazon US) |
//
// When no recognizable header is found the first two columns are used.
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// =============================================================================
// MAPPING STRUCTURE
// =============================================================================

// Mapping is a parsed SKU workbook.
type Mapping struct {
	// SourceFile is the path to the workbook.
	SourceFile string

	// Sheet is the sheet the mapping was read from.
	Sheet string

	// Names maps suffixed SKU -> item display name.
	Names map[string]string

	// Duplicates lists SKUs that appeared more than once. The last row wins.
	Duplicates []string
}

// =============================================================================
// COLUMN CONFIGURATION
// =============================================================================

// Columns describes where the SKU and name columns are.
type Columns struct {
	// Sheet to read. Empty means the first sheet.
	Sheet string

	// SKUHeaders are accepted header texts for the SKU column
	// (case-insensitive).
	SKUHeaders []string

	// NameHeaders are accepted header texts for the display name column.
	NameHeaders []string

	// HeaderRow is the 0-based row holding the headers.
	HeaderRow int
}

// DefaultColumns returns the header names used by the catalogue workbook.
func DefaultColumns() Columns {
	return Columns{
		SKUHeaders:  []string{"sku", "seller sku", "msku"},
		NameHeaders: []string{"item name", "name", "product name", "display name"},
		HeaderRow:   0,
	}
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a SKU mapping workbook with the default column configuration.
//
// PARAMETERS:
//   - workbookPath: The path to the XLSX workbook.
//
// RETURNS:
//   - A pointer to the Mapping struct.
//   - An error if the file cannot be read or holds no mapping rows.
func Parse(workbookPath string) (*Mapping, error) {
	return ParseWithConfig(workbookPath, DefaultColumns())
}

// ParseWithConfig reads a SKU mapping workbook using a custom column
// configuration.
func ParseWithConfig(workbookPath string, columns Columns) (*Mapping, error) {
	f, err := excelize.OpenFile(workbookPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SKU workbook: %w", err)
	}
	defer f.Close()

	sheet := columns.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fmt.Errorf("SKU workbook has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of sheet %q: %w", sheet, err)
	}
	if len(rows) <= columns.HeaderRow {
		return nil, fmt.Errorf("sheet %q has no header row", sheet)
	}

	skuCol, nameCol := locateColumns(rows[columns.HeaderRow], columns)

	mapping := &Mapping{
		SourceFile: workbookPath,
		Sheet:      sheet,
		Names:      make(map[string]string),
	}
	seen := make(map[string]bool)

	for _, row := range rows[columns.HeaderRow+1:] {
		if isRowEmpty(row) {
			continue
		}
		sku := cellAt(row, skuCol)
		name := cellAt(row, nameCol)
		if sku == "" || name == "" {
			continue
		}
		if seen[sku] {
			mapping.Duplicates = append(mapping.Duplicates, sku)
		}
		seen[sku] = true
		mapping.Names[sku] = name
	}

	if len(mapping.Names) == 0 {
		return nil, fmt.Errorf("sheet %q contains no SKU mappings", sheet)
	}

	return mapping, nil
}

// Merge returns base overlaid with the workbook names.
func (m *Mapping) Merge(base map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(m.Names))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range m.Names {
		merged[k] = v
	}
	return merged
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// locateColumns finds the SKU and name columns by header text, falling back
// to columns A and B.
func locateColumns(header []string, columns Columns) (int, int) {
	skuCol, nameCol := -1, -1
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if skuCol < 0 && contains(columns.SKUHeaders, h) {
			skuCol = i
		}
		if nameCol < 0 && contains(columns.NameHeaders, h) {
			nameCol = i
		}
	}
	if skuCol < 0 || nameCol < 0 {
		return 0, 1
	}
	return skuCol, nameCol
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

func cellAt(row []string, index int) string {
	if index < len(row) {
		return strings.TrimSpace(row[index])
	}
	return ""
}

// isRowEmpty checks if a row contains only empty cells.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
