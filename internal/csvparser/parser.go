// =============================================================================
// Settlement Export - CSV Parser Module
// =============================================================================
//
// This module reads marketplace settlement reports. A report starts with a
// descriptive preamble (7 rows by default) followed by the header row and
// the transaction rows.
//
// FEATURES:
//   - Preamble skipping by physical line, so free-text preamble rows with
//     stray quotes or commas never reach the CSV reader
//   - Windows-1252 / ISO-8859-1 decoding via golang.org/x/text
//   - UTF-8 BOM removal and NFC header normalisation, so "descripción"
//     matches the locale tables whichever way the accent was encoded
//   - Short rows padded, blank rows skipped
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ginjaninja78/settlement-export/internal/config"
)

// ErrNoHeader is returned when nothing follows the preamble.
var ErrNoHeader = errors.New("no header row after preamble")

// =============================================================================
// CSV DATA STRUCTURE
// =============================================================================

// CSVData represents the parsed settlement report.
type CSVData struct {
	// Headers are the cleaned, NFC-normalised source headers in file order.
	Headers []string

	// Rows contains the data rows as maps of header -> value.
	Rows []map[string]string

	// SourceFile is the path to the source file, when parsed from disk.
	SourceFile string

	// RowCount is the number of data rows (excluding preamble and header).
	RowCount int

	// ColumnCount is the number of columns in the header.
	ColumnCount int
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseFile opens a report on disk and parses it.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//   - settings: The CSV settings from the organization configuration.
//
// RETURNS:
//   - A pointer to the CSVData struct containing the parsed data.
//   - An error if the file cannot be read or parsed.
func ParseFile(filePath string, settings config.CSVSettings) (*CSVData, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	data, err := Parse(file, settings)
	if err != nil {
		return nil, err
	}
	data.SourceFile = filePath
	return data, nil
}

// Parse reads a settlement report from r.
//
// PARSING PROCESS:
//  1. Decode the byte stream using the configured encoding
//  2. Skip the preamble lines
//  3. Read the header row and normalise it
//  4. Read data rows, padding short rows and skipping blank ones
func Parse(r io.Reader, settings config.CSVSettings) (*CSVData, error) {
	decoder, err := decoderFor(settings.Encoding)
	if err != nil {
		return nil, err
	}

	reader := bufio.NewReader(transform.NewReader(r, decoder))

	if err := skipLines(reader, settings.PreambleRows); err != nil {
		return nil, fmt.Errorf("failed to skip preamble: %w", err)
	}

	csvReader := csv.NewReader(reader)
	configureReader(csvReader, settings)

	headerRow, err := csvReader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	headers, err := cleanHeaders(headerRow)
	if err != nil {
		return nil, err
	}

	rows, err := extractDataRows(csvReader, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to read data rows: %w", err)
	}

	return &CSVData{
		Headers:     headers,
		Rows:        rows,
		RowCount:    len(rows),
		ColumnCount: len(headers),
	}, nil
}

// decoderFor returns the transformer that turns the named encoding into UTF-8.
// UTF-8 input has its byte order mark removed.
func decoderFor(name string) (transform.Transformer, error) {
	var enc encoding.Encoding
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "_", "-")) {
	case "", "UTF-8", "UTF8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "WINDOWS-1252", "CP1252":
		enc = charmap.Windows1252
	case "ISO-8859-1", "LATIN1", "LATIN-1":
		enc = charmap.ISO8859_1
	case "ISO-8859-15", "LATIN9":
		enc = charmap.ISO8859_15
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc.NewDecoder(), nil
}

// skipLines discards n physical lines. Reaching EOF early is not an error;
// the header read reports the missing header instead.
func skipLines(reader *bufio.Reader, n int) error {
	for i := 0; i < n; i++ {
		if _, err := reader.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
	return nil
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings config.CSVSettings) {
	switch settings.Delimiter {
	case "\\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(settings.Delimiter) > 0 {
			reader.Comma = rune(settings.Delimiter[0])
		} else {
			reader.Comma = ','
		}
	}

	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// cleanHeaders trims, NFC-normalises and de-duplicates header values.
// Empty headers get a positional placeholder; duplicates are an error since
// the row maps are keyed by header.
func cleanHeaders(headers []string) ([]string, error) {
	cleaned := make([]string, len(headers))
	seen := make(map[string]int, len(headers))

	for i, header := range headers {
		header = norm.NFC.String(strings.TrimSpace(header))
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		if prev, dup := seen[header]; dup {
			return nil, fmt.Errorf("duplicate header %q in columns %d and %d", header, prev+1, i+1)
		}
		seen[header] = i
		cleaned[i] = header
	}

	return cleaned, nil
}

// extractDataRows reads the remaining records and converts them to maps.
func extractDataRows(reader *csv.Reader, headers []string) ([]map[string]string, error) {
	var dataRows []map[string]string

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if isRowEmpty(row) {
			continue
		}

		rowMap := make(map[string]string, len(headers))
		for colIndex, header := range headers {
			if colIndex < len(row) {
				rowMap[header] = strings.TrimSpace(row[colIndex])
			} else {
				rowMap[header] = ""
			}
		}
		dataRows = append(dataRows, rowMap)
	}

	return dataRows, nil
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
