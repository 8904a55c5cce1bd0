package config

import (
	"embed"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed organizations/*.yaml
var builtinOrganizations embed.FS

// requiredCanonicalColumns must be reachable from every locale's schema mapping.
var requiredCanonicalColumns = []string{
	"date/time", "settlement id", "type", "order id", "sku", "description",
	"quantity", "order city", "order state", "product sales", "total",
}

// =============================================================================
// ORGANIZATION CONFIGURATION STRUCTURE
// =============================================================================

// OrganizationConfig holds everything that differs between selling organizations.
type OrganizationConfig struct {
	// Organization is the key used on the CLI and in the upload form
	// ("usa", "canada", "mexico").
	Organization string `yaml:"organization"`

	// FileMatchingPatterns are glob patterns matched against input file names
	// by the process command in directory mode.
	FileMatchingPatterns []string `yaml:"file_matching_patterns"`

	CSVSettings CSVSettings `yaml:"csv_settings"`

	// Locale is the declarative schema mapping for this organization's report.
	Locale LocaleConfig `yaml:"locale"`

	// =========================================================================
	// DOCUMENT CONSTANTS
	// =========================================================================

	CurrencyCode string `yaml:"currency_code"`
	CustomerName string `yaml:"customer_name"`

	// =========================================================================
	// RECONCILIATION
	// =========================================================================

	// TaxColumns must sum to zero (within Tolerance) across the document rows.
	TaxColumns []string `yaml:"tax_columns"`

	// ColumnsToSum must sum to the total column (within Tolerance).
	ColumnsToSum []string `yaml:"columns_to_sum"`

	// ColumnsToDrop are removed from the projected documents when present.
	ColumnsToDrop []string `yaml:"columns_to_drop"`

	// Tolerance for both checks. Default: 1e-10
	Tolerance float64 `yaml:"tolerance"`

	// =========================================================================
	// SKU MAPPING
	// =========================================================================

	// SKUMapping maps suffixed SKUs to item display names.
	SKUMapping map[string]string `yaml:"sku_mapping"`

	// SKUMappingFile is an optional XLSX workbook merged over SKUMapping.
	SKUMappingFile string `yaml:"sku_mapping_file"`

	// SKUSuffix is appended to the report SKU. Default: "-AMZUS"
	SKUSuffix string `yaml:"sku_suffix"`
}

// CSVSettings contains settings for parsing the settlement report.
type CSVSettings struct {
	// Delimiter separates fields. Default: ","
	Delimiter string `yaml:"delimiter"`

	// PreambleRows is the number of descriptive rows before the header row.
	// Default: 7
	PreambleRows int `yaml:"preamble_rows"`

	// Encoding of the file: "UTF-8", "Windows-1252" or "ISO-8859-1".
	// Default: "UTF-8"
	Encoding string `yaml:"encoding"`
}

// LocaleConfig maps a locale's report onto the canonical schema.
type LocaleConfig struct {
	// Name of the locale, for logs ("en-US", "es-MX", ...).
	Name string `yaml:"name"`

	// Columns maps source header -> canonical column. Headers not listed keep
	// their name.
	Columns map[string]string `yaml:"columns"`

	// TypeLabels maps localized transaction types onto canonical ones
	// (e.g. "Pedido" -> "Order").
	TypeLabels map[string]string `yaml:"type_labels"`

	// DateReplacements are applied in order to the raw date text before
	// parsing (localized AM/PM markers, timezone abbreviations, month names).
	DateReplacements []Replacement `yaml:"date_replacements"`

	// DateFormats are Go time layouts tried in order.
	DateFormats []string `yaml:"date_formats"`

	// NumericColumns are the canonical columns parsed as money.
	NumericColumns []string `yaml:"numeric_columns"`

	// ThousandsSeparatorColumns have "," stripped before parsing.
	ThousandsSeparatorColumns []string `yaml:"thousands_separator_columns"`
}

// Replacement is a literal find/replace pair.
type Replacement struct {
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`
}

// Key returns the lower-case organization key.
func (o *OrganizationConfig) Key() string {
	return strings.ToLower(strings.TrimSpace(o.Organization))
}

// Canonical returns the canonical name for a source header.
func (l LocaleConfig) Canonical(header string) string {
	if mapped, ok := l.Columns[header]; ok {
		return mapped
	}
	return header
}

// =============================================================================
// LOADING
// =============================================================================

// ParseOrganizationConfig parses, defaults and validates one organization config.
func ParseOrganizationConfig(data []byte) (*OrganizationConfig, error) {
	var org OrganizationConfig
	if err := yaml.Unmarshal(data, &org); err != nil {
		return nil, fmt.Errorf("failed to parse organization config: %w", err)
	}

	applyOrganizationDefaults(&org)

	if problems := org.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid organization %q: %s", org.Organization, strings.Join(problems, "; "))
	}
	return &org, nil
}

// DefaultOrganizationConfigs returns the embedded usa, canada and mexico configs.
func DefaultOrganizationConfigs() (map[string]*OrganizationConfig, error) {
	entries, err := builtinOrganizations.ReadDir("organizations")
	if err != nil {
		return nil, fmt.Errorf("failed to list built-in organizations: %w", err)
	}

	configs := make(map[string]*OrganizationConfig, len(entries))
	for _, entry := range entries {
		data, err := builtinOrganizations.ReadFile(path.Join("organizations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read built-in %s: %w", entry.Name(), err)
		}
		org, err := ParseOrganizationConfig(data)
		if err != nil {
			return nil, fmt.Errorf("failed to load built-in %s: %w", entry.Name(), err)
		}
		configs[org.Key()] = org
	}
	return configs, nil
}

// applyOrganizationDefaults sets default values for an organization config.
func applyOrganizationDefaults(org *OrganizationConfig) {
	if org.CSVSettings.Delimiter == "" {
		org.CSVSettings.Delimiter = ","
	}
	if org.CSVSettings.PreambleRows == 0 {
		org.CSVSettings.PreambleRows = 7
	}
	if org.CSVSettings.Encoding == "" {
		org.CSVSettings.Encoding = "UTF-8"
	}
	if org.Tolerance == 0 {
		org.Tolerance = 1e-10
	}
	if org.SKUSuffix == "" {
		org.SKUSuffix = "-AMZUS"
	}
	if org.SKUMapping == nil {
		org.SKUMapping = map[string]string{}
	}
	if org.Locale.Columns == nil {
		org.Locale.Columns = map[string]string{}
	}
	if org.Locale.TypeLabels == nil {
		org.Locale.TypeLabels = map[string]string{}
	}
	if len(org.FileMatchingPatterns) == 0 && org.Key() != "" {
		org.FileMatchingPatterns = []string{"*" + org.Key() + "*.csv"}
	}
}

// Validate returns every problem found in the organization config.
func (o *OrganizationConfig) Validate() []string {
	var problems []string

	if o.Key() == "" {
		problems = append(problems, "organization is required")
	}
	if len(o.CurrencyCode) != 3 {
		problems = append(problems, fmt.Sprintf("currency_code %q must be a 3-letter code", o.CurrencyCode))
	}
	if o.CustomerName == "" {
		problems = append(problems, "customer_name is required")
	}
	if len(o.TaxColumns) == 0 {
		problems = append(problems, "tax_columns must not be empty")
	}
	if len(o.ColumnsToSum) == 0 {
		problems = append(problems, "columns_to_sum must not be empty")
	}
	if len(o.Locale.DateFormats) == 0 {
		problems = append(problems, "locale.date_formats must not be empty")
	}
	if o.Tolerance < 0 {
		problems = append(problems, "tolerance must not be negative")
	}

	numeric := make(map[string]bool, len(o.Locale.NumericColumns))
	for _, c := range o.Locale.NumericColumns {
		numeric[c] = true
	}
	for _, c := range append(append([]string{}, o.TaxColumns...), o.ColumnsToSum...) {
		if !numeric[c] {
			problems = append(problems, fmt.Sprintf("column %q is summed but not listed in locale.numeric_columns", c))
		}
	}
	if !numeric["total"] || !numeric["product sales"] {
		problems = append(problems, "locale.numeric_columns must include \"product sales\" and \"total\"")
	}

	seen := make(map[string]string, len(o.Locale.Columns))
	for source, canonical := range o.Locale.Columns {
		if other, dup := seen[canonical]; dup {
			problems = append(problems, fmt.Sprintf("locale maps both %q and %q to %q", other, source, canonical))
		}
		seen[canonical] = source
	}

	sort.Strings(problems)
	return problems
}

// RequiredColumns returns the canonical columns every report must provide.
func RequiredColumns() []string {
	return append([]string(nil), requiredCanonicalColumns...)
}

// FindOrganizationForFile returns the organization whose file pattern matches
// the file name, or nil. Organizations are tried in key order.
func FindOrganizationForFile(filePath string, orgs map[string]*OrganizationConfig) *OrganizationConfig {
	fileName := strings.ToLower(filepath.Base(filePath))

	keys := make([]string, 0, len(orgs))
	for k := range orgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, pattern := range orgs[k].FileMatchingPatterns {
			matched, err := filepath.Match(strings.ToLower(pattern), fileName)
			if err != nil {
				continue
			}
			if matched {
				return orgs[k]
			}
		}
	}
	return nil
}
