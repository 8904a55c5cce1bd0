// =============================================================================
// Settlement Export - Validate Command
// =============================================================================
//
// This file defines the 'validate' command, which checks every organization
// configuration without processing any report.
//
// COMMAND USAGE:
//   settlement-export validate
//
// CHECKS:
//   1. The organization config itself (currency, reconciliation columns, ...)
//   2. Every required canonical column is reachable through the locale mapping
//   3. The SKU mapping workbook, when configured, can be loaded
//
// =============================================================================

package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/settlement-export/internal/config"
	"github.com/ginjaninja78/settlement-export/internal/xlsxparser"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate organization configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, orgs, _, err := loadConfig()
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(orgs))
		for k := range orgs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		total := 0
		for _, k := range keys {
			problems := validateOrganization(orgs[k])
			if len(problems) == 0 {
				fmt.Printf("  ✓ %s (%s, %s)\n", k, orgs[k].Locale.Name, orgs[k].CurrencyCode)
				continue
			}
			total += len(problems)
			fmt.Printf("  ✗ %s\n", k)
			for _, p := range problems {
				fmt.Printf("      - %s\n", p)
			}
		}

		if total > 0 {
			return fmt.Errorf("%d problem(s) found", total)
		}
		fmt.Printf("\n%d organization(s) OK\n", len(keys))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validateOrganization returns every problem found for one organization.
func validateOrganization(org *config.OrganizationConfig) []string {
	problems := org.Validate()

	// A required column is reachable when it is mapped to from some source
	// header or is itself an unmapped canonical header.
	reachable := make(map[string]bool)
	for _, canonical := range org.Locale.Columns {
		reachable[canonical] = true
	}
	for _, required := range config.RequiredColumns() {
		if _, renamed := org.Locale.Columns[required]; renamed && org.Locale.Columns[required] != required {
			if !reachable[required] {
				problems = append(problems, fmt.Sprintf("required column %q is renamed away and nothing maps to it", required))
			}
		}
	}

	if org.SKUMappingFile != "" {
		if _, err := xlsxparser.Parse(org.SKUMappingFile); err != nil {
			problems = append(problems, fmt.Sprintf("sku_mapping_file: %v", err))
		}
	}
	return problems
}
