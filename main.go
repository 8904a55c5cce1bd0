// =============================================================================
// Settlement Export - Main Entry Point
// =============================================================================
//
// USAGE:
//   settlement-export process   - Convert settlement reports into documents
//   settlement-export serve     - Start the HTTP upload endpoint
//   settlement-export validate  - Validate organization configurations
//   settlement-export version   - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Pipeline stages, API server and integrations
//   - pkg/           : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/settlement-export/cmd"
)

func main() {
	cmd.Execute()
}
