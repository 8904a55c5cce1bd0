// =============================================================================
// Settlement Export - Serve Command
// =============================================================================
//
// This file defines the 'serve' command, which exposes the pipeline as an
// HTTP upload endpoint.
//
// COMMAND USAGE:
//   settlement-export serve [--addr :8080] [--upload]
//
// ENDPOINTS:
//   POST /processAmzDateRangeCsv  multipart form: file, strOrg, startdate, enddate
//   GET  /health
//
// =============================================================================

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/settlement-export/internal/api"
	"github.com/ginjaninja78/settlement-export/internal/api/handlers"
	"github.com/ginjaninja78/settlement-export/internal/config"
	"github.com/ginjaninja78/settlement-export/internal/converter"
	"github.com/ginjaninja78/settlement-export/pkg/utils"
)

var (
	serveAddr   string
	serveUpload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP upload endpoint",
	Long: `The serve command starts an HTTP server accepting settlement reports as a
multipart form upload. The response is a zip bundle of the three documents.

Each request is processed in its own working folder, so concurrent uploads
never see each other's files.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mainConfig, orgs, log, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			mainConfig.Server.Addr = serveAddr
		}

		files := utils.NewFileManager(mainConfig.InputDir, mainConfig.OutputDir, mainConfig.InputArchiveDir, mainConfig.UploadDir)
		if err := files.EnsureDirectories(); err != nil {
			return err
		}

		deps, err := newPipelineDeps(ctx, mainConfig, log, serveUpload)
		if err != nil {
			return err
		}
		defer deps.Close()

		factory := func(org *config.OrganizationConfig, outputDir string) (*converter.Converter, error) {
			return deps.converter(mainConfig, org, converter.Options{
				OutputDir: outputDir,
				Bundle:    true,
				Upload:    serveUpload,
			})
		}

		process := handlers.NewProcessHandler(orgs, files, factory, mainConfig.Server.MaxUploadMB, log)
		server := api.NewServer(mainConfig.Server, api.NewRouter(process, log.Zerolog()), log)
		return server.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveUpload, "upload", false, "Also upload each bundle to the configured bucket")
}
