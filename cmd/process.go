// =============================================================================
// Settlement Export - Process Command
// =============================================================================
//
// This file defines the 'process' command, which runs the pipeline on one
// report (--file) or on every report in the input directory.
//
// COMMAND USAGE:
//   settlement-export process [flags]
//
// FLAGS:
//   --file     : Process a single report
//   --org      : Organization key (required with --file; filters directory mode)
//   --start    : First day of the period, YYYY-MM-DD (default: first day of last month)
//   --end      : Last day of the period, YYYY-MM-DD (default: last day of last month)
//   --dry-run  : Run every check but write nothing
//   --zip      : Bundle the three documents into a zip
//   --upload   : Upload the bundle to the configured bucket (implies --zip)
//
// PROCESSING PIPELINE:
//   1. Load configuration files
//   2. Resolve the period and the list of reports
//   3. Match each report to an organization
//   4. Run the converters concurrently (bounded by max_concurrency); with
//      several reports each one writes into output/{org}/{report name}
//   5. Archive processed reports
//   6. Write the error log and summary report
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/settlement-export/internal/config"
	"github.com/ginjaninja78/settlement-export/internal/converter"
	"github.com/ginjaninja78/settlement-export/internal/dateutil"
	"github.com/ginjaninja78/settlement-export/internal/exchange"
	"github.com/ginjaninja78/settlement-export/internal/location"
	"github.com/ginjaninja78/settlement-export/internal/logger"
	"github.com/ginjaninja78/settlement-export/internal/normalizer"
	"github.com/ginjaninja78/settlement-export/internal/reconcile"
	"github.com/ginjaninja78/settlement-export/internal/storage"
	"github.com/ginjaninja78/settlement-export/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	filePath     string
	organization string
	startDate    string
	endDate      string
	dryRun       bool
	zipOutput    bool
	uploadOutput bool
)

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Convert settlement reports into Sales Order, Invoice and Credit Note CSVs",
	Long: `The process command converts settlement reports into the three accounting
documents for the given period.

With --file a single report is processed for the organization named by --org.
Without it, every CSV in the input directory is matched to an organization by
its file name and processed concurrently.

On successful processing:
  - The documents are written to the output directory
  - The report is moved to the input archive
  - A summary report is generated

On error:
  - Nothing is written for the failing report
  - An error log is created in the output directory
  - The report remains in the input directory`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runProcess(ctx)
	},
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&filePath, "file", "", "Path to a single report to process")
	processCmd.Flags().StringVar(&organization, "org", "", "Organization key (usa, canada, mexico, ...)")
	processCmd.Flags().StringVar(&startDate, "start", "", "First day of the period (YYYY-MM-DD)")
	processCmd.Flags().StringVar(&endDate, "end", "", "Last day of the period (YYYY-MM-DD)")
	processCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run every check without writing output files")
	processCmd.Flags().BoolVar(&zipOutput, "zip", false, "Bundle the documents into a zip")
	processCmd.Flags().BoolVar(&uploadOutput, "upload", false, "Upload the bundle to the configured bucket")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runProcess(ctx context.Context) error {
	startTime := time.Now()

	// =========================================================================
	// STEP 1: LOAD CONFIGURATION
	// =========================================================================

	fmt.Println("=== Settlement Export ===")
	fmt.Println("Loading configuration...")

	mainConfig, orgs, log, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d organization configuration(s)\n", len(orgs))

	period, err := resolvePeriod(startDate, endDate, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Period: %s to %s\n", period.Start.Format(dateutil.FormLayout), period.End.Format(dateutil.FormLayout))

	fm := utils.NewFileManager(mainConfig.InputDir, mainConfig.OutputDir, mainConfig.InputArchiveDir, mainConfig.UploadDir)
	if err := fm.EnsureDirectories(); err != nil {
		return err
	}

	// =========================================================================
	// STEP 2: DISCOVER INPUT FILES
	// =========================================================================

	var inputFiles []string
	if filePath != "" {
		if organization == "" {
			return fmt.Errorf("--org is required with --file")
		}
		inputFiles = []string{filePath}
	} else {
		fmt.Println("Discovering input files...")
		inputFiles, err = fm.DiscoverInputFiles("*.csv")
		if err != nil {
			return fmt.Errorf("failed to discover input files: %w", err)
		}
	}

	if len(inputFiles) == 0 {
		fmt.Println("No CSV files found in the input directory.")
		return nil
	}
	fmt.Printf("Found %d file(s) to process\n", len(inputFiles))

	if mainConfig.ClearOutputDir && !dryRun {
		removed, err := utils.ClearDirectory(mainConfig.OutputDir)
		if err != nil {
			return fmt.Errorf("failed to clear output directory: %w", err)
		}
		log.Debug("Removed %d file(s) from %s", removed, mainConfig.OutputDir)
	}

	// =========================================================================
	// STEP 3: MATCH REPORTS TO ORGANIZATIONS
	// =========================================================================

	deps, err := newPipelineDeps(ctx, mainConfig, log, uploadOutput)
	if err != nil {
		return err
	}
	defer deps.Close()

	converters := make(map[string]*converter.Converter)
	var jobs []converter.Job
	var unmatched []converter.Result

	for _, file := range inputFiles {
		org, err := matchOrganization(file, orgs)
		if err != nil {
			unmatched = append(unmatched, converter.Result{FilePath: file, Error: err})
			continue
		}
		if filePath == "" && organization != "" && config.FindOrganizationForFile(file, orgs) != org {
			log.Debug("Skipping %s: not a %s report", filepath.Base(file), org.Key())
			continue
		}

		conv, ok := converters[org.Key()]
		if !ok {
			conv, err = deps.converter(mainConfig, org, converter.Options{
				DryRun: dryRun,
				Bundle: zipOutput,
				Upload: uploadOutput,
			})
			if err != nil {
				return err
			}
			converters[org.Key()] = conv
		}

		jobs = append(jobs, converter.Job{FilePath: file, Converter: conv, Period: period})
	}

	// =========================================================================
	// STEP 4: PROCESS FILES CONCURRENTLY
	// =========================================================================

	fmt.Println("Processing files...")
	results := converter.RunBatch(ctx, jobs, mainConfig.MaxConcurrency, !*mainConfig.ContinueOnError)
	results = append(results, unmatched...)

	// =========================================================================
	// STEP 5: ARCHIVE AND COLLECT RESULTS
	// =========================================================================

	summary := utils.ProcessingSummary{
		RunID:      utils.NewRunID(),
		StartTime:  startTime,
		TotalFiles: len(results),
	}
	var errorEntries []utils.ErrorLogEntry

	for _, result := range results {
		name := filepath.Base(result.FilePath)
		if !result.Success {
			summary.FailedFiles++
			summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
				InputFile:    name,
				ErrorMessage: result.Error.Error(),
				ErrorType:    errorType(result.Error),
			})
			errorEntries = append(errorEntries, utils.ErrorLogEntry{
				Timestamp:    time.Now(),
				FileName:     name,
				Organization: result.Organization,
				ErrorType:    errorType(result.Error),
				ErrorMessage: result.Error.Error(),
			})
			fmt.Printf("  ✗ %s: %v\n", name, result.Error)
			continue
		}

		summary.SuccessfulFiles++
		summary.TotalRows += result.Stats.RowsRead
		summary.DocumentRows += result.Stats.SalesOrderRows + result.Stats.InvoiceRows + result.Stats.CreditNoteRows
		summary.MissingRates += result.Stats.RowsMissingRate
		summary.UnmappedSKUs = appendMissing(summary.UnmappedSKUs, result.Stats.UnmappedSKUs)

		info := utils.ProcessedFileInfo{
			InputFile:    name,
			Organization: result.Organization,
			OutputFiles:  result.OutputFiles,
			BundlePath:   firstNonEmpty(result.BundleURI, result.BundlePath),
			Rows:         result.Stats.RowsRead,
			ProcessTime:  result.Stats.ProcessingTime,
		}

		if dryRun {
			fmt.Printf("  ✓ %s (dry run) would write:\n", name)
			for _, f := range result.OutputFiles {
				fmt.Printf("      %s\n", f)
			}
		} else {
			archivePath, err := fm.ArchiveInputFile(result.FilePath)
			if err != nil {
				log.Warn("Failed to archive %s: %v", name, err)
			}
			info.ArchivePath = archivePath
			fmt.Printf("  ✓ %s -> %s\n", name, strings.Join(relativePaths(mainConfig.OutputDir, result.OutputFiles), ", "))
		}

		summary.ProcessedFiles = append(summary.ProcessedFiles, info)
	}

	// =========================================================================
	// STEP 6: PRINT SUMMARY
	// =========================================================================

	summary.EndTime = time.Now()

	fmt.Println("\n=== Processing Complete ===")
	fmt.Printf("Total files:     %d\n", summary.TotalFiles)
	fmt.Printf("Successful:      %d\n", summary.SuccessfulFiles)
	fmt.Printf("Errors:          %d\n", summary.FailedFiles)
	fmt.Printf("Time elapsed:    %s\n", summary.EndTime.Sub(startTime))

	if dryRun {
		return failIfAny(summary.FailedFiles)
	}

	if len(errorEntries) > 0 {
		logPath, err := utils.WriteErrorLog(errorEntries, mainConfig.OutputDir)
		if err != nil {
			log.Error("Failed to write error log: %v", err)
		} else {
			fmt.Printf("\nErrors have been logged to %s\n", logPath)
		}
	}
	if _, err := utils.WriteSummaryLog(summary, mainConfig.OutputDir); err != nil {
		log.Error("Failed to write summary: %v", err)
	}

	return failIfAny(summary.FailedFiles)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// resolvePeriod parses the --start/--end flags. Both empty selects the
// previous calendar month.
func resolvePeriod(start, end string, now time.Time) (converter.DateRange, error) {
	if start == "" && end == "" {
		s, e := dateutil.LastMonthBounds(now)
		return converter.DateRange{Start: s, End: e}, nil
	}
	if start == "" || end == "" {
		return converter.DateRange{}, fmt.Errorf("--start and --end must be given together")
	}

	s, err := dateutil.ParseFormDate(start)
	if err != nil {
		return converter.DateRange{}, fmt.Errorf("invalid --start: %w", err)
	}
	e, err := dateutil.ParseFormDate(end)
	if err != nil {
		return converter.DateRange{}, fmt.Errorf("invalid --end: %w", err)
	}
	if e.Before(s) {
		return converter.DateRange{}, &dateutil.InvalidRangeError{Start: s, End: e}
	}
	return converter.DateRange{Start: s, End: e}, nil
}

var errNoOrganization = errors.New("no matching organization configuration found")

// matchOrganization picks the organization for a report: --org when given,
// otherwise the first whose file pattern matches.
func matchOrganization(file string, orgs map[string]*config.OrganizationConfig) (*config.OrganizationConfig, error) {
	if organization != "" {
		org, ok := orgs[strings.ToLower(organization)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown organization %q", errNoOrganization, organization)
		}
		return org, nil
	}
	if org := config.FindOrganizationForFile(file, orgs); org != nil {
		return org, nil
	}
	return nil, errNoOrganization
}

// pipelineDeps holds the resolvers and uploader shared by every converter
// built in one command invocation.
type pipelineDeps struct {
	rates     *exchange.Resolver
	locations *location.Resolver
	uploader  *storage.GCSUploader
	log       *logger.ZeroLogger
}

func newPipelineDeps(ctx context.Context, mainConfig *config.MainConfig, log *logger.ZeroLogger, withUploader bool) (*pipelineDeps, error) {
	fx := mainConfig.ExchangeRates
	var source exchange.Source
	if key := fx.APIKey(); key != "" {
		source = exchange.NewAlphaVantageClient(fx.BaseURL, key, fx.Timeout)
	} else {
		log.Warn("%s is not set; non-%s organizations will have blank exchange rates", fx.APIKeyEnv, fx.TargetCurrency)
	}

	var geocoder location.Geocoder
	if !mainConfig.Geocoder.Disabled {
		geocoder = location.NewNominatimClient(mainConfig.Geocoder.BaseURL, mainConfig.Geocoder.UserAgent, mainConfig.Geocoder.Timeout)
	}

	deps := &pipelineDeps{
		rates: exchange.NewResolver(source, log),
		locations: location.NewResolver(location.Options{
			Geocoder:      geocoder,
			Workers:       mainConfig.LocationWorkers,
			LookupTimeout: mainConfig.Geocoder.Timeout,
		}, log),
		log: log,
	}

	if withUploader {
		uploader, err := storage.NewGCSUploader(ctx, mainConfig.Storage.Bucket, mainConfig.Storage.Prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to set up bundle upload: %w", err)
		}
		deps.uploader = uploader
	}
	return deps, nil
}

// converter builds a converter for org. Flags already set on base are kept.
func (d *pipelineDeps) converter(mainConfig *config.MainConfig, org *config.OrganizationConfig, base converter.Options) (*converter.Converter, error) {
	base.Main = mainConfig
	base.Organization = org
	base.Rates = d.rates
	base.Locations = d.locations
	base.Logger = d.log.With(map[string]interface{}{"organization": org.Key()})
	if d.uploader != nil {
		base.Uploader = d.uploader
	}

	conv, err := converter.New(base)
	if err != nil {
		return nil, fmt.Errorf("failed to create converter for %s: %w", org.Key(), err)
	}
	return conv, nil
}

// Close releases the storage client, if any.
func (d *pipelineDeps) Close() {
	if d.uploader != nil {
		d.uploader.Close()
	}
}

// errorType classifies a failure for the error log.
func errorType(err error) string {
	var failure *reconcile.Failure
	var structural *normalizer.StructuralError
	var badRange *dateutil.InvalidRangeError
	switch {
	case errors.As(err, &failure):
		return "RECONCILIATION_" + strings.ToUpper(strings.ReplaceAll(failure.Check, " ", "_"))
	case errors.As(err, &structural):
		return "STRUCTURAL_ERROR"
	case errors.As(err, &badRange):
		return "INVALID_RANGE"
	case errors.Is(err, converter.ErrSkipped):
		return "SKIPPED"
	case errors.Is(err, errNoOrganization):
		return "NO_ORGANIZATION"
	default:
		return "PROCESSING_ERROR"
	}
}

func failIfAny(failed int) error {
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}

func appendMissing(dst, values []string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

// relativePaths shortens paths under root. In a batch each report writes
// into {root}/{organization}/{report name}.
func relativePaths(root string, paths []string) []string {
	names := make([]string, len(paths))
	for i, p := range paths {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		names[i] = rel
	}
	return names
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
