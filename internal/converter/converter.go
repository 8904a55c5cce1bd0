// =============================================================================
// Settlement Export - Converter Module
// =============================================================================
//
// This module contains the core pipeline. It turns one settlement report into
// the three accounting import documents.
//
// CONVERSION PIPELINE:
//   1. Parse the report CSV (preamble skip, decoding, header cleanup)
//   2. Normalize to the canonical schema and verify totals
//   3. Build the sales and fee subsets and verify their tax balance
//   4. Resolve order locations
//   5. Resolve daily exchange rates and join them by date
//   6. Project Sales Order, Invoice and Credit Notes in memory and validate them
//   7. Write all three documents, then optionally bundle and upload
//
// A reconciliation, structural or validation failure in steps 1-6 aborts the
// run before any file exists. Location and rate gaps are logged and counted.
//
// CONCURRENCY:
//   A Converter holds no per-run state, so one instance can process several
//   reports at once. The location resolver's cache is shared between runs.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ginjaninja78/settlement-export/internal/config"
	"github.com/ginjaninja78/settlement-export/internal/csvparser"
	"github.com/ginjaninja78/settlement-export/internal/dateutil"
	"github.com/ginjaninja78/settlement-export/internal/exchange"
	"github.com/ginjaninja78/settlement-export/internal/location"
	"github.com/ginjaninja78/settlement-export/internal/logger"
	"github.com/ginjaninja78/settlement-export/internal/normalizer"
	"github.com/ginjaninja78/settlement-export/internal/projector"
	"github.com/ginjaninja78/settlement-export/internal/reconcile"
	"github.com/ginjaninja78/settlement-export/internal/storage"
	"github.com/ginjaninja78/settlement-export/internal/types"
	"github.com/ginjaninja78/settlement-export/internal/validation"
	"github.com/ginjaninja78/settlement-export/internal/xlsxparser"
	"github.com/ginjaninja78/settlement-export/pkg/utils"
)

// DefaultBundleName is the archive returned by the upload endpoint.
const DefaultBundleName = "AMZB2COutput.zip"

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of processing a single report.
type Result struct {
	// FilePath is the path to the report that was processed.
	FilePath string

	// Organization is the organization key the report was processed as.
	Organization string

	// RunID identifies the run in logs and uploaded object names.
	RunID string

	// OutputFiles are the written documents in Sales Order, Invoice,
	// Credit Notes order. In dry-run mode they are the paths that would
	// have been written.
	OutputFiles []string

	// BundlePath is the ZIP bundle, when bundling was requested.
	BundlePath string

	// BundleURI is the uploaded bundle location, when uploading was requested.
	BundleURI string

	// Success indicates whether the processing was successful.
	Success bool

	// Error contains the error if processing failed.
	Error error

	// Stats contains processing statistics.
	Stats ProcessingStats
}

// ProcessingStats contains statistics about the processing.
type ProcessingStats struct {
	// RowsRead is the number of data rows in the report.
	RowsRead int

	// OrderRows is the number of rows with transaction type Order.
	OrderRows int

	SalesOrderRows int
	InvoiceRows    int
	CreditNoteRows int

	// DroppedColumns lists zero-valued columns removed before projection.
	DroppedColumns []string

	// UnresolvedLocations counts distinct (city, state) pairs without a
	// location.
	UnresolvedLocations int

	// RowsMissingRate counts document rows written with a blank exchange rate.
	RowsMissingRate int

	// ValidationWarnings counts non-fatal document validation problems.
	ValidationWarnings int

	// UnmappedSKUs lists suffixed SKUs with no display name.
	UnmappedSKUs []string

	// ProcessingTime is the time taken to process the report.
	ProcessingTime time.Duration
}

// DateRange is the inclusive period a report covers.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether no range was given.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// =============================================================================
// CONVERTER STRUCTURE
// =============================================================================

// Options configures a Converter.
type Options struct {
	Main         *config.MainConfig
	Organization *config.OrganizationConfig

	Rates     *exchange.Resolver
	Locations *location.Resolver

	// Uploader receives the bundle when Upload is set.
	Uploader storage.Uploader

	// OutputDir overrides Main.OutputDir.
	OutputDir string

	// DryRun runs every check and projection but writes nothing.
	DryRun bool

	// Bundle zips the three documents into BundleName.
	Bundle     bool
	BundleName string

	// Upload sends the bundle to Uploader. It implies Bundle.
	Upload bool

	Logger logger.Logger

	// Now is used for the default date range. Defaults to time.Now.
	Now func() time.Time
}

// Converter runs the pipeline for one organization.
type Converter struct {
	opts      Options
	org       *config.OrganizationConfig
	projector *projector.Projector
	validator *validation.Validator
	logger    logger.Logger
}

// =============================================================================
// CONSTRUCTOR
// =============================================================================

// New creates a Converter. When the organization names a SKU mapping
// workbook it is loaded here and merged over the configured sku_mapping.
//
// RETURNS:
//   - A new Converter instance.
//   - An error if a required collaborator is missing or the workbook cannot
//     be read.
func New(opts Options) (*Converter, error) {
	if opts.Main == nil || opts.Organization == nil {
		return nil, fmt.Errorf("main and organization configs are required")
	}
	if opts.Rates == nil || opts.Locations == nil {
		return nil, fmt.Errorf("rate and location resolvers are required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OutputDir == "" {
		opts.OutputDir = opts.Main.OutputDir
	}
	if opts.BundleName == "" {
		opts.BundleName = DefaultBundleName
	}
	if opts.Upload {
		if opts.Uploader == nil {
			return nil, fmt.Errorf("upload requested but no uploader is configured")
		}
		opts.Bundle = true
	}

	org := opts.Organization
	log := opts.Logger

	skuNames := org.SKUMapping
	if org.SKUMappingFile != "" {
		workbook, err := xlsxparser.Parse(org.SKUMappingFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load SKU mapping for %s: %w", org.Key(), err)
		}
		for _, sku := range workbook.Duplicates {
			log.Warn("SKU %s appears more than once in %s, using the last row", sku, org.SKUMappingFile)
		}
		skuNames = workbook.Merge(org.SKUMapping)
		log.Debug("Loaded %d SKU names from %s", len(workbook.Names), org.SKUMappingFile)
	}

	return &Converter{
		opts:      opts,
		org:       org,
		projector: projector.New(org, skuNames, log),
		validator: validation.NewValidator(),
		logger:    log,
	}, nil
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run executes the pipeline for the report at inputPath, writing into the
// converter's output directory.
//
// PARAMETERS:
//   - ctx: Cancels network lookups.
//   - inputPath: The settlement report.
//   - period: The covered date range. A zero range means last month.
//
// RETURNS:
//   - A Result struct containing the outcome of the processing.
func (c *Converter) Run(ctx context.Context, inputPath string, period DateRange) Result {
	return c.RunInto(ctx, inputPath, c.opts.OutputDir, period)
}

// RunInto is Run with the documents and bundle written to outputDir, which
// is created when missing.
func (c *Converter) RunInto(ctx context.Context, inputPath, outputDir string, period DateRange) Result {
	if outputDir == "" {
		outputDir = c.opts.OutputDir
	}
	startTime := time.Now()
	result := Result{
		FilePath:     inputPath,
		Organization: c.org.Key(),
		RunID:        utils.NewRunID(),
	}
	log := c.logger

	fail := func(err error) Result {
		result.Error = err
		result.Stats.ProcessingTime = time.Since(startTime)
		log.Error("Processing %s failed: %v", filepath.Base(inputPath), err)
		return result
	}

	if period.IsZero() {
		period.Start, period.End = dateutil.LastMonthBounds(c.opts.Now())
	}
	if period.End.Before(period.Start) {
		return fail(&dateutil.InvalidRangeError{Start: period.Start, End: period.End})
	}

	log.Info("Processing %s as %s (%s to %s)", inputPath, c.org.Key(),
		dateutil.Key(period.Start), dateutil.Key(period.End))

	// =========================================================================
	// STEP 1: PARSE REPORT
	// =========================================================================

	data, err := csvparser.ParseFile(inputPath, c.org.CSVSettings)
	if err != nil {
		return fail(fmt.Errorf("failed to parse report: %w", err))
	}
	result.Stats.RowsRead = data.RowCount
	log.Debug("Parsed %d rows and %d columns", data.RowCount, data.ColumnCount)

	// =========================================================================
	// STEP 2: NORMALIZE AND VERIFY TOTALS
	// =========================================================================

	table, err := normalizer.New(c.org, log).Normalize(data)
	if err != nil {
		return fail(err)
	}
	if err := reconcile.VerifyTotals(table, c.org.ColumnsToSum, c.org.Tolerance); err != nil {
		return fail(err)
	}

	orders := normalizer.FilterOrders(table)
	result.Stats.OrderRows = len(orders.Rows)
	log.Debug("Kept %d of %d rows with type %s", len(orders.Rows), len(table.Rows), types.OrderType)

	// =========================================================================
	// STEP 3: BUILD DOCUMENT SOURCES
	// =========================================================================
	// Sales Order and Invoice project rows with product sales; Credit Notes
	// project the fees of every order. Each subset is pruned and balanced on
	// its own.

	sales := orders.Filter(func(r types.Record) bool {
		return !r.Amount(types.ColProductSales).IsZero()
	})
	fees := orders.Clone()

	for _, subset := range []struct {
		name  string
		table *types.Table
	}{{"sales", sales}, {"fees", fees}} {
		dropped := reconcile.DropZeroSumColumns(subset.table)
		result.Stats.DroppedColumns = appendUnique(result.Stats.DroppedColumns, dropped...)
		if len(dropped) > 0 {
			log.Debug("Dropped zero columns from %s rows: %s", subset.name, strings.Join(dropped, ", "))
		}
		if err := reconcile.VerifyTaxBalance(subset.table, c.org.TaxColumns, c.org.Tolerance); err != nil {
			return fail(fmt.Errorf("%s rows: %w", subset.name, err))
		}
	}

	// =========================================================================
	// STEP 4: RESOLVE LOCATIONS
	// =========================================================================

	resolved, unresolved := c.opts.Locations.ResolveBatch(ctx, append(location.Keys(sales), location.Keys(fees)...))
	location.Enrich(sales, resolved)
	location.Enrich(fees, resolved)
	result.Stats.UnresolvedLocations = len(unresolved)
	for _, k := range unresolved {
		log.Warn("Could not resolve location for city %q, state %q", k.City, k.State)
	}

	// =========================================================================
	// STEP 5: RESOLVE EXCHANGE RATES
	// =========================================================================

	target := c.opts.Main.ExchangeRates.TargetCurrency
	rates, err := c.opts.Rates.Resolve(ctx, c.org.CurrencyCode, target, period.Start, period.End)
	if err != nil {
		var unavailable *exchange.RateUnavailableError
		if !errors.As(err, &unavailable) {
			return fail(err)
		}
		log.Warn("Continuing without exchange rates: %v", err)
	}
	joinRates(sales, rates)
	joinRates(fees, rates)

	// =========================================================================
	// STEP 6: PROJECT DOCUMENTS
	// =========================================================================

	docs, err := c.project(sales, fees)
	if err != nil {
		return fail(err)
	}

	checked := c.validator.ValidateAll(docs)
	result.Stats.ValidationWarnings = checked.WarningCount
	if err := checked.Err(); err != nil {
		return fail(err)
	}
	for rule, n := range checked.CountByRule() {
		log.Debug("Validation: %d %s warning(s)", n, rule)
	}

	names, err := c.fileNames(docs, period)
	if err != nil {
		return fail(err)
	}

	for _, doc := range docs {
		result.Stats.RowsMissingRate += doc.RowsMissingRate
		result.Stats.UnmappedSKUs = appendUnique(result.Stats.UnmappedSKUs, doc.UnmappedSKUs...)
	}
	result.Stats.SalesOrderRows = len(docs[0].Rows)
	result.Stats.InvoiceRows = len(docs[1].Rows)
	result.Stats.CreditNoteRows = len(docs[2].Rows)

	// =========================================================================
	// STEP 7: WRITE DOCUMENTS
	// =========================================================================

	if c.opts.DryRun {
		for _, name := range names {
			result.OutputFiles = append(result.OutputFiles, filepath.Join(outputDir, name))
		}
		log.Info("Dry run: would write %s", strings.Join(names, ", "))
		return c.succeed(result, startTime)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fail(fmt.Errorf("failed to create output directory: %w", err))
	}
	for i, doc := range docs {
		path, err := projector.WriteFile(doc, outputDir, names[i])
		if err != nil {
			return fail(fmt.Errorf("failed to write %s: %w", doc.Kind, err))
		}
		result.OutputFiles = append(result.OutputFiles, path)
		log.Info("Wrote %s (%d rows)", path, len(doc.Rows))
	}

	if c.opts.Bundle {
		bundle := filepath.Join(outputDir, c.opts.BundleName)
		if err := utils.BundleZip(result.OutputFiles, bundle); err != nil {
			return fail(fmt.Errorf("failed to bundle documents: %w", err))
		}
		result.BundlePath = bundle
		log.Info("Bundled documents into %s", bundle)
	}

	if c.opts.Upload {
		object := storage.ObjectName(c.org.Key()+"/"+result.RunID, c.opts.BundleName)
		uri, err := c.opts.Uploader.Upload(ctx, object, result.BundlePath)
		if err != nil {
			return fail(fmt.Errorf("failed to upload bundle: %w", err))
		}
		result.BundleURI = uri
		log.Info("Uploaded bundle to %s", uri)
	}

	return c.succeed(result, startTime)
}

func (c *Converter) succeed(result Result, startTime time.Time) Result {
	result.Success = true
	result.Stats.ProcessingTime = time.Since(startTime)
	if n := result.Stats.RowsMissingRate; n > 0 {
		c.logger.Warn("%d document rows have no exchange rate", n)
	}
	if len(result.Stats.UnmappedSKUs) > 0 {
		c.logger.Warn("SKUs without a display name: %s", strings.Join(result.Stats.UnmappedSKUs, ", "))
	}
	return result
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// project builds Sales Order, Invoice and Credit Notes, in that order.
func (c *Converter) project(sales, fees *types.Table) ([]*projector.Document, error) {
	salesOrder, err := c.projector.SalesOrder(sales)
	if err != nil {
		return nil, err
	}
	invoice, err := c.projector.Invoice(sales)
	if err != nil {
		return nil, err
	}
	creditNote, err := c.projector.CreditNote(fees)
	if err != nil {
		return nil, err
	}
	return []*projector.Document{salesOrder, invoice, creditNote}, nil
}

// fileNames names each document from its first row. An empty document is
// named from the start of the period.
func (c *Converter) fileNames(docs []*projector.Document, period DateRange) ([]string, error) {
	month, year, err := dateutil.MonthAndYear(dateutil.Key(period.Start))
	if err != nil {
		return nil, err
	}

	names := make([]string, len(docs))
	for i, doc := range docs {
		if len(doc.Rows) == 0 {
			c.logger.Warn("%s has no rows, writing headers only", doc.Kind)
			names[i] = projector.FileName(doc.Kind, month, year)
			continue
		}
		name, err := doc.FileName()
		if err != nil {
			return nil, err
		}
		names[i] = name
	}
	return names, nil
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range list {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}
