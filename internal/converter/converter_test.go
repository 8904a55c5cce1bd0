package converter

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/settlement-export/internal/config"
	"github.com/ginjaninja78/settlement-export/internal/exchange"
	"github.com/ginjaninja78/settlement-export/internal/location"
	"github.com/ginjaninja78/settlement-export/internal/logger"
	"github.com/ginjaninja78/settlement-export/internal/normalizer"
	"github.com/ginjaninja78/settlement-export/internal/reconcile"
)

var reportHeader = []string{
	"date/time", "settlement id", "type", "order id", "sku", "description", "quantity",
	"order city", "order state", "product sales", "product sales tax", "shipping credits",
	"shipping credits tax", "gift wrap credits", "promotional rebates", "marketplace withheld tax",
	"selling fees", "fba fees", "other transaction fees", "total",
}

func reportRows() [][]string {
	return [][]string{
		{"Aug 1, 2024 10:15:00 a.m. PDT", "900", "Order", "111-A", "MOSWZ70-RG", "Moto Watch 70", "1",
			"Austin", "TX", "100.00", "8.25", "5.00", "0.41", "0", "0", "-8.66", "-15.00", "-5.50", "0", "84.50"},
		{"Aug 2, 2024 3:04:05 p.m. PDT", "900", "Order", "111-B", "MOSWZ40-PB", "Moto Watch 40", "2",
			"Portland", "OR", "1,200.00", "0", "0", "0", "3.49", "0", "0", "-180.00", "-10.00", "-0.50", "1,012.99"},
		{"Aug 3, 2024 9:00:00 a.m. PDT", "900", "Refund", "111-C", "MOSWZ70-RG", "Moto Watch 70", "1",
			"Austin", "TX", "-100.00", "0", "0", "0", "0", "0", "0", "15.00", "0", "0", "-85.00"},
		{"Aug 3, 2024 11:30:00 a.m. PDT", "900", "Order", "111-D", "NEWSKU", "Strap", "1",
			"Springfield", "IL", "0", "0", "0", "0", "0", "0", "0", "0", "-2.00", "0", "-2.00"},
	}
}

func writeReport(t *testing.T, dir, name string, header []string, rows [][]string) string {
	t.Helper()
	var b strings.Builder
	for i := 0; i < 7; i++ {
		fmt.Fprintf(&b, "\"Includes Amazon Marketplace, Fulfillment by Amazon (FBA) line %d\"\n", i+1)
	}
	w := csv.NewWriter(&b)
	require.NoError(t, w.Write(header))
	require.NoError(t, w.WriteAll(rows))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

type stubSource struct {
	closes map[string]float64
	err    error
}

func (s stubSource) DailyCloses(ctx context.Context, from, to string) (map[string]float64, error) {
	return s.closes, s.err
}

type fakeUploader struct {
	objects []string
}

func (f *fakeUploader) Upload(ctx context.Context, objectName, filePath string) (string, error) {
	if _, err := os.Stat(filePath); err != nil {
		return "", err
	}
	f.objects = append(f.objects, objectName)
	return "gs://exports/" + objectName, nil
}

type fixture struct {
	inputDir  string
	outputDir string
	main      *config.MainConfig
	org       *config.OrganizationConfig
	source    exchange.Source
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	orgs, err := config.DefaultOrganizationConfigs()
	require.NoError(t, err)

	// A CAD copy of the usa organization exercises the rate lookup.
	org := *orgs["usa"]
	org.CurrencyCode = "CAD"

	main := &config.MainConfig{OutputDir: t.TempDir()}
	config.ApplyMainConfigDefaults(main)

	return &fixture{
		inputDir:  t.TempDir(),
		outputDir: main.OutputDir,
		main:      main,
		org:       &org,
		source:    stubSource{closes: map[string]float64{"2024-08-02": 0.73}},
	}
}

func (f *fixture) converter(t *testing.T, mutate func(*Options)) *Converter {
	t.Helper()
	opts := Options{
		Main:         f.main,
		Organization: f.org,
		Rates:        exchange.NewResolver(f.source, logger.Nop()),
		Locations:    location.NewResolver(location.Options{}, logger.Nop()),
		Logger:       logger.Nop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

var august = DateRange{
	Start: time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, time.August, 31, 0, 0, 0, 0, time.UTC),
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func column(t *testing.T, records [][]string, name string) []string {
	t.Helper()
	idx := -1
	for i, h := range records[0] {
		if h == name {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0, "column %q", name)
	var values []string
	for _, r := range records[1:] {
		values = append(values, r[idx])
	}
	return values
}

func outputNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRunWritesAllDocuments(t *testing.T) {
	f := newFixture(t)
	uploader := &fakeUploader{}
	conv := f.converter(t, func(o *Options) {
		o.Upload = true
		o.Uploader = uploader
	})
	input := writeReport(t, f.inputDir, "settlement_usa.csv", reportHeader, reportRows())

	result := conv.Run(context.Background(), input, august)
	require.NoError(t, result.Error)
	require.True(t, result.Success)

	assert.Equal(t, "usa", result.Organization)
	assert.Equal(t, []string{
		filepath.Join(f.outputDir, "August Sales Order 2024.csv"),
		filepath.Join(f.outputDir, "August Invoice 2024.csv"),
		filepath.Join(f.outputDir, "August Credit Notes 2024.csv"),
	}, result.OutputFiles)

	stats := result.Stats
	assert.Equal(t, 4, stats.RowsRead)
	assert.Equal(t, 3, stats.OrderRows)
	assert.Equal(t, 4, stats.SalesOrderRows)
	assert.Equal(t, 4, stats.InvoiceRows)
	assert.Equal(t, 6, stats.CreditNoteRows)
	assert.Equal(t, []string{"promotional rebates"}, stats.DroppedColumns)
	assert.Zero(t, stats.UnresolvedLocations)
	assert.Zero(t, stats.RowsMissingRate)
	assert.Empty(t, stats.UnmappedSKUs)

	salesOrder := readCSV(t, result.OutputFiles[0])
	assert.Equal(t, []string{
		"Moto Watch 70 - Rose Gold (Amazon US)",
		"Shipping and Handling (Outbound)",
		"Moto Watch 40 - Phantom Black (Amazon US)",
		"Gift Wrap - Amz",
	}, column(t, salesOrder, "Item Name"))
	assert.Equal(t, []string{"100", "5", "600", "3.49"}, column(t, salesOrder, "Item Price"))
	assert.Equal(t, []string{"0.73", "0.73", "0.73", "0.73"}, column(t, salesOrder, "Exchange Rate"))
	assert.Equal(t, []string{"Texas", "Texas", "Oregon", "Oregon"}, column(t, salesOrder, "Ship State"))
	assert.Equal(t, []string{"CAD", "CAD", "CAD", "CAD"}, column(t, salesOrder, "Currency Code"))
	assert.Equal(t, []string{"900-111-A", "900-111-A", "900-111-B", "900-111-B"}, column(t, salesOrder, "Sales Order Number"))

	creditNotes := readCSV(t, result.OutputFiles[2])
	assert.Equal(t, []string{"15", "5.5", "180", "10", "0.5", "2"}, column(t, creditNotes, "Item Price"))
	assert.Equal(t, []string{"01-08-2024", "01-08-2024", "02-08-2024", "02-08-2024", "02-08-2024", "03-08-2024"},
		column(t, creditNotes, "Credit Note Date"))
	assert.Equal(t, "Illinois", column(t, creditNotes, "State")[5])

	require.Len(t, uploader.objects, 1)
	assert.True(t, strings.HasPrefix(uploader.objects[0], "usa/"+result.RunID+"/"))
	assert.Equal(t, "gs://exports/"+uploader.objects[0], result.BundleURI)

	bundle, err := zip.OpenReader(result.BundlePath)
	require.NoError(t, err)
	defer bundle.Close()
	assert.Len(t, bundle.File, 3)
}

func TestRunRejectsBeforeWriting(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(header []string, rows [][]string) ([]string, [][]string)
		check  func(t *testing.T, err error)
	}{
		{
			name: "totals mismatch",
			mutate: func(h []string, rows [][]string) ([]string, [][]string) {
				rows[0][19] = "84.52"
				return h, rows
			},
			check: func(t *testing.T, err error) {
				var failure *reconcile.Failure
				require.True(t, errors.As(err, &failure))
				assert.Equal(t, reconcile.CheckTotals, failure.Check)
			},
		},
		{
			name: "tax imbalance",
			mutate: func(h []string, rows [][]string) ([]string, [][]string) {
				rows[0][15] = "-8.00"
				rows[0][19] = "85.16"
				return h, rows
			},
			check: func(t *testing.T, err error) {
				var failure *reconcile.Failure
				require.True(t, errors.As(err, &failure))
				assert.Equal(t, reconcile.CheckTaxBalance, failure.Check)
			},
		},
		{
			name: "missing quantity column",
			mutate: func(h []string, rows [][]string) ([]string, [][]string) {
				h = append(append([]string{}, h[:6]...), h[7:]...)
				for i, r := range rows {
					rows[i] = append(append([]string{}, r[:6]...), r[7:]...)
				}
				return h, rows
			},
			check: func(t *testing.T, err error) {
				var structural *normalizer.StructuralError
				require.True(t, errors.As(err, &structural))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			conv := f.converter(t, func(o *Options) { o.Bundle = true })
			header, rows := tt.mutate(append([]string{}, reportHeader...), reportRows())
			input := writeReport(t, f.inputDir, "usa.csv", header, rows)

			result := conv.Run(context.Background(), input, august)

			assert.False(t, result.Success)
			tt.check(t, result.Error)
			assert.Empty(t, result.OutputFiles)
			assert.Empty(t, outputNames(t, f.outputDir))
		})
	}
}

func TestRunWithoutRatesLeavesBlankCells(t *testing.T) {
	f := newFixture(t)
	f.source = stubSource{err: errors.New("rate limit")}
	conv := f.converter(t, nil)
	input := writeReport(t, f.inputDir, "usa.csv", reportHeader, reportRows())

	result := conv.Run(context.Background(), input, august)
	require.True(t, result.Success, "%v", result.Error)

	assert.Equal(t, 14, result.Stats.RowsMissingRate)
	invoice := readCSV(t, result.OutputFiles[1])
	for _, v := range column(t, invoice, "Exchange Rate") {
		assert.Empty(t, v)
	}
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t)
	conv := f.converter(t, func(o *Options) { o.DryRun = true; o.Bundle = true })
	input := writeReport(t, f.inputDir, "usa.csv", reportHeader, reportRows())

	result := conv.Run(context.Background(), input, august)
	require.True(t, result.Success, "%v", result.Error)

	assert.Len(t, result.OutputFiles, 3)
	assert.Empty(t, result.BundlePath)
	assert.Empty(t, outputNames(t, f.outputDir))
}

func TestRunNamesEmptyDocumentsFromPeriod(t *testing.T) {
	f := newFixture(t)
	conv := f.converter(t, nil)
	rows := reportRows()[3:] // fee-only order
	input := writeReport(t, f.inputDir, "usa.csv", reportHeader, rows)

	result := conv.Run(context.Background(), input, august)
	require.True(t, result.Success, "%v", result.Error)

	assert.Zero(t, result.Stats.SalesOrderRows)
	assert.Equal(t, 1, result.Stats.CreditNoteRows)
	assert.ElementsMatch(t, []string{
		"August Sales Order 2024.csv", "August Invoice 2024.csv", "August Credit Notes 2024.csv",
	}, outputNames(t, f.outputDir))
	assert.Len(t, readCSV(t, result.OutputFiles[0]), 1, "header only")
}

func TestRunRejectsReversedRange(t *testing.T) {
	f := newFixture(t)
	conv := f.converter(t, nil)
	input := writeReport(t, f.inputDir, "usa.csv", reportHeader, reportRows())

	result := conv.Run(context.Background(), input, DateRange{Start: august.End, End: august.Start})
	assert.False(t, result.Success)
	assert.Error(t, result.Error)
}

func TestNewValidatesOptions(t *testing.T) {
	f := newFixture(t)

	_, err := New(Options{Main: f.main})
	assert.Error(t, err)

	_, err = New(Options{
		Main:         f.main,
		Organization: f.org,
		Rates:        exchange.NewResolver(nil, logger.Nop()),
		Locations:    location.NewResolver(location.Options{}, logger.Nop()),
		Upload:       true,
	})
	assert.Error(t, err, "upload without uploader")

	f.org.SKUMappingFile = filepath.Join(t.TempDir(), "missing.xlsx")
	_, err = New(Options{
		Main:         f.main,
		Organization: f.org,
		Rates:        exchange.NewResolver(nil, logger.Nop()),
		Locations:    location.NewResolver(location.Options{}, logger.Nop()),
	})
	assert.Error(t, err)
}

func TestRunBatch(t *testing.T) {
	f := newFixture(t)
	conv := f.converter(t, func(o *Options) { o.DryRun = true })

	good := writeReport(t, f.inputDir, "a_usa.csv", reportHeader, reportRows())
	badRows := reportRows()
	badRows[0][19] = "0"
	bad := writeReport(t, f.inputDir, "b_usa.csv", reportHeader, badRows)

	jobs := []Job{
		{FilePath: bad, Converter: conv, Period: august},
		{FilePath: good, Converter: conv, Period: august},
	}

	results := RunBatch(context.Background(), jobs, 4, false)
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)

	results = RunBatch(context.Background(), jobs, 1, true)
	assert.False(t, results[0].Success)
	assert.ErrorIs(t, results[1].Error, ErrSkipped)
}

func TestRunBatchKeepsOrganizationsApart(t *testing.T) {
	f := newFixture(t)
	usaConv := f.converter(t, nil)

	canada := *f.org
	canada.Organization = "canada"
	canadaConv := f.converter(t, func(o *Options) { o.Organization = &canada })

	usaReport := writeReport(t, f.inputDir, "settlement_usa.csv", reportHeader, reportRows())
	canadaReport := writeReport(t, f.inputDir, "settlement_canada.csv", reportHeader, reportRows())

	results := RunBatch(context.Background(), []Job{
		{FilePath: usaReport, Converter: usaConv, Period: august},
		{FilePath: canadaReport, Converter: canadaConv, Period: august},
	}, 2, false)
	require.Len(t, results, 2)
	for _, r := range results {
		require.True(t, r.Success, "%v", r.Error)
		require.Len(t, r.OutputFiles, 3)
	}

	assert.NotEqual(t, results[0].OutputFiles[0], results[1].OutputFiles[0])
	assert.Equal(t, filepath.Join(f.outputDir, "usa", "settlement_usa", "August Sales Order 2024.csv"), results[0].OutputFiles[0])
	assert.Equal(t, filepath.Join(f.outputDir, "canada", "settlement_canada", "August Sales Order 2024.csv"), results[1].OutputFiles[0])
	for _, r := range results {
		for _, path := range r.OutputFiles {
			assert.FileExists(t, path)
		}
	}
}

func TestRunBatchSingleJobWritesToOutputDir(t *testing.T) {
	f := newFixture(t)
	conv := f.converter(t, nil)
	report := writeReport(t, f.inputDir, "settlement_usa.csv", reportHeader, reportRows())

	results := RunBatch(context.Background(), []Job{{FilePath: report, Converter: conv, Period: august}}, 1, true)
	require.True(t, results[0].Success, "%v", results[0].Error)
	assert.Equal(t, f.outputDir, filepath.Dir(results[0].OutputFiles[0]))
}
