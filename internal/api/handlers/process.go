package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ginjaninja78/settlement-export/internal/api/middleware"
	"github.com/ginjaninja78/settlement-export/internal/config"
	"github.com/ginjaninja78/settlement-export/internal/converter"
	"github.com/ginjaninja78/settlement-export/internal/dateutil"
	"github.com/ginjaninja78/settlement-export/internal/logger"
	"github.com/ginjaninja78/settlement-export/pkg/utils"
)

// Error messages returned to upload clients.
const (
	msgNoFile        = "No file uploaded"
	msgMissingFields = "Missing required form fields"
	msgMissingOutput = "One or more output files are missing"
)

// ConverterFactory builds a converter for one organization writing into
// outputDir with bundling enabled.
type ConverterFactory func(org *config.OrganizationConfig, outputDir string) (*converter.Converter, error)

// ProcessHandler serves the settlement upload endpoint.
type ProcessHandler struct {
	orgs         map[string]*config.OrganizationConfig
	files        *utils.FileManager
	newConverter ConverterFactory
	maxUpload    int64
	log          logger.Logger
}

// NewProcessHandler creates the upload handler. maxUploadMB caps the
// multipart body.
func NewProcessHandler(orgs map[string]*config.OrganizationConfig, files *utils.FileManager, factory ConverterFactory, maxUploadMB int64, log logger.Logger) *ProcessHandler {
	return &ProcessHandler{
		orgs:         orgs,
		files:        files,
		newConverter: factory,
		maxUpload:    maxUploadMB << 20,
		log:          log,
	}
}

// ProcessDateRange handles POST /processAmzDateRangeCsv.
//
// Form fields: file (the report), strOrg, startdate and enddate
// (YYYY-MM-DD). Responds with the three documents zipped as
// AMZB2COutput.zip.
func (h *ProcessHandler) ProcessDateRange(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil || header.Filename == "" {
		middleware.WriteError(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close()

	orgKey := strings.ToLower(strings.TrimSpace(r.FormValue("strOrg")))
	startRaw := strings.TrimSpace(r.FormValue("startdate"))
	endRaw := strings.TrimSpace(r.FormValue("enddate"))
	if orgKey == "" || startRaw == "" || endRaw == "" {
		middleware.WriteError(w, http.StatusBadRequest, msgMissingFields)
		return
	}

	org, ok := h.orgs[orgKey]
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Unknown organization: %s", orgKey))
		return
	}

	period, err := parsePeriod(startRaw, endRaw)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run ID names directories, so it is never taken from the client.
	runID := utils.NewRunID()
	log := h.log
	if zl, ok := h.log.(*logger.ZeroLogger); ok {
		log = zl.With(map[string]interface{}{
			"run_id":       runID,
			"request_id":   middleware.RequestIDFrom(r.Context()),
			"organization": orgKey,
		})
	}

	inputPath, err := h.files.SaveUpload(file, runID, header.Filename)
	if err != nil {
		log.Error("Failed to save upload: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.RemoveAll(filepath.Dir(inputPath))

	// Each request writes into its own folder so concurrent uploads never
	// see each other's documents.
	outputDir := filepath.Join(h.files.OutputDir, runID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.RemoveAll(outputDir)

	conv, err := h.newConverter(org, outputDir)
	if err != nil {
		log.Error("Failed to build converter: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := conv.Run(r.Context(), inputPath, period)
	if !result.Success {
		middleware.WriteError(w, http.StatusInternalServerError, result.Error.Error())
		return
	}

	for _, f := range append(append([]string{}, result.OutputFiles...), result.BundlePath) {
		if f == "" || !utils.FileExists(f) {
			log.Error("Expected output %q was not produced", f)
			middleware.WriteError(w, http.StatusNotFound, msgMissingOutput)
			return
		}
	}

	bundle, err := os.Open(result.BundlePath)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, msgMissingOutput)
		return
	}
	defer bundle.Close()

	name := filepath.Base(result.BundlePath)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, bundle); err != nil {
		log.Error("Failed to stream %s: %v", name, err)
		return
	}

	log.Info("Served %s for %s (%d sales order, %d invoice, %d credit note rows)",
		name, header.Filename, result.Stats.SalesOrderRows, result.Stats.InvoiceRows, result.Stats.CreditNoteRows)
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func parsePeriod(startRaw, endRaw string) (converter.DateRange, error) {
	start, err := dateutil.ParseFormDate(startRaw)
	if err != nil {
		return converter.DateRange{}, fmt.Errorf("invalid startdate %q, expected YYYY-MM-DD", startRaw)
	}
	end, err := dateutil.ParseFormDate(endRaw)
	if err != nil {
		return converter.DateRange{}, fmt.Errorf("invalid enddate %q, expected YYYY-MM-DD", endRaw)
	}
	if end.Before(start) {
		return converter.DateRange{}, &dateutil.InvalidRangeError{Start: start, End: end}
	}
	return converter.DateRange{Start: start, End: end}, nil
}
