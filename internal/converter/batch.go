package converter

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
)

// ErrSkipped is the error of a job that never ran because an earlier job
// failed and the batch stops on error.
var ErrSkipped = errors.New("skipped after an earlier failure")

// Job is one report to process.
type Job struct {
	FilePath  string
	Converter *Converter
	Period    DateRange

	// OutputDir overrides where the job's documents are written. See
	// RunBatch for the default.
	OutputDir string
}

// outputDir returns where the job writes. Document names only carry the
// month and kind, so in a batch of several reports every job without an
// explicit OutputDir gets {output}/{organization}/{report name}.
func (j Job) outputDir(batchSize int) string {
	if j.OutputDir != "" || batchSize <= 1 {
		return j.OutputDir
	}
	stem := strings.TrimSuffix(filepath.Base(j.FilePath), filepath.Ext(j.FilePath))
	return filepath.Join(j.Converter.opts.OutputDir, j.Converter.org.Key(), stem)
}

// RunBatch processes jobs with at most concurrency running at once and
// returns their results in job order. With stopOnError, jobs not yet started
// when a job fails are reported with ErrSkipped.
func RunBatch(ctx context.Context, jobs []Job, concurrency int, stopOnError bool) []Result {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]Result, len(jobs))
	sem := make(chan struct{}, concurrency)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed bool
	)

	for i, job := range jobs {
		sem <- struct{}{}

		mu.Lock()
		stop := stopOnError && failed
		mu.Unlock()
		if stop || ctx.Err() != nil {
			<-sem
			err := ErrSkipped
			if !stop {
				err = ctx.Err()
			}
			results[i] = Result{FilePath: job.FilePath, Organization: job.Converter.org.Key(), Error: err}
			continue
		}

		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			defer func() { <-sem }()

			res := job.Converter.RunInto(ctx, job.FilePath, job.outputDir(len(jobs)), job.Period)
			results[i] = res
			if !res.Success {
				mu.Lock()
				failed = true
				mu.Unlock()
			}
		}(i, job)
	}

	wg.Wait()
	return results
}
