// Package publish delivers a run's files and summary to optional destinations.
// Publishing never fails a run: every error is logged and reported in the Result.
package publish

import (
	"context"
	"fmt"
	nethttp "net/http"
	"path"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dashpull/dashpull/internal/config"
	"github.com/dashpull/dashpull/internal/constants"
	"github.com/dashpull/dashpull/internal/logging"
)

// FilePublisher uploads one local file under a run and returns where it landed.
type FilePublisher interface {
	Name() string
	Upload(ctx context.Context, runID, localPath string) (string, error)
}

// SummaryPublisher delivers the run summary.
type SummaryPublisher interface {
	Name() string
	Send(ctx context.Context, summary RunSummary) error
}

// Upload is one successfully delivered file.
type Upload struct {
	Publisher string `json:"publisher"`
	Path      string `json:"path"`
	Location  string `json:"location"`
}

// Result reports what was delivered and what failed.
type Result struct {
	Uploads []Upload
	Errors  []error
}

// Failed reports whether any delivery failed.
func (r Result) Failed() bool {
	return len(r.Errors) > 0
}

// Publisher fans files out to every configured destination.
type Publisher struct {
	files       []FilePublisher
	summaries   []SummaryPublisher
	concurrency int
	logger      *logging.Logger
}

// New builds a publisher from cfg. Destinations with incomplete settings are skipped.
func New(ctx context.Context, cfg config.PublishConfig, client *nethttp.Client, logger *logging.Logger) (*Publisher, error) {
	p := NewPublisher(logger)

	if cfg.S3Bucket != "" {
		s3p, err := NewS3Publisher(ctx, S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}, client)
		if err != nil {
			return nil, err
		}
		p.AddFiles(s3p)
	}
	if cfg.AzureContainerURL != "" {
		az, err := NewAzurePublisher(cfg.AzureContainerURL, cfg.AzurePrefix, client)
		if err != nil {
			return nil, err
		}
		p.AddFiles(az)
	}
	if cfg.WebhookURL != "" {
		p.AddSummaries(NewWebhookPublisher(cfg.WebhookURL, client, logger))
	}
	return p, nil
}

// NewPublisher creates a publisher with no destinations.
func NewPublisher(logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{concurrency: constants.PublishConcurrency, logger: logger}
}

// AddFiles registers file destinations.
func (p *Publisher) AddFiles(fp ...FilePublisher) {
	p.files = append(p.files, fp...)
}

// AddSummaries registers summary destinations.
func (p *Publisher) AddSummaries(sp ...SummaryPublisher) {
	p.summaries = append(p.summaries, sp...)
}

// SetConcurrency bounds simultaneous uploads.
func (p *Publisher) SetConcurrency(n int) {
	if n > 0 {
		p.concurrency = n
	}
}

// Enabled reports whether any destination is configured.
func (p *Publisher) Enabled() bool {
	return p != nil && (len(p.files) > 0 || len(p.summaries) > 0)
}

// Publish uploads files to every file destination, then sends summary (with the
// upload locations filled in) to every summary destination.
func (p *Publisher) Publish(ctx context.Context, files []string, summary RunSummary) Result {
	var (
		mu     sync.Mutex
		result Result
	)
	fail := func(err error) {
		mu.Lock()
		result.Errors = append(result.Errors, err)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, fp := range p.files {
		for _, file := range files {
			g.Go(func() error {
				start := time.Now()
				loc, err := fp.Upload(gctx, summary.RunID, file)
				if err != nil {
					p.logger.Error().Err(err).Str("publisher", fp.Name()).Str("file", file).Msg("Upload failed")
					fail(fmt.Errorf("%s: %s: %w", fp.Name(), filepath.Base(file), err))
					return nil
				}
				p.logger.Info().
					Str("publisher", fp.Name()).
					Str("location", loc).
					Dur("took", time.Since(start)).
					Msg("Uploaded")
				mu.Lock()
				result.Uploads = append(result.Uploads, Upload{Publisher: fp.Name(), Path: file, Location: loc})
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	summary.Uploads = result.Uploads
	for _, sp := range p.summaries {
		if err := sp.Send(ctx, summary); err != nil {
			p.logger.Error().Err(err).Str("publisher", sp.Name()).Msg("Summary delivery failed")
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", sp.Name(), err))
			continue
		}
		p.logger.Info().Str("publisher", sp.Name()).Msg("Summary delivered")
	}
	return result
}

// ObjectKey is prefix/runID/base(localPath) with empty parts dropped.
func ObjectKey(prefix, runID, localPath string) string {
	return path.Join(prefix, runID, filepath.Base(localPath))
}
