package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"thumbnail-gallery/internal/database"
	"thumbnail-gallery/internal/logging"
	"thumbnail-gallery/internal/media"
	"thumbnail-gallery/internal/metrics"
)

var log = logging.Component("pipeline")

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("thumbnail queue full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("pipeline stopped")
)

// Job asks for thumbnails of one stored image.
type Job struct {
	ImageID int64
	Tiers   []media.Tier
}

// Store is the persistence the pipeline writes through.
type Store interface {
	FindImage(ctx context.Context, id int64) (*database.Image, error)
	DeleteImage(ctx context.Context, id int64) (int64, error)
	CompleteImage(ctx context.Context, imageID, folderID, order int64, thumbs []database.NewThumbnail) ([]database.Thumbnail, error)
	SaveThumbnails(ctx context.Context, imageID int64, thumbs []database.NewThumbnail) ([]database.Thumbnail, error)
	ImagesMissingTiers(ctx context.Context, tiers []media.Tier) ([]database.MissingThumbnails, error)
}

// Orderer assigns and repairs display orders.
type Orderer interface {
	Assign(ctx context.Context, folderID int64, persist func(ctx context.Context, order int64) error) (int64, error)
	Recount(ctx context.Context, folderID int64, excluded ...int64) error
}

// Notifier publishes pipeline results.
type Notifier interface {
	NotifyNewThumbnail(ctx context.Context, thumb database.Thumbnail) error
	NotifyError(ctx context.Context, err error)
}

// Throttle delays work while the process is short of memory.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Config sizes the pipeline.
type Config struct {
	Workers       int
	QueueCapacity int
	// Throttle is optional.
	Throttle Throttle
}

// Pipeline turns stored images into ordered, persisted and announced
// thumbnails using a bounded queue and a fixed worker pool.
type Pipeline struct {
	cfg     Config
	store   Store
	orders  Orderer
	notify  Notifier
	resizer media.Resizer

	// OnFailure, when set before Start, is called for every failed job.
	OnFailure func(imageID int64, err error)

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	processed atomic.Int64
	failed    atomic.Int64
}

// New creates a pipeline. Call Start to run the workers.
func New(cfg Config, store Store, orders Orderer, notify Notifier, resizer media.Resizer) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pipeline{
		cfg:     cfg,
		store:   store,
		orders:  orders,
		notify:  notify,
		resizer: resizer,
		jobs:    make(chan Job, cfg.QueueCapacity),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers.
func (p *Pipeline) Start() {
	metrics.PipelineQueueCapacity.Set(float64(p.cfg.QueueCapacity))
	log.Infof("starting %d workers (queue capacity %d, backend %s)", p.cfg.Workers, p.cfg.QueueCapacity, p.resizer.Name())

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues job without blocking.
func (p *Pipeline) Submit(job Job) error {
	if len(job.Tiers) == 0 {
		job.Tiers = media.AllTiers
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.jobs <- job:
		metrics.PipelineQueueDepth.Set(float64(len(p.jobs)))
		return nil
	default:
		metrics.PipelineJobsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("image %d: %w", job.ImageID, ErrQueueFull)
	}
}

// Stop refuses new jobs, drains the queue and waits for the workers.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()

	processed, failed := p.Stats()
	log.Infof("stopped: %d jobs processed, %d failed", processed, failed)
}

// Stats returns the number of processed and failed jobs.
func (p *Pipeline) Stats() (processed, failed int64) {
	return p.processed.Load(), p.failed.Load()
}

func (p *Pipeline) worker(id int) {
	defer p.wg.Done()
	log.Debugf("worker %d started", id)

	for job := range p.jobs {
		metrics.PipelineQueueDepth.Set(float64(len(p.jobs)))
		metrics.PipelineWorkersBusy.Inc()
		_ = p.run(p.ctx, job)
		metrics.PipelineWorkersBusy.Dec()
	}

	log.Debugf("worker %d finished", id)
}

// run isolates one job: errors and panics are reported and swallowed.
func (p *Pipeline) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("image %d: panic: %v", job.ImageID, r)
			p.report(ctx, job.ImageID, "error", err)
		}
	}()
	return p.Process(ctx, job)
}

// Process runs every stage for one job synchronously. Failures have
// already been reported when it returns.
func (p *Pipeline) Process(ctx context.Context, job Job) error {
	if len(job.Tiers) == 0 {
		job.Tiers = media.AllTiers
	}
	p.processed.Add(1)
	stage(job.ImageID, "ingested")

	img, err := p.store.FindImage(ctx, job.ImageID)
	if errors.Is(err, database.ErrNotFound) {
		log.Debugf("image %d deleted before processing", job.ImageID)
		return nil
	}
	if err != nil {
		err = fmt.Errorf("load image %d: %w", job.ImageID, err)
		p.report(ctx, job.ImageID, "error", err)
		return err
	}

	if p.cfg.Throttle != nil {
		if err := p.cfg.Throttle.Wait(ctx); err != nil {
			return err
		}
	}

	stage(img.ID, "generating")
	thumbs, err := p.resize(ctx, img.Data, job.Tiers)
	if err != nil {
		return p.fail(ctx, img, err)
	}

	saved, err := p.persist(ctx, img, thumbs)
	if errors.Is(err, database.ErrNotFound) {
		log.Debugf("image %d deleted during processing", img.ID)
		return nil
	}
	if err != nil {
		err = fmt.Errorf("save thumbnails of image %d: %w", img.ID, err)
		p.report(ctx, img.ID, "error", err)
		return err
	}
	stage(img.ID, "ordered")

	for _, thumb := range saved {
		if err := p.notify.NotifyNewThumbnail(ctx, thumb); err != nil {
			log.Warnf("notify %s thumbnail of image %d: %v", thumb.Tier, img.ID, err)
		}
	}
	stage(img.ID, "notified")
	metrics.PipelineJobsTotal.WithLabelValues("success").Inc()
	return nil
}

// resize generates every tier concurrently.
func (p *Pipeline) resize(ctx context.Context, data []byte, tiers []media.Tier) ([]database.NewThumbnail, error) {
	out := make([]database.NewThumbnail, len(tiers))
	g, gctx := errgroup.WithContext(ctx)
	for i, tier := range tiers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			encoded, err := p.resizer.Resize(data, tier)
			if err != nil {
				return fmt.Errorf("%s: %w", tier, err)
			}
			out[i] = database.NewThumbnail{Tier: tier, Data: encoded}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// persistAttempts bounds how often persist reloads an image that was moved
// or ordered while its thumbnails were generated.
const persistAttempts = 3

// persist stores thumbnails. An image without order gets the next order of
// its current folder in the same transaction.
func (p *Pipeline) persist(ctx context.Context, img *database.Image, thumbs []database.NewThumbnail) ([]database.Thumbnail, error) {
	for attempt := 1; ; attempt++ {
		if img.HasOrder() {
			return p.store.SaveThumbnails(ctx, img.ID, thumbs)
		}

		saved, err := p.complete(ctx, img, thumbs)
		if !errors.Is(err, database.ErrConflict) || attempt == persistAttempts {
			return saved, err
		}

		log.Debugf("image %d changed during processing: %v", img.ID, err)
		if img, err = p.store.FindImage(ctx, img.ID); err != nil {
			return nil, err
		}
	}
}

func (p *Pipeline) complete(ctx context.Context, img *database.Image, thumbs []database.NewThumbnail) ([]database.Thumbnail, error) {
	var saved []database.Thumbnail
	_, err := p.orders.Assign(ctx, img.FolderID, func(ctx context.Context, order int64) error {
		var err error
		saved, err = p.store.CompleteImage(ctx, img.ID, img.FolderID, order, thumbs)
		return err
	})
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrConflict) {
		// The consumed order left a gap.
		if rerr := p.orders.Recount(ctx, img.FolderID); rerr != nil {
			log.Warnf("recount folder %d: %v", img.FolderID, rerr)
		}
	}
	return saved, err
}

// fail removes an image whose thumbnails could not be generated.
func (p *Pipeline) fail(ctx context.Context, img *database.Image, cause error) error {
	stage(img.ID, "failed")

	if _, err := p.store.DeleteImage(ctx, img.ID); err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Errorf("remove unsupported image %d: %v", img.ID, err)
	} else {
		stage(img.ID, "removed")
		if img.HasOrder() {
			if err := p.orders.Recount(ctx, img.FolderID); err != nil {
				log.Warnf("recount folder %d: %v", img.FolderID, err)
			}
		}
	}

	uerr := &media.UnsupportedFormatError{ImageID: img.ID, Err: cause}
	p.report(ctx, img.ID, "unsupported", uerr)
	return uerr
}

func (p *Pipeline) report(ctx context.Context, imageID int64, status string, err error) {
	p.failed.Add(1)
	metrics.PipelineJobsTotal.WithLabelValues(status).Inc()
	log.Warnf("%v", err)

	if p.OnFailure != nil {
		p.OnFailure(imageID, err)
	}
	p.notify.NotifyError(ctx, err)
}

// GenerateMissingThumbnails runs every image lacking a tier through the
// pipeline stages for the missing tiers only, at most Workers at a time.
// It returns the number of images processed.
func (p *Pipeline) GenerateMissingThumbnails(ctx context.Context) (int, error) {
	missing, err := p.store.ImagesMissingTiers(ctx, media.AllTiers)
	if err != nil {
		return 0, fmt.Errorf("find images missing thumbnails: %w", err)
	}
	if len(missing) == 0 {
		log.Infof("no missing thumbnails")
		return 0, nil
	}
	log.Infof("generating missing thumbnails for %d images", len(missing))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	var done atomic.Int64
	for _, m := range missing {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_ = p.run(gctx, Job{ImageID: m.Image.ID, Tiers: m.Tiers})
			done.Add(1)
			return nil
		})
	}
	err = g.Wait()

	n := int(done.Load())
	log.Infof("missing thumbnail scan finished: %d/%d images", n, len(missing))
	return n, err
}

func stage(imageID int64, name string) {
	metrics.PipelineStageTotal.WithLabelValues(name).Inc()
	log.Debugf("image %d: %s", imageID, name)
}
