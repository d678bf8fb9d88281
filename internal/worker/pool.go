// Package worker drains the Job Queue and turns each queued generation
// into a call against the Generative Provider Adapter, persisting the
// result and notifying the Realtime Event Fabric as it goes.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"imagestudio-backend/internal/apperrors"
	"imagestudio-backend/internal/models"
	"imagestudio-backend/internal/prompt"
	"imagestudio-backend/internal/provider"
	"imagestudio-backend/internal/queue"
	"imagestudio-backend/internal/repositories"
	"imagestudio-backend/internal/services"
	"imagestudio-backend/internal/storage"

	"golang.org/x/sync/errgroup"
)

// ProgressNotifier is implemented by the realtime fabric so the pool can
// push generation.progress/completed/failed without an import cycle.
type ProgressNotifier interface {
	EmitGenerationProgress(userID string, generationID string, percent int)
	EmitGenerationCompleted(userID string, generationID string, outputURLs []string)
	EmitGenerationFailed(userID string, generationID string, reason string)
}

// Pool is the worker pool draining one Queue.
type Pool struct {
	queue       *queue.Queue
	generations *repositories.GenerationRepository
	uploads     *repositories.UploadRepository
	ledger      *services.LedgerService
	opTypes     *repositories.OperationTypeRepository
	templates   *repositories.PromptTemplateRepository
	provider    *provider.Client
	storage     *storage.Facade
	notifier    ProgressNotifier
	workerCount int
	inputFanOut int
	imageFanOut int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Deps bundles the collaborators a worker needs to process a generation.
type Deps struct {
	Queue       *queue.Queue
	Generations *repositories.GenerationRepository
	Uploads     *repositories.UploadRepository
	Ledger      *services.LedgerService
	OpTypes     *repositories.OperationTypeRepository
	Templates   *repositories.PromptTemplateRepository
	Provider    *provider.Client
	Storage     *storage.Facade
	Notifier    ProgressNotifier
	WorkerCount int
}

// NewPool builds a worker pool ready to Start.
func NewPool(d Deps) *Pool {
	if d.WorkerCount <= 0 {
		d.WorkerCount = 5
	}
	return &Pool{
		queue:       d.Queue,
		generations: d.Generations,
		uploads:     d.Uploads,
		ledger:      d.Ledger,
		opTypes:     d.OpTypes,
		templates:   d.Templates,
		provider:    d.Provider,
		storage:     d.Storage,
		notifier:    d.Notifier,
		workerCount: d.WorkerCount,
		inputFanOut: 4,
		imageFanOut: 3,
	}
}

// Start launches the worker goroutines and the queue's reaper.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go p.queue.StartReaper(ctx, 30*time.Second)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Stop signals every worker to exit and waits for them to drain.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := slog.With("component", "worker", "worker_id", id)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Reserve(ctx, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		log.Info("processing generation", "generation_id", job.GenerationID)
		if err := p.process(ctx, job); err != nil {
			log.Error("generation processing failed", "generation_id", job.GenerationID, "error", err)
		}
	}
}

// process runs the generation lifecycle: load, check balance, mark
// processing, compose the prompt, resolve inputs, fan out NumberOfImages
// provider calls, persist outputs, debit the ledger for a successful
// result only, mark terminal, notify, ack/fail the queue job. Tokens are
// charged here — after the provider call and output persistence both
// succeed — never at intake, so a job that never runs or never finishes
// is never paid for.
func (p *Pool) process(ctx context.Context, job *queue.Job) error {
	gen, err := p.generations.GetByIDAnyOwner(ctx, job.GenerationID)
	if err != nil {
		return fmt.Errorf("load generation: %w", err)
	}
	if gen == nil || gen.Status.IsTerminal() {
		// Already completed by a prior delivery of this job, or deleted.
		return p.queue.Ack(ctx, job)
	}

	op, err := p.opTypes.GetByCode(ctx, gen.OperationType)
	if err != nil {
		return fmt.Errorf("load operation type: %w", err)
	}
	if op == nil {
		return p.failGeneration(ctx, job, gen, fmt.Errorf("operation type %q not configured", gen.OperationType))
	}

	balance, err := p.ledger.GetBalance(ctx, gen.UserID)
	if err != nil {
		return fmt.Errorf("load balance: %w", err)
	}
	imageCount := gen.NumberOfImages
	if imageCount <= 0 {
		imageCount = 1
	}
	cost := op.TokensPerOperation * int64(imageCount)
	if balance.Balance < cost {
		// Fail fast without ever calling the provider: the debit would
		// be rejected anyway once the job finishes.
		return p.failGeneration(ctx, job, gen, apperrors.New(apperrors.KindInsufficient, "insufficient token balance"))
	}

	if err := p.generations.MarkProcessing(ctx, gen.GenerationID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	p.notifier.EmitGenerationProgress(gen.UserID.String(), gen.GenerationID.String(), 10)

	var template *models.PromptTemplate
	if gen.PromptTemplateID != nil {
		template, err = p.templates.GetByID(ctx, *gen.PromptTemplateID)
		if err != nil {
			return fmt.Errorf("load prompt template: %w", err)
		}
	}
	effectivePrompt := prompt.Compose(gen.Prompt, template, gen.ReferenceType)

	targetImages, err := p.resolveInputs(ctx, []models.InputRef(gen.TargetInput))
	if err != nil {
		return p.failGeneration(ctx, job, gen, fmt.Errorf("resolve target input: %w", err))
	}
	refImages, err := p.resolveInputs(ctx, []models.InputRef(gen.Inputs))
	if err != nil {
		return p.failGeneration(ctx, job, gen, fmt.Errorf("resolve reference inputs: %w", err))
	}
	// The provider's documented input ordering is text + target + refs.
	images := append(targetImages, refImages...)
	p.notifier.EmitGenerationProgress(gen.UserID.String(), gen.GenerationID.String(), 40)

	results, err := p.generateImages(ctx, gen, op, effectivePrompt, images)
	if err != nil {
		return p.failGeneration(ctx, job, gen, err)
	}
	p.notifier.EmitGenerationProgress(gen.UserID.String(), gen.GenerationID.String(), 80)

	outputs := make(models.StringList, 0, len(results))
	for _, result := range results {
		upload, err := p.storage.Put(ctx, gen.UserID, "generations", result.ImageData, result.MimeType)
		if err != nil {
			return p.failGeneration(ctx, job, gen, fmt.Errorf("store output: %w", err))
		}
		if err := p.uploads.Create(ctx, upload); err != nil {
			return p.failGeneration(ctx, job, gen, fmt.Errorf("record output: %w", err))
		}
		outputs = append(outputs, upload.URL)
	}

	refID := gen.GenerationID
	txn, err := p.ledger.Debit(ctx, gen.UserID, cost, services.Entry{
		ReasonCode:    models.ReasonSpendGeneration,
		ReferenceType: "generation",
		ReferenceID:   &refID,
	}, fmt.Sprintf("generation:%s", gen.GenerationID))
	if err != nil {
		return p.failGeneration(ctx, job, gen, err)
	}

	aiMetadata := models.JSONMap{"imagesGenerated": len(outputs)}
	if err := p.generations.Complete(ctx, gen.GenerationID, outputs, aiMetadata, txn.Amount, &txn.TransactionID); err != nil {
		return fmt.Errorf("complete generation: %w", err)
	}
	p.notifier.EmitGenerationCompleted(gen.UserID.String(), gen.GenerationID.String(), outputs)

	return p.queue.Ack(ctx, job)
}

// generateImages calls the provider once per requested image, bounded to
// a handful of concurrent calls, reporting progress as each completes.
func (p *Pool) generateImages(ctx context.Context, gen *models.Generation, op *models.OperationType, effectivePrompt string, images []provider.ImageBytes) ([]*provider.GenerateResult, error) {
	n := gen.NumberOfImages
	if n <= 0 {
		n = 1
	}
	results := make([]*provider.GenerateResult, n)
	var produced int32

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, p.imageFanOut)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := p.provider.Generate(gctx, gen.UserID.String(), provider.GenerateRequest{
				Model:  gen.Model,
				Prompt: effectivePrompt,
				Images: images,
			})
			if err != nil {
				return fmt.Errorf("generate image %d: %w", i, err)
			}
			results[i] = result

			done := int(atomic.AddInt32(&produced, 1))
			percent := 40 + 40*done/n
			if err := p.generations.UpdateProgress(gctx, gen.GenerationID, percent); err != nil {
				slog.Error("update generation progress", "generation_id", gen.GenerationID, "error", err)
			}
			p.notifier.EmitGenerationProgress(gen.UserID.String(), gen.GenerationID.String(), percent)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// resolveInputs downloads every input image in refs, bounded to a
// handful of concurrent fetches so one slow reference image doesn't
// serialize behind the others.
func (p *Pool) resolveInputs(ctx context.Context, refs []models.InputRef) ([]provider.ImageBytes, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	images := make([]provider.ImageBytes, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, p.inputFanOut)

	for i, input := range refs {
		i, input := i, input
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			data, err := p.storage.Fetch(gctx, input.URL)
			if err != nil {
				return fmt.Errorf("fetch input %d: %w", i, err)
			}
			images[i] = provider.ImageBytes{Data: data, MimeType: "image/jpeg"}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// failGeneration marks a generation failed. No tokens are ever debited
// until a generation completes successfully, so there is nothing to
// refund here — a failed generation's TokensCharged stays zero.
func (p *Pool) failGeneration(ctx context.Context, job *queue.Job, gen *models.Generation, cause error) error {
	if appErr, ok := apperrors.As(cause); ok && appErr.Kind == apperrors.KindRateLimited {
		// Rate limiting is caller-side pressure, not a generation defect:
		// the generation is not marked failed and the job is requeued
		// through Fail, which still counts the delivery as an attempt.
		return p.queue.Fail(ctx, job)
	}

	reason := cause.Error()
	if err := p.generations.Fail(ctx, gen.GenerationID, reason); err != nil {
		return fmt.Errorf("mark generation failed: %w", err)
	}
	p.notifier.EmitGenerationFailed(gen.UserID.String(), gen.GenerationID.String(), reason)

	return p.queue.Fail(ctx, job)
}
