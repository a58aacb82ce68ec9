package edit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmorgan81/imageedit/internal/audit"
	"github.com/dmorgan81/imageedit/internal/config"
	"github.com/dmorgan81/imageedit/internal/image"
	"github.com/dmorgan81/imageedit/internal/log"
	"github.com/dmorgan81/imageedit/internal/store"
	"github.com/google/uuid"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

var errMalformedOutput = errors.New("model returned malformed image data")

// Service validates edit requests, dispatches them to the generator and records one audit row each.
// It keeps no per-request state between calls.
type Service struct {
	cfg       config.Config
	generator image.Generator
	audits    audit.Store
	uploader  store.Uploader
	newID     func() string
	now       func() time.Time

	background errgroup.Group
}

type Option func(*Service)

// WithUploader archives successful outputs; without it nothing is archived.
func WithUploader(u store.Uploader) Option {
	return func(s *Service) { s.uploader = u }
}

func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

func WithClock(f func() time.Time) Option {
	return func(s *Service) { s.now = f }
}

func New(cfg config.Config, generator image.Generator, audits audit.Store, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		generator: generator,
		audits:    audits,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func NewService(i *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[config.Config](i)
	var opts []Option
	if cfg.OutputBucket != "" {
		opts = append(opts, WithUploader(do.MustInvoke[store.Uploader](i)))
	}
	return New(cfg, do.MustInvoke[image.Generator](i), do.MustInvoke[audit.Store](i), opts...), nil
}

// Handle runs one edit. The returned error is always an *Error. The audit write is started in
// the background; callers must Wait before the process is frozen or exits.
func (s *Service) Handle(ctx context.Context, req Request) (*Response, error) {
	requestID := s.newID()
	ctx, logger := log.With(ctx, "edit", "request_id", requestID)

	logger.Info("received edit request", "mode", req.Prompt.Mode, "model", req.Model)

	in, err := s.validate(requestID, req)
	if err != nil {
		logger.Warn("rejected edit request", "error", err)
		return nil, err
	}

	start := time.Now()
	images, err := s.dispatch(ctx, in.params)
	elapsed := time.Since(start).Milliseconds()

	var outputSize int64
	if err == nil {
		outputSize, err = totalSize(images)
	}

	rec := audit.Record{
		ID:               requestID,
		Timestamp:        s.now().UTC(),
		ModelID:          in.modelID,
		Prompt:           audit.Truncate(req.Prompt.Text, s.cfg.PromptMaxLength),
		Mode:             string(in.mode),
		ImageSizeBytes:   in.imageSize,
		MaskSizeBytes:    in.maskSize,
		OutputSizeBytes:  outputSize,
		GenerationTimeMS: elapsed,
		Success:          err == nil,
	}

	if err != nil {
		editErr := s.classify(requestID, err)
		rec.ErrorMessage = err.Error()
		logger.Error("edit failed", "error_type", editErr.Kind, "error", err, "generation_time_ms", elapsed)
		s.record(ctx, rec, nil)
		return nil, editErr
	}

	logger.Info("edit succeeded", "images", len(images), "generation_time_ms", elapsed, "output_size_bytes", outputSize)
	s.record(ctx, rec, images)
	return &Response{
		Images:           images,
		ModelUsed:        in.model,
		RequestID:        requestID,
		GenerationTimeMS: elapsed,
	}, nil
}

// deadlineError records which deadline cut inference short and after how long.
type deadlineError struct {
	invocation bool
	after      time.Duration
}

func (e *deadlineError) Error() string {
	if e.invocation {
		return fmt.Sprintf("invocation deadline reached after %s", e.after)
	}
	return fmt.Sprintf("inference exceeded %s", e.after)
}

func (e *deadlineError) Unwrap() error {
	return context.DeadlineExceeded
}

// dispatch calls the generator under the inference timeout and returns as soon as the deadline
// passes, even if the generator ignores its context.
func (s *Service) dispatch(ctx context.Context, params image.Params) ([]string, error) {
	start := time.Now()
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, s.cfg.InferenceTimeout)
	defer cancel()

	expired := func() error {
		if errors.Is(parent.Err(), context.DeadlineExceeded) {
			return &deadlineError{invocation: true, after: time.Since(start).Round(time.Millisecond)}
		}
		return &deadlineError{after: s.cfg.InferenceTimeout}
	}

	type result struct {
		images []string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		images, err := s.generator.Generate(ctx, params)
		done <- result{images, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, expired()
		}
		return r.images, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, expired()
		}
		return nil, ctx.Err()
	}
}

func (s *Service) classify(requestID string, err error) *Error {
	var deadline *deadlineError
	switch {
	case errors.As(err, &deadline):
		return &Error{
			Kind:      KindTimeout,
			RequestID: requestID,
			Message:   fmt.Sprintf("image generation timed out after %s", deadline.after),
			Err:       err,
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{
			Kind:      KindTimeout,
			RequestID: requestID,
			Message:   fmt.Sprintf("image generation timed out after %s", s.cfg.InferenceTimeout),
			Err:       err,
		}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindInference, RequestID: requestID, Message: "image generation was cancelled", Err: err}
	case errors.Is(err, errMalformedOutput), errors.Is(err, image.ErrNoImages):
		return &Error{Kind: KindInference, RequestID: requestID, Message: "image generation returned an invalid result", Err: err}
	default:
		return &Error{Kind: KindInference, RequestID: requestID, Message: "image generation failed", Err: err}
	}
}

func totalSize(images []string) (int64, error) {
	if len(images) == 0 {
		return 0, errMalformedOutput
	}
	var total int64
	for _, img := range images {
		n, err := decodedSize(img)
		if err != nil || n == 0 {
			return 0, errMalformedOutput
		}
		total += n
	}
	return total, nil
}

// record persists rec and archives images in the background. Failures are logged as LoggingError
// and never reach the caller.
func (s *Service) record(ctx context.Context, rec audit.Record, images []string) {
	ctx = context.WithoutCancel(ctx)
	logger := log.FromContextOrDiscard(ctx)

	s.background.Go(func() error {
		actx, cancel := context.WithTimeout(ctx, s.cfg.AuditTimeout)
		defer cancel()

		if err := s.audits.Put(actx, rec); err != nil {
			logger.Error("audit write failed", "error_type", KindLogging, "error", err)
		}
		if s.uploader != nil && len(images) > 0 {
			s.archive(actx, rec, images)
		}
		return nil
	})
}

func (s *Service) archive(ctx context.Context, rec audit.Record, images []string) {
	logger := log.FromContextOrDiscard(ctx)
	metadata := map[string]string{
		"request_id": rec.ID,
		"model":      rec.ModelID,
		"mode":       rec.Mode,
	}
	for i, img := range images {
		data, err := decodeBase64(stripDataURL(img))
		if err != nil {
			logger.Error("archive skipped undecodable image", "index", i, "error", err)
			continue
		}
		err = s.uploader.Upload(ctx, store.UploadParams{
			Name:        fmt.Sprintf("%s/%d.png", rec.ID, i),
			Data:        data,
			ContentType: "image/png",
			Metadata:    metadata,
		})
		if err != nil {
			logger.Error("archive upload failed", "index", i, "error", err)
		}
	}
}

// Wait blocks until every background audit write and archive upload has finished.
func (s *Service) Wait() {
	_ = s.background.Wait()
}

func (s *Service) Shutdown() error {
	s.Wait()
	return nil
}
