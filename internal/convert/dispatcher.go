package convert

import (
	"context"
	"errors"
	"math"
	"time"

	"filetool/internal/document"
	"filetool/internal/formats"
	"filetool/internal/logging"
	"filetool/internal/media"
	"filetool/internal/remote"
	"filetool/internal/transcoder"
	"filetool/internal/workers"
)

// ImageConverter re-encodes raster images. media.Transform implements it.
type ImageConverter interface {
	Convert(ctx context.Context, data []byte, sourceExt, targetExt string, opts media.Options) ([]byte, error)
}

// Engine is the shared transcoding engine. transcoder.Handle implements it.
type Engine interface {
	Acquire(ctx context.Context) error
	Run(ctx context.Context, cmd transcoder.Command, progress func(float64)) ([]byte, error)
}

// DocumentConverter handles the document pairs that can be processed
// locally. document.Bridge implements it.
type DocumentConverter interface {
	Supports(sourceExt, targetExt string) bool
	Convert(ctx context.Context, data []byte, sourceExt, targetExt string) ([]byte, error)
}

// RemoteConverter sends a file to the conversion backend. remote.Client
// implements it.
type RemoteConverter interface {
	Send(ctx context.Context, file remote.File, params remote.Params) ([]byte, string, error)
}

// Config holds the dispatcher's policy values.
type Config struct {
	MaxFileSizeBytes int64
	// ConvertQuality and CompressQuality are the image quality defaults
	// for each mode, in (0, 1].
	ConvertQuality  float64
	CompressQuality float64
	// CompressMaxDimension caps the longest image side in compress mode.
	// Zero disables downscaling.
	CompressMaxDimension int
	// RemoteMedia allows audio and video to fall back to the backend.
	RemoteMedia bool
}

// DefaultConfig returns the default policy.
func DefaultConfig() Config {
	return Config{
		MaxFileSizeBytes:     DefaultMaxFileSize,
		ConvertQuality:       0.75,
		CompressQuality:      0.65,
		CompressMaxDimension: 2000,
	}
}

// Dependencies are the collaborators a Dispatcher calls. Images and Engine
// are required for image and media requests; Remote may be nil when no
// backend is configured.
type Dependencies struct {
	Images    ImageConverter
	Engine    Engine
	Documents DocumentConverter
	Remote    RemoteConverter
	Observer  Observer
	// Limiter bounds concurrent image and document work. Nil means
	// unbounded.
	Limiter *workers.Limiter
	// RemoteLimiter bounds concurrent uploads to the remote backend.
	RemoteLimiter *workers.Limiter
}

// Dispatcher selects and runs the conversion strategy for each request.
// It is safe for concurrent use.
type Dispatcher struct {
	cfg       Config
	images    ImageConverter
	engine    Engine
	documents DocumentConverter
	remote    RemoteConverter
	observer  Observer
	limiter   *workers.Limiter
	uploads   *workers.Limiter
}

// NewDispatcher creates a dispatcher. Zero config values take their
// defaults.
func NewDispatcher(cfg Config, deps Dependencies) *Dispatcher {
	def := DefaultConfig()
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = def.MaxFileSizeBytes
	}
	if cfg.ConvertQuality <= 0 || cfg.ConvertQuality > 1 {
		cfg.ConvertQuality = def.ConvertQuality
	}
	if cfg.CompressQuality <= 0 || cfg.CompressQuality > 1 {
		cfg.CompressQuality = def.CompressQuality
	}
	if cfg.CompressMaxDimension < 0 {
		cfg.CompressMaxDimension = 0
	}

	d := &Dispatcher{
		cfg:       cfg,
		images:    deps.Images,
		engine:    deps.Engine,
		documents: deps.Documents,
		remote:    deps.Remote,
		observer:  deps.Observer,
		limiter:   deps.Limiter,
		uploads:   deps.RemoteLimiter,
	}
	if d.observer == nil {
		d.observer = nopObserver{}
	}
	return d
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// job is the state of one Run call.
type job struct {
	req      Request
	plan     Plan
	strategy Strategy
	progress *progress
}

// Run executes req. progress may be nil; it receives non-decreasing values,
// 1 on success and 0 on failure. Every error is a *Error.
//
// On compression that does not shrink the file the original bytes are
// returned and Result.Data aliases req.File.Data.
func (d *Dispatcher) Run(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	start := time.Now()
	j := &job{req: req, strategy: StrategyNone, progress: newProgress(progress)}

	d.observer.ObserveStart()
	res, err := d.run(ctx, j)

	category := j.plan.Category
	if category == "" {
		category = formats.CategoryUnknown
	}
	status := "success"
	if err != nil {
		status = "error"
		j.progress.fail()
		d.enter(j, StateFailed)
		logging.Warn("Conversion of %s to %q failed: %v", req.File.Name, req.TargetFormat, err)
	} else {
		j.progress.succeed()
		d.enter(j, StateSucceeded)
		logging.Info("Converted %s -> %s via %s in %v (%d -> %d bytes)",
			req.File.Name, res.Name, res.Strategy, time.Since(start).Round(time.Millisecond),
			req.File.Size(), len(res.Data))
	}
	d.observer.ObserveConversion(string(category), string(j.strategy), status, time.Since(start).Seconds())

	return res, err
}

func (d *Dispatcher) enter(j *job, s State) {
	logging.Debug("Conversion %s: %s", j.req.File.Name, s)
	d.observer.ObserveState(string(s))
}

func (d *Dispatcher) run(ctx context.Context, j *job) (*Result, error) {
	plan, err := d.plan(j.req, func(s State) { d.enter(j, s) })
	j.plan = plan
	if err != nil {
		return nil, err
	}
	j.strategy = plan.Strategy
	j.progress.report(0.05)

	var out []byte
	switch plan.Strategy {
	case StrategyImage:
		out, err = d.runImage(ctx, j)
	case StrategyImageToPDF, StrategyDocument:
		out, err = d.runDocument(ctx, j)
	case StrategyTranscode, StrategyAudioExtract:
		out, err = d.runMedia(ctx, j)
	case StrategyRemote:
		out, err = d.runRemote(ctx, j)
	default:
		err = newError(CodeUnsupportedConversion, "no strategy", nil)
	}
	if err != nil {
		return nil, err
	}

	if plan.Mode == ModeCompress && len(out) >= len(j.req.File.Data) {
		logging.Info("Compressed %s is not smaller than the original (%d >= %d bytes), keeping original",
			j.req.File.Name, len(out), len(j.req.File.Data))
		d.observer.ObserveFallback("passthrough")
		out = j.req.File.Data
		j.strategy = StrategyPassthrough
	}

	return &Result{
		Data:     out,
		Name:     outputName(j.req.File.Name, plan),
		MimeType: formats.MimeType(plan.Target),
		Strategy: j.strategy,
	}, nil
}

func (d *Dispatcher) runImage(ctx context.Context, j *job) ([]byte, error) {
	d.enter(j, StateLocalProcessing)
	if d.images == nil {
		return nil, newError(CodeUnsupportedConversion, "no image converter", nil)
	}
	if err := d.acquireSlot(ctx); err != nil {
		return nil, err
	}
	defer d.releaseSlot()

	opts := media.Options{
		Quality: d.quality(j),
		Width:   j.req.Width,
		Height:  j.req.Height,
		Edits:   j.req.Edits,
	}
	if j.plan.Mode == ModeCompress {
		opts.MaxDimension = d.cfg.CompressMaxDimension
		opts.Compress = true
	}

	j.progress.report(0.2)
	out, err := d.images.Convert(ctx, j.req.File.Data, j.plan.Source, j.plan.Target, opts)
	if err != nil {
		if ce := contextError(err); ce != nil {
			return nil, ce
		}
		return nil, newError(CodeUnsupportedConversion, err.Error(), err)
	}
	j.progress.report(0.9)
	return out, nil
}

func (d *Dispatcher) runDocument(ctx context.Context, j *job) ([]byte, error) {
	d.enter(j, StateLocalProcessing)
	if d.documents == nil {
		return nil, newError(CodeUnsupportedConversion, "no document converter", nil)
	}

	out, err := func() ([]byte, error) {
		if err := d.acquireSlot(ctx); err != nil {
			return nil, err
		}
		defer d.releaseSlot()
		j.progress.report(0.2)
		return d.documents.Convert(ctx, j.req.File.Data, j.plan.Source, j.plan.Target)
	}()
	if err == nil {
		j.progress.report(0.9)
		return out, nil
	}

	var ce *Error
	switch {
	case errors.As(err, &ce):
		return nil, ce
	case errors.Is(err, document.ErrExtractionUnsupported):
		// The backend has the same limitation
		return nil, newError(CodeExtractionUnsupported, err.Error(), err)
	}
	if ce := contextError(err); ce != nil {
		return nil, ce
	}
	// Images are local only
	if j.plan.Strategy == StrategyImageToPDF || !j.plan.RemoteFallback {
		return nil, newError(CodeUnsupportedConversion, err.Error(), err)
	}

	logging.Warn("Local document conversion of %s failed, trying remote backend: %v", j.req.File.Name, err)
	d.observer.ObserveFallback("remote")
	return d.runRemote(ctx, j)
}

func (d *Dispatcher) runMedia(ctx context.Context, j *job) ([]byte, error) {
	d.enter(j, StateLocalProcessing)

	preset, err := transcoder.SelectPreset(transcoder.PresetRequest{
		SourceExt: j.plan.Source,
		TargetExt: j.plan.Target,
		Compress:  j.plan.Mode == ModeCompress,
		Quality:   j.req.Quality,
		Width:     j.req.Width,
		Height:    j.req.Height,
	})
	if err != nil {
		return nil, newError(CodeUnsupportedConversion, err.Error(), err)
	}
	if preset.AudioExtract {
		logging.Debug("Extracting audio track from %s", j.req.File.Name)
	}

	if d.engine == nil {
		return d.mediaFallback(ctx, j, newError(CodeLocalEngineUnavailable, "no transcoding engine", nil))
	}
	if err := d.engine.Acquire(ctx); err != nil {
		return d.mediaFallback(ctx, j, engineFailure(err))
	}
	j.progress.report(0.1)

	command := func(args []string) transcoder.Command {
		return transcoder.Command{
			Input:     j.req.File.Data,
			InputExt:  j.plan.Source,
			OutputExt: j.plan.Target,
			Args:      args,
		}
	}

	out, err := d.engine.Run(ctx, command(preset.Args), j.progress.report)
	var te *transcoder.TranscodeError
	if errors.As(err, &te) && len(preset.Fallback) > 0 {
		logging.Warn("Transcode of %s failed (%s), retrying with simplified arguments", j.req.File.Name, te.Reason)
		d.observer.ObserveFallback("preset")
		out, err = d.engine.Run(ctx, command(preset.Fallback), j.progress.report)
	}
	if err != nil {
		return d.mediaFallback(ctx, j, engineFailure(err))
	}
	return out, nil
}

// mediaFallback hands a failed media request to the backend when media
// fallback is enabled. Cancellation and timeouts are returned unchanged.
func (d *Dispatcher) mediaFallback(ctx context.Context, j *job, cause *Error) ([]byte, error) {
	if cause.Code != CodeLocalEngineUnavailable || !j.plan.RemoteFallback {
		return nil, cause
	}
	logging.Warn("Local media processing of %s unavailable, trying remote backend: %s", j.req.File.Name, cause.Reason)
	d.observer.ObserveFallback("remote")
	return d.runRemote(ctx, j)
}

func (d *Dispatcher) runRemote(ctx context.Context, j *job) ([]byte, error) {
	d.enter(j, StateRemoteFallback)
	j.strategy = StrategyRemote
	if d.remote == nil {
		return nil, newError(CodeRemoteConversionFailed, "no remote backend configured", nil)
	}

	kind := remote.KindDocument
	if j.plan.Category == formats.CategoryAudio || j.plan.Category == formats.CategoryVideo {
		kind = remote.KindMedia
	}

	params := remote.Params{
		Kind:         kind,
		TargetFormat: j.plan.Target,
		Mode:         string(j.plan.Mode),
		Width:        j.req.Width,
		Height:       j.req.Height,
	}
	if j.req.Quality > 0 && j.req.Quality <= 1 {
		params.Quality = int(math.Round(j.req.Quality * 100))
	}

	if err := acquire(ctx, d.uploads); err != nil {
		return nil, err
	}
	defer release(d.uploads)

	j.progress.report(0.3)
	out, _, err := d.remote.Send(ctx, remote.File{
		Name:        j.req.File.Name,
		ContentType: j.req.File.ContentType,
		Data:        j.req.File.Data,
	}, params)
	if err != nil {
		return nil, remoteFailure(err)
	}
	if len(out) == 0 {
		return nil, newError(CodeRemoteConversionFailed, "empty response", nil)
	}
	j.progress.report(0.95)
	return out, nil
}

func (d *Dispatcher) quality(j *job) float64 {
	if q := j.req.Quality; q > 0 && q <= 1 {
		return q
	}
	if j.plan.Mode == ModeCompress {
		return d.cfg.CompressQuality
	}
	return d.cfg.ConvertQuality
}

func (d *Dispatcher) acquireSlot(ctx context.Context) error {
	return acquire(ctx, d.limiter)
}

func (d *Dispatcher) releaseSlot() {
	release(d.limiter)
}

func acquire(ctx context.Context, lim *workers.Limiter) error {
	if lim == nil {
		return nil
	}
	if err := lim.Acquire(ctx); err != nil {
		if ce := contextError(err); ce != nil {
			return ce
		}
		return newError(CodeCanceled, err.Error(), err)
	}
	return nil
}

func release(lim *workers.Limiter) {
	if lim != nil {
		lim.Release()
	}
}

func outputName(name string, p Plan) string {
	base := formats.Base(name)
	if base == "" {
		base = "output"
	}
	if p.Mode == ModeCompress {
		return base + "_compressed." + p.Target
	}
	return base + "." + p.Target
}
