package detectors

import (
	"context"
	"image"
	"sync"

	"github.com/nvr-ai/go-pillcheck/inference"
	"github.com/nvr-ai/go-pillcheck/models/model/preprocess"
	"github.com/nvr-ai/go-pillcheck/models/postprocess"
	"github.com/nvr-ai/go-pillcheck/profiler"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorgonia.org/tensor"
)

// ErrNoInvoker is returned by Predict on a detector built without a model invoker.
var ErrNoInvoker = errors.New("detector has no model invoker")

// Result is the outcome of one detector pass together with the per-stage counts.
type Result struct {
	// Outcome is the count or identification.
	Outcome postprocess.Outcome `json:"outcome"`
	// Candidates is the number of decoded rows.
	Candidates int `json:"candidates"`
	// Filtered is the number of detections above the confidence threshold.
	Filtered int `json:"filtered"`
	// Final are the detections left after suppression.
	Final postprocess.DetectionSet `json:"final"`
	// Preprocessing maps the source image onto the model input. Set by PredictImage only.
	Preprocessing *preprocess.PreprocessingResult `json:"-"`
}

// Metrics summarizes the final detections.
func (r *Result) Metrics(config MetricsConfig) Metrics {
	return ComputeMetrics(r.Final, config)
}

// Detector runs the pill post-processing pipeline: decode, filter by confidence,
// suppress duplicates, interpret.
//
// A Detector holds only immutable configuration and is safe for concurrent use as long
// as its invoker is.
type Detector struct {
	config       Config
	suppression  postprocess.SuppressionConfig
	labels       postprocess.Labeler
	invoker      inference.Invoker
	preprocessor *preprocess.Preprocessor
	logger       log.FieldLogger
	profiler     *profiler.StageTimer
	legacyOnce   sync.Once
}

// Option configures a Detector.
type Option func(*Detector)

// WithInvoker sets the model invoker used by Predict and PredictImage.
func WithInvoker(invoker inference.Invoker) Option {
	return func(d *Detector) {
		d.invoker = invoker
	}
}

// WithPreprocessor replaces the default pill encoder.
func WithPreprocessor(p *preprocess.Preprocessor) Option {
	return func(d *Detector) {
		d.preprocessor = p
	}
}

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(logger log.FieldLogger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// WithProfiler records stage timings and counts into timer.
func WithProfiler(timer *profiler.StageTimer) Option {
	return func(d *Detector) {
		d.profiler = timer
	}
}

// NewDetector creates a detector.
//
// Arguments:
//   - config: The pipeline configuration. It is validated here.
//   - labels: The class table used by identify mode. nil builds one from config.Classes.
//   - opts: Optional invoker, preprocessor, logger and profiler.
//
// Returns:
//   - *Detector: The detector.
//   - error: An error if the configuration is invalid.
//
// @example
// detector, err := NewDetector(DefaultConfig(), models.PillSearchClasses)
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// result, err := detector.Process(raw)
func NewDetector(config Config, labels postprocess.Labeler, opts ...Option) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid detector config")
	}

	if labels == nil {
		table, err := config.ClassTable()
		if err != nil {
			return nil, errors.Wrap(err, "invalid class table")
		}
		labels = table
	}

	d := &Detector{
		config:      config,
		suppression: config.Suppression(),
		labels:      labels,
		logger:      log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.preprocessor == nil {
		d.preprocessor = preprocess.NewPreprocessor(preprocess.GetPillConfig(config.InputSize))
	}

	d.logger.WithFields(log.Fields{
		"preset":     config.Preset,
		"mode":       config.Mode,
		"policy":     config.Policy,
		"confidence": config.ConfidenceThreshold,
		"iou":        config.IoUThreshold,
		"row_width":  config.Layout.RowWidth(),
	}).Debug("detector ready")
	return d, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Process runs the pipeline on a flat raw output tensor.
//
// Arguments:
//   - raw: The model output, row-major, Layout.RowWidth() floats per row.
//
// Returns:
//   - *Result: The outcome and per-stage counts.
//   - error: A wrapped *postprocess.MalformedOutputError if raw is not whole rows.
func (d *Detector) Process(raw []float32) (*Result, error) {
	done := d.profiler.StartOperation(profiler.StageDecode)
	candidates, err := postprocess.Decode(raw, d.config.Layout)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "decode failed")
	}
	return d.run(candidates)
}

// ProcessFloat16 runs the pipeline on a half-precision raw output tensor.
func (d *Detector) ProcessFloat16(raw []uint16) (*Result, error) {
	done := d.profiler.StartOperation(profiler.StageDecode)
	candidates, err := postprocess.DecodeFloat16(raw, d.config.Layout)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "decode failed")
	}
	return d.run(candidates)
}

// ProcessTensor runs the pipeline on a [1, N, W] or [N, W] output tensor.
func (d *Detector) ProcessTensor(t tensor.Tensor) (*Result, error) {
	done := d.profiler.StartOperation(profiler.StageDecode)
	candidates, err := postprocess.DecodeTensor(t, d.config.Layout)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "decode failed")
	}
	return d.run(candidates)
}

// Predict encodes a model-sized pixel buffer, runs the model and processes its output.
//
// Arguments:
//   - ctx: Checked before the model is invoked.
//   - buf: A pixel buffer of exactly InputSize x InputSize.
//
// Returns:
//   - *Result: The outcome and per-stage counts.
//   - error: An error if encoding, invocation or decoding fails.
func (d *Detector) Predict(ctx context.Context, buf *preprocess.PixelBuffer) (*Result, error) {
	if d.invoker == nil {
		return nil, ErrNoInvoker
	}

	done := d.profiler.StartOperation(profiler.StageEncode)
	input, err := d.preprocessor.Encode(buf)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "encode failed")
	}
	return d.invoke(ctx, input)
}

// PredictImage scales an image of any size to the model input, runs the model and
// processes its output. The returned Result carries the scaling in Preprocessing.
func (d *Detector) PredictImage(ctx context.Context, img image.Image) (*Result, error) {
	if d.invoker == nil {
		return nil, ErrNoInvoker
	}

	done := d.profiler.StartOperation(profiler.StageEncode)
	encoded, err := d.preprocessor.EncodeImage(img)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "encode failed")
	}

	result, err := d.invoke(ctx, encoded.Data)
	if err != nil {
		return nil, err
	}
	result.Preprocessing = encoded
	return result, nil
}

// Close releases the invoker, if any.
func (d *Detector) Close() error {
	if d.invoker == nil {
		return nil
	}
	return d.invoker.Close()
}

func (d *Detector) invoke(ctx context.Context, input []float32) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := d.profiler.StartOperation(profiler.StageInvoke)
	raw, err := d.invoker.Invoke(ctx, input)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "model invocation failed")
	}
	return d.Process(raw)
}

// run applies the stages after decoding.
func (d *Detector) run(candidates postprocess.DetectionSet) (*Result, error) {
	done := d.profiler.StartOperation(profiler.StageFilter)
	filtered := postprocess.FilterByConfidence(candidates, d.config.ConfidenceThreshold)
	done()

	if d.suppression.Policy.Legacy() {
		d.legacyOnce.Do(func() {
			d.logger.WithField("policy", d.suppression.Policy).
				Warn("coord_merge is order dependent and kept for compatibility only, prefer nms")
		})
	}

	done = d.profiler.StartOperation(profiler.StageSuppress)
	final, err := postprocess.Suppress(filtered, d.suppression)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "suppression failed")
	}

	done = d.profiler.StartOperation(profiler.StageInterpret)
	outcome, err := postprocess.Interpret(final, d.config.Mode, d.labels)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "interpretation failed")
	}

	d.profiler.RecordMetric("candidates", float64(len(candidates)))
	d.profiler.RecordMetric("filtered", float64(len(filtered)))
	d.profiler.RecordMetric("final", float64(len(final)))

	d.logger.WithFields(log.Fields{
		"candidates": len(candidates),
		"filtered":   len(filtered),
		"final":      len(final),
		"outcome":    outcome.String(),
	}).Debug("detector pass")

	return &Result{
		Outcome:    outcome,
		Candidates: len(candidates),
		Filtered:   len(filtered),
		Final:      final,
	}, nil
}
