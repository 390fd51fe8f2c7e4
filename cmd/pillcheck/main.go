// Command pillcheck counts or identifies pills in tray images, or in a recorded model
// output tensor.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-pillcheck/images"
	"github.com/nvr-ai/go-pillcheck/images/annotate"
	"github.com/nvr-ai/go-pillcheck/inference"
	"github.com/nvr-ai/go-pillcheck/inference/detectors"
	_ "github.com/nvr-ai/go-pillcheck/inference/tflite"
	"github.com/nvr-ai/go-pillcheck/models"
	"github.com/nvr-ai/go-pillcheck/models/postprocess"
	"github.com/nvr-ai/go-pillcheck/profiler"
	"github.com/nvr-ai/go-pillcheck/util"
)

// options holds the parsed command line.
type options struct {
	configPath string
	preset     string
	engine     string
	modelPath  string
	tensorPath string
	imagePath  string
	dirPath    string
	mode       string
	policy     string
	space      string
	confidence float64
	iou        float64
	annotate   string
	jsonOutput bool
	profile    bool
	verbose    bool

	// set holds the names of the flags given on the command line.
	set map[string]bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}

	if opts.verbose {
		log.SetLevel(log.DebugLevel)
	}

	if err := run(opts); err != nil {
		log.WithError(err).Fatal("pillcheck failed")
	}
}

// parseFlags parses the command line arguments.
func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("pillcheck", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML detector configuration, layered over -preset")
	fs.StringVar(&opts.preset, "preset", "", "Model preset (pill-count, pill-search, pill-boxes)")
	fs.StringVar(&opts.engine, "engine", "", "Inference engine (onnx, tflite, replay)")
	fs.StringVar(&opts.modelPath, "model", "", "Path to the model file")
	fs.StringVar(&opts.tensorPath, "tensor", "", "Path to a recorded output tensor (.f32, .bin, .f16)")
	fs.StringVar(&opts.imagePath, "image", "", "Path to a tray image (.jpg, .jpeg, .png, .webp)")
	fs.StringVar(&opts.dirPath, "dir", "", "Directory of tray images")
	fs.StringVar(&opts.mode, "mode", "", "Result mode (count, identify)")
	fs.StringVar(&opts.policy, "policy", "", "Suppression policy (nms, coord_merge, center_dedup)")
	fs.StringVar(&opts.space, "center-space", "", "center_dedup distance space (pixels, normalized)")
	fs.Float64Var(&opts.confidence, "conf", 0, "Confidence threshold, overrides the configuration when set")
	fs.Float64Var(&opts.iou, "iou", 0, "IoU threshold, overrides the configuration when set")
	fs.StringVar(&opts.annotate, "annotate", "", "Directory to write annotated images to")
	fs.BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")
	fs.BoolVar(&opts.profile, "profile", false, "Log stage timings when done")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})
	return opts, nil
}

func run(opts options) error {
	if err := validateInputFlags(opts); err != nil {
		return err
	}

	config, err := buildConfig(opts)
	if err != nil {
		return err
	}

	labels, err := config.ClassTable()
	if err != nil {
		return err
	}

	timer := profiler.NewStageTimer(0)
	detectorOpts := []detectors.Option{detectors.WithProfiler(timer)}

	// A bare tensor is processed directly, no model or image involved.
	if opts.tensorPath != "" && opts.imagePath == "" && opts.dirPath == "" {
		replay, err := inference.LoadTensorFile(opts.tensorPath)
		if err != nil {
			return err
		}
		detector, err := detectors.NewDetector(config, labels, detectorOpts...)
		if err != nil {
			return err
		}
		result, err := detector.Process(replay.Data())
		if err != nil {
			return err
		}
		report(opts, config, opts.tensorPath, result)
		if opts.profile {
			timer.LogReport(log.StandardLogger())
		}
		return nil
	}

	invoker, err := inference.NewInvoker(config.Engine)
	if err != nil {
		return errors.Wrap(err, "failed to create model invoker")
	}
	detector, err := detectors.NewDetector(config, labels, append(detectorOpts, detectors.WithInvoker(invoker))...)
	if err != nil {
		invoker.Close()
		return err
	}
	defer detector.Close()

	files, err := inputFiles(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if opts.annotate != "" {
		if err := os.MkdirAll(opts.annotate, 0o755); err != nil {
			return errors.Wrap(err, "failed to create annotation directory")
		}
	}

	for _, file := range files {
		img, err := file.Image.Decode()
		if err != nil {
			return err
		}

		result, err := detector.PredictImage(ctx, img)
		if err != nil {
			return errors.Wrapf(err, "failed to process %s", file.Path)
		}
		report(opts, config, file.Path, result)

		if opts.annotate != "" {
			out := filepath.Join(opts.annotate, strings.TrimSuffix(filepath.Base(file.Path), filepath.Ext(file.Path))+".png")
			if err := annotate.WriteImage(img, annotations(result, labels), out); err != nil {
				return err
			}
			log.WithField("path", out).Debug("annotated image written")
		}
	}

	if opts.profile {
		timer.LogReport(log.StandardLogger())
	}
	return nil
}

// validateInputFlags checks that exactly one input was given.
func validateInputFlags(opts options) error {
	inputs := 0
	for _, path := range []string{opts.imagePath, opts.dirPath} {
		if path != "" {
			inputs++
		}
	}
	if inputs > 1 {
		return errors.New("specify only one of -image or -dir")
	}
	if inputs == 0 && opts.tensorPath == "" {
		return errors.New("specify one of -image, -dir or -tensor")
	}
	if opts.imagePath != "" {
		if _, err := images.FormatFromPath(opts.imagePath); err != nil {
			return err
		}
	}
	return nil
}

// buildConfig layers the defaults, the preset, the configuration file and the
// individual flags, each over the previous.
func buildConfig(opts options) (detectors.Config, error) {
	config := detectors.DefaultConfig()
	if opts.preset != "" {
		preset, err := models.LookupPreset(opts.preset)
		if err != nil {
			return config, err
		}
		config.ApplyPreset(preset)
	}

	if opts.configPath != "" {
		var err error
		if config, err = detectors.LoadConfigOver(config, opts.configPath); err != nil {
			return config, err
		}
	}

	if opts.engine != "" {
		if err := config.Engine.Type.UnmarshalText([]byte(opts.engine)); err != nil {
			return config, err
		}
	}
	if opts.modelPath != "" {
		config.Engine.ModelPath = opts.modelPath
	}
	if opts.tensorPath != "" {
		config.Engine.Type = inference.EngineReplay
		config.Engine.ModelPath = opts.tensorPath
	}
	if opts.mode != "" {
		if err := config.Mode.UnmarshalText([]byte(opts.mode)); err != nil {
			return config, err
		}
	}
	if opts.policy != "" {
		if err := config.Policy.UnmarshalText([]byte(opts.policy)); err != nil {
			return config, err
		}
	}
	if opts.space != "" {
		if err := config.CenterSpace.UnmarshalText([]byte(opts.space)); err != nil {
			return config, err
		}
	}
	if opts.set["conf"] {
		config.ConfidenceThreshold = float32(opts.confidence)
	}
	if opts.set["iou"] {
		config.IoUThreshold = float32(opts.iou)
	}

	return config, config.Validate()
}

func inputFiles(opts options) ([]util.ImageFile, error) {
	if opts.dirPath != "" {
		return util.LoadDirectoryImageFiles(opts.dirPath)
	}
	img, err := images.NewImage(opts.imagePath)
	if err != nil {
		return nil, err
	}
	return []util.ImageFile{{Path: opts.imagePath, Image: img}}, nil
}

// annotations maps the final detections back onto the source image.
func annotations(result *detectors.Result, labels postprocess.Labeler) []annotate.Box {
	out := make([]annotate.Box, 0, len(result.Final))
	for _, d := range result.Final {
		box := d.Box
		if result.Preprocessing != nil {
			box = result.Preprocessing.ToOriginal(box)
		}
		a := annotate.Box{Rect: box, Confidence: d.Confidence}
		if len(d.ClassScores) > 0 {
			a.Label = labels.Label(postprocess.ArgMax(d.ClassScores))
		}
		out = append(out, a)
	}
	return out
}

func report(opts options, config detectors.Config, source string, result *detectors.Result) {
	if opts.jsonOutput {
		data, err := json.Marshal(struct {
			Source  string            `json:"source"`
			Result  *detectors.Result `json:"result"`
			Metrics detectors.Metrics `json:"metrics"`
		}{source, result, result.Metrics(config.Metrics)})
		if err != nil {
			log.WithError(err).Error("failed to encode result")
			return
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("%s: %s\n", source, result.Outcome)
	log.WithFields(log.Fields{
		"candidates": result.Candidates,
		"filtered":   result.Filtered,
		"final":      len(result.Final),
	}).Info("pipeline counts")
}
