package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"filetool/internal/convert"
	"filetool/internal/document"
	"filetool/internal/formats"
	"filetool/internal/logging"
	"filetool/internal/media"
	"filetool/internal/remote"
	"filetool/internal/startup"
	"filetool/internal/transcoder"
	"filetool/internal/workers"

	"github.com/spf13/cobra"
)

type cliOptions struct {
	target    string
	output    string
	quality   int
	width     int
	height    int
	dryRun    bool
	force     bool
	backend   string
	verbose   bool
	noRemote  bool
	edits     media.Edits
	stderrTTY bool
}

func main() {
	// Create a context that cancels on interrupt signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	media.ShutdownVips()
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted.")
		}
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "filetool",
		Short:        "Convert and compress images, audio, video and documents",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		newConvertCmd(convert.ModeConvert),
		newConvertCmd(convert.ModeCompress),
		newFormatsCmd(),
		newVersionCmd(),
	)
	return root
}

func newConvertCmd(mode convert.Mode) *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:  string(mode) + " <file>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.stderrTTY = isTerminal(cmd.ErrOrStderr())
			return runConvert(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], mode, opts)
		},
	}

	flags := cmd.Flags()
	if mode == convert.ModeConvert {
		cmd.Short = "Convert a file to another format"
		flags.StringVarP(&opts.target, "to", "t", "", "target format, for example pdf, mp3, webp")
		_ = cmd.MarkFlagRequired("to")
	} else {
		cmd.Short = "Shrink a file, keeping its format"
	}
	flags.StringVarP(&opts.output, "output", "o", "", "output path (default: next to the input)")
	flags.IntVarP(&opts.quality, "quality", "q", 0, "quality 1-100 (default from configuration)")
	flags.IntVar(&opts.width, "width", 0, "target width")
	flags.IntVar(&opts.height, "height", 0, "target height")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "print the plan without converting")
	flags.BoolVarP(&opts.force, "force", "f", false, "overwrite an existing output file")
	flags.StringVar(&opts.backend, "backend", "", "remote backend URL (default: BACKEND_BASE_URL)")
	flags.BoolVar(&opts.noRemote, "no-remote", false, "never fall back to the remote backend")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log each conversion step")
	flags.Float64Var(&opts.edits.Brightness, "brightness", 0, "image brightness, -100 to 100")
	flags.StringVar(&opts.edits.OverlayColor, "overlay-color", "", "image tint as #rrggbb")
	flags.Float64Var(&opts.edits.OverlayOpacity, "overlay-opacity", 0, "tint opacity, 0 to 1")
	flags.StringVar(&opts.edits.OverlayText, "overlay-text", "", "text drawn on the image")
	flags.StringVar(&opts.edits.TextColor, "text-color", "", "overlay text colour as #rrggbb")

	return cmd
}

func runConvert(ctx context.Context, stdout, stderr io.Writer, path string, mode convert.Mode, opts *cliOptions) error {
	if opts.verbose {
		logging.SetLevel(logging.LevelDebug)
	} else {
		logging.SetLevel(logging.LevelWarn)
	}
	logging.SetOutput(stderr)

	config, err := startup.ReadConfig()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	req, err := buildRequest(path, mode, opts)
	if err != nil {
		return err
	}

	env, err := newEnvironment(config, opts)
	if err != nil {
		return err
	}
	defer env.close()

	if opts.dryRun {
		plan, err := env.dispatcher.Plan(req)
		if err != nil {
			return errors.New(convert.UserMessage(err))
		}
		printPlan(stdout, req, plan)
		return nil
	}

	var bar *progressBar
	var sink convert.ProgressFunc
	if opts.stderrTTY {
		bar = newProgressBar(stderr, terminalWidth(stderr), filepath.Base(path))
		sink = bar.Update
	}

	start := time.Now()
	result, err := env.dispatcher.Run(ctx, req, sink)
	if bar != nil {
		bar.Done()
	}
	if err != nil {
		return errors.New(convert.UserMessage(err))
	}

	out := opts.output
	if out == "" {
		out = filepath.Join(filepath.Dir(path), result.Name)
	}
	if err := writeOutput(out, path, result.Data, opts.force); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s -> %s (%s, %s in %v)\n", path, out, result.Strategy,
		sizeChange(req.File.Size(), int64(len(result.Data))), time.Since(start).Round(time.Millisecond))
	return nil
}

func buildRequest(path string, mode convert.Mode, opts *cliOptions) (convert.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return convert.Request{}, err
	}

	req := convert.Request{
		File: convert.SourceFile{
			Name: filepath.Base(path),
			Data: data,
		},
		TargetFormat: opts.target,
		Mode:         mode,
		Width:        opts.width,
		Height:       opts.height,
	}
	if opts.quality != 0 {
		if opts.quality < 1 || opts.quality > 100 {
			return convert.Request{}, fmt.Errorf("quality must be between 1 and 100")
		}
		req.Quality = float64(opts.quality) / 100
	}
	if opts.width < 0 || opts.height < 0 {
		return convert.Request{}, fmt.Errorf("width and height must not be negative")
	}
	if !opts.edits.IsZero() {
		edits := opts.edits
		if err := edits.Validate(); err != nil {
			return convert.Request{}, err
		}
		req.Edits = &edits
	}
	return req, nil
}

// environment is the set of converters a single CLI run uses.
type environment struct {
	dispatcher *convert.Dispatcher
	engine     *transcoder.Handle
}

func newEnvironment(config *startup.Config, opts *cliOptions) (*environment, error) {
	env := &environment{}
	// libvips stays up until main exits
	if err := media.InitVips(); err != nil {
		logging.Debug("libvips unavailable: %v", err)
	}

	env.engine = transcoder.NewHandle(transcoder.NewFFmpegLoader(transcoder.FFmpegConfig{
		BinaryPath: config.FFmpegPath,
		WorkDir:    config.WorkDir,
	}), config.EngineLoadTimeout)

	var remoteConverter convert.RemoteConverter
	backend := config.BackendBaseURL
	if opts.backend != "" {
		backend = opts.backend
	}
	if backend != "" && !opts.noRemote {
		client, err := remote.New(remote.Config{
			BaseURL:      backend,
			Timeout:      config.BackendTimeout,
			MediaTimeout: config.BackendMediaTimeout,
		})
		if err != nil {
			env.close()
			return nil, err
		}
		remoteConverter = client
	}

	env.dispatcher = convert.NewDispatcher(convert.Config{
		MaxFileSizeBytes:     config.MaxFileSizeBytes,
		ConvertQuality:       config.DefaultQuality,
		CompressQuality:      config.CompressQuality,
		CompressMaxDimension: config.CompressMaxDimension,
		RemoteMedia:          config.RemoteMediaEnabled,
	}, convert.Dependencies{
		Images:        media.NewTransform(),
		Engine:        env.engine,
		Documents:     document.NewBridge(document.Config{UniDocAPIKey: config.UniDocAPIKey}),
		Remote:        remoteConverter,
		Limiter:       workers.NewLimiter(workers.ForCPU(0)),
		RemoteLimiter: workers.NewLimiter(workers.ForIO(0)),
	})
	return env, nil
}

func (e *environment) close() {
	if e.engine != nil {
		if err := e.engine.Close(); err != nil {
			logging.Warn("failed to clean up engine: %v", err)
		}
	}
}

func printPlan(w io.Writer, req convert.Request, p convert.Plan) {
	fmt.Fprintf(w, "File:      %s (%s)\n", req.File.Name, formatSize(req.File.Size()))
	fmt.Fprintf(w, "Category:  %s\n", p.Category)
	fmt.Fprintf(w, "Mode:      %s\n", p.Mode)
	fmt.Fprintf(w, "Target:    %s\n", p.Target)
	fmt.Fprintf(w, "Strategy:  %s\n", p.Strategy)
	if p.RemoteFallback {
		fmt.Fprintln(w, "Fallback:  remote backend")
	} else {
		fmt.Fprintln(w, "Fallback:  none")
	}
}

// writeOutput refuses to replace the input and, without force, any
// existing file.
func writeOutput(out, in string, data []byte, force bool) error {
	absOut, errOut := filepath.Abs(out)
	absIn, errIn := filepath.Abs(in)
	if errOut == nil && errIn == nil && absOut == absIn {
		return fmt.Errorf("output %s would overwrite the input", out)
	}
	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flag |= os.O_EXCL
	}
	f, err := os.OpenFile(out, flag, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", out)
		}
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func sizeChange(before, after int64) string {
	if before <= 0 {
		return formatSize(after)
	}
	pct := float64(after-before) / float64(before) * 100
	return fmt.Sprintf("%s -> %s, %+.0f%%", formatSize(before), formatSize(after), pct)
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported input extensions and output formats",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			for _, c := range []formats.Category{
				formats.CategoryImage,
				formats.CategoryAudio,
				formats.CategoryVideo,
				formats.CategoryDocument,
			} {
				fmt.Fprintf(w, "%s\n", strings.ToUpper(string(c)))
				fmt.Fprintf(w, "  input:  %s\n", strings.Join(formats.Extensions(c), " "))
				fmt.Fprintf(w, "  output: %s\n", strings.Join(formats.Targets(c), " "))
			}
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := startup.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "filetool %s (commit %s, built %s, %s %s/%s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
		},
	}
}
