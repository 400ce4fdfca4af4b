// Package main provides the CLI entry point for pixelvideo.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/user/pixelvideo/pkg/adapters/canvassurface"
	"github.com/user/pixelvideo/pkg/adapters/ggrenderer"
	"github.com/user/pixelvideo/pkg/adapters/logger"
	"github.com/user/pixelvideo/pkg/adapters/mp4demux"
	"github.com/user/pixelvideo/pkg/adapters/nullsurface"
	"github.com/user/pixelvideo/pkg/adapters/osfilesystem"
	"github.com/user/pixelvideo/pkg/adapters/rtpsurface"
	"github.com/user/pixelvideo/pkg/adapters/smartdecoder"
	"github.com/user/pixelvideo/pkg/config"
	"github.com/user/pixelvideo/pkg/playback"
	"github.com/user/pixelvideo/pkg/ports"
	"github.com/user/pixelvideo/pkg/source"
	"github.com/user/pixelvideo/pkg/summarizer"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, l10n.F("Error: %v", err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "pixelvideo",
		Usage:                l10n.T("Decode the video track of an MP4 file and loop it onto a surface"),
		Description:          l10n.T("pixelvideo pumps samples from an MP4 file through a decoder and releases frames to image files, an RTP stream or nowhere."),
		HideVersion:          true,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			playCommand(),
			probeCommand(),
			versionCommand(),
		},
	}
}

func logFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Value: "info", Category: l10n.T("Logging"), Usage: l10n.T("Log level (debug, info, warn, error)")},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Category: l10n.T("Logging"), Usage: l10n.T("Suppress all log output")},
	}
}

func playCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: l10n.T("YAML configuration file")},

		&cli.IntFlag{Name: "loops", Aliases: []string{"n"}, Category: l10n.T("Playback"), Usage: l10n.T("Passes over the track before stopping (0 = forever)")},
		&cli.StringFlag{Name: "eos-policy", Category: l10n.T("Playback"), Usage: l10n.T("End-of-stream policy (rewind, drain)")},
		&cli.StringFlag{Name: "render-mode", Category: l10n.T("Playback"), Usage: l10n.T("Frame release mode (immediate, timestamp)")},
		&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Category: l10n.T("Playback"), Usage: l10n.T("Stop after this long (0 = no limit)")},

		&cli.StringFlag{Name: "decoder", Category: l10n.T("Decoder"), Usage: l10n.T("Decoder backend (auto, ffmpeg, passthrough)")},
		&cli.StringFlag{Name: "ffmpeg-path", Category: l10n.T("Decoder"), Usage: l10n.T("Path to the ffmpeg binary")},

		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Category: l10n.T("Output"), Usage: l10n.T("Directory to write drawn frames to")},
		&cli.StringFlag{Name: "format", Category: l10n.T("Output"), Usage: l10n.T("Image format of drawn frames (jpg, png)")},
		&cli.IntFlag{Name: "quality", Category: l10n.T("Output"), Usage: l10n.T("JPEG quality (0-100)")},
		&cli.IntFlag{Name: "width", Aliases: []string{"W"}, Category: l10n.T("Output"), Usage: l10n.T("Surface width (default: video width)")},
		&cli.IntFlag{Name: "height", Aliases: []string{"H"}, Category: l10n.T("Output"), Usage: l10n.T("Surface height (default: video height)")},
		&cli.IntFlag{Name: "draw-fps", Category: l10n.T("Output"), Usage: l10n.T("Draw ticks per second")},
		&cli.BoolFlag{Name: "overlay", Category: l10n.T("Output"), Usage: l10n.T("Draw the presentation time over each frame")},
		&cli.StringFlag{Name: "background", Category: l10n.T("Output"), Usage: l10n.T("Letterbox color (hex, e.g., #000000)")},
		&cli.StringFlag{Name: "font", Category: l10n.T("Output"), Usage: l10n.T("TrueType font for the overlay")},

		&cli.StringFlag{Name: "rtp", Category: l10n.T("RTP"), Usage: l10n.T("Stream access units to this UDP address (host:port)")},
		&cli.IntFlag{Name: "payload-type", Category: l10n.T("RTP"), Usage: l10n.T("RTP payload type (0-127)")},
		&cli.IntFlag{Name: "mtu", Category: l10n.T("RTP"), Usage: l10n.T("Maximum RTP packet size in bytes")},
		&cli.UintFlag{Name: "ssrc", Category: l10n.T("RTP"), Usage: l10n.T("RTP synchronization source")},

		&cli.StringFlag{Name: "summary", Aliases: []string{"s"}, Usage: l10n.T("Write a Markdown playback summary to this path")},
	}

	return &cli.Command{
		Name:        "play",
		Usage:       l10n.T("Loop the video track of an MP4 file"),
		Description: l10n.T("Decode the first video track of an MP4 file and release its frames to the configured surfaces until the loop count is reached or the process is interrupted."),
		ArgsUsage:   "<file.mp4>",
		Flags:       append(flags, logFlags()...),
		Action:      runPlay,
	}
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:        "probe",
		Usage:       l10n.T("List the tracks of an MP4 file"),
		Description: l10n.T("Print every track of an MP4 file and the video track play would select."),
		ArgsUsage:   "<file.mp4>",
		Flags:       logFlags(),
		Action:      runProbe,
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: l10n.T("Show version information"),
		Action: func(c *cli.Context) error {
			fmt.Println(l10n.F("pixelvideo version %s", version))
			return nil
		},
	}
}

func newLogger(c *cli.Context, level string) ports.Logger {
	if c.Bool("quiet") {
		return logger.NewNoop()
	}
	return logger.NewConsole(ports.ParseLogLevel(level))
}

// loadConfig reads the optional config file and applies flags over it.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if c.Args().Present() {
		cfg.Source = c.Args().First()
	}

	if c.IsSet("loops") {
		cfg.Loops = c.Int("loops")
	}
	if c.IsSet("eos-policy") {
		cfg.EOSPolicy = c.String("eos-policy")
	}
	if c.IsSet("render-mode") {
		cfg.RenderMode = c.String("render-mode")
	}
	if c.IsSet("decoder") {
		cfg.Decoder.Backend = c.String("decoder")
	}
	if c.IsSet("ffmpeg-path") {
		cfg.Decoder.FFmpegPath = c.String("ffmpeg-path")
	}
	if c.IsSet("output") {
		cfg.Output.Dir = c.String("output")
	}
	if c.IsSet("format") {
		cfg.Output.Format = c.String("format")
	}
	if c.IsSet("quality") {
		cfg.Output.Quality = c.Int("quality")
	}
	if c.IsSet("width") {
		cfg.Output.Width = c.Int("width")
	}
	if c.IsSet("height") {
		cfg.Output.Height = c.Int("height")
	}
	if c.IsSet("draw-fps") {
		cfg.Output.DrawFPS = c.Int("draw-fps")
	}
	if c.IsSet("overlay") {
		cfg.Output.Overlay = c.Bool("overlay")
	}
	if c.IsSet("background") {
		cfg.Output.Background = c.String("background")
	}
	if c.IsSet("font") {
		cfg.Output.FontPath = c.String("font")
	}
	if c.IsSet("rtp") {
		cfg.RTP.Addr = c.String("rtp")
	}
	if c.IsSet("payload-type") {
		cfg.RTP.PayloadType = c.Int("payload-type")
	}
	if c.IsSet("mtu") {
		cfg.RTP.MTU = c.Int("mtu")
	}
	if c.IsSet("ssrc") {
		cfg.RTP.SSRC = uint32(c.Uint("ssrc"))
	}
	if c.IsSet("summary") {
		cfg.Summary = c.String("summary")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	if cfg.Source == "" {
		return cfg, errors.New(l10n.T("an MP4 file is required"))
	}
	return cfg, cfg.Validate()
}

// surfaces holds what play releases frames to.
type surfaces struct {
	surface ports.Surface
	canvas  *canvassurface.Surface
	rtp     *rtpsurface.Surface
	closers []func() error
}

func openSurfaces(cfg config.Config, fs ports.FileSystem, log ports.Logger) (*surfaces, error) {
	s := &surfaces{}
	var targets []ports.Surface

	if cfg.Output.Dir != "" {
		s.canvas = canvassurface.New(ggrenderer.New(), fs, cfg.CanvasOptions(), log)
		if cfg.Output.Width > 0 && cfg.Output.Height > 0 {
			s.canvas.Resize(cfg.Output.Width, cfg.Output.Height)
		}
		targets = append(targets, s.canvas)
	}

	if cfg.RTP.Addr != "" {
		rtp, conn, err := rtpsurface.Dial(cfg.RTP.Addr, cfg.RTPOptions(), log)
		if err != nil {
			return nil, err
		}
		s.rtp = rtp
		s.closers = append(s.closers, conn.Close)
		targets = append(targets, rtp)
	}

	switch len(targets) {
	case 0:
		s.surface = nullsurface.New()
	case 1:
		s.surface = targets[0]
	default:
		s.surface = newTee(targets...)
	}
	return s, nil
}

func (s *surfaces) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func runPlay(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	log := newLogger(c, cfg.LogLevel)

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	if d := c.Duration("duration"); d > 0 {
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	fs := osfilesystem.New()
	file, err := fs.Open(cfg.Source)
	if err != nil {
		return fmt.Errorf("%w: %v", mp4demux.ErrOpen, err)
	}
	demuxer, err := mp4demux.Open(file)
	if err != nil {
		file.Close()
		return err
	}
	tracks := demuxer.Tracks()

	out, err := openSurfaces(cfg, fs, log)
	if err != nil {
		demuxer.Close()
		return err
	}
	defer out.Close()

	factory := smartdecoder.NewFactory(cfg.DecoderOptions(), log)
	controller := playback.NewController(factory, cfg.PumpOptions(), log)

	started := time.Now()
	if err := controller.Start(ctx, demuxer, out.surface); err != nil {
		// The controller closes the demuxer on failed starts.
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// Handle signals
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			log.Warn(l10n.T("Interrupted, shutting down..."))
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		err := controller.Wait(gctx)
		cancel()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	if out.canvas != nil {
		g.Go(func() error {
			return canvassurface.RunDrawLoop(gctx, out.canvas, cfg.Output.DrawFPS)
		})
	}

	runErr := g.Wait()
	stopErr := controller.Stop()
	elapsed := time.Since(started)

	if cfg.Summary != "" {
		s := buildSummary(cfg, tracks, controller, out, runErr)
		s.Playback.ElapsedMs = elapsed.Milliseconds()
		writer := summarizer.NewWriter(
			summarizer.NewMarkdownFormatter(summarizer.WithTranslator(l10n.T), summarizer.WithVersion(version)),
			fs,
		)
		if err := writer.Write(cfg.Summary, s); err != nil {
			log.Error("Failed to write summary: %v", err)
		} else {
			log.Info("Wrote summary to %s", cfg.Summary)
		}
	}

	return errors.Join(runErr, stopErr)
}

func buildSummary(cfg config.Config, tracks []ports.Track, controller *playback.Controller, out *surfaces, runErr error) *summarizer.Summary {
	infos := make([]summarizer.TrackInfo, 0, len(tracks))
	for _, t := range tracks {
		infos = append(infos, trackInfo(t))
	}

	var outputs []string
	if cfg.Output.Dir != "" {
		outputs = append(outputs, cfg.Output.Dir)
	}
	if cfg.RTP.Addr != "" {
		outputs = append(outputs, "rtp://"+cfg.RTP.Addr)
	}

	b := summarizer.NewBuilder().
		WithSource(cfg.Source, infos).
		WithSettings(summarizer.Settings{
			Backend:    cfg.Decoder.Backend,
			EOSPolicy:  cfg.EOSPolicy,
			RenderMode: cfg.RenderMode,
			Loops:      cfg.Loops,
			Output:     strings.Join(outputs, ", "),
		})

	if track, ok := controller.Track(); ok {
		b.WithTrack(trackInfo(track))
	}

	stats := controller.Stats()
	info := summarizer.PlaybackInfo{
		LoopsCompleted: stats.LoopsCompleted,
		SamplesQueued:  stats.SamplesQueued,
		FramesRendered: stats.FramesRendered,
		FramesDropped:  stats.FramesDropped,
		FormatChanges:  stats.FormatChanges,
		Errors:         stats.Errors,
	}
	if session, ok := controller.Session(); ok {
		info.State = session.State.String()
	}
	if out.canvas != nil {
		info.FramesWritten = out.canvas.Stats().FramesWritten
	}
	if runErr != nil {
		info.LastError = runErr.Error()
	}
	return b.WithPlayback(info).Build()
}

func trackInfo(t ports.Track) summarizer.TrackInfo {
	info := summarizer.TrackInfo{
		Index:      t.Index,
		MIME:       t.MIME,
		Width:      t.Format.Width,
		Height:     t.Format.Height,
		DurationUs: t.Format.DurationUs,
	}
	if ports.IsVideoMIME(t.MIME) {
		c := t.Format.Color
		info.Color = fmt.Sprintf("%s/%s/%s", c.Standard(), c.Range(), c.TransferName())
	}
	return info
}

func runProbe(c *cli.Context) error {
	if !c.Args().Present() {
		return errors.New(l10n.T("an MP4 file is required"))
	}
	path := c.Args().First()
	log := newLogger(c, c.String("log-level"))

	fs := osfilesystem.New()
	file, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", mp4demux.ErrOpen, err)
	}

	if mime, err := mp4demux.Detect(file); err == nil {
		log.Debug("Detected %s", mime)
	}

	demuxer, err := mp4demux.Open(file)
	if err != nil {
		file.Close()
		return err
	}
	reader, err := source.Open(demuxer, log)
	if err != nil {
		return err
	}
	defer reader.Close()

	fmt.Println(l10n.F("%s: %d tracks", path, len(reader.Tracks())))
	for _, t := range reader.Tracks() {
		fmt.Printf("  #%d %s\n", t.Index, t.Format)
	}

	track, err := reader.SelectVideoTrack()
	if err != nil {
		fmt.Println(l10n.T("No playable video track"))
		return err
	}
	fmt.Println(l10n.F("Video track: #%d (%s), %d samples", track.Index, track.MIME, reader.SampleCount()))
	return nil
}
