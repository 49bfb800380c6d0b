package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Input failures surfaced by the transcoder. Messages are user safe.
var (
	ErrInputMissing     = errors.New("Video file not found")
	ErrUnsupportedInput = errors.New("Unsupported video format")
	ErrInputTooLarge    = errors.New("Video file too large")
	ErrInputTooLong     = errors.New("Video exceeds maximum duration")
	ErrProcessing       = errors.New("Video processing failed")
)

const (
	defaultMaxUploadBytes = 100 << 20
	defaultMaxDuration    = 5 * time.Minute
	defaultTimeout        = 10 * time.Minute
)

// Config controls the ffmpeg binaries and input limits.
type Config struct {
	FFmpegPath     string
	FFprobePath    string
	WorkDir        string
	MaxUploadBytes int64
	MaxDuration    time.Duration
	Timeout        time.Duration
}

// Output lists the local renditions produced for one submission.
type Output struct {
	LocalVideoPath           string
	LocalAudioPath           string
	OriginalDurationSeconds  float64
	ProcessedDurationSeconds float64
}

// Transcoder converts an uploaded recording into a web friendly MP4 and an MP3 audio track.
type Transcoder struct {
	cfg    Config
	logger zerolog.Logger
}

// NewTranscoder applies defaults to cfg.
func NewTranscoder(cfg Config, logger zerolog.Logger) *Transcoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "gema-review-media")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = defaultMaxDuration
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Transcoder{
		cfg:    cfg,
		logger: logger.With().Str("component", "transcoder").Logger(),
	}
}

// WorkDir is where uploads and renditions are written.
func (t *Transcoder) WorkDir() string {
	return t.cfg.WorkDir
}

// AssertReady checks that the binaries resolve and the work dir is writable.
func (t *Transcoder) AssertReady() error {
	for _, bin := range []string{t.cfg.FFmpegPath, t.cfg.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q: %w", bin, err)
		}
	}
	if err := os.MkdirAll(t.cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	return nil
}

// CheckInput validates the uploaded file without running ffmpeg.
func (t *Transcoder) CheckInput(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil || info.IsDir() {
		return ErrInputMissing
	}
	if info.Size() == 0 {
		return ErrUnsupportedInput
	}
	if info.Size() > t.cfg.MaxUploadBytes {
		return ErrInputTooLarge
	}

	detected, err := mimetype.DetectFile(inputPath)
	if err != nil {
		return ErrInputMissing
	}
	if !IsVideo(detected) {
		return ErrUnsupportedInput
	}
	return nil
}

// IsVideo reports whether the detected type, or one of its parents, is a video MIME type.
func IsVideo(detected *mimetype.MIME) bool {
	for m := detected; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") {
			return true
		}
	}
	return false
}

// Transcode validates inputPath and writes the video and audio renditions for submissionID.
// Partial outputs are removed on failure.
func (t *Transcoder) Transcode(ctx context.Context, inputPath string, submissionID uint) (Output, error) {
	if err := t.CheckInput(inputPath); err != nil {
		return Output{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	original, err := t.probeDuration(ctx, inputPath)
	if err != nil {
		return Output{}, err
	}
	if original > t.cfg.MaxDuration.Seconds() {
		return Output{}, ErrInputTooLong
	}

	outDir := filepath.Join(t.cfg.WorkDir, fmt.Sprintf("submission-%d-%s", submissionID, uuid.NewString()[:8]))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	out := Output{
		LocalVideoPath:          filepath.Join(outDir, "video.mp4"),
		LocalAudioPath:          filepath.Join(outDir, "audio.mp3"),
		OriginalDurationSeconds: original,
	}

	failed := true
	defer func() {
		if failed {
			_ = os.RemoveAll(outDir)
		}
	}()

	if err := t.run(ctx, t.cfg.FFmpegPath,
		"-y", "-i", inputPath,
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "28",
		"-vf", "scale=-2:'min(720,ih)'",
		"-c:a", "aac", "-b:a", "96k",
		"-movflags", "+faststart",
		out.LocalVideoPath,
	); err != nil {
		return Output{}, err
	}

	if err := t.run(ctx, t.cfg.FFmpegPath,
		"-y", "-i", inputPath,
		"-vn", "-ac", "1", "-ar", "16000",
		"-c:a", "libmp3lame", "-b:a", "64k",
		out.LocalAudioPath,
	); err != nil {
		return Output{}, err
	}

	processed, err := t.probeDuration(ctx, out.LocalVideoPath)
	if err != nil {
		return Output{}, err
	}
	out.ProcessedDurationSeconds = processed

	failed = false
	return out, nil
}

// Cleanup removes the renditions of out.
func (t *Transcoder) Cleanup(out Output) {
	for _, p := range []string{out.LocalVideoPath, out.LocalAudioPath} {
		if p != "" {
			_ = os.Remove(p)
		}
	}
	if out.LocalVideoPath != "" {
		dir := filepath.Dir(out.LocalVideoPath)
		if strings.HasPrefix(dir, t.cfg.WorkDir) && dir != t.cfg.WorkDir {
			_ = os.Remove(dir)
		}
	}
}

func (t *Transcoder) probeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, t.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		t.logger.Warn().Err(err).Str("path", path).Msg("ffprobe failed")
		return 0, ErrUnsupportedInput
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil || seconds < 0 {
		t.logger.Warn().Str("output", string(output)).Str("path", path).Msg("ffprobe returned no duration")
		return 0, ErrUnsupportedInput
	}
	return seconds, nil
}

func (t *Transcoder) run(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	t.logger.Error().Err(err).Str("output", tail(string(output), 2048)).Msg("ffmpeg failed")
	return ErrProcessing
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
