package normalize

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"

	apperrors "voice3d-server/internal/platform/errors"
	"voice3d-server/internal/utils"
)

const (
	TargetSampleRate = 16000
	TargetChannels   = 1
	TargetBitDepth   = 16

	// wavHeaderSize is the size of a canonical RIFF header with no samples.
	wavHeaderSize = 44
	stderrTail    = 512
)

// Artifact is a mono 16-bit 16 kHz WAV file derived from one raw capture.
type Artifact struct {
	Path       string
	SourcePath string
	Bytes      int64
	Duration   time.Duration
}

// CommandRunner runs an external program and returns its stderr.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// Normalizer converts arbitrary input audio with ffmpeg.
type Normalizer struct {
	ffmpeg  string
	timeout time.Duration
	runner  CommandRunner
	logger  *utils.Logger
}

// New creates a normalizer. runner defaults to ExecRunner.
func New(ffmpegPath string, timeout time.Duration, runner CommandRunner, logger *utils.Logger) *Normalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Normalizer{ffmpeg: ffmpegPath, timeout: timeout, runner: runner, logger: logger}
}

// OutputPath is where Normalize writes the artifact for rawPath.
func OutputPath(rawPath string) string {
	ext := filepath.Ext(rawPath)
	return strings.TrimSuffix(rawPath, ext) + "_16k.wav"
}

// Normalize converts rawPath to mono 16-bit PCM at 16 kHz. Missing or empty
// input is rejected before ffmpeg runs; a header-only output counts as empty.
func (n *Normalizer) Normalize(ctx context.Context, rawPath string) (Artifact, error) {
	const op = "normalize"

	size := utils.FileSize(rawPath)
	if size < 0 {
		return Artifact{}, apperrors.Newf(apperrors.KindConversion, op, "input %s does not exist", filepath.Base(rawPath))
	}
	if size == 0 {
		return Artifact{}, apperrors.Newf(apperrors.KindConversion, op, "input %s is empty", filepath.Base(rawPath))
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	out := OutputPath(rawPath)
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", rawPath,
		"-ac", fmt.Sprint(TargetChannels),
		"-ar", fmt.Sprint(TargetSampleRate),
		"-acodec", "pcm_s16le",
		"-f", "wav",
		out,
	}

	start := time.Now()
	stderr, err := n.runner.Run(ctx, n.ffmpeg, args...)
	if err != nil {
		os.Remove(out)
		return Artifact{}, apperrors.Wrap(apperrors.KindConversion, op, "ffmpeg failed: "+tail(stderr), err)
	}

	outSize := utils.FileSize(out)
	if outSize < 0 {
		return Artifact{}, apperrors.New(apperrors.KindConversion, op, "converter produced no output")
	}
	if outSize <= wavHeaderSize {
		os.Remove(out)
		return Artifact{}, apperrors.New(apperrors.KindConversion, op, "converter produced empty audio")
	}

	dur, err := inspect(out)
	if err != nil {
		os.Remove(out)
		return Artifact{}, apperrors.Wrap(apperrors.KindConversion, op, "invalid converter output", err)
	}

	n.logger.InfoTag("Normalize", "%s -> %s (%d bytes, %s audio) in %s",
		filepath.Base(rawPath), filepath.Base(out), outSize, dur.Round(time.Millisecond), time.Since(start).Round(time.Millisecond))

	return Artifact{Path: out, SourcePath: rawPath, Bytes: outSize, Duration: dur}, nil
}

// inspect checks the output format and returns its duration.
func inspect(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("not a WAV file")
	}
	if dec.NumChans != TargetChannels || dec.SampleRate != TargetSampleRate || dec.BitDepth != TargetBitDepth {
		return 0, fmt.Errorf("unexpected format: %d ch, %d Hz, %d bit", dec.NumChans, dec.SampleRate, dec.BitDepth)
	}
	return dec.Duration()
}

func tail(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
	}
	if s == "" {
		return "no output"
	}
	return s
}
