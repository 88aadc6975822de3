// Package transcode drives ffmpeg to normalize uploaded audio and split it
// into fixed-length segments.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/zulandar/minutes/internal/config"
)

// maxOutput bounds how much encoder output a CommandError keeps.
const maxOutput = 4096

// Segment is one chunk of normalized audio on local disk.
type Segment struct {
	Index int
	Path  string
	Size  int64
}

// CommandError reports a failed encoder run with its diagnostic output.
type CommandError struct {
	Op       string // normalize or chunk
	Command  string
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("transcode: %s: %s exited %d", e.Op, e.Command, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// FFmpeg runs the encoder with a fixed output profile.
type FFmpeg struct {
	Binary     string
	Bitrate    string
	SampleRate int
	Format     string

	runner commandRunner
}

// New returns an FFmpeg configured from cfg.
func New(cfg config.EncoderConfig) *FFmpeg {
	f := &FFmpeg{
		Binary:     cfg.Binary,
		Bitrate:    cfg.Bitrate,
		SampleRate: cfg.SampleRate,
		Format:     cfg.Format,
		runner:     execRunner{},
	}
	if f.Binary == "" {
		f.Binary = "ffmpeg"
	}
	if f.Bitrate == "" {
		f.Bitrate = "64k"
	}
	if f.SampleRate == 0 {
		f.SampleRate = 16000
	}
	if f.Format == "" {
		f.Format = "mp3"
	}
	return f
}

// NormalizeArgs returns the encoder arguments for re-encoding input to
// mono at the configured bitrate and sample rate.
func (f *FFmpeg) NormalizeArgs(input, output string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", input,
		"-map", "0:a",
		"-ac", "1",
		"-b:a", f.Bitrate,
		"-ar", strconv.Itoa(f.SampleRate),
		"-f", f.Format,
		output,
	}
}

// ChunkArgs returns the encoder arguments for splitting input into
// segmentSeconds-long pieces written to pattern.
func (f *FFmpeg) ChunkArgs(input, pattern string, segmentSeconds int) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", input,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-c", "copy",
		"-reset_timestamps", "1",
		pattern,
	}
}

// Normalize re-encodes input into outDir and returns the output path. A
// missing or empty output file is an error even when the encoder exits 0.
func (f *FFmpeg) Normalize(ctx context.Context, input, outDir string) (string, error) {
	output := filepath.Join(outDir, "normalized."+f.Format)
	args := f.NormalizeArgs(input, output)

	res, err := f.runner.Run(ctx, f.Binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", f.commandError("normalize", args, res, err)
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		if err == nil {
			err = errors.New("output file is empty")
		}
		return "", f.commandError("normalize", args, res, err)
	}
	return output, nil
}

// Chunk splits input into segmentSeconds-long files under outDir and
// returns the non-empty ones in playback order.
func (f *FFmpeg) Chunk(ctx context.Context, input, outDir string, segmentSeconds int) ([]Segment, error) {
	if segmentSeconds <= 0 {
		return nil, fmt.Errorf("transcode: chunk: segment length must be positive, got %d", segmentSeconds)
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("transcode: chunk: %w", err)
	}

	pattern := filepath.Join(outDir, "chunk_%03d."+f.Format)
	args := f.ChunkArgs(input, pattern, segmentSeconds)

	res, err := f.runner.Run(ctx, f.Binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, f.commandError("chunk", args, res, err)
	}
	return ListSegments(outDir, f.Format)
}

// ListSegments finds chunk_NNN.<format> files in dir, drops empty ones,
// and sorts by numeric index.
func ListSegments(dir, format string) ([]Segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("transcode: list segments: %w", err)
	}

	suffix := "." + format
	var segs []Segment
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "chunk_") || !strings.HasSuffix(name, suffix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "chunk_"), suffix))
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("transcode: stat segment %s: %w", name, err)
		}
		if info.Size() == 0 {
			continue
		}
		segs = append(segs, Segment{Index: idx, Path: filepath.Join(dir, name), Size: info.Size()})
	}

	sort.Slice(segs, func(i, j int) bool { return segs[i].Index < segs[j].Index })
	return segs, nil
}

func (f *FFmpeg) commandError(op string, args []string, res commandResult, err error) *CommandError {
	out := res.Output
	if len(out) > maxOutput {
		out = out[len(out)-maxOutput:]
	}
	return &CommandError{
		Op:       op,
		Command:  f.Binary,
		Args:     args,
		ExitCode: res.ExitCode,
		Output:   out,
		Err:      err,
	}
}
