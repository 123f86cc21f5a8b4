package transcoder

import (
	"errors"
	"fmt"
	"strconv"

	"filetool/internal/formats"
)

// ErrNoPreset is returned when no argument set exists for a conversion.
var ErrNoPreset = errors.New("no transcoding preset for conversion")

// PresetRequest describes what a transcode should produce.
type PresetRequest struct {
	SourceExt string
	TargetExt string
	Compress  bool
	// Quality in (0, 1]; 0 selects the preset default.
	Quality float64
	// Width and Height are optional downscale hints for video output.
	Width  int
	Height int
}

// Preset holds the primary codec arguments and the simplified set tried
// once when the primary set fails.
type Preset struct {
	Args     []string
	Fallback []string
	// AudioExtract is set when a video source produces audio-only output.
	AudioExtract bool
}

// SelectPreset returns the codec arguments for req.
func SelectPreset(req PresetRequest) (Preset, error) {
	src := formats.Normalize(req.SourceExt)
	dst := formats.Normalize(req.TargetExt)
	srcCat := formats.CategoryOf(src)
	dstCat := formats.CategoryOf(dst)

	if srcCat != formats.CategoryAudio && srcCat != formats.CategoryVideo {
		return Preset{}, fmt.Errorf("%w: %s source", ErrNoPreset, srcCat)
	}

	switch dstCat {
	case formats.CategoryAudio:
		args, ok := audioCodecArgs(dst, req.Quality, req.Compress)
		if !ok {
			return Preset{}, fmt.Errorf("%w: %s", ErrNoPreset, dst)
		}
		p := Preset{Args: append([]string{"-vn"}, args...)}
		switch {
		case srcCat == formats.CategoryVideo && !req.Compress:
			p.AudioExtract = true
			p.Fallback = []string{"-vn", "-c:a", "copy"}
		case req.Compress:
			p.Fallback = []string{"-vn", "-b:a", "128k"}
		default:
			p.Fallback = []string{"-vn"}
		}
		return p, nil

	case formats.CategoryVideo:
		if srcCat != formats.CategoryVideo {
			return Preset{}, fmt.Errorf("%w: audio to video", ErrNoPreset)
		}
		args, ok := videoCodecArgs(dst, req.Quality, req.Compress)
		if !ok {
			return Preset{}, fmt.Errorf("%w: %s", ErrNoPreset, dst)
		}
		scale := scaleFilter(req.Width, req.Height)
		args = append(args, scale...)
		p := Preset{Args: args}
		if req.Compress {
			p.Fallback = append([]string{"-b:v", "1M"}, scale...)
		} else {
			p.Fallback = []string{"-c", "copy"}
		}
		return p, nil
	}

	return Preset{}, fmt.Errorf("%w: %s target", ErrNoPreset, dstCat)
}

func videoCodecArgs(ext string, quality float64, compress bool) ([]string, bool) {
	crf := strconv.Itoa(videoCRF(quality, compress))
	audioBitrate := "128k"
	if compress {
		audioBitrate = "96k"
	}

	switch ext {
	case "mp4", "m4v", "mov":
		return []string{
			"-c:v", "libx264", "-preset", "fast", "-crf", crf, "-pix_fmt", "yuv420p",
			"-c:a", "aac", "-b:a", audioBitrate,
			"-movflags", "+faststart",
		}, true
	case "mkv":
		return []string{
			"-c:v", "libx264", "-preset", "fast", "-crf", crf,
			"-c:a", "aac", "-b:a", audioBitrate,
		}, true
	case "webm":
		bitrate := "1M"
		if compress {
			bitrate = "600k"
		}
		return []string{
			"-c:v", "libvpx-vp9", "-b:v", bitrate, "-deadline", "good", "-cpu-used", "4",
			"-c:a", "libopus", "-b:a", audioBitrate,
		}, true
	case "avi":
		q := "5"
		if compress {
			q = "8"
		}
		return []string{
			"-c:v", "mpeg4", "-q:v", q,
			"-c:a", "libmp3lame", "-b:a", audioBitrate,
		}, true
	}
	return nil, false
}

func audioCodecArgs(ext string, quality float64, compress bool) ([]string, bool) {
	bitrate := audioBitrate(quality, compress)

	switch ext {
	case "mp3":
		return []string{"-c:a", "libmp3lame", "-b:a", bitrate}, true
	case "wav":
		if compress {
			return []string{"-c:a", "pcm_s16le", "-ac", "1", "-ar", "22050"}, true
		}
		return []string{"-c:a", "pcm_s16le"}, true
	case "m4a", "aac":
		return []string{"-c:a", "aac", "-b:a", bitrate}, true
	case "ogg":
		return []string{"-c:a", "libvorbis", "-b:a", bitrate}, true
	case "flac":
		return []string{"-c:a", "flac", "-compression_level", "8"}, true
	case "opus":
		return []string{"-c:a", "libopus", "-b:a", bitrate}, true
	}
	return nil, false
}

// videoCRF maps quality in (0, 1] onto x264 CRF 28..18. Zero quality uses 23
// for conversions and 28 for compression.
func videoCRF(quality float64, compress bool) int {
	if quality <= 0 || quality > 1 {
		if compress {
			return 28
		}
		return 23
	}
	return 28 - int(quality*10+0.5)
}

// audioBitrate maps quality in (0, 1] onto 64k..256k.
func audioBitrate(quality float64, compress bool) string {
	if quality <= 0 || quality > 1 {
		if compress {
			return "96k"
		}
		return "192k"
	}
	kbps := 64 + int(quality*192)
	return strconv.Itoa(kbps) + "k"
}

func scaleFilter(width, height int) []string {
	switch {
	case width > 0:
		return []string{"-vf", fmt.Sprintf("scale=%d:-2", width)}
	case height > 0:
		return []string{"-vf", fmt.Sprintf("scale=-2:%d", height)}
	}
	return nil
}
