package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Family groups encoders that share rate-control flags.
type Family string

// Encoder families.
const (
	FamilyNVENC    Family = "nvenc"
	FamilyAMF      Family = "amf"
	FamilyQSV      Family = "qsv"
	FamilySoftware Family = "software"
)

// DefaultEncoder is the software fallback available on every ffmpeg build.
const DefaultEncoder = "libx264"

// FamilyOf maps an ffmpeg encoder name such as "h264_nvenc" to its family.
func FamilyOf(encoder string) Family {
	switch {
	case strings.Contains(encoder, "nvenc"):
		return FamilyNVENC
	case strings.Contains(encoder, "amf"):
		return FamilyAMF
	case strings.Contains(encoder, "qsv"):
		return FamilyQSV
	default:
		return FamilySoftware
	}
}

// RateControl returns the family-specific quality flags. Hardware encoders
// get bitrate/quality presets; the software fallback uses constant rate
// factor.
func RateControl(f Family) []string {
	switch f {
	case FamilyNVENC:
		return []string{"-preset", "p7", "-tune", "hq", "-b:v", "10M", "-maxrate", "20M", "-bufsize", "20M"}
	case FamilyAMF:
		return []string{"-quality", "quality", "-rc", "cqp", "-qp_i", "20", "-qp_p", "20", "-qp_b", "20"}
	case FamilyQSV:
		return []string{"-preset", "veryslow", "-global_quality", "20"}
	default:
		return []string{"-preset", "veryfast", "-crf", "23"}
	}
}

// EncoderArgs builds the ffmpeg command line for a raw BGR24 stream on
// stdin encoded into path.
func EncoderArgs(p Params, path string) []string {
	fps := strconv.Itoa(p.FrameRate)
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-vcodec", "rawvideo",
		"-pixel_format", "bgr24",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fps,
		"-i", "-",
		"-c:v", p.Encoder,
		"-pix_fmt", "yuv420p",
		"-r", fps,
	}
	args = append(args, RateControl(FamilyOf(p.Encoder))...)
	return append(args, path)
}

// FileName builds "{date}_{time}_{code}_{carrier}.{ext}".
func FileName(at time.Time, code, carrier, ext string) string {
	return fmt.Sprintf("%s_%s_%s_%s.%s",
		at.Format("2006-01-02"),
		at.Format("15-04-05"),
		sanitize(code),
		sanitize(carrier),
		strings.TrimPrefix(ext, "."),
	)
}

// sanitize replaces characters that are unsafe in file names. Codes come
// from a barcode or a user edit, so path separators are possible.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '-'
		}
		if r < 0x20 {
			return '-'
		}
		return r
	}, s)
}

// uniquePath returns dir/name, adding a "_N" suffix before the extension
// if that path already exists on disk or was handed out before.
func uniquePath(dir, name string, used map[string]bool) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for n := 2; taken(candidate, used); n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}
	return candidate
}

func taken(path string, used map[string]bool) bool {
	if used[path] {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}
