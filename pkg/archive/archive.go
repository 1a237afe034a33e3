// Package archive uploads finished recordings to S3-compatible object
// storage so packing-station disks do not have to keep them.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"github.com/teslashibe/parcelcam/internal/httpc"
	"github.com/teslashibe/parcelcam/internal/log"
	"github.com/teslashibe/parcelcam/pkg/recorder"
)

// ErrNoBucket is returned by New when no bucket is configured.
var ErrNoBucket = errors.New("archive: bucket required")

// Config holds the object storage settings.
type Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"` // MinIO or other S3-compatible endpoint
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`

	// DeleteLocal removes the local file after a successful upload.
	DeleteLocal bool `yaml:"delete_local"`

	Timeout time.Duration `yaml:"timeout"`
}

// Archiver uploads recordings.
type Archiver struct {
	cfg      Config
	uploader s3manageriface.UploaderAPI
	logger   *slog.Logger
}

// New creates an archiver with an AWS session built from cfg. Static keys
// are used when set; otherwise the default credential chain applies.
func New(cfg Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	awsCfg := &aws.Config{
		S3ForcePathStyle: aws.Bool(cfg.PathStyle),
		HTTPClient:       httpc.New(0),
	}
	if cfg.Region != "" {
		awsCfg.Region = aws.String(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("archive: aws session: %w", err)
	}
	return NewWithUploader(cfg, s3manager.NewUploader(sess)), nil
}

// NewWithUploader creates an archiver around an existing uploader.
func NewWithUploader(cfg Config, up s3manageriface.UploaderAPI) *Archiver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Archiver{
		cfg:      cfg,
		uploader: up,
		logger:   log.With("component", "archive", "bucket", cfg.Bucket),
	}
}

// Key returns the object key for a recording:
// "{prefix}/{yyyy}/{mm}/{dd}/{file name}".
func (a *Archiver) Key(info recorder.Info) string {
	return path.Join(
		strings.Trim(a.cfg.Prefix, "/"),
		info.StartedAt.Format("2006/01/02"),
		filepath.Base(info.Path),
	)
}

// Archive uploads the recording file and returns its location.
func (a *Archiver) Archive(ctx context.Context, info recorder.Info) (string, error) {
	f, err := os.Open(info.Path)
	if err != nil {
		return "", fmt.Errorf("archive: open recording: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	key := a.Key(info)
	start := time.Now()
	out, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(info.Path)),
		Metadata: map[string]*string{
			"Recording-Id": aws.String(info.ID),
			// Object metadata must be ASCII; carrier names are not.
			"Code":    aws.String(info.Code),
			"Carrier": aws.String(url.QueryEscape(info.Carrier)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive: upload %s: %w", key, err)
	}

	a.logger.Info("recording archived",
		"key", key,
		"location", out.Location,
		"took", time.Since(start).Round(time.Millisecond),
	)

	if a.cfg.DeleteLocal {
		// Close before removing for Windows stations.
		f.Close()
		if err := os.Remove(info.Path); err != nil {
			a.logger.Warn("failed to remove archived recording", "path", info.Path, "error", err)
		}
	}
	return out.Location, nil
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}
