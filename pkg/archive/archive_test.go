package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/teslashibe/parcelcam/pkg/recorder"
)

type fakeUploader struct {
	input *s3manager.UploadInput
	body  []byte
	err   error
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(ctx aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3manager.UploadOutput{Location: "s3://bucket/" + aws.StringValue(in.Key)}, nil
}

func testInfo(t *testing.T) recorder.Info {
	t.Helper()
	p := filepath.Join(t.TempDir(), "2024-05-01_14-03-22_SF1234567890123_顺丰.mp4")
	if err := os.WriteFile(p, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return recorder.Info{
		ID:        "rec-1",
		Code:      "SF1234567890123",
		Carrier:   "顺丰",
		Path:      p,
		StartedAt: time.Date(2024, 5, 1, 14, 3, 22, 0, time.UTC),
	}
}

func TestKey(t *testing.T) {
	a := NewWithUploader(Config{Bucket: "b", Prefix: "/stations/bench-1/"}, &fakeUploader{})
	info := recorder.Info{Path: "/data/Videos/x.mp4", StartedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	if got, want := a.Key(info), "stations/bench-1/2024/05/01/x.mp4"; got != want {
		t.Errorf("Key = %q, want %q", got, want)
	}

	a = NewWithUploader(Config{Bucket: "b"}, &fakeUploader{})
	if got, want := a.Key(info), "2024/05/01/x.mp4"; got != want {
		t.Errorf("Key without prefix = %q, want %q", got, want)
	}
}

func TestArchive_Uploads(t *testing.T) {
	up := &fakeUploader{}
	a := NewWithUploader(Config{Bucket: "recordings"}, up)
	info := testInfo(t)

	loc, err := a.Archive(context.Background(), info)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if loc == "" {
		t.Error("expected a location")
	}
	if aws.StringValue(up.input.Bucket) != "recordings" {
		t.Errorf("bucket = %q", aws.StringValue(up.input.Bucket))
	}
	if aws.StringValue(up.input.ContentType) != "video/mp4" {
		t.Errorf("content type = %q", aws.StringValue(up.input.ContentType))
	}
	if string(up.body) != "video" {
		t.Errorf("uploaded body = %q", up.body)
	}
	if aws.StringValue(up.input.Metadata["Recording-Id"]) != "rec-1" {
		t.Error("missing recording id metadata")
	}
	if _, err := os.Stat(info.Path); err != nil {
		t.Error("local file removed without DeleteLocal")
	}
}

func TestArchive_DeleteLocal(t *testing.T) {
	a := NewWithUploader(Config{Bucket: "b", DeleteLocal: true}, &fakeUploader{})
	info := testInfo(t)
	if _, err := a.Archive(context.Background(), info); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(info.Path); !os.IsNotExist(err) {
		t.Errorf("expected local file removed, stat err = %v", err)
	}
}

func TestArchive_Errors(t *testing.T) {
	a := NewWithUploader(Config{Bucket: "b", DeleteLocal: true}, &fakeUploader{err: errors.New("denied")})
	info := testInfo(t)
	if _, err := a.Archive(context.Background(), info); err == nil {
		t.Error("expected upload error")
	}
	if _, err := os.Stat(info.Path); err != nil {
		t.Error("failed upload must keep the local file")
	}

	info.Path = filepath.Join(t.TempDir(), "missing.mp4")
	if _, err := a.Archive(context.Background(), info); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoBucket) {
		t.Errorf("expected ErrNoBucket, got %v", err)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.mp4": "video/mp4",
		"a.MKV": "video/x-matroska",
		"a.bin": "application/octet-stream",
	}
	for p, want := range tests {
		if got := contentType(p); got != want {
			t.Errorf("contentType(%q) = %q, want %q", p, got, want)
		}
	}
}
