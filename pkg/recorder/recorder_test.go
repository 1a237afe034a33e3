package recorder

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/parcelcam/pkg/frame"
)

var testNow = time.Date(2024, 5, 1, 14, 3, 22, 0, time.UTC)

func newTestSession(t *testing.T, l *MockLauncher) (*Session, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewSession(Config{
		Launcher:    l,
		StopTimeout: 50 * time.Millisecond,
		Now:         func() time.Time { return testNow },
	})
	return s, dir
}

func testParams(dir string) Params {
	return Params{
		Code:      "SF1234567890123",
		Carrier:   "顺丰",
		Width:     4,
		Height:    2,
		FrameRate: 15,
		Encoder:   "h264_nvenc",
		OutputDir: dir,
	}
}

// Scenario D: start, stream, stop.
func TestSession_StartWriteStop(t *testing.T) {
	l := NewMockLauncher()
	s, dir := newTestSession(t, l)

	info, err := s.Start(testParams(dir))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	want := filepath.Join(dir, "2024-05-01_14-03-22_SF1234567890123_顺丰.mp4")
	if info.Path != want {
		t.Errorf("path = %q, want %q", info.Path, want)
	}
	if info.ID == "" {
		t.Error("expected a recording id")
	}
	if !s.Status().Recording() {
		t.Error("expected Recording state")
	}

	f := frame.New(4, 2)
	for i := 0; i < 10; i++ {
		if err := s.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame %d failed: %v", i, err)
		}
	}
	if got := s.Status().Info.Frames; got != 10 {
		t.Errorf("status frames = %d, want 10", got)
	}

	done, ok := s.Stop()
	if !ok {
		t.Fatal("Stop reported no active recording")
	}
	if done.Frames != 10 || done.Dropped != 0 {
		t.Errorf("frames/dropped = %d/%d, want 10/0", done.Frames, done.Dropped)
	}
	if s.Status().Recording() {
		t.Error("expected Idle after Stop")
	}

	sinks := l.Sinks()
	if len(sinks) != 1 {
		t.Fatalf("expected 1 launch, got %d", len(sinks))
	}
	writes, bytes, closed, killed := sinks[0].Stats()
	if writes != 10 || bytes != 10*4*2*3 {
		t.Errorf("sink got %d writes / %d bytes", writes, bytes)
	}
	if !closed || killed {
		t.Errorf("expected clean close, closed=%v killed=%v", closed, killed)
	}
}

func TestSession_StartWhileRecording(t *testing.T) {
	l := NewMockLauncher()
	s, dir := newTestSession(t, l)

	if _, err := s.Start(testParams(dir)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Start(testParams(dir)); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("expected ErrAlreadyRecording, got %v", err)
	}
	if n := len(l.Launches()); n != 1 {
		t.Errorf("second start launched a process: %d launches", n)
	}
}

func TestSession_StopIdempotent(t *testing.T) {
	l := NewMockLauncher()
	s, dir := newTestSession(t, l)

	if _, ok := s.Stop(); ok {
		t.Error("Stop on idle session should report false")
	}
	if _, err := s.Start(testParams(dir)); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Stop(); !ok {
		t.Error("first Stop should report true")
	}
	if _, ok := s.Stop(); ok {
		t.Error("second Stop should be a no-op")
	}
}

func TestSession_WriteWhileIdle(t *testing.T) {
	s, _ := newTestSession(t, NewMockLauncher())
	if err := s.WriteFrame(frame.New(4, 2)); !errors.Is(err, ErrNotRecording) {
		t.Errorf("expected ErrNotRecording, got %v", err)
	}
}

func TestSession_SecondRecordingGetsDistinctFile(t *testing.T) {
	l := NewMockLauncher()
	s, dir := newTestSession(t, l)

	first, err := s.Start(testParams(dir))
	if err != nil {
		t.Fatal(err)
	}
	s.Stop()
	second, err := s.Start(testParams(dir))
	if err != nil {
		t.Fatal(err)
	}
	s.Stop()

	if first.Path == second.Path {
		t.Fatalf("both recordings wrote %q", first.Path)
	}
	if !strings.HasSuffix(second.Path, "_2.mp4") {
		t.Errorf("second path = %q, want _2 suffix", second.Path)
	}
	if first.ID == second.ID {
		t.Error("recording ids should differ")
	}
}

func TestSession_ExistingFileNotOverwritten(t *testing.T) {
	l := NewMockLauncher()
	s, dir := newTestSession(t, l)

	existing := filepath.Join(dir, FileName(testNow, "SF1234567890123", "顺丰", "mp4"))
	if err := os.WriteFile(existing, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := s.Start(testParams(dir))
	if err != nil {
		t.Fatal(err)
	}
	if info.Path == existing {
		t.Error("recording reused an existing file name")
	}
}

func TestSession_CreatesOutputDir(t *testing.T) {
	l := NewMockLauncher()
	s, dir := newTestSession(t, l)
	p := testParams(filepath.Join(dir, "nested", "Videos"))

	if _, err := s.Start(p); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if st, err := os.Stat(p.OutputDir); err != nil || !st.IsDir() {
		t.Errorf("output dir not created: %v", err)
	}
}

func TestSession_LaunchFailureStaysIdle(t *testing.T) {
	l := NewMockLauncher()
	l.LaunchErr = errors.New("ffmpeg not found")
	s, dir := newTestSession(t, l)

	_, err := s.Start(testParams(dir))
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LaunchError, got %v", err)
	}
	if le.Encoder != "h264_nvenc" {
		t.Errorf("LaunchError encoder = %q", le.Encoder)
	}
	if s.Status().Recording() {
		t.Error("failed start must leave the session idle")
	}
}

func TestSession_WriteErrorKeepsRecording(t *testing.T) {
	l := NewMockLauncher()
	l.WriteErr = errors.New("broken pipe")
	s, dir := newTestSession(t, l)

	if _, err := s.Start(testParams(dir)); err != nil {
		t.Fatal(err)
	}
	err := s.WriteFrame(frame.New(4, 2))
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("expected *WriteError, got %v", err)
	}
	if we.Frame != 1 {
		t.Errorf("WriteError frame = %d, want 1", we.Frame)
	}
	if got := s.Status().Info.Frames; got != 0 {
		t.Errorf("failed write counted as recorded: frames = %d", got)
	}
	if !s.Status().Recording() {
		t.Error("write error must not end the recording")
	}
	info, _ := s.Stop()
	if info.Frames != 0 || info.Dropped != 1 {
		t.Errorf("frames/dropped = %d/%d, want 0/1", info.Frames, info.Dropped)
	}
}

func TestSession_FrameSizeMismatch(t *testing.T) {
	l := NewMockLauncher()
	s, dir := newTestSession(t, l)
	if _, err := s.Start(testParams(dir)); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteFrame(frame.New(8, 8)); !errors.Is(err, ErrFrameSize) {
		t.Errorf("expected ErrFrameSize, got %v", err)
	}
	writes, _, _, _ := l.Sinks()[0].Stats()
	if writes != 0 {
		t.Errorf("mismatched frame reached the encoder")
	}
}

func TestSession_StopTimeoutKills(t *testing.T) {
	l := NewMockLauncher()
	l.Hang = true
	s, dir := newTestSession(t, l)
	if _, err := s.Start(testParams(dir)); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if _, ok := s.Stop(); !ok {
		t.Fatal("Stop should report the recording")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Stop was not bounded by the timeout")
	}
	_, _, _, killed := l.Sinks()[0].Stats()
	if !killed {
		t.Error("hung encoder should be killed")
	}
	if s.Status().Recording() {
		t.Error("expected Idle after forced stop")
	}
}

func TestSession_StopDuringStalledWrite(t *testing.T) {
	for _, tt := range []struct {
		name string
		stop func(*Session) (Info, bool)
	}{
		{"stop", (*Session).Stop},
		{"close", (*Session).Close},
	} {
		t.Run(tt.name, func(t *testing.T) {
			l := NewMockLauncher()
			l.Block = make(chan struct{})
			s, dir := newTestSession(t, l)
			if _, err := s.Start(testParams(dir)); err != nil {
				t.Fatal(err)
			}

			writeDone := make(chan error, 1)
			go func() { writeDone <- s.WriteFrame(frame.New(4, 2)) }()
			sink := l.Sinks()[0]
			deadline := time.Now().Add(2 * time.Second)
			for sink.Blocked() == 0 {
				if time.Now().After(deadline) {
					t.Fatal("write never reached the encoder")
				}
				time.Sleep(time.Millisecond)
			}

			stopped := make(chan Info, 1)
			go func() {
				info, _ := tt.stop(s)
				stopped <- info
			}()
			var info Info
			select {
			case info = <-stopped:
			case <-time.After(time.Second):
				close(l.Block)
				t.Fatal("stop blocked behind a stalled write")
			}
			if s.Status().Recording() {
				t.Error("expected Idle after stop")
			}
			if info.Frames != 0 {
				t.Errorf("frames = %d, stalled write must not count", info.Frames)
			}

			close(l.Block)
			select {
			case err := <-writeDone:
				if !errors.Is(err, ErrNotRecording) {
					t.Errorf("interrupted write = %v, want ErrNotRecording", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("stalled write never returned")
			}
			if err := s.WriteFrame(frame.New(4, 2)); !errors.Is(err, ErrNotRecording) {
				t.Errorf("write after stop = %v, want ErrNotRecording", err)
			}
		})
	}
}

func TestSession_StalledWriteDoesNotLeakIntoNextRecording(t *testing.T) {
	l := NewMockLauncher()
	l.Block = make(chan struct{})
	s, dir := newTestSession(t, l)
	if _, err := s.Start(testParams(dir)); err != nil {
		t.Fatal(err)
	}
	writeDone := make(chan error, 1)
	go func() { writeDone <- s.WriteFrame(frame.New(4, 2)) }()
	for l.Sinks()[0].Blocked() == 0 {
		time.Sleep(time.Millisecond)
	}
	s.Stop()

	l.Block = nil
	if _, err := s.Start(testParams(dir)); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	close(l.Sinks()[0].block)
	<-writeDone

	st := s.Status()
	if st.Info.Frames != 0 || st.Info.Dropped != 0 {
		t.Errorf("new recording counters = %d/%d, want 0/0", st.Info.Frames, st.Info.Dropped)
	}
	s.Stop()
}

func TestSession_CloseRefusesStart(t *testing.T) {
	l := NewMockLauncher()
	s, dir := newTestSession(t, l)
	if _, err := s.Start(testParams(dir)); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Close(); !ok {
		t.Error("Close should stop the active recording")
	}
	if _, err := s.Start(testParams(dir)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestSession_InvalidParams(t *testing.T) {
	s, dir := newTestSession(t, NewMockLauncher())
	tests := []struct {
		name string
		mod  func(*Params)
	}{
		{"zero width", func(p *Params) { p.Width = 0 }},
		{"zero fps", func(p *Params) { p.FrameRate = 0 }},
		{"no dir", func(p *Params) { p.OutputDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams(dir)
			tt.mod(&p)
			if _, err := s.Start(p); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestStatus_Elapsed(t *testing.T) {
	st := Status{State: Recording, Info: &Info{StartedAt: testNow}}
	if got := st.Elapsed(testNow.Add(65 * time.Second)); got != 65*time.Second {
		t.Errorf("Elapsed = %v", got)
	}
	if got := (Status{}).Elapsed(testNow); got != 0 {
		t.Errorf("idle Elapsed = %v, want 0", got)
	}
}

func TestEncoderArgs(t *testing.T) {
	base := []string{
		"-y", "-f", "rawvideo", "-vcodec", "rawvideo", "-pixel_format", "bgr24",
		"-video_size", "1920x1080", "-framerate", "15", "-i", "-",
	}
	tests := []struct {
		encoder string
		family  Family
		tail    []string
	}{
		{"h264_nvenc", FamilyNVENC, []string{"-preset", "p7", "-tune", "hq", "-b:v", "10M", "-maxrate", "20M", "-bufsize", "20M"}},
		{"hevc_amf", FamilyAMF, []string{"-quality", "quality", "-rc", "cqp", "-qp_i", "20", "-qp_p", "20", "-qp_b", "20"}},
		{"h264_qsv", FamilyQSV, []string{"-preset", "veryslow", "-global_quality", "20"}},
		{"libx264", FamilySoftware, []string{"-preset", "veryfast", "-crf", "23"}},
	}
	for _, tt := range tests {
		t.Run(tt.encoder, func(t *testing.T) {
			if got := FamilyOf(tt.encoder); got != tt.family {
				t.Errorf("FamilyOf = %s, want %s", got, tt.family)
			}
			p := Params{Width: 1920, Height: 1080, FrameRate: 15, Encoder: tt.encoder}
			got := EncoderArgs(p, "/out/x.mp4")

			want := append([]string{}, base...)
			want = append(want, "-c:v", tt.encoder, "-pix_fmt", "yuv420p", "-r", "15")
			want = append(want, tt.tail...)
			want = append(want, "/out/x.mp4")
			if !reflect.DeepEqual(got, want) {
				t.Errorf("args mismatch\n got: %v\nwant: %v", got, want)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name, code, carrier, ext, want string
	}{
		{"plain", "SF1234567890123", "顺丰", "mp4", "2024-05-01_14-03-22_SF1234567890123_顺丰.mp4"},
		{"dotted ext", "YT1234567890123", "圆通", ".mkv", "2024-05-01_14-03-22_YT1234567890123_圆通.mkv"},
		{"separators", "AB/CD\\EF:12", "其他", "mp4", "2024-05-01_14-03-22_AB-CD-EF-12_其他.mp4"},
		{"empty code", "  ", "其他", "mp4", "2024-05-01_14-03-22_unknown_其他.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileName(testNow, tt.code, tt.carrier, tt.ext); got != tt.want {
				t.Errorf("FileName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScanProgressLines(t *testing.T) {
	data := []byte("frame=1\rframe=2\nlast")
	var lines []string
	for len(data) > 0 {
		adv, tok, _ := scanProgressLines(data, true)
		lines = append(lines, string(tok))
		data = data[adv:]
	}
	want := []string{"frame=1", "frame=2", "last"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("lines = %v, want %v", lines, want)
	}
}
