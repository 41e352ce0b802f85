package thumbnail

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hitoshi/filesman/internal/model"
	"github.com/hitoshi/filesman/internal/queue"
	"github.com/hitoshi/filesman/internal/storage"
)

// --- テスト用ヘルパー ---

type mockFileFinder struct {
	findFn func(ctx context.Context, id, userID int64) (*model.File, error)
}

func (m *mockFileFinder) FindByIDAndUser(ctx context.Context, id, userID int64) (*model.File, error) {
	if m.findFn != nil {
		return m.findFn(ctx, id, userID)
	}
	return nil, nil
}

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	writeFn func(path string) error
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (s *memStore) Path(name string) string { return "/tmp/files_manager/" + name }

func (s *memStore) Write(_ context.Context, path string, data []byte) error {
	if s.writeFn != nil {
		if err := s.writeFn(path); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = data
	return nil
}

func (s *memStore) Read(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (s *memStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, path)
	return nil
}

func (s *memStore) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}
	return out
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type countRecorder struct{ n int }

func (r *countRecorder) RecordThumbnailsGenerated(count int) { r.n += count }

const originalPath = "/tmp/files_manager/orig"

func setup(t *testing.T, original []byte) (*Worker, *memStore, *countRecorder) {
	t.Helper()
	store := newMemStore()
	if original != nil {
		store.data[originalPath] = original
	}
	finder := &mockFileFinder{
		findFn: func(_ context.Context, id, userID int64) (*model.File, error) {
			if id == 10 && userID == 1 {
				return &model.File{ID: 10, UserID: 1, Type: model.FileTypeImage, LocalPath: originalPath}, nil
			}
			return nil, nil
		},
	}
	rec := &countRecorder{}
	return NewWorker(finder, store, discardLogger(), rec), store, rec
}

// --- テスト ---

func TestProcess_GeneratesThreeThumbnails(t *testing.T) {
	w, store, rec := setup(t, testPNG(t, 1000, 600))

	require.NoError(t, w.Process(context.Background(), model.ThumbnailJob{UserID: 1, FileID: 10}))

	wantHeights := map[int]int{500: 300, 250: 150, 100: 60}
	for width, height := range wantHeights {
		data, err := store.Read(context.Background(), model.ThumbnailPath(originalPath, width))
		require.NoError(t, err, "width %d", width)

		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		require.Equal(t, "png", format)
		require.Equal(t, width, cfg.Width)
		require.Equal(t, height, cfg.Height)
	}
	require.Equal(t, 3, rec.n)
}

func TestProcess_MissingFieldsWriteNothing(t *testing.T) {
	tests := []struct {
		name string
		job  model.ThumbnailJob
		want error
	}{
		{"missing fileId", model.ThumbnailJob{UserID: 1}, ErrMissingFileID},
		{"missing userId", model.ThumbnailJob{FileID: 10}, ErrMissingUserID},
		{"both missing", model.ThumbnailJob{}, ErrMissingFileID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, store, _ := setup(t, testPNG(t, 10, 10))

			err := w.Process(context.Background(), tt.job)
			require.ErrorIs(t, err, tt.want)
			require.True(t, queue.IsPermanent(err))
			require.Equal(t, []string{originalPath}, store.paths())
		})
	}
}

func TestProcess_FileNotFound(t *testing.T) {
	w, store, _ := setup(t, testPNG(t, 10, 10))

	// 他ユーザーのファイルは見つからない扱い
	err := w.Process(context.Background(), model.ThumbnailJob{UserID: 2, FileID: 10})
	require.ErrorIs(t, err, ErrFileNotFound)
	require.True(t, queue.IsPermanent(err))
	require.Len(t, store.paths(), 1)
}

func TestProcess_OriginalMissingIsPermanent(t *testing.T) {
	w, _, _ := setup(t, nil)

	err := w.Process(context.Background(), model.ThumbnailJob{UserID: 1, FileID: 10})
	require.Error(t, err)
	require.True(t, queue.IsPermanent(err))
}

func TestProcess_LookupFailureIsTransient(t *testing.T) {
	w := NewWorker(&mockFileFinder{
		findFn: func(context.Context, int64, int64) (*model.File, error) {
			return nil, errors.New("db down")
		},
	}, newMemStore(), discardLogger(), nil)

	err := w.Process(context.Background(), model.ThumbnailJob{UserID: 1, FileID: 10})
	require.Error(t, err)
	require.False(t, queue.IsPermanent(err))
}

func TestProcess_WriteFailureFailsWholeJob(t *testing.T) {
	w, store, rec := setup(t, testPNG(t, 600, 600))
	store.writeFn = func(path string) error {
		if strings.HasSuffix(path, "_250") {
			return errors.New("disk full")
		}
		return nil
	}

	err := w.Process(context.Background(), model.ThumbnailJob{UserID: 1, FileID: 10})
	require.Error(t, err)
	require.False(t, queue.IsPermanent(err))
	require.Zero(t, rec.n)
}

func TestProcess_UndecodableImageIsPermanent(t *testing.T) {
	w, store, _ := setup(t, []byte("not an image"))

	err := w.Process(context.Background(), model.ThumbnailJob{UserID: 1, FileID: 10})
	require.Error(t, err)
	require.True(t, queue.IsPermanent(err))
	require.ErrorIs(t, err, ErrUndecodable)
	require.Len(t, store.paths(), 1)
}

func TestHandle_DecodesEnvelope(t *testing.T) {
	w, store, _ := setup(t, testPNG(t, 200, 100))

	payload, err := json.Marshal(model.ThumbnailJob{UserID: 1, FileID: 10})
	require.NoError(t, err)

	require.NoError(t, w.Handle(context.Background(), &queue.Job{ID: "j1", Kind: "thumbnail", Payload: payload}))
	require.Len(t, store.paths(), 4)
}

func TestHandle_BadPayloadIsPermanent(t *testing.T) {
	w, _, _ := setup(t, nil)

	err := w.Handle(context.Background(), &queue.Job{ID: "j1", Payload: json.RawMessage(`"oops"`)})
	require.Error(t, err)
	require.True(t, queue.IsPermanent(err))
}

func TestResize_KeepsJPEGFormatAndAspectRatio(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 300, 900))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	out, err := Resize(buf.Bytes(), 100)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 100, cfg.Width)
	require.Equal(t, 300, cfg.Height)
}

// pngWithHeaderSize はヘッダーの寸法だけを書き換えたPNGを返す。
func pngWithHeaderSize(t *testing.T, width, height uint32) []byte {
	t.Helper()
	data := testPNG(t, 1, 1)
	// シグネチャ(8) + 長さ(4) + "IHDR"(4) の後に幅と高さが続く
	binary.BigEndian.PutUint32(data[16:20], width)
	binary.BigEndian.PutUint32(data[20:24], height)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecode_RejectsOversizedImageBeforeDecoding(t *testing.T) {
	_, err := Decode(pngWithHeaderSize(t, 20000, 20000))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestProcess_OversizedImageIsPermanent(t *testing.T) {
	w, store, rec := setup(t, pngWithHeaderSize(t, 20000, 20000))

	err := w.Process(context.Background(), model.ThumbnailJob{UserID: 1, FileID: 10})
	require.Error(t, err)
	require.True(t, queue.IsPermanent(err))
	require.ErrorIs(t, err, ErrTooLarge)
	require.Len(t, store.paths(), 1)
	require.Zero(t, rec.n)
}

func TestSource_ResizeSharedAcrossWidths(t *testing.T) {
	src, err := Decode(testPNG(t, 400, 200))
	require.NoError(t, err)
	require.Equal(t, "png", src.Format())

	for _, width := range Widths {
		out, err := src.Resize(width)
		require.NoError(t, err)
		cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		require.Equal(t, width, cfg.Width)
		require.Equal(t, width/2, cfg.Height)
	}
}

func TestResize_InvalidInput(t *testing.T) {
	_, err := Resize([]byte("nope"), 100)
	require.ErrorIs(t, err, ErrUndecodable)

	_, err = Resize(testPNG(t, 10, 10), 0)
	require.Error(t, err)
}
