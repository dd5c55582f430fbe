package service

import (
	"archive/zip"
	"bytes"
	"context"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat-api/internal/models"
)

func TestUploadServiceRejectsSize(t *testing.T) {
	store := newTestStore(t, newTestClock())
	alice := mustUser(t, store, "alice")
	svc := NewUploadService(newStorageStub(), store, 1024*1024, testLogger())

	file := buildFileHeader(t, "file.pdf", bytes.Repeat([]byte("a"), 2*1024*1024))

	_, err := svc.Store(context.Background(), alice.ID, file)
	require.ErrorIs(t, err, ErrUploadTooLarge)
}

func TestUploadServiceRejectsExecutables(t *testing.T) {
	store := newTestStore(t, newTestClock())
	alice := mustUser(t, store, "alice")
	storage := newStorageStub()
	svc := NewUploadService(storage, store, 5*1024*1024, testLogger())

	elf := append([]byte("\x7fELF\x02\x01\x01"), bytes.Repeat([]byte{0}, 64)...)
	_, err := svc.Store(context.Background(), alice.ID, buildFileHeader(t, "innocent.png", elf))
	require.ErrorIs(t, err, ErrUploadTypeNotAllowed)

	_, err = svc.Store(context.Background(), alice.ID, buildFileHeader(t, "setup.exe", []byte("plain text")))
	require.ErrorIs(t, err, ErrUploadTypeNotAllowed)

	archive := &bytes.Buffer{}
	writer := zip.NewWriter(archive)
	entry, err := writer.Create("payload.exe")
	require.NoError(t, err)
	_, err = entry.Write([]byte("MZ"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	_, err = svc.Store(context.Background(), alice.ID, buildFileHeader(t, "bundle.zip", archive.Bytes()))
	require.ErrorIs(t, err, ErrUploadScanFailed)
	require.Empty(t, storage.uploaded)
}

func TestUploadServiceDetectsMessageType(t *testing.T) {
	store := newTestStore(t, newTestClock())
	alice := mustUser(t, store, "alice")
	storage := newStorageStub()
	svc := NewUploadService(storage, store, 5*1024*1024, testLogger())

	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	cases := []struct {
		name     string
		content  []byte
		wantType string
		wantMime string
	}{
		{name: "Holiday Photo.PNG", content: pngHeader, wantType: models.MessageTypeImage, wantMime: "image/png"},
		{name: "funny.gif", content: []byte("GIF89a\x01\x00\x01\x00"), wantType: models.MessageTypeGIF, wantMime: "image/gif"},
		{name: "notes.txt", content: []byte("plain text notes"), wantType: models.MessageTypeFile, wantMime: "text/plain; charset=utf-8"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := svc.Store(context.Background(), alice.ID, buildFileHeader(t, tc.name, tc.content))
			require.NoError(t, err)
			require.Equal(t, tc.wantType, resp.Type)
			require.Equal(t, tc.wantMime, resp.MimeType)
			require.EqualValues(t, len(tc.content), resp.Size)
			require.Equal(t, "/uploads/"+resp.Name, resp.Path)
			require.Equal(t, tc.content, storage.uploaded[resp.Path])
		})
	}

	resp, err := svc.Store(context.Background(), alice.ID, buildFileHeader(t, "Holiday Photo.PNG", pngHeader))
	require.NoError(t, err)
	require.Equal(t, "holiday-photo.png", resp.Name)
}

func TestUploadServiceRequiresActiveUser(t *testing.T) {
	store := newTestStore(t, newTestClock())
	alice := mustUser(t, store, "alice")
	mustBan(t, store, alice.ID)
	svc := NewUploadService(newStorageStub(), store, 1024, testLogger())

	_, err := svc.Store(context.Background(), alice.ID, buildFileHeader(t, "a.txt", []byte("hi")))
	require.ErrorIs(t, err, ErrBanned)

	_, err = svc.Store(context.Background(), "nobody", buildFileHeader(t, "a.txt", []byte("hi")))
	require.ErrorIs(t, err, ErrForbidden)
}

func TestMessageTypeForMime(t *testing.T) {
	require.Equal(t, models.MessageTypeGIF, MessageTypeForMime("image/gif"))
	require.Equal(t, models.MessageTypeImage, MessageTypeForMime("IMAGE/JPEG"))
	require.Equal(t, models.MessageTypeVideo, MessageTypeForMime("video/mp4"))
	require.Equal(t, models.MessageTypeVoice, MessageTypeForMime("audio/ogg; codecs=opus"))
	require.Equal(t, models.MessageTypeFile, MessageTypeForMime("application/pdf"))
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
