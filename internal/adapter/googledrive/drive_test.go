package googledrive

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/drive/v3"
	"github.com/stretchr/testify/require"

	"github.com/jun/drivegate/internal/adapter"
	"github.com/jun/drivegate/internal/fakegoogle"
)

type staticTokens string

func (s staticTokens) AccessToken(context.Context, string) (string, error) { return string(s), nil }

type failingTokens struct{ err error }

func (f failingTokens) AccessToken(context.Context, string) (string, error) { return "", f.err }

func newTestAdapter(t *testing.T) (adapter.DriveAdapter, *fakegoogle.Server) {
	t.Helper()
	fake := fakegoogle.New(fakegoogle.Profile{ID: "g-1", Email: "owner@example.com"})
	t.Cleanup(fake.Close)

	p := NewProvider(staticTokens("tok-1"), fake.DriveEndpoint(), fake.UploadURL(), nil)
	d, err := p.ForUser(context.Background(), "u1")
	require.NoError(t, err)
	return d, fake
}

func TestProvider_TokenErrorPropagates(t *testing.T) {
	want := errors.New("refresh rejected")
	p := NewProvider(failingTokens{err: want}, "", "", nil)
	_, err := p.ForUser(context.Background(), "u1")
	assert.ErrorIs(t, err, want)
}

func TestDriveAdapter_ListFiles(t *testing.T) {
	d, fake := newTestAdapter(t)
	fake.AddFile(fakegoogle.File{ID: "a", Name: "alpha.txt", MimeType: "text/plain", Content: []byte("12345"), Parents: []string{"F"}})
	fake.AddFile(fakegoogle.File{ID: "b", Name: "beta doc", MimeType: "application/vnd.google-apps.document", Parents: []string{"F"}})
	fake.AddFile(fakegoogle.File{ID: "c", Name: "gamma.txt", MimeType: "text/plain", Parents: []string{"G"}})
	fake.AddFile(fakegoogle.File{ID: "d", Name: "trashed.txt", MimeType: "text/plain", Parents: []string{"F"}, Trashed: true})

	res, err := d.ListFiles(context.Background(), adapter.ListOptions{FolderID: "F", PageSize: 1})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "a", res.Files[0].ID)
	require.NotNil(t, res.Files[0].Size)
	assert.Equal(t, "5", *res.Files[0].Size)
	assert.Equal(t, "drive#file", res.Files[0].Kind)
	assert.False(t, res.Files[0].CreatedTime.IsZero())
	assert.NotEmpty(t, res.NextPageToken)

	res, err = d.ListFiles(context.Background(), adapter.ListOptions{FolderID: "F", PageSize: 1, PageToken: res.NextPageToken})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "b", res.Files[0].ID)
	assert.Nil(t, res.Files[0].Size)
	assert.Empty(t, res.NextPageToken)

	calls := fake.Calls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, "'F' in parents and trashed = false", last.Query.Get("q"))
	assert.Equal(t, "Bearer tok-1", last.Auth)
}

func TestDriveAdapter_GetMetadataOwners(t *testing.T) {
	d, fake := newTestAdapter(t)
	fake.AddFile(fakegoogle.File{ID: "a", Name: "alpha.txt", MimeType: "text/plain", Owners: []string{"owner@example.com"}, Trashed: true})

	meta, err := d.GetMetadata(context.Background(), "a", "id, name, parents, trashed, owners")
	require.NoError(t, err)
	assert.Equal(t, "alpha.txt", meta.Name)
	assert.True(t, meta.Trashed)
	assert.Equal(t, []string{"owner@example.com"}, meta.OwnerEmails)
}

func TestDriveAdapter_NotFoundCarriesStatus(t *testing.T) {
	d, _ := newTestAdapter(t)

	_, err := d.GetMetadata(context.Background(), "missing", "id")
	require.Error(t, err)
	var pe *adapter.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusNotFound, pe.StatusCode)
	assert.Equal(t, http.StatusNotFound, adapter.StatusCode(err))
}

func TestDriveAdapter_DownloadAndExport(t *testing.T) {
	d, fake := newTestAdapter(t)
	docx := "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	fake.AddFile(fakegoogle.File{ID: "bin", Name: "a.bin", MimeType: "application/octet-stream", Content: []byte{1, 2, 3}})
	fake.AddFile(fakegoogle.File{ID: "doc", Name: "Doc", MimeType: "application/vnd.google-apps.document", Exports: map[string][]byte{docx: []byte("PK")}})

	content, err := d.Download(context.Background(), "bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, content)

	content, err = d.Export(context.Background(), "doc", docx)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), content)
	assert.Equal(t, 1, fake.CountCalls(http.MethodGet, "/drive/v3/files/doc/export"))
}

func TestDriveAdapter_Upload(t *testing.T) {
	d, fake := newTestAdapter(t)

	f, err := d.Upload(context.Background(), adapter.UploadRequest{
		Name: "hello.txt", MimeType: "text/plain", ParentID: "F", Content: []byte("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", f.Name)
	assert.Equal(t, []string{"F"}, f.Parents)
	require.NotNil(t, f.Size)
	assert.Equal(t, "5", *f.Size)

	stored, ok := fake.File(f.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), stored.Content)
}

func TestDriveAdapter_UploadFailureKeepsBody(t *testing.T) {
	d, fake := newTestAdapter(t)
	fake.Fail(http.MethodPost, "/upload/drive/v3/files", http.StatusInsufficientStorage)

	_, err := d.Upload(context.Background(), adapter.UploadRequest{Name: "a", MimeType: "text/plain", Content: []byte("x")})
	var pe *adapter.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusInsufficientStorage, pe.StatusCode)
	assert.Contains(t, pe.Body, "Insufficient Storage")
}

func TestDriveAdapter_Delete(t *testing.T) {
	d, fake := newTestAdapter(t)
	fake.AddFile(fakegoogle.File{ID: "a", Name: "a", MimeType: "text/plain"})

	require.NoError(t, d.Delete(context.Background(), "a"))
	stored, _ := fake.File("a")
	assert.True(t, stored.Trashed)
	assert.Equal(t, 1, fake.CountCalls(http.MethodDelete, "/drive/v3/files/a"))
}

func TestSizeOf(t *testing.T) {
	assert.Nil(t, sizeOf(&drive.File{MimeType: "application/vnd.google-apps.folder"}))
	assert.Nil(t, sizeOf(&drive.File{MimeType: "application/vnd.google-apps.document", Size: 12}))

	got := sizeOf(&drive.File{MimeType: "application/pdf", Size: 2048})
	require.NotNil(t, got)
	assert.Equal(t, "2048", *got)

	// Indistinguishable from a missing size once decoded.
	got = sizeOf(&drive.File{MimeType: "text/plain"})
	require.NotNil(t, got)
	assert.Equal(t, "0", *got)
}
