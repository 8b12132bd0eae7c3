package core

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nrzngr/exvoria-strat-management/internal/blob"
	"github.com/nrzngr/exvoria-strat-management/internal/infra/persistence/memory"
	"github.com/nrzngr/exvoria-strat-management/internal/media"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	pngData  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	jpegData = append([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), make([]byte, 32)...)
)

func pngFile(name string) media.File  { return media.File{Name: name, Data: pngData} }
func jpegFile(name string) media.File { return media.File{Name: name, Data: jpegData} }

type fixture struct {
	svc   *Service
	store *memory.Store
	blobs blob.Store
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	store := memory.NewStore()
	blobs := blob.NewMemory("strategy-images")
	svc := NewService(store, append([]Option{WithBlobStore(blobs)}, opts...)...)
	t.Cleanup(func() { _ = svc.Close() })
	return fixture{svc: svc, store: store, blobs: blobs}
}

func (f fixture) createMap(t *testing.T, name string) domain.Map {
	t.Helper()
	m, err := f.svc.CreateMap(context.Background(), MapInput{Name: name})
	require.NoError(t, err)
	return m
}

func (f fixture) blobCount(t *testing.T) int {
	t.Helper()
	infos, err := f.blobs.List(context.Background(), "")
	require.NoError(t, err)
	return len(infos)
}

func TestDesertStormScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.createMap(t, "Desert Storm")

	res, err := f.svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID, Title: "Rush A", Description: "Everyone through the north oasis."})
	require.NoError(t, err)
	id := res.Detail.Strategy.ID

	got, err := f.svc.GetMap(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.StrategyCount)

	_, err = f.svc.UpdateStrategy(ctx, id, StrategyUpdate{Title: "Rush A", Description: "Split through both oases."})
	require.NoError(t, err)

	versions, err := f.svc.ListVersions(ctx, id)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	detail, err := f.svc.GetStrategy(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, detail.CurrentVersion)
	assert.Equal(t, 2, detail.CurrentVersion.VersionNumber)
	assert.Equal(t, "Split through both oases.", detail.Description())

	v1, err := f.svc.GetVersion(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "Everyone through the north oasis.", v1.Version.Description)
	assert.Equal(t, "Rush A", v1.Version.Title)
}

func TestSequentialEditsNumberVersionsConsecutively(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.createMap(t, "Frozen Harbor")
	res, err := f.svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID, Title: "Dock hold"})
	require.NoError(t, err)
	id := res.Detail.Strategy.ID

	const edits = 5
	for i := 2; i <= edits; i++ {
		up, err := f.svc.UpdateStrategy(ctx, id, StrategyUpdate{Title: "Dock hold", Description: "rev"})
		require.NoError(t, err)
		assert.Equal(t, i, up.Version.VersionNumber)
	}
	versions, err := f.svc.ListVersions(ctx, id)
	require.NoError(t, err)
	require.Len(t, versions, edits)
	for i, v := range versions {
		assert.Equal(t, i+1, v.VersionNumber)
	}
	detail, err := f.svc.GetStrategy(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, versions[edits-1].ID, *detail.Strategy.CurrentVersionID)
}

func TestCreateStrategyAttachesValidImagesToFirstVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.createMap(t, "Jungle Ruins")
	res, err := f.svc.CreateStrategy(ctx, StrategyInput{
		MapID: m.ID,
		Title: "Temple stack",
		Images: []media.File{
			pngFile("entry.png"),
			{Name: "notes.png", Data: []byte("this is not an image")},
			jpegFile("smoke.jpg"),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Uploads.Rejected, 1)
	assert.Equal(t, "notes.png", res.Uploads.Rejected[0].Name)
	require.Len(t, res.Detail.Images, 2)

	v1, err := f.svc.GetVersion(ctx, res.Detail.Strategy.ID, 1)
	require.NoError(t, err)
	require.Len(t, v1.Images, 2)
	assert.Equal(t, 0, v1.Images[0].PositionInContent)
	assert.Equal(t, 1, v1.Images[1].PositionInContent)
	assert.Equal(t, "strategy-images", v1.Images[0].BucketName)
	assert.Equal(t, f.blobs.PublicURL(v1.Images[0].StoragePath), v1.Images[0].URL)
	assert.Equal(t, 2, f.blobCount(t))
}

func TestUpdateCopiesImagesForward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.createMap(t, "Neon District")
	res, err := f.svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID, Title: "Rooftops", Images: []media.File{pngFile("a.png"), pngFile("b.png")}})
	require.NoError(t, err)
	id := res.Detail.Strategy.ID
	first := res.Detail.Images

	up, err := f.svc.UpdateStrategy(ctx, id, StrategyUpdate{Title: "Rooftops v2"})
	require.NoError(t, err)
	require.Len(t, up.Copied.Mapping, 2)
	require.Empty(t, up.Copied.Skipped)

	second := up.Detail.Images
	require.Len(t, second, 2)
	for i := range first {
		assert.NotEqual(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].StoragePath, second[i].StoragePath)
		assert.Equal(t, first[i].URL, second[i].URL)
		assert.Equal(t, first[i].AltText, second[i].AltText)
		assert.Equal(t, first[i].PositionInContent, second[i].PositionInContent)
		assert.Equal(t, up.Version.ID, *second[i].VersionID)
		assert.Equal(t, second[i].ID, up.Copied.Mapping[first[i].ID])
	}

	v1, err := f.svc.GetVersion(ctx, id, 1)
	require.NoError(t, err)
	assert.Len(t, v1.Images, 2, "earlier version keeps its own rows")
	assert.Equal(t, 2, f.blobCount(t), "copies share objects")
}

func TestImageDescriptionsLandOnMappedRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.createMap(t, "Desert Storm")
	res, err := f.svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID, Title: "Smokes", Images: []media.File{pngFile("a.png"), pngFile("b.png")}})
	require.NoError(t, err)
	id := res.Detail.Strategy.ID
	v1Image := res.Detail.Images[0]

	up, err := f.svc.UpdateStrategy(ctx, id, StrategyUpdate{
		Title:             "Smokes",
		ImageDescriptions: map[string]string{v1Image.ID: "smoke lineup"},
	})
	require.NoError(t, err)
	mapped := up.Copied.Mapping[v1Image.ID]
	var edited domain.StrategyImage
	for _, img := range up.Detail.Images {
		if img.ID == mapped {
			edited = img
		}
	}
	require.NotNil(t, edited.AltText)
	assert.Equal(t, "smoke lineup", *edited.AltText)

	v1, err := f.svc.GetVersion(ctx, id, 1)
	require.NoError(t, err)
	assert.Nil(t, v1.Images[0].AltText, "previous version is untouched")

	// An id outside the copied set is edited in place.
	_, err = f.svc.UpdateStrategy(ctx, id, StrategyUpdate{
		Title:             "Smokes",
		ImageDescriptions: map[string]string{v1Image.ID: "original shot"},
	})
	require.NoError(t, err)
	v1, err = f.svc.GetVersion(ctx, id, 1)
	require.NoError(t, err)
	require.NotNil(t, v1.Images[0].AltText)
	assert.Equal(t, "original shot", *v1.Images[0].AltText)
}

func TestStrategyWithoutVersionsStartsAtOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.createMap(t, "Legacy Yard")
	var legacyID string
	require.NoError(t, f.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		st, err := tx.CreateStrategy(domain.Strategy{MapID: m.ID, Title: "Old plan", Description: "from before versions"})
		if err != nil {
			return err
		}
		legacyID = st.ID
		_, err = tx.CreateImage(domain.StrategyImage{
			StrategyID:  domain.StringPtr(st.ID),
			StoragePath: "strategies/" + st.ID + "/legacy.png",
			BucketName:  "strategy-images",
			URL:         "memory://strategy-images/legacy.png",
			AltText:     domain.StringPtr("legacy"),
		})
		return err
	}))

	detail, err := f.svc.GetStrategy(ctx, legacyID)
	require.NoError(t, err)
	assert.Nil(t, detail.CurrentVersion)
	assert.Equal(t, "Old plan", detail.Title())
	require.Len(t, detail.Images, 1)

	up, err := f.svc.UpdateStrategy(ctx, legacyID, StrategyUpdate{Title: "New plan"})
	require.NoError(t, err)
	assert.Equal(t, 1, up.Version.VersionNumber)
	require.Len(t, up.Detail.Images, 1)
	assert.Equal(t, "legacy", *up.Detail.Images[0].AltText)
	assert.Equal(t, up.Version.ID, *up.Detail.Images[0].VersionID)
	assert.Equal(t, "New plan", up.Detail.Title())
}

func TestDetachedPointerContinuesAfterHighestVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.createMap(t, "Desert Storm")
	res, err := f.svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID, Title: "Rush A"})
	require.NoError(t, err)
	id := res.Detail.Strategy.ID
	_, err = f.svc.UpdateStrategy(ctx, id, StrategyUpdate{Title: "Rush A v2"})
	require.NoError(t, err)
	require.NoError(t, f.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateStrategy(id, func(st *domain.Strategy) error {
			st.CurrentVersionID = nil
			return nil
		})
		return err
	}))

	up, err := f.svc.UpdateStrategy(ctx, id, StrategyUpdate{Title: "Rush A v3"})
	require.NoError(t, err)
	assert.Equal(t, 3, up.Version.VersionNumber)
}

func TestDeleteMapCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.createMap(t, "Desert Storm")
	var ids []string
	var versionIDs []string
	for _, title := range []string{"Rush A", "Hold B"} {
		res, err := f.svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID, Title: title, Images: []media.File{pngFile(title + ".png")}})
		require.NoError(t, err)
		up, err := f.svc.UpdateStrategy(ctx, res.Detail.Strategy.ID, StrategyUpdate{Title: title + " v2"})
		require.NoError(t, err)
		ids = append(ids, res.Detail.Strategy.ID)
		versionIDs = append(versionIDs, res.Version.ID, up.Version.ID)
	}
	require.Equal(t, 2, f.blobCount(t))

	require.NoError(t, f.svc.DeleteMap(ctx, m.ID))

	_, err := f.svc.GetMap(ctx, m.ID)
	assert.True(t, domain.IsNotFound(err))
	_, err = f.svc.ListStrategies(ctx, m.ID)
	assert.True(t, domain.IsNotFound(err))
	for _, id := range ids {
		_, err := f.svc.GetStrategy(ctx, id)
		assert.True(t, domain.IsNotFound(err))
	}
	require.NoError(t, f.store.View(ctx, func(v domain.TransactionView) error {
		for _, vid := range versionIDs {
			_, ok, err := v.FindVersion(vid)
			require.NoError(t, err)
			assert.False(t, ok)
		}
		for _, id := range ids {
			images, err := v.ListImages(domain.ImageFilter{StrategyID: id})
			require.NoError(t, err)
			assert.Empty(t, images)
		}
		return nil
	}))
	assert.Equal(t, 0, f.blobCount(t))
}

func TestDeleteImageKeepsSharedObject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.createMap(t, "Desert Storm")
	res, err := f.svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID, Title: "Rush A", Images: []media.File{pngFile("a.png")}})
	require.NoError(t, err)
	up, err := f.svc.UpdateStrategy(ctx, res.Detail.Strategy.ID, StrategyUpdate{Title: "Rush A"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteImage(ctx, up.Detail.Images[0].ID))
	assert.Equal(t, 1, f.blobCount(t), "version 1 still references the object")

	require.NoError(t, f.svc.DeleteImage(ctx, res.Detail.Images[0].ID))
	assert.Equal(t, 0, f.blobCount(t))

	err = f.svc.DeleteImage(ctx, "missing")
	assert.True(t, domain.IsNotFound(err))
}

func TestUploadImagesAppendsToCurrentVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.createMap(t, "Desert Storm")
	res, err := f.svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID, Title: "Rush A", Images: []media.File{pngFile("a.png")}})
	require.NoError(t, err)
	id := res.Detail.Strategy.ID

	attached, report, err := f.svc.UploadImages(ctx, id, []media.File{jpegFile("b.jpg"), {Name: "c.txt", Data: []byte("text")}})
	require.NoError(t, err)
	require.Len(t, attached, 1)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, 1, attached[0].PositionInContent)
	assert.Equal(t, res.Version.ID, *attached[0].VersionID)

	updated, err := f.svc.UpdateImageDescription(ctx, attached[0].ID, "crossfire")
	require.NoError(t, err)
	assert.Equal(t, "crossfire", *updated.AltText)
	cleared, err := f.svc.UpdateImageDescription(ctx, attached[0].ID, "  ")
	require.NoError(t, err)
	assert.Nil(t, cleared.AltText)

	_, _, err = f.svc.UploadImages(ctx, "missing", []media.File{pngFile("x.png")})
	assert.True(t, domain.IsNotFound(err))
}

// failingBlobs fails every Put after limit successful ones.
type failingBlobs struct {
	blob.Store
	limit int
	puts  int
}

func (b *failingBlobs) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	if b.puts >= b.limit {
		return blob.Info{}, errors.New("bucket offline")
	}
	b.puts++
	return b.Store.Put(ctx, key, r, opts)
}

func TestUploadFailureKeepsStoredPrefix(t *testing.T) {
	ctx := context.Background()
	mem := blob.NewMemory("b")
	blobs := &failingBlobs{Store: mem, limit: 1}
	svc := NewService(memory.NewStore(), WithBlobStore(blobs))
	m, err := svc.CreateMap(ctx, MapInput{Name: "Desert Storm"})
	require.NoError(t, err)

	res, err := svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID, Title: "Rush A", Images: []media.File{pngFile("1.png"), pngFile("2.png"), pngFile("3.png")}})
	var ue *media.UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "2.png", ue.File)
	require.NotNil(t, res.Uploads.Failed)
	assert.Equal(t, "2.png", res.Uploads.Failed.Name)
	require.Len(t, res.Uploads.Uploaded, 1)

	id := res.Detail.Strategy.ID
	require.NotEmpty(t, id)
	detail, err := svc.GetStrategy(ctx, id)
	require.NoError(t, err)
	require.Len(t, detail.Images, 1, "stored prefix is committed on version 1")
	assert.Equal(t, res.Uploads.Uploaded[0].StoragePath, detail.Images[0].StoragePath)
	require.NotNil(t, detail.CurrentVersion)
	assert.Equal(t, 1, detail.CurrentVersion.VersionNumber)

	blobs.limit = 2
	attached, report, err := svc.UploadImages(ctx, id, []media.File{pngFile("4.png"), pngFile("5.png")})
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "5.png", ue.File)
	require.Len(t, attached, 1)
	assert.Equal(t, "4.png", report.Uploaded[0].Name)
	assert.Equal(t, 1, attached[0].PositionInContent)

	blobs.limit = 3
	up, err := svc.UpdateStrategy(ctx, id, StrategyUpdate{Title: "Rush A", Images: []media.File{pngFile("6.png"), pngFile("7.png")}})
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "7.png", ue.File)
	assert.Equal(t, 2, up.Version.VersionNumber)
	assert.Len(t, up.Detail.Images, 3, "two copied forward plus the stored upload")

	infos, err := mem.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, infos, 3, "every stored object is referenced by a row")
}

func TestDescriptionEditsStayWithinStrategy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.createMap(t, "Desert Storm")
	a, err := f.svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID, Title: "Rush A"})
	require.NoError(t, err)
	b, err := f.svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID, Title: "Hold B", Images: []media.File{pngFile("b.png")}})
	require.NoError(t, err)
	foreign := b.Detail.Images[0].ID

	_, err = f.svc.UpdateStrategy(ctx, a.Detail.Strategy.ID, StrategyUpdate{
		Title:             "Rush A",
		ImageDescriptions: map[string]string{foreign: "overwritten"},
	})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	_, err = f.svc.UpdateStrategy(ctx, a.Detail.Strategy.ID, StrategyUpdate{
		Title:             "Rush A",
		ImageDescriptions: map[string]string{"missing": "x"},
	})
	assert.True(t, domain.IsValidation(err))

	detail, err := f.svc.GetStrategy(ctx, b.Detail.Strategy.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.Images[0].AltText)
	versions, err := f.svc.ListVersions(ctx, a.Detail.Strategy.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1, "rejected edits leave no version behind")
}

func TestUnconfiguredBlobStore(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore())
	m, err := svc.CreateMap(ctx, MapInput{Name: "Desert Storm"})
	require.NoError(t, err)

	_, err = svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID, Title: "Rush A", Images: []media.File{pngFile("a.png")}})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	res, err := svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID, Title: "Rush A"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteStrategy(ctx, res.Detail.Strategy.ID))

	_, err = svc.SetMapThumbnail(ctx, m.ID, pngFile("t.png"))
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateMap(ctx, MapInput{Name: "  "})
	assert.True(t, domain.IsValidation(err))

	m := f.createMap(t, "Desert Storm")
	_, err = f.svc.CreateMap(ctx, MapInput{Name: "desert storm"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.svc.CreateStrategy(ctx, StrategyInput{MapID: m.ID})
	assert.True(t, domain.IsValidation(err))
	_, err = f.svc.CreateStrategy(ctx, StrategyInput{Title: "x"})
	assert.True(t, domain.IsValidation(err))
	_, err = f.svc.CreateStrategy(ctx, StrategyInput{MapID: "missing", Title: "x"})
	assert.True(t, domain.IsNotFound(err))
	_, err = f.svc.UpdateStrategy(ctx, "missing", StrategyUpdate{Title: "x"})
	assert.True(t, domain.IsNotFound(err))
	_, err = f.svc.GetVersion(ctx, "missing", 1)
	assert.True(t, domain.IsNotFound(err))
}

func TestMapOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	desert := f.createMap(t, "Desert Storm")
	f.createMap(t, "Frozen Harbor")

	found, err := f.svc.SearchMaps(ctx, "froz")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Frozen Harbor", found[0].Name)

	all, err := f.svc.SearchMaps(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	updated, err := f.svc.UpdateMap(ctx, desert.ID, MapInput{Name: "Desert Storm II", Description: "remake", Metadata: map[string]any{"size": "large"}})
	require.NoError(t, err)
	assert.Equal(t, "Desert Storm II", updated.Name)
	assert.Equal(t, "large", updated.Metadata["size"])

	withThumb, err := f.svc.SetMapThumbnail(ctx, desert.ID, pngFile("thumb.png"))
	require.NoError(t, err)
	assert.Contains(t, withThumb.ThumbnailURL, "maps/"+desert.ID+"/")

	_, err = f.svc.CreateStrategy(ctx, StrategyInput{MapID: desert.ID, Title: "Rush A"})
	require.NoError(t, err)
	detail, err := f.svc.GetMapDetail(ctx, desert.ID)
	require.NoError(t, err)
	assert.Equal(t, desert.ID, detail.Map.ID)
	require.Len(t, detail.Strategies, 1)
	assert.Equal(t, "Rush A", detail.Strategies[0].Title)
	assert.Equal(t, 1, detail.Strategies[0].VersionNumber)

	_, err = f.svc.GetMapDetail(ctx, "missing")
	assert.True(t, domain.IsNotFound(err))

	require.NoError(t, f.svc.DeleteMap(ctx, desert.ID))
	assert.Equal(t, 0, f.blobCount(t), "thumbnail removed with the map")
}

func TestSearchAndMoveStrategies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.createMap(t, "Desert Storm")
	b := f.createMap(t, "Frozen Harbor")
	res, err := f.svc.CreateStrategy(ctx, StrategyInput{MapID: a.ID, Title: "Rush A", Description: "fast"})
	require.NoError(t, err)
	_, err = f.svc.CreateStrategy(ctx, StrategyInput{MapID: b.ID, Title: "Slow push"})
	require.NoError(t, err)

	all, err := f.svc.SearchStrategies(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	hits, err := f.svc.SearchStrategies(ctx, "rush", "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, res.Detail.Strategy.ID, hits[0].Strategy.ID)

	_, err = f.svc.UpdateStrategy(ctx, res.Detail.Strategy.ID, StrategyUpdate{Title: "Rush B", MapID: b.ID})
	require.NoError(t, err)
	ma, err := f.svc.GetMap(ctx, a.ID)
	require.NoError(t, err)
	mb, err := f.svc.GetMap(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, ma.StrategyCount)
	assert.Equal(t, 2, mb.StrategyCount)

	onB, err := f.svc.SearchStrategies(ctx, "", b.ID)
	require.NoError(t, err)
	assert.Len(t, onB, 2)
}
