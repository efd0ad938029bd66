package repository

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/models"
	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
)

func newTestStore(t *testing.T) *kv.LocalStore {
	t.Helper()
	return kv.OpenLocal(filepath.Join(t.TempDir(), "store.json"), sl.Discard())
}

func indexIDs(t *testing.T, store kv.Store, entity string) []string {
	t.Helper()
	raw, err := store.Get(context.Background(), "idx:"+entity+":all")
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal(raw, &ids))
	return ids
}

func TestRepository_CreateThreePackages(t *testing.T) {
	ctx := context.Background()
	repo := NewPackageRepository(newTestStore(t))

	for _, name := range []string{"Aim Assist", "ESP", "Speed"} {
		_, err := repo.Create(ctx, &models.Package{Name: name, Price: 50000, Duration: 30})
		require.NoError(t, err)
	}

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	ids := map[string]struct{}{}
	for _, p := range all {
		ids[p.ID] = struct{}{}
	}
	assert.Len(t, ids, 3, "every package must get a distinct id")
	assert.Equal(t, "Aim Assist", all[0].Name, "FindAll keeps creation order")
}

func TestRepository_CreateStampsMeta(t *testing.T) {
	ctx := context.Background()
	repo := NewPackageRepository(newTestStore(t))
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	p, err := repo.Create(ctx, &models.Package{Name: "ESP"})
	require.NoError(t, err)

	_, err = uuid.Parse(p.ID)
	assert.NoError(t, err)
	assert.Equal(t, fixed, p.CreatedAt)
	assert.Equal(t, fixed, p.UpdatedAt)
}

func TestRepository_IndexConsistency(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := NewPackageRepository(store)

	p, err := repo.Create(ctx, &models.Package{Name: "ESP"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &models.Package{Base: models.Base{ID: p.ID}, Name: "ESP v2"})
	require.NoError(t, err)

	assert.Equal(t, []string{p.ID}, indexIDs(t, store, "package"), "a preset id is appended once")

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "ESP v2", all[0].Name)

	ok, err := repo.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	all, err = repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	ok, err = repo.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ok, "deleting a missing record returns false")
}

func TestRepository_FindByIDMissing(t *testing.T) {
	repo := NewPackageRepository(newTestStore(t))

	p, err := repo.FindByID(context.Background(), uuid.NewString())
	assert.NoError(t, err)
	assert.Nil(t, p)

	p, err = repo.FindByID(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestRepository_DeleteBankShrinksIndex(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := NewBankRepository(store)

	var created []*models.BankAccount
	for _, code := range []string{"VCB", "MB", "TCB"} {
		b, err := repo.Create(ctx, &models.BankAccount{BankCode: code, IsActive: true})
		require.NoError(t, err)
		created = append(created, b)
	}
	before := len(indexIDs(t, store, "bank"))

	ok, err := repo.Delete(ctx, created[1].ID)
	require.NoError(t, err)
	require.True(t, ok)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	for _, b := range all {
		assert.NotEqual(t, created[1].ID, b.ID)
	}
	assert.Len(t, indexIDs(t, store, "bank"), before-1)
}

func TestRepository_FindAllDropsDriftAndCompactPrunes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := NewPackageRepository(store)

	a, err := repo.Create(ctx, &models.Package{Name: "A"})
	require.NoError(t, err)
	b, err := repo.Create(ctx, &models.Package{Name: "B"})
	require.NoError(t, err)

	require.NoError(t, store.Del(ctx, "package:"+a.ID))
	require.NoError(t, store.Set(ctx, "idx:package:all", []byte(`["`+a.ID+`","`+b.ID+`","`+b.ID+`","ghost"]`)))

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)

	pruned, err := repo.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, pruned)
	assert.Equal(t, []string{b.ID}, indexIDs(t, store, "package"))

	pruned, err = repo.Compact(ctx)
	require.NoError(t, err)
	assert.Zero(t, pruned)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewPackageRepository(newTestStore(t))

	p, err := repo.Create(ctx, &models.Package{Name: "ESP", Price: 1000})
	require.NoError(t, err)
	created := p.CreatedAt

	updated, err := repo.Update(ctx, p.ID, func(p *models.Package) error {
		p.Price = 2000
		p.ID = "hijacked"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), updated.Price)
	assert.Equal(t, p.ID, updated.ID)
	assert.True(t, created.Equal(updated.CreatedAt))

	missing, err := repo.Update(ctx, "nope", func(*models.Package) error { return nil })
	assert.NoError(t, err)
	assert.Nil(t, missing, "update never creates")
}

func TestRepository_Patch(t *testing.T) {
	ctx := context.Background()
	repo := NewPackageRepository(newTestStore(t))
	p, err := repo.Create(ctx, &models.Package{Name: "ESP", Price: 1000, Features: []string{"a"}, Popular: true})
	require.NoError(t, err)

	updated, err := repo.Patch(ctx, p.ID, []byte(`{"price":1500,"id":"other","createdAt":"2000-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1500), updated.Price)
	assert.Equal(t, "ESP", updated.Name, "fields outside the patch are kept")
	assert.True(t, updated.Popular)
	assert.Equal(t, p.ID, updated.ID)
	assert.True(t, p.CreatedAt.Equal(updated.CreatedAt))

	stored, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), stored.Price)

	_, err = repo.Patch(ctx, p.ID, []byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrInvalidPatch)

	missing, err := repo.Patch(ctx, "nope", []byte(`{"price":1}`))
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBankRepository_FindActive(t *testing.T) {
	ctx := context.Background()
	repo := NewBankRepository(newTestStore(t))
	_, err := repo.Create(ctx, &models.BankAccount{BankCode: "VCB", IsActive: true})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &models.BankAccount{BankCode: "MB", IsActive: false})
	require.NoError(t, err)

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "VCB", active[0].BankCode)
}

func TestSettingsRepository_LazyDefaultsAndUpdate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := NewSettingsRepository(store)

	ok, err := store.Exists(ctx, "settings:main")
	require.NoError(t, err)
	require.False(t, ok)

	s, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SettingsID, s.ID)
	assert.Equal(t, models.DefaultSiteSettings().HeroTitle, s.HeroTitle)

	ok, err = store.Exists(ctx, "settings:main")
	require.NoError(t, err)
	assert.True(t, ok)

	updated, err := repo.Update(ctx, []byte(`{"heroTitle":"New","banner":{"enabled":true,"text":"Sale"}}`))
	require.NoError(t, err)
	assert.Equal(t, "New", updated.HeroTitle)
	assert.True(t, updated.Banner.Enabled)
	assert.Equal(t, s.HeroSubtitle, updated.HeroSubtitle)

	again, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "New", again.HeroTitle)
}

func TestTicketRepository_FindByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository(newTestStore(t))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, title := range []string{"old", "new"} {
		ts := base.Add(time.Duration(i) * time.Hour)
		repo.now = func() time.Time { return ts }
		_, err := repo.Create(ctx, &models.Ticket{UserID: "u1", Title: title})
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, &models.Ticket{UserID: "u2", Title: "other"})
	require.NoError(t, err)

	tickets, err := repo.FindByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "new", tickets[0].Title)
}
