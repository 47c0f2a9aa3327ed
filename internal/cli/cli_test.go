package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/shopindex/internal/app"
	"github.com/utafrali/shopindex/internal/config"
	"github.com/utafrali/shopindex/internal/document"
	"github.com/utafrali/shopindex/internal/domain"
	enginemem "github.com/utafrali/shopindex/internal/engine/memory"
	"github.com/utafrali/shopindex/internal/reindex"
	"github.com/utafrali/shopindex/internal/repository"
	"github.com/utafrali/shopindex/internal/repository/memory"
	"github.com/utafrali/shopindex/internal/service"
	"github.com/utafrali/shopindex/pkg/health"
)

// fixture shares one record store and one index across command runs.
type fixture struct {
	store *repository.Store
	index *enginemem.Engine
	cfgs  []*config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), index: enginemem.New()}
	ctx := context.Background()
	for _, name := range []string{"Ada", "Grace"} {
		require.NoError(t, f.store.Customers.Create(ctx, &domain.Customer{ID: uuid.New(), FirstName: name}))
	}
	require.NoError(t, f.store.Addresses.Create(ctx, &domain.Address{ID: uuid.New(), City: "Leeds", Postcode: "AB12", Country: "GB"}))
	return f
}

func (f *fixture) env() *env {
	return &env{
		loadConfig: func() (*config.Config, error) {
			cfg := &config.Config{
				LogLevel:             "error",
				RecordStore:          config.StoreMemory,
				SearchEngine:         config.EngineMemory,
				ReindexBatchSize:     500,
				ReindexLoaderThreads: 2,
			}
			f.cfgs = append(f.cfgs, cfg)
			return cfg, nil
		},
		newCore: func(_ context.Context, cfg *config.Config, logger *slog.Logger) (*app.Core, error) {
			builder := document.NewBuilder(f.store)
			return &app.Core{
				Store:   f.store,
				Index:   f.index,
				Builder: builder,
				Search:  service.NewSearchService(f.index, logger),
				Reindexer: reindex.New(f.store, builder, f.index, reindex.Config{
					BatchSize:     cfg.ReindexBatchSize,
					LoaderThreads: cfg.ReindexLoaderThreads,
				}, logger),
				Health: health.NewHandler(),
			}, nil
		},
		logOutput: io.Discard,
	}
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(f.env())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReindex_RebuildsRequestedTypes(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "reindex", "--types", "customers", "--batch-size", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "processed=2 indexed=2")
	assert.Equal(t, 2, f.index.Count(domain.TypeCustomer))
	assert.Equal(t, 0, f.index.Count(domain.TypeAddress))
	require.NotEmpty(t, f.cfgs)
	assert.Equal(t, 1, f.cfgs[0].ReindexBatchSize)
}

func TestReindex_UnknownType(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "reindex", "--types", "orders")
	assert.Error(t, err)
}

func TestSearch_PrintsHits(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, "reindex")
	require.NoError(t, err)

	out, err := f.run(t, "search", "customers")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)

	out, err = f.run(t, "search", "addresses", "postcode:AB12", "--fields", "city")
	require.NoError(t, err)
	assert.Contains(t, out, `"city":"Leeds"`)
	assert.NotContains(t, out, "postcode")

	out, err = f.run(t, "search", "customers", "first_name:Nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestSearch_RejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "search", "orders")
	assert.Error(t, err)

	_, err = f.run(t, "search", "customers", "--page", "-1")
	assert.Error(t, err)

	_, err = f.run(t, "search")
	assert.Error(t, err)
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RECORD_STORE=postgres")
}

func TestSeed_ThenReindex(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "seed", "--customers", "3", "--products", "10", "--categories", "6")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 3 customers, 10 products, 6 categories")

	ctx := context.Background()
	_, customers, err := f.store.Customers.List(ctx, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, customers)
	_, wishLists, err := f.store.WishLists.List(ctx, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, wishLists)
	cats, _, err := f.store.Categories.List(ctx, 0, 100)
	require.NoError(t, err)
	var children int
	for _, c := range cats {
		if c.ParentID != nil {
			children++
		}
	}
	assert.Equal(t, 1, children)

	_, err = f.run(t, "reindex")
	require.NoError(t, err)
	assert.Equal(t, 10, f.index.Count(domain.TypeProduct))
	assert.Equal(t, 6, f.index.Count(domain.TypeCategory))
	assert.Equal(t, 4, f.index.Count(domain.TypeAddress))
}

func TestSeed_RejectsNegativeCounts(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "seed", "--products", "-1")
	assert.Error(t, err)
}
