package bootstrap

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegalDoc-Intelligence/internal/config"
	minioclient "github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/storage/minio"
	er "github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/entity_resolver"
	"github.com/turtacn/LegalDoc-Intelligence/internal/testutil"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

const hueTables = "gazetteer:\n  - Huế\ndenylist:\n  - điều\n"

// objectStore serves a single tables object; other MinIOAPI methods are not
// used by the tables source and panic if called.
type objectStore struct {
	minioclient.MinIOAPI
	mock.Mock
}

func (m *objectStore) OpenObject(ctx context.Context, bucket, key string) (io.ReadCloser, miniogo.ObjectInfo, error) {
	args := m.Called(bucket, key)
	if err := args.Error(1); err != nil {
		return nil, miniogo.ObjectInfo{}, err
	}
	return io.NopCloser(strings.NewReader(args.String(0))), miniogo.ObjectInfo{ETag: "etag-1"}, nil
}

func TestNewEngine_Builtin(t *testing.T) {
	logger := testutil.NewMockLogger()
	eng, err := NewEngine(context.Background(), config.ResolverConfig{EngineConfig: er.DefaultEngineConfig()}, nil, logger, nil)
	require.NoError(t, err)

	assert.Equal(t, OriginBuiltin, eng.Origin)
	assert.Nil(t, eng.Reloader)
	assert.Equal(t, er.DefaultTables().Version(), eng.TablesVersion())

	msg, ok := logger.Find("info", "engine ready")
	require.True(t, ok)
	assert.Equal(t, "engine", msg.Logger)
	v, _ := msg.Field("tables_origin")
	assert.Equal(t, "builtin", v)

	res, err := eng.Resolve(context.Background(), &entity.Document{ID: "d", Text: "Ông Nguyễn Văn An", Tokens: []entity.TaggedToken{
		{Text: "Ông", Tag: "O"}, {Text: "Nguyễn", Tag: "B-PER"}, {Text: "Văn", Tag: "I-PER"}, {Text: "An", Tag: "I-PER"},
	}})
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, entity.LabelPerson, res.Entities[0].Label)
}

func TestNewEngine_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(hueTables), 0o600))

	cases := []struct {
		name      string
		watch     bool
		reloading bool
	}{
		{"static", false, false},
		{"watched", true, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.ResolverConfig{EngineConfig: er.DefaultEngineConfig(), TablesPath: path, WatchTables: tc.watch}
			eng, err := NewEngine(context.Background(), cfg, nil, nil, nil)
			require.NoError(t, err)

			assert.Equal(t, OriginFile, eng.Origin)
			assert.Equal(t, tc.reloading, eng.Reloader != nil)
			assert.True(t, eng.Tables().IsGazetteer("huế"))
			if tc.reloading {
				assert.IsType(t, &er.TableWatcher{}, eng.Reloader)
			}
		})
	}
}

func TestNewEngine_Errors(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.ResolverConfig
		want string
	}{
		{"missing file", config.ResolverConfig{TablesPath: "/nonexistent/tables.yaml"}, ""},
		{"object without minio", config.ResolverConfig{TablesObject: "tables.yaml"}, "requires minio.enabled"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEngine(context.Background(), tc.cfg, nil, nil, nil)
			require.Error(t, err)
			if tc.want != "" {
				assert.Contains(t, err.Error(), tc.want)
			}
		})
	}
}

func TestNewEngine_Object(t *testing.T) {
	store := &objectStore{}
	store.On("OpenObject", "legaldoc", "config/tables.yaml").Return(hueTables, nil).Once()
	client := minioclient.NewMinIOClientWithAPI(store, &minioclient.MinIOConfig{}, nil)

	cfg := config.ResolverConfig{EngineConfig: er.DefaultEngineConfig(), TablesObject: "config/tables.yaml"}
	eng, err := NewEngine(context.Background(), cfg, client, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, OriginObject, eng.Origin)
	assert.IsType(t, &minioclient.TablesSource{}, eng.Reloader)
	assert.True(t, eng.Tables().IsGazetteer("huế"))
	store.AssertExpectations(t)
}

func TestNewEngine_ObjectMissing(t *testing.T) {
	store := &objectStore{}
	store.On("OpenObject", "legaldoc", "tables.yaml").Return("", assert.AnError)
	client := minioclient.NewMinIOClientWithAPI(store, &minioclient.MinIOConfig{}, nil)

	_, err := NewEngine(context.Background(), config.ResolverConfig{TablesObject: "tables.yaml"}, client, nil, nil)
	assert.Error(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Infrastructure
// ─────────────────────────────────────────────────────────────────────────────

func TestInitInfrastructure_AllDisabled(t *testing.T) {
	infra, err := InitInfrastructure(context.Background(), &config.Config{}, nil)
	require.NoError(t, err)

	assert.Empty(t, infra.Sinks())
	assert.Empty(t, infra.Checkers())
	assert.Len(t, infra.ServiceOptions(nil), 1)
	assert.NotPanics(t, func() { infra.Close(context.Background()) })
}

func TestInitInfrastructure_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := testutil.NewMockLogger()

	cfg := &config.Config{Redis: config.RedisConfig{Enabled: true, Addr: mr.Addr(), KeyPrefix: "test:"}}
	infra, err := InitInfrastructure(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { infra.Close(context.Background()) })

	require.NotNil(t, infra.Cache)
	assert.Empty(t, infra.Sinks())
	assert.Len(t, infra.ServiceOptions(nil), 2)

	checks := infra.Checkers()
	require.Len(t, checks, 1)
	assert.Equal(t, "redis", checks[0].Name())
	assert.NoError(t, checks[0].Check(context.Background()))

	msg, ok := logger.Find("info", "backend connected")
	require.True(t, ok)
	v, _ := msg.Field("backend")
	assert.Equal(t, "redis", v)
}

func TestInitInfrastructure_FailureNamesBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &config.Config{Redis: config.RedisConfig{Enabled: true, Addr: addr}}
	_, err := InitInfrastructure(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "redis: "))
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier(context.Background(), config.AuthConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	logger := testutil.NewMockLogger()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	v, err = NewVerifier(ctx, config.AuthConfig{Enabled: true, HMACSecret: "s"}, logger)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, logger.HasMessage("info", "api authentication enabled"))

	_, err = NewVerifier(ctx, config.AuthConfig{Enabled: true}, nil)
	assert.Error(t, err)
}
