package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

type CacheTestSuite struct {
	suite.Suite
	mock  redismock.ClientMock
	cache *ResultCache
}

func (s *CacheTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	log := logging.NewNopLogger()
	s.cache = NewResultCache(NewClientFromUniversal(db, log), log,
		WithPrefix("test:"), WithDefaultTTL(time.Hour), WithoutJitter())
}

func (s *CacheTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func sampleResult() *entity.Result {
	return &entity.Result{
		DocumentID: "doc-1",
		Entities: []entity.Entity{
			{Text: "Hà Nội", Label: entity.LabelLocation, Start: 0, End: 6, Source: entity.SourceStatistical},
		},
		Sentences: 1,
		Stats:     entity.Stats{Final: 1, Labels: map[string]int{entity.LabelLocation: 1}},
	}
}

func (s *CacheTestSuite) TestGet_Hit() {
	want := sampleResult()
	data, _ := json.Marshal(want)
	s.mock.ExpectGet("test:k1").SetVal(string(data))

	got, err := s.cache.Get(context.Background(), "k1")
	s.Require().NoError(err)
	s.Equal(want, got)
}

func (s *CacheTestSuite) TestGet_Miss() {
	s.mock.ExpectGet("test:k1").RedisNil()

	_, err := s.cache.Get(context.Background(), "k1")
	s.Equal(ErrCacheMiss, err)
}

func (s *CacheTestSuite) TestGet_CorruptEntry() {
	s.mock.ExpectGet("test:k1").SetVal("{not json")

	_, err := s.cache.Get(context.Background(), "k1")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}

func (s *CacheTestSuite) TestSet() {
	res := sampleResult()
	data, _ := json.Marshal(res)
	s.mock.ExpectSet("test:k1", data, time.Hour).SetVal("OK")

	s.NoError(s.cache.Set(context.Background(), "k1", res))
}

func (s *CacheTestSuite) TestDelete() {
	s.mock.ExpectDel("test:k1", "test:k2").SetVal(2)
	s.NoError(s.cache.Delete(context.Background(), "k1", "k2"))
	s.NoError(s.cache.Delete(context.Background()))
}

func (s *CacheTestSuite) TestGetOrResolve_Hit() {
	data, _ := json.Marshal(sampleResult())
	s.mock.ExpectGet("test:k1").SetVal(string(data))

	calls := 0
	res, hit, err := s.cache.GetOrResolve(context.Background(), "k1", func(context.Context) (*entity.Result, error) {
		calls++
		return nil, nil
	})
	s.Require().NoError(err)
	s.True(hit)
	s.Zero(calls)
	s.Equal("doc-1", res.DocumentID)
}

func (s *CacheTestSuite) TestGetOrResolve_MissPopulates() {
	res := sampleResult()
	data, _ := json.Marshal(res)
	s.mock.ExpectGet("test:k1").RedisNil()
	s.mock.ExpectSet("test:k1", data, time.Hour).SetVal("OK")

	got, hit, err := s.cache.GetOrResolve(context.Background(), "k1", func(context.Context) (*entity.Result, error) {
		return res, nil
	})
	s.Require().NoError(err)
	s.False(hit)
	s.Same(res, got)
}

func (s *CacheTestSuite) TestGetOrResolve_CacheDownStillResolves() {
	res := sampleResult()
	data, _ := json.Marshal(res)
	s.mock.ExpectGet("test:k1").SetErr(stderrors.New("connection refused"))
	s.mock.ExpectSet("test:k1", data, time.Hour).SetErr(stderrors.New("connection refused"))

	got, hit, err := s.cache.GetOrResolve(context.Background(), "k1", func(context.Context) (*entity.Result, error) {
		return res, nil
	})
	s.Require().NoError(err)
	s.False(hit)
	s.Same(res, got)
}

func (s *CacheTestSuite) TestGetOrResolve_ResolveErrorNotCached() {
	s.mock.ExpectGet("test:k1").RedisNil()

	boom := pkgerrors.InvalidOffset(0, 9, 3)
	_, _, err := s.cache.GetOrResolve(context.Background(), "k1", func(context.Context) (*entity.Result, error) {
		return nil, boom
	})
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeInvalidOffset))
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func TestDocumentKey(t *testing.T) {
	t.Parallel()

	a := &entity.Document{ID: "a", Text: "Hà Nội", Tokens: []entity.TaggedToken{{Text: "Hà", Tag: "B-LOC"}}}
	b := &entity.Document{ID: "b", Text: "Hà Nội", Tokens: []entity.TaggedToken{{Text: "Hà", Tag: "B-LOC"}}}
	c := &entity.Document{ID: "a", Text: "Hà Nội", Tokens: []entity.TaggedToken{{Text: "Hà", Tag: "B-PER"}}}

	require.Equal(t, DocumentKey(a, "v1"), DocumentKey(b, "v1"), "ID is not part of the key")
	assert.NotEqual(t, DocumentKey(a, "v1"), DocumentKey(c, "v1"))
	assert.NotEqual(t, DocumentKey(a, "v1"), DocumentKey(a, "v2"))
	assert.Regexp(t, `^result:v1:[0-9a-f]{64}$`, DocumentKey(a, "v1"))

	noRules := &entity.Document{ID: "a", Text: a.Text, Tokens: a.Tokens, Patterns: []entity.PatternMatch{}}
	assert.NotEqual(t, DocumentKey(a, "v1"), DocumentKey(noRules, "v1"), "empty patterns differ from absent ones")
}

func TestJitterTTL(t *testing.T) {
	t.Parallel()

	assert.Zero(t, jitterTTL(0))
	for i := 0; i < 50; i++ {
		d := jitterTTL(time.Hour)
		assert.GreaterOrEqual(t, d, 54*time.Minute)
		assert.LessOrEqual(t, d, 66*time.Minute)
	}
}

//Personal.AI order the ending
