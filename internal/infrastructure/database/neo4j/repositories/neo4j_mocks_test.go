package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/mock"

	infraNeo4j "github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/database/neo4j"
)

// MockInfraDriver implements infraNeo4j.DriverInterface
type MockInfraDriver struct {
	mock.Mock
}

func (m *MockInfraDriver) ExecuteRead(ctx context.Context, work infraNeo4j.TransactionWork) (any, error) {
	args := m.Called(ctx, work)
	if fn, ok := args.Get(0).(func(context.Context, infraNeo4j.TransactionWork) (any, error)); ok {
		return fn(ctx, work)
	}
	return args.Get(0), args.Error(1)
}

func (m *MockInfraDriver) ExecuteWrite(ctx context.Context, work infraNeo4j.TransactionWork) (any, error) {
	args := m.Called(ctx, work)
	if fn, ok := args.Get(0).(func(context.Context, infraNeo4j.TransactionWork) (any, error)); ok {
		return fn(ctx, work)
	}
	return args.Get(0), args.Error(1)
}

func (m *MockInfraDriver) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockInfraDriver) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockInfraTransaction implements infraNeo4j.Transaction
type MockInfraTransaction struct {
	mock.Mock
}

func (m *MockInfraTransaction) Run(ctx context.Context, cypher string, params map[string]any) (infraNeo4j.Result, error) {
	args := m.Called(ctx, cypher, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(infraNeo4j.Result), args.Error(1)
}

// MockResult implements infraNeo4j.Result over a fixed record list.
type MockResult struct {
	Records []*neo4j.Record
	Current int
	Summary neo4j.ResultSummary
}

func (m *MockResult) Next(ctx context.Context) bool {
	if m.Current < len(m.Records) {
		m.Current++
		return true
	}
	return false
}

func (m *MockResult) Record() *neo4j.Record {
	if m.Current == 0 || m.Current > len(m.Records) {
		return nil
	}
	return m.Records[m.Current-1]
}

func (m *MockResult) Err() error { return nil }

func (m *MockResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) {
	return m.Summary, nil
}

// MockResultSummary implements neo4j.ResultSummary
type MockResultSummary struct {
	CountersObj neo4j.Counters
}

func (m *MockResultSummary) Counters() neo4j.Counters { return m.CountersObj }
func (m *MockResultSummary) Query() neo4j.Query { return nil }
func (m *MockResultSummary) Database() neo4j.DatabaseInfo { return nil }
func (m *MockResultSummary) Notifications() []neo4j.Notification { return nil }
func (m *MockResultSummary) Plan() neo4j.Plan { return nil }
func (m *MockResultSummary) Profile() neo4j.ProfiledPlan { return nil }
func (m *MockResultSummary) ResultAvailableAfter() time.Duration { return 0 }
func (m *MockResultSummary) ResultConsumedAfter() time.Duration { return 0 }
func (m *MockResultSummary) Server() neo4j.ServerInfo { return nil }
func (m *MockResultSummary) StatementType() neo4j.StatementType { return neo4j.StatementTypeUnknown }

type MockCounters struct {
	NodesCreatedVal         int
	RelationshipsCreatedVal int
	RelationshipsDeletedVal int
}

func (m *MockCounters) NodesCreated() int { return m.NodesCreatedVal }
func (m *MockCounters) NodesDeleted() int { return 0 }
func (m *MockCounters) RelationshipsCreated() int { return m.RelationshipsCreatedVal }
func (m *MockCounters) RelationshipsDeleted() int { return m.RelationshipsDeletedVal }
func (m *MockCounters) PropertiesSet() int { return 0 }
func (m *MockCounters) LabelsAdded() int { return 0 }
func (m *MockCounters) LabelsRemoved() int { return 0 }
func (m *MockCounters) IndexesAdded() int { return 0 }
func (m *MockCounters) IndexesRemoved() int { return 0 }
func (m *MockCounters) ConstraintsAdded() int { return 0 }
func (m *MockCounters) ConstraintsRemoved() int { return 0 }
func (m *MockCounters) SystemUpdates() int { return 0 }
func (m *MockCounters) ContainsUpdates() bool {
	return m.NodesCreatedVal > 0 || m.RelationshipsCreatedVal > 0 || m.RelationshipsDeletedVal > 0
}
func (m *MockCounters) ContainsSystemUpdates() bool { return false }

// NewRecord builds a record with values
func NewRecord(keys []string, values []any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

// SetupMockDriver wires ExecuteRead/Write to run work against the returned tx.
func SetupMockDriver(t *testing.T) (*MockInfraDriver, *MockInfraTransaction) {
	t.Helper()
	d := new(MockInfraDriver)
	tx := new(MockInfraTransaction)

	run := func(ctx context.Context, work infraNeo4j.TransactionWork) (any, error) {
		return work(tx)
	}
	d.On("ExecuteRead", mock.Anything, mock.Anything).Return(run, nil)
	d.On("ExecuteWrite", mock.Anything, mock.Anything).Return(run, nil)
	return d, tx
}
