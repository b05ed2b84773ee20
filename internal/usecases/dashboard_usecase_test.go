package usecases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neowhatai/internal/config"
	"neowhatai/internal/entities"
	"neowhatai/internal/repository"
)

func ptr[T any](v T) *T { return &v }

type dashboardFixture struct {
	tenants   *fakeTenants
	docs      *fakeDocs
	logs      *fakeLogs
	messenger *fakeMessenger
	usecase   *DashboardUsecase
}

func newDashboardFixture(tenants ...*entities.Tenant) *dashboardFixture {
	f := &dashboardFixture{
		tenants:   newFakeTenants(tenants...),
		docs:      newFakeDocs(),
		logs:      &fakeLogs{},
		messenger: &fakeMessenger{},
	}
	f.tenants.logs = f.logs
	f.tenants.docs = f.docs
	logger := config.Discard()
	ingest := NewIngestService(f.tenants, f.docs, &fakeEmbedder{}, 10, 0, logger)
	f.usecase = NewDashboardUsecase(f.tenants, f.docs, f.logs, f.messenger, ingest, "global-token", logger)
	return f
}

func TestCreateTenantValidation(t *testing.T) {
	existing := &entities.Tenant{ID: "t1", Name: "Bistrot", SessionID: "sess-1", IsActive: true}

	tests := []struct {
		name    string
		input   TenantInput
		wantErr error
	}{
		{"valid", TenantInput{Name: ptr("Garage"), SessionID: ptr("sess-2")}, nil},
		{"trims fields", TenantInput{Name: ptr("  Garage "), SessionID: ptr(" sess-2 ")}, nil},
		{"missing name", TenantInput{SessionID: ptr("sess-2")}, ErrInvalidTenant},
		{"blank session", TenantInput{Name: ptr("Garage"), SessionID: ptr("   ")}, ErrInvalidTenant},
		{"session taken", TenantInput{Name: ptr("Garage"), SessionID: ptr("sess-1")}, ErrSessionTaken},
		{"inactive may share a session", TenantInput{Name: ptr("Garage"), SessionID: ptr("sess-1"), IsActive: ptr(false)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDashboardFixture(existing)

			created, err := f.usecase.CreateTenant(context.Background(), tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, created.ID)
			assert.Equal(t, "Garage", created.Name)
			stored, err := f.tenants.Get(context.Background(), created.ID)
			require.NoError(t, err)
			assert.Equal(t, created.SessionID, stored.SessionID)
		})
	}
}

func TestUpdateTenant(t *testing.T) {
	f := newDashboardFixture(
		&entities.Tenant{ID: "t1", Name: "Bistrot", SessionID: "sess-1", IsActive: true, LLMKey: "k"},
		&entities.Tenant{ID: "t2", Name: "Garage", SessionID: "sess-2", IsActive: true},
	)
	ctx := context.Background()

	updated, err := f.usecase.UpdateTenant(ctx, "t1", TenantInput{SystemPrompt: ptr("Tu es le serveur.")})
	require.NoError(t, err)
	assert.Equal(t, "Tu es le serveur.", updated.SystemPrompt)
	assert.Equal(t, "k", updated.LLMKey, "nil fields are left unchanged")

	_, err = f.usecase.UpdateTenant(ctx, "t1", TenantInput{SessionID: ptr("sess-2")})
	assert.ErrorIs(t, err, ErrSessionTaken)

	_, err = f.usecase.UpdateTenant(ctx, "t1", TenantInput{SessionID: ptr("sess-1")})
	assert.NoError(t, err, "a tenant keeps its own session")

	_, err = f.usecase.UpdateTenant(ctx, "missing", TenantInput{})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLogsLimitIsClamped(t *testing.T) {
	f := newDashboardFixture(&entities.Tenant{ID: "t1"})
	for i := 0; i < MaxLogLimit+20; i++ {
		require.NoError(t, f.logs.Insert(context.Background(), &entities.ConversationLog{TenantID: "t1", UserPhone: "1"}))
	}

	tests := []struct {
		limit int
		want  int
	}{
		{0, DefaultLogLimit},
		{-5, DefaultLogLimit},
		{10, 10},
		{10_000, MaxLogLimit},
	}
	for _, tt := range tests {
		got, err := f.usecase.Logs(context.Background(), "t1", tt.limit)
		require.NoError(t, err)
		assert.Len(t, got, tt.want, "limit %d", tt.limit)
	}
}

func TestStatsAndSummaries(t *testing.T) {
	f := newDashboardFixture(
		&entities.Tenant{ID: "t1", Name: "Bistrot", SessionID: "s1", IsActive: true, GatewayToken: "tok"},
		&entities.Tenant{ID: "t2", Name: "Garage", SessionID: "s2"},
	)
	ctx := context.Background()
	f.docs.add("t1", fakeDoc{"a", 1}, fakeDoc{"b", 1})
	f.docs.add("t2", fakeDoc{"c", 1})
	require.NoError(t, f.logs.Insert(ctx, &entities.ConversationLog{TenantID: "t1"}))

	stats, err := f.usecase.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Tenants: 2, ActiveTenants: 1, Documents: 3, Logs: 1}, *stats)

	summary, err := f.usecase.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, summary.HasGatewayToken)
	assert.False(t, summary.HasLLMKey)
	assert.Equal(t, 2, summary.DocumentCount)
	assert.Equal(t, 1, summary.LogCount)
}

func TestDocumentsLifecycle(t *testing.T) {
	f := newDashboardFixture(&entities.Tenant{ID: "t1", SessionID: "s1", IsActive: true})
	ctx := context.Background()

	result, err := f.usecase.IngestDocument(ctx, "t1", "carte.pdf", words(200))
	require.NoError(t, err)

	kb, err := f.usecase.Documents(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, result.Stored, kb.Count)
	assert.Equal(t, []entities.DocumentSource{{Source: "carte.pdf", Chunks: result.Stored}}, kb.Sources)

	deleted, err := f.usecase.DeleteDocuments(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(result.Stored), deleted)

	_, err = f.usecase.Documents(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTestSend(t *testing.T) {
	t.Run("explicit tenant", func(t *testing.T) {
		f := newDashboardFixture(&entities.Tenant{ID: "t1", SessionID: "s1", GatewayToken: "tenant-token"})

		tenant, err := f.usecase.TestSend(context.Background(), "t1", "2250705223228", "Test")
		require.NoError(t, err)
		assert.Equal(t, "t1", tenant.ID)
		require.Len(t, f.messenger.sent, 1)
		assert.Equal(t, "tenant-token", f.messenger.sent[0].Token.OrElse(""))
		assert.Equal(t, "s1", f.messenger.sent[0].SessionID)
	})

	t.Run("first active tenant", func(t *testing.T) {
		f := newDashboardFixture(
			&entities.Tenant{ID: "t1", SessionID: "s1"},
			&entities.Tenant{ID: "t2", SessionID: "s2", IsActive: true},
		)

		tenant, err := f.usecase.TestSend(context.Background(), "", "2250705223228", "Test")
		require.NoError(t, err)
		assert.Equal(t, "t2", tenant.ID)
		assert.Equal(t, "global-token", f.messenger.sent[0].Token.OrElse(""))
	})

	t.Run("no active tenant", func(t *testing.T) {
		f := newDashboardFixture(&entities.Tenant{ID: "t1", SessionID: "s1"})

		_, err := f.usecase.TestSend(context.Background(), "", "2250705223228", "Test")
		assert.ErrorIs(t, err, ErrNoActiveTenant)
		assert.Zero(t, f.messenger.count())
	})
}

func TestDeleteTenant(t *testing.T) {
	f := newDashboardFixture(&entities.Tenant{ID: "t1"})

	require.NoError(t, f.usecase.DeleteTenant(context.Background(), "t1"))
	assert.ErrorIs(t, f.usecase.DeleteTenant(context.Background(), "t1"), repository.ErrNotFound)
}
