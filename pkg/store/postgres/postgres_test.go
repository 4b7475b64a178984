package postgres_test

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/csml-run/csml-engine/pkg/store"
	"github.com/csml-run/csml-engine/pkg/store/postgres"
)

// Shared container across this package's tests, adapted from the teacher's
// test/util.SetupTestDatabase: one testcontainer per package run, one fresh
// database per test via CREATE DATABASE, so migrations stay isolated.
var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

func sharedBaseConnString(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("CI_DATABASE_URL"); url != "" {
		return url
	}
	containerOnce.Do(func() {
		ctx := context.Background()
		c, err := tcpostgres.Run(ctx,
			"postgres:17-alpine",
			tcpostgres.WithDatabase("test"),
			tcpostgres.WithUsername("test"),
			tcpostgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		connStr, err := c.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("get connection string: %w", err)
			return
		}
		sharedConnStr = connStr
	})
	require.NoError(t, containerErr)
	return sharedConnStr
}

// newTestClient creates a fresh database inside the shared container, runs
// migrations against it, and returns a *postgres.Client dropped on cleanup.
func newTestClient(t *testing.T) *postgres.Client {
	t.Helper()
	ctx := context.Background()
	base := sharedBaseConnString(t)

	admin, err := stdsql.Open("pgx", base)
	require.NoError(t, err)
	defer admin.Close()

	dbName := "test_" + strings.ToLower(strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())) +
		fmt.Sprintf("_%d", time.Now().UnixNano())
	_, err = admin.ExecContext(ctx, `CREATE DATABASE `+dbName)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), `DROP DATABASE IF EXISTS `+dbName)
	})

	connStr := connStringWithDB(base, dbName)
	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))

	client := postgres.NewClientFromDB(db)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Migrate(dbName))
	return client
}

func connStringWithDB(base, dbName string) string {
	idx := strings.LastIndex(base, "/")
	if idx == -1 {
		return base
	}
	rest := base[idx+1:]
	if q := strings.IndexByte(rest, '?'); q != -1 {
		return base[:idx+1] + dbName + rest[q:]
	}
	return base[:idx+1] + dbName
}

func testClient(t *testing.T) store.Store {
	t.Helper()
	c := newTestClient(t)
	return postgres.Facade(c)
}

func testClientID(t *testing.T) store.Client {
	return store.Client{BotID: "bot1", ChannelID: "web", UserID: "user1"}
}

func TestConversationLifecycle(t *testing.T) {
	s := testClient(t)
	ctx := context.Background()
	client := testClientID(t)

	id, err := s.Conversations.Create(ctx, client, "main", "start", nil)
	require.NoError(t, err)

	open, err := s.Conversations.GetLatestOpen(ctx, client)
	require.NoError(t, err)
	require.NotNil(t, open)
	require.Equal(t, id, open.ID)
	require.Equal(t, store.ConversationOpen, open.Status)

	newStep := "second_step"
	require.NoError(t, s.Conversations.Update(ctx, id, nil, &newStep))

	require.NoError(t, s.Conversations.Close(ctx, id))
	open, err = s.Conversations.GetLatestOpen(ctx, client)
	require.NoError(t, err)
	require.Nil(t, open)
}

func TestMemoryUpsertIsLatestWriteWins(t *testing.T) {
	s := testClient(t)
	ctx := context.Background()
	client := testClientID(t)

	require.NoError(t, s.Memories.Upsert(ctx, client, "lang", "en", nil))
	require.NoError(t, s.Memories.Upsert(ctx, client, "lang", "fr", nil))

	m, err := s.Memories.Get(ctx, client, "lang")
	require.NoError(t, err)
	require.Equal(t, "fr", m.Value)
}

func TestMessagesAddBulkIsContiguous(t *testing.T) {
	s := testClient(t)
	ctx := context.Background()
	client := testClientID(t)

	convID, err := s.Conversations.Create(ctx, client, "main", "start", nil)
	require.NoError(t, err)

	err = s.Messages.AddBulk(ctx, convID, []store.Message{
		{FlowID: "main", StepID: "start", ContentType: "text", Payload: `"hi"`},
		{FlowID: "main", StepID: "start", ContentType: "text", Payload: `"there"`},
	}, 0, store.DirectionSend, nil)
	require.NoError(t, err)

	page, err := s.Messages.GetClientMessages(ctx, store.MessageFilter{Client: client})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, 0, page.Items[0].MessageOrder)
	require.Equal(t, 1, page.Items[1].MessageOrder)
}
