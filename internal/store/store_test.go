package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/caseforge/caseforge/internal/dbpool"
	"github.com/caseforge/caseforge/internal/models"
	"github.com/caseforge/caseforge/internal/store"
)

// testEnv holds shared test infrastructure (single pool across all tests).
type testEnv struct {
	pool *dbpool.Pool
	log  *logrus.Logger
}

var sharedEnv *testEnv

func getTestEnv(t *testing.T) *testEnv {
	t.Helper()

	if sharedEnv != nil {
		return sharedEnv
	}

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()

	pool, err := dbpool.NewPool(ctx, dbURL)
	if err != nil {
		t.Fatalf("connecting to test DB: %v", err)
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	sharedEnv = &testEnv{
		pool: pool,
		log:  log,
	}

	return sharedEnv
}

// setupTestBase creates a Base against the test database, wiping engine
// tables after the test. Tests must not run in parallel against the same
// database.
func setupTestBase(t *testing.T) store.Base {
	t.Helper()

	env := getTestEnv(t)

	t.Cleanup(func() {
		cleanCtx := context.Background()
		// Delete in dependency order: placements and join rows first, then
		// nodes, then the standalone tables.
		env.pool.Exec(cleanCtx, "DELETE FROM cm_tree_leaves")      //nolint:errcheck // best-effort cleanup
		env.pool.Exec(cleanCtx, "DELETE FROM cm_node_vocab")       //nolint:errcheck // best-effort cleanup
		env.pool.Exec(cleanCtx, "DELETE FROM cm_comments")         //nolint:errcheck // best-effort cleanup
		env.pool.Exec(cleanCtx, "DELETE FROM cm_detection_points") //nolint:errcheck // best-effort cleanup
		env.pool.Exec(cleanCtx, "DELETE FROM cm_nodes")            //nolint:errcheck // best-effort cleanup
		env.pool.Exec(cleanCtx, "DELETE FROM cm_history")          //nolint:errcheck // best-effort cleanup
		env.pool.Exec(cleanCtx, "DELETE FROM cm_audit_log")        //nolint:errcheck // best-effort cleanup
		env.pool.Exec(cleanCtx, "DELETE FROM cm_vocab")            //nolint:errcheck // best-effort cleanup
	})

	return store.Base{Pool: env.pool, Log: env.log}
}

// seedVocab registers values in a vocabulary so node mutations can resolve them.
func seedVocab(t *testing.T, base store.Base, kind models.VocabKind, values ...string) {
	t.Helper()

	vs := store.NewVocabStore(base)
	ctx := context.Background()

	for _, v := range values {
		if _, err := vs.CreateValue(ctx, kind, v); err != nil {
			t.Fatalf("seeding %s %q: %v", kind, v, err)
		}
	}
}

// defaultAlertRequest builds a minimal valid alert create request. The
// "default" queue must be seeded first.
func defaultAlertRequest() models.CreateNodeRequest {
	return models.CreateNodeRequest{
		Kind:  models.KindAlert,
		Alert: &models.AlertDetail{Queue: "default"},
	}
}
