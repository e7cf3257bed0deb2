package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	leadrepo "github.com/Ramsey-B/clover/internal/repositories/lead"
	"github.com/Ramsey-B/clover/internal/repositories/leadevent"
	"github.com/Ramsey-B/clover/internal/repositories/ledger"
	"github.com/Ramsey-B/clover/internal/repositories/mergeaudit"
	candidaterepo "github.com/Ramsey-B/clover/internal/repositories/mergecandidate"
	"github.com/Ramsey-B/clover/internal/repositories/scoringrule"
	"github.com/Ramsey-B/clover/internal/repositories/scoringstate"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/ingestion"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/scoring"
)

// engineContext wires the real engines against a live Postgres. Tests
// using it are skipped in short mode or when TEST_DATABASE_DSN is not
// set; each test works on identities unique to its run so reruns
// against the same database stay independent.
type engineContext struct {
	ctx context.Context

	leadRepo      *leadrepo.Repository
	eventRepo     *leadevent.Repository
	ruleRepo      *scoringrule.Repository
	stateRepo     *scoringstate.Repository
	candidateRepo *candidaterepo.Repository
	ledgerRepo    *ledger.Repository

	scorer  *scoring.Engine
	matcher *matching.Engine
	merger  *merging.Engine
	proc    *processor.Processor
}

func setupEngineContext(t *testing.T) *engineContext {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database-backed test in short mode")
	}
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	sqlDB, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	driver, err := postgres.WithInstance(sqlDB.DB, &postgres.Config{})
	require.NoError(t, err)

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: "../../db/pg",
	})
	require.NoError(t, migrations.Migrate("clover_test", driver))

	db := database.NewDatabaseInstance(sqlDB, logger)

	ec := &engineContext{
		ctx:           context.Background(),
		leadRepo:      leadrepo.NewRepository(db, logger),
		eventRepo:     leadevent.NewRepository(db, logger),
		ruleRepo:      scoringrule.NewRepository(db, logger),
		stateRepo:     scoringstate.NewRepository(db, logger),
		candidateRepo: candidaterepo.NewRepository(db, logger),
	}
	require.NoError(t, ec.stateRepo.Seed(ec.ctx, 30, 70))

	ec.ledgerRepo = ledger.NewRepository(db, logger)
	ledgerRepo := ec.ledgerRepo
	auditRepo := mergeaudit.NewRepository(db, logger)

	ec.scorer = scoring.NewEngine(logger, ec.leadRepo, ec.eventRepo, ec.ruleRepo, ec.stateRepo)
	ec.matcher = matching.NewEngine(logger, ec.leadRepo, ec.candidateRepo, matching.DefaultConfig())
	ec.merger = merging.NewEngine(logger, ec.leadRepo, ec.eventRepo, ledgerRepo, ec.candidateRepo, auditRepo, ec.ruleRepo, ec.stateRepo)

	ingestSvc := ingestion.NewService(logger, ledgerRepo)
	emitter := events.NewEmitter(nil, logger)
	ec.proc = processor.NewProcessor(logger, ingestSvc, ec.leadRepo, ec.scorer, emitter)

	return ec
}

// uniqueSuffix keys each run's identities and event types so tests can
// rerun against a dirty database.
func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

func uniquePhone() string {
	return fmt.Sprintf("5511%09d", time.Now().UnixNano()%1_000_000_000)
}

func (ec *engineContext) createRule(t *testing.T, eventType string, points int) *models.ScoringRule {
	t.Helper()
	rule, err := ec.ruleRepo.Create(ec.ctx, models.CreateScoringRuleRequest{
		Name:      eventType,
		EventType: eventType,
		Points:    points,
		IsActive:  true,
	})
	require.NoError(t, err)
	return rule
}

func TestLedgerIdempotenceOneEventOneDelta(t *testing.T) {
	ec := setupEngineContext(t)

	run := uniqueSuffix()
	eventType := "email_opened_" + run
	ec.createRule(t, eventType, 5)

	email := fmt.Sprintf("idem-%s@example.com", run)
	externalID := "evt-" + run
	event := models.WebhookEvent{
		Source:          models.WebhookSourceMailchimp,
		Type:            eventType,
		ExternalID:      &externalID,
		SubjectIdentity: models.SubjectIdentity{Email: email},
		FiredAt:         time.Now().UTC(),
	}

	first, err := ec.proc.ProcessEvent(ec.ctx, event)
	require.NoError(t, err)
	entry, err := ec.ledgerRepo.Get(ec.ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerStatusProcessed, entry.Status)

	// The exact same delivery again: same ledger row, no second event,
	// no second score delta
	second, err := ec.proc.ProcessEvent(ec.ctx, event)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	leads, err := ec.leadRepo.GetByIdentity(ec.ctx, models.IdentityKey{Email: email})
	require.NoError(t, err)
	require.Len(t, leads, 1)

	count, err := ec.eventRepo.CountByLead(ec.ctx, leads[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, models.BaseScore+5, leads[0].Score)
}

func TestIncrementalAndReplayScoresAgree(t *testing.T) {
	ec := setupEngineContext(t)

	run := uniqueSuffix()
	opened := "email_opened_" + run
	clicked := "email_clicked_" + run
	rule := ec.createRule(t, opened, 5)
	ec.createRule(t, clicked, 10)

	email := fmt.Sprintf("replay-%s@example.com", run)
	lead, err := ec.leadRepo.Create(ec.ctx, &models.Lead{Email: &email})
	require.NoError(t, err)

	for _, eventType := range []string{opened, clicked, opened} {
		_, _, err := ec.scorer.ApplyEventScoring(ec.ctx, lead.ID, eventType, nil, time.Now().UTC(), nil)
		require.NoError(t, err)
	}

	incremental, err := ec.leadRepo.Get(ec.ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BaseScore+5+10+5, incremental.Score)

	// Replaying with unchanged rules is a no-op
	_, err = ec.scorer.RecalculateAll(ec.ctx, nil, 100)
	require.NoError(t, err)
	replayed, err := ec.leadRepo.Get(ec.ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, incremental.Score, replayed.Score)

	// Editing the rule moves the score to what incremental application
	// under the new rules would have produced
	newPoints := 1
	_, err = ec.ruleRepo.Update(ec.ctx, rule.ID, models.UpdateScoringRuleRequest{Points: &newPoints})
	require.NoError(t, err)

	_, err = ec.scorer.RecalculateAll(ec.ctx, nil, 100)
	require.NoError(t, err)
	recalculated, err := ec.leadRepo.Get(ec.ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BaseScore+1+10+1, recalculated.Score)
}

func TestMergeLosesNoEvents(t *testing.T) {
	ec := setupEngineContext(t)

	run := uniqueSuffix()
	eventType := "form_submitted_" + run
	ec.createRule(t, eventType, 5)

	phone := uniquePhone()
	emailA := fmt.Sprintf("merge-a-%s@example.com", run)
	emailB := fmt.Sprintf("merge-b-%s@example.com", run)

	survivor, err := ec.leadRepo.Create(ec.ctx, &models.Lead{Email: &emailA, Phone: &phone})
	require.NoError(t, err)
	duplicate, err := ec.leadRepo.Create(ec.ctx, &models.Lead{Email: &emailB, Phone: &phone})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := ec.scorer.ApplyEventScoring(ec.ctx, survivor.ID, eventType, nil, time.Now().UTC(), nil)
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, _, err := ec.scorer.ApplyEventScoring(ec.ctx, duplicate.ID, eventType, nil, time.Now().UTC(), nil)
		require.NoError(t, err)
	}

	result, err := ec.merger.Merge(ec.ctx, survivor.ID, duplicate.ID, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.EventsReparented)

	survivorCount, err := ec.eventRepo.CountByLead(ec.ctx, survivor.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, survivorCount)

	duplicateCount, err := ec.eventRepo.CountByLead(ec.ctx, duplicate.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, duplicateCount)

	retired, err := ec.leadRepo.Get(ec.ctx, duplicate.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusMerged, retired.Status)
	require.NotNil(t, retired.MergedInto)
	assert.Equal(t, survivor.ID, *retired.MergedInto)

	// The survivor's score is the replay of the combined history
	merged, err := ec.leadRepo.Get(ec.ctx, survivor.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BaseScore+5*5, merged.Score)
}

func TestPhoneMatchOutranksEmailMatch(t *testing.T) {
	ec := setupEngineContext(t)

	run := uniqueSuffix()
	phone := uniquePhone()
	otherPhone := uniquePhone()
	email := fmt.Sprintf("rank-%s@example.com", run)

	// The email-matched lead is older; the phone match must still win
	byEmail, err := ec.leadRepo.Create(ec.ctx, &models.Lead{Email: &email, Phone: &otherPhone})
	require.NoError(t, err)
	byPhone, err := ec.leadRepo.Create(ec.ctx, &models.Lead{Phone: &phone})
	require.NoError(t, err)

	matches, err := ec.leadRepo.GetByIdentity(ec.ctx, models.IdentityKey{Email: email, Phone: phone})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, byPhone.ID, matches[0].ID)
	assert.Equal(t, byEmail.ID, matches[1].ID)
}

func TestRejectedPairReopensWhenIdentityChanges(t *testing.T) {
	ec := setupEngineContext(t)

	run := uniqueSuffix()
	phone := uniquePhone()
	emailA := fmt.Sprintf("reopen-a-%s@example.com", run)
	emailB := fmt.Sprintf("reopen-b-%s@example.com", run)

	leadA, err := ec.leadRepo.Create(ec.ctx, &models.Lead{Email: &emailA, Phone: &phone})
	require.NoError(t, err)
	leadB, err := ec.leadRepo.Create(ec.ctx, &models.Lead{Email: &emailB, Phone: &phone})
	require.NoError(t, err)

	_, err = ec.matcher.RefreshCandidates(ec.ctx, 10000)
	require.NoError(t, err)

	candidate, err := ec.candidateRepo.GetByPair(ec.ctx, leadA.ID, leadB.ID)
	require.NoError(t, err)
	require.Equal(t, models.MergeCandidateStatusPending, candidate.Status)

	operator := "op"
	require.NoError(t, ec.candidateRepo.UpdateStatus(ec.ctx, candidate.ID, models.MergeCandidateStatusRejected, &operator))

	// Rescanning with unchanged identities honors the verdict
	_, err = ec.matcher.RefreshCandidates(ec.ctx, 10000)
	require.NoError(t, err)
	candidate, err = ec.candidateRepo.GetByPair(ec.ctx, leadA.ID, leadB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MergeCandidateStatusRejected, candidate.Status)

	// Identity change on either side makes the pair a new question
	emailB2 := fmt.Sprintf("reopen-b2-%s@example.com", run)
	_, err = ec.leadRepo.Update(ec.ctx, leadB.ID, models.UpdateLeadRequest{Email: &emailB2})
	require.NoError(t, err)

	_, err = ec.matcher.RefreshCandidates(ec.ctx, 10000)
	require.NoError(t, err)
	candidate, err = ec.candidateRepo.GetByPair(ec.ctx, leadA.ID, leadB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MergeCandidateStatusPending, candidate.Status)
	assert.Nil(t, candidate.ResolvedBy)
}
