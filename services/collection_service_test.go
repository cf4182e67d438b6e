package services

import (
	"cobranca/database"
	"cobranca/models"
	"cobranca/utils"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2025, time.March, 20, 15, 0, 0, 0, time.UTC)

func testSettings() CollectionSettings {
	return CollectionSettings{
		MinOverdueDays: 31,
		MaxOverdueDays: 45,
		TagTTL:         72 * time.Hour,
		PermanentTags:  []string{models.TagNegotiating},
		Location:       time.UTC,
		FinanceEmail:   "financeiro@example.com",
	}
}

func newTestCollectionService(store *memoryStore) *CollectionService {
	return NewCollectionService(store, database.NewMemoryChangeFeed(), testSettings(), zap.NewNop(), utils.NewMetrics()).
		WithClock(func() time.Time { return testNow })
}

func overdue(id, name, taxID string, days int) models.CollectionRecord {
	return models.CollectionRecord{
		ID:      id,
		Name:    name,
		TaxID:   taxID,
		Email:   strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Phone:   "11987654321",
		Course:  "Curso " + id,
		Amount:  decimal.NewFromInt(100),
		DueDate: testNow.AddDate(0, 0, -days),
		Status:  models.RecordStatusActive,
	}
}

func tagged(r models.CollectionRecord, kind string, age time.Duration) models.CollectionRecord {
	at := testNow.Add(-age)
	r.Tag = models.StatusTag{Kind: kind, AppliedAt: &at, AppliedBy: "agent@example.com"}
	return r
}

func TestLoad_FiltersWindowAndStatus(t *testing.T) {
	paid := overdue("paid", "Pago", "6", 35)
	paid.Status = models.RecordStatusPaid

	store := newMemoryStore(
		overdue("d30", "Trinta", "1", 30),
		overdue("d31", "Trinta e um", "2", 31),
		overdue("d35", "Trinta e cinco", "3", 35),
		overdue("d44", "Quarenta e quatro", "4", 44),
		overdue("d45", "Quarenta e cinco", "5", 45),
		paid,
	)
	svc := newTestCollectionService(store)

	loaded, err := svc.Load(context.Background())
	require.NoError(t, err)

	days := map[string]int{}
	for _, r := range loaded {
		days[r.ID] = r.DaysOverdue
	}
	assert.Equal(t, map[string]int{"d31": 31, "d35": 35, "d44": 44}, days)
	assert.Len(t, svc.State().Records(), 3)
	assert.Equal(t, testNow, svc.State().LoadedAt())
}

func TestLoad_ClearsExpiredTags(t *testing.T) {
	store := newMemoryStore(
		tagged(overdue("old", "Antigo", "1", 35), models.TagLinkSent, 4*24*time.Hour),
		tagged(overdue("fresh", "Recente", "2", 35), models.TagLinkScheduled, 24*time.Hour),
		tagged(overdue("perm", "Permanente", "3", 35), models.TagNegotiating, 30*24*time.Hour),
	)
	svc := newTestCollectionService(store)

	loaded, err := svc.Load(context.Background())
	require.NoError(t, err)
	svc.Wait()

	tags := map[string]string{}
	for _, r := range loaded {
		tags[r.ID] = r.Tag.Kind
	}
	assert.Equal(t, "", tags["old"])
	assert.Equal(t, models.TagLinkScheduled, tags["fresh"])
	assert.Equal(t, models.TagNegotiating, tags["perm"])

	old := store.record("old")
	assert.True(t, old.Tag.Empty())
	entries, err := old.AuditEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditTagExpired, entries[0].Kind)
	assert.Equal(t, "Sistema", entries[0].Actor)

	assert.Equal(t, models.TagNegotiating, store.record("perm").Tag.Kind)
	assert.Equal(t, models.TagLinkScheduled, store.record("fresh").Tag.Kind)
}

func TestLoad_ExpiryKeepsTagAppliedMeanwhile(t *testing.T) {
	tests := []struct {
		name string
		kind string
	}{
		{"новая временная метка", models.TagLinkScheduled},
		{"постоянная метка", models.TagNegotiating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore(tagged(overdue("old", "Antigo", "1", 35), models.TagLinkSent, 4*24*time.Hour))
			store.clearGate = make(chan struct{})
			svc := newTestCollectionService(store)

			_, err := svc.Load(context.Background())
			require.NoError(t, err)

			// метку меняют, пока фоновое снятие еще не дошло до хранилища
			require.NoError(t, svc.SetRecordTag(context.Background(), "old", tt.kind, "agent@example.com"))
			close(store.clearGate)
			svc.Wait()

			rec := store.record("old")
			assert.Equal(t, tt.kind, rec.Tag.Kind)

			state := svc.State().Members("1")
			require.Len(t, state, 1)
			assert.Equal(t, tt.kind, state[0].Tag.Kind)

			entries, err := rec.AuditEntries()
			require.NoError(t, err)
			for _, e := range entries {
				assert.NotEqual(t, models.AuditTagExpired, e.Kind)
			}
		})
	}
}

func TestSweepExpiredTags_SkipsChangedTag(t *testing.T) {
	store := newMemoryStore(tagged(overdue("old", "Antigo", "1", 35), models.TagLinkSent, 4*24*time.Hour))
	svc := newTestCollectionService(store)
	_, err := svc.Load(context.Background())
	require.NoError(t, err)
	svc.Wait()

	// запись уже очищена при загрузке, повторное снятие ничего не меняет
	cleared, err := svc.SweepExpiredTags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, cleared)

	seen := tagged(overdue("x", "X", "9", 35), models.TagLinkSent, 4*24*time.Hour).Tag
	ok, err := store.ClearExpiredTag(context.Background(), "old", seen, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoad_TagWithoutTimestampNeverExpires(t *testing.T) {
	r := overdue("r1", "Sem data", "1", 35)
	r.Tag = models.StatusTag{Kind: models.TagLinkSent}
	store := newMemoryStore(r)
	svc := newTestCollectionService(store)

	loaded, err := svc.Load(context.Background())
	require.NoError(t, err)
	svc.Wait()

	require.Len(t, loaded, 1)
	assert.Equal(t, models.TagLinkSent, loaded[0].Tag.Kind)
	assert.Equal(t, 0, store.updates)
}

func TestLoad_FailureEmptiesWorkingSet(t *testing.T) {
	store := newMemoryStore(overdue("r1", "Ana", "1", 35))
	svc := newTestCollectionService(store)

	_, err := svc.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, svc.State().Records(), 1)

	store.failList = errBoom
	_, err = svc.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBoom))
	assert.Empty(t, svc.State().Records())
}

func TestGroups_SharedTaxIDBecomesOneCard(t *testing.T) {
	a := overdue("a", "Maria Silva", "111.111.111-11", 33)
	a.CallCount = 2
	a.MessageCount = 1
	b := overdue("b", "Maria Silva", "111.111.111-11", 40)
	b.CallCount = 3
	b.Amount = decimal.RequireFromString("250.50")
	c := overdue("c", "João", "222", 35)

	svc := newTestCollectionService(newMemoryStore(a, b, c))
	_, err := svc.Load(context.Background())
	require.NoError(t, err)

	groups := svc.Groups("")
	require.Len(t, groups, 2)

	// по возрастанию дней просрочки: João (35), Maria (40)
	assert.Equal(t, "João", groups[0].Name)
	maria := groups[1]
	assert.Equal(t, "111.111.111-11", maria.Key)
	assert.Len(t, maria.Courses, 2)
	assert.Equal(t, 5, maria.CallCount)
	assert.Equal(t, 1, maria.MessageCount)
	assert.Equal(t, 40, maria.DaysOverdue)
	assert.True(t, decimal.RequireFromString("350.50").Equal(maria.TotalAmount))
}

func TestGroup_InconsistentIdentityStaysSplit(t *testing.T) {
	// одна и та же студентка: в одной записи есть CPF, в другой только email
	withTaxID := LoadedRecord{CollectionRecord: overdue("a", "Maria Silva", "111", 33), DaysOverdue: 33}
	emailOnly := LoadedRecord{CollectionRecord: overdue("b", "Maria Silva", "", 35), DaysOverdue: 35}
	nameOnly := LoadedRecord{CollectionRecord: overdue("c", "Maria Silva", "", 40), DaysOverdue: 40}
	nameOnly.Email = ""
	anonymous := LoadedRecord{CollectionRecord: models.CollectionRecord{ID: "d"}, DaysOverdue: 31}

	groups := Group([]LoadedRecord{withTaxID, emailOnly, nameOnly, anonymous})

	require.Len(t, groups, 4)
	assert.Contains(t, groups, "111")
	assert.Contains(t, groups, "maria.silva@example.com")
	assert.Contains(t, groups, "Maria Silva")
	assert.Contains(t, groups, "d")
}

func TestGroups_Search(t *testing.T) {
	svc := newTestCollectionService(newMemoryStore(
		overdue("a", "Maria Silva", "111", 33),
		overdue("b", "Pedro Souza", "222", 35),
	))
	_, err := svc.Load(context.Background())
	require.NoError(t, err)

	groups := svc.Groups("SOUZA")
	require.Len(t, groups, 1)
	assert.Equal(t, "Pedro Souza", groups[0].Name)
}

func TestApplyTagToGroup(t *testing.T) {
	store := newMemoryStore(
		overdue("a", "Maria", "111", 33),
		overdue("b", "Maria", "111", 40),
		overdue("c", "Outro", "222", 35),
	)
	svc := newTestCollectionService(store)
	_, err := svc.Load(context.Background())
	require.NoError(t, err)

	group, err := svc.ApplyTagToGroup(context.Background(), "111", models.TagLinkSent, "agent@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.TagLinkSent, group.Tag.Kind)
	assert.Equal(t, "Link enviado", group.TagLabel)

	for _, id := range []string{"a", "b"} {
		rec := store.record(id)
		assert.Equal(t, models.TagLinkSent, rec.Tag.Kind)
		require.NotNil(t, rec.Tag.AppliedAt)
		assert.Equal(t, testNow, *rec.Tag.AppliedAt)

		entries, err := rec.AuditEntries()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.AuditTag, entries[0].Kind)
		assert.Equal(t, "agent@example.com", entries[0].Actor)
	}
	assert.True(t, store.record("c").Tag.Empty())
}

func TestApplyTagToGroup_Errors(t *testing.T) {
	svc := newTestCollectionService(newMemoryStore(overdue("a", "Maria", "111", 33)))
	_, err := svc.Load(context.Background())
	require.NoError(t, err)

	_, err = svc.ApplyTagToGroup(context.Background(), "111", "desconhecido", "agent")
	assert.ErrorIs(t, err, ErrUnknownTag)

	_, err = svc.ApplyTagToGroup(context.Background(), "999", models.TagLinkSent, "agent")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestApplyTagToGroup_ClearTag(t *testing.T) {
	store := newMemoryStore(tagged(overdue("a", "Maria", "111", 33), models.TagLinkSent, time.Hour))
	svc := newTestCollectionService(store)
	_, err := svc.Load(context.Background())
	require.NoError(t, err)

	group, err := svc.ApplyTagToGroup(context.Background(), "111", "", "agent")
	require.NoError(t, err)
	assert.True(t, group.Tag.Empty())
	assert.True(t, store.record("a").Tag.Empty())
}

func TestSweepExpiredTags(t *testing.T) {
	store := newMemoryStore(
		tagged(overdue("old", "Antigo", "1", 35), models.TagLinkSent, 73*time.Hour),
		tagged(overdue("edge", "Limite", "2", 35), models.TagLinkSent, 72*time.Hour),
		tagged(overdue("perm", "Permanente", "3", 35), models.TagNegotiating, 100*24*time.Hour),
	)
	svc := newTestCollectionService(store)

	cleared, err := svc.SweepExpiredTags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)
	assert.True(t, store.record("old").Tag.Empty())
	assert.Equal(t, models.TagLinkSent, store.record("edge").Tag.Kind)
	assert.Equal(t, models.TagNegotiating, store.record("perm").Tag.Kind)
}

func TestChangesArePublished(t *testing.T) {
	store := newMemoryStore(overdue("a", "Maria", "111", 33))
	feed := database.NewMemoryChangeFeed()
	svc := NewCollectionService(store, feed, testSettings(), zap.NewNop(), utils.NewMetrics()).
		WithClock(func() time.Time { return testNow })

	var mu sync.Mutex
	var got []string
	_, err := feed.Subscribe(context.Background(), database.FeedCollectionRecords, func(ctx context.Context, collection string) {
		mu.Lock()
		got = append(got, collection)
		mu.Unlock()
	})
	require.NoError(t, err)

	_, err = svc.RegisterCall(context.Background(), "a", "agent")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{database.FeedCollectionRecords}, got)
}
