package ledger

import (
	"math/rand"
	"testing"

	"github.com/kilupskalvis/qcat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pair(id, question string) models.QAPair {
	return models.QAPair{
		ID:             id,
		Question:       question,
		ExpectedOutput: "answer " + id,
		Contexts:       []string{},
		MetaData:       map[string]any{},
	}
}

func newPair(question string) models.NewQAPair {
	return models.NewQAPair{Question: question, ExpectedOutput: "A", Contexts: []string{}}
}

func TestStageAddition_AllocatesDistinctSyntheticIDs(t *testing.T) {
	l := New()

	id1 := l.StageAddition(newPair("Q1"))
	id2 := l.StageAddition(newPair("Q2"))

	assert.NotEqual(t, id1, id2)
	assert.True(t, models.IsSyntheticID(id1))
	assert.True(t, models.IsSyntheticID(id2))
	require.Equal(t, 2, l.Len())
	assert.Equal(t, Addition{SyntheticID: id1, Data: newPair("Q1")}, l.Changes()[0])
}

func TestStageAddition_IDsNotReusedAfterClear(t *testing.T) {
	l := New()
	id1 := l.StageAddition(newPair("Q1"))
	l.Clear()
	id2 := l.StageAddition(newPair("Q2"))

	assert.NotEqual(t, id1, id2)
}

func TestStageUpdate_NoEntryAppends(t *testing.T) {
	l := New()
	base := pair("a", "Q1")

	ok := l.StageUpdate("a", pair("a", "Q1*"), base)

	require.True(t, ok)
	assert.Equal(t, []PendingChange{
		Update{ID: "a", Data: pair("a", "Q1*"), Original: base},
	}, l.Changes())
}

func TestStageUpdate_ForcesTargetID(t *testing.T) {
	l := New()
	data := pair("other", "Q1*")

	l.StageUpdate("a", data, pair("a", "Q1"))

	c, ok := l.Entry("a")
	require.True(t, ok)
	assert.Equal(t, "a", c.(Update).Data.ID)
}

func TestStageUpdate_CoalescesKeepingOriginal(t *testing.T) {
	l := New()
	base := pair("a", "Q1")

	l.StageUpdate("a", pair("a", "first"), base)
	// A later base that differs must not replace the recorded original.
	l.StageUpdate("a", pair("a", "second"), pair("a", "something else"))

	require.Equal(t, 1, l.Len())
	assert.Equal(t, Update{ID: "a", Data: pair("a", "second"), Original: base}, l.Changes()[0])
}

func TestStageUpdate_OnDeletionIsRejected(t *testing.T) {
	l := New()
	base := pair("a", "Q1")
	l.StageDeletion("a", base)
	before := l.Changes()

	ok := l.StageUpdate("a", pair("a", "Q1*"), base)

	assert.False(t, ok)
	assert.False(t, l.CanEdit("a"))
	assert.Equal(t, before, l.Changes())
}

func TestStageUpdate_OnAdditionRewritesInPlace(t *testing.T) {
	l := New()
	first := l.StageAddition(newPair("Q1"))
	second := l.StageAddition(newPair("Q2"))

	edited := newPair("Q1 edited").WithID(first)
	edited.MetaData = map[string]any{"ignored": true}
	ok := l.StageUpdate(first, edited, models.QAPair{})

	require.True(t, ok)
	assert.Equal(t, []PendingChange{
		Addition{SyntheticID: first, Data: newPair("Q1 edited")},
		Addition{SyntheticID: second, Data: newPair("Q2")},
	}, l.Changes())
}

func TestStageDeletion_NoEntryAppends(t *testing.T) {
	l := New()
	base := pair("a", "Q1")

	l.StageDeletion("a", base)

	assert.Equal(t, []PendingChange{Deletion{ID: "a", Original: base}}, l.Changes())
}

func TestStageDeletion_AnnihilatesAddition(t *testing.T) {
	l := New()
	id := l.StageAddition(newPair("Q2"))

	l.StageDeletion(id, models.QAPair{})

	assert.True(t, l.IsEmpty())
	_, ok := l.Entry(id)
	assert.False(t, ok)
}

func TestStageDeletion_ReplacesUpdateWithPristineOriginal(t *testing.T) {
	l := New()
	base := pair("a", "Q1")
	l.StageUpdate("a", pair("a", "Q1*"), base)

	l.StageDeletion("a", pair("a", "Q1*"))

	assert.Equal(t, []PendingChange{Deletion{ID: "a", Original: base}}, l.Changes())
}

func TestStageDeletion_KeepsLedgerPosition(t *testing.T) {
	l := New()
	l.StageUpdate("a", pair("a", "Q1*"), pair("a", "Q1"))
	l.StageUpdate("b", pair("b", "Q2*"), pair("b", "Q2"))

	l.StageDeletion("a", pair("a", "Q1"))

	changes := l.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, KindDeletion, changes[0].Kind())
	assert.Equal(t, KindUpdate, changes[1].Kind())
}

func TestStageDeletion_Idempotent(t *testing.T) {
	once := New()
	once.StageDeletion("a", pair("a", "Q1"))

	twice := New()
	twice.StageDeletion("a", pair("a", "Q1"))
	twice.StageDeletion("a", pair("a", "Q1"))

	assert.Equal(t, once.Changes(), twice.Changes())
}

func TestStageDeletion_UnknownSyntheticIDIgnored(t *testing.T) {
	l := New()

	l.StageDeletion(models.SyntheticID(99), models.QAPair{})

	assert.True(t, l.IsEmpty())
}

func TestUnstage_RemovesAnyKind(t *testing.T) {
	l := New()
	added := l.StageAddition(newPair("new"))
	l.StageUpdate("b", pair("b", "Q2*"), pair("b", "Q2"))
	l.StageDeletion("c", pair("c", "Q3"))

	assert.True(t, l.Unstage("b"))
	assert.True(t, l.Unstage(added))
	assert.True(t, l.Unstage("c"))
	assert.False(t, l.Unstage("c"))
	assert.True(t, l.IsEmpty())
}

func TestUnstage_LeavesOtherEntries(t *testing.T) {
	l := New()
	l.StageUpdate("a", pair("a", "Q1*"), pair("a", "Q1"))
	l.StageDeletion("b", pair("b", "Q2"))

	l.Unstage("a")

	assert.Equal(t, []PendingChange{Deletion{ID: "b", Original: pair("b", "Q2")}}, l.Changes())
}

func TestCounts(t *testing.T) {
	l := New()
	l.StageAddition(newPair("x"))
	l.StageAddition(newPair("y"))
	l.StageUpdate("a", pair("a", "Q1*"), pair("a", "Q1"))
	l.StageDeletion("b", pair("b", "Q2"))

	c := l.Counts()
	assert.Equal(t, Counts{Additions: 2, Updates: 1, Deletions: 1}, c)
	assert.Equal(t, 4, c.Total())
}

func TestChanges_ReturnsCopies(t *testing.T) {
	l := New()
	base := pair("a", "Q1")
	base.Contexts = []string{"ctx"}
	l.StageUpdate("a", base, base)

	changes := l.Changes()
	u := changes[0].(Update)
	u.Data.Contexts[0] = "mutated"

	c, _ := l.Entry("a")
	assert.Equal(t, "ctx", c.(Update).Data.Contexts[0])
}

func TestLedger_DoesNotAliasCallerData(t *testing.T) {
	l := New()
	base := pair("a", "Q1")
	base.Contexts = []string{"ctx"}
	l.StageDeletion("a", base)

	base.Contexts[0] = "mutated"

	c, _ := l.Entry("a")
	assert.Equal(t, "ctx", c.(Deletion).Original.Contexts[0])
}

// TestLedger_RandomSequencesKeepInvariants applies random operations and
// checks that every identity occupies at most one entry and that originals
// never change once recorded.
func TestLedger_RandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := []string{"a", "b", "c", "d"}

	for run := 0; run < 200; run++ {
		l := New()
		firstOriginal := map[string]models.QAPair{}
		var synthetic []string

		for step := 0; step < 40; step++ {
			target := ids[rng.Intn(len(ids))]
			if len(synthetic) > 0 && rng.Intn(3) == 0 {
				target = synthetic[rng.Intn(len(synthetic))]
			}
			// Every call passes a different "base" so a reset of the
			// original would be visible.
			base := pair(target, "base-"+string(rune('A'+step%26)))

			switch rng.Intn(4) {
			case 0:
				synthetic = append(synthetic, l.StageAddition(newPair("new")))
			case 1:
				if _, staged := l.Entry(target); !staged {
					firstOriginal[target] = base
				}
				l.StageUpdate(target, pair(target, "edit"), base)
			case 2:
				if _, staged := l.Entry(target); !staged {
					firstOriginal[target] = base
				}
				l.StageDeletion(target, base)
			case 3:
				l.Unstage(target)
			}

			seen := map[string]bool{}
			for _, c := range l.Changes() {
				require.False(t, seen[c.Key()], "duplicate entry for %s", c.Key())
				seen[c.Key()] = true

				switch c := c.(type) {
				case Update:
					assert.Equal(t, firstOriginal[c.ID], c.Original)
				case Deletion:
					assert.Equal(t, firstOriginal[c.ID], c.Original)
				case Addition:
					assert.True(t, models.IsSyntheticID(c.SyntheticID))
				}
			}
		}
	}
}
