package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/khojney/quiz/internal/errors"
	"github.com/khojney/quiz/internal/session"
)

func TestLedger_RecordAndGet(t *testing.T) {
	l := session.NewLedger()

	require.Equal(t, 0, l.Size())
	_, ok := l.Get("q1")
	require.False(t, ok)

	require.NoError(t, l.Record("q1", "o2"))
	require.NoError(t, l.Record("q2", "o5"))

	got, ok := l.Get("q1")
	require.True(t, ok)
	require.Equal(t, "o2", got)
	require.Equal(t, 2, l.Size())
}

func TestLedger_DuplicateRecord(t *testing.T) {
	l := session.NewLedger()

	require.NoError(t, l.Record("q1", "o2"))
	err := l.Record("q1", "o3")
	require.True(t, errors.Is(err, errors.CodeAlreadyExists))

	got, _ := l.Get("q1")
	require.Equal(t, "o2", got, "duplicate record must not overwrite")
	require.Equal(t, 1, l.Size())
}

func TestLedger_EntriesKeepInsertionOrder(t *testing.T) {
	l := session.NewLedger()

	require.NoError(t, l.Record("q3", "a"))
	require.NoError(t, l.Record("q1", "b"))
	require.NoError(t, l.Record("q2", "c"))

	require.Equal(t, []session.LedgerEntry{
		{QuestionID: "q3", OptionID: "a"},
		{QuestionID: "q1", OptionID: "b"},
		{QuestionID: "q2", OptionID: "c"},
	}, l.Entries())
}
