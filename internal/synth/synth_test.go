package synth

import (
	"context"
	"errors"
	"testing"

	"github.com/ldi/taskdesk/internal/llm/llmtest"
	"github.com/ldi/taskdesk/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptsPerDialect(t *testing.T) {
	pg := New(llmtest.New(), Postgres, nil)
	lite := New(llmtest.New(), SQLite, nil)

	for _, a := range models.Actions {
		p := pg.Prompt(a)
		assert.Contains(t, p, "CONTACTS Table Structure", a)
		assert.Contains(t, p, "TASKS Table Structure", a)
		assert.Contains(t, p, "PostgreSQL", a)
		assert.Contains(t, p, "Return only the SQL query", a)
		assert.Contains(t, p, "Write exactly one "+a.Verb()+" statement", a)
		assert.NotContains(t, p, "{{", a)
	}

	view := pg.Prompt(models.ActionView)
	assert.Contains(t, view, "C.NAME ILIKE 'John Doe'")
	assert.Contains(t, view, "C for CONTACTS, T for TASKS")
	assert.Contains(t, view, "T.DEADLINE < NOW()")

	view = lite.Prompt(models.ActionView)
	assert.Contains(t, view, "LOWER(C.NAME) LIKE LOWER('John Doe')")
	assert.Contains(t, view, "T.DEADLINE < CURRENT_TIMESTAMP")
	assert.NotContains(t, view, "ILIKE")
	assert.Contains(t, view, "INTEGER PRIMARY KEY AUTOINCREMENT")
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, Postgres, DialectFor("postgres"))
	assert.Equal(t, Postgres, DialectFor("ILIKE"))
	assert.Equal(t, SQLite, DialectFor("sqlite"))
	assert.Equal(t, SQLite, DialectFor(""))
}

func TestSynthesize(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"plain", "SELECT * FROM CONTACTS;", "SELECT * FROM CONTACTS;"},
		{"sql fence", "```sql\nSELECT * FROM TASKS T WHERE T.ID = 1;\n```", "SELECT * FROM TASKS T WHERE T.ID = 1;"},
		{"bare fence", "```\nUPDATE TASKS SET STATUS = 'Completed' WHERE ID = 5;\n```", "UPDATE TASKS SET STATUS = 'Completed' WHERE ID = 5;"},
		{"whitespace", "\n  SELECT 1  \n", "SELECT 1"},
		{"one line sql fence", "```sql SELECT * FROM TASKS;```", "SELECT * FROM TASKS;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(llmtest.New(tt.response), SQLite, nil)
			assert.Equal(t, tt.want, s.Synthesize(context.Background(), models.ActionView, "x"))
		})
	}
}

func TestSynthesizeUsesActionPrompt(t *testing.T) {
	fake := llmtest.New("UPDATE TASKS SET STATUS = 'Completed' WHERE ID = 5;")
	s := New(fake, SQLite, nil)

	s.Synthesize(context.Background(), models.ActionUpdate, "mark task 5 completed")

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, s.Prompt(models.ActionUpdate), calls[0].System)
	assert.Equal(t, "mark task 5 completed", calls[0].User)
}

func TestSynthesizeFailureReturnsEmpty(t *testing.T) {
	s := New(llmtest.New().Fail(errors.New("timeout")), SQLite, nil)
	assert.Equal(t, "", s.Synthesize(context.Background(), models.ActionAdd, "add contact"))
	assert.Nil(t, s.Query(context.Background(), models.ActionAdd, "add contact"))
}

func TestQuery(t *testing.T) {
	s := New(llmtest.New("SELECT 1"), SQLite, nil)

	q := s.Query(context.Background(), models.ActionView, "one")
	require.NotNil(t, q)
	assert.NotEmpty(t, q.ID)
	assert.Equal(t, models.ActionView, q.Action)
	assert.Equal(t, "one", q.Input)
	assert.Equal(t, "SELECT 1", q.SQL)
}
