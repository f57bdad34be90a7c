// Package synth turns an utterance and its action into one SQL statement
// using few-shot prompt templates.
package synth

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"github.com/ldi/taskdesk/embed/prompts"
	"github.com/ldi/taskdesk/internal/jsonx"
	"github.com/ldi/taskdesk/internal/llm"
	"github.com/ldi/taskdesk/pkg/models"
	"go.uber.org/zap"
)

// Dialect selects the engine name and case-insensitive match operator the
// prompts teach the model.
type Dialect struct {
	Engine   string
	Postgres bool
}

var (
	Postgres = Dialect{Engine: "PostgreSQL", Postgres: true}
	SQLite   = Dialect{Engine: "SQLite"}
)

// DialectFor maps a database driver or match style name to a Dialect.
// "postgres", "postgresql", "pgx" and "ilike" select Postgres; anything
// else is SQLite.
func DialectFor(name string) Dialect {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx", "ilike":
		return Postgres
	}
	return SQLite
}

// Match renders a case-insensitive comparison of column against a quoted
// SQL literal.
func (d Dialect) Match(column, literal string) string {
	if d.Postgres {
		return column + " ILIKE " + literal
	}
	return "LOWER(" + column + ") LIKE LOWER(" + literal + ")"
}

// Now is the engine's current-timestamp expression.
func (d Dialect) Now() string {
	if d.Postgres {
		return "NOW()"
	}
	return "CURRENT_TIMESTAMP"
}

type Synthesizer struct {
	llm     llm.Completer
	dialect Dialect
	prompts map[models.Action]string
	logger  *zap.Logger
}

func New(c llm.Completer, d Dialect, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		llm:     c,
		dialect: d,
		prompts: renderPrompts(d),
		logger:  logger,
	}
}

func renderPrompts(d Dialect) map[models.Action]string {
	tmpl := template.Must(template.New("sql").
		Funcs(template.FuncMap{"match": d.Match}).
		ParseFS(prompts.SQL, "sql/*.tmpl"))

	data := struct {
		Dialect
		Now string
	}{d, d.Now()}

	out := make(map[models.Action]string, len(models.Actions))
	for _, a := range models.Actions {
		var buf bytes.Buffer
		if err := tmpl.ExecuteTemplate(&buf, string(a)+".tmpl", data); err != nil {
			panic(fmt.Sprintf("synth: render %s prompt: %v", a, err))
		}
		out[a] = buf.String()
	}
	return out
}

// Prompt returns the system prompt used for action.
func (s *Synthesizer) Prompt(action models.Action) string {
	if p, ok := s.prompts[action]; ok {
		return p
	}
	return s.prompts[models.ActionView]
}

// Synthesize asks the model for one statement implementing utterance and
// strips any code fence around it. It returns "" on any failure; callers
// treat that as nothing to execute.
func (s *Synthesizer) Synthesize(ctx context.Context, action models.Action, utterance string) string {
	out, err := s.llm.Complete(ctx, s.Prompt(action), utterance)
	if err != nil {
		s.logger.Warn("sql generation failed", zap.String("action", string(action)), zap.Error(err))
		return ""
	}
	return jsonx.StripFences(out)
}

// Query is Synthesize wrapped in a GeneratedQuery, or nil when nothing was
// produced.
func (s *Synthesizer) Query(ctx context.Context, action models.Action, utterance string) *models.GeneratedQuery {
	sql := s.Synthesize(ctx, action, utterance)
	if sql == "" {
		return nil
	}
	return &models.GeneratedQuery{
		ID:     uuid.NewString(),
		Action: action,
		Input:  utterance,
		SQL:    sql,
	}
}
