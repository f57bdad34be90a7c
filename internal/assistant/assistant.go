// Package assistant runs one user turn through classification, SQL
// synthesis, validation, execution and formatting.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ldi/taskdesk/internal/classify"
	"github.com/ldi/taskdesk/internal/db"
	"github.com/ldi/taskdesk/internal/extract"
	"github.com/ldi/taskdesk/internal/format"
	"github.com/ldi/taskdesk/internal/llm"
	"github.com/ldi/taskdesk/internal/sqlguard"
	"github.com/ldi/taskdesk/internal/synth"
	"github.com/ldi/taskdesk/pkg/models"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// State is a step of the per-turn pipeline.
type State string

const (
	StateIdle                State = "idle"
	StateClassifying         State = "classifying"
	StateSynthesizing        State = "synthesizing"
	StateValidating          State = "validating"
	StateExecuting           State = "executing"
	StateFormatting          State = "formatting"
	StateExtracting          State = "extracting"
	StateAwaitingFormPrefill State = "awaiting_form_prefill"
)

var ErrNoDraft = errors.New("no task draft staged for this session")

// Store is the database surface a turn needs.
type Store interface {
	Execute(ctx context.Context, stmt string, params ...any) (*models.Result, error)
	CreateTaskForAssignee(ctx context.Context, t *models.Task, assignee string) error
}

type Classifier interface {
	ClassifyDetailed(ctx context.Context, utterance string) (models.Action, string)
}

type Synthesizer interface {
	Query(ctx context.Context, action models.Action, utterance string) *models.GeneratedQuery
}

type Extractor interface {
	Extract(ctx context.Context, description string) (models.TaskDraft, error)
}

// Reply is the outcome of one turn. State is where the turn ended: Idle
// after a query, AwaitingFormPrefill after a draft was staged. FailedIn is
// set when the turn stopped early.
type Reply struct {
	Text     string                 `json:"text"`
	State    State                  `json:"state"`
	FailedIn State                  `json:"failed_in,omitempty"`
	Action   models.Action          `json:"action,omitempty"`
	Warning  string                 `json:"warning,omitempty"`
	Query    *models.GeneratedQuery `json:"query,omitempty"`
	Result   *models.Result         `json:"result,omitempty"`
	Draft    *models.TaskDraft      `json:"draft,omitempty"`
	Err      error                  `json:"-"`
}

func (r Reply) Failed() bool { return r.FailedIn != "" }

type Deps struct {
	Store       Store
	Classifier  Classifier
	Synthesizer Synthesizer
	Extractor   Extractor
	Formatter   *format.Formatter
	Guard       sqlguard.Guard
	Sessions    *Sessions
	Logger      *zap.Logger
	Now         func() time.Time
}

type Assistant struct {
	store      Store
	classifier Classifier
	synth      Synthesizer
	extractor  Extractor
	formatter  *format.Formatter
	guard      sqlguard.Guard
	sessions   *Sessions
	logger     *zap.Logger
	now        func() time.Time
}

func New(d Deps) *Assistant {
	a := &Assistant{
		store:      d.Store,
		classifier: d.Classifier,
		synth:      d.Synthesizer,
		extractor:  d.Extractor,
		formatter:  d.Formatter,
		guard:      d.Guard,
		sessions:   d.Sessions,
		logger:     d.Logger,
		now:        d.Now,
	}
	if a.formatter == nil {
		a.formatter = format.New()
	}
	if a.sessions == nil {
		a.sessions = NewSessions()
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// NewPipeline wires the model-backed components over one completer.
func NewPipeline(c llm.Completer, store Store, dialect synth.Dialect, strict bool, logger *zap.Logger) *Assistant {
	return New(Deps{
		Store:       store,
		Classifier:  classify.New(c, logger),
		Synthesizer: synth.New(c, dialect, logger),
		Extractor:   extract.New(c, logger),
		Guard:       sqlguard.Guard{Strict: strict},
		Logger:      logger,
	})
}

func (a *Assistant) Sessions() *Sessions { return a.sessions }

var taskKeywords = []string{"add task", "create task", "new task"}

// IsTaskRequest reports whether the utterance takes the task-creation
// shortcut instead of the SQL pipeline.
func IsTaskRequest(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, k := range taskKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Handle runs one turn for the session and records both sides of it in the
// transcript. It never returns an error: failures become the reply text.
func (a *Assistant) Handle(ctx context.Context, sessionID, utterance string) Reply {
	a.sessions.Append(sessionID, RoleUser, utterance)

	state := StateIdle
	var reply Reply
	var pc panics.Catcher
	pc.Try(func() {
		reply = a.turn(ctx, sessionID, utterance, &state)
	})
	if r := pc.Recovered(); r != nil {
		a.logger.Error("turn panicked",
			zap.String("session", sessionID),
			zap.String("state", string(state)),
			zap.Any("panic", r.Value))
		reply = a.fail(state, "Something went wrong handling that request.", r.AsError())
	}

	a.sessions.Append(sessionID, RoleAssistant, reply.Text)
	return reply
}

func (a *Assistant) turn(ctx context.Context, sessionID, utterance string, state *State) Reply {
	if IsTaskRequest(utterance) {
		*state = StateExtracting
		draft, err := a.extractor.Extract(ctx, utterance)
		if err != nil {
			return a.fail(*state, "Could not parse task details from your request", err)
		}
		a.sessions.StageDraft(sessionID, draft)
		return Reply{
			Text:  fmt.Sprintf("Task details ready for %q. Review the draft and commit it to create the task.", draft.Title),
			State: StateAwaitingFormPrefill,
			Draft: &draft,
		}
	}

	*state = StateClassifying
	action, warning := a.classifier.ClassifyDetailed(ctx, utterance)

	*state = StateSynthesizing
	q := a.synth.Query(ctx, action, utterance)
	if q == nil {
		r := a.fail(*state, "Could not generate a query for that request", nil)
		r.Action, r.Warning = action, warning
		return r
	}

	*state = StateValidating
	if err := a.guard.Check(action, q.SQL); err != nil {
		a.logger.Warn("generated query rejected",
			zap.String("action", string(action)),
			zap.String("sql", q.SQL),
			zap.Error(err))
		r := a.fail(*state, "Rejected generated query: "+err.Error(), err)
		r.Action, r.Warning, r.Query = action, warning, q
		return r
	}

	*state = StateExecuting
	res, err := a.store.Execute(ctx, q.SQL)
	if err != nil {
		msg := "Could not execute query: " + err.Error()
		if errors.Is(err, db.ErrPoolExhausted) {
			msg = "The database is busy, please try again shortly"
		}
		r := a.fail(*state, msg, err)
		r.Action, r.Warning, r.Query = action, warning, q
		return r
	}

	*state = StateFormatting
	return Reply{
		Text:    a.formatter.Format(action, res),
		State:   StateIdle,
		Action:  action,
		Warning: warning,
		Query:   q,
		Result:  res,
	}
}

func (a *Assistant) fail(at State, text string, err error) Reply {
	return Reply{Text: text, State: StateIdle, FailedIn: at, Err: err}
}
