// Package llmtest provides a scripted llm.Completer for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrExhausted is returned when a Fake has no scripted reply left.
var ErrExhausted = errors.New("llmtest: no scripted reply")

type Reply struct {
	Text string
	Err  error
}

type Call struct {
	System string
	User   string
}

type rule struct {
	substr string
	reply  Reply
}

// Fake answers from rules matched against the system prompt first, then from
// a FIFO queue of replies.
type Fake struct {
	mu    sync.Mutex
	rules []rule
	queue []Reply
	calls []Call
}

func New(replies ...string) *Fake {
	f := &Fake{}
	for _, r := range replies {
		f.Push(r)
	}
	return f
}

// Push queues a text reply.
func (f *Fake) Push(text string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, Reply{Text: text})
	return f
}

// Fail queues an error reply.
func (f *Fake) Fail(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, Reply{Err: err})
	return f
}

// On answers text whenever the system prompt contains substr.
func (f *Fake) On(substr, text string) *Fake {
	return f.OnReply(substr, Reply{Text: text})
}

func (f *Fake) OnReply(substr string, r Reply) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{substr: substr, reply: r})
	return f
}

func (f *Fake) Complete(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{System: system, User: user})

	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, r := range f.rules {
		if strings.Contains(system, r.substr) {
			return r.reply.Text, r.reply.Err
		}
	}
	if len(f.queue) == 0 {
		return "", ErrExhausted
	}
	r := f.queue[0]
	f.queue = f.queue[1:]
	return r.Text, r.Err
}

// Calls returns every request received so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
