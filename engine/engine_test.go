package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vizier/core"
	"github.com/hupe1980/vizier/model"
)

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	args := m.Called(ctx, req)

	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	if err := args.Error(1); err != nil {
		errCh <- err
	} else {
		respCh <- args.Get(0).(model.Response)
	}

	close(respCh)
	close(errCh)

	return respCh, errCh
}

func (m *mockModel) Info() model.Info { return model.Info{Name: "mock", Provider: "test"} }

func fastRetries(o *Options) {
	o.InitialBackoff = time.Millisecond
}

func TestModelEngine_ChatRendersContext(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return len(req.Messages) == 3 &&
			req.Messages[0] == model.Message{Role: model.RoleUser, Content: "ada: hi"} &&
			req.Messages[1] == model.Message{Role: model.RoleAssistant, Content: "hello ada"} &&
			req.Messages[2] == model.Message{Role: model.RoleUser, Content: "bob: who is ada?"}
	})).Return(model.Response{Text: "<think>\nhmm\n</think>\nAda is a person."}, nil).Once()

	e := New(m)

	req := core.NewRequest("bob", "who is ada?")
	reply, err := e.Chat(context.Background(), core.SessionContext{
		Session: core.HTTPSession("s"),
		Recall: []core.Memory{
			{Sender: "ada", Content: "hi"},
			{Sender: "assistant", Content: "hello ada", IsAgent: true},
			{Sender: "bob", Content: "who is ada?"},
		},
	}, req)
	require.NoError(t, err)
	assert.Equal(t, "<think>\nhmm\n</think>\nAda is a person.", reply)

	m.AssertExpectations(t)
}

func TestModelEngine_ChatAppendsRequestMissingFromRecall(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return len(req.Messages) == 1 && req.Messages[0].Content == "ada: hi"
	})).Return(model.Response{Text: "hey"}, nil).Once()

	reply, err := New(m).Chat(context.Background(), core.SessionContext{}, core.NewRequest("ada", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "hey", reply)

	m.AssertExpectations(t)
}

func TestModelEngine_SummaryInInstructions(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return req.Instructions == "be nice\n\n## Context\n\nContext for our current session: ada likes tea"
	})).Return(model.Response{Text: "ok"}, nil).Once()

	e := New(m, func(o *Options) { o.Instruction = "be nice" })

	_, err := e.Chat(context.Background(), core.SessionContext{Summary: "ada likes tea"}, core.NewRequest("ada", "tea?"))
	require.NoError(t, err)

	m.AssertExpectations(t)
}

func TestModelEngine_InstructionTemplate(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return req.Instructions == "You are chatting with ada on discord."
	})).Return(model.Response{Text: "ok"}, nil).Once()

	e := New(m, func(o *Options) { o.Instruction = "You are chatting with {{.Sender}} on {{.Channel}}." })

	_, err := e.Chat(context.Background(), core.SessionContext{Session: core.DiscordSession(7)}, core.NewRequest("ada", "hi"))
	require.NoError(t, err)

	m.AssertExpectations(t)
}

func TestModelEngine_BrokenTemplateFallsBackToRawText(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return req.Instructions == "hello {{.Sender"
	})).Return(model.Response{Text: "ok"}, nil).Once()

	e := New(m, func(o *Options) { o.Instruction = "hello {{.Sender" })

	_, err := e.Chat(context.Background(), core.SessionContext{}, core.NewRequest("ada", "hi"))
	require.NoError(t, err)

	m.AssertExpectations(t)
}

func TestModelEngine_RetriesTransientFailures(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.Anything).Return(model.Response{}, errors.New("503")).Twice()
	m.On("Generate", mock.Anything, mock.Anything).Return(model.Response{Text: "finally"}, nil).Once()

	reply, err := New(m, fastRetries).Chat(context.Background(), core.SessionContext{}, core.NewRequest("u", "q"))
	require.NoError(t, err)
	assert.Equal(t, "finally", reply)

	m.AssertNumberOfCalls(t, "Generate", 3)
}

func TestModelEngine_GivesUpAfterMaxRetries(t *testing.T) {
	boom := errors.New("503")

	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.Anything).Return(model.Response{}, boom)

	_, err := New(m, fastRetries, func(o *Options) { o.MaxRetries = 1 }).
		Chat(context.Background(), core.SessionContext{}, core.NewRequest("u", "q"))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "test/mock after 2 attempt(s)")

	m.AssertNumberOfCalls(t, "Generate", 2)
}

func TestModelEngine_DoesNotRetryContextErrors(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.Anything).Return(model.Response{}, context.DeadlineExceeded)

	_, err := New(m, fastRetries).Chat(context.Background(), core.SessionContext{}, core.NewRequest("u", "q"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	m.AssertNumberOfCalls(t, "Generate", 1)
}

func TestModelEngine_Summarize(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		if len(req.Messages) != 1 {
			return false
		}

		return containsAll(req.Messages[0].Content, DefaultSummaryPrompt, "Earlier context: old", `- ada: "hi"`, `- assistant: "hello"`)
	})).Return(model.Response{Text: "  ada said hi  "}, nil).Once()

	summary, err := New(m).Summarize(context.Background(), core.SessionContext{
		Summary: "old",
		Recall: []core.Memory{
			{Sender: "ada", Content: "hi"},
			{Sender: "assistant", Content: "hello", IsAgent: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ada said hi", summary)

	m.AssertExpectations(t)
}

func TestModelEngine_Callbacks(t *testing.T) {
	m := new(mockModel)
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return req.Instructions == DefaultInstruction+"\nAnswer briefly."
	})).Return(model.Response{Text: "raw"}, nil).Once()

	cbs := NewCallbackManager()
	cbs.RegisterCallback(NewFunctionCallback(CallbackBeforeModel, func(_ context.Context, cc *CallbackContext) error {
		cc.Request.Instructions += "\nAnswer briefly."
		return nil
	}))
	cbs.RegisterCallback(NewFunctionCallback(CallbackAfterModel, func(_ context.Context, cc *CallbackContext) error {
		cc.Response.Text = "rewritten"
		return nil
	}))
	cbs.RegisterCallback(NewLoggingCallback(CallbackAfterModel, nil))

	reply, err := New(m, func(o *Options) { o.Callbacks = cbs }).
		Chat(context.Background(), core.SessionContext{}, core.NewRequest("u", "q"))
	require.NoError(t, err)
	assert.Equal(t, "rewritten", reply)

	m.AssertExpectations(t)
}

func TestModelEngine_BeforeCallbackVeto(t *testing.T) {
	m := new(mockModel)
	veto := errors.New("blocked")

	cbs := NewCallbackManager()
	cbs.RegisterCallback(NewFunctionCallback(CallbackBeforeModel, func(context.Context, *CallbackContext) error {
		return veto
	}))

	_, err := New(m, fastRetries, func(o *Options) { o.Callbacks = cbs }).
		Chat(context.Background(), core.SessionContext{}, core.NewRequest("u", "q"))
	assert.ErrorIs(t, err, veto)

	m.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}

	return true
}
