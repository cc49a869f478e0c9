// Package engine implements the completion engine sessions talk to.
//
// ModelEngine turns a session's context into a model.Request: the recall
// window becomes alternating chat turns (user turns prefixed with the
// sender's name), and the rolling summary is appended to the system prompt
// as session context. Replies are returned as generated; the session
// registry strips <think> preambles. Failed provider calls are retried with exponential
// backoff; cancellation and deadlines are not retried.
//
// # Providers
//
// NewModel resolves a ProviderConfig through a registry of constructors:
//
//	openai      OpenAI Chat Completions
//	openrouter  OpenAI-compatible, https://openrouter.ai/api/v1/
//	deepseek    OpenAI-compatible, https://api.deepseek.com/v1/
//	ollama      OpenAI-compatible, http://localhost:11434/v1/
//	anthropic   Anthropic Messages
//
// Factory wraps the registry into a session.EngineFactory so the backend is
// chosen once, when a session is created:
//
//	factory, err := engine.Factory(engine.ProviderConfig{Provider: "deepseek", APIKey: key})
//	if err != nil {
//	    return err
//	}
//	registry, err := session.New(func(o *session.Options) { o.EngineFactory = factory })
//
// # Callbacks
//
// A CallbackManager hooks every provider attempt (BeforeModel, AfterModel,
// OnError). BeforeModel callbacks may rewrite the request or veto the call;
// AfterModel callbacks may rewrite the response.
package engine
