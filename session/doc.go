// Package session implements the session registry: a map from core.SessionID
// to a per-session Agent holding conversation memory and the completion
// engine chosen when the session was created.
//
// The registry lock only guards insert, lookup and delete. Content mutation
// and completion calls run under the Agent's own lock, so unrelated sessions
// never serialize against each other while requests for one session are
// applied strictly one at a time. When both locks are needed the Agent lock
// is taken first.
//
// Removal (by the reaper or an explicit Remove) takes the Agent lock before
// deleting the map entry. A request that raced a removal notices the
// tombstoned Agent and retries against a freshly created one, which starts
// with empty memory.
package session
