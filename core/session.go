package core

import (
	"fmt"
	"strconv"
	"strings"
)

// ChannelKind names the category of front-end adapter a session belongs to.
// Outbound responses are demultiplexed by kind so an adapter never observes
// another channel's traffic.
type ChannelKind string

const (
	// ChannelDiscord is a chat platform gateway keyed by a numeric channel handle.
	ChannelDiscord ChannelKind = "discord"
	// ChannelHTTP is the WebSocket/web UI channel keyed by an opaque token.
	ChannelHTTP ChannelKind = "http"
	// ChannelAPI is the synchronous JSON API channel keyed by an opaque token.
	ChannelAPI ChannelKind = "api"
)

// ChannelKinds returns every known channel kind.
func ChannelKinds() []ChannelKind {
	return []ChannelKind{ChannelDiscord, ChannelHTTP, ChannelAPI}
}

// Valid reports whether k is a known channel kind.
func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelDiscord, ChannelHTTP, ChannelAPI:
		return true
	default:
		return false
	}
}

// SessionID identifies one conversation on one channel. It is comparable, so
// equality and map hashing are defined over (Kind, Key).
type SessionID struct {
	Kind ChannelKind
	Key  string
}

// DiscordSession returns the session for a Discord channel.
func DiscordSession(channelID uint64) SessionID {
	return SessionID{Kind: ChannelDiscord, Key: strconv.FormatUint(channelID, 10)}
}

// HTTPSession returns the session for a web (WebSocket) client token.
func HTTPSession(token string) SessionID {
	return SessionID{Kind: ChannelHTTP, Key: token}
}

// APISession returns the session for an API client token.
func APISession(token string) SessionID {
	return SessionID{Kind: ChannelAPI, Key: token}
}

// ChannelKind returns the kind used to route responses for this session.
func (s SessionID) ChannelKind() ChannelKind { return s.Kind }

// IsZero reports whether s is the zero SessionID.
func (s SessionID) IsZero() bool { return s.Kind == "" && s.Key == "" }

// String renders the session as "kind:key".
func (s SessionID) String() string { return string(s.Kind) + ":" + s.Key }

// Validate reports whether s can be routed and round-tripped through its
// string form.
func (s SessionID) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("invalid session id %q: %w: %q", s.String(), ErrUnknownChannel, s.Kind)
	}
	if s.Kind == ChannelDiscord {
		if _, err := strconv.ParseUint(s.Key, 10, 64); err != nil {
			return fmt.Errorf("invalid session id %q: discord key must be numeric", s.String())
		}
	}
	return nil
}

// ParseSessionID parses the "kind:key" form produced by String.
func ParseSessionID(v string) (SessionID, error) {
	kind, key, ok := strings.Cut(v, ":")
	if !ok {
		return SessionID{}, fmt.Errorf("invalid session id %q: missing kind separator", v)
	}
	id := SessionID{Kind: ChannelKind(kind), Key: key}
	if err := id.Validate(); err != nil {
		return SessionID{}, err
	}
	return id, nil
}

// MarshalText implements encoding.TextMarshaler.
func (s SessionID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SessionID) UnmarshalText(b []byte) error {
	id, err := ParseSessionID(string(b))
	if err != nil {
		return err
	}
	*s = id
	return nil
}
