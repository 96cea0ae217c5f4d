package mqtt

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "localectl"

// Topics builds localectl MQTT topics under a configurable prefix.
//
//	topics := mqtt.NewTopics("localectl")
//	topics.LocaleState("kitchen")   // localectl/state/kitchen
//	topics.LocaleCommand("kitchen") // localectl/command/kitchen
//
// Locale names and request IDs are placed in a single topic level, so the
// level separator, wildcards and '%' are percent-encoded:
//
//	topics.LocaleState("hall/upstairs") // localectl/state/hall%2Fupstairs
type Topics struct {
	Prefix string
}

// levelEscaper percent-encodes characters that may not appear literally in
// one topic level.
var levelEscaper = strings.NewReplacer(
	"%", "%25",
	"/", "%2F",
	"+", "%2B",
	"#", "%23",
	"\x00", "%00",
)

// EscapeLevel encodes s for use as one topic level.
func EscapeLevel(s string) string {
	return levelEscaper.Replace(s)
}

// UnescapeLevel reverses EscapeLevel.
func UnescapeLevel(level string) (string, error) {
	s, err := url.PathUnescape(level)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}
	return s, nil
}

// NewTopics returns a Topics builder. An empty prefix uses DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// Status is the retained online/offline topic, also used for the LWT.
//
// Example: localectl/status
func (t Topics) Status() string {
	return t.Prefix + "/status"
}

// LocaleState is the retained per-locale status topic.
//
// Example: localectl/state/kitchen
func (t Topics) LocaleState(name string) string {
	return t.Prefix + "/state/" + EscapeLevel(name)
}

// LocaleCommand is the topic clients publish set/get requests on.
//
// Example: localectl/command/kitchen
func (t Topics) LocaleCommand(name string) string {
	return t.Prefix + "/command/" + EscapeLevel(name)
}

// Response carries the reply to a command, keyed by request ID.
//
// Example: localectl/response/0b6f0c2e-...
func (t Topics) Response(requestID string) string {
	return t.Prefix + "/response/" + EscapeLevel(requestID)
}

// SyncEvent is published after each successful get_all poll.
//
// Example: localectl/event/sync
func (t Topics) SyncEvent() string {
	return t.Prefix + "/event/sync"
}

// AllLocaleCommands matches every locale command topic.
//
// Pattern: localectl/command/+
func (t Topics) AllLocaleCommands() string {
	return t.Prefix + "/command/+"
}

// AllLocaleStates matches every locale state topic.
//
// Pattern: localectl/state/+
func (t Topics) AllLocaleStates() string {
	return t.Prefix + "/state/+"
}

// LocaleFromCommand extracts and decodes the locale name from a command
// topic. It returns false if topic is not a single-level command topic or
// the level is not validly encoded.
func (t Topics) LocaleFromCommand(topic string) (string, bool) {
	level, ok := strings.CutPrefix(topic, t.Prefix+"/command/")
	if !ok || level == "" || strings.Contains(level, "/") {
		return "", false
	}
	name, err := UnescapeLevel(level)
	if err != nil || name == "" {
		return "", false
	}
	return name, true
}
