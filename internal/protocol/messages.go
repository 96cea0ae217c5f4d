package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-locales/internal/locale"
)

// Command is the operation name carried in every request.
type Command string

// Controller commands.
const (
	CommandSet    Command = "set"
	CommandGet    Command = "get"
	CommandGetAll Command = "get_all"
)

// SetRequest asks the controller to switch a locale.
type SetRequest struct {
	Locate  string  `json:"locate"`
	Value   string  `json:"value"`
	Command Command `json:"command"`
}

// GetRequest asks the controller for one locale.
type GetRequest struct {
	Locate  string  `json:"locate"`
	Command Command `json:"command"`
}

// GetAllRequest asks the controller for every locale it knows.
type GetAllRequest struct {
	Command Command `json:"command"`
}

// NewSetRequest builds a set request. The desired value is lower-cased.
func NewSetRequest(name, desired string) SetRequest {
	return SetRequest{Locate: name, Value: strings.ToLower(desired), Command: CommandSet}
}

// NewGetRequest builds a get request.
func NewGetRequest(name string) GetRequest {
	return GetRequest{Locate: name, Command: CommandGet}
}

// NewGetAllRequest builds a get_all request.
func NewGetAllRequest() GetAllRequest {
	return GetAllRequest{Command: CommandGetAll}
}

// localeMessage is a locale as it appears on the wire. Pointers detect
// absent fields.
type localeMessage struct {
	Locate *string `json:"locate"`
	Status *string `json:"status"`
}

func (m localeMessage) toLocale() (locale.Locale, error) {
	if m.Locate == nil {
		return locale.Locale{}, fmt.Errorf("%w: locale has no locate field", ErrDecode)
	}
	if m.Status == nil {
		return locale.Locale{}, fmt.Errorf("%w: locale %q has no status field", ErrDecode, *m.Locate)
	}
	return locale.Locale{Name: *m.Locate, Status: locale.Status(*m.Status)}, nil
}

// localeListMessage is the get_all response.
type localeListMessage struct {
	LocaleList *[]localeMessage `json:"locale_list"`
}

// DecodeLocale parses a set/get response: {"locate": .., "status": ..}.
//
// The status is returned exactly as sent; normalisation happens on merge.
func DecodeLocale(body string) (locale.Locale, error) {
	var msg localeMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return locale.Locale{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return msg.toLocale()
}

// DecodeLocaleList parses a get_all response: {"locale_list": [..]}.
func DecodeLocaleList(body string) (locale.Table, error) {
	var msg localeListMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if msg.LocaleList == nil {
		return nil, fmt.Errorf("%w: response has no locale_list", ErrDecode)
	}

	table := make(locale.Table, 0, len(*msg.LocaleList))
	for i, m := range *msg.LocaleList {
		l, err := m.toLocale()
		if err != nil {
			return nil, fmt.Errorf("locale_list[%d]: %w", i, err)
		}
		table = append(table, l)
	}
	return table, nil
}
