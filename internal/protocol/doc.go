// Package protocol implements the three controller operations (set, get,
// get_all) on top of the transport framing.
//
// Each operation is one request and one response on a caller-supplied
// connection. The response is merged into a locale.Store and the store is
// persisted when the merge touched a known locale.
//
// Request shapes:
//
//	{"locate": "kitchen", "value": "on", "command": "set"}
//	{"locate": "kitchen", "command": "get"}
//	{"command": "get_all"}
//
// Response shapes:
//
//	{"locate": "kitchen", "status": "on"}
//	{"locale_list": [{"locate": "kitchen", "status": "on"}, ...]}
package protocol
