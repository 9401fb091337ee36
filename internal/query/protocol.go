package query

import (
	"github.com/tidwall/gjson"

	"mediasniff/internal/domain"
)

// Actions understood by the message protocol.
const (
	ActionGetLinks   = "getLinks"
	ActionClearLinks = "clearLinks"
	ActionAddLinks   = "addLinksFromContentScript"
)

// Message is a request in the query protocol.
type Message struct {
	Action string       `json:"action"`
	TabID  domain.TabID `json:"tabId"`
	Links  []string     `json:"links,omitempty"`
}

// LinksResponse answers getLinks.
type LinksResponse struct {
	Links []string `json:"links"`
}

// ClearResponse answers clearLinks.
type ClearResponse struct {
	Success bool `json:"success"`
}

// Decode reads a JSON message. It returns false when raw is not a JSON
// object with a string action. A missing or non-numeric tabId decodes as
// domain.NoTab, and non-string entries in links are skipped.
func Decode(raw []byte) (Message, bool) {
	if !gjson.ValidBytes(raw) {
		return Message{}, false
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Message{}, false
	}

	action := root.Get("action")
	if action.Type != gjson.String {
		return Message{}, false
	}

	msg := Message{Action: action.String(), TabID: domain.NoTab}
	if tab := root.Get("tabId"); tab.Type == gjson.Number {
		msg.TabID = domain.TabID(tab.Int())
	}
	for _, link := range root.Get("links").Array() {
		if link.Type == gjson.String {
			msg.Links = append(msg.Links, link.String())
		}
	}
	return msg, true
}
