package domain

// TabID identifies a browser tab. The sniffer hands out non-negative ids;
// anything below zero means the traffic could not be tied to an open tab.
type TabID int64

// NoTab marks events that do not belong to a live tab.
const NoTab TabID = -1

// Valid reports whether the id can own registry entries.
func (t TabID) Valid() bool { return t >= 0 }

// Header is a single HTTP response header as reported by the browser.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Tab describes an open tab known to the sniffer.
type Tab struct {
	ID  TabID  `json:"id"`
	URL string `json:"url"`
}

// Event is anything the observation source reports to the intake loop.
type Event interface {
	// TabID returns the tab the event belongs to.
	TabID() TabID
}

// RequestStarted is emitted when a request is about to be sent. Only the URL
// is known at this point.
type RequestStarted struct {
	Tab TabID
	URL string
}

// HeadersReceived is emitted once the response headers for a request arrive.
type HeadersReceived struct {
	Tab     TabID
	URL     string
	Headers []Header
}

// PageMedia carries the sources of media elements found in a rendered page.
type PageMedia struct {
	Tab   TabID
	Links []string
}

// TabClosed is emitted when a tab goes away.
type TabClosed struct {
	Tab TabID
}

func (e RequestStarted) TabID() TabID  { return e.Tab }
func (e HeadersReceived) TabID() TabID { return e.Tab }
func (e PageMedia) TabID() TabID       { return e.Tab }
func (e TabClosed) TabID() TabID       { return e.Tab }
