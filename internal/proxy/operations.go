package proxy

import (
	"net/http"
	"net/url"
)

// Operation is one logical call against a bot backend.
type Operation struct {
	Name   string
	Method string
	Path   string // already escaped
	Query  url.Values
}

// Fixed bot backend operations.
var (
	Status        = Operation{Name: "status", Method: http.MethodGet, Path: "/"}
	Language      = Operation{Name: "language", Method: http.MethodGet, Path: "/language"}
	SetLanguage   = Operation{Name: "set_language", Method: http.MethodPost, Path: "/language"}
	Actions       = Operation{Name: "actions", Method: http.MethodGet, Path: "/actions"}
	AddAction     = Operation{Name: "add_action", Method: http.MethodPost, Path: "/actions"}
	Phrases       = Operation{Name: "phrases", Method: http.MethodGet, Path: "/phrases"}
	AddPhrases    = Operation{Name: "add_phrases", Method: http.MethodPost, Path: "/phrases"}
	DeletePhrases = Operation{Name: "delete_phrases", Method: http.MethodDelete, Path: "/phrases"}
	ExampleMap    = Operation{Name: "intents", Method: http.MethodGet, Path: "/example"}
	AddExample    = Operation{Name: "add_example", Method: http.MethodPost, Path: "/example"}
	DeleteExample = Operation{Name: "delete_example", Method: http.MethodDelete, Path: "/example"}
	Handle        = Operation{Name: "handle", Method: http.MethodPost, Path: "/handle"}
	AskExplain    = Operation{Name: "explain", Method: http.MethodPost, Path: "/explain"}
)

// Examples lists the examples trained for one intent.
func Examples(intent string) Operation {
	return Operation{Name: "examples", Method: http.MethodGet, Path: "/example/" + url.PathEscape(intent)}
}

// Explain asks the bot which intent it would resolve query to, with the
// query in the URL. AskExplain is the same call with a {"query": ...} body.
func Explain(query string) Operation {
	return Operation{Name: "explain", Method: http.MethodGet, Path: "/explain", Query: url.Values{"query": {query}}}
}
