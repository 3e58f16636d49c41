package registry

import "time"

// builtinServers is the fixed registry of built-in servers. Checked before
// the store and never scoped to a caller.
var builtinServers = map[string]*ServerDescriptor{
	"agent-assistant": {
		Name:      "agent-assistant",
		Transport: TransportDirect,
		BuiltinID: BuiltinModelBackend,
		Timeout:   60 * time.Second,
		Tools: []ToolDefinition{
			{Name: "chat", Description: "Chat with the managed model backend"},
		},
	},
	"document-fetcher": {
		Name:      "document-fetcher",
		Transport: TransportDirect,
		BuiltinID: BuiltinDocumentFetcher,
		Timeout:   30 * time.Second,
		Tools: []ToolDefinition{
			{Name: "fetch_url", Description: "Fetch and clean a web page, converting HTML to plain text"},
			{Name: "parse_llms_txt", Description: "Parse an llms.txt file and extract documentation links"},
			{Name: "fetch_documentation", Description: "Fetch multiple documentation pages from an llms.txt file"},
		},
	},
	"local-models": {
		Name:      "local-models",
		Transport: TransportDirect,
		BuiltinID: BuiltinLocalModels,
		Timeout:   120 * time.Second,
		Tools: []ToolDefinition{
			{Name: "chat", Description: "Chat with a locally installed model"},
			{Name: "list_models", Description: "List models installed on the local daemon"},
			{Name: "show_model", Description: "Show details for a locally installed model"},
		},
	},
}

// BuiltinServer returns the built-in descriptor for name, or nil.
func BuiltinServer(name string) *ServerDescriptor {
	return builtinServers[name]
}

// BuiltinServerNames returns the names of all built-in servers.
func BuiltinServerNames() []string {
	names := make([]string, 0, len(builtinServers))
	for name := range builtinServers {
		names = append(names, name)
	}
	return names
}
