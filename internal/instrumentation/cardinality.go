package instrumentation

// UnknownToolLabel is the metric label used for tool names the registry does
// not know. Model-invented names would otherwise each create a new series.
const UnknownToolLabel = "unknown"

// ToolLabel returns name when the tool is registered and UnknownToolLabel
// otherwise.
func ToolLabel(name string, registered bool) string {
	if !registered || name == "" {
		return UnknownToolLabel
	}
	return name
}

// StatusFor maps an error onto the success/error label.
func StatusFor(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
