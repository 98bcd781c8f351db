package agentapi

import (
	"encoding/json"
	"strings"
)

func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// lastPathSegment returns the final "/"-delimited component of an
// "owner/repo" short form.
func lastPathSegment(s string) string {
	parts := strings.Split(s, "/")
	return parts[len(parts)-1]
}

// repoNameFromURL derives a clone directory name from a git URL, stripping
// a trailing ".git" suffix.
func repoNameFromURL(url string) string {
	trimmed := strings.TrimSuffix(url, ".git")
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}
