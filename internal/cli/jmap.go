package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// JMap is a generic resource as returned by the api
type JMap map[string]interface{}

// idFields are checked in order to name a resource. Accounts and users have
// no id and tokens are named by their key.
var idFields = []string{"id", "username", "key"}

// ID returns the resource identifier
func (j JMap) ID() string {
	for _, field := range idFields {
		if id, ok := j[field].(string); ok {
			return id
		}
	}
	return ""
}

// String marshals into a json string
func (j JMap) String() string {
	buf, err := json.Marshal(&j)
	if err != nil {
		return ""
	}
	return string(buf)
}

// Print writes either the json string or just the id
func (j JMap) Print(w io.Writer, json bool) {
	if json {
		fmt.Fprintln(w, j)
	} else {
		fmt.Fprintln(w, j.ID())
	}
}

// JMapSlice is an array of generic resources
type JMapSlice []JMap

func (js JMapSlice) Len() int           { return len(js) }
func (js JMapSlice) Less(i, j int) bool { return js[i].ID() < js[j].ID() }
func (js JMapSlice) Swap(i, j int)      { js[j], js[i] = js[i], js[j] }
