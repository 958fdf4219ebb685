package model

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// eventFields has Event's layout without its JSON methods.
type eventFields Event

// eventKeys are the JSON names Event declares.
var eventKeys = map[string]bool{
	"id": true, "club": true, "event": true, "date": true,
	"time": true, "venue": true, "desc": true, "status": true,
}

// MarshalJSON writes the declared fields in order followed by Extra, sorted
// by key.
func (e Event) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(eventFields(e))
	if err != nil || len(e.Extra) == 0 {
		return data, err
	}

	keys := make([]string, 0, len(e.Extra))
	for k, v := range e.Extra {
		if eventKeys[strings.ToLower(k)] || len(v) == 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(e.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON fills the declared fields and keeps the rest in Extra.
func (e *Event) UnmarshalJSON(data []byte) error {
	var f eventFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range all {
		if eventKeys[strings.ToLower(k)] {
			delete(all, k)
		}
	}
	if len(all) == 0 {
		all = nil
	}

	f.Extra = all
	*e = Event(f)
	return nil
}
