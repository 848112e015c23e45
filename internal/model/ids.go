package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ChildRef is a child identifier as carried by push events. The channel
// may deliver it as a JSON string or a number; it is always kept as a string.
type ChildRef string

// UnmarshalJSON accepts both "7" and 7.
func (r *ChildRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = ChildRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = ChildRef(n.String())
	return nil
}

// String returns the identifier text
func (r ChildRef) String() string {
	return string(r)
}

// RefFromID converts a REST child id into an event reference
func RefFromID(id int64) ChildRef {
	return ChildRef(strconv.FormatInt(id, 10))
}
