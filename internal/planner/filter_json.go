package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dolmen-go/jsonmap"
)

// DecodeFilterJSON parses a JSON filter document keeping object keys in
// document order. Objects decode to jsonmap.Ordered, arrays to []interface{}
// and numbers to json.Number.
func DecodeFilterJSON(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	value, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode filter: trailing data after document")
	}
	return value, nil
}

func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		obj := jsonmap.Ordered{Data: map[string]interface{}{}}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key := keyTok.(string)
			value, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			if _, dup := obj.Data[key]; !dup {
				obj.Order = append(obj.Order, key)
			}
			obj.Data[key] = value
		}
		_, err := dec.Token()
		return obj, err
	case '[':
		list := []interface{}{}
		for dec.More() {
			value, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, value)
		}
		_, err := dec.Token()
		return list, err
	}
	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}
