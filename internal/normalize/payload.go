package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Payload is the vendor push payload as delivered by the transport.
//
//	{"notification": {"title": "...", "body": "...", "tag": "...", "icon": "..."},
//	 "data": {"targetUrl": "/pickup", ...}}
type Payload struct {
	Notification *PayloadNotification `json:"notification,omitempty"`
	Data         map[string]string    `json:"data,omitempty"`
}

type PayloadNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Tag   string `json:"tag,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// Decode parses a raw payload field by field. Unknown fields are ignored and
// non-string data values keep their compact JSON text. A malformed
// "notification" or "data" member is dropped on its own and reported in the
// returned error; the rest of the payload is still returned.
func Decode(raw []byte) (Payload, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return Payload{}, fmt.Errorf("payload: %w", err)
	}

	var p Payload
	var errs error
	if v, ok := top["notification"]; ok && !isNull(v) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(v, &fields); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("notification: %w", err))
		} else {
			p.Notification = &PayloadNotification{
				Title: rawString(fields["title"]),
				Body:  rawString(fields["body"]),
				Tag:   rawString(fields["tag"]),
				Icon:  rawString(fields["icon"]),
			}
		}
	}
	if v, ok := top["data"]; ok && !isNull(v) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(v, &fields); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("data: %w", err))
		} else if len(fields) > 0 {
			p.Data = make(map[string]string, len(fields))
			for k, fv := range fields {
				if k == "" || isNull(fv) {
					continue
				}
				p.Data[k] = rawText(fv)
			}
		}
	}
	return p, errs
}

func isNull(v json.RawMessage) bool {
	t := bytes.TrimSpace(v)
	return len(t) == 0 || string(t) == "null"
}

// rawString returns v if it is a JSON string, "" otherwise.
func rawString(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

func rawText(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return strings.TrimSpace(string(v))
	}
	return buf.String()
}
