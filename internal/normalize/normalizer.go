// Package normalize turns vendor push payloads into notification intents.
//
// Normalization is total: every missing or malformed field is replaced by a
// documented default, so the rest of the pipeline never sees an empty tag,
// title or body.
package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/Bew090/projectlocker/internal/notification"
	logx "github.com/Bew090/projectlocker/pkg/logx"
)

const (
	DefaultTag       = "default-notification"
	DefaultTargetURL = "/"

	// legacyURLKey is accepted as an alias for targetUrl.
	legacyURLKey = "url"
)

// Options override the built-in defaults. Empty fields keep the defaults.
type Options struct {
	Locale           string
	DefaultTitle     string
	DefaultBody      string
	DefaultTag       string
	DefaultTargetURL string
}

type Normalizer struct {
	texts     Texts
	tag       string
	targetURL string
	now       func() time.Time
	log       logx.Logger
}

func New(opts Options, log logx.Logger) *Normalizer {
	if log.IsZero() {
		log = logx.Nop()
	}
	texts := DefaultTexts(opts.Locale)
	if s := strings.TrimSpace(opts.DefaultTitle); s != "" {
		texts.Title = s
	}
	if s := strings.TrimSpace(opts.DefaultBody); s != "" {
		texts.Body = s
	}
	n := &Normalizer{
		texts:     texts,
		tag:       DefaultTag,
		targetURL: DefaultTargetURL,
		now:       time.Now,
		log:       log,
	}
	if s := strings.TrimSpace(opts.DefaultTag); s != "" {
		n.tag = s
	}
	if s := strings.TrimSpace(opts.DefaultTargetURL); s != "" {
		n.targetURL = s
	}
	return n
}

// WithClock replaces the ingest clock (tests).
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	if now != nil {
		n.now = now
	}
	return n
}

// NormalizeRaw decodes and normalizes raw. Malformed parts are logged and
// replaced by their defaults; well-formed parts are kept.
func (n *Normalizer) NormalizeRaw(raw []byte) notification.Intent {
	p, err := Decode(raw)
	if err != nil {
		n.log.Debug("malformed payload; defaults used for bad fields",
			logx.Err(notification.NewError(notification.KindMalformedPayload, "decode", "", err)),
			logx.Int("bytes", len(raw)))
	}
	return n.Normalize(p)
}

// Normalize never fails.
//
// Data is built from engine defaults (timestamp, targetUrl) first; vendor data
// is merged on top, so reserved keys change only when the vendor supplies them.
func (n *Normalizer) Normalize(p Payload) notification.Intent {
	now := n.now()

	var title, body, tag, icon string
	if p.Notification != nil {
		title = strings.TrimSpace(p.Notification.Title)
		body = strings.TrimSpace(p.Notification.Body)
		tag = strings.TrimSpace(p.Notification.Tag)
		icon = strings.TrimSpace(p.Notification.Icon)
	}
	if title == "" {
		title = n.texts.Title
	}
	if body == "" {
		body = n.texts.Body
	}
	if tag == "" {
		tag = n.tag
	}

	data := make(map[string]string, len(p.Data)+2)
	data[notification.DataTimestamp] = strconv.FormatInt(now.UnixMilli(), 10)
	data[notification.DataTargetURL] = n.targetURL
	if u := strings.TrimSpace(p.Data[legacyURLKey]); u != "" {
		if _, ok := p.Data[notification.DataTargetURL]; !ok {
			data[notification.DataTargetURL] = u
		}
	}
	for k, v := range p.Data {
		data[k] = v
	}
	if strings.TrimSpace(data[notification.DataTimestamp]) == "" {
		data[notification.DataTimestamp] = strconv.FormatInt(now.UnixMilli(), 10)
	}
	if strings.TrimSpace(data[notification.DataTargetURL]) == "" {
		data[notification.DataTargetURL] = n.targetURL
	}

	return notification.Intent{
		Tag:        tag,
		Title:      title,
		Body:       body,
		Icon:       icon,
		Data:       data,
		ReceivedAt: now,
	}
}
