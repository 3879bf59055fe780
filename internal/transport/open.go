package transport

import (
	"errors"
	"strings"

	logx "github.com/Bew090/projectlocker/pkg/logx"
)

// Open picks a transport from the endpoint scheme. An empty endpoint means no
// transport: (nil, nil).
func Open(o Options, log logx.Logger) (Transport, error) {
	ep := strings.TrimSpace(o.Endpoint)
	if ep == "" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	scheme, _, ok := strings.Cut(ep, "://")
	if !ok {
		return nil, errors.New("transport endpoint has no scheme: " + ep)
	}
	log = log.With(logx.String("comp", "transport"))

	switch strings.ToLower(scheme) {
	case "memory", "chan":
		return NewChannel(0), nil
	case "redis", "rediss":
		o.Endpoint = ep
		return NewRedis(o, log.With(logx.String("transport", "redis")))
	case "kafka":
		o.Endpoint = ep
		return NewKafka(o, log.With(logx.String("transport", "kafka")))
	default:
		return nil, errors.New("unknown transport scheme: " + scheme)
	}
}
