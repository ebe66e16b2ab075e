package pipe

import (
	"crypto/tls"
	"time"

	"github.com/raskyld/pipe/pkg/transport"
)

// Transport builds endpoints of one [Variant] from a source locator.
type Transport struct {
	Variant Variant
	Open    func(source string) (transport.Channel, error)
}

// Dedicated starts one private worker per source. This is the default
// transport.
func Dedicated(rt *transport.Runtime) Transport {
	return Transport{
		Variant: VariantPointToPoint,
		Open: func(source string) (transport.Channel, error) {
			return transport.NewWorker(rt, source)
		},
	}
}

// Shared connects to the hub running the source for the whole runtime.
func Shared(rt *transport.Runtime) Transport {
	return Transport{
		Variant: VariantFanOut,
		Open: func(source string) (transport.Channel, error) {
			sw, err := transport.NewSharedWorker(rt, source)
			if err != nil {
				return nil, err
			}
			return sw.Port(), nil
		},
	}
}

// QUIC dials the source as a `host:port` address served by
// [transport.ServeQUIC]. The dial runs in the background so requests never
// wait for the handshake; a failed dial closes the endpoint and the next
// request dials again.
func QUIC(tlsConf *tls.Config, dialTimeout time.Duration) Transport {
	if dialTimeout == 0 {
		dialTimeout = 30 * time.Second
	}
	return Transport{
		Variant: VariantPointToPoint,
		Open: func(source string) (transport.Channel, error) {
			return transport.NewRemoteWorker(source, tlsConf, dialTimeout)
		},
	}
}
