// Package discovery advertises the dashboard endpoint over mDNS so browsers
// and tools on the field network can find it.
package discovery

import (
	"fmt"
	"github.com/grandcat/zeroconf"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"os"
	"sync"
)

const (
	ServiceType   = "_seanboard._tcp"
	ServiceDomain = "local."
)

type server interface {
	Shutdown()
}

// to allow testing
var register = func(instance, service, domain string, port int, text []string) (server, error) {
	return zeroconf.Register(instance, service, domain, port, text, nil)
}

type Advertiser struct {
	instance string
	port     int
	text     []string

	mu     sync.Mutex
	server server
}

// NewAdvertiser describes the service. An empty instance name is derived from
// the hostname.
func NewAdvertiser(instance string, port int, path string) *Advertiser {
	if instance == "" {
		hostname, _ := os.Hostname()
		instance = fmt.Sprintf("%s-seanboard", hostname)
	}
	return &Advertiser{
		instance: instance,
		port:     port,
		text: []string{
			"path=" + path,
			"name=seanboard",
		},
	}
}

func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return nil
	}
	srv, err := register(a.instance, ServiceType, ServiceDomain, a.port, a.text)
	if err != nil {
		return errors.Wrapf(err, "unable to advertise %s", a.instance)
	}
	a.server = srv
	log.WithField("instance", a.instance).
		WithField("port", a.port).
		Info("advertising service over mDNS")
	return nil
}

func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	log.WithField("instance", a.instance).Info("stopped mDNS advertisement")
}
