// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package component

import (
	"fmt"
	"io/ioutil"
	"reflect"

	"github.com/diffeo/go-restlet/connector"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/mitchellh/mapstructure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// ServerConfig describes one server connector.
type ServerConfig struct {
	// Protocol is a protocol name or scheme, "HTTP" or "cborrpc".
	Protocol string
	// Address is a host:port or :port; empty means the protocol
	// default port on all interfaces.
	Address string
	// Parameters are passed to the connector helper.
	Parameters map[string]interface{}
}

// ClientConfig describes one client connector.  In YAML it can be
// just the protocol name.
type ClientConfig struct {
	Protocol   string
	Parameters map[string]interface{}
}

// HostConfig describes a virtual host.
type HostConfig struct {
	Name         string
	HostPatterns `mapstructure:",squash"`
}

// Config is the configuration file of a component.
//
//     servers:
//       - protocol: HTTP
//         address: ":8182"
//     clients: [HTTP, RIAP, CBOR-RPC]
//     logRequests: true
//     metrics: true
//     rateLimit: { rate: 10, burst: 20 }
type Config struct {
	Servers     []ServerConfig
	Clients     []ClientConfig
	Hosts       []HostConfig
	LogRequests bool       `mapstructure:"logRequests"`
	Metrics     bool       `mapstructure:"metrics"`
	RateLimit   *RateLimit `mapstructure:"rateLimit"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(filename string) (Config, error) {
	bytes, err := ioutil.ReadFile(filename)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(bytes)
}

// ParseConfig parses YAML configuration.
func ParseConfig(bytes []byte) (Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, err
	}
	return DecodeConfig(raw)
}

// DecodeConfig decodes an already-parsed configuration map, such as
// one section of a larger YAML file.
func DecodeConfig(raw map[string]interface{}) (Config, error) {
	var config Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       clientNameHook,
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, err
	}
	return config, nil
}

// clientNameHook lets a bare string stand for a ClientConfig.
func clientNameHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() == reflect.String && to == reflect.TypeOf(ClientConfig{}) {
		return map[string]interface{}{"protocol": data}, nil
	}
	return data, nil
}

// Services returns the application services the configuration asks
// for.  Metrics, if on, register with reg.
func (config Config) Services(reg prometheus.Registerer) Services {
	services := DefaultServices()
	services.RateLimit = config.RateLimit
	if config.Metrics {
		services.Metrics = reg
	}
	return services
}

// Configure adds the configured servers, clients and virtual hosts to
// a component that has not started.
func (c *Component) Configure(config Config) error {
	for _, sc := range config.Servers {
		var binding connector.Binding
		spec := sc.Protocol
		if sc.Address != "" {
			spec += ":" + sc.Address
		}
		if err := binding.Set(spec); err != nil {
			return fmt.Errorf("server %q: %v", spec, err)
		}
		host, port := binding.HostPort()
		server := c.AddServer(binding.Protocol, host, port)
		for k, v := range sc.Parameters {
			server.Parameters[k] = v
		}
		if config.Metrics && binding.Protocol.In(httpProtocols) {
			if _, set := server.Parameters["metrics"]; !set {
				server.Parameters["metrics"] = true
			}
		}
	}
	for _, cc := range config.Clients {
		p, known := restlet.LookupProtocol(cc.Protocol)
		if !known {
			return fmt.Errorf("unknown client protocol %q", cc.Protocol)
		}
		client := c.AddClient(p)
		for k, v := range cc.Parameters {
			client.Parameters[k] = v
		}
	}
	for _, hc := range config.Hosts {
		h, err := NewVirtualHost(c.Context.Child(logrus.Fields{"host": hc.Name}), hc.HostPatterns)
		if err != nil {
			return err
		}
		h.Name = hc.Name
		c.AddHost(h)
	}
	if config.LogRequests && c.RequestLog == nil {
		c.RequestLog = RequestLogger(logrus.StandardLogger())
	}
	return nil
}

var httpProtocols = []restlet.Protocol{restlet.HTTP, restlet.HTTPS}

// RequestLogger returns a logger writing where base does, at debug
// level.
func RequestLogger(base *logrus.Logger) *logrus.Logger {
	return &logrus.Logger{
		Out:       base.Out,
		Formatter: base.Formatter,
		Hooks:     base.Hooks,
		Level:     logrus.DebugLevel,
	}
}
