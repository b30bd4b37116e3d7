// Package socketio provides SocketIOSinkCalculator, which forwards the
// packets of its input streams as Socket.IO events.
package socketio

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const (
	// Name is the registered calculator type.
	Name = "SocketIOSinkCalculator"
	// Extension names the legacy options block.
	Extension = "SocketIOSinkOptions.ext"
	// TypeURL names the typed node_options block.
	TypeURL = "type.googleapis.com/streamgrid.SocketIOSinkOptions"

	defaultEvent   = "packet"
	defaultTimeout = 15 * time.Second
)

// OptionsType is the cty type of SocketIOSinkOptions.
var OptionsType = cty.ObjectWithOptionalAttrs(map[string]cty.Type{
	"url":                  cty.String,
	"namespace":            cty.String,
	"event":                cty.String,
	"insecure_skip_verify": cty.Bool,
	"timeout":              cty.String,
}, []string{"namespace", "event", "insecure_skip_verify", "timeout"})

// Options are the decoded SocketIOSinkOptions.
type Options struct {
	URL                string  `cty:"url"`
	Namespace          *string `cty:"namespace"`
	Event              *string `cty:"event"`
	InsecureSkipVerify *bool   `cty:"insecure_skip_verify"`
	Timeout            *string `cty:"timeout"`
}

// Module implements the registry.Module interface for this package.
type Module struct{}

// Calculator emits one event per input packet.
type Calculator struct {
	calculator.Base
	io    *socket.Socket
	event string
}

// GetContract accepts any number of inputs of any type.
func GetContract(c *calculator.Contract) error {
	if c.Inputs().Len() == 0 {
		return errors.New("SocketIOSinkCalculator needs at least one input stream")
	}
	if c.Outputs().Len() != 0 {
		return errors.New("SocketIOSinkCalculator has no output streams")
	}
	for _, in := range c.Inputs().All() {
		in.SetAny().Optional()
	}
	return nil
}

// Open connects to the server and waits for the connect event.
func (s *Calculator) Open(cc *calculator.Context) error {
	var opts Options
	if err := cc.DecodeOptions(&opts); err != nil {
		return err
	}
	s.event = defaultEvent
	if opts.Event != nil && *opts.Event != "" {
		s.event = *opts.Event
	}
	timeout := defaultTimeout
	if opts.Timeout != nil {
		d, err := time.ParseDuration(*opts.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", *opts.Timeout, err)
		}
		timeout = d
	}
	target, err := parseURL(opts.URL)
	if err != nil {
		return err
	}

	logger := cc.Logger().With("calculator", Name, "url", opts.URL)
	sopts := socket.DefaultOptions()
	sopts.SetPath(target.Path)
	if opts.InsecureSkipVerify != nil && *opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	namespace := "/"
	if opts.Namespace != nil && *opts.Namespace != "" {
		namespace = *opts.Namespace
	}
	manager := socket.NewManager(fmt.Sprintf("%s://%s", target.Scheme, target.Host), sopts)
	io := manager.Socket(namespace, sopts)

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(args ...any) {
		err := errors.New("connect_error")
		if len(args) > 0 {
			if e, ok := args[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})
	io.Connect()

	ctx, cancel := context.WithTimeout(cc.Context(), timeout)
	defer cancel()
	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return fmt.Errorf("waiting for socket.io connection: %w", ctx.Err())
	}
	logger.Info("Connected.", "sid", io.Id())
	s.io = io
	return nil
}

// Process emits every packet present at the input timestamp.
func (s *Calculator) Process(cc *calculator.Context) error {
	ts := cc.InputTimestamp()
	for _, port := range cc.InputTags().Entries() {
		p := cc.Input(port.Tag, port.Index)
		if p.IsEmpty() {
			continue
		}
		if err := s.io.Emit(s.event, Payload(port.Name, p)); err != nil {
			return fmt.Errorf("emitting %q at %s: %w", s.event, ts, err)
		}
	}
	return nil
}

// Close disconnects from the server.
func (s *Calculator) Close(cc *calculator.Context) error {
	if s.io != nil {
		cc.Logger().Info("Disconnecting.", "calculator", Name, "sid", s.io.Id())
		s.io.Disconnect()
		s.io = nil
	}
	return nil
}

// Payload is the event body sent for packet p of the named stream.
// Payloads without a plain JSON form are sent as their string rendering.
func Payload(stream string, p packet.Packet) map[string]any {
	var value any
	switch p.Kind() {
	case packet.KindString, packet.KindBool, packet.KindInt, packet.KindFloat, packet.KindUint64,
		packet.KindStringList, packet.KindBoolList, packet.KindIntList, packet.KindFloatList:
		value = p.Value()
	default:
		value = p.String()
	}
	return map[string]any{
		"stream":    stream,
		"timestamp": p.Timestamp().Microseconds(),
		"type":      p.TypeName(),
		"value":     value,
	}
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q in %q", u.Scheme, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("URL %q has no host", raw)
	}
	return u, nil
}

// Register registers the calculator with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterCalculator(&registry.Registration{
		Name:        Name,
		GetContract: GetContract,
		New:         func() calculator.Calculator { return &Calculator{} },
		Options: &registry.OptionsSpec{
			Extension: Extension,
			TypeURL:   TypeURL,
			Type:      OptionsType,
		},
	})
}
