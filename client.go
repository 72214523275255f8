package kafka

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// brokerKey is the (host, port) identity a Client's broker pool is
// keyed by, spec.md §3 "Connection key".
type brokerKey struct {
	Host string
	Port int32
}

func (k brokerKey) less(other brokerKey) bool {
	if k.Host != other.Host {
		return k.Host < other.Host
	}
	return k.Port < other.Port
}

// ErrMetadataRefreshFailed is raised by AskForMetadata when every known
// connection failed to answer (spec.md §4.F, §7).
var ErrMetadataRefreshFailed = errors.New("kafka: metadata refresh failed, no broker responded")

// Client is the connection manager of spec.md §4.F: a pool of framed
// connections keyed by (host, port), with ordered send admission and a
// serial pending-work chain for disconnect side effects.
type Client struct {
	requestTimeout time.Duration
	clientID       string

	mu      sync.Mutex
	brokers map[brokerKey]*Broker

	admissionMu sync.Mutex

	work     chan func()
	workOnce sync.Once
}

// NewClient constructs a connection manager. Callers must call Start
// once before issuing sends.
func NewClient(requestTimeout time.Duration, clientID string) *Client {
	c := &Client{
		requestTimeout: requestTimeout,
		clientID:       clientID,
		brokers:        make(map[brokerKey]*Broker),
		work:           make(chan func(), 1024),
	}
	return c
}

// Start launches the pending-work worker. Safe to call multiple times.
func (c *Client) Start() {
	c.workOnce.Do(func() {
		go func() {
			for fn := range c.work {
				fn()
			}
		}()
	})
}

func (c *Client) getOrCreate(key brokerKey) (*Broker, error) {
	c.mu.Lock()
	if br, ok := c.brokers[key]; ok && br.State() != stateClosed {
		c.mu.Unlock()
		return br, nil
	}
	c.mu.Unlock()

	br, err := NewBroker(key.Host, key.Port, c.requestTimeout, c.clientID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.brokers[key] = br
	c.mu.Unlock()
	return br, nil
}

// Connect eagerly establishes (or reuses) the connection to host:port,
// used by Producer.Init to bootstrap every configured broker up front
// instead of waiting for the first Send (spec.md §6).
func (c *Client) Connect(ctx context.Context, host string, port int32) error {
	key := brokerKey{Host: host, Port: port}
	c.admissionMu.Lock()
	_, err := c.getOrCreate(key)
	c.admissionMu.Unlock()
	return err
}

// Send implements §4.F's admission rule: "locate or create the
// connection, hand the request to that connection" runs one-at-a-time
// under admissionMu, but the wait for the response is released to run
// concurrently with other sends.
func (c *Client) Send(host string, port int32, req protocolBody, resp protocolBody) error {
	key := brokerKey{Host: host, Port: port}

	c.admissionMu.Lock()
	br, err := c.getOrCreate(key)
	c.admissionMu.Unlock()
	if err != nil {
		return err
	}

	err = br.Send(req, resp)
	if isConnectionFatal(err) {
		c.scheduleDisconnect(key, br)
	}
	return err
}

// SendWithoutResponse is the acks=NONE variant of Send.
func (c *Client) SendWithoutResponse(host string, port int32, req protocolBody) error {
	key := brokerKey{Host: host, Port: port}

	c.admissionMu.Lock()
	br, err := c.getOrCreate(key)
	c.admissionMu.Unlock()
	if err != nil {
		return err
	}

	err = br.SendWithoutResponse(req)
	if isConnectionFatal(err) {
		c.scheduleDisconnect(key, br)
	}
	return err
}

// isConnectionFatal reports whether err is one of the three response
// codes that §4.F says trigger a deferred disconnect of the originating
// connection.
func isConnectionFatal(err error) bool {
	switch err {
	case KError(ErrRequestTimedOut), KError(ErrCorruptMessage), KError(ErrNetworkException):
		return true
	default:
		return false
	}
}

// scheduleDisconnect appends a disconnect closure to the serial
// pending-work chain so disconnects run in the order their triggering
// errors were observed (spec.md §4.F, §9 "Pending-work serialization").
func (c *Client) scheduleDisconnect(key brokerKey, br *Broker) {
	c.work <- func() {
		c.mu.Lock()
		if cur, ok := c.brokers[key]; ok && cur == br {
			delete(c.brokers, key)
		}
		c.mu.Unlock()
		br.Close()
	}
}

// Disconnect removes key's connection from the pool and closes it
// asynchronously (spec.md §4.F "disconnect").
func (c *Client) Disconnect(host string, port int32) {
	key := brokerKey{Host: host, Port: port}
	c.mu.Lock()
	br, ok := c.brokers[key]
	if ok {
		delete(c.brokers, key)
	}
	c.mu.Unlock()
	if ok {
		c.scheduleDisconnect(key, br)
	}
}

// DisconnectAll enqueues a disconnect for every open connection onto the
// pending-work chain and awaits completion (spec.md §4.F).
func (c *Client) DisconnectAll() error {
	c.mu.Lock()
	keys := make([]brokerKey, 0, len(c.brokers))
	for k := range c.brokers {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	var result *multierror.Error
	var resultMu sync.Mutex

	for _, k := range keys {
		c.mu.Lock()
		br, ok := c.brokers[k]
		c.mu.Unlock()
		if !ok {
			continue
		}
		key, broker := k, br
		c.work <- func() {
			c.mu.Lock()
			if cur, ok := c.brokers[key]; ok && cur == broker {
				delete(c.brokers, key)
			}
			c.mu.Unlock()
			if err := broker.Close(); err != nil {
				resultMu.Lock()
				result = multierror.Append(result, err)
				resultMu.Unlock()
			}
		}
	}

	done := make(chan struct{})
	c.work <- func() { close(done) }
	<-done

	if result == nil {
		return nil
	}
	return result.ErrorOrNil()
}

// AskForMetadata walks the connections currently in the pool in key
// order until one answers without a transport/protocol error, per
// spec.md §4.F. Addresses with no open pooled connection are not tried.
func (c *Client) AskForMetadata(req *MetadataRequest) (*MetadataResponse, error) {
	c.mu.Lock()
	keys := make([]brokerKey, 0, len(c.brokers))
	for k := range c.brokers {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	var errs *multierror.Error
	for _, key := range keys {
		resp := &MetadataResponse{}
		version, ok := c.effectiveVersionFor(key, apiKeyMetadata)
		if !ok {
			version = MaxSupportedApiVersions[apiKeyMetadata]
		}
		req.Version = version
		if err := c.Send(key.Host, key.Port, req, resp); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		return resp, nil
	}

	if errs != nil {
		return nil, errorsJoin(ErrMetadataRefreshFailed, errs.ErrorOrNil())
	}
	return nil, ErrMetadataRefreshFailed
}

// EffectiveVersion exposes the negotiated version for apiKey on the
// connection to host:port, if one is currently open (§6).
func (c *Client) EffectiveVersion(host string, port int32, apiKey int16) (int16, bool) {
	return c.effectiveVersionFor(brokerKey{Host: host, Port: port}, apiKey)
}

func (c *Client) effectiveVersionFor(key brokerKey, apiKey int16) (int16, bool) {
	c.mu.Lock()
	br, ok := c.brokers[key]
	c.mu.Unlock()
	if !ok {
		return 0, false
	}
	return br.EffectiveVersion(apiKey)
}

func errorsJoin(a, b error) error {
	if b == nil {
		return a
	}
	return errors.Join(a, b)
}
