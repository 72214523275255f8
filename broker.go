package kafka

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// brokerState is the connection state machine from spec.md §4.E:
// Connecting -> Handshaking -> Ready -> Closed.
type brokerState int32

const (
	stateConnecting brokerState = iota
	stateHandshaking
	stateReady
	stateClosed
)

// MaxSupportedApiVersions is this client's MAX_SUPPORTED per API key,
// used during the §6 negotiation (min(broker.max, client.MAX)).
var MaxSupportedApiVersions = map[int16]int16{
	apiKeyApiVersions: 2,
	apiKeyMetadata:    8,
	apiKeyProduce:     8,
}

// pendingRequest is one entry of a broker's in-order response queue: the
// correlation id we expect next, the prototype to decode into, and the
// channel its result is delivered on. §4.E requires responses to be
// matched by correlation id in submission order; modeling the match as
// a FIFO queue rather than a map is what lets a mismatch be detected as
// CORRUPT_MESSAGE instead of silently waiting forever.
type pendingRequest struct {
	correlationID int32
	version       int16
	response      protocolBody
	resultCh      chan pendingResult
}

type pendingResult struct {
	body protocolBody
	err  error
}

// Broker is one framed TCP connection to a single Kafka broker,
// spec.md §4.E. A single write-side mutex enforces that request n's
// bytes hit the socket before request n+1's; a single-consumer read
// loop drains pendingRequests in the order they were enqueued, which is
// the same order their bytes were written, satisfying the FIFO
// ordering guarantee while still allowing pipelining (request n+1 can
// be written while response n is still being read).
type Broker struct {
	addr string

	conn   net.Conn
	state  atomic.Int32
	nextID atomic.Int32

	requestTimeout time.Duration
	clientID       *string

	writeMu sync.Mutex
	pending chan *pendingRequest

	apiVersions *ApiVersionsResponse

	closeOnce sync.Once
	closed    chan struct{}
}

// defaultMaxOpenRequests bounds pipelining depth per broker connection,
// matching the teacher's Net.MaxOpenRequests config knob (default 5).
const defaultMaxOpenRequests = 5

// NewBroker dials host:port and completes the §4.E handshake
// (ApiVersions at the client's MAX_SUPPORTED) before returning.
func NewBroker(host string, port int32, requestTimeout time.Duration, clientID string) (*Broker, error) {
	b := &Broker{
		addr:           net.JoinHostPort(host, portToString(port)),
		requestTimeout: requestTimeout,
		pending:        make(chan *pendingRequest, defaultMaxOpenRequests),
		closed:         make(chan struct{}),
	}
	if clientID != "" {
		b.clientID = &clientID
	}
	b.state.Store(int32(stateConnecting))

	conn, err := net.DialTimeout("tcp", b.addr, requestTimeout)
	if err != nil {
		return nil, KError(ErrNetworkException)
	}
	b.conn = conn
	b.state.Store(int32(stateHandshaking))

	go b.readLoop()

	ver := MaxSupportedApiVersions[apiKeyApiVersions]
	resp := &ApiVersionsResponse{}
	if err := b.doSend(&ApiVersionsRequest{Version: ver}, resp); err != nil {
		b.Close()
		return nil, err
	}
	if resp.ErrorCode != ErrNoError {
		b.Close()
		return nil, resp.ErrorCode
	}
	b.apiVersions = resp
	b.state.Store(int32(stateReady))

	return b, nil
}

func (b *Broker) State() brokerState {
	return brokerState(b.state.Load())
}

// ApiVersions returns the cached handshake response (spec.md §4.E "On
// entering Ready the connection caches the ApiVersions response").
func (b *Broker) ApiVersions() *ApiVersionsResponse {
	return b.apiVersions
}

// EffectiveVersion resolves the version to use for apiKey against the
// cached handshake response and this client's MAX_SUPPORTED (§6).
func (b *Broker) EffectiveVersion(apiKey int16) (int16, bool) {
	if b.apiVersions == nil {
		return 0, false
	}
	return b.apiVersions.EffectiveVersion(apiKey, MaxSupportedApiVersions[apiKey])
}

// Send allocates a correlation id, writes the request frame under the
// write-side FIFO slot, and blocks for the matching response. It
// satisfies the §4.E "send" contract used for every in-scope API
// except acks=NONE produce requests (see SendWithoutResponse).
func (b *Broker) Send(req protocolBody, resp protocolBody) error {
	return b.doSend(req, resp)
}

func (b *Broker) doSend(req protocolBody, resp protocolBody) error {
	if b.State() == stateClosed {
		return KError(ErrNetworkException)
	}

	correlationID := b.nextID.Add(1)

	pr := &pendingRequest{
		correlationID: correlationID,
		version:       req.version(),
		response:      resp,
		resultCh:      make(chan pendingResult, 1),
	}

	b.writeMu.Lock()
	frame, err := (&requestMessage{CorrelationID: correlationID, ClientID: b.clientID, Body: req}).encode()
	if err != nil {
		b.writeMu.Unlock()
		return KError(ErrCorruptMessage)
	}
	if err := b.writeFrame(frame); err != nil {
		b.writeMu.Unlock()
		b.teardown()
		return err
	}
	select {
	case b.pending <- pr:
	case <-b.closed:
		b.writeMu.Unlock()
		return KError(ErrNetworkException)
	}
	b.writeMu.Unlock()

	select {
	case res := <-pr.resultCh:
		return res.err
	case <-b.closed:
		return KError(ErrNetworkException)
	}
}

// SendWithoutResponse writes a request and immediately returns a
// synthetic success, per §4.E's acks=NONE variant. No entry is pushed
// onto the pending queue because the broker will not send a frame back.
func (b *Broker) SendWithoutResponse(req protocolBody) error {
	if b.State() == stateClosed {
		return KError(ErrNetworkException)
	}
	correlationID := b.nextID.Add(1)

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	frame, err := (&requestMessage{CorrelationID: correlationID, ClientID: b.clientID, Body: req}).encode()
	if err != nil {
		return KError(ErrCorruptMessage)
	}
	if err := b.writeFrame(frame); err != nil {
		b.teardown()
		return err
	}
	return nil
}

func (b *Broker) writeFrame(frame []byte) error {
	if err := b.conn.SetWriteDeadline(time.Now().Add(b.requestTimeout)); err != nil {
		return KError(ErrNetworkException)
	}
	n, err := b.conn.Write(frame)
	if err != nil {
		if isTimeout(err) {
			return KError(ErrRequestTimedOut)
		}
		return KError(ErrNetworkException)
	}
	if n != len(frame) {
		return KError(ErrNetworkException)
	}
	return nil
}

// readLoop is the single reader of this connection's socket. It drains
// b.pending in order, matching each frame's correlation id against the
// front of the queue (§4.E).
func (b *Broker) readLoop() {
	for {
		var pr *pendingRequest
		select {
		case pr = <-b.pending:
		case <-b.closed:
			return
		}

		raw, err := b.readFrame()
		if err != nil {
			pr.resultCh <- pendingResult{err: err}
			b.failRemaining(err)
			b.teardown()
			return
		}

		pd := newRealDecoder(raw)
		hdr, err := decodeResponseHeader(pd)
		if err != nil {
			pr.resultCh <- pendingResult{err: KError(ErrCorruptMessage)}
			b.failRemaining(KError(ErrCorruptMessage))
			b.teardown()
			return
		}
		if hdr.CorrelationID != pr.correlationID {
			mismatch := KError(ErrCorruptMessage)
			pr.resultCh <- pendingResult{err: mismatch}
			b.failRemaining(mismatch)
			b.teardown()
			return
		}

		if err := decodeResponseBody(pr.response, pr.version, raw[pd.off:]); err != nil {
			pr.resultCh <- pendingResult{err: KError(ErrCorruptMessage)}
			b.failRemaining(KError(ErrCorruptMessage))
			b.teardown()
			return
		}
		pr.resultCh <- pendingResult{body: pr.response}
	}
}

func (b *Broker) failRemaining(err error) {
	for {
		select {
		case pr := <-b.pending:
			pr.resultCh <- pendingResult{err: err}
		default:
			return
		}
	}
}

func (b *Broker) readFrame() ([]byte, error) {
	if err := b.conn.SetReadDeadline(time.Now().Add(b.requestTimeout)); err != nil {
		return nil, KError(ErrNetworkException)
	}
	var lenBuf [4]byte
	if _, err := readFull(b.conn, lenBuf[:]); err != nil {
		if isTimeout(err) {
			return nil, KError(ErrRequestTimedOut)
		}
		return nil, KError(ErrNetworkException)
	}
	size := int32(lenBuf[0])<<24 | int32(lenBuf[1])<<16 | int32(lenBuf[2])<<8 | int32(lenBuf[3])
	if size < 0 || size > maxFrameSize {
		return nil, KError(ErrCorruptMessage)
	}
	body := make([]byte, size)
	if _, err := readFull(b.conn, body); err != nil {
		if isTimeout(err) {
			return nil, KError(ErrRequestTimedOut)
		}
		return nil, KError(ErrNetworkException)
	}
	return body, nil
}

// maxFrameSize bounds allocations when parsing malformed responses
// (§5 "an implementation MAY impose a max frame size").
const maxFrameSize = 100 << 20

// teardown transitions the connection to Closed exactly once.
func (b *Broker) teardown() {
	b.closeOnce.Do(func() {
		b.state.Store(int32(stateClosed))
		close(b.closed)
		if b.conn != nil {
			b.conn.Close()
		}
	})
}

// Close tears the connection down from the outside (§4.F "disconnect").
func (b *Broker) Close() error {
	b.teardown()
	return nil
}

func isTimeout(err error) bool {
	type timeoutError interface {
		Timeout() bool
	}
	te, ok := err.(timeoutError)
	return ok && te.Timeout()
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func portToString(port int32) string {
	return strconv.Itoa(int(port))
}
