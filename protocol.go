package kafka

// Kafka API keys in scope for this module, per spec.md §1/§4.D.
const (
	apiKeyProduce     int16 = 0
	apiKeyMetadata    int16 = 3
	apiKeyApiVersions int16 = 18
)

// protocolBody is the shape every request/response message implements,
// named and structured after the teacher's protocolBody-like types
// (see delete_topics_response.go / end_txn_request.go: key(), version(),
// headerVersion(), encode(pe), decode(pd, version)).
type protocolBody interface {
	key() int16
	version() int16
	setVersion(v int16)
	headerVersion() int16
	encode(pe packetEncoder) error
	decode(pd packetDecoder, version int16) error
}

// requestMessage pairs a protocolBody with the request header fields
// spec.md §4.D assigns to request framing: api_key, api_version,
// correlation_id, client_id.
type requestMessage struct {
	CorrelationID int32
	ClientID      *string
	Body          protocolBody
}

// encode serializes {total_size(i32), header{api_key, api_version,
// correlation_id, client_id}, body} — the full request frame ready to
// write to the socket.
func (r *requestMessage) encode() ([]byte, error) {
	pe := newRealEncoder()
	pe.putInt16(r.Body.key())
	pe.putInt16(r.Body.version())
	pe.putInt32(r.CorrelationID)
	if err := pe.putNullableString(r.ClientID); err != nil {
		return nil, err
	}
	if err := r.Body.encode(pe); err != nil {
		return nil, err
	}
	body := pe.bytes()

	framed := newRealEncoder()
	framed.putInt32(int32(len(body)))
	framed.putRawBytes(body)
	return framed.bytes(), nil
}

// responseHeader is {correlation_id(i32)} per spec.md §4.D response
// framing; total_size is consumed by the connection layer before the
// header is decoded (§4.E).
type responseHeader struct {
	CorrelationID int32
}

func decodeResponseHeader(pd packetDecoder) (responseHeader, error) {
	correlationID, err := pd.getInt32()
	if err != nil {
		return responseHeader{}, err
	}
	return responseHeader{CorrelationID: correlationID}, nil
}

// decodeResponseBody decodes a response body of known type/version out
// of the bytes following the response header.
func decodeResponseBody(body protocolBody, version int16, raw []byte) error {
	pd := newRealDecoder(raw)
	return body.decode(pd, version)
}
