package kafka

import "sort"

// ApiVersionsRequest (API key 18, v0-v2). The request body is empty at
// every version in scope, per spec.md §4.D.
type ApiVersionsRequest struct {
	Version int16
}

func (r *ApiVersionsRequest) setVersion(v int16)     { r.Version = v }
func (r *ApiVersionsRequest) key() int16             { return apiKeyApiVersions }
func (r *ApiVersionsRequest) version() int16         { return r.Version }
func (r *ApiVersionsRequest) headerVersion() int16   { return 1 }
func (r *ApiVersionsRequest) encode(pe packetEncoder) error {
	return nil
}
func (r *ApiVersionsRequest) decode(pd packetDecoder, version int16) error {
	r.Version = version
	return nil
}

// ApiVersionRange is one entry of the sorted api_key -> {min,max} table
// (spec.md §3 "API-versions map").
type ApiVersionRange struct {
	ApiKey int16
	Min    int16
	Max    int16
}

// ApiVersionsResponse (API key 18, v0-v2): {error_code,
// [{api_key,min,max}], throttle_ms (v>=1)}.
type ApiVersionsResponse struct {
	Version     int16
	ErrorCode   KError
	ApiVersions []ApiVersionRange
	ThrottleMs  int32
}

func (r *ApiVersionsResponse) setVersion(v int16)   { r.Version = v }
func (r *ApiVersionsResponse) key() int16           { return apiKeyApiVersions }
func (r *ApiVersionsResponse) version() int16       { return r.Version }
func (r *ApiVersionsResponse) headerVersion() int16 { return 0 }

func (r *ApiVersionsResponse) encode(pe packetEncoder) error {
	pe.putInt16(int16(r.ErrorCode))
	if err := pe.putArrayLength(len(r.ApiVersions)); err != nil {
		return err
	}
	for _, v := range r.ApiVersions {
		pe.putInt16(v.ApiKey)
		pe.putInt16(v.Min)
		pe.putInt16(v.Max)
	}
	if r.Version >= 1 {
		pe.putInt32(r.ThrottleMs)
	}
	return nil
}

// decode parses the response and, per spec.md §4.D, sorts the resulting
// list by api_key ascending so later lookups can binary-search it.
func (r *ApiVersionsResponse) decode(pd packetDecoder, version int16) error {
	r.Version = version

	errCode, err := pd.getInt16()
	if err != nil {
		return err
	}
	r.ErrorCode = KError(errCode)

	n, err := pd.getArrayLength()
	if err != nil {
		return err
	}
	r.ApiVersions = make([]ApiVersionRange, n)
	for i := 0; i < n; i++ {
		var v ApiVersionRange
		if v.ApiKey, err = pd.getInt16(); err != nil {
			return err
		}
		if v.Min, err = pd.getInt16(); err != nil {
			return err
		}
		if v.Max, err = pd.getInt16(); err != nil {
			return err
		}
		r.ApiVersions[i] = v
	}
	sort.Slice(r.ApiVersions, func(i, j int) bool {
		return r.ApiVersions[i].ApiKey < r.ApiVersions[j].ApiKey
	})

	if version >= 1 {
		if r.ThrottleMs, err = pd.getInt32(); err != nil {
			return err
		}
	}
	return nil
}

// EffectiveVersion implements spec.md §6's negotiation rule: choose
// min(broker.max, client.max) provided the ranges overlap.
func (r *ApiVersionsResponse) EffectiveVersion(apiKey int16, clientMax int16) (int16, bool) {
	i := sort.Search(len(r.ApiVersions), func(i int) bool {
		return r.ApiVersions[i].ApiKey >= apiKey
	})
	if i >= len(r.ApiVersions) || r.ApiVersions[i].ApiKey != apiKey {
		return 0, false
	}
	rng := r.ApiVersions[i]
	if rng.Min > clientMax {
		return 0, false
	}
	eff := rng.Max
	if clientMax < eff {
		eff = clientMax
	}
	if eff < rng.Min {
		return 0, false
	}
	return eff, true
}
