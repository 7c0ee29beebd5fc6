package simulator

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/eliotheinrich/pysims/internal/param"
)

// RunMeta carries the per-run numerical settings sent with a request.
type RunMeta struct {
	Atol float64 `json:"atol"`
	Rtol float64 `json:"rtol"`
	Run  int     `json:"run"`
	Seed int64   `json:"seed"`
}

// Request is the document a simulator process reads on one run.
type Request struct {
	Tag    string       `json:"tag"`
	Params param.Record `json:"params"`
	State  []byte       `json:"state,omitempty"`
	Meta   RunMeta      `json:"meta"`
}

// Response is the document a simulator process writes back: one vector of
// values per observable, plus its state after the run.
type Response struct {
	Data  map[string][]float64 `json:"data"`
	State []byte               `json:"state,omitempty"`
}

// Keys returns the observable names in sorted order.
func (r *Response) Keys() []string {
	keys := make([]string, 0, len(r.Data))
	for k := range r.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DecodeResponse parses and checks a simulator response.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding simulator response: %w", err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("decoding simulator response: missing data")
	}
	return &resp, nil
}

// base holds what every Config implementation shares.
type base struct {
	tag    string
	params param.Record
	state  []byte
}

func (b *base) Tag() string              { return b.tag }
func (b *base) Params() param.Record     { return b.params }
func (b *base) InjectState(state []byte) { b.state = append([]byte(nil), state...) }

func (b *base) request(meta RunMeta) *Request {
	return &Request{Tag: b.tag, Params: b.params, State: b.state, Meta: meta}
}
