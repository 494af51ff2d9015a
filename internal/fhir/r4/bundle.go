package r4

import "encoding/json"

// Resource is implemented by every resource this exporter submits. The
// relative URL doubles as the request URL inside transaction bundles.
type Resource interface {
	RelativeURL() string
}

// Bundle represents a FHIR Bundle, used here only with type "transaction"
// on the way out and "transaction-response" on the way back.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Entry        []BundleEntry `json:"entry"`
}

// BundleEntry is a single entry of a Bundle.
type BundleEntry struct {
	Resource json.RawMessage `json:"resource,omitempty"`
	Request  *BundleRequest  `json:"request,omitempty"`
	Response *BundleResponse `json:"response,omitempty"`
}

// BundleRequest describes what the server should do with an entry.
type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// BundleResponse carries the per-entry outcome of a transaction.
type BundleResponse struct {
	Status   string `json:"status"`
	Location string `json:"location,omitempty"`
	Etag     string `json:"etag,omitempty"`
}

// NewTransactionBundle builds a transaction Bundle that POSTs every given
// resource. The server processes the entries atomically and returns one
// response entry per request entry, in order.
func NewTransactionBundle(resources ...Resource) (*Bundle, error) {
	b := &Bundle{
		ResourceType: "Bundle",
		Type:         "transaction",
		Entry:        make([]BundleEntry, 0, len(resources)),
	}
	for _, res := range resources {
		raw, err := json.Marshal(res)
		if err != nil {
			return nil, err
		}
		b.Entry = append(b.Entry, BundleEntry{
			Resource: raw,
			Request:  &BundleRequest{Method: "POST", URL: res.RelativeURL()},
		})
	}
	return b, nil
}
