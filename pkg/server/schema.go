package server

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// maxStreamBody bounds a stream request; attachments travel inline as base64.
const maxStreamBody = 32 << 20

//go:embed schema/stream_request.json
var streamRequestSchema []byte

var streamSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return compileSchema("mem://chatstream/stream_request.json", streamRequestSchema)
})

// compileSchema compiles one self-contained schema document.
func compileSchema(url string, data []byte) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(url)
}

// decodeStreamBody reads a stream request, checks it against the request
// schema and decodes it. Schema violations come back as one error listing
// every failing field.
func decodeStreamBody(w http.ResponseWriter, r *http.Request) (streamBody, error) {
	var body streamBody
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStreamBody))
	if err != nil {
		return body, fmt.Errorf("bad request: %w", err)
	}

	schema, err := streamSchema()
	if err != nil {
		return body, fmt.Errorf("stream request schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return body, fmt.Errorf("bad request: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return body, fmt.Errorf("bad request: %v", err)
	}

	if err := json.Unmarshal(raw, &body); err != nil {
		return body, fmt.Errorf("bad request: %w", err)
	}
	return body, nil
}
