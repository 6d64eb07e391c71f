// Package fixture loads scenario fixtures (mock rules and storage entries)
// from YAML so scenarios can keep their data out of Go code.
//
//	mocks:
//	  - pattern: "/items*"
//	    body: [{id: 1, name: Oil Filter}]
//	  - pattern: "**/health"
//	    status: 503
//	    text: down
//	state:
//	  - key: minca_location_id
//	    value: "1"
package fixture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tomyan/uiverify/internal/mock"
	"github.com/tomyan/uiverify/internal/state"
)

// Set is a decoded fixture file.
type Set struct {
	Mocks []Mock       `yaml:"mocks" validate:"dive"`
	State []StateEntry `yaml:"state" validate:"dive"`
}

// Mock is one canned response. Body is encoded as JSON; Text is sent as
// plain text. At most one of them may be set.
type Mock struct {
	Pattern string            `yaml:"pattern" validate:"required"`
	Status  int               `yaml:"status" validate:"omitempty,gte=100,lte=599"`
	Headers map[string]string `yaml:"headers"`
	Body    interface{}       `yaml:"body"`
	Text    *string           `yaml:"text"`
}

// StateEntry is one storage key. Strings are stored verbatim, anything else
// as JSON. A null value is rejected.
type StateEntry struct {
	Key   string      `yaml:"key" validate:"required"`
	Value interface{} `yaml:"value"`
}

var validate = validator.New()

// Load decodes and validates a fixture. Unknown fields are errors.
func Load(r io.Reader) (*Set, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var set Set
	if err := dec.Decode(&set); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding fixture: %w", err)
	}
	if err := validate.Struct(&set); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	for i, m := range set.Mocks {
		if m.Body != nil && m.Text != nil {
			return nil, fmt.Errorf("invalid fixture: mocks[%d] (%s): body and text are exclusive", i, m.Pattern)
		}
		norm, err := normalize(m.Body)
		if err != nil {
			return nil, fmt.Errorf("invalid fixture: mocks[%d] (%s): %w", i, m.Pattern, err)
		}
		set.Mocks[i].Body = norm
	}
	for i, e := range set.State {
		if e.Value == nil {
			return nil, fmt.Errorf("invalid fixture: state[%d] (%s): value is required", i, e.Key)
		}
		norm, err := normalize(e.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid fixture: state[%d] (%s): %w", i, e.Key, err)
		}
		set.State[i].Value = norm
	}
	return &set, nil
}

// LoadBytes decodes a fixture held in memory, such as an embedded file.
func LoadBytes(data []byte) (*Set, error) {
	return Load(bytes.NewReader(data))
}

// LoadFile decodes the fixture at path.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	set, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Rules converts the mocks into router rules, in file order.
func (s *Set) Rules() []mock.Rule {
	rules := make([]mock.Rule, 0, len(s.Mocks))
	for _, m := range s.Mocks {
		rules = append(rules, mock.Rule{Pattern: m.Pattern, Responder: mock.Static(m.Response())})
	}
	return rules
}

// Entries converts the state section into storage entries.
func (s *Set) Entries() []state.Entry {
	entries := make([]state.Entry, 0, len(s.State))
	for _, e := range s.State {
		entries = append(entries, state.Entry{Key: e.Key, Value: e.Value})
	}
	return entries
}

// Response builds the canned response.
func (m Mock) Response() mock.Response {
	var resp mock.Response
	switch {
	case m.Text != nil:
		resp = mock.Text(*m.Text)
	case m.Body != nil:
		resp = mock.JSON(m.Body)
	default:
		resp = mock.Status(200)
	}
	if m.Status != 0 {
		resp = resp.WithStatus(m.Status)
	}
	for name, value := range m.Headers {
		resp = resp.WithHeader(name, value)
	}
	return resp
}

// normalize rewrites YAML maps with non-string keys so the value can be
// encoded as JSON.
func normalize(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprint(k)
			}
			if _, dup := out[key]; dup {
				return nil, fmt.Errorf("duplicate key %q after conversion to string", key)
			}
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return v, nil
	}
}
