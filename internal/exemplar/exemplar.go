// Package exemplar loads the few-shot example artifact produced by the offline
// optimisation step. The artifact is read once at startup and validated
// eagerly; a bad artifact stops the service before it serves anything.
package exemplar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sqlchat/sqlchat/internal/sqlguard"
	"github.com/sqlchat/sqlchat/internal/storage"
)

// DefaultMaxBytes bounds how much of an artifact is read.
const DefaultMaxBytes = 8 << 20

var ErrEmptySet = errors.New("exemplar set is empty")

// Exemplar is one worked example: a question, the schema it was written
// against, optional reasoning, and the answer SQL.
type Exemplar struct {
	Question      string `json:"question" yaml:"question"`
	SchemaContext string `json:"sql_context,omitempty" yaml:"sql_context,omitempty"`
	Reasoning     string `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	SQL           string `json:"sql" yaml:"sql"`
}

// Set is an immutable, versioned list of exemplars.
type Set struct {
	Version  string     `json:"version" yaml:"version"`
	Examples []Exemplar `json:"examples" yaml:"examples"`
}

// Len is the number of examples.
func (s Set) Len() int {
	return len(s.Examples)
}

// Limit keeps the first n examples. n <= 0 keeps all of them.
func (s Set) Limit(n int) Set {
	if n <= 0 || n >= len(s.Examples) {
		return s
	}
	return Set{Version: s.Version, Examples: s.Examples[:n:n]}
}

// record accepts both the native field names and the optimizer's.
type record struct {
	Question   string `json:"question" yaml:"question"`
	SQLContext string `json:"sql_context" yaml:"sql_context"`
	Reasoning  string `json:"reasoning" yaml:"reasoning"`
	Rationale  string `json:"rationale" yaml:"rationale"`
	SQL        string `json:"sql" yaml:"sql"`
}

func (r record) exemplar() Exemplar {
	reasoning := r.Reasoning
	if reasoning == "" {
		reasoning = r.Rationale
	}
	return Exemplar{
		Question:      strings.TrimSpace(r.Question),
		SchemaContext: strings.TrimSpace(r.SQLContext),
		Reasoning:     strings.TrimSpace(reasoning),
		SQL:           strings.TrimSpace(r.SQL),
	}
}

type nativeDoc struct {
	Version  string   `json:"version" yaml:"version"`
	Examples []record `json:"examples" yaml:"examples"`
}

// Decode parses an artifact. name only selects the syntax: .yaml and .yml
// are YAML, everything else JSON. JSON may be either the native document or
// the optimizer's saved program, whose predictors each carry a "demos" list.
func Decode(name string, raw []byte) (Set, error) {
	var doc nativeDoc
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return Set{}, fmt.Errorf("decode exemplar yaml: %w", err)
		}
	default:
		var top map[string]json.RawMessage
		if err := json.Unmarshal(raw, &top); err != nil {
			return Set{}, fmt.Errorf("decode exemplar json: %w", err)
		}
		if _, native := top["examples"]; native {
			if err := json.Unmarshal(raw, &doc); err != nil {
				return Set{}, fmt.Errorf("decode exemplar json: %w", err)
			}
		} else {
			demos, err := optimizerDemos(top)
			if err != nil {
				return Set{}, err
			}
			doc.Examples = demos
		}
	}

	set := Set{Version: strings.TrimSpace(doc.Version), Examples: make([]Exemplar, 0, len(doc.Examples))}
	for _, r := range doc.Examples {
		set.Examples = append(set.Examples, r.exemplar())
	}
	if set.Version == "" {
		set.Version = contentVersion(raw)
	}
	return set, nil
}

// optimizerDemos collects demos from every predictor, in predictor name order.
func optimizerDemos(top map[string]json.RawMessage) ([]record, error) {
	names := make([]string, 0, len(top))
	for name := range top {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		out   []record
		found bool
	)
	for _, name := range names {
		var predictor struct {
			Demos []record `json:"demos"`
		}
		// Non-object entries such as metadata are not predictors.
		if err := json.Unmarshal(top[name], &predictor); err != nil {
			continue
		}
		if predictor.Demos == nil {
			continue
		}
		found = true
		out = append(out, predictor.Demos...)
	}
	if !found {
		return nil, errors.New("decode exemplar json: neither \"examples\" nor predictor \"demos\" found")
	}
	return out, nil
}

func contentVersion(raw []byte) string {
	sum := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(sum[:])[:12]
}

// Validate checks that the set is usable as prompt material: it is not
// empty, every example has a question and SQL, and every SQL passes guard.
func (s Set) Validate(guard *sqlguard.Guard) error {
	_, err := s.sanitized(guard)
	return err
}

// sanitized validates the set and returns a copy whose SQL is the bare
// extracted statement, so fenced or labelled SQL renders uniformly.
func (s Set) sanitized(guard *sqlguard.Guard) (Set, error) {
	if len(s.Examples) == 0 {
		return Set{}, ErrEmptySet
	}
	if guard == nil {
		guard = sqlguard.New()
	}
	out := Set{Version: s.Version, Examples: make([]Exemplar, len(s.Examples))}
	for i, ex := range s.Examples {
		if ex.Question == "" {
			return Set{}, fmt.Errorf("exemplar %d: question is required", i+1)
		}
		if ex.SQL == "" {
			return Set{}, fmt.Errorf("exemplar %d: sql is required", i+1)
		}
		q, err := guard.Sanitize(ex.SQL)
		if err != nil {
			return Set{}, fmt.Errorf("exemplar %d: %w", i+1, err)
		}
		ex.SQL = q.Statement
		out.Examples[i] = ex
	}
	return out, nil
}

// StoreOpener returns an object store for a bucket.
type StoreOpener func(ctx context.Context, bucket string) (storage.ObjectStore, error)

// Loader resolves an artifact source, decodes it and validates it.
type Loader struct {
	Guard     *sqlguard.Guard
	OpenStore StoreOpener
	MaxBytes  int64
}

// Load reads source, a local path or an s3://bucket/key URI.
func (l Loader) Load(ctx context.Context, source string) (Set, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return Set{}, errors.New("exemplar source is required")
	}

	var (
		raw []byte
		err error
	)
	if storage.IsObjectURI(source) {
		raw, err = l.readObject(ctx, source)
	} else {
		raw, err = l.readFile(source)
	}
	if err != nil {
		return Set{}, err
	}

	set, err := Decode(source, raw)
	if err != nil {
		return Set{}, fmt.Errorf("%s: %w", source, err)
	}
	set, err = set.sanitized(l.Guard)
	if err != nil {
		return Set{}, fmt.Errorf("%s: %w", source, err)
	}
	return set, nil
}

func (l Loader) maxBytes() int64 {
	if l.MaxBytes > 0 {
		return l.MaxBytes
	}
	return DefaultMaxBytes
}

func (l Loader) readFile(name string) ([]byte, error) {
	info, err := os.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("read exemplar artifact: %w", err)
	}
	if info.Size() > l.maxBytes() {
		return nil, fmt.Errorf("read exemplar artifact %s: %w (limit %d bytes)", name, storage.ErrObjectTooLarge, l.maxBytes())
	}
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read exemplar artifact: %w", err)
	}
	return raw, nil
}

func (l Loader) readObject(ctx context.Context, uri string) ([]byte, error) {
	loc, err := storage.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if l.OpenStore == nil {
		return nil, fmt.Errorf("read exemplar artifact %s: no object store configured", uri)
	}
	store, err := l.OpenStore(ctx, loc.Bucket)
	if err != nil {
		return nil, fmt.Errorf("open object store for %s: %w", uri, err)
	}
	raw, err := storage.ReadAll(ctx, store, loc.Key, l.maxBytes())
	if err != nil {
		return nil, fmt.Errorf("read exemplar artifact %s: %w", uri, err)
	}
	return raw, nil
}
