package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/pkg/types"
)

// maxHTTPBody bounds the response size read from an http source.
const maxHTTPBody = 1 << 20

// httpConnector fetches a flat JSON document and applies the same metric
// extraction rules as the SQL variant. It exists to prove that sources plug
// in by capability, not by dialect.
type httpConnector struct {
	client *http.Client
}

func (c *httpConnector) Collect(ctx context.Context, src config.Source) (types.Snapshot, error) {
	start := time.Now()

	doc, err := c.fetch(ctx, src)
	if err != nil {
		return types.Snapshot{}, err
	}

	// JSON objects are unordered; sort keys so column fallbacks (first
	// *count* field and friends) pick deterministically.
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]field, 0, len(names))
	for _, name := range names {
		fields = append(fields, field{name: name, value: doc[name]})
	}

	metrics, err := extractMetrics(fields)
	if err != nil {
		return types.Snapshot{}, err
	}

	return types.Snapshot{
		SourceName:    src.Name,
		CollectedAt:   time.Now().UTC(),
		CollectStatus: types.CollectSuccess,
		Metrics:       metrics,
		Metadata: map[string]any{
			"connector_type": "http",
			"duration_ms":    time.Since(start).Milliseconds(),
		},
	}, nil
}

func (c *httpConnector) TestConnection(ctx context.Context, src config.Source) error {
	_, err := c.fetch(ctx, src)
	return err
}

func (c *httpConnector) fetch(ctx context.Context, src config.Source) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Connection, nil)
	if err != nil {
		return nil, &Error{Code: CodeValidation, Message: fmt.Sprintf("invalid url for %q", src.Name), Err: err}
	}
	req.Header.Set("Accept", "application/json")

	client := c.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(CodeConnection, fmt.Sprintf("fetch %q", src.Name), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Code: CodeQuery, Message: fmt.Sprintf("fetch %q: unexpected status %d", src.Name, resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return nil, classify(CodeConnection, fmt.Sprintf("read response for %q", src.Name), err)
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &Error{Code: CodeValidation, Message: fmt.Sprintf("response for %q is not a JSON object", src.Name), Err: err}
	}
	return doc, nil
}
