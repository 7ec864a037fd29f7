package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/patientrecords/internal/metrics"
)

// Source reads patient records from a local JSON file or an http(s) URL
type Source struct {
	httpClient *http.Client
}

// NewSource creates a source whose remote fetches time out after timeout
func NewSource(timeout time.Duration) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// IsRemote reports whether location is fetched over HTTP
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Load reads a JSON array of patient objects. Numbers are kept as json.Number
// so large numeric ids render exactly.
func (s *Source) Load(ctx context.Context, location string) ([]map[string]interface{}, error) {
	var (
		raw []byte
		err error
	)
	if IsRemote(location) {
		raw, err = s.fetch(ctx, location)
	} else {
		raw, err = os.ReadFile(location)
	}
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", location, err)
	}

	log.Info().
		Str("source", location).
		Int("count", len(records)).
		Msg("Parsed seed file")
	return records, nil
}

func (s *Source) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	startTime := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.RecordSourceRequest(0, startTime)
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	metrics.RecordSourceRequest(resp.StatusCode, startTime)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("seed source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

func decodeRecords(raw []byte) ([]map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var records []map[string]interface{}
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}
