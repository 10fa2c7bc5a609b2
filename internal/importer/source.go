package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

// Open returns a reader for source, which is either a local path or an
// http(s) URL.
func Open(ctx context.Context, source string) (io.ReadCloser, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", source, err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	client := &http.Client{
		Timeout: 30 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}
	return resp.Body, nil
}

// Decode reads either a JSON array of create requests or a GeoJSON
// FeatureCollection of incident points, as served by the list endpoint.
func Decode(r io.Reader) ([]models.CreateIncidentRequest, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	switch first {
	case '[':
		var reqs []models.CreateIncidentRequest
		if err := json.NewDecoder(br).Decode(&reqs); err != nil {
			return nil, fmt.Errorf("decode incident array: %w", err)
		}
		return reqs, nil
	case '{':
		raw, err := io.ReadAll(br)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		return decodeFeatureCollection(raw)
	default:
		return nil, fmt.Errorf("expected a JSON array or FeatureCollection, got %q", first)
	}
}

func decodeFeatureCollection(raw []byte) ([]models.CreateIncidentRequest, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	reqs := make([]models.CreateIncidentRequest, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry == nil || !f.Geometry.IsPoint() || len(f.Geometry.Point) < 2 {
			return nil, fmt.Errorf("feature %d: expected a point geometry", i)
		}

		props := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			props[k] = v
		}
		if res, ok := props["resources_on_site"].(map[string]any); ok {
			delete(props, "resources_on_site")
			for k, v := range res {
				props[k] = v
			}
		}

		b, err := json.Marshal(props)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		var req models.CreateIncidentRequest
		if err := json.NewDecoder(bytes.NewReader(b)).Decode(&req); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		lng, lat := f.Geometry.Point[0], f.Geometry.Point[1]
		req.Latitude, req.Longitude = &lat, &lng
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
