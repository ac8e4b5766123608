package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"transcript-relay/internal/domain/entities"
)

// ElasticSink persists chunks and session documents to Elasticsearch.
// Chunk writes go through the bulk API without document ids, which makes
// the chunk index append-only from the relay's perspective.
type ElasticSink struct {
	client        *elasticsearch.Client
	chunkIndex    string
	sessionsIndex string
}

func NewElasticSink(esURL, apiKey, chunkIndex, sessionsIndex string) (*ElasticSink, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esURL},
		APIKey:    apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticSink{
		client:        client,
		chunkIndex:    chunkIndex,
		sessionsIndex: sessionsIndex,
	}, nil
}

func (s *ElasticSink) Enabled() bool { return true }

// BulkIndex writes one batch of chunks in a single bulk call. Per-item
// rejections are reported in the result; the call itself only errors when
// the whole bulk request fails.
func (s *ElasticSink) BulkIndex(ctx context.Context, chunks []entities.TranscriptChunk) (BulkResult, error) {
	if len(chunks) == 0 {
		return BulkResult{}, nil
	}

	var body bytes.Buffer
	for _, chunk := range chunks {
		body.WriteString(`{"index":{}}`)
		body.WriteByte('\n')
		doc, err := json.Marshal(chunk)
		if err != nil {
			return BulkResult{}, fmt.Errorf("failed to marshal chunk: %w", err)
		}
		body.Write(doc)
		body.WriteByte('\n')
	}

	res, err := s.client.Bulk(
		bytes.NewReader(body.Bytes()),
		s.client.Bulk.WithIndex(s.chunkIndex),
		s.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return BulkResult{}, fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		payload, _ := io.ReadAll(res.Body)
		return BulkResult{}, fmt.Errorf("bulk request rejected: %s: %s", res.Status(), string(payload))
	}

	return parseBulkResponse(res.Body, chunks)
}

type bulkResponse struct {
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

type bulkItem struct {
	Status int `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func parseBulkResponse(body io.Reader, chunks []entities.TranscriptChunk) (BulkResult, error) {
	var parsed bulkResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return BulkResult{}, fmt.Errorf("failed to decode bulk response: %w", err)
	}

	result := BulkResult{}
	for i, item := range parsed.Items {
		op, ok := item["index"]
		if !ok {
			continue
		}
		if op.Status >= 200 && op.Status < 300 {
			result.Indexed++
			continue
		}

		failed := FailedDoc{Reason: fmt.Sprintf("status %d", op.Status)}
		if op.Error != nil {
			failed.Reason = fmt.Sprintf("%s: %s", op.Error.Type, op.Error.Reason)
		}
		if i < len(chunks) {
			failed.MeetingID = chunks[i].MeetingID
			failed.ChunkIndex = chunks[i].ChunkIndex
		}
		result.Failed = append(result.Failed, failed)
	}
	return result, nil
}

// PutSession indexes the session document keyed by meeting id, so a later
// call with EndedAt set overwrites the open document in place.
func (s *ElasticSink) PutSession(ctx context.Context, session entities.Session) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	res, err := s.client.Index(
		s.sessionsIndex,
		bytes.NewReader(doc),
		s.client.Index.WithDocumentID(url.PathEscape(session.MeetingID)),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("session index request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		payload, _ := io.ReadAll(res.Body)
		return fmt.Errorf("session index rejected: %s: %s", res.Status(), string(payload))
	}
	return nil
}
