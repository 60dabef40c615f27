// Package search keeps an optional full-text index of post bodies.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/cppla/microblog/config"
)

// Index is the search boundary used by the post handlers. A nil Index means search is disabled.
type Index interface {
	Add(ctx context.Context, id uint, body string) error
	Remove(ctx context.Context, id uint) error
	Query(ctx context.Context, q string, from, size int) ([]uint, int64, error)
}

// ElasticIndex stores posts as {"body": ...} documents keyed by post id.
type ElasticIndex struct {
	client *elasticsearch.Client
	name   string
}

// New returns an Elasticsearch backed index, or a nil Index when no URL is configured.
func New(cfg config.AppConfig) (Index, error) {
	if cfg.ElasticsearchURL == "" {
		return nil, nil
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: strings.Split(cfg.ElasticsearchURL, ","),
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	name := cfg.ElasticsearchIndex
	if name == "" {
		name = "posts"
	}
	return &ElasticIndex{client: client, name: name}, nil
}

// Add indexes or replaces the document for post id.
func (e *ElasticIndex) Add(ctx context.Context, id uint, body string) error {
	doc, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return err
	}
	res, err := e.client.Index(e.name, bytes.NewReader(doc),
		e.client.Index.WithDocumentID(docID(id)),
		e.client.Index.WithRefresh("true"),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index post %d: %s", id, res.String())
	}
	return nil
}

// Remove deletes the document for post id. A missing document is not an error.
func (e *ElasticIndex) Remove(ctx context.Context, id uint) error {
	res, err := e.client.Delete(e.name, docID(id), e.client.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("remove post %d: %s", id, res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

// Query runs a multi_match over post bodies and returns matching post ids by relevance.
func (e *ElasticIndex) Query(ctx context.Context, q string, from, size int) ([]uint, int64, error) {
	query, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{"query": q, "fields": []string{"*"}},
		},
	})
	if err != nil {
		return nil, 0, err
	}
	res, err := e.client.Search(
		e.client.Search.WithIndex(e.name),
		e.client.Search.WithBody(bytes.NewReader(query)),
		e.client.Search.WithFrom(from),
		e.client.Search.WithSize(size),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		// nothing indexed yet
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, 0, nil
	}
	if res.IsError() {
		return nil, 0, fmt.Errorf("search posts: %s", res.String())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}
	ids := make([]uint, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		n, err := strconv.ParseUint(h.ID, 10, 64)
		if err != nil {
			return nil, 0, errors.New("non-numeric document id " + h.ID)
		}
		ids = append(ids, uint(n))
	}
	return ids, parsed.Hits.Total.Value, nil
}

func docID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
