package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/oksasatya/go-ddd-friendship/internal/domain/entity"
	"github.com/oksasatya/go-ddd-friendship/internal/domain/repository"
)

const requestTimeout = 3 * time.Second

// maxResults is the largest page read in one search. A query matching more
// documents yields repository.ErrIndexTruncated.
const maxResults = 1000

// indexMapping keeps email as an exact keyword and adds a keyword
// sub-field on name for case-insensitive wildcard matching.
const indexMapping = `{
  "mappings": {
    "properties": {
      "id":           {"type": "long"},
      "email":        {"type": "keyword"},
      "name":         {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "gender":       {"type": "keyword"},
      "phone_number": {"type": "keyword"},
      "avatar_url":   {"type": "keyword", "index": false},
      "created_at":   {"type": "date"},
      "updated_at":   {"type": "date"}
    }
  }
}`

type userDoc struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	PhoneNumber string `json:"phone_number"`
	AvatarURL   string `json:"avatar_url"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// UserIndex mirrors user profiles into an Elasticsearch index.
type UserIndex struct {
	es    *elasticsearch.Client
	index string
}

func NewUserIndex(es *elasticsearch.Client, index string) *UserIndex {
	return &UserIndex{es: es, index: index}
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (x *UserIndex) EnsureIndex(ctx context.Context) error {
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := esapi.IndicesExistsRequest{Index: []string{x.index}}.Do(c, x.es)
	if err != nil {
		return err
	}
	_ = res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = esapi.IndicesCreateRequest{Index: x.index, Body: strings.NewReader(indexMapping)}.Do(c, x.es)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", x.index, res.Status())
	}
	return nil
}

func (x *UserIndex) Index(ctx context.Context, u *entity.User) error {
	b, err := json.Marshal(userDoc{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Gender:      string(u.Gender),
		PhoneNumber: u.PhoneNumber,
		AvatarURL:   u.AvatarURL,
		CreatedAt:   u.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   u.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: strconv.FormatInt(u.ID, 10),
		Body:       bytes.NewReader(b),
		Refresh:    "wait_for",
	}
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := req.Do(c, x.es)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("index user %d: %s", u.ID, res.Status())
	}
	return nil
}

// buildSearchQuery expresses "email equals q OR name contains q
// (case-insensitive)" ordered by id. An empty q matches everything.
func buildSearchQuery(q string) map[string]any {
	q = strings.TrimSpace(q)
	query := map[string]any{"match_all": map[string]any{}}
	if q != "" {
		query = map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"term": map[string]any{"email": strings.ToLower(q)}},
					map[string]any{"wildcard": map[string]any{
						"name.keyword": map[string]any{
							"value":            "*" + escapeWildcard(q) + "*",
							"case_insensitive": true,
						},
					}},
				},
				"minimum_should_match": 1,
			},
		}
	}
	return map[string]any{
		"query":            query,
		"sort":             []any{map[string]any{"id": map[string]any{"order": "asc"}}},
		"size":             maxResults,
		"track_total_hits": maxResults + 1,
	}
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string { return wildcardEscaper.Replace(s) }

func (x *UserIndex) Search(ctx context.Context, q string) ([]entity.User, error) {
	b, err := json.Marshal(buildSearchQuery(q))
	if err != nil {
		return nil, err
	}

	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := x.es.Search(x.es.Search.WithContext(c), x.es.Search.WithIndex(x.index), x.es.Search.WithBody(bytes.NewReader(b)))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.IsError() {
		return nil, fmt.Errorf("search users: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source userDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if parsed.Hits.Total.Value > len(parsed.Hits.Hits) {
		return nil, fmt.Errorf("search users %q: %d of %d hits: %w",
			q, len(parsed.Hits.Hits), parsed.Hits.Total.Value, repository.ErrIndexTruncated)
	}

	out := make([]entity.User, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		d := h.Source
		u := entity.User{
			ID:          d.ID,
			Email:       d.Email,
			Username:    d.Email,
			Name:        d.Name,
			Gender:      entity.Gender(d.Gender),
			PhoneNumber: d.PhoneNumber,
			AvatarURL:   d.AvatarURL,
		}
		u.CreatedAt, _ = time.Parse(time.RFC3339Nano, d.CreatedAt)
		u.UpdatedAt, _ = time.Parse(time.RFC3339Nano, d.UpdatedAt)
		out = append(out, u)
	}
	return out, nil
}

var _ repository.UserIndex = (*UserIndex)(nil)
