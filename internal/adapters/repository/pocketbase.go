package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// PocketBaseStore talks to a PocketBase server over its REST API.
//
// Conditional updates read the record, compare its revision field and then
// patch it. That check is not atomic on the server, so callers that need
// strict single-writer semantics also serialize writes in process.
type PocketBaseStore struct {
	baseURL *url.URL
	client  *http.Client
	opts    options
}

var _ Store = (*PocketBaseStore)(nil)

// NewPocketBaseStore creates a client for the server at baseURL.
func NewPocketBaseStore(baseURL string, opts ...Option) (*PocketBaseStore, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid pocketbase url %q", ErrInvalidInput, baseURL)
	}
	o := applyOptions(opts)
	client := o.httpClient
	if client == nil {
		client = &http.Client{Timeout: o.timeout}
	}
	return &PocketBaseStore{baseURL: u, client: client, opts: o}, nil
}

type pbList struct {
	Page       int               `json:"page"`
	PerPage    int               `json:"perPage"`
	TotalItems int               `json:"totalItems"`
	TotalPages int               `json:"totalPages"`
	Items      []json.RawMessage `json:"items"`
}

type pbError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *PocketBaseStore) recordsPath(collection string, id ...string) string {
	p := "/api/collections/" + url.PathEscape(collection) + "/records"
	if len(id) > 0 {
		p += "/" + url.PathEscape(id[0])
	}
	return p
}

func (s *PocketBaseStore) Create(ctx context.Context, collection string, fields map[string]any) (Record, error) {
	if err := validateName(collection); err != nil {
		return Record{}, err
	}
	data, err := normalizeFields(fields)
	if err != nil {
		return Record{}, err
	}
	data[FieldRevision] = 1
	var raw json.RawMessage
	if err := s.do(ctx, http.MethodPost, s.recordsPath(collection), nil, data, &raw); err != nil {
		return Record{}, err
	}
	return decodePBRecord(raw)
}

func (s *PocketBaseStore) GetOne(ctx context.Context, collection, id string) (Record, error) {
	if err := validateName(collection); err != nil {
		return Record{}, err
	}
	var raw json.RawMessage
	if err := s.do(ctx, http.MethodGet, s.recordsPath(collection, id), nil, nil, &raw); err != nil {
		return Record{}, err
	}
	return decodePBRecord(raw)
}

func (s *PocketBaseStore) GetList(ctx context.Context, collection string, page, perPage int, opts ListOptions) (ListResult, error) {
	return s.list(ctx, collection, page, perPage, opts, false)
}

func (s *PocketBaseStore) list(ctx context.Context, collection string, page, perPage int, opts ListOptions, skipTotal bool) (ListResult, error) {
	if err := validateName(collection); err != nil {
		return ListResult{}, err
	}
	if perPage < 1 {
		return ListResult{}, fmt.Errorf("%w: perPage must be >= 1", ErrInvalidInput)
	}
	if page < 1 {
		page = 1
	}
	filter, err := opts.Filter.normalized()
	if err != nil {
		return ListResult{}, err
	}
	if err := opts.Sort.validate(); err != nil {
		return ListResult{}, err
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(perPage))
	if len(filter) > 0 {
		q.Set("filter", filter.String())
	}
	if len(opts.Sort) > 0 {
		q.Set("sort", opts.Sort.String())
	}
	if skipTotal {
		q.Set("skipTotal", "1")
	}

	var body pbList
	if err := s.do(ctx, http.MethodGet, s.recordsPath(collection), q, nil, &body); err != nil {
		return ListResult{}, err
	}
	res := ListResult{
		Page:       body.Page,
		PerPage:    body.PerPage,
		TotalItems: body.TotalItems,
		TotalPages: body.TotalPages,
		Items:      make([]Record, 0, len(body.Items)),
	}
	for _, raw := range body.Items {
		rec, err := decodePBRecord(raw)
		if err != nil {
			return ListResult{}, err
		}
		res.Items = append(res.Items, rec)
	}
	return res, nil
}

func (s *PocketBaseStore) GetFullList(ctx context.Context, collection string, opts ListOptions) ([]Record, error) {
	var out []Record
	for page := 1; ; page++ {
		res, err := s.list(ctx, collection, page, s.opts.pageSize, opts, false)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Items...)
		if page >= res.TotalPages || len(res.Items) == 0 {
			break
		}
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

func (s *PocketBaseStore) GetFirstListItem(ctx context.Context, collection string, opts ListOptions) (Record, error) {
	res, err := s.list(ctx, collection, 1, 1, opts, true)
	if err != nil {
		return Record{}, err
	}
	if len(res.Items) == 0 {
		return Record{}, fmt.Errorf("%s: %w", collection, ErrNotFound)
	}
	return res.Items[0], nil
}

func (s *PocketBaseStore) Update(ctx context.Context, collection, id string, fields map[string]any, opts ...UpdateOption) (Record, error) {
	data, err := normalizeFields(fields)
	if err != nil {
		return Record{}, err
	}
	uo := applyUpdateOptions(opts)

	current, err := s.GetOne(ctx, collection, id)
	if err != nil {
		return Record{}, err
	}
	if uo.ifRevision != nil && *uo.ifRevision != current.Revision {
		return Record{}, fmt.Errorf("%s/%s at revision %d, expected %d: %w",
			collection, id, current.Revision, *uo.ifRevision, ErrConflict)
	}
	data[FieldRevision] = current.Revision + 1

	var raw json.RawMessage
	if err := s.do(ctx, http.MethodPatch, s.recordsPath(collection, id), nil, data, &raw); err != nil {
		return Record{}, err
	}
	return decodePBRecord(raw)
}

func (s *PocketBaseStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateName(collection); err != nil {
		return err
	}
	return s.do(ctx, http.MethodDelete, s.recordsPath(collection, id), nil, nil, nil)
}

func (s *PocketBaseStore) Ping(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/api/health", nil, nil, nil)
}

// Close releases idle connections.
func (s *PocketBaseStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *PocketBaseStore) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *s.baseURL
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		body = bytes.NewReader(raw)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.opts.token != "" {
		req.Header.Set("Authorization", s.opts.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUpstream, path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp.StatusCode, method, path, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}
	return nil
}

func statusError(status int, method, path string, payload []byte) error {
	var pe pbError
	_ = json.Unmarshal(payload, &pe)
	msg := pe.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	var kind error
	switch {
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status == http.StatusBadRequest:
		kind = ErrInvalidInput
	case status == http.StatusConflict:
		kind = ErrConflict
	default:
		kind = ErrUpstream
	}
	return fmt.Errorf("%w: %s %s: %d %s", kind, method, path, status, msg)
}

// pbMeta lists response keys that are not record data.
var pbMeta = map[string]bool{"collectionId": true, "collectionName": true, "expand": true}

func decodePBRecord(raw json.RawMessage) (Record, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Record{}, fmt.Errorf("%w: decode record: %v", ErrUpstream, err)
	}
	rec := Record{Fields: make(map[string]any, len(m))}
	for k, v := range m {
		switch {
		case k == FieldID:
			rec.ID, _ = v.(string)
		case k == FieldCreated:
			s, _ := v.(string)
			rec.Created, _ = ParseTime(s)
		case k == FieldUpdated:
			s, _ := v.(string)
			rec.Updated, _ = ParseTime(s)
		case k == FieldRevision:
			f, _ := toFloat(v)
			rec.Revision = int64(f)
		case pbMeta[k]:
		default:
			rec.Fields[k] = v
		}
	}
	if rec.ID == "" {
		return Record{}, errors.Join(ErrUpstream, errors.New("record without id"))
	}
	return rec, nil
}
