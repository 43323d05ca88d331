package rest

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
	"sync"
	"time"

	"github.com/habitlog/internal/store"
)

const defaultPerPage = 200

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client 通过托管记录服务的 REST API 实现 store.Store
// 同一查询的并发调用遵循后发优先：新请求会取消仍在途的旧请求，
// 旧调用方收到 store.ErrCancelled；远端副作用不受本地取消影响
type Client struct {
	baseURL string
	token   string
	http    httpDoer

	mu      sync.Mutex
	pending map[string]*pendingQuery
}

var (
	_ store.Store         = (*Client)(nil)
	_ store.Authenticator = (*Client)(nil)
)

// New 构造指向 baseURL 的远端存储客户端
// token 为服务默认令牌，请求 context 携带的令牌优先于它
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 15 * time.Second},
		pending: make(map[string]*pendingQuery),
	}
}

// SetHTTPClient 替换底层 HTTP 客户端，主要面向测试场景
func (c *Client) SetHTTPClient(client httpDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
		return
	}
	c.http = client
}

// Query 按条件查询集合
// Page 为零时翻页取出全部结果，大于零时只取那一页
func (c *Client) Query(ctx context.Context, collection string, q store.Query) ([]store.Record, error) {
	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	key := queryKey(collection, q)
	entry := c.registerQuery(key, cancel)
	defer c.releaseQuery(key, entry)

	if q.Page > 0 {
		records, _, err := c.queryPage(reqCtx, collection, q, q.Page)
		return records, err
	}

	var all []store.Record
	for page := 1; ; page++ {
		records, total, err := c.queryPage(reqCtx, collection, q, page)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
		if len(records) == 0 || len(all) >= total {
			return all, nil
		}
	}
}

// Create 在集合中新建一条记录
func (c *Client) Create(ctx context.Context, collection string, fields store.Fields) (store.Record, error) {
	body, status, err := c.do(ctx, http.MethodPost, c.recordsPath(collection), nil, fields)
	if err != nil {
		return store.Record{}, fmt.Errorf("create %s record: %w", collection, err)
	}
	if status >= http.StatusBadRequest {
		return store.Record{}, c.decodeError(collection, status, body)
	}
	return decodeRecord(collection, body)
}

// Update 对已有记录做稀疏更新，body 中没有的字段保持远端原值
func (c *Client) Update(ctx context.Context, collection, id string, fields store.Fields) (store.Record, error) {
	body, status, err := c.do(ctx, http.MethodPatch, c.recordsPath(collection)+"/"+url.PathEscape(id), nil, fields)
	if err != nil {
		return store.Record{}, fmt.Errorf("update %s record: %w", collection, err)
	}
	if status >= http.StatusBadRequest {
		return store.Record{}, c.decodeError(collection, status, body)
	}
	return decodeRecord(collection, body)
}

// Delete 删除一条记录
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	body, status, err := c.do(ctx, http.MethodDelete, c.recordsPath(collection)+"/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return fmt.Errorf("delete %s record: %w", collection, err)
	}
	if status >= http.StatusBadRequest {
		return c.decodeError(collection, status, body)
	}
	return nil
}

type authResponse struct {
	Token  string         `json:"token"`
	Record map[string]any `json:"record"`
}

// Authenticate 用令牌或账号密码向远端换取用户身份
func (c *Client) Authenticate(ctx context.Context, cred store.Credentials) (store.UserRef, error) {
	var (
		path    string
		payload any
	)
	if strings.TrimSpace(cred.Token) != "" {
		ctx = store.WithToken(ctx, strings.TrimSpace(cred.Token))
		path = "/api/collections/users/auth-refresh"
	} else {
		path = "/api/collections/users/auth-with-password"
		payload = map[string]string{"identity": cred.Name, "password": cred.Password}
	}

	body, status, err := c.do(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return store.UserRef{}, fmt.Errorf("authenticate: %w", err)
	}
	if status >= http.StatusBadRequest {
		apiErr := parseAPIError(status, body)
		return store.UserRef{}, fmt.Errorf("%s: %w", apiErr.Message, store.ErrPermissionDenied)
	}

	var auth authResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return store.UserRef{}, fmt.Errorf("decode auth response: %w", err)
	}

	ref := store.UserRef{}
	ref.ID, _ = auth.Record["id"].(string)
	if name, ok := auth.Record["name"].(string); ok && name != "" {
		ref.Name = name
	} else {
		ref.Name, _ = auth.Record["username"].(string)
	}
	if ref.ID == "" {
		return store.UserRef{}, fmt.Errorf("auth response missing record id: %w", store.ErrPermissionDenied)
	}
	return ref, nil
}

func (c *Client) queryPage(ctx context.Context, collection string, q store.Query, page int) ([]store.Record, int, error) {
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("perPage", strconv.Itoa(perPage))
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	if filter := renderFilter(q.Filter); filter != "" {
		params.Set("filter", filter)
	}

	body, status, err := c.do(ctx, http.MethodGet, c.recordsPath(collection), params, nil)
	if err != nil {
		// 请求没跑完就被更新的同类查询顶掉，按独立结果上报
		if cause := context.Cause(ctx); errors.Is(cause, store.ErrCancelled) {
			return nil, 0, store.ErrCancelled
		}
		return nil, 0, fmt.Errorf("query %s: %w", collection, err)
	}
	if status >= http.StatusBadRequest {
		return nil, 0, c.decodeError(collection, status, body)
	}

	var list struct {
		TotalItems int              `json:"totalItems"`
		Items      []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, 0, fmt.Errorf("decode %s list: %w", collection, err)
	}

	records := make([]store.Record, 0, len(list.Items))
	for _, item := range list.Items {
		records = append(records, recordFromMap(collection, item))
	}
	return records, list.TotalItems, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload any) ([]byte, int, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "habitlog/1.0")
	if token := c.requestToken(ctx); token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// requestToken 取请求级令牌，缺省回退到客户端默认令牌
func (c *Client) requestToken(ctx context.Context) string {
	if token := store.TokenFrom(ctx); token != "" {
		return token
	}
	return c.token
}

func (c *Client) recordsPath(collection string) string {
	return "/api/collections/" + url.PathEscape(collection) + "/records"
}

type pendingQuery struct {
	cancel context.CancelCauseFunc
}

// registerQuery 登记在途查询；相同键的旧查询立即被取消
func (c *Client) registerQuery(key string, cancel context.CancelCauseFunc) *pendingQuery {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.pending[key]; ok {
		prev.cancel(store.ErrCancelled)
	}
	entry := &pendingQuery{cancel: cancel}
	c.pending[key] = entry
	return entry
}

func (c *Client) releaseQuery(key string, entry *pendingQuery) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 只清理自己登记的条目，已被新查询顶掉时保持不动
	if c.pending[key] == entry {
		delete(c.pending, key)
	}
}

// queryKey 是后发优先取消的去重键，推导必须稳定：
// 相同集合 + 相同过滤与排序 视为同一查询
func queryKey(collection string, q store.Query) string {
	return "GET " + collection + "?" + renderFilter(q.Filter) + "&sort=" + q.Sort
}

func renderFilter(f store.Filter) string {
	if len(f) == 0 {
		return ""
	}
	parts := make([]string, 0, len(f))
	for _, cond := range f {
		parts = append(parts, fmt.Sprintf("%s %s %s", cond.Field, cond.Op, renderFilterValue(cond.Value)))
	}
	return strings.Join(parts, " && ")
}

func renderFilterValue(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return strconv.Quote(fmt.Sprint(val))
	}
}

type fieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiError struct {
	Code    int                   `json:"code"`
	Message string                `json:"message"`
	Data    map[string]fieldError `json:"data"`
}

func parseAPIError(status int, body []byte) apiError {
	apiErr := apiError{Code: status}
	_ = json.Unmarshal(body, &apiErr)
	if strings.TrimSpace(apiErr.Message) == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// decodeError 把远端错误响应翻译成存储层的错误分类
func (c *Client) decodeError(collection string, status int, body []byte) error {
	apiErr := parseAPIError(status, body)

	switch status {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s (check the collection access rules): %w", apiErr.Message, store.ErrPermissionDenied)
	}

	// 唯一约束横跨多个字段，远端可能把冲突记在其中任意一个上，
	// 因此逐字段识别信号而不是依赖固定的错误码
	for field, fe := range apiErr.Data {
		if isUniqueSignal(fe.Code, fe.Message) {
			return &store.ConstraintViolation{Collection: collection, Field: field, Reason: fe.Message}
		}
	}

	return fmt.Errorf("store responded %d on %s: %s", status, collection, apiErr.Message)
}

func isUniqueSignal(code, message string) bool {
	code = strings.ToLower(code)
	message = strings.ToLower(message)
	return strings.Contains(code, "unique") ||
		strings.Contains(message, "unique") ||
		strings.Contains(message, "already exists")
}

func decodeRecord(collection string, body []byte) (store.Record, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return store.Record{}, fmt.Errorf("decode %s record: %w", collection, err)
	}
	return recordFromMap(collection, raw), nil
}

func recordFromMap(collection string, raw map[string]any) store.Record {
	rec := store.Record{Collection: collection, Fields: store.Fields{}}
	for k, v := range raw {
		switch k {
		case "id":
			rec.ID, _ = v.(string)
		case "created":
			rec.Created, _ = v.(string)
		case "updated":
			rec.Updated, _ = v.(string)
		case "collectionId", "collectionName", "expand":
			// 系统字段，不进业务字段集合
		default:
			rec.Fields[k] = v
		}
	}
	return rec
}
