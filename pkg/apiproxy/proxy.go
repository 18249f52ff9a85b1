package apiproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/LENAX/workflow-engine/pkg/core/types"
)

// DefaultTimeout 方法未配置超时时的默认值
const DefaultTimeout = 30 * time.Second

// maxBodyBytes 响应体读取上限
const maxBodyBytes = 10 << 20

// Proxy 基于方法目录的HTTP调用器，实现 types.ApiInvoker
type Proxy struct {
	catalog *Catalog
	client  *http.Client
	timeout time.Duration
}

var _ types.ApiInvoker = (*Proxy)(nil)

// NewProxy 创建代理，timeout<=0 时使用 DefaultTimeout
func NewProxy(catalog *Catalog, timeout time.Duration) *Proxy {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 20
	transport.IdleConnTimeout = 90 * time.Second
	return &Proxy{
		catalog: catalog,
		client:  &http.Client{Transport: transport},
		timeout: timeout,
	}
}

// Invoke 调用方法，HTTP错误码通过StatusCode返回
func (p *Proxy) Invoke(ctx context.Context, methodID string, req *types.ApiRequest) (*types.ApiResponse, error) {
	method, ok := p.catalog.Get(methodID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, methodID)
	}
	if req == nil {
		req = &types.ApiRequest{}
	}

	timeout := p.timeout
	if method.Timeout > 0 {
		timeout = method.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := buildRequest(ctx, method, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		log.Printf("❌ [ApiProxy] 调用失败: Method=%s, Error=%v", methodID, err)
		return nil, fmt.Errorf("调用API %s 失败: %w", methodID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("读取API %s 响应失败: %w", methodID, err)
	}
	log.Printf("🌐 [ApiProxy] %s %s -> %d (%s)", method.Method, httpReq.URL.Path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	body, err := decodeBody(method, resp.Header.Get("Content-Type"), raw)
	if err != nil {
		return nil, fmt.Errorf("解析API %s 响应失败: %w", methodID, err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return &types.ApiResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    headers,
	}, nil
}

func buildRequest(ctx context.Context, method *Method, req *types.ApiRequest) (*http.Request, error) {
	target, err := url.Parse(method.URL)
	if err != nil {
		return nil, fmt.Errorf("API方法 %s 的url无效: %w", method.ID, err)
	}
	if len(req.Query) > 0 {
		q := target.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	hasBody := req.Body != nil && method.Method != http.MethodGet && method.Method != http.MethodHead
	if hasBody {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	if hasBody {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range method.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func decodeBody(method *Method, contentType string, raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	kind := method.Response
	if kind == ResponseAuto {
		kind = detectKind(contentType)
	}
	switch kind {
	case ResponseJSON:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case ResponseHTML:
		return extractHTML(raw, method.Extract)
	default:
		return string(raw), nil
	}
}

func detectKind(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ResponseText
	}
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return ResponseJSON
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return ResponseHTML
	default:
		return ResponseText
	}
}

// extractHTML 按选择器提取字段；没有规则时返回标题和正文文本
// 选择器命中多个节点时返回文本列表
func extractHTML(raw []byte, rules map[string]string) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return map[string]any{
			"title": strings.TrimSpace(doc.Find("title").First().Text()),
			"text":  strings.Join(strings.Fields(doc.Find("body").Text()), " "),
		}, nil
	}

	out := make(map[string]any, len(rules))
	for field, selector := range rules {
		sel := doc.Find(selector)
		switch sel.Length() {
		case 0:
			out[field] = nil
		case 1:
			out[field] = strings.TrimSpace(sel.Text())
		default:
			texts := make([]any, 0, sel.Length())
			sel.Each(func(_ int, s *goquery.Selection) {
				texts = append(texts, strings.TrimSpace(s.Text()))
			})
			out[field] = texts
		}
	}
	return out, nil
}
