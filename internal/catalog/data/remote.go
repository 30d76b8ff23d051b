package data

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lk2023060901/file-catalog/internal/catalog/biz"
	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// maxRemotePages bounds how many paginated responses one List follows
const maxRemotePages = 1000

// RemoteConfig 远程目录后端配置
type RemoteConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Token       string        `mapstructure:"token"`
	MediaPrefix string        `mapstructure:"media_prefix"` // stripped from file URLs to get the object key
}

// RemoteRepo 通过 REST API 访问上传服务的目录
type RemoteRepo struct {
	base   *url.URL
	cfg    RemoteConfig
	client *http.Client
	logger *logger.Logger
}

// NewRemoteRepo creates a client for the upload service at cfg.BaseURL
func NewRemoteRepo(cfg RemoteConfig, log *logger.Logger) (*RemoteRepo, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &RemoteRepo{
		base: base,
		cfg:  cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: log.Named("remote_repo"),
	}, nil
}

// List 查询目录，后端按条件预过滤，分页结果会被全部取回
func (r *RemoteRepo) List(ctx context.Context, p biz.Predicate) ([]*biz.Entry, error) {
	next := r.endpoint("api/files/") + "?" + listParams(p).Encode()
	entries := make([]*biz.Entry, 0)

	for page := 0; next != ""; page++ {
		if page == maxRemotePages {
			return nil, fmt.Errorf("%w: more than %d result pages", biz.ErrTransport, maxRemotePages)
		}

		body, err := r.do(ctx, http.MethodGet, next)
		if err != nil {
			return nil, err
		}
		if !gjson.ValidBytes(body) {
			return nil, fmt.Errorf("%w: malformed list response", biz.ErrTransport)
		}

		doc := gjson.ParseBytes(body)
		items := doc
		next = ""
		if doc.IsObject() {
			items = doc.Get("results")
			next = doc.Get("next").String()
		}
		if !items.IsArray() {
			return nil, fmt.Errorf("%w: list response has no results array", biz.ErrTransport)
		}

		var parseErr error
		items.ForEach(func(_, item gjson.Result) bool {
			e, err := r.parseEntry(item)
			if err != nil {
				parseErr = err
				return false
			}
			entries = append(entries, e)
			return true
		})
		if parseErr != nil {
			return nil, parseErr
		}
	}
	return entries, nil
}

// Get 获取单个条目
func (r *RemoteRepo) Get(ctx context.Context, id string) (*biz.Entry, error) {
	body, err := r.do(ctx, http.MethodGet, r.endpoint("api/files/"+url.PathEscape(id)+"/"))
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed entry response", biz.ErrTransport)
	}
	return r.parseEntry(gjson.ParseBytes(body))
}

// Delete 删除条目，引用计数由后端维护
func (r *RemoteRepo) Delete(ctx context.Context, id string) error {
	_, err := r.do(ctx, http.MethodDelete, r.endpoint("api/files/"+url.PathEscape(id)+"/"))
	return err
}

func (r *RemoteRepo) endpoint(path string) string {
	return r.base.JoinPath(path).String()
}

func (r *RemoteRepo) do(ctx context.Context, method, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Token "+r.cfg.Token)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.WithContext(ctx).Warn("backend request failed", zap.String("method", method), zap.String("url", target), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", biz.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", biz.ErrTransport, err)
	}

	r.logger.WithContext(ctx).Debug("backend request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// statusError maps backend status codes onto catalog errors
func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	detail := gjson.GetBytes(body, "detail").String()
	if detail == "" {
		detail = http.StatusText(status)
	}

	switch {
	case status == http.StatusNotFound:
		return biz.ErrNotFound
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", biz.ErrReferenced, detail)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", biz.ErrConflict, detail)
	default:
		return fmt.Errorf("%w: backend returned %d: %s", biz.ErrTransport, status, detail)
	}
}

// listParams encodes p the way the upload service filters: sizes in bytes, bounds as ISO 8601
func listParams(p biz.Predicate) url.Values {
	v := url.Values{}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.FileType != "" {
		v.Set("file_type", p.FileType)
	}
	if p.SizeMin != nil {
		v.Set("size_min", strconv.FormatInt(*p.SizeMin, 10))
	}
	if p.SizeMax != nil {
		v.Set("size_max", strconv.FormatInt(*p.SizeMax, 10))
	}
	// the backend keeps microseconds; widen the range and let the local filter trim it
	if p.UploadedAfter != nil {
		v.Set("uploaded_after", p.UploadedAfter.UTC().Truncate(time.Microsecond).Format(isoMicro))
	}
	if p.UploadedBefore != nil {
		t := p.UploadedBefore.UTC()
		if tr := t.Truncate(time.Microsecond); !tr.Equal(t) {
			t = tr.Add(time.Microsecond)
		}
		v.Set("uploaded_before", t.Format(isoMicro))
	}
	return v
}

const isoMicro = "2006-01-02T15:04:05.000000Z07:00"

func (r *RemoteRepo) parseEntry(item gjson.Result) (*biz.Entry, error) {
	id := item.Get("id").String()
	if id == "" {
		return nil, fmt.Errorf("%w: entry without id", biz.ErrTransport)
	}

	uploadedAt, err := time.Parse(time.RFC3339Nano, item.Get("uploaded_at").String())
	if err != nil {
		return nil, fmt.Errorf("%w: entry %s has invalid uploaded_at: %w", biz.ErrTransport, id, err)
	}

	return &biz.Entry{
		ID:               id,
		OriginalFilename: item.Get("original_filename").String(),
		FileType:         item.Get("file_type").String(),
		SizeBytes:        item.Get("size").Int(),
		UploadedAt:       uploadedAt,
		DownloadLocator:  r.locator(item.Get("file").String()),
		ContentHash:      optionalString(item.Get("content_hash")),
		IsDuplicate:      item.Get("is_duplicate").Bool(),
		ReferenceCount:   int(item.Get("reference_count").Int()),
		ReferencedFileID: optionalString(item.Get("referenced_file_id")),
	}, nil
}

// locator turns the serialized file field, often an absolute media URL, into an object key
func (r *RemoteRepo) locator(file string) string {
	if u, err := url.Parse(file); err == nil && u.Scheme != "" {
		file = u.Path
	}
	file = strings.TrimPrefix(file, "/")
	if prefix := strings.Trim(r.cfg.MediaPrefix, "/"); prefix != "" {
		file = strings.TrimPrefix(file, prefix+"/")
	}
	return file
}

func optionalString(v gjson.Result) *string {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	s := v.String()
	if s == "" {
		return nil
	}
	return &s
}

