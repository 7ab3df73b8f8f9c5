package infoblox

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

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
)

// codeProto is the WAPI error code for a result set too large to return
// without paging.
const codeProto = "Client.Ibap.Proto"

var (
	// ErrNotFound is returned when a reference lookup matches nothing.
	ErrNotFound = errors.New("object not found")

	// ErrAmbiguous is returned when a reference lookup matches several objects.
	ErrAmbiguous = errors.New("ambiguous result")
)

// APIError is a non-2xx WAPI response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Text    string `json:"text"`
	Message string `json:"Error"`
}

func (e *APIError) Error() string {
	msg := e.Text
	if msg == "" {
		msg = e.Message
	}
	if e.Code != "" {
		return fmt.Sprintf("infoblox: status %d: %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("infoblox: status %d: %s", e.Status, msg)
}

// wapi is a minimal Infoblox WAPI client.
type wapi struct {
	baseURL  string
	username string
	password string
	pageSize int
	client   *http.Client
	backoff  wait.Backoff
	log      logr.Logger
}

// do builds and executes a WAPI request and decodes the JSON response into out.
func (w *wapi) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("infoblox: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	u := strings.TrimRight(w.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("infoblox: build request: %w", err)
	}
	req.SetBasicAuth(w.username, w.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w.log.V(1).Info("wapi request", "method", method, "path", path, "query", query.Encode())
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("infoblox: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("infoblox: read %s %s response: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || (apiErr.Text == "" && apiErr.Message == "") {
			apiErr.Text = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("infoblox: decode %s %s response: %w", method, path, err)
	}
	return nil
}

// transient reports whether a failed read is worth retrying.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError || apiErr.Status == http.StatusTooManyRequests
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// get issues a GET, retrying transient failures with backoff.
func (w *wapi) get(ctx context.Context, path string, query url.Values, out any) error {
	return retry.OnError(w.backoff, transient, func() error {
		return w.do(ctx, http.MethodGet, path, query, nil, out)
	})
}

// list returns all objects of a type matching query. A request rejected as
// too large is reissued with paging.
func list[T any](ctx context.Context, w *wapi, path string, query url.Values) ([]T, error) {
	var out []T
	err := w.get(ctx, path, query, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeProto {
		w.log.V(1).Info("result set too large, switching to paging", "path", path)
		return listPaged[T](ctx, w, path, query)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func listPaged[T any](ctx context.Context, w *wapi, path string, query url.Values) ([]T, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("_paging", "1")
	q.Set("_max_results", strconv.Itoa(w.pageSize))
	q.Set("_return_as_object", "1")

	var out []T
	for {
		var page struct {
			Result     []T    `json:"result"`
			NextPageID string `json:"next_page_id"`
		}
		if err := w.get(ctx, path, q, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Result...)
		if page.NextPageID == "" {
			return out, nil
		}
		q = url.Values{"_page_id": {page.NextPageID}}
	}
}

type refObject struct {
	Ref string `json:"_ref"`
}

// ref returns the reference of the single object of a type matching query.
func (w *wapi) ref(ctx context.Context, path string, query url.Values) (string, error) {
	objs, err := list[refObject](ctx, w, path, query)
	if err != nil {
		return "", err
	}
	switch len(objs) {
	case 0:
		return "", fmt.Errorf("infoblox: %s %s: %w", path, query.Encode(), ErrNotFound)
	case 1:
		return objs[0].Ref, nil
	default:
		return "", fmt.Errorf("infoblox: %s %s matched %d objects: %w", path, query.Encode(), len(objs), ErrAmbiguous)
	}
}

// create posts a new object and returns its reference.
func (w *wapi) create(ctx context.Context, path string, body any) (string, error) {
	var ref string
	if err := w.do(ctx, http.MethodPost, path, nil, body, &ref); err != nil {
		return "", err
	}
	return ref, nil
}

// update replaces fields of the object at ref.
func (w *wapi) update(ctx context.Context, ref string, body any) (string, error) {
	var newRef string
	if err := w.do(ctx, http.MethodPut, ref, nil, body, &newRef); err != nil {
		return "", err
	}
	return newRef, nil
}

// remove deletes the object at ref.
func (w *wapi) remove(ctx context.Context, ref string) error {
	return w.do(ctx, http.MethodDelete, ref, nil, nil, nil)
}

// call invokes a WAPI function on the object at ref.
func (w *wapi) call(ctx context.Context, ref, function string, body any) error {
	return w.do(ctx, http.MethodPost, ref, url.Values{"_function": {function}}, body, nil)
}
