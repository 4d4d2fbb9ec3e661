package backendsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/academy"
	"github.com/trackmyacademy/dashboard/core/dashboard"
	"github.com/trackmyacademy/dashboard/core/user"
)

const serviceName = "backend"

// Client talks to the academy backend REST API on behalf of a signed-in user.
type Client struct {
	baseURL string
	rest    *rest.Client
}

var (
	_ dashboard.Backend = (*Client)(nil)
	_ user.Directory    = (*Client)(nil)
	_ academy.Lister    = (*Client)(nil)
)

func NewClient(conf *core.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(conf.Backend.BaseURL, "/"),
		rest:    &rest.Client{HTTPClient: &http.Client{Timeout: conf.Backend.Timeout}},
	}
}

// errorBody is the error payload of the backend; the first non-empty field wins.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (b errorBody) String() string {
	for _, s := range []string{b.Error, b.Message, b.Detail} {
		if s != "" {
			return s
		}
	}
	return ""
}

type request struct {
	method rest.Method
	path   string
	token  string
	auth   bool // send the bearer token; an empty token fails fast
	query  map[string]string
	body   interface{}

	rawBody     []byte // takes precedence over body
	contentType string
}

func (c *Client) do(ctx context.Context, r request, out interface{}) error {
	if r.auth && r.token == "" {
		return core.ErrUnauthorized
	}

	req := rest.Request{
		Method:      r.method,
		BaseURL:     c.baseURL + r.path,
		Headers:     map[string]string{"Accept": "application/json"},
		QueryParams: r.query,
	}
	if r.auth {
		req.Headers["Authorization"] = "Bearer " + r.token
	}
	switch {
	case r.rawBody != nil:
		req.Body = r.rawBody
		req.Headers["Content-Type"] = r.contentType
	case r.body != nil:
		body, err := json.Marshal(r.body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		req.Body = body
		req.Headers["Content-Type"] = "application/json"
	}

	res, err := c.rest.SendWithContext(ctx, req)
	if err != nil {
		return core.NewTransportError(serviceName, 0, err)
	}
	if err = checkStatus(res); err != nil {
		return err
	}

	if out == nil || strings.TrimSpace(res.Body) == "" {
		return nil
	}
	if err = json.Unmarshal([]byte(res.Body), out); err != nil {
		return core.NewTransportError(serviceName, res.StatusCode, errors.Wrap(err, "decoding response"))
	}
	return nil
}

// checkStatus maps a non-2xx response to the error taxonomy.
func checkStatus(res *rest.Response) error {
	switch code := res.StatusCode; {
	case code < http.StatusBadRequest:
		return nil
	case code == http.StatusUnauthorized:
		return core.ErrUnauthorized
	case code == http.StatusForbidden:
		return core.ErrForbidden
	case code == http.StatusNotFound:
		return core.ErrNotFound
	case code >= http.StatusInternalServerError:
		return core.NewTransportError(serviceName, code, nil)
	default:
		var body errorBody
		msg := strings.TrimSpace(res.Body)
		if err := json.Unmarshal([]byte(res.Body), &body); err == nil && body.String() != "" {
			msg = body.String()
		}
		if msg == "" {
			msg = http.StatusText(code)
		}
		return core.NewRejectionError(code, msg)
	}
}

func (c *Client) get(ctx context.Context, token, path string, out interface{}) error {
	return c.do(ctx, request{method: rest.Get, path: path, token: token, auth: true}, out)
}

func (c *Client) send(ctx context.Context, method rest.Method, token, path string, in, out interface{}) error {
	return c.do(ctx, request{method: method, path: path, token: token, auth: true, body: in}, out)
}

func idPath(format, id string) string {
	return fmt.Sprintf(format, url.PathEscape(id))
}

// Me returns the profile of the user owning `token`.
func (c *Client) Me(ctx context.Context, token string) (user.User, error) {
	var usr user.User
	err := c.get(ctx, token, "/api/auth/me", &usr)
	return usr, errors.Wrap(err, "getting current user")
}

// SignUp registers a new user; it needs no token.
func (c *Client) SignUp(ctx context.Context, su user.SignUp) (user.User, error) {
	var usr user.User
	err := c.do(ctx, request{method: rest.Post, path: "/api/auth/signup", body: su}, &usr)
	return usr, errors.Wrap(err, "signing up")
}

// UploadLogo uploads an academy logo and returns its absolute URL.
func (c *Client) UploadLogo(ctx context.Context, token, filename string, file io.Reader) (string, error) {
	if token == "" {
		return "", core.ErrUnauthorized
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", errors.Wrap(err, "creating form file")
	}
	if _, err = io.Copy(part, file); err != nil {
		return "", errors.Wrap(err, "reading logo")
	}
	if err = w.Close(); err != nil {
		return "", errors.Wrap(err, "closing multipart writer")
	}

	var res struct {
		URL string `json:"url"`
	}
	err = c.do(ctx, request{
		method:      rest.Post,
		path:        "/api/upload/logo",
		token:       token,
		auth:        true,
		rawBody:     buf.Bytes(),
		contentType: w.FormDataContentType(),
	}, &res)
	if err != nil {
		return "", errors.Wrap(err, "uploading logo")
	}
	return c.JoinURL(res.URL), nil
}

// JoinURL resolves a backend-relative path (e.g. "/uploads/logo.png") against the base URL.
// Absolute URLs are returned unchanged.
func (c *Client) JoinURL(ref string) string {
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	return c.baseURL + "/" + strings.TrimLeft(ref, "/")
}
