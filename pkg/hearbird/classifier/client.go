package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
	"github.com/himanishpuri/HearBird/pkg/logger"
)

const (
	// FileField is the multipart field carrying the audio.
	FileField = "file"

	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 8 << 20
	maxErrorBody     = 4 << 10
)

// User-facing messages of the classified errors.
const (
	NetworkErrorMessage    = "Unable to reach the bird identification service. Check your connection and try again."
	ValidationErrorMessage = "The bird identification service returned an unexpected response."
)

// Classifier submits one capture and returns the service's predictions.
type Classifier interface {
	Submit(ctx context.Context, capture *model.AudioCapture) (*model.Response, error)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Location is an optional recording position forwarded to the service.
type Location struct {
	Lat float64
	Lon float64
}

// Client talks to the classification endpoint. Each Submit is a single
// attempt.
type Client struct {
	endpoint string
	http     *http.Client
	shape    Shape
	location *Location
	log      Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

func WithShape(s Shape) Option {
	return func(c *Client) { c.shape = s }
}

func WithLocation(lat, lon float64) Option {
	return func(c *Client) { c.location = &Location{Lat: lat, Lon: lon} }
}

func WithLogger(log Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient builds a client for an absolute http(s) endpoint.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q: want an absolute http(s) URL", endpoint)
	}

	c := &Client{
		endpoint: u.String(),
		http:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.GetLogger().Named("classifier")
	}
	return c, nil
}

func (c *Client) Endpoint() string { return c.endpoint }

// Submit uploads the capture and validates the answer. Failures are returned
// as *model.Error of kind network, server or validation.
func (c *Client) Submit(ctx context.Context, capture *model.AudioCapture) (*model.Response, error) {
	if capture == nil {
		return nil, errors.New("nil audio capture")
	}

	body, contentType, err := c.encode(capture)
	if err != nil {
		return nil, fmt.Errorf("encoding upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	c.log.Debugf("submitting %s (%s, %d bytes) to %s", capture.Filename(), capture.MimeType(), capture.Size(), c.endpoint)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, model.NewError(model.KindNetwork, NetworkErrorMessage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := fmt.Sprintf("classification service returned %d", resp.StatusCode)
		if t := strings.TrimSpace(string(text)); t != "" {
			msg += ": " + t
		}
		return nil, model.NewError(model.KindServer, msg, fmt.Errorf("HTTP %s", resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, model.NewError(model.KindNetwork, NetworkErrorMessage, err)
	}
	if len(data) > maxResponseBytes {
		return nil, model.NewError(model.KindValidation, ValidationErrorMessage,
			fmt.Errorf("response body exceeds %d bytes", maxResponseBytes))
	}

	parsed, err := Decode(data, c.shape)
	if err != nil {
		return nil, model.NewError(model.KindValidation, ValidationErrorMessage, err)
	}

	c.log.Infof("classified %s: %d detection(s) in %v", capture.Filename(), len(parsed.Results), time.Since(start).Round(time.Millisecond))
	return parsed, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (c *Client) encode(capture *model.AudioCapture) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FileField, quoteEscaper.Replace(capture.Filename())))
	h.Set("Content-Type", capture.MimeType())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(capture.Bytes()); err != nil {
		return nil, "", err
	}

	if c.location != nil {
		if err := w.WriteField("lat", strconv.FormatFloat(c.location.Lat, 'f', -1, 64)); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("lon", strconv.FormatFloat(c.location.Lon, 'f', -1, 64)); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
