package stability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"adstudio/internal/task"
)

// ErrTimeout reports that the vendor did not answer within the configured
// client deadline. Callers surface it as a generic "try again" condition.
var ErrTimeout = errors.New("stability: request timed out")

// VendorError carries a non-2xx vendor response. Message holds the vendor's
// error body verbatim so it can be shown to the user unchanged.
type VendorError struct {
	StatusCode int
	Message    string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("stability: http %d: %s", e.StatusCode, e.Message)
}

// Result is a successful generation: raw image bytes plus the metadata the
// vendor reports alongside them.
type Result struct {
	Image       []byte
	ContentType string
	Seed        string
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	Timeout      time.Duration
	PollInterval time.Duration
}

// Client talks to the Stability AI v2beta stable-image endpoints. One
// Generate call produces one outbound request (plus result polls for the
// async tasks); nothing is retried.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	key          string
	timeout      time.Duration
	pollInterval time.Duration
}

// NewClient builds a Client, applying defaults for anything unset.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.stability.ai"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 10 * time.Second
	}
	return &Client{
		httpClient:   client,
		baseURL:      base,
		key:          strings.TrimSpace(opts.APIKey),
		timeout:      timeout,
		pollInterval: poll,
	}
}

type endpoint struct {
	path       string
	imageField string
	async      bool
}

var endpoints = map[task.Task]endpoint{
	task.AdGeneration:             {path: "/v2beta/stable-image/generate/core"},
	task.ControlSketch:            {path: "/v2beta/stable-image/control/sketch", imageField: "image"},
	task.ControlStructure:         {path: "/v2beta/stable-image/control/structure", imageField: "image"},
	task.SearchRecolor:            {path: "/v2beta/stable-image/edit/search-and-recolor", imageField: "image"},
	task.SearchReplace:            {path: "/v2beta/stable-image/edit/search-and-replace", imageField: "image"},
	task.ReplaceBackgroundRelight: {path: "/v2beta/stable-image/edit/replace-background-and-relight", imageField: "subject_image", async: true},
	task.UpscaleCreative:          {path: "/v2beta/stable-image/upscale/creative", imageField: "image", async: true},
}

// Generate performs one generation call for the given task. The input is
// assumed to be validated; only the fields relevant to the task are encoded.
func (c *Client) Generate(ctx context.Context, t task.Task, in task.Input) (*Result, error) {
	if c == nil {
		return nil, errors.New("stability: client not configured")
	}
	if c.key == "" {
		return nil, errors.New("stability: API key is missing")
	}
	ep, ok := endpoints[t]
	if !ok {
		return nil, fmt.Errorf("stability: no endpoint for task %q", t)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType, err := encodeForm(ep, t, in)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ep.path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", contentType)
	if ep.async {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "image/*")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, mapTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, vendorError(resp)
	}

	if ep.async {
		return c.awaitResult(ctx, resp)
	}
	return readImage(resp)
}

// awaitResult polls the results endpoint for an async generation until the
// vendor stops answering 202. The poll budget is the ambient context
// deadline, so the caller still sees one bounded call.
func (c *Client) awaitResult(ctx context.Context, submit *http.Response) (*Result, error) {
	var accepted struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(submit.Body).Decode(&accepted); err != nil {
		return nil, fmt.Errorf("stability: decode async response: %w", err)
	}
	if accepted.ID == "" {
		return nil, errors.New("stability: async response missing generation id")
	}

	pollURL := c.baseURL + "/v2beta/results/" + accepted.ID
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.key)
		req.Header.Set("Accept", "*/*")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, mapTransportErr(ctx, err)
		}
		if resp.StatusCode == http.StatusAccepted {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			select {
			case <-ctx.Done():
				return nil, ErrTimeout
			case <-time.After(c.pollInterval):
			}
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, vendorError(resp)
		}
		return readImage(resp)
	}
}

func readImage(resp *http.Response) (*Result, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &Result{
		Image:       data,
		ContentType: contentType,
		Seed:        resp.Header.Get("seed"),
	}, nil
}

func vendorError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	return &VendorError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}

func mapTransportErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// encodeForm builds the multipart body for the task. Zero-valued optional
// parameters are omitted so the vendor applies its own defaults.
func encodeForm(ep endpoint, t task.Task, in task.Input) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := map[string]string{}
	put := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}

	put("prompt", strings.TrimSpace(in.Prompt))
	put("negative_prompt", strings.TrimSpace(in.NegativePrompt))
	put("output_format", in.OutputFormat)
	if in.Seed > 0 {
		put("seed", strconv.Itoa(in.Seed))
	}

	switch t {
	case task.AdGeneration:
		put("aspect_ratio", in.AspectRatio)
		put("size", in.Size)
	case task.ControlSketch, task.ControlStructure:
		if in.ControlStrength > 0 {
			put("control_strength", formatFloat(in.ControlStrength))
		}
	case task.SearchRecolor:
		put("mode", "search")
		put("select_prompt", strings.TrimSpace(in.SelectPrompt))
		if in.GrowMask > 0 {
			put("grow_mask", strconv.Itoa(in.GrowMask))
		}
	case task.SearchReplace:
		put("mode", "search")
		put("search_prompt", strings.TrimSpace(in.SearchPrompt))
	case task.ReplaceBackgroundRelight:
		put("background_prompt", strings.TrimSpace(in.BackgroundPrompt))
		put("foreground_prompt", strings.TrimSpace(in.ForegroundPrompt))
		if in.PreserveOriginalSubject > 0 {
			put("preserve_original_subject", formatFloat(in.PreserveOriginalSubject))
		}
		if dir := strings.TrimSpace(in.LightDirection); dir != "" && dir != "none" {
			put("light_source_direction", dir)
			if in.LightStrength > 0 {
				put("light_source_strength", formatFloat(in.LightStrength))
			}
		}
	case task.UpscaleCreative:
		if in.Creativity > 0 {
			put("creativity", formatFloat(in.Creativity))
		}
	}

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			w.Close()
			return nil, "", err
		}
	}

	if ep.imageField != "" && len(in.SourceImage) > 0 {
		name := in.SourceName
		if name == "" {
			name = "source.png"
		}
		part, err := w.CreateFormFile(ep.imageField, name)
		if err != nil {
			w.Close()
			return nil, "", err
		}
		if _, err := part.Write(in.SourceImage); err != nil {
			w.Close()
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
