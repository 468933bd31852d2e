package stability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"adstudio/internal/task"
)

func TestGenerateCoreSendsOnlyRelevantFields(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4e, 0x47}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2beta/stable-image/generate/core" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		if got := r.Header.Get("Accept"); got != "image/*" {
			t.Fatalf("unexpected accept header: %s", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("prompt"); got != "red sports car on a beach" {
			t.Fatalf("prompt mismatch: %q", got)
		}
		if got := r.FormValue("size"); got != "512x512" {
			t.Fatalf("size mismatch: %q", got)
		}
		if _, ok := r.MultipartForm.Value["seed"]; ok {
			t.Fatalf("seed should be omitted when zero")
		}
		if len(r.MultipartForm.File) != 0 {
			t.Fatalf("no file parts expected, got %d", len(r.MultipartForm.File))
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("seed", "1234")
		_, _ = w.Write(png)
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL})
	res, err := client.Generate(context.Background(), task.AdGeneration, task.Input{
		Prompt:       "red sports car on a beach",
		OutputFormat: "png",
		Size:         "512x512",
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if string(res.Image) != string(png) {
		t.Fatalf("image bytes mismatch")
	}
	if res.ContentType != "image/png" {
		t.Fatalf("content type = %q", res.ContentType)
	}
	if res.Seed != "1234" {
		t.Fatalf("seed = %q, want 1234", res.Seed)
	}
}

func TestGenerateSearchReplaceAttachesImage(t *testing.T) {
	source := []byte("fake-image-bytes")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2beta/stable-image/edit/search-and-replace" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("search_prompt"); got != "sky" {
			t.Fatalf("search_prompt mismatch: %q", got)
		}
		if got := r.FormValue("prompt"); got != "sunset" {
			t.Fatalf("prompt mismatch: %q", got)
		}
		if got := r.FormValue("mode"); got != "search" {
			t.Fatalf("mode mismatch: %q", got)
		}
		if got := r.FormValue("seed"); got != "7" {
			t.Fatalf("seed mismatch: %q", got)
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("image part missing: %v", err)
		}
		defer file.Close()
		if header.Filename != "photo.png" {
			t.Fatalf("filename = %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != string(source) {
			t.Fatalf("image bytes mismatch")
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("result"))
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL})
	_, err := client.Generate(context.Background(), task.SearchReplace, task.Input{
		Prompt:       "sunset",
		SearchPrompt: "sky",
		Seed:         7,
		SourceImage:  source,
		SourceName:   "photo.png",
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
}

func TestGenerateRelightUsesSubjectImageField(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2beta/stable-image/edit/replace-background-and-relight":
			if got := r.Header.Get("Accept"); got != "application/json" {
				t.Fatalf("async submit accept = %q", got)
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("parse multipart: %v", err)
			}
			if _, _, err := r.FormFile("subject_image"); err != nil {
				t.Fatalf("subject_image part missing: %v", err)
			}
			if got := r.FormValue("background_prompt"); got != "pastel landscape" {
				t.Fatalf("background_prompt mismatch: %q", got)
			}
			if got := r.FormValue("light_source_direction"); got != "left" {
				t.Fatalf("light_source_direction mismatch: %q", got)
			}
			if got := r.FormValue("preserve_original_subject"); got != "0.6" {
				t.Fatalf("preserve_original_subject mismatch: %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": strings.Repeat("a", 64)})
		case "/v2beta/results/" + strings.Repeat("a", 64):
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("relit"))
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL, PollInterval: time.Millisecond})
	res, err := client.Generate(context.Background(), task.ReplaceBackgroundRelight, task.Input{
		BackgroundPrompt:        "pastel landscape",
		PreserveOriginalSubject: 0.6,
		LightDirection:          "left",
		LightStrength:           0.3,
		SourceImage:             []byte("subject"),
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if string(res.Image) != "relit" {
		t.Fatalf("image bytes mismatch: %q", res.Image)
	}
}

func TestGenerateAsyncPollsUntilReady(t *testing.T) {
	var polls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2beta/stable-image/upscale/creative":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "gen-1"})
		case "/v2beta/results/gen-1":
			polls++
			if polls < 3 {
				w.WriteHeader(http.StatusAccepted)
				return
			}
			w.Header().Set("Content-Type", "image/webp")
			_, _ = w.Write([]byte("upscaled"))
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL, PollInterval: time.Millisecond})
	res, err := client.Generate(context.Background(), task.UpscaleCreative, task.Input{
		Prompt:      "sharpen",
		SourceImage: []byte("small"),
		Creativity:  0.3,
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if polls != 3 {
		t.Fatalf("polls = %d, want 3", polls)
	}
	if string(res.Image) != "upscaled" || res.ContentType != "image/webp" {
		t.Fatalf("unexpected result: %q %q", res.Image, res.ContentType)
	}
}

func TestGenerateVendorErrorCarriesBodyVerbatim(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":["prompt: too long"]}`))
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL})
	_, err := client.Generate(context.Background(), task.AdGeneration, task.Input{Prompt: "x"})
	var verr *VendorError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VendorError, got %v", err)
	}
	if verr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", verr.StatusCode)
	}
	if verr.Message != `{"errors":["prompt: too long"]}` {
		t.Fatalf("message not verbatim: %q", verr.Message)
	}
}

func TestGenerateTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL, Timeout: 20 * time.Millisecond})
	_, err := client.Generate(context.Background(), task.AdGeneration, task.Input{Prompt: "x"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestGenerateMissingKey(t *testing.T) {
	client := NewClient(Options{})
	if _, err := client.Generate(context.Background(), task.AdGeneration, task.Input{Prompt: "x"}); err == nil {
		t.Fatalf("expected error when api key missing")
	}
}
