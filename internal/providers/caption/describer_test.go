package caption

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"imagebatch/internal/providers/genai"
)

func testDescriber(t *testing.T, handler http.HandlerFunc) (*Describer, func()) {
	t.Helper()
	ts := httptest.NewServer(handler)
	client, err := genai.NewClient(genai.Options{APIKey: "k", BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewDescriber(client, "gemini-2.5-flash", zerolog.New(io.Discard)), ts.Close
}

func TestGenerateDescriptions(t *testing.T) {
	d, done := testDescriber(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req genai.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		parts := req.Contents[0].Parts
		if len(parts) != 3 {
			t.Fatalf("expected 2 images + prompt, got %d parts", len(parts))
		}
		if parts[0].Inline() == nil || parts[2].Text == "" {
			t.Fatalf("unexpected part layout: %+v", parts)
		}
		text := "```json\n{\"images\": [{\"title\": \"t1\", \"alt\": \"a1\", \"caption\": \"c1\"}, {\"title\": \"t2\", \"alt\": \"a2\", \"caption\": \"c2\"},]}\n```"
		_ = json.NewEncoder(w).Encode(genai.GenerateResponse{
			Candidates: []genai.Candidate{{Content: genai.Content{Parts: []genai.Part{{Text: text}}}}},
		})
	})
	defer done()

	got, err := d.GenerateDescriptions(context.Background(), [][]byte{[]byte("img1"), []byte("img2")}, "## Specs", []string{"f1", "f2"})
	if err != nil {
		t.Fatalf("GenerateDescriptions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 descriptions, got %d", len(got))
	}
	if got[0].Title != "t1" || got[1].Caption != "c2" {
		t.Fatalf("unexpected descriptions: %+v", got)
	}
}

func TestGenerateDescriptionsEmptyInput(t *testing.T) {
	d, done := testDescriber(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected for empty input")
	})
	defer done()

	got, err := d.GenerateDescriptions(context.Background(), nil, "", nil)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}
}

func TestParseDescriptionsRejectsNonJSON(t *testing.T) {
	if _, err := parseDescriptions("the model refused"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseDescriptionsPlainJSON(t *testing.T) {
	got, err := parseDescriptions(`{"images":[{"title":"t","alt":"a","caption":"c"}]}`)
	if err != nil {
		t.Fatalf("parseDescriptions: %v", err)
	}
	if len(got) != 1 || got[0].Alt != "a" {
		t.Fatalf("unexpected result: %+v", got)
	}
}
