package translator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"google.golang.org/api/option"
)

func TestGoogleTranslate_ParsesResponse(t *testing.T) {
	var calls atomic.Int32
	var rawQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = r.ParseForm()
		rawQuery.Store(r.Form.Encode())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"translations":[{"translatedText":"hola mundo","detectedSourceLanguage":"en"}]}}`))
	}))
	defer srv.Close()

	p := NewGoogleTranslateProvider(GoogleTranslateConfig{ClientOptions: []option.ClientOption{
		option.WithEndpoint(srv.URL + "/language/translate/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	}})
	defer p.Shutdown()

	got, err := p.Translate(t.Context(), "hello world", "en-US", "es")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TranslatedText != "hola mundo" || got.Confidence != 1 {
		t.Fatalf("unexpected translation: %+v", got)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one API call, got %d", calls.Load())
	}
	q, _ := rawQuery.Load().(string)
	if !strings.Contains(q, "target=es") || !strings.Contains(q, "source=en") {
		t.Fatalf("unexpected request parameters: %s", q)
	}
}

func TestGoogleTranslate_RejectsInvalidTarget(t *testing.T) {
	p := NewGoogleTranslateProvider(GoogleTranslateConfig{})
	if _, err := p.Translate(t.Context(), "hello", "en", "not a language!"); err == nil {
		t.Fatal("expected invalid target error")
	}
	if p.client != nil {
		t.Fatal("expected no client to be created")
	}
}
