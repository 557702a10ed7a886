package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/puffnotes/internal/editor"
	"github.com/starford/puffnotes/internal/export"
	"github.com/starford/puffnotes/internal/rewrite"
	"github.com/starford/puffnotes/internal/storage"
	"github.com/starford/puffnotes/internal/testutil"
)

type env struct {
	ed     *editor.Editor
	router http.Handler
	rw     *testutil.Rewriter
}

type envOpts struct {
	authToken  string
	ungranted  bool
	noFallback bool
	sse        http.Handler
}

// testEnv sets up a granted in-memory folder, a prefs DB, an editor and a
// router. An empty authToken means disabled mode.
func testEnv(t *testing.T, o envOpts) *env {
	t.Helper()

	var store *storage.Store
	if o.ungranted {
		store = storage.NewStore()
	} else {
		store, _ = testutil.GrantedStore(t)
	}
	fallback := "fallback"
	if o.noFallback {
		fallback = ""
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := export.DefaultOptions()
	opts.Oversample = 1
	rw := &testutil.Rewriter{}
	ed := editor.New(editor.Deps{
		Store:            store,
		Rewriter:         rw,
		FallbackKey:      fallback,
		AutosaveInterval: time.Hour,
		Exporter:         export.New(opts, logger),
		Settings:         testutil.Prefs(t),
		Logger:           logger,
	})
	t.Cleanup(ed.Close)

	router := NewRouter(ed, o.authToken != "", o.authToken, o.sse)
	return &env{ed: ed, router: router, rw: rw}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestEditSaveAndList(t *testing.T) {
	e := testEnv(t, envOpts{})

	if w := e.do(t, http.MethodPut, "/session/name", NameRequest{Name: "demo"}); w.Code != http.StatusOK {
		t.Fatalf("rename = %d", w.Code)
	}
	if w := e.do(t, http.MethodPut, "/session/body", BodyRequest{Body: "# Title\nbody"}); w.Code != http.StatusOK {
		t.Fatalf("edit = %d", w.Code)
	}

	w := e.do(t, http.MethodPost, "/session/save", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	saved := decodeBody[SaveResponse](t, w)
	if !saved.Saved || saved.State.Session.Status != "saved" {
		t.Errorf("save response = %+v", saved)
	}

	w = e.do(t, http.MethodGet, "/notes", nil)
	list := decodeBody[NoteListResponse](t, w)
	if len(list.Notes) != 1 || list.Notes[0].Name != "demo" || list.Notes[0].Title != "Title" {
		t.Errorf("notes = %+v", list.Notes)
	}

	w = e.do(t, http.MethodGet, "/notes/demo", nil)
	n := decodeBody[NoteResponse](t, w)
	if n.Content != "# Title\nbody" {
		t.Errorf("content = %q", n.Content)
	}
}

func TestSaveWithoutFolderIsCancelled(t *testing.T) {
	e := testEnv(t, envOpts{ungranted: true})

	w := e.do(t, http.MethodPost, "/session/save", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d", w.Code)
	}
	if decodeBody[SaveResponse](t, w).Saved {
		t.Error("save without a folder must not report saved")
	}
}

func TestSaveGrantsGivenFolder(t *testing.T) {
	e := testEnv(t, envOpts{ungranted: true})
	dir := t.TempDir()
	e.ed.Rename("disk")
	e.ed.Edit("on disk")

	w := e.do(t, http.MethodPost, "/session/save", DirectoryRequest{Path: dir})
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	data, err := os.ReadFile(filepath.Join(dir, "disk.md"))
	if err != nil || string(data) != "on disk" {
		t.Errorf("file = %q, err = %v", data, err)
	}
}

func TestSaveBlankName(t *testing.T) {
	e := testEnv(t, envOpts{})
	e.ed.Rename(" ")

	w := e.do(t, http.MethodPost, "/session/save", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank name = %d, want 422", w.Code)
	}
	if body := decodeBody[errResponse](t, w); body.Hint == "" {
		t.Error("expected a hint for a blank name")
	}
}

func TestOpenMissingNote(t *testing.T) {
	e := testEnv(t, envOpts{})

	w := e.do(t, http.MethodPost, "/session/open", OpenRequest{Name: "ghost"})
	if w.Code != http.StatusNotFound {
		t.Errorf("open missing = %d, want 404", w.Code)
	}
	w = e.do(t, http.MethodPost, "/session/open", OpenRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("open without name = %d, want 400", w.Code)
	}
}

func TestListNotesWithoutFolder(t *testing.T) {
	e := testEnv(t, envOpts{ungranted: true})

	w := e.do(t, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("list without folder = %d, want 409", w.Code)
	}
}

func TestGrantDirectory(t *testing.T) {
	e := testEnv(t, envOpts{ungranted: true})

	w := e.do(t, http.MethodPost, "/directory", DirectoryRequest{Path: t.TempDir()})
	if w.Code != http.StatusOK {
		t.Fatalf("grant = %d, body = %s", w.Code, w.Body.String())
	}
	if st := decodeBody[editor.State](t, w); st.Directory != "granted" {
		t.Errorf("directory = %q", st.Directory)
	}

	w = e.do(t, http.MethodPost, "/directory", DirectoryRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank path = %d, want 400", w.Code)
	}
	w = e.do(t, http.MethodPost, "/directory", DirectoryRequest{Path: filepath.Join(t.TempDir(), "missing")})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing path = %d, want 400", w.Code)
	}
}

func TestRewriteReviewFlow(t *testing.T) {
	e := testEnv(t, envOpts{})
	e.ed.Edit("rough")

	w := e.do(t, http.MethodPost, "/rewrite", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rewrite = %d, body = %s", w.Code, w.Body.String())
	}
	rr := decodeBody[RewriteResponse](t, w)
	if rr.Outcome != "proposed" || rr.State.Rewrite.ProposedBody != "rewritten: rough" {
		t.Errorf("rewrite response = %+v", rr)
	}

	w = e.do(t, http.MethodPut, "/session/body", BodyRequest{Body: "typing"})
	if w.Code != http.StatusConflict {
		t.Errorf("edit during review = %d, want 409", w.Code)
	}

	w = e.do(t, http.MethodPost, "/rewrite/accept", nil)
	res := decodeBody[ResolveResponse](t, w)
	if !res.Resolved || res.State.Session.Body != "rewritten: rough" {
		t.Errorf("accept = %+v", res)
	}

	w = e.do(t, http.MethodPost, "/rewrite/reject", nil)
	if decodeBody[ResolveResponse](t, w).Resolved {
		t.Error("reject with nothing staged must not resolve")
	}
}

func TestRewriteOutlivesClientDisconnect(t *testing.T) {
	e := testEnv(t, envOpts{})
	e.ed.Edit("rough")
	e.rw.Gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/rewrite", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		e.router.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for e.ed.State().Rewrite.Phase != rewrite.Pending {
		if time.Now().After(deadline) {
			close(e.rw.Gate)
			<-done
			t.Fatalf("rewrite never pending, response = %d %s", w.Code, w.Body.String())
		}
		time.Sleep(time.Millisecond)
	}
	close(e.rw.Gate)
	<-done

	if w.Code != http.StatusOK {
		t.Fatalf("rewrite = %d, body = %s", w.Code, w.Body.String())
	}
	if st := e.ed.State(); st.Rewrite.Phase != rewrite.Staged || st.Rewrite.ProposedBody != "rewritten: rough" {
		t.Errorf("rewrite state = %+v", st.Rewrite)
	}
}

func TestRewriteWithoutCredential(t *testing.T) {
	e := testEnv(t, envOpts{noFallback: true})
	e.ed.Edit("rough")

	w := e.do(t, http.MethodPost, "/rewrite", nil)
	if w.Code != http.StatusPreconditionRequired {
		t.Fatalf("no key = %d, want 428", w.Code)
	}
	if !strings.Contains(decodeBody[errResponse](t, w).Hint, "API key") {
		t.Errorf("hint = %q", w.Body.String())
	}
}

type limited struct{}

func (limited) Error() string         { return "status 401" }
func (limited) AuthOrRateLimit() bool { return true }

func TestRewriteFallbackRejected(t *testing.T) {
	e := testEnv(t, envOpts{})
	e.rw.Reply = func(int, string, string) (string, error) { return "", limited{} }
	e.ed.Edit("rough")

	w := e.do(t, http.MethodPost, "/rewrite", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("rejected key = %d, want 429", w.Code)
	}
}

func TestExportPDF(t *testing.T) {
	e := testEnv(t, envOpts{})
	e.ed.Rename("lecture")
	e.ed.Edit("# Lecture\n\nSome text.")

	w := e.do(t, http.MethodPost, "/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, `"lecture.pdf"`) {
		t.Errorf("disposition = %q", cd)
	}
	if w.Header().Get("X-Page-Count") != "1" {
		t.Errorf("pages = %q", w.Header().Get("X-Page-Count"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("body is not a PDF")
	}
}

func TestExportEmptyNote(t *testing.T) {
	e := testEnv(t, envOpts{})

	w := e.do(t, http.MethodPost, "/export", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty export = %d, want 422", w.Code)
	}
}

func TestCredentials(t *testing.T) {
	e := testEnv(t, envOpts{})

	w := e.do(t, http.MethodPut, "/credentials", CredentialRequest{APIKey: "  gsk_secret "})
	if w.Code != http.StatusOK {
		t.Fatalf("set key = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "gsk_secret") {
		t.Error("response must not echo the key")
	}
	if !decodeBody[CredentialResponse](t, e.do(t, http.MethodGet, "/credentials", nil)).Present {
		t.Error("key should be present")
	}

	e.do(t, http.MethodPut, "/credentials", CredentialRequest{})
	if decodeBody[CredentialResponse](t, e.do(t, http.MethodGet, "/credentials", nil)).Present {
		t.Error("blank key should clear")
	}
}

func TestTheme(t *testing.T) {
	e := testEnv(t, envOpts{})

	w := e.do(t, http.MethodPut, "/theme", ThemeRequest{Name: "galaxy"})
	if w.Code != http.StatusOK {
		t.Fatalf("set theme = %d", w.Code)
	}
	if th := decodeBody[export.Theme](t, e.do(t, http.MethodGet, "/theme", nil)); th.Name != "galaxy" {
		t.Errorf("theme = %q", th.Name)
	}
	if w := e.do(t, http.MethodPut, "/theme", ThemeRequest{Name: "neon"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown theme = %d, want 400", w.Code)
	}
}

func TestInvalidJSON(t *testing.T) {
	e := testEnv(t, envOpts{})

	req := httptest.NewRequest(http.MethodPut, "/session/body", strings.NewReader("{"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, envOpts{authToken: "secret123"})

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed state = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, envOpts{authToken: "secret123"})

	w := e.do(t, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, envOpts{authToken: "secret123"})

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := testEnv(t, envOpts{})

	w := e.do(t, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// sseStub writes headers and blocks until the request context is done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnv(t, envOpts{authToken: "secret", sse: sseStub})

	w := e.do(t, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnv(t, envOpts{authToken: "tok", sse: sseStub})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestSSEEvents_NotMounted(t *testing.T) {
	e := testEnv(t, envOpts{})

	w := e.do(t, http.MethodGet, "/events", nil)
	if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Errorf("SSE without handler = %d", w.Code)
	}
}
