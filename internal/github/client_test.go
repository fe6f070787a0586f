package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

const testRepo = "daveenci/avatar-images"

// fakeRepo mimics the slice of the contents API the client uses: stat,
// put, delete and folder listing, keyed by path.
type fakeRepo struct {
	mu            sync.Mutex
	files         map[string]string // path -> sha
	seq           int
	puts          int
	deletes       int
	conflictsLeft int // next N writes answer 409
	deleteStatus  int // forced DELETE status, 0 means normal behaviour
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{files: map[string]string{}}
}

func (f *fakeRepo) handler(t *testing.T) http.Handler {
	prefix := "/repos/" + testRepo + "/contents/"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, prefix) {
			t.Errorf("unexpected request path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing auth header on %s %s", r.Method, r.URL.Path)
		}
		path := strings.TrimPrefix(r.URL.Path, prefix)

		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			if sha, ok := f.files[path]; ok {
				_ = json.NewEncoder(w).Encode(map[string]string{"sha": sha})
				return
			}
			var entries []map[string]string
			for p := range f.files {
				if strings.HasPrefix(p, path+"/") {
					entries = append(entries, map[string]string{"path": p})
				}
			}
			if len(entries) > 0 {
				_ = json.NewEncoder(w).Encode(entries)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})

		case http.MethodPut:
			f.puts++
			if f.conflictsLeft > 0 {
				f.conflictsLeft--
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": "is at abc but expected def"})
				return
			}
			var body struct {
				Content string `json:"content"`
				SHA     string `json:"sha"`
				Branch  string `json:"branch"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("bad PUT body: %v", err)
			}
			if body.Branch != "main" {
				t.Errorf("expected branch main, got %q", body.Branch)
			}
			if _, err := base64.StdEncoding.DecodeString(body.Content); err != nil {
				t.Errorf("content is not base64: %v", err)
			}
			if current, exists := f.files[path]; exists && body.SHA != current {
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": "sha does not match"})
				return
			}
			f.seq++
			f.files[path] = fmt.Sprintf("sha-%d", f.seq)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"content": map[string]string{"sha": f.files[path]}})

		case http.MethodDelete:
			f.deletes++
			if f.deleteStatus != 0 {
				w.WriteHeader(f.deleteStatus)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": "forced"})
				return
			}
			current, exists := f.files[path]
			if !exists {
				w.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
				return
			}
			var body struct {
				SHA string `json:"sha"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.SHA != current {
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": "sha does not match"})
				return
			}
			delete(f.files, path)
			_ = json.NewEncoder(w).Encode(map[string]string{})

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newTestClient(t *testing.T, fake *fakeRepo) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{Token: "test-token", Repo: testRepo, Branch: "main"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.apiBaseURL = srv.URL
	client.rawBaseURL = "https://raw.test"
	client.retryUnit = 5 * time.Millisecond
	return client
}

func newSourceServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUploadStoresFileAndReturnsRawURL(t *testing.T) {
	fake := newFakeRepo()
	client := newTestClient(t, fake)
	src := newSourceServer(t, []byte("fake-image-bytes"))

	url, err := client.Upload(context.Background(), src.URL, "zara at the beach", "Zara", "webp")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	prefix := "https://raw.test/" + testRepo + "/main/avatars/zara/"
	if !strings.HasPrefix(url, prefix) {
		t.Errorf("raw URL %q should start with %q", url, prefix)
	}
	if !strings.HasSuffix(url, ".webp") {
		t.Errorf("raw URL %q should end in .webp", url)
	}
	if len(fake.files) != 1 {
		t.Errorf("expected 1 stored file, have %d", len(fake.files))
	}

	// avatars/<name>/<ts>_<name>_<hash>_<rand>.<ext>
	keyRe := regexp.MustCompile(`^avatars/zara/\d{14}_zara_[0-9a-f]{8}_[0-9a-f]+\.webp$`)
	for path := range fake.files {
		if !keyRe.MatchString(path) {
			t.Errorf("stored key %q does not match layout", path)
		}
	}
}

func TestUploadRetriesOnSHAConflict(t *testing.T) {
	fake := newFakeRepo()
	fake.conflictsLeft = 1
	client := newTestClient(t, fake)
	src := newSourceServer(t, []byte("fake-image-bytes"))

	url, err := client.Upload(context.Background(), src.URL, "portrait", "Zara", "png")
	if err != nil {
		t.Fatalf("Upload should survive one conflict: %v", err)
	}
	if url == "" {
		t.Error("expected raw URL after retry")
	}
	if fake.puts != 2 {
		t.Errorf("expected 2 put attempts, got %d", fake.puts)
	}
}

func TestUploadGivesUpWhenRetriesExhausted(t *testing.T) {
	fake := newFakeRepo()
	fake.conflictsLeft = 10
	client := newTestClient(t, fake)
	src := newSourceServer(t, []byte("fake-image-bytes"))

	_, err := client.Upload(context.Background(), src.URL, "portrait", "Zara", "webp")
	if err == nil {
		t.Fatal("expected error once retries are exhausted")
	}
	if !strings.Contains(err.Error(), "retries exhausted") {
		t.Errorf("unexpected error: %v", err)
	}
	if fake.puts != maxWriteAttempts {
		t.Errorf("expected %d put attempts, got %d", maxWriteAttempts, fake.puts)
	}
}

func TestUploadRejectsEmptyDownload(t *testing.T) {
	fake := newFakeRepo()
	client := newTestClient(t, fake)
	src := newSourceServer(t, nil)

	_, err := client.Upload(context.Background(), src.URL, "portrait", "Zara", "webp")
	if err == nil || !strings.Contains(err.Error(), "empty body") {
		t.Errorf("expected empty-body error, got %v", err)
	}
	if fake.puts != 0 {
		t.Errorf("no write should happen for a failed download, got %d puts", fake.puts)
	}
}

func TestDeleteRemovesExistingFile(t *testing.T) {
	fake := newFakeRepo()
	fake.files["avatars/zara/some.webp"] = "sha-keep"
	client := newTestClient(t, fake)

	err := client.Delete(context.Background(), client.RawURL("avatars/zara/some.webp"))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fake.files) != 0 {
		t.Errorf("file should be gone, still have %v", fake.files)
	}
	_, exists, err := client.GetFileInfo(context.Background(), "avatars/zara/some.webp")
	if err != nil || exists {
		t.Errorf("GetFileInfo after delete = (exists=%v, err=%v), want gone", exists, err)
	}
	if err := client.Delete(context.Background(), client.RawURL("avatars/zara/some.webp")); err != nil {
		t.Errorf("second delete must succeed: %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	fake := newFakeRepo()
	client := newTestClient(t, fake)

	err := client.Delete(context.Background(), client.RawURL("avatars/zara/nothing.webp"))
	if err != nil {
		t.Fatalf("deleting an absent file must succeed: %v", err)
	}
	if fake.deletes != 0 {
		t.Errorf("no DELETE call expected for an absent file, got %d", fake.deletes)
	}
}

func TestDeleteTreatsVanishDuringDeleteAsSuccess(t *testing.T) {
	fake := newFakeRepo()
	fake.files["avatars/zara/some.webp"] = "sha-x"
	fake.deleteStatus = http.StatusNotFound
	client := newTestClient(t, fake)

	err := client.Delete(context.Background(), client.RawURL("avatars/zara/some.webp"))
	if err != nil {
		t.Fatalf("404 during delete must count as success: %v", err)
	}
}

func TestDeleteRefusesForeignURL(t *testing.T) {
	fake := newFakeRepo()
	client := newTestClient(t, fake)

	err := client.Delete(context.Background(), "https://elsewhere.example.com/file.png")
	if err == nil || !strings.Contains(err.Error(), "not managed") {
		t.Errorf("expected foreign-url refusal, got %v", err)
	}
	err = client.Delete(context.Background(), "https://replicate.delivery/xyz/out-0.webp")
	if err == nil {
		t.Error("ephemeral generation URLs are not ours to delete")
	}
}

func TestGetFileInfo(t *testing.T) {
	fake := newFakeRepo()
	fake.files["avatars/zara/a.webp"] = "sha-42"
	client := newTestClient(t, fake)

	sha, exists, err := client.GetFileInfo(context.Background(), "avatars/zara/a.webp")
	if err != nil || !exists || sha != "sha-42" {
		t.Errorf("GetFileInfo = (%q, %v, %v), want (sha-42, true, nil)", sha, exists, err)
	}

	_, exists, err = client.GetFileInfo(context.Background(), "avatars/zara/missing.webp")
	if err != nil || exists {
		t.Errorf("missing file: exists=%v err=%v, want false, nil", exists, err)
	}
}

func TestDeleteFolderIfEmptyNeverFails(t *testing.T) {
	fake := newFakeRepo()
	fake.files["avatars/zara/left.webp"] = "sha-1"
	client := newTestClient(t, fake)

	// Non-empty folder, empty folder and missing folder are all fine.
	client.DeleteFolderIfEmpty(context.Background(), "Zara")
	client.DeleteFolderIfEmpty(context.Background(), "Nobody Here")
}

func TestIsSHAConflict(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&APIError{StatusCode: http.StatusConflict, Message: "merge conflict"}, true},
		{&APIError{StatusCode: http.StatusUnprocessableEntity, Message: "avatars/x does not match abc123"}, true},
		{&APIError{StatusCode: http.StatusUnprocessableEntity, Message: "is at abc but expected def"}, true},
		{&APIError{StatusCode: http.StatusUnprocessableEntity, Message: "file too large"}, false},
		{&APIError{StatusCode: http.StatusBadGateway, Message: "boom"}, false},
		{errors.New("plain error"), false},
	}
	for _, tc := range cases {
		if got := isSHAConflict(tc.err); got != tc.want {
			t.Errorf("isSHAConflict(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Zara":          "zara",
		"Zara Müller":   "zara-m-ller",
		"  John  Doe  ": "john-doe",
		"!!!":           "avatar",
		"A.B_C":         "a-b-c",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeExt(t *testing.T) {
	cases := map[string]string{
		".PNG": "png",
		"jpg":  "jpg",
		"jpeg": "jpeg",
		"webp": "webp",
		"tiff": "webp",
		"":     "webp",
	}
	for in, want := range cases {
		if got := normalizeExt(in); got != want {
			t.Errorf("normalizeExt(%q) = %q, want %q", in, got, want)
		}
	}
}
