package httpcache

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestETagForBytesStableAndQuoted(t *testing.T) {
	a := ETagForBytes([]byte("hello"))
	b := ETagForBytes([]byte("hello"))
	if a != b {
		t.Errorf("expected stable ETag for identical bytes, got %q and %q", a, b)
	}
	if a[0] != '"' || a[len(a)-1] != '"' {
		t.Errorf("expected quoted ETag, got %q", a)
	}
}

func TestETagForBytesDiffersForDifferentContent(t *testing.T) {
	if ETagForBytes([]byte("a")) == ETagForBytes([]byte("b")) {
		t.Error("expected different ETags for different content")
	}
}

func TestETagForFingerprintChangesOnSizeOrMtime(t *testing.T) {
	base := ETagForFingerprint(1, 100, 1000, "thumb")
	diffSize := ETagForFingerprint(1, 200, 1000, "thumb")
	diffMtime := ETagForFingerprint(1, 100, 2000, "thumb")
	diffVariant := ETagForFingerprint(1, 100, 1000, "vthumb")

	for _, other := range []string{diffSize, diffMtime, diffVariant} {
		if base == other {
			t.Errorf("expected fingerprint ETag to change, base=%q other=%q", base, other)
		}
	}
}

func TestWriteHeadersReportsMatch(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/thumb/1", nil)
	req.Header.Set("If-None-Match", `"abc"`)
	w := httptest.NewRecorder()

	if notModified := WriteHeaders(w, req, `"abc"`, PolicyImmutable); !notModified {
		t.Error("expected matching If-None-Match to report notModified=true")
	}
	if got := w.Header().Get("Cache-Control"); got != "public, max-age=604800, immutable" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestWriteHeadersReportsMismatch(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/resources", nil)
	w := httptest.NewRecorder()

	if notModified := WriteHeaders(w, req, `"abc"`, PolicyNoCache); notModified {
		t.Error("expected no If-None-Match header to report notModified=false")
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestNotModifiedWrites304(t *testing.T) {
	w := httptest.NewRecorder()
	NotModified(w)
	if w.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected empty body, got %d bytes", w.Body.Len())
	}
}
