package blobdir

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeStore is an in-process remote store speaking just enough of the wire
// protocol for the directory: blob get/put/head/delete, container
// create/list, metadata updates, and lease sub-operations.
type fakeStore struct {
	mu         sync.Mutex
	containers map[string]map[string]*fakeBlob
	leaseSeq   int

	// getDelay is slept while serving a blob body, to widen race windows
	// in serialization tests.
	getDelay time.Duration

	// bodyGets counts full content downloads served.
	bodyGets atomic.Int64

	srv *httptest.Server
}

type fakeBlob struct {
	data     []byte
	meta     map[string]string
	modified time.Time
	leaseID  string
	leaseEnd time.Time
}

func newFakeStore(t *testing.T) *fakeStore {
	s := &fakeStore{
		containers: make(map[string]map[string]*fakeBlob),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeStore) endpoint() string {
	return s.srv.URL
}

// physicalLength reports the stored payload size for a key.
func (s *fakeStore) physicalLength(container, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.containers[container][key]; ok {
		return len(b.data)
	}
	return -1
}

func (s *fakeStore) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	container := parts[0]
	q := r.URL.Query()

	if len(parts) == 1 || parts[1] == "" {
		s.handleContainer(w, r, container, q)
		return
	}
	s.handleBlob(w, r, container, parts[1], q)
}

func (s *fakeStore) handleContainer(w http.ResponseWriter, r *http.Request, container string, q map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		if _, ok := s.containers[container]; ok {
			http.Error(w, "container exists", http.StatusConflict)
			return
		}
		s.containers[container] = make(map[string]*fakeBlob)
		w.WriteHeader(http.StatusCreated)

	case http.MethodGet:
		c, ok := s.containers[container]
		if !ok {
			http.Error(w, "no container", http.StatusNotFound)
			return
		}
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b bytes.Buffer
		b.WriteString(xml.Header)
		b.WriteString("<EnumerationResults><Blobs>")
		for _, k := range keys {
			fmt.Fprintf(&b, "<Blob><Name>%s</Name></Blob>", k)
		}
		b.WriteString("</Blobs></EnumerationResults>")
		w.Write(b.Bytes())

	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func (s *fakeStore) handleBlob(w http.ResponseWriter, r *http.Request, container, key string, q map[string][]string) {
	s.mu.Lock()
	c, ok := s.containers[container]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "no container", http.StatusNotFound)
		return
	}

	if len(q["comp"]) > 0 && q["comp"][0] == "lease" {
		defer s.mu.Unlock()
		s.handleLease(w, r, c, key)
		return
	}

	switch r.Method {
	case http.MethodPut:
		if len(q["comp"]) > 0 && q["comp"][0] == "metadata" {
			b, ok := c[key]
			if !ok {
				s.mu.Unlock()
				http.Error(w, "no blob", http.StatusNotFound)
				return
			}
			b.meta = metaFromHeaders(r.Header)
			s.mu.Unlock()
			w.WriteHeader(http.StatusOK)
			return
		}

		if b, ok := c[key]; ok && b.leaseActive() {
			s.mu.Unlock()
			http.Error(w, "leased", http.StatusConflict)
			return
		}
		data, _ := io.ReadAll(r.Body)
		c[key] = &fakeBlob{
			data:     data,
			meta:     make(map[string]string),
			modified: time.Now().UTC(),
		}
		s.mu.Unlock()
		w.WriteHeader(http.StatusCreated)

	case http.MethodHead, http.MethodGet:
		b, ok := c[key]
		if !ok {
			s.mu.Unlock()
			http.Error(w, "no blob", http.StatusNotFound)
			return
		}
		data := b.data
		writeBlobHeaders(w, b)
		delay := s.getDelay
		s.mu.Unlock()

		if r.Method == http.MethodGet {
			if delay > 0 {
				time.Sleep(delay)
			}
			s.bodyGets.Add(1)
			w.Write(data)
		} else {
			w.WriteHeader(http.StatusOK)
		}

	case http.MethodDelete:
		defer s.mu.Unlock()
		if _, ok := c[key]; !ok {
			http.Error(w, "no blob", http.StatusNotFound)
			return
		}
		delete(c, key)
		w.WriteHeader(http.StatusAccepted)

	default:
		s.mu.Unlock()
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

// handleLease runs with s.mu held.
func (s *fakeStore) handleLease(w http.ResponseWriter, r *http.Request, c map[string]*fakeBlob, key string) {
	b, ok := c[key]
	if !ok {
		http.Error(w, "no blob", http.StatusNotFound)
		return
	}

	action := r.Header.Get("x-ms-lease-action")
	id := r.Header.Get("x-ms-lease-id")

	switch action {
	case "acquire":
		if b.leaseActive() {
			http.Error(w, "lease held", http.StatusConflict)
			return
		}
		newID := r.Header.Get("x-ms-proposed-lease-id")
		if newID == "" {
			s.leaseSeq++
			newID = fmt.Sprintf("lease-%d", s.leaseSeq)
		}
		b.leaseID = newID
		b.leaseEnd = time.Now().Add(60 * time.Second)
		w.Header().Set("x-ms-lease-id", newID)
		w.WriteHeader(http.StatusCreated)

	case "renew":
		if !b.leaseActive() || b.leaseID != id {
			http.Error(w, "lease mismatch", http.StatusConflict)
			return
		}
		b.leaseEnd = time.Now().Add(60 * time.Second)
		w.Header().Set("x-ms-lease-id", id)
		w.WriteHeader(http.StatusOK)

	case "release":
		if !b.leaseActive() || b.leaseID != id {
			http.Error(w, "lease mismatch", http.StatusConflict)
			return
		}
		b.leaseID = ""
		w.WriteHeader(http.StatusOK)

	case "break":
		b.leaseID = ""
		w.WriteHeader(http.StatusAccepted)

	default:
		http.Error(w, "bad action", http.StatusBadRequest)
	}
}

func (b *fakeBlob) leaseActive() bool {
	return b.leaseID != "" && time.Now().Before(b.leaseEnd)
}

func metaFromHeaders(h http.Header) map[string]string {
	meta := make(map[string]string)
	for k, vals := range h {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "x-ms-meta-") && len(vals) > 0 {
			meta[strings.TrimPrefix(lk, "x-ms-meta-")] = vals[0]
		}
	}
	return meta
}

func writeBlobHeaders(w http.ResponseWriter, b *fakeBlob) {
	w.Header().Set("Content-Length", strconv.Itoa(len(b.data)))
	w.Header().Set("Last-Modified", b.modified.Format(http.TimeFormat))
	for k, v := range b.meta {
		w.Header().Set("x-ms-meta-"+k, v)
	}
}
