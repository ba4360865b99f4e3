// Package registrytest provides an in-process npm registry for tests.
package registrytest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// Entry is one tar entry. Names are used verbatim, so tests can build
// archives whose layout does not start with "package/".
type Entry struct {
	Name string
	Body string
	Dir  bool
}

// Version is one published version of a package.
type Version struct {
	Version         string
	Dependencies    map[string]string
	DevDependencies map[string]string

	// Files are placed under "package/". Ignored when Entries is set.
	Files map[string]string

	// Entries replaces Files with a raw archive layout.
	Entries []Entry

	// OmitFileCount leaves dist.fileCount out of the manifest.
	OmitFileCount bool

	// Integrity overrides the computed dist.integrity.
	Integrity string
}

// Package is a package served by the registry. Versions are listed in the
// given order.
type Package struct {
	Name     string
	Versions []Version
	DistTags map[string]string
}

// Server is a fake registry. It serves
//
//	GET /{name}                  index document
//	GET /{name}/{version|latest} version manifest
//	GET /{name}/-/{version}.tgz  archive
//	GET /-/ping
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	packages map[string]*Package
	tarballs map[string][]byte // escaped name + "@" + version
	hits     map[string]int
	status   map[string]int
	delay    time.Duration
	authz    string // required Authorization value, "" for none
	bodies   map[string]*override
}

// override answers a path with a fixed 200 body a limited number of times.
type override struct {
	body      []byte
	remaining int
}

// NewServer starts a fake registry that is closed when t ends.
func NewServer(t testing.TB, packages ...Package) *Server {
	t.Helper()
	s := &Server{
		packages: make(map[string]*Package),
		tarballs: make(map[string][]byte),
		hits:     make(map[string]int),
		status:   make(map[string]int),
		bodies:   make(map[string]*override),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)

	for _, p := range packages {
		s.Add(p)
	}
	return s
}

// Add publishes p, replacing any package of the same name.
func (s *Server) Add(p Package) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := p
	s.packages[p.Name] = &cp
	for _, v := range p.Versions {
		s.tarballs[p.Name+"@"+v.Version] = buildTarball(v)
	}
}

// SetStatus forces path (e.g. "/left-pad/1.3.0") to answer with status.
func (s *Server) SetStatus(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[path] = status
}

// SetBody makes the next times requests for path answer 200 with body, as
// a misbehaving proxy does. Later requests are served normally.
func (s *Server) SetBody(path string, body []byte, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[path] = &override{body: body, remaining: times}
}

// RequireAuth makes every request without the given Authorization header
// value fail with 401, as a private registry does.
func (s *Server) RequireAuth(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authz = value
}

// SetDelay delays every response, widening race windows.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Hits returns how many requests path received.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits returns the number of requests served, pings excluded.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p, c := range s.hits {
		if p != "/-/ping" {
			n += c
		}
	}
	return n
}

// ResetHits clears the request counters.
func (s *Server) ResetHits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = make(map[string]int)
}

// TarballPath returns the archive path for name at ver.
func TarballPath(name, ver string) string {
	return "/" + url.PathEscape(name) + "/-/" + ver + ".tgz"
}

// Tarball returns the archive bytes served for name at ver.
func (s *Server) Tarball(name, ver string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tarballs[name+"@"+ver]
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.EscapedPath()

	s.mu.Lock()
	s.hits[path]++
	forced := s.status[path]
	delay := s.delay
	authz := s.authz
	var body []byte
	if o := s.bodies[path]; o != nil && o.remaining > 0 {
		o.remaining--
		body = o.body
	}
	s.mu.Unlock()

	if authz != "" && r.Header.Get("Authorization") != authz {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if delay > 0 {
		time.Sleep(delay)
	}
	if forced != 0 {
		w.WriteHeader(forced)
		return
	}
	if body != nil {
		_, _ = w.Write(body)
		return
	}
	if path == "/-/ping" {
		_, _ = w.Write([]byte("{}"))
		return
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	name, err := url.PathUnescape(segments[0])
	if err != nil {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	pkg, ok := s.packages[name]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(segments) == 1:
		s.writeIndex(w, pkg)
	case len(segments) == 2:
		s.writeManifest(w, r, pkg, segments[1])
	case len(segments) == 3 && segments[1] == "-":
		ver := strings.TrimSuffix(segments[2], ".tgz")
		data := s.Tarball(name, ver)
		if data == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	default:
		http.NotFound(w, r)
	}
}

// writeIndex writes the index by hand so the time object keeps listing order.
func (s *Server) writeIndex(w http.ResponseWriter, pkg *Package) {
	var b strings.Builder
	name, _ := json.Marshal(pkg.Name)
	tags, _ := json.Marshal(s.distTags(pkg))

	b.WriteString(`{"name":`)
	b.Write(name)
	b.WriteString(`,"dist-tags":`)
	b.Write(tags)
	b.WriteString(`,"time":{"created":"2015-01-01T00:00:00.000Z"`)
	for i, v := range pkg.Versions {
		key, _ := json.Marshal(v.Version)
		b.WriteString(",")
		b.Write(key)
		b.WriteString(`:"`)
		b.WriteString(time.Date(2016, 1, 1+i, 0, 0, 0, 0, time.UTC).Format(time.RFC3339))
		b.WriteString(`"`)
	}
	b.WriteString(`,"modified":"2020-01-01T00:00:00.000Z"}}`)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) distTags(pkg *Package) map[string]string {
	tags := map[string]string{}
	for k, v := range pkg.DistTags {
		tags[k] = v
	}
	if _, ok := tags["latest"]; !ok && len(pkg.Versions) > 0 {
		tags["latest"] = pkg.Versions[len(pkg.Versions)-1].Version
	}
	return tags
}

func (s *Server) writeManifest(w http.ResponseWriter, r *http.Request, pkg *Package, ver string) {
	if ver == "latest" {
		ver = s.distTags(pkg)["latest"]
	}

	var found *Version
	for i := range pkg.Versions {
		if pkg.Versions[i].Version == ver {
			found = &pkg.Versions[i]
			break
		}
	}
	if found == nil {
		http.NotFound(w, r)
		return
	}

	data := s.Tarball(pkg.Name, found.Version)
	sha := sha1.Sum(data)
	sri := sha512.Sum512(data)

	dist := map[string]any{
		"tarball":   s.URL + TarballPath(pkg.Name, found.Version),
		"shasum":    hex.EncodeToString(sha[:]),
		"integrity": "sha512-" + base64.StdEncoding.EncodeToString(sri[:]),
	}
	if found.Integrity != "" {
		dist["integrity"] = found.Integrity
	}
	if !found.OmitFileCount {
		dist["fileCount"] = fileCount(*found)
	}

	manifest := map[string]any{
		"name":    pkg.Name,
		"version": found.Version,
		"dist":    dist,
	}
	if len(found.Dependencies) > 0 {
		manifest["dependencies"] = found.Dependencies
	}
	if len(found.DevDependencies) > 0 {
		manifest["devDependencies"] = found.DevDependencies
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(manifest)
}

func entries(v Version) []Entry {
	if len(v.Entries) > 0 {
		return v.Entries
	}
	files := v.Files
	if files == nil {
		files = map[string]string{"package.json": `{"name":"x","version":"` + v.Version + `"}`}
	}
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]Entry, 0, len(names))
	for _, n := range names {
		out = append(out, Entry{Name: "package/" + n, Body: files[n]})
	}
	return out
}

func fileCount(v Version) int {
	n := 0
	for _, e := range entries(v) {
		if !e.Dir {
			n++
		}
	}
	return n
}

func buildTarball(v Version) []byte {
	return Tarball(entries(v)...)
}

// Tarball builds a gzip-compressed tar archive from entries.
func Tarball(entries ...Entry) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0o644, Size: int64(len(e.Body)), Typeflag: tar.TypeReg}
		if e.Dir {
			hdr = &tar.Header{Name: e.Name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			panic(err)
		}
		if !e.Dir {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				panic(err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		panic(err)
	}
	if err := gz.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
