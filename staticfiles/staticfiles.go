// Package staticfiles implements the filesystem-backed path kind:
// extension-filtered, index-file-resolving, range-aware file serving
// under a single URI prefix.
package staticfiles

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/vetis/vetis"
	"github.com/vetis/vetis/config"
	"github.com/vetis/vetis/verrors"
)

var rangePattern = regexp.MustCompile(`^bytes=(\d+)-(\d+)$`)

// Path serves files rooted at a directory, satisfying vetis.Path
// structurally.
type Path struct {
	uri        string
	extensions *regexp.Regexp
	directory  string
	indexFiles []string
	auth       func(header map[string][]string) error
	logger     *zap.Logger
}

// New compiles cfg.Extensions eagerly, so a malformed pattern fails at
// construction rather than on the first request.
func New(cfg config.StaticPathConfig) (*Path, error) {
	re, err := regexp.Compile(cfg.Extensions)
	if err != nil {
		return nil, verrors.NewPathConfigError(fmt.Sprintf("compiling extensions regex %q: %v", cfg.Extensions, err))
	}
	return &Path{
		uri:        cfg.URI,
		extensions: re,
		directory:  cfg.Directory,
		indexFiles: cfg.IndexFiles,
		auth:       cfg.Auth,
		logger:     zap.NewNop(),
	}, nil
}

// SetLogger attaches a logger used for debug/error logging while serving.
func (p *Path) SetLogger(l *zap.Logger) {
	if l != nil {
		p.logger = l
	}
}

// URI returns the path's URI prefix.
func (p *Path) URI() string { return p.uri }

// Handle resolves a request in order: auth hook, tail normalization,
// index-file fallback, HEAD metadata-only response, range requests, then
// a full-file stream.
func (p *Path) Handle(r *http.Request, tail string) (*vetis.Response, error) {
	if p.auth != nil {
		if err := p.auth(r.Header); err != nil {
			return nil, verrors.NewAuthError(err.Error())
		}
	}

	tail = strings.TrimPrefix(tail, "/")
	candidate := filepath.Join(p.directory, filepath.FromSlash(tail))

	info, statErr := os.Stat(candidate)

	if len(p.indexFiles) > 0 {
		switch {
		case statErr != nil && !p.extensions.MatchString(tail):
			idx, idxInfo, ok := p.firstIndexFile(p.directory)
			if !ok {
				return nil, verrors.NewFileError("no index file present in " + p.directory)
			}
			candidate, info, statErr = idx, idxInfo, nil
		case statErr == nil && info.IsDir():
			idx, idxInfo, ok := p.firstIndexFile(candidate)
			if !ok {
				return nil, verrors.NewFileError("no index file present in " + candidate)
			}
			candidate, info, statErr = idx, idxInfo, nil
		}
	}

	if statErr != nil {
		return nil, verrors.NewFileError(fmt.Sprintf("%s: %v", candidate, statErr))
	}
	if info.IsDir() {
		return nil, verrors.NewFileError(candidate + ": resolved to a directory")
	}

	contentType := detectContentType(candidate)

	if r.Method == http.MethodHead {
		resp := vetis.NewResponse(http.StatusOK)
		resp.Header.Set("Content-Type", contentType)
		resp.Header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		resp.Header.Set("Last-Modified", info.ModTime().UTC().Format(time.RFC1123))
		return resp, nil
	}

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		return p.serveRange(candidate, info, contentType, rangeHeader)
	}

	f, err := os.Open(candidate)
	if err != nil {
		return nil, verrors.NewFileError(err.Error())
	}
	p.logger.Debug("serving static file", zap.String("path", candidate), zap.String("size", humanize.Bytes(uint64(info.Size()))))

	resp := vetis.NewResponse(http.StatusOK)
	resp.Header.Set("Accept-Ranges", "bytes")
	resp.Header.Set("Content-Type", contentType)
	resp.Body = vetis.NewFileBody(f, info.Size())
	return resp, nil
}

func (p *Path) firstIndexFile(dir string) (string, os.FileInfo, bool) {
	for _, name := range p.indexFiles {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, info, true
		}
	}
	return "", nil, false
}

// serveRange implements a single "bytes=<start>-<end>" range, streaming
// exactly end-start+1 bytes.
func (p *Path) serveRange(candidate string, info os.FileInfo, contentType, rangeHeader string) (*vetis.Response, error) {
	m := rangePattern.FindStringSubmatch(rangeHeader)
	if m == nil {
		return nil, verrors.NewFileError("invalid range unit or syntax: " + rangeHeader)
	}

	start, err1 := strconv.ParseInt(m[1], 10, 64)
	end, err2 := strconv.ParseInt(m[2], 10, 64)
	if err1 != nil || err2 != nil {
		return nil, verrors.NewFileError("invalid range bounds: " + rangeHeader)
	}

	length := info.Size()
	if start > end || start >= length {
		resp := vetis.NewResponse(http.StatusRequestedRangeNotSatisfiable)
		resp.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", length))
		return resp, nil
	}
	if end >= length {
		end = length - 1
	}

	f, err := os.Open(candidate)
	if err != nil {
		return nil, verrors.NewFileError(err.Error())
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, verrors.NewFileError(err.Error())
	}

	span := end - start + 1
	resp := vetis.NewResponse(http.StatusPartialContent)
	resp.Header.Set("Content-Type", contentType)
	resp.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, length))
	resp.Body = vetis.NewStreamBody(limitedFile{f: f, limited: io.LimitReader(f, span)}, span, true)
	return resp, nil
}

// limitedFile bounds reads to the range's span while still closing the
// backing file when the response body is closed.
type limitedFile struct {
	f       *os.File
	limited io.Reader
}

func (l limitedFile) Read(b []byte) (int, error) { return l.limited.Read(b) }
func (l limitedFile) Close() error                { return l.f.Close() }

func detectContentType(path string) string {
	if mt, err := mimetype.DetectFile(path); err == nil {
		return mt.String()
	}
	return "application/octet-stream"
}
