// Package web is a display sink that serves windows over HTTP: a still
// JPEG per window and an MJPEG stream for browsers.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"depthview/internal/display"
	logx "depthview/pkg/logx"
)

const (
	DefaultAddr    = "127.0.0.1:8085"
	DefaultQuality = 80

	boundary = "frame"

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 2 * time.Second
)

var ErrClosed = errors.New("web: sink closed")

type window struct {
	jpeg    []byte
	bounds  image.Rectangle
	seq     uint64
	updated time.Time
	changed chan struct{} // closed and replaced on every Show
}

// WindowInfo is one entry of GET /windows.
type WindowInfo struct {
	Name    string    `json:"name"`
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	Frames  uint64    `json:"frames"`
	Updated time.Time `json:"updated"`
}

type Sink struct {
	addr    string
	quality int
	log     logx.Logger

	mu      sync.RWMutex
	windows map[string]*window
	closed  chan struct{}
	once    sync.Once

	status func() any
	router chi.Router
}

type Option func(*Sink)

func WithAddr(addr string) Option { return func(s *Sink) { s.addr = addr } }

func WithQuality(q int) Option { return func(s *Sink) { s.quality = q } }

func WithLogger(log logx.Logger) Option { return func(s *Sink) { s.log = log } }

// WithStatus serves fn's result as JSON on GET /status.
func WithStatus(fn func() any) Option { return func(s *Sink) { s.status = fn } }

func New(opts ...Option) *Sink {
	s := &Sink{
		addr:    DefaultAddr,
		quality: DefaultQuality,
		windows: map[string]*window{},
		closed:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.quality < 1 || s.quality > 100 {
		s.quality = DefaultQuality
	}
	s.router = s.routes()
	return s
}

func (s *Sink) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.status != nil {
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) { writeJSON(w, s.status()) })
	}
	r.Get("/windows", s.handleList)
	r.Route("/windows/{id}", func(r chi.Router) {
		r.Get("/", s.handleStill)
		r.Get("/stream", s.handleStream)
	})
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Sink) Handler() http.Handler { return s.router }

func (s *Sink) Addr() string { return s.addr }

// Show encodes img once; every viewer of the window gets the same bytes.
func (s *Sink) Show(name string, img image.Image) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return fmt.Errorf("web: encode %q: %w", name, err)
	}

	s.mu.Lock()
	w := s.windows[name]
	if w == nil {
		w = &window{changed: make(chan struct{})}
		s.windows[name] = w
	}
	w.jpeg = buf.Bytes()
	w.bounds = img.Bounds()
	w.seq++
	w.updated = time.Now()
	close(w.changed)
	w.changed = make(chan struct{})
	s.mu.Unlock()
	return nil
}

// PumpEvents is a no-op: browsers pull frames on their own.
func (s *Sink) PumpEvents(time.Duration) error { return nil }

// Close ends open streams. Serve still needs its context cancelled.
func (s *Sink) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// Serve listens on the configured address until ctx is done.
func (s *Sink) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("preview listening", logx.String("addr", s.addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	_ = s.Close()
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		s.log.Warn("preview shutdown", logx.Err(err))
		_ = srv.Close()
	}
	return nil
}

func (s *Sink) snapshot(name string) (jpg []byte, seq uint64, changed <-chan struct{}, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w := s.windows[name]
	if w == nil {
		return nil, 0, nil, false
	}
	return w.jpeg, w.seq, w.changed, true
}

func (s *Sink) handleList(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	out := make([]WindowInfo, 0, len(s.windows))
	for name, win := range s.windows {
		out = append(out, WindowInfo{
			Name:    name,
			Width:   win.bounds.Dx(),
			Height:  win.bounds.Dy(),
			Frames:  win.seq,
			Updated: win.updated,
		})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, out)
}

func (s *Sink) handleStill(w http.ResponseWriter, r *http.Request) {
	jpg, seq, _, ok := s.snapshot(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(seq, 10))
	_, _ = w.Write(jpg)
}

func (s *Sink) handleStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var last uint64
	for {
		jpg, seq, changed, ok := s.snapshot(name)
		if ok && seq != last {
			if err := writePart(w, jpg); err != nil {
				return
			}
			flusher.Flush()
			last = seq
		}
		if !ok {
			// window does not exist yet; poll until the first Show
			t := time.NewTimer(50 * time.Millisecond)
			select {
			case <-r.Context().Done():
				t.Stop()
				return
			case <-s.closed:
				t.Stop()
				return
			case <-t.C:
			}
			continue
		}
		select {
		case <-r.Context().Done():
			return
		case <-s.closed:
			return
		case <-changed:
		}
	}
}

func writePart(w http.ResponseWriter, jpg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(jpg)); err != nil {
		return err
	}
	if _, err := w.Write(jpg); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

var _ display.Sink = (*Sink)(nil)
