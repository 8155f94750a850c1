// Package display serves the source image beside the live
// reconstruction over HTTP.
package display

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"image"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/drawnet/metrics"
	"github.com/stevegt/drawnet/render"
	"golang.org/x/image/draw"
)

// Options configures a Server.
type Options struct {
	Title       string
	Zoom        int
	Source      image.Image
	Composition *render.Composition
	// Board may be nil, in which case /stats reports zeros.
	Board *metrics.Board
	// Arch is the graphviz description served at /arch.dot.
	Arch string
	// Close is called on POST /close.
	Close func()
}

// Server is the display.  Its handlers only read from the
// Composition and Board, so they are safe to run alongside training.
type Server struct {
	opts   Options
	width  int
	height int
	mux    *http.ServeMux
}

// New returns a server for opts.
func New(opts Options) *Server {
	Assert(opts.Composition != nil, "display needs a composition")
	Assert(opts.Source != nil, "display needs a source image")
	if opts.Zoom <= 0 {
		opts.Zoom = 1
	}
	if opts.Close == nil {
		opts.Close = func() {}
	}
	s := &Server{
		opts:   opts,
		width:  opts.Composition.Width() * opts.Zoom,
		height: opts.Composition.Height() * opts.Zoom,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/source.png", s.handleSource)
	s.mux.HandleFunc("/composition.png", s.handleComposition)
	s.mux.HandleFunc("/stream", s.handleStream)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/arch.dot", s.handleArch)
	s.mux.HandleFunc("/close", s.handleClose)
	return s
}

// Handler returns the HTTP handler for the display.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve serves the display on ln until ctx is cancelled, then shuts
// down.  Open streams end with ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errc; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	return err
}

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title>
<style>
body { background: #222; color: #ccc; font-family: monospace; }
img { image-rendering: pixelated; }
</style>
</head>
<body>
<div>
<img src="/source.png" width="{{.Width}}" height="{{.Height}}" alt="source">
<img src="/stream" width="{{.Width}}" height="{{.Height}}" alt="reconstruction">
</div>
<pre id="stats"></pre>
<form method="post" action="/close"><button>close</button></form>
<script>
async function poll() {
  try {
    const r = await fetch("/stats");
    const s = await r.json();
    document.getElementById("stats").textContent =
      "frame " + s.frame + "  iteration " + s.latest.iteration +
      "  loss " + s.latest.last_loss.toFixed(5) +
      "  samples/s " + s.latest.samples_per_sec.toFixed(0);
  } catch (e) {}
  setTimeout(poll, 1000);
}
poll();
</script>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTmpl.Execute(w, struct {
		Title         string
		Width, Height int
	}{s.opts.Title, s.width, s.height})
	if err != nil {
		Pf("display: index: %v\n", err)
	}
}

// zoom scales img by the configured factor with nearest-neighbor
// sampling so each source pixel becomes a solid block.
func (s *Server) zoom(img image.Image) image.Image {
	if s.opts.Zoom == 1 {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func (s *Server) writePNG(w http.ResponseWriter, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, s.zoom(img)); err != nil {
		Pf("display: png: %v\n", err)
	}
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	s.writePNG(w, s.opts.Source)
}

func (s *Server) handleComposition(w http.ResponseWriter, r *http.Request) {
	s.writePNG(w, s.opts.Composition.Frame().Image())
}

// handleStream pushes every published frame as one part of a
// multipart/x-mixed-replace response.  ?frames=N ends the stream
// after N parts.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("frames"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "frames must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	mw := multipart.NewWriter(w)
	defer mw.Close()
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
	w.Header().Set("Cache-Control", "no-store")

	ctx := r.Context()
	for sent := 0; limit == 0 || sent < limit; sent++ {
		frame, changed := s.opts.Composition.Watch()
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type": {"image/jpeg"},
			"X-Frame-Seq":  {strconv.FormatUint(frame.Seq, 10)},
		})
		if err != nil {
			return
		}
		err = jpeg.Encode(part, s.zoom(frame.Image()), &jpeg.Options{Quality: 90})
		if err != nil {
			return
		}
		flusher.Flush()
		if limit > 0 && sent+1 == limit {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

// Stats is the /stats response body.
type Stats struct {
	Frame   uint64           `json:"frame"`
	Latest  metrics.Snapshot `json:"latest"`
	History []float64        `json:"history"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := Stats{Frame: s.opts.Composition.Frame().Seq, History: []float64{}}
	if s.opts.Board != nil {
		stats.Latest, stats.History = s.opts.Board.Latest()
		if stats.History == nil {
			stats.History = []float64{}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		Pf("display: stats: %v\n", err)
	}
}

func (s *Server) handleArch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	fmt.Fprint(w, s.opts.Arch)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.opts.Close()
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "closing")
}
