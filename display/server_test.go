package display

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/stevegt/goadapt"
	"github.com/stevegt/drawnet/grid"
	"github.com/stevegt/drawnet/metrics"
	"github.com/stevegt/drawnet/render"
	"gonum.org/v1/gonum/mat"
)

// gray paints every pixel mid gray.
type gray struct{}

func (gray) Forward(inputs mat.Matrix) *mat.Dense {
	rows, _ := inputs.Dims()
	out := mat.NewDense(rows, 3, nil)
	for i := 0; i < rows; i++ {
		out.SetRow(i, []float64{0.5, 0.5, 0.5})
	}
	return out
}

type fixture struct {
	srv      *Server
	renderer *render.Renderer
	board    *metrics.Board
	closed   int
}

func newFixture(t *testing.T, zoom int) *fixture {
	t.Helper()
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.Set(0, 0, color.RGBA{R: 255, A: 255})
	g, err := grid.Build(3, 2)
	Tassert(t, err == nil, err)
	comp := render.NewComposition(3, 2)
	f := &fixture{
		renderer: render.New(gray{}, g, comp),
		board:    &metrics.Board{},
	}
	f.srv = New(Options{
		Title:       "test",
		Zoom:        zoom,
		Source:      src,
		Composition: comp,
		Board:       f.board,
		Arch:        "digraph {}",
		Close:       func() { f.closed++ },
	})
	return f
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestIndex(t *testing.T) {
	f := newFixture(t, 4)
	rec := get(t, f.srv.Handler(), http.MethodGet, "/")
	Tassert(t, rec.Code == http.StatusOK, rec.Code)
	body := rec.Body.String()
	Tassert(t, strings.Contains(body, `src="/source.png" width="12" height="8"`), body)
	Tassert(t, strings.Contains(body, `src="/stream" width="12" height="8"`), body)

	rec = get(t, f.srv.Handler(), http.MethodGet, "/nope")
	Tassert(t, rec.Code == http.StatusNotFound, rec.Code)
}

func TestImagesZoomed(t *testing.T) {
	f := newFixture(t, 4)
	rec := get(t, f.srv.Handler(), http.MethodGet, "/source.png")
	Tassert(t, rec.Code == http.StatusOK, rec.Code)
	img, err := png.Decode(rec.Body)
	Tassert(t, err == nil, err)
	Tassert(t, img.Bounds().Dx() == 12 && img.Bounds().Dy() == 8, img.Bounds())
	// source pixel (0, 0) fills a 4x4 block
	r, _, _, _ := img.At(3, 3).RGBA()
	Tassert(t, r == 0xffff, r)
	r, _, _, _ = img.At(4, 3).RGBA()
	Tassert(t, r == 0, r)

	Tassert(t, f.renderer.Render() == nil)
	rec = get(t, f.srv.Handler(), http.MethodGet, "/composition.png")
	img, err = png.Decode(rec.Body)
	Tassert(t, err == nil, err)
	Tassert(t, img.Bounds().Dx() == 12 && img.Bounds().Dy() == 8, img.Bounds())
	g, _, _, _ := img.At(11, 7).RGBA()
	Tassert(t, g>>8 == 128 || g>>8 == 127, g>>8)
}

func TestStatsArchClose(t *testing.T) {
	f := newFixture(t, 1)
	f.board.Publish(metrics.Snapshot{Iteration: 3, Fits: 15, LastLoss: 0.25})
	Tassert(t, f.renderer.Render() == nil)

	rec := get(t, f.srv.Handler(), http.MethodGet, "/stats")
	Tassert(t, rec.Code == http.StatusOK, rec.Code)
	var stats Stats
	err := json.NewDecoder(rec.Body).Decode(&stats)
	Tassert(t, err == nil, err)
	Tassert(t, stats.Frame == 1, stats.Frame)
	Tassert(t, stats.Latest.Fits == 15, stats.Latest)
	Tassert(t, len(stats.History) == 1 && stats.History[0] == 0.25, stats.History)

	rec = get(t, f.srv.Handler(), http.MethodGet, "/arch.dot")
	Tassert(t, rec.Body.String() == "digraph {}", rec.Body.String())

	rec = get(t, f.srv.Handler(), http.MethodGet, "/close")
	Tassert(t, rec.Code == http.StatusMethodNotAllowed, rec.Code)
	Tassert(t, f.closed == 0, f.closed)
	rec = get(t, f.srv.Handler(), http.MethodPost, "/close")
	Tassert(t, rec.Code == http.StatusAccepted, rec.Code)
	Tassert(t, f.closed == 1, f.closed)
}

func TestStream(t *testing.T) {
	f := newFixture(t, 2)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stream?frames=2")
	Tassert(t, err == nil, err)
	defer resp.Body.Close()
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	Tassert(t, err == nil, err)
	Tassert(t, mediaType == "multipart/x-mixed-replace", mediaType)

	// the first part is already on the wire; publish the second
	Tassert(t, f.renderer.Render() == nil)

	mr := multipart.NewReader(resp.Body, params["boundary"])
	for _, seq := range []string{"0", "1"} {
		part, err := mr.NextPart()
		Tassert(t, err == nil, err)
		Tassert(t, part.Header.Get("X-Frame-Seq") == seq, part.Header)
		img, err := jpeg.Decode(part)
		Tassert(t, err == nil, err)
		Tassert(t, img.Bounds().Dx() == 6 && img.Bounds().Dy() == 4, img.Bounds())
	}
	_, err = mr.NextPart()
	Tassert(t, err == io.EOF, err)

	rec := get(t, f.srv.Handler(), http.MethodGet, "/stream?frames=x")
	Tassert(t, rec.Code == http.StatusBadRequest, rec.Code)
}

func TestServeShutdown(t *testing.T) {
	f := newFixture(t, 1)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Tassert(t, err == nil, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.srv.Serve(ctx, ln)
	}()

	// an open stream must not hold up shutdown
	resp, err := http.Get("http://" + ln.Addr().String() + "/stream")
	Tassert(t, err == nil, err)
	defer resp.Body.Close()
	Tassert(t, resp.StatusCode == http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		Tassert(t, err == nil, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
