package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zenazn/goji/web"
	"github.com/zenazn/goji/web/middleware"

	"github.com/janelia-flyem/pixstore"
	"github.com/janelia-flyem/pixstore/buffer"
	"github.com/janelia-flyem/pixstore/metadata"
	"github.com/janelia-flyem/pixstore/pix"
)

// WebAPIPath is the prefix of all HTTP API routes.
const WebAPIPath = "/api/"

func (s *Server) routes() http.Handler {
	mux := web.New()
	mux.Use(middleware.EnvInit)
	mux.Use(middleware.Recoverer)
	mux.Use(logHTTP)
	if s.auth != nil {
		mux.Use(s.auth.middleware)
	}

	mux.Get("/api/server/info", s.serverInfoHandler)
	mux.Get("/api/pixels/:id/info", s.pixelsInfoHandler)
	mux.Get("/api/pixels/:id/plane/:z/:c/:t", s.getPlaneHandler)
	mux.Put("/api/pixels/:id/plane/:z/:c/:t", s.putPlaneHandler)
	mux.Get("/api/pixels/:id/tile/:z/:c/:t/:x/:y/:w/:h", s.getTileHandler)
	mux.Post("/api/pixels/:id/pyramid", s.buildPyramidHandler)
	mux.Delete("/api/pixels/:id", s.deletePixelsHandler)
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorStatus(w, r, http.StatusNotFound, fmt.Sprintf("no API endpoint %s", r.URL.Path))
	})
	return mux
}

func logHTTP(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		pix.Debugf("HTTP %s: %s (%s)\n", r.Method, r.URL, time.Since(start))
	}
	return http.HandlerFunc(fn)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		pix.Errorf("Unable to write JSON response: %v\n", err)
	}
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if status >= http.StatusInternalServerError {
		pix.Errorf("%s %s: %s\n", r.Method, r.URL, msg)
	} else {
		pix.Debugf("%s %s (%d): %s\n", r.Method, r.URL, status, msg)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// errorStatus maps storage errors to HTTP status codes.
func errorStatus(err error) int {
	var missing *pix.MissingPyramidError
	var rerr *pix.ResourceError
	switch {
	case errors.Is(err, metadata.ErrUnknownPixels):
		return http.StatusNotFound
	case errors.Is(err, pix.ErrReadOnly):
		return http.StatusConflict
	case errors.As(err, &missing):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.As(err, &rerr):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorStatus(w, r, errorStatus(err), err.Error())
}

func parseInts(c web.C, names ...string) ([]int, error) {
	vals := make([]int, len(names))
	for i, name := range names {
		v, err := strconv.Atoi(c.URLParams[name])
		if err != nil {
			return nil, fmt.Errorf("bad %s %q in request", name, c.URLParams[name])
		}
		vals[i] = v
	}
	return vals, nil
}

func (s *Server) pixels(c web.C) (*pix.Pixels, error) {
	id, err := strconv.ParseInt(c.URLParams["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad pixels id %q", c.URLParams["id"])
	}
	return s.manifest.Pixels(id)
}

// buffer resolves the pixel buffer for the pixels set in the request.
func (s *Server) buffer(c web.C, r *http.Request) (buffer.PixelBuffer, error) {
	px, err := s.pixels(c)
	if err != nil {
		return nil, err
	}
	return s.service.PixelBuffer(r.Context(), px, s.manifest, false)
}

func (s *Server) serverInfoHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	cfg := s.service.Config()
	writeJSON(w, map[string]interface{}{
		"version":           pixstore.Version,
		"host":              s.config.Host(),
		"note":              s.config.Server.Note,
		"root":              cfg.Root,
		"pyramid_suffix":    cfg.PyramidSuffix,
		"pyramid_threshold": cfg.PyramidThreshold,
		"builder":           s.config.Builder.Enabled,
		"pixels_sets":       len(s.manifest.IDs()),
		"uptime":            humanize.Time(s.started),
	})
}

type bufferInfo struct {
	pix.Pixels
	Kind     buffer.Kind `json:"kind"`
	Path     string      `json:"path"`
	Writable bool        `json:"writable"`
	Pyramid  bool        `json:"requires_pyramid"`
	Levels   int         `json:"levels,omitempty"`
}

func (s *Server) pixelsInfoHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	b, err := s.buffer(c, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer b.Close()
	px := b.Pixels()
	info := bufferInfo{
		Pixels:   px,
		Kind:     b.Kind(),
		Path:     b.Path(),
		Writable: b.Writable(),
		Pyramid:  s.service.IsPyramidRequired(&px),
	}
	if pb, ok := b.(*buffer.PyramidBuffer); ok {
		info.Levels = pb.ResolutionLevels()
	}
	writeJSON(w, info)
}

func (s *Server) getPlaneHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	zct, err := parseInts(c, "z", "c", "t")
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.buffer(c, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer b.Close()
	data, err := b.ReadPlane(zct[0], zct[1], zct[2])
	if err != nil {
		writeError(w, r, err)
		return
	}
	px := b.Pixels()
	writePixels(w, r, data, px.SizeX, px.SizeY, px.Type)
}

func (s *Server) getTileHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	vals, err := parseInts(c, "z", "c", "t", "x", "y", "w", "h")
	if err != nil {
		writeError(w, r, err)
		return
	}
	level := 0
	if str := r.URL.Query().Get("level"); str != "" {
		if level, err = strconv.Atoi(str); err != nil {
			writeErrorStatus(w, r, http.StatusBadRequest, fmt.Sprintf("bad level %q", str))
			return
		}
	}
	b, err := s.buffer(c, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer b.Close()
	if level != 0 {
		pb, ok := b.(*buffer.PyramidBuffer)
		if !ok {
			writeErrorStatus(w, r, http.StatusBadRequest, fmt.Sprintf("%s buffer has no resolution levels", b.Kind()))
			return
		}
		if err := pb.SetResolutionLevel(level); err != nil {
			writeError(w, r, err)
			return
		}
	}
	region := pix.Region{X: vals[3], Y: vals[4], Width: vals[5], Height: vals[6]}
	data, err := b.ReadTile(vals[0], vals[1], vals[2], region)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePixels(w, r, data, region.Width, region.Height, b.Pixels().Type)
}

// writePixels sends raw big-endian pixel data or, if requested, a PNG.
func writePixels(w http.ResponseWriter, r *http.Request, data []byte, width, height int, pt pix.PixelType) {
	if r.URL.Query().Get("format") != "png" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("X-Pixel-Type", pt.String())
		w.Write(data)
		return
	}
	var img image.Image
	rect := image.Rect(0, 0, width, height)
	switch pt {
	case pix.Uint8:
		img = &image.Gray{Pix: data, Stride: width, Rect: rect}
	case pix.Uint16:
		img = &image.Gray16{Pix: data, Stride: 2 * width, Rect: rect}
	default:
		writeErrorStatus(w, r, http.StatusBadRequest, fmt.Sprintf("cannot encode %s pixels as png", pt))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		pix.Errorf("Unable to encode png: %v\n", err)
	}
}

func (s *Server) putPlaneHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	zct, err := parseInts(c, "z", "c", "t")
	if err != nil {
		writeError(w, r, err)
		return
	}
	px, err := s.pixels(c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, px.PlaneSize()+1))
	if err != nil {
		writeErrorStatus(w, r, http.StatusBadRequest, fmt.Sprintf("unable to read plane: %v", err))
		return
	}
	if int64(len(data)) != px.PlaneSize() {
		writeErrorStatus(w, r, http.StatusBadRequest, fmt.Sprintf("plane of %s needs %d bytes", px, px.PlaneSize()))
		return
	}
	b, err := s.service.PixelBuffer(r.Context(), px, s.manifest, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Existing flat storage resolves read-only.
	if b.Kind() == buffer.Flat && !b.Writable() {
		path := b.Path()
		b.Close()
		flat, err := buffer.OpenFlat(path, px, true)
		if err != nil {
			writeError(w, r, err)
			return
		}
		b = flat
	}
	if err := b.WritePlane(zct[0], zct[1], zct[2], data); err != nil {
		b.Close()
		writeError(w, r, err)
		return
	}
	if err := b.Close(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]interface{}{"id": px.ID, "kind": b.Kind(), "bytes": len(data)})
}

func (s *Server) buildPyramidHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	px, err := s.pixels(c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	paths := s.service.Resolver()
	pixelsPath := paths.PixelsPath(px.ID)
	pyramidPath := paths.PyramidPath(pixelsPath)
	if !pix.FileExists(pixelsPath) {
		writeErrorStatus(w, r, http.StatusNotFound, fmt.Sprintf("pixels %d has no flat storage", px.ID))
		return
	}
	if err := s.builder.Build(r.Context(), px, pixelsPath, pyramidPath); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]interface{}{"id": px.ID, "path": pyramidPath})
}

func (s *Server) deletePixelsHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	px, err := s.pixels(c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.service.RemovePixels([]int64{px.ID}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]interface{}{"id": px.ID, "removed": true})
}
