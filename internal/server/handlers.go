package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfstamp/internal/imagerender"
	"github.com/local/pdfstamp/internal/session"
)

type pointReq struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type sizeReq struct {
	Width int `json:"width"`
}

type mergeResp struct {
	DownloadURL string               `json:"downloadUrl"`
	Location    string               `json:"location,omitempty"`
	Pages       int                  `json:"pages"`
	Result      *session.MergeResult `json:"result"`
	Session     session.Snapshot     `json:"session"`
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.Sessions.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found", Kind: "not_found"})
		return nil, false
	}
	return sess, true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.Sessions.Create()
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sess.ID, "session": sess.Snapshot()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	found, err := s.Sessions.Delete(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found", Kind: "not_found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// saveUpload stores the "pdf" form file in the upload dir and returns its path.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request, sess *session.Session, role string) (string, bool) {
	max := s.MaxUploadBytes
	if max <= 0 {
		max = 25 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, max)
	if err := r.ParseMultipartForm(max); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file too large or malformed form", Kind: "bad_request"})
		return "", false
	}
	file, header, err := r.FormFile("pdf")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing form file \"pdf\"", Kind: "bad_request"})
		return "", false
	}
	defer file.Close()

	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		writeError(w, r, fmt.Errorf("create upload dir: %w", err))
		return "", false
	}
	// the client's file name is only logged, never used as a path
	path := filepath.Join(s.UploadDir, fmt.Sprintf("%s-%s-%s.pdf", sess.ID, role, uuid.NewString()))
	dst, err := os.Create(path)
	if err != nil {
		writeError(w, r, fmt.Errorf("create upload: %w", err))
		return "", false
	}
	_, err = io.Copy(dst, file)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	sess.Track(path)
	if err != nil {
		writeError(w, r, fmt.Errorf("save upload: %w", err))
		return "", false
	}
	log.Info().
		Str("session_id", sess.ID).
		Str("role", role).
		Str("name", header.Filename).
		Int64("size", header.Size).
		Msg("document uploaded")
	return path, true
}

func (s *Server) handleUploadTemplate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	path, ok := s.saveUpload(w, r, sess, "template")
	if !ok {
		return
	}
	if _, err := sess.LoadTemplate(path); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleUploadOverlay(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	path, ok := s.saveUpload(w, r, sess, "overlay")
	if !ok {
		return
	}
	if _, err := sess.LoadOverlay(path); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func decodePoint(w http.ResponseWriter, r *http.Request) (image.Point, bool) {
	var p pointReq
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid point", Kind: "bad_request"})
		return image.Point{}, false
	}
	return image.Pt(p.X, p.Y), true
}

func (s *Server) handleSelectionEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	p, ok := decodePoint(w, r)
	if !ok {
		return
	}
	var err error
	switch chi.URLParam(r, "event") {
	case "pressed":
		err = sess.SelectionPressed(p)
	case "dragged":
		err = sess.SelectionDragged(p)
	case "released":
		_, err = sess.SelectionReleased(p)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleStampEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var err error
	switch chi.URLParam(r, "event") {
	case "pressed", "dragged":
		p, ok := decodePoint(w, r)
		if !ok {
			return
		}
		if chi.URLParam(r, "event") == "pressed" {
			err = sess.StampPressed(p)
		} else {
			err = sess.StampDragged(p)
		}
	case "released":
		err = sess.StampReleased()
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleStampSize(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req sizeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid size", Kind: "bad_request"})
		return
	}
	if err := sess.SetWidth(req.Width); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleStampPosition(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	p, ok := decodePoint(w, r)
	if !ok {
		return
	}
	if err := sess.MoveStamp(p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func writePNG(w http.ResponseWriter, r *http.Request, img image.Image) {
	b, err := imagerender.EncodePNG(img)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
}

func (s *Server) handleOverlayPNG(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	img, err := sess.OverlayOutline()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePNG(w, r, img)
}

func (s *Server) handlePreviewPNG(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	img, err := sess.Preview()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePNG(w, r, img)
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := sess.Merge(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mergeResp{
		DownloadURL: fmt.Sprintf("/api/sessions/%s/output", sess.ID),
		Location:    res.Location,
		Pages:       res.Pages,
		Result:      res,
		Session:     sess.Snapshot(),
	})
}

func (s *Server) handleDownloadOutput(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, ok := sess.LastMerge()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "nothing merged yet", Kind: "not_found"})
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(res.OutputPath)))
	http.ServeFile(w, r, res.OutputPath)
}

type mergeSlots struct {
	Running int `json:"running"`
	Limit   int `json:"limit"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"ready": true, "sessions": s.Sessions.Len()}
	if s.Composer != nil {
		running, limit := s.Composer.MergesInFlight()
		body["merges"] = mergeSlots{Running: running, Limit: limit}
	}
	code := http.StatusOK
	if s.Checker != nil {
		sum := s.Checker.Summary(r.Context())
		body["ready"] = sum.Ready()
		body["checks"] = sum
		if !sum.Ready() {
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, body)
}

func (s *Server) handleRecentMerges(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := s.History.Recent(r.Context(), n)
	if err != nil {
		writeError(w, r, errors.Join(errors.New("history unavailable"), err))
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
