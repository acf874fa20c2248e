package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/umputun/lorawiz/app/service/request"
	"github.com/umputun/lorawiz/app/vram"
	"github.com/umputun/lorawiz/app/web/enums"
	"github.com/umputun/lorawiz/app/web/persistence"
)

// handleWizard renders the wizard page with the default preset applied
func (s *Server) handleWizard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := s.newTemplateData(r)
	data.Presets = s.presets.Names()
	data.Selected = s.presets.Default()
	data.Fields = s.presets.Lookup(data.Selected)
	data.Estimate = vram.Estimate(data.Fields.BatchSize, data.Fields.Rank)

	runs, err := s.store.ListRuns(historyLimit)
	if err != nil {
		log.Printf("[WARN] failed to load run history: %v", err)
	}
	data.Runs = runs

	s.render(w, http.StatusOK, "base.html", "base", data)
}

// handlePreset returns parameter fields of the selected preset with vram estimate computed from them
func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("preset")
	data := s.newTemplateData(r)
	data.Selected = name
	data.Fields = s.presets.Lookup(name)
	data.Estimate = vram.Recompute(data.Fields.BatchSize, data.Fields.Rank)
	data.IsOOB = true
	log.Printf("[DEBUG] preset %q applied, %s", name, data.Estimate)
	s.render(w, http.StatusOK, "partials", "preset-fields", data)
}

// handleVram returns estimate for current batch size and rank fields
func (s *Server) handleVram(w http.ResponseWriter, r *http.Request) {
	data := s.newTemplateData(r)
	data.Estimate = vram.Recompute(r.FormValue("batch_size"), r.FormValue("rank"))
	s.render(w, http.StatusOK, "partials", "vram", data)
}

// handleStartRun accepts uploaded dataset with training parameters and starts the run in background
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	req, archive, err := s.parseRunForm(w, r, id)
	if err != nil {
		log.Printf("[WARN] rejected run submission: %v", err)
		data := s.newTemplateData(r)
		data.Error = err.Error()
		s.render(w, errorStatus(err), "partials", "run-error", data)
		return
	}

	data := s.newTemplateData(r)
	data.Run = s.startRun(id, archive, req)
	s.render(w, http.StatusOK, "partials", "run", data)
}

// handleRunEvents streams run events as server-sent events. All events from the start of the run are
// sent first, or from the one after Last-Event-ID on reconnect. The stream ends after "done" or "failure" event.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := s.getRun(r.PathValue("id"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	rc := http.NewResponseController(w)
	// streams are longer than server write timeout
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		log.Printf("[WARN] can't reset write deadline, stream may be cut by write timeout: %v", err)
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	idx := lastEventID(r) + 1
	for {
		events, done, changed := run.since(idx)
		for _, ev := range events {
			if err := writeEvent(w, idx, ev); err != nil {
				log.Printf("[DEBUG] event stream closed: %v", err)
				return
			}
			idx++
		}
		if err := rc.Flush(); err != nil {
			log.Printf("[WARN] can't flush event stream: %v", err)
			return
		}
		if done && len(events) == 0 {
			return
		}
		if done {
			continue // pick up anything appended with the final event
		}
		select {
		case <-changed:
		case <-r.Context().Done():
			return
		}
	}
}

// lastEventID returns id of the last event seen by reconnecting client, -1 if none
func lastEventID(r *http.Request) int {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		return -1
	}
	id, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || id < 0 {
		log.Printf("[DEBUG] ignore invalid Last-Event-ID %q", v)
		return -1
	}
	return id
}

// writeEvent writes single sse message, multi-line data split to data fields
func writeEvent(w io.Writer, id int, ev RunEvent) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "id: %d\nevent: %s\n", id, ev.Type)
	for line := range strings.SplitSeq(ev.Data, "\n") {
		fmt.Fprintf(&sb, "data: %s\n", line)
	}
	sb.WriteString("\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// handleCancelRun cancels active run
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.getRun(id); !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if !s.cancelRun(id) {
		http.Error(w, "run already finished", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleRunsPartial returns run history
func (s *Server) handleRunsPartial(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(historyLimit)
	if err != nil {
		log.Printf("[ERROR] failed to load run history: %v", err)
		http.Error(w, "Failed to load runs", http.StatusInternalServerError)
		return
	}
	data := s.newTemplateData(r)
	data.Runs = runs
	s.render(w, http.StatusOK, "partials", "runs", data)
}

// handleRunPartial returns status card of a single run
func (s *Server) handleRunPartial(w http.ResponseWriter, r *http.Request) {
	info, err := s.runInfo(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		log.Printf("[ERROR] failed to load run: %v", err)
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	data := s.newTemplateData(r)
	data.Run = info
	s.render(w, http.StatusOK, "partials", "run", data)
}

// handleThemeToggle cycles the theme auto -> light -> dark -> auto
func (s *Server) handleThemeToggle(w http.ResponseWriter, r *http.Request) {
	var next enums.Theme
	switch s.getTheme(r) {
	case enums.ThemeAuto:
		next = enums.ThemeLight
	case enums.ThemeLight:
		next = enums.ThemeDark
	default:
		next = enums.ThemeAuto
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "theme",
		Value:    next.String(),
		Path:     s.cookiePath(),
		MaxAge:   365 * 24 * 60 * 60, // 1 year
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("HX-Refresh", "true")
	w.WriteHeader(http.StatusOK)
}

// runInfo returns live state of the run if present, stored one otherwise
func (s *Server) runInfo(id string) (persistence.RunInfo, error) {
	if run, ok := s.getRun(id); ok {
		info, _ := run.snapshot()
		return info, nil
	}
	return s.store.GetRun(id)
}

// errBadForm marks invalid submissions
var errBadForm = errors.New("bad form")

// parseRunForm reads multipart submission and saves uploaded archive to the upload dir of the run
func (s *Server) parseRunForm(w http.ResponseWriter, r *http.Request, id string) (req request.Training, archive string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err = r.ParseMultipartForm(32 << 20); err != nil {
		return req, "", fmt.Errorf("%w: can't parse upload: %w", errBadForm, err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("dataset")
	if err != nil {
		return req, "", fmt.Errorf("%w: dataset archive is required", errBadForm)
	}
	defer file.Close()

	archive = filepath.Base(filepath.Clean("/" + strings.ReplaceAll(header.Filename, `\`, "/")))
	if archive == "/" || archive == "." {
		return req, "", fmt.Errorf("%w: invalid archive name %q", errBadForm, header.Filename)
	}

	destDir := strings.TrimSpace(r.FormValue("dest_dir"))
	if destDir == "" {
		destDir = s.destDir
	}
	if destDir == "" {
		return req, "", fmt.Errorf("%w: destination directory is required", errBadForm)
	}

	saved := s.uploadPath(id, archive)
	if err = saveUpload(file, saved); err != nil {
		s.removeUpload(id)
		return req, "", err
	}

	req = request.Training{
		ArchivePath:  saved,
		DestDir:      destDir,
		DeleteAfter:  r.FormValue("delete_after") != "",
		ModelName:    strings.TrimSpace(r.FormValue("model")),
		LearningRate: strings.TrimSpace(r.FormValue("learning_rate")),
		BatchSize:    strings.TrimSpace(r.FormValue("batch_size")),
		Rank:         strings.TrimSpace(r.FormValue("rank")),
	}
	return req, archive, nil
}

func saveUpload(src multipart.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("can't make upload directory: %w", err)
	}
	fh, err := os.Create(dst) //nolint:gosec // name sanitized by caller
	if err != nil {
		return fmt.Errorf("can't create upload file: %w", err)
	}
	if _, err = io.Copy(fh, src); err != nil {
		_ = fh.Close()
		return fmt.Errorf("can't save upload: %w", err)
	}
	if err = fh.Close(); err != nil {
		return fmt.Errorf("can't close upload file: %w", err)
	}
	return nil
}
