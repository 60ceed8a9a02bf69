package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-course/internal/content"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/export"
	"github.com/p-n-ai/pai-course/internal/session"
)

const maxBodyBytes = 1 << 20

type startRequest struct {
	Subject     string `json:"subject"`
	Topic       string `json:"topic"`
	Description string `json:"description"`
}

type sessionResponse struct {
	SessionID string          `json:"session_id"`
	Snapshot  course.Snapshot `json:"snapshot"`
}

type commandRequest struct {
	Command  string `json:"command"`
	Index    *int   `json:"index,omitempty"`
	Quest    *int   `json:"quest,omitempty"`
	Subtopic *int   `json:"subtopic,omitempty"`
	Slide    string `json:"slide,omitempty"`
	Section  string `json:"section,omitempty"`
}

type commandResponse struct {
	Applied  bool            `json:"applied"`
	Snapshot course.Snapshot `json:"snapshot"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c := content.CourseContext{Subject: req.Subject, Topic: req.Topic, Description: req.Description}
	if !c.Valid() {
		writeError(w, http.StatusBadRequest, "subject and topic are required")
		return
	}

	sess, err := s.sessions.Start(r.Context(), c)
	if err != nil {
		slog.Error("failed to start session", "error", err)
		writeError(w, http.StatusInternalServerError, "could not start session")
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: sess.ID, Snapshot: sess.Player.Snapshot()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sess.ID, Snapshot: sess.Player.Snapshot()})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Close(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("failed to close session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not close session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	applied, err := dispatch(r, sess.Player, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Applied: applied, Snapshot: sess.Player.Snapshot()})
}

// dispatch runs one player command. Errors are malformed requests; commands
// whose preconditions fail report applied=false.
func dispatch(r *http.Request, p *course.Player, req commandRequest) (bool, error) {
	ctx := r.Context()
	switch req.Command {
	case "next":
		return p.Next(ctx), nil
	case "previous":
		return p.Previous(ctx), nil
	case "begin_adventure":
		return p.BeginAdventure(ctx), nil
	case "exit_adventure":
		return p.ExitAdventure(ctx), nil
	case "select_quest":
		if req.Index == nil {
			return false, fmt.Errorf("select_quest needs an index")
		}
		return p.SelectQuest(ctx, *req.Index), nil
	case "select_subtopic":
		if req.Index == nil {
			return false, fmt.Errorf("select_subtopic needs an index")
		}
		return p.SelectSubtopic(ctx, *req.Index), nil
	case "refresh":
		return refresh(r, p, req)
	case "":
		return false, fmt.Errorf("command is required")
	default:
		return false, fmt.Errorf("unknown command %q", req.Command)
	}
}

// refresh regenerates a section when one is named, otherwise a slide. Both
// default to what the player is showing.
func refresh(r *http.Request, p *course.Player, req commandRequest) (bool, error) {
	v := p.View()
	if req.Section != "" {
		section, ok := content.ParseSectionType(req.Section)
		if !ok {
			return false, fmt.Errorf("unknown section %q", req.Section)
		}
		quest, subtopic := v.Quest, v.Subtopic
		if req.Quest != nil {
			quest = *req.Quest
		}
		if req.Subtopic != nil {
			subtopic = *req.Subtopic
		}
		return p.RefreshSection(r.Context(), quest, subtopic, section), nil
	}

	slide := v.SlideKey()
	if req.Slide != "" {
		var ok bool
		if slide, ok = content.ParseSlideKey(req.Slide); !ok {
			return false, fmt.Errorf("unknown slide %q", req.Slide)
		}
	}
	return p.Refresh(r.Context(), slide), nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, sess.Player.Material()); err != nil {
		slog.Error("failed to build workbook", "session_id", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not export course")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="course-%s.xlsx"`, sess.Player.CourseID()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write workbook", "session_id", sess.ID, "error", err)
	}
}

// session resolves the {id} path value, writing a 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := r.PathValue("id")
	sess, err := s.sessions.Resume(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return nil, false
		}
		slog.Error("failed to load session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return nil, false
	}
	return sess, true
}
