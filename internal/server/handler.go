package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"aceinterview/internal/common"
	appErrors "aceinterview/internal/errors"
	"aceinterview/internal/formatters"
	"aceinterview/internal/observability"
	"aceinterview/internal/session"
	"aceinterview/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// lookupSession resolves the {id} route parameter, writing a 404 when unknown
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (string, *session.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, ok := s.Sessions.Get(id)
	if !ok {
		writeErrorResponse(w, "Session not found", "Create a session with POST /api/sessions", http.StatusNotFound)
		return id, nil, false
	}
	return id, sess, true
}

func (s *Server) sessionResponse(id string, sess *session.Session) SessionResponse {
	resp := SessionResponse{SessionID: id, Session: sess.Snapshot()}
	if cur, ok := sess.Current(); ok && sess.Step() == session.StepInterview {
		resp.Current = &cur
	}
	return resp
}

// applyProfile copies the wizard choices from a request, checked against the catalogues
func (s *Server) applyProfile(sess *session.Session, domain, interviewType, company, level string) error {
	catalog := s.AppConfig.Interview

	if strings.TrimSpace(domain) != "" {
		resolved, err := common.ResolveChoice("domain", domain, catalog.Domains)
		if err != nil {
			return appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest, err.Error(), nil)
		}
		if err := sess.SelectDomain(resolved); err != nil {
			return err
		}
	}

	if strings.TrimSpace(interviewType) != "" {
		resolved, err := common.ResolveChoice("interview type", interviewType, catalog.InterviewTypes)
		if err != nil {
			return appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest, err.Error(), nil)
		}
		sess.SetInterviewType(resolved)
	}

	if strings.TrimSpace(company) != "" {
		resolved, err := common.ResolveChoice("company", company, catalog.Companies)
		if err != nil {
			return appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest, err.Error(), nil)
		}
		sess.SetCompany(resolved)
	}

	if strings.TrimSpace(level) != "" {
		resolved, err := common.ResolveChoice("level", level, catalog.Levels)
		if err != nil {
			return appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest, err.Error(), nil)
		}
		sess.SetLevel(resolved)
	}

	return nil
}

// createSessionHandler starts a new practice session, optionally with the setup choices
func (s *Server) createSessionHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer("aceinterview.api").Start(r.Context(), "api.create_session")
		defer span.End()

		var req CreateSessionRequest
		if err := parseOptionalJSONRequest(r, createSessionSchema, &req); err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "validation"))
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}

		id, sess := s.Sessions.Create()
		if err := s.applyProfile(sess, req.Domain, req.InterviewType, req.Company, req.Level); err != nil {
			s.Sessions.Delete(ctx, id)
			span.RecordError(err)
			writeAppError(w, err)
			return
		}
		if req.JobDescription != "" {
			sess.SetJobDescription(req.JobDescription)
		}
		if req.CandidateName != "" {
			sess.SetCandidateName(req.CandidateName)
		}

		span.SetAttributes(attribute.String("aceinterview.session_id", id))
		s.Logger.Debug("Session created", "session_id", id)

		writeJSONResponse(w, http.StatusCreated, s.sessionResponse(id, sess))
	}
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, s.sessionResponse(id, sess))
}

func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if !s.Sessions.Delete(r.Context(), chi.URLParam(r, "id")) {
		writeErrorResponse(w, "Session not found", "", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadResumeHandler accepts a multipart "file" field and sends it for parsing.
// The file stays attached to the session even when the backend cannot parse it.
func (s *Server) uploadResumeHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, sess, ok := s.lookupSession(w, r)
		if !ok {
			return
		}

		ctx, span := om.Tracer("aceinterview.api").Start(r.Context(), "api.upload_resume")
		defer span.End()

		file, header, err := r.FormFile("file")
		if err != nil {
			span.RecordError(err)
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeErrorResponse(w, "Resume too large", fmt.Sprintf("Request body limit is %d bytes", maxBytesErr.Limit), http.StatusRequestEntityTooLarge)
				return
			}
			writeErrorResponse(w, session.MsgUploadResume, "multipart field 'file' is required", http.StatusBadRequest)
			return
		}
		defer func() { _ = file.Close() }()

		fileName := filepath.Base(header.Filename)
		if !utils.IsResumeFile(fileName) {
			writeErrorResponse(w, "Unsupported resume type",
				fmt.Sprintf("Expected one of %v", utils.ResumeExtensions), http.StatusUnsupportedMediaType)
			return
		}

		maxSize := s.AppConfig.App.MaxFileSize
		content, err := io.ReadAll(io.LimitReader(file, maxSize+1))
		if err != nil {
			span.RecordError(err)
			writeErrorResponse(w, "Failed to read resume", err.Error(), http.StatusBadRequest)
			return
		}
		if int64(len(content)) > maxSize {
			writeErrorResponse(w, "Resume too large",
				fmt.Sprintf("Resumes are limited to %s", utils.FormatFileSize(maxSize)), http.StatusRequestEntityTooLarge)
			return
		}

		span.SetAttributes(
			attribute.String("resume.type", utils.GetFileExtension(fileName)),
			attribute.Int("resume.size", len(content)),
		)

		resp := ResumeResponse{SessionID: id, FileName: fileName}

		out, err := sess.AttachResume(ctx, fileName, content)
		switch {
		case appErrors.IsType(err, appErrors.ErrorTypeValidation):
			writeAppError(w, err)
			return
		case err != nil:
			// the interview can go on without a resume token
			span.RecordError(err)
			span.SetStatus(codes.Error, "resume parsing failed")
			s.Logger.LogError(err, "Resume parsing failed", "session_id", id)
			resp.Warning = appErrors.UserMessage(err, "The resume could not be parsed. Questions will not use it.")
		default:
			resp.CandidateName = strings.TrimSpace(out.Name)
			resp.HasResume = out.ResumeToken != ""
		}

		writeJSONResponse(w, http.StatusOK, resp)
	}
}

// questionsHandler generates a fresh question list. Without a selected
// domain the interview type is used instead.
func (s *Server) questionsHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, sess, ok := s.lookupSession(w, r)
		if !ok {
			return
		}

		ctx, span := om.Tracer("aceinterview.api").Start(r.Context(), "api.generate_questions")
		defer span.End()

		var req QuestionsRequest
		if err := parseOptionalJSONRequest(r, questionsSchema, &req); err != nil {
			span.RecordError(err)
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.applyProfile(sess, req.Domain, req.InterviewType, req.Company, req.Level); err != nil {
			writeAppError(w, err)
			return
		}
		if req.JobDescription != nil {
			sess.SetJobDescription(*req.JobDescription)
		}

		var err error
		if sess.Profile().Domain != "" {
			_, err = sess.Begin(ctx)
		} else {
			_, err = sess.EnsureQuestions(ctx)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "question generation failed")
			s.Logger.LogError(err, "Question generation failed", "session_id", id)
			writeAppError(w, err)
			return
		}

		span.SetAttributes(attribute.Int("questions.count", len(sess.Questions())))
		writeJSONResponse(w, http.StatusOK, s.sessionResponse(id, sess))
	}
}

// answerHandler evaluates the answer to the current question
func (s *Server) answerHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, sess, ok := s.lookupSession(w, r)
		if !ok {
			return
		}

		ctx, span := om.Tracer("aceinterview.api").Start(r.Context(), "api.submit_answer")
		defer span.End()

		var req AnswerRequest
		if err := parseJSONRequest(r, answerSchema, &req); err != nil {
			span.RecordError(err)
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}

		result, err := sess.Submit(ctx, req.Answer)
		if err != nil {
			span.RecordError(err)
			s.Logger.LogError(err, "Answer evaluation failed", "session_id", id)
			writeAppError(w, err)
			return
		}

		span.SetAttributes(
			attribute.Bool("session.finished", result.Finished),
			attribute.String("evaluation.score", formatScoreAttr(result.Evaluation.Score)),
		)

		if result.Finished {
			res := sess.Results()
			domain := attribute.String("domain", sess.Profile().Domain)
			om.RecordBusinessMetric(ctx, observability.MetricSessionCompleted, true, domain)
			if res.Total != nil {
				om.RecordSessionScore(ctx, *res.Total, domain)
			}
		}

		writeJSONResponse(w, http.StatusOK, result)
	}
}

// resultsHandler returns the aggregated results as JSON, or rendered with ?format=text|markdown
func (s *Server) resultsHandler(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	results := sess.Results()

	format := r.URL.Query().Get("format")
	switch format {
	case "", "json":
		writeJSONResponse(w, http.StatusOK, results)
	case "text", "markdown":
		output, err := formatters.GlobalRegistry.Format(results, format)
		if err != nil {
			writeErrorResponse(w, "Failed to render results", err.Error(), http.StatusInternalServerError)
			return
		}
		contentType := "text/plain; charset=utf-8"
		if format == "markdown" {
			contentType = "text/markdown; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = io.WriteString(w, output)
	default:
		writeErrorResponse(w, "Unsupported format",
			fmt.Sprintf("Supported formats: %v", formatters.GlobalRegistry.GetSupportedFormats()), http.StatusBadRequest)
	}
}

// catalogHandler lists the choices offered during setup
func (s *Server) catalogHandler(w http.ResponseWriter, _ *http.Request) {
	catalog := s.AppConfig.Interview
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"domains":         catalog.Domains,
		"levels":          catalog.Levels,
		"companies":       catalog.Companies,
		"interview_types": catalog.InterviewTypes,
		"question_count":  catalog.QuestionCount,
	})
}

func formatScoreAttr(score *float64) string {
	if score == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *score)
}
