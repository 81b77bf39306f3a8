package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"handraise/internal/metrics"
	"handraise/pkg/types"
)

// Classes

// FUNCTIONAL DISCOVERY: POST /api/classes - Create a class, generating a code unless one is given
func (s *Server) createClass(w http.ResponseWriter, r *http.Request) {
	var req CreateClassRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	var (
		class *types.Class
		err   error
	)
	if req.Code != "" {
		class, err = s.sessions.Create(r.Context(), req.Code, req.Name)
	} else {
		class, err = s.sessions.CreateWithGeneratedCode(r.Context(), req.Name)
	}
	if err != nil {
		s.sendStoreError(w, err, "create class")
		return
	}

	writeJSON(w, http.StatusCreated, ClassResponse{Class: class})
}

// FUNCTIONAL DISCOVERY: GET /api/classes - Admin listing, newest first
func (s *Server) listClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := s.sessions.List(r.Context())
	if err != nil {
		s.sendStoreError(w, err, "list classes")
		return
	}
	writeJSON(w, http.StatusOK, ListClassesResponse{Classes: classes})
}

// FUNCTIONAL DISCOVERY: GET /api/classes/{code} - Class details with live observer count
func (s *Server) getClass(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	class, err := s.sessions.Get(r.Context(), code)
	if err != nil {
		s.sendStoreError(w, err, "get class")
		return
	}
	writeJSON(w, http.StatusOK, ClassResponse{
		Class:       class,
		Connections: len(s.registry.GetClassConnections(code)),
	})
}

// FUNCTIONAL DISCOVERY: POST /api/classes/{code}/close - Close, sweep the roster, then tell observers
func (s *Server) closeClass(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := s.sessions.Close(r.Context(), code); err != nil {
		s.sendStoreError(w, err, "close class")
		return
	}
	metrics.ClassesClosedTotal.WithLabelValues("manual").Inc()
	s.registry.ClassClosed(code)
	log.Printf("Class %s closed by teacher", code)

	s.respondWithClass(w, r, code, "close class")
}

// FUNCTIONAL DISCOVERY: POST /api/classes/{code}/reopen - Reopen; removed students must rejoin
func (s *Server) reopenClass(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := s.sessions.Reopen(r.Context(), code); err != nil {
		s.sendStoreError(w, err, "reopen class")
		return
	}
	s.respondWithClass(w, r, code, "reopen class")
}

func (s *Server) respondWithClass(w http.ResponseWriter, r *http.Request, code, action string) {
	class, err := s.sessions.Get(r.Context(), code)
	if err != nil {
		s.sendStoreError(w, err, action)
		return
	}
	writeJSON(w, http.StatusOK, ClassResponse{
		Class:       class,
		Connections: len(s.registry.GetClassConnections(code)),
	})
}

// FUNCTIONAL DISCOVERY: GET /api/classes/{code}/statistics - Pull-only summary
func (s *Server) classStatistics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.stats.Summarize(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.sendStoreError(w, err, "compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Students

// FUNCTIONAL DISCOVERY: POST /api/classes/{code}/students - Join an open class
func (s *Server) joinClass(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req JoinRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	id, err := s.ledger.Join(r.Context(), code, req.Name)
	if err != nil {
		s.sendStoreError(w, err, "join class")
		return
	}
	student, err := s.ledger.Get(r.Context(), code, id)
	if err != nil {
		s.sendStoreError(w, err, "join class")
		return
	}
	writeJSON(w, http.StatusCreated, JoinResponse{Student: student})
}

// requireOpen writes 404 for unknown and 409 for closed classes.
func (s *Server) requireOpen(w http.ResponseWriter, r *http.Request, code, action string) bool {
	class, err := s.sessions.Get(r.Context(), code)
	if err != nil {
		s.sendStoreError(w, err, action)
		return false
	}
	if !class.IsOpen() {
		s.sendStoreError(w, types.ErrClassClosed, action)
		return false
	}
	return true
}

// FUNCTIONAL DISCOVERY: GET /api/classes/{code}/students[?active=true]
func (s *Server) listStudents(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var (
		students []*types.Student
		err      error
	)
	if r.URL.Query().Get("active") == "true" {
		students, err = s.ledger.ListActive(r.Context(), code)
	} else {
		students, err = s.ledger.List(r.Context(), code)
	}
	if err != nil {
		s.sendStoreError(w, err, "list students")
		return
	}
	writeJSON(w, http.StatusOK, ListStudentsResponse{Students: students})
}

// FUNCTIONAL DISCOVERY: DELETE /api/classes/{code}/students/{id} - Leave; the ledger stays
func (s *Server) leaveClass(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	id := chi.URLParam(r, "id")
	if err := s.ledger.Remove(r.Context(), code, id); err != nil {
		s.sendStoreError(w, err, "leave class")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Student left the class"})
}

// FUNCTIONAL DISCOVERY: PUT /api/classes/{code}/students/{id}/hand - Student raises or lowers
func (s *Server) setHand(w http.ResponseWriter, r *http.Request) {
	var req HandRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	code := chi.URLParam(r, "code")
	id := chi.URLParam(r, "id")
	if err := s.ledger.SetHandRaised(r.Context(), code, id, *req.Raised); err != nil {
		s.sendStoreError(w, err, "update hand")
		return
	}
	s.respondWithStudent(w, r, code, id, "update hand")
}

// FUNCTIONAL DISCOVERY: POST /api/classes/{code}/students/{id}/lower - Teacher lowers a hand
func (s *Server) teacherLowerHand(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	id := chi.URLParam(r, "id")
	if err := s.ledger.TeacherLowerHand(r.Context(), code, id); err != nil {
		s.sendStoreError(w, err, "lower hand")
		return
	}
	s.respondWithStudent(w, r, code, id, "lower hand")
}

// FUNCTIONAL DISCOVERY: PUT /api/classes/{code}/students/{id}/status - Soft remove or restore
func (s *Server) setStudentStatus(w http.ResponseWriter, r *http.Request) {
	var req StudentStatusRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	code := chi.URLParam(r, "code")
	id := chi.URLParam(r, "id")
	if err := s.ledger.SetStatus(r.Context(), code, id, types.StudentStatus(req.Status)); err != nil {
		s.sendStoreError(w, err, "update student status")
		return
	}
	s.respondWithStudent(w, r, code, id, "update student status")
}

func (s *Server) respondWithStudent(w http.ResponseWriter, r *http.Request, code, id, action string) {
	student, err := s.ledger.Get(r.Context(), code, id)
	if err != nil {
		s.sendStoreError(w, err, action)
		return
	}
	writeJSON(w, http.StatusOK, JoinResponse{Student: student})
}

// FUNCTIONAL DISCOVERY: GET /api/classes/{code}/students/{id}/history - Ledger, newest first
func (s *Server) handHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.ledger.History(r.Context(), chi.URLParam(r, "code"), chi.URLParam(r, "id"))
	if err != nil {
		s.sendStoreError(w, err, "read hand history")
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{History: history})
}

// Questions

// FUNCTIONAL DISCOVERY: POST /api/classes/{code}/questions - Submit while the class is open
func (s *Server) submitQuestion(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req SubmitQuestionRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	if !s.requireOpen(w, r, code, "submit question") {
		return
	}

	id, err := s.questions.Submit(r.Context(), code, req.StudentID, req.Text)
	if err != nil {
		s.sendStoreError(w, err, "submit question")
		return
	}
	writeJSON(w, http.StatusCreated, SubmitQuestionResponse{QuestionID: id})
}

// FUNCTIONAL DISCOVERY: GET /api/classes/{code}/questions - Visible queue, newest first
func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := s.questions.List(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.sendStoreError(w, err, "list questions")
		return
	}
	writeJSON(w, http.StatusOK, ListQuestionsResponse{Questions: qs})
}

// FUNCTIONAL DISCOVERY: PUT /api/classes/{code}/questions/{id}/status
func (s *Server) setQuestionStatus(w http.ResponseWriter, r *http.Request) {
	var req QuestionStatusRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	code := chi.URLParam(r, "code")
	id := chi.URLParam(r, "id")
	if err := s.questions.SetStatus(r.Context(), code, id, types.QuestionStatus(req.Status)); err != nil {
		s.sendStoreError(w, err, "update question status")
		return
	}
	s.respondWithQuestion(w, r, code, id, "update question status")
}

// FUNCTIONAL DISCOVERY: POST /api/classes/{code}/questions/{id}/answer
func (s *Server) answerQuestion(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	code := chi.URLParam(r, "code")
	id := chi.URLParam(r, "id")
	if err := s.questions.Answer(r.Context(), code, id, req.Answer, req.AnsweredBy); err != nil {
		s.sendStoreError(w, err, "answer question")
		return
	}
	s.respondWithQuestion(w, r, code, id, "answer question")
}

func (s *Server) respondWithQuestion(w http.ResponseWriter, r *http.Request, code, id, action string) {
	q, err := s.questions.Get(r.Context(), code, id)
	if err != nil {
		s.sendStoreError(w, err, action)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*types.Question{"question": q})
}

// FUNCTIONAL DISCOVERY: DELETE /api/classes/{code}/questions/{id} - Soft delete
func (s *Server) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := s.questions.SoftDelete(r.Context(), chi.URLParam(r, "code"), chi.URLParam(r, "id")); err != nil {
		s.sendStoreError(w, err, "delete question")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Question deleted"})
}
