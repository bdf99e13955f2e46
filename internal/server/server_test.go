package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"taskdesk/internal/auth"
	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	signer, err := auth.NewSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	e := engine.New(conn, signer)
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{Signer: signer}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// seedAdmin creates an admin account directly and returns its id and a token.
func seedAdmin(t *testing.T, srv *testServer) (string, string) {
	t.Helper()
	u, err := srv.Engine.CreateUser(context.Background(), "Admin", "admin@example.com", "adminpass", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]string{
		"email":    "admin@example.com",
		"password": "adminpass",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin login status %d: %s", res.StatusCode, string(data))
	}
	var out AuthResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	return u.ID, out.Token
}

// registerEmployee registers through the API and returns id and token.
func registerEmployee(t *testing.T, srv *testServer, name, email string) (string, string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": "secret123",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}
	var out AuthResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal register: %v", err)
	}
	if out.User.Role != domain.RoleEmployee {
		t.Fatalf("registered role = %q, want EMPLOYEE", out.User.Role)
	}
	return out.User.ID, out.Token
}

func createTask(t *testing.T, srv *testServer, adminToken, assigneeID string, body map[string]any) domain.Task {
	t.Helper()
	if body == nil {
		body = map[string]any{}
	}
	if _, ok := body["title"]; !ok {
		body["title"] = "Quarterly filing"
	}
	if _, ok := body["due_date"]; !ok {
		body["due_date"] = time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339)
	}
	body["assignee_id"] = assigneeID
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", body, bearer(adminToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var env TaskEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	return env.Task
}

func errorMessage(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope %q: %v", string(data), err)
	}
	return env.Error
}

func TestLoginFailuresAreIdentical(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	registerEmployee(t, srv, "Jo", "jo@example.com")

	wrongPass, data1 := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]string{
		"email":    "jo@example.com",
		"password": "not-the-password",
	}, nil)
	unknown, data2 := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "whatever123",
	}, nil)
	if wrongPass.StatusCode != http.StatusUnauthorized || unknown.StatusCode != http.StatusUnauthorized {
		t.Fatalf("statuses = %d, %d; want 401, 401", wrongPass.StatusCode, unknown.StatusCode)
	}
	msg1, msg2 := errorMessage(t, data1), errorMessage(t, data2)
	if msg1 != msg2 {
		t.Fatalf("failure messages differ: %q vs %q", msg1, msg2)
	}
	if msg1 != "Invalid email or password" {
		t.Fatalf("failure message = %q", msg1)
	}
}

func TestRegisterValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/register", map[string]string{
		"name":     "Shorty",
		"email":    "shorty@example.com",
		"password": "abc",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("short password status %d: %s", res.StatusCode, string(data))
	}

	// The rejected registration must not have left a record behind.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]string{
		"email":    "shorty@example.com",
		"password": "abc",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login after rejected register status %d: %s", res.StatusCode, string(data))
	}

	registerEmployee(t, srv, "Jo", "jo@example.com")
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/register", map[string]string{
		"name":     "Jo Again",
		"email":    "JO@example.com",
		"password": "secret123",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate email status %d: %s", res.StatusCode, string(data))
	}
}

func TestTaskStatusAndCompletedAt(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, adminToken := seedAdmin(t, srv)
	empID, empToken := registerEmployee(t, srv, "Jo", "jo@example.com")

	task := createTask(t, srv, adminToken, empID, map[string]any{
		"action_steps": []string{"Collect data", "Draft summary"},
	})
	if task.Status != domain.StatusTodo || task.CompletedAt != nil {
		t.Fatalf("new task status=%q completedAt=%v", task.Status, task.CompletedAt)
	}
	if len(task.ActionSteps) != 2 {
		t.Fatalf("action steps = %d, want 2", len(task.ActionSteps))
	}

	update := func(token string, body map[string]any) (*http.Response, domain.Task, []byte) {
		res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/tasks/"+task.ID, body, bearer(token))
		var env TaskEnvelope
		if res.StatusCode == http.StatusOK {
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("unmarshal task: %v", err)
			}
		}
		return res, env.Task, data
	}

	res, updated, data := update(empToken, map[string]any{"status": "in-progress"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status update %d: %s", res.StatusCode, string(data))
	}
	if updated.Status != domain.StatusInProgress || updated.CompletedAt != nil {
		t.Fatalf("in-progress task completedAt=%v", updated.CompletedAt)
	}

	res, updated, data = update(empToken, map[string]any{"status": "completed"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete update %d: %s", res.StatusCode, string(data))
	}
	if updated.CompletedAt == nil || *updated.CompletedAt == "" {
		t.Fatal("completed task has no completed_at")
	}

	// Reopening clears the stamp.
	res, updated, data = update(empToken, map[string]any{"status": "todo"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reopen update %d: %s", res.StatusCode, string(data))
	}
	if updated.CompletedAt != nil {
		t.Fatalf("reopened task completedAt=%v", *updated.CompletedAt)
	}

	// Employees never touch priority.
	res, _, data = update(empToken, map[string]any{"priority": "high"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("employee priority update %d: %s", res.StatusCode, string(data))
	}
	res, updated, data = update(adminToken, map[string]any{"priority": "high"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin priority update %d: %s", res.StatusCode, string(data))
	}
	if updated.Priority != domain.PriorityHigh {
		t.Fatalf("priority = %q", updated.Priority)
	}
}

func TestTaskAccessScoping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	adminID, adminToken := seedAdmin(t, srv)
	empID, empToken := registerEmployee(t, srv, "Jo", "jo@example.com")
	_, otherToken := registerEmployee(t, srv, "Sam", "sam@example.com")

	mine := createTask(t, srv, adminToken, empID, map[string]any{"title": "Mine"})
	createTask(t, srv, adminToken, adminID, map[string]any{"title": "Admin's own"})

	// List scoping: employee sees only their tasks, admin sees all.
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil, bearer(empToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("employee list %d: %s", res.StatusCode, string(data))
	}
	var list TaskListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].ID != mine.ID {
		t.Fatalf("employee list = %d tasks", len(list.Tasks))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil, bearer(adminToken))
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if res.StatusCode != http.StatusOK || len(list.Tasks) != 2 {
		t.Fatalf("admin list status %d, %d tasks", res.StatusCode, len(list.Tasks))
	}

	// Another employee cannot view, mutate, or delete the task.
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks/"+mine.ID, nil, bearer(otherToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign view %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/tasks/"+mine.ID, map[string]any{"status": "completed"}, bearer(otherToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign update %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/tasks/"+mine.ID, nil, bearer(empToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("employee delete %d", res.StatusCode)
	}

	// Unknown ids are 404 before any access decision.
	res, _ = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/tasks/no-such-task", map[string]any{"status": "completed"}, bearer(otherToken))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task update %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/tasks/no-such-task", nil, bearer(empToken))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task delete %d", res.StatusCode)
	}

	// Employees cannot create tasks.
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":       "Rogue",
		"due_date":    time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"assignee_id": empID,
	}, bearer(empToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("employee create %d", res.StatusCode)
	}

	// Admin delete works and the task is gone.
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/tasks/"+mine.ID, nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin delete %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks/"+mine.ID, nil, bearer(adminToken))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted task get %d", res.StatusCode)
	}
}

func TestActionStepsAndNotes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, adminToken := seedAdmin(t, srv)
	empID, empToken := registerEmployee(t, srv, "Jo", "jo@example.com")

	task := createTask(t, srv, adminToken, empID, nil)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/action-steps", map[string]any{
		"title": "Collect receipts",
	}, bearer(empToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create step %d: %s", res.StatusCode, string(data))
	}
	var stepEnv StepEnvelope
	if err := json.Unmarshal(data, &stepEnv); err != nil {
		t.Fatalf("unmarshal step: %v", err)
	}
	step := stepEnv.ActionStep
	if step.Completed {
		t.Fatal("new step already completed")
	}

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/tasks/"+task.ID+"/action-steps/"+step.ID, map[string]any{
		"completed": true,
	}, bearer(empToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("toggle step %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &stepEnv); err != nil {
		t.Fatalf("unmarshal step: %v", err)
	}
	if !stepEnv.ActionStep.Completed {
		t.Fatal("step not completed after toggle")
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/action-steps/"+step.ID+"/notes", map[string]any{
		"content": "Half the receipts are in",
	}, bearer(empToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("step note %d: %s", res.StatusCode, string(data))
	}
	var noteEnv StepNoteEnvelope
	if err := json.Unmarshal(data, &noteEnv); err != nil {
		t.Fatalf("unmarshal note: %v", err)
	}
	if noteEnv.Note.AuthorName != "Jo" {
		t.Fatalf("note author = %q", noteEnv.Note.AuthorName)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/notes", map[string]any{
		"content": "On track for Friday",
	}, bearer(empToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("progress note %d: %s", res.StatusCode, string(data))
	}

	// A step id from another task reads as missing.
	other := createTask(t, srv, adminToken, empID, map[string]any{"title": "Other"})
	res, _ = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/tasks/"+other.ID+"/action-steps/"+step.ID, map[string]any{
		"completed": false,
	}, bearer(empToken))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-task step toggle %d", res.StatusCode)
	}

	// Only admins delete steps.
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/tasks/"+task.ID+"/action-steps/"+step.ID, nil, bearer(empToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("employee step delete %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/tasks/"+task.ID+"/action-steps/"+step.ID, nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin step delete %d", res.StatusCode)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks/"+task.ID, nil, bearer(empToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get task %d", res.StatusCode)
	}
	var taskEnv TaskEnvelope
	if err := json.Unmarshal(data, &taskEnv); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if len(taskEnv.Task.ActionSteps) != 0 {
		t.Fatalf("steps after delete = %d", len(taskEnv.Task.ActionSteps))
	}
	if len(taskEnv.Task.ProgressNotes) != 1 {
		t.Fatalf("progress notes = %d", len(taskEnv.Task.ProgressNotes))
	}
}

func TestWeeklyReportSnapshot(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, adminToken := seedAdmin(t, srv)
	empID, empToken := registerEmployee(t, srv, "Jo", "jo@example.com")

	done := createTask(t, srv, adminToken, empID, map[string]any{"title": "Done"})
	doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/tasks/"+done.ID, map[string]any{"status": "completed"}, bearer(adminToken))
	active := createTask(t, srv, adminToken, empID, map[string]any{"title": "Active"})
	doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/tasks/"+active.ID, map[string]any{"status": "in-progress"}, bearer(adminToken))
	createTask(t, srv, adminToken, empID, map[string]any{
		"title":    "Late",
		"due_date": time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339),
	})

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reports", map[string]any{
		"summary": "A decent week",
	}, bearer(empToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("employee report create %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reports", map[string]any{
		"summary": "A decent week",
	}, bearer(adminToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("report create %d: %s", res.StatusCode, string(data))
	}
	var env ReportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	rep := env.Report
	if rep.CompletedCount != 1 || rep.InProgressCount != 1 || rep.TodoCount != 1 || rep.OverdueCount != 1 {
		t.Fatalf("counts = %d/%d/%d/%d", rep.CompletedCount, rep.InProgressCount, rep.TodoCount, rep.OverdueCount)
	}
	wantStart := time.Now().UTC().AddDate(0, 0, -7).Format("2006-01-02")
	if rep.WeekStart != wantStart {
		t.Fatalf("week_start = %q, want %q", rep.WeekStart, wantStart)
	}

	// The snapshot does not follow later task changes.
	doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/tasks/"+active.ID, map[string]any{"status": "completed"}, bearer(adminToken))
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/reports", nil, bearer(empToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("report list %d: %s", res.StatusCode, string(data))
	}
	var list ReportListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal reports: %v", err)
	}
	if len(list.Reports) != 1 || list.Reports[0].CompletedCount != 1 {
		t.Fatalf("frozen report = %+v", list.Reports)
	}
}

func TestActionSummary(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, adminToken := seedAdmin(t, srv)
	empID, empToken := registerEmployee(t, srv, "Jo", "jo@example.com")

	summary := func() domain.ActionSummary {
		res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me/action-summary", nil, bearer(empToken))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("summary %d: %s", res.StatusCode, string(data))
		}
		var body actionSummaryBody
		if err := json.Unmarshal(data, &body); err != nil {
			t.Fatalf("unmarshal summary: %v", err)
		}
		return body.Summary
	}

	s := summary()
	if s.CompletionPercentage != 0 || s.TotalStepsCompleted != 0 || len(s.TaskBreakdown) != 0 {
		t.Fatalf("empty summary = %+v", s)
	}

	task := createTask(t, srv, adminToken, empID, map[string]any{
		"action_steps": []string{"One", "Two", "Three"},
	})
	var taskEnv TaskEnvelope
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks/"+task.ID, nil, bearer(empToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get task %d", res.StatusCode)
	}
	if err := json.Unmarshal(data, &taskEnv); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	stepID := taskEnv.Task.ActionSteps[0].ID
	doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/tasks/"+task.ID+"/action-steps/"+stepID, map[string]any{
		"completed": true,
	}, bearer(empToken))

	s = summary()
	if s.TotalStepsCompleted != 1 || s.TotalStepsIncomplete != 2 {
		t.Fatalf("summary counts = %d done, %d open", s.TotalStepsCompleted, s.TotalStepsIncomplete)
	}
	// round(100 * 1/3) = 33
	if s.CompletionPercentage != 33 {
		t.Fatalf("percentage = %d, want 33", s.CompletionPercentage)
	}
	if len(s.TaskBreakdown) != 1 || s.TaskBreakdown[0].TotalSteps != 3 {
		t.Fatalf("breakdown = %+v", s.TaskBreakdown)
	}
}

func TestUsersAndProfiles(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, adminToken := seedAdmin(t, srv)
	empID, empToken := registerEmployee(t, srv, "Jo", "jo@example.com")
	otherID, otherToken := registerEmployee(t, srv, "Sam", "sam@example.com")

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/users", nil, bearer(empToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("employee user list %d", res.StatusCode)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/users", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin user list %d: %s", res.StatusCode, string(data))
	}
	var list UserListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal users: %v", err)
	}
	if len(list.Users) != 3 {
		t.Fatalf("users = %d, want 3", len(list.Users))
	}

	// Self-update is allowed; updating someone else is not.
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/users/"+empID, map[string]any{
		"phone": "555-0100",
	}, bearer(empToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("self update %d: %s", res.StatusCode, string(data))
	}
	var env UserEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	if env.User.Phone != "555-0100" {
		t.Fatalf("phone = %q", env.User.Phone)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/users/"+empID, map[string]any{
		"phone": "555-0199",
	}, bearer(otherToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign profile update %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/users/"+otherID, map[string]any{
		"location": "Lyon",
	}, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin profile update %d", res.StatusCode)
	}

	// /me reflects the stored profile.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, bearer(empToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me %d", res.StatusCode)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if env.User.ID != empID || env.User.Phone != "555-0100" {
		t.Fatalf("me = %+v", env.User)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, adminToken := seedAdmin(t, srv)
	empID, _ := registerEmployee(t, srv, "Jo", "jo@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/api-keys", map[string]any{
		"user_id": empID,
		"name":    "ci",
	}, bearer(adminToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("mint key %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatal("plaintext key missing from creation response")
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key auth %d: %s", res.StatusCode, string(data))
	}
	var env UserEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if env.User.ID != empID {
		t.Fatalf("key resolved to %q, want %q", env.User.ID, empID)
	}

	// The list never echoes plaintext.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/api-keys", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list keys %d", res.StatusCode)
	}
	var keys APIKeyListResponse
	if err := json.Unmarshal(data, &keys); err != nil {
		t.Fatalf("unmarshal keys: %v", err)
	}
	if len(keys.Keys) != 1 || keys.Keys[0].Key != "" {
		t.Fatalf("key list = %+v", keys.Keys)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/api-keys/"+key.ID, nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("revoke %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key auth %d", res.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, adminToken := seedAdmin(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous list %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil, bearer("garbage.token.here"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health %d", res.StatusCode)
	}

	// Events are admin-only and carry the audit trail.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events %d: %s", res.StatusCode, string(data))
	}
	var events EventListResponse
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events.Events) == 0 {
		t.Fatal("no audit events recorded")
	}
}
