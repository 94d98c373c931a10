package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"civicportal/controllers"
	"civicportal/middlewares"
	"civicportal/repository"
	"civicportal/services"
	"civicportal/storage"
	authUtils "civicportal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const adminEmail = "admin@city.gov"

type testServer struct {
	t         *testing.T
	handler   http.Handler
	engine    *gin.Engine
	uploadDir string
}

func newTestServer(t *testing.T, issueLimit int) *testServer {
	t.Helper()
	return newTestServerWithLog(t, issueLimit, io.Discard)
}

func newTestServerWithLog(t *testing.T, issueLimit int, logOut io.Writer) *testServer {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(logOut, nil))
	dir := t.TempDir()

	tokens := authUtils.NewTokenManager("test-secret", "civicportal", time.Hour)
	users := repository.NewMemoryUserRepository()
	issues := repository.NewMemoryIssueRepository()
	uploader := storage.NewImageUploader(storage.NewLocalFileStore(dir, "/uploads"), storage.DefaultMaxImageBytes)

	userSvc := services.NewUserService(users, tokens, func(email string) bool { return email == adminEmail }, logger)
	issueSvc := services.NewIssueService(issues, uploader, logger)

	var limiter middlewares.Limiter
	if issueLimit > 0 {
		limiter = middlewares.NewLocalLimiter(issueLimit, 24*time.Hour)
	}

	r := NewRouter(Deps{
		Logger:         logger,
		Tokens:         tokens,
		Users:          users,
		IssueLimiter:   limiter,
		Auth:           controllers.NewAuthController(userSvc),
		Issues:         controllers.NewIssueController(issueSvc, uploader.MaxBytes()),
		Accounts:       controllers.NewUserController(userSvc),
		AllowedOrigins: []string{"http://localhost:3000"},
		UploadDir:      dir,
		UploadURL:      "/uploads",
	})
	return &testServer{t: t, handler: r, engine: r, uploadDir: dir}
}

func (s *testServer) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) json(method, path, token string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, token)
}

type filePart struct {
	name        string
	contentType string
	data        []byte
}

func (s *testServer) createIssue(token string, fields map[string]string, file *filePart) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(s.t, mw.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, file.name))
		h.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(s.t, err)
		_, err = part.Write(file.data)
		require.NoError(s.t, err)
	}
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/issues", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req, token)
}

// signup registers and logs in, returning the token and user id.
func (s *testServer) signup(name, email string) (string, string) {
	w := s.json(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "secret123",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	w = s.json(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "secret123",
	})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Token, body.User.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type issueJSON struct {
	ID       string `json:"_id"`
	Title    string `json:"title"`
	Image    string `json:"image"`
	Status   string `json:"status"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type issueEnvelope struct {
	Message string    `json:"message"`
	Issue   issueJSON `json:"issue"`
}

type errorJSON struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func issueFields(title string) map[string]string {
	return map[string]string{
		"title":       title,
		"description": "Deep pothole near the bus stop",
		"category":    "Roads",
		"location":    "Main St & 3rd Ave",
	}
}

func pngBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	return data
}

func jpegBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, "\xff\xd8\xff\xe0\x00\x10JFIF\x00")
	return data
}

func uploadedFiles(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestPing(t *testing.T) {
	s := newTestServer(t, 0)
	w := s.json(http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, 0)

	w := s.json(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ada", "email": "Ada@Example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), "secret123")

	w = s.json(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ada again", "email": "ada@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "User with this email already exists", decode[errorJSON](t, w).Message)

	w = s.json(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "nope"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	verr := decode[errorJSON](t, w)
	assert.Equal(t, "validation_error", verr.Error)
	assert.NotEmpty(t, verr.Errors)

	w = s.json(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", decode[errorJSON](t, w).Message)

	token, id := s.signup("Grace", "grace@example.com")
	w = s.json(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[struct {
		User struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
	}](t, w)
	assert.Equal(t, id, me.User.ID)
	assert.Equal(t, "user", me.User.Role)

	w = s.json(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateIssue_IgnoresClientStatus(t *testing.T) {
	s := newTestServer(t, 0)
	token, userID := s.signup("Ada", "ada@example.com")

	fields := issueFields("Pothole")
	fields["status"] = "resolved"
	w := s.createIssue(token, fields, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode[issueEnvelope](t, w)
	assert.Equal(t, "Issue reported successfully", body.Message)
	assert.Equal(t, "open", body.Issue.Status)
	assert.Equal(t, userID, body.Issue.UserID)
	assert.Equal(t, "Ada", body.Issue.UserName)
	assert.Empty(t, body.Issue.Image)
	assert.NotEmpty(t, body.Issue.ID)
}

func TestCreateIssue_Validation(t *testing.T) {
	s := newTestServer(t, 0)
	token, _ := s.signup("Ada", "ada@example.com")

	fields := issueFields("")
	delete(fields, "location")
	w := s.createIssue(token, fields, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	verr := decode[errorJSON](t, w)
	assert.Equal(t, "validation_error", verr.Error)
	var names []string
	for _, fe := range verr.Errors {
		names = append(names, fe.Field)
	}
	assert.ElementsMatch(t, []string{"title", "location"}, names)

	w = s.json(http.MethodGet, "/api/issues", token, nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestCreateIssue_Unauthenticated(t *testing.T) {
	s := newTestServer(t, 0)
	w := s.createIssue("", issueFields("Pothole"), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateIssue_Images(t *testing.T) {
	s := newTestServer(t, 0)
	token, _ := s.signup("Ada", "ada@example.com")

	t.Run("executable rejected", func(t *testing.T) {
		w := s.createIssue(token, issueFields("Exe"), &filePart{
			name: "shell.exe", contentType: "application/x-msdownload", data: []byte("MZ\x90\x00"),
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_file_type", decode[errorJSON](t, w).Error)
		assert.Empty(t, uploadedFiles(t, s.uploadDir))
	})

	t.Run("six megabytes rejected", func(t *testing.T) {
		w := s.createIssue(token, issueFields("Huge"), &filePart{
			name: "huge.png", contentType: "image/png", data: pngBytes(6 * 1024 * 1024),
		})
		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "file_too_large", decode[errorJSON](t, w).Error)
		assert.Empty(t, uploadedFiles(t, s.uploadDir))
	})

	t.Run("six million bytes rejected", func(t *testing.T) {
		w := s.createIssue(token, issueFields("Just over"), &filePart{
			name: "photo.png", contentType: "image/png", data: pngBytes(6000000),
		})
		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "file_too_large", decode[errorJSON](t, w).Error)
		assert.Empty(t, uploadedFiles(t, s.uploadDir))
	})

	t.Run("exactly at the limit accepted", func(t *testing.T) {
		w := s.createIssue(token, issueFields("At limit"), &filePart{
			name: "limit.png", contentType: "image/png", data: pngBytes(5000000),
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		issue := decode[issueEnvelope](t, w).Issue
		w = s.json(http.MethodDelete, "/api/issues/"+issue.ID, token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, uploadedFiles(t, s.uploadDir))
	})

	t.Run("hundred thousand bytes accepted", func(t *testing.T) {
		w := s.createIssue(token, issueFields("Snapshot"), &filePart{
			name: "photo.png", contentType: "image/png", data: pngBytes(100000),
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		issue := decode[issueEnvelope](t, w).Issue
		assert.True(t, strings.HasPrefix(issue.Image, "/uploads/"), issue.Image)
		assert.True(t, strings.HasSuffix(issue.Image, ".png"))

		w = s.json(http.MethodDelete, "/api/issues/"+issue.ID, token, nil)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("jpeg accepted", func(t *testing.T) {
		w := s.createIssue(token, issueFields("Snapshot"), &filePart{
			name: "snap.jpg", contentType: "image/jpeg", data: jpegBytes(100000),
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		issue := decode[issueEnvelope](t, w).Issue
		assert.True(t, strings.HasSuffix(issue.Image, ".jpg"))

		w = s.json(http.MethodDelete, "/api/issues/"+issue.ID, token, nil)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("small png stored and served", func(t *testing.T) {
		w := s.createIssue(token, issueFields("Photo"), &filePart{
			name: "photo.png", contentType: "image/png", data: pngBytes(100 * 1024),
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		issue := decode[issueEnvelope](t, w).Issue
		require.True(t, strings.HasPrefix(issue.Image, "/uploads/"), issue.Image)
		assert.True(t, strings.HasSuffix(issue.Image, ".png"))
		assert.Len(t, uploadedFiles(t, s.uploadDir), 1)

		w = s.do(httptest.NewRequest(http.MethodGet, issue.Image, nil), "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 100*1024, w.Body.Len())
	})
}

func TestListIssues(t *testing.T) {
	s := newTestServer(t, 0)
	adminToken, _ := s.signup("Admin", adminEmail)
	adaToken, _ := s.signup("Ada", "ada@example.com")
	bobToken, _ := s.signup("Bob", "bob@example.com")

	var ids []string
	for i, token := range []string{adaToken, bobToken, adaToken} {
		w := s.createIssue(token, issueFields(fmt.Sprintf("Issue %d", i)), nil)
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decode[issueEnvelope](t, w).Issue.ID)
	}

	w := s.json(http.MethodPatch, "/api/issues/"+ids[1]+"/status", adminToken, map[string]string{"status": "resolved"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.json(http.MethodGet, "/api/issues", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[[]issueJSON](t, w)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].ID, all[1].ID, all[2].ID})

	w = s.json(http.MethodGet, "/api/issues?status=resolved", bobToken, nil)
	resolved := decode[[]issueJSON](t, w)
	require.Len(t, resolved, 1)
	assert.Equal(t, ids[1], resolved[0].ID)

	w = s.json(http.MethodGet, "/api/issues?status=all", bobToken, nil)
	assert.Len(t, decode[[]issueJSON](t, w), 3)

	w = s.json(http.MethodGet, "/api/issues/my-issues", adaToken, nil)
	mine := decode[[]issueJSON](t, w)
	require.Len(t, mine, 2)
	assert.Equal(t, ids[2], mine[0].ID)
	assert.Equal(t, ids[0], mine[1].ID)

	w = s.json(http.MethodGet, "/api/issues/my-issues", adminToken, nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.json(http.MethodGet, "/api/issues/"+ids[0], bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Issue 0", decode[issueJSON](t, w).Title)
}

func TestUpdateIssueStatus(t *testing.T) {
	s := newTestServer(t, 0)
	adminToken, _ := s.signup("Admin", adminEmail)
	adaToken, _ := s.signup("Ada", "ada@example.com")

	w := s.createIssue(adaToken, issueFields("Pothole"), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[issueEnvelope](t, w).Issue.ID
	path := "/api/issues/" + id + "/status"

	w = s.json(http.MethodPatch, path, adaToken, map[string]string{"status": "resolved"})
	require.Equal(t, http.StatusForbidden, w.Code)
	w = s.json(http.MethodGet, "/api/issues/"+id, adaToken, nil)
	assert.Equal(t, "open", decode[issueJSON](t, w).Status)

	w = s.json(http.MethodPatch, path, adminToken, map[string]string{"status": "In Progress"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[issueEnvelope](t, w)
	assert.Equal(t, "Issue status updated", body.Message)
	assert.Equal(t, "in progress", body.Issue.Status)

	w = s.json(http.MethodPatch, path, adminToken, map[string]string{"status": "open"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.json(http.MethodPatch, path, adminToken, map[string]string{"status": "archived"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.json(http.MethodPatch, path, adminToken, map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	for _, missing := range []string{"000000000000000000000000", "not-an-id"} {
		w = s.json(http.MethodPatch, "/api/issues/"+missing+"/status", adminToken, map[string]string{"status": "closed"})
		require.Equal(t, http.StatusNotFound, w.Code, missing)
		assert.Equal(t, "Issue not found", decode[errorJSON](t, w).Message)
	}
}

func TestDeleteIssue(t *testing.T) {
	s := newTestServer(t, 0)
	adminToken, _ := s.signup("Admin", adminEmail)
	adaToken, _ := s.signup("Ada", "ada@example.com")
	bobToken, _ := s.signup("Bob", "bob@example.com")

	w := s.createIssue(adaToken, issueFields("With photo"), &filePart{
		name: "photo.png", contentType: "image/png", data: pngBytes(1024),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	first := decode[issueEnvelope](t, w).Issue.ID

	w = s.createIssue(adaToken, issueFields("Second"), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	second := decode[issueEnvelope](t, w).Issue.ID

	w = s.json(http.MethodDelete, "/api/issues/"+first, bobToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Not authorized to delete this issue", decode[errorJSON](t, w).Message)

	w = s.json(http.MethodDelete, "/api/issues/"+first, adaToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Issue deleted successfully"}`, w.Body.String())
	assert.Empty(t, uploadedFiles(t, s.uploadDir))

	w = s.json(http.MethodDelete, "/api/issues/"+first, adaToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = s.json(http.MethodDelete, "/api/issues/"+second, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.json(http.MethodGet, "/api/issues", adaToken, nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestIssueSubmissionLimit(t *testing.T) {
	s := newTestServer(t, 2)
	adaToken, _ := s.signup("Ada", "ada@example.com")
	bobToken, _ := s.signup("Bob", "bob@example.com")

	// rejected submissions do not use up the quota
	require.Equal(t, http.StatusBadRequest, s.createIssue(adaToken, issueFields(""), nil).Code)
	w := s.createIssue(adaToken, issueFields("Exe"), &filePart{
		name: "shell.exe", contentType: "application/x-msdownload", data: []byte("MZ\x90\x00"),
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, s.createIssue(adaToken, issueFields("ok"), nil).Code)
	}
	w = s.createIssue(adaToken, issueFields("one too many"), nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusCreated, s.createIssue(bobToken, issueFields("ok"), nil).Code)
}

func TestUserAdministration(t *testing.T) {
	s := newTestServer(t, 0)
	adminToken, adminID := s.signup("Admin", adminEmail)
	adaToken, adaID := s.signup("Ada", "ada@example.com")

	w := s.json(http.MethodGet, "/api/users", adaToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = s.json(http.MethodGet, "/api/users", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 2)
	assert.NotContains(t, w.Body.String(), "password")

	w = s.json(http.MethodPatch, "/api/users/"+adminID+"/role", adminToken, map[string]string{"role": "user"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.json(http.MethodPatch, "/api/users/"+adaID+"/role", adminToken, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User role updated", decode[errorJSON](t, w).Message)

	// promotion applies to the existing token
	w = s.json(http.MethodGet, "/api/users", adaToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCategories(t *testing.T) {
	s := newTestServer(t, 0)
	w := s.json(http.MethodGet, "/api/categories", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[[]string](t, w), "Roads")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodOptions, "/api/issues", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization")
	w := s.do(req, "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPanicIsLoggedAndAnsweredWithJSON(t *testing.T) {
	var logs bytes.Buffer
	s := newTestServerWithLog(t, 0, &logs)
	s.engine.GET("/explode", func(c *gin.Context) {
		panic("boom")
	})

	w := s.json(http.MethodGet, "/explode", "", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"Server error","error":"internal_error"}`, w.Body.String())
	requestID := w.Header().Get(middlewares.RequestIDHeader)
	require.NotEmpty(t, requestID)

	var access map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		if entry["msg"] == "request" {
			access = entry
		}
	}
	require.NotNil(t, access, "access line written")
	assert.Equal(t, "ERROR", access["level"])
	assert.Equal(t, float64(http.StatusInternalServerError), access["status"])
	assert.Equal(t, requestID, access["request_id"])
	assert.Contains(t, access["error"], "panic: boom")
}
