package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/interfaces"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/flags"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/testutil"
	"github.com/customeros/mailsync/services/search"
)

type mockManager struct {
	mock.Mock
}

func (m *mockManager) Start(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockManager) Stop()                           { m.Called() }
func (m *mockManager) IsRunning() bool                 { return m.Called().Bool(0) }
func (m *mockManager) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *mockManager) StartAccount(ctx context.Context, accountID string) error {
	return m.Called(ctx, accountID).Error(0)
}
func (m *mockManager) StopAccount(accountID string) error { return m.Called(accountID).Error(0) }
func (m *mockManager) QueueFlagUpdate(ctx context.Context, accountID string, update flags.Update) error {
	return m.Called(ctx, accountID, update).Error(0)
}
func (m *mockManager) Status() map[string]interfaces.AccountStatus {
	return m.Called().Get(0).(map[string]interfaces.AccountStatus)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, manager *mockManager) (*gin.Engine, *repository.Repositories, *search.Index) {
	t.Helper()
	session := testutil.NewSession(t)
	repos := repository.InitRepositories(session)
	index := search.NewIndex(session, nil, logger.NewNopLogger())

	h := NewAccountsHandler(repos.AccountRepository, manager)
	r := gin.New()
	r.GET("/status", Status(manager))
	r.GET("/accounts", h.List())
	r.POST("/accounts", h.Create())
	r.POST("/accounts/:id/start", h.Start())
	r.POST("/accounts/:id/stop", h.Stop())
	r.POST("/accounts/:id/flags", h.QueueFlags())
	r.POST("/sync/start", StartSync(manager))
	r.POST("/sync/stop", StopSync(manager))
	r.GET("/search", Search(index))
	return r, repos, index
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAccount_StartsAutomaticSync(t *testing.T) {
	manager := &mockManager{}
	manager.On("Refresh", mock.Anything).Return(nil)
	manager.On("IsRunning").Return(true)
	manager.On("StartAccount", mock.Anything, mock.AnythingOfType("string")).Return(nil)
	r, repos, _ := newRouter(t, manager)

	w := do(r, http.MethodPost, "/accounts", map[string]any{
		"emailAddress":  "jane@example.com",
		"host":          "imap.example.com",
		"port":          993,
		"username":      "jane",
		"password":      "secret",
		"automaticSync": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "secret")

	var created models.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	stored, err := repos.AccountRepository.GetAccount(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", stored.Password)
	manager.AssertCalled(t, "StartAccount", mock.Anything, created.ID)
}

func TestCreateAccount_ManualAccountIsNotStarted(t *testing.T) {
	manager := &mockManager{}
	manager.On("Refresh", mock.Anything).Return(nil)
	r, _, _ := newRouter(t, manager)

	w := do(r, http.MethodPost, "/accounts", map[string]any{
		"emailAddress": "bob@example.com",
		"host":         "imap.example.com",
		"port":         143,
		"username":     "bob",
		"password":     "secret",
		"socketType":   "starttls",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	manager.AssertNotCalled(t, "StartAccount", mock.Anything, mock.Anything)
}

func TestCreateAccount_Validation(t *testing.T) {
	manager := &mockManager{}
	r, _, _ := newRouter(t, manager)

	w := do(r, http.MethodPost, "/accounts", map[string]any{"emailAddress": "jane@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/accounts", map[string]any{
		"emailAddress": "jane@example.com",
		"host":         "imap.example.com",
		"port":         993,
		"username":     "jane",
		"password":     "secret",
		"socketType":   "tls1.0",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartAccount_ErrorMapping(t *testing.T) {
	manager := &mockManager{}
	manager.On("StartAccount", mock.Anything, "acc_missing").Return(errors.Wrap(mserrors.ErrUnknownAccount, "acc_missing"))
	manager.On("StartAccount", mock.Anything, "acc_1").Return(mserrors.ErrManagerNotRunning)
	manager.On("StopAccount", "acc_1").Return(nil)
	r, _, _ := newRouter(t, manager)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/accounts/acc_missing/start", nil).Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/accounts/acc_1/start", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/accounts/acc_1/stop", nil).Code)
}

func TestQueueFlags(t *testing.T) {
	manager := &mockManager{}
	manager.On("QueueFlagUpdate", mock.Anything, "acc_1", mock.MatchedBy(func(u flags.Update) bool {
		return u.Folder == "INBOX" && u.UID == 4 && u.Add == flags.Seen|flags.Flagged && u.Remove == flags.Draft
	})).Return(nil)
	r, _, _ := newRouter(t, manager)

	w := do(r, http.MethodPost, "/accounts/acc_1/flags", map[string]any{
		"folder": "INBOX",
		"uid":    4,
		"add":    []string{"seen", "\\Flagged"},
		"remove": []string{"draft"},
	})
	assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	manager.AssertExpectations(t)
}

func TestQueueFlags_UnknownFlag(t *testing.T) {
	manager := &mockManager{}
	r, _, _ := newRouter(t, manager)

	w := do(r, http.MethodPost, "/accounts/acc_1/flags", map[string]any{
		"folder": "INBOX",
		"uid":    4,
		"add":    []string{"$Important"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	manager.AssertNotCalled(t, "QueueFlagUpdate", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncStartStopAndStatus(t *testing.T) {
	manager := &mockManager{}
	manager.On("Start", mock.Anything).Return(nil)
	manager.On("Stop").Return()
	manager.On("IsRunning").Return(true)
	manager.On("Status").Return(map[string]interfaces.AccountStatus{
		"acc_1": {AccountID: "acc_1", State: "waiting"},
	})
	r, _, _ := newRouter(t, manager)

	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/sync/start", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/sync/stop", nil).Code)

	w := do(r, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Running  bool                                `json:"running"`
		Accounts map[string]interfaces.AccountStatus `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Running)
	assert.Equal(t, "waiting", body.Accounts["acc_1"].State)
	manager.AssertExpectations(t)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	r, _, index := newRouter(t, &mockManager{})

	require.NoError(t, index.AddMessage(ctx, &models.Message{
		AccountID: "acc_1", Folder: "INBOX", UID: 1, Subject: "Quarterly report", FromAddress: "jane@example.com",
	}))
	require.NoError(t, index.Commit(ctx))

	w := do(r, http.MethodGet, "/search?accountId=acc_1&q=quarterly&field=subject", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var docs []models.SearchDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, uint32(1), docs[0].UID)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/search", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/search?q=x&field=cc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/search?q=x&limit=0", nil).Code)
}
