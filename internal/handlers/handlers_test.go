package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/revaspay/storefront/internal/jobs"
	"github.com/revaspay/storefront/internal/middleware"
	"github.com/revaspay/storefront/internal/models"
	"github.com/revaspay/storefront/internal/queue"
	"github.com/revaspay/storefront/internal/services/rewards"
	"github.com/revaspay/storefront/internal/services/settings"
	"github.com/revaspay/storefront/internal/services/wallet"
	"github.com/revaspay/storefront/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockPreviewer struct {
	mock.Mock
}

func (m *mockPreviewer) Pending(ctx context.Context) (*rewards.Preview, error) {
	args := m.Called(ctx)
	preview, _ := args.Get(0).(*rewards.Preview)
	return preview, args.Error(1)
}

type mockRuns struct {
	mock.Mock
}

func (m *mockRuns) EnqueueFullRun(ctx context.Context, requestedBy string) (*queue.Job, error) {
	args := m.Called(ctx, requestedBy)
	job, _ := args.Get(0).(*queue.Job)
	return job, args.Error(1)
}

func (m *mockRuns) EnqueueSelectedRun(ctx context.Context, requestedBy string, candidates []rewards.PendingReward) (*queue.Job, error) {
	args := m.Called(ctx, requestedBy, candidates)
	job, _ := args.Get(0).(*queue.Job)
	return job, args.Error(1)
}

type jobTable map[uuid.UUID]*queue.Job

func (j jobTable) Get(ctx context.Context, id uuid.UUID) (*queue.Job, error) {
	if job, ok := j[id]; ok {
		return job, nil
	}
	return nil, queue.ErrJobNotFound
}

type memorySettings map[string]string

func (m memorySettings) Get(ctx context.Context, key, def string) (string, error) {
	if v, ok := m[key]; ok && v != "" {
		return v, nil
	}
	return def, nil
}

func (m memorySettings) Set(ctx context.Context, key, value string) error {
	m[key] = value
	return nil
}

type fakeRefresher struct {
	settings  memorySettings
	refreshed int
	expr, tz  string
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.refreshed++
	f.expr, _ = f.settings.Get(ctx, settings.KeyRewardSchedule, settings.DefaultRewardSchedule)
	f.tz, _ = f.settings.Get(ctx, settings.KeyRewardTimezone, settings.DefaultRewardTimezone)
	return nil
}

func (f *fakeRefresher) Schedule() (string, string) { return f.expr, f.tz }

func (f *fakeRefresher) NextRun() (time.Time, bool) { return time.Time{}, false }

type rewardFixture struct {
	router    *gin.Engine
	previewer *mockPreviewer
	runs      *mockRuns
	jobs      jobTable
	settings  memorySettings
	refresher *fakeRefresher
}

func newRewardFixture() *rewardFixture {
	f := &rewardFixture{
		previewer: &mockPreviewer{},
		runs:      &mockRuns{},
		jobs:      jobTable{},
		settings:  memorySettings{},
	}
	f.refresher = &fakeRefresher{settings: f.settings, expr: settings.DefaultRewardSchedule, tz: settings.DefaultRewardTimezone}
	h := NewAdminRewardHandler(f.previewer, f.runs, f.jobs, f.settings, f.refresher, zap.NewNop())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextEmail, "ops@example.com")
		c.Next()
	})
	r.GET("/pending", h.GetPending)
	r.POST("/run", h.TriggerRun)
	r.POST("/run/selected", h.TriggerSelectedRun)
	r.GET("/runs/:id", h.GetRun)
	r.GET("/schedule", h.GetSchedule)
	r.PUT("/schedule", h.UpdateSchedule)
	f.router = r
	return f
}

func (f *rewardFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestGetPending(t *testing.T) {
	f := newRewardFixture()
	preview := &rewards.Preview{
		Period: "2026-10-14",
		Candidates: []rewards.PendingReward{
			{UserID: uuid.New(), Amount: decimal.NewFromInt(10), SourceType: rewards.SourceInvestment, SourceRef: "inv"},
		},
	}
	f.previewer.On("Pending", mock.Anything).Return(preview, nil)

	w := f.do(http.MethodGet, "/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "2026-10-14", body["period"])
	assert.Len(t, body["candidates"], 1)
}

func TestTriggerRun(t *testing.T) {
	f := newRewardFixture()
	jobID := uuid.New()
	f.runs.On("EnqueueFullRun", mock.Anything, "ops@example.com").Return(&queue.Job{ID: jobID}, nil)

	w := f.do(http.MethodPost, "/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, jobID.String(), body["job_id"])
	f.runs.AssertExpectations(t)
}

func TestTriggerSelectedRun(t *testing.T) {
	f := newRewardFixture()
	jobID := uuid.New()
	f.runs.On("EnqueueSelectedRun", mock.Anything, "ops@example.com", mock.MatchedBy(func(c []rewards.PendingReward) bool {
		return len(c) == 1 && c[0].Amount.Equal(decimal.NewFromInt(5))
	})).Return(&queue.Job{ID: jobID}, nil)

	w := f.do(http.MethodPost, "/run/selected", gin.H{
		"candidates": []gin.H{{
			"user_id":     uuid.New(),
			"amount":      "5",
			"source_type": "rank_daily",
			"source_ref":  "ref",
		}},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, jobID.String(), decode(t, w)["job_id"])
}

func TestTriggerSelectedRunRejectsInvalidCandidates(t *testing.T) {
	f := newRewardFixture()
	f.runs.On("EnqueueSelectedRun", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, rewards.ErrInvalidAmount)

	w := f.do(http.MethodPost, "/run/selected", gin.H{
		"candidates": []gin.H{{"user_id": uuid.New(), "amount": "0", "source_type": "rank_daily", "source_ref": "ref"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/run/selected", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTriggerSelectedRunRejectsEmptyList(t *testing.T) {
	f := newRewardFixture()
	f.runs.On("EnqueueSelectedRun", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, jobs.ErrNoCandidates)

	w := f.do(http.MethodPost, "/run/selected", gin.H{"candidates": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRun(t *testing.T) {
	f := newRewardFixture()
	id := uuid.New()
	f.jobs[id] = &queue.Job{
		ID:     id,
		Type:   queue.JobTypeRewardFullRun,
		Status: queue.JobStatusCompleted,
		Result: `{"applied":3,"period":"2026-10-14"}`,
	}

	w := f.do(http.MethodGet, "/runs/"+id.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "completed", body["status"])
	report := body["report"].(map[string]interface{})
	assert.Equal(t, float64(3), report["applied"])

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/runs/"+uuid.New().String(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/runs/not-a-uuid", nil).Code)
}

func TestUpdateScheduleStoresAndRefreshes(t *testing.T) {
	f := newRewardFixture()

	w := f.do(http.MethodPut, "/schedule", gin.H{
		"schedule":    "30 2 * * *",
		"timezone":    "Africa/Accra",
		"payout_mode": "ONCHAIN",
	})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "30 2 * * *", f.settings[settings.KeyRewardSchedule])
	assert.Equal(t, "Africa/Accra", f.settings[settings.KeyRewardTimezone])
	assert.Equal(t, "onchain", f.settings[settings.KeyRewardPayoutMode])
	assert.Equal(t, 1, f.refresher.refreshed)

	body := decode(t, w)
	active := body["active"].(map[string]interface{})
	assert.Equal(t, "30 2 * * *", active["schedule"])
	assert.Equal(t, "Africa/Accra", active["timezone"])
}

func TestUpdateScheduleValidates(t *testing.T) {
	f := newRewardFixture()

	cases := []gin.H{
		{"schedule": "whenever"},
		{"timezone": "Mars/Olympus"},
		{"payout_mode": "paper"},
		{},
	}
	for _, body := range cases {
		w := f.do(http.MethodPut, "/schedule", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %v", body)
	}
	assert.Empty(t, f.settings)
	assert.Zero(t, f.refresher.refreshed)
}

func TestGetScheduleDefaults(t *testing.T) {
	f := newRewardFixture()

	w := f.do(http.MethodGet, "/schedule", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, settings.DefaultRewardSchedule, body["schedule"])
	assert.Equal(t, settings.DefaultRewardTimezone, body["timezone"])
	assert.Equal(t, settings.DefaultRewardPayoutMode, body["payout_mode"])
}

func TestAdminWalletEndpoints(t *testing.T) {
	db := testutil.NewTestDB(t, &models.User{}, &models.Wallet{}, &models.PayoutLedgerEntry{})
	walletService := wallet.NewWalletService(db)
	h := NewAdminWalletHandler(db, walletService, zap.NewNop())

	user := models.User{Email: "alice@example.com", Username: "alice"}
	require.NoError(t, db.Create(&user).Error)
	for i := 0; i < 3; i++ {
		_, err := walletService.Credit(context.Background(), wallet.Credit{
			UserID:     user.ID,
			Amount:     decimal.NewFromInt(2),
			SourceType: string(rewards.SourceInvestment),
			SourceRef:  "inv",
			Period:     "2026-10-14",
		})
		require.NoError(t, err)
	}

	r := gin.New()
	r.GET("/users/:user_id/wallet", h.GetUserWallet)
	r.GET("/users/:user_id/ledger", h.GetUserLedger)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/users/" + user.ID.String() + "/wallet")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "6", decode(t, w)["balance"])

	w = get("/users/" + user.ID.String() + "/ledger?page=1&page_size=2")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["entries"], 2)
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(3), pagination["total"])

	assert.Equal(t, http.StatusNotFound, get("/users/"+uuid.New().String()+"/wallet").Code)
	assert.Equal(t, http.StatusBadRequest, get("/users/nope/ledger").Code)
}
