package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"

	"modbot/internal/logging"
	"modbot/internal/metrics"
	"modbot/internal/modal"
	"modbot/internal/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Running(ctx context.Context) ([]Execution, error) {
	args := m.Called(ctx)
	execs, _ := args.Get(0).([]Execution)
	return execs, args.Error(1)
}

func (m *mockEngine) Instance(ctx context.Context, workflowID, runID string) (modal.WorkflowInstance, error) {
	args := m.Called(ctx, workflowID, runID)
	inst, _ := args.Get(0).(modal.WorkflowInstance)
	return inst, args.Error(1)
}

func (m *mockEngine) Audit(ctx context.Context, workflowID, runID string) ([]modal.AuditEvent, error) {
	args := m.Called(ctx, workflowID, runID)
	events, _ := args.Get(0).([]modal.AuditEvent)
	return events, args.Error(1)
}

func (m *mockEngine) Signal(ctx context.Context, workflowID, runID string, ev modal.PromptEvent) error {
	return m.Called(ctx, workflowID, runID, ev).Error(0)
}

type fixture struct {
	engine *mockEngine
	store  *store.MemoryStore
	logs   *logging.Observed
	srv    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{engine: &mockEngine{}, store: store.NewMemoryStore(), logs: logging.NewObserved()}
	s := NewServer(f.engine, f.store, metrics.New(nil), f.logs.Logger)
	s.now = func() time.Time { return testNow }
	f.srv = httptest.NewServer(s.Routes())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func instance() modal.WorkflowInstance {
	return modal.WorkflowInstance{
		WorkflowID: "ban-1001",
		Kind:       modal.WorkflowBan,
		Initiator:  modal.Actor{ID: "1001", Tag: "mod"},
		ChannelID:  "dm-1001",
		Steps:      map[string]string{"reason": "spam"},
		Status:     modal.StatusActive,
		State:      modal.StateAwaitingConfirmation,
		DeadlineAt: testNow.Add(time.Minute),
	}
}

func TestInstanceAndAudit(t *testing.T) {
	f := newFixture(t)
	f.engine.On("Instance", mock.Anything, "ban-1001", "run-1").Return(instance(), nil)
	f.engine.On("Audit", mock.Anything, "ban-1001", "").Return([]modal.AuditEvent{{At: testNow, Kind: "STARTED", Message: "workflow started"}}, nil)

	var inst modal.WorkflowInstance
	assert.Equal(t, http.StatusOK, f.get(t, "/workflows/ban-1001/instance?runId=run-1", &inst))
	assert.Equal(t, modal.StateAwaitingConfirmation, inst.State)
	assert.Equal(t, "spam", inst.Steps["reason"])

	var events []modal.AuditEvent
	assert.Equal(t, http.StatusOK, f.get(t, "/workflows/ban-1001/audit", &events))
	require.Len(t, events, 1)
	assert.Equal(t, "STARTED", events[0].Kind)
	f.engine.AssertExpectations(t)
}

func TestInstanceNotFound(t *testing.T) {
	f := newFixture(t)
	f.engine.On("Instance", mock.Anything, "ban-9", "").Return(nil, serviceerror.NewNotFound("workflow not found"))

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, f.get(t, "/workflows/ban-9/instance", &body))
	assert.Equal(t, "not found", body["error"])
}

func TestRunningFailureIsLoggedNotLeaked(t *testing.T) {
	f := newFixture(t)
	f.engine.On("Running", mock.Anything).Return(nil, errors.New("visibility store unavailable"))

	var body map[string]string
	assert.Equal(t, http.StatusInternalServerError, f.get(t, "/workflows/", &body))
	assert.Equal(t, "internal error", body["error"])
	require.Equal(t, 1, f.logs.FilterMessage("request failed").Len())
}

func TestInjectEvent(t *testing.T) {
	f := newFixture(t)
	want := modal.PromptEvent{
		Kind:       modal.EventChoice,
		AuthorID:   "1001",
		ChannelID:  "dm-1001",
		Option:     "confirm",
		ReceivedAt: testNow,
	}
	f.engine.On("Signal", mock.Anything, "commission-1001", "", want).Return(nil)

	body := `{"kind":"choice","authorId":"1001","channelId":"dm-1001","option":"confirm"}`
	resp, err := http.Post(f.srv.URL+"/workflows/commission-1001/events", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	f.engine.AssertExpectations(t)
}

func TestInjectEventValidation(t *testing.T) {
	f := newFixture(t)
	for name, body := range map[string]string{
		"malformed":        `{`,
		"missing author":   `{"kind":"message","content":"hi"}`,
		"unknown kind":     `{"kind":"reaction","authorId":"1001"}`,
		"choice no option": `{"kind":"choice","authorId":"1001"}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(f.srv.URL+"/workflows/ban-1001/events", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	f.engine.AssertNotCalled(t, "Signal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func seed(t *testing.T, s *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	for i, rec := range []modal.ActionRecord{
		{ActionID: "a0000001", Kind: modal.KindWarn, SubjectID: "2002", ModeratorID: "1001", Reason: "spam", CreatedAt: testNow.Add(-72 * time.Hour)},
		{ActionID: "a0000002", Kind: modal.KindBan, SubjectID: "2002", ModeratorID: "1001", Reason: "raid", DurationSpec: modal.StringPtr("7d"), CreatedAt: testNow.Add(-2 * time.Hour)},
		{ActionID: "a0000003", Kind: modal.KindKick, SubjectID: "3003", ModeratorID: "1002", Reason: "alt", CreatedAt: testNow.Add(-time.Hour)},
	} {
		require.NoError(t, s.AppendAction(ctx, rec, nil), i)
	}
}

func TestActions(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store)

	var recs []modal.ActionRecord
	assert.Equal(t, http.StatusOK, f.get(t, "/actions?subject=2002", &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "a0000001", recs[0].ActionID)

	since := url.QueryEscape(testNow.Add(-24 * time.Hour).Format(time.RFC3339))
	assert.Equal(t, http.StatusOK, f.get(t, "/actions?since="+since, &recs))
	assert.Len(t, recs, 2)

	assert.Equal(t, http.StatusOK, f.get(t, "/actions?subject=nobody", &recs))
	assert.Empty(t, recs)
	assert.NotNil(t, recs)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/actions?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/actions?since=yesterday", nil))
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store)

	var resp statsResponse
	assert.Equal(t, http.StatusOK, f.get(t, "/stats?range=day", &resp))
	assert.Equal(t, 2, resp.Stats.Total)
	require.NotNil(t, resp.AveragePerDay)
	assert.InDelta(t, 2.0, *resp.AveragePerDay, 1e-9)
	require.NotEmpty(t, resp.Stats.TopModerators)

	assert.Equal(t, http.StatusOK, f.get(t, "/stats", &resp))
	assert.Equal(t, "all", resp.Window.Name)
	assert.Equal(t, 3, resp.Stats.Total)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/stats?range=year", nil))
}

func TestCommission(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateCommission(context.Background(), modal.Commission{
		CommissionID:  "c-1",
		ClientID:      "2002",
		ClientName:    "Alice",
		CreatorID:     "1001",
		Details:       "logo",
		Price:         "25",
		PaymentMethod: modal.PaymentPayPal,
		Status:        modal.CommissionPending,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}))

	var c modal.Commission
	assert.Equal(t, http.StatusOK, f.get(t, "/commissions/c-1", &c))
	assert.Equal(t, "Alice", c.ClientName)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/commissions/missing", nil))
}

func TestMetricsAndHealth(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.get(t, "/healthz", nil))

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUI(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store)
	f.engine.On("Running", mock.Anything).Return([]Execution{
		{WorkflowID: "ban-1001", RunID: "run-1"},
		{WorkflowID: "temp-action-expiry", RunID: "run-2"},
	}, nil)
	f.engine.On("Instance", mock.Anything, "ban-1001", "run-1").Return(instance(), nil)
	f.engine.On("Instance", mock.Anything, "temp-action-expiry", "run-2").Return(nil, errors.New("unknown queryType instance"))
	f.engine.On("Audit", mock.Anything, "ban-1001", "run-1").Return([]modal.AuditEvent{}, nil)

	page := func(path string) string {
		resp, err := http.Get(f.srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(b)
	}

	index := page("/ui")
	assert.Contains(t, index, "ban-1001")
	assert.NotContains(t, index, "temp-action-expiry")
	assert.Contains(t, index, string(modal.StateAwaitingConfirmation))

	modlog := page("/ui?tab=modlog&subject=2002")
	assert.Contains(t, modlog, "a0000002")
	assert.NotContains(t, modlog, "a0000003")

	detail := page("/ui/wf/ban-1001?runId=run-1")
	assert.Contains(t, detail, `name="channelId" value="dm-1001"`)
}

func TestUIEventRedirects(t *testing.T) {
	f := newFixture(t)
	want := modal.PromptEvent{
		Kind:        modal.EventMessage,
		AuthorID:    "1001",
		ChannelID:   "dm-1001",
		Content:     "here",
		Attachments: []string{"https://cdn.example/proof.png"},
		ReceivedAt:  testNow,
	}
	f.engine.On("Signal", mock.Anything, "ban-1001", "run-1", want).Return(nil)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	form := url.Values{
		"authorId":   {"1001"},
		"channelId":  {"dm-1001"},
		"content":    {"here"},
		"attachment": {"https://cdn.example/proof.png"},
	}
	resp, err := client.PostForm(f.srv.URL+"/ui/wf/ban-1001/event?runId=run-1", form)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/ui/wf/ban-1001?runId=run-1", resp.Header.Get("Location"))
	f.engine.AssertExpectations(t)
}
