package activities

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"modbot/internal/expiry"
	"modbot/internal/idgen"
	"modbot/internal/modal"
	"modbot/internal/platform"
	"modbot/internal/platform/fake"
	"modbot/internal/session"
	"modbot/internal/store"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	acts     *Activities
	store    *store.MemoryStore
	platform *fake.Platform
	sessions *session.Registry
	env      *testsuite.TestActivityEnvironment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	p := fake.New()
	reg := session.NewRegistry()
	a := &Activities{
		Store:           s,
		Messenger:       p,
		Moderator:       p,
		IDs:             idgen.New(s.ActionIDExists, s.CommissionExists),
		Sweeper:         &expiry.Sweeper{Store: s, Moderator: p},
		Sessions:        reg,
		ModLogChannel:   "modlog",
		FallbackChannel: "general",
		Clock:           func() time.Time { return fixedNow },
	}
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(a)
	return &fixture{acts: a, store: s, platform: p, sessions: reg, env: env}
}

func TestNotifySubject_DirectMessage(t *testing.T) {
	f := newFixture(t)
	val, err := f.env.ExecuteActivity(f.acts.NotifySubject, NotifyInput{SubjectID: "u1", Message: modal.Text("You have been warned.")})
	require.NoError(t, err)

	var res NotifyResult
	require.NoError(t, val.Get(&res))
	assert.True(t, res.Delivered)
	assert.False(t, res.Fallback)
	require.Len(t, f.platform.SentTo(fake.DMChannel("u1")), 1)
}

func TestNotifySubject_FallsBackOnClosedDMs(t *testing.T) {
	f := newFixture(t)
	f.platform.CloseDMs("u1")

	val, err := f.env.ExecuteActivity(f.acts.NotifySubject, NotifyInput{SubjectID: "u1", Message: modal.Text("You have been warned.")})
	require.NoError(t, err)

	var res NotifyResult
	require.NoError(t, val.Get(&res))
	assert.True(t, res.Fallback)
	msgs := f.platform.SentTo("general")
	require.Len(t, msgs, 1)
	assert.Equal(t, "<@u1> You have been warned.", msgs[0].Content)
}

func TestNotifySubject_NeverFails(t *testing.T) {
	f := newFixture(t)
	f.platform.CloseDMs("u1")
	f.platform.SendErrors["general"] = errors.New("missing access")

	val, err := f.env.ExecuteActivity(f.acts.NotifySubject, NotifyInput{SubjectID: "u1", Message: modal.Text("x")})
	require.NoError(t, err)
	var res NotifyResult
	require.NoError(t, val.Get(&res))
	assert.False(t, res.Delivered)
}

func TestOpenConversation_ClassifiesClosedDMs(t *testing.T) {
	f := newFixture(t)
	f.platform.CloseDMs("m1")

	_, err := f.env.ExecuteActivity(f.acts.OpenConversation, "m1")
	require.Error(t, err)
	assert.True(t, IsType(err, ErrTypeDMClosed))
}

func TestRespond_ClassifiesExpiredToken(t *testing.T) {
	f := newFixture(t)
	f.platform.ResponseErrors["tok"] = fmt.Errorf("edit: %w", platform.ErrResponseExpired)

	_, err := f.env.ExecuteActivity(f.acts.Respond, RespondInput{Token: "tok", Message: modal.Text("done")})
	require.Error(t, err)
	assert.True(t, IsType(err, ErrTypeResponseExpired))
}

func TestApplyModeration(t *testing.T) {
	f := newFixture(t)

	_, err := f.env.ExecuteActivity(f.acts.ApplyModeration, ModerationInput{
		Kind: modal.KindMute, ScopeID: "guild-1", SubjectID: "u1", Reason: "spam", Delay: time.Hour,
	})
	require.NoError(t, err)
	actions := f.platform.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "timeout", actions[0].Op)
	require.NotNil(t, actions[0].Until)
	assert.True(t, actions[0].Until.Equal(fixedNow.Add(time.Hour)))

	f.platform.FailAction("ban", "u2", fmt.Errorf("missing permissions: %w", platform.ErrHierarchy))
	_, err = f.env.ExecuteActivity(f.acts.ApplyModeration, ModerationInput{Kind: modal.KindBan, ScopeID: "guild-1", SubjectID: "u2"})
	require.Error(t, err)
	assert.True(t, IsType(err, ErrTypeHierarchy))
}

func TestRecordAction_WritesTempRecordForFiniteDelay(t *testing.T) {
	f := newFixture(t)
	rec := modal.ActionRecord{
		ActionID:     "abcd1234",
		Kind:         modal.KindBan,
		SubjectID:    "u1",
		ModeratorID:  "m1",
		Reason:       "raid",
		DurationSpec: modal.StringPtr("TEST"),
		ScopeID:      "guild-1",
	}
	val, err := f.env.ExecuteActivity(f.acts.RecordAction, RecordInput{Record: rec, TempDelay: 30 * time.Second})
	require.NoError(t, err)

	var stored modal.ActionRecord
	require.NoError(t, val.Get(&stored))
	assert.True(t, stored.CreatedAt.Equal(fixedNow))

	temps := f.store.TempActions()
	require.Len(t, temps, 1)
	assert.True(t, temps[0].ExpiresAt.Equal(fixedNow.Add(30*time.Second)))
}

func TestRecordAction_ClearsTempActionsOnUnban(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AppendAction(ctx, modal.ActionRecord{ActionID: "00000001", Kind: modal.KindBan, SubjectID: "u1", ScopeID: "guild-1", CreatedAt: fixedNow},
		&modal.TempActionRecord{ActionID: "00000001", SubjectID: "u1", ScopeID: "guild-1", ExpiresAt: fixedNow.Add(time.Hour)}))

	_, err := f.env.ExecuteActivity(f.acts.RecordAction, RecordInput{
		Record:           modal.ActionRecord{ActionID: "00000002", Kind: modal.KindUnban, SubjectID: "u1", ScopeID: "guild-1"},
		ClearTempActions: true,
	})
	require.NoError(t, err)
	assert.Empty(t, f.store.TempActions())
}

func TestRecordAction_OwnEarlierWriteIsSuccess(t *testing.T) {
	f := newFixture(t)
	rec := modal.ActionRecord{ActionID: "dup00001", Kind: modal.KindWarn, SubjectID: "u1", ModeratorID: "m1", Reason: "spam", CreatedAt: fixedNow.Add(-time.Second)}
	require.NoError(t, f.store.AppendAction(context.Background(), rec, nil))

	retry := rec
	retry.CreatedAt = time.Time{}
	val, err := f.env.ExecuteActivity(f.acts.RecordAction, RecordInput{Record: retry})
	require.NoError(t, err)
	var stored modal.ActionRecord
	require.NoError(t, val.Get(&stored))
	assert.Equal(t, "dup00001", stored.ActionID)
	assert.Empty(t, f.store.TempActions())

	recs, err := f.store.QueryActions(context.Background(), modal.ActionQuery{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRecordAction_RedrawsIDHeldByAnotherAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := modal.ActionRecord{ActionID: "dup00001", Kind: modal.KindKick, SubjectID: "u9", ModeratorID: "m2", Reason: "raid", CreatedAt: fixedNow}
	require.NoError(t, f.store.AppendAction(ctx, other, nil))

	mine := modal.ActionRecord{ActionID: "dup00001", Kind: modal.KindBan, SubjectID: "u1", ModeratorID: "m1", Reason: "spam", ScopeID: "guild-1"}
	val, err := f.env.ExecuteActivity(f.acts.RecordAction, RecordInput{Record: mine, TempDelay: time.Hour})
	require.NoError(t, err)
	var stored modal.ActionRecord
	require.NoError(t, val.Get(&stored))
	assert.NotEqual(t, "dup00001", stored.ActionID)
	assert.Len(t, stored.ActionID, 8)

	got, err := f.store.GetAction(ctx, stored.ActionID)
	require.NoError(t, err)
	assert.Equal(t, modal.KindBan, got.Kind)
	kept, err := f.store.GetAction(ctx, "dup00001")
	require.NoError(t, err)
	assert.Equal(t, modal.KindKick, kept.Kind)

	temps := f.store.TempActions()
	require.Len(t, temps, 1)
	assert.Equal(t, stored.ActionID, temps[0].ActionID)
}

func TestSendMessage_MarksPrompted(t *testing.T) {
	f := newFixture(t)
	key := session.Key{Initiator: "m1", Kind: modal.WorkflowBan}
	_, err := f.sessions.Acquire(key, "ban-m1", time.Hour, nil)
	require.NoError(t, err)

	_, err = f.env.ExecuteActivity(f.acts.SendMessage, SendInput{
		WorkflowID: "ban-m1", ChannelID: fake.DMChannel("m1"), Message: modal.Text("Provide evidence"), Prompt: true,
	})
	require.NoError(t, err)

	s, ok := f.sessions.Route("m1", fake.DMChannel("m1"))
	require.True(t, ok)
	assert.Equal(t, "ban-m1", s.WorkflowID)
}

func TestCommissionLifecycleActivities(t *testing.T) {
	f := newFixture(t)

	val, err := f.env.ExecuteActivity(f.acts.ReserveCommissionID)
	require.NoError(t, err)
	var id string
	require.NoError(t, val.Get(&id))

	_, err = f.env.ExecuteActivity(f.acts.SaveCommission, modal.Commission{
		CommissionID: id, ClientID: "123", ClientName: "Alice", CreatorID: "m1", Details: "castle",
		Price: "25", PaymentMethod: modal.PaymentPayPal,
	})
	require.NoError(t, err)
	c, err := f.store.GetCommission(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, modal.CommissionPending, c.Status)

	_, err = f.env.ExecuteActivity(f.acts.ConfirmCommission, ConfirmCommissionInput{CommissionID: id, ChannelID: "chan-1"})
	require.NoError(t, err)

	_, err = f.env.ExecuteActivity(f.acts.ConfirmCommission, ConfirmCommissionInput{CommissionID: id, ChannelID: "chan-1"})
	require.Error(t, err)
	assert.True(t, IsType(err, ErrTypeInvalidTransition))

	_, err = f.env.ExecuteActivity(f.acts.DiscardCommission, id)
	require.NoError(t, err)
	assert.Empty(t, f.store.CommissionList())
}

func TestPostModLog(t *testing.T) {
	f := newFixture(t)
	_, err := f.env.ExecuteActivity(f.acts.PostModLog, modal.Text("User banned"))
	require.NoError(t, err)
	assert.Len(t, f.platform.SentTo("modlog"), 1)

	f.acts.ModLogChannel = ""
	_, err = f.env.ExecuteActivity(f.acts.PostModLog, modal.Text("User banned"))
	require.NoError(t, err)
	assert.Len(t, f.platform.SentTo("modlog"), 1)
}

func TestSweepExpiredTempActions(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.AppendAction(context.Background(),
		modal.ActionRecord{ActionID: "exp00001", Kind: modal.KindBan, SubjectID: "u1", ScopeID: "guild-1", CreatedAt: fixedNow.Add(-time.Minute)},
		&modal.TempActionRecord{ActionID: "exp00001", SubjectID: "u1", ScopeID: "guild-1", ExpiresAt: fixedNow.Add(-30 * time.Second)}))

	val, err := f.env.ExecuteActivity(f.acts.SweepExpiredTempActions)
	require.NoError(t, err)
	var rep expiry.Report
	require.NoError(t, val.Get(&rep))
	assert.Equal(t, 1, rep.Reversed)
	assert.Empty(t, f.store.TempActions())
}
