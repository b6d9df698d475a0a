package scheduler

// This file holds the hand-rolled fakes shared by the sweep service tests.
// Each fake records its calls in order and returns configured results; the
// subscriber store additionally keeps a cross-collaborator call log so
// ordering tests can assert persist-before-send.

import (
	"context"
	"log/slog"
	"os"
	"time"

	"lingopal/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// testSubscriber returns a minimal valid subscriber for fixtures. Tests
// override fields as needed.
func testSubscriber(phone string) types.Subscriber {
	return types.Subscriber{
		Phone:      phone,
		Language:   "fr",
		Timezone:   "UTC",
		SignedUpAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// --- Subscriber store fake ---

type nextPushCall struct {
	Phone string
	At    time.Time
}

type lastSentCall struct {
	Phone string
	At    time.Time
}

type nightlyRunCall struct {
	Phone string
	Day   types.LocalDate
}

type mockSubscriberStore struct {
	subs   []types.Subscriber
	getErr error

	nextPushCalls []nextPushCall
	nextPushErr   error

	lastSentCalls []lastSentCall
	lastSentErr   error

	nightlyRunCalls []nightlyRunCall
	nightlyRunErr   error

	// callLog records every store mutation and, via the delivery fake,
	// every send, in invocation order.
	callLog []string
}

func (m *mockSubscriberStore) GetAllActive(_ context.Context) ([]types.Subscriber, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.subs, nil
}

func (m *mockSubscriberStore) UpdateNextPush(_ context.Context, phone string, at time.Time) error {
	m.callLog = append(m.callLog, "UpdateNextPush:"+phone)
	if m.nextPushErr != nil {
		return m.nextPushErr
	}
	m.nextPushCalls = append(m.nextPushCalls, nextPushCall{Phone: phone, At: at})
	return nil
}

func (m *mockSubscriberStore) UpdateLastMessageSent(_ context.Context, phone string, at time.Time) error {
	m.callLog = append(m.callLog, "UpdateLastMessageSent:"+phone)
	if m.lastSentErr != nil {
		return m.lastSentErr
	}
	m.lastSentCalls = append(m.lastSentCalls, lastSentCall{Phone: phone, At: at})
	return nil
}

func (m *mockSubscriberStore) UpdateLastNightlyRun(_ context.Context, phone string, day types.LocalDate) error {
	m.callLog = append(m.callLog, "UpdateLastNightlyRun:"+phone)
	if m.nightlyRunErr != nil {
		return m.nightlyRunErr
	}
	m.nightlyRunCalls = append(m.nightlyRunCalls, nightlyRunCall{Phone: phone, Day: day})
	return nil
}

// --- Conversation agent fake ---

type initiateCall struct {
	Phone  string
	Prompt string
}

type mockAgent struct {
	bumpCalls []string
	bumpCount int
	bumpErr   error

	clearCalls []string
	clearErr   error

	initiateCalls []initiateCall
	initiateErr   error
	opener        string
}

func newMockAgent() *mockAgent {
	return &mockAgent{
		bumpCount: 7,
		opener:    "Bonjour! Comment s'est passee ta journee?",
	}
}

func (m *mockAgent) BumpConversationCounter(_ context.Context, phone string) (int, error) {
	m.bumpCalls = append(m.bumpCalls, phone)
	if m.bumpErr != nil {
		return 0, m.bumpErr
	}
	return m.bumpCount, nil
}

func (m *mockAgent) ClearConversation(_ context.Context, phone string) error {
	m.clearCalls = append(m.clearCalls, phone)
	return m.clearErr
}

func (m *mockAgent) InitiateConversation(_ context.Context, phone, prompt string) (string, error) {
	m.initiateCalls = append(m.initiateCalls, initiateCall{Phone: phone, Prompt: prompt})
	if m.initiateErr != nil {
		return "", m.initiateErr
	}
	return m.opener, nil
}

// --- Digest service fake ---

type removeDigestsCall struct {
	Phone string
	Keep  int
}

type mockDigests struct {
	createCalls []string
	created     bool
	createErr   error

	removeCalls []removeDigestsCall
	removed     int
	removeErr   error
}

func newMockDigests() *mockDigests {
	return &mockDigests{created: true, removed: 2}
}

func (m *mockDigests) CreateDigest(_ context.Context, phone string) (bool, error) {
	m.createCalls = append(m.createCalls, phone)
	if m.createErr != nil {
		return false, m.createErr
	}
	return m.created, nil
}

func (m *mockDigests) RemoveOldDigests(_ context.Context, phone string, keep int) (int, error) {
	m.removeCalls = append(m.removeCalls, removeDigestsCall{Phone: phone, Keep: keep})
	if m.removeErr != nil {
		return 0, m.removeErr
	}
	return m.removed, nil
}

// --- Delivery fake ---

type sendCall struct {
	Phone string
	Body  string
	Kind  types.MessageKind
}

// mockDelivery delivers successfully by default (the zero SendOutcome has
// no failed parts). Set store to mirror sends into its call log.
type mockDelivery struct {
	sends   []sendCall
	outcome types.SendOutcome
	err     error

	store *mockSubscriberStore
}

func (m *mockDelivery) Send(_ context.Context, phone, body string, kind types.MessageKind) (types.SendOutcome, error) {
	if m.store != nil {
		m.store.callLog = append(m.store.callLog, "Send:"+phone)
	}
	m.sends = append(m.sends, sendCall{Phone: phone, Body: body, Kind: kind})
	if m.err != nil {
		return types.SendOutcome{}, m.err
	}
	return m.outcome, nil
}

// --- Prompt builder fake ---

type mockPrompts struct {
	dailyErr   error
	checkInErr error
	nudgeErr   error
	warnErr    error

	nudgeCalls []time.Duration
}

func (m *mockPrompts) DailyPrompt(sub *types.Subscriber, _ time.Time) (string, error) {
	if m.dailyErr != nil {
		return "", m.dailyErr
	}
	return "daily prompt for " + sub.Phone, nil
}

func (m *mockPrompts) CheckIn(sub *types.Subscriber, _ time.Time) (string, error) {
	if m.checkInErr != nil {
		return "", m.checkInErr
	}
	return "check-in for " + sub.Phone, nil
}

func (m *mockPrompts) Nudge(sub *types.Subscriber, silentFor time.Duration) (string, error) {
	m.nudgeCalls = append(m.nudgeCalls, silentFor)
	if m.nudgeErr != nil {
		return "", m.nudgeErr
	}
	return "nudge for " + sub.Phone, nil
}

func (m *mockPrompts) PlanWarning(sub *types.Subscriber) (string, error) {
	if m.warnErr != nil {
		return "", m.warnErr
	}
	return "plan warning for " + sub.Phone, nil
}

// --- Plan checker fake ---

type mockPlans struct {
	over map[string]bool
}

func (m *mockPlans) OverLimit(sub *types.Subscriber, _ time.Time) bool {
	return m.over[sub.Phone]
}
