package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceejayvjose/ict-repair-system/internal/auth"
	"github.com/ceejayvjose/ict-repair-system/internal/errs"
	"github.com/ceejayvjose/ict-repair-system/internal/feed"
	"github.com/ceejayvjose/ict-repair-system/internal/handler"
	"github.com/ceejayvjose/ict-repair-system/internal/model"
	"github.com/ceejayvjose/ict-repair-system/internal/router"
	"github.com/ceejayvjose/ict-repair-system/internal/service"
	"github.com/ceejayvjose/ict-repair-system/internal/session"
	"github.com/ceejayvjose/ict-repair-system/internal/store/storetest"
	"github.com/ceejayvjose/ict-repair-system/internal/ticketno"
	"github.com/ceejayvjose/ict-repair-system/internal/verify"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// allocStore backs the fake with the same service.Allocate loop the
// gorm implementation runs, so handler tests exercise the real
// recompute-and-retry path.
//
// rivals simulates concurrent submissions: for each pending rival a
// competing row steals the computed number right before the insert,
// forcing the loop onto its collision branch.
type allocStore struct {
	*storetest.Fake
	bus    *feed.Bus
	rivals int
}

func (a *allocStore) numbersForDay(ctx context.Context, prefix string) ([]string, error) {
	existing, err := a.Fake.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	var numbers []string
	for i := range existing {
		if strings.HasPrefix(existing[i].TicketNumber, prefix) {
			numbers = append(numbers, existing[i].TicketNumber)
		}
	}
	return numbers, nil
}

func (a *allocStore) CreateTicket(ctx context.Context, t *model.Ticket) error {
	_, err := service.Allocate(ctx, time.Now(), a.numbersForDay, func(ctx context.Context, number string) error {
		if a.rivals > 0 {
			a.rivals--
			rival := model.Ticket{
				Office:     "Library",
				Equipment:  "Epson L3110",
				Problem:    "no power",
				Requestee:  "rival submission",
				RepairType: model.RepairTypePrinter,
			}
			rival.TicketNumber = number
			if err := a.Fake.CreateTicket(ctx, &rival); err != nil {
				return err
			}
		}
		t.TicketNumber = number
		return a.Fake.CreateTicket(ctx, t)
	})
	if err != nil {
		return err
	}
	a.bus.Publish(feed.Event{Table: feed.TableTickets, Kind: feed.KindInsert, TicketNumber: t.TicketNumber})
	return nil
}

type fakeAccounts struct {
	hash string
}

func (f *fakeAccounts) GetAdminByEmail(ctx context.Context, email string) (*model.AdminAccount, error) {
	if email != "admin@example.com" {
		return nil, errs.ErrInvalidCredentials
	}
	return &model.AdminAccount{ID: 1, Email: email, PasswordHash: f.hash}, nil
}

type env struct {
	srv     *httptest.Server
	fake    *storetest.Fake
	tickets *allocStore
	bus     *feed.Bus
	gate    *verify.Gate
	cache   *session.Cache
}

func newEnv(t *testing.T) *env {
	t.Helper()
	fake := storetest.New()
	bus := feed.NewBus()
	tickets := &allocStore{Fake: fake, bus: bus}

	cache := session.New(tickets, fake, bus)
	require.NoError(t, cache.Start(context.Background()))
	t.Cleanup(cache.Close)

	gate := verify.NewGate(time.Minute)
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	authSvc := auth.NewService(&fakeAccounts{hash: hash}, "test-secret", time.Hour)

	mux := router.New(router.Deps{
		Tickets:      handler.NewTicketHandler(tickets, fake, cache, gate),
		Messages:     handler.NewMessageHandler(fake, fake, fake, cache),
		Auth:         handler.NewAuthHandler(authSvc, gate),
		Verification: handler.NewVerificationHandler(gate),
		WS:           handler.NewWSHandler(bus),
		AuthService:  authSvc,
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &env{srv: srv, fake: fake, tickets: tickets, bus: bus, gate: gate, cache: cache}
}

func (e *env) do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func (e *env) challenge(t *testing.T) verify.Challenge {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/verification", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var c verify.Challenge
	decode(t, resp, &c)
	return c
}

func (e *env) submit(t *testing.T, requestee string) model.Ticket {
	t.Helper()
	c := e.challenge(t)
	resp := e.do(t, http.MethodPost, "/api/v1/tickets", gin.H{
		"office":            "Registrar",
		"repair_type":       "Desktop",
		"equipment":         "Dell OptiPlex",
		"problem":           "won't boot",
		"requestee":         requestee,
		"verification_id":   c.ID,
		"verification_code": c.Code,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var ticket model.Ticket
	decode(t, resp, &ticket)
	return ticket
}

func (e *env) login(t *testing.T) string {
	t.Helper()
	c := e.challenge(t)
	resp := e.do(t, http.MethodPost, "/api/v1/admin/login", gin.H{
		"email":             "admin@example.com",
		"password":          "s3cret",
		"verification_id":   c.ID,
		"verification_code": c.Code,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token string `json:"token"`
	}
	decode(t, resp, &out)
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestSubmitAllocatesSequentialNumbers(t *testing.T) {
	e := newEnv(t)

	prefix := ticketno.DatePrefix(time.Now())
	first := e.submit(t, "R. Santos")
	second := e.submit(t, "R. Santos")
	assert.Equal(t, prefix+"00001", first.TicketNumber)
	assert.Equal(t, prefix+"00002", second.TicketNumber)
	assert.Equal(t, model.TicketStatusEvaluation, first.Status)
	assert.Equal(t, model.PriorityNormal, first.Priority)
}

func TestSubmitRetriesWhenRivalTakesNumber(t *testing.T) {
	e := newEnv(t)
	e.tickets.rivals = 1

	prefix := ticketno.DatePrefix(time.Now())
	got := e.submit(t, "R. Santos")

	// The rival claimed 00001; the retry recomputed and allocated 00002.
	assert.Equal(t, prefix+"00002", got.TicketNumber)
	all, err := e.fake.ListTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, prefix+"00002", all[0].TicketNumber)
	assert.Equal(t, prefix+"00001", all[1].TicketNumber)
}

func TestSubmitFailsWhenEveryAttemptCollides(t *testing.T) {
	e := newEnv(t)
	e.tickets.rivals = 3

	c := e.challenge(t)
	resp := e.do(t, http.MethodPost, "/api/v1/tickets", gin.H{
		"office":            "Registrar",
		"repair_type":       "Desktop",
		"equipment":         "Dell OptiPlex",
		"problem":           "won't boot",
		"requestee":         "R. Santos",
		"verification_id":   c.ID,
		"verification_code": c.Code,
	}, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// Only the rival rows landed; the submission itself never did.
	all, err := e.fake.ListTickets(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSubmitRejectsWrongCode(t *testing.T) {
	e := newEnv(t)
	c := e.challenge(t)

	resp := e.do(t, http.MethodPost, "/api/v1/tickets", gin.H{
		"office":            "Registrar",
		"repair_type":       "Desktop",
		"equipment":         "Dell OptiPlex",
		"problem":           "won't boot",
		"requestee":         "R. Santos",
		"verification_id":   c.ID,
		"verification_code": "0000",
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// No store call was made.
	list, err := e.fake.ListTickets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	// The challenge survived the mismatch; the correct code still works.
	resp = e.do(t, http.MethodPost, "/api/v1/tickets", gin.H{
		"office":            "Registrar",
		"repair_type":       "Desktop",
		"equipment":         "Dell OptiPlex",
		"problem":           "won't boot",
		"requestee":         "R. Santos",
		"verification_id":   c.ID,
		"verification_code": c.Code,
	}, "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmitRejectsMissingFieldsAndBadEnums(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/api/v1/tickets", gin.H{"office": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	c := e.challenge(t)
	resp = e.do(t, http.MethodPost, "/api/v1/tickets", gin.H{
		"office":            "Registrar",
		"repair_type":       "Typewriter",
		"equipment":         "x",
		"problem":           "x",
		"requestee":         "x",
		"verification_id":   c.ID,
		"verification_code": c.Code,
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestTrack(t *testing.T) {
	e := newEnv(t)
	in := e.submit(t, "M. Reyes")

	resp := e.do(t, http.MethodGet, "/api/v1/tickets/"+in.TicketNumber, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got model.Ticket
	decode(t, resp, &got)
	assert.Equal(t, in.TicketNumber, got.TicketNumber)
	assert.Equal(t, "M. Reyes", got.Requestee)
}

func TestTrackMissIs404(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/api/v1/tickets/2026090199999", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Contains(t, body["error"], "not found")
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	e := newEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/admin/tickets"},
		{http.MethodPut, "/api/v1/admin/tickets/1"},
		{http.MethodDelete, "/api/v1/admin/tickets/1"},
		{http.MethodPost, "/api/v1/admin/broadcast"},
	} {
		resp := e.do(t, tc.method, tc.path, gin.H{}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", tc.method, tc.path)
		resp.Body.Close()
	}
}

func TestLoginRejectsWrongCodeBeforeAuth(t *testing.T) {
	e := newEnv(t)
	c := e.challenge(t)

	resp := e.do(t, http.MethodPost, "/api/v1/admin/login", gin.H{
		"email":             "admin@example.com",
		"password":          "s3cret",
		"verification_id":   c.ID,
		"verification_code": "9999x",
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestLoginRejectsBadPassword(t *testing.T) {
	e := newEnv(t)
	c := e.challenge(t)

	resp := e.do(t, http.MethodPost, "/api/v1/admin/login", gin.H{
		"email":             "admin@example.com",
		"password":          "wrong",
		"verification_id":   c.ID,
		"verification_code": c.Code,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminUpdateAndDelete(t *testing.T) {
	e := newEnv(t)
	in := e.submit(t, "J. Cruz")
	token := e.login(t)

	resp := e.do(t, http.MethodPut, "/api/v1/admin/tickets/1", gin.H{
		"status":         "Scheduled",
		"technician":     "E. Dizon",
		"scheduled_date": "2026-09-05",
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated model.Ticket
	decode(t, resp, &updated)
	assert.Equal(t, model.TicketStatusScheduled, updated.Status)
	assert.Equal(t, "E. Dizon", updated.Technician)
	// ticket_number is immutable through updates.
	assert.Equal(t, in.TicketNumber, updated.TicketNumber)

	// The post-write refresh made the change visible to tracking.
	resp = e.do(t, http.MethodGet, "/api/v1/tickets/"+in.TicketNumber, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tracked model.Ticket
	decode(t, resp, &tracked)
	assert.Equal(t, model.TicketStatusScheduled, tracked.Status)

	resp = e.do(t, http.MethodDelete, "/api/v1/admin/tickets/1", nil, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/api/v1/tickets/"+in.TicketNumber, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminUpdateRejectsUnknownStatus(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "J. Cruz")
	token := e.login(t)

	resp := e.do(t, http.MethodPut, "/api/v1/admin/tickets/1", gin.H{"status": "Fixed"}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminListFilters(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "A")
	e.submit(t, "B")
	token := e.login(t)

	resp := e.do(t, http.MethodPut, "/api/v1/admin/tickets/2", gin.H{"status": "Repaired"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var out struct {
		Tickets []model.Ticket `json:"tickets"`
	}
	resp = e.do(t, http.MethodGet, "/api/v1/admin/tickets", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	assert.Len(t, out.Tickets, 2)

	resp = e.do(t, http.MethodGet, "/api/v1/admin/tickets?status=Repaired", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	require.Len(t, out.Tickets, 1)
	assert.Equal(t, model.TicketStatusRepaired, out.Tickets[0].Status)
}

func TestAdminListTriageSort(t *testing.T) {
	e := newEnv(t)
	e.submit(t, "A")
	e.submit(t, "B")
	e.submit(t, "C")
	token := e.login(t)

	// Oldest submission is done, newest is waiting on parts.
	resp := e.do(t, http.MethodPut, "/api/v1/admin/tickets/1", gin.H{"status": "Repaired"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = e.do(t, http.MethodPut, "/api/v1/admin/tickets/3", gin.H{"status": "Pending"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var out struct {
		Tickets []model.Ticket `json:"tickets"`
	}
	resp = e.do(t, http.MethodGet, "/api/v1/admin/tickets?sort=triage", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	require.Len(t, out.Tickets, 3)

	// Lifecycle order: Evaluation first, Repaired last.
	assert.Equal(t, model.TicketStatusEvaluation, out.Tickets[0].Status)
	assert.Equal(t, "B", out.Tickets[0].Requestee)
	assert.Equal(t, model.TicketStatusPending, out.Tickets[1].Status)
	assert.Equal(t, model.TicketStatusRepaired, out.Tickets[2].Status)
}

func TestBroadcastReplace(t *testing.T) {
	e := newEnv(t)
	token := e.login(t)

	var out struct {
		Message string `json:"message"`
	}
	resp := e.do(t, http.MethodGet, "/api/v1/broadcast", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	assert.Equal(t, "", out.Message)

	resp = e.do(t, http.MethodPost, "/api/v1/admin/broadcast", gin.H{"message": "Maintenance at 5 PM"}, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/api/v1/admin/broadcast", gin.H{"message": "Back online"}, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Only the latest message survives a replace.
	resp = e.do(t, http.MethodGet, "/api/v1/broadcast", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	assert.Equal(t, "Back online", out.Message)
}

func TestChatReplayScenario(t *testing.T) {
	e := newEnv(t)
	in := e.submit(t, "M. Reyes")
	chatPath := "/api/v1/tickets/" + in.TicketNumber + "/messages"

	// Opening the chat on a fresh ticket replays nothing.
	var out struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	resp := e.do(t, http.MethodGet, chatPath, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	assert.Empty(t, out.Messages)

	resp = e.do(t, http.MethodPost, chatPath, gin.H{"message": "hello"}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Reopening replays exactly the one user message.
	resp = e.do(t, http.MethodGet, chatPath, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, model.SenderUser, out.Messages[0].SenderType)
	assert.Equal(t, "hello", out.Messages[0].Message)
	assert.Equal(t, in.TicketNumber, out.Messages[0].TicketNumber)
}

func TestChatSenderRoleFollowsToken(t *testing.T) {
	e := newEnv(t)
	in := e.submit(t, "M. Reyes")
	token := e.login(t)
	chatPath := "/api/v1/tickets/" + in.TicketNumber + "/messages"

	resp := e.do(t, http.MethodPost, chatPath, gin.H{"message": "hello"}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = e.do(t, http.MethodPost, chatPath, gin.H{"message": "we are on it"}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	var out struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	resp = e.do(t, http.MethodGet, chatPath, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	require.Len(t, out.Messages, 2)
	// Ordered by created_at ascending, roles from authentication.
	assert.Equal(t, model.SenderUser, out.Messages[0].SenderType)
	assert.Equal(t, model.SenderAdmin, out.Messages[1].SenderType)
}

func TestChatOnUnknownTicketIs404(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/api/v1/tickets/2026090199999/messages", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/api/v1/tickets/2026090199999/messages", gin.H{"message": "hi"}, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestMe(t *testing.T) {
	e := newEnv(t)
	token := e.login(t)

	var out struct {
		Email string `json:"email"`
	}
	resp := e.do(t, http.MethodGet, "/api/v1/admin/me", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	assert.Equal(t, "admin@example.com", out.Email)
}
