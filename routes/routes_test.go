package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"anniversary_server/clock"
	"anniversary_server/logger"
	"anniversary_server/models"
	"anniversary_server/services"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type api struct {
	t      *testing.T
	router *mux.Router
}

func newAPI(t *testing.T) *api {
	t.Helper()
	store := services.NewMemoryStore(nil)
	clk := clock.NewFake(time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC))
	pairing := services.NewPairingService(store, clk)
	messages := services.NewMessageStore(store, clk)
	tracker := services.NewDeliveryStatusTracker(store, messages, clk)
	feed := services.NewFeedService(store, messages, tracker)
	scheduler := services.NewDeliveryScheduler(pairing, messages, services.LogDispatcher{}, nil)
	s3Client := s3.New(s3.Options{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
	})

	r := mux.NewRouter()
	RegisterRoutes(r)
	RegisterRelationshipRoutes(r, pairing)
	RegisterParticipantRoutes(r, pairing)
	RegisterMessageRoutes(r, messages, feed)
	RegisterDeliveryStatusRoutes(r, tracker)
	RegisterSchedulerRoutes(r, scheduler, clk)
	RegisterMediaRoutes(r, services.NewMediaService(s3Client, "media", clk))
	return &api{t: t, router: r}
}

func (a *api) do(method, path string, body any, out any) int {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, a.do("GET", "/health", nil, &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestPairingFlowOverHTTP(t *testing.T) {
	a := newAPI(t)

	var created struct {
		Relationship models.Relationship `json:"relationship"`
		Initiator    models.Participant  `json:"initiator"`
	}
	code := a.do("POST", "/api/relationships", map[string]string{
		"initiatorName":         "Alex",
		"relationshipStartDate": "2024-01-01",
	}, &created)
	require.Equal(t, http.StatusCreated, code)
	assert.Len(t, created.Relationship.CoupleCode, 6)

	var redeemed models.Relationship
	code = a.do("POST", "/api/relationships/redeem", map[string]string{
		"coupleCode":  created.Relationship.CoupleCode,
		"partnerName": "Sam",
	}, &redeemed)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, redeemed.PartnerID)

	var conflict map[string]string
	code = a.do("POST", "/api/relationships/redeem", map[string]string{
		"coupleCode":  created.Relationship.CoupleCode,
		"partnerName": "Jordan",
	}, &conflict)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already redeemed", conflict["kind"])

	var got struct {
		State models.RelationshipState `json:"state"`
	}
	require.Equal(t, http.StatusOK, a.do("GET", "/api/relationships/"+created.Relationship.ID, nil, &got))
	assert.Equal(t, models.StateActive, got.State)

	assert.Equal(t, http.StatusOK, a.do("PUT", "/api/participants/"+redeemed.PartnerID+"/notification-handle", map[string]string{"deviceToken": "tok"}, nil))
	var partner models.Participant
	require.Equal(t, http.StatusOK, a.do("GET", "/api/participants/"+redeemed.PartnerID, nil, &partner))
	assert.Equal(t, "tok", partner.NotificationHandle)
}

func TestErrorStatuses(t *testing.T) {
	a := newAPI(t)

	assert.Equal(t, http.StatusNotFound, a.do("GET", "/api/relationships/ghost", nil, nil))
	assert.Equal(t, http.StatusBadRequest, a.do("POST", "/api/relationships", map[string]string{"initiatorName": "Alex"}, nil))
	assert.Equal(t, http.StatusBadRequest, a.do("POST", "/api/relationships/redeem", map[string]string{"coupleCode": "bad", "partnerName": "Sam"}, nil))
	assert.Equal(t, http.StatusNotFound, a.do("POST", "/api/relationships/redeem", map[string]string{"coupleCode": "ZZZZZZ", "partnerName": "Sam"}, nil))
	assert.Equal(t, http.StatusNotFound, a.do("POST", "/api/messages/ghost/reaction", map[string]string{"reaction": "👍"}, nil))
	assert.Equal(t, http.StatusBadRequest, a.do("POST", "/api/scheduler/tick/x?at=yesterday", nil, nil))
}

func TestMessageTickAndReactionOverHTTP(t *testing.T) {
	a := newAPI(t)

	var created struct {
		Relationship models.Relationship `json:"relationship"`
	}
	require.Equal(t, http.StatusCreated, a.do("POST", "/api/relationships", map[string]string{
		"initiatorName":         "Alex",
		"relationshipStartDate": "2024-01-01T00:00:00Z",
	}, &created))
	relID := created.Relationship.ID
	require.Equal(t, http.StatusOK, a.do("POST", "/api/relationships/redeem", map[string]string{
		"coupleCode":  created.Relationship.CoupleCode,
		"partnerName": "Sam",
	}, nil))

	for _, idx := range []int{3, 1, 2} {
		require.Equal(t, http.StatusCreated, a.do("POST", "/api/messages", map[string]any{
			"relationshipId": relID,
			"monthIndex":     idx,
			"title":          "month",
			"message":        "hello",
		}, nil))
	}

	var msgs []models.Message
	require.Equal(t, http.StatusOK, a.do("GET", "/api/relationships/"+relID+"/messages", nil, &msgs))
	require.Len(t, msgs, 3)
	assert.Equal(t, 1, msgs[0].MonthIndex)
	assert.Equal(t, 3, msgs[2].MonthIndex)

	var result services.TickResult
	require.Equal(t, http.StatusOK, a.do("POST", "/api/scheduler/tick/"+relID, nil, &result))
	assert.Equal(t, services.OutcomeDelivered, result.Outcome)
	assert.Equal(t, 2, result.MonthIndex)

	var status models.DeliveryStatus
	require.Equal(t, http.StatusOK, a.do("POST", "/api/messages/"+result.MessageID+"/reaction", map[string]string{"reaction": "🥹"}, &status))
	assert.True(t, status.IsRead)
	assert.Equal(t, "🥹", status.Reaction)

	require.Equal(t, http.StatusOK, a.do("PUT", "/api/messages/"+result.MessageID+"/comment", map[string]string{"comment": "crying"}, &status))
	assert.Equal(t, "crying", status.Comment)

	var feed []services.FeedEntry
	require.Equal(t, http.StatusOK, a.do("GET", "/api/relationships/"+relID+"/messages?feed=true&deliveredOnly=true", nil, &feed))
	require.Len(t, feed, 1)
	assert.Equal(t, result.MessageID, feed[0].Message.ID)
	require.NotNil(t, feed[0].Status)
	assert.Equal(t, "🥹", feed[0].Status.Reaction)
}

func TestMediaURLs(t *testing.T) {
	a := newAPI(t)

	var upload map[string]string
	require.Equal(t, http.StatusOK, a.do("POST", "/api/media/upload-url", map[string]string{
		"relationshipId": "r1",
		"fileName":       "voice.m4a",
		"fileType":       "audio/mp4",
	}, &upload))
	assert.NotEmpty(t, upload["url"])

	var read map[string]string
	require.Equal(t, http.StatusOK, a.do("POST", "/api/media/read-url", map[string]string{
		"relationshipId": "r1",
		"key":            upload["fileName"],
	}, &read))
	assert.NotEmpty(t, read["url"])

	assert.Equal(t, http.StatusBadRequest, a.do("POST", "/api/media/upload-url", map[string]string{
		"relationshipId": "r1",
		"fileName":       "a.exe",
		"fileType":       "application/octet-stream",
	}, nil))
}
