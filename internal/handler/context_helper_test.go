package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumanage/academy-api/internal/middleware"
	"github.com/edumanage/academy-api/internal/models"
)

func testContext(t *testing.T, method, target string, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
		c.Request = httptest.NewRequest(method, target, reader)
		c.Request.Header.Set("Content-Type", "application/json")
	} else {
		c.Request = httptest.NewRequest(method, target, nil)
	}
	return c, rec
}

func TestActorFromContext(t *testing.T) {
	branchID := "b1"
	c, _ := testContext(t, http.MethodGet, "/", "")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleCoach, BranchID: &branchID})

	actor := actorFromContext(c)
	assert.Equal(t, "u1", actor.ID)
	assert.Equal(t, models.RoleCoach, actor.Role)
	require.NotNil(t, actor.BranchID)
	assert.Equal(t, "b1", *actor.BranchID)
}

func TestActorFromContextMissingClaims(t *testing.T) {
	c, _ := testContext(t, http.MethodGet, "/", "")
	assert.Empty(t, actorFromContext(c).ID)
}

func TestParsePageClampsLimits(t *testing.T) {
	c, _ := testContext(t, http.MethodGet, "/?skip=-5&limit=500", "")
	skip, limit := parsePage(c)
	assert.Equal(t, 0, skip)
	assert.Equal(t, 20, limit)

	c, _ = testContext(t, http.MethodGet, "/?skip=40&limit=25", "")
	skip, limit = parsePage(c)
	assert.Equal(t, 40, skip)
	assert.Equal(t, 25, limit)
}

func TestParseDateQuery(t *testing.T) {
	c, _ := testContext(t, http.MethodGet, "/?from=2026-03-02&to=bogus", "")
	from := parseDateQuery(c, "from")
	require.NotNil(t, from)
	assert.Equal(t, "2026-03-02", from.Format("2006-01-02"))
	assert.Nil(t, parseDateQuery(c, "to"))
}

func TestComplaintCreateRejectsMalformedBody(t *testing.T) {
	handler := NewComplaintHandler(nil)
	c, rec := testContext(t, http.MethodPost, "/complaints", "{not-json")

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.NotEmpty(t, envelope.Error.Code)
}
