package profile

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-trailtracker/internal/auth"
	"backend-trailtracker/internal/trail"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func newProfileApp(mock pgxmock.PgxPoolIface) *fiber.App {
	trails := trail.NewService(mock, nil)
	svc := NewService(mock, trails, nil)
	mw := auth.JWTMiddleware("secret")

	app := fiber.New()
	RegisterRoutes(app.Group("/profile"), svc, mw)
	RegisterTagRoutes(app.Group("/trails"), svc, trails, mw)
	return app
}

func tagRequest(t *testing.T, trailID, userID, tag string) *http.Request {
	body, _ := json.Marshal(map[string]string{"tag": tag})
	req := httptest.NewRequest(http.MethodPost, "/trails/"+trailID+"/tags", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, userID))
	return req
}

func TestProfileHandlersGet(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO profiles`).WithArgs(pgxmock.AnyArg(), "u1").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`FROM profiles`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(profileColumns).AddRow("p1", "u1", []string{"t1"}, []string{}, []string{}))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", bearer(t, "u1"))
	resp, err := newProfileApp(mock).Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("profile status: %v", err)
	}
	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil || p.ID != "p1" || len(p.Favourites) != 1 {
		t.Fatalf("unexpected profile: %+v %v", p, err)
	}
}

func TestTagHandlerTagged(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM trails WHERE id=\$1`).WithArgs("t1").WillReturnRows(trailRow("t1", "u2", trail.VisibilityPublic))
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("u2").WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("p2"))
	mock.ExpectExec(`array_append\(wants_to_do, \$2\)`).WithArgs("p2", "t1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	resp, err := newProfileApp(mock).Test(tagRequest(t, "t1", "u1", "wantsToDo"))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("tag status: %v", err)
	}
	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || !body["tagged"] {
		t.Fatalf("unexpected body: %v %v", body, err)
	}
}

func TestTagHandlerNoProfile(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM trails WHERE id=\$1`).WithArgs("t1").WillReturnRows(trailRow("t1", "u1", trail.VisibilityPrivate))
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("u1").WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	resp, err := newProfileApp(mock).Test(tagRequest(t, "t1", "u1", "done"))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("tag status: %v", err)
	}
	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body["tagged"] {
		t.Fatalf("expected tagged=false, got %v %v", body, err)
	}
}

func TestTagHandlerBadTag(t *testing.T) {
	resp, err := newProfileApp(newMock(t)).Test(tagRequest(t, "t1", "u1", "starred"))
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request")
	}
}

func TestTagHandlerHiddenTrail(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM trails WHERE id=\$1`).WithArgs("t1").WillReturnRows(trailRow("t1", "u2", trail.VisibilityPrivate))

	resp, err := newProfileApp(mock).Test(tagRequest(t, "t1", "u1", "favourite"))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found")
	}
}
