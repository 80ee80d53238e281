package flow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/livreo/livreo/internal/classifier"
	"github.com/livreo/livreo/internal/models"
	"github.com/livreo/livreo/internal/platform"
)

// fakeClassifier returns a canned result, for driving the fallback path.
type fakeClassifier struct {
	result classifier.Result
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(ctx context.Context, req classifier.Request) (classifier.Result, error) {
	f.calls++
	return f.result, f.err
}

func newTestPlatform(t *testing.T, handler http.Handler) *platform.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := platform.NewClient(platform.WithBaseURL(srv.URL), platform.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("platform.NewClient: %v", err)
	}
	return c
}

// authedSession returns a session already landed on the role menu.
func authedSession(role models.Role) *models.Session {
	s := models.NewSession("22507000001")
	s.Auth = models.Auth{AccessToken: "tok", RefreshToken: "ref"}
	s.User = models.User{Role: role, DisplayName: "Awa"}
	s.Step = models.StepRoleMenu
	return s
}

func textMsg(text string) models.Message {
	return models.Message{From: "22507000001", Text: text}
}

func locationMsg(lat, lng float64) models.Message {
	return models.Message{From: "22507000001", Location: &models.Coordinates{Latitude: lat, Longitude: lng}}
}

func handleOrFail(t *testing.T, e Engine, s *models.Session, text string) models.Reply {
	t.Helper()
	reply, err := e.Handle(context.Background(), s, textMsg(text))
	if err != nil {
		t.Fatalf("Handle(%q) error: %v", text, err)
	}
	return reply
}
