package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/livreo/livreo/internal/models"
	"github.com/livreo/livreo/internal/twiliowhatsapp"
)

func postWebhook(t *testing.T, s *TwilioService, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.WebhookHandler(rec, req)
	return rec
}

func TestTwilioWebhookEmitsMessage(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())

	rec := postWebhook(t, s, url.Values{
		"From": {"whatsapp:+2250708091011"},
		"Body": {"bonjour"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	select {
	case msg := <-s.Messages():
		if msg.From != "whatsapp:+2250708091011" || msg.Text != "bonjour" {
			t.Errorf("msg = %+v", msg)
		}
		if msg.Time == 0 {
			t.Error("message timestamp missing")
		}
	case <-time.After(time.Second):
		t.Fatal("no message emitted")
	}
}

func TestTwilioWebhookParsesSharedLocation(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())

	postWebhook(t, s, url.Values{
		"From":      {"whatsapp:+2250708091011"},
		"Latitude":  {"5.348"},
		"Longitude": {"-4.027"},
	})

	select {
	case msg := <-s.Messages():
		if msg.Location == nil || msg.Location.Latitude != 5.348 || msg.Location.Longitude != -4.027 {
			t.Errorf("location = %+v", msg.Location)
		}
	case <-time.After(time.Second):
		t.Fatal("no message emitted")
	}
}

func TestTwilioWebhookRejectsEmptyPayload(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())

	rec := postWebhook(t, s, url.Values{"Body": {"bonjour"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing From: status = %d, want 400", rec.Code)
	}

	rec = postWebhook(t, s, url.Values{"From": {"whatsapp:+2250708091011"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no body and no location: status = %d, want 400", rec.Code)
	}
}

func TestTwilioSendReplyCanonicalizesRecipient(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	s := NewTwilioService(mock)

	err := s.SendReply(context.Background(), "whatsapp:+225 07 08 09 10 11", models.Reply{Text: "Bonjour"})
	if err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	sent := mock.SentMessages()
	if len(sent) != 1 || sent[0].To != "2250708091011" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestTwilioSendReplyAfterStop(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	err := s.SendReply(context.Background(), "2250708091011", models.Reply{Text: "Bonjour"})
	if err != ErrServiceStopped {
		t.Errorf("err = %v, want ErrServiceStopped", err)
	}
}
