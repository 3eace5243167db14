package server_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hubsync/pkg/controller/server"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/infra"
	"github.com/m-mizutani/hubsync/pkg/repository/memory"
	"github.com/m-mizutani/hubsync/pkg/usecase"
)

const testWebhookSecret = types.GitHubAppSecret("test-webhook-secret")

func newWebhookServer(t *testing.T, options ...server.Option) (*server.Server, interfaces.SyncRepository) {
	t.Helper()

	repo := memory.New()
	clients := infra.New(
		infra.WithSyncRepository(repo),
	)
	uc := usecase.New(clients)
	return server.New(uc, options...), repo
}

func signBody(secret types.GitHubAppSecret, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newWebhookRequest(event, deliveryID string, body []byte, signature string) *http.Request {
	req := httptest.NewRequest("POST", "/api/github/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	if deliveryID != "" {
		req.Header.Set("X-GitHub-Delivery", deliveryID)
	}
	return req
}

func TestGitHubWebhook(t *testing.T) {
	ctx := context.Background()
	body := []byte(`{"action":"opened","installation":{"id":5000},"repository":{"id":999}}`)

	t.Run("fails without configured secret", func(t *testing.T) {
		srv, _ := newWebhookServer(t)

		req := newWebhookRequest("pull_request", "delivery-1", body, signBody(testWebhookSecret, body))
		w := httptest.NewRecorder()
		srv.Mux().ServeHTTP(w, req)

		gt.V(t, w.Code).Equal(http.StatusInternalServerError)
	})

	t.Run("rejects missing headers", func(t *testing.T) {
		srv, _ := newWebhookServer(t, server.WithGitHubSecret(testWebhookSecret))

		cases := []struct {
			name string
			req  *http.Request
		}{
			{"no signature", newWebhookRequest("pull_request", "delivery-1", body, "")},
			{"no event name", newWebhookRequest("", "delivery-1", body, signBody(testWebhookSecret, body))},
			{"no delivery ID", newWebhookRequest("pull_request", "", body, signBody(testWebhookSecret, body))},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				w := httptest.NewRecorder()
				srv.Mux().ServeHTTP(w, tc.req)
				gt.V(t, w.Code).Equal(http.StatusBadRequest)
			})
		}
	})

	t.Run("rejects invalid signature", func(t *testing.T) {
		srv, _ := newWebhookServer(t, server.WithGitHubSecret(testWebhookSecret))

		req := newWebhookRequest("pull_request", "delivery-1", body, signBody("wrong-secret", body))
		w := httptest.NewRecorder()
		srv.Mux().ServeHTTP(w, req)

		gt.V(t, w.Code).Equal(http.StatusUnauthorized)
	})

	t.Run("rejects tampered body", func(t *testing.T) {
		srv, _ := newWebhookServer(t, server.WithGitHubSecret(testWebhookSecret))

		tampered := []byte(`{"action":"deleted","installation":{"id":5000},"repository":{"id":999}}`)
		req := newWebhookRequest("pull_request", "delivery-1", tampered, signBody(testWebhookSecret, body))
		w := httptest.NewRecorder()
		srv.Mux().ServeHTTP(w, req)

		gt.V(t, w.Code).Equal(http.StatusUnauthorized)
	})

	t.Run("rejects broken JSON with a valid signature", func(t *testing.T) {
		srv, _ := newWebhookServer(t, server.WithGitHubSecret(testWebhookSecret))

		broken := []byte(`{"action":`)
		req := newWebhookRequest("pull_request", "delivery-1", broken, signBody(testWebhookSecret, broken))
		w := httptest.NewRecorder()
		srv.Mux().ServeHTTP(w, req)

		gt.V(t, w.Code).Equal(http.StatusBadRequest)
	})

	t.Run("persists a valid delivery", func(t *testing.T) {
		srv, repo := newWebhookServer(t, server.WithGitHubSecret(testWebhookSecret))

		req := newWebhookRequest("pull_request", "delivery-42", body, signBody(testWebhookSecret, body))
		w := httptest.NewRecorder()
		srv.Mux().ServeHTTP(w, req)

		gt.V(t, w.Code).Equal(http.StatusOK)

		ev, err := repo.GetEvent(ctx, "delivery-42")
		gt.NoError(t, err)
		gt.V(t, ev.Event).Equal("pull_request")
		gt.V(t, ev.Action).Equal("opened")
		gt.V(t, ev.InstallationID).Equal(types.GitHubAppInstallID(5000))
		gt.V(t, ev.RepositoryID).Equal(types.GitHubRepoID(999))
		gt.V(t, ev.State).Equal(model.ProcessStatePending)
		gt.True(t, ev.SignatureValid)
	})

	t.Run("redelivery answers 200 with a single row", func(t *testing.T) {
		srv, repo := newWebhookServer(t, server.WithGitHubSecret(testWebhookSecret))

		for i := 0; i < 2; i++ {
			req := newWebhookRequest("pull_request", "delivery-dup", body, signBody(testWebhookSecret, body))
			w := httptest.NewRecorder()
			srv.Mux().ServeHTTP(w, req)
			gt.V(t, w.Code).Equal(http.StatusOK)
		}

		counts, err := repo.CountEventsByState(ctx)
		gt.NoError(t, err)
		gt.V(t, counts[model.ProcessStatePending]).Equal(1)
	})
}

func TestSyncStatusEndpoint(t *testing.T) {
	srv, repo := newWebhookServer(t)

	created, err := repo.CreateEvent(context.Background(), &model.WebhookEvent{
		DeliveryID: "delivery-status",
		Event:      "push",
		State:      model.ProcessStatePending,
	})
	gt.NoError(t, err)
	gt.True(t, created)

	req := httptest.NewRequest("GET", "/api/sync/status", nil)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)

	gt.V(t, w.Code).Equal(http.StatusOK)
	gt.V(t, w.Header().Get("Content-Type")).Equal("application/json")

	var status model.SyncStatus
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	gt.V(t, status.Events[model.ProcessStatePending]).Equal(1)
}

func TestHealth(t *testing.T) {
	srv, _ := newWebhookServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)

	gt.V(t, w.Code).Equal(http.StatusOK)
	gt.V(t, w.Body.String()).Equal("ok")
}
