package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/go-github/v53/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/utils/errutil"
)

// maxWebhookBody bounds the request body read; GitHub caps webhook
// payloads at 25MB.
const maxWebhookBody = 25 << 20

// webhookMetadata is the shallow extraction from the payload. The full
// payload is persisted verbatim; deep parsing happens in the processor.
type webhookMetadata struct {
	Action       string `json:"action"`
	Installation struct {
		ID int64 `json:"id"`
	} `json:"installation"`
	Repository struct {
		ID int64 `json:"id"`
	} `json:"repository"`
}

// handleGitHubWebhook verifies and persists one delivery. The response
// is sent after the event row exists; processing is decoupled. A
// duplicate delivery answers 200 without writing a second row.
func handleGitHubWebhook(uc interfaces.UseCase, secret types.GitHubAppSecret, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if secret == "" {
		errutil.HandleError(ctx, "webhook received but secret is not configured", types.ErrConfigMissing)
		safeWrite(w, http.StatusInternalServerError, []byte(`{"error":"webhook secret not configured"}`))
		return
	}

	signature := r.Header.Get(github.SHA256SignatureHeader)
	eventName := r.Header.Get(github.EventTypeHeader)
	deliveryID := r.Header.Get(github.DeliveryIDHeader)
	if signature == "" || eventName == "" || deliveryID == "" {
		safeWrite(w, http.StatusBadRequest, []byte(`{"error":"missing webhook headers"}`))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		safeWrite(w, http.StatusBadRequest, []byte(`{"error":"failed to read body"}`))
		return
	}

	if err := github.ValidateSignature(signature, body, []byte(secret)); err != nil {
		errutil.HandleError(ctx, "webhook signature validation failed",
			goerr.Wrap(err, "invalid signature", goerr.V("deliveryID", deliveryID)),
		)
		safeWrite(w, http.StatusUnauthorized, []byte(`{"error":"invalid signature"}`))
		return
	}

	var meta webhookMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		safeWrite(w, http.StatusBadRequest, []byte(`{"error":"invalid JSON body"}`))
		return
	}

	ev := &model.WebhookEvent{
		DeliveryID:     types.DeliveryID(deliveryID),
		Event:          eventName,
		Action:         meta.Action,
		InstallationID: types.GitHubAppInstallID(meta.Installation.ID),
		RepositoryID:   types.GitHubRepoID(meta.Repository.ID),
		SignatureValid: true,
		Payload:        body,
	}

	if err := uc.IngestWebhookEvent(ctx, ev); err != nil {
		errutil.HandleError(ctx, "fail to ingest webhook event", err)
		safeWrite(w, http.StatusInternalServerError, []byte(`{"error":"failed to persist event"}`))
		return
	}

	safeWrite(w, http.StatusOK, []byte(`{"status":"ok"}`))
}
