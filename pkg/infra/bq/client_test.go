package bq

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/bqs"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/utils/testutil"
)

func TestProtoFieldJSONName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "keeps valid names",
			input: "DeliveryID",
			want:  "DeliveryID",
		},
		{
			name:  "renames invalid names",
			input: "x-github-delivery",
			want:  "col_eC1naXRodWItZGVsaXZlcnk",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gt.V(t, protoFieldJSONName(tc.input)).Equal(tc.want)
		})
	}
}

func TestSanitizeProtoJSON(t *testing.T) {
	raw := []byte(`{"Labels":{"good-first-issue":1,"bug":2}}`)
	sanitized := gt.R1(sanitizeProtoJSON(raw)).NoError(t)

	dec := json.NewDecoder(bytes.NewReader(sanitized))
	dec.UseNumber()
	payload := map[string]any{}
	gt.NoError(t, dec.Decode(&payload))

	labels, ok := payload["Labels"].(map[string]any)
	if !ok {
		t.Fatalf("Labels not found in %v", payload)
	}

	renamed := protoFieldJSONName("good-first-issue")
	if _, ok := labels[renamed]; !ok {
		t.Fatalf("sanitized key %s not found: %+v", renamed, labels)
	}
	if _, ok := labels["good-first-issue"]; ok {
		t.Fatalf("unexpected original key remains: %+v", labels)
	}
}

func TestClient(t *testing.T) {
	projectID := testutil.GetEnvOrSkip(t, "TEST_BIGQUERY_PROJECT_ID")
	datasetID := testutil.GetEnvOrSkip(t, "TEST_BIGQUERY_DATASET_ID")

	ctx := context.Background()

	tblName := types.BQTableID(time.Now().Format("insert_test_20060102_150405"))
	client, err := New(ctx, types.GoogleProjectID(projectID), types.BQDatasetID(datasetID), tblName)
	gt.NoError(t, err)

	type auditRow struct {
		DeliveryID string
		Event      string
		ReceivedAt int64
	}

	var baseSchema bigquery.Schema

	t.Run("create base table", func(t *testing.T) {
		var row auditRow
		baseSchema = gt.R1(bqs.Infer(row)).NoError(t)

		gt.NoError(t, client.CreateTable(ctx, &bigquery.TableMetadata{
			Name:   tblName.String(),
			Schema: baseSchema,
		}))
	})

	t.Run("insert record", func(t *testing.T) {
		row := auditRow{
			DeliveryID: "delivery-1",
			Event:      "push",
			ReceivedAt: time.Now().UnixMicro(),
		}
		gt.NoError(t, client.Insert(ctx, baseSchema, row))
	})

	t.Run("GetMetadata on non-existent table returns nil", func(t *testing.T) {
		missing, err := New(ctx, types.GoogleProjectID(projectID), types.BQDatasetID(datasetID), "non_existent_table_999999")
		gt.NoError(t, err)

		md, err := missing.GetMetadata(ctx)
		gt.NoError(t, err)
		gt.V(t, md).Equal(nil)
	})
}
