package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// AlertArchiver writes each rule's alert batch for a window as one JSONL
// object:
//
//	alerts/<chain>/<rule_id>/<start_block>-<end_block>.jsonl
//
// Batches above MinPartSize go through a multipart upload. Re-archiving the
// same window overwrites the object.
type AlertArchiver struct {
	writer domain.BlobWriter
}

// NewAlertArchiver creates an AlertArchiver on top of writer.
func NewAlertArchiver(writer domain.BlobWriter) *AlertArchiver {
	return &AlertArchiver{writer: writer}
}

// ArchiveAlerts uploads records. An empty batch writes nothing.
func (a *AlertArchiver) ArchiveAlerts(ctx context.Context, w domain.Window, ruleID string, records []domain.AlertRecord) error {
	if len(records) == 0 {
		return nil
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: encode alerts of %s: %w", ruleID, err)
	}

	path := alertPath(w, ruleID)
	if int64(len(buf)) > MinPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), MinPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive alerts of %s: %w", ruleID, err)
	}
	return nil
}

func alertPath(w domain.Window, ruleID string) string {
	return fmt.Sprintf("alerts/%s/%s/%d-%d.jsonl", w.Chain, ruleID, w.StartBlock, w.EndBlock)
}

// marshalJSONL encodes one compact JSON value per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.AlertArchiver = (*AlertArchiver)(nil)
