package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

type upload struct {
	path        string
	body        []byte
	contentType string
	multipart   bool
}

type fakeWriter struct {
	uploads []upload
	err     error
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, _ := io.ReadAll(data)
	f.uploads = append(f.uploads, upload{path: path, body: b, contentType: contentType})
	return f.err
}

func (f *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	b, _ := io.ReadAll(data)
	f.uploads = append(f.uploads, upload{path: path, body: b, multipart: true})
	return f.err
}

func alert(hash string, label *string) domain.AlertRecord {
	return domain.AlertRecord{
		Type:   domain.AlertType,
		RuleID: "r1",
		Data: domain.AlertData{
			Chain:     "ethereum",
			TxHash:    hash,
			Direction: domain.DirectionOut,
			ToLabel:   label,
		},
	}
}

func TestArchiveAlertsWritesJSONL(t *testing.T) {
	fw := &fakeWriter{}
	a := NewAlertArchiver(fw)
	w := domain.Window{Chain: "ethereum", StartBlock: 100, EndBlock: 109}
	label := "Binance <hot>"

	err := a.ArchiveAlerts(context.Background(), w, "r1", []domain.AlertRecord{alert("0x01", &label), alert("0x02", nil)})
	if err != nil {
		t.Fatal(err)
	}
	if len(fw.uploads) != 1 {
		t.Fatalf("uploads = %d", len(fw.uploads))
	}
	up := fw.uploads[0]
	if up.path != "alerts/ethereum/r1/100-109.jsonl" || up.contentType != jsonlContentType || up.multipart {
		t.Fatalf("upload = %s %s %v", up.path, up.contentType, up.multipart)
	}
	if !bytes.Contains(up.body, []byte("Binance <hot>")) {
		t.Fatalf("html escaped: %s", up.body)
	}

	sc := bufio.NewScanner(bytes.NewReader(up.body))
	var hashes []string
	for sc.Scan() {
		var rec domain.AlertRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatal(err)
		}
		hashes = append(hashes, rec.Data.TxHash)
	}
	if strings.Join(hashes, ",") != "0x01,0x02" {
		t.Fatalf("hashes = %v", hashes)
	}
}

func TestArchiveAlertsLargeBatchUsesMultipart(t *testing.T) {
	fw := &fakeWriter{}
	a := NewAlertArchiver(fw)
	big := strings.Repeat("x", int(MinPartSize))
	err := a.ArchiveAlerts(context.Background(), domain.Window{Chain: "bsc"}, "r9", []domain.AlertRecord{alert("0x01", &big)})
	if err != nil {
		t.Fatal(err)
	}
	if !fw.uploads[0].multipart {
		t.Fatal("expected multipart upload")
	}
}

func TestArchiveAlertsEmptyAndErrors(t *testing.T) {
	fw := &fakeWriter{err: errors.New("denied")}
	a := NewAlertArchiver(fw)
	if err := a.ArchiveAlerts(context.Background(), domain.Window{}, "r1", nil); err != nil || len(fw.uploads) != 0 {
		t.Fatalf("empty batch: err = %v uploads = %d", err, len(fw.uploads))
	}
	if err := a.ArchiveAlerts(context.Background(), domain.Window{Chain: "ethereum"}, "r1", []domain.AlertRecord{alert("0x01", nil)}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		ssl  bool
		want string
	}{
		{"minio:9000", false, "http://minio:9000"},
		{"e2.idrivee2.com", true, "https://e2.idrivee2.com"},
		{"https://r2.example.com", false, "https://r2.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.ssl); got != tt.want {
			t.Errorf("normaliseEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
