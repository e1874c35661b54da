package stream

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeAlertFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirConsumerReplaysInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeAlertFile(t, dir, "002.json", `{"objectId":"ZTF21bbb"}`)
	writeAlertFile(t, dir, "001.json", `{"objectId":"ZTF21aaa"}`)
	writeAlertFile(t, dir, "notes.txt", "ignore me")

	c, err := NewDirConsumer(dir, "ztf_alerts", zerolog.Nop())
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	var ids []string
	for {
		topic, record, err := c.Poll(ctx, time.Second)
		if err == ErrEndOfStream {
			break
		}
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if topic != "ztf_alerts" {
			t.Errorf("topic = %q", topic)
		}
		ids = append(ids, record["objectId"].(string))
	}
	if len(ids) != 2 || ids[0] != "ZTF21aaa" || ids[1] != "ZTF21bbb" {
		t.Fatalf("replay order = %v", ids)
	}
}

func TestDirConsumerPreservesLargeNumbers(t *testing.T) {
	dir := t.TempDir()
	writeAlertFile(t, dir, "a.json", `{"candid":1758405261615015003}`)

	c, err := NewDirConsumer(dir, "t", zerolog.Nop())
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	_, record, err := c.Poll(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	num, ok := record["candid"].(json.Number)
	if !ok {
		t.Fatalf("candid decoded as %T, want json.Number", record["candid"])
	}
	if num.String() != "1758405261615015003" {
		t.Errorf("candid = %s", num)
	}
}

func TestDirConsumerHonorsContext(t *testing.T) {
	dir := t.TempDir()
	writeAlertFile(t, dir, "a.json", `{}`)

	c, err := NewDirConsumer(dir, "t", zerolog.Nop())
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := c.Poll(ctx, time.Second); err != context.Canceled {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestDirConsumerMissingDir(t *testing.T) {
	if _, err := NewDirConsumer(filepath.Join(t.TempDir(), "absent"), "t", zerolog.Nop()); err == nil {
		t.Fatal("want error for missing directory")
	}
}
