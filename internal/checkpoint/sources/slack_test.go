package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/slack-go/slack"

	"github.com/haasonsaas/overseer/pkg/models"
)

type fakeHistoryAPI struct {
	resp   *slack.GetConversationHistoryResponse
	err    error
	gotReq *slack.GetConversationHistoryParameters
}

func (f *fakeHistoryAPI) GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	f.gotReq = params
	return f.resp, f.err
}

func TestSlackSourceFetch(t *testing.T) {
	fake := &fakeHistoryAPI{
		resp: &slack.GetConversationHistoryResponse{
			Messages: []slack.Message{
				{Msg: slack.Msg{Text: "@overseer deploy please", User: "U1", Timestamp: "1756000000.000100"}},
				{Msg: slack.Msg{Text: "morning", User: "U2", Timestamp: "1756000100.000200"}},
			},
		},
	}
	source := newSlackSource(fake, "C123", 25)

	data, err := source.Fetch(context.Background(), map[string]any{"oldest": "1755999999.000000"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(data) != 2 {
		t.Fatalf("data = %d, want 2", len(data))
	}
	if fake.gotReq.ChannelID != "C123" || fake.gotReq.Limit != 25 || fake.gotReq.Oldest != "1755999999.000000" {
		t.Errorf("request = %+v", fake.gotReq)
	}

	first := data[0]
	if first.Type != models.DatumChatMessage {
		t.Errorf("type = %s", first.Type)
	}
	if first.ID != "C123:1756000000.000100" {
		t.Errorf("id = %s", first.ID)
	}
	if first.Payload["text"] != "@overseer deploy please" || first.Payload["user"] != "U1" {
		t.Errorf("payload = %+v", first.Payload)
	}
	if first.Timestamp.IsZero() {
		t.Error("timestamp not parsed")
	}
}

func TestSlackSourceFetchError(t *testing.T) {
	source := newSlackSource(&fakeHistoryAPI{err: errors.New("rate_limited")}, "C123", 0)
	if _, err := source.Fetch(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestMemorySourceAddAndDrain(t *testing.T) {
	source := NewMemorySource()
	source.Add(models.MonitoringDatum{ID: "1"}, models.MonitoringDatum{ID: "2"})

	data, err := source.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(data) != 2 {
		t.Fatalf("data = %d, want 2", len(data))
	}

	drained := source.Drain()
	if len(drained) != 2 {
		t.Fatalf("drained = %d, want 2", len(drained))
	}
	if after, _ := source.Fetch(context.Background(), nil); len(after) != 0 {
		t.Errorf("buffer not cleared: %d items", len(after))
	}
}
