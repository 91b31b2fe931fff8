package graphql

import (
	"context"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphgate-io/graphgate/internal/cdc"
)

func subscribeChanges(t *testing.T, ctx context.Context, hub *cdc.Hub, heartbeat time.Duration) chan *graphql.Result {
	t.Helper()
	gen := NewGenerator(&fakeReader{}, fakeWriter{}, hub, heartbeat)
	schema, err := gen.Generate(shopCatalog(), nil)
	require.NoError(t, err)

	return graphql.Subscribe(graphql.Params{
		Schema:        *schema,
		RequestString: `subscription { customer_changes { operation table data { id } } }`,
		Context:       ctx,
	})
}

func changeResult(t *testing.T, result *graphql.Result) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.Empty(t, result.Errors)
	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	ev, ok := data["customer_changes"].(map[string]interface{})
	require.True(t, ok)
	return ev
}

func TestChangesSubscriptionEmitsHeartbeat(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := cdc.NewHub(8)
	results := subscribeChanges(t, ctx, hub, 10*time.Millisecond)

	// Nothing published: the first event on the stream is a heartbeat.
	ev := changeResult(t, <-results)
	assert.Equal(t, "HEARTBEAT", ev["operation"])
	assert.Equal(t, "customer", ev["table"])
	assert.Nil(t, ev["data"])
}

func TestChangesSubscriptionDeliversPublishedEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := cdc.NewHub(8)
	results := subscribeChanges(t, ctx, hub, 10*time.Millisecond)

	// Publishing retries until the stream goroutine has registered.
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hub.Publish(cdc.Event{
					Operation: cdc.OpInsert,
					Schema:    "public",
					Table:     "customer",
					Timestamp: time.Now(),
					New:       map[string]any{"id": 7},
				})
			}
		}
	}()

	for result := range results {
		ev := changeResult(t, result)
		if ev["operation"] == "HEARTBEAT" {
			continue
		}
		assert.Equal(t, "INSERT", ev["operation"])
		row, ok := ev["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, 7, row["id"])
		return
	}
	t.Fatal("stream closed without delivering the published event")
}
