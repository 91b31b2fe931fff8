package graphql

import (
	"time"

	"github.com/graphql-go/graphql"

	"github.com/graphgate-io/graphgate/internal/catalog"
	"github.com/graphgate-io/graphgate/internal/cdc"
	"github.com/graphgate-io/graphgate/internal/exec"
)

const healthInterval = 30 * time.Second

// changesField builds the per-table subscription: T_changes streams decoded
// change events from the hub, merged with periodic HEARTBEAT events, for as
// long as the client stays subscribed.
func (b *builder) changesField(t *catalog.Table) *graphql.Field {
	table := t.Name
	schema := t.Schema
	event := b.changeEventObject(t)

	return &graphql.Field{
		Type: event,
		Subscribe: func(p graphql.ResolveParams) (interface{}, error) {
			if b.gen.hub == nil {
				return nil, exec.Subscriptionf("change data capture is disabled")
			}
			sub := b.gen.hub.Subscribe(table)
			ch := make(chan interface{})
			go func() {
				defer close(ch)
				defer sub.Cancel()
				ticker := time.NewTicker(b.gen.heartbeat)
				defer ticker.Stop()
				for {
					var payload map[string]any
					select {
					case <-p.Context.Done():
						return
					case <-ticker.C:
						payload = heartbeatPayload(table, schema)
					case ev, ok := <-sub.C:
						if !ok {
							return
						}
						payload = changePayload(ev)
					}
					select {
					case ch <- payload:
					case <-p.Context.Done():
						return
					}
				}
			}()
			return ch, nil
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return p.Source, nil
		},
	}
}

// changeEventObject builds T_ChangeEvent and its T_SubscriptionData payload.
// The data object mirrors the row; UPDATE payloads add old and new
// self-references.
func (b *builder) changeEventObject(t *catalog.Table) *graphql.Object {
	dataFields := graphql.Fields{}
	for i := range t.Columns {
		col := &t.Columns[i]
		dataFields[col.Name] = &graphql.Field{
			Type:    subscriptionColumnType(col),
			Resolve: mapFieldResolver(col.Name),
		}
	}
	data := graphql.NewObject(graphql.ObjectConfig{
		Name:   t.Name + subDataSuffix,
		Fields: dataFields,
	})
	data.AddFieldConfig("old", &graphql.Field{Type: data, Resolve: mapFieldResolver("old")})
	data.AddFieldConfig("new", &graphql.Field{Type: data, Resolve: mapFieldResolver("new")})

	return graphql.NewObject(graphql.ObjectConfig{
		Name: t.Name + changeSuffix,
		Fields: graphql.Fields{
			"operation": &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: mapFieldResolver("operation")},
			"table":     &graphql.Field{Type: graphql.String, Resolve: mapFieldResolver("table")},
			"schema":    &graphql.Field{Type: graphql.String, Resolve: mapFieldResolver("schema")},
			"timestamp": &graphql.Field{Type: DateTimeScalar, Resolve: mapFieldResolver("timestamp")},
			"lsn":       &graphql.Field{Type: graphql.String, Resolve: mapFieldResolver("lsn")},
			"data":      &graphql.Field{Type: data, Resolve: mapFieldResolver("data")},
			"error":     &graphql.Field{Type: graphql.String, Resolve: mapFieldResolver("error")},
		},
	})
}

// subscriptionColumnType types a change-payload column. Replication tuples
// arrive as text, so structured columns degrade to JSON rather than the
// fully typed object used on query paths.
func subscriptionColumnType(col *catalog.Column) graphql.Output {
	if col.IsArray() || col.OriginalType == catalog.OriginalComposite {
		return JSONScalar
	}
	if col.OriginalType == catalog.OriginalEnum {
		return graphql.String
	}
	return scalarForPostgresType(col.Type)
}

// heartbeatPayload is the keepalive event merged into every table change
// stream. It carries no row data.
func heartbeatPayload(table, schema string) map[string]any {
	return map[string]any{
		"operation": string(cdc.OpHeartbeat),
		"table":     table,
		"schema":    schema,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// changePayload shapes one hub event into the T_ChangeEvent source map.
func changePayload(ev cdc.Event) map[string]any {
	payload := map[string]any{
		"operation": string(ev.Operation),
		"table":     ev.Table,
		"schema":    ev.Schema,
		"timestamp": ev.Timestamp.Format(time.RFC3339Nano),
		"lsn":       ev.LSN.String(),
	}
	if ev.Err != nil {
		payload["error"] = ev.Err.Error()
		return payload
	}

	var data map[string]any
	switch ev.Operation {
	case cdc.OpDelete:
		data = copyRow(ev.Old)
	default:
		data = copyRow(ev.New)
	}
	if ev.Operation == cdc.OpUpdate {
		if data == nil {
			data = map[string]any{}
		}
		data["old"] = ev.Old
		data["new"] = ev.New
	}
	if data != nil {
		payload["data"] = data
	}
	return payload
}

func copyRow(row map[string]any) map[string]any {
	if row == nil {
		return nil
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// healthSubscription emits a heartbeat marker immediately and then on a
// fixed interval until the client goes away.
func (b *builder) healthSubscription() *graphql.Field {
	return &graphql.Field{
		Type: graphql.String,
		Subscribe: func(p graphql.ResolveParams) (interface{}, error) {
			ch := make(chan interface{}, 1)
			ch <- "ok"
			go func() {
				ticker := time.NewTicker(healthInterval)
				defer ticker.Stop()
				defer close(ch)
				for {
					select {
					case <-p.Context.Done():
						return
					case <-ticker.C:
						select {
						case ch <- "ok":
						case <-p.Context.Done():
							return
						}
					}
				}
			}()
			return ch, nil
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return p.Source, nil
		},
	}
}
