package inbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func newTestGmail(t *testing.T, handler http.HandlerFunc) *gmail.Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithoutAuthentication(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return svc
}

func encoded(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestConvertMessage(t *testing.T) {
	raw := &gmail.Message{
		Id:           "abc",
		Snippet:      "Your statement is ready",
		InternalDate: 1709373600000,
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Power Co <billing@power.example>"},
				{Name: "SUBJECT", Value: "March bill"},
				{Name: "To", Value: "me@example.com"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encoded("<p>html</p>")}},
				{MimeType: "text/plain; charset=utf-8", Body: &gmail.MessagePartBody{Data: encoded("Amount due: $84.20")}},
			},
		},
	}

	msg := ConvertMessage(raw)
	assert.Equal(t, "abc", msg.ID)
	assert.Equal(t, "Power Co <billing@power.example>", msg.From)
	assert.Equal(t, "March bill", msg.Subject)
	assert.Equal(t, "Your statement is ready", msg.Snippet)
	assert.Equal(t, "Amount due: $84.20", msg.Body)
	assert.Equal(t, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), msg.Date)
}

func TestConvertMessage_NestedAndUnpadded(t *testing.T) {
	raw := &gmail.Message{
		Id: "nested",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmail.MessagePart{{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{{
					MimeType: "text/plain",
					Body:     &gmail.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString([]byte("hi"))},
				}},
			}},
		},
	}

	msg := ConvertMessage(raw)
	assert.Equal(t, "hi", msg.Body)
	assert.True(t, msg.Date.IsZero())
}

func TestConvertMessage_NoPayload(t *testing.T) {
	msg := ConvertMessage(&gmail.Message{Id: "bare", Snippet: "s"})
	assert.Equal(t, "bare", msg.ID)
	assert.Empty(t, msg.Body)
}

func TestGmailSource_Fetch(t *testing.T) {
	var queries []string
	svc := newTestGmail(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			queries = append(queries, r.URL.Query().Get("q"))
			if r.URL.Query().Get("pageToken") == "" {
				_, _ = fmt.Fprint(w, `{"messages":[{"id":"m1"},{"id":"m2"}],"nextPageToken":"p2"}`)
				return
			}
			_, _ = fmt.Fprint(w, `{"messages":[{"id":"m3"}]}`)
		case strings.HasSuffix(r.URL.Path, "/messages/m2"):
			http.Error(w, `{"error":{"code":500,"message":"boom"}}`, http.StatusInternalServerError)
		case strings.Contains(r.URL.Path, "/messages/"):
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			_, _ = fmt.Fprintf(w, `{"id":%q,"snippet":"snip %s","internalDate":"1709373600000",
				"payload":{"mimeType":"text/plain","headers":[{"name":"Subject","value":"bill %s"}],
				"body":{"data":%q}}}`, id, id, id, encoded("body "+id))
		default:
			http.NotFound(w, r)
		}
	})

	src := NewGmailSource(svc, GmailOptions{Query: "newer_than:7d"}, nil)
	msgs, err := src.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "bill m1", msgs[0].Subject)
	assert.Equal(t, "body m1", msgs[0].Body)
	assert.Equal(t, "m3", msgs[1].ID)
	assert.Equal(t, []string{"newer_than:7d", "newer_than:7d"}, queries)
}

func TestGmailSource_MaxResults(t *testing.T) {
	pages := 0
	svc := newTestGmail(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/users/me/messages") {
			pages++
			_, _ = fmt.Fprint(w, `{"messages":[{"id":"a"},{"id":"b"},{"id":"c"}],"nextPageToken":"more"}`)
			return
		}
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		_, _ = fmt.Fprintf(w, `{"id":%q}`, id)
	})

	msgs, err := NewGmailSource(svc, GmailOptions{MaxResults: 2}, nil).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[1].ID)
	assert.Equal(t, 1, pages)
}

func TestGmailSource_ListError(t *testing.T) {
	svc := newTestGmail(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	})

	_, err := NewGmailSource(svc, GmailOptions{}, nil).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list gmail messages")
}
