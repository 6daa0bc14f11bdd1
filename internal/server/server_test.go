package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atlekbai/lksql/internal/server"
)

const procedure = "/test.v1.PanicService/Explode"

type panicService struct{}

func (panicService) RegisterHandler(interceptors ...connect.Interceptor) (string, http.Handler) {
	h := connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
			if req.Msg.AsMap()["boom"] == true {
				panic("boom")
			}
			return connect.NewResponse(req.Msg), nil
		},
		connect.WithInterceptors(interceptors...),
	)
	return procedure, h
}

func TestInterceptors(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	mux := server.NewMux([]server.ConnectService{panicService{}},
		server.RecoverInterceptor(logger),
		server.LoggingInterceptor(logger),
	)
	srv := httptest.NewServer(mux)
	defer srv.Close()
	client := connect.NewClient[structpb.Struct, structpb.Struct](srv.Client(), srv.URL+procedure)

	msg, err := structpb.NewStruct(map[string]any{"boom": false})
	require.NoError(t, err)
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(msg))
	require.NoError(t, err)
	assert.Equal(t, false, resp.Msg.AsMap()["boom"])

	msg, err = structpb.NewStruct(map[string]any{"boom": true})
	require.NoError(t, err)
	_, err = client.CallUnary(context.Background(), connect.NewRequest(msg))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInternal, connect.CodeOf(err))

	var records []map[string]any
	dec := json.NewDecoder(&logs)
	for dec.More() {
		var rec map[string]any
		require.NoError(t, dec.Decode(&rec))
		records = append(records, rec)
	}
	require.Len(t, records, 2)
	assert.Equal(t, "rpc", records[0]["msg"])
	assert.Equal(t, procedure, records[0]["procedure"])
	assert.Equal(t, "rpc panic", records[1]["msg"])
	assert.Equal(t, "ERROR", records[1]["level"])
}
