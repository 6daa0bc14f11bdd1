package server

import (
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"connectrpc.com/vanguard"
)

// ConnectService is implemented by each service to register its connect handler.
type ConnectService interface {
	RegisterHandler(interceptors ...connect.Interceptor) (string, http.Handler)
}

// NewMux mounts every service under the path it registers.
func NewMux(services []ConnectService, interceptors ...connect.Interceptor) *http.ServeMux {
	mux := http.NewServeMux()
	for _, svc := range services {
		path, handler := svc.RegisterHandler(interceptors...)
		mux.Handle(path, handler)
	}
	return mux
}

// NewTranscoder mounts every service behind a vanguard transcoder, which
// serves Connect, gRPC and the REST routes of their google.api.http rules.
func NewTranscoder(services []ConnectService, interceptors ...connect.Interceptor) (*vanguard.Transcoder, error) {
	vanguardServices := make([]*vanguard.Service, len(services))
	for i, svc := range services {
		path, handler := svc.RegisterHandler(interceptors...)
		vanguardServices[i] = vanguard.NewService(path, handler)
	}
	transcoder, err := vanguard.NewTranscoder(vanguardServices)
	if err != nil {
		return nil, fmt.Errorf("vanguard transcoder: %w", err)
	}
	return transcoder, nil
}
