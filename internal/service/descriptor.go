package service

import (
	"fmt"

	"google.golang.org/genproto/googleapis/api/annotations"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// REST routes transcoded onto the RPCs.
const (
	CompileRoute      = "/v1/compile"
	CompileBatchRoute = "/v1/compile:batch"
)

// CompileServiceDescriptor describes lksql.v1.CompileService. Both methods
// take and return google.protobuf.Struct; the google.api.http rules let a
// transcoder serve them as REST.
var CompileServiceDescriptor protoreflect.ServiceDescriptor

func init() {
	sd, err := registerCompileService(protoregistry.GlobalFiles)
	if err != nil {
		panic(err)
	}
	CompileServiceDescriptor = sd
}

func httpPost(path string) *descriptorpb.MethodOptions {
	opts := &descriptorpb.MethodOptions{}
	proto.SetExtension(opts, annotations.E_Http, &annotations.HttpRule{
		Pattern: &annotations.HttpRule_Post{Post: path},
		Body:    "*",
	})
	return opts
}

func registerCompileService(files *protoregistry.Files) (protoreflect.ServiceDescriptor, error) {
	const structType = ".google.protobuf.Struct"
	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String("lksql/v1/compile.proto"),
		Package:    proto.String("lksql.v1"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"google/api/annotations.proto", "google/protobuf/struct.proto"},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("CompileService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				{
					Name:       proto.String("Compile"),
					InputType:  proto.String(structType),
					OutputType: proto.String(structType),
					Options:    httpPost(CompileRoute),
				},
				{
					Name:       proto.String("CompileBatch"),
					InputType:  proto.String(structType),
					OutputType: proto.String(structType),
					Options:    httpPost(CompileBatchRoute),
				},
			},
		}},
	}

	fd, err := protodesc.NewFile(fdp, files)
	if err != nil {
		return nil, fmt.Errorf("compile service descriptor: %w", err)
	}
	if err := files.RegisterFile(fd); err != nil {
		return nil, fmt.Errorf("register compile service: %w", err)
	}
	sd := fd.Services().ByName("CompileService")
	if sd == nil || string(sd.FullName()) != CompileServiceName {
		return nil, fmt.Errorf("compile service descriptor: %s not found", CompileServiceName)
	}
	return sd, nil
}
