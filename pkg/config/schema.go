// The config file schema mirrors the command line flags. It is described here with descriptor protos instead of a
// generated package: each leaf field maps to exactly one flag, and nested messages only group related flags.
//
//	server  { address: ":6380" metrics_address: ":9090" }
//	cache   { enabled: true bounded: true policy: "lfu" capacity: 128 shard_count: 4 discard_output: "stdout" }
//	logging { handler_type: "text" level: "debug" output: "stderr" }
//	dataset { file: "names.csv" }

package config

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const schemaPackage = "evicache.config"

// configField is one leaf of the config schema.
type configField struct {
	name     string
	kind     descriptorpb.FieldDescriptorProto_Type
	flagName string
}

// configSection is one nested message of the config schema.
type configSection struct {
	field   string // Field name inside the root Config message.
	message string // Message name.
	fields  []configField
}

var configSections = []configSection{
	{field: "server", message: "Server", fields: []configField{
		{name: "address", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flagName: "address"},
		{name: "metrics_address", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flagName: "metrics_address"},
	}},
	{field: "cache", message: "Cache", fields: []configField{
		{name: "enabled", kind: descriptorpb.FieldDescriptorProto_TYPE_BOOL, flagName: "cache_enabled"},
		{name: "bounded", kind: descriptorpb.FieldDescriptorProto_TYPE_BOOL, flagName: "cache_bounded"},
		{name: "policy", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flagName: "cache_policy"},
		{name: "capacity", kind: descriptorpb.FieldDescriptorProto_TYPE_INT32, flagName: "cache_capacity"},
		{name: "shard_count", kind: descriptorpb.FieldDescriptorProto_TYPE_INT32, flagName: "cache_shard_count"},
		{name: "discard_output", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flagName: "discard_output"},
	}},
	{field: "logging", message: "Logging", fields: []configField{
		{name: "handler_type", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flagName: "log_handler_type"},
		{name: "level", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flagName: "log_level"},
		{name: "output", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flagName: "log_output"},
	}},
	{field: "dataset", message: "Dataset", fields: []configField{
		{name: "file", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flagName: "dataset_file"},
	}},
}

var (
	// configDescriptor describes the root Config message.
	configDescriptor protoreflect.MessageDescriptor
	// flagNames maps every leaf field of the schema to its command line flag.
	flagNames map[protoreflect.FullName] /*flagName*/ string
)

func init() {
	descriptor, names, err := buildConfigDescriptor(configSections)
	if err != nil {
		panic(fmt.Sprintf("invalid config schema: %v", err))
	}
	configDescriptor, flagNames = descriptor, names
}

// buildConfigDescriptor turns the given sections into a proto2 Config message; proto2 keeps field presence, so a
// config file can set a flag to its zero value.
func buildConfigDescriptor(sections []configSection) (protoreflect.MessageDescriptor, map[protoreflect.FullName]string, error) {
	root := &descriptorpb.DescriptorProto{Name: proto.String("Config")}
	messages := []*descriptorpb.DescriptorProto{root}
	names := make(map[protoreflect.FullName]string)
	seenFlags := make(map[string]protoreflect.FullName)

	for sectionIdx, section := range sections {
		message := &descriptorpb.DescriptorProto{Name: proto.String(section.message)}
		for fieldIdx, field := range section.fields {
			message.Field = append(message.Field, &descriptorpb.FieldDescriptorProto{
				Name:   proto.String(field.name),
				Number: proto.Int32(int32(fieldIdx + 1)),
				Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
				Type:   field.kind.Enum(),
			})
			fullName := protoreflect.FullName(schemaPackage + "." + section.message + "." + field.name)
			if previous, exists := seenFlags[field.flagName]; exists {
				return nil, nil, fmt.Errorf("duplicate flag name '%s' in config: %s and %s",
					field.flagName, previous, fullName)
			}
			seenFlags[field.flagName] = fullName
			names[fullName] = field.flagName
		}
		messages = append(messages, message)
		root.Field = append(root.Field, &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(section.field),
			Number:   proto.Int32(int32(sectionIdx + 1)),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
			TypeName: proto.String("." + schemaPackage + "." + section.message),
		})
	}

	file, err := protodesc.NewFile(&descriptorpb.FileDescriptorProto{
		Name:        proto.String("evicache/config.proto"),
		Package:     proto.String(schemaPackage),
		Syntax:      proto.String("proto2"),
		MessageType: messages,
	}, nil /*resolver*/)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build config descriptor: %w", err)
	}
	return file.Messages().ByName("Config"), names, nil
}

// newConfig returns an empty Config message.
func newConfig() *dynamicpb.Message {
	return dynamicpb.NewMessage(configDescriptor)
}
