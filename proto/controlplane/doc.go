// Package controlplane holds the control-plane snapshot's wire-schema
// types, defined in controlplane.proto.
//
// This package's types are hand-authored plain Go structs rather than
// protoc output: the teacher doesn't commit
// generated code either (its proto/kernel and proto/ai are doc.go
// placeholders pointing at `make proto`), and fabricating
// protoreflect-backed message types by hand here would be indistinguishable
// from faking a code generator. messages.go is therefore the wire schema
// directly, JSON-tagged for transport and carrying one genuine
// google.golang.org/protobuf type (timestamppb.Timestamp) where the schema
// calls for a timestamp.
//
// Regenerate nothing: controlplane.proto is kept in sync by hand with
// messages.go. One shape differs: messages.go groups each top-level
// collection's id list and entity map into one IDList value, where
// controlplane.proto declares them as two sibling fields.
package controlplane
