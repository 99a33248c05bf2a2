package devtransport

import (
	"context"
	"testing"

	"github.com/marmos91/mapperd/pkg/blocker"
	"github.com/marmos91/mapperd/pkg/blocker/devstore/memblob"
)

func TestTransport_WriteThenRead(t *testing.T) {
	tr := New(memblob.New())
	ctx := context.Background()

	_, err := tr.Submit(ctx, 0, &blocker.Request{Op: blocker.OpWrite, Target: "obj", Payload: []byte("hello")})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	reply, err := tr.Submit(ctx, 0, &blocker.Request{Op: blocker.OpRead, Target: "obj", Offset: 0, Size: 5})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.Status != blocker.StatusServed {
		t.Fatalf("expected served, got %v: %v", reply.Status, reply.Err)
	}
	if string(reply.Data) != "hello" {
		t.Errorf("expected %q, got %q", "hello", reply.Data)
	}
}

func TestTransport_WritePatchesInPlace(t *testing.T) {
	tr := New(memblob.New())

	mustSubmit(t, tr, &blocker.Request{Op: blocker.OpWrite, Target: "obj", Payload: []byte("0123456789")})
	mustSubmit(t, tr, &blocker.Request{Op: blocker.OpWrite, Target: "obj", Offset: 2, Payload: []byte("XY")})

	reply := mustSubmit(t, tr, &blocker.Request{Op: blocker.OpRead, Target: "obj", Offset: 0, Size: 10})
	if string(reply.Data) != "01XY456789" {
		t.Errorf("expected patched data, got %q", reply.Data)
	}
}

func TestTransport_CopyDuplicatesBytes(t *testing.T) {
	tr := New(memblob.New())
	ctx := context.Background()

	mustSubmit(t, tr, &blocker.Request{Op: blocker.OpWrite, Target: "src", Payload: []byte("payload")})
	mustSubmit(t, tr, &blocker.Request{Op: blocker.OpCopy, Target: "dst", Payload: []byte("src")})

	reply := mustSubmit(t, tr, &blocker.Request{Op: blocker.OpRead, Target: "dst", Size: 7})
	if string(reply.Data) != "payload" {
		t.Errorf("expected copied payload, got %q", reply.Data)
	}
	_ = ctx
}

func TestTransport_SnapshotMintsFreshName(t *testing.T) {
	tr := New(memblob.New())

	mustSubmit(t, tr, &blocker.Request{Op: blocker.OpWrite, Target: "obj", Payload: []byte("snap me")})
	reply := mustSubmit(t, tr, &blocker.Request{Op: blocker.OpSnapshot, Target: "obj"})

	if reply.Target == "" || reply.Target == "obj" {
		t.Errorf("expected a fresh non-empty name, got %q", reply.Target)
	}

	read := mustSubmit(t, tr, &blocker.Request{Op: blocker.OpRead, Target: reply.Target, Size: 7})
	if string(read.Data) != "snap me" {
		t.Errorf("expected snapshot to carry over source bytes, got %q", read.Data)
	}
}

func TestTransport_DeleteRemovesObject(t *testing.T) {
	tr := New(memblob.New())

	mustSubmit(t, tr, &blocker.Request{Op: blocker.OpWrite, Target: "obj", Payload: []byte("x")})
	mustSubmit(t, tr, &blocker.Request{Op: blocker.OpDelete, Target: "obj"})

	reply := mustSubmit(t, tr, &blocker.Request{Op: blocker.OpRead, Target: "obj"})
	if reply.Status != blocker.StatusFailed {
		t.Error("expected read of deleted object to fail")
	}
}

func TestTransport_AcquireConflict(t *testing.T) {
	tr := New(memblob.New())

	ok := mustSubmit(t, tr, &blocker.Request{Op: blocker.OpAcquire, Target: "vol"})
	if ok.Status != blocker.StatusServed {
		t.Fatal("expected first acquire to succeed")
	}

	reply, err := tr.Submit(context.Background(), 0, &blocker.Request{Op: blocker.OpAcquire, Target: "vol"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if reply.Status != blocker.StatusFailed {
		t.Error("expected second acquire without FORCE to fail")
	}

	mustSubmit(t, tr, &blocker.Request{Op: blocker.OpRelease, Target: "vol"})
	reacquire := mustSubmit(t, tr, &blocker.Request{Op: blocker.OpAcquire, Target: "vol"})
	if reacquire.Status != blocker.StatusServed {
		t.Error("expected acquire after release to succeed")
	}
}

func TestTransport_AcquireForceOverridesHeld(t *testing.T) {
	tr := New(memblob.New())

	mustSubmit(t, tr, &blocker.Request{Op: blocker.OpAcquire, Target: "vol"})
	reply := mustSubmit(t, tr, &blocker.Request{Op: blocker.OpAcquire, Target: "vol", Flags: blocker.FlagForce})
	if reply.Status != blocker.StatusServed {
		t.Error("expected forced acquire to succeed despite existing lease")
	}
}

func mustSubmit(t *testing.T, tr *Transport, req *blocker.Request) *blocker.Reply {
	t.Helper()
	reply, err := tr.Submit(context.Background(), 0, req)
	if err != nil {
		t.Fatalf("submit %v: %v", req.Op, err)
	}
	return reply
}
