package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"veilchat/internal/domain/chat"
	"veilchat/internal/repository"
	"veilchat/internal/services"
	veilchat_errors "veilchat/pkg/errors"
)

func setupChatService(t *testing.T) *services.ChatService {
	t.Helper()
	return services.NewChatService(repository.NewChatRepository(openTestDB(t)), testDBTimeout)
}

func TestConnectPairwise(t *testing.T) {
	svc := setupChatService(t)
	alice, bob := uuid.New(), uuid.New()

	conn, err := svc.Connect(context.Background(), alice, bob)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if conn.UserID != alice || conn.ConnectedUserID != bob {
		t.Fatalf("unexpected connection: %+v", conn)
	}

	// The pair already exists, in either direction.
	if _, err := svc.Connect(context.Background(), alice, bob); !errors.Is(err, veilchat_errors.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate pair, got %v", err)
	}
	if _, err := svc.Connect(context.Background(), bob, alice); !errors.Is(err, veilchat_errors.ErrConflict) {
		t.Fatalf("expected ErrConflict for reversed pair, got %v", err)
	}

	if _, err := svc.Connect(context.Background(), alice, alice); !errors.Is(err, veilchat_errors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for self-connection, got %v", err)
	}
}

func TestRemoveConnectionPartyOnly(t *testing.T) {
	svc := setupChatService(t)
	alice, bob := uuid.New(), uuid.New()

	conn, err := svc.Connect(context.Background(), alice, bob)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := svc.RemoveConnection(context.Background(), uuid.New(), conn.ID); !errors.Is(err, veilchat_errors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for outsider, got %v", err)
	}

	if err := svc.RemoveConnection(context.Background(), bob, conn.ID); err != nil {
		t.Fatalf("remove by party: %v", err)
	}

	if _, err := svc.ResolveChannel(context.Background(), alice, conn.ID); !errors.Is(err, veilchat_errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}
}

func TestCreateRoomAddsCreator(t *testing.T) {
	svc := setupChatService(t)
	creator, member := uuid.New(), uuid.New()

	room, err := svc.CreateRoom(context.Background(), creator, "ops", true, []services.RoomMemberInput{
		{UserID: member},
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	members, err := svc.ListMembers(context.Background(), creator, room.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected creator plus 1 member, got %d", len(members))
	}

	if _, err := svc.CreateRoom(context.Background(), creator, "", true, nil); !errors.Is(err, veilchat_errors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}
}

func TestAddMembers(t *testing.T) {
	svc := setupChatService(t)
	creator, member := uuid.New(), uuid.New()

	room, err := svc.CreateRoom(context.Background(), creator, "ops", true, nil)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if err := svc.AddMembers(context.Background(), creator, room.ID, []services.RoomMemberInput{
		{UserID: member, Envelope: &services.KeyEnvelope{EncryptedRoomKey: []byte("wrapped")}},
	}); err != nil {
		t.Fatalf("add member: %v", err)
	}

	// Already a member.
	if err := svc.AddMembers(context.Background(), creator, room.ID, []services.RoomMemberInput{
		{UserID: member},
	}); !errors.Is(err, veilchat_errors.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate member, got %v", err)
	}

	// Only members can add members.
	if err := svc.AddMembers(context.Background(), uuid.New(), room.ID, []services.RoomMemberInput{
		{UserID: uuid.New()},
	}); !errors.Is(err, veilchat_errors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-member requestor, got %v", err)
	}
}

func TestResolveChannel(t *testing.T) {
	svc := setupChatService(t)
	alice, bob := uuid.New(), uuid.New()

	room, err := svc.CreateRoom(context.Background(), alice, "ops", true, nil)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	conn, err := svc.Connect(context.Background(), alice, bob)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	ref, err := svc.ResolveChannel(context.Background(), alice, room.ID)
	if err != nil {
		t.Fatalf("resolve room: %v", err)
	}
	if ref.Kind != chat.ChannelRoom || ref.ID != room.ID {
		t.Fatalf("unexpected room ref: %+v", ref)
	}

	ref, err = svc.ResolveChannel(context.Background(), bob, conn.ID)
	if err != nil {
		t.Fatalf("resolve connection: %v", err)
	}
	if ref.Kind != chat.ChannelConnection || ref.ID != conn.ID {
		t.Fatalf("unexpected connection ref: %+v", ref)
	}

	if _, err := svc.ResolveChannel(context.Background(), bob, room.ID); !errors.Is(err, veilchat_errors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-member room resolve, got %v", err)
	}
	if _, err := svc.ResolveChannel(context.Background(), uuid.New(), conn.ID); !errors.Is(err, veilchat_errors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for outsider connection resolve, got %v", err)
	}
	if _, err := svc.ResolveChannel(context.Background(), alice, uuid.New()); !errors.Is(err, veilchat_errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown target, got %v", err)
	}
}

func TestRespondConnection(t *testing.T) {
	svc := setupChatService(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	conn, err := svc.Connect(ctx, alice, bob)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if _, err := svc.RespondConnection(ctx, alice, conn.ID, true); !errors.Is(err, veilchat_errors.ErrForbidden) {
		t.Fatalf("requester responded to own request: %v", err)
	}

	accepted, err := svc.RespondConnection(ctx, bob, conn.ID, true)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.ID != conn.ID {
		t.Fatalf("accepted connection id = %s, want %s", accepted.ID, conn.ID)
	}
	if _, err := svc.ResolveChannel(ctx, alice, conn.ID); err != nil {
		t.Fatalf("connection unusable after accept: %v", err)
	}

	if _, err := svc.RespondConnection(ctx, bob, conn.ID, false); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := svc.ResolveChannel(ctx, alice, conn.ID); !errors.Is(err, veilchat_errors.ErrNotFound) {
		t.Fatalf("connection still resolvable after reject: %v", err)
	}

	if _, err := svc.RespondConnection(ctx, bob, uuid.New(), true); !errors.Is(err, veilchat_errors.ErrNotFound) {
		t.Fatalf("unknown connection: %v", err)
	}
}
